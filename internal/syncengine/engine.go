// Package syncengine keeps the local session store and the chat server
// consistent: one pull per sign-in, debounced pushes afterwards.
package syncengine

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/xiaoshi569/nextchat/internal/clock"
	"github.com/xiaoshi569/nextchat/internal/logging"
	"github.com/xiaoshi569/nextchat/internal/remote"
	"github.com/xiaoshi569/nextchat/internal/state"
	"github.com/xiaoshi569/nextchat/internal/transcode"
	"github.com/xiaoshi569/nextchat/pkg/types"
)

const (
	DefaultGuardInterval = 2000 * time.Millisecond
	DefaultSettleDelay   = 1000 * time.Millisecond
)

// Remote is the subset of the chat server API the engine drives.
// *remote.Client implements it.
type Remote interface {
	ListSessions(ctx context.Context) ([]types.Session, error)
	GetSession(ctx context.Context, id string) (*types.Session, error)
	CreateSession(ctx context.Context, req types.CreateSessionRequest) (*types.Session, error)
	UpdateSession(ctx context.Context, id string, req types.UpdateSessionRequest) (*types.Session, error)
	DeleteSession(ctx context.Context, id string) error
	AppendMessage(ctx context.Context, req types.AppendMessageRequest) (*types.Message, error)
}

type Config struct {
	GuardInterval time.Duration
	SettleDelay   time.Duration
	// MirrorStat sends every mutable field, counters included, instead of
	// the topic/prompt/mask subset.
	MirrorStat bool
}

type Engine struct {
	store  *state.Store
	remote Remote
	clk    clock.Clock
	logger *logging.Logger
	cfg    Config

	life     lifecycle
	debounce *debouncer
	queue    *opQueue
	flight   singleflight.Group

	// syncMu keeps pulls and pushes from overlapping.
	syncMu sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc
	bg     sync.WaitGroup
}

type Option func(*Engine)

func WithClock(c clock.Clock) Option {
	return func(e *Engine) { e.clk = c }
}

func WithLogger(l *logging.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

func New(store *state.Store, rc Remote, cfg Config, opts ...Option) *Engine {
	if cfg.GuardInterval <= 0 {
		cfg.GuardInterval = DefaultGuardInterval
	}
	if cfg.SettleDelay <= 0 {
		cfg.SettleDelay = DefaultSettleDelay
	}
	e := &Engine{
		store:  store,
		remote: rc,
		clk:    clock.Real(),
		logger: logging.Discard(),
		cfg:    cfg,
		queue:  newOpQueue(),
	}
	for _, o := range opts {
		o(e)
	}
	e.life.phase = PhaseIdle
	e.ctx, e.cancel = context.WithCancel(context.Background())
	e.debounce = newDebouncer(e.clk, cfg.GuardInterval, cfg.SettleDelay, e.scheduledPush)
	return e
}

// Activate starts the one pull of an authenticated lifetime in the
// background. Later calls are no-ops until Reset.
func (e *Engine) Activate() bool {
	gen, ok := e.life.activate()
	if !ok {
		return false
	}
	e.goBackground(func(ctx context.Context) {
		if err := e.pull(ctx, gen); err != nil {
			e.logger.Warnf("initial pull failed (%s): %v", remote.Classify(err), err)
			return
		}
		if e.hasUnsyncedWork() {
			e.NotifyChange()
		}
	})
	return true
}

// Reset returns the engine to its signed-out state and drops any pending
// push.
func (e *Engine) Reset() {
	e.debounce.Stop()
	e.life.reset()
}

// NotifyChange records a local mutation and schedules a push.
func (e *Engine) NotifyChange() {
	e.life.markDirty()
	e.debounce.Notify()
}

// pull fetches every remote session with its messages and merges them into
// the store. Any failure leaves the store untouched.
func (e *Engine) pull(ctx context.Context, gen uint64) error {
	e.syncMu.Lock()
	defer e.syncMu.Unlock()
	return e.pullLocked(ctx, gen)
}

// pullLocked runs with syncMu held. A lifetime merges at most once: a pull
// that finds the lifetime already pulled returns without touching the
// server.
func (e *Engine) pullLocked(ctx context.Context, gen uint64) error {
	if err := e.life.beginPull(gen); err != nil {
		if errors.Is(err, errPulled) {
			return nil
		}
		return err
	}
	sessions, err := e.fetchAll(ctx)
	if err == nil && !e.life.current(gen) {
		err = errStale
	}
	if err != nil {
		e.life.markPulled(gen, e.clk.Now(), err)
		return err
	}
	if len(sessions) > 0 {
		e.store.MergeRemote(sessions)
	}
	e.life.markPulled(gen, e.clk.Now(), nil)
	e.logger.Infof("pulled %d remote sessions", len(sessions))
	return nil
}

var (
	// ErrNotActive is reported by Push while no authenticated lifetime is
	// running.
	ErrNotActive = errors.New("sync: not signed in")

	errStale  = errors.New("sync: signed out during pull")
	errPulled = errors.New("sync: already pulled")
)

func (e *Engine) fetchAll(ctx context.Context) ([]*state.Session, error) {
	list, err := e.remote.ListSessions(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*state.Session, 0, len(list))
	for _, item := range list {
		full, err := e.remote.GetSession(ctx, item.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, transcode.ToLocal(*full))
	}
	return out, nil
}

// Push sends every local session to the server. Failures are reported per
// session and never abort the batch, except Unauthorized which stops it.
//
// Nothing is sent before the lifetime's pull has merged the server's copy;
// a pull that failed earlier is retried first, and if it fails again the
// push reports that single failure.
func (e *Engine) Push(ctx context.Context) []PushResult {
	e.syncMu.Lock()
	defer e.syncMu.Unlock()

	gen, ok := e.life.lifetime()
	if !ok {
		return []PushResult{failed("", ErrNotActive)}
	}
	if err := e.pullLocked(ctx, gen); err != nil {
		e.logger.Warnf("push held back, pull failed (%s): %v", remote.Classify(err), err)
		return []PushResult{failed("", err)}
	}

	e.life.beginPush()
	results := e.push(ctx)
	e.life.endPush(e.clk.Now(), results)
	return results
}

func (e *Engine) push(ctx context.Context) []PushResult {
	snapshot := e.store.Sessions()
	if len(snapshot) == 0 {
		return nil
	}
	known, err := e.remoteIDs(ctx)
	if err != nil {
		e.logger.Warnf("push aborted, session list failed (%s): %v", remote.Classify(err), err)
		return []PushResult{failed("", err)}
	}

	results := make([]PushResult, 0, len(snapshot))
	for _, s := range snapshot {
		res := e.pushOne(ctx, s.ID, known)
		if res.Action == ActionFailed {
			e.logger.Warnf("push session %s failed (%s): %v", s.ID, res.Kind, res.Err)
		}
		results = append(results, res)
		if errors.Is(res.Err, remote.ErrUnauthorized) {
			break
		}
	}
	return results
}

// remoteIDs lists the server's session ids. Concurrent callers share one
// request.
func (e *Engine) remoteIDs(ctx context.Context) (map[string]struct{}, error) {
	v, err, _ := e.flight.Do("session-ids", func() (any, error) {
		list, err := e.remote.ListSessions(ctx)
		if err != nil {
			return nil, err
		}
		ids := make(map[string]struct{}, len(list))
		for _, s := range list {
			ids[s.ID] = struct{}{}
		}
		return ids, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(map[string]struct{}), nil
}

// pushOne sends one session and then its pending messages. Each step holds
// the queue slot of the id it works on, so messages of a session the server
// renamed on create go out under the new id's slot.
func (e *Engine) pushOne(ctx context.Context, id string, known map[string]struct{}) PushResult {
	var res PushResult
	_ = e.queue.Do(id, func() error {
		res = e.pushSession(ctx, id, known)
		if res.SessionID == id {
			e.pushCarried(ctx, &res)
		}
		return res.Err
	})
	if res.Action == ActionCreated && res.SessionID != id {
		_ = e.queue.Do(res.SessionID, func() error {
			e.pushCarried(ctx, &res)
			return res.Err
		})
	}
	return res
}

// pushSession creates or updates the session record and runs under the
// session's queue slot.
func (e *Engine) pushSession(ctx context.Context, id string, known map[string]struct{}) PushResult {
	s, ok := e.store.Session(id)
	if !ok {
		return PushResult{SessionID: id, Action: ActionSkipped}
	}

	res := PushResult{SessionID: id}
	switch _, exists := known[id]; {
	case exists:
		req := transcode.ToRemotePatch(s)
		if e.cfg.MirrorStat {
			req = transcode.ToRemoteUpdate(s)
		}
		if _, err := e.remote.UpdateSession(ctx, id, req); err != nil {
			return failed(id, err)
		}
		e.store.MarkSynced(id)
		res.Action = ActionUpdated
	case s.Synced:
		// Known remotely before but gone now: deleted on another device.
		res.Action = ActionSkipped
	default:
		created, err := e.remote.CreateSession(ctx, transcode.ToRemoteCreate(s))
		if err != nil {
			return failed(id, err)
		}
		if !e.store.AdoptRemoteID(id, created.ID) {
			e.compensate(ctx, created.ID)
			return PushResult{SessionID: created.ID, LocalID: id, Action: ActionSkipped}
		}
		if created.ID != id {
			res.LocalID = id
			res.SessionID = created.ID
		}
		res.Action = ActionCreated
	}
	return res
}

// pushCarried sends the messages of a session that was just created or
// updated and folds a failure into res.
func (e *Engine) pushCarried(ctx context.Context, res *PushResult) {
	if res.Action != ActionCreated && res.Action != ActionUpdated {
		return
	}
	n, err := e.pushMessages(ctx, res.SessionID)
	res.MessagesPushed = n
	if err != nil {
		out := failed(res.SessionID, err)
		out.LocalID = res.LocalID
		out.MessagesPushed = n
		*res = out
	}
}

// pushMessages appends the session's unsynced messages in creation order,
// stopping at the first failure so order is kept on the next attempt.
func (e *Engine) pushMessages(ctx context.Context, sessionID string) (int, error) {
	s, ok := e.store.Session(sessionID)
	if !ok || !s.Synced {
		return 0, nil
	}
	n := 0
	for _, m := range s.PendingMessages() {
		if _, err := e.remote.AppendMessage(ctx, transcode.ToRemoteMessage(sessionID, m)); err != nil {
			return n, err
		}
		e.store.MarkMessageSynced(sessionID, m.ID)
		n++
	}
	return n, nil
}

// compensate removes a session the server created after the user already
// deleted it locally.
func (e *Engine) compensate(ctx context.Context, id string) {
	if err := e.remote.DeleteSession(ctx, id); err != nil && !errors.Is(err, remote.ErrNotFound) {
		e.logger.Warnf("compensating delete of %s failed (%s): %v", id, remote.Classify(err), err)
		return
	}
	e.logger.Infof("removed session %s created after local delete", id)
}

// AppendMessage adds a message locally. For a session the server already
// holds it is sent right away in the background; otherwise it rides along
// with the session's next push.
func (e *Engine) AppendMessage(sessionID string, msg state.Message) (state.Message, error) {
	out, err := e.store.AppendMessage(sessionID, msg)
	if err != nil {
		return state.Message{}, err
	}
	s, ok := e.store.Session(sessionID)
	if !ok || !s.Synced || !e.isActive() {
		return out, nil
	}
	e.goBackground(func(ctx context.Context) {
		err := e.queue.Do(sessionID, func() error {
			_, err := e.pushMessages(ctx, sessionID)
			return err
		})
		if err != nil {
			e.logger.Warnf("message push for %s failed (%s): %v", sessionID, remote.Classify(err), err)
		}
	})
	return out, nil
}

// DeleteSession removes the session locally and then on the server. The
// remote error is returned; a session the server no longer has counts as
// deleted.
func (e *Engine) DeleteSession(ctx context.Context, id string) error {
	removed, err := e.store.DeleteSession(id)
	if err != nil {
		return err
	}
	if !removed.Synced {
		return nil
	}
	return e.queue.Do(id, func() error {
		err := e.remote.DeleteSession(ctx, id)
		if errors.Is(err, remote.ErrNotFound) {
			return nil
		}
		return err
	})
}

func (e *Engine) Status() Status {
	st := e.life.snapshot()
	st.PushPending = e.debounce.Armed()
	return st
}

// Wait blocks until background pulls and message pushes have finished.
func (e *Engine) Wait() {
	e.bg.Wait()
}

// Close cancels pending work and waits for running work to stop.
func (e *Engine) Close() {
	e.debounce.Stop()
	e.cancel()
	e.bg.Wait()
}

func (e *Engine) scheduledPush() {
	if e.ctx.Err() != nil || !e.isActive() {
		return
	}
	results := e.Push(e.ctx)
	pushed := 0
	for _, r := range results {
		if r.Action != ActionFailed {
			pushed++
		}
	}
	e.logger.Debugf("scheduled push: %d/%d sessions ok", pushed, len(results))
}

func (e *Engine) goBackground(fn func(ctx context.Context)) {
	e.bg.Add(1)
	go func() {
		defer e.bg.Done()
		fn(e.ctx)
	}()
}

func (e *Engine) isActive() bool {
	e.life.mu.Lock()
	defer e.life.mu.Unlock()
	return e.life.activated
}

func (e *Engine) hasUnsyncedWork() bool {
	for _, s := range e.store.Sessions() {
		if !s.Synced || len(s.PendingMessages()) > 0 {
			return true
		}
	}
	return false
}

func failed(id string, err error) PushResult {
	return PushResult{
		SessionID: id,
		Action:    ActionFailed,
		Kind:      remote.Classify(err),
		Error:     err.Error(),
		Err:       err,
	}
}
