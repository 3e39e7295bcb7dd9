package syncengine

import (
	"sync"
	"time"

	"github.com/xiaoshi569/nextchat/internal/remote"
)

type Phase string

const (
	PhaseIdle    Phase = "idle"
	PhasePulling Phase = "pulling"
	PhaseMerged  Phase = "merged"
	PhaseDirty   Phase = "dirty"
	PhasePushing Phase = "pushing"
)

type Action string

const (
	ActionCreated Action = "created"
	ActionUpdated Action = "updated"
	ActionSkipped Action = "skipped"
	ActionFailed  Action = "failed"
)

// PushResult is the outcome of pushing one session and its carried
// messages.
type PushResult struct {
	SessionID      string      `json:"session_id"`
	LocalID        string      `json:"local_id,omitempty"`
	Action         Action      `json:"action"`
	MessagesPushed int         `json:"messages_pushed"`
	Kind           remote.Kind `json:"error_kind,omitempty"`
	Error          string      `json:"error,omitempty"`
	Err            error       `json:"-"`
}

type Status struct {
	Phase        Phase        `json:"phase"`
	Activated    bool         `json:"activated"`
	Pulled       bool         `json:"pulled"`
	PushPending  bool         `json:"push_pending"`
	LastPullUnix int64        `json:"last_pull_unix"`
	LastPushUnix int64        `json:"last_push_unix"`
	LastError    string       `json:"last_error"`
	LastResults  []PushResult `json:"last_results,omitempty"`
}

// lifecycle is the engine's per-authentication state. Reset returns it to
// the signed-out shape and bumps the generation so work started in an
// earlier lifetime can tell it is stale.
type lifecycle struct {
	mu          sync.Mutex
	phase       Phase
	activated   bool
	pulled      bool
	generation  uint64
	lastPull    time.Time
	lastPush    time.Time
	lastError   string
	lastResults []PushResult
}

func (l *lifecycle) activate() (uint64, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.activated {
		return 0, false
	}
	l.activated = true
	l.phase = PhasePulling
	return l.generation, true
}

func (l *lifecycle) reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.generation++
	l.phase = PhaseIdle
	l.activated = false
	l.pulled = false
	l.lastError = ""
	l.lastResults = nil
}

func (l *lifecycle) current(gen uint64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.generation == gen
}

// lifetime returns the generation of the running authenticated lifetime.
func (l *lifecycle) lifetime() (uint64, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.generation, l.activated
}

// beginPull moves the lifetime into PhasePulling unless it has already
// pulled or has been replaced by a newer one.
func (l *lifecycle) beginPull(gen uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	switch {
	case l.generation != gen || !l.activated:
		return errStale
	case l.pulled:
		return errPulled
	}
	l.phase = PhasePulling
	return nil
}

func (l *lifecycle) markPulled(gen uint64, at time.Time, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.generation != gen {
		return
	}
	if err != nil {
		l.phase = PhaseIdle
		l.lastError = err.Error()
		return
	}
	l.phase = PhaseMerged
	l.pulled = true
	l.lastPull = at
	l.lastError = ""
}

func (l *lifecycle) markDirty() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.phase == PhaseMerged {
		l.phase = PhaseDirty
	}
}

func (l *lifecycle) beginPush() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.phase == PhaseMerged || l.phase == PhaseDirty {
		l.phase = PhasePushing
	}
}

func (l *lifecycle) endPush(at time.Time, results []PushResult) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.phase == PhasePushing {
		l.phase = PhaseMerged
	}
	l.lastPush = at
	l.lastResults = results
	l.lastError = ""
	for _, r := range results {
		if r.Action == ActionFailed {
			l.lastError = r.Error
			break
		}
	}
}

func (l *lifecycle) snapshot() Status {
	l.mu.Lock()
	defer l.mu.Unlock()
	st := Status{
		Phase:       l.phase,
		Activated:   l.activated,
		Pulled:      l.pulled,
		LastError:   l.lastError,
		LastResults: append([]PushResult(nil), l.lastResults...),
	}
	if !l.lastPull.IsZero() {
		st.LastPullUnix = l.lastPull.Unix()
	}
	if !l.lastPush.IsZero() {
		st.LastPushUnix = l.lastPush.Unix()
	}
	return st
}
