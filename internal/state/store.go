package state

import (
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/lithammer/shortuuid/v4"

	"github.com/xiaoshi569/nextchat/internal/clock"
	"github.com/xiaoshi569/nextchat/internal/logging"
)

const DefaultTopic = "New Chat"

// messageDateLayout mirrors the locale string the web client shows.
const messageDateLayout = "2006/1/2 15:04:05"

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrIDChanged       = errors.New("session id cannot be changed")
)

// Origin tells subscribers who caused a change.
type Origin int

const (
	OriginUser Origin = iota
	OriginSync
)

type ChangeKind string

const (
	SessionCreated  ChangeKind = "session_created"
	SessionUpdated  ChangeKind = "session_updated"
	SessionDeleted  ChangeKind = "session_deleted"
	MessageAppended ChangeKind = "message_appended"
	SessionsMerged  ChangeKind = "sessions_merged"
	SessionSynced   ChangeKind = "session_synced"
)

type Change struct {
	Kind      ChangeKind
	SessionID string
	Origin    Origin
}

// Store is the local collection of sessions. All reads return deep copies;
// every mutation is applied atomically and then announced to subscribers.
type Store struct {
	mu       sync.RWMutex
	sessions []*Session
	current  int

	clk    clock.Clock
	logger *logging.Logger
	path   string

	subMu   sync.Mutex
	subs    map[int]func(Change)
	nextSub int
}

type Option func(*Store)

func WithClock(c clock.Clock) Option {
	return func(s *Store) { s.clk = c }
}

func WithLogger(l *logging.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithPersistence saves a snapshot to path after every mutation.
func WithPersistence(path string) Option {
	return func(s *Store) { s.path = path }
}

func NewStore(opts ...Option) *Store {
	s := &Store{clk: clock.Real(), logger: logging.Discard(), subs: map[int]func(Change){}}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Open builds a store and loads the snapshot at its persistence path, if any.
func Open(opts ...Option) (*Store, error) {
	s := NewStore(opts...)
	if s.path == "" {
		return s, nil
	}
	snap, err := loadSnapshot(s.path)
	if err != nil {
		return nil, err
	}
	if snap != nil {
		s.sessions = snap.Sessions
		s.current = snap.Current
		s.clampCurrentLocked()
	}
	return s, nil
}

// Subscribe registers fn for every change. The returned func unsubscribes.
func (s *Store) Subscribe(fn func(Change)) func() {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	return func() {
		s.subMu.Lock()
		defer s.subMu.Unlock()
		delete(s.subs, id)
	}
}

func (s *Store) Sessions() []*Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, sess.Clone())
	}
	return out
}

func (s *Store) Session(id string) (*Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i := s.indexLocked(id); i >= 0 {
		return s.sessions[i].Clone(), true
	}
	return nil, false
}

// Current returns the active session and its index.
func (s *Store) Current() (*Session, int, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.sessions) == 0 {
		return nil, 0, false
	}
	return s.sessions[s.current].Clone(), s.current, true
}

func (s *Store) Select(id string) error {
	s.mu.Lock()
	i := s.indexLocked(id)
	if i < 0 {
		s.mu.Unlock()
		return ErrSessionNotFound
	}
	s.current = i
	s.mu.Unlock()
	s.afterMutation(Change{Kind: SessionUpdated, SessionID: id, Origin: OriginUser})
	return nil
}

// NewSession starts a local-only session and makes it current.
func (s *Store) NewSession(topic string) *Session {
	if topic == "" {
		topic = DefaultTopic
	}
	sess := &Session{
		ID:         uuid.NewString(),
		Topic:      topic,
		Messages:   []Message{},
		LastUpdate: s.clk.Now().UnixMilli(),
		Mask:       Mask{},
	}
	s.mu.Lock()
	s.sessions = append([]*Session{sess}, s.sessions...)
	s.current = 0
	out := sess.Clone()
	s.mu.Unlock()
	s.afterMutation(Change{Kind: SessionCreated, SessionID: sess.ID, Origin: OriginUser})
	return out
}

// UpdateSession applies fn to the session. fn must not touch the id or the
// message list; messages only grow through AppendMessage.
func (s *Store) UpdateSession(id string, fn func(*Session)) (*Session, error) {
	s.mu.Lock()
	i := s.indexLocked(id)
	if i < 0 {
		s.mu.Unlock()
		return nil, ErrSessionNotFound
	}
	work := s.sessions[i].Clone()
	fn(work)
	if work.ID != id {
		s.mu.Unlock()
		return nil, ErrIDChanged
	}
	work.Messages = s.sessions[i].Messages
	work.Synced = s.sessions[i].Synced
	if work.Mask == nil {
		work.Mask = Mask{}
	}
	work.LastUpdate = s.clk.Now().UnixMilli()
	s.sessions[i] = work
	out := work.Clone()
	s.mu.Unlock()
	s.afterMutation(Change{Kind: SessionUpdated, SessionID: id, Origin: OriginUser})
	return out, nil
}

// DeleteSession removes the session and its messages and returns what was
// removed.
func (s *Store) DeleteSession(id string) (*Session, error) {
	s.mu.Lock()
	i := s.indexLocked(id)
	if i < 0 {
		s.mu.Unlock()
		return nil, ErrSessionNotFound
	}
	removed := s.sessions[i]
	s.sessions = append(s.sessions[:i:i], s.sessions[i+1:]...)
	if s.current > i {
		s.current--
	}
	s.clampCurrentLocked()
	s.mu.Unlock()
	s.afterMutation(Change{Kind: SessionDeleted, SessionID: id, Origin: OriginUser})
	return removed, nil
}

// AppendMessage adds msg at the end of the session. Missing ids and dates
// are filled in; the message always starts unsynced.
func (s *Store) AppendMessage(sessionID string, msg Message) (Message, error) {
	now := s.clk.Now()
	if msg.ID == "" {
		msg.ID = shortuuid.New()
	}
	if msg.Date == "" {
		msg.Date = now.Format(messageDateLayout)
	}
	msg.Synced = false

	s.mu.Lock()
	i := s.indexLocked(sessionID)
	if i < 0 {
		s.mu.Unlock()
		return Message{}, ErrSessionNotFound
	}
	sess := s.sessions[i]
	sess.Messages = append(sess.Messages, msg.clone())
	sess.Stat = ComputeStat(sess.Messages)
	sess.LastUpdate = now.UnixMilli()
	s.mu.Unlock()
	s.afterMutation(Change{Kind: MessageAppended, SessionID: sessionID, Origin: OriginUser})
	return msg.clone(), nil
}

// MergeRemote replaces the collection with Merge(remote, local) and resets
// the current pointer to the first session.
func (s *Store) MergeRemote(remote []*Session) {
	s.mu.Lock()
	s.sessions = Merge(remote, s.sessions)
	s.current = 0
	s.mu.Unlock()
	s.afterMutation(Change{Kind: SessionsMerged, Origin: OriginSync})
}

// AdoptRemoteID records that the remote store now holds the session under
// remoteID. It reports false when the session no longer exists locally.
func (s *Store) AdoptRemoteID(localID, remoteID string) bool {
	s.mu.Lock()
	i := s.indexLocked(localID)
	if i < 0 {
		s.mu.Unlock()
		return false
	}
	s.sessions[i].ID = remoteID
	s.sessions[i].Synced = true
	s.mu.Unlock()
	s.afterMutation(Change{Kind: SessionSynced, SessionID: remoteID, Origin: OriginSync})
	return true
}

// MarkSynced flags the session as known to the remote store.
func (s *Store) MarkSynced(id string) bool {
	s.mu.Lock()
	i := s.indexLocked(id)
	if i < 0 {
		s.mu.Unlock()
		return false
	}
	changed := !s.sessions[i].Synced
	s.sessions[i].Synced = true
	s.mu.Unlock()
	if changed {
		s.afterMutation(Change{Kind: SessionSynced, SessionID: id, Origin: OriginSync})
	}
	return true
}

// MarkMessageSynced flags one message as held remotely.
func (s *Store) MarkMessageSynced(sessionID, messageID string) bool {
	s.mu.Lock()
	i := s.indexLocked(sessionID)
	if i < 0 {
		s.mu.Unlock()
		return false
	}
	found := false
	msgs := s.sessions[i].Messages
	for j := range msgs {
		if msgs[j].ID == messageID {
			msgs[j].Synced = true
			found = true
			break
		}
	}
	s.mu.Unlock()
	if found {
		s.afterMutation(Change{Kind: SessionSynced, SessionID: sessionID, Origin: OriginSync})
	}
	return found
}

// Merge builds the pulled collection: every remote session as-is, followed
// by local sessions whose id the remote side does not know. Remote wins in
// its entirety on an id collision.
func Merge(remote, local []*Session) []*Session {
	seen := make(map[string]struct{}, len(remote)+len(local))
	out := make([]*Session, 0, len(remote)+len(local))
	for _, r := range remote {
		if r == nil {
			continue
		}
		if _, dup := seen[r.ID]; dup {
			continue
		}
		seen[r.ID] = struct{}{}
		out = append(out, r.Clone())
	}
	for _, l := range local {
		if l == nil {
			continue
		}
		if _, known := seen[l.ID]; known {
			continue
		}
		seen[l.ID] = struct{}{}
		out = append(out, l.Clone())
	}
	return out
}

func (s *Store) indexLocked(id string) int {
	for i, sess := range s.sessions {
		if sess.ID == id {
			return i
		}
	}
	return -1
}

func (s *Store) clampCurrentLocked() {
	if s.current >= len(s.sessions) {
		s.current = len(s.sessions) - 1
	}
	if s.current < 0 {
		s.current = 0
	}
}

func (s *Store) afterMutation(ch Change) {
	if s.path != "" {
		if err := s.Save(); err != nil {
			s.logger.Warnf("state snapshot failed: %v", err)
		}
	}
	s.subMu.Lock()
	fns := make([]func(Change), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.subMu.Unlock()
	for _, fn := range fns {
		fn(ch)
	}
}
