// Package auth holds the client's credential: the bearer token and the
// identity it was issued for.
package auth

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/xiaoshi569/nextchat/internal/logging"
)

type Identity struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	Username string `json:"username"`
	Role     string `json:"role"`
}

type EventKind int

const (
	Authenticated EventKind = iota + 1
	Unauthenticated
	// SignInRequired follows Unauthenticated when the server rejected the
	// token, as opposed to a voluntary sign-out.
	SignInRequired
)

func (k EventKind) String() string {
	switch k {
	case Authenticated:
		return "authenticated"
	case Unauthenticated:
		return "unauthenticated"
	case SignInRequired:
		return "sign_in_required"
	}
	return "unknown"
}

type Event struct {
	Kind     EventKind
	Identity Identity
}

type persisted struct {
	Token    string   `json:"token"`
	Identity Identity `json:"user"`
}

// Store is the credential holder shared by the remote client and the sync
// engine. It implements remote.Credentials.
type Store struct {
	mu       sync.RWMutex
	token    string
	identity Identity
	path     string
	logger   *logging.Logger

	subMu   sync.Mutex
	subs    map[int]func(Event)
	nextSub int
}

// NewStore loads a persisted credential from path when path is set.
func NewStore(path string, logger *logging.Logger) (*Store, error) {
	if logger == nil {
		logger = logging.Discard()
	}
	s := &Store{path: path, logger: logger, subs: map[int]func(Event){}}
	if path == "" {
		return s, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("read credentials: %w", err)
	}
	var p persisted
	if len(data) > 0 {
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, fmt.Errorf("decode credentials: %w", err)
		}
	}
	s.token = strings.TrimSpace(p.Token)
	s.identity = p.Identity
	return s, nil
}

func (s *Store) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

func (s *Store) Identity() (Identity, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.identity, s.token != ""
}

func (s *Store) IsAuthenticated() bool {
	return s.Token() != ""
}

// Subscribe registers fn for credential transitions.
func (s *Store) Subscribe(fn func(Event)) func() {
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

// SignIn stores a freshly issued token. Replacing a token held for another
// user goes through an unauthenticated transition first.
func (s *Store) SignIn(token string, id Identity) {
	token = strings.TrimSpace(token)
	if token == "" {
		return
	}
	s.mu.Lock()
	wasAuthed := s.token != ""
	switched := wasAuthed && s.identity.ID != "" && s.identity.ID != id.ID
	s.token = token
	s.identity = id
	s.mu.Unlock()
	s.save()

	if switched {
		s.emit(Event{Kind: Unauthenticated})
	}
	if !wasAuthed || switched {
		s.emit(Event{Kind: Authenticated, Identity: id})
	}
}

func (s *Store) SignOut() {
	if s.clearIf("") {
		s.emit(Event{Kind: Unauthenticated})
	}
}

// Invalidate clears the credential if token is still the one held. A token
// that was already replaced or cleared is ignored, so concurrent rejections
// of the same token raise the sign-in signal once.
func (s *Store) Invalidate(token string) {
	if strings.TrimSpace(token) == "" {
		return
	}
	if s.clearIf(token) {
		s.logger.Warnf("credential rejected by server, sign-in required")
		s.emit(Event{Kind: Unauthenticated})
		s.emit(Event{Kind: SignInRequired})
	}
}

// clearIf clears the credential when it matches token, or unconditionally
// for an empty token. It reports whether anything was cleared.
func (s *Store) clearIf(token string) bool {
	s.mu.Lock()
	if s.token == "" || (token != "" && s.token != token) {
		s.mu.Unlock()
		return false
	}
	s.token = ""
	s.identity = Identity{}
	s.mu.Unlock()
	s.save()
	return true
}

func (s *Store) emit(ev Event) {
	s.subMu.Lock()
	fns := make([]func(Event), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.subMu.Unlock()
	for _, fn := range fns {
		fn(ev)
	}
}

func (s *Store) save() {
	if s.path == "" {
		return
	}
	s.mu.RLock()
	p := persisted{Token: s.token, Identity: s.identity}
	s.mu.RUnlock()
	data, err := json.MarshalIndent(p, "", "  ")
	if err == nil {
		if dir := filepath.Dir(s.path); dir != "" {
			err = os.MkdirAll(dir, 0o700)
		}
	}
	if err == nil {
		err = os.WriteFile(s.path, data, 0o600)
	}
	if err != nil {
		s.logger.Warnf("persist credentials failed: %v", err)
	}
}
