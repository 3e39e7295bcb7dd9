// Package servertest runs a complete chat server on an in-memory database
// for tests in other packages.
package servertest

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/xiaoshi569/nextchat/internal/secret"
	httpapi "github.com/xiaoshi569/nextchat/internal/server/http"
	"github.com/xiaoshi569/nextchat/internal/server/repos"
	"github.com/xiaoshi569/nextchat/internal/server/services"
	"github.com/xiaoshi569/nextchat/pkg/types"
)

type Server struct {
	*httptest.Server
	DB    *repos.DB
	Auth  *services.AuthService
	Chat  *services.ChatService
	Admin *services.AdminService

	mu    sync.Mutex
	calls map[string]int
}

// New starts a server and closes it when the test ends.
func New(t testing.TB) *Server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	db, err := repos.Open("sqlite", "file::memory:")
	if err != nil {
		t.Fatal(err)
	}
	if err := db.Migrate(context.Background()); err != nil {
		t.Fatal(err)
	}
	box, err := secret.New("servertest")
	if err != nil {
		t.Fatal(err)
	}
	s := &Server{
		DB:    db,
		Auth:  services.NewAuthService(db, services.AuthConfig{JWTSecret: "servertest", AllowRegister: true}),
		Chat:  services.NewChatService(db),
		calls: map[string]int{},
	}
	s.Admin = services.NewAdminService(db, box)
	router := httpapi.NewRouter(httpapi.Deps{DB: db, Auth: s.Auth, Chat: s.Chat, Admin: s.Admin})
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.calls[r.Method+" "+r.URL.Path]++
		s.mu.Unlock()
		router.ServeHTTP(w, r)
	}))
	t.Cleanup(func() {
		s.Close()
		_ = db.Close()
	})
	return s
}

// Calls returns how often method+path was requested, e.g. "POST /api/chat/sessions".
func (s *Server) Calls(key string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[key]
}

// CallsWithPrefix sums the calls whose key starts with prefix.
func (s *Server) CallsWithPrefix(prefix string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for k, v := range s.calls {
		if len(k) >= len(prefix) && k[:len(prefix)] == prefix {
			n += v
		}
	}
	return n
}

func (s *Server) ResetCalls() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = map[string]int{}
}

// User creates an account and returns its id and a valid token.
func (s *Server) User(t testing.TB, email, username string) (string, string) {
	t.Helper()
	u, err := s.Auth.CreateUser(context.Background(), email, username, "password", string(types.RoleMember))
	if err != nil {
		t.Fatal(err)
	}
	token, err := s.Auth.IssueToken(u)
	if err != nil {
		t.Fatal(err)
	}
	return u.ID, token
}
