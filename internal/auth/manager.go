package auth

import (
	"context"
	"errors"
	"strings"

	"github.com/xiaoshi569/nextchat/internal/logging"
	"github.com/xiaoshi569/nextchat/internal/remote"
	"github.com/xiaoshi569/nextchat/pkg/types"
)

// Manager performs the credential exchanges with the chat server.
type Manager struct {
	creds  *Store
	client *remote.Client
	logger *logging.Logger
}

func NewManager(creds *Store, client *remote.Client, logger *logging.Logger) *Manager {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Manager{creds: creds, client: client, logger: logger}
}

func (m *Manager) Login(ctx context.Context, email, password string) (Identity, error) {
	resp, err := m.client.Login(ctx, types.LoginRequest{Email: strings.TrimSpace(email), Password: password})
	if err != nil {
		return Identity{}, err
	}
	id := identityFrom(resp.User)
	m.creds.SignIn(resp.Token, id)
	m.logger.Infof("signed in as %s", id.Email)
	return id, nil
}

func (m *Manager) Register(ctx context.Context, email, username, password string) (Identity, error) {
	resp, err := m.client.Register(ctx, types.RegisterRequest{
		Email:    strings.TrimSpace(email),
		Username: strings.TrimSpace(username),
		Password: password,
	})
	if err != nil {
		return Identity{}, err
	}
	id := identityFrom(resp.User)
	m.creds.SignIn(resp.Token, id)
	return id, nil
}

func (m *Manager) Logout() {
	m.creds.SignOut()
}

// Restore checks a persisted token against the server. A rejected token is
// cleared by the client's invalidation path; network failures keep it.
func (m *Manager) Restore(ctx context.Context) (Identity, bool) {
	if !m.creds.IsAuthenticated() {
		return Identity{}, false
	}
	user, err := m.client.Me(ctx)
	if err != nil {
		if errors.Is(err, remote.ErrUnauthorized) {
			return Identity{}, false
		}
		m.logger.Warnf("token check failed (%s): %v", remote.Classify(err), err)
		return m.creds.Identity()
	}
	id := identityFrom(*user)
	m.creds.SignIn(m.creds.Token(), id)
	return id, true
}

func identityFrom(u types.User) Identity {
	return Identity{ID: u.ID, Email: u.Email, Username: u.Username, Role: string(u.Role)}
}
