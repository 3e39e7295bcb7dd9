package services

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/xiaoshi569/nextchat/internal/secret"
	"github.com/xiaoshi569/nextchat/internal/server/models"
	"github.com/xiaoshi569/nextchat/internal/server/repos"
	"github.com/xiaoshi569/nextchat/pkg/types"
)

var ErrUserNotFound = errors.New("user not found")
var ErrAPIKeyNotFound = errors.New("api key not found")

type AdminService struct {
	db       *repos.DB
	users    *repos.UserRepo
	sessions *repos.SessionRepo
	keys     *repos.APIKeyRepo
	box      *secret.Box
	now      func() time.Time
}

func NewAdminService(db *repos.DB, box *secret.Box) *AdminService {
	return &AdminService{
		db:       db,
		users:    repos.NewUserRepo(db),
		sessions: repos.NewSessionRepo(db),
		keys:     repos.NewAPIKeyRepo(db),
		box:      box,
		now:      time.Now,
	}
}

func (s *AdminService) ListUsers(ctx context.Context) ([]models.User, error) {
	users, err := s.users.ListWithCounts(ctx)
	return users, errors.Wrap(err, "list users")
}

func (s *AdminService) SetUserActive(ctx context.Context, actorID, id string, active bool) (*models.User, error) {
	if actorID == id {
		return nil, invalid("cannot change your own account status")
	}
	if err := s.users.SetActive(ctx, id, active, s.now().UnixMilli()); err != nil {
		if errors.Is(err, repos.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, errors.Wrap(err, "update user")
	}
	u, err := s.users.GetByID(ctx, id)
	return u, errors.Wrap(err, "load user")
}

// DeleteUser removes an account with all its sessions and messages.
func (s *AdminService) DeleteUser(ctx context.Context, actorID, id string) error {
	if actorID == id {
		return invalid("cannot delete your own account")
	}
	err := s.db.WithTx(ctx, func(tx *sql.Tx) error {
		if err := s.sessions.DeleteByUserTx(ctx, tx, id); err != nil {
			return err
		}
		return s.users.DeleteTx(ctx, tx, id)
	})
	if errors.Is(err, repos.ErrNotFound) {
		return ErrUserNotFound
	}
	return errors.Wrap(err, "delete user")
}

// APIKeyView is an API key with its secret reduced to a masked preview.
type APIKeyView struct {
	models.APIKey
	Masked string
}

func (s *AdminService) ListAPIKeys(ctx context.Context) ([]APIKeyView, error) {
	keys, err := s.keys.List(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "list api keys")
	}
	out := make([]APIKeyView, 0, len(keys))
	for _, k := range keys {
		out = append(out, s.view(k))
	}
	return out, nil
}

func (s *AdminService) CreateAPIKey(ctx context.Context, in types.CreateAPIKeyRequest) (*APIKeyView, error) {
	if strings.TrimSpace(in.APIKey) == "" {
		return nil, invalid("apiKey is required")
	}
	sealed, err := s.box.Encrypt(in.APIKey)
	if err != nil {
		return nil, errors.Wrap(err, "encrypt api key")
	}
	now := s.now().UnixMilli()
	k := models.APIKey{
		ID:           uuid.NewString(),
		Provider:     strings.TrimSpace(in.Provider),
		Name:         strings.TrimSpace(in.Name),
		EncryptedKey: sealed,
		BaseURL:      strings.TrimSpace(in.BaseURL),
		Priority:     in.Priority,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.keys.Insert(ctx, &k); err != nil {
		return nil, errors.Wrap(err, "insert api key")
	}
	v := s.view(k)
	return &v, nil
}

func (s *AdminService) UpdateAPIKey(ctx context.Context, id string, in types.UpdateAPIKeyRequest) (*APIKeyView, error) {
	k, err := s.keys.Get(ctx, id)
	if errors.Is(err, repos.ErrNotFound) {
		return nil, ErrAPIKeyNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "load api key")
	}
	if in.Name != nil {
		k.Name = strings.TrimSpace(*in.Name)
	}
	if in.IsActive != nil {
		k.IsActive = *in.IsActive
	}
	if in.Priority != nil {
		if *in.Priority < 0 {
			return nil, invalid("priority must not be negative")
		}
		k.Priority = *in.Priority
	}
	if in.BaseURL != nil {
		k.BaseURL = strings.TrimSpace(*in.BaseURL)
	}
	if in.APIKey != nil && strings.TrimSpace(*in.APIKey) != "" {
		sealed, err := s.box.Encrypt(*in.APIKey)
		if err != nil {
			return nil, errors.Wrap(err, "encrypt api key")
		}
		k.EncryptedKey = sealed
	}
	k.UpdatedAt = s.now().UnixMilli()
	if err := s.keys.Update(ctx, k); err != nil {
		return nil, errors.Wrap(err, "update api key")
	}
	v := s.view(*k)
	return &v, nil
}

func (s *AdminService) DeleteAPIKey(ctx context.Context, id string) error {
	err := s.keys.Delete(ctx, id)
	if errors.Is(err, repos.ErrNotFound) {
		return ErrAPIKeyNotFound
	}
	return errors.Wrap(err, "delete api key")
}

// DecryptAPIKey returns the plaintext key for server-side use.
func (s *AdminService) DecryptAPIKey(ctx context.Context, id string) (string, error) {
	k, err := s.keys.Get(ctx, id)
	if errors.Is(err, repos.ErrNotFound) {
		return "", ErrAPIKeyNotFound
	}
	if err != nil {
		return "", errors.Wrap(err, "load api key")
	}
	return s.box.Decrypt(k.EncryptedKey)
}

func (s *AdminService) view(k models.APIKey) APIKeyView {
	masked := "****"
	if plain, err := s.box.Decrypt(k.EncryptedKey); err == nil {
		masked = secret.Mask(plain)
	}
	return APIKeyView{APIKey: k, Masked: masked}
}
