package services

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xiaoshi569/nextchat/internal/secret"
	"github.com/xiaoshi569/nextchat/internal/server/repos"
	"github.com/xiaoshi569/nextchat/pkg/types"
)

type fixture struct {
	db    *repos.DB
	chat  *ChatService
	auth  *AuthService
	admin *AdminService
}

func setupServices(t *testing.T) *fixture {
	t.Helper()
	db, err := repos.Open("sqlite", "file::memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, db.Migrate(context.Background()))
	box, err := secret.New("test-key")
	require.NoError(t, err)
	return &fixture{
		db:    db,
		chat:  NewChatService(db),
		auth:  NewAuthService(db, AuthConfig{JWTSecret: "s3cret", AllowRegister: true}),
		admin: NewAdminService(db, box),
	}
}

func (f *fixture) user(t *testing.T, email, name string) string {
	t.Helper()
	u, err := f.auth.CreateUser(context.Background(), email, name, "password", string(types.RoleMember))
	require.NoError(t, err)
	return u.ID
}

func TestCreateSessionKeepsProposedID(t *testing.T) {
	ctx := context.Background()
	f := setupServices(t)
	alice := f.user(t, "alice@example.com", "alice")
	bob := f.user(t, "bob@example.com", "bob")

	s, err := f.chat.CreateSession(ctx, alice, types.CreateSessionRequest{ID: "local-1", Topic: " "})
	require.NoError(t, err)
	assert.Equal(t, "local-1", s.ID)
	assert.Equal(t, "New Chat", s.Topic)
	assert.Equal(t, "{}", s.MaskConfig)

	again, err := f.chat.CreateSession(ctx, alice, types.CreateSessionRequest{ID: "local-1", Topic: "dup"})
	require.NoError(t, err)
	assert.Equal(t, "local-1", again.ID)
	list, err := f.chat.ListSessions(ctx, alice)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	taken, err := f.chat.CreateSession(ctx, bob, types.CreateSessionRequest{ID: "local-1"})
	require.NoError(t, err)
	assert.NotEqual(t, "local-1", taken.ID)
}

func TestOwnershipIsEnforced(t *testing.T) {
	ctx := context.Background()
	f := setupServices(t)
	alice := f.user(t, "alice@example.com", "alice")
	bob := f.user(t, "bob@example.com", "bob")
	s, err := f.chat.CreateSession(ctx, alice, types.CreateSessionRequest{Topic: "private"})
	require.NoError(t, err)

	_, err = f.chat.GetSession(ctx, bob, s.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
	topic := "stolen"
	_, err = f.chat.UpdateSession(ctx, bob, s.ID, types.UpdateSessionRequest{Topic: &topic})
	assert.ErrorIs(t, err, ErrSessionNotFound)
	_, err = f.chat.AppendMessage(ctx, bob, types.AppendMessageRequest{SessionID: s.ID, Role: types.RoleUser})
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.ErrorIs(t, f.chat.DeleteSession(ctx, bob, s.ID), ErrSessionNotFound)
}

func TestAppendMessageOrderAndPayloads(t *testing.T) {
	ctx := context.Background()
	f := setupServices(t)
	now := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	f.chat.now = func() time.Time { return now }
	alice := f.user(t, "alice@example.com", "alice")
	s, err := f.chat.CreateSession(ctx, alice, types.CreateSessionRequest{Topic: "t"})
	require.NoError(t, err)

	now = now.Add(time.Minute)
	m1, err := f.chat.AppendMessage(ctx, alice, types.AppendMessageRequest{
		ID: "m1", SessionID: s.ID, Role: types.RoleUser, Content: json.RawMessage(`"hello"`),
	})
	require.NoError(t, err)
	assert.Equal(t, "hello", m1.Content)
	assert.Equal(t, "2024/1/2 03:05:05", m1.Date)

	_, err = f.chat.AppendMessage(ctx, alice, types.AppendMessageRequest{
		SessionID: s.ID, Role: types.RoleAssistant,
		Content: json.RawMessage(`[{"type":"text","text":"hi"}]`),
		Tools:   json.RawMessage(`[{"name":"search"}]`),
	})
	require.NoError(t, err)

	dup, err := f.chat.AppendMessage(ctx, alice, types.AppendMessageRequest{ID: "m1", SessionID: s.ID, Role: types.RoleUser, Content: json.RawMessage(`"again"`)})
	require.NoError(t, err)
	assert.Equal(t, "hello", dup.Content)

	got, err := f.chat.GetSession(ctx, alice, s.ID)
	require.NoError(t, err)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "m1", got.Messages[0].ID)
	assert.Equal(t, `[{"type":"text","text":"hi"}]`, got.Messages[1].Content)
	assert.Equal(t, `[{"name":"search"}]`, got.Messages[1].Tools)
	assert.Equal(t, now.UnixMilli(), got.LastUpdate)

	_, err = f.chat.AppendMessage(ctx, alice, types.AppendMessageRequest{SessionID: s.ID, Role: "robot"})
	var ve *ValidationError
	assert.ErrorAs(t, err, &ve)
}

func TestUpdateSessionPartial(t *testing.T) {
	ctx := context.Background()
	f := setupServices(t)
	alice := f.user(t, "alice@example.com", "alice")
	s, err := f.chat.CreateSession(ctx, alice, types.CreateSessionRequest{Topic: "t", MemoryPrompt: "keep", MaskConfig: `{"a":1}`})
	require.NoError(t, err)

	mask := `{"b":2}`
	out, err := f.chat.UpdateSession(ctx, alice, s.ID, types.UpdateSessionRequest{MaskConfig: &mask, Stat: &types.Stat{CharCount: 7}})
	require.NoError(t, err)
	assert.Equal(t, "t", out.Topic)
	assert.Equal(t, "keep", out.MemoryPrompt)
	assert.Equal(t, `{"b":2}`, out.MaskConfig)
	assert.Equal(t, 7, out.CharCount)

	bad := "{oops"
	_, err = f.chat.UpdateSession(ctx, alice, s.ID, types.UpdateSessionRequest{MaskConfig: &bad})
	var ve *ValidationError
	assert.ErrorAs(t, err, &ve)
}

func TestMaskConfigMustBeObject(t *testing.T) {
	ctx := context.Background()
	f := setupServices(t)
	alice := f.user(t, "alice@example.com", "alice")

	for _, raw := range []string{"[1]", "3", `"text"`, "null"} {
		_, err := f.chat.CreateSession(ctx, alice, types.CreateSessionRequest{Topic: "t", MaskConfig: raw})
		var ve *ValidationError
		require.ErrorAs(t, err, &ve, raw)
		assert.Equal(t, "maskConfig must be a JSON object", ve.Message)
	}

	s, err := f.chat.CreateSession(ctx, alice, types.CreateSessionRequest{Topic: "t", MaskConfig: ` {"lang":"en"} `})
	require.NoError(t, err)
	assert.Equal(t, `{"lang":"en"}`, s.MaskConfig)

	arr := "[]"
	_, err = f.chat.UpdateSession(ctx, alice, s.ID, types.UpdateSessionRequest{MaskConfig: &arr})
	var ve *ValidationError
	assert.ErrorAs(t, err, &ve)
	got, err := f.chat.GetSession(ctx, alice, s.ID)
	require.NoError(t, err)
	assert.Equal(t, `{"lang":"en"}`, got.MaskConfig)
}

func TestLoginAndAuthenticate(t *testing.T) {
	ctx := context.Background()
	f := setupServices(t)
	id := f.user(t, "Alice@Example.com", "alice")

	_, _, err := f.auth.Login(ctx, "alice@example.com", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	u, token, err := f.auth.Login(ctx, "ALICE@example.com", "password")
	require.NoError(t, err)
	assert.Equal(t, id, u.ID)

	got, err := f.auth.Authenticate(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, id, got.ID)

	_, err = f.auth.Authenticate(ctx, token+"x")
	assert.ErrorIs(t, err, ErrUnauthorized)

	f.auth.now = func() time.Time { return time.Now().Add(8 * 24 * time.Hour) }
	_, err = f.auth.Authenticate(ctx, token)
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestDisabledAccountCannotLogin(t *testing.T) {
	ctx := context.Background()
	f := setupServices(t)
	admin, _, err := f.auth.Seed(ctx, "root@example.com", "root", "adminpw")
	require.NoError(t, err)
	id := f.user(t, "alice@example.com", "alice")

	_, err = f.admin.SetUserActive(ctx, admin.ID, id, false)
	require.NoError(t, err)
	_, _, err = f.auth.Login(ctx, "alice@example.com", "password")
	assert.ErrorIs(t, err, ErrAccountDisabled)

	_, err = f.admin.SetUserActive(ctx, admin.ID, admin.ID, false)
	var ve *ValidationError
	assert.ErrorAs(t, err, &ve)
}

func TestRegisterHonoursSwitch(t *testing.T) {
	ctx := context.Background()
	f := setupServices(t)

	_, token, err := f.auth.Register(ctx, types.RegisterRequest{Email: "new@example.com", Username: "newbie", Password: "secret1"})
	require.NoError(t, err)
	assert.NotEmpty(t, token)

	_, _, err = f.auth.Register(ctx, types.RegisterRequest{Email: "new@example.com", Username: "other", Password: "secret1"})
	var ve *ValidationError
	assert.ErrorAs(t, err, &ve)

	require.NoError(t, repos.NewConfigRepo(f.db).Set(ctx, ConfigAllowRegister, "false", 1))
	_, _, err = f.auth.Register(ctx, types.RegisterRequest{Email: "late@example.com", Username: "late", Password: "secret1"})
	assert.ErrorIs(t, err, ErrRegistrationClosed)
}

func TestDeleteUserCascades(t *testing.T) {
	ctx := context.Background()
	f := setupServices(t)
	admin, created, err := f.auth.Seed(ctx, "root@example.com", "root", "adminpw")
	require.NoError(t, err)
	assert.True(t, created)
	alice := f.user(t, "alice@example.com", "alice")
	s, err := f.chat.CreateSession(ctx, alice, types.CreateSessionRequest{Topic: "t"})
	require.NoError(t, err)

	users, err := f.admin.ListUsers(ctx)
	require.NoError(t, err)
	require.Len(t, users, 2)

	require.NoError(t, f.admin.DeleteUser(ctx, admin.ID, alice))
	_, err = f.chat.GetSession(ctx, alice, s.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.ErrorIs(t, f.admin.DeleteUser(ctx, admin.ID, alice), ErrUserNotFound)
}

func TestAPIKeysAreSealed(t *testing.T) {
	ctx := context.Background()
	f := setupServices(t)

	k, err := f.admin.CreateAPIKey(ctx, types.CreateAPIKeyRequest{Provider: "openai", Name: "main", APIKey: "sk-abcdefghijklmnop"})
	require.NoError(t, err)
	assert.Equal(t, "sk-a...mnop", k.Masked)
	assert.NotContains(t, k.EncryptedKey, "sk-abcdefghijklmnop")

	rotated := "sk-zyxwvutsrqponmlk"
	_, err = f.admin.UpdateAPIKey(ctx, k.ID, types.UpdateAPIKeyRequest{APIKey: &rotated})
	require.NoError(t, err)
	plain, err := f.admin.DecryptAPIKey(ctx, k.ID)
	require.NoError(t, err)
	assert.Equal(t, rotated, plain)

	require.NoError(t, f.admin.DeleteAPIKey(ctx, k.ID))
	assert.ErrorIs(t, f.admin.DeleteAPIKey(ctx, k.ID), ErrAPIKeyNotFound)
}
