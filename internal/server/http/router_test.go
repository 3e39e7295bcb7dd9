package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xiaoshi569/nextchat/internal/secret"
	"github.com/xiaoshi569/nextchat/internal/server/repos"
	"github.com/xiaoshi569/nextchat/internal/server/services"
	"github.com/xiaoshi569/nextchat/pkg/types"
)

type testAPI struct {
	handler http.Handler
	auth    *services.AuthService
}

func setupRouter(t *testing.T) *testAPI {
	t.Helper()
	gin.SetMode(gin.TestMode)
	db, err := repos.Open("sqlite", "file::memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, db.Migrate(context.Background()))
	box, err := secret.New("router-test")
	require.NoError(t, err)

	auth := services.NewAuthService(db, services.AuthConfig{JWTSecret: "router-test", AllowRegister: true})
	r := NewRouter(Deps{
		DB:    db,
		Auth:  auth,
		Chat:  services.NewChatService(db),
		Admin: services.NewAdminService(db, box),
	})
	return &testAPI{handler: r, auth: auth}
}

func (a *testAPI) do(t *testing.T, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)
	return rec
}

func (a *testAPI) login(t *testing.T, email, username, password string) string {
	t.Helper()
	rec := a.do(t, http.MethodPost, "/api/auth/register", "", `{"email":"`+email+`","username":"`+username+`","password":"`+password+`"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var out types.AuthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out.Token
}

func TestHealthz(t *testing.T) {
	api := setupRouter(t)
	rec := api.do(t, http.MethodGet, "/healthz", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestChatAPIFlow(t *testing.T) {
	api := setupRouter(t)
	token := api.login(t, "alice@example.com", "alice", "secret1")

	rec := api.do(t, http.MethodPost, "/api/chat/sessions", token, `{"id":"local-1","topic":"Plans","maskConfig":"{\"lang\":\"en\"}"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var created types.SessionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.True(t, created.Success)
	assert.Equal(t, "local-1", created.Session.ID)
	assert.Equal(t, `{"lang":"en"}`, created.Session.MaskConfig)

	rec = api.do(t, http.MethodPost, "/api/chat/messages", token, `{"sessionId":"local-1","role":"user","content":"hi"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rec = api.do(t, http.MethodPost, "/api/chat/messages", token, `{"sessionId":"local-1","role":"assistant","content":{"parts":["a"]}}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = api.do(t, http.MethodPatch, "/api/chat/sessions/local-1", token, `{"topic":"Renamed"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = api.do(t, http.MethodGet, "/api/chat/sessions", token, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list types.SessionsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list.Sessions, 1)
	assert.Equal(t, "Renamed", list.Sessions[0].Topic)
	assert.Equal(t, 2, list.Sessions[0].Count.Messages)
	assert.Empty(t, list.Sessions[0].Messages)

	rec = api.do(t, http.MethodGet, "/api/chat/sessions/local-1", token, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var full types.SessionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &full))
	require.Len(t, full.Session.Messages, 2)
	assert.Equal(t, "hi", full.Session.Messages[0].Content)
	assert.Equal(t, `{"parts":["a"]}`, full.Session.Messages[1].Content)
}

func TestDeleteCascadesAndSecondDeleteIsNotFound(t *testing.T) {
	api := setupRouter(t)
	token := api.login(t, "alice@example.com", "alice", "secret1")

	rec := api.do(t, http.MethodPost, "/api/chat/sessions", token, `{"topic":"doomed"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var created types.SessionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	id := created.Session.ID
	rec = api.do(t, http.MethodPost, "/api/chat/messages", token, `{"sessionId":"`+id+`","role":"user","content":"x"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = api.do(t, http.MethodDelete, "/api/chat/sessions/"+id, token, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = api.do(t, http.MethodGet, "/api/chat/sessions/"+id, token, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = api.do(t, http.MethodDelete, "/api/chat/sessions/"+id, token, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "not found")
}

func TestForeignSessionLooksMissing(t *testing.T) {
	api := setupRouter(t)
	alice := api.login(t, "alice@example.com", "alice", "secret1")
	bob := api.login(t, "bob@example.com", "bobby", "secret1")

	rec := api.do(t, http.MethodPost, "/api/chat/sessions", alice, `{"id":"mine"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, http.StatusNotFound, api.do(t, http.MethodGet, "/api/chat/sessions/mine", bob, "").Code)
	assert.Equal(t, http.StatusNotFound, api.do(t, http.MethodPatch, "/api/chat/sessions/mine", bob, `{"topic":"x"}`).Code)
	assert.Equal(t, http.StatusNotFound, api.do(t, http.MethodPost, "/api/chat/messages", bob, `{"sessionId":"mine","role":"user","content":"x"}`).Code)
}

func TestAuthErrors(t *testing.T) {
	api := setupRouter(t)
	api.login(t, "alice@example.com", "alice", "secret1")

	assert.Equal(t, http.StatusUnauthorized, api.do(t, http.MethodGet, "/api/chat/sessions", "", "").Code)
	assert.Equal(t, http.StatusUnauthorized, api.do(t, http.MethodGet, "/api/auth/me", "garbage", "").Code)

	rec := api.do(t, http.MethodPost, "/api/auth/login", "", `{"email":"alice@example.com","password":"nope"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = api.do(t, http.MethodPost, "/api/auth/register", "", `{"email":"not-an-email","username":"bob","password":"secret1"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "email")

	rec = api.do(t, http.MethodPost, "/api/auth/register", "", `{"email":"b@example.com","username":"bo","password":"secret1"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "username must be at least 3")
}

func TestAdminRoutes(t *testing.T) {
	api := setupRouter(t)
	member := api.login(t, "alice@example.com", "alice", "secret1")
	admin, _, err := api.auth.Seed(context.Background(), "root@example.com", "root", "rootpw")
	require.NoError(t, err)
	adminToken, err := api.auth.IssueToken(admin)
	require.NoError(t, err)

	assert.Equal(t, http.StatusForbidden, api.do(t, http.MethodGet, "/api/admin/users", member, "").Code)

	rec := api.do(t, http.MethodGet, "/api/admin/users", adminToken, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var users types.UsersResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &users))
	require.Len(t, users.Users, 2)

	var aliceID string
	for _, u := range users.Users {
		if u.Email == "alice@example.com" {
			aliceID = u.ID
		}
	}
	require.NotEmpty(t, aliceID)
	rec = api.do(t, http.MethodPatch, "/api/admin/users/"+aliceID, adminToken, `{"isActive":false}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, http.StatusForbidden, api.do(t, http.MethodGet, "/api/chat/sessions", member, "").Code)

	rec = api.do(t, http.MethodPost, "/api/admin/apikeys", adminToken, `{"provider":"openai","name":"main","apiKey":"sk-1234567890abcd"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var key types.APIKeyResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &key))
	assert.Equal(t, "sk-1...abcd", key.APIKey.APIKey)

	rec = api.do(t, http.MethodDelete, "/api/admin/users/"+admin.ID, adminToken, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
