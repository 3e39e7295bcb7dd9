package httpserver

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xiaoshi569/nextchat/internal/auth"
	"github.com/xiaoshi569/nextchat/internal/clock"
	"github.com/xiaoshi569/nextchat/internal/handlers"
	"github.com/xiaoshi569/nextchat/internal/remote"
	"github.com/xiaoshi569/nextchat/internal/server/servertest"
	"github.com/xiaoshi569/nextchat/internal/state"
	"github.com/xiaoshi569/nextchat/internal/syncengine"
)

type fixture struct {
	srv    *servertest.Server
	userID string
	engine *syncengine.Engine
	clk    *clock.FakeClock
	router *gin.Engine
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	srv := servertest.New(t)
	userID, _ := srv.User(t, "carol@example.com", "carol")

	creds, err := auth.NewStore("", nil)
	require.NoError(t, err)
	client := remote.NewClient(srv.Client(), srv.URL, creds)
	store := state.NewStore()
	clk := clock.Fake(time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC))
	engine := syncengine.New(store, client, syncengine.Config{}, syncengine.WithClock(clk))
	obs := syncengine.NewObserver(engine, creds, store, nil)
	obs.Start()
	t.Cleanup(func() {
		obs.Stop()
		engine.Close()
	})

	router := NewRouter(&handlers.Control{
		Store:  store,
		Engine: engine,
		Creds:  creds,
		Auth:   auth.NewManager(creds, client, nil),
	})
	return &fixture{srv: srv, userID: userID, engine: engine, clk: clk, router: router}
}

func (f *fixture) do(t *testing.T, method, path string, body any) (int, map[string]any) {
	t.Helper()
	var r *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(b)
	} else {
		r = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	var out map[string]any
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	}
	return w.Code, out
}

func TestLoginActivatesSync(t *testing.T) {
	f := newFixture(t)

	code, body := f.do(t, http.MethodPost, "/auth/login", map[string]string{"email": "carol@example.com", "password": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.NotEmpty(t, body["error"])

	code, _ = f.do(t, http.MethodPost, "/sync/push", nil)
	assert.Equal(t, http.StatusUnauthorized, code)

	code, body = f.do(t, http.MethodPost, "/auth/login", map[string]string{"email": "carol@example.com", "password": "password"})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, f.userID, body["identity"].(map[string]any)["id"])
	f.engine.Wait()

	code, body = f.do(t, http.MethodGet, "/sync/status", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, body["authenticated"])
	assert.Equal(t, true, body["pulled"])
	assert.Equal(t, 1, f.srv.Calls("GET /api/chat/sessions"))

	code, _ = f.do(t, http.MethodPost, "/auth/logout", nil)
	assert.Equal(t, http.StatusOK, code)
	code, body = f.do(t, http.MethodGet, "/sync/status", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, false, body["authenticated"])
	assert.Equal(t, "idle", body["phase"])
}

func TestSessionLifecycleThroughControlAPI(t *testing.T) {
	f := newFixture(t)
	code, _ := f.do(t, http.MethodPost, "/auth/login", map[string]string{"email": "carol@example.com", "password": "password"})
	require.Equal(t, http.StatusOK, code)
	f.engine.Wait()

	code, body := f.do(t, http.MethodPost, "/sessions", map[string]string{"topic": "Trip"})
	require.Equal(t, http.StatusCreated, code)
	id := body["session"].(map[string]any)["id"].(string)

	code, _ = f.do(t, http.MethodPost, "/sessions/"+id+"/messages", map[string]string{"role": "user", "content": "where to?"})
	require.Equal(t, http.StatusCreated, code)
	code, _ = f.do(t, http.MethodPost, "/sessions/"+id+"/messages", map[string]string{"role": "robot", "content": "x"})
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = f.do(t, http.MethodPatch, "/sessions/"+id, map[string]any{"topic": "Trip to Oslo", "mask": map[string]any{"model": "m"}})
	require.Equal(t, http.StatusOK, code)
	assert.True(t, f.engine.Status().PushPending)

	code, body = f.do(t, http.MethodPost, "/sync/push", nil)
	require.Equal(t, http.StatusOK, code)
	results := body["results"].([]any)
	require.Len(t, results, 1)
	assert.Equal(t, "created", results[0].(map[string]any)["action"])

	remoteS, err := f.srv.Chat.GetSession(t.Context(), f.userID, id)
	require.NoError(t, err)
	assert.Equal(t, "Trip to Oslo", remoteS.Topic)
	assert.JSONEq(t, `{"model":"m"}`, remoteS.MaskConfig)
	require.Len(t, remoteS.Messages, 1)

	code, body = f.do(t, http.MethodGet, "/sessions", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, body["sessions"].([]any), 1)

	code, _ = f.do(t, http.MethodDelete, "/sessions/"+id, nil)
	assert.Equal(t, http.StatusOK, code)
	code, _ = f.do(t, http.MethodDelete, "/sessions/"+id, nil)
	assert.Equal(t, http.StatusNotFound, code)
	_, err = f.srv.Chat.GetSession(t.Context(), f.userID, id)
	assert.Error(t, err)

	code, _ = f.do(t, http.MethodGet, "/sessions/"+id, nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestUpdateRejectsBadInput(t *testing.T) {
	f := newFixture(t)
	code, body := f.do(t, http.MethodPost, "/sessions", nil)
	require.Equal(t, http.StatusCreated, code)
	id := body["session"].(map[string]any)["id"].(string)
	assert.Equal(t, state.DefaultTopic, body["session"].(map[string]any)["topic"])

	code, _ = f.do(t, http.MethodPatch, "/sessions/"+id, map[string]any{"lastSummarizeIndex": -1})
	assert.Equal(t, http.StatusBadRequest, code)
	code, _ = f.do(t, http.MethodPatch, "/sessions/missing", map[string]any{"topic": "x"})
	assert.Equal(t, http.StatusNotFound, code)

	req := httptest.NewRequest(http.MethodPatch, "/sessions/"+id, strings.NewReader("{"))
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
