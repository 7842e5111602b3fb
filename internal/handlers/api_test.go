// internal/handlers/api_test.go
package handlers

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sixdegrees/wikirace/internal/auth"
	"github.com/sixdegrees/wikirace/internal/database"
	"github.com/sixdegrees/wikirace/internal/models"
)

func TestMain(m *testing.M) {
	auth.Init()
	os.Exit(m.Run())
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	store, err := database.NewFileStore(filepath.Join(t.TempDir(), "database.json"))
	require.NoError(t, err)
	t.Cleanup(store.Close)

	log := logrus.New()
	log.SetOutput(io.Discard)

	mux := http.NewServeMux()
	NewAPI(log, store).Routes(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func doJSON(t *testing.T, method, url, token string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, url, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

type authPayload struct {
	Token string       `json:"token"`
	User  *models.User `json:"user"`
}

// register creates an account through the HTTP surface and returns its token.
func register(t *testing.T, srv *httptest.Server, username string) authPayload {
	t.Helper()
	resp := doJSON(t, http.MethodPost, srv.URL+"/api/register", "", map[string]string{
		"username": username,
		"password": "hunter22",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	payload := decodeBody[authPayload](t, resp)
	require.NotEmpty(t, payload.Token)
	require.NotNil(t, payload.User)
	return payload
}

func TestRegisterValidation(t *testing.T) {
	srv := newTestServer(t)

	cases := []struct {
		name string
		body map[string]string
	}{
		{"missing password", map[string]string{"username": "alice"}},
		{"short username", map[string]string{"username": "al", "password": "hunter22"}},
		{"long username", map[string]string{"username": "abcdefghijklmnopqrstu", "password": "hunter22"}},
		{"short password", map[string]string{"username": "alice", "password": "abc"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp := doJSON(t, http.MethodPost, srv.URL+"/api/register", "", tc.body)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		})
	}
}

func TestRegisterDuplicate(t *testing.T) {
	srv := newTestServer(t)
	register(t, srv, "alice")

	resp := doJSON(t, http.MethodPost, srv.URL+"/api/register", "", map[string]string{
		"username": "alice",
		"password": "hunter22",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	body := decodeBody[map[string]string](t, resp)
	assert.Equal(t, "user already exists", body["error"])
}

func TestLoginAndMe(t *testing.T) {
	srv := newTestServer(t)
	reg := register(t, srv, "alice")

	resp := doJSON(t, http.MethodPost, srv.URL+"/api/login", "", map[string]string{
		"username": "alice",
		"password": "hunter22",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	login := decodeBody[authPayload](t, resp)
	assert.Equal(t, reg.User.ID, login.User.ID)
	assert.Empty(t, login.User.PasswordHash)

	resp = doJSON(t, http.MethodGet, srv.URL+"/api/me", login.Token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	me := decodeBody[map[string]*models.User](t, resp)
	assert.Equal(t, reg.User.ID, me["user"].ID)
}

func TestLoginBadCredentials(t *testing.T) {
	srv := newTestServer(t)
	register(t, srv, "alice")

	resp := doJSON(t, http.MethodPost, srv.URL+"/api/login", "", map[string]string{
		"username": "alice",
		"password": "wrong",
	})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestMeRequiresAuth(t *testing.T) {
	srv := newTestServer(t)

	resp := doJSON(t, http.MethodGet, srv.URL+"/api/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = doJSON(t, http.MethodGet, srv.URL+"/api/me", "garbage-token", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestLogoutInvalidatesToken(t *testing.T) {
	srv := newTestServer(t)
	reg := register(t, srv, "alice")

	resp := doJSON(t, http.MethodPost, srv.URL+"/api/logout", reg.Token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = doJSON(t, http.MethodGet, srv.URL+"/api/me", reg.Token, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestProfileUpdate(t *testing.T) {
	srv := newTestServer(t)
	reg := register(t, srv, "alice")

	resp := doJSON(t, http.MethodPut, srv.URL+"/api/profile", reg.Token, map[string]string{
		"display_name": "Speedrunner",
		"color":        "#00ff00",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeBody[map[string]*models.User](t, resp)
	assert.Equal(t, "Speedrunner", body["user"].DisplayName)
	assert.Equal(t, "#00ff00", body["user"].Color)

	// Wrong verb.
	resp = doJSON(t, http.MethodPost, srv.URL+"/api/profile", reg.Token, nil)
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestGameResultAndHistory(t *testing.T) {
	srv := newTestServer(t)
	reg := register(t, srv, "alice")

	resp := doJSON(t, http.MethodPost, srv.URL+"/api/game-result", reg.Token, models.GameResult{
		IsWinner:      true,
		TimeSeconds:   61.5,
		Clicks:        5,
		XPGained:      100,
		TargetArticle: "Moon",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeBody[map[string]*models.User](t, resp)
	assert.Equal(t, 100, body["user"].XP)
	assert.Equal(t, 1, body["user"].Wins)

	resp = doJSON(t, http.MethodGet, srv.URL+"/api/history", reg.Token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	hist := decodeBody[map[string][]models.GameRecord](t, resp)
	require.Len(t, hist["history"], 1)
	assert.Equal(t, "Moon", hist["history"][0].TargetArticle)
}

func TestLeaderboard(t *testing.T) {
	srv := newTestServer(t)
	ann := register(t, srv, "ann")
	register(t, srv, "bob")

	resp := doJSON(t, http.MethodPost, srv.URL+"/api/game-result", ann.Token, models.GameResult{XPGained: 500})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = doJSON(t, http.MethodGet, srv.URL+"/api/leaderboard", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeBody[map[string][]models.LeaderboardEntry](t, resp)
	require.Len(t, body["leaderboard"], 2)
	assert.Equal(t, "ann", body["leaderboard"][0].DisplayName)
	assert.Equal(t, 500, body["leaderboard"][0].XP)
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t)

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "OK", string(body))
}
