// internal/handlers/api.go
//
// REST surface over the account store: registration, login, profile,
// game results, global leaderboard and per-user history. Thin wrappers; all
// real logic lives in the database package.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/sixdegrees/wikirace/internal/database"
	"github.com/sixdegrees/wikirace/internal/models"
)

const (
	defaultLeaderboardLimit = 20
	defaultHistoryLimit     = 20
)

// API holds the handler dependencies.
type API struct {
	log   *logrus.Logger
	store database.Store
}

// NewAPI wires the REST handlers around an account store.
func NewAPI(logger *logrus.Logger, store database.Store) *API {
	return &API{log: logger, store: store}
}

// Routes registers every /api endpoint plus /health on mux.
func (a *API) Routes(mux *http.ServeMux) {
	mux.HandleFunc("/api/register", a.Register)
	mux.HandleFunc("/api/login", a.Login)
	mux.HandleFunc("/api/logout", a.Logout)
	mux.HandleFunc("/api/me", a.Me)
	mux.HandleFunc("/api/profile", a.Profile)
	mux.HandleFunc("/api/game-result", a.GameResult)
	mux.HandleFunc("/api/leaderboard", a.Leaderboard)
	mux.HandleFunc("/api/history", a.History)
	mux.HandleFunc("/health", a.Health)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// bearerToken pulls the token out of the Authorization header.
func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	return strings.TrimPrefix(h, "Bearer ")
}

// authedUser resolves the request's bearer token, answering 401 on failure.
func (a *API) authedUser(w http.ResponseWriter, r *http.Request) *models.User {
	token := bearerToken(r)
	if token == "" {
		writeError(w, http.StatusUnauthorized, "not authenticated")
		return nil
	}
	user, err := a.store.ValidateToken(r.Context(), token)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "not authenticated")
		return nil
	}
	return user
}

type registerRequest struct {
	Username    string `json:"username"`
	Password    string `json:"password"`
	DisplayName string `json:"displayName"`
}

type authResponse struct {
	Token string       `json:"token"`
	User  *models.User `json:"user"`
}

func (a *API) Register(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	if req.Username == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "username and password are required")
		return
	}
	if len(req.Username) < 3 || len(req.Username) > 20 {
		writeError(w, http.StatusBadRequest, "username must be 3 to 20 characters")
		return
	}
	if len(req.Password) < 4 {
		writeError(w, http.StatusBadRequest, "password must be at least 4 characters")
		return
	}

	user, token, err := a.store.Register(r.Context(), req.Username, req.Password, req.DisplayName)
	if err != nil {
		if errors.Is(err, database.ErrUserExists) {
			writeError(w, http.StatusBadRequest, "user already exists")
			return
		}
		a.log.Errorf("register failed: %v", err)
		writeError(w, http.StatusInternalServerError, "registration failed")
		return
	}
	writeJSON(w, http.StatusOK, authResponse{Token: token, User: user})
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (a *API) Login(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	if req.Username == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "username and password are required")
		return
	}

	user, token, err := a.store.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, database.ErrInvalidCredentials) {
			writeError(w, http.StatusUnauthorized, "invalid username or password")
			return
		}
		a.log.Errorf("login failed: %v", err)
		writeError(w, http.StatusInternalServerError, "login failed")
		return
	}
	writeJSON(w, http.StatusOK, authResponse{Token: token, User: user})
}

func (a *API) Logout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if token := bearerToken(r); token != "" {
		if err := a.store.Logout(r.Context(), token); err != nil {
			a.log.Warnf("logout failed: %v", err)
		}
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (a *API) Me(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	user := a.authedUser(w, r)
	if user == nil {
		return
	}
	writeJSON(w, http.StatusOK, map[string]*models.User{"user": user})
}

func (a *API) Profile(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	user := a.authedUser(w, r)
	if user == nil {
		return
	}

	var upd database.ProfileUpdate
	if err := json.NewDecoder(r.Body).Decode(&upd); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	updated, err := a.store.UpdateProfile(r.Context(), user.ID, upd)
	if err != nil {
		a.log.Errorf("profile update failed: %v", err)
		writeError(w, http.StatusInternalServerError, "profile update failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]*models.User{"user": updated})
}

func (a *API) GameResult(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	user := a.authedUser(w, r)
	if user == nil {
		return
	}

	var res models.GameResult
	if err := json.NewDecoder(r.Body).Decode(&res); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	updated, err := a.store.AddGameResult(r.Context(), user.ID, res)
	if err != nil {
		a.log.Errorf("failed to record game result: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to record game result")
		return
	}
	writeJSON(w, http.StatusOK, map[string]*models.User{"user": updated})
}

func (a *API) Leaderboard(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	entries, err := a.store.GetLeaderboard(r.Context(), defaultLeaderboardLimit)
	if err != nil {
		a.log.Errorf("leaderboard query failed: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to load leaderboard")
		return
	}
	writeJSON(w, http.StatusOK, map[string][]models.LeaderboardEntry{"leaderboard": entries})
}

func (a *API) History(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	user := a.authedUser(w, r)
	if user == nil {
		return
	}
	records, err := a.store.GetGameHistory(r.Context(), user.ID, defaultHistoryLimit)
	if err != nil {
		a.log.Errorf("history query failed: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to load history")
		return
	}
	writeJSON(w, http.StatusOK, map[string][]models.GameRecord{"history": records})
}

// Health answers liveness probes and the self-ping keep-alive.
func (a *API) Health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}
