// internal/database/file.go
package database

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/sixdegrees/wikirace/internal/auth"
	"github.com/sixdegrees/wikirace/internal/models"
)

// session is one issued token, tracked server-side so logout actually revokes.
type session struct {
	JTI       string    `json:"jti"`
	UserID    uuid.UUID `json:"user_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

type fileState struct {
	Users    []*models.User      `json:"users"`
	Sessions []session           `json:"sessions"`
	History  []models.GameRecord `json:"gameHistory"`
}

// FileStore keeps the whole account database in one JSON file, rewritten on
// every mutation. Plenty for the handful of accounts this game sees.
type FileStore struct {
	mu    sync.Mutex
	path  string
	state fileState
}

// NewFileStore opens (or creates) the JSON database at path.
func NewFileStore(path string) (*FileStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data dir: %w", err)
	}

	s := &FileStore{path: path}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("failed to read database file: %w", err)
	}
	if err := json.Unmarshal(data, &s.state); err != nil {
		return nil, fmt.Errorf("failed to parse database file: %w", err)
	}
	return s, nil
}

// save persists the current state. Assumes mu is held.
func (s *FileStore) save() error {
	data, err := json.MarshalIndent(s.state, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal database: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write database file: %w", err)
	}
	return nil
}

// userByName finds a user by lowercased username. Assumes mu is held.
func (s *FileStore) userByName(username string) *models.User {
	username = strings.ToLower(username)
	for _, u := range s.state.Users {
		if u.Username == username {
			return u
		}
	}
	return nil
}

// userByID finds a user by id. Assumes mu is held.
func (s *FileStore) userByID(id uuid.UUID) *models.User {
	for _, u := range s.state.Users {
		if u.ID == id {
			return u
		}
	}
	return nil
}

// newSession mints a token for the user and records it. Assumes mu is held.
func (s *FileStore) newSession(userID uuid.UUID) (string, error) {
	token, jti, expiresAt, err := auth.CreateToken(userID.String())
	if err != nil {
		return "", fmt.Errorf("failed to create token: %w", err)
	}
	s.state.Sessions = append(s.state.Sessions, session{
		JTI:       jti,
		UserID:    userID,
		ExpiresAt: expiresAt,
	})
	return token, nil
}

func (s *FileStore) Register(ctx context.Context, username, password, displayName string) (*models.User, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.userByName(username) != nil {
		return nil, "", ErrUserExists
	}

	hash, err := auth.CreateHash(password, auth.Params)
	if err != nil {
		return nil, "", fmt.Errorf("failed to hash password: %w", err)
	}
	if displayName == "" {
		displayName = username
	}

	u := &models.User{
		ID:           uuid.New(),
		Username:     strings.ToLower(username),
		PasswordHash: hash,
		DisplayName:  displayName,
		Color:        "#b45328",
		Level:        1,
		Badges:       []models.Badge{},
		CreatedAt:    time.Now().UTC(),
	}

	// Mint the session before touching the user list so a token failure
	// leaves no trace of the account.
	token, err := s.newSession(u.ID)
	if err != nil {
		return nil, "", err
	}
	s.state.Users = append(s.state.Users, u)
	if err := s.save(); err != nil {
		// Roll back: a registration that never persisted must not squat on
		// the username until restart.
		s.state.Users = s.state.Users[:len(s.state.Users)-1]
		s.state.Sessions = s.state.Sessions[:len(s.state.Sessions)-1]
		return nil, "", err
	}
	return u.Sanitized(), token, nil
}

func (s *FileStore) Login(ctx context.Context, username, password string) (*models.User, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u := s.userByName(username)
	if u == nil {
		return nil, "", ErrInvalidCredentials
	}
	match, err := auth.ComparePasswordAndHash(password, u.PasswordHash)
	if err != nil || !match {
		return nil, "", ErrInvalidCredentials
	}

	token, err := s.newSession(u.ID)
	if err != nil {
		return nil, "", err
	}
	if err := s.save(); err != nil {
		return nil, "", err
	}
	return u.Sanitized(), token, nil
}

func (s *FileStore) Logout(ctx context.Context, token string) error {
	_, jti, err := auth.AuthenticateToken(token)
	if err != nil {
		return nil // revoking a bogus token is a no-op
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.state.Sessions[:0]
	for _, sess := range s.state.Sessions {
		if sess.JTI != jti {
			kept = append(kept, sess)
		}
	}
	s.state.Sessions = kept
	return s.save()
}

func (s *FileStore) ValidateToken(ctx context.Context, token string) (*models.User, error) {
	userIDStr, jti, err := auth.AuthenticateToken(token)
	if err != nil {
		return nil, ErrInvalidToken
	}
	userID, err := uuid.Parse(userIDStr)
	if err != nil {
		return nil, ErrInvalidToken
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	found := false
	for _, sess := range s.state.Sessions {
		if sess.JTI == jti && sess.UserID == userID {
			if !sess.ExpiresAt.IsZero() && time.Now().After(sess.ExpiresAt) {
				break
			}
			found = true
			break
		}
	}
	if !found {
		return nil, ErrInvalidToken
	}

	u := s.userByID(userID)
	if u == nil {
		return nil, ErrInvalidToken
	}
	return u.Sanitized(), nil
}

func (s *FileStore) GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u := s.userByID(id)
	if u == nil {
		return nil, ErrUserNotFound
	}
	return u.Sanitized(), nil
}

func (s *FileStore) UpdateProfile(ctx context.Context, id uuid.UUID, upd ProfileUpdate) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u := s.userByID(id)
	if u == nil {
		return nil, ErrUserNotFound
	}
	if upd.DisplayName != nil && *upd.DisplayName != "" {
		u.DisplayName = *upd.DisplayName
	}
	if upd.Color != nil && *upd.Color != "" {
		u.Color = *upd.Color
	}
	if err := s.save(); err != nil {
		return nil, err
	}
	return u.Sanitized(), nil
}

func (s *FileStore) AddGameResult(ctx context.Context, id uuid.UUID, res models.GameResult) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u := s.userByID(id)
	if u == nil {
		return nil, ErrUserNotFound
	}

	s.state.History = append(s.state.History, models.GameRecord{
		ID:            uuid.New(),
		UserID:        id,
		IsSolo:        res.IsSolo,
		IsWinner:      res.IsWinner,
		TimeSeconds:   res.TimeSeconds,
		Clicks:        res.Clicks,
		XPGained:      res.XPGained,
		TargetArticle: res.TargetArticle,
		PlayedAt:      time.Now().UTC(),
	})
	applyGameResult(u, res)

	if err := s.save(); err != nil {
		return nil, err
	}
	return u.Sanitized(), nil
}

func (s *FileStore) GetLeaderboard(ctx context.Context, limit int) ([]models.LeaderboardEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := make([]models.LeaderboardEntry, 0, len(s.state.Users))
	for _, u := range s.state.Users {
		entries = append(entries, models.LeaderboardEntry{
			ID:          u.ID,
			DisplayName: u.DisplayName,
			Color:       u.Color,
			XP:          u.XP,
			Level:       u.Level,
			Wins:        u.Wins,
			TotalGames:  u.TotalGames,
		})
	}
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].XP > entries[j].XP })
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

func (s *FileStore) GetGameHistory(ctx context.Context, id uuid.UUID, limit int) ([]models.GameRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	records := make([]models.GameRecord, 0)
	for _, rec := range s.state.History {
		if rec.UserID == id {
			records = append(records, rec)
		}
	}
	sort.SliceStable(records, func(i, j int) bool { return records[i].PlayedAt.After(records[j].PlayedAt) })
	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}

func (s *FileStore) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.save(); err != nil {
		log.Warnf("failed to flush database on close: %v", err)
	}
}
