// Package database persists user accounts, sessions and game history for the
// REST surface. Two backends implement the same Store interface: a flat JSON
// file (the default) and Postgres. Race rooms never touch this package.
package database

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/sixdegrees/wikirace/internal/models"
)

var (
	ErrUserExists         = errors.New("user already exists")
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrUserNotFound       = errors.New("user not found")
	ErrInvalidToken       = errors.New("invalid or expired token")
)

// ProfileUpdate is a sparse profile change; nil fields keep their value.
type ProfileUpdate struct {
	DisplayName *string `json:"display_name"`
	Color       *string `json:"color"`
}

// Store is the account/profile contract consumed by the REST handlers.
// All methods are safe for concurrent use.
type Store interface {
	// Register creates an account and an initial session, returning the
	// sanitized user and a bearer token.
	Register(ctx context.Context, username, password, displayName string) (*models.User, string, error)
	// Login verifies credentials and mints a session token.
	Login(ctx context.Context, username, password string) (*models.User, string, error)
	// Logout revokes the session behind the token. Unknown tokens are a no-op.
	Logout(ctx context.Context, token string) error
	// ValidateToken resolves a token to its sanitized user, or ErrInvalidToken.
	ValidateToken(ctx context.Context, token string) (*models.User, error)

	GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	UpdateProfile(ctx context.Context, id uuid.UUID, upd ProfileUpdate) (*models.User, error)

	// AddGameResult records one finished race and folds it into the user's
	// XP, level, streak and best-time statistics.
	AddGameResult(ctx context.Context, id uuid.UUID, res models.GameResult) (*models.User, error)

	GetLeaderboard(ctx context.Context, limit int) ([]models.LeaderboardEntry, error)
	GetGameHistory(ctx context.Context, id uuid.UUID, limit int) ([]models.GameRecord, error)

	Close()
}

// applyGameResult folds one race outcome into a user's stats. Shared by both
// backends so the accrual rules cannot drift.
func applyGameResult(u *models.User, res models.GameResult) {
	u.XP += res.XPGained
	u.Level = models.LevelFromXP(u.XP)
	u.TotalGames++
	u.TotalClicks += res.Clicks

	if res.IsSolo {
		u.SoloGames++
		u.Wins++
	} else {
		u.MultiGames++
		if res.IsWinner {
			u.Wins++
			u.Streak++
			if u.Streak > u.MaxStreak {
				u.MaxStreak = u.Streak
			}
		} else {
			u.Losses++
			u.Streak = 0
		}
	}

	if res.IsWinner && (u.BestTime == nil || res.TimeSeconds < *u.BestTime) {
		t := res.TimeSeconds
		u.BestTime = &t
	}
}
