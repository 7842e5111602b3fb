package models

import (
	"time"

	"github.com/google/uuid"
)

// Title is a cosmetic rank a player can display next to their name.
type Title struct {
	Name  string `json:"name"`
	Color string `json:"color"`
}

// Badge is a cosmetic achievement icon shown on a player's profile.
type Badge struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Desc string `json:"desc"`
	Icon string `json:"icon"`
	Size int    `json:"size"`
}

// User is a persistent account. Race rooms are anonymous; accounts only back
// the REST profile/leaderboard surface.
type User struct {
	ID           uuid.UUID `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"password_hash,omitempty"`
	DisplayName  string    `json:"display_name"`
	Color        string    `json:"color"`

	XP    int `json:"xp"`
	Level int `json:"level"`

	Wins       int `json:"wins"`
	Losses     int `json:"losses"`
	TotalGames int `json:"total_games"`
	SoloGames  int `json:"solo_games"`
	MultiGames int `json:"multi_games"`

	// BestTime is the fastest winning time in seconds, nil until the first win.
	BestTime    *float64 `json:"best_time"`
	TotalClicks int      `json:"total_clicks"`
	Streak      int      `json:"streak"`
	MaxStreak   int      `json:"max_streak"`

	Title  *Title  `json:"title"`
	Badges []Badge `json:"badges"`

	CreatedAt time.Time `json:"created_at"`
}

// Sanitized returns a copy safe to send to clients.
func (u *User) Sanitized() *User {
	c := *u
	c.PasswordHash = ""
	return &c
}

// GameResult is the client-reported outcome of one finished race.
type GameResult struct {
	IsSolo        bool    `json:"isSolo"`
	IsWinner      bool    `json:"isWinner"`
	TimeSeconds   float64 `json:"timeSeconds"`
	Clicks        int     `json:"clicks"`
	XPGained      int     `json:"xpGained"`
	TargetArticle string  `json:"targetArticle"`
}

// GameRecord is one persisted history row.
type GameRecord struct {
	ID            uuid.UUID `json:"id"`
	UserID        uuid.UUID `json:"user_id"`
	IsSolo        bool      `json:"is_solo"`
	IsWinner      bool      `json:"is_winner"`
	TimeSeconds   float64   `json:"time_seconds"`
	Clicks        int       `json:"clicks"`
	XPGained      int       `json:"xp_gained"`
	TargetArticle string    `json:"target_article"`
	PlayedAt      time.Time `json:"played_at"`
}

// LeaderboardEntry is one row of the global XP leaderboard.
type LeaderboardEntry struct {
	ID          uuid.UUID `json:"id"`
	DisplayName string    `json:"display_name"`
	Color       string    `json:"color"`
	XP          int       `json:"xp"`
	Level       int       `json:"level"`
	Wins        int       `json:"wins"`
	TotalGames  int       `json:"total_games"`
}

// LevelFromXP maps accumulated XP to a level: reaching level n requires
// n²·100 XP, so level 2 at 400, level 3 at 900, and so on.
func LevelFromXP(xp int) int {
	level := 1
	for (level+1)*(level+1)*100 <= xp {
		level++
	}
	return level
}
