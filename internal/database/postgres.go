// internal/database/postgres.go
package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sixdegrees/wikirace/internal/auth"
	"github.com/sixdegrees/wikirace/internal/models"
)

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id            UUID PRIMARY KEY,
	username      TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL,
	display_name  TEXT NOT NULL,
	color         TEXT NOT NULL DEFAULT '#b45328',
	xp            INT NOT NULL DEFAULT 0,
	level         INT NOT NULL DEFAULT 1,
	wins          INT NOT NULL DEFAULT 0,
	losses        INT NOT NULL DEFAULT 0,
	total_games   INT NOT NULL DEFAULT 0,
	solo_games    INT NOT NULL DEFAULT 0,
	multi_games   INT NOT NULL DEFAULT 0,
	best_time     DOUBLE PRECISION,
	total_clicks  INT NOT NULL DEFAULT 0,
	streak        INT NOT NULL DEFAULT 0,
	max_streak    INT NOT NULL DEFAULT 0,
	title         JSONB,
	badges        JSONB NOT NULL DEFAULT '[]',
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS sessions (
	jti        TEXT PRIMARY KEY,
	user_id    UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	expires_at TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS game_history (
	id             UUID PRIMARY KEY,
	user_id        UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	is_solo        BOOLEAN NOT NULL,
	is_winner      BOOLEAN NOT NULL,
	time_seconds   DOUBLE PRECISION NOT NULL,
	clicks         INT NOT NULL,
	xp_gained      INT NOT NULL,
	target_article TEXT NOT NULL,
	played_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

const userColumns = `id, username, password_hash, display_name, color,
	xp, level, wins, losses, total_games, solo_games, multi_games,
	best_time, total_clicks, streak, max_streak, title, badges, created_at`

// PostgresStore implements Store on a pgx connection pool. Selected over the
// flat file when DATABASE_URL is set.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects, pings, and ensures the schema exists.
func NewPostgresStore(ctx context.Context, connString string) (*PostgresStore, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("unable to parse pgx config: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("unable to create pgx pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("db ping error: %w", err)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ensure schema: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

func scanUser(row pgx.Row) (*models.User, error) {
	var u models.User
	var titleJSON, badgesJSON []byte
	err := row.Scan(
		&u.ID, &u.Username, &u.PasswordHash, &u.DisplayName, &u.Color,
		&u.XP, &u.Level, &u.Wins, &u.Losses, &u.TotalGames, &u.SoloGames, &u.MultiGames,
		&u.BestTime, &u.TotalClicks, &u.Streak, &u.MaxStreak, &titleJSON, &badgesJSON, &u.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(titleJSON) > 0 {
		if err := json.Unmarshal(titleJSON, &u.Title); err != nil {
			return nil, fmt.Errorf("failed to decode title: %w", err)
		}
	}
	u.Badges = []models.Badge{}
	if len(badgesJSON) > 0 {
		if err := json.Unmarshal(badgesJSON, &u.Badges); err != nil {
			return nil, fmt.Errorf("failed to decode badges: %w", err)
		}
	}
	return &u, nil
}

func (s *PostgresStore) getUser(ctx context.Context, where string, arg any) (*models.User, error) {
	q := fmt.Sprintf(`SELECT %s FROM users WHERE %s`, userColumns, where)
	u, err := scanUser(s.pool.QueryRow(ctx, q, arg))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	return u, err
}

// newSession mints a token and records its jti.
func (s *PostgresStore) newSession(ctx context.Context, userID uuid.UUID) (string, error) {
	token, jti, expiresAt, err := auth.CreateToken(userID.String())
	if err != nil {
		return "", fmt.Errorf("failed to create token: %w", err)
	}
	var expires *time.Time
	if !expiresAt.IsZero() {
		expires = &expiresAt
	}
	_, err = s.pool.Exec(ctx, `INSERT INTO sessions (jti, user_id, expires_at) VALUES ($1, $2, $3)`,
		jti, userID, expires)
	if err != nil {
		return "", fmt.Errorf("failed to insert session: %w", err)
	}
	return token, nil
}

func (s *PostgresStore) Register(ctx context.Context, username, password, displayName string) (*models.User, string, error) {
	username = strings.ToLower(username)
	if displayName == "" {
		displayName = username
	}

	if _, err := s.getUser(ctx, "username=$1", username); err == nil {
		return nil, "", ErrUserExists
	} else if !errors.Is(err, ErrUserNotFound) {
		return nil, "", err
	}

	hash, err := auth.CreateHash(password, auth.Params)
	if err != nil {
		return nil, "", fmt.Errorf("failed to hash password: %w", err)
	}

	id := uuid.New()
	q := `INSERT INTO users (id, username, password_hash, display_name) VALUES ($1, $2, $3, $4)`
	if _, err := s.pool.Exec(ctx, q, id, username, hash, displayName); err != nil {
		return nil, "", fmt.Errorf("failed to insert user: %w", err)
	}

	token, err := s.newSession(ctx, id)
	if err != nil {
		return nil, "", err
	}
	u, err := s.getUser(ctx, "id=$1", id)
	if err != nil {
		return nil, "", err
	}
	return u.Sanitized(), token, nil
}

func (s *PostgresStore) Login(ctx context.Context, username, password string) (*models.User, string, error) {
	u, err := s.getUser(ctx, "username=$1", strings.ToLower(username))
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, "", ErrInvalidCredentials
		}
		return nil, "", err
	}

	match, err := auth.ComparePasswordAndHash(password, u.PasswordHash)
	if err != nil || !match {
		return nil, "", ErrInvalidCredentials
	}

	token, err := s.newSession(ctx, u.ID)
	if err != nil {
		return nil, "", err
	}
	return u.Sanitized(), token, nil
}

func (s *PostgresStore) Logout(ctx context.Context, token string) error {
	_, jti, err := auth.AuthenticateToken(token)
	if err != nil {
		return nil
	}
	_, err = s.pool.Exec(ctx, `DELETE FROM sessions WHERE jti=$1`, jti)
	return err
}

func (s *PostgresStore) ValidateToken(ctx context.Context, token string) (*models.User, error) {
	userIDStr, jti, err := auth.AuthenticateToken(token)
	if err != nil {
		return nil, ErrInvalidToken
	}
	userID, err := uuid.Parse(userIDStr)
	if err != nil {
		return nil, ErrInvalidToken
	}

	var count int
	q := `SELECT count(*) FROM sessions WHERE jti=$1 AND user_id=$2 AND (expires_at IS NULL OR expires_at > now())`
	if err := s.pool.QueryRow(ctx, q, jti, userID).Scan(&count); err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, ErrInvalidToken
	}

	u, err := s.getUser(ctx, "id=$1", userID)
	if err != nil {
		return nil, ErrInvalidToken
	}
	return u.Sanitized(), nil
}

func (s *PostgresStore) GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	u, err := s.getUser(ctx, "id=$1", id)
	if err != nil {
		return nil, err
	}
	return u.Sanitized(), nil
}

func (s *PostgresStore) UpdateProfile(ctx context.Context, id uuid.UUID, upd ProfileUpdate) (*models.User, error) {
	q := `UPDATE users SET
		display_name = COALESCE(NULLIF($1, ''), display_name),
		color        = COALESCE(NULLIF($2, ''), color)
	WHERE id=$3`

	var displayName, color string
	if upd.DisplayName != nil {
		displayName = *upd.DisplayName
	}
	if upd.Color != nil {
		color = *upd.Color
	}
	tag, err := s.pool.Exec(ctx, q, displayName, color, id)
	if err != nil {
		return nil, fmt.Errorf("failed to update profile: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, ErrUserNotFound
	}
	u, err := s.getUser(ctx, "id=$1", id)
	if err != nil {
		return nil, err
	}
	return u.Sanitized(), nil
}

func (s *PostgresStore) AddGameResult(ctx context.Context, id uuid.UUID, res models.GameResult) (*models.User, error) {
	var updated *models.User
	err := pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		q := fmt.Sprintf(`SELECT %s FROM users WHERE id=$1 FOR UPDATE`, userColumns)
		u, err := scanUser(tx.QueryRow(ctx, q, id))
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrUserNotFound
		}
		if err != nil {
			return err
		}

		_, err = tx.Exec(ctx, `INSERT INTO game_history
			(id, user_id, is_solo, is_winner, time_seconds, clicks, xp_gained, target_article, played_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now())`,
			uuid.New(), id, res.IsSolo, res.IsWinner, res.TimeSeconds, res.Clicks, res.XPGained, res.TargetArticle)
		if err != nil {
			return fmt.Errorf("failed to insert history row: %w", err)
		}

		applyGameResult(u, res)

		_, err = tx.Exec(ctx, `UPDATE users SET
			xp=$1, level=$2, wins=$3, losses=$4, total_games=$5, solo_games=$6,
			multi_games=$7, best_time=$8, total_clicks=$9, streak=$10, max_streak=$11
			WHERE id=$12`,
			u.XP, u.Level, u.Wins, u.Losses, u.TotalGames, u.SoloGames,
			u.MultiGames, u.BestTime, u.TotalClicks, u.Streak, u.MaxStreak, id)
		if err != nil {
			return fmt.Errorf("failed to update user stats: %w", err)
		}
		updated = u
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated.Sanitized(), nil
}

func (s *PostgresStore) GetLeaderboard(ctx context.Context, limit int) ([]models.LeaderboardEntry, error) {
	q := `SELECT id, display_name, color, xp, level, wins, total_games
		FROM users ORDER BY xp DESC LIMIT $1`
	rows, err := s.pool.Query(ctx, q, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := []models.LeaderboardEntry{}
	for rows.Next() {
		var e models.LeaderboardEntry
		if err := rows.Scan(&e.ID, &e.DisplayName, &e.Color, &e.XP, &e.Level, &e.Wins, &e.TotalGames); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (s *PostgresStore) GetGameHistory(ctx context.Context, id uuid.UUID, limit int) ([]models.GameRecord, error) {
	q := `SELECT id, user_id, is_solo, is_winner, time_seconds, clicks, xp_gained, target_article, played_at
		FROM game_history WHERE user_id=$1 ORDER BY played_at DESC LIMIT $2`
	rows, err := s.pool.Query(ctx, q, id, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := []models.GameRecord{}
	for rows.Next() {
		var rec models.GameRecord
		if err := rows.Scan(&rec.ID, &rec.UserID, &rec.IsSolo, &rec.IsWinner, &rec.TimeSeconds,
			&rec.Clicks, &rec.XPGained, &rec.TargetArticle, &rec.PlayedAt); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (s *PostgresStore) Close() {
	s.pool.Close()
}
