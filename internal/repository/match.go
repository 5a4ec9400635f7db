package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/cardarena/arena-server/internal/game"
)

// ErrRecordNotFound is returned when no archived match has the given id.
var ErrRecordNotFound = errors.New("match record not found")

const matchSchema = `
CREATE TABLE IF NOT EXISTS match_records (
	match_id   TEXT PRIMARY KEY,
	mode       TEXT NOT NULL,
	players    JSONB NOT NULL,
	decks      JSONB NOT NULL,
	winner_id  TEXT,
	draw       BOOLEAN NOT NULL DEFAULT FALSE,
	aborted    BOOLEAN NOT NULL DEFAULT FALSE,
	rng_seed   BIGINT NOT NULL,
	action_log JSONB NOT NULL,
	started_at TIMESTAMPTZ NOT NULL,
	ended_at   TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_match_records_ended_at ON match_records (ended_at DESC);
`

// MatchRepository archives finished matches and loads them back for
// replay and history queries. It satisfies the arena's archiver hook.
type MatchRepository struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewMatchRepository wraps a connection pool.
func NewMatchRepository(pool *pgxpool.Pool, logger *zap.Logger) *MatchRepository {
	return &MatchRepository{pool: pool, logger: logger}
}

// EnsureSchema creates the match tables when missing.
func (r *MatchRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, matchSchema); err != nil {
		return fmt.Errorf("failed to ensure match schema: %w", err)
	}
	return nil
}

// ArchiveMatch persists a completed match record. Replaying the stored
// seed, decks and action log reproduces the match exactly, so this row
// is the full audit trail.
func (r *MatchRepository) ArchiveMatch(ctx context.Context, rec *game.MatchRecord) error {
	players, err := json.Marshal(rec.Players)
	if err != nil {
		return fmt.Errorf("failed to encode players: %w", err)
	}
	decks, err := json.Marshal(rec.Decks)
	if err != nil {
		return fmt.Errorf("failed to encode decks: %w", err)
	}
	actionLog, err := json.Marshal(rec.ActionLog)
	if err != nil {
		return fmt.Errorf("failed to encode action log: %w", err)
	}

	_, err = r.pool.Exec(ctx, `
		INSERT INTO match_records (
			match_id, mode, players, decks, winner_id, draw, aborted,
			rng_seed, action_log, started_at, ended_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (match_id) DO NOTHING
	`,
		rec.MatchID,
		rec.Mode,
		players,
		decks,
		nullIfEmpty(rec.WinnerID),
		rec.Draw,
		rec.Aborted,
		rec.RNGSeed,
		actionLog,
		rec.StartedAt,
		rec.EndedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert match record: %w", err)
	}

	r.logger.Debug("match archived",
		zap.String("match_id", rec.MatchID),
		zap.Int("actions", len(rec.ActionLog)),
	)
	return nil
}

// GetRecord loads one archived match by id.
func (r *MatchRepository) GetRecord(ctx context.Context, matchID string) (*game.MatchRecord, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT match_id, mode, players, decks, winner_id, draw, aborted,
		       rng_seed, action_log, started_at, ended_at
		FROM match_records
		WHERE match_id = $1
	`, matchID)

	rec, err := scanRecord(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load match record: %w", err)
	}
	return rec, nil
}

// RecentForPlayer lists a player's most recently finished matches.
func (r *MatchRepository) RecentForPlayer(ctx context.Context, playerID string, limit int) ([]*game.MatchRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.pool.Query(ctx, `
		SELECT match_id, mode, players, decks, winner_id, draw, aborted,
		       rng_seed, action_log, started_at, ended_at
		FROM match_records
		WHERE players ? $1
		ORDER BY ended_at DESC
		LIMIT $2
	`, playerID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query match history: %w", err)
	}
	defer rows.Close()

	var records []*game.MatchRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan match record: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func scanRecord(row pgx.Row) (*game.MatchRecord, error) {
	var (
		rec       game.MatchRecord
		players   []byte
		decks     []byte
		actionLog []byte
		winnerID  *string
	)
	err := row.Scan(
		&rec.MatchID, &rec.Mode, &players, &decks, &winnerID,
		&rec.Draw, &rec.Aborted, &rec.RNGSeed, &actionLog,
		&rec.StartedAt, &rec.EndedAt,
	)
	if err != nil {
		return nil, err
	}
	if winnerID != nil {
		rec.WinnerID = *winnerID
	}
	if err := json.Unmarshal(players, &rec.Players); err != nil {
		return nil, fmt.Errorf("failed to decode players: %w", err)
	}
	if err := json.Unmarshal(decks, &rec.Decks); err != nil {
		return nil, fmt.Errorf("failed to decode decks: %w", err)
	}
	if err := json.Unmarshal(actionLog, &rec.ActionLog); err != nil {
		return nil, fmt.Errorf("failed to decode action log: %w", err)
	}
	return &rec, nil
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
