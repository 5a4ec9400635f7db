package game

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Archiver persists completed match records, off the command hot path.
type Archiver interface {
	ArchiveMatch(ctx context.Context, rec *MatchRecord) error
}

// NopArchiver discards records. Used when no database is configured.
type NopArchiver struct{}

// ArchiveMatch implements Archiver.
func (NopArchiver) ArchiveMatch(context.Context, *MatchRecord) error { return nil }

// Manager is the arena: the explicit registry of live matches, keyed by
// match id. Matchmaking creates entries; game over (or abort) tears them
// down and hands the record to the archiver asynchronously.
type Manager struct {
	logger   *zap.Logger
	rules    Rules
	library  *CardLibrary
	archiver Archiver
	notify   NotificationFunc

	mu       sync.RWMutex
	matches  map[string]*Match
	byPlayer map[string]string
}

// NewManager creates an arena with the given rule set and card library.
func NewManager(rules Rules, library *CardLibrary, archiver Archiver, logger *zap.Logger) *Manager {
	if archiver == nil {
		archiver = NopArchiver{}
	}
	return &Manager{
		logger:   logger,
		rules:    rules,
		library:  library,
		archiver: archiver,
		matches:  make(map[string]*Match),
		byPlayer: make(map[string]string),
	}
}

// SetNotificationHandler wires the session layer's fan-out. Must be
// called before matches are created.
func (g *Manager) SetNotificationHandler(fn NotificationFunc) {
	g.notify = fn
}

// CreateMatch builds a match for the two seats, registers it and starts
// its command worker. Synthetic (AI) seats are not registered in the
// player index.
func (g *Manager) CreateMatch(mode string, seats [2]Seat) (*Match, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	for _, seat := range seats {
		if seat.AI {
			continue
		}
		if matchID, busy := g.byPlayer[seat.PlayerID]; busy {
			return nil, fmt.Errorf("player %s is already in match %s", seat.PlayerID, matchID)
		}
	}

	matchID := uuid.NewString()
	match, err := NewMatch(MatchConfig{
		MatchID:  matchID,
		Mode:     mode,
		Rules:    g.rules,
		Library:  g.library,
		Seats:    seats,
		Logger:   g.logger,
		Notify:   g.notify,
		OnFinish: g.onMatchFinished,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create match: %w", err)
	}

	g.matches[matchID] = match
	for _, seat := range seats {
		if !seat.AI {
			g.byPlayer[seat.PlayerID] = matchID
		}
	}

	match.Start()
	return match, nil
}

// Get returns the live match with the given id.
func (g *Manager) Get(matchID string) (*Match, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	match, ok := g.matches[matchID]
	return match, ok
}

// ActiveMatchForPlayer returns the id of the match the player is in.
func (g *Manager) ActiveMatchForPlayer(playerID string) (string, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	matchID, ok := g.byPlayer[playerID]
	return matchID, ok
}

// ActiveMatchCount returns the number of live matches.
func (g *Manager) ActiveMatchCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.matches)
}

// onMatchFinished archives the record asynchronously and removes the
// match from the arena.
func (g *Manager) onMatchFinished(rec *MatchRecord) {
	g.mu.Lock()
	match, ok := g.matches[rec.MatchID]
	delete(g.matches, rec.MatchID)
	for _, pid := range rec.Players {
		if g.byPlayer[pid] == rec.MatchID {
			delete(g.byPlayer, pid)
		}
	}
	g.mu.Unlock()

	if ok {
		match.Stop()
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := g.archiver.ArchiveMatch(ctx, rec); err != nil && g.logger != nil {
			g.logger.Error("failed to archive match record",
				zap.String("match_id", rec.MatchID),
				zap.Error(err),
			)
		}
	}()

	if g.logger != nil {
		g.logger.Info("match removed from arena",
			zap.String("match_id", rec.MatchID),
			zap.String("winner_id", rec.WinnerID),
			zap.Bool("aborted", rec.Aborted),
		)
	}
}

// Shutdown stops all live match workers.
func (g *Manager) Shutdown() {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, match := range g.matches {
		match.Stop()
	}
}
