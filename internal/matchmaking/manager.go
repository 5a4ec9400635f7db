package matchmaking

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cardarena/arena-server/internal/game"
)

// Mode identifies a matchmaking queue.
type Mode string

const (
	ModeRanked     Mode = "ranked"
	ModeCasual     Mode = "casual"
	ModePractice   Mode = "practice"
	ModeTournament Mode = "tournament"
	ModeFriendly   Mode = "friendly"
)

// Modes lists every queue the manager maintains.
var Modes = []Mode{ModeRanked, ModeCasual, ModePractice, ModeTournament, ModeFriendly}

// IsValidMode reports whether the mode names a real queue.
func IsValidMode(mode Mode) bool {
	for _, m := range Modes {
		if m == mode {
			return true
		}
	}
	return false
}

// ConflictError rejects an enqueue that would violate the one-ticket /
// one-match-per-player invariant.
type ConflictError struct {
	Code    string
	Message string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

var (
	errAlreadyQueued  = &ConflictError{Code: "ALREADY_QUEUED", Message: "player already has an active ticket"}
	errAlreadyInMatch = &ConflictError{Code: "ALREADY_IN_MATCH", Message: "player is already in a match"}
	// ErrUnknownMode rejects enqueues for modes without a queue.
	ErrUnknownMode = errors.New("unknown matchmaking mode")
)

// AsConflictError extracts a ConflictError from err, if it is one.
func AsConflictError(err error) (*ConflictError, bool) {
	var ce *ConflictError
	if errors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}

// Ticket is one pending matchmaking request.
type Ticket struct {
	ID         string
	PlayerID   string
	Mode       Mode
	DeckID     string
	Rating     int
	EnqueuedAt time.Time
	// MaxWait overrides the configured starvation threshold; zero means
	// use the configured default.
	MaxWait time.Duration
}

// Config tunes queue behavior.
type Config struct {
	SweepInterval   time.Duration
	BaseTolerance   int
	ToleranceGrowth float64
	MaxTolerance    int
	MaxWait         time.Duration
}

// QueueStatus is the public view of one queue.
type QueueStatus struct {
	Mode           Mode    `json:"mode"`
	Length         int     `json:"queue_length"`
	AvgWaitSeconds float64 `json:"avg_wait_seconds"`
}

// MatchStarter creates matches on successful pairing. Implemented by the
// game arena.
type MatchStarter interface {
	CreateMatch(mode string, seats [2]game.Seat) (*game.Match, error)
	ActiveMatchForPlayer(playerID string) (string, bool)
}

// Notifier delivers matchmaking events to players. Implemented by the
// session broker.
type Notifier interface {
	MatchFound(playerID, matchID, opponentID string, opponentRating int)
	QueueUpdate(playerID string, status QueueStatus)
	MatchCancelled(playerID, reason string)
}

// Manager owns the per-mode ticket queues and the periodic matching
// sweep. A sweep holds the manager lock for its full pass, so a ticket
// can never be paired twice.
type Manager struct {
	cfg      Config
	logger   *zap.Logger
	starter  MatchStarter
	notifier Notifier

	mu       sync.Mutex
	queues   map[Mode][]*Ticket
	byPlayer map[string]*Ticket
	// recentWaits is a sliding window of observed enqueue-to-pair times
	// used for the estimated-wait surface.
	recentWaits []time.Duration

	now func() time.Time
}

// NewManager creates a matchmaking manager.
func NewManager(cfg Config, starter MatchStarter, notifier Notifier, logger *zap.Logger) *Manager {
	m := &Manager{
		cfg:      cfg,
		logger:   logger,
		starter:  starter,
		notifier: notifier,
		queues:   make(map[Mode][]*Ticket, len(Modes)),
		byPlayer: make(map[string]*Ticket),
		now:      time.Now,
	}
	for _, mode := range Modes {
		m.queues[mode] = nil
	}
	return m
}

// Run sweeps all queues on the configured interval until ctx is done.
func (m *Manager) Run(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Sweep()
		}
	}
}

// Enqueue inserts a ticket. A player may hold at most one ticket and be
// in at most one match; violations are rejected as conflicts. Practice
// tickets pair instantly against a synthetic opponent.
func (m *Manager) Enqueue(t Ticket) (*Ticket, error) {
	if !IsValidMode(t.Mode) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownMode, t.Mode)
	}
	if t.PlayerID == "" {
		return nil, fmt.Errorf("player id is required")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, queued := m.byPlayer[t.PlayerID]; queued {
		return nil, errAlreadyQueued
	}
	if matchID, busy := m.starter.ActiveMatchForPlayer(t.PlayerID); busy {
		if m.logger != nil {
			m.logger.Debug("enqueue rejected, player in match",
				zap.String("player_id", t.PlayerID),
				zap.String("match_id", matchID),
			)
		}
		return nil, errAlreadyInMatch
	}

	ticket := t
	ticket.ID = uuid.NewString()
	ticket.EnqueuedAt = m.now()

	if ticket.Mode == ModePractice {
		// No waiting in practice: pair against an AI seat immediately.
		if err := m.pairLocked(&ticket, m.syntheticTicket(&ticket)); err != nil {
			return nil, err
		}
		return &ticket, nil
	}

	m.queues[ticket.Mode] = append(m.queues[ticket.Mode], &ticket)
	m.byPlayer[ticket.PlayerID] = &ticket

	if m.logger != nil {
		m.logger.Info("ticket enqueued",
			zap.String("ticket_id", ticket.ID),
			zap.String("player_id", ticket.PlayerID),
			zap.String("mode", string(ticket.Mode)),
			zap.Int("rating", ticket.Rating),
		)
	}
	return &ticket, nil
}

// Cancel removes the player's ticket from the mode's queue. Idempotent.
func (m *Manager) Cancel(playerID string, mode Mode) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ticket, ok := m.byPlayer[playerID]
	if !ok || ticket.Mode != mode {
		return
	}
	m.removeTicketLocked(ticket)
	m.compactLocked(mode)

	if m.logger != nil {
		m.logger.Info("ticket cancelled",
			zap.String("ticket_id", ticket.ID),
			zap.String("player_id", playerID),
			zap.String("mode", string(mode)),
		)
	}
	if m.notifier != nil {
		m.notifier.MatchCancelled(playerID, "cancelled")
	}
}

// Status returns the queue length and the estimated wait for a mode.
func (m *Manager) Status(mode Mode) QueueStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.statusLocked(mode)
}

// Sweep runs one matching pass over every queue. Earliest-enqueued
// tickets are tried first: greedy and bounded-latency rather than
// globally rating-optimal.
func (m *Manager) Sweep() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, mode := range Modes {
		if mode == ModePractice {
			continue
		}
		m.sweepModeLocked(mode)
	}
}

func (m *Manager) sweepModeLocked(mode Mode) {
	now := m.now()

	// Tickets are kept in enqueue order, so scanning forward prefers the
	// longest-waiting ticket both as seeker and as candidate.
	queue := m.queues[mode]
	for i := 0; i < len(queue); i++ {
		a := queue[i]
		if a == nil {
			continue
		}
		for j := i + 1; j < len(queue); j++ {
			b := queue[j]
			if b == nil {
				continue
			}
			if !m.compatibleLocked(a, b, now) {
				continue
			}
			if err := m.pairLocked(a, b); err != nil {
				if m.logger != nil {
					m.logger.Error("failed to start match for pair",
						zap.String("mode", string(mode)),
						zap.Error(err),
					)
				}
				continue
			}
			break
		}
	}
	m.compactLocked(mode)

	// Starvation guard: no ticket is ever dropped. Past its max wait a
	// ticket matches anyone (handled in compatibleLocked) and the player
	// is told where they stand.
	for _, t := range m.queues[mode] {
		if m.waitOf(t, now) >= m.maxWaitOf(t) && m.notifier != nil {
			m.notifier.QueueUpdate(t.PlayerID, m.statusLocked(mode))
		}
	}
}

// compatibleLocked applies the tolerance rule: tolerance grows
// monotonically with wait time and the pair is legal when the rating gap
// fits under the wider of the two tolerances.
func (m *Manager) compatibleLocked(a, b *Ticket, now time.Time) bool {
	gap := math.Abs(float64(a.Rating - b.Rating))
	tolA := m.toleranceOf(a, now)
	tolB := m.toleranceOf(b, now)
	return gap <= math.Max(tolA, tolB)
}

func (m *Manager) toleranceOf(t *Ticket, now time.Time) float64 {
	if m.waitOf(t, now) >= m.maxWaitOf(t) {
		return math.Inf(1)
	}
	waitSeconds := m.waitOf(t, now).Seconds()
	tol := float64(m.cfg.BaseTolerance) + m.cfg.ToleranceGrowth*waitSeconds
	return math.Min(tol, float64(m.cfg.MaxTolerance))
}

func (m *Manager) waitOf(t *Ticket, now time.Time) time.Duration {
	return now.Sub(t.EnqueuedAt)
}

func (m *Manager) maxWaitOf(t *Ticket) time.Duration {
	if t.MaxWait > 0 {
		return t.MaxWait
	}
	return m.cfg.MaxWait
}

// pairLocked removes both tickets, starts the match and notifies both
// players.
func (m *Manager) pairLocked(a, b *Ticket) error {
	seats := [2]game.Seat{
		{PlayerID: a.PlayerID, DeckID: a.DeckID, AI: isSynthetic(a)},
		{PlayerID: b.PlayerID, DeckID: b.DeckID, AI: isSynthetic(b)},
	}
	match, err := m.starter.CreateMatch(string(a.Mode), seats)
	if err != nil {
		return fmt.Errorf("failed to create match: %w", err)
	}

	now := m.now()
	for _, t := range []*Ticket{a, b} {
		m.removeTicketLocked(t)
		if !isSynthetic(t) {
			m.recordWaitLocked(now.Sub(t.EnqueuedAt))
		}
	}

	if m.logger != nil {
		m.logger.Info("tickets paired",
			zap.String("match_id", match.ID()),
			zap.String("mode", string(a.Mode)),
			zap.String("player_a", a.PlayerID),
			zap.String("player_b", b.PlayerID),
			zap.Int("rating_gap", abs(a.Rating-b.Rating)),
		)
	}

	if m.notifier != nil {
		if !isSynthetic(a) {
			m.notifier.MatchFound(a.PlayerID, match.ID(), b.PlayerID, b.Rating)
		}
		if !isSynthetic(b) {
			m.notifier.MatchFound(b.PlayerID, match.ID(), a.PlayerID, a.Rating)
		}
	}
	return nil
}

// syntheticTicket builds the AI opponent for a practice ticket. Its
// rating mirrors the player's so the pairing is trivially legal.
func (m *Manager) syntheticTicket(t *Ticket) *Ticket {
	return &Ticket{
		ID:         uuid.NewString(),
		PlayerID:   "ai:" + uuid.NewString(),
		Mode:       t.Mode,
		DeckID:     t.DeckID,
		Rating:     t.Rating,
		EnqueuedAt: m.now(),
	}
}

// removeTicketLocked nils the queue slot instead of reslicing so a
// sweep can keep iterating safely; compactLocked drops the holes.
func (m *Manager) removeTicketLocked(t *Ticket) {
	delete(m.byPlayer, t.PlayerID)
	for i, q := range m.queues[t.Mode] {
		if q != nil && q.ID == t.ID {
			m.queues[t.Mode][i] = nil
			return
		}
	}
}

func (m *Manager) compactLocked(mode Mode) {
	queue := m.queues[mode]
	remaining := queue[:0]
	for _, t := range queue {
		if t != nil {
			remaining = append(remaining, t)
		}
	}
	m.queues[mode] = remaining
}

func (m *Manager) recordWaitLocked(wait time.Duration) {
	m.recentWaits = append(m.recentWaits, wait)
	if len(m.recentWaits) > 50 {
		m.recentWaits = m.recentWaits[len(m.recentWaits)-50:]
	}
}

func (m *Manager) statusLocked(mode Mode) QueueStatus {
	status := QueueStatus{Mode: mode, Length: len(m.queues[mode])}
	if len(m.recentWaits) > 0 {
		var total time.Duration
		for _, w := range m.recentWaits {
			total += w
		}
		status.AvgWaitSeconds = (total / time.Duration(len(m.recentWaits))).Seconds()
	}
	return status
}

func isSynthetic(t *Ticket) bool {
	return len(t.PlayerID) > 3 && t.PlayerID[:3] == "ai:"
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
