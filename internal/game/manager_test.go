package game

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.uber.org/zap"
)

type captureArchiver struct {
	mu      sync.Mutex
	records []*MatchRecord
}

func (a *captureArchiver) ArchiveMatch(_ context.Context, rec *MatchRecord) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.records = append(a.records, rec)
	return nil
}

func (a *captureArchiver) count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.records)
}

func newTestArena(t *testing.T) (*Manager, *captureArchiver) {
	t.Helper()
	archiver := &captureArchiver{}
	arena := NewManager(DefaultRules(), testLibrary(t), archiver, zap.NewNop())
	t.Cleanup(arena.Shutdown)
	return arena, archiver
}

func TestArenaCreateAndLookup(t *testing.T) {
	arena, _ := newTestArena(t)

	match, err := arena.CreateMatch("ranked", [2]Seat{
		{PlayerID: "alice", DeckID: "standard"},
		{PlayerID: "bob", DeckID: "standard"},
	})
	require.NoError(t, err)

	got, ok := arena.Get(match.ID())
	require.True(t, ok)
	assert.Same(t, match, got)

	matchID, ok := arena.ActiveMatchForPlayer("alice")
	require.True(t, ok)
	assert.Equal(t, match.ID(), matchID)
	assert.Equal(t, 1, arena.ActiveMatchCount())
}

func TestArenaRejectsDoubleBooking(t *testing.T) {
	arena, _ := newTestArena(t)

	_, err := arena.CreateMatch("ranked", [2]Seat{
		{PlayerID: "alice", DeckID: "standard"},
		{PlayerID: "bob", DeckID: "standard"},
	})
	require.NoError(t, err)

	_, err = arena.CreateMatch("casual", [2]Seat{
		{PlayerID: "alice", DeckID: "standard"},
		{PlayerID: "carol", DeckID: "standard"},
	})
	require.Error(t, err)
}

func TestArenaTeardownOnGameOver(t *testing.T) {
	arena, archiver := newTestArena(t)

	match, err := arena.CreateMatch("ranked", [2]Seat{
		{PlayerID: "alice", DeckID: "standard"},
		{PlayerID: "bob", DeckID: "standard"},
	})
	require.NoError(t, err)

	require.NoError(t, match.Concede("bob"))

	// Deregistration is synchronous with the finishing command.
	_, ok := arena.Get(match.ID())
	assert.False(t, ok)
	_, ok = arena.ActiveMatchForPlayer("alice")
	assert.False(t, ok)

	// Archiving happens off the command path.
	require.Eventually(t, func() bool {
		return archiver.count() == 1
	}, 3*time.Second, 10*time.Millisecond)

	rec := archiver.records[0]
	assert.Equal(t, match.ID(), rec.MatchID)
	assert.Equal(t, "alice", rec.WinnerID)
}

func TestArenaEventsReachHandler(t *testing.T) {
	archiver := &captureArchiver{}
	arena := NewManager(DefaultRules(), testLibrary(t), archiver, zap.NewNop())
	t.Cleanup(arena.Shutdown)

	var mu sync.Mutex
	var events []MatchEvent
	arena.SetNotificationHandler(func(ev MatchEvent) {
		mu.Lock()
		events = append(events, ev)
		mu.Unlock()
	})

	match, err := arena.CreateMatch("casual", [2]Seat{
		{PlayerID: "alice", DeckID: "standard"},
		{PlayerID: "bob", DeckID: "standard"},
	})
	require.NoError(t, err)
	require.NoError(t, match.EndTurn("alice"))

	mu.Lock()
	defer mu.Unlock()
	var sawFirstTurn, sawUpdate bool
	for _, ev := range events {
		switch ev.Type {
		case EventTurnStart:
			sawFirstTurn = true
		case EventGameUpdate:
			sawUpdate = true
		}
	}
	assert.True(t, sawFirstTurn, "setup turn_start should flush on Start")
	assert.True(t, sawUpdate, "end_turn should emit a game_update")
}

func TestArenaPracticeSeatNotRegistered(t *testing.T) {
	arena, _ := newTestArena(t)

	_, err := arena.CreateMatch("practice", [2]Seat{
		{PlayerID: "alice", DeckID: "standard"},
		{PlayerID: "ai:bot", DeckID: "standard", AI: true},
	})
	require.NoError(t, err)

	_, ok := arena.ActiveMatchForPlayer("ai:bot")
	assert.False(t, ok)
}
