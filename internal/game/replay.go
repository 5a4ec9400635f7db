package game

import (
	"fmt"

	"go.uber.org/zap"
)

// ReplayMatch deterministically re-executes a recorded match from its
// seed, deck ids and action log, and returns the reconstructed match in
// its final state. Synthetic opponents need no special handling: their
// commands were recorded like any other player's.
func ReplayMatch(rec *MatchRecord, rules Rules, library *CardLibrary, logger *zap.Logger) (*Match, error) {
	if rec == nil {
		return nil, fmt.Errorf("record is nil")
	}
	if len(rec.Players) != 2 {
		return nil, fmt.Errorf("record has %d players, want 2", len(rec.Players))
	}
	if rec.Aborted {
		return nil, fmt.Errorf("aborted matches cannot be replayed")
	}

	var seats [2]Seat
	for i, pid := range rec.Players {
		seats[i] = Seat{PlayerID: pid, DeckID: rec.Decks[pid]}
	}

	m, err := NewMatch(MatchConfig{
		MatchID: rec.MatchID,
		Mode:    rec.Mode,
		Rules:   rules,
		Library: library,
		Seats:   seats,
		Seed:    rec.RNGSeed,
		Logger:  logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to rebuild match: %w", err)
	}

	for _, entry := range rec.ActionLog {
		if err := m.applyLogged(entry); err != nil {
			return nil, fmt.Errorf("replay diverged at seq %d (%s %s): %w",
				entry.Seq, entry.PlayerID, entry.Command, err)
		}
	}

	if m.Finished() != (rec.WinnerID != "" || rec.Draw) {
		return nil, fmt.Errorf("replay finished=%v does not match record", m.Finished())
	}
	return m, nil
}

// VerifyRecord replays the record and checks the reconstructed outcome
// against the recorded one.
func VerifyRecord(rec *MatchRecord, rules Rules, library *CardLibrary, logger *zap.Logger) error {
	m, err := ReplayMatch(rec, rules, library, logger)
	if err != nil {
		return err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.winnerID != rec.WinnerID {
		return fmt.Errorf("replay winner %q does not match recorded %q", m.winnerID, rec.WinnerID)
	}
	if m.draw != rec.Draw {
		return fmt.Errorf("replay draw=%v does not match recorded %v", m.draw, rec.Draw)
	}
	return nil
}

// applyLogged re-executes one logged command synchronously, without the
// command worker. The caller owns the match exclusively.
func (m *Match) applyLogged(entry ActionLogEntry) error {
	m.mu.Lock()

	var err error
	switch entry.Command {
	case "play_card":
		err = m.handlePlayCard(entry.PlayerID, entry.CardID, entry.TargetID)
	case "attack":
		err = m.handleAttack(entry.PlayerID, entry.CardID, entry.TargetID)
	case "end_turn":
		err = m.handleEndTurn(entry.PlayerID)
	case "concede":
		err = m.handleConcede(entry.PlayerID)
	default:
		err = fmt.Errorf("unknown logged command %q", entry.Command)
	}

	m.pendingEvents = nil
	m.mu.Unlock()
	return err
}
