package game

import "time"

// MatchRecord is the persisted artifact of a completed match. The action
// log plus the RNG seed and deck ids deterministically reproduce the
// entire match.
type MatchRecord struct {
	MatchID   string            `json:"match_id"`
	Mode      string            `json:"mode"`
	Players   []string          `json:"players"`
	Decks     map[string]string `json:"decks"`
	WinnerID  string            `json:"winner_id,omitempty"`
	Draw      bool              `json:"draw,omitempty"`
	Aborted   bool              `json:"aborted,omitempty"`
	RNGSeed   int64             `json:"rng_seed"`
	ActionLog []ActionLogEntry  `json:"action_log"`
	StartedAt time.Time         `json:"started_at"`
	EndedAt   time.Time         `json:"ended_at"`
}
