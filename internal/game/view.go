package game

import "time"

// MatchView is a player-scoped snapshot of a match. Hidden information is
// filtered at build time: the viewer sees their own hand in full, every
// other hand only as a count.
type MatchView struct {
	MatchID       string       `json:"match_id"`
	Turn          int          `json:"turn"`
	Phase         string       `json:"phase"`
	CurrentPlayer string       `json:"current_player"`
	Finished      bool         `json:"finished"`
	WinnerID      string       `json:"winner_id,omitempty"`
	Draw          bool         `json:"draw,omitempty"`
	Aborted       bool         `json:"aborted,omitempty"`
	Seq           int          `json:"seq"`
	Players       []PlayerView `json:"players"`
	StartedAt     time.Time    `json:"started_at"`
}

// PlayerView is one player's public (or, for the viewer, private) state.
type PlayerView struct {
	PlayerID       string             `json:"player_id"`
	HeroHealth     int                `json:"hero_health"`
	Armor          int                `json:"armor"`
	Mana           int                `json:"mana"`
	MaxMana        int                `json:"max_mana"`
	Fatigue        int                `json:"fatigue"`
	DeckCount      int                `json:"deck_count"`
	HandCount      int                `json:"hand_count"`
	GraveyardCount int                `json:"graveyard_count"`
	Hand           []CardInstanceView `json:"hand,omitempty"`
	Battlefield    []CardInstanceView `json:"battlefield"`
}

// CardInstanceView is the wire form of a card instance.
type CardInstanceView struct {
	InstanceID    string `json:"instance_id"`
	CardID        string `json:"card_id"`
	Name          string `json:"name"`
	Type          string `json:"type"`
	Cost          int    `json:"cost"`
	Attack        int    `json:"attack"`
	Defense       int    `json:"defense"`
	Taunt         bool   `json:"taunt,omitempty"`
	Charge        bool   `json:"charge,omitempty"`
	Windfury      bool   `json:"windfury,omitempty"`
	DivineShield  bool   `json:"divine_shield,omitempty"`
	Frozen        bool   `json:"frozen,omitempty"`
	Silenced      bool   `json:"silenced,omitempty"`
	SummoningSick bool   `json:"summoning_sick,omitempty"`
}

func buildCardView(ci *CardInstance) CardInstanceView {
	return CardInstanceView{
		InstanceID:    ci.InstanceID,
		CardID:        ci.CardID,
		Name:          ci.Name,
		Type:          string(ci.Type),
		Cost:          ci.Cost,
		Attack:        ci.Attack,
		Defense:       ci.Defense,
		Taunt:         ci.Taunt,
		Charge:        ci.Charge,
		Windfury:      ci.Windfury,
		DivineShield:  ci.DivineShield,
		Frozen:        ci.Frozen,
		Silenced:      ci.Silenced,
		SummoningSick: ci.SummoningSick,
	}
}

func buildCardViews(cards []*CardInstance) []CardInstanceView {
	views := make([]CardInstanceView, len(cards))
	for i, ci := range cards {
		views[i] = buildCardView(ci)
	}
	return views
}

// EventType enumerates the notifications a match emits.
type EventType string

const (
	EventGameUpdate EventType = "game_update"
	EventTurnStart  EventType = "turn_start"
	EventTurnEnd    EventType = "turn_end"
	EventGameOver   EventType = "game_over"
)

// MatchEvent is a notification pushed to the session layer after an
// accepted mutation. PlayerID is empty for room-wide broadcasts.
type MatchEvent struct {
	Type     EventType
	MatchID  string
	PlayerID string
	Data     interface{}
}

// NotificationFunc receives match events. Events are delivered outside
// the match lock, so the handler may read views, but it must not submit
// commands synchronously: the command worker may still be mid-dispatch.
type NotificationFunc func(ev MatchEvent)

// TurnStartData is the payload of a turn_start event.
type TurnStartData struct {
	PlayerID         string `json:"player_id"`
	Turn             int    `json:"turn"`
	TimeLimitSeconds int    `json:"time_limit_seconds"`
}

// GameOverData is the payload of a game_over event.
type GameOverData struct {
	WinnerID string `json:"winner_id,omitempty"`
	Draw     bool   `json:"draw,omitempty"`
	Reason   string `json:"reason,omitempty"`
}
