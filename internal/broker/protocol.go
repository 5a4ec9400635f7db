package broker

import "encoding/json"

// Envelope is the wire frame for every client/server message.
type Envelope struct {
	Type     string          `json:"type"`
	MatchID  string          `json:"match_id,omitempty"`
	PlayerID string          `json:"player_id,omitempty"`
	Data     json.RawMessage `json:"data,omitempty"`
}

// Inbound message types.
const (
	msgJoinGame    = "join_game"
	msgPlayCard    = "play_card"
	msgAttack      = "attack"
	msgEndTurn     = "end_turn"
	msgConcede     = "concede"
	msgPing        = "ping"
	msgStartMatch  = "start_match_request"
	msgCancelMatch = "cancel_match_request"
	msgQueueStatus = "get_queue_status"
	msgSpectate    = "spectate"
)

// Outbound message types not owned by the game engine.
const (
	msgPong           = "pong"
	msgError          = "error"
	msgGameState      = "game_state"
	msgMatchFound     = "match_found"
	msgQueueUpdate    = "queue_update"
	msgMatchCancel    = "match_cancelled"
	msgPlayerAway     = "player_disconnected"
	msgPlayerBack     = "player_reconnected"
	msgForfeitWarning = "forfeit_warning"
)

// playCardData is the payload of a play_card envelope.
type playCardData struct {
	InstanceID string `json:"instance_id"`
	TargetID   string `json:"target_id,omitempty"`
}

// attackData is the payload of an attack envelope.
type attackData struct {
	AttackerID string `json:"attacker_id"`
	TargetID   string `json:"target_id"`
}

// startMatchData is the payload of a start_match_request envelope.
type startMatchData struct {
	Mode   string `json:"mode"`
	DeckID string `json:"deck_id,omitempty"`
	Rating int    `json:"rating,omitempty"`
}

// modeData is the payload of cancel_match_request and get_queue_status.
type modeData struct {
	Mode string `json:"mode"`
}

// errorData is the payload of an error envelope.
type errorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// matchFoundData is the payload of a match_found envelope.
type matchFoundData struct {
	MatchID        string `json:"match_id"`
	OpponentID     string `json:"opponent_id"`
	OpponentRating int    `json:"opponent_rating"`
}

// presenceData is the payload of the disconnect/reconnect notices.
type presenceData struct {
	PlayerID     string `json:"player_id"`
	GraceSeconds int    `json:"grace_seconds,omitempty"`
}

func mustMarshal(v interface{}) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		return json.RawMessage(`{}`)
	}
	return b
}
