package broker

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/cardarena/arena-server/internal/game"
	"github.com/cardarena/arena-server/internal/matchmaking"
)

// Arena is the slice of the game manager the broker relies on.
type Arena interface {
	Get(matchID string) (*game.Match, bool)
	ActiveMatchForPlayer(playerID string) (string, bool)
}

// Queue is the slice of the matchmaking manager the broker relies on.
type Queue interface {
	Enqueue(t matchmaking.Ticket) (*matchmaking.Ticket, error)
	Cancel(playerID string, mode matchmaking.Mode)
	Status(mode matchmaking.Mode) matchmaking.QueueStatus
}

// Options tunes connection lifecycle behavior.
type Options struct {
	HeartbeatInterval time.Duration
	HeartbeatMisses   int
	ReconnectGrace    time.Duration
	WriteTimeout      time.Duration
}

// Broker owns every live websocket session, the match rooms, and the
// reconnect grace timers. It is the only component that talks to
// clients; game and matchmaking events flow through it.
type Broker struct {
	logger   *zap.Logger
	arena    Arena
	queue    Queue
	upgrader websocket.Upgrader

	heartbeatInterval time.Duration
	heartbeatMisses   int
	reconnectGrace    time.Duration
	writeTimeout      time.Duration

	mu sync.RWMutex
	// byPlayer holds the single live connection per player. A new
	// connection for the same player supersedes the old one.
	byPlayer map[string]*Client
	// rooms maps match id to the clients watching it, participants and
	// spectators alike.
	rooms map[string]map[*Client]bool
	// graceTimers tracks players who dropped mid-match and have not yet
	// forfeited.
	graceTimers map[string]*time.Timer
	superseded  map[*Client]bool
}

// NewBroker creates a session broker.
func NewBroker(arena Arena, opts Options, logger *zap.Logger) *Broker {
	return &Broker{
		logger: logger,
		arena:  arena,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		heartbeatInterval: opts.HeartbeatInterval,
		heartbeatMisses:   opts.HeartbeatMisses,
		reconnectGrace:    opts.ReconnectGrace,
		writeTimeout:      opts.WriteTimeout,
		byPlayer:          make(map[string]*Client),
		rooms:             make(map[string]map[*Client]bool),
		graceTimers:       make(map[string]*time.Timer),
		superseded:        make(map[*Client]bool),
	}
}

// SetQueue wires the matchmaking manager. Set once at startup, before
// the broker serves connections.
func (b *Broker) SetQueue(q Queue) {
	b.queue = q
}

// ServeWS upgrades an HTTP request into a session. The player identifies
// through the player_id query parameter.
func (b *Broker) ServeWS(w http.ResponseWriter, r *http.Request) {
	playerID := r.URL.Query().Get("player_id")
	if playerID == "" {
		http.Error(w, "player_id is required", http.StatusBadRequest)
		return
	}

	conn, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		b.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	client := &Client{
		broker:   b,
		conn:     conn,
		send:     make(chan []byte, sendBuffer),
		playerID: playerID,
	}
	b.register(client)

	go client.writePump()
	go client.readPump()
}

// register installs the client as the player's live connection,
// superseding any previous one, and cancels a pending forfeit timer.
func (b *Broker) register(c *Client) {
	b.mu.Lock()
	prev := b.byPlayer[c.playerID]
	if prev != nil {
		b.superseded[prev] = true
		b.removeFromRoomLocked(prev)
	}
	b.byPlayer[c.playerID] = c

	var reconnected string
	if timer, ok := b.graceTimers[c.playerID]; ok {
		timer.Stop()
		delete(b.graceTimers, c.playerID)
		if matchID, in := b.arena.ActiveMatchForPlayer(c.playerID); in {
			reconnected = matchID
		}
	}
	b.mu.Unlock()

	if prev != nil {
		prev.conn.Close()
	}

	b.logger.Info("client connected",
		zap.String("player_id", c.playerID),
		zap.Bool("superseded_previous", prev != nil),
	)

	if reconnected != "" {
		b.broadcastRoom(reconnected, Envelope{
			Type:    msgPlayerBack,
			MatchID: reconnected,
			Data:    mustMarshal(presenceData{PlayerID: c.playerID}),
		}, nil)
	}
}

// unregister tears the client down. If the player is mid-match and was
// not superseded by a fresh connection, the reconnect grace timer
// starts; on expiry the absent player forfeits.
func (b *Broker) unregister(c *Client) {
	b.mu.Lock()
	superseded := b.superseded[c]
	delete(b.superseded, c)
	if b.byPlayer[c.playerID] == c {
		delete(b.byPlayer, c.playerID)
	}
	b.removeFromRoomLocked(c)

	var graceMatch string
	if !superseded && !c.spectator {
		if matchID, in := b.arena.ActiveMatchForPlayer(c.playerID); in {
			graceMatch = matchID
			playerID := c.playerID
			// Two stages: a final warning to the room near the deadline,
			// then the forfeit itself.
			warnLead := b.reconnectGrace / 4
			b.graceTimers[playerID] = time.AfterFunc(b.reconnectGrace-warnLead, func() {
				b.warnGrace(playerID, matchID, warnLead)
			})
		}
	}
	b.mu.Unlock()

	c.closeSend()

	b.logger.Info("client disconnected",
		zap.String("player_id", c.playerID),
		zap.Bool("superseded", superseded),
	)

	if graceMatch != "" {
		b.broadcastRoom(graceMatch, Envelope{
			Type:    msgPlayerAway,
			MatchID: graceMatch,
			Data: mustMarshal(presenceData{
				PlayerID:     c.playerID,
				GraceSeconds: int(b.reconnectGrace.Seconds()),
			}),
		}, nil)
	}
}

// warnGrace broadcasts the final forfeit warning and arms the expiry
// timer for the remainder of the grace period. A reconnect in between
// stops whichever timer is pending.
func (b *Broker) warnGrace(playerID, matchID string, remaining time.Duration) {
	b.mu.Lock()
	if _, pending := b.graceTimers[playerID]; !pending {
		b.mu.Unlock()
		return
	}
	b.graceTimers[playerID] = time.AfterFunc(remaining, func() {
		b.expireGrace(playerID, matchID)
	})
	b.mu.Unlock()

	b.broadcastRoom(matchID, Envelope{
		Type:    msgForfeitWarning,
		MatchID: matchID,
		Data: mustMarshal(presenceData{
			PlayerID:     playerID,
			GraceSeconds: int(remaining.Seconds()),
		}),
	}, nil)
}

// expireGrace forfeits a player whose grace period ran out without a
// reconnect.
func (b *Broker) expireGrace(playerID, matchID string) {
	b.mu.Lock()
	if _, pending := b.graceTimers[playerID]; !pending {
		b.mu.Unlock()
		return
	}
	delete(b.graceTimers, playerID)
	b.mu.Unlock()

	match, ok := b.arena.Get(matchID)
	if !ok {
		return
	}
	b.logger.Info("reconnect grace expired, forfeiting",
		zap.String("player_id", playerID),
		zap.String("match_id", matchID),
	)
	if err := match.ForfeitDisconnected(playerID); err != nil {
		b.logger.Debug("forfeit after grace failed",
			zap.String("player_id", playerID),
			zap.String("match_id", matchID),
			zap.Error(err),
		)
	}
}

func (b *Broker) dropSlowClient(c *Client) {
	b.logger.Warn("dropping slow client", zap.String("player_id", c.playerID))
	c.conn.Close()
}

func (b *Broker) removeFromRoomLocked(c *Client) {
	if c.matchID == "" {
		return
	}
	if room, ok := b.rooms[c.matchID]; ok {
		delete(room, c)
		if len(room) == 0 {
			delete(b.rooms, c.matchID)
		}
	}
	c.matchID = ""
}

// handleMessage routes one inbound envelope.
func (b *Broker) handleMessage(c *Client, env Envelope) {
	switch env.Type {
	case msgPing:
		c.sendEnvelope(Envelope{Type: msgPong})

	case msgJoinGame:
		b.handleJoin(c, env.MatchID, false)

	case msgSpectate:
		b.handleJoin(c, env.MatchID, true)

	case msgPlayCard:
		var data playCardData
		if err := json.Unmarshal(env.Data, &data); err != nil {
			c.sendError("BAD_PAYLOAD", "invalid play_card payload")
			return
		}
		b.withMatch(c, env.MatchID, func(m *game.Match) error {
			return m.PlayCard(c.playerID, data.InstanceID, data.TargetID)
		})

	case msgAttack:
		var data attackData
		if err := json.Unmarshal(env.Data, &data); err != nil {
			c.sendError("BAD_PAYLOAD", "invalid attack payload")
			return
		}
		b.withMatch(c, env.MatchID, func(m *game.Match) error {
			return m.Attack(c.playerID, data.AttackerID, data.TargetID)
		})

	case msgEndTurn:
		b.withMatch(c, env.MatchID, func(m *game.Match) error {
			return m.EndTurn(c.playerID)
		})

	case msgConcede:
		b.withMatch(c, env.MatchID, func(m *game.Match) error {
			return m.Concede(c.playerID)
		})

	case msgStartMatch:
		b.handleStartMatch(c, env.Data)

	case msgCancelMatch:
		var data modeData
		if err := json.Unmarshal(env.Data, &data); err != nil {
			c.sendError("BAD_PAYLOAD", "invalid cancel payload")
			return
		}
		b.queue.Cancel(c.playerID, matchmaking.Mode(data.Mode))

	case msgQueueStatus:
		var data modeData
		if err := json.Unmarshal(env.Data, &data); err != nil {
			c.sendError("BAD_PAYLOAD", "invalid status payload")
			return
		}
		status := b.queue.Status(matchmaking.Mode(data.Mode))
		c.sendEnvelope(Envelope{Type: msgQueueUpdate, Data: mustMarshal(status)})

	default:
		c.sendError("UNKNOWN_TYPE", "unsupported message type: "+env.Type)
	}
}

// handleJoin puts the client in a match room and sends the full filtered
// snapshot. Rejoining the same room is how a reconnecting player catches
// up.
func (b *Broker) handleJoin(c *Client, matchID string, spectator bool) {
	match, ok := b.arena.Get(matchID)
	if !ok {
		c.sendError("MATCH_NOT_FOUND", "no active match with that id")
		return
	}
	if !spectator && !isParticipant(match, c.playerID) {
		c.sendError("NOT_A_PARTICIPANT", "player is not seated in this match")
		return
	}

	b.mu.Lock()
	b.removeFromRoomLocked(c)
	room, ok := b.rooms[matchID]
	if !ok {
		room = make(map[*Client]bool)
		b.rooms[matchID] = room
	}
	room[c] = true
	c.matchID = matchID
	c.spectator = spectator
	b.mu.Unlock()

	viewer := c.playerID
	if spectator {
		viewer = ""
	}
	c.sendEnvelope(Envelope{
		Type:    msgGameState,
		MatchID: matchID,
		Data:    mustMarshal(match.View(viewer)),
	})
}

// withMatch resolves the client's match and runs a command against it,
// translating rule rejections into error envelopes.
func (b *Broker) withMatch(c *Client, matchID string, fn func(*game.Match) error) {
	if matchID == "" {
		b.mu.RLock()
		matchID = c.matchID
		b.mu.RUnlock()
	}
	match, ok := b.arena.Get(matchID)
	if !ok {
		c.sendError("MATCH_NOT_FOUND", "no active match with that id")
		return
	}

	if err := fn(match); err != nil {
		if re, ok := game.AsRuleError(err); ok {
			c.sendError(string(re.Code), re.Message)
			return
		}
		b.logger.Error("command failed",
			zap.String("player_id", c.playerID),
			zap.String("match_id", matchID),
			zap.Error(err),
		)
		c.sendError("INTERNAL", "command could not be processed")
	}
}

func (b *Broker) handleStartMatch(c *Client, raw json.RawMessage) {
	var data startMatchData
	if err := json.Unmarshal(raw, &data); err != nil {
		c.sendError("BAD_PAYLOAD", "invalid start_match_request payload")
		return
	}

	ticket, err := b.queue.Enqueue(matchmaking.Ticket{
		PlayerID: c.playerID,
		Mode:     matchmaking.Mode(data.Mode),
		DeckID:   data.DeckID,
		Rating:   data.Rating,
	})
	if err != nil {
		if ce, ok := matchmaking.AsConflictError(err); ok {
			c.sendError(ce.Code, ce.Message)
			return
		}
		c.sendError("BAD_REQUEST", err.Error())
		return
	}

	c.sendEnvelope(Envelope{
		Type: msgQueueUpdate,
		Data: mustMarshal(b.queue.Status(ticket.Mode)),
	})
}

// HandleMatchEvent receives engine notifications. game_update frames get
// a per-viewer filtered state attached; everything else fans out as-is.
// Wire with game.Manager.SetNotificationHandler.
func (b *Broker) HandleMatchEvent(ev game.MatchEvent) {
	env := Envelope{
		Type:    string(ev.Type),
		MatchID: ev.MatchID,
		Data:    mustMarshal(ev.Data),
	}

	switch ev.Type {
	case game.EventGameUpdate:
		b.broadcastUpdate(ev)
	case game.EventGameOver:
		b.broadcastRoom(ev.MatchID, env, nil)
		b.closeRoom(ev.MatchID)
	default:
		if ev.PlayerID != "" {
			b.sendToPlayer(ev.PlayerID, env)
			return
		}
		b.broadcastRoom(ev.MatchID, env, nil)
	}
}

// broadcastUpdate sends every room member its own view of the state.
// Hidden information never leaves the server: each frame is filtered for
// its recipient before encoding.
func (b *Broker) broadcastUpdate(ev game.MatchEvent) {
	match, ok := b.arena.Get(ev.MatchID)
	if !ok {
		return
	}

	type recipient struct {
		client *Client
		viewer string
	}
	b.mu.RLock()
	members := make([]recipient, 0, len(b.rooms[ev.MatchID]))
	for c := range b.rooms[ev.MatchID] {
		viewer := c.playerID
		if c.spectator {
			viewer = ""
		}
		members = append(members, recipient{client: c, viewer: viewer})
	}
	b.mu.RUnlock()

	for _, r := range members {
		payload := struct {
			Update interface{}    `json:"update"`
			State  game.MatchView `json:"state"`
		}{Update: ev.Data, State: match.View(r.viewer)}

		r.client.sendEnvelope(Envelope{
			Type:    string(ev.Type),
			MatchID: ev.MatchID,
			Data:    mustMarshal(payload),
		})
	}
}

// broadcastRoom sends one frame to every room member except skip.
func (b *Broker) broadcastRoom(matchID string, env Envelope, skip *Client) {
	b.mu.RLock()
	members := make([]*Client, 0, len(b.rooms[matchID]))
	for c := range b.rooms[matchID] {
		if c != skip {
			members = append(members, c)
		}
	}
	b.mu.RUnlock()

	for _, c := range members {
		c.sendEnvelope(env)
	}
}

func (b *Broker) closeRoom(matchID string) {
	b.mu.Lock()
	for c := range b.rooms[matchID] {
		c.matchID = ""
		c.spectator = false
	}
	delete(b.rooms, matchID)
	b.mu.Unlock()
}

func (b *Broker) sendToPlayer(playerID string, env Envelope) {
	b.mu.RLock()
	c := b.byPlayer[playerID]
	b.mu.RUnlock()
	if c != nil {
		c.sendEnvelope(env)
	}
}

// MatchFound implements matchmaking.Notifier.
func (b *Broker) MatchFound(playerID, matchID, opponentID string, opponentRating int) {
	b.sendToPlayer(playerID, Envelope{
		Type:    msgMatchFound,
		MatchID: matchID,
		Data: mustMarshal(matchFoundData{
			MatchID:        matchID,
			OpponentID:     opponentID,
			OpponentRating: opponentRating,
		}),
	})
}

// QueueUpdate implements matchmaking.Notifier.
func (b *Broker) QueueUpdate(playerID string, status matchmaking.QueueStatus) {
	b.sendToPlayer(playerID, Envelope{
		Type: msgQueueUpdate,
		Data: mustMarshal(status),
	})
}

// MatchCancelled implements matchmaking.Notifier.
func (b *Broker) MatchCancelled(playerID, reason string) {
	b.sendToPlayer(playerID, Envelope{
		Type: msgMatchCancel,
		Data: mustMarshal(map[string]string{"reason": reason}),
	})
}

// ConnectedPlayers reports how many players hold a live connection.
func (b *Broker) ConnectedPlayers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.byPlayer)
}

func isParticipant(m *game.Match, playerID string) bool {
	for _, id := range m.PlayerIDs() {
		if id == playerID {
			return true
		}
	}
	return false
}
