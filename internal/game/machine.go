package game

import (
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Seat describes one side of a new match.
type Seat struct {
	PlayerID string
	DeckID   string
	AI       bool
}

// MatchConfig carries everything needed to construct a match.
type MatchConfig struct {
	MatchID string
	Mode    string
	Rules   Rules
	Library *CardLibrary
	Seats   [2]Seat
	// Seed selects the deterministic RNG stream. Zero means "derive from
	// the clock"; replays must pass the recorded seed.
	Seed     int64
	Logger   *zap.Logger
	Notify   NotificationFunc
	OnFinish func(*MatchRecord)
}

type commandKind int

const (
	cmdPlayCard commandKind = iota
	cmdAttack
	cmdEndTurn
	cmdConcede
)

type matchCommand struct {
	kind       commandKind
	playerID   string
	instanceID string
	targetID   string
	reply      chan error
}

// pendingTrigger is one queued trigger event together with the effect
// descriptors captured when it was enqueued. Capturing at enqueue time
// matters for deathrattles: the source has already left the battlefield
// by the time the trigger resolves.
type pendingTrigger struct {
	ev      TriggerEvent
	effects []EffectDescriptor
}

// Match owns one match's authoritative state. All mutation goes through
// the command worker: a single goroutine consuming the command channel,
// so two submissions from the same player can never race.
type Match struct {
	matchID  string
	mode     string
	rules    Rules
	library  *CardLibrary
	resolver *EffectResolver
	logger   *zap.Logger
	notify   NotificationFunc
	onFinish func(*MatchRecord)

	mu          sync.RWMutex
	players     map[string]*playerState
	order       [2]string
	deckIDs     map[string]string
	aiPlayers   map[string]bool
	current     string
	turn        int
	phase       Phase
	rngSeed     int64
	rng         *rand.Rand
	seq         int
	instanceSeq int
	actionLog   []ActionLogEntry
	finished    bool
	draw        bool
	aborted     bool
	winnerID    string
	anomalies   int
	startedAt   time.Time
	endedAt     time.Time

	pendingEvents []MatchEvent

	commands chan matchCommand
	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewMatch constructs a match in its Setup phase, shuffles both decks
// from the seeded RNG stream, deals opening hands and begins turn 1 for
// the first seat. Call Start to launch the command worker.
func NewMatch(cfg MatchConfig) (*Match, error) {
	if cfg.MatchID == "" {
		return nil, fmt.Errorf("match id is required")
	}
	if cfg.Library == nil {
		return nil, fmt.Errorf("card library is required")
	}
	if cfg.Seats[0].PlayerID == "" || cfg.Seats[1].PlayerID == "" {
		return nil, fmt.Errorf("both seats must be filled")
	}
	if cfg.Seats[0].PlayerID == cfg.Seats[1].PlayerID {
		return nil, fmt.Errorf("seats must hold distinct players")
	}

	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	m := &Match{
		matchID:   cfg.MatchID,
		mode:      cfg.Mode,
		rules:     cfg.Rules,
		library:   cfg.Library,
		resolver:  NewEffectResolver(),
		logger:    cfg.Logger,
		notify:    cfg.Notify,
		onFinish:  cfg.OnFinish,
		players:   make(map[string]*playerState, 2),
		deckIDs:   make(map[string]string, 2),
		aiPlayers: make(map[string]bool, 2),
		phase:     PhaseSetup,
		rngSeed:   seed,
		rng:       rand.New(rand.NewSource(seed)),
		startedAt: time.Now(),
		commands:  make(chan matchCommand),
		stopCh:    make(chan struct{}),
	}

	for i, seat := range cfg.Seats {
		m.order[i] = seat.PlayerID
		m.deckIDs[seat.PlayerID] = seat.DeckID
		if seat.AI {
			m.aiPlayers[seat.PlayerID] = true
		}
		ps := &playerState{
			PlayerID:   seat.PlayerID,
			HeroHealth: cfg.Rules.StartingHealth,
		}
		deck, err := m.buildDeck(seat.DeckID)
		if err != nil {
			return nil, err
		}
		ps.Deck = deck
		m.players[seat.PlayerID] = ps
	}

	// Opening hands: the second seat draws one extra card to offset the
	// first-move advantage.
	for i, pid := range m.order {
		n := m.rules.StartingHandSize
		if i == 1 {
			n++
		}
		m.drawCards(m.players[pid], n)
	}

	m.current = m.order[0]
	m.turn = 1
	m.runTurnStart(m.players[m.current])
	m.checkWinCondition()

	if m.logger != nil {
		m.logger.Info("match created",
			zap.String("match_id", m.matchID),
			zap.String("mode", m.mode),
			zap.Strings("players", []string{m.order[0], m.order[1]}),
			zap.Int64("seed", seed),
		)
	}

	return m, nil
}

// buildDeck creates the shuffled instance pile for a deck id. Deck
// compositions are owned by an external data layer; until one is wired
// in, every id resolves to the base list. The list for a given id is
// deterministic, so seed + deck ids reproduce the pile.
func (m *Match) buildDeck(deckID string) ([]*CardInstance, error) {
	list := defaultDeckList(m.library)
	deck := make([]*CardInstance, 0, len(list))
	for _, cardID := range list {
		card, ok := m.library.Get(cardID)
		if !ok {
			return nil, fmt.Errorf("deck %s references unknown card %s", deckID, cardID)
		}
		deck = append(deck, m.newInstance(card))
	}
	m.rng.Shuffle(len(deck), func(i, j int) {
		deck[i], deck[j] = deck[j], deck[i]
	})
	return deck, nil
}

// ID returns the match id.
func (m *Match) ID() string { return m.matchID }

// Mode returns the queue mode that created the match.
func (m *Match) Mode() string { return m.mode }

// PlayerIDs returns both players in seat order.
func (m *Match) PlayerIDs() [2]string { return m.order }

// Seed returns the RNG seed the match was created with.
func (m *Match) Seed() int64 { return m.rngSeed }

// Start flushes the notifications accumulated during setup and launches
// the command worker and turn timer.
func (m *Match) Start() {
	m.mu.Lock()
	events := m.pendingEvents
	m.pendingEvents = nil
	m.mu.Unlock()
	if m.notify != nil {
		for _, ev := range events {
			m.notify(ev)
		}
	}
	go m.run()
}

// Stop terminates the command worker. Safe to call more than once.
func (m *Match) Stop() {
	m.stopOnce.Do(func() { close(m.stopCh) })
}

// Finished reports whether the match has reached GameOver.
func (m *Match) Finished() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.finished
}

// PlayCard plays the hand card with the given instance id. target is a
// minion instance id or a player id for explicitly targeted effects,
// empty otherwise.
func (m *Match) PlayCard(playerID, instanceID, target string) error {
	return m.submit(matchCommand{kind: cmdPlayCard, playerID: playerID, instanceID: instanceID, targetID: target})
}

// Attack attacks target (enemy minion instance id or enemy player id)
// with the given battlefield minion.
func (m *Match) Attack(playerID, attackerID, targetID string) error {
	return m.submit(matchCommand{kind: cmdAttack, playerID: playerID, instanceID: attackerID, targetID: targetID})
}

// EndTurn ends the caller's turn.
func (m *Match) EndTurn(playerID string) error {
	return m.submit(matchCommand{kind: cmdEndTurn, playerID: playerID})
}

// Concede forfeits the match. Legal in any phase short of GameOver.
func (m *Match) Concede(playerID string) error {
	return m.submit(matchCommand{kind: cmdConcede, playerID: playerID})
}

func (m *Match) submit(cmd matchCommand) error {
	cmd.reply = make(chan error, 1)
	select {
	case m.commands <- cmd:
		return <-cmd.reply
	case <-m.stopCh:
		return ErrMatchFinished
	}
}

// run is the single-writer command worker. It also owns the turn timer:
// expiry ends the idle player's turn on their behalf. The timer keeps
// ticking while a player is disconnected; the session layer bounds
// absence separately via its reconnect grace.
func (m *Match) run() {
	timer := time.NewTimer(m.rules.TurnTime)
	defer timer.Stop()

	prevTurnKey := m.turnKey()
	for {
		select {
		case cmd := <-m.commands:
			cmd.reply <- m.dispatch(cmd)
		case <-timer.C:
			m.expireTurn()
		case <-m.stopCh:
			return
		}

		if key := m.turnKey(); key != prevTurnKey {
			prevTurnKey = key
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(m.rules.TurnTime)
		}
	}
}

func (m *Match) turnKey() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.finished {
		return "done"
	}
	return fmt.Sprintf("%s/%d", m.current, m.turn)
}

// expireTurn auto-invokes end turn on behalf of the idle player.
func (m *Match) expireTurn() {
	m.mu.Lock()
	if m.finished {
		m.mu.Unlock()
		return
	}
	idle := m.current
	if m.logger != nil {
		m.logger.Info("turn timer expired",
			zap.String("match_id", m.matchID),
			zap.String("player_id", idle),
		)
	}
	err := m.handleEndTurn(idle)
	m.finishLocked(err)
}

// dispatch validates and applies one command under the write lock, then
// emits the collected notifications outside it.
func (m *Match) dispatch(cmd matchCommand) error {
	m.mu.Lock()

	var err error
	switch cmd.kind {
	case cmdPlayCard:
		err = m.handlePlayCard(cmd.playerID, cmd.instanceID, cmd.targetID)
	case cmdAttack:
		err = m.handleAttack(cmd.playerID, cmd.instanceID, cmd.targetID)
	case cmdEndTurn:
		err = m.handleEndTurn(cmd.playerID)
	case cmdConcede:
		err = m.handleConcede(cmd.playerID)
	default:
		err = fmt.Errorf("unknown command kind %d", cmd.kind)
	}

	return m.finishLocked(err)
}

// finishLocked handles fatal-error abortion, releases the lock and flushes
// pending notifications. Callers must hold m.mu.
func (m *Match) finishLocked(err error) error {
	var fatal *FatalEngineError
	if errors.As(err, &fatal) {
		m.abortLocked(fatal)
	}

	events := m.pendingEvents
	m.pendingEvents = nil
	finished := m.finished
	var record *MatchRecord
	if finished {
		record = m.recordLocked()
	}
	m.mu.Unlock()

	if m.notify != nil {
		for _, ev := range events {
			m.notify(ev)
		}
	}
	if finished && m.onFinish != nil {
		m.onFinish(record)
		m.onFinish = nil
	}
	return err
}

// abortLocked voids the match after an internal invariant violation.
// Only the affected match is torn down; shared state stays untouched.
func (m *Match) abortLocked(fatal *FatalEngineError) {
	if m.finished {
		return
	}
	if m.logger != nil {
		m.logger.Error("aborting match on fatal engine error",
			zap.String("match_id", m.matchID),
			zap.String("reason", fatal.Reason),
		)
	}
	m.finished = true
	m.aborted = true
	m.winnerID = ""
	m.phase = PhaseGameOver
	m.endedAt = time.Now()
	m.emit(MatchEvent{
		Type:    EventGameOver,
		MatchID: m.matchID,
		Data:    GameOverData{Reason: "aborted"},
	})
}

// ---- command handlers (all require m.mu held for writing) ----

func (m *Match) handlePlayCard(playerID, instanceID, target string) error {
	if err := m.requireActive(playerID); err != nil {
		return err
	}
	ps := m.players[playerID]

	ci, idx := ps.handCard(instanceID)
	if ci == nil {
		return newRuleError(CodeCardNotInHand, "card %s is not in hand", instanceID)
	}
	if ci.Cost > ps.Mana {
		return newRuleError(CodeInsufficientMana, "card costs %d, have %d mana", ci.Cost, ps.Mana)
	}

	switch ci.Type {
	case CardTypeMinion:
		if len(ps.Battlefield) >= m.rules.BattlefieldLimit {
			return newRuleError(CodeBoardFull, "battlefield is limited to %d minions", m.rules.BattlefieldLimit)
		}
	case CardTypeSpell:
		// No board requirement.
	default:
		return newRuleError(CodeIllegalTarget, "card type %s cannot be played", ci.Type)
	}

	if err := m.validateChosenTarget(ci, target); err != nil {
		return err
	}

	// Validation passed: apply atomically from here on.
	ps.Mana -= ci.Cost
	ps.Hand = append(ps.Hand[:idx], ps.Hand[idx+1:]...)

	switch ci.Type {
	case CardTypeMinion:
		ci.SummoningSick = !ci.Charge
		ps.Battlefield = append(ps.Battlefield, ci)
	case CardTypeSpell:
		ps.Graveyard = append(ps.Graveyard, ci)
	}

	if err := m.processTriggers([]pendingTrigger{{
		ev: TriggerEvent{
			Trigger:      TriggerBattlecry,
			SourceID:     ci.InstanceID,
			OwnerID:      playerID,
			ChosenTarget: target,
		},
		effects: ci.Effects(),
	}}); err != nil {
		return err
	}

	m.appendLog(playerID, "play_card", instanceID, target)
	m.checkWinCondition()
	m.emitUpdate("play_card", playerID)
	return nil
}

// validateChosenTarget checks target legality for a card about to be
// played. Explicitly targeted effects need the target supplied by the
// command, and it must reference a hero or a battlefield minion.
func (m *Match) validateChosenTarget(ci *CardInstance, target string) error {
	if err := m.resolver.ValidateChosenTarget(ci.Effects(), TriggerBattlecry, target); err != nil {
		return err
	}
	if target == "" {
		return nil
	}
	if _, ok := m.players[target]; ok {
		return nil
	}
	for _, ps := range m.players {
		if ps.minion(target) != nil {
			return nil
		}
	}
	return newRuleError(CodeIllegalTarget, "target %s does not exist", target)
}

func (m *Match) handleAttack(playerID, attackerID, targetID string) error {
	if err := m.requireActive(playerID); err != nil {
		return err
	}
	ps := m.players[playerID]
	enemy := m.players[m.opponentOf(playerID)]

	attacker := ps.minion(attackerID)
	if attacker == nil {
		return newRuleError(CodeIllegalTarget, "attacker %s is not on your battlefield", attackerID)
	}
	if attacker.Frozen {
		return newRuleError(CodeIllegalTarget, "attacker %s is frozen", attackerID)
	}
	if attacker.SummoningSick {
		return newRuleError(CodeIllegalTarget, "attacker %s has summoning sickness", attackerID)
	}
	if attacker.AttacksThisTurn >= attacker.maxAttacksPerTurn() {
		return newRuleError(CodeIllegalTarget, "attacker %s has no attacks left this turn", attackerID)
	}

	targetHero := targetID == enemy.PlayerID
	var targetMinion *CardInstance
	if !targetHero {
		targetMinion = enemy.minion(targetID)
		if targetMinion == nil {
			return newRuleError(CodeIllegalTarget, "target %s is not attackable", targetID)
		}
	}

	if m.enemyHasTaunt(enemy) && (targetHero || !targetMinion.Taunt) {
		return newRuleError(CodeIllegalTarget, "a taunt minion must be attacked first")
	}

	m.phase = PhaseCombat
	attacker.AttacksThisTurn++

	var followups []pendingTrigger
	if targetHero {
		enemy.damageHero(attacker.Attack)
	} else {
		// Simultaneous damage exchange: both sides take damage before
		// either death is evaluated.
		m.damageMinion(targetMinion, attacker.Attack, &followups)
		m.damageMinion(attacker, targetMinion.Attack, &followups)
	}

	if err := m.sweepDeaths(&followups); err != nil {
		return err
	}
	if err := m.processTriggers(followups); err != nil {
		return err
	}

	m.phase = PhaseMain
	m.appendLog(playerID, "attack", attackerID, targetID)
	m.checkWinCondition()
	m.emitUpdate("attack", playerID)
	return nil
}

func (m *Match) handleEndTurn(playerID string) error {
	if m.finished {
		return newRuleError(CodeGameOver, "match is over")
	}
	if playerID != m.current {
		return newRuleError(CodeNotYourTurn, "it is %s's turn", m.current)
	}

	m.phase = PhaseTurnEnd
	ps := m.players[playerID]

	var triggers []pendingTrigger
	for _, ci := range ps.Battlefield {
		effects := ci.Effects()
		if len(effects) == 0 {
			continue
		}
		triggers = append(triggers, pendingTrigger{
			ev:      TriggerEvent{Trigger: TriggerEndOfTurn, SourceID: ci.InstanceID, OwnerID: playerID},
			effects: effects,
		})
	}
	if err := m.processTriggers(triggers); err != nil {
		return err
	}

	// Thaw at the owner's turn end: a minion frozen during the enemy turn
	// stays frozen through its own turn and misses that attack window.
	for _, ci := range ps.Battlefield {
		ci.Frozen = false
	}

	m.appendLog(playerID, "end_turn", "", "")
	m.emit(MatchEvent{Type: EventTurnEnd, MatchID: m.matchID, Data: map[string]string{"player_id": playerID}})
	m.checkWinCondition()
	if m.finished {
		return nil
	}

	next := m.opponentOf(m.current)
	if next == m.order[0] {
		m.turn++
	}
	m.current = next
	m.runTurnStart(m.players[next])
	m.checkWinCondition()
	m.emitUpdate("end_turn", playerID)

	// Synthetic practice opponents take no actions: their turn runs its
	// start sequence and ends immediately.
	if !m.finished && m.aiPlayers[m.current] {
		return m.handleEndTurn(m.current)
	}
	return nil
}

func (m *Match) handleConcede(playerID string) error {
	if m.finished {
		return newRuleError(CodeGameOver, "match is over")
	}
	if _, ok := m.players[playerID]; !ok {
		return newRuleError(CodeIllegalTarget, "player %s is not in this match", playerID)
	}
	m.appendLog(playerID, "concede", "", "")
	m.finishMatch(m.opponentOf(playerID), false, "concede")
	return nil
}

// runTurnStart performs the turn-start sequence for the new current
// player: mana ramp and refill, the turn draw (with fatigue), flag
// cleanup and turn-start triggers.
func (m *Match) runTurnStart(ps *playerState) {
	m.phase = PhaseTurnStart

	if ps.MaxMana < m.rules.MaxMana {
		ps.MaxMana++
	}
	ps.Mana = ps.MaxMana

	for _, ci := range ps.Battlefield {
		ci.SummoningSick = false
		ci.AttacksThisTurn = 0
	}

	m.drawCards(ps, 1)

	var triggers []pendingTrigger
	for _, ci := range ps.Battlefield {
		effects := ci.Effects()
		if len(effects) == 0 {
			continue
		}
		triggers = append(triggers, pendingTrigger{
			ev:      TriggerEvent{Trigger: TriggerTurnStart, SourceID: ci.InstanceID, OwnerID: ps.PlayerID},
			effects: effects,
		})
	}
	if err := m.processTriggers(triggers); err != nil {
		// Turn-start triggers come from validated board state; a failure
		// here is an engine defect, not a player error.
		m.abortLocked(&FatalEngineError{MatchID: m.matchID, Reason: err.Error()})
		return
	}
	if m.finished {
		return
	}

	m.phase = PhaseMain
	m.emit(MatchEvent{
		Type:    EventTurnStart,
		MatchID: m.matchID,
		Data: TurnStartData{
			PlayerID:         ps.PlayerID,
			Turn:             m.turn,
			TimeLimitSeconds: int(m.rules.TurnTime.Seconds()),
		},
	})
}

// drawCards moves n cards from deck to hand. An empty deck triggers
// fatigue: escalating self-damage, 1 on the first empty draw, 2 on the
// second, and so on. A full hand burns the drawn card to the graveyard.
func (m *Match) drawCards(ps *playerState, n int) {
	for i := 0; i < n; i++ {
		if len(ps.Deck) == 0 {
			ps.Fatigue++
			ps.damageHero(ps.Fatigue)
			if m.logger != nil {
				m.logger.Debug("fatigue draw",
					zap.String("match_id", m.matchID),
					zap.String("player_id", ps.PlayerID),
					zap.Int("damage", ps.Fatigue),
				)
			}
			continue
		}
		ci := ps.Deck[0]
		ps.Deck = ps.Deck[1:]
		if len(ps.Hand) >= m.rules.HandLimit {
			ps.Graveyard = append(ps.Graveyard, ci)
			if m.logger != nil {
				m.logger.Debug("hand full, card burned",
					zap.String("match_id", m.matchID),
					zap.String("player_id", ps.PlayerID),
					zap.String("card_id", ci.CardID),
				)
			}
			continue
		}
		ps.Hand = append(ps.Hand, ci)
	}
}

// processTriggers resolves queued trigger events FIFO. Applying an
// event's mutations may kill minions, chaining further deathrattle
// events onto the queue. The chain is bounded: past the depth cap the
// remainder is dropped and logged as an anomaly instead of corrupting
// state.
func (m *Match) processTriggers(queue []pendingTrigger) error {
	depth := 0
	for len(queue) > 0 {
		if depth >= m.rules.EffectChainDepth {
			m.anomalies++
			if m.logger != nil {
				m.logger.Warn("effect chain depth exceeded, halting chain",
					zap.String("match_id", m.matchID),
					zap.Int("dropped", len(queue)),
				)
			}
			return nil
		}
		depth++

		pt := queue[0]
		queue = queue[1:]

		board := m.boardRef(pt.ev.OwnerID)
		muts, err := m.resolver.Resolve(board, pt.effects, pt.ev, m.rng)
		if err != nil {
			return &FatalEngineError{MatchID: m.matchID, Reason: err.Error()}
		}

		var followups []pendingTrigger
		for _, mut := range muts {
			if err := m.applyMutation(mut, &followups); err != nil {
				return err
			}
		}
		if err := m.sweepDeaths(&followups); err != nil {
			return err
		}

		// Win condition runs per queue step: a hero dead after this
		// trigger stays dead even if a later queued effect would heal.
		m.checkWinCondition()
		if m.finished {
			return nil
		}
		queue = append(queue, followups...)
	}
	return nil
}

// applyMutation applies one resolver mutation to the state.
func (m *Match) applyMutation(mut Mutation, followups *[]pendingTrigger) error {
	switch mut.Kind {
	case MutationDamageHero:
		ps, ok := m.players[mut.PlayerID]
		if !ok {
			return &FatalEngineError{MatchID: m.matchID, Reason: fmt.Sprintf("damage to unknown player %s", mut.PlayerID)}
		}
		ps.damageHero(mut.Amount)
	case MutationHealHero:
		ps, ok := m.players[mut.PlayerID]
		if !ok {
			return &FatalEngineError{MatchID: m.matchID, Reason: fmt.Sprintf("heal to unknown player %s", mut.PlayerID)}
		}
		ps.healHero(mut.Amount, m.rules.StartingHealth)
	case MutationDamageMinion:
		if ci := m.findMinion(mut.InstanceID); ci != nil {
			m.damageMinion(ci, mut.Amount, followups)
		}
	case MutationHealMinion:
		if ci := m.findMinion(mut.InstanceID); ci != nil {
			ci.Defense += mut.Amount
			if ci.Defense > ci.MaxDefense {
				ci.Defense = ci.MaxDefense
			}
		}
	case MutationBuffMinion:
		if ci := m.findMinion(mut.InstanceID); ci != nil {
			ci.Attack += mut.AttackDelta
			ci.Defense += mut.DefenseDelta
			ci.MaxDefense += mut.DefenseDelta
			ci.buffAttack += mut.AttackDelta
			ci.buffDefense += mut.DefenseDelta
		}
	case MutationSummon:
		m.summonMinion(mut.PlayerID, mut.SummonCardID)
	case MutationDraw:
		if ps, ok := m.players[mut.PlayerID]; ok {
			m.drawCards(ps, mut.Amount)
		}
	case MutationSilence:
		if ci := m.findMinion(mut.InstanceID); ci != nil {
			m.silenceMinion(ci)
		}
	case MutationFreeze:
		if ci := m.findMinion(mut.InstanceID); ci != nil {
			ci.Frozen = true
		}
	default:
		return &FatalEngineError{MatchID: m.matchID, Reason: fmt.Sprintf("unknown mutation kind %q", mut.Kind)}
	}
	return nil
}

// damageMinion applies one damage instance. Divine Shield absorbs exactly
// one instance entirely: the shield pops and no damage math runs.
// Returns whether damage actually landed; landed damage enqueues the
// target's on-damage triggers.
func (m *Match) damageMinion(ci *CardInstance, amount int, followups *[]pendingTrigger) bool {
	if amount <= 0 {
		return false
	}
	if ci.DivineShield {
		ci.DivineShield = false
		return false
	}
	ci.Defense -= amount

	if owner := m.ownerOfMinion(ci.InstanceID); owner != "" {
		effects := ci.Effects()
		for _, desc := range effects {
			if desc.Trigger == TriggerOnDamage {
				*followups = append(*followups, pendingTrigger{
					ev:      TriggerEvent{Trigger: TriggerOnDamage, SourceID: ci.InstanceID, OwnerID: owner},
					effects: effects,
				})
				break
			}
		}
	}
	return true
}

// summonMinion puts a fresh instance onto the battlefield. A full board
// swallows the summon; that is a rules outcome, not an error.
func (m *Match) summonMinion(playerID, cardID string) {
	ps, ok := m.players[playerID]
	if !ok {
		return
	}
	if len(ps.Battlefield) >= m.rules.BattlefieldLimit {
		if m.logger != nil {
			m.logger.Debug("summon dropped, battlefield full",
				zap.String("match_id", m.matchID),
				zap.String("player_id", playerID),
				zap.String("card_id", cardID),
			)
		}
		return
	}
	card, ok := m.library.Get(cardID)
	if !ok {
		if m.logger != nil {
			m.logger.Warn("summon references unknown card",
				zap.String("match_id", m.matchID),
				zap.String("card_id", cardID),
			)
		}
		return
	}
	ci := m.newInstance(card)
	ci.SummoningSick = !ci.Charge
	ps.Battlefield = append(ps.Battlefield, ci)
}

// newInstance assigns the next deterministic instance id. Ids are unique
// within the match and reproduced exactly by a replay.
func (m *Match) newInstance(card *Card) *CardInstance {
	m.instanceSeq++
	return newInstance(card, fmt.Sprintf("i-%d", m.instanceSeq))
}

// silenceMinion strips trigger eligibility and keyword statuses. Whether
// earlier numeric buffs revert is a configuration decision.
func (m *Match) silenceMinion(ci *CardInstance) {
	ci.Silenced = true
	ci.Taunt = false
	ci.Charge = false
	ci.Windfury = false
	ci.DivineShield = false
	ci.Frozen = false
	if m.rules.SilenceStripsBuffs {
		ci.Attack -= ci.buffAttack
		ci.Defense -= ci.buffDefense
		ci.MaxDefense -= ci.buffDefense
		if ci.Attack < 0 {
			ci.Attack = 0
		}
		if ci.Defense < 1 {
			ci.Defense = 1
		}
		ci.buffAttack = 0
		ci.buffDefense = 0
	}
}

// sweepDeaths moves dead minions to their graveyards, queueing
// deathrattles ahead of removal effects already collected.
func (m *Match) sweepDeaths(followups *[]pendingTrigger) error {
	for _, pid := range m.order {
		ps := m.players[pid]
		survivors := ps.Battlefield[:0]
		for _, ci := range ps.Battlefield {
			if ci.Defense > 0 {
				survivors = append(survivors, ci)
				continue
			}
			effects := ci.Effects()
			for _, desc := range effects {
				if desc.Trigger == TriggerDeathrattle {
					*followups = append(*followups, pendingTrigger{
						ev:      TriggerEvent{Trigger: TriggerDeathrattle, SourceID: ci.InstanceID, OwnerID: pid},
						effects: effects,
					})
					break
				}
			}
			ps.Graveyard = append(ps.Graveyard, ci)
		}
		ps.Battlefield = survivors
	}
	return nil
}

// checkWinCondition transitions to GameOver when a hero is dead. Both
// heroes dying in the same resolution step is an explicit draw.
func (m *Match) checkWinCondition() {
	if m.finished {
		return
	}
	aDead := m.players[m.order[0]].effectiveHealth() <= 0
	bDead := m.players[m.order[1]].effectiveHealth() <= 0
	switch {
	case aDead && bDead:
		m.finishMatch("", true, "mutual destruction")
	case aDead:
		m.finishMatch(m.order[1], false, "hero destroyed")
	case bDead:
		m.finishMatch(m.order[0], false, "hero destroyed")
	}
}

// finishMatch transitions to GameOver. Requires m.mu held.
func (m *Match) finishMatch(winnerID string, draw bool, reason string) {
	if m.finished {
		return
	}
	m.finished = true
	m.draw = draw
	m.winnerID = winnerID
	m.phase = PhaseGameOver
	m.endedAt = time.Now()

	if m.logger != nil {
		m.logger.Info("match finished",
			zap.String("match_id", m.matchID),
			zap.String("winner_id", winnerID),
			zap.Bool("draw", draw),
			zap.String("reason", reason),
		)
	}

	m.emit(MatchEvent{
		Type:    EventGameOver,
		MatchID: m.matchID,
		Data:    GameOverData{WinnerID: winnerID, Draw: draw, Reason: reason},
	})
}

// ForfeitDisconnected resolves the match against a player whose
// reconnect grace has expired. Routed through the normal serialized
// command path as a concession on their behalf.
func (m *Match) ForfeitDisconnected(playerID string) error {
	return m.Concede(playerID)
}

// ---- helpers ----

func (m *Match) requireActive(playerID string) error {
	if m.finished {
		return newRuleError(CodeGameOver, "match is over")
	}
	if _, ok := m.players[playerID]; !ok {
		return newRuleError(CodeIllegalTarget, "player %s is not in this match", playerID)
	}
	if playerID != m.current {
		return newRuleError(CodeNotYourTurn, "it is %s's turn", m.current)
	}
	if m.phase != PhaseMain {
		return newRuleError(CodeInvalidPhase, "commands are only accepted in the main phase, not %s", m.phase)
	}
	return nil
}

func (m *Match) opponentOf(playerID string) string {
	if playerID == m.order[0] {
		return m.order[1]
	}
	return m.order[0]
}

func (m *Match) enemyHasTaunt(enemy *playerState) bool {
	for _, ci := range enemy.Battlefield {
		if ci.Taunt {
			return true
		}
	}
	return false
}

func (m *Match) findMinion(instanceID string) *CardInstance {
	for _, pid := range m.order {
		if ci := m.players[pid].minion(instanceID); ci != nil {
			return ci
		}
	}
	return nil
}

func (m *Match) ownerOfMinion(instanceID string) string {
	for _, pid := range m.order {
		if m.players[pid].minion(instanceID) != nil {
			return pid
		}
	}
	return ""
}

// boardRef builds the late-bound battlefield reference for a trigger
// owned by ownerID.
func (m *Match) boardRef(ownerID string) BoardRef {
	opp := m.opponentOf(ownerID)
	ref := BoardRef{OwnerID: ownerID, OpponentID: opp}
	for _, ci := range m.players[ownerID].Battlefield {
		ref.OwnMinions = append(ref.OwnMinions, ci.InstanceID)
	}
	for _, ci := range m.players[opp].Battlefield {
		ref.EnemyMinions = append(ref.EnemyMinions, ci.InstanceID)
	}
	return ref
}

func (m *Match) appendLog(playerID, command, cardID, targetID string) {
	m.seq++
	m.actionLog = append(m.actionLog, ActionLogEntry{
		Seq:      m.seq,
		Turn:     m.turn,
		PlayerID: playerID,
		Command:  command,
		CardID:   cardID,
		TargetID: targetID,
		At:       time.Now(),
	})
}

func (m *Match) emit(ev MatchEvent) {
	m.pendingEvents = append(m.pendingEvents, ev)
}

// emitUpdate queues a room-wide state update. The session layer builds a
// per-viewer filtered view when fanning out.
func (m *Match) emitUpdate(command, actorID string) {
	m.emit(MatchEvent{
		Type:    EventGameUpdate,
		MatchID: m.matchID,
		Data:    UpdateData{Seq: m.seq, Command: command, ActorID: actorID},
	})
}

// UpdateData is the payload of a game_update event. The authoritative
// filtered state is attached per viewer by the session layer.
type UpdateData struct {
	Seq     int    `json:"seq"`
	Command string `json:"command"`
	ActorID string `json:"actor_id"`
}

// View builds a snapshot filtered for viewerID. Spectators and opponents
// see foreign hands as counts only.
func (m *Match) View(viewerID string) MatchView {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.viewLocked(viewerID)
}

func (m *Match) viewLocked(viewerID string) MatchView {
	view := MatchView{
		MatchID:       m.matchID,
		Turn:          m.turn,
		Phase:         m.phase.String(),
		CurrentPlayer: m.current,
		Finished:      m.finished,
		WinnerID:      m.winnerID,
		Draw:          m.draw,
		Aborted:       m.aborted,
		Seq:           m.seq,
		StartedAt:     m.startedAt,
		Players:       make([]PlayerView, 0, 2),
	}
	for _, pid := range m.order {
		ps := m.players[pid]
		pv := PlayerView{
			PlayerID:       pid,
			HeroHealth:     ps.HeroHealth,
			Armor:          ps.Armor,
			Mana:           ps.Mana,
			MaxMana:        ps.MaxMana,
			Fatigue:        ps.Fatigue,
			DeckCount:      len(ps.Deck),
			HandCount:      len(ps.Hand),
			GraveyardCount: len(ps.Graveyard),
			Battlefield:    buildCardViews(ps.Battlefield),
		}
		if pid == viewerID {
			pv.Hand = buildCardViews(ps.Hand)
		}
		view.Players = append(view.Players, pv)
	}
	return view
}

// Record returns the persisted artifact for the match: players, outcome,
// seed and the full action log, sufficient for deterministic replay.
func (m *Match) Record() *MatchRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.recordLocked()
}

func (m *Match) recordLocked() *MatchRecord {
	rec := &MatchRecord{
		MatchID:   m.matchID,
		Mode:      m.mode,
		Players:   []string{m.order[0], m.order[1]},
		Decks:     map[string]string{},
		WinnerID:  m.winnerID,
		Draw:      m.draw,
		Aborted:   m.aborted,
		RNGSeed:   m.rngSeed,
		ActionLog: append([]ActionLogEntry(nil), m.actionLog...),
		StartedAt: m.startedAt,
		EndedAt:   m.endedAt,
	}
	for pid, deckID := range m.deckIDs {
		rec.Decks[pid] = deckID
	}
	return rec
}
