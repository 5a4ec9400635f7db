package game

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.uber.org/zap"
)

func testLibrary(t *testing.T) *CardLibrary {
	t.Helper()
	lib, err := NewCardLibrary(BaseSet())
	require.NoError(t, err)
	return lib
}

func newTestMatch(t *testing.T, rules Rules, seed int64) *Match {
	t.Helper()
	m, err := NewMatch(MatchConfig{
		MatchID: "m-test",
		Mode:    "casual",
		Rules:   rules,
		Library: testLibrary(t),
		Seats: [2]Seat{
			{PlayerID: "alice", DeckID: "standard"},
			{PlayerID: "bob", DeckID: "standard"},
		},
		Seed:   seed,
		Logger: zap.NewNop(),
	})
	require.NoError(t, err)
	return m
}

// giveCard puts a fresh instance of cardID into the player's hand,
// bypassing the deck. Only for tests that do not replay.
func giveCard(t *testing.T, m *Match, playerID, cardID string) *CardInstance {
	t.Helper()
	card, ok := m.library.Get(cardID)
	require.True(t, ok, "unknown card %s", cardID)
	ci := m.newInstance(card)
	m.players[playerID].Hand = append(m.players[playerID].Hand, ci)
	return ci
}

// putMinion places a battle-ready instance of cardID on the player's
// battlefield.
func putMinion(t *testing.T, m *Match, playerID, cardID string) *CardInstance {
	t.Helper()
	card, ok := m.library.Get(cardID)
	require.True(t, ok, "unknown card %s", cardID)
	ci := m.newInstance(card)
	ci.SummoningSick = false
	m.players[playerID].Battlefield = append(m.players[playerID].Battlefield, ci)
	return ci
}

// endTurns alternates end-turn commands n times starting from the
// current player.
func endTurns(t *testing.T, m *Match, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		require.NoError(t, m.handleEndTurn(m.current))
	}
}

func TestNewMatchOpeningState(t *testing.T) {
	m := newTestMatch(t, DefaultRules(), 42)

	alice := m.players["alice"]
	bob := m.players["bob"]

	assert.Equal(t, 30, alice.HeroHealth)
	assert.Equal(t, 30, bob.HeroHealth)

	// First seat: 4 opening cards plus the turn draw. Second seat: 5
	// opening cards, no draw until their turn starts.
	assert.Len(t, alice.Hand, 5)
	assert.Len(t, bob.Hand, 5)

	assert.Equal(t, "alice", m.current)
	assert.Equal(t, 1, m.turn)
	assert.Equal(t, PhaseMain, m.phase)
	assert.Equal(t, 1, alice.Mana)
	assert.Equal(t, 1, alice.MaxMana)
	assert.Equal(t, 0, bob.MaxMana)
}

func TestManaRampAndFirebolt(t *testing.T) {
	m := newTestMatch(t, DefaultRules(), 42)

	// Three full rounds bring alice to turn 4 with 4 mana.
	endTurns(t, m, 6)
	require.Equal(t, "alice", m.current)
	require.Equal(t, 4, m.turn)

	alice := m.players["alice"]
	require.Equal(t, 4, alice.Mana)
	require.Equal(t, 4, alice.MaxMana)

	bolt := giveCard(t, m, "alice", "firebolt")
	require.NoError(t, m.handlePlayCard("alice", bolt.InstanceID, "bob"))

	assert.Equal(t, 26, m.players["bob"].HeroHealth)
	assert.Equal(t, 0, alice.Mana)
	assert.Equal(t, bolt, alice.Graveyard[len(alice.Graveyard)-1])
}

func TestManaNeverExceedsCap(t *testing.T) {
	rules := DefaultRules()
	m := newTestMatch(t, rules, 42)

	// Far past the ramp: max mana stays pinned at the cap.
	endTurns(t, m, 2*rules.MaxMana+4)
	for _, pid := range m.order {
		assert.LessOrEqual(t, m.players[pid].MaxMana, rules.MaxMana)
	}
}

func TestPlayCardRejections(t *testing.T) {
	m := newTestMatch(t, DefaultRules(), 42)
	alice := m.players["alice"]
	handBefore := len(alice.Hand)
	manaBefore := alice.Mana
	logBefore := len(m.actionLog)

	t.Run("not your turn", func(t *testing.T) {
		card := giveCard(t, m, "bob", "wisp")
		err := m.handlePlayCard("bob", card.InstanceID, "")
		re, ok := AsRuleError(err)
		require.True(t, ok)
		assert.Equal(t, CodeNotYourTurn, re.Code)
	})

	t.Run("card not in hand", func(t *testing.T) {
		err := m.handlePlayCard("alice", "i-9999", "")
		re, ok := AsRuleError(err)
		require.True(t, ok)
		assert.Equal(t, CodeCardNotInHand, re.Code)
	})

	t.Run("insufficient mana", func(t *testing.T) {
		card := giveCard(t, m, "alice", "flamestrike")
		err := m.handlePlayCard("alice", card.InstanceID, "")
		re, ok := AsRuleError(err)
		require.True(t, ok)
		assert.Equal(t, CodeInsufficientMana, re.Code)
		alice.Hand = removeInstance(alice.Hand, card.InstanceID)
	})

	t.Run("board full", func(t *testing.T) {
		for i := 0; i < m.rules.BattlefieldLimit; i++ {
			putMinion(t, m, "alice", "wisp")
		}
		card := giveCard(t, m, "alice", "wisp")
		err := m.handlePlayCard("alice", card.InstanceID, "")
		re, ok := AsRuleError(err)
		require.True(t, ok)
		assert.Equal(t, CodeBoardFull, re.Code)
		alice.Hand = removeInstance(alice.Hand, card.InstanceID)
		alice.Battlefield = nil
	})

	t.Run("missing required target", func(t *testing.T) {
		card := giveCard(t, m, "alice", "blessing_of_might")
		err := m.handlePlayCard("alice", card.InstanceID, "")
		re, ok := AsRuleError(err)
		require.True(t, ok)
		assert.Equal(t, CodeIllegalTarget, re.Code)
		alice.Hand = removeInstance(alice.Hand, card.InstanceID)
	})

	// Rejections must not mutate state or the action log.
	assert.Equal(t, handBefore, len(alice.Hand))
	assert.Equal(t, manaBefore, alice.Mana)
	assert.Equal(t, logBefore, len(m.actionLog))
}

func TestSummoningSickness(t *testing.T) {
	m := newTestMatch(t, DefaultRules(), 42)
	alice := m.players["alice"]
	alice.Mana = 10

	card := giveCard(t, m, "alice", "river_croc")
	require.NoError(t, m.handlePlayCard("alice", card.InstanceID, ""))
	require.True(t, card.SummoningSick)

	err := m.handleAttack("alice", card.InstanceID, "bob")
	re, ok := AsRuleError(err)
	require.True(t, ok)
	assert.Equal(t, CodeIllegalTarget, re.Code)

	// A full round later the minion is ready.
	endTurns(t, m, 2)
	require.NoError(t, m.handleAttack("alice", card.InstanceID, "bob"))
	assert.Equal(t, 28, m.players["bob"].HeroHealth)
}

func TestChargeAttacksImmediately(t *testing.T) {
	m := newTestMatch(t, DefaultRules(), 42)
	m.players["alice"].Mana = 10

	card := giveCard(t, m, "alice", "bluegill_raider")
	require.NoError(t, m.handlePlayCard("alice", card.InstanceID, ""))
	require.False(t, card.SummoningSick)

	require.NoError(t, m.handleAttack("alice", card.InstanceID, "bob"))
	assert.Equal(t, 28, m.players["bob"].HeroHealth)
}

func TestTauntWall(t *testing.T) {
	m := newTestMatch(t, DefaultRules(), 42)

	attacker := putMinion(t, m, "alice", "river_croc")
	taunt := putMinion(t, m, "bob", "ironfur_grizzly")
	bystander := putMinion(t, m, "bob", "wisp")

	err := m.handleAttack("alice", attacker.InstanceID, "bob")
	re, ok := AsRuleError(err)
	require.True(t, ok)
	assert.Equal(t, CodeIllegalTarget, re.Code)

	err = m.handleAttack("alice", attacker.InstanceID, bystander.InstanceID)
	re, ok = AsRuleError(err)
	require.True(t, ok)
	assert.Equal(t, CodeIllegalTarget, re.Code)

	require.NoError(t, m.handleAttack("alice", attacker.InstanceID, taunt.InstanceID))
}

func TestWindfuryAttacksTwice(t *testing.T) {
	m := newTestMatch(t, DefaultRules(), 42)
	harpy := putMinion(t, m, "alice", "windspeaker_harpy")

	require.NoError(t, m.handleAttack("alice", harpy.InstanceID, "bob"))
	require.NoError(t, m.handleAttack("alice", harpy.InstanceID, "bob"))
	assert.Equal(t, 22, m.players["bob"].HeroHealth)

	err := m.handleAttack("alice", harpy.InstanceID, "bob")
	re, ok := AsRuleError(err)
	require.True(t, ok)
	assert.Equal(t, CodeIllegalTarget, re.Code)
}

func TestFrozenCannotAttack(t *testing.T) {
	m := newTestMatch(t, DefaultRules(), 42)
	attacker := putMinion(t, m, "alice", "river_croc")
	attacker.Frozen = true

	err := m.handleAttack("alice", attacker.InstanceID, "bob")
	re, ok := AsRuleError(err)
	require.True(t, ok)
	assert.Equal(t, CodeIllegalTarget, re.Code)
}

func TestSimultaneousCombatDamage(t *testing.T) {
	m := newTestMatch(t, DefaultRules(), 42)

	// 2/1 into 2/3: both sides take damage before deaths resolve, so the
	// hoarder dies even though the croc survives.
	attacker := putMinion(t, m, "alice", "loot_hoarder")
	defender := putMinion(t, m, "bob", "river_croc")

	handBefore := len(m.players["alice"].Hand)
	require.NoError(t, m.handleAttack("alice", attacker.InstanceID, defender.InstanceID))

	assert.Empty(t, m.players["alice"].Battlefield)
	assert.Equal(t, 1, defender.Defense)
	// Loot Hoarder's deathrattle drew a card.
	assert.Equal(t, handBefore+1, len(m.players["alice"].Hand))
}

func TestDivineShieldAbsorbsOneInstance(t *testing.T) {
	m := newTestMatch(t, DefaultRules(), 42)

	knight := putMinion(t, m, "bob", "silver_knight")
	attacker := putMinion(t, m, "alice", "sen_jin")

	// First hit pops the shield without touching defense.
	require.NoError(t, m.handleAttack("alice", attacker.InstanceID, knight.InstanceID))
	assert.False(t, knight.DivineShield)
	assert.Equal(t, 2, knight.Defense)

	endTurns(t, m, 2)

	// Second hit lands in full.
	require.NoError(t, m.handleAttack("alice", attacker.InstanceID, knight.InstanceID))
	assert.Empty(t, m.players["bob"].Battlefield)
}

func TestDeathrattleSummon(t *testing.T) {
	m := newTestMatch(t, DefaultRules(), 42)

	golem := putMinion(t, m, "bob", "harvest_golem")
	attacker := putMinion(t, m, "alice", "sen_jin")

	require.NoError(t, m.handleAttack("alice", attacker.InstanceID, golem.InstanceID))

	bobField := m.players["bob"].Battlefield
	require.Len(t, bobField, 1)
	assert.Equal(t, "damaged_golem", bobField[0].CardID)
	assert.True(t, bobField[0].SummoningSick)
}

func TestEndOfTurnSummon(t *testing.T) {
	m := newTestMatch(t, DefaultRules(), 42)
	putMinion(t, m, "alice", "imp_master")

	require.NoError(t, m.handleEndTurn("alice"))

	field := m.players["alice"].Battlefield
	require.Len(t, field, 2)
	assert.Equal(t, "imp", field[1].CardID)
}

func TestSummonSwallowedOnFullBoard(t *testing.T) {
	m := newTestMatch(t, DefaultRules(), 42)
	putMinion(t, m, "alice", "imp_master")
	for i := 0; i < m.rules.BattlefieldLimit-1; i++ {
		putMinion(t, m, "alice", "wisp")
	}

	require.NoError(t, m.handleEndTurn("alice"))
	assert.Len(t, m.players["alice"].Battlefield, m.rules.BattlefieldLimit)
}

func TestFatigueEscalates(t *testing.T) {
	m := newTestMatch(t, DefaultRules(), 42)
	alice := m.players["alice"]
	alice.Deck = nil

	m.drawCards(alice, 3)
	assert.Equal(t, 3, alice.Fatigue)
	assert.Equal(t, 30-(1+2+3), alice.HeroHealth)
}

func TestHandBurnOnOverflow(t *testing.T) {
	m := newTestMatch(t, DefaultRules(), 42)
	alice := m.players["alice"]
	for len(alice.Hand) < m.rules.HandLimit {
		giveCard(t, m, "alice", "wisp")
	}
	graveBefore := len(alice.Graveyard)
	deckBefore := len(alice.Deck)

	m.drawCards(alice, 1)

	assert.Len(t, alice.Hand, m.rules.HandLimit)
	assert.Equal(t, graveBefore+1, len(alice.Graveyard))
	assert.Equal(t, deckBefore-1, len(alice.Deck))
}

func TestMutualDestructionIsDraw(t *testing.T) {
	m := newTestMatch(t, DefaultRules(), 42)
	m.players["alice"].HeroHealth = 0
	m.players["bob"].HeroHealth = 0

	m.checkWinCondition()

	assert.True(t, m.finished)
	assert.True(t, m.draw)
	assert.Empty(t, m.winnerID)
}

func TestArmorAbsorbsFirst(t *testing.T) {
	m := newTestMatch(t, DefaultRules(), 42)
	bob := m.players["bob"]
	bob.Armor = 3

	attacker := putMinion(t, m, "alice", "windspeaker_harpy")
	require.NoError(t, m.handleAttack("alice", attacker.InstanceID, "bob"))

	assert.Equal(t, 0, bob.Armor)
	assert.Equal(t, 29, bob.HeroHealth)
}

func TestConcede(t *testing.T) {
	m := newTestMatch(t, DefaultRules(), 42)

	// Conceding out of turn is always legal.
	require.NoError(t, m.handleConcede("bob"))

	assert.True(t, m.finished)
	assert.Equal(t, "alice", m.winnerID)
	assert.False(t, m.draw)

	err := m.handleConcede("alice")
	re, ok := AsRuleError(err)
	require.True(t, ok)
	assert.Equal(t, CodeGameOver, re.Code)
}

func TestCommandsRejectedAfterGameOver(t *testing.T) {
	m := newTestMatch(t, DefaultRules(), 42)
	card := giveCard(t, m, "alice", "wisp")
	require.NoError(t, m.handleConcede("alice"))

	err := m.handlePlayCard("alice", card.InstanceID, "")
	re, ok := AsRuleError(err)
	require.True(t, ok)
	assert.Equal(t, CodeGameOver, re.Code)

	err = m.handleEndTurn("alice")
	re, ok = AsRuleError(err)
	require.True(t, ok)
	assert.Equal(t, CodeGameOver, re.Code)
}

func TestSilenceStripsKeywords(t *testing.T) {
	m := newTestMatch(t, DefaultRules(), 42)
	m.players["alice"].Mana = 10

	taunt := putMinion(t, m, "bob", "ironfur_grizzly")
	shard := giveCard(t, m, "alice", "silence_shard")
	require.NoError(t, m.handlePlayCard("alice", shard.InstanceID, taunt.InstanceID))

	assert.True(t, taunt.Silenced)
	assert.False(t, taunt.Taunt)
	assert.Empty(t, taunt.Effects())

	// With the taunt silenced the hero is attackable.
	attacker := putMinion(t, m, "alice", "river_croc")
	require.NoError(t, m.handleAttack("alice", attacker.InstanceID, "bob"))
}

func TestSilenceBuffReversion(t *testing.T) {
	rules := DefaultRules()
	rules.SilenceStripsBuffs = true
	m := newTestMatch(t, rules, 42)
	m.players["alice"].Mana = 10

	target := putMinion(t, m, "alice", "wisp")
	buff := giveCard(t, m, "alice", "blessing_of_might")
	require.NoError(t, m.handlePlayCard("alice", buff.InstanceID, target.InstanceID))
	require.Equal(t, 4, target.Attack)

	shard := giveCard(t, m, "alice", "silence_shard")
	require.NoError(t, m.handlePlayCard("alice", shard.InstanceID, target.InstanceID))

	assert.Equal(t, 1, target.Attack)
	assert.Equal(t, 1, target.Defense)
}

func TestFrostNovaFreezesEnemyBoard(t *testing.T) {
	m := newTestMatch(t, DefaultRules(), 42)
	m.players["alice"].Mana = 10

	a := putMinion(t, m, "bob", "river_croc")
	b := putMinion(t, m, "bob", "wisp")
	mine := putMinion(t, m, "alice", "wisp")

	nova := giveCard(t, m, "alice", "frost_nova")
	require.NoError(t, m.handlePlayCard("alice", nova.InstanceID, ""))

	assert.True(t, a.Frozen)
	assert.True(t, b.Frozen)
	assert.False(t, mine.Frozen)

	// The freeze must cost bob his next attack window: still frozen on
	// his own turn, the attack is rejected.
	endTurns(t, m, 1)
	require.Equal(t, "bob", m.current)
	require.True(t, a.Frozen)
	err := m.handleAttack("bob", a.InstanceID, "alice")
	require.Error(t, err)
	re, ok := AsRuleError(err)
	require.True(t, ok)
	assert.Equal(t, CodeIllegalTarget, re.Code)

	// Thaw happens at the owner's turn end, so the following turn the
	// minion attacks normally.
	endTurns(t, m, 2)
	require.Equal(t, "bob", m.current)
	assert.False(t, a.Frozen)
	require.NoError(t, m.handleAttack("bob", a.InstanceID, "alice"))
}

func TestFlamestrikeClearsBoard(t *testing.T) {
	m := newTestMatch(t, DefaultRules(), 42)
	m.players["alice"].Mana = 10

	putMinion(t, m, "bob", "river_croc")
	putMinion(t, m, "bob", "wisp")
	survivor := putMinion(t, m, "bob", "sen_jin")

	fs := giveCard(t, m, "alice", "flamestrike")
	require.NoError(t, m.handlePlayCard("alice", fs.InstanceID, ""))

	bobField := m.players["bob"].Battlefield
	require.Len(t, bobField, 1)
	assert.Equal(t, survivor.InstanceID, bobField[0].InstanceID)
	assert.Equal(t, 1, survivor.Defense)
}

func TestHealCapsAtStartingHealth(t *testing.T) {
	m := newTestMatch(t, DefaultRules(), 42)
	alice := m.players["alice"]
	alice.HeroHealth = 27
	alice.Mana = 10

	heal := giveCard(t, m, "alice", "healing_touch")
	require.NoError(t, m.handlePlayCard("alice", heal.InstanceID, ""))

	assert.Equal(t, 30, alice.HeroHealth)
}

func TestViewFiltersHiddenInformation(t *testing.T) {
	m := newTestMatch(t, DefaultRules(), 42)

	view := m.View("alice")
	require.Len(t, view.Players, 2)
	for _, pv := range view.Players {
		if pv.PlayerID == "alice" {
			assert.NotEmpty(t, pv.Hand)
			assert.Equal(t, len(pv.Hand), pv.HandCount)
		} else {
			assert.Empty(t, pv.Hand)
			assert.Positive(t, pv.HandCount)
		}
	}

	// Spectators see no hands at all.
	watcher := m.View("")
	for _, pv := range watcher.Players {
		assert.Empty(t, pv.Hand)
	}
}

func TestTurnTimerEndsIdleTurn(t *testing.T) {
	rules := DefaultRules()
	rules.TurnTime = 100 * time.Millisecond
	m := newTestMatch(t, rules, 42)
	m.Start()
	defer m.Stop()

	require.Eventually(t, func() bool {
		return m.View("").Seq >= 1
	}, 3*time.Second, 20*time.Millisecond, "timer never ended the idle turn")
}

func TestPracticeOpponentAutoPasses(t *testing.T) {
	m, err := NewMatch(MatchConfig{
		MatchID: "m-practice",
		Mode:    "practice",
		Rules:   DefaultRules(),
		Library: testLibrary(t),
		Seats: [2]Seat{
			{PlayerID: "alice", DeckID: "standard"},
			{PlayerID: "ai:bot", DeckID: "standard", AI: true},
		},
		Seed:   42,
		Logger: zap.NewNop(),
	})
	require.NoError(t, err)

	// Ending the human turn runs the synthetic opponent's whole turn and
	// hands play straight back.
	require.NoError(t, m.handleEndTurn("alice"))
	assert.Equal(t, "alice", m.current)
	assert.Equal(t, 2, m.turn)
}

func TestEffectChainDepthBound(t *testing.T) {
	rules := DefaultRules()
	rules.EffectChainDepth = 2
	m := newTestMatch(t, rules, 42)

	// Three imp masters queue three end-of-turn triggers; the cap halts
	// the chain without failing the command.
	putMinion(t, m, "alice", "imp_master")
	putMinion(t, m, "alice", "imp_master")
	putMinion(t, m, "alice", "imp_master")

	require.NoError(t, m.handleEndTurn("alice"))
	assert.Equal(t, 1, m.anomalies)
	assert.Len(t, m.players["alice"].Battlefield, 5)
}

func TestWinCheckRunsPerTriggerStep(t *testing.T) {
	cards := append(BaseSet(),
		&Card{
			ID: "doom_chime", Name: "Doom Chime", Cost: 2, Attack: 1, Defense: 4, Type: CardTypeMinion,
			Effects: []EffectDescriptor{
				{Trigger: TriggerEndOfTurn, Kind: EffectDamage, Selector: SelectorEnemyHero, Amount: 3},
			},
		},
		&Card{
			ID: "mercy_chime", Name: "Mercy Chime", Cost: 2, Attack: 1, Defense: 4, Type: CardTypeMinion,
			Effects: []EffectDescriptor{
				{Trigger: TriggerEndOfTurn, Kind: EffectHeal, Selector: SelectorEnemyHero, Amount: 10},
			},
		},
	)
	lib, err := NewCardLibrary(cards)
	require.NoError(t, err)

	m, err := NewMatch(MatchConfig{
		MatchID: "m-test",
		Mode:    "casual",
		Rules:   DefaultRules(),
		Library: lib,
		Seats: [2]Seat{
			{PlayerID: "alice", DeckID: "standard"},
			{PlayerID: "bob", DeckID: "standard"},
		},
		Seed:   42,
		Logger: zap.NewNop(),
	})
	require.NoError(t, err)

	putMinion(t, m, "alice", "doom_chime")
	putMinion(t, m, "alice", "mercy_chime")
	m.players["bob"].HeroHealth = 3

	// The damage trigger kills bob in its own queue step; the heal queued
	// behind it must not resurrect him.
	require.NoError(t, m.handleEndTurn("alice"))
	require.True(t, m.finished)
	assert.Equal(t, "alice", m.winnerID)
	assert.LessOrEqual(t, m.players["bob"].effectiveHealth(), 0)
}
