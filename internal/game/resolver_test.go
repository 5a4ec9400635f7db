package game

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testBoard() BoardRef {
	return BoardRef{
		OwnerID:      "alice",
		OpponentID:   "bob",
		OwnMinions:   []string{"i-1", "i-2"},
		EnemyMinions: []string{"i-3", "i-4", "i-5"},
	}
}

func TestResolveChosenHeroDamage(t *testing.T) {
	r := NewEffectResolver()
	effects := []EffectDescriptor{
		{Trigger: TriggerBattlecry, Kind: EffectDamage, Selector: SelectorChosen, Amount: 4},
	}
	ev := TriggerEvent{Trigger: TriggerBattlecry, SourceID: "i-9", OwnerID: "alice", ChosenTarget: "bob"}

	muts, err := r.Resolve(testBoard(), effects, ev, rand.New(rand.NewSource(1)))
	require.NoError(t, err)
	require.Len(t, muts, 1)
	assert.Equal(t, MutationDamageHero, muts[0].Kind)
	assert.Equal(t, "bob", muts[0].PlayerID)
	assert.Equal(t, 4, muts[0].Amount)
}

func TestResolveChosenMinion(t *testing.T) {
	r := NewEffectResolver()
	effects := []EffectDescriptor{
		{Trigger: TriggerBattlecry, Kind: EffectBuff, Selector: SelectorChosen, AttackDelta: 3},
	}
	ev := TriggerEvent{Trigger: TriggerBattlecry, SourceID: "i-9", OwnerID: "alice", ChosenTarget: "i-3"}

	muts, err := r.Resolve(testBoard(), effects, ev, rand.New(rand.NewSource(1)))
	require.NoError(t, err)
	require.Len(t, muts, 1)
	assert.Equal(t, MutationBuffMinion, muts[0].Kind)
	assert.Equal(t, "i-3", muts[0].InstanceID)
	assert.Equal(t, 3, muts[0].AttackDelta)
}

func TestResolveSkipsMismatchedTriggers(t *testing.T) {
	r := NewEffectResolver()
	effects := []EffectDescriptor{
		{Trigger: TriggerDeathrattle, Kind: EffectDraw, Selector: SelectorSelf, Amount: 1},
	}
	ev := TriggerEvent{Trigger: TriggerBattlecry, SourceID: "i-9", OwnerID: "alice"}

	muts, err := r.Resolve(testBoard(), effects, ev, rand.New(rand.NewSource(1)))
	require.NoError(t, err)
	assert.Empty(t, muts)
}

func TestResolveAllEnemyMinions(t *testing.T) {
	r := NewEffectResolver()
	effects := []EffectDescriptor{
		{Trigger: TriggerBattlecry, Kind: EffectDamage, Selector: SelectorAllEnemyMinions, Amount: 4},
	}
	ev := TriggerEvent{Trigger: TriggerBattlecry, SourceID: "i-9", OwnerID: "alice"}

	muts, err := r.Resolve(testBoard(), effects, ev, rand.New(rand.NewSource(1)))
	require.NoError(t, err)
	require.Len(t, muts, 3)
	ids := []string{muts[0].InstanceID, muts[1].InstanceID, muts[2].InstanceID}
	assert.Equal(t, []string{"i-3", "i-4", "i-5"}, ids)
}

func TestResolveRandomEnemyIsSeedDeterministic(t *testing.T) {
	r := NewEffectResolver()
	effects := []EffectDescriptor{
		{Trigger: TriggerBattlecry, Kind: EffectDamage, Selector: SelectorRandomEnemy, Amount: 2},
	}
	ev := TriggerEvent{Trigger: TriggerBattlecry, SourceID: "i-9", OwnerID: "alice"}

	first, err := r.Resolve(testBoard(), effects, ev, rand.New(rand.NewSource(5)))
	require.NoError(t, err)
	second, err := r.Resolve(testBoard(), effects, ev, rand.New(rand.NewSource(5)))
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestResolveRandomEnemyEmptyBoardHitsHero(t *testing.T) {
	r := NewEffectResolver()
	board := BoardRef{OwnerID: "alice", OpponentID: "bob"}
	effects := []EffectDescriptor{
		{Trigger: TriggerBattlecry, Kind: EffectDamage, Selector: SelectorRandomEnemy, Amount: 2},
	}
	ev := TriggerEvent{Trigger: TriggerBattlecry, SourceID: "i-9", OwnerID: "alice"}

	muts, err := r.Resolve(board, effects, ev, rand.New(rand.NewSource(1)))
	require.NoError(t, err)
	require.Len(t, muts, 1)
	assert.Equal(t, MutationDamageHero, muts[0].Kind)
	assert.Equal(t, "bob", muts[0].PlayerID)
}

func TestResolveSummonRequiresCardID(t *testing.T) {
	r := NewEffectResolver()
	effects := []EffectDescriptor{
		{Trigger: TriggerDeathrattle, Kind: EffectSummon, Selector: SelectorSelf},
	}
	ev := TriggerEvent{Trigger: TriggerDeathrattle, SourceID: "i-9", OwnerID: "alice"}

	_, err := r.Resolve(testBoard(), effects, ev, rand.New(rand.NewSource(1)))
	require.Error(t, err)
}

func TestValidateChosenTarget(t *testing.T) {
	r := NewEffectResolver()
	chosen := []EffectDescriptor{
		{Trigger: TriggerBattlecry, Kind: EffectDamage, Selector: SelectorChosen, Amount: 1},
	}

	err := r.ValidateChosenTarget(chosen, TriggerBattlecry, "")
	re, ok := AsRuleError(err)
	require.True(t, ok)
	assert.Equal(t, CodeIllegalTarget, re.Code)

	assert.NoError(t, r.ValidateChosenTarget(chosen, TriggerBattlecry, "i-3"))

	// A deathrattle's chosen selector never blocks playing the card.
	assert.NoError(t, r.ValidateChosenTarget(chosen, TriggerDeathrattle, ""))
}
