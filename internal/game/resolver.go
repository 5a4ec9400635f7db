package game

import (
	"fmt"
	"math/rand"
)

// TriggerEvent describes the event an effect reacts to.
type TriggerEvent struct {
	Trigger TriggerKind
	// SourceID is the instance whose descriptors are firing.
	SourceID string
	// OwnerID is the controller of the source.
	OwnerID string
	// ChosenTarget carries the explicit target supplied by the triggering
	// command, if any. Either a minion instance id or a player id.
	ChosenTarget string
}

// MutationKind identifies a single state change produced by the resolver.
type MutationKind string

const (
	MutationDamageHero   MutationKind = "DAMAGE_HERO"
	MutationHealHero     MutationKind = "HEAL_HERO"
	MutationDamageMinion MutationKind = "DAMAGE_MINION"
	MutationHealMinion   MutationKind = "HEAL_MINION"
	MutationBuffMinion   MutationKind = "BUFF_MINION"
	MutationSummon       MutationKind = "SUMMON"
	MutationDraw         MutationKind = "DRAW"
	MutationSilence      MutationKind = "SILENCE"
	MutationFreeze       MutationKind = "FREEZE"
)

// Mutation is one ordered state change. The resolver only describes
// changes; the state machine applies them.
type Mutation struct {
	Kind         MutationKind
	PlayerID     string
	InstanceID   string
	Amount       int
	AttackDelta  int
	DefenseDelta int
	SummonCardID string
}

// BoardRef is the read-only battlefield reference the resolver resolves
// selectors against. Selectors bind late: the slices reflect the board at
// trigger time.
type BoardRef struct {
	OwnerID      string
	OpponentID   string
	OwnMinions   []string
	EnemyMinions []string
}

// EffectResolver turns trigger events into ordered mutations. It is pure:
// no I/O and no retained state; random selections draw from the match's
// seeded RNG stream passed by the caller.
type EffectResolver struct{}

// NewEffectResolver creates a resolver.
func NewEffectResolver() *EffectResolver {
	return &EffectResolver{}
}

// Resolve evaluates the descriptors attached to the event source against
// the board reference and returns the mutations they produce, in
// descriptor order. Descriptors whose trigger does not match the event
// are skipped.
func (r *EffectResolver) Resolve(board BoardRef, effects []EffectDescriptor, ev TriggerEvent, rng *rand.Rand) ([]Mutation, error) {
	var out []Mutation
	for _, desc := range effects {
		if desc.Trigger != ev.Trigger {
			continue
		}
		muts, err := r.resolveOne(board, desc, ev, rng)
		if err != nil {
			return nil, err
		}
		out = append(out, muts...)
	}
	return out, nil
}

// ValidateChosenTarget checks that the command supplied a target whenever
// a descriptor firing for the trigger requires one.
func (r *EffectResolver) ValidateChosenTarget(effects []EffectDescriptor, trigger TriggerKind, chosen string) error {
	for _, desc := range effects {
		if desc.Trigger != trigger {
			continue
		}
		if desc.RequiresChosenTarget() && chosen == "" {
			return newRuleError(CodeIllegalTarget, "effect requires an explicit target")
		}
	}
	return nil
}

func (r *EffectResolver) resolveOne(board BoardRef, desc EffectDescriptor, ev TriggerEvent, rng *rand.Rand) ([]Mutation, error) {
	targets, heroTargets := r.selectTargets(board, desc.Selector, ev, rng)

	var out []Mutation
	switch desc.Kind {
	case EffectDamage:
		for _, pid := range heroTargets {
			out = append(out, Mutation{Kind: MutationDamageHero, PlayerID: pid, Amount: desc.Amount})
		}
		for _, id := range targets {
			out = append(out, Mutation{Kind: MutationDamageMinion, InstanceID: id, Amount: desc.Amount})
		}
	case EffectHeal:
		for _, pid := range heroTargets {
			out = append(out, Mutation{Kind: MutationHealHero, PlayerID: pid, Amount: desc.Amount})
		}
		for _, id := range targets {
			out = append(out, Mutation{Kind: MutationHealMinion, InstanceID: id, Amount: desc.Amount})
		}
	case EffectBuff:
		for _, id := range targets {
			out = append(out, Mutation{
				Kind:         MutationBuffMinion,
				InstanceID:   id,
				AttackDelta:  desc.AttackDelta,
				DefenseDelta: desc.DefenseDelta,
			})
		}
	case EffectSummon:
		if desc.SummonCardID == "" {
			return nil, fmt.Errorf("summon effect on %s has no card id", ev.SourceID)
		}
		out = append(out, Mutation{Kind: MutationSummon, PlayerID: ev.OwnerID, SummonCardID: desc.SummonCardID})
	case EffectDraw:
		out = append(out, Mutation{Kind: MutationDraw, PlayerID: ev.OwnerID, Amount: desc.Amount})
	case EffectSilence:
		for _, id := range targets {
			out = append(out, Mutation{Kind: MutationSilence, InstanceID: id})
		}
	case EffectFreeze:
		for _, id := range targets {
			out = append(out, Mutation{Kind: MutationFreeze, InstanceID: id})
		}
	default:
		return nil, fmt.Errorf("unknown effect kind %q", desc.Kind)
	}
	return out, nil
}

// selectTargets resolves a selector into minion instance ids and hero
// player ids. An empty result is legal: an effect with no valid targets
// simply does nothing.
func (r *EffectResolver) selectTargets(board BoardRef, sel TargetSelector, ev TriggerEvent, rng *rand.Rand) (minions []string, heroes []string) {
	switch sel {
	case SelectorSelf:
		return []string{ev.SourceID}, nil
	case SelectorEnemyHero:
		return nil, []string{board.OpponentID}
	case SelectorFriendlyHero:
		return nil, []string{board.OwnerID}
	case SelectorChosen:
		if ev.ChosenTarget == "" {
			return nil, nil
		}
		if ev.ChosenTarget == board.OwnerID || ev.ChosenTarget == board.OpponentID {
			return nil, []string{ev.ChosenTarget}
		}
		return []string{ev.ChosenTarget}, nil
	case SelectorRandomEnemy:
		// Candidates are every enemy minion plus the enemy hero.
		n := len(board.EnemyMinions) + 1
		pick := rng.Intn(n)
		if pick == len(board.EnemyMinions) {
			return nil, []string{board.OpponentID}
		}
		return []string{board.EnemyMinions[pick]}, nil
	case SelectorAllMinions:
		all := append(append([]string(nil), board.OwnMinions...), board.EnemyMinions...)
		return all, nil
	case SelectorAllEnemyMinions:
		return append([]string(nil), board.EnemyMinions...), nil
	}
	return nil, nil
}
