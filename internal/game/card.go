package game

import (
	"fmt"
)

// CardType classifies a card template.
type CardType string

const (
	CardTypeMinion    CardType = "MINION"
	CardTypeSpell     CardType = "SPELL"
	CardTypeWeapon    CardType = "WEAPON"
	CardTypeHeroPower CardType = "HERO_POWER"
)

// TriggerKind identifies the event that fires an effect.
type TriggerKind string

const (
	TriggerBattlecry   TriggerKind = "BATTLECRY"
	TriggerDeathrattle TriggerKind = "DEATHRATTLE"
	TriggerEndOfTurn   TriggerKind = "END_OF_TURN"
	TriggerTurnStart   TriggerKind = "TURN_START"
	TriggerOnDamage    TriggerKind = "ON_DAMAGE"
)

// EffectKind identifies what an effect does. Effects are a closed tagged
// variant: new behavior extends this set, cards never subclass anything.
type EffectKind string

const (
	EffectDamage  EffectKind = "DAMAGE"
	EffectHeal    EffectKind = "HEAL"
	EffectBuff    EffectKind = "BUFF"
	EffectSummon  EffectKind = "SUMMON"
	EffectDraw    EffectKind = "DRAW"
	EffectSilence EffectKind = "SILENCE"
	EffectFreeze  EffectKind = "FREEZE"
)

// TargetSelector identifies how an effect picks its targets. Selectors
// resolve against the battlefield at trigger time, not at cast time.
type TargetSelector string

const (
	SelectorSelf            TargetSelector = "SELF"
	SelectorEnemyHero       TargetSelector = "ENEMY_HERO"
	SelectorFriendlyHero    TargetSelector = "FRIENDLY_HERO"
	SelectorChosen          TargetSelector = "CHOSEN"
	SelectorRandomEnemy     TargetSelector = "RANDOM_ENEMY"
	SelectorAllMinions      TargetSelector = "ALL_MINIONS"
	SelectorAllEnemyMinions TargetSelector = "ALL_ENEMY_MINIONS"
)

// EffectDescriptor declaratively describes one effect attached to a card.
type EffectDescriptor struct {
	Trigger      TriggerKind    `json:"trigger"`
	Kind         EffectKind     `json:"kind"`
	Selector     TargetSelector `json:"selector"`
	Amount       int            `json:"amount,omitempty"`
	AttackDelta  int            `json:"attack_delta,omitempty"`
	DefenseDelta int            `json:"defense_delta,omitempty"`
	SummonCardID string         `json:"summon_card_id,omitempty"`
}

// RequiresChosenTarget reports whether the triggering command must supply
// an explicit target for this effect.
func (d EffectDescriptor) RequiresChosenTarget() bool {
	return d.Selector == SelectorChosen
}

// Card is an immutable card template.
type Card struct {
	ID           string             `json:"id"`
	Name         string             `json:"name"`
	Cost         int                `json:"cost"`
	Attack       int                `json:"attack"`
	Defense      int                `json:"defense"`
	Type         CardType           `json:"type"`
	Taunt        bool               `json:"taunt,omitempty"`
	Charge       bool               `json:"charge,omitempty"`
	Windfury     bool               `json:"windfury,omitempty"`
	DivineShield bool               `json:"divine_shield,omitempty"`
	Effects      []EffectDescriptor `json:"effects,omitempty"`
}

// CardInstance is a live copy of a card inside a match. Its stats may
// diverge from the template through buffs and silence.
type CardInstance struct {
	InstanceID      string
	CardID          string
	Name            string
	Type            CardType
	Cost            int
	Attack          int
	Defense         int
	MaxDefense      int
	Taunt           bool
	Charge          bool
	Windfury        bool
	DivineShield    bool
	Frozen          bool
	Silenced        bool
	SummoningSick   bool
	AttacksThisTurn int
	// buffAttack/buffDefense track descriptor-sourced stat changes so
	// silence can optionally revert them.
	buffAttack  int
	buffDefense int

	card *Card
}

// Template returns the immutable card template backing this instance.
func (ci *CardInstance) Template() *Card {
	return ci.card
}

// Effects returns the trigger descriptors this instance still responds to.
// A silenced instance responds to nothing.
func (ci *CardInstance) Effects() []EffectDescriptor {
	if ci.Silenced || ci.card == nil {
		return nil
	}
	return ci.card.Effects
}

// maxAttacksPerTurn returns how many attacks the instance may make in one
// turn. Windfury grants two.
func (ci *CardInstance) maxAttacksPerTurn() int {
	if ci.Windfury {
		return 2
	}
	return 1
}

// newInstance creates a fresh instance of the template. Instance ids are
// assigned by the owning match from a counter, not randomly: the action
// log references them, so a replay must reproduce them exactly.
func newInstance(card *Card, instanceID string) *CardInstance {
	return &CardInstance{
		InstanceID:   instanceID,
		CardID:       card.ID,
		Name:         card.Name,
		Type:         card.Type,
		Cost:         card.Cost,
		Attack:       card.Attack,
		Defense:      card.Defense,
		MaxDefense:   card.Defense,
		Taunt:        card.Taunt,
		Charge:       card.Charge,
		Windfury:     card.Windfury,
		DivineShield: card.DivineShield,
		card:         card,
	}
}

// CardLibrary holds the immutable card templates, loaded once at startup.
type CardLibrary struct {
	cards map[string]*Card
	order []string
}

// NewCardLibrary builds a library from the given templates.
func NewCardLibrary(cards []*Card) (*CardLibrary, error) {
	lib := &CardLibrary{
		cards: make(map[string]*Card, len(cards)),
		order: make([]string, 0, len(cards)),
	}
	for _, card := range cards {
		if card.ID == "" {
			return nil, fmt.Errorf("card %q has no id", card.Name)
		}
		if _, exists := lib.cards[card.ID]; exists {
			return nil, fmt.Errorf("duplicate card id %s", card.ID)
		}
		lib.cards[card.ID] = card
		lib.order = append(lib.order, card.ID)
	}
	return lib, nil
}

// Get returns the template with the given id.
func (l *CardLibrary) Get(id string) (*Card, bool) {
	card, ok := l.cards[id]
	return card, ok
}

// IDs returns all card ids in load order.
func (l *CardLibrary) IDs() []string {
	return append([]string(nil), l.order...)
}

// Size returns the number of templates in the library.
func (l *CardLibrary) Size() int {
	return len(l.cards)
}
