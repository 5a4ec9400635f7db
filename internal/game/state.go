package game

import (
	"time"
)

// Phase represents the match state machine phases. The match loops
// TurnStart -> Main -> Combat -> TurnEnd between the two player contexts
// until GameOver.
type Phase int

const (
	PhaseSetup Phase = iota
	PhaseTurnStart
	PhaseMain
	PhaseCombat
	PhaseTurnEnd
	PhaseGameOver
)

var phaseNames = map[Phase]string{
	PhaseSetup:     "SETUP",
	PhaseTurnStart: "PLAYER_TURN_START",
	PhaseMain:      "MAIN_PHASE",
	PhaseCombat:    "COMBAT_RESOLUTION",
	PhaseTurnEnd:   "TURN_END",
	PhaseGameOver:  "GAME_OVER",
}

func (p Phase) String() string {
	if name, ok := phaseNames[p]; ok {
		return name
	}
	return "UNKNOWN"
}

// Rules holds the tunable match rules.
type Rules struct {
	StartingHealth     int
	StartingHandSize   int
	MaxMana            int
	BattlefieldLimit   int
	HandLimit          int
	EffectChainDepth   int
	TurnTime           time.Duration
	SilenceStripsBuffs bool
}

// DefaultRules returns the standard rule set.
func DefaultRules() Rules {
	return Rules{
		StartingHealth:   30,
		StartingHandSize: 4,
		MaxMana:          10,
		BattlefieldLimit: 7,
		HandLimit:        10,
		EffectChainDepth: 16,
		TurnTime:         90 * time.Second,
	}
}

// ActionLogEntry records one accepted command. The ordered log plus the
// match seed is sufficient to deterministically replay the entire match.
type ActionLogEntry struct {
	Seq      int       `json:"seq"`
	Turn     int       `json:"turn"`
	PlayerID string    `json:"player_id"`
	Command  string    `json:"command"`
	CardID   string    `json:"card_id,omitempty"`
	TargetID string    `json:"target_id,omitempty"`
	At       time.Time `json:"at"`
}

// playerState is one player's side of a match. Mutated only by the
// match's command worker.
type playerState struct {
	PlayerID    string
	HeroHealth  int
	Armor       int
	Mana        int
	MaxMana     int
	Fatigue     int
	Hand        []*CardInstance
	Battlefield []*CardInstance
	Deck        []*CardInstance
	Graveyard   []*CardInstance
}

// effectiveHealth is health with armor counted first; a hero is dead when
// this reaches zero.
func (p *playerState) effectiveHealth() int {
	return p.HeroHealth + p.Armor
}

// damageHero applies damage through armor first, then health.
func (p *playerState) damageHero(amount int) {
	if amount <= 0 {
		return
	}
	absorbed := amount
	if absorbed > p.Armor {
		absorbed = p.Armor
	}
	p.Armor -= absorbed
	p.HeroHealth -= amount - absorbed
}

// healHero heals up to the starting-health cap.
func (p *playerState) healHero(amount, cap int) {
	p.HeroHealth += amount
	if p.HeroHealth > cap {
		p.HeroHealth = cap
	}
}

// minion returns the battlefield instance with the given id.
func (p *playerState) minion(instanceID string) *CardInstance {
	for _, ci := range p.Battlefield {
		if ci.InstanceID == instanceID {
			return ci
		}
	}
	return nil
}

// handCard returns the hand instance with the given id and its index.
func (p *playerState) handCard(instanceID string) (*CardInstance, int) {
	for i, ci := range p.Hand {
		if ci.InstanceID == instanceID {
			return ci, i
		}
	}
	return nil, -1
}

func removeInstance(cards []*CardInstance, instanceID string) []*CardInstance {
	for i, ci := range cards {
		if ci.InstanceID == instanceID {
			return append(cards[:i], cards[i+1:]...)
		}
	}
	return cards
}
