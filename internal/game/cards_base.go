package game

// BaseSet returns the built-in card set. Decks are drawn from these
// templates; a deck id selects a deterministic composition so a match can
// be replayed from its seed and action log alone.
func BaseSet() []*Card {
	return []*Card{
		{ID: "wisp", Name: "Wisp", Cost: 0, Attack: 1, Defense: 1, Type: CardTypeMinion},
		{ID: "river_croc", Name: "River Crocolisk", Cost: 2, Attack: 2, Defense: 3, Type: CardTypeMinion},
		{ID: "ironfur_grizzly", Name: "Ironfur Grizzly", Cost: 3, Attack: 3, Defense: 3, Type: CardTypeMinion, Taunt: true},
		{ID: "sen_jin", Name: "Sen'jin Shieldmasta", Cost: 4, Attack: 3, Defense: 5, Type: CardTypeMinion, Taunt: true},
		{ID: "silver_knight", Name: "Silvermoon Knight", Cost: 3, Attack: 3, Defense: 2, Type: CardTypeMinion, DivineShield: true},
		{ID: "windspeaker_harpy", Name: "Windspeaker Harpy", Cost: 5, Attack: 4, Defense: 4, Type: CardTypeMinion, Windfury: true},
		{ID: "bluegill_raider", Name: "Bluegill Raider", Cost: 2, Attack: 2, Defense: 1, Type: CardTypeMinion, Charge: true},
		{
			ID: "elven_archer", Name: "Elven Archer", Cost: 1, Attack: 1, Defense: 1, Type: CardTypeMinion,
			Effects: []EffectDescriptor{
				{Trigger: TriggerBattlecry, Kind: EffectDamage, Selector: SelectorChosen, Amount: 1},
			},
		},
		{
			ID: "loot_hoarder", Name: "Loot Hoarder", Cost: 2, Attack: 2, Defense: 1, Type: CardTypeMinion,
			Effects: []EffectDescriptor{
				{Trigger: TriggerDeathrattle, Kind: EffectDraw, Selector: SelectorSelf, Amount: 1},
			},
		},
		{
			ID: "harvest_golem", Name: "Harvest Golem", Cost: 3, Attack: 2, Defense: 3, Type: CardTypeMinion,
			Effects: []EffectDescriptor{
				{Trigger: TriggerDeathrattle, Kind: EffectSummon, Selector: SelectorSelf, SummonCardID: "damaged_golem"},
			},
		},
		{ID: "damaged_golem", Name: "Damaged Golem", Cost: 1, Attack: 2, Defense: 1, Type: CardTypeMinion},
		{
			ID: "imp_master", Name: "Imp Master", Cost: 3, Attack: 1, Defense: 5, Type: CardTypeMinion,
			Effects: []EffectDescriptor{
				{Trigger: TriggerEndOfTurn, Kind: EffectSummon, Selector: SelectorSelf, SummonCardID: "imp"},
			},
		},
		{ID: "imp", Name: "Imp", Cost: 1, Attack: 1, Defense: 1, Type: CardTypeMinion},
		{
			ID: "firebolt", Name: "Firebolt", Cost: 4, Type: CardTypeSpell,
			Effects: []EffectDescriptor{
				{Trigger: TriggerBattlecry, Kind: EffectDamage, Selector: SelectorChosen, Amount: 4},
			},
		},
		{
			ID: "arcane_missile", Name: "Arcane Missile", Cost: 1, Type: CardTypeSpell,
			Effects: []EffectDescriptor{
				{Trigger: TriggerBattlecry, Kind: EffectDamage, Selector: SelectorRandomEnemy, Amount: 2},
			},
		},
		{
			ID: "healing_touch", Name: "Healing Touch", Cost: 3, Type: CardTypeSpell,
			Effects: []EffectDescriptor{
				{Trigger: TriggerBattlecry, Kind: EffectHeal, Selector: SelectorFriendlyHero, Amount: 8},
			},
		},
		{
			ID: "blessing_of_might", Name: "Blessing of Might", Cost: 1, Type: CardTypeSpell,
			Effects: []EffectDescriptor{
				{Trigger: TriggerBattlecry, Kind: EffectBuff, Selector: SelectorChosen, AttackDelta: 3},
			},
		},
		{
			ID: "frost_nova", Name: "Frost Nova", Cost: 3, Type: CardTypeSpell,
			Effects: []EffectDescriptor{
				{Trigger: TriggerBattlecry, Kind: EffectFreeze, Selector: SelectorAllEnemyMinions},
			},
		},
		{
			ID: "silence_shard", Name: "Silence Shard", Cost: 0, Type: CardTypeSpell,
			Effects: []EffectDescriptor{
				{Trigger: TriggerBattlecry, Kind: EffectSilence, Selector: SelectorChosen},
			},
		},
		{
			ID: "flamestrike", Name: "Flamestrike", Cost: 7, Type: CardTypeSpell,
			Effects: []EffectDescriptor{
				{Trigger: TriggerBattlecry, Kind: EffectDamage, Selector: SelectorAllEnemyMinions, Amount: 4},
			},
		},
		{
			ID: "sprint", Name: "Sprint", Cost: 5, Type: CardTypeSpell,
			Effects: []EffectDescriptor{
				{Trigger: TriggerBattlecry, Kind: EffectDraw, Selector: SelectorSelf, Amount: 2},
			},
		},
	}
}

// defaultDeckList is the composition used when a deck id has no dedicated
// list: three copies of every collectible base-set card.
func defaultDeckList(lib *CardLibrary) []string {
	uncollectible := map[string]bool{"damaged_golem": true, "imp": true}

	var list []string
	for _, id := range lib.IDs() {
		if uncollectible[id] {
			continue
		}
		for i := 0; i < 3; i++ {
			list = append(list, id)
		}
	}
	return list
}
