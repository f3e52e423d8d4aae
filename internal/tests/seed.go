package tests

import (
	"github.com/raidmeter/encounters/internal/encounter"
)

type Player struct {
	Name    string
	ClassID uint32
	DPS     int64
}

// Seed describes an encounter to build with NewEncounter. Duration is in seconds.
type Seed struct {
	Boss           string
	FightStart     int64
	Duration       int64
	Difficulty     string
	LocalPlayer    string
	Favorite       bool
	Cleared        bool
	BossOnlyDamage bool
	Players        []Player
}

// NewEncounter builds a storable encounter with one player entity per seed player and a boss entity.
func NewEncounter(seed Seed) encounter.Encounter {
	enc := encounter.Empty()
	enc.FightStart = seed.FightStart
	enc.LastCombatPacket = seed.FightStart + seed.Duration*1000
	enc.Duration = seed.Duration * 1000
	enc.CurrentBossName = seed.Boss
	enc.Difficulty = seed.Difficulty
	enc.LocalPlayer = seed.LocalPlayer
	enc.Favorite = seed.Favorite
	enc.Cleared = seed.Cleared
	enc.BossOnlyDamage = seed.BossOnlyDamage

	for _, player := range seed.Players {
		enc.Entities[player.Name] = encounter.Entity{
			Name:       player.Name,
			EntityType: encounter.EntityPlayer,
			ClassID:    player.ClassID,
			Class:      "class",
			GearScore:  1620,
			MaxHP:      250000,
			CurrentHP:  250000,
			Skills: map[uint32]encounter.Skill{
				1: {ID: 1, Name: "Opener", TotalDamage: player.DPS * seed.Duration, Casts: 3, Hits: 3},
			},
			DamageStats: encounter.DamageStats{
				DamageDealt: player.DPS * seed.Duration,
				DPS:         player.DPS,
			},
			SkillStats: encounter.SkillStats{Casts: 3, Hits: 3},
		}
		enc.EncounterDamageStats.TotalDamageDealt += player.DPS * seed.Duration
		enc.EncounterDamageStats.DPS += player.DPS
	}

	if seed.Boss != "" {
		enc.Entities[seed.Boss] = encounter.Entity{
			Name:       seed.Boss,
			EntityType: encounter.EntityBoss,
			NpcID:      480010,
			MaxHP:      1_000_000_000,
		}
	}

	return enc
}

// Valtan is two players fighting Valtan for three minutes.
func Valtan(fightStart int64) encounter.Encounter {
	return NewEncounter(Seed{
		Boss:        "Valtan",
		FightStart:  fightStart,
		Duration:    180,
		Difficulty:  "Normal",
		LocalPlayer: "Alice",
		Players: []Player{
			{Name: "Alice", ClassID: 101, DPS: 50000},
			{Name: "Bob", ClassID: 203, DPS: 30000},
		},
	})
}
