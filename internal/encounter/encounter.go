// Package encounter stores recorded combat encounters and serves filtered, searchable listings of them.
package encounter

import (
	"strings"
)

// Substitutes used when stored values are missing or unreadable.
const (
	UnknownClassID   = 101
	UnknownName      = "Unknown"
	DefaultLocalName = "You"
)

type EntityType string

const (
	EntityUnknown  EntityType = "UNKNOWN"
	EntityMonster  EntityType = "MONSTER"
	EntityBoss     EntityType = "BOSS"
	EntityGuardian EntityType = "GUARDIAN"
	EntityPlayer   EntityType = "PLAYER"
	EntityNPC      EntityType = "NPC"
	EntityEsther   EntityType = "ESTHER"
)

// ParseEntityType maps the stored tag back to a known type.
func ParseEntityType(value string) EntityType {
	switch EntityType(strings.ToUpper(strings.TrimSpace(value))) {
	case EntityMonster:
		return EntityMonster
	case EntityBoss:
		return EntityBoss
	case EntityGuardian:
		return EntityGuardian
	case EntityPlayer:
		return EntityPlayer
	case EntityNPC:
		return EntityNPC
	case EntityEsther:
		return EntityEsther
	default:
		return EntityUnknown
	}
}

type StatusEffectSource struct {
	Name  string `json:"name"`
	Desc  string `json:"desc"`
	Icon  string `json:"icon"`
	Skill *Skill `json:"skill,omitempty"`
}

type StatusEffect struct {
	Target       string             `json:"target"`
	Category     string             `json:"category"`
	BuffCategory string             `json:"buffCategory"`
	BuffType     uint32             `json:"buffType"`
	UniqueGroup  uint32             `json:"uniqueGroup"`
	Source       StatusEffectSource `json:"source"`
}

type Skill struct {
	ID                 uint32           `json:"id"`
	Name               string           `json:"name"`
	Icon               string           `json:"icon"`
	TotalDamage        int64            `json:"totalDamage"`
	MaxDamage          int64            `json:"maxDamage"`
	BuffedBy           map[uint32]int64 `json:"buffedBy"`
	DebuffedBy         map[uint32]int64 `json:"debuffedBy"`
	BuffedBySupport    int64            `json:"buffedBySupport"`
	DebuffedBySupport  int64            `json:"debuffedBySupport"`
	Casts              int64            `json:"casts"`
	Hits               int64            `json:"hits"`
	Crits              int64            `json:"crits"`
	BackAttacks        int64            `json:"backAttacks"`
	FrontAttacks       int64            `json:"frontAttacks"`
	DPS                int64            `json:"dps"`
	CastLog            []int64          `json:"castLog"`
	TripodIndex        *TripodIndex     `json:"tripodIndex,omitempty"`
	TripodLevel        *TripodLevel     `json:"tripodLevel,omitempty"`
	TotalShieldApplied int64            `json:"totalShieldApplied,omitempty"`
}

type TripodIndex struct {
	First  uint8 `json:"first"`
	Second uint8 `json:"second"`
	Third  uint8 `json:"third"`
}

type TripodLevel struct {
	First  uint16 `json:"first"`
	Second uint16 `json:"second"`
	Third  uint16 `json:"third"`
}

type DamageStats struct {
	DamageDealt            int64            `json:"damageDealt"`
	DamageTaken            int64            `json:"damageTaken"`
	BuffedBy               map[uint32]int64 `json:"buffedBy"`
	DebuffedBy             map[uint32]int64 `json:"debuffedBy"`
	BuffedBySupport        int64            `json:"buffedBySupport"`
	DebuffedBySupport      int64            `json:"debuffedBySupport"`
	Deaths                 int64            `json:"deaths"`
	DeathTime              int64            `json:"deathTime"`
	DPS                    int64            `json:"dps"`
	DPSAverage             []int64          `json:"dpsAverage"`
	DPSRolling10sAvg       []int64          `json:"dpsRolling10sAvg"`
	ShieldsGiven           int64            `json:"shieldsGiven"`
	ShieldsReceived        int64            `json:"shieldsReceived"`
	DamageAbsorbed         int64            `json:"damageAbsorbed"`
	DamageAbsorbedOnOthers int64            `json:"damageAbsorbedOnOthers"`
}

type SkillStats struct {
	Casts          int64 `json:"casts"`
	Hits           int64 `json:"hits"`
	Crits          int64 `json:"crits"`
	BackAttacks    int64 `json:"backAttacks"`
	FrontAttacks   int64 `json:"frontAttacks"`
	CounterAttacks int64 `json:"counterAttacks"`
	Identity       int64 `json:"identity"`
}

type Entity struct {
	Name        string           `json:"name"`
	NpcID       uint32           `json:"npcId"`
	CharacterID uint64           `json:"characterId"`
	EntityType  EntityType       `json:"entityType"`
	ClassID     uint32           `json:"classId"`
	Class       string           `json:"class"`
	GearScore   float64          `json:"gearScore"`
	GearHash    string           `json:"gearHash,omitempty"`
	CurrentHP   int64            `json:"currentHp"`
	MaxHP       int64            `json:"maxHp"`
	IsDead      bool             `json:"isDead"`
	Skills      map[uint32]Skill `json:"skills"`
	DamageStats DamageStats      `json:"damageStats"`
	SkillStats  SkillStats       `json:"skillStats"`
	Engravings  []string         `json:"engravings,omitempty"`
	LastUpdate  int64            `json:"lastUpdate"`
}

type EncounterMisc struct {
	RaidClear bool                `json:"raidClear,omitempty"`
	PartyInfo map[string][]string `json:"partyInfo,omitempty"`
	BossHPLog map[string][]HPLog  `json:"bossHpLog,omitempty"`
}

type HPLog struct {
	Time int64   `json:"time"`
	HP   int64   `json:"hp"`
	P    float64 `json:"p"`
}

type EncounterDamageStats struct {
	TotalDamageDealt        int64                   `json:"totalDamageDealt"`
	TopDamageDealt          int64                   `json:"topDamageDealt"`
	TotalDamageTaken        int64                   `json:"totalDamageTaken"`
	TopDamageTaken          int64                   `json:"topDamageTaken"`
	DPS                     int64                   `json:"dps"`
	Buffs                   map[uint32]StatusEffect `json:"buffs"`
	Debuffs                 map[uint32]StatusEffect `json:"debuffs"`
	TotalShielding          int64                   `json:"totalShielding"`
	TotalEffectiveShielding int64                   `json:"totalEffectiveShielding"`
	AppliedShieldBuffs      map[uint32]StatusEffect `json:"appliedShieldBuffs"`
	Misc                    *EncounterMisc          `json:"misc,omitempty"`
}

// Encounter is one recorded fight with all participating entities keyed by name.
type Encounter struct {
	ID                   int64                `json:"id"`
	LastCombatPacket     int64                `json:"lastCombatPacket"`
	FightStart           int64                `json:"fightStart"`
	LocalPlayer          string               `json:"localPlayer"`
	Entities             map[string]Entity    `json:"entities"`
	CurrentBossName      string               `json:"currentBossName"`
	Duration             int64                `json:"duration"`
	EncounterDamageStats EncounterDamageStats `json:"encounterDamageStats"`
	Difficulty           string               `json:"difficulty,omitempty"`
	Favorite             bool                 `json:"favorite"`
	Cleared              bool                 `json:"cleared"`
	BossOnlyDamage       bool                 `json:"bossOnlyDamage"`
}

// Empty is the value returned for encounters that do not exist.
func Empty() Encounter {
	return Encounter{
		Entities: map[string]Entity{},
		EncounterDamageStats: EncounterDamageStats{
			Buffs:              map[uint32]StatusEffect{},
			Debuffs:            map[uint32]StatusEffect{},
			AppliedShieldBuffs: map[uint32]StatusEffect{},
		},
	}
}

// Players returns the entities tagged as players.
func (e Encounter) Players() []Entity {
	players := make([]Entity, 0, len(e.Entities))

	for _, entity := range e.Entities {
		if entity.EntityType == EntityPlayer {
			players = append(players, entity)
		}
	}

	return players
}

func (e Encounter) raidCleared() bool {
	return e.Cleared || (e.EncounterDamageStats.Misc != nil && e.EncounterDamageStats.Misc.RaidClear)
}

// Preview is the listing projection of an encounter. Classes and Names are parallel and ordered by
// player DPS, highest first.
type Preview struct {
	ID          int64    `json:"id"`
	FightStart  int64    `json:"fightStart"`
	BossName    string   `json:"bossName"`
	Duration    int64    `json:"duration"`
	Classes     []int    `json:"classes"`
	Names       []string `json:"names"`
	Difficulty  string   `json:"difficulty,omitempty"`
	LocalPlayer string   `json:"localPlayer"`
	MyDPS       int64    `json:"myDps"`
	Favorite    bool     `json:"favorite"`
	Cleared     bool     `json:"cleared"`
}

type EncountersOverview struct {
	Encounters      []Preview `json:"encounters"`
	TotalEncounters int64     `json:"totalEncounters"`
}

type DBInfo struct {
	Size                    string `json:"size"`
	SizeBytes               int64  `json:"sizeBytes"`
	FreeBytes               uint64 `json:"freeBytes"`
	TotalEncounters         int64  `json:"totalEncounters"`
	TotalEncountersFiltered int64  `json:"totalEncountersFiltered"`
}
