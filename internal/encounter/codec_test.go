package encounter

import (
	"database/sql"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncodeRoster(t *testing.T) {
	players := []Entity{
		{Name: "Bob", ClassID: 203, EntityType: EntityPlayer, DamageStats: DamageStats{DPS: 30000}},
		{Name: "Valtan", EntityType: EntityBoss, DamageStats: DamageStats{DPS: 90000}},
		{Name: "Alice", ClassID: 101, EntityType: EntityPlayer, DamageStats: DamageStats{DPS: 50000}},
		{Name: "Carol", ClassID: 105, EntityType: EntityPlayer, DamageStats: DamageStats{DPS: 30000}},
	}

	require.Equal(t, "101:Alice,203:Bob,105:Carol", EncodeRoster(players))
	require.Empty(t, EncodeRoster(nil))
	// The input order is left untouched.
	require.Equal(t, "Bob", players[0].Name)
}

func TestDecodeRoster(t *testing.T) {
	for _, tc := range []struct {
		name    string
		in      string
		classes []int
		names   []string
	}{
		{name: "empty", in: "", classes: []int{}, names: []string{}},
		{name: "valid", in: "101:Alice,203:Bob", classes: []int{101, 203}, names: []string{"Alice", "Bob"}},
		{name: "missing separator", in: "Alice,203:Bob", classes: []int{UnknownClassID, 203}, names: []string{UnknownName, "Bob"}},
		{name: "extra fields", in: "1:2:3", classes: []int{UnknownClassID}, names: []string{UnknownName}},
		{name: "bad class", in: "x:Alice", classes: []int{UnknownClassID}, names: []string{"Alice"}},
		{name: "empty entry", in: "101:Alice,", classes: []int{101, UnknownClassID}, names: []string{"Alice", UnknownName}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			classes, names := DecodeRoster(tc.in)
			require.Equal(t, tc.classes, classes)
			require.Equal(t, tc.names, names)
			require.Len(t, names, len(classes))
		})
	}
}

func TestDecodeColumns(t *testing.T) {
	buffs := decodeMap[uint32, StatusEffect](sql.NullString{String: `{"7":{"target":"PARTY","buffType":3}}`, Valid: true}, "buffs")
	require.Equal(t, "PARTY", buffs[7].Target)
	require.Equal(t, uint32(3), buffs[7].BuffType)

	for _, text := range []sql.NullString{{}, {String: "null", Valid: true}, {String: "{broken", Valid: true}, {String: "[]", Valid: true}} {
		decoded := decodeMap[uint32, StatusEffect](text, "buffs")
		require.NotNil(t, decoded)
		require.Empty(t, decoded)
	}

	stats := decodeValue[DamageStats](sql.NullString{String: "{broken", Valid: true}, "damage_stats")
	require.Equal(t, DamageStats{}, stats)

	require.Nil(t, decodeMisc(sql.NullString{}))
	require.Nil(t, decodeMisc(sql.NullString{String: "nope", Valid: true}))

	misc := decodeMisc(sql.NullString{String: `{"raidClear":true,"partyInfo":{"0":["Alice","Bob"]}}`, Valid: true})
	require.NotNil(t, misc)
	require.True(t, misc.RaidClear)
	require.Equal(t, []string{"Alice", "Bob"}, misc.PartyInfo["0"])
}

func TestParseEntityType(t *testing.T) {
	require.Equal(t, EntityPlayer, ParseEntityType("PLAYER"))
	require.Equal(t, EntityBoss, ParseEntityType(" boss "))
	require.Equal(t, EntityUnknown, ParseEntityType(""))
	require.Equal(t, EntityUnknown, ParseEntityType("DRAGON"))
}

func TestEncodeColumnRoundTrip(t *testing.T) {
	text, err := encodeColumn(map[uint32]StatusEffect{12: {Category: "buff"}})
	require.NoError(t, err)

	decoded := decodeMap[uint32, StatusEffect](sql.NullString{String: text, Valid: true}, "buffs")
	require.Equal(t, "buff", decoded[12].Category)
}
