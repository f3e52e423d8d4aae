package encounter

import (
	"cmp"
	"database/sql"
	"log/slog"
	"slices"
	"strconv"
	"strings"

	"github.com/raidmeter/encounters/pkg/json"
)

const (
	rosterSeparator = ","
	rosterFieldSep  = ":"
)

// encodeColumn serializes a semi-structured value for storage in a text column.
func encodeColumn(value any) (string, error) {
	return json.EncodeText(value)
}

// decodeMap reads a serialized map column. Missing, null or malformed text yields an empty map.
func decodeMap[K comparable, V any](text sql.NullString, column string) map[K]V {
	value, ok := json.DecodeOr[map[K]V](text.String, nil)
	if !ok && text.Valid && text.String != "" {
		slog.Debug("Substituted default for unreadable column", slog.String("column", column))
	}

	if value == nil {
		return map[K]V{}
	}

	return value
}

// decodeValue reads a serialized struct column, falling back to its zero value.
func decodeValue[T any](text sql.NullString, column string) T {
	var zero T

	value, ok := json.DecodeOr[T](text.String, zero)
	if !ok && text.Valid && text.String != "" {
		slog.Debug("Substituted default for unreadable column", slog.String("column", column))
	}

	return value
}

// decodeMisc returns nil when the misc column is absent or unreadable.
func decodeMisc(text sql.NullString) *EncounterMisc {
	misc, ok := json.DecodeOr[*EncounterMisc](text.String, nil)
	if !ok {
		if text.Valid && text.String != "" {
			slog.Debug("Substituted default for unreadable column", slog.String("column", "misc"))
		}

		return nil
	}

	return misc
}

// EncodeRoster builds the preview roster text from the player entities of an encounter, ordered by
// DPS with the highest first. Entries are written as class_id:name joined by commas.
func EncodeRoster(players []Entity) string {
	ordered := slices.Clone(players)
	slices.SortStableFunc(ordered, func(a, b Entity) int {
		if byDPS := cmp.Compare(b.DamageStats.DPS, a.DamageStats.DPS); byDPS != 0 {
			return byDPS
		}

		return cmp.Compare(a.Name, b.Name)
	})

	entries := make([]string, 0, len(ordered))
	for _, player := range ordered {
		if player.EntityType != EntityPlayer {
			continue
		}

		entries = append(entries, strconv.FormatUint(uint64(player.ClassID), 10)+rosterFieldSep+player.Name)
	}

	return strings.Join(entries, rosterSeparator)
}

// DecodeRoster splits roster text into parallel class and name sequences. Empty text yields empty
// sequences. Entries that are not exactly class:name decode as UnknownClassID and UnknownName, a
// class that is not a number decodes as UnknownClassID.
func DecodeRoster(text string) ([]int, []string) {
	if text == "" {
		return []int{}, []string{}
	}

	entries := strings.Split(text, rosterSeparator)
	classes := make([]int, 0, len(entries))
	names := make([]string, 0, len(entries))

	for _, entry := range entries {
		fields := strings.Split(entry, rosterFieldSep)
		if len(fields) != 2 {
			classes = append(classes, UnknownClassID)
			names = append(names, UnknownName)

			continue
		}

		classID, errClass := strconv.Atoi(fields[0])
		if errClass != nil {
			classID = UnknownClassID
		}

		classes = append(classes, classID)
		names = append(names, fields[1])
	}

	return classes, names
}

// localDPS finds the DPS of the named player, reporting false when the player has no entity.
func localDPS(entities []Entity, localPlayer string) (int64, bool) {
	for _, entity := range entities {
		if entity.Name == localPlayer {
			return entity.DamageStats.DPS, true
		}
	}

	return 0, false
}
