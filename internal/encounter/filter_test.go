package encounter_test

import (
	"testing"

	sq "github.com/Masterminds/squirrel"
	"github.com/raidmeter/encounters/internal/encounter"
	"github.com/stretchr/testify/require"
)

var sb = sq.StatementBuilder.PlaceholderFormat(sq.Question) //nolint:gochecknoglobals

func TestListBuilder(t *testing.T) {
	listQuery := encounter.ListQuery{
		Page:     2,
		PageSize: 5,
		Search:   " valt ",
		SearchFilter: encounter.SearchFilter{
			MinDuration: 30,
			Bosses:      []string{"Valtan", "Vykas"},
			Cleared:     true,
			Difficulty:  "Hard",
			Sort:        "my_dps",
			Order:       encounter.OrderAscending,
		},
	}

	query, args, err := listQuery.ListBuilder(sb).ToSql()
	require.NoError(t, err)
	require.Equal(t,
		"SELECT e.id, e.fight_start, e.current_boss, e.duration, e.difficulty, e.favorite, e.cleared, "+
			"e.local_player, e.my_dps, e.players FROM encounter_preview e "+
			"JOIN encounter_search(?) ON encounter_search.rowid = e.id "+
			"WHERE e.duration > ? AND e.current_boss IN (?,?) AND e.cleared = ? AND e.difficulty = ? "+
			"ORDER BY e.my_dps ASC, e.id ASC LIMIT ? OFFSET ?", query)
	require.Equal(t, []any{`"valt"`, int64(30000), "Valtan", "Vykas", 1, "Hard", int64(5), int64(5)}, args)

	countQuery, countArgs, errCount := listQuery.CountBuilder(sb).ToSql()
	require.NoError(t, errCount)
	require.Equal(t,
		"SELECT COUNT(*) FROM encounter_preview e "+
			"JOIN encounter_search(?) ON encounter_search.rowid = e.id "+
			"WHERE e.duration > ? AND e.current_boss IN (?,?) AND e.cleared = ? AND e.difficulty = ?", countQuery)
	require.Equal(t, args[:len(args)-2], countArgs)
}

func TestListBuilderDefaults(t *testing.T) {
	query, args, err := encounter.ListQuery{Search: "va"}.ListBuilder(sb).ToSql()
	require.NoError(t, err)
	require.NotContains(t, query, "encounter_search")
	require.Contains(t, query, "ORDER BY e.fight_start DESC, e.id DESC LIMIT ? OFFSET ?")
	require.Equal(t, []any{int64(0), int64(10), int64(0)}, args)
}

func TestListBuilderRejectsUnknownSort(t *testing.T) {
	for _, sort := range []string{"players", "1; DROP TABLE encounter", "e.id", "fight_start DESC, (SELECT 1)"} {
		query, _, err := encounter.ListQuery{SearchFilter: encounter.SearchFilter{Sort: sort}}.ListBuilder(sb).ToSql()
		require.NoError(t, err)
		require.Contains(t, query, "ORDER BY e.fight_start DESC, e.id DESC", sort)
	}
}
