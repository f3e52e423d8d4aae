package encounter_test

import (
	"math"
	"testing"

	"github.com/raidmeter/encounters/internal/database"
	"github.com/raidmeter/encounters/internal/encounter"
	"github.com/raidmeter/encounters/internal/tests"
	"github.com/stretchr/testify/require"
)

const fightStart = int64(1_700_000_000_000)

func seedListing(t *testing.T, fixture tests.Fixture) (encounter.Encounter, encounter.Encounter, encounter.Encounter) {
	t.Helper()

	first := fixture.Save(t, tests.NewEncounter(tests.Seed{
		Boss: "Valtan", FightStart: fightStart, Duration: 180, Difficulty: "Normal", LocalPlayer: "Alice", Cleared: true,
		Players: []tests.Player{{Name: "Alice", ClassID: 101, DPS: 50000}, {Name: "Bob", ClassID: 203, DPS: 30000}},
	}))
	second := fixture.Save(t, tests.NewEncounter(tests.Seed{
		Boss: "Vykas", FightStart: fightStart + 1000, Duration: 20, Difficulty: "Hard", LocalPlayer: "Alice", Favorite: true,
		Players: []tests.Player{{Name: "Alice", ClassID: 101, DPS: 10000}},
	}))
	third := fixture.Save(t, tests.NewEncounter(tests.Seed{
		Boss: "Valtan", FightStart: fightStart + 2000, Duration: 600, Difficulty: "Hard", LocalPlayer: "Carol",
		Cleared: true, BossOnlyDamage: true,
		Players: []tests.Player{{Name: "Carol", ClassID: 105, DPS: 70000}, {Name: "Alice", ClassID: 101, DPS: 40000}},
	}))

	return first, second, third
}

func ids(previews []encounter.Preview) []int64 {
	found := make([]int64, len(previews))
	for i, preview := range previews {
		found[i] = preview.ID
	}

	return found
}

func TestSaveAndGet(t *testing.T) {
	ctx := t.Context()
	fixture := tests.NewFixture(t)

	enc := tests.Valtan(fightStart)
	enc.EncounterDamageStats.Buffs[7] = encounter.StatusEffect{Target: "PARTY", Category: "buff"}
	enc.EncounterDamageStats.Misc = &encounter.EncounterMisc{RaidClear: true}
	enc.Entities["Zed"] = encounter.Entity{EntityType: encounter.EntityEsther, GearHash: "abc"}

	saved := fixture.Save(t, enc)
	require.Positive(t, saved.ID)

	loaded, errGet := fixture.Repository.Get(ctx, saved.ID)
	require.NoError(t, errGet)
	require.Equal(t, saved.ID, loaded.ID)
	require.Equal(t, "Valtan", loaded.CurrentBossName)
	require.Equal(t, "Alice", loaded.LocalPlayer)
	require.Equal(t, "Normal", loaded.Difficulty)
	require.Equal(t, int64(180000), loaded.Duration)
	require.Equal(t, fightStart, loaded.FightStart)
	require.True(t, loaded.Cleared)
	require.Equal(t, "PARTY", loaded.EncounterDamageStats.Buffs[7].Target)
	require.NotNil(t, loaded.EncounterDamageStats.Debuffs)
	require.NotNil(t, loaded.EncounterDamageStats.Misc)
	require.True(t, loaded.EncounterDamageStats.Misc.RaidClear)

	require.Len(t, loaded.Entities, 4)
	require.Equal(t, int64(50000), loaded.Entities["Alice"].DamageStats.DPS)
	require.Equal(t, uint32(203), loaded.Entities["Bob"].ClassID)
	require.Equal(t, "Opener", loaded.Entities["Bob"].Skills[1].Name)
	require.Equal(t, encounter.EntityBoss, loaded.Entities["Valtan"].EntityType)
	require.Equal(t, "Zed", loaded.Entities["Zed"].Name)
	require.Equal(t, "abc", loaded.Entities["Zed"].GearHash)

	_, errMissing := fixture.Repository.Get(ctx, saved.ID+100)
	require.ErrorIs(t, errMissing, database.ErrNoResult)
}

func TestGetSubstitutesUnreadableColumns(t *testing.T) {
	ctx := t.Context()
	fixture := tests.NewFixture(t)

	fixture.Exec(ctx, "INSERT INTO encounter (id, buffs, misc) VALUES (50, '{broken', 'nope')")
	fixture.Exec(ctx, "INSERT INTO encounter_preview (id, fight_start, current_boss, duration) VALUES (50, 10, 'Valtan', 1000)")
	fixture.Exec(ctx, "INSERT INTO entity (name, encounter_id, entity_type, skills, damage_stats, dps) VALUES ('Ghost', 50, 'WEIRD', 'x', 'y', 1234)")

	loaded, errGet := fixture.Repository.Get(ctx, 50)
	require.NoError(t, errGet)
	require.Equal(t, encounter.DefaultLocalName, loaded.LocalPlayer)
	require.NotNil(t, loaded.EncounterDamageStats.Buffs)
	require.Empty(t, loaded.EncounterDamageStats.Buffs)
	require.Nil(t, loaded.EncounterDamageStats.Misc)

	ghost := loaded.Entities["Ghost"]
	require.Equal(t, encounter.EntityUnknown, ghost.EntityType)
	require.Empty(t, ghost.Skills)
	require.Equal(t, int64(1234), ghost.DamageStats.DPS)
}

func TestValtanLifecycle(t *testing.T) {
	ctx := t.Context()
	fixture := tests.NewFixture(t)

	saved := fixture.Save(t, tests.Valtan(fightStart))

	previews, total, errList := fixture.Repository.List(ctx, encounter.ListQuery{Search: "valt"})
	require.NoError(t, errList)
	require.Equal(t, int64(1), total)
	require.Len(t, previews, 1)
	require.Equal(t, saved.ID, previews[0].ID)
	require.Equal(t, []int{101, 203}, previews[0].Classes)
	require.Equal(t, []string{"Alice", "Bob"}, previews[0].Names)
	require.Equal(t, int64(50000), previews[0].MyDPS)
	require.Equal(t, "Valtan", previews[0].BossName)

	matches, errMatches := fixture.Repository.SearchMatches(ctx, "valt")
	require.NoError(t, errMatches)
	require.Equal(t, []int64{saved.ID}, matches)

	deleted, errDelete := fixture.Repository.Delete(ctx, saved.ID)
	require.NoError(t, errDelete)
	require.Equal(t, int64(1), deleted)

	count, errCount := fixture.Repository.Count(ctx)
	require.NoError(t, errCount)
	require.Zero(t, count)

	matches, errMatches = fixture.Repository.SearchMatches(ctx, "valt")
	require.NoError(t, errMatches)
	require.Empty(t, matches)

	require.Zero(t, fixture.QueryInt64(ctx, "SELECT count(*) FROM entity WHERE encounter_id = ?", saved.ID))
	require.NoError(t, fixture.Repository.CheckSearchIndex(ctx))
}

func TestListFilters(t *testing.T) {
	ctx := t.Context()
	fixture := tests.NewFixture(t)
	first, second, third := seedListing(t, fixture)

	for _, tc := range []struct {
		name  string
		query encounter.ListQuery
		want  []int64
	}{
		{name: "default newest first", query: encounter.ListQuery{}, want: []int64{third.ID, second.ID, first.ID}},
		{name: "min duration", query: encounter.ListQuery{SearchFilter: encounter.SearchFilter{MinDuration: 20}}, want: []int64{third.ID, first.ID}},
		{name: "bosses", query: encounter.ListQuery{SearchFilter: encounter.SearchFilter{Bosses: []string{"Vykas"}}}, want: []int64{second.ID}},
		{name: "cleared", query: encounter.ListQuery{SearchFilter: encounter.SearchFilter{Cleared: true}}, want: []int64{third.ID, first.ID}},
		{name: "favorite", query: encounter.ListQuery{SearchFilter: encounter.SearchFilter{Favorite: true}}, want: []int64{second.ID}},
		{name: "boss only", query: encounter.ListQuery{SearchFilter: encounter.SearchFilter{BossOnlyDamage: true}}, want: []int64{third.ID}},
		{name: "difficulty", query: encounter.ListQuery{SearchFilter: encounter.SearchFilter{Difficulty: "Hard"}}, want: []int64{third.ID, second.ID}},
		{name: "duration ascending", query: encounter.ListQuery{SearchFilter: encounter.SearchFilter{Sort: "duration", Order: encounter.OrderAscending}}, want: []int64{second.ID, first.ID, third.ID}},
		{name: "unknown sort", query: encounter.ListQuery{SearchFilter: encounter.SearchFilter{Sort: "players"}}, want: []int64{third.ID, second.ID, first.ID}},
		{name: "search boss", query: encounter.ListQuery{Search: "vyk"}, want: []int64{second.ID}},
		{name: "search player", query: encounter.ListQuery{Search: "carol"}, want: []int64{third.ID}},
		{name: "search too short", query: encounter.ListQuery{Search: "ca"}, want: []int64{third.ID, second.ID, first.ID}},
		{name: "search and filter", query: encounter.ListQuery{Search: "alice", SearchFilter: encounter.SearchFilter{Difficulty: "Normal"}}, want: []int64{first.ID}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			previews, total, errList := fixture.Repository.List(ctx, tc.query)
			require.NoError(t, errList)
			require.Equal(t, tc.want, ids(previews))
			require.Equal(t, int64(len(tc.want)), total)
		})
	}
}

func TestListPagination(t *testing.T) {
	ctx := t.Context()
	fixture := tests.NewFixture(t)
	first, second, third := seedListing(t, fixture)

	page, total, errList := fixture.Repository.List(ctx, encounter.ListQuery{Page: 1, PageSize: 2})
	require.NoError(t, errList)
	require.Equal(t, int64(3), total)
	require.Equal(t, []int64{third.ID, second.ID}, ids(page))

	page, total, errList = fixture.Repository.List(ctx, encounter.ListQuery{Page: 2, PageSize: 2})
	require.NoError(t, errList)
	require.Equal(t, int64(3), total)
	require.Equal(t, []int64{first.ID}, ids(page))

	page, total, errList = fixture.Repository.List(ctx, encounter.ListQuery{Page: 9, PageSize: 2})
	require.NoError(t, errList)
	require.Equal(t, int64(3), total)
	require.Empty(t, page)
	require.NotNil(t, page)

	// The skipped row count would wrap if multiplied naively.
	page, total, errList = fixture.Repository.List(ctx, encounter.ListQuery{Page: math.MaxUint64, PageSize: 10})
	require.NoError(t, errList)
	require.Equal(t, int64(3), total)
	require.Empty(t, page)

	page, total, errList = fixture.Repository.List(ctx, encounter.ListQuery{Page: 1 << 62, PageSize: 8})
	require.NoError(t, errList)
	require.Equal(t, int64(3), total)
	require.Empty(t, page)
}

func TestListLargePageSize(t *testing.T) {
	const stored = 1200

	ctx := t.Context()
	fixture := tests.NewFixture(t)

	fixture.Exec(ctx, `WITH RECURSIVE n(i) AS (SELECT 1 UNION ALL SELECT i + 1 FROM n WHERE i < ?)
		INSERT INTO encounter (id, fight_start, current_boss, duration, local_player) SELECT i, ? + i, 'Valtan', 60000, 'Alice' FROM n`,
		stored, fightStart)
	fixture.Exec(ctx, `INSERT INTO encounter_preview (id, fight_start, current_boss, duration, players, local_player, my_dps)
		SELECT id, fight_start, current_boss, duration, '101:Alice', local_player, 1000 FROM encounter`)

	listed := 0
	seen := map[int64]bool{}

	for pageNum := uint64(1); ; pageNum++ {
		page, total, errList := fixture.Repository.List(ctx, encounter.ListQuery{Page: pageNum, PageSize: 1000})
		require.NoError(t, errList)
		require.Equal(t, int64(stored), total)

		if len(page) == 0 {
			break
		}

		if pageNum == 1 {
			require.Len(t, page, 1000)
			require.Equal(t, int64(stored), page[0].ID)
		}

		for _, preview := range page {
			seen[preview.ID] = true
		}

		listed += len(page)
	}

	require.Equal(t, stored, listed)
	require.Len(t, seen, stored)

	everything, _, errAll := fixture.Repository.List(ctx, encounter.ListQuery{PageSize: stored * 2})
	require.NoError(t, errAll)
	require.Len(t, everything, stored)
}

func TestListTiesBreakOnID(t *testing.T) {
	ctx := t.Context()
	fixture := tests.NewFixture(t)

	first := fixture.Save(t, tests.Valtan(fightStart))
	second := fixture.Save(t, tests.Valtan(fightStart))

	previews, _, errList := fixture.Repository.List(ctx, encounter.ListQuery{})
	require.NoError(t, errList)
	require.Equal(t, []int64{second.ID, first.ID}, ids(previews))

	latest, errLatest := fixture.Repository.MostRecentID(ctx)
	require.NoError(t, errLatest)
	require.Equal(t, second.ID, latest)
}

func TestMostRecentID(t *testing.T) {
	ctx := t.Context()
	fixture := tests.NewFixture(t)

	_, errEmpty := fixture.Repository.MostRecentID(ctx)
	require.ErrorIs(t, errEmpty, database.ErrNoResult)

	newest := fixture.Save(t, tests.Valtan(fightStart+5000))
	fixture.Save(t, tests.Valtan(fightStart))

	latest, errLatest := fixture.Repository.MostRecentID(ctx)
	require.NoError(t, errLatest)
	require.Equal(t, newest.ID, latest)
}

func TestToggleFavorite(t *testing.T) {
	ctx := t.Context()
	fixture := tests.NewFixture(t)
	saved := fixture.Save(t, tests.Valtan(fightStart))

	favorites := encounter.ListQuery{SearchFilter: encounter.SearchFilter{Favorite: true}}

	require.NoError(t, fixture.Repository.ToggleFavorite(ctx, saved.ID))
	previews, _, errList := fixture.Repository.List(ctx, favorites)
	require.NoError(t, errList)
	require.Equal(t, []int64{saved.ID}, ids(previews))

	require.NoError(t, fixture.Repository.ToggleFavorite(ctx, saved.ID))
	previews, _, errList = fixture.Repository.List(ctx, favorites)
	require.NoError(t, errList)
	require.Empty(t, previews)

	require.ErrorIs(t, fixture.Repository.ToggleFavorite(ctx, saved.ID+1), database.ErrNoResult)
}

func TestBulkDeletes(t *testing.T) {
	ctx := t.Context()
	fixture := tests.NewFixture(t)
	first, second, third := seedListing(t, fixture)
	uncleared := fixture.Save(t, tests.NewEncounter(tests.Seed{
		Boss: "Brelshaza", FightStart: fightStart + 3000, Duration: 300, LocalPlayer: "Alice",
		Players: []tests.Player{{Name: "Alice", ClassID: 101, DPS: 1}},
	}))

	// The short encounter is a favorite.
	deleted, errDelete := fixture.Repository.DeleteBelowDuration(ctx, 60, true)
	require.NoError(t, errDelete)
	require.Zero(t, deleted)

	deleted, errDelete = fixture.Repository.DeleteAllUncleared(ctx, true)
	require.NoError(t, errDelete)
	require.Equal(t, int64(1), deleted)

	_, errGet := fixture.Repository.Get(ctx, uncleared.ID)
	require.ErrorIs(t, errGet, database.ErrNoResult)

	deleted, errDelete = fixture.Repository.DeleteBelowDuration(ctx, 60, false)
	require.NoError(t, errDelete)
	require.Equal(t, int64(1), deleted)

	_, errGet = fixture.Repository.Get(ctx, second.ID)
	require.ErrorIs(t, errGet, database.ErrNoResult)

	deleted, errDelete = fixture.Repository.DeleteMany(ctx, []int64{})
	require.NoError(t, errDelete)
	require.Zero(t, deleted)

	require.NoError(t, fixture.Repository.ToggleFavorite(ctx, third.ID))

	deleted, errDelete = fixture.Repository.DeleteAll(ctx, true)
	require.NoError(t, errDelete)
	require.Equal(t, int64(1), deleted)

	remaining, _, errList := fixture.Repository.List(ctx, encounter.ListQuery{})
	require.NoError(t, errList)
	require.Equal(t, []int64{third.ID}, ids(remaining))
	require.NoError(t, fixture.Repository.CheckSearchIndex(ctx))

	deleted, errDelete = fixture.Repository.DeleteAll(ctx, false)
	require.NoError(t, errDelete)
	require.Equal(t, int64(1), deleted)

	require.Zero(t, fixture.QueryInt64(ctx, "SELECT count(*) FROM entity"))
	require.Zero(t, fixture.QueryInt64(ctx, "SELECT count(*) FROM encounter_preview"))
	require.NoError(t, fixture.Repository.CheckSearchIndex(ctx))

	matches, errMatches := fixture.Repository.SearchMatches(ctx, "valtan")
	require.NoError(t, errMatches)
	require.Empty(t, matches)

	_, errGet = fixture.Repository.Get(ctx, first.ID)
	require.ErrorIs(t, errGet, database.ErrNoResult)
}

func TestDeleteMany(t *testing.T) {
	ctx := t.Context()
	fixture := tests.NewFixture(t)
	first, second, third := seedListing(t, fixture)

	deleted, errDelete := fixture.Repository.DeleteMany(ctx, []int64{first.ID, third.ID, third.ID + 100})
	require.NoError(t, errDelete)
	require.Equal(t, int64(2), deleted)

	remaining, total, errList := fixture.Repository.List(ctx, encounter.ListQuery{})
	require.NoError(t, errList)
	require.Equal(t, int64(1), total)
	require.Equal(t, []int64{second.ID}, ids(remaining))

	deleted, errDelete = fixture.Repository.Delete(ctx, first.ID)
	require.NoError(t, errDelete)
	require.Zero(t, deleted)
	require.NoError(t, fixture.Repository.CheckSearchIndex(ctx))
}

func TestRefreshPreview(t *testing.T) {
	ctx := t.Context()
	fixture := tests.NewFixture(t)
	saved := fixture.Save(t, tests.Valtan(fightStart))

	fixture.Exec(ctx, "UPDATE entity SET name = 'Dave' WHERE name = 'Bob' AND encounter_id = ?", saved.ID)

	preview, errRefresh := fixture.Repository.RefreshPreview(ctx, saved.ID)
	require.NoError(t, errRefresh)
	require.Equal(t, []string{"Alice", "Dave"}, preview.Names)
	require.Equal(t, []int{101, 203}, preview.Classes)
	require.Equal(t, int64(50000), preview.MyDPS)

	matches, errMatches := fixture.Repository.SearchMatches(ctx, "dave")
	require.NoError(t, errMatches)
	require.Equal(t, []int64{saved.ID}, matches)

	matches, errMatches = fixture.Repository.SearchMatches(ctx, "bob")
	require.NoError(t, errMatches)
	require.Empty(t, matches)

	// Refreshing again leaves the index untouched.
	_, errRefresh = fixture.Repository.RefreshPreview(ctx, saved.ID)
	require.NoError(t, errRefresh)
	require.NoError(t, fixture.Repository.CheckSearchIndex(ctx))

	_, errMissing := fixture.Repository.RefreshPreview(ctx, saved.ID+1)
	require.ErrorIs(t, errMissing, database.ErrNoResult)
}

func TestBosses(t *testing.T) {
	ctx := t.Context()
	fixture := tests.NewFixture(t)

	for _, boss := range []string{"Valtan", "Brelshaza Gate 10", "Brelshaza Gate 2", "Valtan", ""} {
		fixture.Save(t, tests.NewEncounter(tests.Seed{Boss: boss, FightStart: fightStart, Duration: 60}))
	}

	bosses, errBosses := fixture.Repository.Bosses(ctx)
	require.NoError(t, errBosses)
	require.Equal(t, []string{"Brelshaza Gate 2", "Brelshaza Gate 10", "Valtan"}, bosses)
}

func TestInfo(t *testing.T) {
	ctx := t.Context()
	fixture := tests.NewFixture(t)
	seedListing(t, fixture)

	info, errInfo := fixture.Repository.Info(ctx, 20)
	require.NoError(t, errInfo)
	require.Equal(t, int64(3), info.TotalEncounters)
	require.Equal(t, int64(3), info.TotalEncountersFiltered)
	require.Positive(t, info.SizeBytes)
	require.NotEmpty(t, info.Size)

	info, errInfo = fixture.Repository.Info(ctx, 21)
	require.NoError(t, errInfo)
	require.Equal(t, int64(2), info.TotalEncountersFiltered)
}

func TestMaintenanceOperations(t *testing.T) {
	ctx := t.Context()
	fixture := tests.NewFixture(t)
	seedListing(t, fixture)

	require.NoError(t, fixture.Repository.Optimize(ctx))
	require.NoError(t, fixture.Repository.RebuildSearchIndex(ctx))
	require.NoError(t, fixture.Repository.CheckSearchIndex(ctx))

	previews, _, errList := fixture.Repository.List(ctx, encounter.ListQuery{Search: "vykas"})
	require.NoError(t, errList)
	require.Len(t, previews, 1)
}
