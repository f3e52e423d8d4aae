package encounter

import (
	"cmp"
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"slices"
	"sort"

	sq "github.com/Masterminds/squirrel"
	"github.com/dustin/go-humanize"
	"github.com/maruel/natural"
	"github.com/raidmeter/encounters/internal/database"
	"github.com/raidmeter/encounters/internal/search"
	"github.com/ricochet2200/go-disk-usage/du"
)

var (
	ErrEncode = errors.New("failed to encode encounter")
	ErrDelete = errors.New("failed to delete encounters")
)

type Repository struct {
	db database.Database
}

func NewRepository(db database.Database) Repository {
	return Repository{db: db}
}

// Save inserts the encounter, its entities and its preview, and indexes the preview, in a single
// transaction. The assigned id is written back to enc.
func (r Repository) Save(ctx context.Context, enc *Encounter) error {
	stats := enc.EncounterDamageStats

	columns, errColumns := encodeColumns(map[string]any{
		"buffs":                stats.Buffs,
		"debuffs":              stats.Debuffs,
		"applied_shield_buffs": stats.AppliedShieldBuffs,
		"misc":                 stats.Misc,
	})
	if errColumns != nil {
		return errColumns
	}

	entities := make([]Entity, 0, len(enc.Entities))
	for name, entity := range enc.Entities {
		if entity.Name == "" {
			entity.Name = name
		}

		entities = append(entities, entity)
	}

	slices.SortFunc(entities, func(a, b Entity) int {
		return cmp.Compare(a.Name, b.Name)
	})

	return r.db.WrapTx(ctx, func(tx *sql.Tx) error {
		insert := r.db.Builder().
			Insert("encounter").
			Columns("last_combat_packet", "total_damage_dealt", "top_damage_dealt", "total_damage_taken",
				"top_damage_taken", "dps", "buffs", "debuffs", "total_shielding", "total_effective_shielding",
				"applied_shield_buffs", "misc", "version").
			Values(enc.LastCombatPacket, stats.TotalDamageDealt, stats.TopDamageDealt, stats.TotalDamageTaken,
				stats.TopDamageTaken, stats.DPS, columns["buffs"], columns["debuffs"], stats.TotalShielding,
				stats.TotalEffectiveShielding, columns["applied_shield_buffs"], columns["misc"], database.SchemaVersion).
			Suffix("RETURNING id")

		if errInsert := r.db.ExecInsertBuilderWithReturnValue(ctx, tx, insert, &enc.ID); errInsert != nil {
			return database.DBErr(errInsert)
		}

		for _, entity := range entities {
			if errEntity := r.insertEntity(ctx, tx, enc.ID, entity); errEntity != nil {
				return errEntity
			}
		}

		var myDPS any
		if dps, found := localDPS(entities, enc.LocalPlayer); found {
			myDPS = dps
		}

		players := EncodeRoster(entities)

		preview := r.db.Builder().
			Insert(search.ContentTable).
			Columns("id", "fight_start", "current_boss", "duration", "players", "difficulty",
				"local_player", "my_dps", "favorite", "cleared", "boss_only_damage").
			Values(enc.ID, enc.FightStart, enc.CurrentBossName, enc.Duration, players, enc.Difficulty,
				enc.LocalPlayer, myDPS, enc.Favorite, enc.raidCleared(), enc.BossOnlyDamage)

		if errPreview := r.db.ExecInsertBuilder(ctx, tx, preview); errPreview != nil {
			return database.DBErr(errPreview)
		}

		return search.Insert(ctx, tx, search.Document{ID: enc.ID, BossName: enc.CurrentBossName, Players: players})
	})
}

func (r Repository) insertEntity(ctx context.Context, tx *sql.Tx, encounterID int64, entity Entity) error {
	columns, errColumns := encodeColumns(map[string]any{
		"skills":       entity.Skills,
		"damage_stats": entity.DamageStats,
		"skill_stats":  entity.SkillStats,
		"engravings":   entity.Engravings,
	})
	if errColumns != nil {
		return errColumns
	}

	entityType := entity.EntityType
	if entityType == "" {
		entityType = EntityUnknown
	}

	var gearHash any
	if entity.GearHash != "" {
		gearHash = entity.GearHash
	}

	insert := r.db.Builder().
		Insert("entity").
		Columns("name", "encounter_id", "npc_id", "character_id", "entity_type", "class_id", "class",
			"gear_score", "current_hp", "max_hp", "is_dead", "skills", "damage_stats", "dps", "skill_stats",
			"last_update", "engravings", "gear_hash").
		Values(entity.Name, encounterID, entity.NpcID, int64(entity.CharacterID), string(entityType), //nolint:gosec
			entity.ClassID, entity.Class, entity.GearScore, entity.CurrentHP, entity.MaxHP, entity.IsDead,
			columns["skills"], columns["damage_stats"], entity.DamageStats.DPS, columns["skill_stats"],
			entity.LastUpdate, columns["engravings"], gearHash)

	if errInsert := r.db.ExecInsertBuilder(ctx, tx, insert); errInsert != nil {
		return database.DBErr(errInsert)
	}

	return nil
}

func encodeColumns(values map[string]any) (map[string]string, error) {
	encoded := make(map[string]string, len(values))

	for column, value := range values {
		text, errEncode := encodeColumn(value)
		if errEncode != nil {
			return nil, errors.Join(errEncode, ErrEncode)
		}

		encoded[column] = text
	}

	return encoded, nil
}

// Get loads a full encounter. ErrNoResult is returned when the id does not exist.
func (r Repository) Get(ctx context.Context, encounterID int64) (Encounter, error) {
	row, errRow := r.db.QueryRowBuilder(ctx, nil, r.db.Builder().
		Select("e.last_combat_packet", "p.fight_start", "p.local_player", "p.current_boss", "p.duration",
			"e.total_damage_dealt", "e.top_damage_dealt", "e.total_damage_taken", "e.top_damage_taken", "e.dps",
			"e.buffs", "e.debuffs", "e.misc", "p.difficulty", "p.favorite", "p.cleared", "p.boss_only_damage",
			"e.total_shielding", "e.total_effective_shielding", "e.applied_shield_buffs").
		From("encounter e").
		Join(search.ContentTable + " p ON p.id = e.id").
		Where(sq.Eq{"e.id": encounterID}))
	if errRow != nil {
		return Empty(), errRow
	}

	var (
		enc                                    = Empty()
		lastCombatPacket, fightStart, duration sql.NullInt64
		totalDealt, topDealt, totalTaken       sql.NullInt64
		topTaken, dps, shielding, effShielding sql.NullInt64
		localPlayer, bossName, difficulty      sql.NullString
		buffs, debuffs, misc, shieldBuffs      sql.NullString
		favorite, cleared, bossOnly            sql.NullBool
	)

	if errScan := row.Scan(&lastCombatPacket, &fightStart, &localPlayer, &bossName, &duration,
		&totalDealt, &topDealt, &totalTaken, &topTaken, &dps,
		&buffs, &debuffs, &misc, &difficulty, &favorite, &cleared, &bossOnly,
		&shielding, &effShielding, &shieldBuffs); errScan != nil {
		return Empty(), database.DBErr(errScan)
	}

	enc.ID = encounterID
	enc.LastCombatPacket = lastCombatPacket.Int64
	enc.FightStart = fightStart.Int64
	enc.LocalPlayer = DefaultLocalName
	if localPlayer.Valid {
		enc.LocalPlayer = localPlayer.String
	}
	enc.CurrentBossName = bossName.String
	enc.Duration = duration.Int64
	enc.Difficulty = difficulty.String
	enc.Favorite = favorite.Bool
	enc.Cleared = cleared.Bool
	enc.BossOnlyDamage = bossOnly.Bool
	enc.EncounterDamageStats = EncounterDamageStats{
		TotalDamageDealt:        totalDealt.Int64,
		TopDamageDealt:          topDealt.Int64,
		TotalDamageTaken:        totalTaken.Int64,
		TopDamageTaken:          topTaken.Int64,
		DPS:                     dps.Int64,
		Buffs:                   decodeMap[uint32, StatusEffect](buffs, "buffs"),
		Debuffs:                 decodeMap[uint32, StatusEffect](debuffs, "debuffs"),
		TotalShielding:          shielding.Int64,
		TotalEffectiveShielding: effShielding.Int64,
		AppliedShieldBuffs:      decodeMap[uint32, StatusEffect](shieldBuffs, "applied_shield_buffs"),
		Misc:                    decodeMisc(misc),
	}

	entities, errEntities := r.entities(ctx, nil, encounterID)
	if errEntities != nil {
		return Empty(), errEntities
	}

	for _, entity := range entities {
		enc.Entities[entity.Name] = entity
	}

	return enc, nil
}

// entities loads every entity row of an encounter in storage order.
func (r Repository) entities(ctx context.Context, tx *sql.Tx, encounterID int64) ([]Entity, error) {
	rows, errQuery := r.db.QueryBuilder(ctx, tx, r.db.Builder().
		Select("name", "class_id", "class", "gear_score", "current_hp", "max_hp", "is_dead", "skills",
			"damage_stats", "skill_stats", "last_update", "entity_type", "npc_id", "character_id",
			"engravings", "gear_hash", "dps").
		From("entity").
		Where(sq.Eq{"encounter_id": encounterID}).
		OrderBy("rowid"))
	if errQuery != nil {
		return nil, database.DBErr(errQuery)
	}

	defer rows.Close()

	entities := []Entity{}

	for rows.Next() {
		var (
			entity                                Entity
			name, class, entityType, gearHash     sql.NullString
			skills, damageStats, skillStats, engr sql.NullString
			classID, npcID, characterID           sql.NullInt64
			currentHP, maxHP, lastUpdate, dps     sql.NullInt64
			gearScore                             sql.NullFloat64
			isDead                                sql.NullBool
		)

		if errScan := rows.Scan(&name, &classID, &class, &gearScore, &currentHP, &maxHP, &isDead, &skills,
			&damageStats, &skillStats, &lastUpdate, &entityType, &npcID, &characterID,
			&engr, &gearHash, &dps); errScan != nil {
			return nil, database.DBErr(errScan)
		}

		entity.Name = name.String
		entity.ClassID = uint32(classID.Int64)         //nolint:gosec
		entity.NpcID = uint32(npcID.Int64)             //nolint:gosec
		entity.CharacterID = uint64(characterID.Int64) //nolint:gosec
		entity.Class = class.String
		entity.GearScore = gearScore.Float64
		entity.GearHash = gearHash.String
		entity.CurrentHP = currentHP.Int64
		entity.MaxHP = maxHP.Int64
		entity.IsDead = isDead.Bool
		entity.LastUpdate = lastUpdate.Int64
		entity.EntityType = ParseEntityType(entityType.String)
		entity.Skills = decodeMap[uint32, Skill](skills, "skills")
		entity.DamageStats = decodeValue[DamageStats](damageStats, "damage_stats")
		entity.SkillStats = decodeValue[SkillStats](skillStats, "skill_stats")
		entity.Engravings = decodeValue[[]string](engr, "engravings")

		if entity.DamageStats.DPS == 0 && dps.Valid {
			entity.DamageStats.DPS = dps.Int64
		}

		entities = append(entities, entity)
	}

	if errRows := rows.Err(); errRows != nil {
		return nil, database.DBErr(errRows)
	}

	return entities, nil
}

// List returns one page of previews and the total number matching the same filters.
func (r Repository) List(ctx context.Context, listQuery ListQuery) ([]Preview, int64, error) {
	rows, errQuery := r.db.QueryBuilder(ctx, nil, listQuery.ListBuilder(r.db.Builder()))
	if errQuery != nil {
		return nil, 0, database.DBErr(errQuery)
	}

	defer rows.Close()

	previews := []Preview{}

	for rows.Next() {
		stored, errScan := scanPreview(rows)
		if errScan != nil {
			return nil, 0, errScan
		}

		previews = append(previews, stored.Preview)
	}

	if errRows := rows.Err(); errRows != nil {
		return nil, 0, database.DBErr(errRows)
	}

	total, errCount := r.db.GetCount(ctx, nil, listQuery.CountBuilder(r.db.Builder()))
	if errCount != nil {
		return nil, 0, errCount
	}

	return previews, total, nil
}

func (r Repository) Count(ctx context.Context) (int64, error) {
	return r.db.GetCount(ctx, nil, r.db.Builder().Select("COUNT(*)").From(search.ContentTable))
}

// MostRecentID is the id of the encounter with the latest fight start. ErrNoResult when the store is empty.
func (r Repository) MostRecentID(ctx context.Context) (int64, error) {
	row, errRow := r.db.QueryRowBuilder(ctx, nil, r.db.Builder().
		Select("id").
		From(search.ContentTable).
		OrderBy("fight_start DESC", "id DESC").
		Limit(1))
	if errRow != nil {
		return 0, errRow
	}

	var encounterID int64
	if errScan := row.Scan(&encounterID); errScan != nil {
		return 0, database.DBErr(errScan)
	}

	return encounterID, nil
}

// ToggleFavorite flips the favorite flag in a single statement. ErrNoResult when the id does not exist.
func (r Repository) ToggleFavorite(ctx context.Context, encounterID int64) error {
	affected, errUpdate := r.db.ExecUpdateBuilder(ctx, nil, r.db.Builder().
		Update(search.ContentTable).
		Set("favorite", sq.Expr("NOT favorite")).
		Where(sq.Eq{"id": encounterID}))
	if errUpdate != nil {
		return database.DBErr(errUpdate)
	}

	if affected == 0 {
		return database.ErrNoResult
	}

	return nil
}

// Delete removes one encounter. Deleting an unknown id is not an error.
func (r Repository) Delete(ctx context.Context, encounterID int64) (int64, error) {
	return r.deleteWhere(ctx, sq.Eq{"id": encounterID})
}

func (r Repository) DeleteMany(ctx context.Context, encounterIDs []int64) (int64, error) {
	if len(encounterIDs) == 0 {
		return 0, nil
	}

	return r.deleteWhere(ctx, sq.Eq{"id": encounterIDs})
}

// DeleteBelowDuration removes encounters shorter than minSeconds.
func (r Repository) DeleteBelowDuration(ctx context.Context, minSeconds int64, keepFavorites bool) (int64, error) {
	pred := sq.And{sq.Lt{"duration": minSeconds * 1000}}
	if keepFavorites {
		pred = append(pred, sq.Eq{"favorite": 0})
	}

	return r.deleteWhere(ctx, pred)
}

func (r Repository) DeleteAllUncleared(ctx context.Context, keepFavorites bool) (int64, error) {
	pred := sq.And{sq.Eq{"cleared": 0}}
	if keepFavorites {
		pred = append(pred, sq.Eq{"favorite": 0})
	}

	return r.deleteWhere(ctx, pred)
}

func (r Repository) DeleteAll(ctx context.Context, keepFavorites bool) (int64, error) {
	if keepFavorites {
		return r.deleteWhere(ctx, sq.Eq{"favorite": 0})
	}

	var deleted int64

	errTx := r.db.WrapTx(ctx, func(tx *sql.Tx) error {
		if errIndex := search.DeleteAll(ctx, tx); errIndex != nil {
			return errIndex
		}

		affected, errDelete := r.db.ExecDeleteBuilder(ctx, tx, r.db.Builder().Delete("encounter"))
		if errDelete != nil {
			return database.DBErr(errDelete)
		}

		deleted = affected

		return nil
	})
	if errTx != nil {
		return 0, errors.Join(errTx, ErrDelete)
	}

	return deleted, nil
}

// deleteWhere removes every encounter whose preview matches pred. The index entries are removed first
// while the preview rows still hold the indexed values, then the encounters are deleted and their
// entities and previews follow through the cascading foreign keys.
func (r Repository) deleteWhere(ctx context.Context, pred sq.Sqlizer) (int64, error) {
	selection, args, errSelection := r.db.Builder().
		Select("id").
		From(search.ContentTable).
		Where(pred).
		ToSql()
	if errSelection != nil {
		return 0, errors.Join(errSelection, database.ErrCreateQuery, ErrDelete)
	}

	var deleted int64

	errTx := r.db.WrapTx(ctx, func(tx *sql.Tx) error {
		if errIndex := search.DeleteMatching(ctx, tx, pred); errIndex != nil {
			return errIndex
		}

		affected, errDelete := r.db.ExecDeleteBuilder(ctx, tx, r.db.Builder().
			Delete("encounter").
			Where(sq.Expr("id IN ("+selection+")", args...)))
		if errDelete != nil {
			return database.DBErr(errDelete)
		}

		deleted = affected

		return nil
	})
	if errTx != nil {
		return 0, errors.Join(errTx, ErrDelete)
	}

	return deleted, nil
}

// RefreshPreview recomputes the roster and local player DPS of an encounter from its stored entities.
// The index entry is replaced only when the roster changed.
func (r Repository) RefreshPreview(ctx context.Context, encounterID int64) (Preview, error) {
	var preview Preview

	errTx := r.db.WrapTx(ctx, func(tx *sql.Tx) error {
		current, errCurrent := r.preview(ctx, tx, encounterID)
		if errCurrent != nil {
			return errCurrent
		}

		entities, errEntities := r.entities(ctx, tx, encounterID)
		if errEntities != nil {
			return errEntities
		}

		roster := EncodeRoster(entities)
		old := search.Document{ID: encounterID, BossName: current.BossName, Players: current.roster}
		updated := search.Document{ID: encounterID, BossName: current.BossName, Players: roster}

		var myDPS any

		current.MyDPS = 0
		if dps, found := localDPS(entities, current.LocalPlayer); found {
			myDPS = dps
			current.MyDPS = dps
		}

		// Removing the old entry needs the indexed values, so it happens before the row changes.
		if old != updated {
			if errIndex := search.Delete(ctx, tx, old); errIndex != nil {
				return errIndex
			}
		}

		if _, errUpdate := r.db.ExecUpdateBuilder(ctx, tx, r.db.Builder().
			Update(search.ContentTable).
			Set("players", roster).
			Set("my_dps", myDPS).
			Where(sq.Eq{"id": encounterID})); errUpdate != nil {
			return database.DBErr(errUpdate)
		}

		if old != updated {
			if errIndex := search.Insert(ctx, tx, updated); errIndex != nil {
				return errIndex
			}
		}

		preview = current.Preview
		preview.Classes, preview.Names = DecodeRoster(roster)

		return nil
	})
	if errTx != nil {
		return Preview{}, errTx
	}

	return preview, nil
}

type storedPreview struct {
	Preview

	roster string
}

func (r Repository) preview(ctx context.Context, tx *sql.Tx, encounterID int64) (storedPreview, error) {
	row, errRow := r.db.QueryRowBuilder(ctx, tx, r.db.Builder().
		Select("id", "fight_start", "current_boss", "duration", "difficulty",
			"favorite", "cleared", "local_player", "my_dps", "players").
		From(search.ContentTable).
		Where(sq.Eq{"id": encounterID}))
	if errRow != nil {
		return storedPreview{}, errRow
	}

	return scanPreview(row)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPreview(row rowScanner) (storedPreview, error) {
	var (
		stored                              storedPreview
		fightStart, duration, myDPS         sql.NullInt64
		bossName, difficulty, local, roster sql.NullString
		favorite, cleared                   sql.NullBool
	)

	if errScan := row.Scan(&stored.ID, &fightStart, &bossName, &duration, &difficulty,
		&favorite, &cleared, &local, &myDPS, &roster); errScan != nil {
		return storedPreview{}, database.DBErr(errScan)
	}

	stored.FightStart = fightStart.Int64
	stored.BossName = bossName.String
	stored.Duration = duration.Int64
	stored.Difficulty = difficulty.String
	stored.Favorite = favorite.Bool
	stored.Cleared = cleared.Bool
	stored.LocalPlayer = local.String
	stored.MyDPS = myDPS.Int64
	stored.roster = roster.String
	stored.Classes, stored.Names = DecodeRoster(roster.String)

	return stored, nil
}

// Bosses returns the distinct boss names present in the store in natural order.
func (r Repository) Bosses(ctx context.Context) ([]string, error) {
	rows, errQuery := r.db.QueryBuilder(ctx, nil, r.db.Builder().
		Select("DISTINCT current_boss").
		From(search.ContentTable).
		Where(sq.And{sq.NotEq{"current_boss": nil}, sq.NotEq{"current_boss": ""}}))
	if errQuery != nil {
		return nil, database.DBErr(errQuery)
	}

	defer rows.Close()

	bosses := []string{}

	for rows.Next() {
		var name string
		if errScan := rows.Scan(&name); errScan != nil {
			return nil, database.DBErr(errScan)
		}

		bosses = append(bosses, name)
	}

	if errRows := rows.Err(); errRows != nil {
		return nil, database.DBErr(errRows)
	}

	sort.Slice(bosses, func(i, j int) bool {
		return natural.Less(bosses[i], bosses[j])
	})

	return bosses, nil
}

// Info reports row counts and the store size. The filtered total counts encounters lasting at least
// minSeconds.
func (r Repository) Info(ctx context.Context, minSeconds int64) (DBInfo, error) {
	total, errTotal := r.Count(ctx)
	if errTotal != nil {
		return DBInfo{}, errTotal
	}

	filtered, errFiltered := r.db.GetCount(ctx, nil, r.db.Builder().
		Select("COUNT(*)").
		From(search.ContentTable).
		Where(sq.GtOrEq{"duration": minSeconds * 1000}))
	if errFiltered != nil {
		return DBInfo{}, errFiltered
	}

	size, errSize := r.db.SizeOnDisk(ctx)
	if errSize != nil {
		return DBInfo{}, errors.Join(errSize, database.ErrStoreUnavailable)
	}

	return DBInfo{
		Size:                    humanize.Bytes(uint64(size)), //nolint:gosec
		SizeBytes:               size,
		FreeBytes:               du.NewDiskUsage(filepath.Dir(r.db.Path())).Free(),
		TotalEncounters:         total,
		TotalEncountersFiltered: filtered,
	}, nil
}

// Optimize compacts the search index then rebuilds the store file.
func (r Repository) Optimize(ctx context.Context) error {
	if errIndex := r.db.WrapTx(ctx, func(tx *sql.Tx) error {
		return search.Optimize(ctx, tx)
	}); errIndex != nil {
		return errIndex
	}

	return r.db.Vacuum(ctx)
}

// Vacuum releases pages freed by earlier deletions.
func (r Repository) Vacuum(ctx context.Context) error {
	return r.db.Vacuum(ctx)
}

// RebuildSearchIndex regenerates every index entry from the preview table.
func (r Repository) RebuildSearchIndex(ctx context.Context) error {
	return r.db.WrapTx(ctx, func(tx *sql.Tx) error {
		return search.Rebuild(ctx, tx)
	})
}

// CheckSearchIndex returns search.ErrCorrupt when the index disagrees with the preview table.
func (r Repository) CheckSearchIndex(ctx context.Context) error {
	return r.db.WrapTx(ctx, func(tx *sql.Tx) error {
		return search.Check(ctx, tx)
	})
}

// SearchMatches returns the ids held by the search index for the text. Entries left behind by an
// unsynchronized delete are included.
func (r Repository) SearchMatches(ctx context.Context, text string) ([]int64, error) {
	var ids []int64

	errTx := r.db.WrapTx(ctx, func(tx *sql.Tx) error {
		var errLookup error
		ids, errLookup = search.Lookup(ctx, tx, text)

		return errLookup
	})

	return ids, errTx
}
