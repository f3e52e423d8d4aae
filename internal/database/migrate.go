package database

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/raidmeter/encounters/internal/search"
)

// SchemaVersion is the version stamp written to new encounters and used as the column default.
const SchemaVersion = 3

var (
	ErrMigrate      = errors.New("migration failed to complete")
	ErrMigrateProbe = errors.New("failed to probe schema")
	ErrMigrateRead  = errors.New("failed to read migration source")
)

//go:embed migrations
var migrations embed.FS

// Step is a single named schema change. Pending probes the current schema and reports whether Apply
// still needs to run, so re-running a step against an up-to-date schema is a no-op.
type Step struct {
	Name    string
	Pending func(ctx context.Context, tx *sql.Tx) (bool, error)
	Apply   func(ctx context.Context, tx *sql.Tx) error
}

// columnMoves are the encounter columns owned by encounter_preview once it exists.
var columnMoves = []string{ //nolint:gochecknoglobals
	"fight_start", "current_boss", "duration", "difficulty",
	"local_player", "favorite", "cleared", "boss_only_damage",
}

// Steps returns the ordered migration plan. Steps are evaluated one at a time so each probe sees the
// result of the steps before it.
func Steps() []Step {
	return []Step{
		{
			Name:    "encounter_table",
			Pending: tableMissing("encounter"),
			Apply:   execFile("encounter.sql"),
		},
		legacyColumns("encounter_misc", "encounter", "misc", "ALTER TABLE encounter ADD COLUMN misc TEXT"),
		legacyColumns("encounter_difficulty", "encounter", "difficulty", "ALTER TABLE encounter ADD COLUMN difficulty TEXT"),
		legacyColumns("encounter_flags", "encounter", "favorite",
			"ALTER TABLE encounter ADD COLUMN favorite BOOLEAN DEFAULT 0",
			"ALTER TABLE encounter ADD COLUMN version INTEGER DEFAULT "+strconv.Itoa(SchemaVersion),
			"ALTER TABLE encounter ADD COLUMN cleared BOOLEAN"),
		legacyColumns("encounter_boss_only_damage", "encounter", "boss_only_damage",
			"ALTER TABLE encounter ADD COLUMN boss_only_damage BOOLEAN NOT NULL DEFAULT 0"),
		legacyColumns("encounter_shielding", "encounter", "total_shielding",
			"ALTER TABLE encounter ADD COLUMN total_shielding INTEGER DEFAULT 0",
			"ALTER TABLE encounter ADD COLUMN total_effective_shielding INTEGER DEFAULT 0",
			"ALTER TABLE encounter ADD COLUMN applied_shield_buffs TEXT"),
		{
			Name:    "entity_table",
			Pending: tableMissing("entity"),
			Apply:   execFile("entity.sql"),
		},
		entityColumn("dps", "INTEGER"),
		entityColumn("character_id", "INTEGER"),
		entityColumn("engravings", "TEXT"),
		entityColumn("gear_hash", "TEXT"),
		{
			Name: "backfill_cleared",
			Pending: func(ctx context.Context, tx *sql.Tx) (bool, error) {
				hasColumn, errColumn := columnExists(ctx, tx, "encounter", "cleared")
				if errColumn != nil || !hasColumn {
					return false, errColumn
				}

				return rowExists(ctx, tx, "SELECT 1 FROM encounter WHERE cleared IS NULL LIMIT 1")
			},
			Apply: execStatements(
				"UPDATE encounter SET cleared = coalesce(json_extract(misc, '$.raidClear'), 0) WHERE cleared IS NULL"),
		},
		{
			Name: "backfill_entity_dps",
			Pending: func(ctx context.Context, tx *sql.Tx) (bool, error) {
				return rowExists(ctx, tx, "SELECT 1 FROM entity WHERE dps IS NULL LIMIT 1")
			},
			Apply: execStatements(
				"UPDATE entity SET dps = coalesce(json_extract(damage_stats, '$.dps'), 0) WHERE dps IS NULL"),
		},
		{
			Name:    "encounter_preview",
			Pending: tableMissing(search.ContentTable),
			Apply: func(ctx context.Context, tx *sql.Tx) error {
				if err := execFile("encounter_preview.sql")(ctx, tx); err != nil {
					return err
				}

				return dropColumns(ctx, tx, "encounter", columnMoves)
			},
		},
		{
			Name:    "encounter_search",
			Pending: tableMissing(search.Table),
			Apply: func(ctx context.Context, tx *sql.Tx) error {
				if err := search.Create(ctx, tx); err != nil {
					return err
				}

				return search.Rebuild(ctx, tx)
			},
		},
	}
}

// Migrate brings the schema up to date inside a single transaction. Any failure rolls back every step
// and leaves the store unusable, so it is reported as ErrStoreUnavailable.
func (db *sqliteStore) Migrate(ctx context.Context) ([]string, error) {
	var applied []string

	errTx := db.WrapTx(ctx, func(tx *sql.Tx) error {
		var errRun error
		applied, errRun = RunSteps(ctx, tx, Steps())

		return errRun
	})
	if errTx != nil {
		return nil, errors.Join(errTx, ErrMigrate, ErrStoreUnavailable)
	}

	db.migrated = true

	for _, name := range applied {
		slog.Info("Applied migration", slog.String("step", name))
	}

	return applied, nil
}

// RunSteps applies every pending step in order and returns the names of those that ran.
func RunSteps(ctx context.Context, tx *sql.Tx, steps []Step) ([]string, error) {
	applied := []string{}

	for _, step := range steps {
		pending, errPending := step.Pending(ctx, tx)
		if errPending != nil {
			return nil, errors.Join(errPending, fmt.Errorf("%w: %s", ErrMigrateProbe, step.Name))
		}

		if !pending {
			slog.Debug("Migration already applied", slog.String("step", step.Name))

			continue
		}

		if errApply := step.Apply(ctx, tx); errApply != nil {
			return nil, errors.Join(errApply, fmt.Errorf("%w: %s", ErrMigrate, step.Name))
		}

		applied = append(applied, step.Name)
	}

	return applied, nil
}

// legacyColumns adds a group of encounter columns when the probe column is missing. These columns
// move to encounter_preview later, so nothing is added once the preview table exists.
func legacyColumns(name string, table string, probe string, statements ...string) Step {
	return Step{
		Name: name,
		Pending: func(ctx context.Context, tx *sql.Tx) (bool, error) {
			hasPreview, errPreview := tableExists(ctx, tx, search.ContentTable)
			if errPreview != nil || hasPreview {
				return false, errPreview
			}

			hasColumn, errColumn := columnExists(ctx, tx, table, probe)

			return !hasColumn, errColumn
		},
		Apply: execStatements(statements...),
	}
}

func entityColumn(column string, kind string) Step {
	return Step{
		Name: "entity_" + column,
		Pending: func(ctx context.Context, tx *sql.Tx) (bool, error) {
			hasColumn, err := columnExists(ctx, tx, "entity", column)

			return !hasColumn, err
		},
		Apply: execStatements(fmt.Sprintf("ALTER TABLE entity ADD COLUMN %s %s", column, kind)),
	}
}

func tableMissing(table string) func(ctx context.Context, tx *sql.Tx) (bool, error) {
	return func(ctx context.Context, tx *sql.Tx) (bool, error) {
		exists, err := tableExists(ctx, tx, table)

		return !exists, err
	}
}

func tableExists(ctx context.Context, tx *sql.Tx, table string) (bool, error) {
	return rowExists(ctx, tx, "SELECT 1 FROM sqlite_master WHERE type = 'table' AND name = ?", table)
}

func columnExists(ctx context.Context, tx *sql.Tx, table string, column string) (bool, error) {
	return rowExists(ctx, tx, "SELECT 1 FROM pragma_table_info(?) WHERE name = ?", table, column)
}

func rowExists(ctx context.Context, tx *sql.Tx, query string, args ...any) (bool, error) {
	var found int
	if errScan := tx.QueryRowContext(ctx, query, args...).Scan(&found); errScan != nil {
		if errors.Is(errScan, sql.ErrNoRows) {
			return false, nil
		}

		return false, errors.Join(errScan, ErrMigrateProbe)
	}

	return true, nil
}

func dropColumns(ctx context.Context, tx *sql.Tx, table string, columns []string) error {
	for _, column := range columns {
		exists, errExists := columnExists(ctx, tx, table, column)
		if errExists != nil {
			return errExists
		}

		if !exists {
			continue
		}

		if _, errDrop := tx.ExecContext(ctx, fmt.Sprintf("ALTER TABLE %s DROP COLUMN %s", table, column)); errDrop != nil {
			return errors.Join(errDrop, ErrMigrate)
		}
	}

	return nil
}

func execStatements(statements ...string) func(ctx context.Context, tx *sql.Tx) error {
	return func(ctx context.Context, tx *sql.Tx) error {
		for _, statement := range statements {
			if _, err := tx.ExecContext(ctx, statement); err != nil {
				return errors.Join(err, ErrMigrate)
			}
		}

		return nil
	}
}

func execFile(name string) func(ctx context.Context, tx *sql.Tx) error {
	return func(ctx context.Context, tx *sql.Tx) error {
		body, errRead := migrations.ReadFile("migrations/" + name)
		if errRead != nil {
			return errors.Join(errRead, ErrMigrateRead)
		}

		query := strings.ReplaceAll(string(body), "{schema_version}", strconv.Itoa(SchemaVersion))
		if _, err := tx.ExecContext(ctx, query); err != nil {
			return errors.Join(err, ErrMigrate)
		}

		return nil
	}
}
