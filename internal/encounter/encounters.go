package encounter

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/raidmeter/encounters/internal/database"
	"github.com/raidmeter/encounters/internal/metrics"
	"github.com/raidmeter/encounters/pkg/log"
)

var ErrInvalidEncounter = errors.New("invalid encounter")

// PruneRequest selects which encounters a prune removes. All takes precedence over Uncleared which
// takes precedence over MinDuration.
type PruneRequest struct {
	MinDuration   int64 `json:"minDuration" binding:"gte=0"`
	All           bool  `json:"all"`
	Uncleared     bool  `json:"uncleared"`
	KeepFavorites bool  `json:"keepFavorites"`
}

// Encounters is the operation surface used by the display layer and the CLI. Listing and counting
// never fail, errors are logged and an empty result is returned instead.
type Encounters struct {
	repository  Repository
	maintenance *Maintenance
	metrics     metrics.Metrics
}

func NewEncounters(repository Repository, maintenance *Maintenance, metrics metrics.Metrics) Encounters {
	return Encounters{repository: repository, maintenance: maintenance, metrics: metrics}
}

func (e Encounters) List(ctx context.Context, listQuery ListQuery) EncountersOverview {
	started := time.Now()

	previews, total, errList := e.repository.List(ctx, listQuery)
	e.metrics.Listed(time.Since(started), errList)

	if errList != nil {
		slog.Error("Failed to list encounters", log.ErrAttr(errList))

		return EncountersOverview{Encounters: []Preview{}, TotalEncounters: 0}
	}

	return EncountersOverview{Encounters: previews, TotalEncounters: total}
}

func (e Encounters) Count(ctx context.Context) int64 {
	count, errCount := e.repository.Count(ctx)
	if errCount != nil {
		e.metrics.Listed(0, errCount)
		slog.Error("Failed to count encounters", log.ErrAttr(errCount))

		return 0
	}

	return count
}

// Get returns the encounter or Empty when it does not exist.
func (e Encounters) Get(ctx context.Context, encounterID int64) (Encounter, error) {
	enc, errGet := e.repository.Get(ctx, encounterID)
	if errGet != nil {
		if errors.Is(errGet, database.ErrNoResult) {
			return Empty(), nil
		}

		return Empty(), errGet
	}

	return enc, nil
}

// MostRecentID returns database.ErrNoResult when no encounters are stored.
func (e Encounters) MostRecentID(ctx context.Context) (int64, error) {
	return e.repository.MostRecentID(ctx)
}

func (e Encounters) Save(ctx context.Context, enc *Encounter) error {
	if enc.FightStart <= 0 || enc.Duration < 0 {
		return ErrInvalidEncounter
	}

	if enc.Entities == nil {
		enc.Entities = map[string]Entity{}
	}

	if errSave := e.repository.Save(ctx, enc); errSave != nil {
		return errSave
	}

	e.metrics.Saved()
	slog.Debug("Saved encounter", slog.Int64("encounter_id", enc.ID), slog.String("boss", enc.CurrentBossName))

	return nil
}

func (e Encounters) ToggleFavorite(ctx context.Context, encounterID int64) error {
	return e.repository.ToggleFavorite(ctx, encounterID)
}

func (e Encounters) RefreshPreview(ctx context.Context, encounterID int64) (Preview, error) {
	return e.repository.RefreshPreview(ctx, encounterID)
}

func (e Encounters) Bosses(ctx context.Context) ([]string, error) {
	return e.repository.Bosses(ctx)
}

func (e Encounters) Delete(ctx context.Context, encounterID int64) error {
	deleted, errDelete := e.repository.Delete(ctx, encounterID)
	if errDelete != nil {
		return errDelete
	}

	e.deleted("single", deleted, false)

	return nil
}

func (e Encounters) DeleteMany(ctx context.Context, encounterIDs []int64) (int64, error) {
	deleted, errDelete := e.repository.DeleteMany(ctx, encounterIDs)
	if errDelete != nil {
		return 0, errDelete
	}

	e.deleted("many", deleted, true)

	return deleted, nil
}

func (e Encounters) DeleteBelowDuration(ctx context.Context, minSeconds int64, keepFavorites bool) (int64, error) {
	deleted, errDelete := e.repository.DeleteBelowDuration(ctx, minSeconds, keepFavorites)
	if errDelete != nil {
		return 0, errDelete
	}

	e.deleted("below_duration", deleted, true)

	return deleted, nil
}

func (e Encounters) DeleteAll(ctx context.Context, keepFavorites bool) (int64, error) {
	deleted, errDelete := e.repository.DeleteAll(ctx, keepFavorites)
	if errDelete != nil {
		return 0, errDelete
	}

	e.deleted("all", deleted, true)

	return deleted, nil
}

func (e Encounters) DeleteAllUncleared(ctx context.Context, keepFavorites bool) (int64, error) {
	deleted, errDelete := e.repository.DeleteAllUncleared(ctx, keepFavorites)
	if errDelete != nil {
		return 0, errDelete
	}

	e.deleted("uncleared", deleted, true)

	return deleted, nil
}

// Prune dispatches to the bulk delete selected by req.
func (e Encounters) Prune(ctx context.Context, req PruneRequest) (int64, error) {
	switch {
	case req.All:
		return e.DeleteAll(ctx, req.KeepFavorites)
	case req.Uncleared:
		return e.DeleteAllUncleared(ctx, req.KeepFavorites)
	default:
		return e.DeleteBelowDuration(ctx, req.MinDuration, req.KeepFavorites)
	}
}

func (e Encounters) deleted(kind string, count int64, compact bool) {
	e.metrics.Deleted(kind, count)
	slog.Info("Deleted encounters", slog.String("kind", kind), slog.Int64("count", count))

	if !compact || count == 0 || e.maintenance == nil {
		return
	}

	if _, errQueue := e.maintenance.Enqueue(JobVacuum); errQueue != nil {
		slog.Warn("Could not schedule compaction", log.ErrAttr(errQueue))
	}
}

func (e Encounters) Info(ctx context.Context, minSeconds int64) (DBInfo, error) {
	return e.repository.Info(ctx, minSeconds)
}

// Optimize compacts the index and the store file in the calling goroutine.
func (e Encounters) Optimize(ctx context.Context) error {
	return e.maintenance.Run(ctx, JobOptimize)
}

// RebuildSearchIndex regenerates the index in the calling goroutine.
func (e Encounters) RebuildSearchIndex(ctx context.Context) error {
	return e.maintenance.Run(ctx, JobReindex)
}

func (e Encounters) CheckSearchIndex(ctx context.Context) error {
	return e.repository.CheckSearchIndex(ctx)
}

// Schedule queues a maintenance job for the background worker.
func (e Encounters) Schedule(kind JobKind) (Job, error) {
	return e.maintenance.Enqueue(kind)
}
