package encounter

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/raidmeter/encounters/internal/database"
	"github.com/raidmeter/encounters/internal/httphelper"
)

type encountersHandler struct {
	encounters Encounters
}

type deleteManyRequest struct {
	IDs []int64 `json:"ids" binding:"required,dive,gt=0"`
}

type deletedResponse struct {
	Deleted int64 `json:"deleted"`
}

type infoQuery struct {
	MinDuration int64 `schema:"min_duration" url:"min_duration,omitempty" binding:"gte=0"`
}

func NewEncountersHandler(engine *gin.Engine, encounters Encounters) {
	handler := encountersHandler{encounters: encounters}

	engine.GET("/api/encounters", handler.onAPIGetEncounters())
	engine.POST("/api/encounters", handler.onAPIPostEncounter())
	engine.GET("/api/encounters/count", handler.onAPIGetCount())
	engine.GET("/api/encounters/latest", handler.onAPIGetLatest())
	engine.GET("/api/encounters/bosses", handler.onAPIGetBosses())
	engine.GET("/api/encounters/:encounter_id", handler.onAPIGetEncounter())
	engine.POST("/api/encounters/:encounter_id/favorite", handler.onAPIPostFavorite())
	engine.POST("/api/encounters/:encounter_id/refresh", handler.onAPIPostRefresh())
	engine.DELETE("/api/encounters/:encounter_id", handler.onAPIDeleteEncounter())
	engine.POST("/api/encounters/delete", handler.onAPIPostDeleteMany())
	engine.POST("/api/encounters/prune", handler.onAPIPostPrune())

	engine.GET("/api/database", handler.onAPIGetDatabase())
	engine.POST("/api/database/optimize", handler.onAPIPostSchedule(JobOptimize))
	engine.POST("/api/database/reindex", handler.onAPIPostSchedule(JobReindex))
}

func (h encountersHandler) onAPIGetEncounters() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		listQuery, ok := httphelper.BindQuery[ListQuery](ctx)
		if !ok {
			return
		}

		ctx.JSON(http.StatusOK, h.encounters.List(ctx, listQuery))
	}
}

func (h encountersHandler) onAPIPostEncounter() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		enc, ok := httphelper.BindJSON[Encounter](ctx)
		if !ok {
			return
		}

		if err := h.encounters.Save(ctx, &enc); err != nil {
			if errors.Is(err, ErrInvalidEncounter) {
				httphelper.SetError(ctx, httphelper.NewAPIError(http.StatusBadRequest, errors.Join(err, httphelper.ErrBadRequest)))

				return
			}

			httphelper.SetError(ctx, httphelper.NewAPIError(http.StatusInternalServerError, errors.Join(err, httphelper.ErrInternal)))

			return
		}

		ctx.JSON(http.StatusCreated, httphelper.ResultID{ID: enc.ID})
	}
}

func (h encountersHandler) onAPIGetCount() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, httphelper.ResultsCount{Count: h.encounters.Count(ctx)})
	}
}

func (h encountersHandler) onAPIGetLatest() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		encounterID, errID := h.encounters.MostRecentID(ctx)
		if errID != nil {
			if errors.Is(errID, database.ErrNoResult) {
				httphelper.SetError(ctx, httphelper.NewAPIError(http.StatusNotFound, httphelper.ErrNotFound))

				return
			}

			httphelper.SetError(ctx, httphelper.NewAPIError(http.StatusInternalServerError, errors.Join(errID, httphelper.ErrInternal)))

			return
		}

		ctx.JSON(http.StatusOK, httphelper.ResultID{ID: encounterID})
	}
}

func (h encountersHandler) onAPIGetBosses() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		bosses, errBosses := h.encounters.Bosses(ctx)
		if errBosses != nil {
			httphelper.SetError(ctx, httphelper.NewAPIError(http.StatusInternalServerError, errors.Join(errBosses, httphelper.ErrInternal)))

			return
		}

		ctx.JSON(http.StatusOK, bosses)
	}
}

func (h encountersHandler) onAPIGetEncounter() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		encounterID, idFound := httphelper.GetInt64Param(ctx, "encounter_id")
		if !idFound {
			return
		}

		enc, errGet := h.encounters.Get(ctx, encounterID)
		if errGet != nil {
			httphelper.SetError(ctx, httphelper.NewAPIError(http.StatusInternalServerError, errors.Join(errGet, httphelper.ErrInternal)))

			return
		}

		ctx.JSON(http.StatusOK, enc)
	}
}

func (h encountersHandler) onAPIPostFavorite() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		encounterID, idFound := httphelper.GetInt64Param(ctx, "encounter_id")
		if !idFound {
			return
		}

		if err := h.encounters.ToggleFavorite(ctx, encounterID); err != nil {
			setStoreError(ctx, err)

			return
		}

		ctx.JSON(http.StatusOK, gin.H{})
	}
}

func (h encountersHandler) onAPIPostRefresh() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		encounterID, idFound := httphelper.GetInt64Param(ctx, "encounter_id")
		if !idFound {
			return
		}

		preview, errRefresh := h.encounters.RefreshPreview(ctx, encounterID)
		if errRefresh != nil {
			setStoreError(ctx, errRefresh)

			return
		}

		ctx.JSON(http.StatusOK, preview)
	}
}

func (h encountersHandler) onAPIDeleteEncounter() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		encounterID, idFound := httphelper.GetInt64Param(ctx, "encounter_id")
		if !idFound {
			return
		}

		if err := h.encounters.Delete(ctx, encounterID); err != nil {
			setStoreError(ctx, err)

			return
		}

		ctx.JSON(http.StatusOK, gin.H{})
	}
}

func (h encountersHandler) onAPIPostDeleteMany() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		req, ok := httphelper.BindJSON[deleteManyRequest](ctx)
		if !ok {
			return
		}

		deleted, errDelete := h.encounters.DeleteMany(ctx, req.IDs)
		if errDelete != nil {
			setStoreError(ctx, errDelete)

			return
		}

		ctx.JSON(http.StatusOK, deletedResponse{Deleted: deleted})
	}
}

func (h encountersHandler) onAPIPostPrune() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		req, ok := httphelper.BindJSON[PruneRequest](ctx)
		if !ok {
			return
		}

		deleted, errPrune := h.encounters.Prune(ctx, req)
		if errPrune != nil {
			setStoreError(ctx, errPrune)

			return
		}

		ctx.JSON(http.StatusOK, deletedResponse{Deleted: deleted})
	}
}

func (h encountersHandler) onAPIGetDatabase() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		query, ok := httphelper.BindQuery[infoQuery](ctx)
		if !ok {
			return
		}

		info, errInfo := h.encounters.Info(ctx, query.MinDuration)
		if errInfo != nil {
			setStoreError(ctx, errInfo)

			return
		}

		ctx.JSON(http.StatusOK, info)
	}
}

func (h encountersHandler) onAPIPostSchedule(kind JobKind) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		job, errJob := h.encounters.Schedule(kind)
		if errJob != nil {
			if errors.Is(errJob, ErrQueueFull) {
				httphelper.SetError(ctx, httphelper.NewAPIError(http.StatusServiceUnavailable, errors.Join(errJob, httphelper.ErrQueueFull)))

				return
			}

			httphelper.SetError(ctx, httphelper.NewAPIError(http.StatusInternalServerError, errors.Join(errJob, httphelper.ErrInternal)))

			return
		}

		ctx.JSON(http.StatusAccepted, job)
	}
}

// setStoreError maps store failures onto response codes.
func setStoreError(ctx *gin.Context, err error) {
	switch {
	case errors.Is(err, database.ErrNoResult):
		httphelper.SetError(ctx, httphelper.NewAPIError(http.StatusNotFound, httphelper.ErrNotFound))
	case errors.Is(err, database.ErrBusy):
		httphelper.SetError(ctx, httphelper.NewAPIError(http.StatusServiceUnavailable, errors.Join(err, httphelper.ErrServiceBusy)))
	default:
		httphelper.SetError(ctx, httphelper.NewAPIError(http.StatusInternalServerError, errors.Join(err, httphelper.ErrInternal)))
	}
}
