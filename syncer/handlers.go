package syncer

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/ims_backend/models"
	"github.com/mmdatafocus/ims_backend/utils"
)

func (c *Coordinator) SyncHandler() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		reqCtx := utils.SetSyncTriggerInContext(ctx.Request.Context(), string(models.SyncTriggerManual))
		result, err := c.Sync(reqCtx)
		if errors.Is(err, ErrSyncInProgress) {
			ctx.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		if err != nil {
			ctx.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
			return
		}
		ctx.JSON(http.StatusOK, result)
	}
}

func (c *Coordinator) StatusHandler() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		status, err := c.Status(ctx.Request.Context())
		if err != nil {
			ctx.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		ctx.JSON(http.StatusOK, status)
	}
}

func (c *Coordinator) HistoryHandler() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		limit := 20
		if v := strings.TrimSpace(ctx.Query("limit")); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 200 {
				limit = n
			}
		}
		runs, err := c.History(ctx.Request.Context(), limit)
		if err != nil {
			ctx.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		ctx.JSON(http.StatusOK, SyncHistoryResponse{Items: runs})
	}
}

func (c *Coordinator) ConflictsHandler() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		rows, err := c.ListConflicts(ctx.Request.Context())
		if err != nil {
			ctx.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		ctx.JSON(http.StatusOK, gin.H{"items": rows})
	}
}

func (c *Coordinator) ResolveConflictHandler() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		var req ResolveRequest
		if err := ctx.ShouldBindJSON(&req); err != nil {
			ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "fields": utils.ProcessValidationErrors(err)})
			return
		}
		err := c.ResolveConflict(ctx.Request.Context(), req.EntityType, req.EntityId, req.Keep)
		switch {
		case errors.Is(err, models.ErrNotFound):
			ctx.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		case errors.Is(err, models.ErrInvalidInput):
			ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case err != nil:
			ctx.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		default:
			ctx.Status(http.StatusNoContent)
		}
	}
}

// PubSubPushHandler accepts Pub/Sub push deliveries and triggers one cycle.
// It always answers 204 so the message is not redelivered.
func (c *Coordinator) PubSubPushHandler() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		body, err := io.ReadAll(ctx.Request.Body)
		if err != nil {
			ctx.Status(http.StatusNoContent)
			return
		}
		var envelope PubSubPushEnvelope
		if err := json.Unmarshal(body, &envelope); err != nil {
			ctx.Status(http.StatusNoContent)
			return
		}
		c.Trigger(ctx.Request.Context(), models.SyncTriggerPubSub)
		ctx.Status(http.StatusNoContent)
	}
}
