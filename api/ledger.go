package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/ims_backend/models"
)

type countRequest struct {
	Counted *int   `json:"counted" binding:"required,gte=0"`
	Reason  string `json:"reason" binding:"max=255"`
}

func (h *handler) adjustStock(c *gin.Context) {
	id, ok := paramId(c)
	if !ok {
		return
	}
	var input models.NewStockAdjustment
	if err := c.ShouldBindJSON(&input); err != nil {
		respondBindError(c, err)
		return
	}
	result, err := h.store.AdjustStock(c.Request.Context(), id, input.Quantity, input.Type, input.Reason, input.Reference)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, result)
}

func (h *handler) countStock(c *gin.Context) {
	id, ok := paramId(c)
	if !ok {
		return
	}
	var input countRequest
	if err := c.ShouldBindJSON(&input); err != nil {
		respondBindError(c, err)
		return
	}
	result, err := h.store.CountStock(c.Request.Context(), id, *input.Counted, input.Reason)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *handler) listAdjustments(c *gin.Context) {
	productId, ok := queryInt(c, "productId")
	if !ok {
		return
	}
	limit, ok := queryLimit(c)
	if !ok {
		return
	}
	rows, err := h.store.ListAdjustments(c.Request.Context(), models.AdjustmentQuery{ProductId: productId, Limit: limit})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": rows})
}

func (h *handler) createSale(c *gin.Context) {
	var input models.NewSale
	if err := c.ShouldBindJSON(&input); err != nil {
		respondBindError(c, err)
		return
	}
	txn, err := h.store.CreateSaleTransaction(c.Request.Context(), &input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, txn)
}

func (h *handler) listTransactions(c *gin.Context) {
	limit, ok := queryLimit(c)
	if !ok {
		return
	}
	rows, err := h.store.ListTransactions(c.Request.Context(), limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": rows})
}

func (h *handler) getTransaction(c *gin.Context) {
	id, ok := paramId(c)
	if !ok {
		return
	}
	txn, err := h.store.GetTransaction(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, txn)
}

func (h *handler) auditLogs(c *gin.Context) {
	entityId, ok := queryInt(c, "entityId")
	if !ok {
		return
	}
	limit, ok := queryLimit(c)
	if !ok {
		return
	}
	logs, err := h.store.AuditLogs(c.Request.Context(), models.AuditQuery{
		EntityType: models.EntityType(c.Query("entityType")),
		EntityId:   entityId,
		Limit:      limit,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": logs})
}
