package api

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/ims_backend/export"
	"github.com/mmdatafocus/ims_backend/models"
	"github.com/mmdatafocus/ims_backend/utils"
)

func (h *handler) listProducts(c *gin.Context) {
	products, err := h.store.ListProducts(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": products})
}

func (h *handler) addProduct(c *gin.Context) {
	var input models.NewProduct
	if err := c.ShouldBindJSON(&input); err != nil {
		respondBindError(c, err)
		return
	}
	product, err := h.store.AddProduct(c.Request.Context(), &input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, product)
}

func (h *handler) getProduct(c *gin.Context) {
	id, ok := paramId(c)
	if !ok {
		return
	}
	product, err := h.store.GetProduct(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, product)
}

func (h *handler) updateProduct(c *gin.Context) {
	id, ok := paramId(c)
	if !ok {
		return
	}
	var patch models.ProductPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		respondBindError(c, err)
		return
	}
	product, err := h.store.UpdateProduct(c.Request.Context(), id, &patch)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, product)
}

// deleteProduct soft-deletes unless ?hard=true, which is admin only.
func (h *handler) deleteProduct(c *gin.Context) {
	id, ok := paramId(c)
	if !ok {
		return
	}
	hard := strings.EqualFold(strings.TrimSpace(c.Query("hard")), "true")
	if hard {
		role, ok := utils.GetUserRoleFromContext(c.Request.Context())
		if (ok && role != string(models.UserRoleAdmin)) || (!ok && h.authRequired) {
			c.JSON(http.StatusForbidden, gin.H{"error": "admin only"})
			return
		}
	}
	if err := h.store.DeleteProduct(c.Request.Context(), id, !hard); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *handler) searchProducts(c *gin.Context) {
	products, err := h.store.SearchProducts(c.Request.Context(), c.Query("q"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": products})
}

func (h *handler) lookupProduct(c *gin.Context) {
	products, err := h.store.LookupByBarcodeOrCode(c.Request.Context(), c.Query("code"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": products})
}

func (h *handler) lowStockProducts(c *gin.Context) {
	products, err := h.store.LowStockProducts(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": products})
}

func (h *handler) exportProducts(c *gin.Context) {
	products, err := h.store.ListProducts(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	f, err := export.ProductWorkbook(products)
	if err != nil {
		respondError(c, err)
		return
	}
	defer f.Close()
	filename := fmt.Sprintf("products-%d.xlsx", h.store.Now())
	c.Header("Content-Type", export.ContentType)
	c.Header("Content-Disposition", "attachment; filename="+filename)
	c.Status(http.StatusOK)
	if err := f.Write(c.Writer); err != nil {
		_ = c.Error(err)
	}
}
