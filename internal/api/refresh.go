package api

import (
	"errors"
	"io"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"docsynth/internal/synthesis"
	"docsynth/internal/worker"
)

type refreshRequest struct {
	Force bool `json:"force"`
}

// refreshTenant queues a background synthesis for every assigned document type.
func (h *Handler) refreshTenant(c *gin.Context) {
	if h.refresher == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"success": false, "status": "error", "error": "background refresh is not running"})
		return
	}
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		respondError(c, &synthesis.ValidationError{Field: "request body"})
		return
	}
	tenant, ok := h.requireTenant(c)
	if !ok {
		return
	}
	types, err := h.store.AssignedDocumentTypes(c.Request.Context(), tenant.ID)
	if err != nil {
		respondError(c, &synthesis.PersistenceError{Op: "list document types", Err: err})
		return
	}

	queued := make([]string, 0, len(types))
	for _, documentType := range types {
		err := h.refresher.Submit(worker.Task{TenantID: tenant.ID, DocumentType: documentType, Force: req.Force})
		if errors.Is(err, worker.ErrDispatcherBusy) {
			c.JSON(http.StatusTooManyRequests, gin.H{
				"success": false,
				"status":  "error",
				"error":   "server is busy, please retry",
				"queued":  queued,
			})
			return
		}
		if err != nil {
			respondError(c, err)
			return
		}
		queued = append(queued, documentType)
	}
	operator := operatorOf(c)
	log.Printf("api: queued refresh of %d document types for tenant %s (operator %q)", len(queued), tenant.ID, operator)
	body := gin.H{"success": true, "tenantId": tenant.ID, "queued": queued}
	if operator != "" {
		body["requestedBy"] = operator
	}
	c.JSON(http.StatusAccepted, body)
}

func (h *Handler) cancelRefresh(c *gin.Context) {
	if h.refresher == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"success": false, "status": "error", "error": "background refresh is not running"})
		return
	}
	tenant, ok := h.requireTenant(c)
	if !ok {
		return
	}
	dropped := h.refresher.CancelTenant(tenant.ID)
	c.JSON(http.StatusOK, gin.H{"success": true, "tenantId": tenant.ID, "dropped": dropped})
}
