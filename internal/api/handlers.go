package api

import (
	"context"
	"database/sql"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"docsynth/internal/auth"
	"docsynth/internal/models"
	"docsynth/internal/synthesis"
	"docsynth/internal/worker"
)

type Synthesizer interface {
	Synthesize(ctx context.Context, req synthesis.Request) (*synthesis.Result, error)
}

type Refresher interface {
	Submit(task worker.Task) error
	CancelTenant(tenantID string) int
}

// JobCache serves terminal job snapshots without touching the database.
type JobCache interface {
	LoadJob(ctx context.Context, id string) (*models.SynthesisJob, bool)
}

// Store is the read side the handlers need. *storage.Store satisfies it.
type Store interface {
	GetTenant(ctx context.Context, id string) (*models.Tenant, error)
	AssignedDocumentTypes(ctx context.Context, tenantID string) ([]string, error)
	JobByID(ctx context.Context, id string) (*models.SynthesisJob, error)
	LatestArtifact(ctx context.Context, tenantID, documentType string) (*models.Artifact, error)
	ArtifactByID(ctx context.Context, id string) (*models.Artifact, error)
	DB() *sql.DB
}

// Handler wires HTTP routes to the synthesis service and the background dispatcher.
type Handler struct {
	synth     Synthesizer
	store     Store
	auth      *auth.Service
	refresher Refresher
	jobCache  JobCache
}

// NewHandler constructs a Handler. refresher and jobCache may be nil.
func NewHandler(synth Synthesizer, store Store, authService *auth.Service, refresher Refresher, jobCache JobCache) *Handler {
	return &Handler{
		synth:     synth,
		store:     store,
		auth:      authService,
		refresher: refresher,
		jobCache:  jobCache,
	}
}

// RegisterRoutes attaches all HTTP routes to the router.
func (h *Handler) RegisterRoutes(router *gin.Engine) {
	router.GET("/healthz", h.health)

	api := router.Group("/api")
	api.Use(h.auth.Middleware())
	api.POST("/synthesis", h.synthesize)
	api.GET("/synthesis/jobs/:job_id", h.getJob)
	api.GET("/documents/:document_id", h.getDocument)

	tenantRoutes := api.Group("/tenants/:tenant_id")
	tenantRoutes.GET("/documents/:document_type/versions", h.listVersions)
	tenantRoutes.POST("/refresh", h.refreshTenant)
	tenantRoutes.DELETE("/refresh", h.cancelRefresh)
}

func (h *Handler) health(c *gin.Context) {
	if err := h.store.DB().PingContext(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) synthesize(c *gin.Context) {
	var req synthesis.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, &synthesis.ValidationError{Field: "request body"})
		return
	}
	res, err := h.synth.Synthesize(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	if res.Skipped {
		c.JSON(http.StatusOK, gin.H{
			"success":    true,
			"documentId": res.DocumentID,
			"status":     res.Status,
			"message":    res.Message,
			"skipped":    true,
		})
		return
	}
	var previous any
	if res.PreviousVersionID != "" {
		previous = res.PreviousVersionID
	}
	c.JSON(http.StatusOK, gin.H{
		"success":           true,
		"documentId":        res.DocumentID,
		"version":           res.Version,
		"previousVersionId": previous,
		"status":            res.Status,
		"tokensUsed":        res.TokensUsed,
		"jobId":             res.JobID,
	})
}

func (h *Handler) getJob(c *gin.Context) {
	jobID := c.Param("job_id")
	if h.jobCache != nil {
		if job, ok := h.jobCache.LoadJob(c.Request.Context(), jobID); ok {
			c.JSON(http.StatusOK, gin.H{"success": true, "job": job})
			return
		}
	}
	job, err := h.store.JobByID(c.Request.Context(), jobID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			err = &synthesis.NotFoundError{Kind: "job", ID: jobID}
		}
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "job": job})
}

func (h *Handler) getDocument(c *gin.Context) {
	documentID := c.Param("document_id")
	artifact, err := h.store.ArtifactByID(c.Request.Context(), documentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			err = &synthesis.NotFoundError{Kind: "document", ID: documentID}
		}
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "document": artifact})
}

// operatorOf is the token id of the caller, empty when auth is disabled.
func operatorOf(c *gin.Context) string {
	operator, _ := auth.OperatorFromContext(c)
	return operator
}

func (h *Handler) requireTenant(c *gin.Context) (*models.Tenant, bool) {
	tenantID := c.Param("tenant_id")
	tenant, err := h.store.GetTenant(c.Request.Context(), tenantID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			err = &synthesis.NotFoundError{Kind: "tenant", ID: tenantID}
		}
		respondError(c, err)
		return nil, false
	}
	return tenant, true
}
