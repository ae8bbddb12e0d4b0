package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"docsynth/internal/models"
	"docsynth/internal/synthesis"
)

const (
	defaultVersionLimit = 20
	maxVersionLimit     = 200
)

type versionView struct {
	ID                string                `json:"id"`
	Version           int                   `json:"version"`
	PreviousVersionID string                `json:"previousVersionId,omitempty"`
	Title             string                `json:"title"`
	Slug              string                `json:"slug"`
	ApprovalStatus    models.ApprovalStatus `json:"approvalStatus"`
	SourcesHash       string                `json:"sourcesHash"`
	SynthesisJobID    string                `json:"synthesisJobId"`
	TokenCount        int                   `json:"tokenCount"`
	Tier              int                   `json:"tier"`
	CreatedAt         time.Time             `json:"createdAt"`
}

// listVersions walks the previousVersionId chain from the newest artifact.
func (h *Handler) listVersions(c *gin.Context) {
	tenant, ok := h.requireTenant(c)
	if !ok {
		return
	}
	limit := defaultVersionLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			respondError(c, &synthesis.ValidationError{Field: "a positive limit"})
			return
		}
		limit = min(n, maxVersionLimit)
	}

	ctx := c.Request.Context()
	documentType := c.Param("document_type")
	current, err := h.store.LatestArtifact(ctx, tenant.ID, documentType)
	if err != nil {
		respondError(c, &synthesis.PersistenceError{Op: "load latest artifact", Err: err})
		return
	}
	versions := make([]versionView, 0)
	for current != nil && len(versions) < limit {
		versions = append(versions, versionView{
			ID:                current.ID,
			Version:           current.Version,
			PreviousVersionID: current.PreviousVersionID,
			Title:             current.Title,
			Slug:              current.Slug,
			ApprovalStatus:    current.ApprovalStatus,
			SourcesHash:       current.SourcesHash,
			SynthesisJobID:    current.SynthesisJobID,
			TokenCount:        current.TokenCount,
			Tier:              current.Tier,
			CreatedAt:         current.CreatedAt,
		})
		if current.PreviousVersionID == "" {
			break
		}
		current, err = h.store.ArtifactByID(ctx, current.PreviousVersionID)
		if err != nil {
			respondError(c, &synthesis.PersistenceError{Op: "walk version chain", Err: err})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "documentType": documentType, "versions": versions})
}
