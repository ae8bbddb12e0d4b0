package synthesis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"docsynth/internal/models"
	"docsynth/internal/storage"

	"github.com/google/uuid"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const maxVersionAttempts = 3

// NewVersion is the content and provenance of an artifact about to be stored.
type NewVersion struct {
	TenantID     string
	TenantName   string
	DocumentType string
	Content      string
	SourcesHash  string
	JobID        string
	TokensIn     int
	TokensOut    int
}

// Versioner appends artifacts to the per-(tenant, type) version chain.
type Versioner struct {
	store       ArtifactStore
	tierTwoType string

	now   func() time.Time
	newID func() string
}

func NewVersioner(store ArtifactStore, tierTwoType string) *Versioner {
	return &Versioner{
		store:       store,
		tierTwoType: tierTwoType,
		now:         func() time.Time { return time.Now().UTC() },
		newID:       uuid.NewString,
	}
}

// Create stores the next version. A concurrent writer taking the same version number
// makes it re-read the chain head, up to maxVersionAttempts times.
func (v *Versioner) Create(ctx context.Context, in NewVersion) (*models.Artifact, error) {
	var lastErr error
	for attempt := 0; attempt < maxVersionAttempts; attempt++ {
		prev, err := v.store.LatestArtifact(ctx, in.TenantID, in.DocumentType)
		if err != nil {
			return nil, &PersistenceError{Op: "load latest artifact", Err: err}
		}
		artifact := v.build(in, prev)
		err = v.store.InsertArtifact(ctx, artifact)
		if err == nil {
			return artifact, nil
		}
		if !errors.Is(err, storage.ErrDuplicate) {
			return nil, &PersistenceError{Op: "insert artifact", Err: err}
		}
		debugLog("synthesis: version %d of %s/%s taken, retrying", artifact.Version, in.TenantID, in.DocumentType)
		lastErr = err
	}
	return nil, &PersistenceError{Op: "allocate artifact version", Err: lastErr}
}

func (v *Versioner) build(in NewVersion, prev *models.Artifact) *models.Artifact {
	createdAt := v.now()
	version := 1
	previousID := ""
	if prev != nil {
		version = prev.Version + 1
		previousID = prev.ID
	}
	return &models.Artifact{
		ID:                v.newID(),
		TenantID:          in.TenantID,
		DocumentType:      in.DocumentType,
		Title:             Title(in.DocumentType, in.TenantName),
		Slug:              Slug(in.DocumentType, version, createdAt),
		Content:           in.Content,
		Version:           version,
		PreviousVersionID: previousID,
		SourcesHash:       in.SourcesHash,
		ApprovalStatus:    models.ApprovalDraft,
		RequiresReview:    true,
		SynthesisJobID:    in.JobID,
		TokenCount:        in.TokensIn + in.TokensOut,
		Tier:              v.Tier(in.DocumentType),
		CreatedAt:         createdAt,
	}
}

// Tier is 2 for the designated document type and 1 for everything else.
func (v *Versioner) Tier(documentType string) int {
	if v.tierTwoType != "" && documentType == v.tierTwoType {
		return 2
	}
	return 1
}

// Title turns "brand-guidelines" and "Acme" into "Brand Guidelines - Acme".
func Title(documentType, tenantName string) string {
	words := strings.Fields(strings.NewReplacer("-", " ", "_", " ").Replace(documentType))
	title := cases.Title(language.English).String(strings.Join(words, " "))
	if tenantName == "" {
		return title
	}
	return title + " - " + tenantName
}

func Slug(documentType string, version int, createdAt time.Time) string {
	return fmt.Sprintf("%s-v%d-%d", documentType, version, createdAt.UnixMilli())
}
