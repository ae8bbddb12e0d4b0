package synthesis

import (
	"context"
	"strings"

	"docsynth/internal/models"
)

// SourceSetResolver gathers the documents that feed one synthesis.
type SourceSetResolver struct {
	store DocumentStore
}

func NewSourceSetResolver(store DocumentStore) *SourceSetResolver {
	return &SourceSetResolver{store: store}
}

// Resolve returns the tenant's assigned documents for documentType in display order,
// intersected with subset when it is non-empty. Documents without content are dropped.
func (r *SourceSetResolver) Resolve(ctx context.Context, tenantID, documentType string, subset []string) ([]models.SourceDocument, error) {
	assigned, err := r.store.AssignedDocuments(ctx, tenantID, documentType)
	if err != nil {
		return nil, &PersistenceError{Op: "load assigned documents", Err: err}
	}

	var wanted map[string]struct{}
	if len(subset) > 0 {
		wanted = make(map[string]struct{}, len(subset))
		for _, id := range subset {
			wanted[id] = struct{}{}
		}
	}

	docs := make([]models.SourceDocument, 0, len(assigned))
	for _, doc := range assigned {
		if wanted != nil {
			if _, ok := wanted[doc.ID]; !ok {
				continue
			}
		}
		if strings.TrimSpace(doc.Content) == "" {
			continue
		}
		docs = append(docs, doc)
	}
	if len(docs) == 0 {
		return nil, &EmptySourceSetError{TenantID: tenantID, DocumentType: documentType}
	}
	return docs, nil
}
