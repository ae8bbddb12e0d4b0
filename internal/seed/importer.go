package seed

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/cloudwego/eino-ext/components/document/loader/file"
	"github.com/cloudwego/eino/components/document"
	"github.com/cloudwego/eino/components/document/parser"

	"docsynth/internal/models"
)

var nonSlug = regexp.MustCompile(`[^a-z0-9]+`)

// Importer turns local files into source documents through the eino file loader.
type Importer struct {
	store  Store
	loader *file.FileLoader
}

func NewImporter(ctx context.Context, store Store) (*Importer, error) {
	parserExt, err := parser.NewExtParser(ctx, &parser.ExtParserConfig{
		FallbackParser: parser.TextParser{},
	})
	if err != nil {
		return nil, fmt.Errorf("init parser: %w", err)
	}
	loader, err := file.NewFileLoader(ctx, &file.FileLoaderConfig{
		UseNameAsID: true,
		Parser:      parserExt,
	})
	if err != nil {
		return nil, fmt.Errorf("init file loader: %w", err)
	}
	return &Importer{store: store, loader: loader}, nil
}

// Import stores each file as a document of tenantID and assigns it to documentType
// in argument order. updatedAt is the file's modification time, so re-importing an
// untouched file keeps the source fingerprint stable.
func (im *Importer) Import(ctx context.Context, tenantID, documentType string, paths []string) ([]models.SourceDocument, error) {
	if tenantID == "" || documentType == "" {
		return nil, errors.New("tenant and document type are required")
	}
	imported := make([]models.SourceDocument, 0, len(paths))
	for i, path := range paths {
		doc, err := im.load(ctx, tenantID, path)
		if err != nil {
			return imported, err
		}
		if err := im.store.UpsertDocument(ctx, *doc); err != nil {
			return imported, fmt.Errorf("store %s: %w", path, err)
		}
		if err := im.store.Assign(ctx, models.Assignment{TenantID: tenantID, DocumentType: documentType, DocumentID: doc.ID, DisplayOrder: i}); err != nil {
			return imported, fmt.Errorf("assign %s: %w", path, err)
		}
		imported = append(imported, *doc)
	}
	return imported, nil
}

func (im *Importer) load(ctx context.Context, tenantID, path string) (*models.SourceDocument, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	docs, err := im.loader.Load(ctx, document.Source{URI: path})
	if err != nil {
		return nil, fmt.Errorf("load file: %w", err)
	}
	var builder strings.Builder
	for _, d := range docs {
		content := strings.TrimSpace(d.Content)
		if content == "" {
			continue
		}
		builder.WriteString(content)
		builder.WriteString("\n\n")
	}
	text := strings.TrimSpace(builder.String())
	if text == "" {
		return nil, fmt.Errorf("file %s has no readable text content", path)
	}

	base := filepath.Base(path)
	title := strings.TrimSuffix(base, filepath.Ext(base))
	return &models.SourceDocument{
		ID:        DocumentID(tenantID, title),
		TenantID:  tenantID,
		Title:     title,
		Content:   text,
		UpdatedAt: info.ModTime().UTC(),
	}, nil
}

// DocumentID derives a stable id such as "acme-customer-interviews".
func DocumentID(tenantID, name string) string {
	slug := strings.Trim(nonSlug.ReplaceAllString(strings.ToLower(name), "-"), "-")
	return tenantID + "-" + slug
}
