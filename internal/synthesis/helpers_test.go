package synthesis

import (
	"context"
	"sync"
	"testing"
	"time"

	"docsynth/internal/config"
	"docsynth/internal/models"
	"docsynth/internal/service/ai"
	"docsynth/internal/storage"
)

type fakeCompleter struct {
	mu      sync.Mutex
	calls   int
	lastReq ai.Request

	content string
	err     error
	started chan struct{}
	release chan struct{}
}

func (f *fakeCompleter) Complete(ctx context.Context, req ai.Request) (*ai.Completion, error) {
	f.mu.Lock()
	f.calls++
	f.lastReq = req
	err := f.err
	f.mu.Unlock()

	if f.started != nil {
		f.started <- struct{}{}
	}
	if f.release != nil {
		select {
		case <-f.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	content := f.content
	if content == "" {
		content = "# Compiled"
	}
	return &ai.Completion{Content: content, TokensIn: 10, TokensOut: 20}, nil
}

func (f *fakeCompleter) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeCompleter) setErr(err error) {
	f.mu.Lock()
	f.err = err
	f.mu.Unlock()
}

type recordingNotifier struct {
	mu   sync.Mutex
	jobs []models.SynthesisJob
}

func (n *recordingNotifier) JobFinished(ctx context.Context, job *models.SynthesisJob) {
	n.mu.Lock()
	n.jobs = append(n.jobs, *job)
	n.mu.Unlock()
}

func (n *recordingNotifier) Jobs() []models.SynthesisJob {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]models.SynthesisJob(nil), n.jobs...)
}

var baseTime = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

// newTestStore returns a migrated in-memory store with tenant "acme" and
// documents a, b assigned to "icp" under a schema prompt.
func newTestStore(t *testing.T) *storage.Store {
	t.Helper()
	cfg := &config.Config{Databases: map[string]config.DatabaseConfig{"sqlite3": {DSN: ":memory:"}}}
	db, err := storage.Open("sqlite3", cfg)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := storage.Migrate(db, "sqlite3"); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	s := storage.NewStore(db, "sqlite3")
	ctx := context.Background()
	if err := s.UpsertTenant(ctx, models.Tenant{ID: "acme", Name: "Acme"}); err != nil {
		t.Fatalf("seed tenant: %v", err)
	}
	if err := s.UpsertSchema(ctx, models.DocumentSchema{DocumentType: "icp", Name: "ICP", SynthesisPrompt: "Build the ICP.\n\n{{sources}}"}); err != nil {
		t.Fatalf("seed schema: %v", err)
	}
	putDocument(t, s, "a", "Interview notes", "customers love speed", baseTime, 0)
	putDocument(t, s, "b", "Survey", "pricing is confusing", baseTime.Add(time.Hour), 1)
	return s
}

func putDocument(t *testing.T, s *storage.Store, id, title, content string, updatedAt time.Time, order int) {
	t.Helper()
	ctx := context.Background()
	doc := models.SourceDocument{ID: id, TenantID: "acme", Title: title, Content: content, UpdatedAt: updatedAt}
	if err := s.UpsertDocument(ctx, doc); err != nil {
		t.Fatalf("upsert document %s: %v", id, err)
	}
	if err := s.Assign(ctx, models.Assignment{TenantID: "acme", DocumentType: "icp", DocumentID: id, DisplayOrder: order}); err != nil {
		t.Fatalf("assign %s: %v", id, err)
	}
}

func newTestService(t *testing.T, s Store, completer ai.Completer, opts Options) *Service {
	t.Helper()
	svc, err := NewService(s, completer, opts)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc
}

func countJobs(t *testing.T, s *storage.Store, status models.JobStatus) int {
	t.Helper()
	n, err := s.CountJobs(context.Background(), "acme", "icp", status)
	if err != nil {
		t.Fatalf("CountJobs: %v", err)
	}
	return n
}

func failedJob(t *testing.T, s *storage.Store) *models.SynthesisJob {
	t.Helper()
	var id string
	if err := s.DB().QueryRow(`SELECT id FROM synthesis_jobs WHERE status = 'failed' LIMIT 1`).Scan(&id); err != nil {
		t.Fatalf("find failed job: %v", err)
	}
	job, err := s.JobByID(context.Background(), id)
	if err != nil {
		t.Fatalf("JobByID: %v", err)
	}
	return job
}
