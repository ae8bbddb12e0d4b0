package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"docsynth/internal/models"
)

const (
	JobEventsChannel = "synthesis:jobs"
	jobCacheTTL      = 30 * time.Minute
)

// JobEvent is published whenever a synthesis job reaches a terminal state.
type JobEvent struct {
	JobID        string           `json:"job_id"`
	TenantID     string           `json:"tenant_id"`
	DocumentType string           `json:"document_type"`
	Status       models.JobStatus `json:"status"`
	DocumentID   string           `json:"document_id,omitempty"`
	Error        string           `json:"error,omitempty"`
}

// JobCache keeps terminal job snapshots and broadcasts job events.
// A JobCache over a nil client is a no-op.
type JobCache struct {
	client *Client
}

func NewJobCache(client *Client) *JobCache {
	return &JobCache{client: client}
}

func jobKey(id string) string {
	return fmt.Sprintf("synthesis:job:%s", id)
}

func (j *JobCache) enabled() bool {
	return j != nil && j.client != nil && j.client.inner != nil
}

// JobFinished caches the snapshot and publishes a JobEvent. Failures are logged, never returned.
func (j *JobCache) JobFinished(ctx context.Context, job *models.SynthesisJob) {
	if !j.enabled() || job == nil {
		return
	}
	data, err := json.Marshal(job)
	if err != nil {
		log.Printf("redis: marshal job %s failed: %v", job.ID, err)
		return
	}
	if err := j.client.Set(ctx, jobKey(job.ID), data, jobCacheTTL); err != nil {
		log.Printf("redis: cache job %s failed: %v", job.ID, err)
	}
	event, err := json.Marshal(JobEvent{
		JobID:        job.ID,
		TenantID:     job.TenantID,
		DocumentType: job.DocumentType,
		Status:       job.Status,
		DocumentID:   job.SynthesizedDocumentID,
		Error:        job.ErrorMessage,
	})
	if err != nil {
		log.Printf("redis: marshal job event failed: %v", err)
		return
	}
	if err := j.client.Publish(ctx, JobEventsChannel, event); err != nil {
		log.Printf("redis: publish job event failed: %v", err)
	}
}

// LoadJob returns a cached terminal job snapshot.
func (j *JobCache) LoadJob(ctx context.Context, id string) (*models.SynthesisJob, bool) {
	if !j.enabled() || id == "" {
		return nil, false
	}
	raw, err := j.client.Get(ctx, jobKey(id))
	if err != nil {
		if !errors.Is(err, ErrCacheMiss) {
			log.Printf("redis: load job %s failed: %v", id, err)
		}
		return nil, false
	}
	var job models.SynthesisJob
	if err := json.Unmarshal([]byte(raw), &job); err != nil {
		log.Printf("redis: decode job %s failed: %v", id, err)
		return nil, false
	}
	return &job, true
}

// Listen decodes job events until ctx is done. It returns nil immediately without redis.
func (j *JobCache) Listen(ctx context.Context, handler func(JobEvent)) error {
	if !j.enabled() {
		return nil
	}
	return j.client.Subscribe(ctx, JobEventsChannel, func(payload string) {
		var ev JobEvent
		if err := json.Unmarshal([]byte(payload), &ev); err != nil {
			log.Printf("redis: decode job event failed: %v", err)
			return
		}
		handler(ev)
	})
}
