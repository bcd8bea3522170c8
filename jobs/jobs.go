// Package jobs persists async job records (crawl, search, batch scrape)
// in the shared store so any worker process can report or resume them.
package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/use-agent/harvest/models"
	"github.com/use-agent/harvest/store"
)

// jobTTL bounds how long finished jobs remain queryable.
const jobTTL = 24 * time.Hour

// ErrNotFound is returned when no job exists under the given ID.
var ErrNotFound = errors.New("job not found")

// ErrTerminal is returned when a transition targets an already-finished job.
var ErrTerminal = errors.New("job already in a terminal state")

// Store reads and writes job records. Each job is a hash under
// job:{id} with its results in a list under job:{id}:results.
type Store struct {
	store store.Store
}

// NewStore wraps the shared store.
func NewStore(s store.Store) *Store {
	return &Store{store: s}
}

func jobKey(id string) string     { return "job:" + id }
func resultsKey(id string) string { return "job:" + id + ":results" }

// Create persists a new pending job and returns it.
func (s *Store) Create(ctx context.Context, jobType, url string) (*models.Job, error) {
	job := &models.Job{
		ID:        uuid.NewString(),
		Type:      jobType,
		Status:    models.JobPending,
		URL:       url,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.write(ctx, job); err != nil {
		return nil, err
	}
	return job, nil
}

func (s *Store) write(ctx context.Context, job *models.Job) error {
	fields := map[string]string{
		"id":              job.ID,
		"type":            job.Type,
		"status":          job.Status,
		"url":             job.URL,
		"total_pages":     strconv.Itoa(job.TotalPages),
		"completed_pages": strconv.Itoa(job.CompletedPages),
		"error":           job.Error,
		"created_at":      job.CreatedAt.Format(time.RFC3339Nano),
	}
	if job.StartedAt != nil {
		fields["started_at"] = job.StartedAt.Format(time.RFC3339Nano)
	}
	if job.CompletedAt != nil {
		fields["completed_at"] = job.CompletedAt.Format(time.RFC3339Nano)
	}
	if err := s.store.HSet(ctx, jobKey(job.ID), fields); err != nil {
		return fmt.Errorf("persist job %s: %w", job.ID, err)
	}
	return s.store.Expire(ctx, jobKey(job.ID), jobTTL)
}

// Get loads a job by ID.
func (s *Store) Get(ctx context.Context, id string) (*models.Job, error) {
	fields, err := s.store.HGetAll(ctx, jobKey(id))
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, ErrNotFound
	}

	job := &models.Job{
		ID:     fields["id"],
		Type:   fields["type"],
		Status: fields["status"],
		URL:    fields["url"],
		Error:  fields["error"],
	}
	job.TotalPages, _ = strconv.Atoi(fields["total_pages"])
	job.CompletedPages, _ = strconv.Atoi(fields["completed_pages"])
	job.CreatedAt, _ = time.Parse(time.RFC3339Nano, fields["created_at"])
	if v := fields["started_at"]; v != "" {
		if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
			job.StartedAt = &t
		}
	}
	if v := fields["completed_at"]; v != "" {
		if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
			job.CompletedAt = &t
		}
	}
	return job, nil
}

// Status returns only the job's status field.
func (s *Store) Status(ctx context.Context, id string) (string, error) {
	status, err := s.store.HGet(ctx, jobKey(id), "status")
	if errors.Is(err, store.ErrNotFound) {
		return "", ErrNotFound
	}
	return status, err
}

// Start marks a pending job running and stamps started_at. A job cancelled
// before starting stays cancelled.
func (s *Store) Start(ctx context.Context, id string) error {
	status, err := s.Status(ctx, id)
	if err != nil {
		return err
	}
	if status != models.JobPending {
		return ErrTerminal
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)
	return s.store.HSet(ctx, jobKey(id), map[string]string{
		"status":     models.JobRunning,
		"started_at": now,
	})
}

// Complete marks the job finished. A cancelled job keeps its status.
func (s *Store) Complete(ctx context.Context, id string) error {
	status, err := s.Status(ctx, id)
	if err != nil {
		return err
	}
	if status == models.JobCancelled {
		return nil
	}
	return s.finish(ctx, id, models.JobCompleted, "")
}

// Fail marks the job failed with a message.
func (s *Store) Fail(ctx context.Context, id, message string) error {
	return s.finish(ctx, id, models.JobFailed, message)
}

// Cancel flips a pending or running job to cancelled. The running
// pipeline observes the new status on its next persisted update.
func (s *Store) Cancel(ctx context.Context, id string) error {
	status, err := s.Status(ctx, id)
	if err != nil {
		return err
	}
	switch status {
	case models.JobPending, models.JobRunning:
		return s.finish(ctx, id, models.JobCancelled, "")
	default:
		return ErrTerminal
	}
}

func (s *Store) finish(ctx context.Context, id, status, message string) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	fields := map[string]string{
		"status":       status,
		"completed_at": now,
	}
	if message != "" {
		fields["error"] = message
	}
	return s.store.HSet(ctx, jobKey(id), fields)
}

// IncrCompleted bumps the completed-pages counter and returns the new value.
func (s *Store) IncrCompleted(ctx context.Context, id string) (int, error) {
	n, err := s.store.HIncrBy(ctx, jobKey(id), "completed_pages", 1)
	return int(n), err
}

// SetTotal records the expected page count.
func (s *Store) SetTotal(ctx context.Context, id string, total int) error {
	return s.store.HSet(ctx, jobKey(id), map[string]string{
		"total_pages": strconv.Itoa(total),
	})
}

// AppendResult pushes one persisted page onto the job's result list.
func (s *Store) AppendResult(ctx context.Context, id string, result *models.JobResult) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("encode job result: %w", err)
	}
	if err := s.store.RPush(ctx, resultsKey(id), string(payload)); err != nil {
		return err
	}
	return s.store.Expire(ctx, resultsKey(id), jobTTL)
}

// Results loads all persisted pages for a job.
func (s *Store) Results(ctx context.Context, id string) ([]models.JobResult, error) {
	raw, err := s.store.LRange(ctx, resultsKey(id), 0, -1)
	if err != nil {
		return nil, err
	}
	results := make([]models.JobResult, 0, len(raw))
	for _, item := range raw {
		var r models.JobResult
		if err := json.Unmarshal([]byte(item), &r); err != nil {
			continue
		}
		results = append(results, r)
	}
	return results, nil
}

// ResultCount returns how many pages the job has persisted.
func (s *Store) ResultCount(ctx context.Context, id string) (int64, error) {
	return s.store.LLen(ctx, resultsKey(id))
}

// Delete removes the job record and its results.
func (s *Store) Delete(ctx context.Context, id string) error {
	return s.store.Del(ctx, jobKey(id), resultsKey(id))
}
