// Package store mirrors job snapshots into PostgreSQL for durable history.
// The registry stays authoritative for live state; the mirror is
// best-effort and written on create, phase change, and terminal transition.
package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/iBHunt91/FossaWorkV2-sub002/internal/automation/domain"
	"github.com/iBHunt91/FossaWorkV2-sub002/shared/postgresql"
)

// Mirror persists job snapshots. Callers treat failures as log-only.
type Mirror interface {
	InsertJob(ctx context.Context, job *domain.AutomationJob) error
	UpdateJob(ctx context.Context, job *domain.AutomationJob) error
}

// Storage is the sqlx-backed Mirror.
type Storage struct {
	db *sqlx.DB
}

// NewStorage creates a Storage over the shared PostgreSQL client.
func NewStorage(pg *postgresql.Client) *Storage {
	return &Storage{db: pg.GetDB()}
}

// InsertJob writes the initial snapshot of a freshly created job.
func (s *Storage) InsertJob(ctx context.Context, job *domain.AutomationJob) error {
	strategyJSON, progressJSON, errorsJSON, err := encodeSnapshots(job)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO automation_jobs (
			job_id, visit_id, work_order_id, user_id, status,
			site_name, strategy, progress, errors,
			created_at, started_at, completed_at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, $9,
			$10, $11, $12
		)
	`

	_, err = s.db.ExecContext(
		ctx,
		query,
		job.JobID,
		job.VisitID,
		job.WorkOrderID,
		job.UserID,
		job.Status,
		job.Site.Name,
		strategyJSON,
		progressJSON,
		errorsJSON,
		job.CreatedAt,
		job.StartedAt,
		job.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert job snapshot: %w", err)
	}

	return nil
}

// UpdateJob overwrites the mutable parts of a job's snapshot.
func (s *Storage) UpdateJob(ctx context.Context, job *domain.AutomationJob) error {
	_, progressJSON, errorsJSON, err := encodeSnapshots(job)
	if err != nil {
		return err
	}

	query := `
		UPDATE automation_jobs SET
			status = $2,
			progress = $3,
			errors = $4,
			started_at = $5,
			completed_at = $6
		WHERE job_id = $1
	`

	_, err = s.db.ExecContext(
		ctx,
		query,
		job.JobID,
		job.Status,
		progressJSON,
		errorsJSON,
		job.StartedAt,
		job.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update job snapshot: %w", err)
	}

	return nil
}

func encodeSnapshots(job *domain.AutomationJob) (strategy, progress, errs []byte, err error) {
	strategy, err = json.Marshal(job.Strategy)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to encode strategy: %w", err)
	}
	progress, err = json.Marshal(job.Progress)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to encode progress: %w", err)
	}
	errs, err = json.Marshal(job.Errors)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to encode errors: %w", err)
	}
	return strategy, progress, errs, nil
}

// NopMirror discards every write. Used in tests and when the history
// database is disabled.
type NopMirror struct{}

// InsertJob implements Mirror.
func (NopMirror) InsertJob(context.Context, *domain.AutomationJob) error { return nil }

// UpdateJob implements Mirror.
func (NopMirror) UpdateJob(context.Context, *domain.AutomationJob) error { return nil }
