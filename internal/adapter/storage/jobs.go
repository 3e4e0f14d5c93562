package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ibrahimkeyboad/ezledger/internal/core/domain"
)

func (s *Store) EnqueueWebhook(ctx context.Context, url string, payload []byte) (domain.WebhookJob, error) {
	job := domain.WebhookJob{URL: url, Payload: payload, Status: domain.JobPending}
	err := s.Db.QueryRow(ctx, `
		INSERT INTO webhook_jobs (url, payload, status, next_run_at)
		VALUES ($1, $2, 'PENDING', NOW())
		RETURNING id, attempts, next_run_at, created_at`,
		url, payload,
	).Scan(&job.ID, &job.Attempts, &job.NextRunAt, &job.CreatedAt)
	if err != nil {
		return domain.WebhookJob{}, fmt.Errorf("failed to enqueue webhook: %w", err)
	}
	return job, nil
}

// ClaimWebhookJob moves the oldest due job to PROCESSING and leases it until
// NOW()+lease. A PROCESSING job whose lease has run out (its worker died) is
// due again. SKIP LOCKED lets several workers poll the same table without
// handing out a job twice.
func (s *Store) ClaimWebhookJob(ctx context.Context, lease time.Duration) (domain.WebhookJob, bool, error) {
	query := `
		UPDATE webhook_jobs
		SET status = 'PROCESSING', next_run_at = NOW() + make_interval(secs => $1)
		WHERE id = (
			SELECT id FROM webhook_jobs
			WHERE status IN ('PENDING', 'PROCESSING') AND next_run_at <= NOW()
			ORDER BY created_at ASC
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id, url, payload, attempts, status, next_run_at, created_at`

	var job domain.WebhookJob
	err := s.Db.QueryRow(ctx, query, lease.Seconds()).Scan(
		&job.ID, &job.URL, &job.Payload, &job.Attempts, &job.Status, &job.NextRunAt, &job.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.WebhookJob{}, false, nil
	}
	if err != nil {
		return domain.WebhookJob{}, false, fmt.Errorf("failed to claim webhook job: %w", err)
	}
	return job, true, nil
}

func (s *Store) CompleteWebhookJob(ctx context.Context, id uuid.UUID) error {
	return s.execJob(ctx, `UPDATE webhook_jobs SET status = 'COMPLETED' WHERE id = $1`, id)
}

// ReleaseWebhookJob hands a claimed job back without counting an attempt.
func (s *Store) ReleaseWebhookJob(ctx context.Context, id uuid.UUID) error {
	return s.execJob(ctx, `UPDATE webhook_jobs SET status = 'PENDING', next_run_at = NOW() WHERE id = $1`, id)
}

func (s *Store) RetryWebhookJob(ctx context.Context, id uuid.UUID, nextRun time.Time) error {
	return s.execJob(ctx,
		`UPDATE webhook_jobs SET status = 'PENDING', attempts = attempts + 1, next_run_at = $2 WHERE id = $1`,
		id, nextRun)
}

func (s *Store) FailWebhookJob(ctx context.Context, id uuid.UUID) error {
	return s.execJob(ctx, `UPDATE webhook_jobs SET status = 'FAILED', attempts = attempts + 1 WHERE id = $1`, id)
}

func (s *Store) execJob(ctx context.Context, query string, args ...any) error {
	if _, err := s.Db.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to update webhook job: %w", err)
	}
	return nil
}
