// Package worker delivers queued webhook jobs.
package worker

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/ibrahimkeyboad/ezledger/internal/core/domain"
	"github.com/ibrahimkeyboad/ezledger/internal/core/metrics"
	"github.com/ibrahimkeyboad/ezledger/internal/core/notifications"
)

// Queue is the webhook job table.
type Queue interface {
	ClaimWebhookJob(ctx context.Context, lease time.Duration) (domain.WebhookJob, bool, error)
	ReleaseWebhookJob(ctx context.Context, id uuid.UUID) error
	CompleteWebhookJob(ctx context.Context, id uuid.UUID) error
	RetryWebhookJob(ctx context.Context, id uuid.UUID, nextRun time.Time) error
	FailWebhookJob(ctx context.Context, id uuid.UUID) error
}

type Config struct {
	Secret       string
	PollInterval time.Duration
	MaxAttempts  int
	RatePerSec   float64 // <= 0 disables pacing
	Client       *http.Client
	// Lease is how long a claimed job stays hidden from other polls. A job
	// whose worker dies is picked up again once it expires.
	Lease time.Duration
}

// settleTimeout bounds the queue update that records a job's outcome.
const settleTimeout = 5 * time.Second

type Processor struct {
	queue   Queue
	cfg     Config
	limiter *rate.Limiter
	now     func() time.Time
}

func NewProcessor(queue Queue, cfg Config) *Processor {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.Lease <= 0 {
		cfg.Lease = time.Minute
	}
	if cfg.Secret == "" {
		slog.Warn("⚠️ WEBHOOK_SECRET is missing in .env, using default insecure key")
		cfg.Secret = "default_insecure_key"
	}
	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.RatePerSec > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), 1)
	}
	return &Processor{queue: queue, cfg: cfg, limiter: limiter, now: time.Now}
}

// Run polls until ctx is cancelled. Each tick drains every due job.
func (p *Processor) Run(ctx context.Context) {
	slog.Info("👷 Webhook Worker started", "poll_interval", p.cfg.PollInterval)
	ticker := time.NewTicker(p.cfg.PollInterval)
	defer ticker.Stop()

	for {
		for p.ProcessOne(ctx) {
		}
		select {
		case <-ctx.Done():
			slog.Info("👷 Webhook Worker stopped")
			return
		case <-ticker.C:
		}
	}
}

// ProcessOne claims and delivers a single job. It reports whether a job was handled.
func (p *Processor) ProcessOne(ctx context.Context) bool {
	if ctx.Err() != nil {
		return false
	}
	job, ok, err := p.queue.ClaimWebhookJob(ctx, p.cfg.Lease)
	if err != nil {
		slog.Error("Worker: Failed to claim job", "error", err)
		return false
	}
	if !ok {
		return false
	}

	if !json.Valid(job.Payload) {
		slog.Error("Worker: Failed to parse payload", "job_id", job.ID)
		p.fail(ctx, job)
		return true
	}

	if err := p.limiter.Wait(ctx); err != nil {
		// Shutting down before anything was sent.
		p.release(ctx, job)
		return false
	}

	slog.Info("Worker: Processing job", "url", job.URL, "job_id", job.ID)
	sendErr := notifications.SendWebhook(ctx, p.cfg.Client, job.URL, job.Payload, p.cfg.Secret)
	if sendErr == nil {
		metrics.IncWebhookDelivery("delivered")
		slog.Info("✅ Worker: Webhook Sent Successfully!", "job_id", job.ID)
		p.settle(ctx, "complete", job.ID, func(sctx context.Context) error {
			return p.queue.CompleteWebhookJob(sctx, job.ID)
		})
		return true
	}

	if ctx.Err() != nil {
		// The send was cut short by shutdown, not refused by the receiver.
		slog.Warn("Worker: Delivery interrupted", "error", sendErr, "job_id", job.ID)
		p.release(ctx, job)
		return false
	}

	slog.Error("Worker: Webhook failed", "error", sendErr, "attempts", job.Attempts)
	if job.Attempts+1 >= p.cfg.MaxAttempts {
		p.fail(ctx, job)
		slog.Error("Worker: Job marked as FAILED (Max attempts reached)", "job_id", job.ID)
		return true
	}

	metrics.IncWebhookDelivery("retry")
	nextRun := p.now().Add(Backoff(job.Attempts))
	if p.settle(ctx, "schedule retry", job.ID, func(sctx context.Context) error {
		return p.queue.RetryWebhookJob(sctx, job.ID, nextRun)
	}) {
		slog.Info("Worker: Scheduled retry", "next_run", nextRun)
	}
	return true
}

func (p *Processor) fail(ctx context.Context, job domain.WebhookJob) {
	metrics.IncWebhookDelivery("failed")
	p.settle(ctx, "mark job failed", job.ID, func(sctx context.Context) error {
		return p.queue.FailWebhookJob(sctx, job.ID)
	})
}

func (p *Processor) release(ctx context.Context, job domain.WebhookJob) {
	p.settle(ctx, "release job", job.ID, func(sctx context.Context) error {
		return p.queue.ReleaseWebhookJob(sctx, job.ID)
	})
}

// settle records a job outcome. It detaches from ctx so the update still
// lands when the worker is being stopped.
func (p *Processor) settle(ctx context.Context, action string, id uuid.UUID, fn func(context.Context) error) bool {
	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), settleTimeout)
	defer cancel()
	if err := fn(sctx); err != nil {
		slog.Error("Worker: Failed to "+action, "error", err, "job_id", id)
		return false
	}
	return true
}

// Backoff is the delay before the next attempt of a job that has failed attempts times.
func Backoff(attempts int) time.Duration {
	return time.Duration(attempts*10+10) * time.Second
}
