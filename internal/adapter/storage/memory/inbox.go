package memory

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/ibrahimkeyboad/ezledger/internal/core/domain"
)

// =============================================================================
// Notifications
// =============================================================================

func (s *Store) CreateNotification(ctx context.Context, n domain.Notification) (domain.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	stored := n
	s.notifications = append(s.notifications, &stored)
	return n, nil
}

// ListNotifications returns the newest notifications first.
func (s *Store) ListNotifications(ctx context.Context, accountID uuid.UUID, unreadOnly bool, limit int) ([]domain.Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []domain.Notification{}
	for i := len(s.notifications) - 1; i >= 0; i-- {
		n := s.notifications[i]
		if n.AccountID != accountID || (unreadOnly && n.Read) {
			continue
		}
		out = append(out, *n)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *Store) CountUnread(ctx context.Context, accountID uuid.UUID) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for _, n := range s.notifications {
		if n.AccountID == accountID && !n.Read {
			count++
		}
	}
	return count, nil
}

// MarkRead flags one notification as read. Another account's notification
// is reported as not found.
func (s *Store) MarkRead(ctx context.Context, accountID, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, n := range s.notifications {
		if n.ID == id && n.AccountID == accountID {
			n.Read = true
			return nil
		}
	}
	return domain.ErrNotificationNotFound
}

func (s *Store) MarkAllRead(ctx context.Context, accountID uuid.UUID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	updated := 0
	for _, n := range s.notifications {
		if n.AccountID == accountID && !n.Read {
			n.Read = true
			updated++
		}
	}
	return updated, nil
}

// =============================================================================
// Webhook jobs
// =============================================================================

func (s *Store) EnqueueWebhook(ctx context.Context, url string, payload []byte) (domain.WebhookJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	job := &domain.WebhookJob{
		ID:        uuid.New(),
		URL:       url,
		Payload:   append([]byte(nil), payload...),
		Status:    domain.JobPending,
		NextRunAt: now,
		CreatedAt: now,
	}
	s.jobs = append(s.jobs, job)
	return *job, nil
}

// ClaimWebhookJob marks the oldest due job as processing until now+lease and
// returns it. A processing job whose lease ran out is due again. ok is false
// when nothing is due.
func (s *Store) ClaimWebhookJob(ctx context.Context, lease time.Duration) (job domain.WebhookJob, ok bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	for _, j := range s.jobs {
		if j.Status != domain.JobPending && j.Status != domain.JobProcessing {
			continue
		}
		if !j.NextRunAt.After(now) {
			j.Status = domain.JobProcessing
			j.NextRunAt = now.Add(lease)
			return *j, true, nil
		}
	}
	return domain.WebhookJob{}, false, nil
}

// ReleaseWebhookJob puts a claimed job back without counting an attempt.
func (s *Store) ReleaseWebhookJob(ctx context.Context, id uuid.UUID) error {
	return s.updateJob(id, func(j *domain.WebhookJob) {
		j.Status = domain.JobPending
		j.NextRunAt = time.Now().UTC()
	})
}

func (s *Store) CompleteWebhookJob(ctx context.Context, id uuid.UUID) error {
	return s.updateJob(id, func(j *domain.WebhookJob) {
		j.Status = domain.JobCompleted
	})
}

func (s *Store) RetryWebhookJob(ctx context.Context, id uuid.UUID, nextRun time.Time) error {
	return s.updateJob(id, func(j *domain.WebhookJob) {
		j.Status = domain.JobPending
		j.Attempts++
		j.NextRunAt = nextRun
	})
}

func (s *Store) FailWebhookJob(ctx context.Context, id uuid.UUID) error {
	return s.updateJob(id, func(j *domain.WebhookJob) {
		j.Status = domain.JobFailed
		j.Attempts++
	})
}

// WebhookJobs returns a copy of every job, oldest first.
func (s *Store) WebhookJobs() []domain.WebhookJob {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.WebhookJob, 0, len(s.jobs))
	for _, j := range s.jobs {
		out = append(out, *j)
	}
	return out
}

func (s *Store) updateJob(id uuid.UUID, fn func(*domain.WebhookJob)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, j := range s.jobs {
		if j.ID == id {
			fn(j)
			return nil
		}
	}
	return nil
}

// =============================================================================
// Idempotency
// =============================================================================

func (s *Store) LookupResponse(ctx context.Context, key string) (status int, body []byte, found bool, err error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.idempotency[key]
	if !ok {
		return 0, nil, false, nil
	}
	return r.status, r.body, true, nil
}

func (s *Store) SaveResponse(ctx context.Context, key string, status int, body []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.idempotency[key]; exists {
		return nil
	}
	s.idempotency[key] = cachedResponse{status: status, body: append([]byte(nil), body...)}
	return nil
}
