// Package notifications turns committed ledger changes into stored
// notifications and outbound webhook jobs.
package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ibrahimkeyboad/ezledger/internal/core/domain"
	"github.com/ibrahimkeyboad/ezledger/internal/core/metrics"
)

// Store persists notifications.
type Store interface {
	CreateNotification(ctx context.Context, n domain.Notification) (domain.Notification, error)
}

// JobQueue accepts webhook deliveries for the worker.
type JobQueue interface {
	EnqueueWebhook(ctx context.Context, url string, payload []byte) (domain.WebhookJob, error)
}

type DispatcherConfig struct {
	QueueSize  int
	Workers    int
	WebhookURL string // empty disables webhooks
	Timeout    time.Duration
}

// WebhookEvent is the JSON body delivered to WebhookURL.
type WebhookEvent struct {
	Event          domain.EventKind    `json:"event"`
	AccountID      uuid.UUID           `json:"account_id"`
	NotificationID uuid.UUID           `json:"notification_id"`
	Title          string              `json:"title"`
	Message        string              `json:"message"`
	Data           domain.EventPayload `json:"data"`
}

type envelope struct {
	accountID uuid.UUID
	kind      domain.EventKind
	payload   domain.EventPayload
}

// Dispatcher implements ledger.Notifier. Notify only enqueues; a fixed set of
// workers stores the notification and queues the webhook. When the queue is
// full the event is dropped and logged.
type Dispatcher struct {
	store  Store
	queue  JobQueue
	cfg    DispatcherConfig
	logger *slog.Logger

	mu     sync.RWMutex
	closed bool
	events chan envelope
	wg     sync.WaitGroup
}

func NewDispatcher(store Store, queue JobQueue, cfg DispatcherConfig, logger *slog.Logger) *Dispatcher {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1024
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	d := &Dispatcher{
		store:  store,
		queue:  queue,
		cfg:    cfg,
		logger: logger,
		events: make(chan envelope, cfg.QueueSize),
	}
	for i := 0; i < cfg.Workers; i++ {
		d.wg.Add(1)
		go d.run()
	}
	return d
}

func (d *Dispatcher) Notify(accountID uuid.UUID, kind domain.EventKind, payload domain.EventPayload) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		metrics.IncNotification("dropped")
		return
	}
	select {
	case d.events <- envelope{accountID: accountID, kind: kind, payload: payload}:
	default:
		metrics.IncNotification("dropped")
		d.logger.Warn("⚠️ Notification queue full, event dropped", "account_id", accountID, "type", kind)
	}
}

// Close stops accepting events and waits for the queued ones to be handled.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.events)
	d.mu.Unlock()
	d.wg.Wait()
}

func (d *Dispatcher) run() {
	defer d.wg.Done()
	for ev := range d.events {
		d.handle(ev)
	}
}

func (d *Dispatcher) handle(ev envelope) {
	ctx, cancel := context.WithTimeout(context.Background(), d.cfg.Timeout)
	defer cancel()

	title, message := Describe(ev.kind, ev.payload)
	n, err := d.store.CreateNotification(ctx, domain.Notification{
		AccountID: ev.accountID,
		Kind:      ev.kind,
		Title:     title,
		Message:   message,
		RelatedID: ev.payload.TransactionID,
	})
	if err != nil {
		metrics.IncNotification("failed")
		d.logger.Error("❌ Failed to store notification", "error", err, "account_id", ev.accountID, "type", ev.kind)
		return
	}
	metrics.IncNotification("stored")

	if d.cfg.WebhookURL == "" || d.queue == nil {
		return
	}
	body, err := json.Marshal(WebhookEvent{
		Event:          ev.kind,
		AccountID:      ev.accountID,
		NotificationID: n.ID,
		Title:          title,
		Message:        message,
		Data:           ev.payload,
	})
	if err != nil {
		d.logger.Error("❌ Failed to encode webhook event", "error", err)
		return
	}
	if _, err := d.queue.EnqueueWebhook(ctx, d.cfg.WebhookURL, body); err != nil {
		d.logger.Error("❌ Failed to queue webhook", "error", err, "notification_id", n.ID)
	}
}

// FormatAmount renders minor units as a two-decimal major amount.
func FormatAmount(minor int64) string {
	return decimal.New(minor, -2).StringFixed(2)
}

// Describe builds the title and message shown to the account owner.
func Describe(kind domain.EventKind, p domain.EventPayload) (title, message string) {
	amount := FormatAmount(p.Amount)
	switch kind {
	case domain.EventTransferSent:
		title = "Transfer successful"
		message = fmt.Sprintf("You sent %s to %s", amount, p.Counterparty)
	case domain.EventTransferReceived:
		title = "Money received"
		message = fmt.Sprintf("You received %s from %s", amount, p.Counterparty)
	case domain.EventTopUp:
		title = "Wallet topped up"
		message = fmt.Sprintf("Your balance was topped up with %s", amount)
	default:
		return string(kind), amount
	}
	if p.Memo != "" {
		message += ": " + p.Memo
	}
	return title, message
}
