package notifications

import (
	"context"

	"github.com/google/uuid"

	"github.com/ibrahimkeyboad/ezledger/internal/core/domain"
)

// RecentLimit is how many notifications Recent returns.
const RecentLimit = 10

// InboxStore reads and updates the notifications of one account.
type InboxStore interface {
	ListNotifications(ctx context.Context, accountID uuid.UUID, unreadOnly bool, limit int) ([]domain.Notification, error)
	CountUnread(ctx context.Context, accountID uuid.UUID) (int, error)
	MarkRead(ctx context.Context, accountID, id uuid.UUID) error
	MarkAllRead(ctx context.Context, accountID uuid.UUID) (int, error)
}

// Inbox serves the notification read API. Every call is scoped to the caller's account.
type Inbox struct {
	store InboxStore
}

func NewInbox(store InboxStore) *Inbox {
	return &Inbox{store: store}
}

func (i *Inbox) List(ctx context.Context, accountID uuid.UUID) ([]domain.Notification, error) {
	return i.store.ListNotifications(ctx, accountID, false, 0)
}

func (i *Inbox) Unread(ctx context.Context, accountID uuid.UUID) ([]domain.Notification, error) {
	return i.store.ListNotifications(ctx, accountID, true, 0)
}

func (i *Inbox) Recent(ctx context.Context, accountID uuid.UUID) ([]domain.Notification, error) {
	return i.store.ListNotifications(ctx, accountID, false, RecentLimit)
}

func (i *Inbox) UnreadCount(ctx context.Context, accountID uuid.UUID) (int, error) {
	return i.store.CountUnread(ctx, accountID)
}

// MarkRead returns domain.ErrNotificationNotFound for ids the account does not own.
func (i *Inbox) MarkRead(ctx context.Context, accountID, id uuid.UUID) error {
	return i.store.MarkRead(ctx, accountID, id)
}

func (i *Inbox) MarkAllRead(ctx context.Context, accountID uuid.UUID) (int, error) {
	return i.store.MarkAllRead(ctx, accountID)
}
