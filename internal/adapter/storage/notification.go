package storage

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/ibrahimkeyboad/ezledger/internal/core/domain"
)

func (s *Store) CreateNotification(ctx context.Context, n domain.Notification) (domain.Notification, error) {
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	err := s.Db.QueryRow(ctx, `
		INSERT INTO notifications (id, account_id, type, title, message, related_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING is_read, created_at`,
		n.ID, n.AccountID, n.Kind, n.Title, n.Message, n.RelatedID,
	).Scan(&n.Read, &n.CreatedAt)
	if err != nil {
		return domain.Notification{}, fmt.Errorf("failed to create notification: %w", err)
	}
	return n, nil
}

func (s *Store) ListNotifications(ctx context.Context, accountID uuid.UUID, unreadOnly bool, limit int) ([]domain.Notification, error) {
	query := `
		SELECT id, account_id, type, title, message, related_id, is_read, created_at
		FROM notifications
		WHERE account_id = $1`
	if unreadOnly {
		query += ` AND is_read = FALSE`
	}
	query += ` ORDER BY created_at DESC`
	args := []any{accountID}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := s.Db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	defer rows.Close()

	out := []domain.Notification{}
	for rows.Next() {
		var n domain.Notification
		if err := rows.Scan(&n.ID, &n.AccountID, &n.Kind, &n.Title, &n.Message, &n.RelatedID, &n.Read, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (s *Store) CountUnread(ctx context.Context, accountID uuid.UUID) (int, error) {
	var count int
	err := s.Db.QueryRow(ctx,
		`SELECT COUNT(*) FROM notifications WHERE account_id = $1 AND is_read = FALSE`, accountID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count notifications: %w", err)
	}
	return count, nil
}

// MarkRead only touches a notification owned by accountID.
func (s *Store) MarkRead(ctx context.Context, accountID, id uuid.UUID) error {
	tag, err := s.Db.Exec(ctx,
		`UPDATE notifications SET is_read = TRUE WHERE id = $1 AND account_id = $2`, id, accountID)
	if err != nil {
		return fmt.Errorf("failed to mark notification: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotificationNotFound
	}
	return nil
}

func (s *Store) MarkAllRead(ctx context.Context, accountID uuid.UUID) (int, error) {
	tag, err := s.Db.Exec(ctx,
		`UPDATE notifications SET is_read = TRUE WHERE account_id = $1 AND is_read = FALSE`, accountID)
	if err != nil {
		return 0, fmt.Errorf("failed to mark notifications: %w", err)
	}
	return int(tag.RowsAffected()), nil
}
