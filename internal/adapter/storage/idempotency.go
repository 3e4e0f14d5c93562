package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

func (s *Store) LookupResponse(ctx context.Context, key string) (int, []byte, bool, error) {
	var status int
	var body []byte
	err := s.Db.QueryRow(ctx,
		"SELECT response_status, response_body FROM idempotency_keys WHERE key_id = $1",
		key).Scan(&status, &body)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil, false, nil
	}
	if err != nil {
		return 0, nil, false, fmt.Errorf("failed to read idempotency key: %w", err)
	}
	return status, body, true, nil
}

// SaveResponse keeps the first response stored under key.
func (s *Store) SaveResponse(ctx context.Context, key string, status int, body []byte) error {
	_, err := s.Db.Exec(ctx,
		"INSERT INTO idempotency_keys (key_id, response_status, response_body) VALUES ($1, $2, $3) ON CONFLICT DO NOTHING",
		key, status, body)
	if err != nil {
		return fmt.Errorf("failed to save idempotency key: %w", err)
	}
	return nil
}
