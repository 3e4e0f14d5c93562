package storage

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ibrahimkeyboad/ezledger/internal/adapter/storage/migrations"
	"github.com/ibrahimkeyboad/ezledger/internal/core/domain"
	"github.com/ibrahimkeyboad/ezledger/internal/core/ledger"
)

// newTestStore connects to TEST_DATABASE_URL and applies the schema.
// Tests that need PostgreSQL are skipped when it is unset.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx := context.Background()

	sqlDB, err := sql.Open("pgx", url)
	require.NoError(t, err)
	require.NoError(t, migrations.Apply(ctx, sqlDB))
	require.NoError(t, sqlDB.Close())

	pool, err := ConnectDB(ctx, url, 4)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	return NewStore(pool)
}

func uniqueName(prefix string) string {
	return prefix + "_" + uuid.NewString()[:8]
}

func TestPostgresAccountLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	name := uniqueName("alice")
	acct, err := s.CreateAccount(ctx, name, "Alice", domain.RoleUser)
	require.NoError(t, err)
	assert.Equal(t, int64(0), acct.Balance)
	assert.Equal(t, int64(1), acct.Version)

	_, err = s.CreateAccount(ctx, name, "Alice again", domain.RoleUser)
	assert.ErrorIs(t, err, domain.ErrUsernameTaken)

	byName, err := s.GetByName(ctx, name)
	require.NoError(t, err)
	assert.Equal(t, acct.ID, byName.ID)

	_, err = s.Get(ctx, uuid.New())
	assert.ErrorIs(t, err, domain.ErrAccountNotFound)

	acct.Balance = 500
	acct.UpdatedAt = time.Now().UTC()
	saved, err := s.CompareAndSave(ctx, acct, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(2), saved.Version)
	assert.Equal(t, int64(500), saved.Balance)

	_, err = s.CompareAndSave(ctx, acct, 1)
	assert.ErrorIs(t, err, domain.ErrConflict)
}

func TestPostgresWithTxRollsBack(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a, err := s.CreateAccount(ctx, uniqueName("a"), "", domain.RoleUser)
	require.NoError(t, err)
	b, err := s.CreateAccount(ctx, uniqueName("b"), "", domain.RoleUser)
	require.NoError(t, err)

	boom := errors.New("boom")
	err = s.WithTx(ctx, func(tx ledger.Tx) error {
		a.Balance = 100
		if _, err := tx.CompareAndSave(ctx, a, a.Version); err != nil {
			return err
		}
		if _, err := tx.Append(ctx, domain.TransactionRecord{
			ID: uuid.New(), SenderID: a.ID, SenderUsername: a.Username,
			ReceiverID: b.ID, ReceiverUsername: b.Username, Amount: 1, CreatedAt: time.Now().UTC(),
		}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	after, err := s.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), after.Balance)
	recs, err := s.QueryByParticipant(ctx, a.ID, 0)
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestPostgresTransferThroughLedger(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a, err := s.CreateAccount(ctx, uniqueName("a"), "", domain.RoleUser)
	require.NoError(t, err)
	b, err := s.CreateAccount(ctx, uniqueName("b"), "", domain.RoleUser)
	require.NoError(t, err)
	admin, err := s.CreateAccount(ctx, uniqueName("admin"), "", domain.RoleAdmin)
	require.NoError(t, err)

	svc := ledger.New(s, ledger.DefaultConfig())
	_, err = svc.TopUp(ctx, ledger.TopUpRequest{ActorID: admin.ID, Target: a.ID.String(), Amount: 10_000})
	require.NoError(t, err)

	rec, err := svc.Transfer(ctx, ledger.TransferRequest{SenderID: a.ID, Receiver: b.Username, Amount: 2_550, Memo: "lunch"})
	require.NoError(t, err)
	assert.Positive(t, rec.Seq)

	history, err := svc.History(ctx, b.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, rec.ID, history[0].ID)
	assert.Equal(t, "lunch", history[0].Memo)

	topUps, err := svc.TopUps(ctx, a.ID, 0)
	require.NoError(t, err)
	require.Len(t, topUps, 1)
	assert.Equal(t, int64(10_000), topUps[0].BalanceAfter)

	aAfter, _ := s.Get(ctx, a.ID)
	bAfter, _ := s.Get(ctx, b.ID)
	assert.Equal(t, int64(7_450), aAfter.Balance)
	assert.Equal(t, int64(2_550), bAfter.Balance)
}

func TestPostgresWebhookQueue(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	job, err := s.EnqueueWebhook(ctx, "http://example.invalid/hook", []byte(`{"event":"TOP_UP"}`))
	require.NoError(t, err)

	claimed, ok, err := s.ClaimWebhookJob(ctx, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, domain.JobProcessing, claimed.Status)
	assert.True(t, claimed.NextRunAt.After(time.Now()), "claim sets the lease deadline")

	require.NoError(t, s.ReleaseWebhookJob(ctx, claimed.ID))
	claimed, ok, err = s.ClaimWebhookJob(ctx, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, s.RetryWebhookJob(ctx, claimed.ID, time.Now().Add(time.Hour)))
	require.NoError(t, s.CompleteWebhookJob(ctx, job.ID))
}

func TestPostgresIdempotency(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	key := uniqueName("idem")

	_, _, found, err := s.LookupResponse(ctx, key)
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, s.SaveResponse(ctx, key, 201, []byte(`{"success":true}`)))
	require.NoError(t, s.SaveResponse(ctx, key, 500, []byte(`{}`)))

	status, body, found, err := s.LookupResponse(ctx, key)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, 201, status)
	assert.JSONEq(t, `{"success":true}`, string(body))
}
