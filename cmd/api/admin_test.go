package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ibrahimkeyboad/ezledger/internal/adapter/storage/memory"
	"github.com/ibrahimkeyboad/ezledger/internal/core/domain"
	"github.com/ibrahimkeyboad/ezledger/internal/core/security"
)

func TestCreateAdmin(t *testing.T) {
	ctx := context.Background()
	store := memory.New()

	var key string
	require.NoError(t, createAdmin(ctx, store, "root", func(k string) { key = k }))
	require.NotEmpty(t, key)

	acct, err := store.AccountByAPIKeyHash(ctx, security.HashKey(key))
	require.NoError(t, err)
	assert.Equal(t, "root", acct.Username)
	assert.Equal(t, domain.RoleAdmin, acct.Role)

	err = createAdmin(ctx, store, "ROOT", func(string) { t.Fatal("key shown for duplicate") })
	assert.ErrorIs(t, err, domain.ErrUsernameTaken)

	assert.Error(t, createAdmin(ctx, store, "x", func(string) {}))
}
