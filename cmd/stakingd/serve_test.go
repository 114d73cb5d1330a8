package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"staking-ledger/internal/config"
	"staking-ledger/internal/custody"
	"staking-ledger/internal/storage/memory"
)

func TestCreateStores_Memory(t *testing.T) {
	cfg := &config.Config{Storage: config.StorageConfig{Backend: config.BackendMemory}}

	st, cleanup, err := createStores(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	defer cleanup()

	assert.IsType(t, &memory.Ledger{}, st.ledger)
	assert.IsType(t, &memory.EventStore{}, st.events)
	assert.IsType(t, &custody.Vault{}, st.custody)
}

func TestCreateStores_PostgresUnreachable(t *testing.T) {
	cfg := &config.Config{
		Storage:  config.StorageConfig{Backend: config.BackendPostgres},
		Postgres: config.PostgresConfig{DSN: "not a dsn ::"},
	}

	_, _, err := createStores(context.Background(), cfg, zap.NewNop())
	assert.Error(t, err)
}
