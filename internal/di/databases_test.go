package di

import (
	"path/filepath"
	"testing"

	"github.com/aristath/tradesim/internal/config"
	"github.com/aristath/tradesim/internal/database"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitializeDatabases(t *testing.T) {
	tmpDir := t.TempDir()
	cfg := &config.Config{DataDir: tmpDir}

	container, err := InitializeDatabases(cfg, zerolog.Nop())
	require.NoError(t, err)
	require.NotNil(t, container)
	defer container.Close()

	require.NotNil(t, container.OrdersDB)
	assert.Equal(t, "orders", container.OrdersDB.Name())
	assert.Equal(t, database.ProfileLedger, container.OrdersDB.Profile())
	assert.FileExists(t, filepath.Join(tmpDir, "orders.db"))

	// Schema applied
	var name string
	err = container.OrdersDB.Conn().QueryRow(
		"SELECT name FROM sqlite_master WHERE type = 'table' AND name = 'orders'",
	).Scan(&name)
	require.NoError(t, err)
	assert.Equal(t, "orders", name)
}

func TestInitializeDatabases_Reopen(t *testing.T) {
	cfg := &config.Config{DataDir: t.TempDir()}

	first, err := InitializeDatabases(cfg, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, first.Close())

	// Migration is idempotent
	second, err := InitializeDatabases(cfg, zerolog.Nop())
	require.NoError(t, err)
	assert.NoError(t, second.Close())
}
