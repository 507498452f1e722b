package di

import (
	"fmt"
	"path/filepath"

	"github.com/aristath/tradesim/internal/config"
	"github.com/aristath/tradesim/internal/database"
	"github.com/rs/zerolog"
)

// InitializeDatabases opens the orders database and applies its schema
func InitializeDatabases(cfg *config.Config, log zerolog.Logger) (*Container, error) {
	container := &Container{}

	// orders.db - brokerage order store (open, cancelled and converted orders)
	ordersDB, err := database.New(database.Config{
		Path:    filepath.Join(cfg.DataDir, "orders.db"),
		Profile: database.ProfileLedger,
		Name:    "orders",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize orders database: %w", err)
	}

	if err := ordersDB.Migrate(); err != nil {
		ordersDB.Close()
		return nil, fmt.Errorf("failed to migrate orders database: %w", err)
	}
	container.OrdersDB = ordersDB

	log.Info().Str("path", ordersDB.Path()).Msg("Orders database initialized")

	return container, nil
}
