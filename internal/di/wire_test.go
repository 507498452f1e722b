package di

import (
	"context"
	"testing"
	"time"

	"github.com/aristath/tradesim/internal/config"
	"github.com/aristath/tradesim/internal/domain"
	testingpkg "github.com/aristath/tradesim/internal/testing"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		DataDir:              t.TempDir(),
		Port:                 8001,
		CommissionFlat:       decimal.RequireFromString("7.95"),
		MarginLeverage:       decimal.NewFromInt(2),
		OrderLifetime:        24 * time.Hour,
		AnalysisSchedule:     "@daily",
		AnalysisLookbackDays: 1,
		SettlementSchedule:   "@hourly",
	}
}

func TestWire(t *testing.T) {
	container, err := Wire(testConfig(t), zerolog.Nop())
	require.NoError(t, err)
	require.NotNil(t, container)
	t.Cleanup(func() { container.Close() })

	assert.NotNil(t, container.OrdersDB)
	assert.NotNil(t, container.EventBus)
	assert.NotNil(t, container.EventManager)
	assert.NotNil(t, container.Portfolio)
	assert.NotNil(t, container.Prices)
	assert.NotNil(t, container.Engine)
	assert.NotNil(t, container.OrderStore)
	assert.NotNil(t, container.TradeManager)
	assert.NotNil(t, container.AnalysisJob)
	assert.NotNil(t, container.SettlementJob)

	jobs := container.Scheduler.Jobs()
	require.Len(t, jobs, 3)
	assert.Equal(t, "analysis", jobs[0].Name)
	assert.Equal(t, "database_maintenance", jobs[1].Name)
	assert.Equal(t, "settlement", jobs[2].Name)
	assert.Nil(t, container.BackupJob)
}

func TestWire_RegistersBackupJobWhenBucketConfigured(t *testing.T) {
	cfg := testConfig(t)
	cfg.BackupBucket = "tradesim"
	cfg.BackupRegion = "us-east-1"
	cfg.BackupEndpoint = "http://127.0.0.1:9000"
	cfg.BackupAccessKeyID = "key"
	cfg.BackupSecretAccessKey = "secret"
	cfg.BackupPrefix = "backups/"
	cfg.BackupSchedule = "@daily"
	cfg.BackupRetentionDays = 30

	container, err := Wire(cfg, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { container.Close() })

	require.NotNil(t, container.BackupJob)
	jobs := container.Scheduler.Jobs()
	require.Len(t, jobs, 4)
	assert.Equal(t, "backup", jobs[1].Name)
}

func TestWire_InvalidSchedule(t *testing.T) {
	cfg := testConfig(t)
	cfg.AnalysisSchedule = "never"

	_, err := Wire(cfg, zerolog.Nop())
	assert.Error(t, err)
}

func TestWire_InvalidTiers(t *testing.T) {
	cfg := testConfig(t)
	cfg.CommissionTiers = "abc:1"

	_, err := Wire(cfg, zerolog.Nop())
	assert.Error(t, err)
}

func TestWire_OrdersFlowThroughTheEngine(t *testing.T) {
	container, err := Wire(testConfig(t), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { container.Close() })

	now := time.Now().UTC()
	deposit := testingpkg.NewTransactionFixture(t, now.AddDate(0, 0, -1), domain.OrderTypeDeposit, "", "1000", "0", "0")
	require.NoError(t, container.Portfolio.AddTransaction(deposit))

	order := testingpkg.NewOrderFixture(t, now, domain.OrderTypeBuy, "AAPL", "2", "100")
	_, err = container.Engine.Submit(order)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, container.Engine.WaitAll(ctx))

	state, ok := container.Engine.State(order.ID)
	require.True(t, ok)
	assert.Equal(t, domain.OrderStateFilled, state)
	assert.NotNil(t, container.Portfolio.GetPosition("AAPL"))
}

func TestBuildAccount(t *testing.T) {
	cfg := testConfig(t)
	order := testingpkg.NewOrderFixture(t, testingpkg.Day(2024, time.March, 1), domain.OrderTypeBuy, "AAPL", "250", "10")

	account, err := BuildAccount(cfg, nil)
	require.NoError(t, err)
	assert.False(t, account.Features.IsMarginAccount())
	assert.True(t, account.Commissions.PriceCheck(*order).Equal(decimal.RequireFromString("7.95")))

	cfg.MarginAccount = true
	cfg.CommissionTiers = "100:4.95,500:7"
	account, err = BuildAccount(cfg, nil)
	require.NoError(t, err)
	assert.True(t, account.Features.IsMarginAccount())
	assert.True(t, account.Features.Supports(domain.OrderTypeSellShort))
	assert.True(t, account.Commissions.PriceCheck(*order).Equal(decimal.NewFromInt(7)))
}
