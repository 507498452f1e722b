package di

import (
	"context"
	"fmt"

	"github.com/aristath/tradesim/internal/config"
	"github.com/aristath/tradesim/internal/modules/analysis"
	"github.com/aristath/tradesim/internal/modules/trading"
	"github.com/aristath/tradesim/internal/reliability"
	"github.com/aristath/tradesim/internal/scheduler"
	"github.com/rs/zerolog"
)

const maintenanceSchedule = "@every 6h"

// RegisterJobs creates the background jobs and registers them with the
// scheduler. The scheduler is not started.
func RegisterJobs(container *Container, cfg *config.Config, log zerolog.Logger) error {
	container.Scheduler = scheduler.New(container.EventManager, log)

	container.AnalysisJob = analysis.NewAnalysisJob(analysis.AnalysisJobConfig{
		Analyzer:     container.Analyzer,
		Portfolio:    container.Portfolio,
		Prices:       container.Prices,
		Trades:       container.TradeManager,
		Engine:       container.Engine,
		Clock:        container.Clock,
		LookbackDays: cfg.AnalysisLookbackDays,
		EventManager: container.EventManager,
	}, log)
	if err := container.Scheduler.AddJob(cfg.AnalysisSchedule, container.AnalysisJob); err != nil {
		return fmt.Errorf("failed to register analysis job: %w", err)
	}

	container.SettlementJob = trading.NewSettlementJob(
		container.OrderStore,
		container.Portfolio,
		container.Clock,
		container.EventManager,
		log,
	)
	if err := container.Scheduler.AddJob(cfg.SettlementSchedule, container.SettlementJob); err != nil {
		return fmt.Errorf("failed to register settlement job: %w", err)
	}

	maintenance := scheduler.NewDatabaseMaintenanceJob(container.OrdersDB, log)
	if err := container.Scheduler.AddJob(maintenanceSchedule, maintenance); err != nil {
		return fmt.Errorf("failed to register database maintenance job: %w", err)
	}

	if cfg.BackupEnabled() {
		s3Client, err := reliability.NewS3Client(context.Background(), reliability.S3Config{
			Bucket:          cfg.BackupBucket,
			Region:          cfg.BackupRegion,
			Endpoint:        cfg.BackupEndpoint,
			AccessKeyID:     cfg.BackupAccessKeyID,
			SecretAccessKey: cfg.BackupSecretAccessKey,
		}, log)
		if err != nil {
			return fmt.Errorf("failed to create backup client: %w", err)
		}
		backups := reliability.NewBackupService(s3Client, container.OrdersDB, cfg.BackupPrefix, container.Clock, log)
		container.BackupJob = reliability.NewBackupJob(backups, cfg.BackupRetentionDays, log)
		if err := container.Scheduler.AddJob(cfg.BackupSchedule, container.BackupJob); err != nil {
			return fmt.Errorf("failed to register backup job: %w", err)
		}
	}

	log.Info().
		Str("analysis", cfg.AnalysisSchedule).
		Str("settlement", cfg.SettlementSchedule).
		Bool("backup", cfg.BackupEnabled()).
		Msg("Jobs registered")

	return nil
}
