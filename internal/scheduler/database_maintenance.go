package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/aristath/tradesim/internal/database"
	"github.com/rs/zerolog"
)

// walWarnFrames is the WAL size above which a passive checkpoint that could
// not complete is reported
const walWarnFrames = 1000

// DatabaseMaintenanceJob checks the integrity of a SQLite database and
// checkpoints its write-ahead log
type DatabaseMaintenanceJob struct {
	db      *database.DB
	log     zerolog.Logger
	timeout time.Duration
}

// NewDatabaseMaintenanceJob creates a maintenance job for db
func NewDatabaseMaintenanceJob(db *database.DB, log zerolog.Logger) *DatabaseMaintenanceJob {
	return &DatabaseMaintenanceJob{
		db:      db,
		log:     log.With().Str("job", "database_maintenance").Str("database", db.Name()).Logger(),
		timeout: 30 * time.Second,
	}
}

// Name returns the job name
func (j *DatabaseMaintenanceJob) Name() string {
	return "database_maintenance"
}

// Run executes the integrity check followed by a passive checkpoint.
// A failed integrity check fails the job.
func (j *DatabaseMaintenanceJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	if err := j.db.HealthCheck(ctx); err != nil {
		j.log.Error().Err(err).Msg("Database health check failed")
		return err
	}

	walFrames, checkpointed, err := j.Checkpoint(ctx)
	if err != nil {
		return err
	}

	if walFrames > walWarnFrames && checkpointed < walFrames {
		j.log.Warn().
			Int("wal_frames", walFrames).
			Int("checkpointed", checkpointed).
			Msg("WAL file is large, checkpoint could not complete")
	} else {
		j.log.Debug().
			Int("wal_frames", walFrames).
			Int("checkpointed", checkpointed).
			Msg("Database maintenance completed")
	}
	return nil
}

// Checkpoint runs PRAGMA wal_checkpoint(PASSIVE) and returns the WAL size in
// frames and the number of frames written back. Both are -1 when the
// database is not in WAL mode.
func (j *DatabaseMaintenanceJob) Checkpoint(ctx context.Context) (int, int, error) {
	var busy, walFrames, checkpointed int
	err := j.db.Conn().QueryRowContext(ctx, "PRAGMA wal_checkpoint(PASSIVE)").
		Scan(&busy, &walFrames, &checkpointed)
	if err != nil {
		return 0, 0, fmt.Errorf("wal checkpoint failed for %s: %w", j.db.Name(), err)
	}
	return walFrames, checkpointed, nil
}
