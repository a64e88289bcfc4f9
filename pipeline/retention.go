package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/sasta-kro/spoon-trigger/models"
)

// RetentionStore is the persistence the retention loop needs. *db.Database satisfies it.
type RetentionStore interface {
	ListExpiredBuilds(ctx context.Context, cutoff time.Time) ([]*models.Build, error)
	DeleteBuild(ctx context.Context, id string) error
}

// Retention deletes finished builds older than a maximum age, with their log files.
type Retention struct {
	store   RetentionStore
	logPath func(buildID string) string
	maxAge  time.Duration
	logger  *slog.Logger
}

// NewRetention constructs a Retention. logPath is BuildPipeline.LogPath in production.
func NewRetention(store RetentionStore, logPath func(buildID string) string, maxAge time.Duration, logger *slog.Logger) *Retention {
	return &Retention{store: store, logPath: logPath, maxAge: maxAge, logger: logger}
}

// Start runs Prune every tickInterval until ctx is cancelled.
// it should be launched as a goroutine from main.
func (retention *Retention) Start(ctx context.Context, tickInterval time.Duration) {
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	retention.logger.Info("build retention loop started",
		"interval", tickInterval.String(),
		"max_age", retention.maxAge.String(),
	)

	for {
		select {
		case <-ctx.Done():
			retention.logger.Info("build retention loop stopped")
			return
		case <-ticker.C:
			retention.Prune(ctx, time.Now())
		}
	}
}

// Prune deletes every build that finished more than maxAge before now and returns how many went.
// a build that fails to be removed is logged and the others are still processed.
func (retention *Retention) Prune(ctx context.Context, now time.Time) int {
	expired, err := retention.store.ListExpiredBuilds(ctx, now.Add(-retention.maxAge))
	if err != nil {
		retention.logger.Error("failed to list expired builds", "error", err)
		return 0
	}
	if len(expired) == 0 {
		return 0
	}

	retention.logger.Info("found expired builds", "count", len(expired))

	removed := 0
	for _, build := range expired {
		if err := retention.removeBuild(ctx, build); err != nil {
			retention.logger.Error("failed to remove expired build",
				"build_id", build.ID,
				"project_id", build.ProjectID,
				"error", err,
			)
			continue
		}
		removed++
	}
	return removed
}

// removeBuild deletes the log file first, so a failure leaves the record that points at it.
// a log file that does not exist is not an error.
func (retention *Retention) removeBuild(ctx context.Context, build *models.Build) error {
	logPath := retention.logPath(build.ID)
	if err := os.Remove(logPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove log file %q: %w", logPath, err)
	}
	return retention.store.DeleteBuild(ctx, build.ID)
}
