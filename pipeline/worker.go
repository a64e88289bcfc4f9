package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/sasta-kro/spoon-trigger/db"
)

// Worker claims queued builds and runs them one at a time.
type Worker struct {
	pipeline *BuildPipeline
	logger   *slog.Logger
	wake     chan struct{}
}

func NewWorker(pipeline *BuildPipeline, logger *slog.Logger) *Worker {
	return &Worker{
		pipeline: pipeline,
		logger:   logger,
		wake:     make(chan struct{}, 1),
	}
}

// Notify makes the worker look for queued builds now instead of at the next tick.
// it never blocks.
func (worker *Worker) Notify() {
	select {
	case worker.wake <- struct{}{}:
	default:
	}
}

// Start runs the claim loop every tickInterval until ctx is cancelled (on graceful shutdown).
// it should be launched as a goroutine from main.
func (worker *Worker) Start(ctx context.Context, tickInterval time.Duration) {
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	worker.logger.Info("build worker started", "interval", tickInterval.String())

	for {
		select {
		case <-ctx.Done():
			worker.logger.Info("build worker stopped")
			return
		case <-ticker.C:
			worker.RunQueued(ctx)
		case <-worker.wake:
			worker.RunQueued(ctx)
		}
	}
}

// RunQueued claims and runs builds until the queue is empty and returns how many ran.
// a failing build is recorded by the pipeline and does not stop the others.
func (worker *Worker) RunQueued(ctx context.Context) int {
	ran := 0
	for ctx.Err() == nil {
		build, err := worker.pipeline.store.ClaimNextQueuedBuild(ctx)
		if errors.Is(err, db.ErrRecordNotFound) {
			return ran
		}
		if err != nil {
			worker.logger.Error("failed to claim the next queued build", "error", err)
			return ran
		}

		ran++
		if err := worker.pipeline.Run(ctx, build); err != nil {
			worker.logger.Warn("build failed", "build_id", build.ID, "project_id", build.ProjectID)
			continue
		}
		worker.logger.Info("build succeeded", "build_id", build.ID, "project_id", build.ProjectID)
	}
	return ran
}
