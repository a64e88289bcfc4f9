// Package trigger matches push causes against the registered trigger bindings
// and schedules one build per matching project.
package trigger

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sasta-kro/spoon-trigger/git"
	"github.com/sasta-kro/spoon-trigger/models"
)

// ProjectRegistry lists every project that has a trigger binding.
type ProjectRegistry interface {
	AllBindings(ctx context.Context) ([]models.TriggerBinding, error)
}

// Scheduler enqueues a build for a binding. scheduled is false when the host
// coalesced the request into a build that was already waiting.
type Scheduler interface {
	ScheduleBuild(ctx context.Context, binding models.TriggerBinding, cause git.PushCause) (scheduled bool, err error)
}

// BuildQueue runs submitted tasks one after another on a host owned goroutine.
type BuildQueue interface {
	Submit(task func()) error
}

// Dispatcher hands a push cause to every binding whose repository matches.
type Dispatcher struct {
	registry  ProjectRegistry
	scheduler Scheduler
	queue     BuildQueue
	logger    *slog.Logger
}

func NewDispatcher(registry ProjectRegistry, scheduler Scheduler, queue BuildQueue, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		registry:  registry,
		scheduler: scheduler,
		queue:     queue,
		logger:    logger,
	}
}

// Dispatch submits a scheduling task for each binding whose repository URL
// equals the pushed one ignoring case, and returns how many were submitted.
// the tasks run later on the queue, so a binding that fails to schedule is
// only logged and never affects the others or the caller.
func (dispatcher *Dispatcher) Dispatch(ctx context.Context, cause git.PushCause) (int, error) {
	bindings, err := dispatcher.registry.AllBindings(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list trigger bindings: %w", err)
	}

	matched := 0
	for _, binding := range bindings {
		binding := binding // per-iteration copy for the queued closure (go.mod targets go 1.21)
		if !strings.EqualFold(binding.RepositoryURL, cause.Repository.URL) {
			continue
		}

		err := dispatcher.queue.Submit(func() {
			dispatcher.schedule(binding, cause)
		})
		if err != nil {
			dispatcher.logger.Error("failed to queue trigger",
				"project", binding.ProjectName,
				"error", err,
			)
			continue
		}
		matched++
	}

	dispatcher.logger.Info("push dispatched",
		"repository", cause.Repository.URL,
		"bindings", len(bindings),
		"matched", matched,
	)
	return matched, nil
}

// schedule runs on the queue goroutine, after the request that caused it has returned,
// so it uses its own context.
func (dispatcher *Dispatcher) schedule(binding models.TriggerBinding, cause git.PushCause) {
	scheduled, err := dispatcher.scheduler.ScheduleBuild(context.Background(), binding, cause)
	if err != nil {
		dispatcher.logger.Error("failed to schedule build",
			"project", binding.ProjectName,
			"repository", cause.Repository.URL,
			"error", err,
		)
		return
	}

	if scheduled {
		dispatcher.logger.Info(fmt.Sprintf("Changes detected in '%s'. Triggering '%s' build.",
			cause.Repository.URL, binding.ProjectName))
	} else {
		dispatcher.logger.Info(fmt.Sprintf("Ignoring changes in '%s'. Build '%s' is already in the queue",
			cause.Repository.URL, binding.ProjectName))
	}
}
