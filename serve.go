package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/sasta-kro/spoon-trigger/config"
	"github.com/sasta-kro/spoon-trigger/db"
	"github.com/sasta-kro/spoon-trigger/git"
	"github.com/sasta-kro/spoon-trigger/handlers"
	"github.com/sasta-kro/spoon-trigger/models"
	"github.com/sasta-kro/spoon-trigger/pipeline"
	"github.com/sasta-kro/spoon-trigger/queue"
	"github.com/sasta-kro/spoon-trigger/trigger"
	"github.com/sasta-kro/spoon-trigger/validation"
	"github.com/sasta-kro/spoon-trigger/webhook"
)

const (
	// shutdownTimeout is how long in-flight requests get to finish after SIGINT/SIGTERM
	shutdownTimeout = 15 * time.Second

	// dispatchQueueCapacity bounds the scheduling tasks waiting behind the one that runs
	dispatchQueueCapacity = 64

	// retentionTickInterval is how often expired builds are looked for when BUILD_RETENTION is set
	retentionTickInterval = time.Hour
)

func newServeCommand() *cobra.Command {
	var port, dbPath, projectsFile, executor, logFormat string

	command := &cobra.Command{
		Use:   "serve",
		Short: "Receive push webhooks, serve the API and run queued builds",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			appConfig, err := config.Load()
			if err != nil {
				return err
			}

			// only flags that were actually given override the environment
			flags := cmd.Flags()
			if flags.Changed("port") {
				appConfig.Port = port
			}
			if flags.Changed("db-path") {
				appConfig.DBPath = dbPath
			}
			if flags.Changed("projects-file") {
				appConfig.ProjectsFile = projectsFile
			}
			if flags.Changed("executor") {
				appConfig.SpoonExecutor = executor
			}
			if flags.Changed("log-format") {
				appConfig.LogFormat = logFormat
			}
			if err := appConfig.Validate(); err != nil {
				return err
			}

			return runServer(cmd.Context(), appConfig)
		},
	}

	command.Flags().StringVar(&port, "port", "", "TCP port of the HTTP server (env PORT)")
	command.Flags().StringVar(&dbPath, "db-path", "", "SQLite database file (env DB_PATH)")
	command.Flags().StringVar(&projectsFile, "projects-file", "", "TOML or YAML projects seeded at startup (env PROJECTS_FILE)")
	command.Flags().StringVar(&executor, "executor", "", `"process" or "docker" (env SPOON_EXECUTOR)`)
	command.Flags().StringVar(&logFormat, "log-format", "", `"json" or "text" (env LOG_FORMAT)`)

	return command
}

// runServer wires every component together and blocks until SIGINT or SIGTERM.
//
// Startup order:
//
//	open the database, fail builds a previous process left running
//	seed the projects file
//	build the launcher factory, the pipeline and the worker
//	build the dispatch queue, the dispatcher and the webhook router
//	serve HTTP until a signal arrives, then drain in reverse order
func runServer(parentCtx context.Context, appConfig *config.Config) error {
	logger := appConfig.NewLogger()

	logger.Info("spoon-trigger starting",
		"port", appConfig.Port,
		"db_path", appConfig.DBPath,
		"log_root", appConfig.LogRoot,
		"executor", appConfig.SpoonExecutor,
		"log_format", appConfig.LogFormat,
	)

	// signal.NotifyContext cancels ctx on the first SIGINT or SIGTERM.
	// every long-running component below stops when ctx is done.
	ctx, stop := signal.NotifyContext(parentCtx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	database, err := db.OpenDatabase(appConfig.DBPath, logger)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer database.CloseDatabase()

	interrupted, err := database.FailInterruptedBuilds(ctx)
	if err != nil {
		return err
	}
	if interrupted > 0 {
		logger.Warn("marked builds interrupted by the previous shutdown as failed", "count", interrupted)
	}

	if appConfig.ProjectsFile != "" {
		if err := seedProjects(ctx, database, appConfig, logger); err != nil {
			return err
		}
	}

	// ===== build side
	launchers, closeLaunchers, err := newLauncherFactory(appConfig, logger)
	if err != nil {
		return err
	}
	defer closeLaunchers()

	buildPipeline := pipeline.NewBuildPipeline(database, launchers, logger, pipeline.BuildPipelineConfig{
		LogRoot: appConfig.LogRoot,
	})
	worker := pipeline.NewWorker(buildPipeline, logger)

	waitForWorker := runInBackground(ctx, func(ctx context.Context) {
		worker.Start(ctx, appConfig.WorkerPollInterval)
	})
	// the running build is cancelled with ctx. waiting for it keeps the
	// database open until its failure has been recorded
	defer func() {
		stop()
		waitForWorker()
	}()

	if appConfig.BuildRetention > 0 {
		retention := pipeline.NewRetention(database, buildPipeline.LogPath, appConfig.BuildRetention, logger)
		waitForRetention := runInBackground(ctx, func(ctx context.Context) {
			retention.Start(ctx, retentionTickInterval)
		})
		// a prune in progress finishes before the database is closed
		defer func() {
			stop()
			waitForRetention()
		}()
	}

	// ===== trigger side
	dispatchQueue := queue.NewSequential(dispatchQueueCapacity, logger)
	defer dispatchQueue.Close()

	scheduler := &notifyingScheduler{database: database, worker: worker}
	dispatcher := trigger.NewDispatcher(database, scheduler, dispatchQueue, logger)
	webhookRouter := webhook.NewRouter(loadIdentity(appConfig.IdentityKeyPath, logger), dispatcher, logger)

	router := handlers.CreateAndSetupRouter(handlers.RouterDependencies{
		Logger:            logger,
		Database:          database,
		WebhookRouter:     webhookRouter,
		BuildNotifier:     worker,
		HookURLChecker:    validation.NewHookURLValidator(nil, appConfig.HookURL),
		LogPath:           buildPipeline.LogPath,
		CORSAllowedOrigin: appConfig.CORSAllowedOrigin,
	})

	server := &http.Server{
		Addr:              ":" + appConfig.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("http server listening", "addr", server.Addr, "webhook_path", handlers.WebhookPath)
		serverErrors <- server.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutdown signal received, draining")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http server shutdown failed: %w", err)
	}
	logger.Info("spoon-trigger stopped")
	return nil
}

// seedProjects upserts every project of the projects file by name.
// a project whose settings have validation errors is skipped with a warning,
// the others are still loaded.
func seedProjects(ctx context.Context, database *db.Database, appConfig *config.Config, logger *slog.Logger) error {
	projects, err := config.LoadProjects(appConfig.ProjectsFile, appConfig.WorkspaceRoot)
	if err != nil {
		return err
	}

	for index := range projects {
		project := &projects[index]

		report := validation.ValidateProject(*project)
		if report.HasErrors() {
			logger.Warn("skipping invalid project from projects file",
				"name", project.Name,
				"errors", report.Error(),
			)
			continue
		}

		created, err := database.UpsertProject(ctx, project)
		if err != nil {
			return fmt.Errorf("failed to seed project %q: %w", project.Name, err)
		}
		logger.Info("seeded project", "name", project.Name, "id", project.ID, "created", created)
	}
	return nil
}

// loadIdentity reads the webhook identity key. without a usable key, probes
// are answered with the default identity and validators will warn about it.
func loadIdentity(path string, logger *slog.Logger) webhook.IdentityProvider {
	if path == "" {
		logger.Warn("IDENTITY_KEY_PATH is not set, answering probes with the default identity")
		return webhook.StaticIdentity("")
	}

	identity, err := webhook.LoadIdentity(path)
	if err != nil {
		logger.Error("failed to load identity key, answering probes with the default identity",
			"path", path,
			"error", err,
		)
		return webhook.StaticIdentity("")
	}
	return identity
}

// notifyingScheduler queues push builds in the database and wakes the worker
// when a new build was actually queued.
type notifyingScheduler struct {
	database *db.Database
	worker   *pipeline.Worker
}

func (scheduler *notifyingScheduler) ScheduleBuild(ctx context.Context, binding models.TriggerBinding, cause git.PushCause) (bool, error) {
	scheduled, err := scheduler.database.ScheduleBuild(ctx, binding, cause)
	if err != nil {
		return false, err
	}
	if scheduled {
		scheduler.worker.Notify()
	}
	return scheduled, nil
}

// runInBackground runs run in its own goroutine and returns a func that blocks until run returned.
func runInBackground(ctx context.Context, run func(ctx context.Context)) (wait func()) {
	done := make(chan struct{})
	go func() {
		defer close(done)
		run(ctx)
	}()
	return func() { <-done }
}
