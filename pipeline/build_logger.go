package pipeline

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/sasta-kro/spoon-trigger/models"
)

// buildLogger writes every step of one build both to the application logger
// and to the build's own log file. constructed at the start of each Run.
type buildLogger struct {
	// pipeline gives access to the app logger and to the store, the store
	// only for marking the build failed in logFailureAndUpdateStatus
	pipeline *BuildPipeline
	build    *models.Build
	logFile  *os.File // nil if the log file could not be opened
}

// logInfo writes a timestamped line to the build log file and a structured
// entry to the application logger. safe to call when logFile is nil.
func (logger *buildLogger) logInfo(format string, args ...any) {
	message := fmt.Sprintf(format, args...)
	line := fmt.Sprintf("[%s] %s\n", time.Now().UTC().Format(time.RFC3339), message)

	logger.pipeline.logger.Info("build pipeline",
		"build_id", logger.build.ID,
		"msg", message,
	)
	if logger.logFile != nil {
		logger.logFile.WriteString(line)
	}
}

// logFailureAndUpdateStatus records why the build failed in both logs, marks it
// failed in the store and returns the failure as an error for the caller.
// a store error at this point is only logged, nothing more can be done with it.
func (logger *buildLogger) logFailureAndUpdateStatus(ctx context.Context, reason string, err error) error {
	failure := fmt.Errorf("%s: %w", reason, err)
	logger.logInfo("FAILED: %v", failure)

	// WithoutCancel: a build cancelled by shutdown must still be recorded as failed
	dbErr := logger.pipeline.store.FinishBuild(context.WithoutCancel(ctx), logger.build.ID, models.StatusFailed, failure.Error())
	if dbErr != nil {
		logger.pipeline.logger.Error("failed to update build status to failed",
			"build_id", logger.build.ID,
			"error", dbErr,
		)
	}
	return failure
}

// output is where the tool's stdout and stderr go: the log file, or nowhere
// when it could not be opened.
func (logger *buildLogger) output() io.Writer {
	if logger.logFile != nil {
		return logger.logFile
	}
	return io.Discard
}

// openBuildLogFile creates or opens <logRoot>/<build id>.log.
// the log directory is created if it does not exist.
func (buildPipeline *BuildPipeline) openBuildLogFile(buildID string) (*os.File, error) {
	err := os.MkdirAll(buildPipeline.logRoot, 0755)
	if err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	logPath := filepath.Join(buildPipeline.logRoot, buildID+".log")
	// O_APPEND: writes go to the end of the file.
	// O_CREATE: create the file if it does not exist.
	// 0644: owner read/write, group and others read-only.
	return os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
}

// LogPath returns where the log of a build is written.
func (buildPipeline *BuildPipeline) LogPath(buildID string) string {
	return filepath.Join(buildPipeline.logRoot, buildID+".log")
}
