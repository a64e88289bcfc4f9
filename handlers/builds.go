package handlers

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/sasta-kro/spoon-trigger/db"
	"github.com/sasta-kro/spoon-trigger/models"
)

// BuildReader is the persistence the build endpoints need. *db.Database satisfies it.
type BuildReader interface {
	GetBuild(ctx context.Context, id string) (*models.Build, error)
	ListBuilds(ctx context.Context, projectID string, limit int) ([]*models.Build, error)
}

// BuildHandler serves build records and their log files.
type BuildHandler struct {
	store   BuildReader
	logPath func(buildID string) string
	logger  *slog.Logger
}

// NewBuildHandler constructs a BuildHandler. logPath maps a build ID to its log file,
// pipeline.BuildPipeline.LogPath in production.
func NewBuildHandler(store BuildReader, logPath func(buildID string) string, logger *slog.Logger) *BuildHandler {
	return &BuildHandler{store: store, logPath: logPath, logger: logger}
}

// ListBuilds handles GET /api/builds?project_id=...&limit=...
// newest first. both query parameters are optional.
func (handler *BuildHandler) ListBuilds(responseWriter http.ResponseWriter, request *http.Request) {
	projectID := request.URL.Query().Get("project_id")

	limit := 0
	if rawLimit := request.URL.Query().Get("limit"); rawLimit != "" {
		parsed, err := strconv.Atoi(rawLimit)
		if err != nil || parsed <= 0 {
			writeErrorJsonAndLogIt(responseWriter, http.StatusBadRequest, "limit must be a positive integer", handler.logger)
			return
		}
		limit = parsed
	}

	builds, err := handler.store.ListBuilds(request.Context(), projectID, limit)
	if err != nil {
		handler.logger.Error("failed to list builds", "project_id", projectID, "error", err)
		writeErrorJsonAndLogIt(responseWriter, http.StatusInternalServerError, "failed to retrieve builds", handler.logger)
		return
	}
	if builds == nil {
		builds = []*models.Build{}
	}
	writeJsonAndRespond(responseWriter, http.StatusOK, builds)
}

// GetBuild handles GET /api/builds/{id}.
func (handler *BuildHandler) GetBuild(responseWriter http.ResponseWriter, request *http.Request) {
	build, ok := handler.lookup(responseWriter, request)
	if !ok {
		return
	}
	writeJsonAndRespond(responseWriter, http.StatusOK, build)
}

// GetBuildLog handles GET /api/builds/{id}/log and streams the build log as plain text.
// a queued build has no log yet, which is a 404 like an unknown build.
func (handler *BuildHandler) GetBuildLog(responseWriter http.ResponseWriter, request *http.Request) {
	build, ok := handler.lookup(responseWriter, request)
	if !ok {
		return
	}

	logFile, err := os.Open(handler.logPath(build.ID))
	if errors.Is(err, fs.ErrNotExist) {
		writeErrorJsonAndLogIt(responseWriter, http.StatusNotFound, "build log not found", handler.logger)
		return
	}
	if err != nil {
		handler.logger.Error("failed to open build log", "build_id", build.ID, "error", err)
		writeErrorJsonAndLogIt(responseWriter, http.StatusInternalServerError, "failed to read build log", handler.logger)
		return
	}
	defer logFile.Close()

	responseWriter.Header().Set("Content-Type", "text/plain; charset=utf-8")
	responseWriter.WriteHeader(http.StatusOK)
	if _, err := io.Copy(responseWriter, logFile); err != nil {
		handler.logger.Warn("build log response interrupted", "build_id", build.ID, "error", err)
	}
}

func (handler *BuildHandler) lookup(responseWriter http.ResponseWriter, request *http.Request) (*models.Build, bool) {
	buildID := chi.URLParam(request, "id")

	build, err := handler.store.GetBuild(request.Context(), buildID)
	if errors.Is(err, db.ErrRecordNotFound) {
		writeErrorJsonAndLogIt(responseWriter, http.StatusNotFound, "build not found", handler.logger)
		return nil, false
	}
	if err != nil {
		handler.logger.Error("failed to get build", "id", buildID, "error", err)
		writeErrorJsonAndLogIt(responseWriter, http.StatusInternalServerError, "failed to retrieve build", handler.logger)
		return nil, false
	}
	return build, true
}
