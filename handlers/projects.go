package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/sasta-kro/spoon-trigger/db"
	"github.com/sasta-kro/spoon-trigger/models"
	"github.com/sasta-kro/spoon-trigger/validation"
)

// ProjectStore is the persistence the project endpoints need. *db.Database satisfies it.
type ProjectStore interface {
	ListProjects(ctx context.Context) ([]*models.Project, error)
	GetProject(ctx context.Context, id string) (*models.Project, error)
	InsertProject(ctx context.Context, project *models.Project) error
	UpdateProject(ctx context.Context, project *models.Project) error
	DeleteProject(ctx context.Context, id string) ([]string, error)
	EnqueueBuild(
		ctx context.Context,
		projectID string,
		kind models.CauseKind,
		description string,
		cause *models.BuildCause,
	) (*models.Build, bool, error)
}

// BuildNotifier is woken when a build was queued. *pipeline.Worker satisfies it.
type BuildNotifier interface {
	Notify()
}

// ProjectHandler holds the dependencies needed by all project endpoints.
type ProjectHandler struct {
	store    ProjectStore
	notifier BuildNotifier
	logPath  func(buildID string) string
	logger   *slog.Logger
}

// NewProjectHandler constructs a ProjectHandler. a nil notifier leaves queued builds to the worker's next tick.
// logPath locates the log files removed together with a deleted project's builds.
func NewProjectHandler(store ProjectStore, notifier BuildNotifier, logPath func(buildID string) string, logger *slog.Logger) *ProjectHandler {
	return &ProjectHandler{store: store, notifier: notifier, logPath: logPath, logger: logger}
}

// projectRequest is the JSON body accepted by POST /api/projects and PUT /api/projects/{id}.
// it has the editable settings only: the ID and the timestamps belong to the database.
type projectRequest struct {
	Name                string                `json:"name"`
	RepositoryURL       string                `json:"repository_url"`
	Workspace           string                `json:"workspace"`
	ScriptPath          string                `json:"script_path"`
	ImageName           string                `json:"image_name"`
	VMVersion           string                `json:"vm_version"`
	ContainerWorkingDir string                `json:"container_working_dir"`
	Mount               *models.MountSettings `json:"mount,omitempty"`
	Overwrite           bool                  `json:"overwrite"`
	NoBase              bool                  `json:"no_base"`
	Diagnostic          bool                  `json:"diagnostic"`
	LoginUser           string                `json:"login_user"`
	LoginPasswordEnv    string                `json:"login_password_env"`
	Push                *models.PushSettings  `json:"push,omitempty"`
	ExportDirectory     string                `json:"export_directory"`
	RemoveImage         bool                  `json:"remove_image"`
}

func (body projectRequest) toProject() models.Project {
	return models.Project{
		Name:                strings.TrimSpace(body.Name),
		RepositoryURL:       strings.TrimSpace(body.RepositoryURL),
		Workspace:           strings.TrimSpace(body.Workspace),
		ScriptPath:          strings.TrimSpace(body.ScriptPath),
		ImageName:           strings.TrimSpace(body.ImageName),
		VMVersion:           strings.TrimSpace(body.VMVersion),
		ContainerWorkingDir: strings.TrimSpace(body.ContainerWorkingDir),
		Mount:               body.Mount,
		Overwrite:           body.Overwrite,
		NoBase:              body.NoBase,
		Diagnostic:          body.Diagnostic,
		LoginUser:           strings.TrimSpace(body.LoginUser),
		LoginPasswordEnv:    strings.TrimSpace(body.LoginPasswordEnv),
		Push:                body.Push,
		ExportDirectory:     strings.TrimSpace(body.ExportDirectory),
		RemoveImage:         body.RemoveImage,
	}
}

// rejectedProjectResponse is the 400 body of a project that failed validation.
// the warnings are included so the client sees the whole report at once.
type rejectedProjectResponse struct {
	Error    string            `json:"error"`
	Outcomes validation.Report `json:"outcomes"`
}

// savedProjectResponse is the body of a saved project. Warnings lists the non-blocking outcomes.
type savedProjectResponse struct {
	*models.Project
	Warnings validation.Report `json:"warnings,omitempty"`
}

// ListProjects handles GET /api/projects.
// returns every project ordered by name, [] (not null) when there are none.
func (handler *ProjectHandler) ListProjects(responseWriter http.ResponseWriter, request *http.Request) {
	projects, err := handler.store.ListProjects(request.Context())
	if err != nil {
		handler.logger.Error("failed to list projects", "error", err)
		writeErrorJsonAndLogIt(responseWriter, http.StatusInternalServerError, "failed to retrieve projects", handler.logger)
		return
	}
	if projects == nil {
		projects = []*models.Project{}
	}
	writeJsonAndRespond(responseWriter, http.StatusOK, projects)
}

// GetProject handles GET /api/projects/{id}.
func (handler *ProjectHandler) GetProject(responseWriter http.ResponseWriter, request *http.Request) {
	projectID := chi.URLParam(request, "id")

	project, err := handler.store.GetProject(request.Context(), projectID)
	if errors.Is(err, db.ErrRecordNotFound) {
		writeErrorJsonAndLogIt(responseWriter, http.StatusNotFound, "project not found", handler.logger)
		return
	}
	if err != nil {
		handler.logger.Error("failed to get project", "id", projectID, "error", err)
		writeErrorJsonAndLogIt(responseWriter, http.StatusInternalServerError, "failed to retrieve project", handler.logger)
		return
	}

	writeJsonAndRespond(responseWriter, http.StatusOK, project)
}

// CreateProject handles POST /api/projects.
// the settings are validated first: any ERROR outcome rejects the project with 400
// and the full report. WARNING outcomes are returned with the created project.
func (handler *ProjectHandler) CreateProject(responseWriter http.ResponseWriter, request *http.Request) {
	project, report, ok := handler.decodeAndValidate(responseWriter, request)
	if !ok {
		return
	}

	err := handler.store.InsertProject(request.Context(), &project)
	if errors.Is(err, db.ErrDuplicateName) {
		writeErrorJsonAndLogIt(responseWriter, http.StatusConflict, "a project with this name already exists", handler.logger)
		return
	}
	if err != nil {
		handler.logger.Error("failed to create project", "name", project.Name, "error", err)
		writeErrorJsonAndLogIt(responseWriter, http.StatusInternalServerError, "failed to create project", handler.logger)
		return
	}

	handler.logger.Info("project created", "id", project.ID, "name", project.Name)
	writeJsonAndRespond(responseWriter, http.StatusCreated, savedProjectResponse{Project: &project, Warnings: report})
}

// UpdateProject handles PUT /api/projects/{id}. the body replaces every setting, with the same validation as create.
func (handler *ProjectHandler) UpdateProject(responseWriter http.ResponseWriter, request *http.Request) {
	projectID := chi.URLParam(request, "id")

	project, report, ok := handler.decodeAndValidate(responseWriter, request)
	if !ok {
		return
	}
	project.ID = projectID

	err := handler.store.UpdateProject(request.Context(), &project)
	switch {
	case errors.Is(err, db.ErrRecordNotFound):
		writeErrorJsonAndLogIt(responseWriter, http.StatusNotFound, "project not found", handler.logger)
		return
	case errors.Is(err, db.ErrDuplicateName):
		writeErrorJsonAndLogIt(responseWriter, http.StatusConflict, "a project with this name already exists", handler.logger)
		return
	case err != nil:
		handler.logger.Error("failed to update project", "id", projectID, "error", err)
		writeErrorJsonAndLogIt(responseWriter, http.StatusInternalServerError, "failed to update project", handler.logger)
		return
	}

	// re-read so created_at comes from the stored row
	stored, err := handler.store.GetProject(request.Context(), projectID)
	if err != nil {
		handler.logger.Error("failed to reload updated project", "id", projectID, "error", err)
		writeErrorJsonAndLogIt(responseWriter, http.StatusInternalServerError, "failed to retrieve project", handler.logger)
		return
	}

	handler.logger.Info("project updated", "id", projectID, "name", project.Name)
	writeJsonAndRespond(responseWriter, http.StatusOK, savedProjectResponse{Project: stored, Warnings: report})
}

// DeleteProject handles DELETE /api/projects/{id}. the project's build history and build logs go with it.
// a project with a running build is refused with 409.
func (handler *ProjectHandler) DeleteProject(responseWriter http.ResponseWriter, request *http.Request) {
	projectID := chi.URLParam(request, "id")

	deletedBuildIDs, err := handler.store.DeleteProject(request.Context(), projectID)
	switch {
	case errors.Is(err, db.ErrRecordNotFound):
		writeErrorJsonAndLogIt(responseWriter, http.StatusNotFound, "project not found", handler.logger)
		return
	case errors.Is(err, db.ErrBuildRunning):
		writeErrorJsonAndLogIt(responseWriter, http.StatusConflict, "project has a running build, try again once it finished", handler.logger)
		return
	case err != nil:
		handler.logger.Error("failed to delete project", "id", projectID, "error", err)
		writeErrorJsonAndLogIt(responseWriter, http.StatusInternalServerError, "failed to delete project", handler.logger)
		return
	}

	// the rows are gone already, a log file that cannot be removed is only logged
	if handler.logPath != nil {
		for _, buildID := range deletedBuildIDs {
			logPath := handler.logPath(buildID)
			if err := os.Remove(logPath); err != nil && !os.IsNotExist(err) {
				handler.logger.Warn("failed to remove build log", "build_id", buildID, "path", logPath, "error", err)
			}
		}
	}

	handler.logger.Info("project deleted", "id", projectID, "builds", len(deletedBuildIDs))
	responseWriter.WriteHeader(http.StatusNoContent)
}
