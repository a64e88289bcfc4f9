package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/sasta-kro/spoon-trigger/validation"
)

// HookURLChecker probes a webhook URL. *validation.HookURLValidator satisfies it.
type HookURLChecker interface {
	Check(ctx context.Context, hookURL string) validation.Outcome
}

// ValidationHandler serves the form validation endpoints. nothing is saved by them.
type ValidationHandler struct {
	hookURLChecker HookURLChecker
	logger         *slog.Logger
}

func NewValidationHandler(hookURLChecker HookURLChecker, logger *slog.Logger) *ValidationHandler {
	return &ValidationHandler{hookURLChecker: hookURLChecker, logger: logger}
}

// projectReportResponse is the body of POST /api/validate/project.
type projectReportResponse struct {
	Valid    bool              `json:"valid"`
	Outcomes validation.Report `json:"outcomes"`
}

// ValidateProject handles POST /api/validate/project.
// always 200 for a readable body: the outcomes say whether the project could be saved.
func (handler *ValidationHandler) ValidateProject(responseWriter http.ResponseWriter, request *http.Request) {
	var body projectRequest
	if err := decodeJsonBody(request, &body); err != nil {
		writeErrorJsonAndLogIt(responseWriter, http.StatusBadRequest, err.Error(), handler.logger)
		return
	}

	report := validation.ValidateProject(body.toProject())
	if report == nil {
		report = validation.Report{}
	}
	writeJsonAndRespond(responseWriter, http.StatusOK, projectReportResponse{
		Valid:    !report.HasErrors(),
		Outcomes: report,
	})
}

type hookURLRequest struct {
	URL string `json:"url"`
}

// ValidateHookURL handles POST /api/validate/hook-url with {"url": "..."}.
// the URL is probed from this process, and the outcome is returned as is.
func (handler *ValidationHandler) ValidateHookURL(responseWriter http.ResponseWriter, request *http.Request) {
	var body hookURLRequest
	if err := decodeJsonBody(request, &body); err != nil {
		writeErrorJsonAndLogIt(responseWriter, http.StatusBadRequest, err.Error(), handler.logger)
		return
	}

	outcome := handler.hookURLChecker.Check(request.Context(), body.URL)
	writeJsonAndRespond(responseWriter, http.StatusOK, outcome)
}
