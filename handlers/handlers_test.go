package handlers_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/sasta-kro/spoon-trigger/db"
	"github.com/sasta-kro/spoon-trigger/git"
	"github.com/sasta-kro/spoon-trigger/handlers"
	"github.com/sasta-kro/spoon-trigger/models"
	"github.com/sasta-kro/spoon-trigger/validation"
	"github.com/sasta-kro/spoon-trigger/webhook"
)

// mockStore satisfies handlers.Store. every method falls back to "not found" or an empty result
// unless its func field is set.
type mockStore struct {
	pingFunc          func(ctx context.Context) error
	listProjectsFunc  func(ctx context.Context) ([]*models.Project, error)
	getProjectFunc    func(ctx context.Context, id string) (*models.Project, error)
	insertProjectFunc func(ctx context.Context, project *models.Project) error
	updateProjectFunc func(ctx context.Context, project *models.Project) error
	deleteProjectFunc func(ctx context.Context, id string) ([]string, error)
	enqueueBuildFunc  func(ctx context.Context, projectID string, kind models.CauseKind, description string, cause *models.BuildCause) (*models.Build, bool, error)
	getBuildFunc      func(ctx context.Context, id string) (*models.Build, error)
	listBuildsFunc    func(ctx context.Context, projectID string, limit int) ([]*models.Build, error)
}

func (m *mockStore) Ping(ctx context.Context) error {
	if m.pingFunc != nil {
		return m.pingFunc(ctx)
	}
	return nil
}

func (m *mockStore) ListProjects(ctx context.Context) ([]*models.Project, error) {
	if m.listProjectsFunc != nil {
		return m.listProjectsFunc(ctx)
	}
	return nil, nil
}

func (m *mockStore) GetProject(ctx context.Context, id string) (*models.Project, error) {
	if m.getProjectFunc != nil {
		return m.getProjectFunc(ctx, id)
	}
	return nil, db.ErrRecordNotFound
}

func (m *mockStore) InsertProject(ctx context.Context, project *models.Project) error {
	if m.insertProjectFunc != nil {
		return m.insertProjectFunc(ctx, project)
	}
	project.ID = "generated-id"
	return nil
}

func (m *mockStore) UpdateProject(ctx context.Context, project *models.Project) error {
	if m.updateProjectFunc != nil {
		return m.updateProjectFunc(ctx, project)
	}
	return db.ErrRecordNotFound
}

func (m *mockStore) DeleteProject(ctx context.Context, id string) ([]string, error) {
	if m.deleteProjectFunc != nil {
		return m.deleteProjectFunc(ctx, id)
	}
	return nil, db.ErrRecordNotFound
}

func (m *mockStore) EnqueueBuild(
	ctx context.Context,
	projectID string,
	kind models.CauseKind,
	description string,
	cause *models.BuildCause,
) (*models.Build, bool, error) {
	if m.enqueueBuildFunc != nil {
		return m.enqueueBuildFunc(ctx, projectID, kind, description, cause)
	}
	return nil, false, db.ErrRecordNotFound
}

func (m *mockStore) GetBuild(ctx context.Context, id string) (*models.Build, error) {
	if m.getBuildFunc != nil {
		return m.getBuildFunc(ctx, id)
	}
	return nil, db.ErrRecordNotFound
}

func (m *mockStore) ListBuilds(ctx context.Context, projectID string, limit int) ([]*models.Build, error) {
	if m.listBuildsFunc != nil {
		return m.listBuildsFunc(ctx, projectID, limit)
	}
	return nil, nil
}

type mockNotifier struct {
	notified int
}

func (m *mockNotifier) Notify() {
	m.notified++
}

type mockDispatcher struct {
	dispatchFunc func(ctx context.Context, cause git.PushCause) (int, error)
}

func (m *mockDispatcher) Dispatch(ctx context.Context, cause git.PushCause) (int, error) {
	if m.dispatchFunc != nil {
		return m.dispatchFunc(ctx, cause)
	}
	return 0, nil
}

type mockHookURLChecker struct {
	checked []string
	outcome validation.Outcome
}

func (m *mockHookURLChecker) Check(ctx context.Context, hookURL string) validation.Outcome {
	m.checked = append(m.checked, hookURL)
	return m.outcome
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// testDependencies returns dependencies where every collaborator is a mock the test can adjust.
func testDependencies(store *mockStore) handlers.RouterDependencies {
	return handlers.RouterDependencies{
		Logger:         discardLogger(),
		Database:       store,
		WebhookRouter:  webhook.NewRouter(webhook.StaticIdentity("test-identity"), &mockDispatcher{}, discardLogger()),
		BuildNotifier:  &mockNotifier{},
		HookURLChecker: &mockHookURLChecker{outcome: validation.OK()},
		LogPath:        func(buildID string) string { return "/nonexistent/" + buildID + ".log" },
	}
}

func serve(dependencies handlers.RouterDependencies, method string, target string, body string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	request := httptest.NewRequest(method, target, reader)
	if body != "" {
		request.Header.Set("Content-Type", "application/json")
	}

	recorder := httptest.NewRecorder()
	handlers.CreateAndSetupRouter(dependencies).ServeHTTP(recorder, request)
	return recorder
}

func decodeBody[T any](t *testing.T, recorder *httptest.ResponseRecorder) T {
	t.Helper()
	var decoded T
	if err := json.Unmarshal(recorder.Body.Bytes(), &decoded); err != nil {
		t.Fatalf("failed to decode response body %q: %v", recorder.Body.String(), err)
	}
	return decoded
}

func TestHealth(t *testing.T) {
	store := &mockStore{}
	recorder := serve(testDependencies(store), http.MethodGet, "/health", "")

	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", recorder.Code)
	}
	body := decodeBody[map[string]string](t, recorder)
	if body["status"] != "ok" || body["database"] != "ok" {
		t.Errorf("unexpected health body %v", body)
	}
	if contentType := recorder.Header().Get("Content-Type"); contentType != "application/json" {
		t.Errorf("expected application/json, got %q", contentType)
	}
}

func TestHealth_DatabaseDown(t *testing.T) {
	store := &mockStore{pingFunc: func(ctx context.Context) error { return errors.New("disk gone") }}
	recorder := serve(testDependencies(store), http.MethodGet, "/health", "")

	if recorder.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", recorder.Code)
	}
	body := decodeBody[map[string]string](t, recorder)
	if body["database"] != "unreachable" {
		t.Errorf("expected unreachable database, got %v", body)
	}
}

func TestCORS_OnlyWhenConfigured(t *testing.T) {
	dependencies := testDependencies(&mockStore{})

	recorder := serve(dependencies, http.MethodGet, "/api/projects", "")
	if origin := recorder.Header().Get("Access-Control-Allow-Origin"); origin != "" {
		t.Errorf("expected no CORS header, got %q", origin)
	}

	dependencies.CORSAllowedOrigin = "https://ui.example.com"
	recorder = serve(dependencies, http.MethodOptions, "/api/projects", "")
	if recorder.Code != http.StatusNoContent {
		t.Errorf("expected 204 for preflight, got %d", recorder.Code)
	}
	if origin := recorder.Header().Get("Access-Control-Allow-Origin"); origin != "https://ui.example.com" {
		t.Errorf("expected configured origin, got %q", origin)
	}
}
