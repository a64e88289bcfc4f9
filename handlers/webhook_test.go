package handlers_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/sasta-kro/spoon-trigger/git"
	"github.com/sasta-kro/spoon-trigger/handlers"
	"github.com/sasta-kro/spoon-trigger/validation"
	"github.com/sasta-kro/spoon-trigger/webhook"
)

const pushPayload = `{
	"ref": "refs/heads/main",
	"after": "0123456789abcdef0123456789abcdef01234567",
	"repository": {"url": "https://github.com/acme/app"},
	"pusher": {"name": "octocat"}
}`

func postWebhook(dependencies handlers.RouterDependencies, event string, form url.Values, headers map[string]string) *httptest.ResponseRecorder {
	request := httptest.NewRequest(http.MethodPost, handlers.WebhookPath, strings.NewReader(form.Encode()))
	request.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if event != "" {
		request.Header.Set(webhook.EventHeader, event)
	}
	for key, value := range headers {
		request.Header.Set(key, value)
	}

	recorder := httptest.NewRecorder()
	handlers.CreateAndSetupRouter(dependencies).ServeHTTP(recorder, request)
	return recorder
}

func withDispatcher(dispatcher *mockDispatcher) handlers.RouterDependencies {
	dependencies := testDependencies(&mockStore{})
	dependencies.WebhookRouter = webhook.NewRouter(webhook.StaticIdentity("test-identity"), dispatcher, discardLogger())
	return dependencies
}

func TestWebhook_Probe(t *testing.T) {
	recorder := postWebhook(testDependencies(&mockStore{}), "push", nil, map[string]string{webhook.ValidationHeader: "true"})

	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", recorder.Code)
	}
	if identity := recorder.Header().Get(webhook.IdentityHeader); identity != "test-identity" {
		t.Errorf("expected identity header, got %q", identity)
	}
	if recorder.Body.Len() != 0 {
		t.Errorf("expected empty body, got %q", recorder.Body.String())
	}
}

func TestWebhook_PushDispatches(t *testing.T) {
	var dispatched []git.PushCause
	dependencies := withDispatcher(&mockDispatcher{dispatchFunc: func(ctx context.Context, cause git.PushCause) (int, error) {
		dispatched = append(dispatched, cause)
		return 2, nil
	}})

	recorder := postWebhook(dependencies, "push", url.Values{webhook.PayloadField: {pushPayload}}, nil)

	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", recorder.Code, recorder.Body.String())
	}
	if len(dispatched) != 1 || dispatched[0].Pusher != "octocat" {
		t.Fatalf("expected one dispatched push by octocat, got %+v", dispatched)
	}

	body := decodeBody[map[string]any](t, recorder)
	if body["event"] != "push" || body["matched"] != float64(2) {
		t.Errorf("unexpected body %v", body)
	}
}

func TestWebhook_PingHasNoMatchedField(t *testing.T) {
	recorder := postWebhook(testDependencies(&mockStore{}), "ping", nil, nil)

	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", recorder.Code)
	}
	body := decodeBody[map[string]any](t, recorder)
	if _, found := body["matched"]; found || body["event"] != "ping" {
		t.Errorf("unexpected body %v", body)
	}
}

func TestWebhook_BadRequests(t *testing.T) {
	tests := []struct {
		name  string
		event string
		form  url.Values
	}{
		{"missing payload", "push", nil},
		{"malformed payload", "push", url.Values{webhook.PayloadField: {`{"ref": "x"}`}}},
		{"unknown event", "issues", nil},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			recorder := postWebhook(testDependencies(&mockStore{}), test.event, test.form, nil)

			if recorder.Code != http.StatusBadRequest {
				t.Errorf("expected 400, got %d", recorder.Code)
			}
			body := decodeBody[map[string]string](t, recorder)
			if body["error"] == "" {
				t.Errorf("expected an error message, got %v", body)
			}
		})
	}
}

func TestWebhook_DispatchFailure(t *testing.T) {
	dependencies := withDispatcher(&mockDispatcher{dispatchFunc: func(ctx context.Context, cause git.PushCause) (int, error) {
		return 0, errors.New("database is locked")
	}})

	recorder := postWebhook(dependencies, "push", url.Values{webhook.PayloadField: {pushPayload}}, nil)

	if recorder.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", recorder.Code)
	}
	if strings.Contains(recorder.Body.String(), "locked") {
		t.Errorf("expected the internal error to stay out of the response, got %s", recorder.Body.String())
	}
}

func TestWebhook_GetNotAllowed(t *testing.T) {
	request := httptest.NewRequest(http.MethodGet, handlers.WebhookPath, nil)
	recorder := httptest.NewRecorder()
	handlers.CreateAndSetupRouter(testDependencies(&mockStore{})).ServeHTTP(recorder, request)

	if recorder.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected 405, got %d", recorder.Code)
	}
}

func TestValidateHookURL(t *testing.T) {
	checker := &mockHookURLChecker{outcome: validation.Outcome{Level: validation.LevelWarning, Message: "Got 404 from x"}}
	dependencies := testDependencies(&mockStore{})
	dependencies.HookURLChecker = checker

	recorder := serve(dependencies, http.MethodPost, "/api/validate/hook-url", `{"url": "http://ci.example.com/spoon-webhook"}`)

	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", recorder.Code)
	}
	if len(checker.checked) != 1 || checker.checked[0] != "http://ci.example.com/spoon-webhook" {
		t.Errorf("expected the URL to be checked, got %v", checker.checked)
	}
	body := decodeBody[map[string]string](t, recorder)
	if body["level"] != "warning" || body["message"] != "Got 404 from x" {
		t.Errorf("unexpected outcome %v", body)
	}
}

func TestValidateProject_ReportsWithoutSaving(t *testing.T) {
	recorder := serve(testDependencies(&mockStore{}), http.MethodPost, "/api/validate/project", `{"name": "app"}`)

	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", recorder.Code)
	}
	body := decodeBody[map[string]any](t, recorder)
	if body["valid"] != false {
		t.Errorf("expected invalid project, got %v", body)
	}
}
