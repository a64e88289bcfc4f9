package webhook_test

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sasta-kro/spoon-trigger/git"
	"github.com/sasta-kro/spoon-trigger/webhook"
)

const pushPayload = `{
	"ref": "refs/heads/main",
	"after": "0123456789abcdef0123456789abcdef01234567",
	"repository": {"url": "https://github.com/acme/app"},
	"pusher": {"name": "octocat"}
}`

type mockDispatcher struct {
	dispatchFunc func(ctx context.Context, cause git.PushCause) (int, error)
	causes       []git.PushCause
}

func (m *mockDispatcher) Dispatch(ctx context.Context, cause git.PushCause) (int, error) {
	m.causes = append(m.causes, cause)
	if m.dispatchFunc != nil {
		return m.dispatchFunc(ctx, cause)
	}
	return 1, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func formRequest(event string, form url.Values) *http.Request {
	request := httptest.NewRequest(http.MethodPost, "/spoon-webhook", strings.NewReader(form.Encode()))
	request.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if event != "" {
		request.Header.Set(webhook.EventHeader, event)
	}
	return request
}

func TestClassifyEvent(t *testing.T) {
	cases := map[string]webhook.Event{
		"":        webhook.EventSupport,
		"support": webhook.EventSupport,
		"PING":    webhook.EventPing,
		"Push":    webhook.EventPush,
		"issues":  webhook.EventUnknown,
	}
	for name, expected := range cases {
		if got := webhook.ClassifyEvent(name); got != expected {
			t.Errorf("ClassifyEvent(%q): expected %s, got %s", name, expected, got)
		}
	}
}

func TestParsePushPayload_Valid(t *testing.T) {
	cause, err := webhook.ParsePushPayload(pushPayload)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cause.Repository.Project != "app" || cause.Branch.ShortName() != "main" || cause.Pusher != "octocat" {
		t.Errorf("unexpected cause %+v", cause)
	}
}

func TestParsePushPayload_Malformed(t *testing.T) {
	payloads := []string{
		"not json",
		`{"ref": "refs/heads/main", "after": "0123456789abcdef0123456789abcdef01234567", "pusher": {"name": "a"}}`,
		`{"ref": "refs/heads/main", "repository": {"url": "https://github.com/acme/app"}, "pusher": {"name": "a"}}`,
		`{"ref": "refs/heads/main", "after": "short", "repository": {"url": "https://github.com/acme/app"}, "pusher": {"name": "a"}}`,
		`{"ref": "refs/heads/main", "after": "0123456789abcdef0123456789abcdef01234567", "repository": {"url": "https://github.com/acme/app"}, "pusher": {"name": " "}}`,
	}
	for _, payload := range payloads {
		if _, err := webhook.ParsePushPayload(payload); !errors.Is(err, webhook.ErrMalformedPayload) {
			t.Errorf("payload %q: expected ErrMalformedPayload, got %v", payload, err)
		}
	}
}

func TestRouter_Probe(t *testing.T) {
	dispatcher := &mockDispatcher{}
	router := webhook.NewRouter(webhook.StaticIdentity("abc"), dispatcher, discardLogger())

	request := formRequest("push", nil)
	request.Header.Set(webhook.ValidationHeader, "")

	result, err := router.Route(request)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Probe || result.Identity != "abc" {
		t.Errorf("expected probe with identity, got %+v", result)
	}
	if len(dispatcher.causes) != 0 {
		t.Error("expected no dispatch for a probe")
	}
}

func TestRouter_ProbeDefaultIdentity(t *testing.T) {
	router := webhook.NewRouter(nil, &mockDispatcher{}, discardLogger())
	request := formRequest("", nil)
	request.Header.Set(webhook.ValidationHeader, "true")

	result, _ := router.Route(request)
	if result.Identity != webhook.DefaultIdentity {
		t.Errorf("expected %s, got %q", webhook.DefaultIdentity, result.Identity)
	}
}

func TestRouter_PushDispatches(t *testing.T) {
	dispatcher := &mockDispatcher{
		dispatchFunc: func(ctx context.Context, cause git.PushCause) (int, error) { return 2, nil },
	}
	router := webhook.NewRouter(nil, dispatcher, discardLogger())

	result, err := router.Route(formRequest("push", url.Values{"payload": {pushPayload}}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Event != webhook.EventPush || result.Matched != 2 || result.Cause == nil {
		t.Errorf("unexpected result %+v", result)
	}
	if len(dispatcher.causes) != 1 || dispatcher.causes[0].Repository.URL != "https://github.com/acme/app" {
		t.Errorf("expected one dispatched cause, got %+v", dispatcher.causes)
	}
}

func TestRouter_Rejections(t *testing.T) {
	router := webhook.NewRouter(nil, &mockDispatcher{}, discardLogger())

	if _, err := router.Route(formRequest("push", nil)); !errors.Is(err, webhook.ErrMissingPayload) {
		t.Errorf("expected ErrMissingPayload, got %v", err)
	}
	if _, err := router.Route(formRequest("push", url.Values{"payload": {"{}"}})); !errors.Is(err, webhook.ErrMalformedPayload) {
		t.Errorf("expected ErrMalformedPayload, got %v", err)
	}

	_, err := router.Route(formRequest("issues", nil))
	if !errors.Is(err, webhook.ErrUnsupportedEvent) {
		t.Fatalf("expected ErrUnsupportedEvent, got %v", err)
	}
	if !strings.Contains(err.Error(), "(issues)") {
		t.Errorf("expected event name in error, got %q", err.Error())
	}
}

func TestRouter_PingAndSupport(t *testing.T) {
	dispatcher := &mockDispatcher{}
	router := webhook.NewRouter(nil, dispatcher, discardLogger())

	for _, event := range []string{"ping", ""} {
		if _, err := router.Route(formRequest(event, nil)); err != nil {
			t.Errorf("event %q: unexpected error: %v", event, err)
		}
	}
	if len(dispatcher.causes) != 0 {
		t.Error("expected no dispatch for ping or support")
	}
}

func TestLoadIdentity_Formats(t *testing.T) {
	rsaKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatal(err)
	}
	ecKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatal(err)
	}

	rsaPublic, _ := x509.MarshalPKIXPublicKey(&rsaKey.PublicKey)
	ecPublic, _ := x509.MarshalPKIXPublicKey(&ecKey.PublicKey)
	ecPrivate, _ := x509.MarshalPKCS8PrivateKey(ecKey)

	cases := map[string]struct {
		block    *pem.Block
		expected []byte
	}{
		"pkix public":   {&pem.Block{Type: "PUBLIC KEY", Bytes: rsaPublic}, rsaPublic},
		"pkcs1 public":  {&pem.Block{Type: "RSA PUBLIC KEY", Bytes: x509.MarshalPKCS1PublicKey(&rsaKey.PublicKey)}, rsaPublic},
		"pkcs1 private": {&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(rsaKey)}, rsaPublic},
		"pkcs8 private": {&pem.Block{Type: "PRIVATE KEY", Bytes: ecPrivate}, ecPublic},
	}

	for name, tc := range cases {
		path := filepath.Join(t.TempDir(), "identity.pem")
		if err := os.WriteFile(path, pem.EncodeToMemory(tc.block), 0600); err != nil {
			t.Fatal(err)
		}

		identity, err := webhook.LoadIdentity(path)
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", name, err)
		}
		if identity.Current() != base64.StdEncoding.EncodeToString(tc.expected) {
			t.Errorf("%s: identity does not match the public key", name)
		}
	}
}

func TestLoadIdentity_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "identity.pem")
	if err := os.WriteFile(path, []byte("not a key"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := webhook.LoadIdentity(path); err == nil {
		t.Error("expected error for non-PEM file")
	}
	if _, err := webhook.LoadIdentity(filepath.Join(t.TempDir(), "missing.pem")); err == nil {
		t.Error("expected error for missing file")
	}
}
