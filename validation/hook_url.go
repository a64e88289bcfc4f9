package validation

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sasta-kro/spoon-trigger/webhook"
)

const hookProbeTimeout = 10 * time.Second

// HookURLValidator checks that a webhook URL reaches a running instance by
// sending it a connectivity probe and inspecting the identity header of the answer.
type HookURLValidator struct {
	httpClient  *http.Client
	expectedURL string
}

// NewHookURLValidator returns a validator that only accepts expectedURL when it is non-empty.
// a nil client gets one with a short timeout.
func NewHookURLValidator(httpClient *http.Client, expectedURL string) *HookURLValidator {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: hookProbeTimeout}
	}
	return &HookURLValidator{httpClient: httpClient, expectedURL: expectedURL}
}

// Check probes hookURL. connection failures are ERROR, an unexpected answer is WARNING.
func (validator *HookURLValidator) Check(ctx context.Context, hookURL string) Outcome {
	hookURL = strings.TrimSpace(hookURL)
	if hookURL == "" {
		return Outcome{Level: LevelError, Message: "URL cannot be empty"}
	}

	if validator.expectedURL != "" && hookURL != validator.expectedURL {
		return Outcome{
			Level: LevelError,
			Message: fmt.Sprintf("Parameter is not intended to be changed. Initial value of WebHook URL '%s' will remain active.",
				validator.expectedURL),
		}
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodPost, hookURL, nil)
	if err != nil {
		return Outcome{Level: LevelError, Message: fmt.Sprintf("Failed to test a connection to %s", hookURL)}
	}
	request.Header.Set(webhook.ValidationHeader, "true")

	response, err := validator.httpClient.Do(request)
	if err != nil {
		return Outcome{Level: LevelError, Message: fmt.Sprintf("Failed to test a connection to %s", hookURL)}
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		return Outcome{Level: LevelWarning, Message: fmt.Sprintf("Got %d from %s", response.StatusCode, hookURL)}
	}

	identity := response.Header.Get(webhook.IdentityHeader)
	switch {
	case identity == "":
		return Outcome{
			Level:   LevelWarning,
			Message: fmt.Sprintf("It doesn't look like %s points to a spoon-trigger instance", hookURL),
		}
	case webhook.IsDefaultIdentity(identity):
		return Outcome{
			Level:   LevelWarning,
			Message: fmt.Sprintf("Default identity in response header. The instance behind %s cannot be identified", hookURL),
		}
	}

	return OK()
}
