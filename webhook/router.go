package webhook

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/sasta-kro/spoon-trigger/git"
)

// Dispatcher schedules builds for a push. it returns how many projects matched.
type Dispatcher interface {
	Dispatch(ctx context.Context, cause git.PushCause) (int, error)
}

// Result describes what a routed request turned out to be.
type Result struct {
	// Probe is true for connectivity probes. Identity is only set for them.
	Probe    bool
	Identity string

	Event     Event
	EventName string

	// Cause and Matched are set for push events.
	Cause   *git.PushCause
	Matched int
}

// Router classifies requests and dispatches push causes.
// it keeps no state between requests.
type Router struct {
	identity   IdentityProvider
	dispatcher Dispatcher
	logger     *slog.Logger
}

// NewRouter constructs a Router. a nil identity answers probes with DefaultIdentity.
func NewRouter(identity IdentityProvider, dispatcher Dispatcher, logger *slog.Logger) *Router {
	if identity == nil {
		identity = StaticIdentity("")
	}
	return &Router{identity: identity, dispatcher: dispatcher, logger: logger}
}

// Route handles one request synchronously, including trigger matching, before returning.
// errors wrap ErrMissingPayload, ErrMalformedPayload or ErrUnsupportedEvent
// for requests the caller should reject. anything else comes from the dispatcher.
func (router *Router) Route(request *http.Request) (Result, error) {
	if _, isProbe := request.Header[http.CanonicalHeaderKey(ValidationHeader)]; isProbe {
		return Result{Probe: true, Identity: router.identity.Current()}, nil
	}

	eventName := request.Header.Get(EventHeader)
	event := ClassifyEvent(eventName)
	result := Result{Event: event, EventName: eventName}

	switch event {
	case EventPing, EventSupport:
		router.logger.Debug("acknowledged web hook event", "event", event.String())
		return result, nil

	case EventPush:
		payload, found := readPayload(request)
		if !found {
			return result, ErrMissingPayload
		}

		cause, err := ParsePushPayload(payload)
		if err != nil {
			return result, err
		}
		result.Cause = &cause

		router.logger.Info("push event received",
			"repository", cause.Repository.URL,
			"branch", cause.Branch.Name,
			"pusher", cause.Pusher,
		)

		matched, err := router.dispatcher.Dispatch(request.Context(), cause)
		result.Matched = matched
		if err != nil {
			return result, fmt.Errorf("failed to dispatch push for %q: %w", cause.Repository.URL, err)
		}
		return result, nil

	default:
		return result, fmt.Errorf("%w: (%s)", ErrUnsupportedEvent, eventName)
	}
}

// readPayload looks the payload up in the url-encoded body first, then in the query string.
func readPayload(request *http.Request) (string, bool) {
	if err := request.ParseForm(); err != nil {
		return "", false
	}
	values, found := request.Form[PayloadField]
	if !found || len(values) == 0 {
		return "", false
	}
	return values[0], true
}
