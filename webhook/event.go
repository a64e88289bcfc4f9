// Package webhook turns inbound webhook requests into push causes.
//
// one request is one transition: a connectivity probe is answered with the
// instance identity, ping and support events are acknowledged, push events are
// parsed into a git.PushCause and handed to the dispatcher, anything else is refused.
// the HTTP response itself is written by the handlers package.
package webhook

import (
	"errors"
	"strings"
)

const (
	// ValidationHeader marks a connectivity probe. any value counts.
	ValidationHeader = "X-Jenkins-Validation"

	// IdentityHeader carries the instance identity in the probe response.
	IdentityHeader = "X-Instance-Identity"

	// EventHeader names the provider event type.
	EventHeader = "X-GitHub-Event"

	// PayloadField is the form field holding the JSON payload.
	PayloadField = "payload"
)

var (
	// ErrMissingPayload means a push arrived without the payload form field,
	// which happens when the endpoint is browsed rather than called by the provider.
	ErrMissingPayload = errors.New("not intended to be browsed interactively (must specify payload parameter)." +
		" Ensure that the web hook Content-Type header is application/x-www-form-urlencoded")

	// ErrMalformedPayload means the payload is not JSON or lacks one of the push fields.
	ErrMalformedPayload = errors.New("failed parsing web hook payload")

	// ErrUnsupportedEvent means the event header named something other than ping, support or push.
	ErrUnsupportedEvent = errors.New("web hook event type is not supported, only ping, support and push events are")
)

// Event is the classified event type of a request.
type Event int

const (
	EventUnknown Event = iota
	EventPing
	EventSupport
	EventPush
)

func (event Event) String() string {
	switch event {
	case EventPing:
		return "ping"
	case EventSupport:
		return "support"
	case EventPush:
		return "push"
	default:
		return "unknown"
	}
}

// ClassifyEvent maps the event header value onto an Event, ignoring case.
// an absent or empty header is a support event, not an error.
func ClassifyEvent(name string) Event {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "":
		return EventSupport
	case "ping":
		return EventPing
	case "support":
		return EventSupport
	case "push":
		return EventPush
	default:
		return EventUnknown
	}
}
