package webhook

import (
	"encoding/json"
	"fmt"

	"github.com/sasta-kro/spoon-trigger/git"
)

// pushPayload is the subset of a push event the trigger reads.
// pointers tell a missing field apart from an empty one.
type pushPayload struct {
	Repository *struct {
		URL *string `json:"url"`
	} `json:"repository"`
	Pusher *struct {
		Name *string `json:"name"`
	} `json:"pusher"`
	After *string `json:"after"`
	Ref   *string `json:"ref"`
}

// ParsePushPayload reads repository.url, pusher.name, after and ref from the
// payload and builds the PushCause. every failure wraps ErrMalformedPayload.
func ParsePushPayload(payload string) (git.PushCause, error) {
	var decoded pushPayload
	if err := json.Unmarshal([]byte(payload), &decoded); err != nil {
		return git.PushCause{}, fmt.Errorf("%w: %w", ErrMalformedPayload, err)
	}

	switch {
	case decoded.Repository == nil || decoded.Repository.URL == nil:
		return git.PushCause{}, fmt.Errorf("%w: missing repository.url", ErrMalformedPayload)
	case decoded.Pusher == nil || decoded.Pusher.Name == nil:
		return git.PushCause{}, fmt.Errorf("%w: missing pusher.name", ErrMalformedPayload)
	case decoded.After == nil:
		return git.PushCause{}, fmt.Errorf("%w: missing after", ErrMalformedPayload)
	case decoded.Ref == nil:
		return git.PushCause{}, fmt.Errorf("%w: missing ref", ErrMalformedPayload)
	}

	cause, err := git.NewPushCause(*decoded.Repository.URL, *decoded.Pusher.Name, *decoded.Ref, *decoded.After)
	if err != nil {
		return git.PushCause{}, fmt.Errorf("%w: %w", ErrMalformedPayload, err)
	}
	return cause, nil
}
