package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/sasta-kro/spoon-trigger/webhook"
)

// WebhookHandler is the HTTP side of the push webhook.
// the routing decisions are made by webhook.Router, this only picks the status code.
type WebhookHandler struct {
	router *webhook.Router
	logger *slog.Logger
}

func NewWebhookHandler(router *webhook.Router, logger *slog.Logger) *WebhookHandler {
	return &WebhookHandler{router: router, logger: logger}
}

// webhookResponse is the body of an accepted event. Matched is only present for pushes.
type webhookResponse struct {
	Event   string `json:"event"`
	Matched *int   `json:"matched,omitempty"`
}

// Receive handles POST /spoon-webhook.
//
//	probe (validation header)         -> 200, identity header, empty body
//	ping / support                    -> 200
//	push                              -> 200 once every matching project was scheduled
//	missing or malformed payload      -> 400
//	unsupported event                 -> 400
//	trigger lookup failed             -> 500
func (handler *WebhookHandler) Receive(responseWriter http.ResponseWriter, request *http.Request) {
	result, err := handler.router.Route(request)

	if result.Probe {
		responseWriter.Header().Set(webhook.IdentityHeader, result.Identity)
		responseWriter.WriteHeader(http.StatusOK)
		return
	}

	switch {
	case errors.Is(err, webhook.ErrMissingPayload),
		errors.Is(err, webhook.ErrMalformedPayload),
		errors.Is(err, webhook.ErrUnsupportedEvent):
		writeErrorJsonAndLogIt(responseWriter, http.StatusBadRequest, err.Error(), handler.logger)
		return
	case err != nil:
		handler.logger.Error("failed to dispatch web hook event", "event", result.EventName, "error", err)
		writeErrorJsonAndLogIt(responseWriter, http.StatusInternalServerError, "failed to schedule builds", handler.logger)
		return
	}

	response := webhookResponse{Event: result.Event.String()}
	if result.Event == webhook.EventPush {
		matched := result.Matched
		response.Matched = &matched
	}
	writeJsonAndRespond(responseWriter, http.StatusOK, response)
}
