// Package handlers contains all HTTP handler functions of the spoon-trigger API.
// each handler file groups related endpoints by resource or concern.
// handlers decode the request, call into the db, validation or webhook layer, and write a JSON response.
// no business logic lives in handlers; they are thin translation layers between HTTP and the domain.
package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// healthCheckTimeout bounds the database ping of GET /health.
const healthCheckTimeout = 2 * time.Second

// Pinger is anything whose liveness the health endpoint reports. *db.Database satisfies it.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler holds the dependencies needed by the health endpoint.
// using a struct keeps the pattern consistent with all other handlers.
type HealthHandler struct {
	database Pinger
	logger   *slog.Logger
}

// NewHealthHandler constructs a HealthHandler. a nil database skips the ping.
func NewHealthHandler(database Pinger, inputLogger *slog.Logger) *HealthHandler {
	return &HealthHandler{database: database, logger: inputLogger}
}

// healthResponse is the JSON body returned by the health endpoint.
type healthResponse struct {
	Status    string `json:"status"`
	Database  string `json:"database"`
	Timestamp string `json:"timestamp"`
}

// Health handles GET /health.
// returns 200 when the process is alive and the database answers a ping,
// 503 with "database": "unreachable" otherwise. load balancers and uptime
// monitors expect this at the root path, not under /api.
func (handler *HealthHandler) Health(responseWriter http.ResponseWriter, request *http.Request) {
	response := healthResponse{
		Status:    "ok",
		Database:  "ok",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	if handler.database != nil {
		ctx, cancel := context.WithTimeout(request.Context(), healthCheckTimeout)
		defer cancel()

		if err := handler.database.Ping(ctx); err != nil {
			handler.logger.Error("health check database ping failed", "error", err)
			response.Status = "degraded"
			response.Database = "unreachable"
			writeJsonAndRespond(responseWriter, http.StatusServiceUnavailable, response)
			return
		}
	}

	writeJsonAndRespond(responseWriter, http.StatusOK, response)
}
