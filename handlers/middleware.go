package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
)

// CORSMiddleware adds the CORS headers to every response so a frontend hosted
// on another origin can call the API with fetch().
// allowedOrigin should be the frontend's exact origin in production.
func CORSMiddleware(allowedOrigin string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(responseWriter http.ResponseWriter, request *http.Request) {
			responseWriter.Header().Set("Access-Control-Allow-Origin", allowedOrigin)
			responseWriter.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			responseWriter.Header().Set("Access-Control-Allow-Headers", "Content-Type")

			// preflight requests get an immediate 204 with no body
			if request.Method == http.MethodOptions {
				responseWriter.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(responseWriter, request)
		})
	}
}

// RequestLogger logs the method, path, status and latency of every request through slog,
// so request lines share the format (json or text) of every other log record.
func RequestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(responseWriter http.ResponseWriter, request *http.Request) {
			// NewWrapResponseWriter records the status code and byte count written by the handler
			wrapped := middleware.NewWrapResponseWriter(responseWriter, request.ProtoMajor)
			startTime := time.Now()

			next.ServeHTTP(wrapped, request)

			logger.Info("http request",
				"method", request.Method,
				"path", request.URL.Path,
				"status", wrapped.Status(),
				"bytes", wrapped.BytesWritten(),
				"duration", time.Since(startTime).String(),
				"request_id", middleware.GetReqID(request.Context()),
			)
		})
	}
}
