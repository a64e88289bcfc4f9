package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
)

// maxJSONBodyBytes caps request bodies decoded by decodeJsonBody.
const maxJSONBodyBytes = 1 << 20

// writeJsonAndRespond serializes the given payload to JSON and writes it to the response
// with Content-Type application/json and the given HTTP status code.
//
// json.Marshal buffers the whole body before anything is written, so an encoding
// failure can still become a 500 instead of a half-sent 200.
// if JSON encoding fails (which should not happen with well-defined response structs),
// it falls back to a plain text 500 response.
func writeJsonAndRespond(responseWriter http.ResponseWriter, statusCode int, dataPayload any) {
	responseWriter.Header().Set("Content-Type", "application/json")

	serializedData, err := json.Marshal(dataPayload)
	if err != nil {
		http.Error(responseWriter, `{"error":"internal encoding error"}`, http.StatusInternalServerError)
		return
	}

	// the strict order for http.ResponseWriter is:
	// [1] set headers, [2] WriteHeader(statusCode), [3] Write() the body
	responseWriter.WriteHeader(statusCode)
	responseWriter.Write(serializedData) // nolint:errcheck -- write errors are not actionable on the server side
}

// writeErrorJsonAndLogIt logs the error at level ERROR and
// writes a standard JSON error response to the client with the given HTTP status code and message.
// this keeps error response shape consistent:
//
//	{"error": "some human-readable message"}
//
// the message sent to the client is always a controlled string,
// never a raw Go error from the db layer.
func writeErrorJsonAndLogIt(
	responseWriter http.ResponseWriter,
	statusCode int,
	message string,
	logger *slog.Logger,
) {
	logger.Error("request error", "status", statusCode, "message", message)
	writeJsonAndRespond(responseWriter, statusCode, map[string]string{"error": message})
}

// decodeJsonBody decodes a single JSON object from the request body into target.
// unknown fields are rejected so a misspelled setting is reported instead of silently dropped.
func decodeJsonBody(request *http.Request, target any) error {
	decoder := json.NewDecoder(io.LimitReader(request.Body, maxJSONBodyBytes))
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is empty")
		}
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}
