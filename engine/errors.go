package engine

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
)

// Response writes itself to the http response writer.
// Handlers return one instead of writing to the wire directly, which keeps
// error handling in one place.
type Response func(http.ResponseWriter)

// JSON responds with 200 and a json-encoded body.
func JSON(body any) Response {
	return func(w http.ResponseWriter) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(body); err != nil {
			slog.Error("error while encoding response body", "error", err)
		}
	}
}

// Empty responds with 204.
func Empty() Response {
	return func(w http.ResponseWriter) { w.WriteHeader(http.StatusNoContent) }
}

// Error logs the given error while returning a generic 500 to the client.
func Error(err error) Response {
	return func(w http.ResponseWriter) {
		slog.Error("unhandled error while serving request", "error", err)
		writeJSONError(w, "Internal error - please try again later", http.StatusInternalServerError)
	}
}

// ClientErrorf responds with 400 and the given message.
func ClientErrorf(format string, args ...any) Response {
	return func(w http.ResponseWriter) {
		writeJSONError(w, fmt.Sprintf(format, args...), http.StatusBadRequest)
	}
}

// NotFoundf responds with 404 and the given message.
func NotFoundf(format string, args ...any) Response {
	return func(w http.ResponseWriter) {
		writeJSONError(w, fmt.Sprintf(format, args...), http.StatusNotFound)
	}
}

// Conflictf responds with 409 and the given message.
func Conflictf(format string, args ...any) Response {
	return func(w http.ResponseWriter) {
		writeJSONError(w, fmt.Sprintf(format, args...), http.StatusConflict)
	}
}

// Unauthorized logs the given error while returning a generic 401 to the client.
func Unauthorized(err error) Response {
	return func(w http.ResponseWriter) {
		slog.Info("unauthorized request", "error", err)
		writeJSONError(w, "Unauthorized", http.StatusUnauthorized)
	}
}

func writeJSONError(w http.ResponseWriter, msg string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
