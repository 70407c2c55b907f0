package utils

import (
	"encoding/json"
	"net/http"
)

// errorRecorder is implemented by response writers that keep the last error
// message of a request, such as the request log middleware.
type errorRecorder interface {
	RecordError(msg string)
}

// RecordError hands msg to the first errorRecorder found by unwrapping w.
func RecordError(w http.ResponseWriter, msg string) {
	for w != nil {
		if rec, ok := w.(errorRecorder); ok {
			rec.RecordError(msg)
			return
		}
		u, ok := w.(interface{ Unwrap() http.ResponseWriter })
		if !ok {
			return
		}
		w = u.Unwrap()
	}
}

func RespondWithError(w http.ResponseWriter, code int, msg string) {
	RecordError(w, msg)
	RespondWithJSON(w, code, map[string]string{"error": msg})
}

// Sends a JSON response
func RespondWithJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}

type M map[string]any
