package httpapp

import (
	"encoding/json"
	"net/http"

	"github.com/seblog/micropub/internal/micropub"
)

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// writeProtocolError is the single boundary where pipeline failures
// become wire responses: a status from the error kind and a JSON body
// with the machine code and a human description.
func writeProtocolError(w http.ResponseWriter, err error) {
	pe := micropub.AsError(err)
	writeJSON(w, micropub.Status(pe.Code), map[string]any{
		"error":             pe.Code,
		"error_description": pe.Description,
	})
}

func notFound(w http.ResponseWriter) {
	writeJSON(w, http.StatusNotFound, map[string]any{"error": "not found"})
}

func methodNotAllowed(w http.ResponseWriter) {
	writeJSON(w, http.StatusMethodNotAllowed, map[string]any{"error": "method not allowed"})
}
