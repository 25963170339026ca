package webapi

import (
	"encoding/json"
	"net/http"
)

// ErrorResponse is the envelope for failed requests.
// Example: {"error": "Invalid job id"}
type ErrorResponse struct {
	Error string `json:"error"`
}

// WriteJSON sends a JSON response with the given status.
func WriteJSON(w http.ResponseWriter, status int, payload any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(payload)
}

// WriteError serializes err into the error envelope with a 500 status.
// Handlers that want a different status write their own envelope and
// return nil.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	_ = WriteJSON(w, http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
}
