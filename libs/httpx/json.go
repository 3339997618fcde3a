package httpx

import (
	"encoding/json"
	"net/http"
)

// ErrorBody is the envelope every non-2xx JSON response uses.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Reason  string `json:"reason,omitempty"`
}

func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func WriteError(w http.ResponseWriter, status int, body ErrorBody) {
	WriteJSON(w, status, map[string]ErrorBody{"error": body})
}
