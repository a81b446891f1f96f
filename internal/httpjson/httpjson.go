// Package httpjson writes the JSON bodies shared by the portal's HTTP surfaces.
package httpjson

import (
	"encoding/json"
	"net/http"
)

// Write encodes payload as the response body with the given status.
func Write(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// Error writes {"error": message}.
func Error(w http.ResponseWriter, status int, message string) {
	Write(w, status, map[string]string{"error": message})
}
