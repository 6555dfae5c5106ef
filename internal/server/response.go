package server

import (
	"encoding/json"
	"net/http"
)

const (
	errInvalidJSON   = "Invalid JSON body"
	errInvalidConfig = "Invalid configuration"
	errNotFound      = "Not found"
	errInternal      = "Internal server error"
	errRateLimited   = "Rate limit exceeded"
	errNoHistory     = "History is disabled"
	errShutdown      = "Server shutting down"
)

type ErrorResponse struct {
	Error   string `json:"error"`
	Details any    `json:"details,omitempty"`
}

func WriteResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		return
	}
}

func WriteError(w http.ResponseWriter, status int, message string, detail ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	resp := ErrorResponse{Error: message}
	if len(detail) > 0 {
		switch v := detail[0].(type) {
		case string:
			if v != "" {
				resp.Details = v
			}
		case error:
			if v != nil {
				resp.Details = v.Error()
			}
		default:
			resp.Details = v
		}
	}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		return
	}
}
