package httpapi

import (
	"encoding/json"
	"net/http"

	logx "statusbar/pkg/logx"
)

// Response is the JSON envelope of every API reply.
type Response struct {
	Success bool       `json:"success"`
	Data    any        `json:"data,omitempty"`
	Error   *ErrorInfo `json:"error,omitempty"`
}

// ErrorInfo contains error details.
type ErrorInfo struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error codes.
const (
	CodeBadRequest  = "BAD_REQUEST"
	CodeUnavailable = "UNAVAILABLE"
	CodeInternal    = "INTERNAL_ERROR"
)

func writeJSON(w http.ResponseWriter, log logx.Logger, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Error("failed to encode JSON response", logx.Err(err))
	}
}

func writeData(w http.ResponseWriter, log logx.Logger, data any) {
	writeJSON(w, log, http.StatusOK, Response{Success: true, Data: data})
}

func writeError(w http.ResponseWriter, log logx.Logger, status int, code, message string) {
	writeJSON(w, log, status, Response{
		Success: false,
		Error:   &ErrorInfo{Code: code, Message: message},
	})
}
