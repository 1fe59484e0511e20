package middleware

import (
	"encoding/json"
	"net/http"
)

// Error codes written by the middleware. They match the codes the farm API
// uses in its error envelope.
const (
	CodeUnauthorized = "unauthorized"
	CodeRateLimited  = "rate_limited"
)

type errorBody struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"requestId,omitempty"`
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(struct {
		Error errorBody `json:"error"`
	}{errorBody{Code: code, Message: message, RequestID: w.Header().Get(HeaderRequestID)}})
}
