package rpc

import (
	"encoding/json"
	"errors"
	"net/http"

	"xfarm/core/state"
	"xfarm/native/amm"
	"xfarm/native/farm"
	"xfarm/native/oracle"
)

const (
	codeInvalidParams = "invalid_params"
	codeNotFound      = "not_found"
	codeUnauthorized  = "unauthorized"
	codePaused        = "paused"
	codeRejected      = "rejected"
	codeServerError   = "server_error"
)

// APIError is the error body returned by every route.
type APIError struct {
	HTTPStatus int         `json:"-"`
	Code       string      `json:"code"`
	Message    string      `json:"message"`
	Data       interface{} `json:"data,omitempty"`
	RequestID  string      `json:"requestId,omitempty"`
}

func (e *APIError) Error() string {
	if e == nil {
		return ""
	}
	return e.Message
}

func invalidParams(message string) *APIError {
	return &APIError{HTTPStatus: http.StatusBadRequest, Code: codeInvalidParams, Message: message}
}

// translateError maps ledger and farm sentinels onto HTTP statuses.
func translateError(err error) *APIError {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}
	switch {
	case errors.Is(err, farm.ErrPoolNotFound):
		return &APIError{HTTPStatus: http.StatusNotFound, Code: codeNotFound, Message: err.Error()}
	case errors.Is(err, farm.ErrUnauthorized):
		return &APIError{HTTPStatus: http.StatusForbidden, Code: codeUnauthorized, Message: err.Error()}
	case errors.Is(err, farm.ErrModulePaused):
		return &APIError{HTTPStatus: http.StatusServiceUnavailable, Code: codePaused, Message: err.Error()}
	case errors.Is(err, farm.ErrZeroAmount),
		errors.Is(err, farm.ErrInvalidParams),
		errors.Is(err, farm.ErrInvalidPoolConfig),
		errors.Is(err, state.ErrTokenNotRegistered),
		errors.Is(err, state.ErrNegativeAmount):
		return &APIError{HTTPStatus: http.StatusBadRequest, Code: codeInvalidParams, Message: err.Error()}
	case errors.Is(err, farm.ErrSlippageExceeded),
		errors.Is(err, farm.ErrInsufficientStake),
		errors.Is(err, state.ErrInsufficientBalance),
		errors.Is(err, state.ErrInsufficientAllowance),
		errors.Is(err, amm.ErrInsufficientLiquidity),
		errors.Is(err, amm.ErrInsufficientInputAmount),
		errors.Is(err, amm.ErrInsufficientOutputAmount),
		errors.Is(err, amm.ErrInsufficientLiquidityMinted),
		errors.Is(err, amm.ErrInsufficientLiquidityBurned),
		errors.Is(err, oracle.ErrNotInitialised),
		errors.Is(err, oracle.ErrNoReserves):
		return &APIError{HTTPStatus: http.StatusUnprocessableEntity, Code: codeRejected, Message: err.Error()}
	}
	return &APIError{HTTPStatus: http.StatusInternalServerError, Code: codeServerError, Message: "internal error"}
}

type resultEnvelope struct {
	Result interface{} `json:"result"`
}

type errorEnvelope struct {
	Error *APIError `json:"error"`
}

func writeResult(w http.ResponseWriter, result interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resultEnvelope{Result: result})
}

func writeError(w http.ResponseWriter, r *http.Request, err *APIError) {
	status := err.HTTPStatus
	if status <= 0 {
		status = http.StatusBadRequest
	}
	body := *err
	body.RequestID = RequestID(r.Context())
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorEnvelope{Error: &body})
}
