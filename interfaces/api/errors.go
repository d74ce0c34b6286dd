package api

import (
	"errors"
	"net/http"

	"github.com/felixgeelhaar/ideaflow/application"
	"github.com/felixgeelhaar/ideaflow/domain/lifecycle"
)

// HTTPStatus maps a service error to the status code a transport should
// answer with. A nil error is 200.
func HTTPStatus(err error) int {
	switch application.Outcome(err) {
	case "ok":
		return http.StatusOK
	case "not_found":
		return http.StatusNotFound
	case "conflict":
		return http.StatusConflict
	case "invalid_transition", "invalid":
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// ErrorResponse is the body a transport returns for a failed call.
type ErrorResponse struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`

	// ID is the idea the error refers to, when known.
	ID string `json:"id,omitempty"`

	// ExpectedVersion and CurrentVersion are set on conflicts.
	ExpectedVersion int `json:"expected_version,omitempty"`
	CurrentVersion  int `json:"current_version,omitempty"`

	// From and To are set on rejected transitions.
	From string `json:"from,omitempty"`
	To   string `json:"to,omitempty"`
}

// NewErrorResponse describes err. It returns nil for a nil error.
func NewErrorResponse(err error) *ErrorResponse {
	if err == nil {
		return nil
	}

	resp := &ErrorResponse{
		Status:  HTTPStatus(err),
		Code:    application.Outcome(err),
		Message: err.Error(),
	}

	var conflict *lifecycle.ConflictError
	var notFound *lifecycle.NotFoundError
	var invalid *lifecycle.InvalidTransitionError
	switch {
	case errors.As(err, &conflict):
		resp.ID = conflict.ID
		resp.ExpectedVersion = conflict.Expected
		resp.CurrentVersion = conflict.Actual
	case errors.As(err, &notFound):
		resp.ID = notFound.ID
	case errors.As(err, &invalid):
		resp.From = invalid.From
		resp.To = invalid.To
	}
	return resp
}
