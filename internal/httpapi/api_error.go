package httpapi

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/subgeo/subgeo/internal/fetch"
	"github.com/subgeo/subgeo/internal/model"
	"github.com/subgeo/subgeo/internal/pipeline"
	"github.com/subgeo/subgeo/internal/render"
)

// APIError is used by the HTTP layer for request validation and a few
// HTTP-specific errors.
type APIError struct {
	Status   int
	AppError model.AppError
	Cause    error
}

func (e *APIError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Cause == nil {
		return fmt.Sprintf("%s: %s", e.AppError.Code, e.AppError.Message)
	}
	return fmt.Sprintf("%s: %s: %v", e.AppError.Code, e.AppError.Message, e.Cause)
}

func (e *APIError) Unwrap() error { return e.Cause }

func apiError(status int, app model.AppError, cause error) error {
	return &APIError{Status: status, AppError: app, Cause: cause}
}

func requestError(code, message, hint string) error {
	return apiError(http.StatusBadRequest, model.AppError{
		Code:    code,
		Message: message,
		Stage:   "validate_request",
		Hint:    hint,
	}, nil)
}

func writeErrorFromErr(w http.ResponseWriter, err error) {
	if err == nil {
		return
	}

	var ae *APIError
	if errors.As(err, &ae) {
		WriteError(w, ae.Status, ae.AppError)
		return
	}

	// A batch-level failure: no usable core means the service cannot work
	// right now, total fetch failure means the upstreams cannot. Checked
	// before FetchError because the batch error wraps the last fetch error
	// as its cause.
	var pe *pipeline.PipelineError
	if errors.As(err, &pe) {
		status := http.StatusBadGateway
		if pe.AppError.Code == "NO_CORE_AVAILABLE" {
			status = http.StatusServiceUnavailable
		}
		WriteError(w, status, pe.AppError)
		return
	}

	var fe *fetch.FetchError
	if errors.As(err, &fe) {
		WriteError(w, fe.Status, fe.AppError)
		return
	}

	// Render errors are the only content errors that can reach this layer:
	// link parse failures are recovered inside the subscription parser and
	// synthesis failures become probe classifications.
	var re *render.RenderError
	if errors.As(err, &re) {
		WriteError(w, http.StatusUnprocessableEntity, re.AppError)
		return
	}

	// Fallback: internal bug.
	WriteError(w, http.StatusInternalServerError, model.AppError{
		Code:    "INTERNAL_ERROR",
		Message: "服务端内部错误",
		Stage:   "internal",
		Hint:    err.Error(),
	})
}
