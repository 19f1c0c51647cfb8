// Package timelineerr implements the error taxonomy for the demographic
// simulation core: InvalidArgument, NotFound, Duplicate, and StoreError are
// hard failures surfaced to the caller; ValidationWarning is a soft issue
// attached to a chunk report and never aborts a run.
package timelineerr

import (
	"encoding/json"
	stdErrors "errors"
	"fmt"
	"net/http"
)

// AppError represents a hard failure with HTTP context for the one outer
// surface (the HTTP API) that needs to answer over the wire.
type AppError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	HTTPStatus int    `json:"-"`
	Err        error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the underlying error for error chain support.
func (e *AppError) Unwrap() error {
	return e.Err
}

// Common error templates, one per §7 category.
var (
	ErrInvalidArgument = &AppError{Code: "INVALID_ARGUMENT", Message: "invalid argument", HTTPStatus: http.StatusBadRequest}
	ErrNotFound        = &AppError{Code: "NOT_FOUND", Message: "not found", HTTPStatus: http.StatusNotFound}
	ErrDuplicate       = &AppError{Code: "DUPLICATE", Message: "snapshot already exists for this entity and day", HTTPStatus: http.StatusConflict}
	ErrStoreError      = &AppError{Code: "STORE_ERROR", Message: "snapshot store failure", HTTPStatus: http.StatusInternalServerError}
)

// Wrap creates a new error of the same category as base, with a custom
// message and an underlying cause.
func Wrap(base *AppError, message string, err error) *AppError {
	return &AppError{
		Code:       base.Code,
		Message:    message,
		HTTPStatus: base.HTTPStatus,
		Err:        err,
	}
}

// New creates a fully custom AppError.
func New(code, message string, httpStatus int) *AppError {
	return &AppError{Code: code, Message: message, HTTPStatus: httpStatus}
}

// NewInvalidArgument returns an InvalidArgument error with a formatted message.
func NewInvalidArgument(format string, args ...any) error {
	return &AppError{Code: ErrInvalidArgument.Code, Message: fmt.Sprintf(format, args...), HTTPStatus: ErrInvalidArgument.HTTPStatus}
}

// NewNotFound returns a NotFound error with a formatted message.
func NewNotFound(format string, args ...any) error {
	return &AppError{Code: ErrNotFound.Code, Message: fmt.Sprintf(format, args...), HTTPStatus: ErrNotFound.HTTPStatus}
}

// NewDuplicate returns a Duplicate error with a formatted message.
func NewDuplicate(format string, args ...any) error {
	return &AppError{Code: ErrDuplicate.Code, Message: fmt.Sprintf(format, args...), HTTPStatus: ErrDuplicate.HTTPStatus}
}

// ValidationWarning is a soft issue detected at chunk end. It is not an
// error: it is attached to a ChunkReport and never aborts a run.
type ValidationWarning struct {
	Code    string
	Message string
}

func (w ValidationWarning) String() string {
	return fmt.Sprintf("%s: %s", w.Code, w.Message)
}

// Warning constructors for the checks named in §7.
func NegativePopulationWarning(entityID string, day int64) ValidationWarning {
	return ValidationWarning{Code: "NEGATIVE_POPULATION", Message: fmt.Sprintf("entity %s produced negative population at day %d", entityID, day)}
}

func GrowthRateExceededWarning(species string, day int64) ValidationWarning {
	return ValidationWarning{Code: "GROWTH_RATE_EXCEEDED", Message: fmt.Sprintf("species %s exceeded max growth rate per step at day %d", species, day)}
}

func CapacityCollapseWarning(day int64, capacity int) ValidationWarning {
	return ValidationWarning{Code: "CAPACITY_COLLAPSE", Message: fmt.Sprintf("effective capacity collapsed to %d at day %d", capacity, day)}
}

func FactorOutOfBoundsWarning(factor string, day int64, value float64) ValidationWarning {
	return ValidationWarning{Code: "FACTOR_OUT_OF_BOUNDS", Message: fmt.Sprintf("%s factor %.4f outside sane bound at day %d", factor, value, day)}
}

// ErrorResponse is the JSON shape written by the HTTP surface on failure.
type ErrorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// RespondWithError writes an AppError (or a wrapped-to-internal fallback)
// to the HTTP response.
func RespondWithError(w http.ResponseWriter, err error) {
	var appErr *AppError
	if !stdErrors.As(err, &appErr) {
		appErr = &AppError{Code: "UNKNOWN_ERROR", Message: "an unexpected error occurred", HTTPStatus: http.StatusInternalServerError, Err: err}
	}

	response := ErrorResponse{}
	response.Error.Code = appErr.Code
	response.Error.Message = appErr.Message

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(appErr.HTTPStatus)
	_ = json.NewEncoder(w).Encode(response) // response already committed, encode error is unrecoverable
}
