package app

import (
	"errors"
	"net/http"

	"github.com/molpadia/molparelay/internal/ingest"
)

type AppError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

func (e *AppError) Error() string { return e.Message }

func (e *AppError) Unwrap() error { return e.Err }

// Map a pipeline failure to the status code replied to the client.
func toAppError(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, ingest.ErrMissingContentType), errors.Is(err, ingest.ErrEmptyUpload),
		errors.Is(err, ingest.ErrMalformedUpload):
		code = http.StatusBadRequest
	case errors.Is(err, ingest.ErrUnsupportedMediaType):
		code = http.StatusUnsupportedMediaType
	case errors.Is(err, ingest.ErrPayloadTooLarge):
		code = http.StatusRequestEntityTooLarge
	}
	return &AppError{Code: code, Message: err.Error(), Err: err}
}
