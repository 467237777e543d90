package server

import (
	"errors"
	"net/http"

	"github.com/jonathan/resume-orchestrator/internal/pipeline"
	"github.com/jonathan/resume-orchestrator/internal/service"
	"github.com/jonathan/resume-orchestrator/internal/store"
	"github.com/jonathan/resume-orchestrator/internal/types"
)

// errBadJSON is reported for request bodies that do not decode.
var errBadJSON = &types.ValidationError{Field: "body", Message: "invalid JSON"}

// HTTPStatus returns the appropriate HTTP status code for an error
func HTTPStatus(err error) int {
	var verr *types.ValidationError
	switch {
	case err == nil:
		return http.StatusOK
	case errors.As(err, &verr):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrNotFound), errors.Is(err, service.ErrNoArtifact):
		return http.StatusNotFound
	case errors.Is(err, store.ErrInvalidTransition), errors.Is(err, pipeline.ErrRunActive):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
