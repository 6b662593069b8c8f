package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-session/internal/response"
	"github.com/stemsi/exstem-session/internal/service"
	"github.com/stemsi/exstem-session/internal/session"
)

type errorMapping struct {
	target error
	status int
	code   response.ErrCode
}

// errorMappings is matched in order with errors.Is.
var errorMappings = []errorMapping{
	{service.ErrSessionNotFound, http.StatusNotFound, response.ErrSessionNotFound},
	{service.ErrExamNotFound, http.StatusNotFound, response.ErrNotFound},
	{service.ErrExamNotAvailable, http.StatusNotFound, response.ErrExamNotAvailable},
	{service.ErrNotRegistered, http.StatusForbidden, response.ErrNotRegistered},
	{service.ErrAccessCodeInactive, http.StatusForbidden, response.ErrAccessCodeInactive},
	{service.ErrPaymentRequired, http.StatusPaymentRequired, response.ErrPaymentRequired},

	{session.ErrSessionClosed, http.StatusGone, response.ErrSessionClosed},
	{session.ErrInvalidAccessCode, http.StatusUnauthorized, response.ErrInvalidAccessCode},
	{session.ErrAcknowledgmentRequired, http.StatusBadRequest, response.ErrAcknowledgmentRequired},
	{session.ErrInvalidOption, http.StatusBadRequest, response.ErrInvalidOption},
	{session.ErrIndexOutOfRange, http.StatusBadRequest, response.ErrIndexOutOfRange},
	{session.ErrFinalizeInProgress, http.StatusConflict, response.ErrFinalizeInProgress},
	{session.ErrInvalidPhaseTransition, http.StatusConflict, response.ErrInvalidPhase},
	{session.ErrReportSubmissionFailed, http.StatusBadGateway, response.ErrReportSubmission},
	{session.ErrPersistenceWriteFailed, http.StatusServiceUnavailable, response.ErrPersistenceWrite},
}

// resolveError maps a service or session error to an HTTP status and code.
func resolveError(err error) (int, response.ErrCode) {
	for _, m := range errorMappings {
		if errors.Is(err, m.target) {
			return m.status, m.code
		}
	}
	return http.StatusInternalServerError, response.ErrInternal
}

// failWith writes the envelope for err, logging anything unexpected.
func failWith(c *gin.Context, err error) {
	status, code := resolveError(err)
	if status >= http.StatusInternalServerError {
		zerolog.Ctx(c.Request.Context()).Error().Err(err).
			Str("path", c.FullPath()).
			Msg("Request failed")
	}
	response.Fail(c, status, code)
}
