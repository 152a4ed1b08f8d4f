package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/eaglebank/ledger/ledger-service/internal/domain"
	"github.com/eaglebank/ledger/ledger-service/internal/eventstore"
	"github.com/eaglebank/ledger/shared/middleware"
)

// statusFor maps a service error onto an HTTP status.
func statusFor(err error) int {
	switch {
	case domain.IsValidation(err), domain.IsInvariant(err):
		return http.StatusBadRequest
	case domain.IsNotFound(err):
		return http.StatusNotFound
	case errors.Is(err, eventstore.ErrConcurrency):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// respondWithDomainError writes err with its mapped status. Business
// rejections carry their own message; anything else is reported as failure.
func respondWithDomainError(c *gin.Context, err error, failure string) {
	code := statusFor(err)
	switch code {
	case http.StatusInternalServerError:
		_ = c.Error(err)
		middleware.RespondWithError(c, code, failure)
	case http.StatusConflict:
		middleware.RespondWithError(c, code, "Resource was modified concurrently, retry the request")
	default:
		middleware.RespondWithError(c, code, err.Error())
	}
}

// pathID parses a uuid path parameter, writing a 400 when it is malformed.
func pathID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		middleware.RespondWithError(c, http.StatusBadRequest, "Invalid "+name)
		return uuid.Nil, false
	}
	return id, true
}
