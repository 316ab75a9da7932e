package response

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/stemsi/exstem-assessment/internal/lifecycle"
)

// Classify maps a domain error to its HTTP status and error code.
func Classify(err error) (int, ErrCode) {
	var verr *lifecycle.ValidationError
	switch {
	case errors.As(err, &verr):
		return http.StatusUnprocessableEntity, ErrValidation
	case errors.Is(err, lifecycle.ErrNotFound):
		return http.StatusNotFound, ErrNotFound
	case errors.Is(err, lifecycle.ErrAlreadyExists):
		return http.StatusConflict, ErrConflict
	case errors.Is(err, lifecycle.ErrInvalidTransition):
		return http.StatusConflict, ErrInvalidTransition
	case errors.Is(err, lifecycle.ErrConcurrencyConflict):
		return http.StatusConflict, ErrConcurrencyConflict
	case errors.Is(err, lifecycle.ErrResultsNotReady):
		return http.StatusConflict, ErrResultsNotReady
	default:
		return http.StatusInternalServerError, ErrInternal
	}
}

// FailDomain sends the envelope for a service error. Validation errors carry
// their field messages.
func FailDomain(c *gin.Context, err error) {
	status, code := Classify(err)
	var verr *lifecycle.ValidationError
	if errors.As(err, &verr) {
		FailWithFields(c, status, code, verr.Fields)
		return
	}
	Fail(c, status, code)
}
