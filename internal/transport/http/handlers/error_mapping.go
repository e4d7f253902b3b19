package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/akabrrown/voice-of-upsa-sub004/internal/transport/http/middleware"
)

// ErrorCase maps a sentinel error to a status, envelope code and message.
type ErrorCase struct {
	Err     error
	Status  int
	Code    string
	Message string
}

// RespondWithMappedError resolves err against known cases or falls back to an
// internal error. The raw error only reaches the envelope details, which the
// writer drops in production.
func RespondWithMappedError(c *gin.Context, errs *middleware.ErrorWriter, err error, cases []ErrorCase) {
	if err == nil {
		c.Status(http.StatusOK)
		return
	}

	for _, cs := range cases {
		if cs.Err != nil && errors.Is(err, cs.Err) {
			errs.Abort(c, cs.Status, cs.Code, cs.Message, err.Error())
			return
		}
	}

	_ = c.Error(err)
	errs.Abort(c, http.StatusInternalServerError, middleware.CodeInternal, "Something went wrong. Please try again later.", err.Error())
}
