package response

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/waifu-verifier-backend/internal/platform/apierr"
)

type APIError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

// LegacyEnvelope is the {success,message} body the appraisal clients expect.
type LegacyEnvelope struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func RespondError(c *gin.Context, status int, code string, err error) {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	c.JSON(status, ErrorEnvelope{
		Error: APIError{
			Message: msg,
			Code:    code,
		},
	})
}

// RespondAPIError maps err through apierr.StatusOf. Internal errors hide their message.
func RespondAPIError(c *gin.Context, err error) {
	status, code := apierr.StatusOf(err)
	if status >= http.StatusInternalServerError && !exposeInternal(err) {
		_ = c.Error(err)
		RespondError(c, status, code, errors.New("internal server error"))
		return
	}
	RespondError(c, status, code, err)
}

// RespondLegacyError writes the appraisal envelope. The message of 5xx errors is kept since
// those clients show it verbatim.
func RespondLegacyError(c *gin.Context, err error) {
	status, _ := apierr.StatusOf(err)
	if status >= http.StatusInternalServerError {
		_ = c.Error(err)
	}
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	c.JSON(status, LegacyEnvelope{Success: false, Message: msg})
}

func RespondOK(c *gin.Context, payload any) {
	c.JSON(http.StatusOK, payload)
}

func RespondCreated(c *gin.Context, payload any) {
	c.JSON(http.StatusCreated, payload)
}

// exposeInternal reports whether the 5xx carries an explicit apierr code, which
// services only attach to messages meant for clients.
func exposeInternal(err error) bool {
	var ae *apierr.Error
	return errors.As(err, &ae) && ae.Code != ""
}
