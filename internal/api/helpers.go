package api

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v5"
)

// ResponseError is the body of every error response, wrapped as
// {"error": ResponseError}.
type ResponseError struct {
	Message string `json:"message,omitempty"`
	Type    string `json:"type,omitempty"`
	Code    string `json:"code,omitempty"`
	Param   string `json:"param,omitempty"`
}

func writeBadRequest(c *echo.Context, msg, param string) error {
	return writeError(c, http.StatusBadRequest, "invalid_request_error", msg, param, "")
}

func writeServerError(c *echo.Context, msg string) error {
	return writeError(c, http.StatusInternalServerError, "server_error", msg, "", "")
}

func writeError(c *echo.Context, status int, errType, msg, param, code string) error {
	return c.JSON(status, map[string]any{
		"error": ResponseError{
			Message: msg,
			Type:    errType,
			Code:    code,
			Param:   param,
		},
	})
}

// writeFailure maps err to a 400 when it is an invalid request and a 500
// otherwise.
func writeFailure(c *echo.Context, err error) error {
	var inv invalidRequestError
	if errors.As(err, &inv) {
		return writeBadRequest(c, inv.msg, inv.param)
	}
	if errors.Is(err, ErrInvalidRequest) {
		return writeBadRequest(c, err.Error(), "")
	}
	return writeServerError(c, err.Error())
}
