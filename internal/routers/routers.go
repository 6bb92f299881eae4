// Package routers wires handlers onto echo groups and maps their errors to
// response envelopes
package routers

import (
	"errors"
	"io"
	"net/http"

	"owly-api/internal/ctx"
	"owly-api/internal/shared"

	"github.com/labstack/echo/v4"
)

const livenessMessage = "Owly backend running."

func RegisterBaseRoutes(e *echo.Echo) {
	e.GET("/ping", func(c echo.Context) error {
		return c.String(http.StatusOK, "")
	})
	e.GET("/", func(c echo.Context) error {
		return c.String(http.StatusOK, livenessMessage)
	})
}

func readRequestBody(c *ctx.Context) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(c.Request().Body, shared.MaxBodyBytes))
	if err != nil {
		c.Log.Errorw("Failed to read request body", "error", err.Error())
		return nil, err
	}
	return body, nil
}

// writeError sends RequestErrors with their own status and message. Anything
// else is logged and hidden behind a generic 500.
func writeError(c *ctx.Context, err error) error {
	c.LogValues.AddError(err)

	var rerr *shared.RequestError
	if errors.As(err, &rerr) {
		return c.JSON(rerr.StatusCode, shared.ErrorEnvelope{Error: rerr.Err.Error()})
	}
	return c.JSON(http.StatusInternalServerError, shared.ErrorEnvelope{Error: shared.ErrInternalServerError.Err.Error()})
}
