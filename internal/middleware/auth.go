// Package middleware defines echo middleware for request tracking, panics and callers
package middleware

import (
	"errors"
	"net/http"

	"owly-api/internal/ctx"
	"owly-api/internal/identity"
	"owly-api/internal/shared"

	"github.com/labstack/echo/v4"
)

type CallerMiddleware struct {
	verifier identity.Verifier
}

func NewCallerMiddleware(verifier identity.Verifier) *CallerMiddleware {
	return &CallerMiddleware{verifier: verifier}
}

// ExtractCaller attaches the verified caller, if any. Failures are recorded
// for logging and left for RequireCaller to reject.
func (m *CallerMiddleware) ExtractCaller(next echo.HandlerFunc) echo.HandlerFunc {
	return func(cc echo.Context) error {
		c := cc.(*ctx.Context)
		c.Caller = nil

		token, err := shared.ExtractBearerToken(c)
		if err != nil {
			c.LogValues.AddError(err)
			return next(c)
		}
		caller, err := m.verifier.Verify(c.Request().Context(), token)
		if err != nil {
			c.LogValues.AddError(err)
			return next(c)
		}
		c.Caller = caller
		c.LogValues.CallerID = caller.CallerID
		c.Log = c.Log.With("caller_id", caller.CallerID)
		return next(c)
	}
}

func (m *CallerMiddleware) RequireCaller(next echo.HandlerFunc) echo.HandlerFunc {
	return func(cc echo.Context) error {
		c := cc.(*ctx.Context)
		if c.Caller == nil {
			msg := shared.ErrUnauthorized.Err.Error()
			var rerr *shared.RequestError
			if errors.As(c.LogValues.Error, &rerr) && rerr.StatusCode == http.StatusUnauthorized {
				msg = rerr.Err.Error()
			}
			return c.JSON(http.StatusUnauthorized, shared.ErrorEnvelope{Error: msg})
		}
		return next(c)
	}
}
