package routers

import (
	"net/http"
	"time"

	"owly-api/internal/ctx"
	"owly-api/internal/handlers/analyze"
	"owly-api/internal/middleware"
	"owly-api/internal/shared"

	"github.com/labstack/echo/v4"
)

type AnalyzeRouter struct {
	ah *analyze.AnalyzeHandler
}

func RegisterAnalyzeRoutes(e *echo.Group, ah *analyze.AnalyzeHandler, cmw *middleware.CallerMiddleware) {
	analyzeRouter := AnalyzeRouter{ah: ah}

	requireCaller := e.Group("", cmw.ExtractCaller, cmw.RequireCaller)
	requireCaller.POST("/analyze", analyzeRouter.Analyze)
}

func (ar *AnalyzeRouter) Analyze(cc echo.Context) error {
	c := cc.(*ctx.Context)

	body, err := readRequestBody(c)
	if err != nil {
		return writeError(c, shared.ErrInvalidRequest)
	}

	out, err := ar.ah.AnalyzeLogic(analyze.AnalyzeInput{
		Ctx:       c.Request().Context(),
		Body:      body,
		CallerID:  c.Caller.CallerID,
		RequestID: c.Reqid,
		Now:       time.Now(),
		Log:       c.Log,
	})
	if err != nil {
		return writeError(c, err)
	}

	c.LogValues.Intent = out.Intent.String()
	c.LogValues.Generated = out.Generated
	return c.JSON(http.StatusOK, shared.ResultEnvelope{Result: out.Result})
}
