package observability

import (
	"strings"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"
)

// EchoMiddleware returns the unified HTTP tracing middleware.
func EchoMiddleware() echo.MiddlewareFunc {
	return otelecho.Middleware("costellobot", otelecho.WithSkipper(traceSkipper))
}

// EchoSpanEnrichmentMiddleware adds request metadata to the request context.
func EchoSpanEnrichmentMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := c.Request().Context()
			ctx = WithRequestMetadata(ctx, c.Response().Header().Get(echo.HeaderXRequestID))
			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	}
}

func traceSkipper(c echo.Context) bool {
	switch strings.TrimSpace(c.Request().URL.Path) {
	case "/health", "/healthz", "/live", "/ready", "/version", "/favicon.ico":
		return true
	default:
		return false
	}
}
