package middleware

import (
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/roundy-world/lesson-server/internal/infrastructure/logging"
	"github.com/roundy-world/lesson-server/internal/infrastructure/metrics"
	"go.uber.org/zap"
)

type LoggingConfig struct {
	// Skipper defines a function to skip middleware.
	Skipper middleware.Skipper
	// Metrics observes request latency when set
	Metrics *metrics.Metrics
}

// Logging access log middleware. Server errors are logged at warn level, everything
// else at debug since the grading outcome is logged by the validator itself.
func Logging(base *zap.Logger, options ...*LoggingConfig) echo.MiddlewareFunc {
	cfg := &LoggingConfig{
		Skipper: middleware.DefaultSkipper,
	}
	if len(options) > 0 && options[0] != nil {
		if options[0].Skipper != nil {
			cfg.Skipper = options[0].Skipper
		}
		cfg.Metrics = options[0].Metrics
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if cfg.Skipper(c) {
				return next(c)
			}
			start := time.Now()
			err := next(c)
			elapsed := time.Since(start)

			req := c.Request()
			code := c.Response().Status
			if cfg.Metrics != nil {
				cfg.Metrics.HTTPDuration.
					WithLabelValues(req.Method, c.Path(), fmt.Sprintf("%dxx", code/100)).
					Observe(elapsed.Seconds())
			}

			fields := []zap.Field{
				zap.String("trace.id", c.Response().Header().Get(echo.HeaderXRequestID)),
				zap.String("http.request.method", req.Method),
				zap.String("url.path", req.RequestURI),
				zap.String("http.route", c.Path()),
				zap.String("client.address", c.RealIP()),
				zap.Int64("http.request.body.byte", req.ContentLength),
				zap.Int("http.response.status_code", code),
				zap.Duration("event.duration", elapsed),
			}
			if code >= http.StatusInternalServerError {
				base.Warn(http.StatusText(code), fields...)
			} else {
				base.Debug(http.StatusText(code), fields...)
			}
			return err
		}
	}
}

// SetTraceLogger bind a logger carrying the request id to the request context,
// handlers and stores fetch it with logging.ExtractLoggerFromContext
func SetTraceLogger(base *zap.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			r := c.Request()
			logger := base.With(zap.String("trace.id", c.Response().Header().Get(echo.HeaderXRequestID)))
			c.SetRequest(r.WithContext(logging.SetLoggerInContext(r.Context(), logger)))
			return next(c)
		}
	}
}
