package rest

import (
	"context"
	"errors"
	"expvar"
	"fmt"
	"net/http"
	"net/http/pprof"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	echo_middleware "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	infra "github.com/roundy-world/lesson-server/internal/infrastructure"
	"github.com/roundy-world/lesson-server/internal/infrastructure/auth"
	"github.com/roundy-world/lesson-server/internal/infrastructure/driver"
	"github.com/roundy-world/lesson-server/internal/infrastructure/metrics"
	"github.com/roundy-world/lesson-server/internal/infrastructure/validate"
	"github.com/roundy-world/lesson-server/internal/interfaces/rest/handler"
	"github.com/roundy-world/lesson-server/internal/interfaces/rest/middleware"
	"github.com/roundy-world/lesson-server/internal/lesson"
	"github.com/roundy-world/lesson-server/internal/user"
	"go.elastic.co/apm/module/apmechov4"
	"go.uber.org/zap"
)

// NewApp create the http transport with every route registered
func NewApp(
	conn driver.ITransactionalDB,
	kv driver.KeyValueDB,
	option *infra.AppConfig,
	UserUseCase user.UserUseCase,
	LessonUseCase lesson.LessonUseCase,
	ValidationUseCase lesson.ValidationUseCase,
	logger *zap.Logger,
) *echo.Echo {
	var (
		app       = echo.New()
		validator = validate.NewValidator("es")
		websocket = infra.NewWebsocket(int64(option.Sandbox.MaxSourceLength) + 1024)
		jwtUtil   = auth.NewJWTUtil(&auth.JWTOption{
			Method:    option.Security.JWTMethod,
			Secret:    option.Security.JWTSecret,
			TokenName: option.Security.TokenName,
			Issuer:    option.AppID,
			Timeout:   option.SessionTimeout,
		})
		jwtMiddleware = middleware.VerifyToken(jwtUtil, &middleware.ValidateTokenOption{
			InBlackList: handler.IsRevoked(kv),
		})
		refreshMiddleware = middleware.RefreshToken(jwtUtil, &middleware.RefreshTokenOption{
			Threshold: option.SessionRefresh,
		})
	)
	app.HideBanner = true

	registerLivenessProbe(app, conn, kv)
	var appMetrics *metrics.Metrics
	if option.DevOP.Metrics {
		appMetrics = metrics.NewMetrics()
		app.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	}
	if option.Env == infra.EnvDevelopment {
		registerProfileEndpoints(app)
	}

	app.Use(middleware.Logging(logger, &middleware.LoggingConfig{
		Metrics: appMetrics,
		Skipper: func(e echo.Context) bool {
			uri := e.Request().RequestURI
			return strings.HasPrefix(uri, "/healthz") || strings.HasPrefix(uri, "/metrics")
		},
	}))
	app.Use(middleware.ErrorHandling(
		&middleware.ErrorHandlingOption{
			Handler: func(c echo.Context, err error) {
				traceID := c.Response().Header().Get(echo.HeaderXRequestID)
				c.JSON(http.StatusInternalServerError,
					handler.NewRESTStandardError(http.StatusInternalServerError, "error interno, intenta de nuevo").SetTraceID(traceID),
				)
				logger.Error(err.Error(), zap.String("trace.id", traceID))
			},
			HTTPErrorHandler: func(c echo.Context, err *echo.HTTPError) {
				traceID := c.Response().Header().Get(echo.HeaderXRequestID)
				c.JSON(err.Code, handler.NewRESTStandardError(err.Code, fmt.Sprint(err.Message)).SetTraceID(traceID))
			},
		},
	))
	app.Use(echo_middleware.Secure())
	if option.DevOP.APM {
		app.Use(apmechov4.Middleware())
	}
	app.Use(echo_middleware.CORS())
	app.Use(middleware.AbortRequest(&middleware.AbortRequestOption{
		Timeout: option.RequestTimeout,
		Skipper: func(e echo.Context) bool {
			return strings.HasPrefix(e.Request().RequestURI, "/api/v1/ws")
		},
	}))

	var (
		UserHandler   = handler.NewUserHandler(jwtUtil, kv, UserUseCase, validator)
		LessonHandler = handler.NewLessonHandler(LessonUseCase, ValidationUseCase, jwtUtil, validator, websocket)
	)

	createEndpoint(app,
		&endpoint{
			apiVersion:  "api/v1",
			middlewares: []echo.MiddlewareFunc{echo_middleware.RequestID(), middleware.SetTraceLogger(logger)},
			groups: []*apiGroup{
				{
					prefix: "/user",
					routes: []*route{
						{"POST", "/login", UserHandler.HandleSignIn, nil},
						{"PUT", "/sign-out", UserHandler.HandleSignOut, nil},
						{"POST", "/sign-up", UserHandler.HandleSignUp, nil},
						{"GET", "/exists", UserHandler.HandleUserExists, nil},
					},
				},
				{
					prefix:      "/lesson",
					middlewares: []echo.MiddlewareFunc{jwtMiddleware, refreshMiddleware},
					routes: []*route{
						{"GET", "/", LessonHandler.HandleListLessons, nil},
						{"POST", "/validate", LessonHandler.HandleValidate, nil},
						{"GET", "/progress", LessonHandler.HandleGetLessonProgress, nil},
						{"GET", "/history", LessonHandler.HandleGetHistory, nil},
						{"GET", "/:id", LessonHandler.HandleGetLesson, nil},
					},
				},
				{
					prefix:      "/ws",
					middlewares: []echo.MiddlewareFunc{jwtMiddleware},
					routes: []*route{
						{"GET", "/validate", LessonHandler.HandleValidateStream, nil},
					},
				},
			},
		})

	printRoutes(app, logger)
	return app
}

// Serve start app and block until ctx is done, in-flight requests get
// shutdownTimeout to finish
func Serve(ctx context.Context, app *echo.Echo, option *infra.AppConfig, shutdownTimeout time.Duration) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- app.Start(fmt.Sprintf("%s:%d", option.Host, option.Port))
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := app.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func printRoutes(app *echo.Echo, logger *zap.Logger) {
	for _, route := range app.Routes() {
		if !strings.HasPrefix(route.Name, "github.com/labstack/echo") {
			logger.Info("Registered route", zap.String("method", route.Method), zap.String("path", route.Path))
		}
	}
}

func registerLivenessProbe(app *echo.Echo, db driver.ITransactionalDB, kv driver.KeyValueDB) {
	app.GET("/healthz", func(c echo.Context) error {
		if db.Ping() == nil && kv.Ping() == nil {
			c.NoContent(http.StatusOK)
		} else {
			c.NoContent(http.StatusServiceUnavailable)
		}
		return nil
	})
}

func registerProfileEndpoints(app *echo.Echo) {
	expvarHandler := expvar.Handler()
	app.GET("/debug/vars", func(c echo.Context) error {
		expvarHandler.ServeHTTP(c.Response().Writer, c.Request())
		return nil
	})
	app.GET("/debug/pprof/", func(c echo.Context) error {
		pprof.Index(c.Response().Writer, c.Request())
		return nil
	})
	app.GET("/debug/pprof/:name", func(c echo.Context) error {
		switch c.Param("name") {
		case "cmdline":
			pprof.Cmdline(c.Response().Writer, c.Request())
		case "profile":
			pprof.Profile(c.Response().Writer, c.Request())
		case "symbol":
			pprof.Symbol(c.Response().Writer, c.Request())
		case "trace":
			pprof.Trace(c.Response().Writer, c.Request())
		default:
			pprof.Handler(c.Param("name")).ServeHTTP(c.Response().Writer, c.Request())
		}
		return nil
	})
}
