package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/KaramelBytes/sheetask/internal/assistant"
	"github.com/KaramelBytes/sheetask/internal/logging"
	"github.com/KaramelBytes/sheetask/internal/session"
)

// Dependencies holds everything the handlers need.
type Dependencies struct {
	Sessions    *session.Manager
	Assistant   *assistant.Service
	Logger      *zap.Logger
	Version     string
	MaxUploadMB int
	// AllowOrigins defaults to "*".
	AllowOrigins []string
}

// Handlers holds all handler instances.
type Handlers struct {
	Health   *HealthHandler
	Datasets *DatasetHandler
}

// NewHandlers creates all handler instances.
func NewHandlers(deps *Dependencies) *Handlers {
	return &Handlers{
		Health:   NewHealthHandler(deps.Version),
		Datasets: NewDatasetHandler(deps.Sessions, deps.Assistant, deps.Logger),
	}
}

// RegisterRoutes registers all API routes with the Echo instance.
func RegisterRoutes(e *echo.Echo, h *Handlers) {
	g := e.Group("/api")
	g.GET("/health", h.Health.HandleHealth)

	ds := g.Group("/datasets")
	ds.POST("", h.Datasets.HandleUpload)
	ds.GET("/:id", h.Datasets.HandleGet)
	ds.DELETE("/:id", h.Datasets.HandleDelete)
	ds.GET("/:id/profile", h.Datasets.HandleProfile)
	ds.POST("/:id/query", h.Datasets.HandleQuery)
	ds.POST("/:id/modifications/:modId/apply", h.Datasets.HandleApply)
	ds.GET("/:id/modifications/:modId/download", h.Datasets.HandleDownload)
	ds.POST("/:id/charts", h.Datasets.HandleChart)
}

// SetupMiddleware configures error handling, request logging, recovery,
// the upload size limit and CORS.
func SetupMiddleware(e *echo.Echo, deps *Dependencies) {
	logger := deps.Logger
	e.HTTPErrorHandler = NewErrorHandler(logger)

	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:  true,
		LogURI:     true,
		LogStatus:  true,
		LogLatency: true,
		LogError:   true,
		Skipper: func(c echo.Context) bool {
			return c.Path() == "/api/health"
		},
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			fields := []zap.Field{
				zap.String("method", v.Method),
				zap.String("uri", v.URI),
				zap.Int("status", v.Status),
				zap.Duration("latency", v.Latency),
			}
			if v.Error != nil {
				fields = append(fields, zap.Error(v.Error))
			}
			logger.Info("request", fields...)
			return nil
		},
	}))
	e.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{
		StackSize: 4 << 10,
		LogErrorFunc: func(c echo.Context, err error, stack []byte) error {
			logger.Error("panic recovered", zap.Error(err), zap.ByteString("stack", stack))
			return err
		},
	}))
	if deps.MaxUploadMB > 0 {
		e.Use(middleware.BodyLimit(fmt.Sprintf("%dM", deps.MaxUploadMB)))
	}
	origins := deps.AllowOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: origins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept},
	}))
}

// NewServer builds a configured Echo instance.
func NewServer(deps *Dependencies) *echo.Echo {
	deps.Logger = logging.OrNop(deps.Logger)
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Server.ReadHeaderTimeout = 10 * time.Second
	SetupMiddleware(e, deps)
	RegisterRoutes(e, NewHandlers(deps))
	return e
}
