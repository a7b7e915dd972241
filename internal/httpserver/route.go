package httpserver

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"

	"github.com/Skotchmaster/incident_desk/internal/audit"
	authmw "github.com/Skotchmaster/incident_desk/internal/middleware/auth"
	"github.com/Skotchmaster/incident_desk/internal/models"
	"github.com/Skotchmaster/incident_desk/internal/policy"
	"github.com/Skotchmaster/incident_desk/internal/realtime"
)

type Deps struct {
	AuthHandler     *AuthHTTP
	IncidentHandler *IncidentHTTP
	UserHandler     *UserHTTP
	AuditHandler    *AuditHTTP
	HealthHandler   *HealthHTTP
	RealtimeHandler *realtime.Handler

	AuthMW   *authmw.Middleware
	Recorder *audit.Recorder

	Metrics   http.Handler
	UploadDir string

	// RateLimit requests per RateWindow per client IP on /api. Zero disables it.
	RateLimit  int
	RateWindow time.Duration
}

func Register(e *echo.Echo, d *Deps) {
	if e.Validator == nil {
		e.Validator = NewValidator()
	}

	e.GET("/health/live", d.HealthHandler.Live)
	e.GET("/health/ready", d.HealthHandler.Ready)
	if d.Metrics != nil {
		e.GET("/metrics", echo.WrapHandler(d.Metrics))
	}
	if d.RealtimeHandler != nil {
		e.GET("/ws", d.RealtimeHandler.Serve)
	}
	if d.UploadDir != "" {
		e.Static("/uploads", d.UploadDir)
	}

	api := e.Group("/api")
	if d.RateLimit > 0 {
		api.Use(RateLimiter(d.RateLimit, d.RateWindow))
	}

	mw := d.AuthMW
	rec := d.Recorder

	auth := api.Group("/auth")
	auth.POST("/register", d.AuthHandler.Register)
	auth.POST("/login", d.AuthHandler.Login)
	auth.POST("/refresh", d.AuthHandler.Refresh)
	auth.POST("/logout", d.AuthHandler.LogOut, mw.RequireAuth)

	incidents := api.Group("/incidents")
	incidents.POST("", d.IncidentHandler.Create,
		mw.RequireAction(policy.IncidentCreate), rec.Hook(models.ActionCreate, models.TargetIncident))
	incidents.GET("", d.IncidentHandler.List, mw.RequireAction(policy.IncidentList))
	incidents.GET("/analytics", d.IncidentHandler.Analytics, mw.RequireAction(policy.IncidentAnalytics))
	incidents.POST("/bulk-update", d.IncidentHandler.BulkUpdate,
		mw.RequireAction(policy.IncidentBulkUpdate), rec.Hook(models.ActionBulkUpdate, models.TargetIncident))
	incidents.GET("/:id", d.IncidentHandler.Get, mw.RequireAction(policy.IncidentRead))
	incidents.PUT("/:id", d.IncidentHandler.Update,
		mw.RequireAction(policy.IncidentUpdate), rec.Hook(models.ActionUpdate, models.TargetIncident))
	incidents.DELETE("/:id", d.IncidentHandler.Delete,
		mw.RequireAction(policy.IncidentDelete), rec.Hook(models.ActionDelete, models.TargetIncident))

	users := api.Group("/users")
	users.GET("", d.UserHandler.List, mw.RequireAction(policy.UserList))
	users.PUT("/:id", d.UserHandler.Update,
		mw.RequireAction(policy.UserUpdate), rec.Hook(models.ActionUpdate, models.TargetUser))
	users.DELETE("/:id", d.UserHandler.Delete,
		mw.RequireAction(policy.UserDelete), rec.Hook(models.ActionDelete, models.TargetUser))

	api.GET("/audit", d.AuditHandler.List, mw.RequireAction(policy.AuditList))
}

// RateLimiter allows limit requests per window for each client IP, with the
// whole window's allowance available as a burst.
func RateLimiter(limit int, window time.Duration) echo.MiddlewareFunc {
	if window <= 0 {
		window = 15 * time.Minute
	}
	store := echomw.NewRateLimiterMemoryStoreWithConfig(echomw.RateLimiterMemoryStoreConfig{
		Rate:      rate.Limit(float64(limit) / window.Seconds()),
		Burst:     limit,
		ExpiresIn: window,
	})
	return echomw.RateLimiterWithConfig(echomw.RateLimiterConfig{
		Store: store,
		IdentifierExtractor: func(c echo.Context) (string, error) {
			return c.RealIP(), nil
		},
		ErrorHandler: func(c echo.Context, err error) error {
			return echo.NewHTTPError(http.StatusForbidden, "cannot identify client")
		},
		DenyHandler: func(c echo.Context, identifier string, err error) error {
			return echo.NewHTTPError(http.StatusTooManyRequests, "too many requests, please try again later")
		},
	})
}
