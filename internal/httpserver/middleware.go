package httpserver

import (
	"log/slog"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/Skotchmaster/incident_desk/internal/metrics"
	loggingmw "github.com/Skotchmaster/incident_desk/internal/middleware/logging"
)

type CommonOptions struct {
	Logger    *slog.Logger
	Metrics   *metrics.Metrics
	ClientURL string
	// BodyLimit in echo notation, e.g. "2M". Empty disables the limit.
	BodyLimit string
}

// Common is the middleware stack every route runs through. The request
// logger renders errors, so metrics sits inside it to see the raw error.
func Common(o CommonOptions) []echo.MiddlewareFunc {
	mws := []echo.MiddlewareFunc{
		echomw.Recover(),
		echomw.RequestID(),
	}
	if o.Logger != nil {
		mws = append(mws, loggingmw.RequestLogger(o.Logger))
	}
	if o.Metrics != nil {
		mws = append(mws, o.Metrics.Middleware())
	}
	mws = append(mws, echomw.Secure())
	if o.ClientURL != "" {
		mws = append(mws, echomw.CORSWithConfig(echomw.CORSConfig{
			AllowOrigins:     []string{o.ClientURL},
			AllowCredentials: true,
			AllowHeaders:     []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
		}))
	}
	if o.BodyLimit != "" {
		mws = append(mws, echomw.BodyLimit(o.BodyLimit))
	}
	return mws
}
