package httpserver

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/incident_desk/internal/service"
	"github.com/Skotchmaster/incident_desk/internal/storage"
)

// fail logs err under event and converts it to the HTTP error the client sees.
// Unknown errors become a generic 500.
func fail(l *slog.Logger, event string, err error) error {
	code, msg := classify(err)
	if code >= http.StatusInternalServerError {
		l.Error(event, "status", code, "reason", msg, "error", err)
	} else {
		l.Warn(event, "status", code, "reason", msg, "error", err)
	}
	return echo.NewHTTPError(code, msg)
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, service.ErrValidation):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, storage.ErrTooLarge),
		errors.Is(err, storage.ErrUnsupportedType),
		errors.Is(err, storage.ErrTooManyFiles):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, service.ErrConflict):
		return http.StatusBadRequest, "user already exists"
	case errors.Is(err, service.ErrInvalidCredentials):
		return http.StatusUnauthorized, "invalid email or password"
	case errors.Is(err, service.ErrUnauthenticated):
		return http.StatusUnauthorized, "not authenticated"
	case errors.Is(err, service.ErrBlocked):
		return http.StatusForbidden, "account is blocked"
	case errors.Is(err, service.ErrInvalidRefreshToken):
		return http.StatusForbidden, "invalid refresh token"
	case errors.Is(err, service.ErrForbidden):
		return http.StatusForbidden, "access denied"
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound, err.Error()
	default:
		return http.StatusInternalServerError, "internal server error"
	}
}
