package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/incident_desk/internal/logging"
	"github.com/Skotchmaster/incident_desk/internal/models"
	"github.com/Skotchmaster/incident_desk/internal/policy"
	"github.com/Skotchmaster/incident_desk/internal/service"
)

const userKey = "auth.user"

type Authenticator interface {
	Authenticate(ctx context.Context, accessToken string) (*models.User, error)
}

type Middleware struct {
	Auth Authenticator
}

func New(a Authenticator) *Middleware {
	return &Middleware{Auth: a}
}

type ValidatorFunc func(user *models.User) error

func (m *Middleware) RequireAuth(next echo.HandlerFunc) echo.HandlerFunc {
	return m.requireAuthWithValidator(next, nil)
}

// RequireAction authenticates the request and checks the caller's role
// against the action. Ownership checks stay with the service.
func (m *Middleware) RequireAction(action policy.Action) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return m.requireAuthWithValidator(next, func(user *models.User) error {
			if !policy.Allows(SubjectOf(user), action) {
				return echo.NewHTTPError(http.StatusForbidden, "access denied")
			}
			return nil
		})
	}
}

func (m *Middleware) requireAuthWithValidator(next echo.HandlerFunc, validator ValidatorFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		l := logging.FromContext(ctx).With("middleware", "auth")

		token := BearerToken(c.Request())
		if token == "" {
			return echo.NewHTTPError(http.StatusUnauthorized, "missing access token")
		}

		user, err := m.Auth.Authenticate(ctx, token)
		if err != nil {
			switch {
			case errors.Is(err, service.ErrBlocked):
				l.Warn("auth_rejected", "status", 403, "reason", "account is blocked")
				return echo.NewHTTPError(http.StatusForbidden, "account is blocked")
			case errors.Is(err, service.ErrUnauthenticated):
				l.Warn("auth_rejected", "status", 401, "reason", "invalid access token", "error", err)
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid access token")
			default:
				l.Error("auth_error", "status", 500, "error", err)
				return echo.NewHTTPError(http.StatusInternalServerError, "internal server error")
			}
		}

		if validator != nil {
			if validationErr := validator(user); validationErr != nil {
				l.Warn("auth_rejected", "status", 403, "reason", "role too low", "user_id", user.ID, "role", user.Role)
				return validationErr
			}
		}

		SetUser(c, user)
		return next(c)
	}
}

func BearerToken(r *http.Request) string {
	h := r.Header.Get(echo.HeaderAuthorization)
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}

// SetUser stores the authenticated user on the request.
func SetUser(c echo.Context, user *models.User) {
	c.Set(userKey, user)
	req := c.Request()
	l := logging.FromContext(req.Context()).With("user_id", user.ID.String())
	c.SetRequest(req.WithContext(logging.IntoContext(req.Context(), l)))
}

// UserFrom returns the user set by the middleware, or nil on public routes.
func UserFrom(c echo.Context) *models.User {
	u, _ := c.Get(userKey).(*models.User)
	return u
}

func SubjectOf(u *models.User) policy.Subject {
	if u == nil {
		return policy.Subject{}
	}
	return policy.Subject{ID: u.ID, Role: u.Role}
}

func SubjectFrom(c echo.Context) policy.Subject {
	return SubjectOf(UserFrom(c))
}
