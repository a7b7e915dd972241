package httpserver

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/incident_desk/internal/logging"
	authmw "github.com/Skotchmaster/incident_desk/internal/middleware/auth"
	"github.com/Skotchmaster/incident_desk/internal/service"
	"github.com/Skotchmaster/incident_desk/internal/transport"
)

type AuthHTTP struct {
	Svc *service.AuthService
}

func authResponse(res *service.AuthResult) transport.AuthResponse {
	return transport.AuthResponse{
		ID:           res.User.ID,
		Name:         res.User.Name,
		Email:        res.User.Email,
		Role:         res.User.Role,
		AccessToken:  res.AccessToken,
		RefreshToken: res.RefreshToken,
	}
}

func (h *AuthHTTP) Register(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth.register")

	var req transport.RegisterRequest
	if err := bind(c, &req); err != nil {
		return fail(l, "register_error", err)
	}

	res, err := h.Svc.Register(ctx, req.Name, req.Email, req.Password)
	if err != nil {
		return fail(l, "register_error", err)
	}

	l.Info("register_success", "user_id", res.User.ID)
	return c.JSON(http.StatusCreated, authResponse(res))
}

func (h *AuthHTTP) Login(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth.login")

	var req transport.LoginRequest
	if err := bind(c, &req); err != nil {
		return fail(l, "login_error", err)
	}

	res, err := h.Svc.Login(ctx, req.Email, req.Password)
	if err != nil {
		return fail(l, "login_error", err)
	}

	l.Info("login_success", "user_id", res.User.ID)
	return c.JSON(http.StatusOK, authResponse(res))
}

func (h *AuthHTTP) Refresh(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth.refresh")

	var req transport.RefreshRequest
	if err := c.Bind(&req); err != nil {
		return fail(l, "refresh_error", service.ErrValidation)
	}
	if req.RefreshToken == "" {
		l.Warn("refresh_error", "status", 401, "reason", "refresh token required")
		return echo.NewHTTPError(http.StatusUnauthorized, "refresh token required")
	}

	accessToken, _, err := h.Svc.Refresh(ctx, req.RefreshToken)
	if err != nil {
		return fail(l, "refresh_error", err)
	}

	return c.JSON(http.StatusOK, echo.Map{"accessToken": accessToken})
}

func (h *AuthHTTP) LogOut(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth.logout")

	user := authmw.UserFrom(c)
	if user == nil {
		return fail(l, "logout_error", service.ErrUnauthenticated)
	}
	if err := h.Svc.LogOut(ctx, user.ID); err != nil {
		return fail(l, "logout_error", err)
	}

	l.Info("logout_success")
	return c.JSON(http.StatusOK, echo.Map{"message": "logged out"})
}
