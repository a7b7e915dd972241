package httpserver

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/incident_desk/internal/audit"
	"github.com/Skotchmaster/incident_desk/internal/logging"
	authmw "github.com/Skotchmaster/incident_desk/internal/middleware/auth"
	"github.com/Skotchmaster/incident_desk/internal/service"
	"github.com/Skotchmaster/incident_desk/internal/transport"
)

type UserHTTP struct {
	Svc *service.UserService
}

func (h *UserHTTP) List(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "user.list")

	users, err := h.Svc.List(ctx, authmw.SubjectFrom(c))
	if err != nil {
		return fail(l, "user_list_error", err)
	}
	return c.JSON(http.StatusOK, users)
}

func (h *UserHTTP) Update(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "user.update")

	var req transport.UpdateUserRequest
	if err := bind(c, &req); err != nil {
		return fail(l, "user_update_error", err)
	}

	user, err := h.Svc.Update(ctx, authmw.SubjectFrom(c), c.Param("id"), req)
	if err != nil {
		return fail(l, "user_update_error", err)
	}

	audit.AnnotateDetail(c, "body", req)
	l.Info("user_update_success", "target_user_id", user.ID)
	return c.JSON(http.StatusOK, user)
}

func (h *UserHTTP) Delete(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "user.delete")

	if err := h.Svc.Delete(ctx, authmw.SubjectFrom(c), c.Param("id")); err != nil {
		return fail(l, "user_delete_error", err)
	}

	l.Info("user_delete_success", "target_user_id", c.Param("id"))
	return c.JSON(http.StatusOK, echo.Map{"message": "user deleted"})
}
