package httpserver

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/incident_desk/internal/logging"
	authmw "github.com/Skotchmaster/incident_desk/internal/middleware/auth"
	"github.com/Skotchmaster/incident_desk/internal/service"
	"github.com/Skotchmaster/incident_desk/internal/transport"
)

type AuditHTTP struct {
	Svc *service.AuditService
}

func (h *AuditHTTP) List(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "audit.list")

	var q transport.AuditQuery
	if err := bindQuery(c, &q); err != nil {
		return fail(l, "audit_list_error", err)
	}

	entries, err := h.Svc.List(ctx, authmw.SubjectFrom(c), q)
	if err != nil {
		return fail(l, "audit_list_error", err)
	}
	return c.JSON(http.StatusOK, transport.NewAuditList(entries))
}
