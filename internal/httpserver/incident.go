package httpserver

import (
	"context"
	"fmt"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/incident_desk/internal/audit"
	"github.com/Skotchmaster/incident_desk/internal/logging"
	authmw "github.com/Skotchmaster/incident_desk/internal/middleware/auth"
	"github.com/Skotchmaster/incident_desk/internal/service"
	"github.com/Skotchmaster/incident_desk/internal/transport"
)

type EvidenceStore interface {
	SaveAll(ctx context.Context, files []*multipart.FileHeader) ([]string, error)
	Remove(ctx context.Context, refs []string) error
}

type IncidentHTTP struct {
	Svc      *service.IncidentService
	Evidence EvidenceStore
}

func evidenceFiles(c echo.Context) ([]*multipart.FileHeader, error) {
	if !strings.HasPrefix(c.Request().Header.Get(echo.HeaderContentType), echo.MIMEMultipartForm) {
		return nil, nil
	}
	form, err := c.MultipartForm()
	if err != nil {
		return nil, fmt.Errorf("%w: invalid multipart form", service.ErrValidation)
	}
	return form.File["evidence"], nil
}

// Create accepts JSON or a multipart form carrying up to five "evidence"
// files. Stored files are removed again when the incident is not created.
func (h *IncidentHTTP) Create(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "incident.create")

	var req transport.CreateIncidentRequest
	if err := bind(c, &req); err != nil {
		return fail(l, "incident_create_error", err)
	}

	files, err := evidenceFiles(c)
	if err != nil {
		return fail(l, "incident_create_error", err)
	}

	var refs []string
	if len(files) > 0 {
		if h.Evidence == nil {
			return fail(l, "incident_create_error", fmt.Errorf("%w: evidence uploads are disabled", service.ErrValidation))
		}
		refs, err = h.Evidence.SaveAll(ctx, files)
		if err != nil {
			return fail(l, "incident_create_error", err)
		}
	}

	inc, err := h.Svc.Create(ctx, authmw.SubjectFrom(c), req, refs)
	if err != nil {
		if len(refs) > 0 {
			if rmErr := h.Evidence.Remove(ctx, refs); rmErr != nil {
				l.Warn("evidence_remove_failed", "error", rmErr)
			}
		}
		return fail(l, "incident_create_error", err)
	}

	audit.Annotate(c, inc.ID.String())
	l.Info("incident_create_success", "incident_id", inc.ID, "evidence", len(refs))
	return c.JSON(http.StatusCreated, transport.NewIncidentResponse(inc))
}

func (h *IncidentHTTP) List(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "incident.list")

	var q transport.ListIncidentsQuery
	if err := bindQuery(c, &q); err != nil {
		return fail(l, "incident_list_error", err)
	}

	items, err := h.Svc.List(ctx, authmw.SubjectFrom(c), q)
	if err != nil {
		return fail(l, "incident_list_error", err)
	}
	return c.JSON(http.StatusOK, transport.NewIncidentList(items))
}

func (h *IncidentHTTP) Get(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "incident.get")

	inc, err := h.Svc.Get(ctx, authmw.SubjectFrom(c), c.Param("id"))
	if err != nil {
		return fail(l, "incident_get_error", err)
	}
	return c.JSON(http.StatusOK, transport.NewIncidentResponse(inc))
}

func (h *IncidentHTTP) Update(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "incident.update")

	var req transport.UpdateIncidentRequest
	if err := bind(c, &req); err != nil {
		return fail(l, "incident_update_error", err)
	}

	inc, err := h.Svc.Update(ctx, authmw.SubjectFrom(c), c.Param("id"), req)
	if err != nil {
		return fail(l, "incident_update_error", err)
	}

	audit.AnnotateDetail(c, "body", req)
	l.Info("incident_update_success", "incident_id", inc.ID, "status", inc.Status)
	return c.JSON(http.StatusOK, transport.NewIncidentResponse(inc))
}

func (h *IncidentHTTP) Delete(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "incident.delete")

	if err := h.Svc.Delete(ctx, authmw.SubjectFrom(c), c.Param("id")); err != nil {
		return fail(l, "incident_delete_error", err)
	}

	l.Info("incident_delete_success", "incident_id", c.Param("id"))
	return c.JSON(http.StatusOK, echo.Map{"message": "incident deleted"})
}

func (h *IncidentHTTP) BulkUpdate(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "incident.bulk_update")

	var req transport.BulkUpdateRequest
	if err := bind(c, &req); err != nil {
		return fail(l, "incident_bulk_update_error", err)
	}

	results, err := h.Svc.BulkUpdateStatus(ctx, authmw.SubjectFrom(c), req)
	if err != nil {
		return fail(l, "incident_bulk_update_error", err)
	}

	updated := 0
	for _, r := range results {
		if r.Outcome == transport.OutcomeUpdated {
			updated++
		}
	}

	audit.AnnotateDetail(c, "ids", req.IDs)
	audit.AnnotateDetail(c, "status", req.Status)
	audit.AnnotateDetail(c, "results", results)
	l.Info("incident_bulk_update_success", "requested", len(req.IDs), "updated", updated)
	return c.JSON(http.StatusOK, transport.BulkUpdateResponse{
		Message: fmt.Sprintf("%d of %d incidents updated", updated, len(req.IDs)),
		Results: results,
	})
}

func (h *IncidentHTTP) Analytics(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "incident.analytics")

	stats, err := h.Svc.Analytics(ctx, authmw.SubjectFrom(c))
	if err != nil {
		return fail(l, "incident_analytics_error", err)
	}
	return c.JSON(http.StatusOK, stats)
}
