package audit

import (
	"encoding/json"
	"net/http"

	"github.com/labstack/echo/v4"

	authmw "github.com/Skotchmaster/incident_desk/internal/middleware/auth"
	"github.com/Skotchmaster/incident_desk/internal/models"
)

const (
	targetIDKey = "audit.target_id"
	detailsKey  = "audit.details"
)

// Annotate records the id of a record the handler created, for hooks that
// cannot read it from the path.
func Annotate(c echo.Context, targetID string) {
	c.Set(targetIDKey, targetID)
}

// AnnotateDetail adds a key to the entry's details.
func AnnotateDetail(c echo.Context, key string, value any) {
	details, _ := c.Get(detailsKey).(map[string]any)
	if details == nil {
		details = map[string]any{}
		c.Set(detailsKey, details)
	}
	details[key] = value
}

// Hook records one entry after the handler has finished, and only when it
// succeeded with a 2xx response. It must run inside the auth middleware.
func (r *Recorder) Hook(action models.AuditAction, target models.TargetType) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			err := next(c)
			if err != nil {
				return err
			}

			status := c.Response().Status
			if !c.Response().Committed || status < http.StatusOK || status >= http.StatusMultipleChoices {
				return nil
			}

			actor := authmw.UserFrom(c)
			if actor == nil {
				r.logger.Warn("audit_write_failed", "reason", "no authenticated actor", "path", c.Path())
				return nil
			}

			entry := models.AuditLog{
				Action:        action,
				PerformedByID: actor.ID,
				TargetType:    target,
				TargetID:      targetID(c, action),
				Details:       details(c),
				IPAddress:     c.RealIP(),
			}
			r.Record(entry)
			return nil
		}
	}
}

func targetID(c echo.Context, action models.AuditAction) string {
	switch action {
	case models.ActionBulkUpdate:
		return ""
	case models.ActionCreate:
		id, _ := c.Get(targetIDKey).(string)
		return id
	default:
		if id, ok := c.Get(targetIDKey).(string); ok && id != "" {
			return id
		}
		return c.Param("id")
	}
}

func details(c echo.Context) string {
	out := map[string]any{
		"method": c.Request().Method,
		"path":   c.Request().URL.Path,
	}
	if extra, ok := c.Get(detailsKey).(map[string]any); ok {
		for k, v := range extra {
			out[k] = v
		}
	}
	raw, err := json.Marshal(out)
	if err != nil {
		return "{}"
	}
	return string(raw)
}
