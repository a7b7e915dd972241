package audit

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Skotchmaster/incident_desk/internal/metrics"
	authmw "github.com/Skotchmaster/incident_desk/internal/middleware/auth"
	"github.com/Skotchmaster/incident_desk/internal/models"
)

type memorySink struct {
	name  string
	err   error
	delay time.Duration

	mu      sync.Mutex
	entries []models.AuditLog
}

func (s *memorySink) Name() string { return s.name }

func (s *memorySink) Write(_ context.Context, entry *models.AuditLog) error {
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	if s.err != nil {
		return s.err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, *entry)
	return nil
}

func (s *memorySink) all() []models.AuditLog {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.AuditLog(nil), s.entries...)
}

func closeRecorder(t *testing.T, r *Recorder) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, r.Close(ctx))
}

func TestRecorder_FansOutAndDrains(t *testing.T) {
	primary := &memorySink{name: "database", delay: 20 * time.Millisecond}
	mirror := &memorySink{name: "elasticsearch"}
	rec := NewRecorder(nil, nil, primary, mirror)

	for i := 0; i < 5; i++ {
		rec.Record(models.AuditLog{Action: models.ActionCreate, TargetID: uuid.NewString()})
	}
	closeRecorder(t, rec)

	assert.Len(t, primary.all(), 5)
	assert.Len(t, mirror.all(), 5)
	for _, e := range primary.all() {
		assert.False(t, e.Timestamp.IsZero())
	}

	rec.Record(models.AuditLog{Action: models.ActionDelete})
	assert.Len(t, primary.all(), 5)
}

func TestRecorder_AssignsIDBeforeAnySink(t *testing.T) {
	mirror := &memorySink{name: "elasticsearch"}
	rec := NewRecorder(nil, nil, mirror)

	rec.Record(models.AuditLog{Action: models.ActionCreate})
	rec.Record(models.AuditLog{Action: models.ActionCreate})
	closeRecorder(t, rec)

	got := mirror.all()
	require.Len(t, got, 2)
	assert.NotEqual(t, uuid.Nil, got[0].ID)
	assert.NotEqual(t, uuid.Nil, got[1].ID)
	assert.NotEqual(t, got[0].ID, got[1].ID)
}

func TestRecorder_SinksShareTheEntryID(t *testing.T) {
	failing := &memorySink{name: "database", err: errors.New("connection refused")}
	mirror := &memorySink{name: "elasticsearch"}
	rec := NewRecorder(nil, nil, failing, mirror)

	preset := uuid.New()
	rec.Record(models.AuditLog{ID: preset, Action: models.ActionDelete})
	closeRecorder(t, rec)

	got := mirror.all()
	require.Len(t, got, 1)
	assert.Equal(t, preset, got[0].ID)
}

func TestRecorder_FailureIsCountedNotPropagated(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	failing := &memorySink{name: "database", err: errors.New("disk full")}
	mirror := &memorySink{name: "elasticsearch"}
	rec := NewRecorder(nil, m, failing, mirror)

	rec.Record(models.AuditLog{Action: models.ActionUpdate})
	closeRecorder(t, rec)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.AuditWriteFailures.WithLabelValues("database")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AuditWrites.WithLabelValues("elasticsearch")))
	assert.Len(t, mirror.all(), 1)
}

func TestRecorder_CloseHonoursContext(t *testing.T) {
	slow := &memorySink{name: "database", delay: 500 * time.Millisecond}
	rec := NewRecorder(nil, nil, slow)
	rec.Record(models.AuditLog{Action: models.ActionUpdate})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, rec.Close(ctx), context.DeadlineExceeded)
}

func runHook(t *testing.T, rec *Recorder, action models.AuditAction, method, path string, actor *models.User, h echo.HandlerFunc) error {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(method, path, nil)
	req.Header.Set(echo.HeaderXRealIP, "10.0.0.7")
	c := e.NewContext(req, httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues("path-id")
	if actor != nil {
		authmw.SetUser(c, actor)
	}
	return rec.Hook(action, models.TargetIncident)(h)(c)
}

func TestHook_RecordsOnlySuccess(t *testing.T) {
	sink := &memorySink{name: "database"}
	rec := NewRecorder(nil, nil, sink)
	actor := &models.User{ID: uuid.New(), Role: models.RoleAdmin}

	ok := func(c echo.Context) error { return c.JSON(http.StatusOK, echo.Map{}) }
	failed := func(c echo.Context) error { return echo.NewHTTPError(http.StatusNotFound, "incident not found") }
	rejected := func(c echo.Context) error { return c.JSON(http.StatusBadRequest, echo.Map{}) }

	require.NoError(t, runHook(t, rec, models.ActionUpdate, http.MethodPut, "/api/incidents/path-id", actor, ok))
	require.Error(t, runHook(t, rec, models.ActionUpdate, http.MethodPut, "/api/incidents/path-id", actor, failed))
	require.NoError(t, runHook(t, rec, models.ActionUpdate, http.MethodPut, "/api/incidents/path-id", actor, rejected))
	closeRecorder(t, rec)

	entries := sink.all()
	require.Len(t, entries, 1)
	e := entries[0]
	assert.Equal(t, models.ActionUpdate, e.Action)
	assert.Equal(t, actor.ID, e.PerformedByID)
	assert.Equal(t, models.TargetIncident, e.TargetType)
	assert.Equal(t, "path-id", e.TargetID)
	assert.Equal(t, "10.0.0.7", e.IPAddress)

	var details map[string]any
	require.NoError(t, json.Unmarshal([]byte(e.Details), &details))
	assert.Equal(t, "PUT", details["method"])
	assert.Equal(t, "/api/incidents/path-id", details["path"])
}

func TestHook_CreateUsesAnnotatedID(t *testing.T) {
	sink := &memorySink{name: "database"}
	rec := NewRecorder(nil, nil, sink)
	actor := &models.User{ID: uuid.New(), Role: models.RoleUser}
	created := uuid.NewString()

	h := func(c echo.Context) error {
		Annotate(c, created)
		AnnotateDetail(c, "title", "Suspicious mail")
		return c.JSON(http.StatusCreated, echo.Map{"id": created})
	}
	require.NoError(t, runHook(t, rec, models.ActionCreate, http.MethodPost, "/api/incidents", actor, h))
	closeRecorder(t, rec)

	entries := sink.all()
	require.Len(t, entries, 1)
	assert.Equal(t, created, entries[0].TargetID)
	assert.Contains(t, entries[0].Details, `"title":"Suspicious mail"`)
}

func TestHook_BulkHasEmptyTarget(t *testing.T) {
	sink := &memorySink{name: "database"}
	rec := NewRecorder(nil, nil, sink)
	actor := &models.User{ID: uuid.New(), Role: models.RoleAdmin}

	h := func(c echo.Context) error {
		AnnotateDetail(c, "ids", []string{"a", "b"})
		return c.JSON(http.StatusOK, echo.Map{})
	}
	require.NoError(t, runHook(t, rec, models.ActionBulkUpdate, http.MethodPost, "/api/incidents/bulk-update", actor, h))
	closeRecorder(t, rec)

	entries := sink.all()
	require.Len(t, entries, 1)
	assert.Empty(t, entries[0].TargetID)
	assert.Contains(t, entries[0].Details, `"ids":["a","b"]`)
}

func TestHook_SkipsWithoutActor(t *testing.T) {
	sink := &memorySink{name: "database"}
	rec := NewRecorder(nil, nil, sink)

	ok := func(c echo.Context) error { return c.NoContent(http.StatusOK) }
	require.NoError(t, runHook(t, rec, models.ActionDelete, http.MethodDelete, "/api/users/x", nil, ok))
	closeRecorder(t, rec)
	assert.Empty(t, sink.all())
}
