package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Skotchmaster/incident_desk/internal/models"
	"github.com/Skotchmaster/incident_desk/internal/realtime"
	"github.com/Skotchmaster/incident_desk/internal/transport"
)

func TestIncident_CreateAuditsNewID(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	reporter, token := env.seed("reporter@example.com", models.RoleUser)

	id := env.createIncident(token, "Phishing mail")

	entries := env.waitForAudit(models.ActionCreate, 1)
	require.Len(t, entries, 1)
	assert.Equal(t, id.String(), entries[0].TargetID)
	assert.Equal(t, reporter.ID, entries[0].PerformedByID)
	assert.Equal(t, models.TargetIncident, entries[0].TargetType)

	var details map[string]any
	require.NoError(t, json.Unmarshal([]byte(entries[0].Details), &details))
	assert.Equal(t, http.MethodPost, details["method"])
	assert.Equal(t, "/api/incidents", details["path"])
}

func TestIncident_CreateValidation(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	_, token := env.seed("reporter@example.com", models.RoleUser)

	tests := []struct {
		name string
		body map[string]any
	}{
		{"missing title", map[string]any{"description": "d", "category": "Malware", "priority": "Low"}},
		{"unknown category", map[string]any{"title": "t", "description": "d", "category": "Spam", "priority": "Low"}},
		{"unknown priority", map[string]any{"title": "t", "description": "d", "category": "Malware", "priority": "Urgent"}},
		{"bad date", map[string]any{"title": "t", "description": "d", "category": "Malware", "priority": "Low", "date": "yesterday"}},
	}
	for _, tt := range tests {
		rec := env.do(http.MethodPost, "/api/incidents", token, tt.body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, tt.name)
	}
}

func TestIncident_CreateWithEvidence(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	_, token := env.seed("reporter@example.com", models.RoleUser)

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	for k, v := range map[string]string{
		"title":       "Ransom note",
		"description": "files encrypted on share",
		"category":    "Ransomware",
		"priority":    "Critical",
	} {
		require.NoError(t, w.WriteField(k, v))
	}
	part, err := w.CreateFormFile("evidence", "note.txt")
	require.NoError(t, err)
	_, err = part.Write([]byte("pay 1 BTC"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/incidents", &body)
	req.Header.Set(echo.HeaderContentType, w.FormDataContentType())
	req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	rec := httptest.NewRecorder()
	env.E.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	inc := decode[transport.IncidentResponse](t, rec)
	require.Len(t, inc.Evidence, 1)
	assert.Equal(t, models.StatusOpen, inc.Status)

	rec = env.do(http.MethodGet, inc.Evidence[0], "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "pay 1 BTC", rec.Body.String())
}

func TestIncident_ListScoping(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	_, aliceToken := env.seed("alice@example.com", models.RoleUser)
	_, bobToken := env.seed("bob@example.com", models.RoleUser)
	_, adminToken := env.seed("admin@example.com", models.RoleAdmin)

	aliceID := env.createIncident(aliceToken, "alice 1")
	env.createIncident(bobToken, "bob 1")
	env.createIncident(bobToken, "bob 2")

	rec := env.do(http.MethodGet, "/api/incidents", aliceToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[[]transport.IncidentResponse](t, rec)
	require.Len(t, list, 1)
	assert.Equal(t, aliceID, list[0].ID)
	require.NotNil(t, list[0].ReportedBy)
	assert.Equal(t, "alice@example.com", list[0].ReportedBy.Email)

	rec = env.do(http.MethodGet, "/api/incidents?sortBy=title", adminToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list = decode[[]transport.IncidentResponse](t, rec)
	require.Len(t, list, 3)
	assert.Equal(t, "alice 1", list[0].Title)

	rec = env.do(http.MethodGet, "/api/incidents?sortBy=severity", adminToken, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(http.MethodGet, "/api/incidents/"+aliceID.String(), bobToken, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.do(http.MethodGet, "/api/incidents/"+aliceID.String(), aliceToken, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(http.MethodGet, "/api/incidents/"+uuid.NewString(), adminToken, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(http.MethodGet, "/api/incidents/not-a-uuid", adminToken, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestIncident_UserCannotUpdate(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	_, token := env.seed("reporter@example.com", models.RoleUser)
	id := env.createIncident(token, "mine")

	rec := env.do(http.MethodPut, "/api/incidents/"+id.String(), token, map[string]string{"status": "Closed"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.do(http.MethodPut, "/api/incidents/"+uuid.NewString(), token, map[string]string{"status": "Closed"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.do(http.MethodGet, "/api/incidents/"+id.String(), token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, models.StatusOpen, decode[transport.IncidentResponse](t, rec).Status)
}

func TestIncident_ResolveNotifiesAndAudits(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	reporter, reporterToken := env.seed("reporter@example.com", models.RoleUser)
	admin, adminToken := env.seed("admin@example.com", models.RoleAdmin)
	other, _ := env.seed("other@example.com", models.RoleUser)

	reporterConn := env.Registry.Connect(reporter.ID)
	otherConn := env.Registry.Connect(other.ID)

	id := env.createIncident(reporterToken, "Malware on laptop")
	for _, c := range []*realtime.Conn{reporterConn, otherConn} {
		msgs := drain(c)
		require.Len(t, msgs, 1)
		assert.Equal(t, realtime.EventNewIncident, msgs[0].Event)
	}

	rec := env.do(http.MethodPut, "/api/incidents/"+id.String(), adminToken, map[string]string{"status": "Resolved"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resolved := decode[transport.IncidentResponse](t, rec)
	require.NotNil(t, resolved.ResolvedAt)

	reporterMsgs := drain(reporterConn)
	require.Len(t, reporterMsgs, 2)
	assert.Equal(t, realtime.EventUserIncidentUpdated, reporterMsgs[0].Event)
	assert.Equal(t, realtime.EventIncidentUpdated, reporterMsgs[1].Event)
	data, ok := reporterMsgs[0].Data.(transport.IncidentResponse)
	require.True(t, ok)
	assert.Equal(t, id, data.ID)
	assert.Equal(t, models.StatusResolved, data.Status)

	otherMsgs := drain(otherConn)
	require.Len(t, otherMsgs, 1)
	assert.Equal(t, realtime.EventIncidentUpdated, otherMsgs[0].Event)

	entries := env.waitForAudit(models.ActionUpdate, 1)
	require.Len(t, entries, 1)
	assert.Equal(t, admin.ID, entries[0].PerformedByID)
	assert.Equal(t, id.String(), entries[0].TargetID)
	assert.Contains(t, entries[0].Details, `"status":"Resolved"`)

	rec = env.do(http.MethodPut, "/api/incidents/"+id.String(), adminToken, map[string]string{"status": "In Progress"})
	require.Equal(t, http.StatusOK, rec.Code)
	rec = env.do(http.MethodPut, "/api/incidents/"+id.String(), adminToken, map[string]string{"status": "Resolved"})
	require.Equal(t, http.StatusOK, rec.Code)
	again := decode[transport.IncidentResponse](t, rec)
	require.NotNil(t, again.ResolvedAt)
	assert.True(t, resolved.ResolvedAt.Equal(*again.ResolvedAt))
}

func TestIncident_BulkUpdate(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	reporter, reporterToken := env.seed("reporter@example.com", models.RoleUser)
	_, adminToken := env.seed("admin@example.com", models.RoleAdmin)
	conn := env.Registry.Connect(reporter.ID)

	id := env.createIncident(reporterToken, "DDoS on api")
	drain(conn)
	missing := uuid.NewString()

	rec := env.do(http.MethodPost, "/api/incidents/bulk-update", reporterToken, map[string]any{
		"ids": []string{id.String()}, "status": "Closed",
	})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.do(http.MethodPost, "/api/incidents/bulk-update", adminToken, map[string]any{
		"ids": []string{id.String(), missing, "bogus"}, "status": "Resolved",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decode[transport.BulkUpdateResponse](t, rec)
	assert.Equal(t, []transport.BulkResult{
		{ID: id.String(), Outcome: transport.OutcomeUpdated},
		{ID: missing, Outcome: transport.OutcomeNotFound},
		{ID: "bogus", Outcome: transport.OutcomeInvalidID},
	}, resp.Results)

	msgs := drain(conn)
	require.Len(t, msgs, 2)
	assert.Equal(t, realtime.EventUserIncidentUpdated, msgs[0].Event)

	inc, err := env.Repo.GetIncident(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, models.StatusResolved, inc.Status)
	assert.NotNil(t, inc.ResolvedAt)

	entries := env.waitForAudit(models.ActionBulkUpdate, 1)
	assert.Empty(t, entries[0].TargetID)
	assert.Contains(t, entries[0].Details, missing)

	rec = env.do(http.MethodPost, "/api/incidents/bulk-update", adminToken, map[string]any{
		"ids": []string{id.String()}, "status": "Done",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestIncident_DeleteAndAnalytics(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	_, userToken := env.seed("reporter@example.com", models.RoleUser)
	_, adminToken := env.seed("admin@example.com", models.RoleAdmin)
	_, superToken := env.seed("super@example.com", models.RoleSuperAdmin)

	id := env.createIncident(userToken, "to delete")
	env.createIncident(userToken, "to keep")

	rec := env.do(http.MethodGet, "/api/incidents/analytics", userToken, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.do(http.MethodGet, "/api/incidents/analytics", adminToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	stats := decode[map[string]any](t, rec)
	assert.Equal(t, float64(2), stats["totalIncidents"])
	assert.Equal(t, float64(2), stats["openIncidents"])

	rec = env.do(http.MethodDelete, "/api/incidents/"+id.String(), adminToken, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.do(http.MethodDelete, "/api/incidents/"+id.String(), superToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(http.MethodDelete, "/api/incidents/"+id.String(), superToken, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	entries := env.waitForAudit(models.ActionDelete, 1)
	require.Len(t, entries, 1)
	assert.Equal(t, id.String(), entries[0].TargetID)
}
