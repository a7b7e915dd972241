package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Skotchmaster/incident_desk/internal/models"
	"github.com/Skotchmaster/incident_desk/internal/transport"
)

func TestAuditService_List(t *testing.T) {
	r := newTestRepo(t)
	svc := &AuditService{Repo: r}
	ctx := context.Background()

	admin := seedUser(t, r, "admin@test.com", models.RoleAdmin)
	user := seedUser(t, r, "user@test.com", models.RoleUser)

	days := []time.Time{
		time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC),
		time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 1, 3, 9, 0, 0, 0, time.UTC),
	}
	for _, ts := range days {
		require.NoError(t, r.CreateAudit(ctx, &models.AuditLog{
			Action: models.ActionCreate, PerformedByID: admin.ID,
			TargetType: models.TargetIncident, TargetID: "x", Timestamp: ts,
		}))
	}

	_, err := svc.List(ctx, user, transport.AuditQuery{})
	assert.ErrorIs(t, err, ErrForbidden)

	got, err := svc.List(ctx, admin, transport.AuditQuery{StartDate: "2024-01-02", EndDate: "2024-01-02"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.True(t, got[0].Timestamp.Equal(days[1]))

	got, err = svc.List(ctx, admin, transport.AuditQuery{StartDate: "2024-01-01T00:00:00Z", TargetType: "Incident", Action: "CREATE"})
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.True(t, got[0].Timestamp.Equal(days[2]))

	for _, q := range []transport.AuditQuery{
		{TargetType: "Order"},
		{Action: "PATCH"},
		{StartDate: "01/01/2024"},
		{StartDate: "2024-01-03", EndDate: "2024-01-01"},
	} {
		_, err := svc.List(ctx, admin, q)
		assert.ErrorIs(t, err, ErrValidation, "%+v", q)
	}
}
