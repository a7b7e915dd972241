package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	pkgdb "github.com/Skotchmaster/incident_desk/internal/db"
	"github.com/Skotchmaster/incident_desk/internal/models"
	"github.com/Skotchmaster/incident_desk/internal/policy"
	"github.com/Skotchmaster/incident_desk/internal/repo"
	"github.com/Skotchmaster/incident_desk/internal/tokens"
)

func newTestRepo(t *testing.T) *repo.GormRepo {
	t.Helper()

	gdb, err := pkgdb.Open(context.Background(), pkgdb.DriverSQLite, ":memory:")
	require.NoError(t, err)
	require.NoError(t, pkgdb.Migrate(gdb))
	t.Cleanup(func() {
		if sqlDB, err := gdb.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return &repo.GormRepo{DB: gdb}
}

func newTestIssuer() *tokens.Issuer {
	return &tokens.Issuer{
		AccessSecret:  []byte("test-jwt-secret"),
		RefreshSecret: []byte("test-refresh-secret"),
		AccessTTL:     15 * time.Minute,
		RefreshTTL:    7 * 24 * time.Hour,
	}
}

func seedUser(t *testing.T, r *repo.GormRepo, email string, role models.Role) policy.Subject {
	t.Helper()
	u := &models.User{Name: email, Email: email, PasswordHash: "x", Role: role}
	require.NoError(t, r.CreateUserIfNotExists(context.Background(), u))
	return policy.Subject{ID: u.ID, Role: u.Role}
}

type recordingNotifier struct {
	mu      sync.Mutex
	created []models.Incident
	updated []models.Incident
}

func (n *recordingNotifier) NotifyCreated(_ context.Context, inc *models.Incident) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.created = append(n.created, *inc)
}

func (n *recordingNotifier) NotifyUpdated(_ context.Context, inc *models.Incident) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.updated = append(n.updated, *inc)
}

type recordingRemover struct {
	removed []string
}

func (r *recordingRemover) Remove(_ context.Context, refs []string) error {
	r.removed = append(r.removed, refs...)
	return nil
}
