package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"

	"github.com/Skotchmaster/incident_desk/internal/audit"
	pkgdb "github.com/Skotchmaster/incident_desk/internal/db"
	"github.com/Skotchmaster/incident_desk/internal/hash"
	authmw "github.com/Skotchmaster/incident_desk/internal/middleware/auth"
	"github.com/Skotchmaster/incident_desk/internal/models"
	"github.com/Skotchmaster/incident_desk/internal/realtime"
	"github.com/Skotchmaster/incident_desk/internal/repo"
	"github.com/Skotchmaster/incident_desk/internal/service"
	"github.com/Skotchmaster/incident_desk/internal/storage"
	"github.com/Skotchmaster/incident_desk/internal/tokens"
)

type testEnv struct {
	T        *testing.T
	E        *echo.Echo
	Repo     *repo.GormRepo
	Tokens   *tokens.Issuer
	Registry *realtime.Registry
	Storage  *storage.Local
}

type testOptions struct {
	rateLimit int
}

func newTestEnv(t *testing.T, opts ...testOptions) *testEnv {
	t.Helper()
	var o testOptions
	if len(opts) > 0 {
		o = opts[0]
	}

	gdb, err := pkgdb.Open(context.Background(), pkgdb.DriverSQLite, ":memory:")
	require.NoError(t, err)
	require.NoError(t, pkgdb.Migrate(gdb))

	r := &repo.GormRepo{DB: gdb}
	issuer := &tokens.Issuer{
		AccessSecret:  []byte("test-jwt-secret"),
		RefreshSecret: []byte("test-refresh-secret"),
		AccessTTL:     15 * time.Minute,
		RefreshTTL:    7 * 24 * time.Hour,
	}
	store, err := storage.NewLocal(t.TempDir(), "/uploads", 1<<20)
	require.NoError(t, err)

	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	registry := realtime.NewRegistry(16, nil)
	router := &realtime.Router{Registry: registry, Logger: logger}
	recorder := audit.NewRecorder(logger, nil, audit.StoreSink(r))

	authSvc := &service.AuthService{Repo: r, Tokens: issuer}

	e := echo.New()
	Register(e, &Deps{
		AuthHandler:     &AuthHTTP{Svc: authSvc},
		IncidentHandler: &IncidentHTTP{Svc: &service.IncidentService{Repo: r, Notifier: router, Evidence: store}, Evidence: store},
		UserHandler:     &UserHTTP{Svc: &service.UserService{Repo: r}},
		AuditHandler:    &AuditHTTP{Svc: &service.AuditService{Repo: r}},
		HealthHandler:   &HealthHTTP{DB: gdb},
		RealtimeHandler: &realtime.Handler{Registry: registry, Auth: authSvc},
		AuthMW:          authmw.New(authSvc),
		Recorder:        recorder,
		UploadDir:       store.Dir,
		RateLimit:       o.rateLimit,
		RateWindow:      time.Minute,
	})

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = recorder.Close(ctx)
		if sqlDB, err := gdb.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	return &testEnv{T: t, E: e, Repo: r, Tokens: issuer, Registry: registry, Storage: store}
}

// seed creates a user with password "password1" and returns it with an
// access token.
func (env *testEnv) seed(email string, role models.Role) (*models.User, string) {
	env.T.Helper()
	pw, err := hash.HashPassword("password1")
	require.NoError(env.T, err)

	u := &models.User{Name: email, Email: email, PasswordHash: pw, Role: role}
	require.NoError(env.T, env.Repo.CreateUserIfNotExists(context.Background(), u))

	token, _, err := env.Tokens.IssueAccess(u.ID.String(), string(u.Role))
	require.NoError(env.T, err)
	return u, token
}

func (env *testEnv) do(method, path, token string, body any) *httptest.ResponseRecorder {
	env.T.Helper()
	var rdr io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(env.T, err)
		rdr = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, rdr)
	if body != nil {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	if token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	env.E.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func (env *testEnv) createIncident(token, title string) uuid.UUID {
	env.T.Helper()
	rec := env.do(http.MethodPost, "/api/incidents", token, map[string]any{
		"title":       title,
		"description": "suspicious email with a link",
		"category":    "Phishing",
		"priority":    "High",
		"date":        "2024-03-01",
	})
	require.Equal(env.T, http.StatusCreated, rec.Code, rec.Body.String())
	body := decode[map[string]any](env.T, rec)
	id, err := uuid.Parse(body["id"].(string))
	require.NoError(env.T, err)
	return id
}

// waitForAudit polls until n entries matching action exist.
func (env *testEnv) waitForAudit(action models.AuditAction, n int) []models.AuditLog {
	env.T.Helper()
	var found []models.AuditLog
	require.Eventually(env.T, func() bool {
		entries, err := env.Repo.ListAudit(context.Background(), repo.AuditFilter{Action: &action})
		if err != nil {
			return false
		}
		found = entries
		return len(entries) >= n
	}, 3*time.Second, 20*time.Millisecond)
	return found
}

func drain(c *realtime.Conn) []realtime.Message {
	var out []realtime.Message
	for {
		select {
		case m := <-c.Messages():
			out = append(out, m)
		default:
			return out
		}
	}
}
