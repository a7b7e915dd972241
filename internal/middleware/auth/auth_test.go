package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Skotchmaster/incident_desk/internal/models"
	"github.com/Skotchmaster/incident_desk/internal/policy"
	"github.com/Skotchmaster/incident_desk/internal/service"
)

type stubAuth map[string]*models.User

func (s stubAuth) Authenticate(_ context.Context, token string) (*models.User, error) {
	switch token {
	case "blocked":
		return nil, service.ErrBlocked
	}
	if u, ok := s[token]; ok {
		return u, nil
	}
	return nil, service.ErrUnauthenticated
}

func serve(t *testing.T, mw echo.MiddlewareFunc, header string) (*httptest.ResponseRecorder, echo.Context, error) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if header != "" {
		req.Header.Set(echo.HeaderAuthorization, header)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	err := mw(func(c echo.Context) error { return c.NoContent(http.StatusNoContent) })(c)
	return rec, c, err
}

func httpCode(t *testing.T, err error) int {
	t.Helper()
	he, ok := err.(*echo.HTTPError)
	require.True(t, ok, "expected *echo.HTTPError, got %T", err)
	return he.Code
}

func TestRequireAuth(t *testing.T) {
	user := &models.User{ID: uuid.New(), Role: models.RoleUser}
	m := New(stubAuth{"good": user})

	_, _, err := serve(t, m.RequireAuth, "")
	assert.Equal(t, http.StatusUnauthorized, httpCode(t, err))

	_, _, err = serve(t, m.RequireAuth, "Bearer nope")
	assert.Equal(t, http.StatusUnauthorized, httpCode(t, err))

	_, _, err = serve(t, m.RequireAuth, "Bearer blocked")
	assert.Equal(t, http.StatusForbidden, httpCode(t, err))

	rec, c, err := serve(t, m.RequireAuth, "bearer good")
	require.NoError(t, err)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, user, UserFrom(c))
	assert.Equal(t, policy.Subject{ID: user.ID, Role: models.RoleUser}, SubjectFrom(c))
}

func TestRequireAction(t *testing.T) {
	user := &models.User{ID: uuid.New(), Role: models.RoleUser}
	admin := &models.User{ID: uuid.New(), Role: models.RoleAdmin}
	m := New(stubAuth{"user": user, "admin": admin})
	mw := m.RequireAction(policy.IncidentUpdate)

	_, _, err := serve(t, mw, "Bearer user")
	assert.Equal(t, http.StatusForbidden, httpCode(t, err))

	rec, _, err := serve(t, mw, "Bearer admin")
	require.NoError(t, err)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestBearerToken(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.Empty(t, BearerToken(req))

	req.Header.Set(echo.HeaderAuthorization, "Basic abc")
	assert.Empty(t, BearerToken(req))

	req.Header.Set(echo.HeaderAuthorization, "Bearer  abc ")
	assert.Equal(t, "abc", BearerToken(req))
}
