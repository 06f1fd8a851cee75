package guard

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ghassenk/jewelstore/internal/models"
	"github.com/ghassenk/jewelstore/internal/session"
	"github.com/ghassenk/jewelstore/internal/token"
)

func newStore(t *testing.T, role models.Role) *session.TokenStore {
	t.Helper()
	s := session.NewTokenStore(session.NewMemoryStorage(), log.New(io.Discard, "", 0))
	if role == "" {
		return s
	}
	signed, _, err := token.NewIssuer("secret", time.Hour).Issue(&models.User{ID: "1", Email: "a@b.com", Role: role})
	require.NoError(t, err)
	require.NoError(t, s.Login(context.Background(), session.Record{Token: signed, Role: role, Email: "a@b.com"}))
	return s
}

func TestAdminGuard(t *testing.T) {
	ctx := context.Background()
	g := NewAdminGuard()

	tests := []struct {
		name string
		role models.Role
		path string
		want Decision
	}{
		{"anonymous", "", "/admin/home", Decision{Redirect: "/admin-login"}},
		{"user role", models.RoleUser, "/admin/home", Decision{Redirect: "/admin-login"}},
		{"admin", models.RoleAdmin, "/admin/home", Decision{Allow: true}},
		{"super admin", models.RoleSuperAdmin, "/admin/orders", Decision{Allow: true}},
		{"public escape path", "", "/admin/forgot-password", Decision{Allow: true}},
		{"public escape path with slash", models.RoleUser, "/admin/forgot-password/", Decision{Allow: true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, g.Check(ctx, tt.path, newStore(t, tt.role)))
		})
	}
}

type fakeVerifier struct {
	resp  *models.TokenValidationResponse
	err   error
	calls int
}

func (f *fakeVerifier) Validate(_ context.Context, _ string) (*models.TokenValidationResponse, error) {
	f.calls++
	return f.resp, f.err
}

func TestAdminGuard_Verifier(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name     string
		verifier *fakeVerifier
		want     Decision
	}{
		{"confirmed", &fakeVerifier{resp: &models.TokenValidationResponse{Valid: true, Role: models.RoleAdmin}}, Decision{Allow: true}},
		{"revoked", &fakeVerifier{resp: &models.TokenValidationResponse{Valid: false}}, Decision{Redirect: "/admin-login"}},
		{"role downgraded", &fakeVerifier{resp: &models.TokenValidationResponse{Valid: true, Role: models.RoleUser}}, Decision{Redirect: "/admin-login"}},
		{"service down", &fakeVerifier{err: errors.New("connection refused")}, Decision{Redirect: "/admin-login"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := NewAdminGuard()
			g.Verifier = tt.verifier
			assert.Equal(t, tt.want, g.Check(ctx, "/admin/home", newStore(t, models.RoleAdmin)))
			assert.Equal(t, 1, tt.verifier.calls)
		})
	}
}

func TestAdminGuard_VerifierSkippedWithoutAdminSession(t *testing.T) {
	ctx := context.Background()
	v := &fakeVerifier{resp: &models.TokenValidationResponse{Valid: true, Role: models.RoleAdmin}}
	g := NewAdminGuard()
	g.Verifier = v

	assert.Equal(t, Decision{Allow: true}, g.Check(ctx, "/admin/forgot-password", newStore(t, "")))
	assert.Equal(t, Decision{Redirect: "/admin-login"}, g.Check(ctx, "/admin/home", newStore(t, models.RoleUser)))
	assert.Equal(t, Decision{Redirect: "/admin-login"}, g.Check(ctx, "/admin/home", nil))
	assert.Zero(t, v.calls)
}

func TestAdminGuard_UndecodableToken(t *testing.T) {
	ctx := context.Background()
	s := session.NewTokenStore(session.NewMemoryStorage(), log.New(io.Discard, "", 0))
	require.NoError(t, s.Login(ctx, session.Record{Token: "garbage", Role: models.RoleAdmin}))

	// The role is read from the token, not from the stored role key.
	assert.Equal(t, Decision{Redirect: "/admin-login"}, NewAdminGuard().Check(ctx, "/admin/home", s))
}

func TestUserGuard(t *testing.T) {
	ctx := context.Background()
	g := NewUserGuard()

	assert.Equal(t, Decision{Redirect: "/login"}, g.Check(ctx, "/cart", newStore(t, "")))
	assert.Equal(t, Decision{Redirect: "/login"}, g.Check(ctx, "/cart", newStore(t, models.RoleAdmin)))
	assert.Equal(t, Decision{Allow: true}, g.Check(ctx, "/cart", newStore(t, models.RoleUser)))
	assert.Equal(t, Decision{Redirect: "/login"}, g.Check(ctx, "/cart", nil))

	custom := UserGuard{Role: models.RoleUser, LoginPath: "/signin"}
	assert.Equal(t, Decision{Redirect: "/signin"}, custom.Check(ctx, "/cart", newStore(t, "")))
}

func TestMiddleware(t *testing.T) {
	e := echo.New()
	var store session.Store
	e.GET("/admin/home", func(c echo.Context) error {
		return c.String(http.StatusOK, "admin home")
	}, Middleware(NewAdminGuard(), func(echo.Context) session.Store { return store }))

	store = newStore(t, "")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/home", nil))
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/admin-login", rec.Header().Get(echo.HeaderLocation))

	store = newStore(t, models.RoleAdmin)
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/home", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "admin home", rec.Body.String())
}
