// Package guard decides whether a navigation may proceed based on the stored
// session, and redirects to the matching login view when it may not.
package guard

import (
	"context"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/ghassenk/jewelstore/internal/models"
	"github.com/ghassenk/jewelstore/internal/session"
)

const (
	AdminLoginPath = "/admin-login"
	UserLoginPath  = "/login"
)

// Decision is the outcome of a guard check. Redirect is set only when Allow
// is false.
type Decision struct {
	Allow    bool
	Redirect string
}

func allow() Decision { return Decision{Allow: true} }

func redirect(path string) Decision { return Decision{Redirect: path} }

// Guard checks a navigation target against the session.
type Guard interface {
	Check(ctx context.Context, path string, store session.Store) Decision
}

// Verifier re-checks a session token with the identity service.
type Verifier interface {
	Validate(ctx context.Context, token string) (*models.TokenValidationResponse, error)
}

// AdminGuard admits ADMIN and SUPER_ADMIN sessions. PublicPaths are always
// admitted so a locked-out admin can still reach them.
//
// The stored role is decoded without a signature check. When Verifier is set,
// a session that passes the local check must also be confirmed by the
// identity service (signature, expiry, revocation, role); any failure to
// confirm is a rejection.
type AdminGuard struct {
	LoginPath   string
	PublicPaths []string
	Verifier    Verifier
}

// NewAdminGuard returns the guard for the admin area.
func NewAdminGuard() AdminGuard {
	return AdminGuard{
		LoginPath:   AdminLoginPath,
		PublicPaths: []string{"/admin/forgot-password"},
	}
}

func (g AdminGuard) Check(ctx context.Context, path string, store session.Store) Decision {
	for _, p := range g.PublicPaths {
		if samePath(path, p) {
			return allow()
		}
	}
	login := g.LoginPath
	if login == "" {
		login = AdminLoginPath
	}
	if store == nil || !store.IsAuthenticated(ctx) {
		return redirect(login)
	}
	role, ok := store.CurrentRole(ctx)
	if !ok || !role.IsAdmin() {
		return redirect(login)
	}
	if g.Verifier != nil {
		rec, _ := store.Current(ctx)
		resp, err := g.Verifier.Validate(ctx, rec.Token)
		if err != nil || !resp.Valid || !resp.Role.IsAdmin() {
			return redirect(login)
		}
	}
	return allow()
}

// UserGuard admits sessions whose role is exactly Role.
type UserGuard struct {
	Role      models.Role
	LoginPath string
}

// NewUserGuard returns the guard for customer-only views.
func NewUserGuard() UserGuard {
	return UserGuard{Role: models.RoleUser, LoginPath: UserLoginPath}
}

func (g UserGuard) Check(ctx context.Context, _ string, store session.Store) Decision {
	login := g.LoginPath
	if login == "" {
		login = UserLoginPath
	}
	want := g.Role
	if want == "" {
		want = models.RoleUser
	}
	if store == nil || !store.IsAuthenticated(ctx) {
		return redirect(login)
	}
	role, ok := store.CurrentRole(ctx)
	if !ok || role != want {
		return redirect(login)
	}
	return allow()
}

// StoreResolver returns the Token Store of the browser session behind c.
type StoreResolver func(c echo.Context) session.Store

// Middleware runs g before the wrapped handler and answers 303 See Other
// towards the login view on rejection.
func Middleware(g Guard, resolve StoreResolver) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			d := g.Check(c.Request().Context(), c.Request().URL.Path, resolve(c))
			if !d.Allow {
				return c.Redirect(http.StatusSeeOther, d.Redirect)
			}
			return next(c)
		}
	}
}

func samePath(a, b string) bool {
	return strings.TrimSuffix(a, "/") == strings.TrimSuffix(b, "/")
}
