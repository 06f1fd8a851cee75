// Package storefront is the browser-facing gateway: it hosts the login forms,
// the per-browser Token Store and the route guards of the jewelry store.
package storefront

import (
	"log"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/ghassenk/jewelstore/internal/apiclient"
	"github.com/ghassenk/jewelstore/internal/challenge"
	"github.com/ghassenk/jewelstore/internal/config"
	"github.com/ghassenk/jewelstore/internal/guard"
	"github.com/ghassenk/jewelstore/internal/models"
	"github.com/ghassenk/jewelstore/internal/session"
)

const (
	// CookieName holds the browser session id. It has no Max-Age so it dies
	// with the browser session.
	CookieName = "sid"

	ctxBrowser = "browser"
	healthPath = "/healthz"
)

// Server wires the gateway's routes.
type Server struct {
	cfg       *config.StorefrontConfig
	client    *apiclient.Client
	registry  *Registry
	scheduler challenge.Scheduler
	logger    *log.Logger
	upgrader  websocket.Upgrader
}

// Option customises a Server.
type Option func(*Server)

// WithScheduler replaces the wall-clock scheduler of the login forms.
func WithScheduler(s challenge.Scheduler) Option {
	return func(srv *Server) { srv.scheduler = s }
}

// New creates a gateway server.
func New(cfg *config.StorefrontConfig, client *apiclient.Client, registry *Registry, logger *log.Logger, opts ...Option) *Server {
	if logger == nil {
		logger = log.Default()
	}
	s := &Server{
		cfg:       cfg,
		client:    client,
		registry:  registry,
		scheduler: challenge.RealScheduler{},
		logger:    logger,
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Echo builds the router.
func (s *Server) Echo() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Middleware
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     s.cfg.AllowedOrigins,
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodDelete},
		AllowHeaders:     []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept},
		AllowCredentials: true,
	}))
	e.Use(s.browserSession)

	e.GET(healthPath, func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})

	// Login forms
	e.GET("/auth/:flow", s.flowSnapshot)
	e.DELETE("/auth/:flow", s.flowTeardown)
	e.POST("/auth/:flow/submit", s.flowSubmit)
	e.POST("/auth/:flow/digit", s.flowDigit)
	e.POST("/auth/:flow/key", s.flowKey)
	e.POST("/auth/:flow/paste", s.flowPaste)
	e.POST("/auth/:flow/resend", s.flowResend)
	e.POST("/auth/:flow/verify", s.flowVerify)
	e.POST("/auth/:flow/reset", s.flowReset)

	// Session
	e.POST("/auth/logout", s.logout)
	e.GET("/session", s.sessionInfo)
	e.GET("/ws/session", s.sessionSocket)

	// Public views
	e.GET("/", s.view("home"))
	e.GET("/catalog", s.view("catalog"))
	e.GET("/login", s.view("login"))
	e.GET("/admin-login", s.view("admin-login"))

	// Customer views
	userOnly := guard.Middleware(guard.NewUserGuard(), storeOf)
	e.GET("/cart", s.view("cart"), userOnly)
	e.GET("/wishlist", s.view("wishlist"), userOnly)
	e.GET("/orders", s.view("orders"), userOnly)

	// Back-office
	adminGuard := guard.NewAdminGuard()
	adminGuard.Verifier = s.client
	admin := e.Group("/admin", guard.Middleware(adminGuard, storeOf))
	admin.GET("/forgot-password", s.view("admin-forgot-password"))
	admin.GET("/home", s.view("admin-home"))
	admin.GET("/*", s.view("admin"))

	return e
}

// browserSession attaches the Browser named by a well-formed sid cookie.
// Requests without one stay anonymous until they open a login form or a
// websocket, see open.
func (s *Server) browserSession(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if c.Path() == healthPath {
			return next(c)
		}
		if ck, err := c.Cookie(CookieName); err == nil {
			if _, err := uuid.Parse(ck.Value); err == nil {
				c.Set(ctxBrowser, s.registry.Open(c.Request().Context(), ck.Value))
			}
		}
		return next(c)
	}
}

// open returns the request's Browser, issuing a new session id and cookie
// when there is none.
func (s *Server) open(c echo.Context) *Browser {
	if b := browserOf(c); b != nil {
		return b
	}
	sid := uuid.NewString()
	c.SetCookie(&http.Cookie{
		Name:     CookieName,
		Value:    sid,
		Path:     "/",
		HttpOnly: true,
		Secure:   s.cfg.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
	b := s.registry.Open(c.Request().Context(), sid)
	c.Set(ctxBrowser, b)
	return b
}

func browserOf(c echo.Context) *Browser {
	b, _ := c.Get(ctxBrowser).(*Browser)
	return b
}

func storeOf(c echo.Context) session.Store {
	if b := browserOf(c); b != nil {
		return b.Store
	}
	return nil
}

type sessionResponse struct {
	IsLoggedIn bool        `json:"isLoggedIn"`
	Role       models.Role `json:"role,omitempty"`
	Email      string      `json:"email,omitempty"`
}

func (s *Server) describe(c echo.Context) sessionResponse {
	ctx := c.Request().Context()
	b := browserOf(c)
	if b == nil {
		return sessionResponse{}
	}
	resp := sessionResponse{IsLoggedIn: b.Auth.Refresh(ctx)}
	if rec, ok := b.Store.Current(ctx); ok {
		resp.Email = rec.Email
		if role, ok := b.Store.CurrentRole(ctx); ok {
			resp.Role = role
		}
	}
	return resp
}

// GET /session
func (s *Server) sessionInfo(c echo.Context) error {
	return c.JSON(http.StatusOK, s.describe(c))
}

// POST /auth/logout
func (s *Server) logout(c echo.Context) error {
	b := browserOf(c)
	if b == nil {
		return c.JSON(http.StatusOK, sessionResponse{})
	}
	// Forms go first so an in-flight verify cannot store a session after
	// it has been cleared.
	for _, flow := range []challenge.Flow{challenge.FlowUserLogin, challenge.FlowAdminLogin, challenge.FlowAdminReset} {
		b.Teardown(flow)
	}
	if err := b.Auth.SignOut(c.Request().Context(), s.client); err != nil {
		return c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: "logout_failed", Message: models.FallbackMessage})
	}
	return c.JSON(http.StatusOK, s.describe(c))
}

type viewResponse struct {
	View    string          `json:"view"`
	Path    string          `json:"path"`
	Session sessionResponse `json:"session"`
}

// view renders a page descriptor. Page rendering itself lives in the frontend.
func (s *Server) view(name string) echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.JSON(http.StatusOK, viewResponse{
			View:    name,
			Path:    c.Request().URL.Path,
			Session: s.describe(c),
		})
	}
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, o := range s.cfg.AllowedOrigins {
		if o == "*" || o == origin {
			return true
		}
	}
	return origin == "http://"+r.Host || origin == "https://"+r.Host
}
