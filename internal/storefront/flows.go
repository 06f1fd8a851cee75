package storefront

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/ghassenk/jewelstore/internal/challenge"
	"github.com/ghassenk/jewelstore/internal/models"
)

type submitRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type digitRequest struct {
	Index int    `json:"index"`
	Value string `json:"value"`
}

type keyRequest struct {
	Index int    `json:"index"`
	Key   string `json:"key"`
}

type pasteRequest struct {
	Text string `json:"text"`
}

type verifyRequest struct {
	NewPassword     string `json:"newPassword"`
	ConfirmPassword string `json:"confirmPassword"`
}

// newMachine builds the form for flow. Its notices and navigation requests
// are pushed to the browser's websocket listeners.
func (s *Server) newMachine(b *Browser, flow challenge.Flow) (*challenge.Machine, error) {
	backend, err := s.client.Backend(flow)
	if err != nil {
		return nil, err
	}
	return challenge.New(challenge.Config{
		Flow:          flow,
		Cooldown:      s.cfg.OTPCooldown,
		Tick:          s.cfg.OTPTick,
		NavigateDelay: s.cfg.NavigateDelay,
	}, challenge.Deps{
		Backend:   backend,
		Store:     b.Store,
		Auth:      b.Auth,
		Scheduler: s.scheduler,
		Notifier: challenge.NotifierFunc(func(n challenge.Notice) {
			b.Broadcast(Event{Type: EventNotice, Flow: flow, Notice: &n})
		}),
		Navigator: challenge.NavigatorFunc(func(path string) {
			b.Broadcast(Event{Type: EventNavigate, Flow: flow, Path: path})
			// The form unmounts once the browser leaves it.
			b.Teardown(flow)
		}),
		Logger: s.logger,
	}), nil
}

// machine resolves the :flow param to the browser's open form.
func (s *Server) machine(c echo.Context) (*challenge.Machine, error) {
	flow := challenge.Flow(c.Param("flow"))
	if !flow.Valid() {
		return nil, echo.NewHTTPError(http.StatusNotFound, models.ErrorResponse{Error: "unknown_flow", Message: "Unknown login form"})
	}
	b := s.open(c)
	return b.Machine(flow, func() (*challenge.Machine, error) {
		return s.newMachine(b, flow)
	})
}

// withMachine runs fn against the form and answers with its snapshot.
// Failures surface in the snapshot's notice, not in the status code.
func (s *Server) withMachine(fn func(c echo.Context, m *challenge.Machine) error) echo.HandlerFunc {
	return func(c echo.Context) error {
		m, err := s.machine(c)
		if err != nil {
			return err
		}
		if err := fn(c, m); err != nil {
			return err
		}
		return c.JSON(http.StatusOK, m.Snapshot())
	}
}

func bad(msg string) error {
	return echo.NewHTTPError(http.StatusBadRequest, models.ErrorResponse{Error: "invalid_request", Message: msg})
}

// GET /auth/:flow
func (s *Server) flowSnapshot(c echo.Context) error {
	return s.withMachine(func(echo.Context, *challenge.Machine) error { return nil })(c)
}

// DELETE /auth/:flow
func (s *Server) flowTeardown(c echo.Context) error {
	flow := challenge.Flow(c.Param("flow"))
	if !flow.Valid() {
		return echo.NewHTTPError(http.StatusNotFound, models.ErrorResponse{Error: "unknown_flow", Message: "Unknown login form"})
	}
	if b := browserOf(c); b != nil {
		b.Teardown(flow)
	}
	return c.NoContent(http.StatusNoContent)
}

// POST /auth/:flow/submit
func (s *Server) flowSubmit(c echo.Context) error {
	return s.withMachine(func(c echo.Context, m *challenge.Machine) error {
		var req submitRequest
		if err := c.Bind(&req); err != nil {
			return bad("Invalid request body")
		}
		_ = m.Submit(c.Request().Context(), challenge.Identifier{Email: req.Email, Password: req.Password})
		return nil
	})(c)
}

// POST /auth/:flow/digit
func (s *Server) flowDigit(c echo.Context) error {
	return s.withMachine(func(c echo.Context, m *challenge.Machine) error {
		var req digitRequest
		if err := c.Bind(&req); err != nil {
			return bad("Invalid request body")
		}
		m.EnterDigit(req.Index, req.Value)
		return nil
	})(c)
}

// POST /auth/:flow/key
func (s *Server) flowKey(c echo.Context) error {
	return s.withMachine(func(c echo.Context, m *challenge.Machine) error {
		var req keyRequest
		if err := c.Bind(&req); err != nil {
			return bad("Invalid request body")
		}
		switch req.Key {
		case "Backspace":
			m.Backspace(req.Index)
		case "ArrowLeft":
			m.MoveLeft(req.Index)
		case "ArrowRight":
			m.MoveRight(req.Index)
		default:
			return bad("Unsupported key")
		}
		return nil
	})(c)
}

// POST /auth/:flow/paste
func (s *Server) flowPaste(c echo.Context) error {
	return s.withMachine(func(c echo.Context, m *challenge.Machine) error {
		var req pasteRequest
		if err := c.Bind(&req); err != nil {
			return bad("Invalid request body")
		}
		m.Paste(req.Text)
		return nil
	})(c)
}

// POST /auth/:flow/resend
func (s *Server) flowResend(c echo.Context) error {
	return s.withMachine(func(c echo.Context, m *challenge.Machine) error {
		_ = m.Resend(c.Request().Context())
		return nil
	})(c)
}

// POST /auth/:flow/verify
func (s *Server) flowVerify(c echo.Context) error {
	return s.withMachine(func(c echo.Context, m *challenge.Machine) error {
		var req verifyRequest
		if c.Request().ContentLength != 0 {
			if err := c.Bind(&req); err != nil {
				return bad("Invalid request body")
			}
		}
		if m.Snapshot().Flow == challenge.FlowAdminReset {
			m.SetNewPassword(req.NewPassword, req.ConfirmPassword)
		}
		_ = m.Verify(c.Request().Context())
		return nil
	})(c)
}

// POST /auth/:flow/reset
func (s *Server) flowReset(c echo.Context) error {
	return s.withMachine(func(c echo.Context, m *challenge.Machine) error {
		m.Reset()
		return nil
	})(c)
}
