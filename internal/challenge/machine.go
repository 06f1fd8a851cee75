// Package challenge implements the two-step credential → OTP login form as an
// explicit state machine with a resend cooldown.
package challenge

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/ghassenk/jewelstore/internal/models"
	"github.com/ghassenk/jewelstore/internal/session"
	"github.com/ghassenk/jewelstore/internal/token"
	"github.com/ghassenk/jewelstore/internal/validate"
)

// ErrTokenDecode is returned when the verification response carries a token
// whose role cannot be read.
var ErrTokenDecode = errors.New("cannot decode session token")

// State of the challenge.
type State int

const (
	Idle State = iota
	CredentialsSubmitting
	OTPSent
	Verifying
	Verified
)

var stateNames = map[State]string{
	Idle:                  "IDLE",
	CredentialsSubmitting: "CREDENTIALS_SUBMITTING",
	OTPSent:               "OTP_SENT",
	Verifying:             "VERIFYING",
	Verified:              "VERIFIED",
}

func (s State) String() string {
	if n, ok := stateNames[s]; ok {
		return n
	}
	return fmt.Sprintf("State(%d)", int(s))
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Flow selects which identity is challenged and which fields are required.
type Flow string

const (
	FlowUserLogin  Flow = "user-login"
	FlowAdminLogin Flow = "admin-login"
	FlowAdminReset Flow = "admin-reset"
)

// Valid reports whether f is a known flow.
func (f Flow) Valid() bool {
	return f == FlowUserLogin || f == FlowAdminLogin || f == FlowAdminReset
}

// Identifier is what the user typed on the credentials step.
type Identifier struct {
	Email    string `json:"email"`
	Password string `json:"password,omitempty"`
}

// Verification is a successful verification response.
type Verification struct {
	Token   string
	Message string
}

// Backend issues and verifies OTPs for one flow.
type Backend interface {
	RequestOTP(ctx context.Context, id Identifier) (message string, err error)
	VerifyOTP(ctx context.Context, id Identifier, code, newPassword string) (Verification, error)
}

// LoginFlag is the shared logged-in flag flipped on success.
type LoginFlag interface {
	Set(loggedIn bool)
}

type NoticeKind string

const (
	NoticeInfo       NoticeKind = "info"
	NoticeValidation NoticeKind = "validation"
	NoticeBackend    NoticeKind = "backend"
	NoticeDecode     NoticeKind = "decode"
)

// Notice is a transient message for the user.
type Notice struct {
	Kind    NoticeKind `json:"kind"`
	Message string     `json:"message"`
}

type Notifier interface {
	Notify(n Notice)
}

type NotifierFunc func(Notice)

func (f NotifierFunc) Notify(n Notice) { f(n) }

type Navigator interface {
	Navigate(path string)
}

type NavigatorFunc func(string)

func (f NavigatorFunc) Navigate(path string) { f(path) }

// LandingPath is where a freshly signed-in role is sent.
func LandingPath(role models.Role) string {
	if role.IsAdmin() {
		return "/admin/home"
	}
	return "/"
}

// Config tunes a Machine.
type Config struct {
	Flow          Flow
	Cooldown      int
	Tick          time.Duration
	NavigateDelay time.Duration
	Landing       func(models.Role) string
}

// Deps are the collaborators of a Machine.
type Deps struct {
	Backend   Backend
	Store     session.Store
	Auth      LoginFlag
	Scheduler Scheduler
	Notifier  Notifier
	Navigator Navigator
	Logger    *log.Logger
}

// Snapshot is a read-only view of the machine for rendering.
type Snapshot struct {
	Flow      Flow     `json:"flow"`
	State     State    `json:"state"`
	Email     string   `json:"email,omitempty"`
	Digits    []string `json:"digits"`
	Focus     int      `json:"focus"`
	Sent      bool     `json:"sent"`
	Verified  bool     `json:"verified"`
	Cooldown  int      `json:"cooldownRemaining"`
	CanResend bool     `json:"canResend"`
	Busy      bool     `json:"busy"`
	Notice    *Notice  `json:"notice,omitempty"`
}

// Machine is one OTP challenge, owned by one form instance. Only one network
// operation runs at a time; a second one started meanwhile is dropped.
type Machine struct {
	cfg  Config
	deps Deps

	mu          sync.Mutex
	state       State
	id          Identifier
	newPassword string
	confirm     string
	input       OTPInput
	sent        bool
	verified    bool
	cooldown    int
	canResend   bool
	inFlight    bool
	closed      bool
	notice      *Notice
	ticker      Task
	tickGen     int
	navTask     Task
}

// New creates a machine in the Idle state.
func New(cfg Config, deps Deps) *Machine {
	if cfg.Flow == "" {
		cfg.Flow = FlowUserLogin
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 60
	}
	if cfg.Tick <= 0 {
		cfg.Tick = time.Second
	}
	if cfg.Landing == nil {
		cfg.Landing = LandingPath
	}
	if deps.Scheduler == nil {
		deps.Scheduler = RealScheduler{}
	}
	if deps.Logger == nil {
		deps.Logger = log.Default()
	}
	return &Machine{cfg: cfg, deps: deps}
}

// Submit sends the credentials and, on success, starts the OTP step.
func (m *Machine) Submit(ctx context.Context, id Identifier) error {
	m.mu.Lock()
	if m.closed || m.inFlight || m.state != Idle {
		m.mu.Unlock()
		return nil
	}

	id.Email = validate.NormalizeEmail(id.Email)
	if err := m.validateCredentials(id); err != nil {
		n := m.setNoticeLocked(NoticeValidation, err.Error())
		m.mu.Unlock()
		m.emit(n)
		return err
	}

	m.id = id
	m.state = CredentialsSubmitting
	m.inFlight = true
	m.notice = nil
	m.mu.Unlock()

	msg, err := m.deps.Backend.RequestOTP(ctx, id)

	m.mu.Lock()
	m.inFlight = false
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	if err != nil {
		m.state = Idle
		n := m.setNoticeLocked(NoticeBackend, userMessage(err))
		m.mu.Unlock()
		m.emit(n)
		return err
	}

	m.state = OTPSent
	m.sent = true
	m.input.Clear()
	m.startCooldownLocked()
	n := m.setNoticeLocked(NoticeInfo, msg)
	m.mu.Unlock()
	m.emit(n)
	return nil
}

// Resend re-issues the OTP once the cooldown has elapsed. Before that, or
// while another request is in flight, it does nothing.
func (m *Machine) Resend(ctx context.Context) error {
	m.mu.Lock()
	if m.closed || m.inFlight || m.state != OTPSent || !m.canResend {
		m.mu.Unlock()
		return nil
	}
	m.inFlight = true
	id := m.id
	m.mu.Unlock()

	msg, err := m.deps.Backend.RequestOTP(ctx, id)

	m.mu.Lock()
	m.inFlight = false
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	if err != nil {
		n := m.setNoticeLocked(NoticeBackend, userMessage(err))
		m.mu.Unlock()
		m.emit(n)
		return err
	}

	m.input.Clear()
	m.startCooldownLocked()
	n := m.setNoticeLocked(NoticeInfo, msg)
	m.mu.Unlock()
	m.emit(n)
	return nil
}

// SetNewPassword records the new password typed on the reset form.
func (m *Machine) SetNewPassword(pw, confirm string) {
	m.mu.Lock()
	m.newPassword = pw
	m.confirm = confirm
	m.mu.Unlock()
}

// Verify submits the entered code. On success the session is stored, the
// logged-in flag flips and navigation to the landing view is scheduled.
func (m *Machine) Verify(ctx context.Context) error {
	m.mu.Lock()
	if m.closed || m.inFlight || m.state != OTPSent {
		m.mu.Unlock()
		return nil
	}
	if !m.input.Complete() {
		n := m.setNoticeLocked(NoticeValidation, ErrIncompleteCode.Error())
		m.mu.Unlock()
		m.emit(n)
		return ErrIncompleteCode
	}
	if m.cfg.Flow == FlowAdminReset {
		if err := ValidateNewPassword(m.newPassword, m.confirm); err != nil {
			n := m.setNoticeLocked(NoticeValidation, err.Error())
			m.mu.Unlock()
			m.emit(n)
			return err
		}
	}

	code := m.input.Code()
	id, newPassword := m.id, m.newPassword
	m.state = Verifying
	m.inFlight = true
	m.notice = nil
	m.mu.Unlock()

	v, err := m.deps.Backend.VerifyOTP(ctx, id, code, newPassword)
	if err != nil {
		return m.failVerify(NoticeBackend, userMessage(err), err)
	}

	// The commit runs under the lock: once Close returns, a late response
	// never reaches the store or the logged-in flag.
	m.mu.Lock()
	if m.closed {
		m.inFlight = false
		m.mu.Unlock()
		return nil
	}

	claims, err := token.Decode(v.Token)
	if err != nil {
		m.deps.Logger.Printf("ERROR: %s verification for %s returned an unreadable token: %v", m.cfg.Flow, id.Email, err)
		return m.failVerifyLocked(NoticeDecode, "Login failed. Please try again.", fmt.Errorf("%w: %v", ErrTokenDecode, err))
	}

	rec := session.Record{Token: v.Token, Role: claims.EffectiveRole(), Email: claims.Email}
	if rec.Email == "" {
		rec.Email = id.Email
	}
	if err := m.deps.Store.Login(ctx, rec); err != nil {
		m.deps.Logger.Printf("ERROR: persist session for %s: %v", id.Email, err)
		return m.failVerifyLocked(NoticeBackend, models.FallbackMessage, err)
	}

	m.inFlight = false
	m.state = Verified
	m.verified = true
	m.stopTickerLocked()
	message := v.Message
	if message == "" {
		message = "Signed in successfully."
	}
	n := m.setNoticeLocked(NoticeInfo, message)
	landing := m.cfg.Landing(rec.Role)
	if m.deps.Navigator != nil {
		m.navTask = m.deps.Scheduler.After(m.cfg.NavigateDelay, func() {
			m.mu.Lock()
			closed := m.closed
			m.navTask = nil
			m.mu.Unlock()
			if !closed {
				m.deps.Navigator.Navigate(landing)
			}
		})
	}
	if m.deps.Auth != nil {
		m.deps.Auth.Set(true)
	}
	m.mu.Unlock()

	m.emit(n)
	return nil
}

func (m *Machine) failVerify(kind NoticeKind, msg string, err error) error {
	m.mu.Lock()
	return m.failVerifyLocked(kind, msg, err)
}

// failVerifyLocked returns to OTPSent and releases the lock.
func (m *Machine) failVerifyLocked(kind NoticeKind, msg string, err error) error {
	m.inFlight = false
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.state = OTPSent
	n := m.setNoticeLocked(kind, msg)
	m.mu.Unlock()
	m.emit(n)
	return err
}

// EnterDigit types s into slot i. Rejected input leaves the slot unchanged.
func (m *Machine) EnterDigit(i int, s string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed || m.state != OTPSent {
		return false
	}
	return m.input.Enter(i, s)
}

func (m *Machine) Backspace(i int) {
	m.editInput(func(in *OTPInput) { in.Backspace(i) })
}

func (m *Machine) MoveLeft(i int) {
	m.editInput(func(in *OTPInput) { in.Left(i) })
}

func (m *Machine) MoveRight(i int) {
	m.editInput(func(in *OTPInput) { in.Right(i) })
}

// Paste fills all slots from a full numeric code.
func (m *Machine) Paste(s string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed || m.state != OTPSent {
		return false
	}
	return m.input.Paste(s)
}

func (m *Machine) editInput(fn func(*OTPInput)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed || m.state != OTPSent {
		return
	}
	fn(&m.input)
}

// Reset returns to the credentials step, e.g. to change the email address.
func (m *Machine) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed || m.inFlight || m.state == Verified {
		return
	}
	m.stopTickerLocked()
	m.state = Idle
	m.sent = false
	m.cooldown = 0
	m.canResend = false
	m.input.Clear()
	m.notice = nil
}

// Close tears the machine down and cancels its scheduled tasks. Responses
// that arrive afterwards are ignored.
func (m *Machine) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.closed = true
	m.stopTickerLocked()
	if m.navTask != nil {
		m.navTask.Stop()
		m.navTask = nil
	}
}

// Snapshot returns the current state for rendering.
func (m *Machine) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	snap := Snapshot{
		Flow:      m.cfg.Flow,
		State:     m.state,
		Email:     m.id.Email,
		Digits:    m.input.Digits(),
		Focus:     m.input.Focus(),
		Sent:      m.sent,
		Verified:  m.verified,
		Cooldown:  m.cooldown,
		CanResend: m.canResend,
		Busy:      m.inFlight,
	}
	if m.notice != nil {
		n := *m.notice
		snap.Notice = &n
	}
	return snap
}

func (m *Machine) validateCredentials(id Identifier) error {
	if err := validate.Email(id.Email); err != nil {
		return err
	}
	if m.cfg.Flow == FlowAdminLogin && id.Password == "" {
		return ErrPasswordRequired
	}
	return nil
}

func (m *Machine) startCooldownLocked() {
	m.stopTickerLocked()
	m.cooldown = m.cfg.Cooldown
	m.canResend = false
	m.tickGen++
	gen := m.tickGen
	m.ticker = m.deps.Scheduler.Every(m.cfg.Tick, func() { m.tick(gen) })
}

func (m *Machine) tick(gen int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed || m.ticker == nil || gen != m.tickGen {
		return
	}
	if m.cooldown > 0 {
		m.cooldown--
	}
	if m.cooldown == 0 {
		m.canResend = true
		m.stopTickerLocked()
	}
}

func (m *Machine) stopTickerLocked() {
	if m.ticker != nil {
		m.ticker.Stop()
		m.ticker = nil
	}
}

func (m *Machine) setNoticeLocked(kind NoticeKind, msg string) *Notice {
	if msg == "" {
		return nil
	}
	n := &Notice{Kind: kind, Message: msg}
	m.notice = n
	return n
}

func (m *Machine) emit(n *Notice) {
	if n == nil || m.deps.Notifier == nil {
		return
	}
	m.deps.Notifier.Notify(*n)
}

type userMessager interface {
	UserMessage() string
}

func userMessage(err error) string {
	var um userMessager
	if errors.As(err, &um) {
		if msg := um.UserMessage(); msg != "" {
			return msg
		}
	}
	return models.FallbackMessage
}
