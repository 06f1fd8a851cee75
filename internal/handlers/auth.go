package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/ghassenk/jewelstore/internal/config"
	"github.com/ghassenk/jewelstore/internal/delivery"
	"github.com/ghassenk/jewelstore/internal/middleware"
	"github.com/ghassenk/jewelstore/internal/models"
	"github.com/ghassenk/jewelstore/internal/repository"
	"github.com/ghassenk/jewelstore/internal/token"
	"github.com/ghassenk/jewelstore/internal/validate"
)

const (
	lockoutThreshold = 5
	lockoutWindow    = 15 * time.Minute
)

// OTPService issues and checks one-time codes and tracks revoked tokens.
type OTPService interface {
	Issue(ctx context.Context, purpose models.Purpose, email string) (string, time.Time, error)
	Verify(ctx context.Context, purpose models.Purpose, email, code string) error
	Blacklist(ctx context.Context, tokenID string, ttl time.Duration) error
	IsBlacklisted(ctx context.Context, tokenID string) (bool, error)
}

// AuthHandler holds dependencies for authentication endpoints.
type AuthHandler struct {
	repo   repository.AuthRepository
	otps   OTPService
	sender delivery.Sender
	issuer *token.Issuer
	config *config.Config
	logger *log.Logger
	now    func() time.Time
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(repo repository.AuthRepository, otps OTPService, sender delivery.Sender, issuer *token.Issuer, cfg *config.Config, logger *log.Logger) *AuthHandler {
	if logger == nil {
		logger = log.Default()
	}
	return &AuthHandler{
		repo:   repo,
		otps:   otps,
		sender: sender,
		issuer: issuer,
		config: cfg,
		logger: logger,
		now:    time.Now,
	}
}

// Routes registers every endpoint on a new mux.
func (h *AuthHandler) Routes(rl *middleware.RateLimiter) *http.ServeMux {
	limit := func(fn http.HandlerFunc) http.Handler {
		if rl == nil {
			return fn
		}
		return rl.Middleware(fn)
	}
	jwtAuth := middleware.JWTAuth(h.issuer, h.otps)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", h.Healthz)

	mux.Handle("POST /api/v1/auth/user/send-otp", limit(h.UserSendOTP))
	mux.Handle("POST /api/v1/auth/user/verify-otp", limit(h.UserVerifyOTP))
	mux.Handle("POST /api/v1/auth/admin/login", limit(h.AdminLogin))
	mux.Handle("POST /api/v1/auth/admin/verify-otp", limit(h.AdminVerifyOTP))
	mux.Handle("POST /api/v1/auth/admin/forgot-password", limit(h.ForgotPassword))
	mux.Handle("POST /api/v1/auth/admin/reset-password", limit(h.ResetPassword))

	// Service-to-service validation (rate limited, no user auth).
	mux.Handle("POST /api/v1/auth/validate", limit(h.ValidateToken))

	// Protected routes (require valid JWT).
	mux.Handle("POST /api/v1/auth/logout", limit(jwtAuth(http.HandlerFunc(h.Logout)).ServeHTTP))
	return mux
}

// Healthz reports liveness.
// GET /healthz
func (h *AuthHandler) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// UserSendOTP emails a login code to a customer.
// POST /api/v1/auth/user/send-otp
func (h *AuthHandler) UserSendOTP(w http.ResponseWriter, r *http.Request) {
	var req models.OTPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}
	email, ok := normalizeEmail(req.Email)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_email", "Please enter a valid email address")
		return
	}

	ctx := r.Context()
	if u, err := h.repo.GetUserByEmail(ctx, email); err == nil && u.Role.IsAdmin() {
		writeError(w, http.StatusForbidden, "admin_account", "Admin accounts must sign in through the admin login")
		return
	} else if err != nil && !errors.Is(err, repository.ErrNotFound) {
		h.logger.Printf("ERROR: lookup user %s: %v", email, err)
		writeError(w, http.StatusInternalServerError, "internal_error", models.FallbackMessage)
		return
	}

	if !h.sendOTP(w, r, models.PurposeUserLogin, email) {
		return
	}
	writeJSON(w, http.StatusOK, models.MessageResponse{Message: "OTP sent to your email"})
}

// UserVerifyOTP exchanges a customer's code for a session token, creating the
// account on first login.
// POST /api/v1/auth/user/verify-otp
func (h *AuthHandler) UserVerifyOTP(w http.ResponseWriter, r *http.Request) {
	email, code, ok := h.decodeVerify(w, r)
	if !ok {
		return
	}
	if !h.verifyOTP(w, r, models.PurposeUserLogin, email, code) {
		return
	}

	user, err := h.repo.EnsureUser(r.Context(), email)
	if err != nil {
		h.logger.Printf("ERROR: ensure user %s: %v", email, err)
		writeError(w, http.StatusInternalServerError, "internal_error", models.FallbackMessage)
		return
	}
	h.issueSession(w, r, user, "Login successful")
}

// AdminLogin checks admin credentials and sends the second-factor code.
// POST /api/v1/auth/admin/login
func (h *AuthHandler) AdminLogin(w http.ResponseWriter, r *http.Request) {
	var creds models.Credentials
	if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}
	email, ok := normalizeEmail(creds.Email)
	if !ok || creds.Password == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "Email and password are required")
		return
	}

	// Check for too many recent failed attempts (simple brute-force protection).
	ctx := r.Context()
	failedCount, err := h.repo.GetRecentFailedAttempts(ctx, email, h.now().Add(-lockoutWindow))
	if err != nil {
		h.logger.Printf("ERROR: check failed attempts: %v", err)
	}
	if failedCount >= lockoutThreshold {
		writeError(w, http.StatusTooManyRequests, "locked_out", "Too many failed login attempts, try again later")
		return
	}

	user, err := h.repo.GetUserByEmail(ctx, email)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		h.logger.Printf("ERROR: lookup admin %s: %v", email, err)
		writeError(w, http.StatusInternalServerError, "internal_error", models.FallbackMessage)
		return
	}
	authenticated := err == nil && user.Role.IsAdmin() && user.PasswordHash != "" &&
		bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(creds.Password)) == nil

	h.recordAttempt(ctx, r, email, authenticated)
	if !authenticated {
		writeError(w, http.StatusUnauthorized, "invalid_credentials", "Invalid email or password")
		return
	}

	if !h.sendOTP(w, r, models.PurposeAdminLogin, email) {
		return
	}
	writeJSON(w, http.StatusOK, models.MessageResponse{Message: "OTP sent to your email"})
}

// AdminVerifyOTP completes the admin login.
// POST /api/v1/auth/admin/verify-otp
func (h *AuthHandler) AdminVerifyOTP(w http.ResponseWriter, r *http.Request) {
	email, code, ok := h.decodeVerify(w, r)
	if !ok {
		return
	}
	if !h.verifyOTP(w, r, models.PurposeAdminLogin, email, code) {
		return
	}
	user, ok := h.lookupAdmin(w, r, email)
	if !ok {
		return
	}
	h.issueSession(w, r, user, "Login successful")
}

// ForgotPassword sends a reset code to an admin. The answer does not reveal
// whether the account exists.
// POST /api/v1/auth/admin/forgot-password
func (h *AuthHandler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req models.OTPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}
	email, ok := normalizeEmail(req.Email)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_email", "Please enter a valid email address")
		return
	}

	const msg = "If an admin account exists for this email, a reset code has been sent"
	user, err := h.repo.GetUserByEmail(r.Context(), email)
	if errors.Is(err, repository.ErrNotFound) || (err == nil && !user.Role.IsAdmin()) {
		writeJSON(w, http.StatusOK, models.MessageResponse{Message: msg})
		return
	}
	if err != nil {
		h.logger.Printf("ERROR: lookup admin %s: %v", email, err)
		writeError(w, http.StatusInternalServerError, "internal_error", models.FallbackMessage)
		return
	}

	if !h.sendOTP(w, r, models.PurposePasswordReset, email) {
		return
	}
	writeJSON(w, http.StatusOK, models.MessageResponse{Message: msg})
}

// ResetPassword sets a new admin password, revokes recorded sessions and signs
// the admin in.
// POST /api/v1/auth/admin/reset-password
func (h *AuthHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req models.ResetPasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}
	email, ok := normalizeEmail(req.Email)
	if !ok || req.OTP == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "Email and OTP are required")
		return
	}
	if err := validate.Password(req.NewPassword); err != nil {
		writeError(w, http.StatusBadRequest, "weak_password", "Password must be at least 8 characters and include a letter, a number and a symbol")
		return
	}

	if !h.verifyOTP(w, r, models.PurposePasswordReset, email, req.OTP) {
		return
	}
	user, ok := h.lookupAdmin(w, r, email)
	if !ok {
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), bcrypt.DefaultCost)
	if err != nil {
		h.logger.Printf("ERROR: hash password: %v", err)
		writeError(w, http.StatusInternalServerError, "internal_error", models.FallbackMessage)
		return
	}
	ctx := r.Context()
	if err := h.repo.UpdatePassword(ctx, user.ID, string(hash)); err != nil {
		h.logger.Printf("ERROR: update password for %s: %v", email, err)
		writeError(w, http.StatusInternalServerError, "internal_error", models.FallbackMessage)
		return
	}
	if err := h.repo.DeleteSessionsByUserID(ctx, user.ID); err != nil {
		h.logger.Printf("WARN: delete sessions for %s: %v", user.ID, err)
	}
	h.logger.Printf("password reset for admin %s", user.ID)
	h.issueSession(w, r, user, "Password reset successful")
}

// Logout revokes the presented token.
// POST /api/v1/auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.GetClaims(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "Please sign in again")
		return
	}

	ctx := r.Context()
	ttl := h.config.JWTExpiry
	if claims.ExpiresAt != nil {
		ttl = claims.ExpiresAt.Sub(h.now())
	}
	if err := h.otps.Blacklist(ctx, claims.ID, ttl); err != nil {
		h.logger.Printf("ERROR: blacklist token: %v", err)
	}
	if err := h.repo.DeleteSessionByTokenID(ctx, claims.ID); err != nil {
		h.logger.Printf("ERROR: delete session: %v", err)
	}

	h.logger.Printf("user %s logged out", claims.UserID)
	writeJSON(w, http.StatusOK, models.MessageResponse{Message: "Logged out successfully"})
}

// ValidateToken checks whether a token is valid and returns its claims.
// Used for service-to-service authentication.
// POST /api/v1/auth/validate
func (h *AuthHandler) ValidateToken(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Token == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "token is required")
		return
	}

	claims, err := h.issuer.Parse(req.Token)
	if err != nil {
		writeJSON(w, http.StatusOK, models.TokenValidationResponse{Valid: false})
		return
	}

	revoked, err := h.otps.IsBlacklisted(r.Context(), claims.ID)
	if err != nil {
		h.logger.Printf("ERROR: check blacklist: %v", err)
	}
	if revoked || err != nil {
		writeJSON(w, http.StatusOK, models.TokenValidationResponse{Valid: false})
		return
	}

	writeJSON(w, http.StatusOK, models.TokenValidationResponse{
		Valid:  true,
		UserID: claims.UserID,
		Email:  claims.Email,
		Role:   claims.EffectiveRole(),
	})
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func (h *AuthHandler) decodeVerify(w http.ResponseWriter, r *http.Request) (string, string, bool) {
	var req models.VerifyOTPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return "", "", false
	}
	email, ok := normalizeEmail(req.Email)
	if !ok || req.OTP == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "Email and OTP are required")
		return "", "", false
	}
	return email, req.OTP, true
}

func (h *AuthHandler) sendOTP(w http.ResponseWriter, r *http.Request, purpose models.Purpose, email string) bool {
	ctx := r.Context()
	code, expiresAt, err := h.otps.Issue(ctx, purpose, email)
	if errors.Is(err, repository.ErrResendTooSoon) {
		writeError(w, http.StatusTooManyRequests, "otp_throttled", "Please wait before requesting another code")
		return false
	}
	if err != nil {
		h.logger.Printf("ERROR: issue %s otp for %s: %v", purpose, email, err)
		writeError(w, http.StatusInternalServerError, "internal_error", models.FallbackMessage)
		return false
	}

	ev := models.OTPIssued{
		Email:     email,
		Code:      code,
		Purpose:   purpose,
		ExpiresAt: expiresAt.UTC(),
		RequestID: middleware.GetRequestID(ctx),
	}
	if err := h.sender.Send(ctx, ev); err != nil {
		h.logger.Printf("ERROR: deliver %s otp for %s: %v", purpose, email, err)
		writeError(w, http.StatusBadGateway, "delivery_failed", "We could not send your code. Please try again.")
		return false
	}
	return true
}

func (h *AuthHandler) verifyOTP(w http.ResponseWriter, r *http.Request, purpose models.Purpose, email, code string) bool {
	err := h.otps.Verify(r.Context(), purpose, email, code)
	switch {
	case err == nil:
		return true
	case errors.Is(err, repository.ErrInvalidOTP), errors.Is(err, repository.ErrOTPNotFound):
		writeError(w, http.StatusUnauthorized, "invalid_otp", "Invalid or expired OTP")
	case errors.Is(err, repository.ErrTooManyOTPAttempts):
		writeError(w, http.StatusTooManyRequests, "too_many_attempts", "Too many invalid attempts. Please request a new code.")
	default:
		h.logger.Printf("ERROR: verify %s otp for %s: %v", purpose, email, err)
		writeError(w, http.StatusInternalServerError, "internal_error", models.FallbackMessage)
	}
	return false
}

func (h *AuthHandler) lookupAdmin(w http.ResponseWriter, r *http.Request, email string) (*models.User, bool) {
	user, err := h.repo.GetUserByEmail(r.Context(), email)
	if err == nil && user.Role.IsAdmin() {
		return user, true
	}
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		h.logger.Printf("ERROR: lookup admin %s: %v", email, err)
		writeError(w, http.StatusInternalServerError, "internal_error", models.FallbackMessage)
		return nil, false
	}
	writeError(w, http.StatusForbidden, "not_admin", "This account cannot access the admin area")
	return nil, false
}

func (h *AuthHandler) issueSession(w http.ResponseWriter, r *http.Request, user *models.User, message string) {
	signed, claims, err := h.issuer.Issue(user)
	if err != nil {
		h.logger.Printf("ERROR: issue token: %v", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "Failed to issue token")
		return
	}

	session := &models.Session{
		UserID:    user.ID,
		TokenID:   claims.ID,
		ExpiresAt: claims.ExpiresAt.Time,
		CreatedAt: h.now().UTC(),
	}
	if err := h.repo.CreateSession(r.Context(), session); err != nil {
		h.logger.Printf("ERROR: create session: %v", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "Failed to create session")
		return
	}
	writeJSON(w, http.StatusOK, models.TokenResponse{Token: signed, Message: message})
}

func (h *AuthHandler) recordAttempt(ctx context.Context, r *http.Request, email string, success bool) {
	attempt := &models.LoginAttempt{
		Email:     email,
		Success:   success,
		IPAddress: middleware.ClientIP(r),
		CreatedAt: h.now().UTC(),
	}
	if err := h.repo.RecordLoginAttempt(ctx, attempt); err != nil {
		h.logger.Printf("ERROR: record login attempt: %v", err)
	}
}

func normalizeEmail(raw string) (string, bool) {
	email := validate.NormalizeEmail(raw)
	if validate.Email(email) != nil {
		return "", false
	}
	return email, true
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, models.ErrorResponse{Error: code, Message: msg})
}

// SeedAdmin creates the bootstrap SUPER_ADMIN when email and password are set.
func SeedAdmin(ctx context.Context, repo repository.AuthRepository, email, password string, logger *log.Logger) error {
	email, ok := normalizeEmail(email)
	if !ok || password == "" {
		logger.Printf("WARN: ADMIN_EMAIL/ADMIN_PASSWORD not set, no admin seeded")
		return nil
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u, err := repo.SeedAdmin(ctx, email, string(hash))
	if err != nil {
		return err
	}
	logger.Printf("admin account %s (%s) ready", u.Email, u.Role)
	return nil
}
