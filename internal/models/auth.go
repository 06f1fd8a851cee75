package models

import "time"

// Role is the access level carried in the session token's role claim.
type Role string

const (
	RoleUser       Role = "USER"
	RoleAdmin      Role = "ADMIN"
	RoleSuperAdmin Role = "SUPER_ADMIN"
)

// IsAdmin reports whether the role may enter the admin back-office.
func (r Role) IsAdmin() bool {
	return r == RoleAdmin || r == RoleSuperAdmin
}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAdmin, RoleSuperAdmin:
		return true
	}
	return false
}

// Purpose scopes an OTP to the flow that requested it.
type Purpose string

const (
	PurposeUserLogin     Purpose = "user-login"
	PurposeAdminLogin    Purpose = "admin-login"
	PurposePasswordReset Purpose = "password-reset"
)

// Credentials represents an admin login request payload.
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// OTPRequest asks for an OTP to be sent to an email address.
type OTPRequest struct {
	Email string `json:"email"`
}

// VerifyOTPRequest carries the OTP typed by the user.
type VerifyOTPRequest struct {
	Email string `json:"email"`
	OTP   string `json:"otp"`
}

// ResetPasswordRequest completes the admin password-recovery flow.
type ResetPasswordRequest struct {
	Email       string `json:"email"`
	OTP         string `json:"otp"`
	NewPassword string `json:"newPassword"`
}

// MessageResponse is returned by endpoints that only report a status.
type MessageResponse struct {
	Message string `json:"message"`
}

// TokenResponse is returned after a successful OTP verification.
type TokenResponse struct {
	Token   string `json:"token"`
	Message string `json:"message"`
}

// User is an account known to the identity service. Admins carry a password hash.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	Role         Role      `json:"role"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Session represents an issued token stored in the database.
type Session struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	TokenID   string    `json:"token_id"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

// LoginAttempt records each login attempt for auditing and lockout.
type LoginAttempt struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Success   bool      `json:"success"`
	IPAddress string    `json:"ip_address"`
	CreatedAt time.Time `json:"created_at"`
}

// FallbackMessage is shown when a failure carries no usable message.
const FallbackMessage = "Something went wrong. Please try again."

// ErrorResponse is the standard JSON error envelope.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// TokenValidationResponse is returned by the ValidateToken endpoint.
type TokenValidationResponse struct {
	Valid  bool   `json:"valid"`
	UserID string `json:"user_id,omitempty"`
	Email  string `json:"email,omitempty"`
	Role   Role   `json:"role,omitempty"`
}

// OTPIssued is published when a code must be delivered out-of-band.
type OTPIssued struct {
	Email     string    `json:"email"`
	Code      string    `json:"code"`
	Purpose   Purpose   `json:"purpose"`
	ExpiresAt time.Time `json:"expires_at"`
	RequestID string    `json:"request_id,omitempty"`
}
