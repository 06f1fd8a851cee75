// Package apiclient talks to the identity service on behalf of the storefront.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ghassenk/jewelstore/internal/models"
)

// HeaderRequestID carries the per-call correlation id.
const HeaderRequestID = "X-Request-ID"

// ErrMissingToken is returned when a verification succeeds without a token.
var ErrMissingToken = errors.New("verification response carries no token")

// APIError is a non-2xx answer from the identity service.
type APIError struct {
	Status    int
	Code      string
	Message   string
	RequestID string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("auth service returned %d: %s", e.Status, e.Message)
}

// UserMessage is the text safe to show to the user.
func (e *APIError) UserMessage() string {
	return e.Message
}

// Client is an HTTP client for the /api/v1/auth endpoints.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *log.Logger
}

// New creates a Client for the service at baseURL.
func New(baseURL string, timeout time.Duration, logger *log.Logger) *Client {
	if logger == nil {
		logger = log.Default()
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

// SendUserOTP asks for a login code for a customer.
func (c *Client) SendUserOTP(ctx context.Context, email string) (*models.MessageResponse, error) {
	var out models.MessageResponse
	err := c.do(ctx, http.MethodPost, "/api/v1/auth/user/send-otp", "", models.OTPRequest{Email: email}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// VerifyUserOTP exchanges a customer's code for a session token.
func (c *Client) VerifyUserOTP(ctx context.Context, email, otp string) (*models.TokenResponse, error) {
	return c.verify(ctx, "/api/v1/auth/user/verify-otp", models.VerifyOTPRequest{Email: email, OTP: otp})
}

// AdminLogin checks admin credentials; on success a code is sent.
func (c *Client) AdminLogin(ctx context.Context, creds models.Credentials) (*models.MessageResponse, error) {
	var out models.MessageResponse
	if err := c.do(ctx, http.MethodPost, "/api/v1/auth/admin/login", "", creds, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// VerifyAdminOTP exchanges an admin's code for a session token.
func (c *Client) VerifyAdminOTP(ctx context.Context, email, otp string) (*models.TokenResponse, error) {
	return c.verify(ctx, "/api/v1/auth/admin/verify-otp", models.VerifyOTPRequest{Email: email, OTP: otp})
}

// ForgotPassword asks for a password-reset code for an admin.
func (c *Client) ForgotPassword(ctx context.Context, email string) (*models.MessageResponse, error) {
	var out models.MessageResponse
	err := c.do(ctx, http.MethodPost, "/api/v1/auth/admin/forgot-password", "", models.OTPRequest{Email: email}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// ResetPassword sets a new admin password and signs the admin in.
func (c *Client) ResetPassword(ctx context.Context, req models.ResetPasswordRequest) (*models.TokenResponse, error) {
	return c.verify(ctx, "/api/v1/auth/admin/reset-password", req)
}

// Logout revokes token on the identity service.
func (c *Client) Logout(ctx context.Context, token string) error {
	var out models.MessageResponse
	return c.do(ctx, http.MethodPost, "/api/v1/auth/logout", token, nil, &out)
}

// Validate asks the identity service whether token is still good.
func (c *Client) Validate(ctx context.Context, token string) (*models.TokenValidationResponse, error) {
	var out models.TokenValidationResponse
	if err := c.do(ctx, http.MethodPost, "/api/v1/auth/validate", "", map[string]string{"token": token}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) verify(ctx context.Context, path string, body any) (*models.TokenResponse, error) {
	var out models.TokenResponse
	if err := c.do(ctx, http.MethodPost, path, "", body, &out); err != nil {
		return nil, err
	}
	if out.Token == "" {
		return nil, ErrMissingToken
	}
	return &out, nil
}

func (c *Client) do(ctx context.Context, method, path, token string, body, out any) error {
	var rdr io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		rdr = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rdr)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	reqID := uuid.NewString()
	req.Header.Set(HeaderRequestID, reqID)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Printf("ERROR: %s %s [%s]: %v", method, path, reqID, err)
		return fmt.Errorf("auth service request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := decodeError(resp.StatusCode, raw)
		apiErr.RequestID = reqID
		c.logger.Printf("WARN: %s %s [%s]: %d %s", method, path, reqID, resp.StatusCode, apiErr.Code)
		return apiErr
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func decodeError(status int, raw []byte) *APIError {
	e := &APIError{Status: status}
	var payload models.ErrorResponse
	if err := json.Unmarshal(raw, &payload); err == nil {
		e.Code = payload.Error
		switch {
		case payload.Message != "":
			e.Message = payload.Message
		case payload.Error != "":
			e.Message = payload.Error
		}
	}
	if e.Message == "" {
		e.Message = models.FallbackMessage
	}
	return e
}
