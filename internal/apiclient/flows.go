package apiclient

import (
	"context"
	"fmt"

	"github.com/ghassenk/jewelstore/internal/challenge"
	"github.com/ghassenk/jewelstore/internal/models"
)

// UserFlow is the customer passwordless login.
type UserFlow struct{ C *Client }

func (f UserFlow) RequestOTP(ctx context.Context, id challenge.Identifier) (string, error) {
	resp, err := f.C.SendUserOTP(ctx, id.Email)
	if err != nil {
		return "", err
	}
	return resp.Message, nil
}

func (f UserFlow) VerifyOTP(ctx context.Context, id challenge.Identifier, code, _ string) (challenge.Verification, error) {
	resp, err := f.C.VerifyUserOTP(ctx, id.Email, code)
	if err != nil {
		return challenge.Verification{}, err
	}
	return challenge.Verification{Token: resp.Token, Message: resp.Message}, nil
}

// AdminLoginFlow is the admin password + OTP login.
type AdminLoginFlow struct{ C *Client }

func (f AdminLoginFlow) RequestOTP(ctx context.Context, id challenge.Identifier) (string, error) {
	resp, err := f.C.AdminLogin(ctx, models.Credentials{Email: id.Email, Password: id.Password})
	if err != nil {
		return "", err
	}
	return resp.Message, nil
}

func (f AdminLoginFlow) VerifyOTP(ctx context.Context, id challenge.Identifier, code, _ string) (challenge.Verification, error) {
	resp, err := f.C.VerifyAdminOTP(ctx, id.Email, code)
	if err != nil {
		return challenge.Verification{}, err
	}
	return challenge.Verification{Token: resp.Token, Message: resp.Message}, nil
}

// AdminResetFlow is the admin password recovery.
type AdminResetFlow struct{ C *Client }

func (f AdminResetFlow) RequestOTP(ctx context.Context, id challenge.Identifier) (string, error) {
	resp, err := f.C.ForgotPassword(ctx, id.Email)
	if err != nil {
		return "", err
	}
	return resp.Message, nil
}

func (f AdminResetFlow) VerifyOTP(ctx context.Context, id challenge.Identifier, code, newPassword string) (challenge.Verification, error) {
	resp, err := f.C.ResetPassword(ctx, models.ResetPasswordRequest{Email: id.Email, OTP: code, NewPassword: newPassword})
	if err != nil {
		return challenge.Verification{}, err
	}
	return challenge.Verification{Token: resp.Token, Message: resp.Message}, nil
}

// Backend returns the challenge backend for flow.
func (c *Client) Backend(flow challenge.Flow) (challenge.Backend, error) {
	switch flow {
	case challenge.FlowUserLogin:
		return UserFlow{C: c}, nil
	case challenge.FlowAdminLogin:
		return AdminLoginFlow{C: c}, nil
	case challenge.FlowAdminReset:
		return AdminResetFlow{C: c}, nil
	}
	return nil, fmt.Errorf("unknown flow %q", flow)
}
