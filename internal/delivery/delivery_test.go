package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ghassenk/jewelstore/internal/models"
)

type fakePublisher struct {
	subject string
	data    []byte
	err     error
}

func (f *fakePublisher) Publish(subject string, data []byte) error {
	f.subject, f.data = subject, data
	return f.err
}

func TestNATSSender_Send(t *testing.T) {
	pub := &fakePublisher{}
	ev := models.OTPIssued{
		Email:     "a@b.com",
		Code:      "123456",
		Purpose:   models.PurposeAdminLogin,
		ExpiresAt: time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC),
		RequestID: "req-1",
	}

	require.NoError(t, NewNATSSender(pub).Send(context.Background(), ev))
	assert.Equal(t, SubjectOTPIssued, pub.subject)

	var got models.OTPIssued
	require.NoError(t, json.Unmarshal(pub.data, &got))
	assert.Equal(t, ev, got)
}

func TestNATSSender_PublishError(t *testing.T) {
	pub := &fakePublisher{err: errors.New("nats: connection closed")}
	err := NewNATSSender(pub).Send(context.Background(), models.OTPIssued{Email: "a@b.com"})
	assert.ErrorIs(t, err, pub.err)
}

func TestLogSender(t *testing.T) {
	var buf bytes.Buffer
	s := LogSender{Logger: log.New(&buf, "", 0)}
	require.NoError(t, s.Send(context.Background(), models.OTPIssued{Email: "a@b.com", Code: "654321", Purpose: models.PurposeUserLogin}))
	assert.Contains(t, buf.String(), "654321")
	assert.Contains(t, buf.String(), "a@b.com")
}
