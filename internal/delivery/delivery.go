// Package delivery hands freshly issued OTP codes to whatever delivers them
// out-of-band (mailer, SMS gateway).
package delivery

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/nats-io/nats.go"

	"github.com/ghassenk/jewelstore/internal/models"
)

// SubjectOTPIssued is the NATS subject OTP events are published on.
const SubjectOTPIssued = "auth.otp.issued"

// Sender delivers an issued code.
type Sender interface {
	Send(ctx context.Context, ev models.OTPIssued) error
}

// Publisher is the subset of *nats.Conn used here.
type Publisher interface {
	Publish(subject string, data []byte) error
}

var _ Publisher = (*nats.Conn)(nil)

// NATSSender publishes OTP events for a downstream mailer.
type NATSSender struct {
	pub     Publisher
	subject string
}

func NewNATSSender(pub Publisher) *NATSSender {
	return &NATSSender{pub: pub, subject: SubjectOTPIssued}
}

func (s *NATSSender) Send(_ context.Context, ev models.OTPIssued) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode otp event: %w", err)
	}
	if err := s.pub.Publish(s.subject, data); err != nil {
		return fmt.Errorf("publish %s: %w", s.subject, err)
	}
	return nil
}

// LogSender writes codes to the log. Development only.
type LogSender struct {
	Logger *log.Logger
}

func (s LogSender) Send(_ context.Context, ev models.OTPIssued) error {
	logger := s.Logger
	if logger == nil {
		logger = log.Default()
	}
	logger.Printf("otp for %s (%s): %s, expires %s", ev.Email, ev.Purpose, ev.Code, ev.ExpiresAt.Format("15:04:05"))
	return nil
}

// Connect dials NATS with reconnect logging.
func Connect(url string, logger *log.Logger) (*nats.Conn, error) {
	return nats.Connect(url,
		nats.Name("jewelstore-auth-service"),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Printf("WARN: nats disconnected: %v", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Printf("nats reconnected to %s", nc.ConnectedUrl())
		}),
	)
}
