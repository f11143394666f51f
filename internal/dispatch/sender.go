// Package dispatch is the outbound email/SMS boundary. Delivery is
// best-effort: callers get a synchronous accept/reject, never a delivery
// confirmation.
package dispatch

import (
	"context"

	"go.uber.org/zap"

	"github.com/archject/portal-access/internal/config"
)

// Sender delivers portal messages to clients.
type Sender interface {
	SendOTP(ctx context.Context, recipient, code string) error
	SendShareLink(ctx context.Context, recipient, url string) error
}

// LogSender records sends instead of delivering them. It is the default in
// development and in deployments where delivery is handled by an external
// relay watching the log stream.
type LogSender struct {
	logger *zap.Logger
}

func NewSender(cfg config.Config, logger *zap.Logger) Sender {
	return &LogSender{logger: logger}
}

func (s *LogSender) SendOTP(ctx context.Context, recipient, code string) error {
	s.log().Info("otp dispatch accepted",
		zap.String("recipient", recipient),
		zap.Int("code_length", len(code)),
	)
	return nil
}

func (s *LogSender) SendShareLink(ctx context.Context, recipient, url string) error {
	s.log().Info("share link dispatch accepted",
		zap.String("recipient", recipient),
	)
	return nil
}

func (s *LogSender) log() *zap.Logger {
	if s != nil && s.logger != nil {
		return s.logger
	}
	return zap.L()
}
