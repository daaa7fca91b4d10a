package services

import (
	"context"

	"go.uber.org/zap"
)

// Mailer delivers outbound email. Implementations are expected to be
// best-effort: the notification flow records failures but never blocks
// on delivery.
type Mailer interface {
	Send(ctx context.Context, to, subject, body string) error
}

// logMailer writes outbound mail to the log instead of sending it. Used
// in development and wherever no provider is configured.
type logMailer struct {
	logger *zap.Logger
}

// NewLogMailer returns a Mailer that only logs.
func NewLogMailer(logger *zap.Logger) Mailer {
	return &logMailer{logger: logger.Named("mailer")}
}

var _ Mailer = (*logMailer)(nil)

func (m *logMailer) Send(ctx context.Context, to, subject, body string) error {
	m.logger.Info("outbound email (log-only delivery)",
		zap.String("to", to),
		zap.String("subject", subject),
		zap.Int("body_bytes", len(body)))
	return nil
}
