package notify

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/streetmed/rounds/pkg/core/model"
)

// Sink delivers one rendered notification
type Sink interface {
	Send(ctx context.Context, to string, kind model.NotificationKind, data model.NotificationData) error
}

// EmailSender is implemented by gmailclient.Client
type EmailSender interface {
	SendEmail(to, subject, body string) error
}

// EmailSink renders notifications and sends them as plain text email
type EmailSink struct {
	sender EmailSender
	logger *zap.Logger
}

func NewEmailSink(sender EmailSender, logger *zap.Logger) *EmailSink {
	return &EmailSink{sender: sender, logger: logger}
}

func (s *EmailSink) Send(ctx context.Context, to string, kind model.NotificationKind, data model.NotificationData) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	subject, body, err := Render(kind, data)
	if err != nil {
		return err
	}

	s.logger.Debug("Sending notification email",
		zap.String("email", to),
		zap.String("kind", string(kind)))

	if err := s.sender.SendEmail(to, subject, body); err != nil {
		return fmt.Errorf("failed to send %s email: %w", kind, err)
	}
	return nil
}

// LogSink records notifications in the log instead of sending them.
// Used when email is disabled.
type LogSink struct {
	logger *zap.Logger
}

func NewLogSink(logger *zap.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Send(ctx context.Context, to string, kind model.NotificationKind, data model.NotificationData) error {
	subject, _, err := Render(kind, data)
	if err != nil {
		return err
	}
	s.logger.Info("Notification (email disabled)",
		zap.String("email", to),
		zap.String("kind", string(kind)),
		zap.String("subject", subject))
	return nil
}
