// Package email is the boundary to the outbound mail collaborator. Delivery
// is fire-and-forget from the auth core's perspective.
package email

import (
	"context"

	"log/slog"
)

type Template string

const (
	TemplateResetPassword   Template = "reset_password"
	TemplatePasswordChanged Template = "password_changed"
	TemplateAPIKeyCreated   Template = "api_key_created"
	TemplateAPIKeyRevoked   Template = "api_key_revoked"
)

type Mailer interface {
	Send(ctx context.Context, kind Template, recipient string, data map[string]any) error
}

// LogMailer writes mail to the log instead of dispatching it. Used in dev
// and as the default when no delivery backend is configured.
type LogMailer struct {
	Logger *slog.Logger
}

func (m *LogMailer) Send(ctx context.Context, kind Template, recipient string, data map[string]any) error {
	m.Logger.Info("email dispatched",
		slog.String("template", string(kind)),
		slog.String("recipient", recipient),
		slog.Any("data", data),
	)
	return nil
}
