package app

import (
	"messaging_backend/internal/email"
	"messaging_backend/internal/logger"

	"github.com/google/uuid"
)

// LogEmailProvider stands in for SMTP in local development. Emails are
// logged and reported as sent.
type LogEmailProvider struct{}

func (m *LogEmailProvider) Send(e *email.Email) (string, error) {
	id := "<" + uuid.NewString() + "@localhost>"
	logger.Info("email (not sent, SMTP disabled)", "to", e.To, "subject", e.Subject, "message_id", id)
	return id, nil
}

func (m *LogEmailProvider) SendTemplate(to []string, subject string, templateName string, data email.TemplateData) (string, error) {
	return m.Send(&email.Email{To: to, Subject: subject})
}

func (m *LogEmailProvider) Validate() error { return nil }
func (m *LogEmailProvider) Close() error    { return nil }
