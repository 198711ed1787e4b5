package email

import (
	"bytes"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/google/uuid"
	"gopkg.in/gomail.v2"
)

// SMTPProvider sends through an SMTP relay with gomail. The connection is
// opened lazily and reused until Close or a send error.
type SMTPProvider struct {
	config   *SMTPConfig
	dialer   *gomail.Dialer
	renderer TemplateRenderer

	mu     sync.Mutex
	sender gomail.SendCloser
}

func NewSMTPProvider(config *SMTPConfig, renderer TemplateRenderer) *SMTPProvider {
	dialer := gomail.NewDialer(config.Host, config.Port, config.Username, config.Password)
	if config.UseTLS {
		dialer.TLSConfig = &tls.Config{ServerName: config.Host}
		// 465 is implicit TLS, everything else negotiates STARTTLS.
		dialer.SSL = config.Port == 465
	}

	return &SMTPProvider{
		config:   config,
		dialer:   dialer,
		renderer: renderer,
	}
}

func (p *SMTPProvider) Send(email *Email) (string, error) {
	if err := p.Validate(); err != nil {
		return "", err
	}
	if len(email.To) == 0 {
		return "", errors.New("email has no recipients")
	}

	messageID := p.newMessageID()
	msg := p.buildMessage(email, messageID)

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.sender == nil {
		sender, err := p.dialer.Dial()
		if err != nil {
			return "", fmt.Errorf("failed to connect to SMTP server: %w", err)
		}
		p.sender = sender
	}

	if err := gomail.Send(p.sender, msg); err != nil {
		// Drop the connection so the next send redials.
		p.sender.Close()
		p.sender = nil
		return "", fmt.Errorf("failed to send email: %w", err)
	}
	return messageID, nil
}

func (p *SMTPProvider) SendTemplate(to []string, subject string, templateName string, data TemplateData) (string, error) {
	if p.renderer == nil {
		return "", fmt.Errorf("template renderer is not configured")
	}

	htmlBody, err := p.renderer.Render(templateName, data)
	if err != nil {
		return "", fmt.Errorf("failed to render template: %w", err)
	}

	return p.Send(&Email{
		To:       to,
		Subject:  subject,
		HTMLBody: htmlBody,
	})
}

func (p *SMTPProvider) Validate() error {
	if p.config.Host == "" {
		return fmt.Errorf("SMTP host is required")
	}
	if p.config.Port <= 0 || p.config.Port > 65535 {
		return fmt.Errorf("invalid SMTP port: %d", p.config.Port)
	}
	if p.config.FromEmail == "" {
		return fmt.Errorf("sender address is required")
	}
	return nil
}

func (p *SMTPProvider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.sender == nil {
		return nil
	}
	err := p.sender.Close()
	p.sender = nil
	return err
}

func (p *SMTPProvider) buildMessage(email *Email, messageID string) *gomail.Message {
	m := gomail.NewMessage()

	from := email.From
	if from == "" {
		from = m.FormatAddress(p.config.FromEmail, p.config.FromName)
	}
	m.SetHeader("From", from)
	m.SetHeader("To", email.To...)
	if len(email.Cc) > 0 {
		m.SetHeader("Cc", email.Cc...)
	}
	if len(email.Bcc) > 0 {
		m.SetHeader("Bcc", email.Bcc...)
	}
	m.SetHeader("Subject", email.Subject)
	m.SetHeader("Message-ID", messageID)

	switch {
	case email.Body != "" && email.HTMLBody != "":
		m.SetBody("text/plain", email.Body)
		m.AddAlternative("text/html", email.HTMLBody)
	case email.HTMLBody != "":
		m.SetBody("text/html", email.HTMLBody)
	default:
		m.SetBody("text/plain", email.Body)
	}

	for _, attachment := range email.Attachments {
		content := attachment.Content
		settings := []gomail.FileSetting{
			gomail.SetCopyFunc(func(w io.Writer) error {
				_, err := io.Copy(w, bytes.NewReader(content))
				return err
			}),
		}
		if attachment.ContentType != "" {
			settings = append(settings, gomail.SetHeader(map[string][]string{
				"Content-Type": {attachment.ContentType},
			}))
		}
		m.Attach(attachment.Name, settings...)
	}

	return m
}

func (p *SMTPProvider) newMessageID() string {
	domain := "localhost"
	if at := strings.LastIndex(p.config.FromEmail, "@"); at >= 0 && at < len(p.config.FromEmail)-1 {
		domain = p.config.FromEmail[at+1:]
	}
	return fmt.Sprintf("<%s@%s>", uuid.NewString(), domain)
}
