package email

// Provider sends email. Send returns the Message-ID assigned to the email.
type Provider interface {
	Send(email *Email) (string, error)

	// SendTemplate renders templateName into the HTML body and sends it.
	SendTemplate(to []string, subject string, templateName string, data TemplateData) (string, error)

	Validate() error
	Close() error
}

type TemplateRenderer interface {
	Render(templateName string, data TemplateData) (string, error)
	AddTemplate(name string, template string) error
	LoadTemplates(dirPath string) error
}
