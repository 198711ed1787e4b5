package email

type Attachment struct {
	Name        string
	Content     []byte
	ContentType string
}

type Email struct {
	From        string
	To          []string
	Cc          []string
	Bcc         []string
	Subject     string
	Body        string // text/plain part
	HTMLBody    string // text/html alternative
	Attachments []Attachment
}

// TemplateData is passed to html templates.
type TemplateData map[string]interface{}
