package models

import (
	"strings"
	"time"
	"unicode/utf8"

	"gorm.io/datatypes"
)

const (
	DefaultWebhookMaxRetries = 3
	WebhookRetryDelay        = 5 * time.Minute
	maxStoredResponseBody    = 4096
)

// =======================
// Email
// =======================

type EmailNotification struct {
	BaseModel
	NotificationID string `gorm:"type:varchar(36);not null;uniqueIndex" json:"notification_id"`

	ToEmail     string `gorm:"size:255;not null" json:"to_email"`
	FromEmail   string `gorm:"size:255" json:"from_email"`
	Subject     string `gorm:"size:255" json:"subject"`
	HTMLContent string `gorm:"type:text" json:"html_content"`
	TextContent string `gorm:"type:text" json:"text_content"`

	Status            EmailStatus `gorm:"type:varchar(20);not null;default:'pending';index" json:"status"`
	ProviderMessageID string      `gorm:"size:255" json:"provider_message_id,omitempty"`

	SentAt      *time.Time `json:"sent_at,omitempty"`
	DeliveredAt *time.Time `json:"delivered_at,omitempty"`
	OpenedAt    *time.Time `json:"opened_at,omitempty"`
	ClickedAt   *time.Time `json:"clicked_at,omitempty"`
	BouncedAt   *time.Time `json:"bounced_at,omitempty"`
	BounceType  string     `gorm:"size:50" json:"bounce_type,omitempty"`

	ErrorMessage string `gorm:"type:text" json:"error_message,omitempty"`
	RetryCount   int    `gorm:"default:0" json:"retry_count"`
}

func (e *EmailNotification) MarkAsSent(providerMessageID string, now time.Time) {
	e.Status = EmailSent
	e.ProviderMessageID = providerMessageID
	e.SentAt = &now
	e.ErrorMessage = ""
}

func (e *EmailNotification) MarkAsFailed(err error) {
	e.Status = EmailFailed
	e.RetryCount++
	if err != nil {
		e.ErrorMessage = err.Error()
	}
}

func (e *EmailNotification) MarkAsDelivered(now time.Time) {
	e.Status = EmailDelivered
	e.DeliveredAt = &now
}

// MarkAsOpened and MarkAsClicked apply provider events as they arrive,
// without ordering checks.
func (e *EmailNotification) MarkAsOpened(now time.Time) {
	e.Status = EmailOpened
	e.OpenedAt = &now
}

func (e *EmailNotification) MarkAsClicked(now time.Time) {
	e.Status = EmailClicked
	e.ClickedAt = &now
}

func (e *EmailNotification) MarkAsBounced(bounceType string, now time.Time) {
	if bounceType == "" {
		bounceType = "unknown"
	}
	e.Status = EmailBounced
	e.BounceType = bounceType
	e.BouncedAt = &now
}

func (e *EmailNotification) MarkAsUnsubscribed() {
	e.Status = EmailUnsubscribed
}

// IsSuccess reports whether the email left the system.
func (e *EmailNotification) IsSuccess() bool {
	switch e.Status {
	case EmailSent, EmailDelivered, EmailOpened, EmailClicked:
		return true
	}
	return false
}

// =======================
// Push
// =======================

type PushNotification struct {
	BaseModel
	NotificationID string `gorm:"type:varchar(36);not null;uniqueIndex" json:"notification_id"`

	DeviceToken string         `gorm:"size:500" json:"device_token,omitempty"`
	Platform    PushPlatform   `gorm:"type:varchar(20)" json:"platform"`
	Title       string         `gorm:"size:255" json:"title"`
	Body        string         `gorm:"type:text" json:"body"`
	Data        datatypes.JSON `json:"data,omitempty"`

	Status       PushStatus `gorm:"type:varchar(20);not null;default:'pending';index" json:"status"`
	SentAt       *time.Time `json:"sent_at,omitempty"`
	DeliveredAt  *time.Time `json:"delivered_at,omitempty"`
	ClickedAt    *time.Time `json:"clicked_at,omitempty"`
	FailedAt     *time.Time `json:"failed_at,omitempty"`
	ErrorMessage string     `gorm:"type:text" json:"error_message,omitempty"`
}

func (p *PushNotification) MarkAsSent(now time.Time) {
	p.Status = PushSent
	p.SentAt = &now
	p.ErrorMessage = ""
}

func (p *PushNotification) MarkAsDelivered(now time.Time) {
	p.Status = PushDelivered
	p.DeliveredAt = &now
}

func (p *PushNotification) MarkAsClicked(now time.Time) {
	p.Status = PushClicked
	p.ClickedAt = &now
}

func (p *PushNotification) MarkAsFailed(err error, now time.Time) {
	p.Status = PushFailed
	p.FailedAt = &now
	if err != nil {
		p.ErrorMessage = err.Error()
	}
}

func (p *PushNotification) IsSuccess() bool {
	switch p.Status {
	case PushSent, PushDelivered, PushClicked:
		return true
	}
	return false
}

// =======================
// Webhook
// =======================

type WebhookNotification struct {
	BaseModel
	NotificationID string `gorm:"type:varchar(36);not null;uniqueIndex" json:"notification_id"`

	URL     string         `gorm:"size:2048;not null" json:"url"`
	Method  string         `gorm:"size:10;not null;default:'POST'" json:"method"`
	Headers datatypes.JSON `json:"headers,omitempty"`
	Payload datatypes.JSON `json:"payload,omitempty"`

	Status             WebhookStatus  `gorm:"type:varchar(20);not null;default:'pending';index:idx_webhook_retry,priority:1" json:"status"`
	ResponseStatusCode *int           `json:"response_status_code,omitempty"`
	ResponseBody       string         `gorm:"type:text" json:"response_body,omitempty"`
	ResponseHeaders    datatypes.JSON `json:"response_headers,omitempty"`

	RetryCount  int        `gorm:"default:0" json:"retry_count"`
	MaxRetries  int        `gorm:"default:3" json:"max_retries"`
	NextRetryAt *time.Time `gorm:"index:idx_webhook_retry,priority:2" json:"next_retry_at,omitempty"`

	SentAt       *time.Time `json:"sent_at,omitempty"`
	DeliveredAt  *time.Time `json:"delivered_at,omitempty"`
	FailedAt     *time.Time `json:"failed_at,omitempty"`
	ErrorMessage string     `gorm:"type:text" json:"error_message,omitempty"`
}

func (w *WebhookNotification) CanRetry() bool {
	if w.RetryCount >= w.MaxRetries {
		return false
	}
	return w.Status == WebhookFailed || w.Status == WebhookRetried
}

func (w *WebhookNotification) MarkAsSent(now time.Time) {
	w.Status = WebhookSent
	w.SentAt = &now
}

func (w *WebhookNotification) MarkAsDelivered(statusCode int, body string, headers datatypes.JSON, now time.Time) {
	w.Status = WebhookDelivered
	w.ResponseStatusCode = &statusCode
	w.ResponseBody = truncate(body, maxStoredResponseBody)
	w.ResponseHeaders = headers
	w.DeliveredAt = &now
	w.NextRetryAt = nil
	w.ErrorMessage = ""
}

// MarkAsFailed counts the attempt first, then either schedules the next
// retry or gives up once max_retries attempts have failed.
func (w *WebhookNotification) MarkAsFailed(statusCode *int, body string, err error, now time.Time) {
	w.RetryCount++
	w.ResponseStatusCode = statusCode
	w.ResponseBody = truncate(body, maxStoredResponseBody)
	w.FailedAt = &now
	if err != nil {
		w.ErrorMessage = err.Error()
	}

	if w.RetryCount < w.MaxRetries {
		next := now.Add(WebhookRetryDelay)
		w.Status = WebhookRetried
		w.NextRetryAt = &next
		return
	}
	w.Status = WebhookFailed
	w.NextRetryAt = nil
}

func (w *WebhookNotification) IsSuccess() bool {
	return w.Status == WebhookDelivered
}

// IsInFlight is true while the record may still change without user action.
func (w *WebhookNotification) IsInFlight() bool {
	return w.Status == WebhookPending || w.Status == WebhookRetried
}

// truncate cuts s to at most max bytes without splitting a rune.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return strings.ToValidUTF8(s[:cut], "")
}
