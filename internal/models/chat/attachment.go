package chat

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"messaging_backend/internal/models"
)

type FileType string

const (
	FileImage    FileType = "image"
	FileDocument FileType = "document"
	FileAudio    FileType = "audio"
	FileVideo    FileType = "video"
	FileOther    FileType = "other"
)

var allowedExtensions = map[string]FileType{
	"jpg":  FileImage,
	"jpeg": FileImage,
	"png":  FileImage,
	"gif":  FileImage,
	"webp": FileImage,
	"pdf":  FileDocument,
	"doc":  FileDocument,
	"docx": FileDocument,
	"txt":  FileDocument,
	"rtf":  FileDocument,
	"mp3":  FileAudio,
	"wav":  FileAudio,
	"ogg":  FileAudio,
	"m4a":  FileAudio,
	"mp4":  FileVideo,
	"avi":  FileVideo,
	"mov":  FileVideo,
	"webm": FileVideo,
	"zip":  FileOther,
}

// Extension returns the lower-cased extension of filename without the dot.
func Extension(filename string) string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(filename), "."))
}

func IsAllowedExtension(filename string) bool {
	_, ok := allowedExtensions[Extension(filename)]
	return ok
}

func FileTypeFromExtension(filename string) FileType {
	if t, ok := allowedExtensions[Extension(filename)]; ok {
		return t
	}
	return FileOther
}

type MessageAttachment struct {
	models.BaseModel
	MessageID     string     `gorm:"type:varchar(36);not null;index" json:"message_id"`
	UploadedBy    string     `gorm:"type:varchar(36);not null;index" json:"uploaded_by"`
	FilePath      string     `gorm:"size:1024;not null" json:"-"`
	Filename      string     `gorm:"size:255;not null" json:"filename"`
	FileType      FileType   `gorm:"type:varchar(20);not null;index" json:"file_type"`
	FileSize      int64      `gorm:"not null" json:"file_size"`
	MimeType      string     `gorm:"size:100" json:"mime_type"`
	Width         *int       `json:"width,omitempty"`
	Height        *int       `json:"height,omitempty"`
	ThumbnailPath *string    `gorm:"size:1024" json:"-"`
	IsDeleted     bool       `gorm:"default:false;index" json:"is_deleted"`
	DeletedAt     *time.Time `json:"deleted_at,omitempty"`
}

func (MessageAttachment) TableName() string {
	return "message_attachments"
}

func (a *MessageAttachment) IsImage() bool {
	return a.FileType == FileImage
}

func (a *MessageAttachment) SoftDelete(now time.Time) bool {
	if a.IsDeleted {
		return false
	}
	a.IsDeleted = true
	a.DeletedAt = &now
	return true
}

// HumanReadableSize formats FileSize with one decimal, e.g. "1.5 KB".
func (a *MessageAttachment) HumanReadableSize() string {
	return HumanReadableSize(a.FileSize)
}

func HumanReadableSize(size int64) string {
	value := float64(size)
	for _, unit := range []string{"B", "KB", "MB", "GB"} {
		if value < 1024 {
			return fmt.Sprintf("%.1f %s", value, unit)
		}
		value /= 1024
	}
	return fmt.Sprintf("%.1f TB", value)
}
