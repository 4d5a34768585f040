package model

import (
	"time"

	"github.com/google/uuid"
)

// Attachment stores metadata for a file attached to a request. The file body
// itself lives behind the URL (external object storage).
type Attachment struct {
	ID           uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	RequestID    uuid.UUID `gorm:"type:uuid;not null;index" json:"request_id"`
	FileName     string    `gorm:"type:varchar(255);not null" json:"file_name"`
	MimeType     string    `gorm:"type:varchar(128)" json:"mime_type"`
	FileSize     int64     `gorm:"not null;default:0" json:"file_size"`
	URL          string    `gorm:"type:varchar(512);not null" json:"url"`
	UploadedByID uuid.UUID `gorm:"type:uuid;not null" json:"uploaded_by_id"`
	UploadedBy   *User     `gorm:"foreignKey:UploadedByID" json:"uploaded_by,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}
