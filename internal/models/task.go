package models

import (
	"time"

	"github.com/gofrs/uuid"
	"gorm.io/gorm"
)

// Task belongs to its owner (UserID) and, when GroupID is set, is visible to
// the group's accepted members. The three attachment columns are written and
// cleared together.
type Task struct {
	ID               uuid.UUID  `json:"id" gorm:"primaryKey;type:uuid"`
	Title            string     `json:"title" gorm:"not null"`
	Description      *string    `json:"description"`
	Done             bool       `json:"done" gorm:"not null;default:false"`
	FileURL          *string    `json:"fileUrl"`
	OriginalFilename *string    `json:"originalFilename"`
	MimeType         *string    `json:"mimeType"`
	UserID           uuid.UUID  `json:"userId" gorm:"type:uuid;not null;index"`
	GroupID          *uuid.UUID `json:"groupId" gorm:"type:uuid;index"`
	CreatedAt        time.Time  `json:"createdAt" gorm:"index"`
	UpdatedAt        time.Time  `json:"updatedAt"`

	User  *User  `json:"user,omitempty" gorm:"foreignKey:UserID"`
	Group *Group `json:"-" gorm:"foreignKey:GroupID"`
}

func (t *Task) BeforeCreate(tx *gorm.DB) error {
	return ensureID(&t.ID)
}

func (t *Task) HasAttachment() bool {
	return t.FileURL != nil && *t.FileURL != ""
}

// Attachment is the reference stored on a task for an uploaded file.
type Attachment struct {
	URL              string `json:"fileUrl"`
	OriginalFilename string `json:"originalFilename"`
	MimeType         string `json:"mimeType"`
}

// Columns returns the attachment as an update map; a nil attachment clears
// all three columns.
func (a *Attachment) Columns() map[string]interface{} {
	if a == nil {
		return map[string]interface{}{
			"file_url":          nil,
			"original_filename": nil,
			"mime_type":         nil,
		}
	}
	return map[string]interface{}{
		"file_url":          a.URL,
		"original_filename": a.OriginalFilename,
		"mime_type":         a.MimeType,
	}
}
