package store

import (
	"time"

	"gorm.io/datatypes"
)

// DocumentModel is the GORM row backing a document. Metadata is serialized
// to a JSON column and stays opaque to the store.
type DocumentModel struct {
	ID           string         `gorm:"primaryKey"`
	Filename     string         `gorm:"not null"`
	OriginalName string         `gorm:"not null"`
	MimeType     string         `gorm:"not null"`
	SizeBytes    int64          `gorm:"not null"`
	Status       string         `gorm:"not null;index"`
	UploadedAt   time.Time      `gorm:"not null;index"`
	ProcessedAt  *time.Time
	Metadata     datatypes.JSON
	ErrorMessage string
}

func (DocumentModel) TableName() string {
	return "documents"
}
