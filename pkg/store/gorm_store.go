package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"docproc/pkg/domain"
)

// GormStore implements Store on a relational database. The driver is chosen
// from the DSN: postgres:// DSNs open Postgres, anything else is treated as
// a SQLite file path (the default deployment).
type GormStore struct {
	db *gorm.DB
}

// NewGormStore opens the DB and runs auto-migrations.
func NewGormStore(dsn string) (*GormStore, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, errors.New("database DSN required")
	}

	gormLog := gormlogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	var dialector gorm.Dialector
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		dialector = postgres.Open(dsn)
	} else {
		dialector = sqlite.Open(dsn)
	}

	db, err := gorm.Open(dialector, &gorm.Config{Logger: gormLog})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := db.AutoMigrate(&DocumentModel{}); err != nil {
		return nil, fmt.Errorf("auto migrate: %w", err)
	}
	return &GormStore{db: db}, nil
}

// CreateDocument inserts a new record with a server-assigned upload time.
func (s *GormStore) CreateDocument(doc domain.Document) (domain.Document, error) {
	if strings.TrimSpace(doc.ID) == "" {
		return domain.Document{}, errors.New("document id required")
	}
	if doc.Status == "" {
		doc.Status = domain.StatusUploaded
	}
	doc.UploadedAt = time.Now().UTC()

	model, err := toModel(doc)
	if err != nil {
		return domain.Document{}, err
	}
	if err := s.db.Create(&model).Error; err != nil {
		return domain.Document{}, fmt.Errorf("create document: %w", err)
	}
	return doc, nil
}

// UpdateDocument applies only the fields present in the update. Updating an
// unknown id is a silent no-op.
func (s *GormStore) UpdateDocument(id string, update DocumentUpdate) error {
	if update.Empty() {
		return nil
	}
	values := map[string]any{}
	if update.Status != nil {
		values["status"] = string(*update.Status)
	}
	if update.ProcessedAt != nil {
		values["processed_at"] = update.ProcessedAt.UTC()
	}
	if update.Metadata != nil {
		raw, err := json.Marshal(update.Metadata)
		if err != nil {
			return fmt.Errorf("encode metadata: %w", err)
		}
		values["metadata"] = datatypes.JSON(raw)
	}
	if update.ErrorMessage != nil {
		values["error_message"] = *update.ErrorMessage
	}
	if err := s.db.Model(&DocumentModel{}).Where("id = ?", id).Updates(values).Error; err != nil {
		return fmt.Errorf("update document: %w", err)
	}
	return nil
}

// GetDocument retrieves a document by id.
func (s *GormStore) GetDocument(id string) (domain.Document, bool, error) {
	var model DocumentModel
	err := s.db.First(&model, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.Document{}, false, nil
	}
	if err != nil {
		return domain.Document{}, false, fmt.Errorf("get document: %w", err)
	}
	doc, err := fromModel(model)
	if err != nil {
		return domain.Document{}, false, err
	}
	return doc, true, nil
}

// ListDocuments returns all documents, newest upload first.
func (s *GormStore) ListDocuments() ([]domain.Document, error) {
	var models []DocumentModel
	if err := s.db.Order("uploaded_at DESC").Find(&models).Error; err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	docs := make([]domain.Document, 0, len(models))
	for _, model := range models {
		doc, err := fromModel(model)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

func toModel(doc domain.Document) (DocumentModel, error) {
	model := DocumentModel{
		ID:           doc.ID,
		Filename:     doc.Filename,
		OriginalName: doc.OriginalName,
		MimeType:     doc.MimeType,
		SizeBytes:    doc.Size,
		Status:       string(doc.Status),
		UploadedAt:   doc.UploadedAt.UTC(),
		ProcessedAt:  doc.ProcessedAt,
		ErrorMessage: doc.ErrorMessage,
	}
	if doc.Metadata != nil {
		raw, err := json.Marshal(doc.Metadata)
		if err != nil {
			return DocumentModel{}, fmt.Errorf("encode metadata: %w", err)
		}
		model.Metadata = datatypes.JSON(raw)
	}
	return model, nil
}

func fromModel(model DocumentModel) (domain.Document, error) {
	doc := domain.Document{
		ID:           model.ID,
		Filename:     model.Filename,
		OriginalName: model.OriginalName,
		MimeType:     model.MimeType,
		Size:         model.SizeBytes,
		Status:       domain.ProcessingStatus(model.Status),
		UploadedAt:   model.UploadedAt,
		ProcessedAt:  model.ProcessedAt,
		ErrorMessage: model.ErrorMessage,
	}
	if len(model.Metadata) > 0 {
		var md domain.DocumentMetadata
		if err := json.Unmarshal(model.Metadata, &md); err != nil {
			return domain.Document{}, fmt.Errorf("decode metadata: %w", err)
		}
		doc.Metadata = &md
	}
	return doc, nil
}
