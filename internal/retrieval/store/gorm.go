package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/lumenkb/lumen/internal/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// gormRegistry implements Registry on a gorm database handle. It works
// against the embedded sqlite engine in tests and PostgreSQL in
// production.
type gormRegistry struct {
	db *gorm.DB
}

// NewGormRegistry creates a Registry backed by db and migrates the
// document and fragment tables.
func NewGormRegistry(db *gorm.DB) (Registry, error) {
	if err := db.AutoMigrate(&model.Document{}, &model.Fragment{}); err != nil {
		return nil, fmt.Errorf("migrate registry tables: %w", err)
	}
	return &gormRegistry{db: db}, nil
}

func (r *gormRegistry) CreateDocument(ctx context.Context, doc *model.Document) error {
	if doc.ID == "" {
		return model.NewValidationError("document.id", "must not be empty")
	}
	if !doc.Modality.Valid() {
		return model.NewValidationError("document.modality", fmt.Sprintf("unknown modality %q", doc.Modality))
	}
	if doc.Status == "" {
		doc.Status = model.DocumentPending
	}
	return r.db.WithContext(ctx).Create(doc).Error
}

func (r *gormRegistry) GetDocument(ctx context.Context, id string) (*model.Document, error) {
	var doc model.Document
	err := r.db.WithContext(ctx).First(&doc, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

func (r *gormRegistry) ListDocuments(ctx context.Context) ([]*model.Document, error) {
	var docs []*model.Document
	err := r.db.WithContext(ctx).Order("created_at DESC, id DESC").Find(&docs).Error
	return docs, err
}

func (r *gormRegistry) SetDocumentStatus(ctx context.Context, id string, status model.DocumentStatus, fragmentCount int) error {
	res := r.db.WithContext(ctx).Model(&model.Document{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":         status,
			"fragment_count": fragmentCount,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return model.ErrNotFound
	}
	return nil
}

func (r *gormRegistry) PutFragment(ctx context.Context, frag *model.Fragment) error {
	if frag.ID == "" {
		return model.NewValidationError("fragment.id", "must not be empty")
	}
	if !frag.Modality.Valid() {
		return model.NewValidationError("fragment.modality", fmt.Sprintf("unknown modality %q", frag.Modality))
	}

	doc, err := r.GetDocument(ctx, frag.DocumentID)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return model.NewValidationError("fragment.document_id",
				fmt.Sprintf("document %s does not exist", frag.DocumentID))
		}
		return err
	}

	if !modalityAllowed(doc.Modality, frag.Modality) {
		return model.NewValidationError("fragment.modality",
			fmt.Sprintf("%s fragments are not allowed for a %s document", frag.Modality, doc.Modality))
	}

	// Re-putting a fragment id replaces the row, mirroring the index's
	// idempotent insert.
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(frag).Error
}

func modalityAllowed(origin, fragment model.Modality) bool {
	for _, m := range model.AllowedFragmentModalities(origin) {
		if m == fragment {
			return true
		}
	}
	return false
}

func (r *gormRegistry) GetFragment(ctx context.Context, id string) (*model.Fragment, error) {
	var frag model.Fragment
	err := r.db.WithContext(ctx).First(&frag, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &frag, nil
}

func (r *gormRegistry) GetFragments(ctx context.Context, ids []string) (map[string]*model.Fragment, error) {
	out := make(map[string]*model.Fragment, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	var frags []*model.Fragment
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&frags).Error; err != nil {
		return nil, err
	}
	for _, f := range frags {
		out[f.ID] = f
	}
	return out, nil
}

// ListFragmentsByDocument orders by locator ascending with fragments
// lacking a locator last, ties broken by fragment id. A fragment's
// locator is its page number or its audio start offset.
func (r *gormRegistry) ListFragmentsByDocument(ctx context.Context, documentID string) ([]*model.Fragment, error) {
	var frags []*model.Fragment
	err := r.db.WithContext(ctx).
		Where("document_id = ?", documentID).
		Order("CASE WHEN page_number IS NULL AND start_ms IS NULL THEN 1 ELSE 0 END, COALESCE(page_number, start_ms) ASC, id ASC").
		Find(&frags).Error
	return frags, err
}

func (r *gormRegistry) DeleteDocumentCascade(ctx context.Context, documentID string) ([]string, error) {
	var removed []string

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var doc model.Document
		if err := tx.First(&doc, "id = ?", documentID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return model.ErrNotFound
			}
			return err
		}

		var ids []string
		if err := tx.Model(&model.Fragment{}).
			Where("document_id = ?", documentID).
			Order("id ASC").
			Pluck("id", &ids).Error; err != nil {
			return err
		}

		if err := tx.Where("document_id = ?", documentID).Delete(&model.Fragment{}).Error; err != nil {
			return err
		}
		if err := tx.Delete(&model.Document{}, "id = ?", documentID).Error; err != nil {
			return err
		}

		removed = ids
		return nil
	})
	if err != nil {
		return nil, err
	}
	return removed, nil
}

func (r *gormRegistry) CountFragments(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&model.Fragment{}).Count(&n).Error
	return n, err
}

func (r *gormRegistry) CountDocuments(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&model.Document{}).Count(&n).Error
	return n, err
}
