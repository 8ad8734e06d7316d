// Package model provides data models for the Lumen retrieval platform.
package model

import (
	"fmt"
	"time"
)

// Modality tags a fragment or vector space by the kind of content it
// was derived from.
type Modality string

const (
	ModalityText  Modality = "text"
	ModalityImage Modality = "image"
	ModalityAudio Modality = "audio"
)

// AllModalities returns the supported modalities in canonical order.
func AllModalities() []Modality {
	return []Modality{ModalityText, ModalityImage, ModalityAudio}
}

// Valid reports whether m is a known modality.
func (m Modality) Valid() bool {
	switch m {
	case ModalityText, ModalityImage, ModalityAudio:
		return true
	}
	return false
}

// AllowedFragmentModalities returns the fragment modalities a document
// of the given origin may produce. Image and audio documents also yield
// text fragments (OCR text, transcripts).
func AllowedFragmentModalities(origin Modality) []Modality {
	switch origin {
	case ModalityText:
		return []Modality{ModalityText}
	case ModalityImage:
		return []Modality{ModalityImage, ModalityText}
	case ModalityAudio:
		return []Modality{ModalityAudio, ModalityText}
	}
	return nil
}

// Vector is an embedding vector.
type Vector []float32

// DocumentStatus tracks a document's ingestion lifecycle.
type DocumentStatus string

const (
	DocumentPending   DocumentStatus = "pending"
	DocumentProcessed DocumentStatus = "processed"
	DocumentFailed    DocumentStatus = "failed"
)

// Document represents a source document in the knowledge base.
type Document struct {
	ID            string         `json:"id" gorm:"primaryKey;type:varchar(26)"`
	Filename      string         `json:"filename" gorm:"type:varchar(255);not null"`
	Modality      Modality       `json:"modality" gorm:"type:varchar(16);not null"`
	Status        DocumentStatus `json:"status" gorm:"type:varchar(16);default:'pending'"`
	FragmentCount int            `json:"fragment_count" gorm:"default:0"`
	CreatedAt     time.Time      `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt     time.Time      `json:"updated_at" gorm:"autoUpdateTime"`
}

// TableName specifies the table name for Document.
func (Document) TableName() string {
	return "retrieval_documents"
}

// Fragment is the unit of retrieval: one embedded slice of a document.
// The embedding vector itself lives in the per-modality index, keyed by
// the fragment id.
type Fragment struct {
	ID         string            `json:"id" gorm:"primaryKey;type:varchar(26)"`
	DocumentID string            `json:"document_id" gorm:"type:varchar(26);index;not null"`
	Modality   Modality          `json:"modality" gorm:"type:varchar(16);not null"`
	Content    string            `json:"content" gorm:"type:text"`
	PageNumber *int              `json:"page_number,omitempty"`
	StartMS    *int64            `json:"start_ms,omitempty"`
	EndMS      *int64            `json:"end_ms,omitempty"`
	Meta       map[string]string `json:"meta,omitempty" gorm:"serializer:json"`
	CreatedAt  time.Time         `json:"created_at" gorm:"autoCreateTime"`
}

// TableName specifies the table name for Fragment.
func (Fragment) TableName() string {
	return "retrieval_fragments"
}

// Locator renders the fragment's position in its source document, or ""
// when the fragment has none.
func (f *Fragment) Locator() string {
	if f.PageNumber != nil {
		return fmt.Sprintf("page %d", *f.PageNumber)
	}
	if f.StartMS != nil {
		end := *f.StartMS
		if f.EndMS != nil {
			end = *f.EndMS
		}
		return fmt.Sprintf("%s-%s", formatMS(*f.StartMS), formatMS(end))
	}
	return ""
}

func formatMS(ms int64) string {
	secs := ms / 1000
	return fmt.Sprintf("%02d:%02d", secs/60, secs%60)
}

// Candidate is a scored retrieval hit, hydrated with registry metadata.
// The raw locator fields are carried alongside the rendered Locator so
// overlap checks compare positions, not display strings.
type Candidate struct {
	FragmentID string   `json:"fragment_id"`
	DocumentID string   `json:"document_id"`
	Filename   string   `json:"filename"`
	Modality   Modality `json:"modality"`
	Score      float64  `json:"score"`
	Content    string   `json:"content"`
	Locator    string   `json:"locator,omitempty"`
	PageNumber *int     `json:"page_number,omitempty"`
	StartMS    *int64   `json:"start_ms,omitempty"`
	EndMS      *int64   `json:"end_ms,omitempty"`
}

// OverlapsLocation reports whether two candidates cite the same position
// of the same document: an identical page, or intersecting audio time
// ranges. Candidates without a locator never overlap.
func (c *Candidate) OverlapsLocation(other *Candidate) bool {
	if c.DocumentID != other.DocumentID {
		return false
	}
	if c.PageNumber != nil && other.PageNumber != nil {
		return *c.PageNumber == *other.PageNumber
	}
	if c.StartMS != nil && other.StartMS != nil {
		return c.endMS() >= *other.StartMS && other.endMS() >= *c.StartMS
	}
	return false
}

func (c *Candidate) endMS() int64 {
	if c.EndMS != nil {
		return *c.EndMS
	}
	return *c.StartMS
}

// Citation is a numbered provenance record derived from a candidate.
// Numbers are assigned 1..N in candidate order within a single response.
type Citation struct {
	Number     int      `json:"citation_number"`
	FragmentID string   `json:"fragment_id"`
	DocumentID string   `json:"document_id"`
	Filename   string   `json:"filename"`
	Modality   Modality `json:"modality"`
	Score      float64  `json:"similarity_score"`
	Locator    string   `json:"locator,omitempty"`
	Excerpt    string   `json:"excerpt"`
}

// QueryResult is the full response of one retrieval query.
type QueryResult struct {
	Question   string      `json:"question"`
	Candidates []Candidate `json:"candidates"`
	Citations  []Citation  `json:"citations"`
	Answer     string      `json:"answer,omitempty"`
}
