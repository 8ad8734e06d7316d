// Package store provides the fragment registry: the durable system of
// record for documents and fragment metadata. The registry is
// authoritative; an index entry whose fragment has no registry row is
// an orphan and never surfaces to callers.
package store

import (
	"context"

	"github.com/lumenkb/lumen/internal/model"
)

// Registry is the durable store for documents and fragments.
type Registry interface {
	// CreateDocument inserts a new document row.
	CreateDocument(ctx context.Context, doc *model.Document) error

	// GetDocument returns a document by id, or ErrNotFound.
	GetDocument(ctx context.Context, id string) (*model.Document, error)

	// ListDocuments returns all documents, newest first.
	ListDocuments(ctx context.Context) ([]*model.Document, error)

	// SetDocumentStatus updates a document's status and fragment
	// count.
	SetDocumentStatus(ctx context.Context, id string, status model.DocumentStatus, fragmentCount int) error

	// PutFragment inserts a fragment row. The referenced document
	// must exist and the fragment modality must be allowed for the
	// document's origin modality.
	PutFragment(ctx context.Context, frag *model.Fragment) error

	// GetFragment returns a fragment by id, or ErrNotFound.
	GetFragment(ctx context.Context, id string) (*model.Fragment, error)

	// GetFragments returns the fragments for the given ids. Missing
	// ids are silently omitted; callers use the gap to detect
	// orphaned index entries.
	GetFragments(ctx context.Context, ids []string) (map[string]*model.Fragment, error)

	// ListFragmentsByDocument returns all fragments of a document.
	ListFragmentsByDocument(ctx context.Context, documentID string) ([]*model.Fragment, error)

	// DeleteDocumentCascade removes the document row and every
	// fragment row of the document in one transaction, returning the
	// ids of the removed fragments.
	DeleteDocumentCascade(ctx context.Context, documentID string) ([]string, error)

	// CountFragments returns the total number of fragment rows.
	CountFragments(ctx context.Context) (int64, error)

	// CountDocuments returns the total number of document rows.
	CountDocuments(ctx context.Context) (int64, error)
}
