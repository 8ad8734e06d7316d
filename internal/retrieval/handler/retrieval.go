// Package handler provides the HTTP handlers of the retrieval service.
package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lumenkb/lumen/internal/model"
	"github.com/lumenkb/lumen/internal/retrieval/biz"
)

// DefaultQueryTimeout bounds a single query end to end, including
// answer generation.
const DefaultQueryTimeout = 60 * time.Second

// RetrievalHandler handles the retrieval HTTP API.
type RetrievalHandler struct {
	service      biz.Service
	queryTimeout time.Duration
}

// NewRetrievalHandler creates a RetrievalHandler. A zero queryTimeout
// means DefaultQueryTimeout.
func NewRetrievalHandler(service biz.Service, queryTimeout time.Duration) *RetrievalHandler {
	if queryTimeout <= 0 {
		queryTimeout = DefaultQueryTimeout
	}
	return &RetrievalHandler{
		service:      service,
		queryTimeout: queryTimeout,
	}
}

// SuccessResponse is a standard success response.
type SuccessResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// ErrorResponse is a standard error response.
type ErrorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// writeError maps the error taxonomy onto HTTP status codes.
func writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError

	var verr *model.ValidationError
	var dimErr *model.DimensionMismatchError
	switch {
	case errors.As(err, &verr), errors.As(err, &dimErr):
		status = http.StatusBadRequest
	case errors.Is(err, model.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, context.DeadlineExceeded):
		status = http.StatusRequestTimeout
	}

	c.JSON(status, ErrorResponse{Code: status, Message: err.Error()})
}

// Ingest embeds and indexes a document.
func (h *RetrievalHandler) Ingest(c *gin.Context) {
	var req biz.IngestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Code: 400, Message: err.Error()})
		return
	}

	doc, err := h.service.Ingest(c.Request.Context(), &req)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{Code: 0, Message: "document ingested", Data: doc})
}

// GetDocument returns one document.
func (h *RetrievalHandler) GetDocument(c *gin.Context) {
	doc, err := h.service.GetDocument(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, SuccessResponse{Code: 0, Message: "success", Data: doc})
}

// ListDocuments returns all documents, newest first.
func (h *RetrievalHandler) ListDocuments(c *gin.Context) {
	docs, err := h.service.ListDocuments(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, SuccessResponse{Code: 0, Message: "success", Data: docs})
}

// DeleteDocumentResponse reports the result of a cascade delete.
type DeleteDocumentResponse struct {
	DocumentID       string   `json:"document_id"`
	RemovedFragments []string `json:"removed_fragments"`
}

// DeleteDocument removes a document, its fragments and their vectors.
func (h *RetrievalHandler) DeleteDocument(c *gin.Context) {
	id := c.Param("id")

	removed, err := h.service.DeleteDocument(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{
		Code:    0,
		Message: "document deleted",
		Data:    DeleteDocumentResponse{DocumentID: id, RemovedFragments: removed},
	})
}

// QueryRequest is a retrieval query. The embedded options flatten into
// the request body.
type QueryRequest struct {
	Question string `json:"question" binding:"required"`
	biz.QueryOptions
}

// Query answers a question with ranked candidates and citations.
func (h *RetrievalHandler) Query(c *gin.Context) {
	var req QueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Code: 400, Message: err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.queryTimeout)
	defer cancel()

	result, err := h.service.Query(ctx, req.Question, &req.QueryOptions)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			c.JSON(http.StatusRequestTimeout, ErrorResponse{
				Code:    408,
				Message: "query timeout: the request took too long to process",
			})
			return
		}
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{Code: 0, Message: "success", Data: result})
}

// Stats returns knowledge base statistics.
func (h *RetrievalHandler) Stats(c *gin.Context) {
	stats, err := h.service.GetStats(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, SuccessResponse{Code: 0, Message: "success", Data: stats})
}
