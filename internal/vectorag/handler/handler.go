// Package handler provides HTTP handlers for the retrieval pipeline service.
package handler

import (
	"context"
	"io"
	"net/http"
	"path/filepath"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/kart-io/vectorag/internal/vectorag/biz"
	"github.com/kart-io/vectorag/internal/vectorag/metrics"
	"github.com/kart-io/vectorag/pkg/errors"
)

// defaultRequestTimeout bounds search and ingest request handling.
const defaultRequestTimeout = 60 * time.Second

// defaultMaxUploadSize is the maximum accepted upload size in bytes.
const defaultMaxUploadSize = 16 << 20

// Config contains handler level settings.
type Config struct {
	// RequestTimeout bounds the handling of a single request.
	RequestTimeout time.Duration
	// MaxUploadSize is the maximum accepted document upload size in bytes.
	MaxUploadSize int64
}

// PipelineHandler handles retrieval pipeline HTTP requests.
type PipelineHandler struct {
	service        biz.Service
	requestTimeout time.Duration
	maxUploadSize  int64
}

// NewPipelineHandler creates a new PipelineHandler.
func NewPipelineHandler(service biz.Service, cfg *Config) *PipelineHandler {
	h := &PipelineHandler{
		service:        service,
		requestTimeout: defaultRequestTimeout,
		maxUploadSize:  defaultMaxUploadSize,
	}
	if cfg != nil {
		if cfg.RequestTimeout > 0 {
			h.requestTimeout = cfg.RequestTimeout
		}
		if cfg.MaxUploadSize > 0 {
			h.maxUploadSize = cfg.MaxUploadSize
		}
	}
	return h
}

// SuccessResponse is a standard success response.
type SuccessResponse struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// ErrorResponse is a standard error response.
type ErrorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// writeError maps a business error to its HTTP status and error code.
func writeError(c *gin.Context, err error) {
	e := errors.FromError(err)
	c.JSON(e.HTTPStatus(), ErrorResponse{Code: e.Code, Message: e.Error()})
}

// IngestRequest represents a single document ingestion request.
type IngestRequest struct {
	DocumentName string `json:"document_name" binding:"required"`
	Content      string `json:"content" binding:"required"`
	Source       string `json:"source"`
}

// Ingest ingests a single document into the knowledge base.
func (h *PipelineHandler) Ingest(c *gin.Context) {
	var req IngestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Code: errors.ErrInvalidInput.Code, Message: err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.requestTimeout)
	defer cancel()

	result, err := h.service.Ingest(ctx, req.DocumentName, req.Content, req.Source)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			c.JSON(http.StatusRequestTimeout, ErrorResponse{
				Code:    http.StatusRequestTimeout,
				Message: "Ingest timeout: the document took too long to process. Please try a smaller document.",
			})
			return
		}
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{Code: 0, Message: "Document ingested successfully", Data: result})
}

// IngestFile ingests an uploaded document file.
func (h *PipelineHandler) IngestFile(c *gin.Context) {
	file, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Code: errors.ErrInvalidInput.Code, Message: "missing file field: " + err.Error()})
		return
	}
	if file.Size > h.maxUploadSize {
		c.JSON(http.StatusRequestEntityTooLarge, ErrorResponse{
			Code:    http.StatusRequestEntityTooLarge,
			Message: "uploaded file exceeds the maximum allowed size",
		})
		return
	}

	f, err := file.Open()
	if err != nil {
		writeError(c, errors.ErrInvalidInput.WithCause(err))
		return
	}
	defer func() { _ = f.Close() }()

	content, err := io.ReadAll(io.LimitReader(f, h.maxUploadSize+1))
	if err != nil {
		writeError(c, errors.ErrInvalidInput.WithCause(err))
		return
	}
	if int64(len(content)) > h.maxUploadSize {
		c.JSON(http.StatusRequestEntityTooLarge, ErrorResponse{
			Code:    http.StatusRequestEntityTooLarge,
			Message: "uploaded file exceeds the maximum allowed size",
		})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.requestTimeout)
	defer cancel()

	result, err := h.service.Ingest(ctx, filepath.Base(file.Filename), string(content), file.Filename)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{Code: 0, Message: "Document ingested successfully", Data: result})
}

// IngestDirectoryRequest represents a directory ingestion request.
type IngestDirectoryRequest struct {
	Directory string `json:"directory" binding:"required"`
}

// IngestDirectory ingests all text documents under a local directory.
func (h *PipelineHandler) IngestDirectory(c *gin.Context) {
	var req IngestDirectoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Code: errors.ErrInvalidInput.Code, Message: err.Error()})
		return
	}

	result, err := h.service.IngestDirectory(c.Request.Context(), req.Directory)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{Code: 0, Message: "Directory ingested successfully", Data: result})
}

// SearchRequest represents a semantic search request.
type SearchRequest struct {
	Query      string `json:"query" binding:"required"`
	TopK       int    `json:"top_k"`
	WithAnswer bool   `json:"with_answer"`
}

// Search performs a semantic search, optionally synthesizing an answer.
func (h *PipelineHandler) Search(c *gin.Context) {
	var req SearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Code: errors.ErrInvalidInput.Code, Message: err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.requestTimeout)
	defer cancel()

	result, err := h.service.Search(ctx, req.Query, req.TopK, req.WithAnswer)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			c.JSON(http.StatusRequestTimeout, ErrorResponse{
				Code:    http.StatusRequestTimeout,
				Message: "Search timeout: the request took too long to process. Please try again or simplify your query.",
			})
			return
		}
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{Code: 0, Message: "Search completed successfully", Data: result})
}

// ListIndices lists the collections present in the vector store.
func (h *PipelineHandler) ListIndices(c *gin.Context) {
	names, err := h.service.ListCollections(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{Code: 0, Message: "Indices retrieved successfully", Data: gin.H{
		"indices": names,
		"count":   len(names),
	}})
}

// Stats returns knowledge base statistics.
func (h *PipelineHandler) Stats(c *gin.Context) {
	stats, err := h.service.GetStats(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{Code: 0, Message: "Stats retrieved successfully", Data: stats})
}

// Healthz reports the health of the service and its dependencies.
func (h *PipelineHandler) Healthz(c *gin.Context) {
	if err := h.service.Health(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Metrics exposes pipeline metrics in Prometheus text format.
func (h *PipelineHandler) Metrics(c *gin.Context) {
	c.Data(http.StatusOK, "text/plain; version=0.0.4; charset=utf-8",
		[]byte(metrics.GetPipelineMetrics().Export("vectorag", "pipeline")))
}
