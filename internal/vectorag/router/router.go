// Package router provides retrieval pipeline service routing.
package router

import (
	"github.com/gin-gonic/gin"
	"github.com/kart-io/logger"

	"github.com/kart-io/vectorag/internal/vectorag/handler"
)

// Register registers the retrieval pipeline routes.
func Register(engine *gin.Engine, h *handler.PipelineHandler) {
	engine.GET("/healthz", h.Healthz)
	engine.GET("/metrics", h.Metrics)

	v1 := engine.Group("/api/v1")
	{
		// Ingestion endpoints
		v1.POST("/ingest", h.Ingest)
		v1.POST("/ingest-file", h.IngestFile)
		v1.POST("/ingest-directory", h.IngestDirectory)

		// Search endpoint
		v1.POST("/search", h.Search)

		// Introspection endpoints
		v1.GET("/indices", h.ListIndices)
		v1.GET("/stats", h.Stats)
	}

	logger.Info("HTTP routes registered")
}
