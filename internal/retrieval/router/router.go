// Package router wires the retrieval HTTP routes.
package router

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kart-io/logger"
	"github.com/lumenkb/lumen/internal/retrieval/handler"
	"github.com/lumenkb/lumen/internal/retrieval/metrics"
)

// MetricsNamespace prefixes the exported Prometheus metric names.
const MetricsNamespace = "lumen_retrieval"

// Register registers the retrieval routes on the engine.
func Register(engine *gin.Engine, h *handler.RetrievalHandler) {
	engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	engine.GET("/metrics", func(c *gin.Context) {
		c.String(http.StatusOK, metrics.Get().Export(MetricsNamespace))
	})

	v1 := engine.Group("/v1")
	{
		retrieval := v1.Group("/retrieval")
		{
			retrieval.POST("/documents", h.Ingest)
			retrieval.GET("/documents", h.ListDocuments)
			retrieval.GET("/documents/:id", h.GetDocument)
			retrieval.DELETE("/documents/:id", h.DeleteDocument)

			retrieval.POST("/query", h.Query)
			retrieval.GET("/stats", h.Stats)
		}
	}

	logger.Info("retrieval routes registered")
}
