package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mukando/payment-service/internal/domain"
	"github.com/mukando/payment-service/internal/service"
)

// HealthHandler reports service and gateway health.
type HealthHandler struct {
	processor *service.Processor
}

// NewHealthHandler creates a health handler.
func NewHealthHandler(processor *service.Processor) *HealthHandler {
	return &HealthHandler{processor: processor}
}

// HealthCheck probes gateway reachability. Misconfiguration and an
// unreachable gateway both answer 503 so orchestrators keep traffic away.
func (h *HealthHandler) HealthCheck(c *gin.Context) {
	if err := h.processor.HealthCheck(c.Request.Context()); err != nil {
		cerr := domain.AsClassified(err)
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "unhealthy",
			"kind":   string(cerr.Kind),
			"error":  cerr.Message,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"gateway": string(h.processor.Connection()),
	})
}
