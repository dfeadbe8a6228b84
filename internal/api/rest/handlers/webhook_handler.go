package handlers

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mukando/payment-service/internal/service"
	"github.com/mukando/payment-service/pkg/logger"
)

// WebhookHandler serves gateway result callbacks. Webhook payloads are never
// trusted directly; the referenced transaction is re-verified against the
// gateway before anything is recorded.
type WebhookHandler struct {
	processor *service.Processor
	log       *logger.Logger
}

// NewWebhookHandler creates a webhook handler.
func NewWebhookHandler(processor *service.Processor, log *logger.Logger) *WebhookHandler {
	return &WebhookHandler{
		processor: processor,
		log:       log,
	}
}

// HandlePesePayWebhook verifies a result callback and returns the verified
// transaction state.
func (h *WebhookHandler) HandlePesePayWebhook(c *gin.Context) {
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, 1<<20))
	if err != nil {
		h.log.Warn("Failed to read webhook body: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable body"})
		return
	}

	result, verr := h.processor.VerifyWebhook(c.Request.Context(), payload)
	if verr != nil {
		writeClassified(c, verr)
		return
	}

	h.log.Info("Webhook verified for %s: %s", result.Reference, result.Status)
	c.JSON(http.StatusOK, result)
}
