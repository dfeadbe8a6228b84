package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mukando/payment-service/internal/domain"
	"github.com/mukando/payment-service/internal/service"
	"github.com/mukando/payment-service/pkg/logger"
)

// PaymentHandler serves the payment endpoints.
type PaymentHandler struct {
	processor *service.Processor
	log       *logger.Logger
}

// NewPaymentHandler creates a payment handler on top of the processor.
func NewPaymentHandler(processor *service.Processor, log *logger.Logger) *PaymentHandler {
	return &PaymentHandler{
		processor: processor,
		log:       log,
	}
}

// CreatePayment starts a payment attempt. Mobile-money methods settle through
// a USSD prompt; other methods return a redirect URL.
func (h *PaymentHandler) CreatePayment(c *gin.Context) {
	var req domain.PaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Warn("Invalid payment request: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.processor.ProcessPayment(c.Request.Context(), &req)
	if err != nil {
		writeClassified(c, err)
		return
	}

	h.log.Info("Payment attempt started: %s via %s", result.Reference, req.Method.Type)
	c.JSON(http.StatusAccepted, result)
}

// GetMethods returns the supported payment methods.
func (h *PaymentHandler) GetMethods(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"methods": h.processor.Methods()})
}

// GetStatus returns the current status of a payment attempt.
func (h *PaymentHandler) GetStatus(c *gin.Context) {
	reference := c.Param("reference")

	result, err := h.processor.CheckStatus(c.Request.Context(), reference)
	if err != nil {
		writeClassified(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// CancelPayment requests cancellation of a payment attempt. The gateway
// cancel is best-effort; the response says whether the remote prompt may
// still complete.
func (h *PaymentHandler) CancelPayment(c *gin.Context) {
	reference := c.Param("reference")

	result, err := h.processor.CancelPayment(c.Request.Context(), reference)
	if err != nil {
		writeClassified(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// RetryPayment re-runs the last payment operation after a failure.
func (h *PaymentHandler) RetryPayment(c *gin.Context) {
	result, err := h.processor.Retry(c.Request.Context())
	if err != nil {
		writeClassified(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// writeClassified maps a classified error onto an HTTP response. Every error
// that reaches a handler is classified; unknown kinds fall back to 500.
func writeClassified(c *gin.Context, err error) {
	cerr := domain.AsClassified(err)

	status := http.StatusInternalServerError
	switch cerr.Kind {
	case domain.KindValidation:
		status = http.StatusBadRequest
	case domain.KindAuth:
		status = http.StatusUnauthorized
	case domain.KindPermission:
		status = http.StatusForbidden
	case domain.KindPayment:
		status = http.StatusUnprocessableEntity
	case domain.KindConfig:
		status = http.StatusServiceUnavailable
	case domain.KindNetwork, domain.KindDNS, domain.KindConnectionRefused, domain.KindTimeout:
		status = http.StatusBadGateway
	case domain.KindCancelled:
		status = http.StatusConflict
	}

	c.JSON(status, gin.H{
		"error": cerr.Message,
		"kind":  string(cerr.Kind),
	})
}
