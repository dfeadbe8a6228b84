package handlers

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mukando/payment-service/internal/domain"
	"github.com/mukando/payment-service/internal/flow"
	"github.com/mukando/payment-service/pkg/logger"
)

// defaultSessionTTL bounds how long an untouched session is kept.
const defaultSessionTTL = 30 * time.Minute

// CheckoutHandler serves the checkout session endpoints. Sessions are held
// in memory, keyed by transaction reference; one session per attempt.
// Succeeded and idle sessions are swept on every create so the map stays
// bounded in a long-running service.
type CheckoutHandler struct {
	gw       flow.StatusGateway
	log      *logger.Logger
	interval time.Duration
	ttl      time.Duration

	mu       sync.Mutex
	sessions map[string]*sessionEntry
}

type sessionEntry struct {
	session *flow.Session
	touched time.Time
}

// NewCheckoutHandler creates a checkout handler whose sessions poll at the
// given interval.
func NewCheckoutHandler(gw flow.StatusGateway, interval time.Duration, log *logger.Logger) *CheckoutHandler {
	return &CheckoutHandler{
		gw:       gw,
		log:      log,
		interval: interval,
		ttl:      defaultSessionTTL,
		sessions: make(map[string]*sessionEntry),
	}
}

type createSessionRequest struct {
	Reference  string `json:"reference" binding:"required"`
	MethodType string `json:"method_type" binding:"required"`
}

type submitRequest struct {
	Code string `json:"code"`
}

// CreateSession opens a checkout session for an already initiated attempt.
func (h *CheckoutHandler) CreateSession(c *gin.Context) {
	var req createSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.sweepLocked()
	if _, exists := h.sessions[req.Reference]; exists {
		c.JSON(http.StatusConflict, gin.H{"error": "a session for this reference already exists"})
		return
	}

	session := flow.NewSession(h.gw, domain.PaymentMethod{Type: req.MethodType}, req.Reference, h.interval, h.log)
	h.sessions[req.Reference] = &sessionEntry{session: session, touched: time.Now()}

	h.log.Info("Checkout session opened: %s", req.Reference)
	c.JSON(http.StatusCreated, sessionView(session))
}

// sweepLocked closes and drops sessions that are done or abandoned: a
// succeeded session is absorbing and keeps no poller, an untouched one past
// the TTL is considered abandoned.
func (h *CheckoutHandler) sweepLocked() {
	now := time.Now()
	for reference, entry := range h.sessions {
		if entry.session.State() == flow.StateSucceeded || now.Sub(entry.touched) > h.ttl {
			entry.session.Close()
			delete(h.sessions, reference)
			h.log.Debug("Checkout session evicted: %s", reference)
		}
	}
}

// GetSession returns the session's current state.
func (h *CheckoutHandler) GetSession(c *gin.Context) {
	session, ok := h.lookup(c.Param("reference"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}
	c.JSON(http.StatusOK, sessionView(session))
}

// SubmitVerification confirms the attempt and starts status polling.
func (h *CheckoutHandler) SubmitVerification(c *gin.Context) {
	session, ok := h.lookup(c.Param("reference"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}

	var req submitRequest
	if err := c.ShouldBindJSON(&req); err != nil && c.Request.ContentLength > 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := session.Submit(req.Code); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, sessionView(session))
}

// RetrySession re-enters verification after a failure.
func (h *CheckoutHandler) RetrySession(c *gin.Context) {
	session, ok := h.lookup(c.Param("reference"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}

	if err := session.Retry(); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, sessionView(session))
}

// CancelSession cancels the attempt and removes the session.
func (h *CheckoutHandler) CancelSession(c *gin.Context) {
	reference := c.Param("reference")

	h.mu.Lock()
	entry, ok := h.sessions[reference]
	if ok {
		delete(h.sessions, reference)
	}
	h.mu.Unlock()

	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}

	entry.session.Cancel(c.Request.Context())
	h.log.Info("Checkout session cancelled: %s", reference)
	c.JSON(http.StatusOK, gin.H{"reference": reference, "state": string(flow.StateFailed), "cancelled": true})
}

func (h *CheckoutHandler) lookup(reference string) (*flow.Session, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	entry, ok := h.sessions[reference]
	if !ok {
		return nil, false
	}
	entry.touched = time.Now()
	return entry.session, true
}

func sessionView(s *flow.Session) gin.H {
	msg, kind := s.Err()
	view := gin.H{
		"reference":       s.Reference(),
		"state":           string(s.State()),
		"attempts":        s.Attempts(),
		"connection_help": s.ConnectionHelp(),
	}
	if msg != "" {
		view["error"] = msg
		view["error_kind"] = string(kind)
	}
	if result := s.Result(); result != nil {
		view["result"] = result
	}
	return view
}
