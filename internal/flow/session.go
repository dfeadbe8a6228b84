package flow

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/mukando/payment-service/internal/domain"
	"github.com/mukando/payment-service/pkg/logger"
)

// State is a checkout session's position in the payment flow.
type State string

const (
	// StateVerification waits for the member to confirm the attempt. For
	// mobile money the real verification is the USSD prompt on their phone,
	// so no code is collected; other methods need a locally validated code.
	StateVerification State = "verification"
	// StateProcessing polls the gateway until the attempt turns terminal.
	StateProcessing State = "processing"
	// StateSucceeded is absorbing for the attempt.
	StateSucceeded State = "success"
	// StateFailed can return to StateVerification through Retry.
	StateFailed State = "error"
)

// DefaultPollInterval is how often a processing session checks the payment
// status.
const DefaultPollInterval = 3 * time.Second

// StatusGateway is the slice of the payment processor a session drives.
type StatusGateway interface {
	CheckStatus(ctx context.Context, reference string) (*domain.PaymentResult, error)
	CancelPayment(ctx context.Context, reference string) (*domain.PaymentResult, error)
}

// Session is the checkout state machine for a single payment attempt:
// verification -> processing -> success | error, with error -> verification
// on an explicit retry. It owns the status poller while processing and
// guarantees the poller is torn down on every exit path.
type Session struct {
	gw        StatusGateway
	log       *logger.Logger
	reference string
	method    domain.PaymentMethod
	interval  time.Duration

	mu       sync.Mutex
	state    State
	attempts int
	errMsg   string
	errKind  domain.ErrorKind
	result   *domain.PaymentResult
	poller   *Poller
	closed   bool
}

// NewSession creates a session in the verification state for an already
// submitted payment attempt. The reference must be the one generated when
// the attempt was created; it is never regenerated mid-flow.
func NewSession(gw StatusGateway, method domain.PaymentMethod, reference string, interval time.Duration, log *logger.Logger) *Session {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Session{
		gw:        gw,
		log:       log,
		reference: reference,
		method:    method,
		interval:  interval,
		state:     StateVerification,
	}
}

// Submit moves the session from verification to processing and starts the
// status poller. Mobile-money methods need no code; other methods require a
// code of at least 4 characters.
func (s *Session) Submit(code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("session for %s is closed", s.reference)
	}
	if s.state != StateVerification {
		return fmt.Errorf("session for %s is %s, not awaiting verification", s.reference, s.state)
	}
	if !domain.IsMobileMoney(s.method.Type) && len(strings.TrimSpace(code)) < 4 {
		return fmt.Errorf("verification code must be at least 4 characters")
	}

	s.enterProcessingLocked()
	return nil
}

func (s *Session) enterProcessingLocked() {
	s.state = StateProcessing
	s.poller = NewPoller(s.interval, s.poll)
	s.poller.Start(context.Background())
	s.log.Debugw("checkout session processing", "reference", s.reference, "method", s.method.Type)
}

// poll is one status check. Terminal statuses and any classified failure
// stop the poller; retrying after a failure is always a user decision,
// never automatic, to avoid double-charging.
func (s *Session) poll(ctx context.Context) {
	s.mu.Lock()
	active := s.state == StateProcessing && !s.closed
	s.mu.Unlock()
	if !active {
		return
	}

	result, err := s.gw.CheckStatus(ctx, s.reference)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateProcessing {
		return
	}

	if err != nil {
		cerr := domain.AsClassified(err)
		s.failLocked(cerr.Message, cerr.Kind)
		return
	}

	switch result.Status {
	case domain.StatusCompleted:
		s.succeedLocked(result)
	case domain.StatusFailed:
		s.failLocked("the payment failed", domain.KindPayment)
	case domain.StatusCancelled:
		s.failLocked("the payment was cancelled", domain.KindCancelled)
	default:
		// Still pending, keep polling.
	}
}

func (s *Session) succeedLocked(result *domain.PaymentResult) {
	s.state = StateSucceeded
	s.result = result
	s.stopPollerLocked()
	s.log.Infow("checkout session succeeded", "reference", s.reference, "transaction_id", result.TransactionID)
}

func (s *Session) failLocked(message string, kind domain.ErrorKind) {
	s.state = StateFailed
	s.errMsg = message
	s.errKind = kind
	s.stopPollerLocked()
	s.log.Warnw("checkout session failed", "reference", s.reference, "kind", kind, "attempts", s.attempts)
}

func (s *Session) stopPollerLocked() {
	if s.poller != nil {
		s.poller.Stop()
		s.poller = nil
	}
}

// Retry re-enters verification after a failure. The retry counter is kept
// for diagnostics; attempts are not capped.
func (s *Session) Retry() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("session for %s is closed", s.reference)
	}
	if s.state != StateFailed {
		return fmt.Errorf("session for %s is %s, nothing to retry", s.reference, s.state)
	}

	s.attempts++
	s.state = StateVerification
	s.errMsg = ""
	s.errKind = ""
	return nil
}

// Cancel performs a best-effort gateway cancellation and closes the session.
// The remote prompt may still complete; the local effect is stopping the
// poll and informing the member.
func (s *Session) Cancel(ctx context.Context) {
	if _, err := s.gw.CancelPayment(ctx, s.reference); err != nil {
		s.log.Warnw("gateway cancel during session close failed", "reference", s.reference, "error", err)
	}
	s.Close()
}

// Close tears the session down. Idempotent; always stops the poller.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.stopPollerLocked()
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Reference returns the transaction reference the session tracks.
func (s *Session) Reference() string { return s.reference }

// Attempts returns how many times the member has retried.
func (s *Session) Attempts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempts
}

// Err returns the failure message and kind, empty unless failed.
func (s *Session) Err() (string, domain.ErrorKind) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.errMsg, s.errKind
}

// ConnectionHelp reports whether the failure was connectivity-related, in
// which case the UI shows the connection-help panel instead of a plain
// retry prompt.
func (s *Session) ConnectionHelp() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.errKind.Connectivity()
}

// Result returns the gateway-confirmed result, nil unless succeeded.
func (s *Session) Result() *domain.PaymentResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.result
}
