package service

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/mukando/payment-service/internal/domain"
	"github.com/mukando/payment-service/internal/metrics"
	"github.com/mukando/payment-service/pkg/logger"
)

// ConnectionStatus is the processor's view of gateway reachability.
type ConnectionStatus string

const (
	ConnectionUnknown      ConnectionStatus = "unknown"
	ConnectionConnected    ConnectionStatus = "connected"
	ConnectionDisconnected ConnectionStatus = "disconnected"
)

// Gateway is the payment gateway surface the processor drives. Implemented
// by *pesepay.Client.
type Gateway interface {
	InitiatePayment(ctx context.Context, req *domain.PaymentRequest) (*domain.PaymentResult, error)
	MakePayment(ctx context.Context, req *domain.PaymentRequest) (*domain.PaymentResult, error)
	CheckPaymentStatus(ctx context.Context, reference string) (*domain.PaymentResult, error)
	CancelPayment(ctx context.Context, reference string) (*domain.PaymentResult, error)
	HealthCheck(ctx context.Context) error
	SupportedMethods() []domain.PaymentMethod
	VerifyWebhook(ctx context.Context, payload []byte) (*domain.PaymentResult, error)
}

// TransactionRecorder is the downstream collaborator that persists a
// transaction once it reaches a terminal status. The platform's ledger CRUD
// sits behind this boundary.
type TransactionRecorder interface {
	RecordCompleted(ctx context.Context, result *domain.PaymentResult) error
	RecordFailed(ctx context.Context, reference, reason string) error
}

// Snapshot is a point-in-time copy of the processor state.
type Snapshot struct {
	Loading    bool
	Err        string
	ErrKind    domain.ErrorKind
	Result     *domain.PaymentResult
	Connection ConnectionStatus
	Methods    []domain.PaymentMethod
}

// Processor is the stateful façade over the gateway client. It owns at most
// one in-flight payment operation: starting a new one cancels the previous
// attempt's context, and a generation counter ensures a stale response is
// never committed after a newer operation has started.
type Processor struct {
	gw       Gateway
	recorder TransactionRecorder
	metrics  metrics.PaymentMetrics
	log      *logger.Logger

	mu             sync.Mutex
	snap           Snapshot
	gen            uint64
	cancelInFlight context.CancelFunc
	lastOp         func(ctx context.Context) (*domain.PaymentResult, error)
	recordedRefs   map[string]bool
}

// NewProcessor creates a processor and fires a best-effort connectivity probe
// and method load in the background. The recorder may be nil.
func NewProcessor(gw Gateway, recorder TransactionRecorder, m metrics.PaymentMetrics, log *logger.Logger) *Processor {
	p := &Processor{
		gw:           gw,
		recorder:     recorder,
		metrics:      m,
		log:          log,
		snap:         Snapshot{Connection: ConnectionUnknown},
		recordedRefs: make(map[string]bool),
	}
	go p.bootstrap()
	return p
}

func (p *Processor) bootstrap() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	status := ConnectionConnected
	if err := p.gw.HealthCheck(ctx); err != nil {
		status = ConnectionDisconnected
		p.log.Warnw("gateway health check failed on startup", "error", err)
	}
	methods := p.gw.SupportedMethods()

	p.mu.Lock()
	if p.snap.Connection == ConnectionUnknown {
		p.snap.Connection = status
	}
	p.snap.Methods = methods
	p.mu.Unlock()
}

// begin takes ownership of the next operation: the previous in-flight
// attempt is cancelled and the generation is bumped so its late result will
// be discarded.
func (p *Processor) begin(ctx context.Context) (context.Context, uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cancelInFlight != nil {
		p.cancelInFlight()
	}
	cctx, cancel := context.WithCancel(ctx)
	p.cancelInFlight = cancel

	p.gen++
	p.snap.Loading = true
	p.snap.Err = ""
	p.snap.ErrKind = ""
	return cctx, p.gen
}

// commit applies an operation's outcome unless a newer operation has started
// since; stale outcomes are returned to the caller but never stored.
func (p *Processor) commit(gen uint64, result *domain.PaymentResult, err error) (*domain.PaymentResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if gen != p.gen {
		p.log.Debugw("discarding stale gateway result", "gen", gen, "current", p.gen)
		return result, err
	}

	p.snap.Loading = false
	if err != nil {
		cerr := domain.AsClassified(err)
		p.snap.ErrKind = cerr.Kind
		p.snap.Err = userMessage(cerr)
		p.metrics.IncGatewayError(string(cerr.Kind))
		if cerr.Kind.Connectivity() {
			p.snap.Connection = ConnectionDisconnected
		}
		return result, err
	}

	p.snap.Result = result
	p.snap.Connection = ConnectionConnected
	if result != nil && result.Status.Terminal() {
		p.metrics.IncPaymentStatus(string(result.Status), result.CurrencyCode)
		if result.Amount > 0 {
			p.metrics.ObservePaymentAmount(result.Amount, result.CurrencyCode, string(result.Status))
		}
		p.recordLocked(result)
	}
	return result, err
}

// recordLocked hands a terminal result to the downstream recorder exactly
// once per reference. Best-effort: failures are logged, never surfaced.
func (p *Processor) recordLocked(result *domain.PaymentResult) {
	if p.recorder == nil || result.Reference == "" || p.recordedRefs[result.Reference] {
		return
	}
	p.recordedRefs[result.Reference] = true

	res := *result
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		var err error
		if res.Status == domain.StatusCompleted {
			err = p.recorder.RecordCompleted(ctx, &res)
		} else {
			err = p.recorder.RecordFailed(ctx, res.Reference, string(res.Status))
		}
		if err != nil {
			p.log.Errorw("failed to record transaction", "reference", res.Reference, "error", err)
		}
	}()
}

// failLocal surfaces a local precondition failure without any network call.
func (p *Processor) failLocal(cerr *domain.ClassifiedError) (*domain.PaymentResult, error) {
	p.mu.Lock()
	p.snap.Loading = false
	p.snap.Err = userMessage(cerr)
	p.snap.ErrKind = cerr.Kind
	p.mu.Unlock()
	return nil, cerr
}

func (p *Processor) setLastOp(op func(ctx context.Context) (*domain.PaymentResult, error)) {
	p.mu.Lock()
	p.lastOp = op
	p.mu.Unlock()
}

// ProcessPayment runs one payment attempt. Mobile-money methods go through
// the direct make-payment flow; everything else through the encrypted
// redirect flow. Any prior in-flight attempt is cancelled first.
func (p *Processor) ProcessPayment(ctx context.Context, req *domain.PaymentRequest) (*domain.PaymentResult, error) {
	cctx, gen := p.begin(ctx)
	p.setLastOp(func(ctx context.Context) (*domain.PaymentResult, error) {
		return p.ProcessPayment(ctx, req)
	})

	if p.Connection() != ConnectionConnected {
		if err := p.gw.HealthCheck(cctx); err != nil {
			p.setConnection(ConnectionDisconnected)
			p.log.Warnw("gateway unreachable before payment attempt", "error", err)
		} else {
			p.setConnection(ConnectionConnected)
		}
	}

	p.metrics.IncPaymentInitiated(req.Method.Type)

	var result *domain.PaymentResult
	var err error
	if domain.IsMobileMoney(req.Method.Type) {
		result, err = p.gw.MakePayment(cctx, req)
	} else {
		result, err = p.gw.InitiatePayment(cctx, req)
	}
	return p.commit(gen, result, err)
}

// CheckStatus polls the gateway for the state of an attempt.
func (p *Processor) CheckStatus(ctx context.Context, reference string) (*domain.PaymentResult, error) {
	if strings.TrimSpace(reference) == "" {
		return p.failLocal(domain.NewClassifiedError(domain.KindValidation, "transaction reference is required", nil))
	}

	cctx, gen := p.begin(ctx)
	p.setLastOp(func(ctx context.Context) (*domain.PaymentResult, error) {
		return p.CheckStatus(ctx, reference)
	})

	result, err := p.gw.CheckPaymentStatus(cctx, reference)
	return p.commit(gen, result, err)
}

// CancelPayment asks the gateway to cancel an attempt, best-effort.
func (p *Processor) CancelPayment(ctx context.Context, reference string) (*domain.PaymentResult, error) {
	if strings.TrimSpace(reference) == "" {
		return p.failLocal(domain.NewClassifiedError(domain.KindValidation, "Transaction ID is required for cancellation", nil))
	}

	cctx, gen := p.begin(ctx)
	p.setLastOp(func(ctx context.Context) (*domain.PaymentResult, error) {
		return p.CancelPayment(ctx, reference)
	})

	result, err := p.gw.CancelPayment(cctx, reference)
	return p.commit(gen, result, err)
}

// TransactionDetails fetches the gateway's view of a transaction without
// touching the in-flight slot. Background reads must never cancel a live
// payment attempt; a terminal result is still handed to the recorder.
func (p *Processor) TransactionDetails(ctx context.Context, reference string) (*domain.PaymentResult, error) {
	if strings.TrimSpace(reference) == "" {
		return nil, domain.NewClassifiedError(domain.KindValidation, "transaction reference is required", nil)
	}

	result, err := p.gw.CheckPaymentStatus(ctx, reference)
	p.observe(result, err)
	return result, err
}

// VerifyWebhook re-verifies an inbound webhook against the gateway. Like
// TransactionDetails it stays outside the in-flight slot: a webhook arriving
// for one attempt must not cancel another attempt's gateway call.
func (p *Processor) VerifyWebhook(ctx context.Context, payload []byte) (*domain.PaymentResult, error) {
	result, err := p.gw.VerifyWebhook(ctx, payload)
	p.observe(result, err)
	return result, err
}

// observe applies a read-path outcome: connection status, terminal metrics
// and recording, but no snapshot or generation changes.
func (p *Processor) observe(result *domain.PaymentResult, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err != nil {
		cerr := domain.AsClassified(err)
		p.metrics.IncGatewayError(string(cerr.Kind))
		if cerr.Kind.Connectivity() {
			p.snap.Connection = ConnectionDisconnected
		}
		return
	}

	p.snap.Connection = ConnectionConnected
	if result != nil && result.Status.Terminal() {
		p.metrics.IncPaymentStatus(string(result.Status), result.CurrencyCode)
		if result.Amount > 0 {
			p.metrics.ObservePaymentAmount(result.Amount, result.CurrencyCode, string(result.Status))
		}
		p.recordLocked(result)
	}
}

// Retry re-runs the most recent operation after clearing the error. A single
// re-entry point so callers never need to remember which call failed.
func (p *Processor) Retry(ctx context.Context) (*domain.PaymentResult, error) {
	p.mu.Lock()
	op := p.lastOp
	p.snap.Err = ""
	p.snap.ErrKind = ""
	p.mu.Unlock()

	if op == nil {
		return nil, domain.NewClassifiedError(domain.KindValidation, "no operation to retry", nil)
	}
	return op(ctx)
}

// Reset cancels any in-flight operation and clears the attempt state.
// Connection status and the method list survive a reset.
func (p *Processor) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cancelInFlight != nil {
		p.cancelInFlight()
		p.cancelInFlight = nil
	}
	p.gen++
	p.snap.Loading = false
	p.snap.Err = ""
	p.snap.ErrKind = ""
	p.snap.Result = nil
	p.lastOp = nil
}

// Snapshot returns a copy of the current state.
func (p *Processor) Snapshot() Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()

	snap := p.snap
	if p.snap.Methods != nil {
		snap.Methods = make([]domain.PaymentMethod, len(p.snap.Methods))
		copy(snap.Methods, p.snap.Methods)
	}
	return snap
}

// HealthCheck probes the gateway and updates the connection status.
func (p *Processor) HealthCheck(ctx context.Context) error {
	if err := p.gw.HealthCheck(ctx); err != nil {
		p.setConnection(ConnectionDisconnected)
		return err
	}
	p.setConnection(ConnectionConnected)
	return nil
}

// Connection returns the current gateway connection status.
func (p *Processor) Connection() ConnectionStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.snap.Connection
}

func (p *Processor) setConnection(status ConnectionStatus) {
	p.mu.Lock()
	p.snap.Connection = status
	p.mu.Unlock()
}

// Methods returns the supported payment methods, falling back to the gateway
// table when the bootstrap load has not finished yet.
func (p *Processor) Methods() []domain.PaymentMethod {
	p.mu.Lock()
	cached := p.snap.Methods
	p.mu.Unlock()

	if cached != nil {
		out := make([]domain.PaymentMethod, len(cached))
		copy(out, cached)
		return out
	}
	return p.gw.SupportedMethods()
}

// StatusReader is a state-free view of the processor for background status
// polling. Its calls bypass the in-flight slot entirely, so a poller can
// never cancel a live payment attempt; terminal results it observes are
// still recorded.
type StatusReader struct {
	p *Processor
}

// Reader returns the read-only polling view of the processor.
func (p *Processor) Reader() *StatusReader {
	return &StatusReader{p: p}
}

// CheckStatus fetches the transaction state without touching processor state.
func (r *StatusReader) CheckStatus(ctx context.Context, reference string) (*domain.PaymentResult, error) {
	return r.p.TransactionDetails(ctx, reference)
}

// CancelPayment asks the gateway to cancel an attempt, best-effort, without
// touching the in-flight slot.
func (r *StatusReader) CancelPayment(ctx context.Context, reference string) (*domain.PaymentResult, error) {
	if strings.TrimSpace(reference) == "" {
		return nil, domain.NewClassifiedError(domain.KindValidation, "Transaction ID is required for cancellation", nil)
	}

	result, err := r.p.gw.CancelPayment(ctx, reference)
	r.p.observe(result, err)
	return result, err
}

// userMessage maps a classified error kind to the fixed user-facing message.
// Validation and configuration failures keep their specific message since it
// names the actual problem.
func userMessage(cerr *domain.ClassifiedError) string {
	switch cerr.Kind {
	case domain.KindNetwork:
		return "Network connection failed. Please check your internet connection and try again."
	case domain.KindDNS:
		return "Could not reach the payment service. Please try again in a moment."
	case domain.KindConnectionRefused:
		return "The payment service refused the connection. Please try again later."
	case domain.KindTimeout:
		return "The payment request timed out. Please try again."
	case domain.KindServer:
		return "The payment service is experiencing problems. Please try again later."
	case domain.KindAuth:
		return "Payment service authentication failed. Please contact support."
	case domain.KindPermission:
		return "This payment operation is not permitted. Please contact support."
	case domain.KindPayment:
		return "The payment could not be processed. Please try again or use a different method."
	case domain.KindCancelled:
		return "The payment was cancelled."
	case domain.KindValidation, domain.KindConfig:
		return cerr.Message
	default:
		return "Something went wrong while processing the payment. Please try again."
	}
}
