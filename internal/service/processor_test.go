package service

import (
	"context"
	"errors"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mukando/payment-service/internal/domain"
	"github.com/mukando/payment-service/internal/metrics"
	"github.com/mukando/payment-service/pkg/logger"
)

type stubGateway struct {
	mu          sync.Mutex
	initCalls   int
	makeCalls   int
	statusCalls int
	cancelCalls int

	healthErr error
	initFn    func(ctx context.Context, req *domain.PaymentRequest) (*domain.PaymentResult, error)
	makeFn    func(ctx context.Context, req *domain.PaymentRequest) (*domain.PaymentResult, error)
	statusFn  func(ctx context.Context, reference string) (*domain.PaymentResult, error)
}

func pendingResult(ref string) *domain.PaymentResult {
	return &domain.PaymentResult{Success: true, Status: domain.StatusPending, Reference: ref}
}

func (s *stubGateway) InitiatePayment(ctx context.Context, req *domain.PaymentRequest) (*domain.PaymentResult, error) {
	s.mu.Lock()
	s.initCalls++
	fn := s.initFn
	s.mu.Unlock()
	if fn != nil {
		return fn(ctx, req)
	}
	return pendingResult("MKDINIT01"), nil
}

func (s *stubGateway) MakePayment(ctx context.Context, req *domain.PaymentRequest) (*domain.PaymentResult, error) {
	s.mu.Lock()
	s.makeCalls++
	fn := s.makeFn
	s.mu.Unlock()
	if fn != nil {
		return fn(ctx, req)
	}
	return pendingResult("MKDMAKE01"), nil
}

func (s *stubGateway) CheckPaymentStatus(ctx context.Context, reference string) (*domain.PaymentResult, error) {
	s.mu.Lock()
	s.statusCalls++
	fn := s.statusFn
	s.mu.Unlock()
	if fn != nil {
		return fn(ctx, reference)
	}
	return pendingResult(reference), nil
}

func (s *stubGateway) CancelPayment(ctx context.Context, reference string) (*domain.PaymentResult, error) {
	s.mu.Lock()
	s.cancelCalls++
	s.mu.Unlock()
	return &domain.PaymentResult{Success: true, Status: domain.StatusCancelled, Reference: reference}, nil
}

func (s *stubGateway) HealthCheck(ctx context.Context) error { return s.healthErr }

func (s *stubGateway) SupportedMethods() []domain.PaymentMethod {
	return []domain.PaymentMethod{{Type: domain.MethodEcocash, Name: "EcoCash"}}
}

func (s *stubGateway) VerifyWebhook(ctx context.Context, payload []byte) (*domain.PaymentResult, error) {
	return s.CheckPaymentStatus(ctx, "MKDHOOK01")
}

func (s *stubGateway) calls() (initiate, makePayment, status, cancel int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.initCalls, s.makeCalls, s.statusCalls, s.cancelCalls
}

type stubRecorder struct {
	mu        sync.Mutex
	completed []string
	failed    []string
	notify    chan struct{}
}

func newStubRecorder() *stubRecorder {
	return &stubRecorder{notify: make(chan struct{}, 8)}
}

func (r *stubRecorder) RecordCompleted(ctx context.Context, result *domain.PaymentResult) error {
	r.mu.Lock()
	r.completed = append(r.completed, result.Reference)
	r.mu.Unlock()
	r.notify <- struct{}{}
	return nil
}

func (r *stubRecorder) RecordFailed(ctx context.Context, reference, reason string) error {
	r.mu.Lock()
	r.failed = append(r.failed, reference)
	r.mu.Unlock()
	r.notify <- struct{}{}
	return nil
}

func newTestProcessor(gw Gateway, rec TransactionRecorder) *Processor {
	return NewProcessor(gw, rec, metrics.NewNop(), logger.NewNop())
}

func ecocashRequest() *domain.PaymentRequest {
	return &domain.PaymentRequest{
		Amount:        50.00,
		Currency:      "USD",
		CustomerPhone: "+263771234567",
		Method:        domain.PaymentMethod{Type: domain.MethodEcocash},
	}
}

func TestProcessPayment_RoutesMobileMoneyToMakePayment(t *testing.T) {
	gw := &stubGateway{}
	p := newTestProcessor(gw, nil)

	result, err := p.ProcessPayment(context.Background(), ecocashRequest())
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, result.Status)

	initiate, mk, _, _ := gw.calls()
	assert.Zero(t, initiate)
	assert.Equal(t, 1, mk)

	snap := p.Snapshot()
	assert.False(t, snap.Loading)
	assert.Empty(t, snap.Err)
	assert.Equal(t, ConnectionConnected, snap.Connection)
	require.NotNil(t, snap.Result)
	assert.Equal(t, domain.StatusPending, snap.Result.Status)
}

func TestProcessPayment_RoutesOtherMethodsToInitiate(t *testing.T) {
	gw := &stubGateway{}
	p := newTestProcessor(gw, nil)

	req := ecocashRequest()
	req.Method.Type = "visa"
	_, err := p.ProcessPayment(context.Background(), req)
	require.NoError(t, err)

	initiate, mk, _, _ := gw.calls()
	assert.Equal(t, 1, initiate)
	assert.Zero(t, mk)
}

func TestProcessPayment_NetworkFailureMessage(t *testing.T) {
	gw := &stubGateway{
		makeFn: func(ctx context.Context, req *domain.PaymentRequest) (*domain.PaymentResult, error) {
			return nil, domain.NewClassifiedError(domain.KindNetwork, "could not reach the payment gateway",
				&url.Error{Op: "Post", Err: errors.New("connection reset")})
		},
	}
	p := newTestProcessor(gw, nil)

	_, err := p.ProcessPayment(context.Background(), ecocashRequest())
	require.Error(t, err)

	snap := p.Snapshot()
	assert.Equal(t, domain.KindNetwork, snap.ErrKind)
	assert.Equal(t, "Network connection failed. Please check your internet connection and try again.", snap.Err)
	assert.Equal(t, ConnectionDisconnected, snap.Connection)
}

func TestProcessPayment_StaleResultDiscarded(t *testing.T) {
	release := make(chan struct{})
	gw := &stubGateway{}
	gw.makeFn = func(ctx context.Context, req *domain.PaymentRequest) (*domain.PaymentResult, error) {
		gw.mu.Lock()
		first := gw.makeCalls == 1
		gw.mu.Unlock()
		if first {
			// Simulate a slow first attempt that only resolves after the
			// second one has already been committed.
			<-release
			return &domain.PaymentResult{Success: true, Status: domain.StatusCompleted, Reference: "MKDSTALE"}, nil
		}
		return pendingResult("MKDFRESH"), nil
	}
	p := newTestProcessor(gw, nil)

	firstDone := make(chan struct{})
	go func() {
		defer close(firstDone)
		_, _ = p.ProcessPayment(context.Background(), ecocashRequest())
	}()

	// Wait until the first attempt is in flight.
	require.Eventually(t, func() bool {
		_, mk, _, _ := gw.calls()
		return mk == 1
	}, time.Second, 5*time.Millisecond)

	_, err := p.ProcessPayment(context.Background(), ecocashRequest())
	require.NoError(t, err)

	close(release)
	<-firstDone

	snap := p.Snapshot()
	require.NotNil(t, snap.Result)
	assert.Equal(t, "MKDFRESH", snap.Result.Reference, "terminal state must reflect only the latest request")
}

func TestCheckStatus_EmptyReferenceShortCircuits(t *testing.T) {
	gw := &stubGateway{}
	p := newTestProcessor(gw, nil)

	_, err := p.CheckStatus(context.Background(), "")
	require.Error(t, err)
	assert.Equal(t, domain.KindValidation, domain.AsClassified(err).Kind)

	_, _, status, _ := gw.calls()
	assert.Zero(t, status)
}

func TestCancelPayment_EmptyReferenceShortCircuits(t *testing.T) {
	gw := &stubGateway{}
	p := newTestProcessor(gw, nil)

	_, err := p.CancelPayment(context.Background(), "")
	require.Error(t, err)
	cerr := domain.AsClassified(err)
	assert.Equal(t, domain.KindValidation, cerr.Kind)
	assert.Equal(t, "Transaction ID is required for cancellation", cerr.Message)

	_, _, _, cancels := gw.calls()
	assert.Zero(t, cancels)
}

func TestRetry_ReRunsLastOperation(t *testing.T) {
	var failOnce sync.Once
	gw := &stubGateway{}
	gw.statusFn = func(ctx context.Context, reference string) (*domain.PaymentResult, error) {
		var failed bool
		failOnce.Do(func() { failed = true })
		if failed {
			return nil, domain.NewClassifiedError(domain.KindTimeout, "timed out", context.DeadlineExceeded)
		}
		return &domain.PaymentResult{Success: true, Status: domain.StatusCompleted, Paid: true, Reference: reference}, nil
	}
	p := newTestProcessor(gw, nil)

	_, err := p.CheckStatus(context.Background(), "MKD123ABC")
	require.Error(t, err)
	assert.Equal(t, domain.KindTimeout, p.Snapshot().ErrKind)

	result, err := p.Retry(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, result.Status)

	snap := p.Snapshot()
	assert.Empty(t, snap.Err)
	assert.Equal(t, "MKD123ABC", snap.Result.Reference)
}

func TestRetry_WithoutPriorOperation(t *testing.T) {
	p := newTestProcessor(&stubGateway{}, nil)
	_, err := p.Retry(context.Background())
	require.Error(t, err)
	assert.Equal(t, domain.KindValidation, domain.AsClassified(err).Kind)
}

func TestReset_ClearsAttemptState(t *testing.T) {
	gw := &stubGateway{}
	p := newTestProcessor(gw, nil)

	_, err := p.ProcessPayment(context.Background(), ecocashRequest())
	require.NoError(t, err)
	require.NotNil(t, p.Snapshot().Result)

	p.Reset()

	snap := p.Snapshot()
	assert.Nil(t, snap.Result)
	assert.Empty(t, snap.Err)
	assert.False(t, snap.Loading)

	_, err = p.Retry(context.Background())
	assert.Error(t, err, "reset must also drop the recorded operation")
}

func TestTerminalResultRecordedOnce(t *testing.T) {
	gw := &stubGateway{}
	gw.statusFn = func(ctx context.Context, reference string) (*domain.PaymentResult, error) {
		return &domain.PaymentResult{
			Success: true, Status: domain.StatusCompleted, Paid: true,
			Reference: reference, Amount: 50, CurrencyCode: "USD",
		}, nil
	}
	rec := newStubRecorder()
	p := newTestProcessor(gw, rec)

	_, err := p.CheckStatus(context.Background(), "MKD123ABC")
	require.NoError(t, err)

	select {
	case <-rec.notify:
	case <-time.After(time.Second):
		t.Fatal("recorder was not invoked")
	}

	// A second poll of the same completed reference must not record again.
	_, err = p.CheckStatus(context.Background(), "MKD123ABC")
	require.NoError(t, err)

	select {
	case <-rec.notify:
		t.Fatal("terminal result recorded twice for the same reference")
	case <-time.After(100 * time.Millisecond):
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Equal(t, []string{"MKD123ABC"}, rec.completed)
	assert.Empty(t, rec.failed)
}

func TestStatusReadDoesNotCancelInFlightPayment(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	gw := &stubGateway{
		makeFn: func(ctx context.Context, req *domain.PaymentRequest) (*domain.PaymentResult, error) {
			close(started)
			select {
			case <-ctx.Done():
				return nil, domain.NewClassifiedError(domain.KindCancelled, "the payment was cancelled", ctx.Err())
			case <-release:
				return pendingResult("MKDLIVE01"), nil
			}
		},
	}
	p := newTestProcessor(gw, nil)

	type outcome struct {
		result *domain.PaymentResult
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		result, err := p.ProcessPayment(context.Background(), &domain.PaymentRequest{
			Amount: 25, Method: domain.PaymentMethod{Type: domain.MethodEcocash},
		})
		done <- outcome{result, err}
	}()

	<-started

	// Background reads for other attempts while the payment is in flight.
	_, err := p.TransactionDetails(context.Background(), "MKDOTHER01")
	require.NoError(t, err)
	_, err = p.Reader().CheckStatus(context.Background(), "MKDOTHER02")
	require.NoError(t, err)
	_, err = p.VerifyWebhook(context.Background(), []byte(`{"referenceNumber":"MKDHOOK01"}`))
	require.NoError(t, err)

	close(release)
	got := <-done
	require.NoError(t, got.err, "a background status read cancelled the in-flight payment")
	require.NotNil(t, got.result)
	assert.Equal(t, "MKDLIVE01", got.result.Reference)
}

func TestReaderCancel_DoesNotCancelInFlightPayment(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	gw := &stubGateway{
		makeFn: func(ctx context.Context, req *domain.PaymentRequest) (*domain.PaymentResult, error) {
			close(started)
			select {
			case <-ctx.Done():
				return nil, domain.NewClassifiedError(domain.KindCancelled, "the payment was cancelled", ctx.Err())
			case <-release:
				return pendingResult("MKDLIVE02"), nil
			}
		},
	}
	p := newTestProcessor(gw, nil)

	done := make(chan error, 1)
	go func() {
		_, err := p.ProcessPayment(context.Background(), &domain.PaymentRequest{
			Amount: 25, Method: domain.PaymentMethod{Type: domain.MethodEcocash},
		})
		done <- err
	}()

	<-started

	// A session tearing down its own attempt must not touch the slot either.
	_, err := p.Reader().CancelPayment(context.Background(), "MKDOTHER03")
	require.NoError(t, err)

	_, err = p.Reader().CancelPayment(context.Background(), "  ")
	require.Error(t, err)
	assert.Equal(t, domain.KindValidation, domain.AsClassified(err).Kind)

	close(release)
	require.NoError(t, <-done, "a best-effort cancel cancelled the in-flight payment")
}

func TestVerifyWebhook_RecordsTerminalResult(t *testing.T) {
	gw := &stubGateway{}
	gw.statusFn = func(ctx context.Context, reference string) (*domain.PaymentResult, error) {
		return &domain.PaymentResult{
			Success: true, Status: domain.StatusCompleted, Paid: true,
			Reference: reference, Amount: 50, CurrencyCode: "USD",
		}, nil
	}
	rec := newStubRecorder()
	p := newTestProcessor(gw, rec)

	result, err := p.VerifyWebhook(context.Background(), []byte(`{"referenceNumber":"MKDHOOK01"}`))
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, result.Status)

	select {
	case <-rec.notify:
	case <-time.After(time.Second):
		t.Fatal("recorder was not invoked for the verified webhook")
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Equal(t, []string{"MKDHOOK01"}, rec.completed)
}

func TestBootstrap_LoadsMethodsAndConnection(t *testing.T) {
	p := newTestProcessor(&stubGateway{}, nil)

	assert.Eventually(t, func() bool {
		snap := p.Snapshot()
		return snap.Connection == ConnectionConnected && len(snap.Methods) == 1
	}, time.Second, 5*time.Millisecond)

	assert.Equal(t, domain.MethodEcocash, p.Methods()[0].Type)
}
