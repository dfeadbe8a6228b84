package pesepay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mukando/payment-service/internal/domain"
	"github.com/mukando/payment-service/pkg/logger"
)

// Gateway hosts
const (
	SandboxBaseURL    = "https://api.sandbox.pesepay.com"
	ProductionBaseURL = "https://api.pesepay.com"
)

// Gateway endpoints
const (
	initiatePath = "/api/v1/payments/initiate"
	paymentPath  = "/api/v1/payments/make-payment"
	statusPath   = "/api/v1/payments/check-payment-status"
	cancelPath   = "/api/v1/payments/cancel-payment"
)

// referencePrefix starts every client-generated transaction reference.
const referencePrefix = "MKD"

// Config configures a gateway client. A missing integration or encryption
// key is a CONFIG_ERROR at call time, not a constructor failure, so a
// misconfigured service still starts and reports the problem through its
// health check.
type Config struct {
	IntegrationKey string
	EncryptionKey  string
	BaseURL        string
	ReturnURL      string
	ResultURL      string
	Environment    string
	Timeout        time.Duration
}

// Client talks to the PesePay payment gateway. It is stateless aside from
// HTTP; every method returns either a result or a *domain.ClassifiedError,
// never a raw transport error.
type Client struct {
	cfg        Config
	httpClient *http.Client
	log        *logger.Logger
}

// NewClient creates a new gateway client from an explicit configuration.
func NewClient(cfg Config, log *logger.Logger) *Client {
	if cfg.BaseURL == "" {
		if cfg.Environment == "production" {
			cfg.BaseURL = ProductionBaseURL
		} else {
			cfg.BaseURL = SandboxBaseURL
		}
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}

	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		log:        log,
	}
}

// GenerateReference creates a client-side transaction reference:
// MKD + base36 timestamp suffix + random suffix. It is generated once per
// attempt, before any network call, and correlates the attempt with later
// status checks and webhooks.
func GenerateReference() string {
	ts := strings.ToUpper(strconv.FormatInt(time.Now().UnixMilli(), 36))
	if len(ts) > 6 {
		ts = ts[len(ts)-6:]
	}
	random := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))[:6]
	return referencePrefix + ts + random
}

// amountDetails is the amount block shared by both payment endpoints.
type amountDetails struct {
	Amount       float64 `json:"amount"`
	CurrencyCode string  `json:"currencyCode"`
}

// customerDetails identifies the paying member.
type customerDetails struct {
	CustomerName    string `json:"customerName"`
	CustomerSurname string `json:"customerSurname"`
	CustomerEmail   string `json:"customerEmail"`
	CustomerPhone   string `json:"customerPhone"`
}

// initiateEnvelope is encrypted and sent as {payload} to the initiate
// endpoint.
type initiateEnvelope struct {
	AmountDetails    amountDetails `json:"amountDetails"`
	ReasonForPayment string        `json:"reasonForPayment"`
	ResultURL        string        `json:"resultUrl"`
	ReturnURL        string        `json:"returnUrl"`
}

// initiateResponsePayload is the decrypted body of an initiate response.
type initiateResponsePayload struct {
	RedirectURL   string `json:"redirectUrl"`
	PaymentURL    string `json:"paymentUrl"`
	PollURL       string `json:"pollUrl"`
	TransactionID string `json:"transactionId"`
}

// makePaymentRequest is the plaintext body of the make-payment endpoint.
// Unlike initiate it is not wrapped in an encrypted envelope; the asymmetry
// is the gateway's actual contract.
type makePaymentRequest struct {
	ReferenceNumber   string          `json:"referenceNumber"`
	AmountDetails     amountDetails   `json:"amountDetails"`
	ReasonForPayment  string          `json:"reasonForPayment"`
	PaymentMethodCode string          `json:"paymentMethodCode"`
	CustomerDetails   customerDetails `json:"customerDetails"`
	ResultURL         string          `json:"resultUrl"`
	ReturnURL         string          `json:"returnUrl"`
}

// gatewayResponse is the outer shape shared by gateway responses. Older
// deployments report "status" instead of "success" and "body" instead of
// "data".
type gatewayResponse struct {
	Success *bool           `json:"success"`
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Payload string          `json:"payload"`
	Data    json.RawMessage `json:"data"`
	Body    json.RawMessage `json:"body"`
}

// statusData is the data block of status-bearing responses.
type statusData struct {
	Status           string  `json:"status"`
	Paid             bool    `json:"paid"`
	RedirectURL      string  `json:"redirectUrl"`
	PaymentURL       string  `json:"paymentUrl"`
	PollURL          string  `json:"pollUrl"`
	TransactionID    string  `json:"transactionId"`
	Amount           float64 `json:"amount"`
	CurrencyCode     string  `json:"currencyCode"`
	PaymentMethod    string  `json:"paymentMethod"`
	CustomerPhone    string  `json:"customerPhone"`
	ReasonForPayment string  `json:"reasonForPayment"`
	PaymentDate      string  `json:"paymentDate"`
}

// webhookBody is the inbound webhook trigger. Only the reference is used;
// the asserted status is re-verified against the gateway.
type webhookBody struct {
	ReferenceNumber string `json:"referenceNumber"`
	Reference       string `json:"reference"`
	Status          string `json:"status"`
}

// normalizeStatus maps an arbitrary gateway status string and paid flag into
// the strict domain status, immediately after decoding.
func normalizeStatus(raw string, paid bool) domain.PaymentStatus {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "PAID", "SUCCESS", "SUCCESSFUL", "COMPLETED", "COMPLETE", "SETTLED":
		return domain.StatusCompleted
	case "FAILED", "ERROR", "DECLINED", "INSUFFICIENT_FUNDS":
		return domain.StatusFailed
	case "CANCELLED", "CANCELED", "TERMINATED":
		return domain.StatusCancelled
	}
	if paid {
		return domain.StatusCompleted
	}
	return domain.StatusPending
}

// configured checks the local preconditions shared by all gateway calls.
func (c *Client) configured() *domain.ClassifiedError {
	if c.cfg.IntegrationKey == "" {
		return domain.NewClassifiedError(domain.KindConfig, "payment gateway integration key is not configured", nil)
	}
	if c.cfg.EncryptionKey == "" {
		return domain.NewClassifiedError(domain.KindConfig, "payment gateway encryption key is not configured", nil)
	}
	return nil
}

// validateRequest rejects malformed requests before any network I/O and
// fills in defaults.
func (c *Client) validateRequest(req *domain.PaymentRequest) *domain.ClassifiedError {
	if err := c.configured(); err != nil {
		return err
	}
	if req == nil {
		return domain.NewClassifiedError(domain.KindValidation, "payment request is required", nil)
	}
	if req.Amount <= 0 {
		return domain.NewClassifiedError(domain.KindValidation, "payment amount must be greater than zero", nil)
	}
	if req.Currency == "" {
		req.Currency = "USD"
	}
	return nil
}

// reason picks the reason-for-payment text sent to the gateway.
func reason(req *domain.PaymentRequest) string {
	if req.Purpose != "" {
		return req.Purpose
	}
	if req.Reference != "" {
		return req.Reference
	}
	return "Mukando contribution"
}

func (c *Client) resultURL(req *domain.PaymentRequest) string {
	if req.ResultURL != "" {
		return req.ResultURL
	}
	return c.cfg.ResultURL
}

func (c *Client) returnURL(req *domain.PaymentRequest) string {
	if req.ReturnURL != "" {
		return req.ReturnURL
	}
	return c.cfg.ReturnURL
}

// InitiatePayment starts a redirect-based payment. The transaction details
// are encrypted into the envelope before leaving the service, and the
// response payload is decrypted back. The returned reference is the
// client-generated one; the gateway transaction id is carried alongside it.
func (c *Client) InitiatePayment(ctx context.Context, req *domain.PaymentRequest) (*domain.PaymentResult, error) {
	if verr := c.validateRequest(req); verr != nil {
		return nil, verr
	}

	cip, err := NewCipher(c.cfg.EncryptionKey)
	if err != nil {
		return nil, domain.NewClassifiedError(domain.KindConfig, "payment gateway encryption key is invalid", err)
	}

	ref := GenerateReference()
	envelope := initiateEnvelope{
		AmountDetails:    amountDetails{Amount: req.Amount, CurrencyCode: req.Currency},
		ReasonForPayment: reason(req),
		ResultURL:        c.resultURL(req),
		ReturnURL:        c.returnURL(req),
	}

	payload, err := cip.Encrypt(envelope)
	if err != nil {
		return nil, c.fail("initiate", err)
	}

	body, err := c.post(ctx, initiatePath, map[string]string{"payload": payload})
	if err != nil {
		return nil, c.fail("initiate", err)
	}

	var resp gatewayResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, c.fail("initiate", fmt.Errorf("decode initiate response: %w", err))
	}

	var decrypted initiateResponsePayload
	if err := cip.Decrypt(resp.Payload, &decrypted); err != nil {
		return nil, c.fail("initiate", err)
	}

	paymentURL := decrypted.RedirectURL
	if paymentURL == "" {
		paymentURL = decrypted.PaymentURL
	}

	raw, _ := json.Marshal(decrypted)
	result := &domain.PaymentResult{
		Success:       true,
		Status:        domain.StatusPending,
		Reference:     ref,
		TransactionID: decrypted.TransactionID,
		PaymentURL:    paymentURL,
		PollURL:       decrypted.PollURL,
		Amount:        req.Amount,
		CurrencyCode:  req.Currency,
		ResponseData:  raw,
	}

	c.log.Infow("payment initiated", "reference", ref, "amount", req.Amount, "currency", req.Currency)
	return result, nil
}

// MakePayment charges a mobile-money or card method directly. The body is
// plaintext; only the initiate endpoint uses the encrypted envelope.
func (c *Client) MakePayment(ctx context.Context, req *domain.PaymentRequest) (*domain.PaymentResult, error) {
	if verr := c.validateRequest(req); verr != nil {
		return nil, verr
	}

	ref := GenerateReference()
	payload := makePaymentRequest{
		ReferenceNumber:   ref,
		AmountDetails:     amountDetails{Amount: req.Amount, CurrencyCode: req.Currency},
		ReasonForPayment:  reason(req),
		PaymentMethodCode: MethodCode(req.Method.Type),
		CustomerDetails: customerDetails{
			CustomerName:    req.CustomerName,
			CustomerSurname: req.CustomerSurname,
			CustomerEmail:   req.CustomerEmail,
			CustomerPhone:   req.CustomerPhone,
		},
		ResultURL: c.resultURL(req),
		ReturnURL: c.returnURL(req),
	}

	body, err := c.post(ctx, paymentPath, payload)
	if err != nil {
		return nil, c.fail("make-payment", err)
	}

	var resp gatewayResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, c.fail("make-payment", fmt.Errorf("decode make-payment response: %w", err))
	}

	data := resp.Data
	if len(data) == 0 {
		data = resp.Body
	}
	var sd statusData
	if len(data) > 0 {
		if err := json.Unmarshal(data, &sd); err != nil {
			return nil, c.fail("make-payment", fmt.Errorf("decode make-payment data: %w", err))
		}
	}

	status := normalizeStatus(sd.Status, sd.Paid)
	paymentURL := sd.RedirectURL
	if paymentURL == "" {
		paymentURL = sd.PaymentURL
	}

	result := &domain.PaymentResult{
		Success:       true,
		Status:        status,
		Paid:          status == domain.StatusCompleted,
		Reference:     ref,
		TransactionID: sd.TransactionID,
		PaymentURL:    paymentURL,
		PollURL:       sd.PollURL,
		Amount:        req.Amount,
		CurrencyCode:  req.Currency,
		PaymentMethod: req.Method.Type,
		CustomerPhone: req.CustomerPhone,
		ResponseData:  data,
	}

	c.log.Infow("payment submitted", "reference", ref, "method", req.Method.Type, "status", status)
	return result, nil
}

// CheckPaymentStatus fetches and normalizes the state of a payment attempt.
// A well-formed success=false body means "not yet paid" and is reported as
// pending, not as an error; only transport and HTTP failures are errors.
func (c *Client) CheckPaymentStatus(ctx context.Context, reference string) (*domain.PaymentResult, error) {
	if strings.TrimSpace(reference) == "" {
		return nil, domain.NewClassifiedError(domain.KindValidation, "transaction reference is required", nil)
	}
	if cerr := c.configured(); cerr != nil {
		return nil, cerr
	}

	body, err := c.get(ctx, statusPath+"/"+url.PathEscape(reference))
	if err != nil {
		return nil, c.fail("check-status", err)
	}

	var resp gatewayResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, c.fail("check-status", fmt.Errorf("decode status response: %w", err))
	}

	result := &domain.PaymentResult{
		Success:   true,
		Status:    domain.StatusPending,
		Reference: reference,
	}

	if resp.Success != nil && !*resp.Success {
		// Explicit not-yet-paid response, still pending.
		return result, nil
	}

	var sd statusData
	if len(resp.Data) > 0 {
		if err := json.Unmarshal(resp.Data, &sd); err != nil {
			return nil, c.fail("check-status", fmt.Errorf("decode status data: %w", err))
		}
	}

	status := normalizeStatus(sd.Status, sd.Paid)
	result.Status = status
	result.Paid = status == domain.StatusCompleted
	result.TransactionID = sd.TransactionID
	result.Amount = sd.Amount
	result.CurrencyCode = sd.CurrencyCode
	result.PaymentMethod = sd.PaymentMethod
	result.CustomerPhone = sd.CustomerPhone
	result.ReasonForPayment = sd.ReasonForPayment
	result.PaymentDate = sd.PaymentDate
	result.ResponseData = resp.Data

	return result, nil
}

// CancelPayment asks the gateway to cancel an attempt. Cancellation of an
// asynchronous mobile-money prompt is inherently advisory: the prompt may
// still complete on the customer's phone. Gateway-side failures therefore
// still report a cancelled result with an explanatory note; only a missing
// reference is a hard error.
func (c *Client) CancelPayment(ctx context.Context, reference string) (*domain.PaymentResult, error) {
	if strings.TrimSpace(reference) == "" {
		return nil, domain.NewClassifiedError(domain.KindValidation, "Transaction ID is required for cancellation", nil)
	}

	result := &domain.PaymentResult{
		Success:   true,
		Status:    domain.StatusCancelled,
		Reference: reference,
	}

	if cerr := c.configured(); cerr != nil {
		result.Note = "cancellation was not sent to the gateway: " + cerr.Message
		return result, nil
	}

	_, err := c.post(ctx, cancelPath, map[string]string{"referenceNumber": reference})
	if err != nil {
		cerr := Classify(err)
		c.log.Warnw("gateway cancel failed, treating as advisory", "reference", reference, "kind", cerr.Kind)
		result.Note = "the gateway did not confirm the cancellation; the payment prompt may still complete"
	}

	return result, nil
}

// HealthCheck verifies the client is configured and the gateway host is
// reachable. Configuration problems are reported distinctly from connection
// failures so callers can tell "fix the deployment" from "try again later".
func (c *Client) HealthCheck(ctx context.Context) error {
	if cerr := c.configured(); cerr != nil {
		return cerr
	}

	probeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(probeCtx, http.MethodGet, c.cfg.BaseURL, nil)
	if err != nil {
		return Classify(err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Classify(err)
	}
	// Any HTTP response means the host is reachable; this is a reachability
	// probe, not a dedicated health endpoint.
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
	return nil
}

// VerifyWebhook treats an inbound webhook as an untrusted trigger: it parses
// the reference out of the body and re-verifies the asserted status against
// the gateway instead of trusting the webhook payload.
func (c *Client) VerifyWebhook(ctx context.Context, payload []byte) (*domain.PaymentResult, error) {
	var body webhookBody
	if err := json.Unmarshal(payload, &body); err != nil {
		return nil, domain.NewClassifiedError(domain.KindValidation, "webhook payload is not valid JSON", err)
	}

	ref := body.ReferenceNumber
	if ref == "" {
		ref = body.Reference
	}
	if ref == "" {
		return nil, domain.NewClassifiedError(domain.KindValidation, "webhook payload is missing a transaction reference", nil)
	}

	c.log.Debugw("verifying webhook against gateway", "reference", ref, "asserted_status", body.Status)
	return c.CheckPaymentStatus(ctx, ref)
}

// fail classifies an error once, at the client boundary, and logs it.
func (c *Client) fail(op string, err error) *domain.ClassifiedError {
	cerr := Classify(err)
	c.log.Warnw("gateway request failed", "op", op, "kind", cerr.Kind, "error", err)
	return cerr
}

func (c *Client) post(ctx context.Context, path string, body any) ([]byte, error) {
	encoded, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, bytes.NewReader(encoded))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req)
}

func (c *Client) get(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	return c.do(req)
}

func (c *Client) do(req *http.Request) ([]byte, error) {
	req.Header.Set("Authorization", c.cfg.IntegrationKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	if resp.StatusCode >= 400 {
		return nil, &HTTPError{StatusCode: resp.StatusCode, Body: body}
	}
	return body, nil
}
