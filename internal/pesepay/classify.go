package pesepay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
	"syscall"

	"github.com/mukando/payment-service/internal/domain"
)

// HTTPError represents a non-2xx gateway response. The body is retained so
// the classifier can enrich validation messages.
type HTTPError struct {
	StatusCode int
	Body       []byte
}

// Error implements the error interface
func (e *HTTPError) Error() string {
	return fmt.Sprintf("gateway returned HTTP %d", e.StatusCode)
}

// Classify maps a raw transport or HTTP failure into the closed error
// taxonomy. It is total: every input, including nil, yields exactly one kind.
// Errors that are already classified pass through unchanged, so nothing is
// ever re-classified upstream of the gateway client.
func Classify(err error) *domain.ClassifiedError {
	if err == nil {
		return domain.NewClassifiedError(domain.KindUnknown, "an unexpected error occurred", nil)
	}

	var cerr *domain.ClassifiedError
	if errors.As(err, &cerr) {
		return cerr
	}

	if errors.Is(err, context.Canceled) {
		return domain.NewClassifiedError(domain.KindCancelled, "the request was cancelled", err)
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return domain.NewClassifiedError(domain.KindDNS, "could not resolve the payment gateway host", err)
	}

	if errors.Is(err, syscall.ECONNREFUSED) {
		return domain.NewClassifiedError(domain.KindConnectionRefused, "the payment gateway refused the connection", err)
	}

	if isTimeout(err) {
		return domain.NewClassifiedError(domain.KindTimeout, "the request to the payment gateway timed out", err)
	}

	var urlErr *url.Error
	var opErr *net.OpError
	if errors.As(err, &urlErr) || errors.As(err, &opErr) {
		return domain.NewClassifiedError(domain.KindNetwork, "could not reach the payment gateway", err)
	}

	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return classifyHTTP(httpErr)
	}

	return domain.NewClassifiedError(domain.KindUnknown, err.Error(), err)
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "timeout")
}

func classifyHTTP(httpErr *HTTPError) *domain.ClassifiedError {
	kind := domain.KindUnknown
	message := fmt.Sprintf("the payment gateway returned an unexpected response (HTTP %d)", httpErr.StatusCode)

	switch {
	case httpErr.StatusCode >= 500:
		kind = domain.KindServer
		message = "the payment gateway reported an internal error"
	case httpErr.StatusCode == 401:
		kind = domain.KindAuth
		message = "the payment gateway rejected the integration key"
	case httpErr.StatusCode == 403:
		kind = domain.KindPermission
		message = "the integration key is not permitted to perform this operation"
	case httpErr.StatusCode == 400:
		kind = domain.KindValidation
		message = "the payment gateway rejected the request"
		if detail := bodyMessage(httpErr.Body); detail != "" {
			message = detail
		}
	default:
		if detail := bodyMessage(httpErr.Body); detail != "" {
			message = detail
		}
	}

	return &domain.ClassifiedError{
		Kind:       kind,
		Message:    message,
		HTTPStatus: httpErr.StatusCode,
		Data:       httpErr.Body,
		Err:        httpErr,
	}
}

// bodyMessage pulls a human-readable message out of a gateway error body.
func bodyMessage(body []byte) string {
	if len(body) == 0 {
		return ""
	}
	var parsed struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return ""
	}
	if parsed.Message != "" {
		return parsed.Message
	}
	return parsed.Error
}
