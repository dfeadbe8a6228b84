package pesepay

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mukando/payment-service/internal/domain"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o deadline reached" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestClassify_Taxonomy(t *testing.T) {
	cases := []struct {
		name string
		err  error
		kind domain.ErrorKind
	}{
		{"nil", nil, domain.KindUnknown},
		{"context cancelled", context.Canceled, domain.KindCancelled},
		{"dns failure", &net.DNSError{Err: "no such host", Name: "api.pesepay.com", IsNotFound: true}, domain.KindDNS},
		{"dns inside url error", &url.Error{Op: "Get", URL: "https://api.pesepay.com", Err: &net.DNSError{Err: "no such host"}}, domain.KindDNS},
		{"connection refused", &net.OpError{Op: "dial", Err: syscall.ECONNREFUSED}, domain.KindConnectionRefused},
		{"deadline exceeded", context.DeadlineExceeded, domain.KindTimeout},
		{"net timeout", timeoutErr{}, domain.KindTimeout},
		{"timeout in message", errors.New("request timeout while waiting for headers"), domain.KindTimeout},
		{"generic transport", &url.Error{Op: "Post", URL: "https://api.pesepay.com", Err: errors.New("connection reset by peer")}, domain.KindNetwork},
		{"http 500", &HTTPError{StatusCode: 500}, domain.KindServer},
		{"http 503", &HTTPError{StatusCode: 503}, domain.KindServer},
		{"http 401", &HTTPError{StatusCode: 401}, domain.KindAuth},
		{"http 403", &HTTPError{StatusCode: 403}, domain.KindPermission},
		{"http 400", &HTTPError{StatusCode: 400}, domain.KindValidation},
		{"http 404", &HTTPError{StatusCode: 404}, domain.KindUnknown},
		{"plain error", errors.New("something odd"), domain.KindUnknown},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cerr := Classify(tc.err)
			require.NotNil(t, cerr)
			assert.Equal(t, tc.kind, cerr.Kind)
			assert.NotEmpty(t, cerr.Message)
		})
	}
}

func TestClassify_SameStatusDifferentBodiesSameKind(t *testing.T) {
	a := Classify(&HTTPError{StatusCode: 500, Body: []byte(`{"message":"db down"}`)})
	b := Classify(&HTTPError{StatusCode: 500, Body: []byte(`<html>oops</html>`)})
	assert.Equal(t, a.Kind, b.Kind)
}

func TestClassify_EnrichesValidationMessageFromBody(t *testing.T) {
	cerr := Classify(&HTTPError{StatusCode: 400, Body: []byte(`{"message":"currencyCode is not supported"}`)})
	assert.Equal(t, domain.KindValidation, cerr.Kind)
	assert.Equal(t, "currencyCode is not supported", cerr.Message)
	assert.Equal(t, 400, cerr.HTTPStatus)
}

func TestClassify_PassesThroughClassifiedErrors(t *testing.T) {
	orig := domain.NewClassifiedError(domain.KindConfig, "integration key missing", nil)
	wrapped := fmt.Errorf("precondition: %w", orig)
	assert.Same(t, orig, Classify(wrapped))
	assert.Same(t, orig, Classify(orig))
}

func TestClassify_RetainsOriginalError(t *testing.T) {
	raw := &net.DNSError{Err: "no such host"}
	cerr := Classify(raw)
	var dnsErr *net.DNSError
	assert.ErrorAs(t, cerr, &dnsErr)
}
