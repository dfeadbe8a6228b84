package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PaymentMetrics records payment attempt outcomes and gateway failures.
type PaymentMetrics interface {
	IncPaymentInitiated(method string)
	IncPaymentStatus(status, currency string)
	IncGatewayError(kind string)
	ObservePaymentAmount(amount float64, currency, status string)
}

type paymentMetrics struct {
	paymentsInitiated *prometheus.CounterVec
	paymentsStatus    *prometheus.CounterVec
	gatewayErrors     *prometheus.CounterVec
	paymentsAmount    *prometheus.HistogramVec
}

// NewPaymentMetrics registers the payment metric vectors on the given
// registry.
func NewPaymentMetrics(registry *prometheus.Registry) PaymentMetrics {
	return &paymentMetrics{
		paymentsInitiated: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "payments_initiated_total",
				Help: "The total number of initiated payment attempts",
			},
			[]string{"method"},
		),
		paymentsStatus: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "payments_status_total",
				Help: "The total number of payments by terminal status",
			},
			[]string{"status", "currency"},
		),
		gatewayErrors: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateway_errors_total",
				Help: "The total number of classified gateway failures",
			},
			[]string{"kind"},
		),
		paymentsAmount: promauto.With(registry).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "payments_amount",
				Help:    "Payment amounts distribution",
				Buckets: prometheus.ExponentialBuckets(1, 10, 6), // 1 .. 100000
			},
			[]string{"currency", "status"},
		),
	}
}

// IncPaymentInitiated increments the initiated-payments counter
func (m *paymentMetrics) IncPaymentInitiated(method string) {
	m.paymentsInitiated.WithLabelValues(method).Inc()
}

// IncPaymentStatus increments the per-status payments counter
func (m *paymentMetrics) IncPaymentStatus(status, currency string) {
	m.paymentsStatus.WithLabelValues(status, currency).Inc()
}

// IncGatewayError increments the classified-failure counter
func (m *paymentMetrics) IncGatewayError(kind string) {
	m.gatewayErrors.WithLabelValues(kind).Inc()
}

// ObservePaymentAmount records a payment amount
func (m *paymentMetrics) ObservePaymentAmount(amount float64, currency, status string) {
	m.paymentsAmount.WithLabelValues(currency, status).Observe(amount)
}

type nopMetrics struct{}

// NewNop returns metrics that record nothing. Intended for tests.
func NewNop() PaymentMetrics { return nopMetrics{} }

func (nopMetrics) IncPaymentInitiated(string)                  {}
func (nopMetrics) IncPaymentStatus(string, string)             {}
func (nopMetrics) IncGatewayError(string)                      {}
func (nopMetrics) ObservePaymentAmount(float64, string, string) {}
