// Package metrics exposes Prometheus instrumentation for the booking bot.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics carries counters/histograms for the webhook and the booking and
// voucher flows. All observe methods are nil-safe so wiring stays optional
// in tests.
type Metrics struct {
	inboundTotal        *prometheus.CounterVec
	webhookLatency      prometheus.Histogram
	bookingsConfirmed   prometheus.Counter
	bookingsCancelled   prometheus.Counter
	vouchersIssued      prometheus.Counter
	vouchersTransferred prometheus.Counter
	otpFailures         prometheus.Counter
}

// New registers the bot's metrics on reg (DefaultRegisterer when nil).
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		inboundTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "discoveryhike",
			Subsystem: "webhook",
			Name:      "inbound_total",
			Help:      "Inbound WhatsApp webhook deliveries by outcome",
		}, []string{"status"}),
		webhookLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "discoveryhike",
			Subsystem: "webhook",
			Name:      "latency_seconds",
			Help:      "Latency of webhook processing",
			Buckets:   prometheus.DefBuckets,
		}),
		bookingsConfirmed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "discoveryhike",
			Subsystem: "booking",
			Name:      "confirmed_total",
			Help:      "Bookings committed to storage",
		}),
		bookingsCancelled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "discoveryhike",
			Subsystem: "booking",
			Name:      "cancelled_total",
			Help:      "Bookings cancelled at the confirmation step",
		}),
		vouchersIssued: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "discoveryhike",
			Subsystem: "voucher",
			Name:      "issued_total",
			Help:      "Vouchers generated by the manual voucher flow",
		}),
		vouchersTransferred: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "discoveryhike",
			Subsystem: "voucher",
			Name:      "transferred_total",
			Help:      "Vouchers reassigned via the share flow",
		}),
		otpFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "discoveryhike",
			Subsystem: "voucher",
			Name:      "otp_failures_total",
			Help:      "Voucher share flows terminated by OTP exhaustion",
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(
		m.inboundTotal, m.webhookLatency,
		m.bookingsConfirmed, m.bookingsCancelled,
		m.vouchersIssued, m.vouchersTransferred, m.otpFailures,
	)
	return m
}

// ObserveInbound counts one webhook delivery by outcome
// (processed, unauthorized, ignored, error).
func (m *Metrics) ObserveInbound(status string) {
	if m == nil {
		return
	}
	m.inboundTotal.WithLabelValues(status).Inc()
}

// ObserveWebhookLatency records one webhook's processing time.
func (m *Metrics) ObserveWebhookLatency(seconds float64) {
	if m == nil {
		return
	}
	m.webhookLatency.Observe(seconds)
}

func (m *Metrics) ObserveBookingConfirmed() {
	if m == nil {
		return
	}
	m.bookingsConfirmed.Inc()
}

func (m *Metrics) ObserveBookingCancelled() {
	if m == nil {
		return
	}
	m.bookingsCancelled.Inc()
}

func (m *Metrics) ObserveVoucherIssued() {
	if m == nil {
		return
	}
	m.vouchersIssued.Inc()
}

func (m *Metrics) ObserveVoucherTransferred() {
	if m == nil {
		return
	}
	m.vouchersTransferred.Inc()
}

func (m *Metrics) ObserveOTPFailure() {
	if m == nil {
		return
	}
	m.otpFailures.Inc()
}
