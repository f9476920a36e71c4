package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	m.ObserveInbound("ok")
	m.ObserveWebhookLatency(0.1)
	m.ObserveBookingConfirmed()
	m.ObserveBookingCancelled()
	m.ObserveVoucherIssued()
	m.ObserveVoucherTransferred()
	m.ObserveOTPFailure()
}

func TestCountersIncrement(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ObserveInbound("ok")
	m.ObserveInbound("ok")
	m.ObserveInbound("unauthorized")
	m.ObserveBookingConfirmed()
	m.ObserveVoucherIssued()
	m.ObserveOTPFailure()

	if got := testutil.ToFloat64(m.inboundTotal.WithLabelValues("ok")); got != 2 {
		t.Errorf("inbound ok = %v", got)
	}
	if got := testutil.ToFloat64(m.inboundTotal.WithLabelValues("unauthorized")); got != 1 {
		t.Errorf("inbound unauthorized = %v", got)
	}
	if got := testutil.ToFloat64(m.bookingsConfirmed); got != 1 {
		t.Errorf("confirmed = %v", got)
	}
	if got := testutil.ToFloat64(m.vouchersIssued); got != 1 {
		t.Errorf("issued = %v", got)
	}
	if got := testutil.ToFloat64(m.otpFailures); got != 1 {
		t.Errorf("otp failures = %v", got)
	}
}

func TestDoubleRegistrationPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	New(reg)
	defer func() {
		if recover() == nil {
			t.Error("second registration on the same registry did not panic")
		}
	}()
	New(reg)
}
