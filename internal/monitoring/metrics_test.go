package monitoring

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_NilReceiver(t *testing.T) {
	var m *Metrics

	assert.NotPanics(t, func() {
		m.RecordAddressProvisioned()
		m.RecordMessageRejected("spam_content")
		m.RecordSweep(1, 2)
		m.SMTPSessionOpened()
		m.UpdateSubscribers(3)
	})
}

func TestMetrics_Counters(t *testing.T) {
	m := NewMetrics()

	m.RecordMessageDelivered(1024, 5*time.Millisecond)
	m.RecordMessageDelivered(2048, 5*time.Millisecond)
	m.RecordMessageRejected("spam_content")
	m.RecordMessageRejected("spam_content")
	m.RecordMessageRejected("too_large")
	m.RecordSweep(3, 7)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.MessagesDelivered))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.MessagesRejected.WithLabelValues("spam_content")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.MessagesRejected.WithLabelValues("too_large")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.AddressesExpired))
	assert.Equal(t, 7.0, testutil.ToFloat64(m.MessagesExpired))
}

func TestMetrics_SessionGauge(t *testing.T) {
	m := NewMetrics()

	m.SMTPSessionOpened()
	m.SMTPSessionOpened()
	m.SMTPSessionClosed()

	assert.Equal(t, 1.0, testutil.ToFloat64(m.SMTPSessionsActive))
}

func TestMetrics_IndependentRegistries(t *testing.T) {
	a := NewMetrics()
	b := NewMetrics()

	a.RecordAddressProvisioned()

	assert.Equal(t, 1.0, testutil.ToFloat64(a.AddressesProvisioned))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.AddressesProvisioned))
}

func TestMetrics_HTTPHandler(t *testing.T) {
	m := NewMetrics()
	m.RecordAddressProvisioned()

	rec := httptest.NewRecorder()
	m.HTTPHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "tempie_addresses_provisioned_total 1"))
}
