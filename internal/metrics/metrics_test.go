package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCounters(t *testing.T) {
	m := New()
	m.Transition("project", "open", "assigned")
	m.Transition("project", "open", "assigned")
	m.Upload(UploadAccepted, 100)
	m.Upload(UploadRejected, 50)
	m.HTTPRequest("GET", "/api/health", 200, 3*time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Transitions.WithLabelValues("project", "open", "assigned")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Uploads.WithLabelValues(UploadRejected)))
	assert.Equal(t, 100.0, testutil.ToFloat64(m.UploadBytes))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Requests.WithLabelValues("GET", "/api/health", "200")))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.Transition("task", "submitted", "completed")
		m.Upload(UploadAccepted, 1)
		m.HTTPRequest("GET", "/", 200, time.Second)
		_ = m.Handler()
	})
}
