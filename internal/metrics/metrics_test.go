// internal/metrics/metrics_test.go
package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecordDefaultedFeature(t *testing.T) {
	before := testutil.ToFloat64(DefaultedFeatures.WithLabelValues("m", "f"))
	RecordDefaultedFeature("m", "f")
	RecordDefaultedFeature("m", "f")
	assert.Equal(t, before+2, testutil.ToFloat64(DefaultedFeatures.WithLabelValues("m", "f")))
}

func TestHealthStatus(t *testing.T) {
	SetHealthy()
	assert.Equal(t, 1.0, testutil.ToFloat64(HealthStatus))
	SetUnhealthy()
	assert.Equal(t, 0.0, testutil.ToFloat64(HealthStatus))
}
