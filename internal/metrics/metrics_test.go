package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestNewRegistersCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.JobRuns.WithLabelValues("top_anime", "success").Inc()
	m.RecordsLoaded.WithLabelValues("top_anime", "insert").Add(49)
	m.FetchRetries.Inc()
	m.CacheOps.WithLabelValues("hit").Inc()

	assert.Equal(t, 1.0, testutil.ToFloat64(m.JobRuns.WithLabelValues("top_anime", "success")))
	assert.Equal(t, 49.0, testutil.ToFloat64(m.RecordsLoaded.WithLabelValues("top_anime", "insert")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FetchRetries))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheOps.WithLabelValues("hit")))
}
