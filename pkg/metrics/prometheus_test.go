package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorder(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := NewWithRegisterer(reg)

	r.RecordStageError("fetch")
	r.RecordStageError("fetch")
	r.RecordCacheDecision(true)
	r.RecordCacheDecision(false)
	r.RecordCacheDecision(false)
	r.RecordSummary(time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), 7)
	r.RecordTask("build", "ok", 0.2)
	r.RecordFetch("fmp", "ok", 0.1)

	assert.Equal(t, 2.0, testutil.ToFloat64(r.stageErrors.WithLabelValues("fetch")))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.cacheDecisions.WithLabelValues("false")))
	assert.Equal(t, 7.0, testutil.ToFloat64(r.summaryRows))

	n, err := testutil.GatherAndCount(reg)
	require.NoError(t, err)
	assert.Equal(t, 7, n)
}
