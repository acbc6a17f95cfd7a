package metrics

import (
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorderCounts(t *testing.T) {
	r := New()

	r.StageDropped("basic_filter", 12)
	r.StageDropped("basic_filter", 0)
	r.Candidate("A")
	r.Candidate("A")
	r.ExitSignal("FORCED_STOP")
	r.SetOpenPositions(3)
	r.ProviderCall("history", 10*time.Millisecond, nil)
	r.ProviderCall("history", 10*time.Millisecond, errors.New("boom"))
	r.BreakerState("market-data", 2)

	assert.Equal(t, 12.0, testutil.ToFloat64(r.stageDropped.WithLabelValues("basic_filter")))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.candidates.WithLabelValues("A")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.exitSignals.WithLabelValues("FORCED_STOP")))
	assert.Equal(t, 3.0, testutil.ToFloat64(r.openPositions))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.providerErrors.WithLabelValues("history")))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.breakerState.WithLabelValues("market-data")))
}

func TestNilRecorderIsNoop(t *testing.T) {
	var r *Recorder
	r.ObserveScan(time.Second)
	r.Candidate("B")
	r.ProviderCall("snapshot", time.Millisecond, errors.New("x"))
	assert.Nil(t, r.Registry())
}

func TestHandlerServesRegistry(t *testing.T) {
	r := New()
	r.Candidate("C")

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), `hunter_candidates_total{grade="C"} 1`))
}
