package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestTilesDispatchedTotalIncrements(t *testing.T) {
	before := testutil.ToFloat64(TilesDispatchedTotal)
	TilesDispatchedTotal.Inc()
	after := testutil.ToFloat64(TilesDispatchedTotal)
	assert.Equal(t, before+1, after)
}

func TestTilesCompletedTotalLabelsByStage(t *testing.T) {
	before := testutil.ToFloat64(TilesCompletedTotal.WithLabelValues("final"))
	TilesCompletedTotal.WithLabelValues("final").Inc()
	after := testutil.ToFloat64(TilesCompletedTotal.WithLabelValues("final"))
	assert.Equal(t, before+1, after)
}
