package observability

import (
	"math/big"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestWarpMetricsRecordOutcomes(t *testing.T) {
	m := Warp()
	before := testutil.ToFloat64(m.deferrals.WithLabelValues("load"))

	m.RecordDeferral("load", big.NewInt(150))
	m.RecordRedemption(big.NewInt(150), 1)
	m.RecordCancellation(false)
	m.RecordFailure("redeem_ghost_balance", "insufficient_ghost_balance")
	m.SetPending(7)

	require.Equal(t, before+1, testutil.ToFloat64(m.deferrals.WithLabelValues("load")))
	require.Equal(t, float64(7), testutil.ToFloat64(m.pending))
	require.GreaterOrEqual(t, testutil.ToFloat64(m.failures.WithLabelValues("redeem_ghost_balance", "insufficient_ghost_balance")), float64(1))
	require.Same(t, m, Warp())
}

func TestRPCMetricsObserve(t *testing.T) {
	m := RPC()
	m.Observe("/v1/ghost/redeem", "POST", 422, 5*time.Millisecond)
	m.RecordThrottle("/v1/transactions")

	require.GreaterOrEqual(t, testutil.ToFloat64(m.errors.WithLabelValues("/v1/ghost/redeem", "POST", "422")), float64(1))
	require.GreaterOrEqual(t, testutil.ToFloat64(m.throttles.WithLabelValues("/v1/transactions")), float64(1))
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *WarpMetrics
	m.RecordDeferral("load", big.NewInt(1))
	m.SetPending(1)
	var r *RPCMetrics
	r.Observe("x", "GET", 200, time.Millisecond)
}
