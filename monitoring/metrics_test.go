package monitoring

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestNewRegistersWithoutPanicking(t *testing.T) {
	require.NotPanics(t, func() {
		m := New()
		require.NotNil(t, m.Registry())
	})
}

func TestObserveTickCountsErrorsSeparately(t *testing.T) {
	m := New()

	m.ObserveTick(10*time.Millisecond, nil)
	require.Equal(t, float64(0), testutil.ToFloat64(m.TickErrors))

	m.ObserveTick(5*time.Millisecond, errors.New("transient"))
	require.Equal(t, float64(1), testutil.ToFloat64(m.TickErrors))

	// The histogram itself always exposes exactly one (unlabeled) series,
	// whether or not ObserveTick has ever been called against it.
	require.Equal(t, 1, testutil.CollectAndCount(m.TickDuration))
}

func TestGaugesReflectLatestSet(t *testing.T) {
	m := New()

	m.ScanHeight.Set(1234)
	require.Equal(t, float64(1234), testutil.ToFloat64(m.ScanHeight))

	m.InvoicesTracked.Set(7)
	require.Equal(t, float64(7), testutil.ToFloat64(m.InvoicesTracked))

	m.CallbackQueueDepth.Set(3)
	require.Equal(t, float64(3), testutil.ToFloat64(m.CallbackQueueDepth))
}
