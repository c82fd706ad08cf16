package csp_test

import (
	"testing"
	"time"

	"github.com/joeycumines/logiface"
	"github.com/stretchr/testify/require"

	"github.com/b97tsk/csp"
)

func TestTimeout(t *testing.T) {
	const d = 40 * time.Millisecond

	start := time.Now()
	c := csp.Timeout(d)

	_, ok := c.Poll()
	require.False(t, ok)
	require.False(t, c.Closed())

	_, ok = c.Take()
	require.False(t, ok)
	require.GreaterOrEqual(t, time.Since(start), d, "timeouts never fire early")
	require.True(t, c.Closed())

	for range 3 {
		_, ok = c.Take()
		require.False(t, ok)
	}
}

func TestTimeoutListeners(t *testing.T) {
	c := csp.Timeout(20 * time.Millisecond)

	done := make(chan bool, 3)
	for range 3 {
		go func() {
			_, ok := c.Take()
			done <- ok
		}()
	}
	for range 3 {
		require.False(t, <-done)
	}
}

func TestTimeoutCoalescing(t *testing.T) {
	distinct := make(map[*csp.Chan[struct{}]]bool)
	for range 5 {
		distinct[csp.Timeout(time.Second)] = true
	}
	// Requests made together fall into the same slot, or straddle at most
	// one slot boundary.
	require.LessOrEqual(t, len(distinct), 2)

	require.NotSame(t, csp.Timeout(time.Second), csp.Timeout(time.Second+5*csp.TimeoutResolution))
}

func TestTimeoutNonPositive(t *testing.T) {
	for _, d := range []time.Duration{0, -time.Second} {
		_, ok := csp.Timeout(d).Take()
		require.False(t, ok)
	}
}

func TestTimeoutLogging(t *testing.T) {
	buf := useBufferLogger(t, logiface.LevelDebug)

	_, ok := csp.Timeout(30 * time.Millisecond).Take()
	require.False(t, ok)

	out := buf.String()
	require.Contains(t, out, `eventloop: Timer scheduled`)
	require.Contains(t, out, `eventloop: Timer fired`)
	require.Contains(t, out, `"category":"timer"`)
	require.Contains(t, out, `csp: timeout`)
}
