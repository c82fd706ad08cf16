package csp_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/b97tsk/csp"
)

func TestAwaitTake(t *testing.T) {
	e := newExecutor()

	c := csp.NewChan[int](0)
	res := csp.Go(e, func(result *int) csp.Task {
		return csp.AwaitTake(c, func(v int, ok bool) {
			require.True(t, ok)
			*result = v
		})
	})

	require.True(t, c.Put(5))
	v, ok := res.Take()
	require.True(t, ok)
	require.Equal(t, 5, v)

	_, ok = res.Take()
	require.False(t, ok, "the result channel is closed after the result")
}

func TestAwaitTakeReady(t *testing.T) {
	var e csp.Executor

	c := csp.NewChan[int](1)
	c.Offer(3)
	c.Close()

	var got []int
	var closed bool
	e.Spawn(csp.AwaitTake(c, func(v int, ok bool) { got = append(got, v) }).
		Then(csp.AwaitTake(c, func(v int, ok bool) { closed = !ok })))
	e.Run()

	require.Equal(t, []int{3}, got, "ready operations complete without parking")
	require.True(t, closed)
}

func TestAwaitPut(t *testing.T) {
	e := newExecutor()

	c := csp.NewChan[string](0)
	res := csp.Go(e, func(result *bool) csp.Task {
		return csp.AwaitPut(c, "hi", func(ok bool) { *result = ok })
	})

	v, ok := c.Take()
	require.True(t, ok)
	require.Equal(t, "hi", v)

	put, _ := res.Take()
	require.True(t, put)

	closed := csp.NewChan[string](0)
	closed.Close()
	res = csp.Go(e, func(result *bool) csp.Task {
		*result = true
		return csp.AwaitPut(closed, "hi", func(ok bool) { *result = ok })
	})
	put, _ = res.Take()
	require.False(t, put)

	require.PanicsWithValue(t, "csp: nil value", func() { csp.AwaitPut(csp.NewChan[*int](0), nil, nil) })
}

func TestAwaitSelect(t *testing.T) {
	e := newExecutor()

	c1 := csp.NewChan[int](0)
	c2 := csp.NewChan[int](0)
	res := csp.Go(e, func(result *csp.Selected) csp.Task {
		return csp.AwaitSelect([]csp.Op{csp.TakeOp(c1), csp.TakeOp(c2)}, func(s csp.Selected) { *result = s })
	})

	require.True(t, c2.Put(2))
	s, ok := res.Take()
	require.True(t, ok)
	require.Equal(t, csp.Selected{Index: 1, Value: 2, OK: true}, s)

	require.False(t, c1.Offer(1), "the losing take must have been withdrawn")
}

func TestAwaitSelectDeadline(t *testing.T) {
	e := newExecutor()

	c := csp.NewChan[int](0)
	start := time.Now()
	res := csp.Go(e, func(result *int) csp.Task {
		return csp.AwaitSelect([]csp.Op{csp.TakeOp(c)}, func(s csp.Selected) { *result = s.Index },
			csp.WithDeadline(20*time.Millisecond))
	})

	index, _ := res.Take()
	require.Equal(t, csp.DeadlineIndex, index)
	require.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
	require.False(t, c.Offer(1))
}

func TestParkedCoroutineCanceled(t *testing.T) {
	e := newExecutor()

	c1 := csp.NewChan[int](0)
	c2 := csp.NewChan[int](0)
	res := csp.Go(e, func(result *int) csp.Task {
		return csp.Race(
			csp.AwaitTake(c1, func(v int, ok bool) { *result = v }),
			csp.AwaitTake(c2, func(v int, ok bool) { *result = -v }),
		)
	})

	require.True(t, c1.Put(1))
	v, _ := res.Take()
	require.Equal(t, 1, v)

	require.False(t, c2.Offer(2), "the canceled take must have been withdrawn")
}

func TestCanceledTakeHandsValueBack(t *testing.T) {
	t.Run("Arrived", func(t *testing.T) {
		d := useManualDispatcher(t)

		var e csp.Executor

		c1 := csp.NewChan[int](0)
		c2 := csp.NewChan[int](0)
		res := csp.Go(&e, func(result *int) csp.Task {
			return csp.Race(
				csp.AwaitTake(c1, func(v int, ok bool) { *result = v }),
				csp.AwaitTake(c2, func(v int, ok bool) { *result = v }),
			)
		})
		e.Run()

		// Both takes complete before either coroutine gets to run.
		require.True(t, c1.Offer(1))
		require.True(t, c2.Offer(2))
		d.RunAll()
		e.Run()

		v, ok := res.Poll()
		require.True(t, ok)
		require.Equal(t, 1, v)

		require.Equal(t, 1, c2.Len())
		v, ok = c2.Poll()
		require.True(t, ok)
		require.Equal(t, 2, v, "the loser's value must be back on its channel")
	})

	t.Run("InFlight", func(t *testing.T) {
		d := useManualDispatcher(t)

		var e csp.Executor

		c1 := csp.NewChan[int](0)
		c2 := csp.NewChan[int](0)
		res := csp.Go(&e, func(result *int) csp.Task {
			return csp.Race(
				csp.AwaitTake(c1, func(v int, ok bool) { *result = v }),
				csp.AwaitTake(c2, func(v int, ok bool) { *result = v }),
			)
		})
		e.Run()

		require.True(t, c1.Offer(1))
		require.True(t, c2.Offer(2))

		// The race is decided while the second outcome is still on its way.
		require.True(t, d.RunNext())
		e.Run()
		v, ok := res.Poll()
		require.True(t, ok)
		require.Equal(t, 1, v)
		require.Zero(t, c2.Len())

		d.RunAll()
		e.Run()
		v, ok = c2.Poll()
		require.True(t, ok)
		require.Equal(t, 2, v, "the loser's value must be back on its channel")
	})

	t.Run("WaitingTaker", func(t *testing.T) {
		d := useManualDispatcher(t)

		var e csp.Executor

		c1 := csp.NewChan[int](0)
		c2 := csp.NewChan[int](0)
		res := csp.Go(&e, func(result *int) csp.Task {
			return csp.Race(
				csp.AwaitTake(c1, func(v int, ok bool) { *result = v }),
				csp.AwaitSelect([]csp.Op{csp.TakeOp(c2)}, func(s csp.Selected) { *result = s.Value.(int) }),
			)
		})
		e.Run()

		require.True(t, c1.Offer(1))
		require.True(t, c2.Offer(2))

		var got int
		c2.TakeAsync(func(v int, ok bool) { got = v })

		d.RunAll()
		e.Run()
		d.RunAll()

		v, _ := res.Poll()
		require.Equal(t, 1, v)
		require.Equal(t, 2, got, "a taker already waiting gets the value handed back")
	})
}

func TestRaceLosesNoValues(t *testing.T) {
	const rounds = 100

	for range rounds {
		e := newExecutor()

		c1 := csp.NewChan[int](0)
		c2 := csp.NewChan[int](0)
		chans := []*csp.Chan[int]{c1, c2}
		res := csp.Go(e, func(result *int) csp.Task {
			return csp.Race(
				csp.AwaitTake(c1, func(v int, ok bool) { *result = v }),
				csp.AwaitTake(c2, func(v int, ok bool) { *result = v }),
			)
		})

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)

		var accepted atomic.Int64
		var g errgroup.Group
		for i, c := range chans {
			g.Go(func() error {
				ok, err := c.PutContext(ctx, i+1)
				if err == nil && ok {
					accepted.Add(1)
				}
				return nil
			})
		}
		require.NoError(t, g.Wait())
		cancel()

		_, ok := res.Take()
		require.True(t, ok)

		// A value taken by the loser may still be on its way back.
		seen := 1
		require.Eventually(t, func() bool {
			for _, c := range chans {
				if _, ok := c.Poll(); ok {
					seen++
				}
			}
			return int64(seen) == accepted.Load()
		}, time.Second, time.Millisecond, "every accepted value is either the result or back on its channel")
	}
}

func TestGo(t *testing.T) {
	t.Run("Exit", func(t *testing.T) {
		e := newExecutor()
		res := csp.Go(e, func(result *int) csp.Task {
			return csp.Do(func() { *result = 1 }).Then(csp.Exit())
		})
		_, ok := res.Take()
		require.False(t, ok)
	})

	t.Run("NilResult", func(t *testing.T) {
		e := newExecutor()
		res := csp.Go(e, func(result **int) csp.Task { return csp.End() })
		_, ok := res.Take()
		require.False(t, ok)
	})

	t.Run("Panic", func(t *testing.T) {
		var e csp.Executor
		res := csp.Go(&e, func(result *int) csp.Task {
			return csp.Do(func() { panic("oops") })
		})
		require.Panics(t, e.Run)
		_, ok := res.Take()
		require.False(t, ok)
	})

	t.Run("Invalid", func(t *testing.T) {
		require.PanicsWithValue(t, "csp: nil Executor", func() {
			csp.Go(nil, func(*int) csp.Task { return csp.End() })
		})
		require.PanicsWithValue(t, "csp: nil func", func() { csp.Go[int](new(csp.Executor), nil) })
	})
}

func TestRange(t *testing.T) {
	e := newExecutor()

	c := csp.NewChan[int](0)
	res := csp.Go(e, func(sum *int) csp.Task {
		return csp.Range(c, func(v int) csp.Task {
			return csp.Do(func() { *sum += v })
		})
	})

	csp.OntoChan(c, []int{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}, true)

	sum, ok := res.Take()
	require.True(t, ok)
	require.Equal(t, 55, sum)
}

func TestRangeBreak(t *testing.T) {
	e := newExecutor()

	c := csp.ToChan([]int{1, 2, 3, 4, 5})
	res := csp.Go(e, func(got *[]int) csp.Task {
		return csp.Range(c, func(v int) csp.Task {
			if v == 3 {
				return csp.Break()
			}
			return csp.Do(func() { *got = append(*got, v) })
		})
	})

	got, _ := res.Take()
	require.Equal(t, []int{1, 2}, got)
	require.Equal(t, 2, c.Len(), "values after the break are left alone")
}

func TestPingPong(t *testing.T) {
	const rounds = 1000

	e := newExecutor()

	ping := csp.NewChan[int](0)
	pong := csp.NewChan[int](0)

	player := func(in, out *csp.Chan[int]) func(*int) csp.Task {
		return func(hits *int) csp.Task {
			return csp.Range(in, func(v int) csp.Task {
				*hits++
				if v == rounds {
					out.Close()
					return csp.Break()
				}
				return csp.AwaitPut(out, v+1, nil)
			})
		}
	}

	a := csp.Go(e, player(ping, pong))
	b := csp.Go(e, player(pong, ping))

	require.True(t, ping.Put(1))

	hitsA, _ := a.Take()
	hitsB, _ := b.Take()
	require.Equal(t, rounds, hitsA+hitsB)
}
