package csp_test

import (
	"slices"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/b97tsk/csp"
)

func TestPipe(t *testing.T) {
	from := csp.ToChan([]int{1, 2, 3})
	to := csp.NewChan[int](0)
	csp.Pipe(from, to, true)
	require.Equal(t, []int{1, 2, 3}, csp.Collect(to))

	from = csp.ToChan([]int{4})
	to = csp.NewChan[int](1)
	csp.Pipe(from, to, false)
	v, ok := to.Take()
	require.True(t, ok)
	require.Equal(t, 4, v)
	require.False(t, to.Closed())
}

func TestPipeStopsOnClosedDestination(t *testing.T) {
	from := csp.NewChan[int](3)
	from.Offer(1)
	from.Offer(2)
	from.Offer(3)

	to := csp.NewChan[int](0)
	to.Close()

	csp.Pipe(from, to, false)

	// The first value is taken and dropped on the closed destination.
	require.Eventually(t, func() bool { return from.Len() == 2 }, time.Second, time.Millisecond)
}

func TestMerge(t *testing.T) {
	chs := []*csp.Chan[int]{
		csp.ToChan([]int{1, 2, 3}),
		csp.ToChan([]int{10, 20}),
		csp.ToChan([]int{100}),
	}

	got := csp.Collect(csp.Merge(chs, 2))
	require.ElementsMatch(t, []int{1, 2, 3, 10, 20, 100}, got)

	var small []int
	for _, v := range got {
		if v < 10 {
			small = append(small, v)
		}
	}
	require.Equal(t, []int{1, 2, 3}, small, "values from one channel keep their order")

	require.Empty(t, csp.Collect(csp.Merge[int](nil, 0)))
}

func TestPipeline(t *testing.T) {
	e := newExecutor()

	var in []int
	var want []string
	for i := range 50 {
		in = append(in, i)
		want = append(want, strconv.Itoa(i))
	}

	to := csp.NewChan[string](0)
	csp.Pipeline(e, 4, to, strconv.Itoa, csp.ToChan(in), true)

	got := csp.Collect(to)
	require.ElementsMatch(t, want, got)

	require.PanicsWithValue(t, "csp: non-positive parallelism", func() {
		csp.Pipeline(e, 0, to, strconv.Itoa, csp.ToChan(in), true)
	})
}

func TestPipelineOrderedWithOneWorker(t *testing.T) {
	e := newExecutor()

	to := csp.NewChan[int](0)
	csp.Pipeline(e, 1, to, func(v int) int { return v * v }, csp.ToChan([]int{1, 2, 3, 4}), true)

	require.Equal(t, []int{1, 4, 9, 16}, csp.Collect(to))
}

func TestOntoChan(t *testing.T) {
	c := csp.NewChan[string](0)
	done := csp.OntoChan(c, []string{"a", "b", "c"}, true)

	require.Equal(t, []string{"a", "b", "c"}, csp.Collect(c))
	_, ok := done.Take()
	require.False(t, ok)

	closed := csp.NewChan[string](0)
	closed.Close()
	_, ok = csp.OntoChan(closed, []string{"a"}, false).Take()
	require.False(t, ok, "done closes when a put fails")

	_, ok = csp.OntoChan(csp.NewChan[string](0), nil, false).Take()
	require.False(t, ok)
}

func TestToChan(t *testing.T) {
	vs := []int{3, 1, 2}
	c := csp.ToChan(vs)
	require.True(t, c.Closed())
	require.Equal(t, vs, csp.Collect(c))

	require.Empty(t, csp.Collect(csp.ToChan[int](nil)))
	require.True(t, slices.Equal(vs, []int{3, 1, 2}), "input is left untouched")
}
