package csp_test

import (
	"bytes"
	"sync"
	"testing"

	"github.com/joeycumines/logiface"
	"github.com/joeycumines/stumpy"

	"github.com/b97tsk/csp"
)

// manualDispatcher queues callbacks until the test runs them.
type manualDispatcher struct {
	mu sync.Mutex
	fs []func()
}

func (d *manualDispatcher) Dispatch(f func()) {
	d.mu.Lock()
	d.fs = append(d.fs, f)
	d.mu.Unlock()
}

func (d *manualDispatcher) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.fs)
}

// RunNext runs the oldest queued callback, if any.
func (d *manualDispatcher) RunNext() bool {
	d.mu.Lock()
	if len(d.fs) == 0 {
		d.mu.Unlock()
		return false
	}
	f := d.fs[0]
	d.fs = d.fs[1:]
	d.mu.Unlock()
	f()
	return true
}

// RunAll runs queued callbacks, including those queued meanwhile, and
// returns how many ran.
func (d *manualDispatcher) RunAll() int {
	n := 0
	for {
		d.mu.Lock()
		if len(d.fs) == 0 {
			d.mu.Unlock()
			return n
		}
		f := d.fs[0]
		d.fs = d.fs[1:]
		d.mu.Unlock()
		f()
		n++
	}
}

func useManualDispatcher(t *testing.T) *manualDispatcher {
	t.Helper()
	d := new(manualDispatcher)
	csp.SetDispatcher(d)
	t.Cleanup(func() { csp.SetDispatcher(nil) })
	return d
}

// syncBuffer is a bytes.Buffer safe for concurrent writes.
type syncBuffer struct {
	mu sync.Mutex
	b  bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.b.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.b.String()
}

func useBufferLogger(t *testing.T, level logiface.Level) *syncBuffer {
	t.Helper()
	var buf syncBuffer
	csp.SetLogger(stumpy.L.New(
		stumpy.L.WithStumpy(
			stumpy.WithWriter(&buf),
			stumpy.WithTimeField(``),
		),
		stumpy.L.WithLevel(level),
	).Logger())
	t.Cleanup(func() { csp.SetLogger(nil) })
	return &buf
}

// newExecutor returns an executor that runs coroutines on whichever
// goroutine spawns or wakes them.
func newExecutor() *csp.Executor {
	e := new(csp.Executor)
	e.Autorun(e.Run)
	return e
}
