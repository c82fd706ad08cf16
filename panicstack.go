package csp

import (
	"fmt"
	"runtime/debug"
	"strings"
	"sync/atomic"
)

// panicstack records the panics of a coroutine, in order of occurrence.
type panicstack []panicitem

type panicitem struct {
	value      any
	stack      []byte
	repanicked bool
	recovered  bool
}

// dummy is panicked to stop a task whose child coroutine has panicked.
// It is never recorded.
type dummy struct{}

func (ps panicstack) Repanic() {
	if len(ps) != 0 {
		panic(&PanicError{items: ps})
	}
}

func (ps *panicstack) Try(f func()) (ok bool) {
	defer func() {
		if !ok {
			v := recover()
			if v == nil {
				panic("csp: coroutines do not support runtime.Goexit()")
			}
			if _, ok := v.(dummy); ok {
				return
			}
			ps.push(v, debug.Stack())
		}
	}()
	f()
	return true
}

func (ps *panicstack) push(v any, stack []byte) {
	s := *ps
	n := len(s)
	repanicked := n != 0 && equal(v, s[n-1].value)
	*ps = append(s, panicitem{v, stack, repanicked, false})
}

func equal(a, b any) bool {
	defer func() { _ = recover() }()
	return a == b
}

// A PanicError is the value [Executor.Run] panics with when a coroutine
// panicked and nothing recovered it.
//
// Panic values that are errors can be matched with errors.Is and errors.As.
type PanicError struct {
	items []panicitem
	errs  atomic.Pointer[[]error]
}

// Values returns the panic values, in order of occurrence.
func (pe *PanicError) Values() []any {
	values := make([]any, len(pe.items))
	for i, p := range pe.items {
		values[i] = p.value
	}
	return values
}

func (pe *PanicError) Error() string {
	var b strings.Builder
	b.WriteString("csp: coroutine panicked as follows:")
	for i, p := range pe.items {
		fmt.Fprintf(&b, "\n(%d/%d) panic: %v", i+1, len(pe.items), p.value)
		switch {
		case p.repanicked && p.recovered:
			b.WriteString(" (repanicked, recovered)")
		case p.repanicked:
			b.WriteString(" (repanicked)")
		case p.recovered:
			b.WriteString(" (recovered)")
		}
		if p.stack != nil {
			b.WriteString("\n\n")
			b.Write(p.stack)
		}
	}
	return b.String()
}

func (pe *PanicError) Unwrap() []error {
	if p := pe.errs.Load(); p != nil {
		return *p
	}
	var errs []error
	for _, p := range pe.items {
		if err, ok := p.value.(error); ok {
			errs = append(errs, err)
		}
	}
	pe.errs.Store(&errs)
	return errs
}
