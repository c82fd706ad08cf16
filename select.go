package csp

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"
)

// Special values of [Selected.Index].
const (
	DefaultIndex  = -1 // the default was taken (see WithDefault)
	DeadlineIndex = -2 // the deadline elapsed (see WithDeadline)
)

// Selected is the outcome of a select.
type Selected struct {
	// Index is the position of the winning operation in the list passed to
	// Select, or one of DefaultIndex and DeadlineIndex.
	Index int

	// Value is the value taken by a winning take, or the default value.
	// It is nil when OK is false.
	Value any

	// OK reports, for a take, whether a value was taken (false means the
	// channel is closed and drained); for a put, whether the value was put.
	// It is false when the deadline elapsed and true when the default was
	// taken.
	OK bool
}

// An Op is a candidate operation for a select.
// Create one with [TakeOp] or [PutOp].
type Op interface {
	try(i int, h *commit, block bool, fire func(Selected)) (retract func(), s Selected, done bool)
	// giveBack undoes s, an outcome of this operation that no one will use.
	giveBack(s Selected)
}

type takeOp[T any] struct {
	c *Chan[T]
}

// TakeOp returns an [Op] that takes a value from c.
func TakeOp[T any](c *Chan[T]) Op {
	if c == nil {
		panic("csp: nil Chan")
	}
	return takeOp[T]{c}
}

func (op takeOp[T]) try(i int, h *commit, block bool, fire func(Selected)) (func(), Selected, bool) {
	w, v, ok, done := op.c.take(h, func(v T, ok bool) { fire(tookSelected(i, v, ok)) }, block)
	if done {
		return nil, tookSelected(i, v, ok), true
	}
	if w == nil {
		return nil, Selected{}, false
	}
	return func() { op.c.unlink(w) }, Selected{}, false
}

func (op takeOp[T]) giveBack(s Selected) {
	if s.OK {
		op.c.restore(s.Value.(T))
	}
}

func tookSelected[T any](i int, v T, ok bool) Selected {
	if !ok {
		return Selected{Index: i}
	}
	return Selected{Index: i, Value: v, OK: true}
}

type putOp[T any] struct {
	c *Chan[T]
	v T
}

// PutOp returns an [Op] that puts v on c.
func PutOp[T any](c *Chan[T], v T) Op {
	if c == nil {
		panic("csp: nil Chan")
	}
	c.checkValue(v)
	return putOp[T]{c, v}
}

func (op putOp[T]) try(i int, h *commit, block bool, fire func(Selected)) (func(), Selected, bool) {
	w, ok, done := op.c.put(op.v, h, func(ok bool) { fire(Selected{Index: i, OK: ok}) }, block)
	if done {
		return nil, Selected{Index: i, OK: ok}, true
	}
	if w == nil {
		return nil, Selected{}, false
	}
	return func() { op.c.unlink(w) }, Selected{}, false
}

// A completed put cannot be undone: a taker has already seen the value.
func (op putOp[T]) giveBack(Selected) {}

type selectOptions struct {
	def         any
	deadline    time.Duration
	hasDefault  bool
	hasDeadline bool
	priority    bool
}

// A SelectOption configures a select.
type SelectOption func(o *selectOptions)

// WithDefault makes a select return v, with Index set to [DefaultIndex],
// instead of blocking when no operation can complete right away.
func WithDefault(v any) SelectOption {
	return func(o *selectOptions) {
		o.def = v
		o.hasDefault = true
	}
}

// WithDeadline makes a select give up after d, as if a [Timeout] channel
// were among the operations; the outcome then has Index set to
// [DeadlineIndex].
//
// A select cannot have both a deadline and a default; giving both panics.
func WithDeadline(d time.Duration) SelectOption {
	return func(o *selectOptions) {
		o.deadline = d
		o.hasDeadline = true
	}
}

// WithPriority makes a select attempt operations in the order given,
// rather than in a random order, when more than one can complete right
// away.
func WithPriority() SelectOption {
	return func(o *selectOptions) {
		o.priority = true
	}
}

// registration tracks the operations a pending select has queued, so that
// the losers can be withdrawn once the select is decided.
type registration struct {
	mu       sync.Mutex
	retracts []func()
	sealed   bool
	decided  bool
}

func (r *registration) add(f func()) {
	r.mu.Lock()
	r.retracts = append(r.retracts, f)
	r.mu.Unlock()
}

// seal marks the end of registration.
func (r *registration) seal() {
	r.mu.Lock()
	r.sealed = true
	run := r.decided
	r.mu.Unlock()
	if run {
		r.retract()
	}
}

// decide is called once the select's commit has been claimed.
func (r *registration) decide() {
	r.mu.Lock()
	r.decided = true
	run := r.sealed
	r.mu.Unlock()
	if run {
		r.retract()
	}
}

func (r *registration) retract() {
	for _, f := range r.retracts {
		f()
	}
}

type candidate struct {
	op Op
	i  int
}

// selectOps attempts ops on behalf of h.
// If one completes right away (or the default is taken), done is true and s
// is the outcome. Otherwise every op is queued and fire will be called with
// the outcome exactly once.
func selectOps(ops []Op, opts []SelectOption, h *commit, fire func(Selected)) (s Selected, done bool, r *registration) {
	var o selectOptions
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}

	if o.hasDefault && o.hasDeadline {
		panic("csp: default and deadline")
	}

	for _, op := range ops {
		if op == nil {
			panic("csp: nil Op")
		}
	}

	if len(ops) == 0 && !o.hasDefault && !o.hasDeadline {
		panic("csp: empty select")
	}

	cands := make([]candidate, 0, len(ops)+1)
	for i, op := range ops {
		cands = append(cands, candidate{op, i})
	}
	if o.hasDeadline {
		cands = append(cands, candidate{TakeOp(Timeout(o.deadline)), DeadlineIndex})
	}
	if !o.priority {
		rand.Shuffle(len(cands), func(i, j int) { cands[i], cands[j] = cands[j], cands[i] })
	}

	r = new(registration)

	fireOnce := func(s Selected) {
		r.decide()
		if s.Index == DeadlineIndex {
			getLogger().Debug().
				Dur(`deadline`, o.deadline).
				Log(`csp: select deadline elapsed`)
		}
		fire(s)
	}

	block := !o.hasDefault

	for _, c := range cands {
		retract, s, done := c.op.try(c.i, h, block, fireOnce)
		if done {
			r.decide()
			r.seal()
			return s, true, r
		}
		if retract != nil {
			r.add(retract)
		}
	}

	if o.hasDefault {
		// Nothing was queued, so nobody else can have claimed h.
		h.claim()
		return Selected{Index: DefaultIndex, Value: o.def, OK: true}, true, r
	}

	r.seal()
	return Selected{}, false, r
}

// Select completes exactly one of ops, blocking until one can complete.
//
// If several operations can complete right away, one of them is chosen
// uniformly at random (see [WithPriority]). Otherwise every operation is
// queued on its channel; the first one to complete wins and the others are
// withdrawn, so that no more than one operation ever takes effect.
//
// Select panics if ops contains a nil [Op], if ops is empty and neither
// [WithDefault] nor [WithDeadline] is given, or if both are.
func Select(ops []Op, opts ...SelectOption) Selected {
	h := newCommit(true)
	result := make(chan Selected, 1)
	s, done, _ := selectOps(ops, opts, h, func(s Selected) { result <- s })
	if done {
		return s
	}
	return <-result
}

// SelectContext is like [Select] but gives up when ctx is done.
//
// If ctx is done before any operation completes, every pending operation is
// withdrawn and ctx.Err() is returned. An operation that has already
// completed is never undone: its outcome is returned with a nil error.
func SelectContext(ctx context.Context, ops []Op, opts ...SelectOption) (Selected, error) {
	if ctx == nil {
		panic("csp: nil Context")
	}
	if err := ctx.Err(); err != nil {
		return Selected{}, err
	}
	h := newCommit(true)
	result := make(chan Selected, 1)
	s, done, r := selectOps(ops, opts, h, func(s Selected) { result <- s })
	if done {
		return s, nil
	}
	select {
	case s := <-result:
		return s, nil
	case <-ctx.Done():
		if h.claim() {
			r.decide()
			return Selected{}, ctx.Err()
		}
		return <-result, nil
	}
}

// SelectAsync is like [Select] but never blocks.
// f is called exactly once with the outcome, by the [Dispatcher], never
// before SelectAsync returns.
func SelectAsync(ops []Op, f func(s Selected), opts ...SelectOption) {
	if f == nil {
		panic("csp: nil callback")
	}
	h := newCommit(false)
	s, done, _ := selectOps(ops, opts, h, f)
	if done {
		dispatch(func() { f(s) })
	}
}
