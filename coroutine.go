package csp

import "slices"

type action int8

const (
	_ action = iota
	doYield
	doTransition
	doEnd
	doBreak
	doContinue
	doRaise // Exit, panic or cancellation.
)

const (
	flagResumed = 1 << iota
	flagEnqueued
	flagEnded
	flagExiting
	flagPanicking
	flagCanceled
)

// A Coroutine works through a chain of [Task]s on an [Executor].
//
// Unlike a goroutine, a coroutine has no stack of its own. When one of its
// tasks parks on a channel operation ([AwaitTake], [AwaitPut],
// [AwaitSelect]), the coroutine hands its executor back and keeps nothing
// but the task that will pick up the outcome. The executor runs it again
// once the operation completes.
//
// Coroutines spawned by an [Executor] are root coroutines. [Race] spawns
// child coroutines, which are canceled as soon as their parent moves on.
// A canceled coroutine withdraws the channel operation it is parked on; if
// that operation has already taken a value, the value is handed back to its
// channel.
type Coroutine struct {
	flag     uint8
	level    uint32
	parent   *Coroutine
	executor *Executor
	ps       panicstack
	task     Task
	deps     []event
	children []*Coroutine
	defers   []Task
	frames   []frame
}

// An event is something a parked coroutine waits on.
// removeListener is called, on the executor, whenever the coroutine stops
// waiting, whether it was resumed or canceled.
type event interface {
	addListener(co *Coroutine)
	removeListener(co *Coroutine)
}

func newCoroutine(e *Executor, parent *Coroutine, t Task) *Coroutine {
	co := &Coroutine{flag: flagResumed, parent: parent, executor: e, task: must(t)}
	if parent != nil {
		co.level = parent.level + 1
		if co.level == 0 {
			panic("csp: too many levels")
		}
	}
	return co
}

func (co *Coroutine) queueLevel() uint32 {
	return co.level
}

// resume queues co to run again. Executor only.
func (co *Coroutine) resume() {
	co.executor.resumeCoroutine(co)
}

func (co *Coroutine) run() (yielded bool) {
	for {
		co.release()
		co.flag &^= flagResumed

		var res Result

		if !co.ps.Try(func() { res = co.task(co) }) {
			res = co.panic()
		}

		if res.action == doYield {
			if co.flag&flagCanceled == 0 {
				co.task = res.task
				return true
			}
			res = co.cancel()
		}

		if res.action != doTransition {
			res = co.settle(res)
		}

		if res.action != doTransition {
			break
		}

		co.task = res.task

		if res.frame.kind != 0 {
			co.frames = append(co.frames, res.frame)
		}
	}

	co.finish()

	return false
}

// settle works out what follows res, a Result that leaves the running task:
// whatever the innermost frame taking it says, or else the next deferred
// task. Anything else ends the coroutine.
func (co *Coroutine) settle(res Result) Result {
	co.release()

	if co.Panicking() {
		res = co.panic()
	}

	for len(co.frames) != 0 {
		i := len(co.frames) - 1
		next, keep := co.frames[i].handle(res)
		if !keep {
			co.frames[i] = frame{}
			co.frames = co.frames[:i]
		}
		if next.action == doTransition {
			return next
		}
		res = next
	}

	if res.action == doBreak || res.action == doContinue {
		co.ps.Try(func() { panic("csp: Break or Continue outside of a Loop") })
		res = co.panic()
	}

	if n := len(co.defers); n != 0 {
		t := co.defers[n-1]
		co.defers[n-1] = nil
		co.defers = co.defers[:n-1]
		return Result{action: doTransition, task: t}
	}

	return res
}

func (co *Coroutine) finish() {
	co.flag |= flagEnded

	co.release()

	parent := co.parent

	if parent != nil {
		parent.children = slices.DeleteFunc(parent.children, func(c *Coroutine) bool { return c == co })
	}

	if !co.Panicking() {
		return
	}

	if parent == nil {
		co.executor.ps = append(co.executor.ps, co.ps...)
		return
	}

	parent.flag |= flagPanicking
	parent.task = (*Coroutine).panic
	parent.ps = append(parent.ps, co.ps...)
	parent.resume()
}

// release stops co from waiting on anything, and cancels its children.
func (co *Coroutine) release() {
	if deps := co.deps; len(deps) != 0 {
		co.deps = nil
		for _, d := range deps {
			d.removeListener(co)
		}
	}
	if children := co.children; len(children) != 0 {
		co.children = nil
		for _, c := range slices.Backward(children) {
			c.abort()
		}
	}
}

func (co *Coroutine) abort() {
	co.flag |= flagCanceled
	co.task = (*Coroutine).cancel
	if co.run() {
		panic("csp: internal error: canceled coroutine yielded")
	}
}

// spawn runs t in a child coroutine of co, right away.
func (co *Coroutine) spawn(t Task) {
	child := newCoroutine(co.executor, co, t)
	if child.run() {
		co.children = append(co.children, child)
		return
	}
	if co.Panicking() {
		panic(dummy{}) // The child panicked; stop the running task.
	}
}

// await parks co on ev, if not nil. Once co resumes, next runs.
func (co *Coroutine) await(ev event, next Task) Result {
	if ev != nil {
		co.deps = append(co.deps, ev)
		ev.addListener(co)
	}
	return Result{action: doYield, task: must(next)}
}

// Executor returns the executor that runs co.
func (co *Coroutine) Executor() *Executor {
	return co.executor
}

// Ended reports whether co has ended.
func (co *Coroutine) Ended() bool {
	return co.flag&flagEnded != 0
}

// Exiting reports whether co is exiting, after [Coroutine.Exit] or because
// it was canceled.
func (co *Coroutine) Exiting() bool {
	return co.flag&flagExiting != 0
}

// Panicking reports whether co is panicking.
func (co *Coroutine) Panicking() bool {
	return co.flag&flagPanicking != 0
}

// Canceled reports whether co has been canceled by its parent.
func (co *Coroutine) Canceled() bool {
	return co.flag&flagCanceled != 0
}

func (co *Coroutine) resumed() bool {
	return co.flag&flagResumed != 0
}

// Defer adds t to the tasks co runs when it ends, exits, panics or is
// canceled, last added first.
func (co *Coroutine) Defer(t Task) {
	if co.Ended() {
		panic("csp: coroutine has already ended")
	}
	co.defers = append(co.defers, must(t))
}

// Recover stops co from panicking and returns the latest panic value.
// It returns nil if co is not panicking.
// Recover is meant to be called in a deferred task.
func (co *Coroutine) Recover() any {
	if !co.Panicking() {
		return nil
	}
	p := &co.ps[len(co.ps)-1]
	p.recovered = true
	co.flag &^= flagPanicking
	return p.value
}

// Result is what a [Task] returns to tell its coroutine what to do next.
// Create one with [Coroutine.Transition], [Coroutine.End],
// [Coroutine.Break], [Coroutine.Continue] or [Coroutine.Exit], and return it
// right away.
type Result struct {
	action action
	task   Task
	frame  frame
}

// Transition returns a [Result] that makes co work on t next.
func (co *Coroutine) Transition(t Task) Result {
	return Result{action: doTransition, task: must(t)}
}

// End returns a [Result] that ends the running task.
func (co *Coroutine) End() Result {
	return Result{action: doEnd}
}

// Break returns a [Result] that breaks the innermost [Loop].
func (co *Coroutine) Break() Result {
	return Result{action: doBreak}
}

// Continue returns a [Result] that starts the next round of the innermost
// [Loop].
func (co *Coroutine) Continue() Result {
	return Result{action: doContinue}
}

// Exit returns a [Result] that makes co exit, once its deferred tasks
// have run.
func (co *Coroutine) Exit() Result {
	co.flag |= flagExiting
	return Result{action: doRaise}
}

func (co *Coroutine) cancel() Result {
	co.flag |= flagExiting | flagCanceled
	return Result{action: doRaise}
}

func (co *Coroutine) panic() Result {
	co.flag |= flagPanicking
	return Result{action: doRaise}
}
