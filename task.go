package csp

type frameKind int8

const (
	_ frameKind = iota
	thenFrame
	loopFrame
)

// A frame is pushed by Then and Loop and decides what follows when the
// task it wraps ends.
type frame struct {
	kind frameKind
	task Task
}

// handle returns what follows res, and whether f stays on the stack.
func (f *frame) handle(res Result) (Result, bool) {
	switch f.kind {
	case thenFrame:
		if res.action == doEnd {
			return Result{action: doTransition, task: f.task}, false
		}
		return res, false
	case loopFrame:
		switch res.action {
		case doEnd, doContinue:
			return Result{action: doTransition, task: f.task}, true
		case doBreak:
			return Result{action: doEnd}, false
		}
		return res, false
	}
	panic("csp: internal error: unknown frame")
}

// A Task is a step of sequential code run by a [Coroutine].
// Its [Result] says what the coroutine does next.
//
// Chained with Then and [Loop], tasks read like straight-line code in which
// every [AwaitTake], [AwaitPut] or [AwaitSelect] is a point where the
// coroutine may park without holding a goroutine.
type Task func(co *Coroutine) Result

// Then returns a [Task] that works on t, then on next once t ends.
func (t Task) Then(next Task) Task {
	return func(co *Coroutine) Result {
		return Result{
			action: doTransition,
			task:   must(t),
			frame:  frame{kind: thenFrame, task: must(next)},
		}
	}
}

// Do returns a [Task] that calls f, and then ends.
func Do(f func()) Task {
	return func(co *Coroutine) Result {
		f()
		return co.End()
	}
}

// End returns a [Task] that ends right away.
func End() Task {
	return (*Coroutine).End
}

// Break returns a [Task] that breaks the innermost [Loop].
func Break() Task {
	return (*Coroutine).Break
}

// Continue returns a [Task] that starts the next round of the innermost
// [Loop].
func Continue() Task {
	return (*Coroutine).Continue
}

// Exit returns a [Task] that makes its coroutine exit.
func Exit() Task {
	return (*Coroutine).Exit
}

// Loop returns a [Task] that runs t over and over, until t breaks.
func Loop(t Task) Task {
	return func(co *Coroutine) Result {
		return Result{
			action: doTransition,
			task:   must(t),
			frame:  frame{kind: loopFrame, task: t},
		}
	}
}

func must(t Task) Task {
	if t == nil {
		panic("csp: nil Task")
	}
	return t
}

func wakeParent(co *Coroutine) Result {
	co.parent.resume()
	return co.End()
}

// Race returns a [Task] that runs each of ts in a child coroutine, ends as
// soon as one of them ends, and cancels the others.
//
// A canceled task parked on a channel operation withdraws it. If the
// operation completed before it could be withdrawn, a value it took is put
// back at the head of its channel; a value it put stays put. Nothing a
// channel reported as accepted is lost.
//
// With no tasks, Race never ends.
func Race(ts ...Task) Task {
	for _, t := range ts {
		must(t)
	}
	return func(co *Coroutine) Result {
		for _, t := range ts {
			co.spawn(func(child *Coroutine) Result {
				child.Defer(wakeParent)
				return child.Transition(t)
			})
			if co.resumed() {
				break
			}
		}
		return co.await(nil, End())
	}
}
