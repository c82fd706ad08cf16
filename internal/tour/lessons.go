package tour

import (
	"context"
	"errors"
	"time"

	"github.com/b97tsk/csp"
)

var errStuck = errors.New("nothing arrived")

func newExecutor() *csp.Executor {
	e := new(csp.Executor)
	e.Autorun(e.Run)
	return e
}

func lessonChannels(ctx context.Context, p *printer) error {
	c := csp.NewChan[string](0)
	p.step("NewChan(0) makes a rendezvous channel")
	p.result("cap %d, put without a taker succeeds: %v", c.Cap(), c.Offer("x"))

	b := csp.NewChan[string](10)
	p.step("NewChan(10) buffers up to ten values")
	n := 0
	for b.Offer("x") {
		n++
	}
	p.result("%d puts completed right away, len %d", n, b.Len())
	return nil
}

func lessonBlocking(ctx context.Context, p *printer) error {
	b := csp.NewChan[string](10)
	p.step("Put then Take on a buffered channel, same goroutine")
	b.Put("hello")
	v, _ := b.Take()
	p.result("took %q", v)

	c := csp.NewChan[string](0)
	p.step("Put from another goroutine, Take here")
	go c.PutContext(ctx, "hello from a goroutine")
	v, ok, err := c.TakeContext(ctx)
	if err != nil {
		return err
	}
	p.result("took %q, ok %v", v, ok)
	return nil
}

func lessonAsync(ctx context.Context, p *printer) error {
	c := csp.NewChan[string](0)

	put := make(chan bool, 1)
	took := make(chan string, 1)

	p.step("PutAsync queues the put and returns")
	_, done := c.PutAsync("hi", func(ok bool) { put <- ok })
	p.result("completed right away: %v", done)

	p.step("TakeAsync meets it; both callbacks run on the dispatcher")
	c.TakeAsync(func(v string, ok bool) { took <- v })

	select {
	case v := <-took:
		p.result("take callback got %q", v)
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case ok := <-put:
		p.result("put callback got %v", ok)
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

func lessonClose(ctx context.Context, p *printer) error {
	c := csp.NewChan[int](2)
	c.Put(1)
	c.Put(2)

	p.step("Close a channel holding two values")
	c.Close()
	for range 3 {
		v, ok := c.Take()
		p.result("take: %d, ok %v", v, ok)
	}
	p.step("Put after close")
	p.result("put ok %v", c.Put(3))
	return nil
}

func lessonGoBlocks(ctx context.Context, p *printer) error {
	e := newExecutor()

	a := csp.NewChan[int](1)
	b := csp.NewChan[int](0)

	p.step("A task takes from a, doubles, puts on b")
	done := csp.Go(e, func(*struct{}) csp.Task {
		var v int
		return csp.AwaitTake(a, func(x int, ok bool) { v = x }).Then(func(co *csp.Coroutine) csp.Result {
			return co.Transition(csp.AwaitPut(b, v*2, nil))
		})
	})

	a.Put(7)
	p.result("put 7 on a")
	v, ok, err := b.TakeContext(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return errStuck
	}
	p.result("took %d from b", v)

	_, _, err = done.TakeContext(ctx)
	return err
}

func lessonGoLoops(ctx context.Context, p *printer) error {
	e := newExecutor()

	a := csp.NewChan[int](1)
	b := csp.NewChan[int](0)

	p.step("A task loops: take from a, double, put on b, until a closes")
	done := csp.Go(e, func(*struct{}) csp.Task {
		return csp.Range(a, func(v int) csp.Task {
			return csp.AwaitPut(b, v*2, nil)
		})
	})

	for _, v := range []int{7, 8} {
		a.Put(v)
		w, ok, err := b.TakeContext(ctx)
		if err != nil {
			return err
		}
		if !ok {
			return errStuck
		}
		p.result("put %d, took %d", v, w)
	}

	a.Close()
	_, _, err := done.TakeContext(ctx)
	p.result("a closed, loop ended")
	return err
}

func lessonRace(ctx context.Context, p *printer) error {
	e := newExecutor()

	fast := csp.NewChan[string](0)
	slow := csp.NewChan[string](0)

	p.step("Race two tasks parked on takes; the first to end cancels the other")
	winner := csp.Go(e, func(winner *string) csp.Task {
		return csp.Race(
			csp.AwaitTake(fast, func(v string, ok bool) { *winner = v }),
			csp.AwaitTake(slow, func(v string, ok bool) { *winner = v }),
		)
	})

	if _, err := fast.PutContext(ctx, "fast"); err != nil {
		return err
	}
	v, ok, err := winner.TakeContext(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return errStuck
	}
	p.result("%q won", v)

	p.step("The loser's take was withdrawn")
	p.result("slow still has a taker: %v", slow.Offer("slow"))
	return nil
}

func lessonSelect(ctx context.Context, p *printer) error {
	c1 := csp.NewChan[string](1)
	c2 := csp.NewChan[string](1)
	ops := []csp.Op{csp.TakeOp(c1), csp.TakeOp(c2)}

	p.step("Select over two channels, one ready at a time")
	for i, c := range []*csp.Chan[string]{c1, c2} {
		c.Put("from c" + string(rune('1'+i)))
		s, err := csp.SelectContext(ctx, ops)
		if err != nil {
			return err
		}
		p.result("index %d, value %q", s.Index, s.Value)
	}

	p.step("Select with a default when nothing is ready")
	s := csp.Select(ops, csp.WithDefault("none ready"))
	p.result("index %d, value %q", s.Index, s.Value)

	p.step("Select can put too")
	s = csp.Select([]csp.Op{csp.PutOp(c1, "put by select")}, csp.WithPriority())
	v, _ := c1.Take()
	p.result("put ok %v, c1 holds %q", s.OK, v)
	return nil
}

func lessonTimeouts(ctx context.Context, p *printer) error {
	const d = 50 * time.Millisecond

	never := csp.NewChan[string](0)

	p.step("Take from a timeout channel")
	start := time.Now()
	_, ok, err := csp.Timeout(d).TakeContext(ctx)
	if err != nil {
		return err
	}
	p.result("closed after at least %v: %v, value %v", d, time.Since(start) >= d, ok)

	p.step("Select between a silent channel and a timeout")
	s, err := csp.SelectContext(ctx, []csp.Op{csp.TakeOp(never), csp.TakeOp(csp.Timeout(d))})
	if err != nil {
		return err
	}
	p.result("index %d won", s.Index)

	p.step("The same, with a deadline option")
	s, err = csp.SelectContext(ctx, []csp.Op{csp.TakeOp(never)}, csp.WithDeadline(d))
	if err != nil {
		return err
	}
	p.result("deadline elapsed: %v", s.Index == csp.DeadlineIndex)
	return nil
}
