package csp

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/joeycumines/go-eventloop"
)

// TimeoutResolution is the granularity at which [Timeout] channels are
// shared.
const TimeoutResolution = 10 * time.Millisecond

var timeouts struct {
	mu    sync.Mutex
	epoch time.Time
	slots map[int64]*Chan[struct{}]
}

func init() {
	timeouts.epoch = time.Now()
	timeouts.slots = make(map[int64]*Chan[struct{}])
}

// timers is the event loop that closes Timeout channels. It is started on
// first use and runs for the life of the process.
var timers struct {
	once sync.Once
	loop *eventloop.Loop
}

func timerLoop() *eventloop.Loop {
	timers.once.Do(func() {
		eventloop.SetStructuredLogger(loopLogger{})

		loop, err := eventloop.New()
		if err != nil {
			panic(fmt.Errorf("csp: timer loop: %w", err))
		}

		// Wait for the loop to have started, so that its tick time is set.
		started := make(chan struct{})
		if err := loop.Submit(eventloop.Task{Runnable: func() { close(started) }}); err != nil {
			panic(fmt.Errorf("csp: timer loop: %w", err))
		}

		go func() {
			if err := loop.Run(context.Background()); err != nil {
				getLogger().Err().
					Err(err).
					Log(`csp: timer loop stopped`)
			}
		}()

		<-started

		timers.loop = loop
	})
	if timers.loop == nil {
		panic("csp: timer loop failed to start")
	}
	return timers.loop
}

// Timeout returns a channel that is closed once d has elapsed, never
// earlier. Nothing is ever put on it; takes on it block until then and
// report no value afterwards, which makes it a deadline for [Select].
//
// Deadlines are rounded up to [TimeoutResolution]; timeouts falling into
// the same slot share a channel and a timer.
// A non-positive d yields a channel that is closed as soon as the timer
// fires.
func Timeout(d time.Duration) *Chan[struct{}] {
	d = max(d, 0)

	loop := timerLoop()

	res := int64(TimeoutResolution)

	timeouts.mu.Lock()

	now := int64(time.Since(timeouts.epoch))
	slot := (now + int64(d) + res - 1) / res * res

	if c, ok := timeouts.slots[slot]; ok {
		timeouts.mu.Unlock()
		return c
	}

	c := NewChan[struct{}](0)
	timeouts.slots[slot] = c

	timeouts.mu.Unlock()

	// The loop counts delays from its tick time, which lags behind the
	// clock between ticks; add the lag so the timer cannot fire early.
	delay := time.Duration(slot-now) + max(time.Since(loop.CurrentTickTime()), 0)

	id := slot / res

	eventloop.LogTimerScheduled(0, id, delay, `csp: timeout`)

	err := loop.ScheduleTimer(delay, func() {
		eventloop.LogTimerFired(0, id, delay)
		timeouts.mu.Lock()
		delete(timeouts.slots, slot)
		timeouts.mu.Unlock()
		c.Close()
	})
	if err != nil {
		panic(fmt.Errorf("csp: scheduling timeout: %w", err))
	}

	return c
}
