// Package csp is a channel runtime in the style of communicating sequential
// processes: channels with blocking, callback and parking access, a select
// over several channel operations, timeout channels, and sequential tasks
// that park on channels without holding a goroutine.
//
// Go has channels already. What this package adds is the other half of the
// picture: operations that complete through callbacks, a select that can be
// registered and withdrawn without a goroutine waiting on it, and coroutines
// that can be suspended on any number of channels at almost no cost.
//
// # Channels
//
// A [Chan] is created with [NewChan]. A buffer size of zero makes
// a rendezvous channel. Values are put with [Chan.Put] (blocking),
// [Chan.PutAsync] (callback) or [Chan.Offer] (only if possible right away),
// and taken with [Chan.Take], [Chan.TakeAsync] or [Chan.Poll].
//
// Closing a channel with [Chan.Close] makes every later put fail. Values
// still in the buffer can be taken; after that every take reports that there
// is no value, right away and forever. Nil values are reserved for that
// purpose and cannot be put.
//
// No operation returns an error for a closed channel: the boolean result says
// it all. Malformed requests, like a negative buffer size or a nil value,
// panic.
//
// # Select
//
// [Select] completes exactly one of several channel operations, created with
// [TakeOp] and [PutOp]. When more than one can complete right away, one is
// chosen at random. [WithDefault] turns a select into a non-blocking one and
// [WithDeadline] bounds its wait.
// Operations that lose are withdrawn before they can take effect.
//
// # Timeouts
//
// [Timeout] returns a channel that closes after a duration. Taking from it is
// the way to wait, or to give up waiting in a select. Timeouts are driven by
// a single event loop, started on first use.
//
// # Callbacks
//
// Callbacks passed to PutAsync, TakeAsync and [SelectAsync] are called exactly
// once, by a [Dispatcher], never on the goroutine that registered them before
// the registering call returns. The default dispatcher is a [Pool] of
// goroutines; [SetDispatcher] replaces it.
//
// # Sequential Tasks
//
// A [Task] is a piece of sequential code run by a [Coroutine] on an
// [Executor]. A task can park its coroutine on a channel with [AwaitTake],
// [AwaitPut] and [AwaitSelect]; the coroutine resumes once the operation
// completes, on its executor, and the next task in line carries on.
// [Go] spawns a task and returns a channel that delivers its result; [Range]
// loops over the values of a channel.
//
// Coroutines spawned by an [Executor] are root coroutines. [Race] runs tasks
// in child coroutines; once one of them ends, the others are canceled. A
// canceled coroutine withdraws the channel operation it is parked on, and if
// that operation has already taken a value, the value goes back to its
// channel, so a race loses nothing.
// Root coroutines are not cancelable; to stop one, send it a message over a
// channel it selects on.
//
// # Panic Propagation
//
// Child coroutines propagate unrecovered panics to their parent coroutines.
// Root coroutines propagate unrecovered panics to their [Executor], causing
// the [Executor.Run] method to panic with a [*PanicError] when it returns.
//
// Callbacks that panic are recovered by the [Pool] that runs them, and logged.
//
// # Logging
//
// The package logs through a structured logger installed with [SetLogger].
// Nothing is logged by default.
package csp
