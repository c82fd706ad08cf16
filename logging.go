package csp

import (
	"sync/atomic"

	"github.com/joeycumines/go-eventloop"
	"github.com/joeycumines/logiface"
)

var logger atomic.Pointer[logiface.Logger[logiface.Event]]

// SetLogger installs the structured logger used by this package.
// The default, nil, disables logging.
//
// The event loop behind [Timeout] logs through the same logger, at debug
// level, with a category field.
//
// Loggers of any event type can be installed via their Logger method:
//
//	csp.SetLogger(stumpy.L.New(stumpy.L.WithStumpy()).Logger())
func SetLogger(l *logiface.Logger[logiface.Event]) {
	logger.Store(l)
}

func getLogger() *logiface.Logger[logiface.Event] {
	return logger.Load()
}

// loopLogger hands the timer loop's log entries to the package logger.
type loopLogger struct{}

func loopLevel(l eventloop.LogLevel) logiface.Level {
	switch l {
	case eventloop.LevelDebug:
		return logiface.LevelDebug
	case eventloop.LevelInfo:
		return logiface.LevelInformational
	case eventloop.LevelWarn:
		return logiface.LevelWarning
	}
	return logiface.LevelError
}

func (loopLogger) IsEnabled(level eventloop.LogLevel) bool {
	b := getLogger().Build(loopLevel(level))
	defer b.Release()
	return b.Enabled()
}

func (loopLogger) Log(entry eventloop.LogEntry) {
	b := getLogger().Build(loopLevel(entry.Level))
	if !b.Enabled() {
		return
	}
	b = b.Str(`category`, entry.Category)
	if entry.TimerID != 0 {
		b = b.Int64(`timer`, entry.TimerID)
	}
	for k, v := range entry.Context {
		b = b.Field(k, v)
	}
	if entry.Err != nil {
		b = b.Err(entry.Err)
	}
	b.Log(`eventloop: ` + entry.Message)
}
