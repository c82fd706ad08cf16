// Package tour is a guided tour of the csp channel runtime, as a sequence of
// small lessons that print what they do.
package tour

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"
	"github.com/joeycumines/logiface"
)

// ErrUnknownLesson is returned by [Tour.Run] for a lesson name that does not
// exist.
var ErrUnknownLesson = errors.New("tour: unknown lesson")

var (
	fmtHeading = color.New(color.FgMagenta, color.Bold).SprintFunc()
	fmtStep    = color.New(color.FgCyan).SprintFunc()
	fmtResult  = color.New(color.FgGreen).SprintFunc()
)

// A Lesson is one stop of the tour.
type Lesson struct {
	Name    string
	Summary string
	run     func(ctx context.Context, p *printer) error
}

// Lessons returns every lesson, in tour order.
func Lessons() []Lesson {
	return []Lesson{
		{"channels", "creating rendezvous and buffered channels", lessonChannels},
		{"blocking", "blocking puts and takes across goroutines", lessonBlocking},
		{"async", "callback puts and takes", lessonAsync},
		{"close", "closing a channel and draining it", lessonClose},
		{"go-blocks", "sequential tasks parked on channels", lessonGoBlocks},
		{"go-loops", "tasks looping over a channel", lessonGoLoops},
		{"race", "racing tasks, canceling the losers", lessonRace},
		{"select", "completing one of several operations", lessonSelect},
		{"timeouts", "giving up on a wait", lessonTimeouts},
	}
}

// Tour runs lessons, printing to Out.
type Tour struct {
	Out io.Writer

	// Logger, if not nil, receives one event per lesson.
	Logger *logiface.Logger[logiface.Event]
}

// Run runs the named lessons in order, or every lesson if names is empty.
// Run stops at the first lesson that fails.
func (t *Tour) Run(ctx context.Context, names ...string) error {
	lessons, err := pick(names)
	if err != nil {
		return err
	}
	p := &printer{w: t.Out}
	for i, l := range lessons {
		if err := ctx.Err(); err != nil {
			return err
		}
		if i != 0 {
			p.println()
		}
		p.printf("%s %s\n", fmtHeading(l.Name+":"), l.Summary)
		start := time.Now()
		err := l.run(ctx, p)
		t.Logger.Info().
			Str(`lesson`, l.Name).
			Dur(`elapsed`, time.Since(start)).
			Log(`lesson finished`)
		if err != nil {
			return fmt.Errorf("lesson %s: %w", l.Name, err)
		}
	}
	return p.err
}

func pick(names []string) ([]Lesson, error) {
	all := Lessons()
	if len(names) == 0 {
		return all, nil
	}
	byName := make(map[string]Lesson, len(all))
	for _, l := range all {
		byName[l.Name] = l
	}
	lessons := make([]Lesson, 0, len(names))
	for _, name := range names {
		l, ok := byName[name]
		if !ok {
			return nil, fmt.Errorf("%w %q", ErrUnknownLesson, name)
		}
		lessons = append(lessons, l)
	}
	return lessons, nil
}

// printer keeps the first write error.
type printer struct {
	w   io.Writer
	err error
}

func (p *printer) printf(format string, args ...any) {
	if p.err == nil {
		_, p.err = fmt.Fprintf(p.w, format, args...)
	}
}

func (p *printer) println() {
	p.printf("\n")
}

func (p *printer) step(format string, args ...any) {
	p.printf("  %s\n", fmtStep(fmt.Sprintf(format, args...)))
}

func (p *printer) result(format string, args ...any) {
	p.printf("    => %s\n", fmtResult(fmt.Sprintf(format, args...)))
}
