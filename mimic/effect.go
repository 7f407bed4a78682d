package mimic

import (
	"fmt"
	"strconv"
)

type ErrFn func() error

// Effect is a computation registered with a TrackingContext. Refs hold
// subscriptions by *Effect, so one Effect is notified at most once per write.
type Effect struct {
	tc   *TrackingContext
	id   uint64
	name string
	fn   ErrFn
	runs int
}

func NewEffect(tc *TrackingContext, fn ErrFn) *Effect {
	return &Effect{
		tc: tc,
		id: tc.id(),
		fn: fn,
	}
}

// WatchEffect runs fn once under tracking. Every ref it reads will re-run it
// when written.
func WatchEffect(tc *TrackingContext, fn ErrFn) (*Effect, error) {
	e := NewEffect(tc, fn)
	return e, e.Run()
}

// Run invokes the computation as the current computation of its context.
// The previous computation is restored on every exit path, panics included.
func (e *Effect) Run() error {
	e.tc.push(e)
	defer e.tc.pop()
	return e.invoke()
}

// rerun is what a broadcasting ref calls.
func (e *Effect) rerun() error {
	if e.tc.untrackedReruns {
		return e.invoke()
	}
	return e.Run()
}

func (e *Effect) invoke() error {
	e.runs++
	if err := e.fn(); err != nil {
		e.tc.reportError(e, err)
		return fmt.Errorf("effect %s: %w", e.label(), err)
	}
	return nil
}

func (e *Effect) Named(name string) *Effect {
	e.name = name
	return e
}

func (e *Effect) ID() uint64 {
	return e.id
}

func (e *Effect) Name() string {
	return e.name
}

// Runs reports how many times the computation has been invoked.
func (e *Effect) Runs() int {
	return e.runs
}

func (e *Effect) label() string {
	if e.name != "" {
		return e.name
	}
	return "#" + strconv.FormatUint(e.id, 10)
}
