// Package mimic is a small reactive primitive. A Ref remembers which effects
// read it while they ran, and re-runs them when it is written.
//
//	tc := mimic.CreateTrackingContext()
//	count := mimic.NewRef(tc, 1)
//	mimic.WatchEffect(tc, func() error {
//		log.Printf("count is %d", count.Value())
//		return nil
//	})
//	count.SetValue(2) // logs "count is 2"
//
// A TrackingContext is not safe for concurrent use.
package mimic

import (
	"io"
	"log/slog"

	mapset "github.com/deckarep/golang-set/v2"
)

type OnErrorFunc func(from *Effect, err error)

type TrackingContext struct {
	// active computations, top is current; a nil entry pauses tracking
	stack []*Effect
	// ids of refs whose broadcast is on the call stack
	broadcasting mapset.Set[uint64]
	nextID       uint64

	untrackedReruns bool
	cycleGuard      bool
	onError         OnErrorFunc
	logger          *slog.Logger
}

type Option func(*TrackingContext)

// WithLogger sets the logger used for debug traces and computation failures.
func WithLogger(logger *slog.Logger) Option {
	return func(tc *TrackingContext) {
		if logger != nil {
			tc.logger = logger
		}
	}
}

// WithOnError registers a hook called for every failing computation run.
func WithOnError(onError OnErrorFunc) Option {
	return func(tc *TrackingContext) {
		tc.onError = onError
	}
}

// WithUntrackedReruns makes writes re-invoke subscribers as bare calls.
// A re-run then records no subscriptions of its own, so an effect's
// dependencies are fixed by the runs made through Run.
func WithUntrackedReruns() Option {
	return func(tc *TrackingContext) {
		tc.untrackedReruns = true
	}
}

// WithoutCycleGuard lets a write re-enter a ref that is still broadcasting.
// A write cycle then recurses until it stops on its own or the goroutine
// stack overflows.
func WithoutCycleGuard() Option {
	return func(tc *TrackingContext) {
		tc.cycleGuard = false
	}
}

func CreateTrackingContext(opts ...Option) *TrackingContext {
	tc := &TrackingContext{
		broadcasting: mapset.NewThreadUnsafeSet[uint64](),
		cycleGuard:   true,
		logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(tc)
	}
	return tc
}

// Active returns the computation currently being tracked, or nil.
func (tc *TrackingContext) Active() *Effect {
	if len(tc.stack) == 0 {
		return nil
	}
	return tc.stack[len(tc.stack)-1]
}

func (tc *TrackingContext) PauseTracking() {
	tc.push(nil)
}

func (tc *TrackingContext) ResumeTracking() {
	tc.pop()
}

// Untrack runs fn with tracking paused and returns its result.
func Untrack[T any](tc *TrackingContext, fn func() T) T {
	tc.PauseTracking()
	defer tc.ResumeTracking()
	return fn()
}

func (tc *TrackingContext) push(e *Effect) {
	tc.stack = append(tc.stack, e)
}

func (tc *TrackingContext) pop() {
	lastIdx := len(tc.stack) - 1
	tc.stack[lastIdx] = nil
	tc.stack = tc.stack[:lastIdx]
}

func (tc *TrackingContext) id() uint64 {
	tc.nextID++
	return tc.nextID
}

func (tc *TrackingContext) reportError(from *Effect, err error) {
	tc.logger.Warn("computation failed", "effect", from.label(), "err", err)
	if tc.onError != nil {
		tc.onError(from, err)
	}
}
