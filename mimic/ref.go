package mimic

import (
	"errors"
	"fmt"
	"strconv"

	mapset "github.com/deckarep/golang-set/v2"
)

// Ref holds a value and the effects that read it while being tracked.
type Ref[T any] struct {
	tc    *TrackingContext
	id    uint64
	name  string
	value T

	// subscription order; entries are never removed
	subs   []*Effect
	subSet mapset.Set[*Effect]
}

func NewRef[T any](tc *TrackingContext, initial T) *Ref[T] {
	return &Ref[T]{
		tc:     tc,
		id:     tc.id(),
		value:  initial,
		subSet: mapset.NewThreadUnsafeSet[*Effect](),
	}
}

// Value returns the current value and subscribes the active computation.
func (r *Ref[T]) Value() T {
	if sub := r.tc.Active(); sub != nil && r.subSet.Add(sub) {
		r.subs = append(r.subs, sub)
		r.tc.logger.Debug("subscribed", "ref", r.label(), "effect", sub.label())
	}
	return r.value
}

// Peek returns the current value without subscribing.
func (r *Ref[T]) Peek() T {
	return r.value
}

// SetValue stores v and re-runs every subscriber before returning, even when
// v equals the old value. Subscribers run in the order they subscribed. A
// failing subscriber does not stop the others; their errors are joined.
//
// A write to a ref that is still broadcasting further up the call stack is
// rejected with a *CycleError unless the context was built with
// WithoutCycleGuard.
func (r *Ref[T]) SetValue(v T) error {
	tc := r.tc
	if tc.cycleGuard && tc.broadcasting.Contains(r.id) {
		tc.logger.Debug("write rejected", "ref", r.label(), "err", ErrCycle)
		return &CycleError{Ref: r.label()}
	}
	r.value = v

	// subscribers added while broadcasting wait for the next write
	subs := r.subs
	if len(subs) == 0 {
		return nil
	}

	added := tc.broadcasting.Add(r.id)
	defer func() {
		if added {
			tc.broadcasting.Remove(r.id)
		}
	}()
	tc.logger.Debug("broadcast", "ref", r.label(), "subscribers", len(subs))

	var errs []error
	for _, sub := range subs {
		if err := sub.rerun(); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("ref %s: %w", r.label(), errors.Join(errs...))
	}
	return nil
}

// Update writes fn applied to the current value. The read does not subscribe.
func (r *Ref[T]) Update(fn func(T) T) error {
	return r.SetValue(fn(r.value))
}

// Subscribers reports how many effects are subscribed.
func (r *Ref[T]) Subscribers() int {
	return len(r.subs)
}

func (r *Ref[T]) Named(name string) *Ref[T] {
	r.name = name
	return r
}

func (r *Ref[T]) ID() uint64 {
	return r.id
}

func (r *Ref[T]) Name() string {
	return r.name
}

func (r *Ref[T]) label() string {
	if r.name != "" {
		return r.name
	}
	return "#" + strconv.FormatUint(r.id, 10)
}
