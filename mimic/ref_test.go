package mimic_test

import (
	"errors"
	"testing"

	"github.com/delaneyj/mimic/mimic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBoom = errors.New("boom")

// from README
func TestBasicUsage(t *testing.T) {
	tc := mimic.CreateTrackingContext()
	c := mimic.NewRef(tc, 1)

	var seen int
	_, err := mimic.WatchEffect(tc, func() error {
		seen = c.Value()
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, seen)

	require.NoError(t, c.SetValue(2))
	assert.Equal(t, 2, seen)
}

func TestRefTracking(t *testing.T) {
	t.Run("read outside an effect does not subscribe", func(t *testing.T) {
		tc := mimic.CreateTrackingContext()
		c := mimic.NewRef(tc, "a")

		reads := 0
		reader := func() {
			reads++
			c.Value()
		}
		reader()

		assert.Equal(t, 0, c.Subscribers())
		require.NoError(t, c.SetValue("b"))
		assert.Equal(t, 1, reads)
	})

	t.Run("repeated reads subscribe once", func(t *testing.T) {
		tc := mimic.CreateTrackingContext()
		c := mimic.NewRef(tc, 1)

		e, err := mimic.WatchEffect(tc, func() error {
			c.Value()
			c.Value()
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 1, c.Subscribers())

		require.NoError(t, c.SetValue(2))
		assert.Equal(t, 2, e.Runs())
	})

	t.Run("subscribers run in subscription order", func(t *testing.T) {
		tc := mimic.CreateTrackingContext()
		c := mimic.NewRef(tc, 0)

		order := []string{}
		_, err := mimic.WatchEffect(tc, func() error {
			c.Value()
			order = append(order, "first")
			return nil
		})
		require.NoError(t, err)
		_, err = mimic.WatchEffect(tc, func() error {
			c.Value()
			order = append(order, "second")
			return nil
		})
		require.NoError(t, err)

		order = order[:0]
		require.NoError(t, c.SetValue(1))
		assert.Equal(t, []string{"first", "second"}, order)
	})

	t.Run("writing the same value still broadcasts", func(t *testing.T) {
		tc := mimic.CreateTrackingContext()
		c := mimic.NewRef(tc, 7)

		e, err := mimic.WatchEffect(tc, func() error {
			c.Value()
			return nil
		})
		require.NoError(t, err)

		require.NoError(t, c.SetValue(7))
		require.NoError(t, c.SetValue(7))
		assert.Equal(t, 3, e.Runs())
	})
}

// should keep broadcasting after a subscriber fails
func TestBroadcastCollectsErrors(t *testing.T) {
	var failed []*mimic.Effect
	tc := mimic.CreateTrackingContext(mimic.WithOnError(func(from *mimic.Effect, err error) {
		failed = append(failed, from)
	}))
	c := mimic.NewRef(tc, 1).Named("count")

	first, err := mimic.WatchEffect(tc, func() error {
		if c.Value() == 2 {
			return errBoom
		}
		return nil
	})
	require.NoError(t, err)
	second, err := mimic.WatchEffect(tc, func() error {
		c.Value()
		return nil
	})
	require.NoError(t, err)

	err = c.SetValue(2)
	require.Error(t, err)
	assert.ErrorIs(t, err, errBoom)
	assert.Contains(t, err.Error(), "ref count")
	assert.Equal(t, 2, second.Runs())
	require.Len(t, failed, 1)
	assert.Same(t, first, failed[0])

	require.NoError(t, c.SetValue(3))
	assert.Equal(t, 3, second.Runs())
}

// should stop broadcasting when a subscriber panics
func TestBroadcastPanicReleasesState(t *testing.T) {
	tc := mimic.CreateTrackingContext()
	c := mimic.NewRef(tc, 1)

	_, err := mimic.WatchEffect(tc, func() error {
		if c.Value() == 2 {
			panic("bad value")
		}
		return nil
	})
	require.NoError(t, err)
	second, err := mimic.WatchEffect(tc, func() error {
		c.Value()
		return nil
	})
	require.NoError(t, err)

	assert.Panics(t, func() {
		c.SetValue(2)
	})
	assert.Nil(t, tc.Active())
	assert.Equal(t, 1, second.Runs())

	require.NoError(t, c.SetValue(3))
	assert.Equal(t, 2, second.Runs())
}

// should not invoke subscribers added during the broadcast
func TestBroadcastSkipsLateSubscribers(t *testing.T) {
	tc := mimic.CreateTrackingContext()
	c := mimic.NewRef(tc, 1)

	var inner *mimic.Effect
	outer, err := mimic.WatchEffect(tc, func() error {
		if c.Value() == 2 {
			e, err := mimic.WatchEffect(tc, func() error {
				c.Value()
				return nil
			})
			inner = e
			return err
		}
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, c.SetValue(2))
	require.NotNil(t, inner)
	assert.Equal(t, 1, inner.Runs())
	assert.Equal(t, 2, c.Subscribers())

	require.NoError(t, c.SetValue(3))
	assert.Equal(t, 2, inner.Runs())
	assert.Equal(t, 3, outer.Runs())
}

func TestPeekAndUpdate(t *testing.T) {
	tc := mimic.CreateTrackingContext()
	c := mimic.NewRef(tc, 1)
	watched := mimic.NewRef(tc, 0)

	var peeked int
	_, err := mimic.WatchEffect(tc, func() error {
		peeked = c.Peek()
		watched.Value()
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, peeked)
	assert.Equal(t, 0, c.Subscribers())

	seen := 0
	_, err = mimic.WatchEffect(tc, func() error {
		seen = c.Value()
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, c.Update(func(v int) int {
		return v + 10
	}))
	assert.Equal(t, 11, seen)
	assert.Equal(t, 11, c.Peek())
	assert.Equal(t, 1, c.Subscribers())
}

func TestRefHoldsAnyType(t *testing.T) {
	type point struct{ x, y int }

	tc := mimic.CreateTrackingContext()
	items := mimic.NewRef(tc, []string{"a"})
	where := mimic.NewRef(tc, point{1, 2})

	var joined []string
	var at point
	_, err := mimic.WatchEffect(tc, func() error {
		joined = append([]string{}, items.Value()...)
		at = where.Value()
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, items.SetValue([]string{"a", "b"}))
	require.NoError(t, where.SetValue(point{3, 4}))
	assert.Equal(t, []string{"a", "b"}, joined)
	assert.Equal(t, point{3, 4}, at)
}
