package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyMatches(t *testing.T) {
	assert.True(t, NewKey("messages", "c1").Matches("messages"))
	assert.True(t, NewKey("messages", "c1").Matches(""))
	assert.True(t, Key("presence").Matches("presence"))
	assert.False(t, Key("messages_archive").Matches("messages"))
	assert.False(t, NewKey("messages", "c1").Matches(NewKey("messages", "c2")))
	assert.Equal(t, "typing", NewKey("typing", "c1").Root())
}

func TestFetchCachesUntilInvalidated(t *testing.T) {
	q := New()
	var calls int32
	fetch := func(context.Context) ([]string, error) {
		atomic.AddInt32(&calls, 1)
		return []string{"a"}, nil
	}

	for i := 0; i < 3; i++ {
		v, err := Fetch(context.Background(), q, NewKey("messages", "c1"), fetch)
		require.NoError(t, err)
		assert.Equal(t, []string{"a"}, v)
	}
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))

	assert.Equal(t, 1, q.Invalidate("messages"))
	_, err := Fetch(context.Background(), q, NewKey("messages", "c1"), fetch)
	require.NoError(t, err)
	assert.EqualValues(t, 2, atomic.LoadInt32(&calls))
}

func TestFetchErrorIsNotCached(t *testing.T) {
	q := New()
	_, err := Fetch(context.Background(), q, "presence", func(context.Context) (int, error) {
		return 0, assert.AnError
	})
	require.ErrorIs(t, err, assert.AnError)
	assert.Zero(t, q.Len())
}

func TestConcurrentFetchesShareOneQuery(t *testing.T) {
	q := New()
	release := make(chan struct{})
	var calls int32

	var wg sync.WaitGroup
	results := make([]int, 5)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err := Fetch(context.Background(), q, "conversations:u1", func(context.Context) (int, error) {
				atomic.AddInt32(&calls, 1)
				<-release
				return 7, nil
			})
			assert.NoError(t, err)
			results[i] = v
		}(i)
	}

	assert.Eventually(t, func() bool { return atomic.LoadInt32(&calls) == 1 }, time.Second, time.Millisecond)
	close(release)
	wg.Wait()

	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
	for _, v := range results {
		assert.Equal(t, 7, v)
	}
}

func TestInvalidationDuringFetchMarksStale(t *testing.T) {
	q := New()
	started := make(chan struct{})
	release := make(chan struct{})

	done := make(chan int)
	go func() {
		v, _ := Fetch(context.Background(), q, NewKey("typing", "c1"), func(context.Context) (int, error) {
			close(started)
			<-release
			return 1, nil
		})
		done <- v
	}()

	<-started
	q.Invalidate(NewKey("typing", "c1"))
	close(release)
	assert.Equal(t, 1, <-done)

	v, err := Fetch(context.Background(), q, NewKey("typing", "c1"), func(context.Context) (int, error) {
		return 2, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, v)
}

func TestReadAfterInvalidationDoesNotJoinStaleFetch(t *testing.T) {
	q := New()
	key := NewKey("messages", "c1")
	var db atomic.Int32
	db.Store(1)

	started := make(chan struct{})
	release := make(chan struct{})
	first := make(chan int)
	go func() {
		v, _ := Fetch(context.Background(), q, key, func(context.Context) (int, error) {
			n := int(db.Load())
			close(started)
			<-release
			return n, nil
		})
		first <- v
	}()
	<-started

	db.Store(2)
	q.Invalidate("messages")

	second := make(chan int)
	go func() {
		v, err := Fetch(context.Background(), q, key, func(context.Context) (int, error) {
			return int(db.Load()), nil
		})
		assert.NoError(t, err)
		second <- v
	}()

	assert.Equal(t, 2, <-second)
	close(release)
	assert.Equal(t, 1, <-first)

	v, err := Fetch(context.Background(), q, key, func(context.Context) (int, error) {
		return 99, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, v)
}

func TestCanceledCallerDoesNotFailSharedFetch(t *testing.T) {
	q := New()
	key := NewKey("conversations", "u1")
	started := make(chan struct{})
	release := make(chan struct{})

	ctxA, cancelA := context.WithCancel(context.Background())
	errA := make(chan error)
	go func() {
		_, err := Fetch(ctxA, q, key, func(ctx context.Context) (int, error) {
			close(started)
			select {
			case <-release:
				return 5, nil
			case <-ctx.Done():
				return 0, ctx.Err()
			}
		})
		errA <- err
	}()
	<-started

	type result struct {
		v   int
		err error
	}
	resB := make(chan result)
	go func() {
		v, err := Fetch(context.Background(), q, key, func(context.Context) (int, error) {
			return 0, assert.AnError
		})
		resB <- result{v, err}
	}()

	cancelA()
	assert.ErrorIs(t, <-errA, context.Canceled)

	close(release)
	b := <-resB
	require.NoError(t, b.err)
	assert.Equal(t, 5, b.v)
	assert.Equal(t, 1, q.Len())
}
