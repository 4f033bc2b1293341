// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authd Contributors

package hashwork_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/authd/authd/internal/hashwork"
	"github.com/authd/authd/pkg/errutil"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestNew_Defaults(t *testing.T) {
	pool := hashwork.New(0, 0)

	// Defaults must leave the pool usable.
	value, err := pool.Do(context.Background(), func() (string, error) {
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", value)
}

func TestPool_Do(t *testing.T) {
	t.Run("returns the function result", func(t *testing.T) {
		pool := hashwork.New(2, time.Second)

		value, err := pool.Do(context.Background(), func() (string, error) {
			return "hashed", nil
		})
		require.NoError(t, err)
		assert.Equal(t, "hashed", value)
	})

	t.Run("propagates the function error", func(t *testing.T) {
		pool := hashwork.New(2, time.Second)
		boom := errors.New("salt generation failed")

		_, err := pool.Do(context.Background(), func() (string, error) {
			return "", boom
		})
		assert.ErrorIs(t, err, boom)
	})

	t.Run("runs callers concurrently up to the slot count", func(t *testing.T) {
		pool := hashwork.New(2, time.Second)

		var barrier sync.WaitGroup
		barrier.Add(2)

		var callers sync.WaitGroup
		for range 2 {
			callers.Add(1)
			go func() {
				defer callers.Done()
				_, err := pool.Do(context.Background(), func() (string, error) {
					// Both workers must be inside fn at once for this to
					// return; a serialized pool would deadlock here and
					// trip the acquire timeout instead.
					barrier.Done()
					barrier.Wait()
					return "done", nil
				})
				assert.NoError(t, err)
			}()
		}
		callers.Wait()
	})

	t.Run("exhaustion yields ErrPoolExhausted after the acquire timeout", func(t *testing.T) {
		pool := hashwork.New(1, 20*time.Millisecond)

		release := make(chan struct{})
		occupied := make(chan struct{})

		var holder sync.WaitGroup
		holder.Add(1)
		go func() {
			defer holder.Done()
			_, err := pool.Do(context.Background(), func() (string, error) {
				close(occupied)
				<-release
				return "", nil
			})
			assert.NoError(t, err)
		}()

		<-occupied
		_, err := pool.Do(context.Background(), func() (string, error) {
			return "", nil
		})
		require.Error(t, err)
		assert.ErrorIs(t, err, hashwork.ErrPoolExhausted)
		errutil.AssertErrorCode(t, err, "HASHWORK_EXHAUSTED")

		close(release)
		holder.Wait()
	})

	t.Run("cancellation while waiting for a slot", func(t *testing.T) {
		pool := hashwork.New(1, time.Minute)

		release := make(chan struct{})
		occupied := make(chan struct{})

		var holder sync.WaitGroup
		holder.Add(1)
		go func() {
			defer holder.Done()
			_, _ = pool.Do(context.Background(), func() (string, error) {
				close(occupied)
				<-release
				return "", nil
			})
		}()

		<-occupied
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := pool.Do(ctx, func() (string, error) {
			t.Error("fn must not run after cancellation")
			return "", nil
		})
		require.Error(t, err)
		assert.ErrorIs(t, err, context.Canceled)
		errutil.AssertErrorCode(t, err, "HASHWORK_CANCELLED")

		close(release)
		holder.Wait()
	})

	t.Run("caller stops waiting on cancellation but fn completes", func(t *testing.T) {
		pool := hashwork.New(1, time.Second)

		started := make(chan struct{})
		finished := make(chan struct{})

		ctx, cancel := context.WithCancel(context.Background())

		var caller sync.WaitGroup
		caller.Add(1)
		go func() {
			defer caller.Done()
			_, err := pool.Do(ctx, func() (string, error) {
				close(started)
				defer close(finished)
				<-ctx.Done()
				return "late", nil
			})
			assert.ErrorIs(t, err, context.Canceled)
		}()

		<-started
		cancel()
		caller.Wait()

		select {
		case <-finished:
		case <-time.After(time.Second):
			t.Fatal("abandoned fn never completed")
		}
	})

	t.Run("a panicking fn is converted to an error", func(t *testing.T) {
		pool := hashwork.New(1, time.Second)

		_, err := pool.Do(context.Background(), func() (string, error) {
			panic("argon2 parameters out of range")
		})
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, "HASHWORK_PANIC")
		errutil.AssertErrorContext(t, err, "panic", "argon2 parameters out of range")

		// The slot must have been released despite the panic.
		value, err := pool.Do(context.Background(), func() (string, error) {
			return "recovered", nil
		})
		require.NoError(t, err)
		assert.Equal(t, "recovered", value)
	})
}
