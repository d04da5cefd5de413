package task

import (
	"context"
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFuture_CompleteOnce(t *testing.T) {
	f := New[int]()
	require.NoError(t, f.Complete(1))
	assert.ErrorIs(t, f.Complete(2), ErrAlreadyCompleted)
	assert.ErrorIs(t, f.Fail(errors.New("late")), ErrAlreadyCompleted)

	v, err := f.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, v)
	assert.True(t, f.IsDone())
}

func TestFuture_Fail(t *testing.T) {
	boom := errors.New("boom")
	f := Failed[string](boom)

	_, err := f.Get(context.Background())
	assert.ErrorIs(t, err, boom)
}

func TestFuture_GetHonoursContext(t *testing.T) {
	f := New[int]()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := f.Get(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, f.IsDone())
}

func TestFuture_OnComplete(t *testing.T) {
	t.Run("before completion", func(t *testing.T) {
		f := New[int]()
		got := make(chan int, 1)
		f.OnComplete(func(v int, err error) { got <- v })
		require.NoError(t, f.Complete(7))

		select {
		case v := <-got:
			assert.Equal(t, 7, v)
		case <-time.After(time.Second):
			t.Fatal("callback not invoked")
		}
	})

	t.Run("after completion", func(t *testing.T) {
		f := Completed(9)
		got := make(chan int, 1)
		f.OnComplete(func(v int, err error) { got <- v })

		select {
		case v := <-got:
			assert.Equal(t, 9, v)
		case <-time.After(time.Second):
			t.Fatal("callback not invoked")
		}
	})
}

func TestMap(t *testing.T) {
	f := New[int]()
	s := Map(f, func(v int) (string, error) { return strconv.Itoa(v * 2), nil })
	require.NoError(t, f.Complete(21))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	v, err := s.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, "42", v)

	boom := errors.New("boom")
	failed := Map(Failed[int](boom), func(v int) (string, error) { return "", nil })
	_, err = failed.Get(ctx)
	assert.ErrorIs(t, err, boom)
}
