package task

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/povbackend/tracebackend/internal/errs"
)

func TestTaskRunsToCompletion(t *testing.T) {
	ran := false
	tk := New("t1", func(t *Task) error {
		ran = true
		return nil
	}, nil)

	done := make(chan struct{})
	tk.Start(func() { close(done) })

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("task did not complete in time")
	}

	assert.True(t, ran)
	assert.True(t, tk.Done())
	failed, _ := tk.Failed()
	assert.False(t, failed)
}

func TestTaskStartIsIdempotent(t *testing.T) {
	count := 0
	tk := New("t1", func(t *Task) error {
		count++
		return nil
	}, nil)

	tk.Start(nil)
	tk.Stop()
	tk.Start(nil) // should be a no-op, already completed once

	assert.Equal(t, 1, count)
}

func TestTaskCooperateStopsOnRequest(t *testing.T) {
	entered := make(chan struct{})
	tk := New("stoppable", func(t *Task) error {
		close(entered)
		for {
			if err := t.Cooperate(); err != nil {
				return err
			}
			time.Sleep(time.Millisecond)
		}
	}, nil)

	tk.Start(nil)
	<-entered
	tk.Stop()

	assert.True(t, tk.Done())
	// a stop is not a failure
	failed, _ := tk.Failed()
	assert.False(t, failed)
}

func TestTaskFailureInvokesFatalSink(t *testing.T) {
	var gotErr error
	sink := func(err error) { gotErr = err }

	tk := New("boom", func(t *Task) error {
		return errs.New(errs.OutOfMemory, "allocation failed")
	}, sink)

	done := make(chan struct{})
	tk.Start(func() { close(done) })
	<-done

	failed, kind := tk.Failed()
	require.True(t, failed)
	assert.Equal(t, errs.OutOfMemory, kind)
	require.NotNil(t, gotErr)
}

func TestTaskPausePauseIsIdempotent(t *testing.T) {
	tk := New("pausable", func(t *Task) error { return nil }, nil)
	tk.Pause()
	tk.Pause() // second Pause is a no-op
	assert.True(t, tk.pauseReq.Load())
	tk.Resume()
	assert.False(t, tk.pauseReq.Load())
	tk.Resume() // Resume when not paused is a no-op
	assert.False(t, tk.pauseReq.Load())
}

func TestTaskRecoversPanic(t *testing.T) {
	var gotErr error
	tk := New("panics", func(t *Task) error {
		panic("kaboom")
	}, func(err error) { gotErr = err })

	done := make(chan struct{})
	tk.Start(func() { close(done) })
	<-done

	failed, kind := tk.Failed()
	assert.True(t, failed)
	assert.Equal(t, errs.Uncategorized, kind)
	assert.Error(t, gotErr)
}
