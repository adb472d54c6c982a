package screenrec

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLifecycle_Transitions(t *testing.T) {
	l := newLifecycle()
	assert.Equal(t, StateNotStarted, l.State())

	require.NoError(t, l.start())
	assert.Equal(t, StateStarted, l.State())
	require.NoError(t, l.pause())
	assert.Equal(t, StatePaused, l.State())
	require.NoError(t, l.resume())
	assert.Equal(t, StateStarted, l.State())

	finished, err := l.stop()
	require.NoError(t, err)
	assert.False(t, finished)
	assert.Equal(t, StateStopped, l.State())

	l.finish()
	assert.Equal(t, StateFinished, l.State())
}

func TestLifecycle_InvalidCommands(t *testing.T) {
	tests := []struct {
		name  string
		setup func(*lifecycle)
		op    func(*lifecycle) error
		want  string
	}{
		{
			name: "pause before start",
			op:   (*lifecycle).pause,
			want: "nothing to pause: recording has not started",
		},
		{
			name: "resume before start",
			op:   (*lifecycle).resume,
			want: "nothing to resume: recording has not started",
		},
		{
			name:  "start while recording",
			setup: func(l *lifecycle) { _ = l.start() },
			op:    (*lifecycle).start,
			want:  "already recording",
		},
		{
			name:  "resume while recording",
			setup: func(l *lifecycle) { _ = l.start() },
			op:    (*lifecycle).resume,
			want:  "already recording",
		},
		{
			name:  "pause while paused",
			setup: func(l *lifecycle) { _ = l.start(); _ = l.pause() },
			op:    (*lifecycle).pause,
			want:  "already paused",
		},
		{
			name:  "pause after stop",
			setup: func(l *lifecycle) { _ = l.start(); _, _ = l.stop() },
			op:    (*lifecycle).pause,
			want:  "recording already stopped",
		},
		{
			name:  "stop twice",
			setup: func(l *lifecycle) { _ = l.start(); _, _ = l.stop() },
			op: func(l *lifecycle) error {
				_, err := l.stop()
				return err
			},
			want: "recording already stopped",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := newLifecycle()
			if tt.setup != nil {
				tt.setup(l)
			}
			before := l.State()

			err := tt.op(l)
			require.Error(t, err)
			assert.Equal(t, tt.want, err.Error())
			assert.True(t, errors.Is(err, ErrInvalidCommand))
			assert.Equal(t, before, l.State(), "state must not change")
		})
	}
}

func TestLifecycle_StopBeforeStart(t *testing.T) {
	l := newLifecycle()
	finished, err := l.stop()
	require.NoError(t, err)
	assert.True(t, finished)
	assert.Equal(t, StateFinished, l.State())
}

func TestLifecycle_ChangedClosesOnTransition(t *testing.T) {
	l := newLifecycle()
	ch := l.Changed()

	select {
	case <-ch:
		t.Fatal("closed before any transition")
	default:
	}

	require.NoError(t, l.start())
	select {
	case <-ch:
	default:
		t.Fatal("not closed after start")
	}

	// A rejected command is not a transition.
	ch = l.Changed()
	require.Error(t, l.start())
	select {
	case <-ch:
		t.Fatal("closed by a rejected command")
	default:
	}
}

func TestLifecycle_WaitWhilePaused(t *testing.T) {
	l := newLifecycle()
	require.NoError(t, l.start())
	require.NoError(t, l.pause())

	got := make(chan RecordingState, 1)
	go func() { got <- l.waitWhilePaused() }()

	select {
	case <-got:
		t.Fatal("returned while paused")
	case <-time.After(20 * time.Millisecond):
	}

	_, err := l.stop()
	require.NoError(t, err)
	select {
	case s := <-got:
		assert.Equal(t, StateStopped, s)
	case <-time.After(time.Second):
		t.Fatal("waiter not released by stop")
	}
}

func TestLifecycle_AbortReleasesWaiters(t *testing.T) {
	l := newLifecycle()
	q, _ := newTestQueue(1, 4, StateStarted)
	l.watch(q)
	require.NoError(t, l.start())
	require.NoError(t, l.pause())

	released := make(chan struct{})
	go func() {
		l.waitWhilePaused()
		close(released)
	}()

	l.abort()
	assert.True(t, l.Aborted())
	assert.Equal(t, StatePaused, l.State(), "abort keeps the state")

	select {
	case <-released:
	case <-time.After(time.Second):
		t.Fatal("waiter not released by abort")
	}
	_, err := q.Get(make([]byte, 4))
	assert.ErrorIs(t, err, ErrQueueAborted)

	l.abort()
}

func TestLifecycle_TransitionWakesQueues(t *testing.T) {
	l := newLifecycle()
	q := NewFrameQueue("video", 2, 4, l.State)
	l.watch(q)
	require.NoError(t, l.start())

	got := make(chan int, 1)
	go func() {
		n, _ := q.Get(make([]byte, 4))
		got <- n
	}()
	time.Sleep(20 * time.Millisecond)

	require.NoError(t, l.pause())
	select {
	case n := <-got:
		assert.Equal(t, 0, n)
	case <-time.After(time.Second):
		t.Fatal("consumer not woken by pause")
	}
}

func TestRecordingState_String(t *testing.T) {
	assert.Equal(t, "not started", StateNotStarted.String())
	assert.Equal(t, "recording", StateStarted.String())
	assert.Equal(t, "paused", StatePaused.String())
	assert.Equal(t, "stopped", StateStopped.String())
	assert.Equal(t, "finished", StateFinished.String())
}
