package journal

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/normanking/wakeloop/internal/bus"
)

func openTemp(t *testing.T) *Store {
	t.Helper()
	s, err := OpenDir(filepath.Join(t.TempDir(), "data"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStore_RecordAndRecent(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()
	require.NoError(t, s.Health(ctx))

	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	first := &Turn{SessionID: "a", Transcript: "turn on lights", Reply: "done", Duration: 1200 * time.Millisecond, CreatedAt: now}
	second := &Turn{SessionID: "b", Transcript: "what time is it", Status: StatusFailed, ErrorStage: "chat", ErrorMsg: "timeout", BargeIn: true, CreatedAt: now.Add(time.Minute)}
	require.NoError(t, s.Record(ctx, first))
	require.NoError(t, s.Record(ctx, second))
	assert.NotZero(t, first.ID)
	assert.Equal(t, StatusOK, first.Status)

	turns, err := s.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, turns, 2)
	assert.Equal(t, "b", turns[0].SessionID)
	assert.True(t, turns[0].BargeIn)
	assert.Equal(t, "chat", turns[0].ErrorStage)
	assert.Equal(t, "turn on lights", turns[1].Transcript)
	assert.Equal(t, 1200*time.Millisecond, turns[1].Duration)

	day, err := s.Daily(ctx, "2026-03-01")
	require.NoError(t, err)
	assert.Equal(t, DailyStats{Date: "2026-03-01", Turns: 2, Failures: 1, BargeIns: 1, TotalMs: 1200}, day)

	empty, err := s.Daily(ctx, "1999-01-01")
	require.NoError(t, err)
	assert.Zero(t, empty.Turns)
}

func TestStore_ReopenKeepsTurns(t *testing.T) {
	dir := t.TempDir()
	s, err := OpenDir(dir)
	require.NoError(t, err)
	require.NoError(t, s.Record(context.Background(), &Turn{SessionID: "a", Transcript: "hello"}))
	require.NoError(t, s.Close())

	s, err = OpenDir(dir)
	require.NoError(t, err)
	defer s.Close()
	turns, err := s.Recent(context.Background(), 0)
	require.NoError(t, err)
	assert.Len(t, turns, 1)
}

func TestRecorder_WritesCompletedAndFailedTurns(t *testing.T) {
	s := openTemp(t)
	b := bus.New(50)
	defer b.Close()
	r := NewRecorder(s, b)
	defer r.Close()

	ev := func(typ bus.EventType, session string, mutate func(*bus.Event)) {
		e := bus.NewEvent(typ)
		e.SessionID = session
		if mutate != nil {
			mutate(&e)
		}
		require.NoError(t, b.Publish(e))
	}

	ev(bus.EventTranscript, "s1", func(e *bus.Event) { e.Transcript = "turn on lights"; e.Generation = 2 })
	ev(bus.EventBargeIn, "s1", func(e *bus.Event) { e.Bytes = 3200 })
	ev(bus.EventReply, "s1", func(e *bus.Event) { e.Reply = "lights on"; e.Provider = "ollama" })
	ev(bus.EventEnqueued, "s1", func(e *bus.Event) { e.Bytes = 100 })
	ev(bus.EventEnqueued, "s1", func(e *bus.Event) { e.Bytes = 50 })
	ev(bus.EventTurnDone, "s1", func(e *bus.Event) { e.DurationMs = 900 })

	ev(bus.EventTranscript, "s2", func(e *bus.Event) { e.Transcript = "sing" })
	ev(bus.EventTurnError, "s2", func(e *bus.Event) { e.Stage = "synthesize"; e.Error = "quota" })

	// Completion without an open turn is ignored.
	ev(bus.EventTurnDone, "ghost", nil)

	var turns []Turn
	require.Eventually(t, func() bool {
		var err error
		turns, err = s.Recent(context.Background(), 10)
		return err == nil && len(turns) == 2
	}, 2*time.Second, 10*time.Millisecond)

	failed, ok := turns[0], turns[1]
	assert.Equal(t, "s2", failed.SessionID)
	assert.Equal(t, StatusFailed, failed.Status)
	assert.Equal(t, "quota", failed.ErrorMsg)
	assert.False(t, failed.BargeIn)

	assert.Equal(t, "lights on", ok.Reply)
	assert.Equal(t, "ollama", ok.Provider)
	assert.Equal(t, uint64(2), ok.Generation)
	assert.Equal(t, 150, ok.AudioBytes)
	assert.True(t, ok.BargeIn)
	assert.Equal(t, 900*time.Millisecond, ok.Duration)
}

func TestRecorder_CloseWritesBufferedTurn(t *testing.T) {
	s := openTemp(t)
	b := bus.New(50)
	defer b.Close()
	r := NewRecorder(s, b)

	for _, e := range []bus.Event{
		{Type: bus.EventTranscript, SessionID: "s1", Transcript: "good night"},
		{Type: bus.EventReply, SessionID: "s1", Reply: "sleep well"},
		{Type: bus.EventTurnDone, SessionID: "s1", DurationMs: 300},
	} {
		require.NoError(t, b.Publish(e))
	}
	require.NoError(t, r.Close())

	turns, err := s.Recent(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, turns, 1)
	assert.Equal(t, "good night", turns[0].Transcript)
	assert.Equal(t, "sleep well", turns[0].Reply)
}
