package capture

import (
	"bytes"
	"context"
	"errors"
	"iter"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingRecognizer finalises once it has seen want bytes, returning text.
// It records every frame it consumed.
type countingRecognizer struct {
	want int
	text string
	err  error

	mu     sync.Mutex
	frames [][]byte
}

func (r *countingRecognizer) Recognize(ctx context.Context, frames iter.Seq[[]byte]) (string, error) {
	seen := 0
	for f := range frames {
		r.mu.Lock()
		r.frames = append(r.frames, f)
		r.mu.Unlock()
		seen += len(f)
		if r.want > 0 && seen >= r.want {
			return r.text, r.err
		}
	}
	return "", ctx.Err()
}

func (r *countingRecognizer) consumed() []byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	return bytes.Join(r.frames, nil)
}

func waitDone(t *testing.T, s *Session) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, s.Wait(ctx), "session did not finish")
}

func TestSession_FinalisesWithTranscript(t *testing.T) {
	rec := &countingRecognizer{want: 12, text: "turn on lights"}
	s := Start(context.Background(), rec, Options{FrameSize: 4, Generation: 3})

	text, ok := s.Result()
	assert.False(t, ok)
	assert.Empty(t, text)
	assert.Equal(t, uint64(3), s.Generation())
	assert.NotEmpty(t, s.ID())

	s.Feed([]byte("abcdef"))
	s.Feed([]byte("ghijkl"))
	waitDone(t, s)

	assert.True(t, s.IsDone())
	assert.Equal(t, Done, s.State())
	text, ok = s.Result()
	assert.True(t, ok)
	assert.Equal(t, "turn on lights", text)
	assert.NoError(t, s.Err())

	assert.Equal(t, []byte("abcdefghijkl"), rec.consumed())
	for _, f := range rec.frames {
		assert.LessOrEqual(t, len(f), 4)
	}
}

func TestSession_CancelEndsFrameSequence(t *testing.T) {
	rec := &countingRecognizer{}
	s := Start(context.Background(), rec, Options{FrameSize: 4})

	s.Feed([]byte("1234"))
	assert.False(t, s.IsDone())

	s.Cancel()
	waitDone(t, s)

	text, ok := s.Result()
	assert.False(t, ok)
	assert.Empty(t, text)
	assert.NoError(t, s.Err(), "cancellation is not a recognizer failure")

	s.Cancel()
	s.Feed([]byte("late"))
	assert.Equal(t, Done, s.State())
}

func TestSession_EndDrainsQueuedInput(t *testing.T) {
	rec := &countingRecognizer{}
	s := Start(context.Background(), rec, Options{FrameSize: 4})

	s.Feed([]byte("0123456789"))
	s.End()
	waitDone(t, s)

	assert.Equal(t, []byte("0123456789"), rec.consumed())
	assert.NoError(t, s.Err())
}

func TestSession_MaxDurationEndsSession(t *testing.T) {
	rec := &countingRecognizer{}
	s := Start(context.Background(), rec, Options{FrameSize: 4, MaxDuration: 30 * time.Millisecond})

	waitDone(t, s)
	_, ok := s.Result()
	assert.False(t, ok)
	assert.NoError(t, s.Err())
}

func TestSession_ParentCancellationPropagates(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s := Start(ctx, &countingRecognizer{}, Options{})
	cancel()
	waitDone(t, s)
}

func TestSession_RecognizerErrorIsReported(t *testing.T) {
	boom := errors.New("stream reset")
	rec := &countingRecognizer{want: 2, err: boom}
	s := Start(context.Background(), rec, Options{FrameSize: 2})

	s.Feed([]byte{0, 0})
	waitDone(t, s)

	assert.ErrorIs(t, s.Err(), boom)
	_, ok := s.Result()
	assert.False(t, ok)
}

func TestSession_FeedNeverBlocksOnSlowRecognizer(t *testing.T) {
	release := make(chan struct{})
	rec := recognizerFunc(func(ctx context.Context, frames iter.Seq[[]byte]) (string, error) {
		<-release
		n := 0
		for f := range frames {
			n += len(f)
			if n == 1000*2 {
				return "done", nil
			}
		}
		return "", nil
	})
	s := Start(context.Background(), rec, Options{FrameSize: 64})

	start := time.Now()
	for i := 0; i < 1000; i++ {
		s.Feed([]byte{1, 2})
	}
	assert.Less(t, time.Since(start), time.Second)

	close(release)
	waitDone(t, s)
	text, _ := s.Result()
	assert.Equal(t, "done", text)
}

type recognizerFunc func(ctx context.Context, frames iter.Seq[[]byte]) (string, error)

func (f recognizerFunc) Recognize(ctx context.Context, frames iter.Seq[[]byte]) (string, error) {
	return f(ctx, frames)
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "listening", Listening.String())
	assert.Equal(t, "done", Done.String())
}
