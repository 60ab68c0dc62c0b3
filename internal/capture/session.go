// Package capture runs one wake-triggered speech recognition attempt.
//
// A Session decouples the real-time audio loop from the recognizer: Feed
// only appends to a private queue, while a background goroutine turns that
// queue into a frame sequence for a streaming recognizer that may block on
// the network. Sessions are cancellable, so a superseded capture stops
// consuming frames instead of running on unobserved.
package capture

import (
	"context"
	"fmt"
	"iter"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/normanking/wakeloop/internal/audio"
)

// Recognizer turns a frame sequence into a single transcript under
// single-utterance semantics. An empty transcript with a nil error means
// nothing was recognised.
type Recognizer interface {
	Recognize(ctx context.Context, frames iter.Seq[[]byte]) (string, error)
}

// State is the lifecycle state of a session.
type State int

const (
	Listening State = iota
	Done
)

// String returns the state name.
func (s State) String() string {
	if s == Done {
		return "done"
	}
	return "listening"
}

// Options tunes a session.
type Options struct {
	// FrameSize is the largest frame handed to the recognizer, in bytes.
	FrameSize int

	// MaxDuration ends the frame sequence after this long. Zero disables it.
	MaxDuration time.Duration

	// Generation is an opaque number chosen by the owner to tell sessions apart.
	Generation uint64
}

// DefaultOptions returns 100ms frames at 16kHz and a 15 second ceiling.
func DefaultOptions() Options {
	return Options{
		FrameSize:   3200,
		MaxDuration: 15 * time.Second,
	}
}

// Session is one recognition attempt.
type Session struct {
	id         string
	generation uint64
	frameSize  int
	started    time.Time

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	queue  *audio.ByteQueue
	state  State
	result string
	err    error
	frames int
	ended  bool

	fed  chan struct{}
	done chan struct{}
}

// Start creates a session and launches its recognition goroutine.
func Start(ctx context.Context, rec Recognizer, opts Options) *Session {
	if opts.FrameSize <= 0 {
		opts.FrameSize = DefaultOptions().FrameSize
	}

	var cancel context.CancelFunc
	if opts.MaxDuration > 0 {
		ctx, cancel = context.WithTimeout(ctx, opts.MaxDuration)
	} else {
		ctx, cancel = context.WithCancel(ctx)
	}

	s := &Session{
		id:         uuid.New().String(),
		generation: opts.Generation,
		frameSize:  opts.FrameSize,
		started:    time.Now(),
		ctx:        ctx,
		cancel:     cancel,
		queue:      audio.NewByteQueue(opts.FrameSize * 4),
		fed:        make(chan struct{}, 1),
		done:       make(chan struct{}),
	}

	log.Debug().Str("session", s.id).Uint64("generation", s.generation).Msg("capture session started")
	go s.run(rec)
	return s
}

// ID returns the session's unique id.
func (s *Session) ID() string { return s.id }

// Generation returns the number assigned by the owner at Start.
func (s *Session) Generation() uint64 { return s.generation }

// Feed appends raw microphone bytes. It never blocks on the recognizer.
// Chunks fed after the session is done are discarded.
func (s *Session) Feed(chunk []byte) {
	if len(chunk) == 0 {
		return
	}
	s.mu.Lock()
	if s.state == Done {
		s.mu.Unlock()
		return
	}
	s.queue.Put(chunk)
	s.mu.Unlock()

	select {
	case s.fed <- struct{}{}:
	default:
	}
}

// End marks the input as complete. The frame sequence finishes once the
// queued audio has been handed to the recognizer, so a recorded file can
// be recognized without waiting for MaxDuration.
func (s *Session) End() {
	s.mu.Lock()
	s.ended = true
	s.mu.Unlock()

	select {
	case s.fed <- struct{}{}:
	default:
	}
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// IsDone reports whether the recognition goroutine has finished.
func (s *Session) IsDone() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// Done is closed when the recognition goroutine finishes.
func (s *Session) Done() <-chan struct{} { return s.done }

// Result returns the transcript and whether there is one. It reports
// ("", false) until the session is done.
func (s *Session) Result() (string, bool) {
	if !s.IsDone() {
		return "", false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.result, s.result != ""
}

// Err returns the recognizer error, if the recognizer failed. Cancellation
// by the owner is not reported as an error.
func (s *Session) Err() error {
	if !s.IsDone() {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Cancel asks the session to stop. It returns immediately; Done is closed
// once the recognizer has returned.
func (s *Session) Cancel() {
	s.cancel()
}

// Wait blocks until the session is done or ctx ends.
func (s *Session) Wait(ctx context.Context) error {
	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Session) run(rec Recognizer) {
	defer close(s.done)
	defer s.cancel()

	text, err := rec.Recognize(s.ctx, s.Frames())

	s.mu.Lock()
	s.state = Done
	s.result = text
	// Errors after cancellation or the duration ceiling are the recognizer
	// reacting to the stop, not failures.
	if err != nil && s.ctx.Err() == nil {
		s.err = fmt.Errorf("capture: recognize: %w", err)
	}
	frames := s.frames
	s.queue.Clear()
	s.mu.Unlock()

	ev := log.Debug()
	if s.err != nil {
		ev = log.Warn().Err(s.err)
	}
	ev.Str("session", s.id).
		Int("frames", frames).
		Bool("has_result", text != "").
		Dur("elapsed", time.Since(s.started)).
		Msg("capture session finished")
}

// Frames returns the live frame sequence drained from the private queue.
// It waits for fed audio and ends when the session is cancelled, runs past
// its maximum duration, or has drained its input after End.
func (s *Session) Frames() iter.Seq[[]byte] {
	return func(yield func([]byte) bool) {
		for {
			if s.ctx.Err() != nil {
				return
			}

			s.mu.Lock()
			frame := s.queue.Take(s.frameSize)
			if len(frame) > 0 {
				s.frames++
			}
			ended := s.ended
			s.mu.Unlock()

			if len(frame) == 0 {
				if ended {
					return
				}
				select {
				case <-s.fed:
					continue
				case <-s.ctx.Done():
					return
				}
			}

			if !yield(frame) {
				return
			}
		}
	}
}
