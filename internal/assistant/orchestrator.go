// Package assistant runs the voice loop: every microphone chunk feeds the
// active capture session and the wake word detector, and each completed
// transcript is answered through chat, synthesis and playback.
//
// The loop is single-threaded. Recognition runs in the capture session's
// own goroutine and playback drains in the buffer's goroutine, so the only
// blocking calls here are the source read and the chat and synthesis
// backends of a dispatched turn.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/normanking/wakeloop/internal/audio"
	"github.com/normanking/wakeloop/internal/bus"
	"github.com/normanking/wakeloop/internal/capture"
	"github.com/normanking/wakeloop/internal/logging"
)

// ErrSampleRateMismatch is returned by New when the detector cannot
// consume the source's audio as is.
var ErrSampleRateMismatch = errors.New("assistant: detector and source sample rates differ")

// AudioSource produces fixed-size PCM16 chunks. Read blocks until a chunk
// is available and returns io.EOF when the stream has ended.
type AudioSource interface {
	Read(ctx context.Context) ([]byte, error)
	SampleRate() int
	Close() error
}

// Detector reports whether a chunk completes a wake word.
type Detector interface {
	Detect(chunk []byte) (bool, error)
	SampleRate() int
}

// Chatter answers one user utterance.
type Chatter interface {
	Chat(ctx context.Context, text string) (string, error)
}

// Synthesizer renders a reply to PCM16 audio.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

// Player queues audio for output.
type Player interface {
	Enqueue(data []byte) error
	Clear() int
	IsPlaying() bool
}

// Components are the collaborators of an Orchestrator. All are required.
type Components struct {
	Source     AudioSource
	Detector   Detector
	Recognizer capture.Recognizer
	Chat       Chatter
	Synth      Synthesizer
	Player     Player
}

// Config tunes the loop.
type Config struct {
	// FailFast makes Process return backend and detector errors, which
	// ends Run. Otherwise they are logged and published and the loop keeps
	// listening.
	FailFast bool

	// Capture is applied to every session. Its Generation is overwritten.
	Capture capture.Options
}

// DefaultConfig returns the loop defaults.
func DefaultConfig() Config {
	return Config{Capture: capture.DefaultOptions()}
}

// Orchestrator owns the active capture session and the turn pipeline.
type Orchestrator struct {
	c   Components
	cfg Config
	bus *bus.Bus
	log zerolog.Logger

	active      *capture.Session
	activeSince time.Time
	generation  atomic.Uint64
	turns       atomic.Int64
}

// New validates the components and returns an idle orchestrator. eventBus
// may be nil.
func New(c Components, cfg Config, eventBus *bus.Bus) (*Orchestrator, error) {
	switch {
	case c.Source == nil:
		return nil, errors.New("assistant: audio source is required")
	case c.Detector == nil:
		return nil, errors.New("assistant: wake word detector is required")
	case c.Recognizer == nil:
		return nil, errors.New("assistant: recognizer is required")
	case c.Chat == nil:
		return nil, errors.New("assistant: chat session is required")
	case c.Synth == nil:
		return nil, errors.New("assistant: synthesizer is required")
	case c.Player == nil:
		return nil, errors.New("assistant: player is required")
	}
	if c.Detector.SampleRate() != c.Source.SampleRate() {
		return nil, fmt.Errorf("%w: detector %d Hz, source %d Hz",
			ErrSampleRateMismatch, c.Detector.SampleRate(), c.Source.SampleRate())
	}
	if cfg.Capture.FrameSize <= 0 {
		cfg.Capture.FrameSize = capture.DefaultOptions().FrameSize
	}

	return &Orchestrator{
		c:   c,
		cfg: cfg,
		bus: eventBus,
		log: logging.Component("assistant"),
	}, nil
}

// Generation returns the number of wake words handled so far.
func (o *Orchestrator) Generation() uint64 { return o.generation.Load() }

// Turns returns the number of completed turns.
func (o *Orchestrator) Turns() int64 { return o.turns.Load() }

// Listening reports whether a capture session is active. It must be
// called from the loop goroutine.
func (o *Orchestrator) Listening() bool { return o.active != nil }

// Run reads chunks until ctx is cancelled or the source ends, processing
// each one. At the end of the stream an active session is given the audio
// it already has and its transcript is dispatched, so a recorded question
// still gets an answer. It returns nil on cancellation and end of stream.
// A session still active on return is cancelled.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.publish(bus.Event{Type: bus.EventLoopStarted})
	o.log.Info().
		Int("sample_rate", o.c.Source.SampleRate()).
		Bool("fail_fast", o.cfg.FailFast).
		Msg("voice loop started")

	ended, err := o.loop(ctx)
	if ended {
		err = o.flush(ctx)
	}

	if o.active != nil {
		o.active.Cancel()
		o.active = nil
	}
	stopped := bus.Event{Type: bus.EventLoopStopped}
	if err != nil {
		stopped.Error = err.Error()
	}
	o.publish(stopped)
	o.log.Info().Err(err).Int64("turns", o.Turns()).Msg("voice loop stopped")
	return err
}

// loop reports ended when the source ran out of audio.
func (o *Orchestrator) loop(ctx context.Context) (ended bool, err error) {
	for {
		chunk, err := o.c.Source.Read(ctx)
		if err != nil {
			switch {
			case ctx.Err() != nil, errors.Is(err, audio.ErrClosed):
				return false, nil
			case errors.Is(err, io.EOF):
				return true, nil
			}
			return false, fmt.Errorf("assistant: read audio: %w", err)
		}
		if err := o.Process(ctx, chunk); err != nil {
			return false, err
		}
	}
}

// flush ends the active session's input and finishes it once the
// recognizer has consumed what was queued.
func (o *Orchestrator) flush(ctx context.Context) error {
	s := o.active
	if s == nil {
		return nil
	}
	s.End()
	if err := s.Wait(ctx); err != nil {
		return nil
	}
	o.active = nil
	return o.finish(ctx, s)
}

// Process handles one chunk: it feeds the active session and dispatches its
// transcript once it is done, then runs wake detection and starts a fresh
// session on a wake word. Sessions started here live on ctx.
func (o *Orchestrator) Process(ctx context.Context, chunk []byte) error {
	if s := o.active; s != nil {
		s.Feed(chunk)
		if s.IsDone() {
			o.active = nil
			if err := o.finish(ctx, s); err != nil {
				return err
			}
		}
	}

	woke, err := o.c.Detector.Detect(chunk)
	if err != nil {
		return o.fail(nil, "detect", err)
	}
	if woke {
		o.wake(ctx)
	}
	return nil
}

func (o *Orchestrator) wake(ctx context.Context) {
	if old := o.active; old != nil {
		old.Cancel()
		o.publish(bus.Event{Type: bus.EventCaptureStale, SessionID: old.ID(), Generation: old.Generation()})
		o.log.Debug().Str("session", old.ID()).Msg("superseded capture session cancelled")
	}

	opts := o.cfg.Capture
	opts.Generation = o.generation.Add(1)
	s := capture.Start(ctx, o.c.Recognizer, opts)
	o.active = s
	o.activeSince = time.Now()

	o.publish(bus.Event{Type: bus.EventWake, SessionID: s.ID(), Generation: opts.Generation})
	o.publish(bus.Event{Type: bus.EventCaptureStarted, SessionID: s.ID(), Generation: opts.Generation})
	o.log.Info().Str("session", s.ID()).Uint64("generation", opts.Generation).Msg("wake word detected")
}

func (o *Orchestrator) finish(ctx context.Context, s *capture.Session) error {
	if s.Generation() != o.generation.Load() {
		o.publish(bus.Event{Type: bus.EventCaptureStale, SessionID: s.ID(), Generation: s.Generation()})
		return nil
	}

	if err := s.Err(); err != nil {
		o.publish(bus.Event{Type: bus.EventCaptureDone, SessionID: s.ID(), Generation: s.Generation()})
		return o.fail(s, "recognize", err)
	}

	text, ok := s.Result()
	o.publish(bus.Event{
		Type:       bus.EventCaptureDone,
		SessionID:  s.ID(),
		Generation: s.Generation(),
		Transcript: text,
		DurationMs: time.Since(o.activeSince).Milliseconds(),
	})
	if !ok {
		o.log.Debug().Str("session", s.ID()).Msg("capture ended without a transcript")
		return nil
	}
	return o.dispatch(ctx, s, text)
}

// dispatch answers one transcript. Playback still running from the previous
// turn is cut off first.
func (o *Orchestrator) dispatch(ctx context.Context, s *capture.Session, text string) error {
	start := time.Now()
	o.publish(bus.Event{Type: bus.EventTranscript, SessionID: s.ID(), Generation: s.Generation(), Transcript: text})
	o.log.Info().Str("session", s.ID()).Str("transcript", text).Msg("transcript")

	if o.c.Player.IsPlaying() {
		dropped := o.c.Player.Clear()
		o.publish(bus.Event{Type: bus.EventBargeIn, SessionID: s.ID(), Generation: s.Generation(), Bytes: dropped})
		o.log.Info().Int("dropped_bytes", dropped).Msg("barge-in, playback cleared")
	}

	stage := time.Now()
	reply, err := o.c.Chat.Chat(ctx, text)
	if err != nil {
		return o.fail(s, "chat", err)
	}
	o.publish(bus.Event{
		Type:       bus.EventReply,
		SessionID:  s.ID(),
		Generation: s.Generation(),
		Reply:      reply,
		Provider:   nameOf(o.c.Chat),
		Stage:      "chat",
		DurationMs: time.Since(stage).Milliseconds(),
	})
	o.log.Info().Str("session", s.ID()).Str("reply", reply).Msg("reply")

	stage = time.Now()
	pcm, err := o.c.Synth.Synthesize(ctx, reply)
	if err != nil {
		return o.fail(s, "synthesize", err)
	}
	o.publish(bus.Event{
		Type:       bus.EventSynthesized,
		SessionID:  s.ID(),
		Generation: s.Generation(),
		Provider:   nameOf(o.c.Synth),
		Stage:      "synthesize",
		Bytes:      len(pcm),
		DurationMs: time.Since(stage).Milliseconds(),
	})

	if len(pcm) > 0 {
		if err := o.c.Player.Enqueue(pcm); err != nil {
			return o.fail(s, "enqueue", err)
		}
		o.publish(bus.Event{Type: bus.EventEnqueued, SessionID: s.ID(), Generation: s.Generation(), Bytes: len(pcm)})
	}

	o.turns.Add(1)
	o.publish(bus.Event{
		Type:       bus.EventTurnDone,
		SessionID:  s.ID(),
		Generation: s.Generation(),
		DurationMs: time.Since(start).Milliseconds(),
	})
	return nil
}

// fail applies the FailFast policy to an error from stage. s is nil for
// errors outside a turn.
func (o *Orchestrator) fail(s *capture.Session, stage string, err error) error {
	ev := bus.Event{Type: bus.EventTurnError, Stage: stage, Error: err.Error()}
	if s != nil {
		ev.SessionID = s.ID()
		ev.Generation = s.Generation()
	}
	o.publish(ev)
	o.log.Error().Err(err).Str("stage", stage).Str("session", ev.SessionID).Msg("turn failed")

	if o.cfg.FailFast {
		return fmt.Errorf("assistant: %s: %w", stage, err)
	}
	return nil
}

func (o *Orchestrator) publish(ev bus.Event) {
	if o.bus == nil {
		return
	}
	if err := o.bus.Publish(ev); err != nil && !errors.Is(err, bus.ErrClosed) {
		o.log.Warn().Err(err).Str("event", string(ev.Type)).Msg("failed to publish event")
	}
}

func nameOf(v any) string {
	switch n := v.(type) {
	case interface{ Provider() string }:
		return n.Provider()
	case interface{ Name() string }:
		return n.Name()
	}
	return ""
}
