// Package tts turns reply text into PCM16 audio.
//
// A Synthesizer normalizes text for speech, splits it into segments that
// fit the engine's request limit and renders them in order. Engines only
// see one segment at a time.
package tts

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog/log"
)

// DefaultMaxChars is the largest segment sent to an engine.
const DefaultMaxChars = 400

// ErrTextTooLong is returned when a single word exceeds the segment limit.
var ErrTextTooLong = errors.New("tts: word longer than segment limit")

// Engine renders one short text to mono PCM16.
type Engine interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
	SampleRate() int
	Name() string
}

// Options tunes a Synthesizer.
type Options struct {
	MaxChars  int
	Normalize bool
}

// Synthesizer segments text and concatenates the engine's output.
type Synthesizer struct {
	engine Engine
	opts   Options
}

// NewSynthesizer wraps engine.
func NewSynthesizer(engine Engine, opts Options) *Synthesizer {
	if opts.MaxChars <= 0 {
		opts.MaxChars = DefaultMaxChars
	}
	return &Synthesizer{engine: engine, opts: opts}
}

// SampleRate returns the engine's output rate.
func (s *Synthesizer) SampleRate() int { return s.engine.SampleRate() }

// Name returns the engine name.
func (s *Synthesizer) Name() string { return s.engine.Name() }

// Synthesize renders text. Segments are rendered sequentially and joined
// in order; the first failing segment aborts the whole text. Text that is
// empty after normalization yields no audio.
func (s *Synthesizer) Synthesize(ctx context.Context, text string) ([]byte, error) {
	if s.opts.Normalize {
		text = Normalize(text)
	}
	segments, err := Split(text, s.opts.MaxChars)
	if err != nil {
		return nil, err
	}
	if len(segments) == 0 {
		return nil, nil
	}

	start := time.Now()
	var out bytes.Buffer
	for i, seg := range segments {
		pcm, err := s.engine.Synthesize(ctx, seg)
		if err != nil {
			return nil, fmt.Errorf("tts: %s: segment %d/%d: %w", s.engine.Name(), i+1, len(segments), err)
		}
		out.Write(pcm)
	}

	log.Debug().
		Str("engine", s.engine.Name()).
		Int("segments", len(segments)).
		Int("chars", utf8.RuneCountInString(text)).
		Int("bytes", out.Len()).
		Dur("elapsed", time.Since(start)).
		Msg("synthesized")
	return out.Bytes(), nil
}

// Split packs the words of text into segments of at most maxChars
// characters, joined by single spaces. Text that already fits is returned
// unchanged as one segment.
func Split(text string, maxChars int) ([]string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, nil
	}
	if utf8.RuneCountInString(text) <= maxChars {
		return []string{text}, nil
	}

	var (
		segments []string
		current  strings.Builder
		length   int
	)
	for _, word := range strings.Fields(text) {
		n := utf8.RuneCountInString(word)
		if n > maxChars {
			return nil, fmt.Errorf("%w: %d characters, limit %d", ErrTextTooLong, n, maxChars)
		}
		if length > 0 && length+1+n > maxChars {
			segments = append(segments, current.String())
			current.Reset()
			length = 0
		}
		if length > 0 {
			current.WriteByte(' ')
			length++
		}
		current.WriteString(word)
		length += n
	}
	if length > 0 {
		segments = append(segments, current.String())
	}
	return segments, nil
}
