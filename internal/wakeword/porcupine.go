package wakeword

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	porcupine "github.com/Picovoice/porcupine/binding/go/v3"
	"github.com/rs/zerolog/log"

	"github.com/normanking/wakeloop/internal/audio"
)

// PorcupineConfig configures on-device detection with Picovoice Porcupine.
type PorcupineConfig struct {
	AccessKey string
	// ModelPath selects a language model file; empty uses English.
	ModelPath string
	// KeywordPaths are custom .ppn files. Keywords are built-in keyword
	// names such as "jarvis"; both may be combined.
	KeywordPaths []string
	Keywords     []string
	Sensitivity  float32
}

// ErrClosed is returned by Detect after Close.
var ErrClosed = errors.New("wakeword: detector closed")

type porcupineEngine interface {
	Process(pcm []int16) (int, error)
	Delete() error
}

// Porcupine feeds the engine fixed-size frames cut from arbitrary chunks.
type Porcupine struct {
	engine      porcupineEngine
	frameLength int
	sampleRate  int

	mu      sync.Mutex
	pending *audio.ByteQueue
}

// NewPorcupine initializes the engine.
func NewPorcupine(cfg PorcupineConfig) (*Porcupine, error) {
	if cfg.AccessKey == "" {
		return nil, errors.New("porcupine: access key not configured")
	}

	p := &porcupine.Porcupine{
		AccessKey:    cfg.AccessKey,
		ModelPath:    cfg.ModelPath,
		KeywordPaths: cfg.KeywordPaths,
	}
	var names []string
	for _, kw := range cfg.Keywords {
		builtin := porcupine.BuiltInKeyword(strings.ToLower(kw))
		if !builtin.IsValid() {
			return nil, fmt.Errorf("porcupine: unknown built-in keyword %q", kw)
		}
		p.BuiltInKeywords = append(p.BuiltInKeywords, builtin)
		names = append(names, string(builtin))
	}
	names = append(names, cfg.KeywordPaths...)
	if len(names) == 0 {
		return nil, errors.New("porcupine: no keywords configured")
	}

	sensitivity := cfg.Sensitivity
	if sensitivity <= 0 {
		sensitivity = 0.5
	}
	for range names {
		p.Sensitivities = append(p.Sensitivities, sensitivity)
	}

	if err := p.Init(); err != nil {
		return nil, fmt.Errorf("porcupine: init: %w", err)
	}

	log.Info().
		Strs("keywords", names).
		Int("sample_rate", porcupine.SampleRate).
		Int("frame_length", porcupine.FrameLength).
		Str("version", porcupine.Version).
		Msg("porcupine wake word engine ready")

	return newPorcupine(p, porcupine.FrameLength, porcupine.SampleRate), nil
}

func newPorcupine(engine porcupineEngine, frameLength, sampleRate int) *Porcupine {
	return &Porcupine{
		engine:      engine,
		frameLength: frameLength,
		sampleRate:  sampleRate,
		pending:     audio.NewByteQueue(frameLength * audio.BytesPerSample * 2),
	}
}

// Name returns "porcupine".
func (p *Porcupine) Name() string { return "porcupine" }

// SampleRate returns the only rate the engine accepts.
func (p *Porcupine) SampleRate() int { return p.sampleRate }

// Detect processes every complete frame available after appending chunk.
// A partial frame is kept for the next call.
func (p *Porcupine) Detect(chunk []byte) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.engine == nil {
		return false, ErrClosed
	}

	p.pending.Put(chunk)
	frameBytes := p.frameLength * audio.BytesPerSample

	detected := false
	for p.pending.Len() >= frameBytes {
		frame := audio.BytesToInt16(p.pending.Take(frameBytes))
		index, err := p.engine.Process(frame)
		if err != nil {
			p.pending.Clear()
			return false, fmt.Errorf("porcupine: process: %w", err)
		}
		if index >= 0 {
			log.Debug().Int("keyword_index", index).Msg("wake word detected")
			detected = true
		}
	}
	return detected, nil
}

// Close frees the engine.
func (p *Porcupine) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.engine == nil {
		return nil
	}
	err := p.engine.Delete()
	p.engine = nil
	return err
}
