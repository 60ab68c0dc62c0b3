package device

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/gordonklaus/portaudio"
	"github.com/rs/zerolog/log"

	"github.com/normanking/wakeloop/internal/audio"
)

// Microphone is a blocking mono PCM16 input stream.
type Microphone struct {
	mu         sync.Mutex
	stream     *portaudio.Stream
	buf        []int16
	sampleRate int
	name       string
	closed     bool
}

// OpenMicrophone opens and starts the input device matching name. Each
// Read returns chunkSamples samples.
func OpenMicrophone(name string, sampleRate, chunkSamples int) (*Microphone, error) {
	dev, err := lookup(name, Input)
	if err != nil {
		return nil, err
	}

	m := &Microphone{
		buf:        make([]int16, chunkSamples),
		sampleRate: sampleRate,
		name:       dev.Name,
	}
	params := portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   dev,
			Channels: 1,
			Latency:  dev.DefaultLowInputLatency,
		},
		SampleRate:      float64(sampleRate),
		FramesPerBuffer: chunkSamples,
	}
	stream, err := portaudio.OpenStream(params, m.buf)
	if err != nil {
		return nil, fmt.Errorf("failed to open input stream on %q: %w", dev.Name, err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		return nil, fmt.Errorf("failed to start input stream on %q: %w", dev.Name, err)
	}
	m.stream = stream

	log.Info().Str("device", dev.Name).Int("sample_rate", sampleRate).Int("chunk_samples", chunkSamples).Msg("microphone opened")
	return m, nil
}

// Read blocks until the next chunk has been captured.
func (m *Microphone) Read(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, audio.ErrClosed
	}

	if err := m.stream.Read(); err != nil {
		if !errors.Is(err, portaudio.InputOverflowed) {
			return nil, fmt.Errorf("microphone: read: %w", err)
		}
		log.Debug().Msg("microphone input overflowed")
	}
	return audio.Int16ToBytes(m.buf), nil
}

// SampleRate returns the capture rate.
func (m *Microphone) SampleRate() int { return m.sampleRate }

// Name returns the device name.
func (m *Microphone) Name() string { return m.name }

// Close stops and closes the stream.
func (m *Microphone) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	_ = m.stream.Stop()
	return m.stream.Close()
}

// Speaker is a blocking mono PCM16 output stream.
type Speaker struct {
	mu              sync.Mutex
	stream          *portaudio.Stream
	buf             []int16
	sampleRate      int
	framesPerBuffer int
	name            string
	closed          bool
}

// OpenSpeaker opens and starts the output device matching name.
func OpenSpeaker(name string, sampleRate, framesPerBuffer int) (*Speaker, error) {
	dev, err := lookup(name, Output)
	if err != nil {
		return nil, err
	}

	s := &Speaker{
		buf:             make([]int16, framesPerBuffer),
		sampleRate:      sampleRate,
		framesPerBuffer: framesPerBuffer,
		name:            dev.Name,
	}
	params := portaudio.StreamParameters{
		Output: portaudio.StreamDeviceParameters{
			Device:   dev,
			Channels: 1,
			Latency:  dev.DefaultHighOutputLatency,
		},
		SampleRate:      float64(sampleRate),
		FramesPerBuffer: framesPerBuffer,
	}
	stream, err := portaudio.OpenStream(params, s.buf)
	if err != nil {
		return nil, fmt.Errorf("failed to open output stream on %q: %w", dev.Name, err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		return nil, fmt.Errorf("failed to start output stream on %q: %w", dev.Name, err)
	}
	s.stream = stream

	log.Info().Str("device", dev.Name).Int("sample_rate", sampleRate).Msg("speaker opened")
	return s, nil
}

// Write plays p, blocking until the device has accepted it. A trailing
// partial buffer is padded with silence.
func (s *Speaker) Write(p []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return audio.ErrClosed
	}

	samples := audio.BytesToInt16(p)
	for len(samples) > 0 {
		n := copy(s.buf, samples)
		clear(s.buf[n:])
		samples = samples[n:]
		if err := s.stream.Write(); err != nil && !errors.Is(err, portaudio.OutputUnderflowed) {
			return fmt.Errorf("speaker: write: %w", err)
		}
	}
	return nil
}

// FramesPerBuffer returns the number of samples written per device call.
func (s *Speaker) FramesPerBuffer() int { return s.framesPerBuffer }

// SampleRate returns the playback rate.
func (s *Speaker) SampleRate() int { return s.sampleRate }

// Name returns the device name.
func (s *Speaker) Name() string { return s.name }

// Close stops and closes the stream.
func (s *Speaker) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	_ = s.stream.Stop()
	return s.stream.Close()
}
