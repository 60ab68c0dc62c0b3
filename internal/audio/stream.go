package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
)

// ErrClosed is returned by sources and sinks used after Close.
var ErrClosed = errors.New("audio: closed")

// ReaderSource serves fixed-size PCM16 chunks from an io.Reader. It stands
// in for a microphone when replaying recordings.
type ReaderSource struct {
	mu         sync.Mutex
	r          io.Reader
	closer     io.Closer
	sampleRate int
	chunkBytes int
	closed     bool
}

// NewReaderSource returns a source reading chunkSamples samples per chunk.
func NewReaderSource(r io.Reader, sampleRate, chunkSamples int) *ReaderSource {
	s := &ReaderSource{
		r:          r,
		sampleRate: sampleRate,
		chunkBytes: chunkSamples * BytesPerSample,
	}
	if c, ok := r.(io.Closer); ok {
		s.closer = c
	}
	return s
}

// OpenFileSource opens a WAV or raw PCM16 file. Raw files are assumed to be
// at defaultRate.
func OpenFileSource(path string, defaultRate, chunkSamples int) (*ReaderSource, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	rate := defaultRate
	if pcm, format, err := DecodeWAV(data); err == nil {
		if format.Channels != 1 || format.BitsPerSample != 16 {
			return nil, fmt.Errorf("%s: need mono 16-bit PCM, got %d channel(s) at %d bits",
				path, format.Channels, format.BitsPerSample)
		}
		data = pcm
		rate = format.SampleRate
	}

	return NewReaderSource(bytes.NewReader(data), rate, chunkSamples), nil
}

// Read returns the next chunk. The final chunk is zero-padded to full size.
// io.EOF marks the end of the stream.
func (s *ReaderSource) Read(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}

	chunk := make([]byte, s.chunkBytes)
	n, err := io.ReadFull(s.r, chunk)
	switch {
	case err == nil:
		return chunk, nil
	case errors.Is(err, io.ErrUnexpectedEOF) && n > 0:
		return chunk, nil
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		return nil, io.EOF
	default:
		return nil, fmt.Errorf("audio: read source: %w", err)
	}
}

// SampleRate returns the rate of the served audio.
func (s *ReaderSource) SampleRate() int { return s.sampleRate }

// Close stops the source. Further reads return ErrClosed.
func (s *ReaderSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.closer != nil {
		return s.closer.Close()
	}
	return nil
}

// WriterSink writes PCM16 to an io.Writer, e.g. a file or a pipe into an
// external player.
type WriterSink struct {
	mu              sync.Mutex
	w               io.Writer
	framesPerBuffer int
}

// NewWriterSink returns a sink preferring writes of framesPerBuffer samples.
func NewWriterSink(w io.Writer, framesPerBuffer int) *WriterSink {
	return &WriterSink{w: w, framesPerBuffer: framesPerBuffer}
}

// Write passes p to the underlying writer.
func (s *WriterSink) Write(p []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.w.Write(p); err != nil {
		return fmt.Errorf("audio: write sink: %w", err)
	}
	return nil
}

// FramesPerBuffer returns the preferred write granularity in samples.
func (s *WriterSink) FramesPerBuffer() int { return s.framesPerBuffer }
