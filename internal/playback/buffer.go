// Package playback streams synthesized speech to an audio sink through a
// thread-safe queue drained by a single background goroutine.
//
// Producers never wait on device I/O: the queue lock is held only to append
// or take bytes. Clear drops everything queued and fences the drain loop so
// that no byte queued before the clear is written afterwards.
package playback

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/normanking/wakeloop/internal/audio"
)

// ErrStopped is returned by Enqueue after Stop.
var ErrStopped = errors.New("playback: buffer stopped")

// Sink accepts PCM16 bytes for output. Write may block until the device
// has accepted the data.
type Sink interface {
	Write(p []byte) error
	FramesPerBuffer() int
}

// Policy selects what Enqueue does when the buffer is at capacity.
type Policy string

const (
	PolicyUnbounded  Policy = "unbounded"
	PolicyBlock      Policy = "block"
	PolicyDropOldest Policy = "drop-oldest"
)

// Valid reports whether p is a known policy.
func (p Policy) Valid() bool {
	switch p {
	case PolicyUnbounded, PolicyBlock, PolicyDropOldest:
		return true
	}
	return false
}

// Config controls chunking and backpressure.
type Config struct {
	// ChunkSize is the most the drain loop takes from the queue at once.
	ChunkSize int

	// WriteSize is the sub-chunk handed to the sink per Write. Zero means
	// two bytes per sink frame.
	WriteSize int

	// Capacity bounds queued bytes. Zero disables the bound.
	Capacity int

	// Policy applies when Capacity is reached.
	Policy Policy
}

// DefaultConfig returns the defaults: 48000 bytes per take (1.5s of 16kHz
// PCM16) and thirty seconds of 24kHz audio of headroom, dropping the oldest
// audio beyond that.
func DefaultConfig() Config {
	return Config{
		ChunkSize: 16000 * 3,
		Capacity:  30 * 24000 * audio.BytesPerSample,
		Policy:    PolicyDropOldest,
	}
}

// Buffer is the playback queue plus its drain goroutine.
type Buffer struct {
	cfg  Config
	sink Sink

	mu      sync.Mutex
	queue   *audio.ByteQueue
	running bool
	stopped bool
	epoch   uint64
	dropped int64

	// inflight is the size of the slice the drain loop is writing.
	inflight int

	// writeMu serialises sink writes with Clear. Enqueue never takes it.
	writeMu sync.Mutex

	notify chan struct{}
	space  chan struct{}
	idle   chan struct{}
	stop   chan struct{}
	done   chan struct{}
}

// New creates a stopped buffer writing to sink.
func New(sink Sink, cfg Config) *Buffer {
	defaults := DefaultConfig()
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = defaults.ChunkSize
	}
	if cfg.WriteSize <= 0 {
		cfg.WriteSize = sink.FramesPerBuffer() * audio.BytesPerSample
		if cfg.WriteSize <= 0 {
			cfg.WriteSize = 4096
		}
	}
	if cfg.Policy == "" {
		cfg.Policy = defaults.Policy
	}
	if cfg.Capacity <= 0 {
		cfg.Policy = PolicyUnbounded
	}

	return &Buffer{
		cfg:    cfg,
		sink:   sink,
		queue:  audio.NewByteQueue(cfg.ChunkSize),
		notify: make(chan struct{}, 1),
		space:  make(chan struct{}, 1),
		idle:   make(chan struct{}, 1),
	}
}

// Start launches the drain goroutine. Calling Start on a running buffer is
// a no-op; a stopped buffer can be started again.
func (b *Buffer) Start() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.running {
		return
	}
	b.running = true
	b.stopped = false
	b.stop = make(chan struct{})
	b.done = make(chan struct{})
	go b.drain(b.stop, b.done)

	log.Debug().
		Int("chunk_size", b.cfg.ChunkSize).
		Int("write_size", b.cfg.WriteSize).
		Str("policy", string(b.cfg.Policy)).
		Msg("playback started")
}

// Stop ends the drain goroutine and waits for it to exit. No sink write
// happens after Stop returns. Queued audio is kept.
func (b *Buffer) Stop() {
	b.mu.Lock()
	b.stopped = true
	if !b.running {
		b.mu.Unlock()
		signal(b.space)
		return
	}
	b.running = false
	close(b.stop)
	done := b.done
	b.mu.Unlock()

	signal(b.space)
	<-done
	signal(b.idle)
	log.Debug().Msg("playback stopped")
}

// Enqueue appends data and wakes the drain loop. It does not wait for
// playback. Under PolicyBlock it waits for room; use EnqueueContext to
// bound that wait.
func (b *Buffer) Enqueue(data []byte) error {
	return b.EnqueueContext(context.Background(), data)
}

// EnqueueContext is Enqueue with a context bounding the PolicyBlock wait.
func (b *Buffer) EnqueueContext(ctx context.Context, data []byte) error {
	if len(data) == 0 {
		return nil
	}

	for {
		b.mu.Lock()
		if b.stopped {
			b.mu.Unlock()
			// Pass the wake-up on to any other blocked producer.
			signal(b.space)
			return ErrStopped
		}
		if b.admit(len(data)) {
			b.queue.Put(data)
			b.mu.Unlock()
			signal(b.notify)
			return nil
		}
		b.mu.Unlock()

		select {
		case <-b.space:
		case <-ctx.Done():
			return fmt.Errorf("playback: enqueue: %w", ctx.Err())
		}
	}
}

// admit decides whether n more bytes may be queued, dropping old audio
// under PolicyDropOldest. Caller holds b.mu.
func (b *Buffer) admit(n int) bool {
	if b.cfg.Policy == PolicyUnbounded {
		return true
	}
	queued := b.queue.Len()
	if queued+n <= b.cfg.Capacity || queued == 0 {
		return true
	}
	if b.cfg.Policy == PolicyBlock {
		return false
	}

	excess := queued + n - b.cfg.Capacity
	dropped := b.queue.Discard(excess)
	b.dropped += int64(dropped)
	log.Warn().Int("bytes", dropped).Msg("playback queue full, dropped oldest audio")
	return true
}

// Clear discards all queued audio and returns how many bytes were dropped.
// It waits for at most one in-flight sink write to finish.
func (b *Buffer) Clear() int {
	b.writeMu.Lock()
	defer b.writeMu.Unlock()

	b.mu.Lock()
	n := b.queue.Clear()
	b.epoch++
	b.mu.Unlock()

	signal(b.space)
	return n
}

// IsPlaying reports whether audio is queued. The sink may still be
// flushing its own buffer after this turns false.
func (b *Buffer) IsPlaying() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.queue.Len() > 0
}

// Pending returns the number of queued bytes.
func (b *Buffer) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.queue.Len()
}

// Drain waits until all queued audio has been handed to the sink, including
// the slice being written, or the buffer is stopped, or ctx ends. It
// returns immediately on a buffer that is not running.
func (b *Buffer) Drain(ctx context.Context) error {
	for {
		b.mu.Lock()
		settled := !b.running || (b.queue.Len() == 0 && b.inflight == 0)
		b.mu.Unlock()
		if settled {
			return nil
		}

		select {
		case <-b.idle:
		case <-ctx.Done():
			return fmt.Errorf("playback: drain: %w", ctx.Err())
		}
	}
}

// Dropped returns how many bytes PolicyDropOldest has discarded.
func (b *Buffer) Dropped() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}

func (b *Buffer) drain(stop, done chan struct{}) {
	defer close(done)

	for {
		b.mu.Lock()
		if !b.running {
			b.mu.Unlock()
			return
		}
		chunk := b.queue.Take(b.cfg.ChunkSize)
		epoch := b.epoch
		b.inflight = len(chunk)
		b.mu.Unlock()

		if len(chunk) == 0 {
			select {
			case <-b.notify:
				continue
			case <-stop:
				return
			}
		}

		signal(b.space)
		b.write(chunk, epoch)

		b.mu.Lock()
		b.inflight = 0
		empty := b.queue.Len() == 0
		b.mu.Unlock()
		if empty {
			signal(b.idle)
		}
	}
}

// write hands chunk to the sink in WriteSize pieces, abandoning it when the
// buffer is cleared or stopped.
func (b *Buffer) write(chunk []byte, epoch uint64) {
	for off := 0; off < len(chunk); off += b.cfg.WriteSize {
		end := min(off+b.cfg.WriteSize, len(chunk))

		b.writeMu.Lock()
		b.mu.Lock()
		live := b.running && b.epoch == epoch
		b.mu.Unlock()
		if !live {
			b.writeMu.Unlock()
			return
		}
		err := b.sink.Write(chunk[off:end])
		b.writeMu.Unlock()

		if err != nil {
			log.Error().Err(err).Int("bytes", len(chunk)-off).Msg("playback sink write failed, dropping slice")
			return
		}
	}
}

func signal(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}
