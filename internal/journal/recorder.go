package journal

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/normanking/wakeloop/internal/bus"
	"github.com/normanking/wakeloop/internal/logging"
)

const writeTimeout = 5 * time.Second

// Recorder assembles turns from bus events and writes them to a Store.
// A turn opens on its transcript and is written on turn_complete or
// turn_error for the same capture session.
type Recorder struct {
	store *Store
	bus   *bus.Bus
	sub   bus.SubscriptionID

	mu      sync.Mutex
	open    map[string]*Turn
	bargeIn map[string]bool
}

// NewRecorder subscribes a recorder to b.
func NewRecorder(store *Store, b *bus.Bus) *Recorder {
	r := &Recorder{
		store:   store,
		bus:     b,
		open:    make(map[string]*Turn),
		bargeIn: make(map[string]bool),
	}
	r.sub = b.Subscribe("", r.handle)
	return r
}

// Close unsubscribes from the bus. Events published before Close are still
// recorded, so the store can be closed once it returns. Turns still open are
// discarded.
func (r *Recorder) Close() error {
	if r.sub == "" {
		return nil
	}
	err := r.bus.Unsubscribe(r.sub)
	r.sub = ""
	return err
}

func (r *Recorder) handle(e bus.Event) {
	r.mu.Lock()
	var done *Turn
	switch e.Type {
	case bus.EventBargeIn:
		if t := r.open[e.SessionID]; t != nil {
			t.BargeIn = true
		} else {
			r.bargeIn[e.SessionID] = true
		}

	case bus.EventTranscript:
		r.open[e.SessionID] = &Turn{
			SessionID:  e.SessionID,
			Generation: e.Generation,
			Transcript: e.Transcript,
			BargeIn:    r.bargeIn[e.SessionID],
			CreatedAt:  e.Timestamp,
		}
		delete(r.bargeIn, e.SessionID)

	case bus.EventReply:
		if t := r.open[e.SessionID]; t != nil {
			t.Reply = e.Reply
			t.Provider = e.Provider
		}

	case bus.EventEnqueued:
		if t := r.open[e.SessionID]; t != nil {
			t.AudioBytes += e.Bytes
		}

	case bus.EventTurnDone:
		if t := r.open[e.SessionID]; t != nil {
			t.Status = StatusOK
			t.Duration = time.Duration(e.DurationMs) * time.Millisecond
			done = t
			delete(r.open, e.SessionID)
		}

	case bus.EventTurnError:
		if t := r.open[e.SessionID]; t != nil {
			t.Status = StatusFailed
			t.ErrorStage = e.Stage
			t.ErrorMsg = e.Error
			done = t
			delete(r.open, e.SessionID)
		}

	case bus.EventCaptureStale, bus.EventCaptureDone:
		if e.Transcript == "" {
			delete(r.bargeIn, e.SessionID)
		}
	}
	r.mu.Unlock()

	if done == nil {
		return
	}

	ctx, cancel := logging.DetachContextWithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if err := r.store.Record(ctx, done); err != nil {
		log.Error().Err(err).Str("session", done.SessionID).Msg("failed to journal turn")
	}
}
