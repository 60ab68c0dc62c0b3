package bus

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog/log"
)

const (
	// DefaultHistorySize is the number of recent events retained for replay.
	DefaultHistorySize = 500

	// DefaultChannelBuffer is the buffer size for subscriber channels.
	DefaultChannelBuffer = 128
)

// ErrClosed is returned when publishing to or unsubscribing from a closed bus.
var ErrClosed = errors.New("bus: closed")

// SubscriptionID identifies a subscription.
type SubscriptionID string

// Subscription is a single handler registration. Each subscription has its
// own goroutine and buffered channel, so a slow handler only delays itself.
type Subscription struct {
	ID        SubscriptionID
	EventType EventType
	Handler   func(Event)

	ch     chan Event
	done   chan struct{}
	exited chan struct{}
}

// Bus is an in-process pub/sub hub with wildcard subscriptions and a
// bounded replay history.
type Bus struct {
	subCounter atomic.Uint64
	dropped    atomic.Uint64

	mu       sync.RWMutex
	subs     map[SubscriptionID]*Subscription
	typed    map[EventType]map[SubscriptionID]*Subscription
	wildcard map[SubscriptionID]*Subscription

	historyMu   sync.RWMutex
	history     []Event
	historySize int

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	closed atomic.Bool
}

// New creates a bus keeping up to historySize events for replay.
func New(historySize int) *Bus {
	if historySize <= 0 {
		historySize = DefaultHistorySize
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Bus{
		subs:        make(map[SubscriptionID]*Subscription),
		typed:       make(map[EventType]map[SubscriptionID]*Subscription),
		wildcard:    make(map[SubscriptionID]*Subscription),
		history:     make([]Event, 0, historySize),
		historySize: historySize,
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Subscribe registers handler for eventType. An empty eventType receives
// every event. It returns "" once the bus is closed.
func (b *Bus) Subscribe(eventType EventType, handler func(Event)) SubscriptionID {
	id := SubscriptionID(fmt.Sprintf("sub_%d", b.subCounter.Add(1)))
	sub := &Subscription{
		ID:        id,
		EventType: eventType,
		Handler:   handler,
		ch:        make(chan Event, DefaultChannelBuffer),
		done:      make(chan struct{}),
		exited:    make(chan struct{}),
	}

	b.mu.Lock()
	if b.closed.Load() {
		b.mu.Unlock()
		return ""
	}
	b.subs[id] = sub
	if eventType == "" {
		b.wildcard[id] = sub
	} else {
		if b.typed[eventType] == nil {
			b.typed[eventType] = make(map[SubscriptionID]*Subscription)
		}
		b.typed[eventType][id] = sub
	}
	b.wg.Add(1)
	b.mu.Unlock()

	go b.handle(sub)
	return id
}

func (b *Bus) handle(sub *Subscription) {
	defer b.wg.Done()
	defer close(sub.exited)
	for {
		select {
		case ev := <-sub.ch:
			b.dispatch(sub, ev)
		case <-sub.done:
			b.flush(sub)
			return
		case <-b.ctx.Done():
			return
		}
	}
}

// flush delivers whatever is still buffered for sub.
func (b *Bus) flush(sub *Subscription) {
	for {
		select {
		case ev := <-sub.ch:
			b.dispatch(sub, ev)
		default:
			return
		}
	}
}

// dispatch runs a handler, keeping a panicking observer from taking the
// bus down with it.
func (b *Bus) dispatch(sub *Subscription, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().
				Interface("panic", r).
				Str("subscription", string(sub.ID)).
				Str("event", string(ev.Type)).
				Msg("bus handler panicked")
		}
	}()
	sub.Handler(ev)
}

// Unsubscribe removes a subscription. Events already buffered for it are
// still delivered, and Unsubscribe returns once its handler has run for the
// last time. It must not be called from that handler.
func (b *Bus) Unsubscribe(id SubscriptionID) error {
	if b.closed.Load() {
		return ErrClosed
	}

	b.mu.Lock()
	sub, ok := b.subs[id]
	if !ok {
		b.mu.Unlock()
		return fmt.Errorf("bus: subscription %s not found", id)
	}
	delete(b.subs, id)
	if sub.EventType == "" {
		delete(b.wildcard, id)
	} else if m, ok := b.typed[sub.EventType]; ok {
		delete(m, id)
		if len(m) == 0 {
			delete(b.typed, sub.EventType)
		}
	}
	b.mu.Unlock()

	close(sub.done)
	<-sub.exited
	return nil
}

// Publish records the event in history and hands it to every matching
// subscriber. It never blocks: a subscriber whose buffer is full misses
// the event.
func (b *Bus) Publish(ev Event) error {
	if b.closed.Load() {
		return ErrClosed
	}
	if ev.ID == "" || ev.Timestamp.IsZero() {
		stamped := NewEvent(ev.Type)
		if ev.ID == "" {
			ev.ID = stamped.ID
		}
		if ev.Timestamp.IsZero() {
			ev.Timestamp = stamped.Timestamp
		}
	}

	b.addToHistory(ev)

	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.wildcard {
		b.send(sub, ev)
	}
	for _, sub := range b.typed[ev.Type] {
		b.send(sub, ev)
	}
	return nil
}

func (b *Bus) send(sub *Subscription, ev Event) {
	select {
	case sub.ch <- ev:
	default:
		b.dropped.Add(1)
		log.Warn().Str("subscription", string(sub.ID)).Str("event", string(ev.Type)).Msg("bus subscriber full, event dropped")
	}
}

func (b *Bus) addToHistory(ev Event) {
	b.historyMu.Lock()
	defer b.historyMu.Unlock()

	b.history = append(b.history, ev)
	if len(b.history) > b.historySize {
		b.history = b.history[len(b.history)-b.historySize:]
	}
}

// History returns up to the last n events, oldest first. n <= 0 returns
// the whole history.
func (b *Bus) History(n int) []Event {
	b.historyMu.RLock()
	defer b.historyMu.RUnlock()

	if n <= 0 || n > len(b.history) {
		n = len(b.history)
	}
	out := make([]Event, n)
	copy(out, b.history[len(b.history)-n:])
	return out
}

// SubscriptionCount returns the number of active subscriptions.
func (b *Bus) SubscriptionCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Dropped returns how many deliveries were skipped because a subscriber
// was full.
func (b *Bus) Dropped() uint64 {
	return b.dropped.Load()
}

// Close stops every subscription goroutine and waits for them. Events
// still buffered for a subscriber are discarded.
func (b *Bus) Close() error {
	b.mu.Lock()
	if !b.closed.CompareAndSwap(false, true) {
		b.mu.Unlock()
		return ErrClosed
	}
	b.mu.Unlock()

	b.cancel()
	b.wg.Wait()

	b.mu.Lock()
	b.subs = make(map[SubscriptionID]*Subscription)
	b.typed = make(map[EventType]map[SubscriptionID]*Subscription)
	b.wildcard = make(map[SubscriptionID]*Subscription)
	b.mu.Unlock()
	return nil
}
