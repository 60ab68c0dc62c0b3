package metrics

import (
	"sync"
	"time"

	"github.com/normanking/wakeloop/internal/bus"
)

// Collector subscribes to the bus, feeds the Prometheus series and keeps a
// running summary of the current session.
type Collector struct {
	bus          *bus.Bus
	session      *SessionStats
	recentEvents []bus.Event
	maxEvents    int
	subs         []bus.SubscriptionID
	stopped      bool
	mu           sync.RWMutex
}

// SessionStats summarises the loop since the collector started.
type SessionStats struct {
	StartTime      time.Time
	Wakes          int
	BargeIns       int
	Transcripts    int
	EmptyCaptures  int
	StaleCaptures  int
	Turns          int
	Errors         int
	TotalTurnMs    int64
	PlaybackBytes  int64
	LastTranscript string
	LastReply      string
	LastEvent      string
	LastEventTime  time.Time
}

// AvgTurn returns the mean transcript-to-audio latency.
func (s SessionStats) AvgTurn() time.Duration {
	if s.Turns == 0 {
		return 0
	}
	return time.Duration(s.TotalTurnMs/int64(s.Turns)) * time.Millisecond
}

// NewCollector creates a collector for eventBus. Call Start to subscribe.
func NewCollector(eventBus *bus.Bus) *Collector {
	return &Collector{
		bus:       eventBus,
		session:   &SessionStats{StartTime: time.Now()},
		maxEvents: 50,
	}
}

// Start subscribes to every bus event.
func (c *Collector) Start() {
	if c.bus == nil {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped || len(c.subs) > 0 {
		return
	}
	if id := c.bus.Subscribe("", c.handleEvent); id != "" {
		c.subs = append(c.subs, id)
	}
}

// Stop unsubscribes from the bus. Events already buffered are counted
// before it returns.
func (c *Collector) Stop() {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return
	}
	c.stopped = true
	subs := c.subs
	c.subs = nil
	c.mu.Unlock()

	// Unsubscribe waits for handleEvent, which takes c.mu.
	for _, id := range subs {
		_ = c.bus.Unsubscribe(id)
	}
}

// SessionStats returns a copy of the current session summary.
func (c *Collector) SessionStats() SessionStats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return *c.session
}

// RecentEvents returns up to n of the most recent events, oldest first.
func (c *Collector) RecentEvents(n int) []bus.Event {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if n > len(c.recentEvents) {
		n = len(c.recentEvents)
	}
	events := make([]bus.Event, n)
	copy(events, c.recentEvents[len(c.recentEvents)-n:])
	return events
}

func (c *Collector) handleEvent(e bus.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.recentEvents = append(c.recentEvents, e)
	if len(c.recentEvents) > c.maxEvents {
		c.recentEvents = c.recentEvents[1:]
	}

	s := c.session
	s.LastEvent = string(e.Type)
	s.LastEventTime = e.Timestamp

	switch e.Type {
	case bus.EventWake:
		s.Wakes++
		Wakes.Inc()

	case bus.EventBargeIn:
		s.BargeIns++
		BargeIns.Inc()

	case bus.EventCaptureDone:
		if e.Transcript == "" {
			s.EmptyCaptures++
			Captures.WithLabelValues("empty").Inc()
		} else {
			Captures.WithLabelValues("transcript").Inc()
		}
		observeStage("recognize", e.DurationMs)

	case bus.EventCaptureStale:
		s.StaleCaptures++
		Captures.WithLabelValues("stale").Inc()

	case bus.EventTranscript:
		s.Transcripts++
		s.LastTranscript = e.Transcript

	case bus.EventReply:
		s.LastReply = e.Reply
		observeStage("chat", e.DurationMs)

	case bus.EventSynthesized:
		observeStage("synthesize", e.DurationMs)

	case bus.EventEnqueued:
		s.PlaybackBytes += int64(e.Bytes)
		PlaybackBytes.Add(float64(e.Bytes))

	case bus.EventTurnDone:
		s.Turns++
		s.TotalTurnMs += e.DurationMs
		TurnLatency.Observe(float64(e.DurationMs) / 1000)

	case bus.EventTurnError:
		s.Errors++
		stage := e.Stage
		if stage == "" {
			stage = "unknown"
		}
		TurnErrors.WithLabelValues(stage).Inc()
	}
}

func observeStage(stage string, ms int64) {
	if ms > 0 {
		StageLatency.WithLabelValues(stage).Observe(float64(ms) / 1000)
	}
}
