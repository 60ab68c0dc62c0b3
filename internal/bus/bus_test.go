package bus

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBus_TypedSubscriberSeesOnlyItsType(t *testing.T) {
	b := New(10)
	defer b.Close()

	got := make(chan Event, 4)
	id := b.Subscribe(EventWake, func(e Event) { got <- e })
	require.NotEmpty(t, id)

	require.NoError(t, b.Publish(NewEvent(EventReply)))
	wake := NewEvent(EventWake)
	wake.SessionID = "s1"
	require.NoError(t, b.Publish(wake))

	select {
	case e := <-got:
		assert.Equal(t, EventWake, e.Type)
		assert.Equal(t, "s1", e.SessionID)
	case <-time.After(time.Second):
		t.Fatal("handler not called")
	}
	assert.Never(t, func() bool { return len(got) > 0 }, 50*time.Millisecond, 5*time.Millisecond)
}

func TestBus_WildcardReceivesEverything(t *testing.T) {
	b := New(10)
	defer b.Close()

	var n atomic.Int32
	b.Subscribe("", func(Event) { n.Add(1) })

	for _, typ := range []EventType{EventWake, EventTranscript, EventReply} {
		require.NoError(t, b.Publish(NewEvent(typ)))
	}
	require.Eventually(t, func() bool { return n.Load() == 3 }, time.Second, 5*time.Millisecond)
}

func TestBus_PublishStampsMissingFields(t *testing.T) {
	b := New(10)
	defer b.Close()

	require.NoError(t, b.Publish(Event{Type: EventBargeIn}))
	h := b.History(1)
	require.Len(t, h, 1)
	assert.NotEmpty(t, h[0].ID)
	assert.False(t, h[0].Timestamp.IsZero())
}

func TestBus_HistoryIsBounded(t *testing.T) {
	b := New(3)
	defer b.Close()

	for i := 0; i < 5; i++ {
		e := NewEvent(EventTranscript)
		e.Transcript = strings.Repeat("x", i)
		require.NoError(t, b.Publish(e))
	}

	h := b.History(0)
	require.Len(t, h, 3)
	assert.Equal(t, "xx", h[0].Transcript)
	assert.Equal(t, "xxxx", h[2].Transcript)
	assert.Len(t, b.History(2), 2)
}

func TestBus_Unsubscribe(t *testing.T) {
	b := New(10)
	defer b.Close()

	var n atomic.Int32
	id := b.Subscribe(EventWake, func(Event) { n.Add(1) })
	assert.Equal(t, 1, b.SubscriptionCount())

	require.NoError(t, b.Unsubscribe(id))
	assert.Equal(t, 0, b.SubscriptionCount())
	assert.Error(t, b.Unsubscribe(id))

	require.NoError(t, b.Publish(NewEvent(EventWake)))
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(0), n.Load())
}

func TestBus_UnsubscribeDeliversBufferedEvents(t *testing.T) {
	b := New(10)
	defer b.Close()

	gate := make(chan struct{})
	var n atomic.Int32
	id := b.Subscribe(EventTranscript, func(Event) {
		<-gate
		n.Add(1)
	})

	for i := 0; i < 3; i++ {
		require.NoError(t, b.Publish(NewEvent(EventTranscript)))
	}

	unsubscribed := make(chan error, 1)
	go func() { unsubscribed <- b.Unsubscribe(id) }()

	select {
	case <-unsubscribed:
		t.Fatal("Unsubscribe returned while the handler was still running")
	case <-time.After(20 * time.Millisecond):
	}

	close(gate)
	select {
	case err := <-unsubscribed:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Unsubscribe did not return")
	}
	assert.Equal(t, int32(3), n.Load())
}

func TestBus_HandlerPanicDoesNotKillSubscription(t *testing.T) {
	b := New(10)
	defer b.Close()

	var calls atomic.Int32
	b.Subscribe(EventReply, func(Event) {
		if calls.Add(1) == 1 {
			panic("observer bug")
		}
	})

	require.NoError(t, b.Publish(NewEvent(EventReply)))
	require.NoError(t, b.Publish(NewEvent(EventReply)))
	require.Eventually(t, func() bool { return calls.Load() == 2 }, time.Second, 5*time.Millisecond)
}

func TestBus_Close(t *testing.T) {
	b := New(10)
	b.Subscribe("", func(Event) {})

	require.NoError(t, b.Close())
	assert.ErrorIs(t, b.Close(), ErrClosed)
	assert.ErrorIs(t, b.Publish(NewEvent(EventWake)), ErrClosed)
	assert.Empty(t, b.Subscribe(EventWake, func(Event) {}))
}

func TestBus_ConcurrentPublishAndSubscribe(t *testing.T) {
	b := New(100)
	defer b.Close()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			b.Subscribe(EventWake, func(Event) {})
		}()
		go func() {
			defer wg.Done()
			_ = b.Publish(NewEvent(EventWake))
		}()
	}
	wg.Wait()
	assert.Equal(t, 8, b.SubscriptionCount())
}

func dialObserver(t *testing.T, srv *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + EventsEndpoint + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) Event {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var ev Event
	require.NoError(t, json.Unmarshal(data, &ev))
	return ev
}

func TestObserver_ReplaysHistoryThenStreams(t *testing.T) {
	b := New(10)
	defer b.Close()
	require.NoError(t, b.Publish(NewEvent(EventLoopStarted)))

	o := NewObserver(b, DefaultObserverConfig())
	defer o.Close()
	mux := http.NewServeMux()
	o.Routes(mux)
	srv := httptest.NewServer(mux)
	defer srv.Close()

	conn := dialObserver(t, srv, "")
	assert.Equal(t, EventLoopStarted, readEvent(t, conn).Type)

	require.Eventually(t, func() bool { return o.ClientCount() == 1 }, time.Second, 5*time.Millisecond)
	reply := NewEvent(EventReply)
	reply.Reply = "lights on"
	require.NoError(t, b.Publish(reply))

	got := readEvent(t, conn)
	assert.Equal(t, EventReply, got.Type)
	assert.Equal(t, "lights on", got.Reply)
}

func TestObserver_ReplayCanBeDisabled(t *testing.T) {
	b := New(10)
	defer b.Close()
	require.NoError(t, b.Publish(NewEvent(EventLoopStarted)))

	o := NewObserver(b, DefaultObserverConfig())
	defer o.Close()
	mux := http.NewServeMux()
	o.Routes(mux)
	srv := httptest.NewServer(mux)
	defer srv.Close()

	conn := dialObserver(t, srv, "?replay=false")
	require.Eventually(t, func() bool { return o.ClientCount() == 1 }, time.Second, 5*time.Millisecond)
	require.NoError(t, b.Publish(NewEvent(EventWake)))
	assert.Equal(t, EventWake, readEvent(t, conn).Type)
}

func TestObserver_Health(t *testing.T) {
	b := New(10)
	defer b.Close()
	o := NewObserver(b, ObserverConfig{})
	defer o.Close()

	mux := http.NewServeMux()
	o.Routes(mux)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, HealthEndpoint, nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
	assert.EqualValues(t, 1, body["bus_subscriptions"])
}
