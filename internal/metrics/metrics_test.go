package metrics

import (
	"context"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/normanking/wakeloop/internal/bus"
)

func publish(t *testing.T, b *bus.Bus, e bus.Event) {
	t.Helper()
	require.NoError(t, b.Publish(e))
}

func TestCollector_AggregatesTurn(t *testing.T) {
	b := bus.New(100)
	defer b.Close()

	c := NewCollector(b)
	c.Start()
	defer c.Stop()

	wakes := testutil.ToFloat64(Wakes)
	stageErrors := testutil.ToFloat64(TurnErrors.WithLabelValues("synthesize"))

	publish(t, b, bus.NewEvent(bus.EventWake))
	publish(t, b, bus.NewEvent(bus.EventBargeIn))

	tr := bus.NewEvent(bus.EventTranscript)
	tr.Transcript = "turn on lights"
	publish(t, b, tr)

	reply := bus.NewEvent(bus.EventReply)
	reply.Reply = "done"
	reply.DurationMs = 300
	publish(t, b, reply)

	enq := bus.NewEvent(bus.EventEnqueued)
	enq.Bytes = 4800
	publish(t, b, enq)

	turn := bus.NewEvent(bus.EventTurnDone)
	turn.DurationMs = 1500
	publish(t, b, turn)

	fail := bus.NewEvent(bus.EventTurnError)
	fail.Stage = "synthesize"
	publish(t, b, fail)

	require.Eventually(t, func() bool { return c.SessionStats().Errors == 1 }, time.Second, 5*time.Millisecond)

	s := c.SessionStats()
	assert.Equal(t, 1, s.Wakes)
	assert.Equal(t, 1, s.BargeIns)
	assert.Equal(t, 1, s.Transcripts)
	assert.Equal(t, 1, s.Turns)
	assert.Equal(t, "turn on lights", s.LastTranscript)
	assert.Equal(t, "done", s.LastReply)
	assert.Equal(t, int64(4800), s.PlaybackBytes)
	assert.Equal(t, 1500*time.Millisecond, s.AvgTurn())
	assert.Equal(t, string(bus.EventTurnError), s.LastEvent)

	assert.Equal(t, wakes+1, testutil.ToFloat64(Wakes))
	assert.Equal(t, stageErrors+1, testutil.ToFloat64(TurnErrors.WithLabelValues("synthesize")))
	assert.Len(t, c.RecentEvents(3), 3)
	assert.Len(t, c.RecentEvents(100), 7)
}

func TestCollector_StopUnsubscribes(t *testing.T) {
	b := bus.New(10)
	defer b.Close()

	c := NewCollector(b)
	c.Start()
	assert.Equal(t, 1, b.SubscriptionCount())
	c.Stop()
	assert.Equal(t, 0, b.SubscriptionCount())
	c.Stop()
}

func TestSessionStats_AvgTurnWithoutTurns(t *testing.T) {
	assert.Equal(t, time.Duration(0), SessionStats{}.AvgTurn())
}

func TestDashboard_Render(t *testing.T) {
	b := bus.New(10)
	defer b.Close()
	c := NewCollector(b)
	c.Start()
	defer c.Stop()

	publish(t, b, bus.NewEvent(bus.EventWake))
	require.Eventually(t, func() bool { return c.SessionStats().Wakes == 1 }, time.Second, 5*time.Millisecond)

	d := NewDashboard(c)
	d.SetWidth(100)
	out := d.Render()
	assert.Contains(t, out, "SESSION")
	assert.Contains(t, out, "Wakes:")
	assert.Contains(t, d.RenderCompact(), "1 wakes")
}

func TestFormatBytes(t *testing.T) {
	assert.Equal(t, "512B", formatBytes(512))
	assert.Equal(t, "4.8kB", formatBytes(4800))
	assert.Equal(t, "2.5MB", formatBytes(2500000))
}

func TestServer_ServesMetricsAndExtraRoutes(t *testing.T) {
	s := NewServer("127.0.0.1:0", func(mux *http.ServeMux) {
		mux.HandleFunc("/ping", func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("pong"))
		})
	})
	require.NoError(t, s.Start())
	defer s.Shutdown(context.Background())

	Wakes.Add(0)
	resp, err := http.Get("http://" + s.Addr() + MetricsEndpoint)
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "wakeloop_wakes_total")

	resp, err = http.Get("http://" + s.Addr() + "/ping")
	require.NoError(t, err)
	body, _ = io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, "pong", string(body))
}
