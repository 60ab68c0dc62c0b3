package wakeword

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/normanking/wakeloop/internal/audio"
	"github.com/normanking/wakeloop/internal/config"
)

// markerEngine fires on frames whose first sample is 7.
type markerEngine struct {
	frames  [][]int16
	err     error
	deleted bool
}

func (e *markerEngine) Process(pcm []int16) (int, error) {
	e.frames = append(e.frames, append([]int16(nil), pcm...))
	if e.err != nil {
		return -1, e.err
	}
	if pcm[0] == 7 {
		return 0, nil
	}
	return -1, nil
}

func (e *markerEngine) Delete() error {
	e.deleted = true
	return nil
}

func TestPorcupine_ReframesChunks(t *testing.T) {
	e := &markerEngine{}
	p := newPorcupine(e, 4, 16000)

	hit, err := p.Detect(audio.Int16ToBytes([]int16{1, 2, 3, 4, 5, 6}))
	require.NoError(t, err)
	assert.False(t, hit)
	require.Len(t, e.frames, 1)
	assert.Equal(t, []int16{1, 2, 3, 4}, e.frames[0])

	hit, err = p.Detect(audio.Int16ToBytes([]int16{0, 0, 7, 0, 0, 0}))
	require.NoError(t, err)
	assert.True(t, hit)
	require.Len(t, e.frames, 3)
	assert.Equal(t, []int16{5, 6, 0, 0}, e.frames[1])
	assert.Equal(t, []int16{7, 0, 0, 0}, e.frames[2])

	assert.Equal(t, 16000, p.SampleRate())
	assert.Equal(t, "porcupine", p.Name())
}

func TestPorcupine_ErrorAndClose(t *testing.T) {
	e := &markerEngine{err: errors.New("invalid state")}
	p := newPorcupine(e, 2, 16000)

	_, err := p.Detect(make([]byte, 8))
	assert.ErrorIs(t, err, e.err)

	require.NoError(t, p.Close())
	assert.True(t, e.deleted)
	require.NoError(t, p.Close())

	_, err = p.Detect(make([]byte, 4))
	assert.ErrorIs(t, err, ErrClosed)
}

func TestNewPorcupine_RequiresAccessKey(t *testing.T) {
	_, err := NewPorcupine(PorcupineConfig{Keywords: []string{"jarvis"}})
	assert.Error(t, err)
}

var upgrader = websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}

// newDetectionServer reports a detection after fireAfter audio messages on
// each connection. With dropFirst the first connection is closed right
// after the config message.
func newDetectionServer(t *testing.T, fireAfter int, dropFirst bool) (*httptest.Server, *atomic.Int32, <-chan map[string]any) {
	t.Helper()
	var conns atomic.Int32
	configs := make(chan map[string]any, 4)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		n := conns.Add(1)

		var cfg map[string]any
		if err := conn.ReadJSON(&cfg); err != nil {
			return
		}
		configs <- cfg
		if dropFirst && n == 1 {
			return
		}

		received := 0
		for {
			mt, _, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if mt != websocket.BinaryMessage {
				continue
			}
			received++
			if received == fireAfter {
				data, _ := json.Marshal(WakeWordEvent{Type: "wake_word", WakeWord: "jarvis", Confidence: 0.9})
				_ = conn.WriteMessage(websocket.TextMessage, data)
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv, &conns, configs
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestRemote_ReportsDetection(t *testing.T) {
	srv, _, configs := newDetectionServer(t, 2, false)
	r := NewRemote(RemoteConfig{Endpoint: wsURL(srv), WakeWords: []string{"jarvis"}})
	defer r.Close()

	require.Eventually(t, func() bool {
		hit, err := r.Detect(make([]byte, 64))
		return err == nil && hit
	}, 2*time.Second, 5*time.Millisecond)

	assert.Equal(t, "jarvis", r.LastWakeWord())

	cfg := <-configs
	assert.Equal(t, "wake_word_config", cfg["type"])
	assert.Equal(t, float64(16000), cfg["sample_rate"])

	hit, err := r.Detect(make([]byte, 64))
	require.NoError(t, err)
	assert.False(t, hit, "a detection is reported once")
}

func TestRemote_ReconnectsAfterFailure(t *testing.T) {
	srv, conns, _ := newDetectionServer(t, 1, true)
	r := NewRemote(RemoteConfig{Endpoint: wsURL(srv)})
	defer r.Close()

	sawErr := false
	require.Eventually(t, func() bool {
		hit, err := r.Detect(make([]byte, 32))
		if err != nil {
			sawErr = true
			return false
		}
		return hit
	}, 3*time.Second, 5*time.Millisecond)

	assert.True(t, sawErr, "the dropped connection surfaces as an error")
	assert.Equal(t, int32(2), conns.Load())
}

func TestRemote_DialFailureAndClose(t *testing.T) {
	r := NewRemote(RemoteConfig{Endpoint: "ws://127.0.0.1:1/none", Timeout: 100 * time.Millisecond})
	_, err := r.Detect(make([]byte, 2))
	assert.Error(t, err)

	require.NoError(t, r.Close())
	_, err = r.Detect(make([]byte, 2))
	assert.ErrorIs(t, err, ErrClosed)
}

func TestNew_Providers(t *testing.T) {
	d, err := New(config.WakeWordConfig{Provider: "remote", Endpoint: "ws://localhost:1"}, 16000)
	require.NoError(t, err)
	assert.Equal(t, "remote", d.Name())
	assert.Equal(t, 16000, d.SampleRate())

	_, err = New(config.WakeWordConfig{Provider: "snowboy"}, 16000)
	assert.Error(t, err)
}
