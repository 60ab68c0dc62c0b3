package bus

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	// EventsEndpoint is the websocket path observers connect to.
	EventsEndpoint = "/events"

	// HealthEndpoint reports observer and bus state.
	HealthEndpoint = "/health"

	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
	clientBuffer   = 256
)

// ObserverConfig configures the websocket observer.
type ObserverConfig struct {
	// ReplayHistory sends recent events to a client when it connects.
	ReplayHistory bool
	HistoryCount  int
}

// DefaultObserverConfig replays the last 100 events.
func DefaultObserverConfig() ObserverConfig {
	return ObserverConfig{ReplayHistory: true, HistoryCount: 100}
}

// Observer streams bus events as JSON over websockets. It does not own a
// listener; mount it on a mux with Routes.
type Observer struct {
	bus      *Bus
	cfg      ObserverConfig
	upgrader websocket.Upgrader
	subID    SubscriptionID

	mu      sync.RWMutex
	clients map[*client]struct{}

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type client struct {
	conn *websocket.Conn
	send chan []byte
	once sync.Once
}

func (c *client) close() {
	c.once.Do(func() { close(c.send) })
}

// NewObserver creates an observer and subscribes it to every event on b.
func NewObserver(b *Bus, cfg ObserverConfig) *Observer {
	if cfg.HistoryCount <= 0 {
		cfg.HistoryCount = DefaultObserverConfig().HistoryCount
	}
	ctx, cancel := context.WithCancel(context.Background())
	o := &Observer{
		bus: b,
		cfg: cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		clients: make(map[*client]struct{}),
		ctx:     ctx,
		cancel:  cancel,
	}
	o.subID = b.Subscribe("", o.broadcast)
	return o
}

// Routes registers the websocket and health endpoints on mux.
func (o *Observer) Routes(mux *http.ServeMux) {
	mux.HandleFunc(EventsEndpoint, o.handleWebSocket)
	mux.HandleFunc(HealthEndpoint, o.handleHealth)
}

// ClientCount returns the number of connected clients.
func (o *Observer) ClientCount() int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return len(o.clients)
}

// Close disconnects every client and detaches from the bus.
func (o *Observer) Close() error {
	o.cancel()
	if o.subID != "" {
		_ = o.bus.Unsubscribe(o.subID)
	}

	o.mu.Lock()
	for c := range o.clients {
		c.close()
		delete(o.clients, c)
	}
	o.mu.Unlock()

	o.wg.Wait()
	return nil
}

func (o *Observer) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	replay := o.cfg.ReplayHistory && r.URL.Query().Get("replay") != "false"
	count := o.cfg.HistoryCount
	if n, err := strconv.Atoi(r.URL.Query().Get("count")); err == nil && n > 0 {
		count = n
	}

	conn, err := o.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("observer websocket upgrade failed")
		return
	}

	c := &client{conn: conn, send: make(chan []byte, clientBuffer)}
	if replay {
		for _, ev := range o.bus.History(count) {
			data, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			select {
			case c.send <- data:
			default:
			}
		}
	}

	o.mu.Lock()
	if o.ctx.Err() != nil {
		o.mu.Unlock()
		conn.Close()
		return
	}
	o.clients[c] = struct{}{}
	total := len(o.clients)
	o.mu.Unlock()
	log.Info().Str("remote", r.RemoteAddr).Int("clients", total).Msg("observer client connected")

	o.wg.Add(2)
	go o.writePump(c)
	go o.readPump(c)
}

func (o *Observer) drop(c *client) {
	o.mu.Lock()
	if _, ok := o.clients[c]; ok {
		delete(o.clients, c)
		c.close()
	}
	remaining := len(o.clients)
	o.mu.Unlock()
	log.Info().Int("clients", remaining).Msg("observer client disconnected")
}

func (o *Observer) writePump(c *client) {
	defer o.wg.Done()
	defer c.conn.Close()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				o.drop(c)
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				o.drop(c)
				return
			}
		}
	}
}

func (o *Observer) readPump(c *client) {
	defer o.wg.Done()
	defer o.drop(c)

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Debug().Err(err).Msg("observer read failed")
			}
			return
		}
	}
}

// broadcast fans one event out to every client. Clients that cannot keep
// up are disconnected.
func (o *Observer) broadcast(ev Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		log.Error().Err(err).Msg("observer failed to marshal event")
		return
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	for c := range o.clients {
		select {
		case c.send <- data:
		default:
			delete(o.clients, c)
			c.close()
		}
	}
}

func (o *Observer) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := struct {
		Status        string `json:"status"`
		Clients       int    `json:"clients"`
		Subscriptions int    `json:"bus_subscriptions"`
		History       int    `json:"history_size"`
		Dropped       uint64 `json:"dropped_events"`
	}{
		Status:        "healthy",
		Clients:       o.ClientCount(),
		Subscriptions: o.bus.SubscriptionCount(),
		History:       len(o.bus.History(0)),
		Dropped:       o.bus.Dropped(),
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(health)
}
