package server

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/ayusman/airdeck/internal/app"
	"github.com/ayusman/airdeck/internal/keyboard"
	"github.com/ayusman/airdeck/internal/logging"
	"github.com/ayusman/airdeck/internal/metrics"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

// liveRate bounds snapshot broadcasts per second. Status changes arrive once
// per detection cycle.
const liveRate = 15

const writeWait = 2 * time.Second

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow local connections
	},
}

// liveMessage is a snapshot pushed to clients.
type liveMessage struct {
	Type      string       `json:"type"`
	Snapshot  app.Snapshot `json:"snapshot"`
	Timestamp int64        `json:"timestamp"`
}

// clientMessage is sent by clients. Only key presses are understood.
type clientMessage struct {
	Type string `json:"type"`
	Key  string `json:"key"`
}

// LiveHandler pushes session snapshots to websocket clients whenever the
// session changes, and accepts key presses from them.
type LiveHandler struct {
	app     *app.App
	metrics *metrics.Metrics
	limiter *rate.Limiter
	dirty   chan struct{}
	cancel  context.CancelFunc
	done    chan struct{}

	mu      sync.Mutex
	clients map[*websocket.Conn]*sync.Mutex
}

// NewLiveHandler creates a LiveHandler and starts its broadcaster.
func NewLiveHandler(a *app.App, m *metrics.Metrics) *LiveHandler {
	ctx, cancel := context.WithCancel(context.Background())
	h := &LiveHandler{
		app:     a,
		metrics: m,
		limiter: rate.NewLimiter(rate.Limit(liveRate), 1),
		dirty:   make(chan struct{}, 1),
		cancel:  cancel,
		done:    make(chan struct{}),
		clients: make(map[*websocket.Conn]*sync.Mutex),
	}
	a.OnChange(h.markDirty)
	go h.broadcast(ctx)
	return h
}

// ServeHTTP handles WebSocket upgrade requests.
func (h *LiveHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Warn("websocket upgrade failed", "err", err)
		return
	}
	defer conn.Close()

	writeMu := &sync.Mutex{}
	h.mu.Lock()
	h.clients[conn] = writeMu
	n := len(h.clients)
	h.mu.Unlock()
	h.setClients(n)
	logging.Debug("live client connected", "remote", r.RemoteAddr, "clients", n)

	defer func() {
		h.mu.Lock()
		delete(h.clients, conn)
		n := len(h.clients)
		h.mu.Unlock()
		h.setClients(n)
	}()

	if msg, err := h.encode(); err == nil {
		h.write(conn, writeMu, msg)
	}

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var msg clientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		if msg.Type == "key" && msg.Key != "" {
			h.app.HandleKey(keyboard.Normalize(msg.Key))
		}
	}
}

// Clients returns the number of connected clients.
func (h *LiveHandler) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close stops the broadcaster. Connected clients are left to disconnect.
func (h *LiveHandler) Close() {
	h.cancel()
	<-h.done
}

func (h *LiveHandler) markDirty() {
	select {
	case h.dirty <- struct{}{}:
	default:
	}
}

func (h *LiveHandler) broadcast(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			return
		case <-h.dirty:
		}
		if err := h.limiter.Wait(ctx); err != nil {
			return
		}

		h.mu.Lock()
		if len(h.clients) == 0 {
			h.mu.Unlock()
			continue
		}
		targets := make(map[*websocket.Conn]*sync.Mutex, len(h.clients))
		for c, mu := range h.clients {
			targets[c] = mu
		}
		h.mu.Unlock()

		msg, err := h.encode()
		if err != nil {
			logging.Warn("failed to encode live snapshot", "err", err)
			continue
		}
		for conn, mu := range targets {
			h.write(conn, mu, msg)
		}
	}
}

func (h *LiveHandler) encode() ([]byte, error) {
	return json.Marshal(liveMessage{
		Type:      "snapshot",
		Snapshot:  h.app.Snapshot(),
		Timestamp: time.Now().UnixMilli(),
	})
}

func (h *LiveHandler) write(conn *websocket.Conn, mu *sync.Mutex, msg []byte) {
	mu.Lock()
	defer mu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
		// The read loop notices the broken connection and unregisters it.
		conn.Close()
	}
}

func (h *LiveHandler) setClients(n int) {
	if h.metrics != nil {
		h.metrics.LiveClients.Set(float64(n))
	}
}
