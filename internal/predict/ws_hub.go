// WebSocket hub for broadcasting freshly computed price predictions to
// connected dashboard clients.
package predict

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/agrogram/search-engine/internal/metrics"
	"github.com/agrogram/search-engine/internal/model"
)

// WSMessage is a JSON message sent to WebSocket clients.
type WSMessage struct {
	Type           string  `json:"type"`
	CropType       string  `json:"crop_type"`
	Region         string  `json:"region"`
	HorizonDays    int     `json:"horizon_days"`
	PredictedPrice string  `json:"predicted_price"`
	Confidence     float64 `json:"confidence"`
	Trend          string  `json:"trend"`
	PredictionType string  `json:"prediction_type"`
}

// wsClient wraps a connection with a write mutex. gorilla/websocket allows
// at most one concurrent writer per connection, and both the broadcast loop
// and the ping goroutine write to the same conn.
type wsClient struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *wsClient) write(messageType int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteMessage(messageType, data)
}

// WSHub manages WebSocket connections and broadcasts a message to all
// connected clients whenever a new prediction is stored.
type WSHub struct {
	clients    map[*websocket.Conn]*wsClient
	broadcast  chan []byte
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	mu         sync.RWMutex
}

// NewWSHub creates a new WebSocket hub.
func NewWSHub() *WSHub {
	return &WSHub{
		clients:    make(map[*websocket.Conn]*wsClient),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
	}
}

// Run starts the hub's main event loop. Must be called in a goroutine.
func (h *WSHub) Run() {
	for {
		select {
		case conn := <-h.register:
			h.mu.Lock()
			h.clients[conn] = &wsClient{conn: conn}
			total := len(h.clients)
			h.mu.Unlock()
			metrics.WebSocketClients.Inc()
			slog.Info("ws client connected", "total", total)

		case conn := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[conn]; ok {
				delete(h.clients, conn)
				conn.Close()
				metrics.WebSocketClients.Dec()
			}
			h.mu.Unlock()

		case msg := <-h.broadcast:
			h.mu.RLock()
			snapshot := make([]*wsClient, 0, len(h.clients))
			for _, c := range h.clients {
				snapshot = append(snapshot, c)
			}
			h.mu.RUnlock()

			var failed []*wsClient
			for _, c := range snapshot {
				if err := c.write(websocket.TextMessage, msg); err != nil {
					failed = append(failed, c)
				}
			}
			if len(failed) > 0 {
				h.mu.Lock()
				for _, c := range failed {
					if _, ok := h.clients[c.conn]; ok {
						delete(h.clients, c.conn)
						c.conn.Close()
						metrics.WebSocketClients.Dec()
					}
				}
				h.mu.Unlock()
			}
		}
	}
}

// BroadcastPrediction sends a new prediction to all connected clients.
func (h *WSHub) BroadcastPrediction(r *model.PredictionRecord) {
	data, err := json.Marshal(WSMessage{
		Type:           "price_prediction",
		CropType:       r.CropType,
		Region:         r.Region,
		HorizonDays:    r.HorizonDays,
		PredictedPrice: r.PredictedPrice.String(),
		Confidence:     r.Confidence,
		Trend:          r.Trend,
		PredictionType: r.PredictionType,
	})
	if err != nil {
		return
	}
	select {
	case h.broadcast <- data:
	default:
		// Drop if buffer full to avoid blocking prediction serving.
	}
}

func (h *WSHub) clientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		return true // Allow all origins during development.
	},
}

// HandleWS handles WebSocket upgrade requests at GET /api/v1/ws.
func (h *WSHub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("ws upgrade failed", "err", err)
		return
	}

	h.register <- conn

	// Read pump: keep connection alive and detect disconnects.
	go func() {
		defer func() { h.unregister <- conn }()
		conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		conn.SetPongHandler(func(string) error {
			conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			return nil
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}
	}()

	// Ping ticker to keep connection alive through proxies.
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for range ticker.C {
			h.mu.RLock()
			c, ok := h.clients[conn]
			h.mu.RUnlock()
			if !ok {
				return
			}
			if err := c.write(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}()
}
