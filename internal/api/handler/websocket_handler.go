package handler

import (
	"context"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/ocpalps/parkmeter/internal/domain"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// WebSocketManager broadcasts access notifications to every connected client.
type WebSocketManager struct {
	clients    map[*websocket.Conn]bool
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	broadcast  chan []byte
	// done is closed when Start returns.
	done       chan struct{}
	mutex      sync.RWMutex
	log        *zap.Logger
}

func NewWebSocketManager(log *zap.Logger) *WebSocketManager {
	return &WebSocketManager{
		clients:    make(map[*websocket.Conn]bool),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
		broadcast:  make(chan []byte, 64),
		done:       make(chan struct{}),
		log:        log.Named("websocket"),
	}
}

func (wsm *WebSocketManager) Start(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			wsm.mutex.Lock()
			for client := range wsm.clients {
				client.Close()
				delete(wsm.clients, client)
			}
			wsm.mutex.Unlock()
			close(wsm.done)
			return

		case client := <-wsm.register:
			wsm.mutex.Lock()
			wsm.clients[client] = true
			total := len(wsm.clients)
			wsm.mutex.Unlock()
			wsm.log.Debug("client connected", zap.Int("total", total))

		case client := <-wsm.unregister:
			wsm.mutex.Lock()
			if _, ok := wsm.clients[client]; ok {
				delete(wsm.clients, client)
				client.Close()
			}
			total := len(wsm.clients)
			wsm.mutex.Unlock()
			wsm.log.Debug("client disconnected", zap.Int("total", total))

		case message := <-wsm.broadcast:
			wsm.mutex.Lock()
			for client := range wsm.clients {
				if err := client.WriteMessage(websocket.TextMessage, message); err != nil {
					wsm.log.Warn("write to client failed", zap.Error(err))
					client.Close()
					delete(wsm.clients, client)
				}
			}
			wsm.mutex.Unlock()
		}
	}
}

// registerClient hands conn to the hub. It reports false once the hub has stopped.
func (wsm *WebSocketManager) registerClient(conn *websocket.Conn) bool {
	select {
	case wsm.register <- conn:
		return true
	case <-wsm.done:
		return false
	}
}

func (wsm *WebSocketManager) unregisterClient(conn *websocket.Conn) {
	select {
	case wsm.unregister <- conn:
	case <-wsm.done:
	}
}

func (wsm *WebSocketManager) ClientCount() int {
	wsm.mutex.RLock()
	defer wsm.mutex.RUnlock()
	return len(wsm.clients)
}

// Notify queues n for broadcast. It never blocks; when the queue is full the
// notification is dropped.
func (wsm *WebSocketManager) Notify(_ context.Context, n domain.AccessNotification) {
	message, err := json.Marshal(n)
	if err != nil {
		wsm.log.Error("marshal notification", zap.Error(err))
		return
	}
	select {
	case wsm.broadcast <- message:
	default:
		wsm.log.Warn("broadcast channel is full, dropping notification", zap.String("id", n.ID))
	}
}

type WebSocketHandler struct {
	wsManager *WebSocketManager
}

func NewWebSocketHandler(wsManager *WebSocketManager) *WebSocketHandler {
	return &WebSocketHandler{wsManager: wsManager}
}

// GET /ws
func (h *WebSocketHandler) HandleWebSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.wsManager.log.Warn("upgrade failed", zap.Error(err))
		return
	}

	if !h.wsManager.registerClient(conn) {
		conn.Close()
		return
	}

	go func() {
		defer h.wsManager.unregisterClient(conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					h.wsManager.log.Debug("websocket read error", zap.Error(err))
				}
				return
			}
		}
	}()
}
