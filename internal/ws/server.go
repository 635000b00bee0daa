package ws

import (
	"log"
	"net/http"

	socketio "github.com/googollee/go-socket.io"
	"github.com/googollee/go-socket.io/engineio"
	"github.com/googollee/go-socket.io/engineio/transport"
	"github.com/googollee/go-socket.io/engineio/transport/polling"
	"github.com/googollee/go-socket.io/engineio/transport/websocket"
	"gorm.io/gorm"
)

// Hub persists project events and pushes them to subscribed dashboards.
// A Hub without a socket server only persists.
type Hub struct {
	db     *gorm.DB
	server *socketio.Server
}

// NewHub creates a hub that only persists events
func NewHub(db *gorm.DB) *Hub {
	return &Hub{db: db}
}

// InitServer creates and starts the Socket.IO server
func (h *Hub) InitServer() error {
	allowAll := func(r *http.Request) bool { return true }
	server := socketio.NewServer(&engineio.Options{
		Transports: []transport.Transport{
			&polling.Transport{CheckOrigin: allowAll},
			&websocket.Transport{CheckOrigin: allowAll},
		},
	})

	server.OnConnect("/", func(s socketio.Conn) error {
		claims, err := claimsFromConn(s)
		if err != nil {
			log.Printf("[WebSocket] Rejecting connection %s: %v", s.ID(), err)
			return err
		}
		s.SetContext(claims)
		log.Printf("[WebSocket] Client connected: %s (uid=%d)", s.ID(), claims.UID)
		s.Emit("connected", map[string]interface{}{"ok": true})
		return nil
	})

	server.OnDisconnect("/", func(s socketio.Conn, reason string) {
		log.Printf("[WebSocket] Client disconnected: %s, reason: %s", s.ID(), reason)
	})

	server.OnError("/", func(s socketio.Conn, e error) {
		if s == nil {
			log.Printf("[WebSocket] Error: %v", e)
			return
		}
		log.Printf("[WebSocket] Error for client %s: %v", s.ID(), e)
	})

	server.OnEvent("/", "subscribe:project", h.handleSubscribe)

	go func() {
		if err := server.Serve(); err != nil {
			log.Printf("[WebSocket] Server error: %v", err)
		}
	}()

	h.server = server
	log.Println("[WebSocket] Socket.IO server initialized")
	return nil
}

// Handler returns the authenticated HTTP handler, or nil before InitServer
func (h *Hub) Handler() http.Handler {
	if h.server == nil {
		return nil
	}
	return WrapWithAuth(h.server)
}

// Close stops the Socket.IO server
func (h *Hub) Close() error {
	if h.server == nil {
		return nil
	}
	return h.server.Close()
}
