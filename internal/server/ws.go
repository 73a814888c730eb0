package server

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second
	maxFrameSize   = 64 << 10
	sendBufferSize = 256
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // browsers load the game from any host during development
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

type Connection struct {
	conn     *websocket.Conn
	send     chan []byte
	relay    *Relay
	playerID string
}

func NewConnection(conn *websocket.Conn, relay *Relay) *Connection {
	return &Connection{
		conn:  conn,
		send:  make(chan []byte, sendBufferSize),
		relay: relay,
	}
}

// Send queues a frame without blocking. A full buffer drops the frame.
func (c *Connection) Send(data []byte) bool {
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

func (c *Connection) readPump() {
	defer func() {
		// Leave first so the relay stops queueing before send is closed.
		c.relay.Leave(c.playerID)
		close(c.send)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxFrameSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket error for player %s: %v", c.playerID, err)
			}
			break
		}
		c.handle(message)
	}
}

// handle relays one frame. Nothing that goes wrong here may end the
// connection.
func (c *Connection) handle(message []byte) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Printf("Panic handling frame from player %s: %v", c.playerID, rec)
		}
	}()
	if err := c.relay.Handle(c.playerID, message); err != nil {
		log.Printf("Discarding frame from player %s: %v", c.playerID, err)
	}
}

func (c *Connection) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Printf("Write error for player %s: %v", c.playerID, err)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func HandleWebSocket(relay *Relay) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("WebSocket upgrade error: %v", err)
			return
		}

		c := NewConnection(conn, relay)
		c.playerID = relay.Join(c)
		go c.writePump()
		go c.readPump()
	}
}

// HandleStatus reports the roster, projectile count and skull state.
func HandleStatus(relay *Relay) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(relay.Status()); err != nil {
			log.Printf("Error writing status: %v", err)
		}
	}
}
