// Package realtime exposes the broadcast bus to browsers over WebSocket.
package realtime

import (
	"context"
	"errors"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"rollcall/internal/auth"
	"rollcall/internal/broadcast"
	"rollcall/internal/model"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

var errClosed = errors.New("connection closed")

// Stream upgrades authenticated requests and registers one bus subscription per
// connection for as long as the connection lives.
type Stream struct {
	bus        *broadcast.Bus
	upgrader   websocket.Upgrader
	sendBuffer int
}

// NewStream builds the endpoint. Origins lists the browser origins allowed to
// connect; "*" allows any. Requests without an Origin header are always accepted.
func NewStream(bus *broadcast.Bus, sendBuffer int, origins []string) *Stream {
	if sendBuffer <= 0 {
		sendBuffer = 32
	}
	allowed := make(map[string]struct{}, len(origins))
	for _, o := range origins {
		allowed[o] = struct{}{}
	}
	return &Stream{
		bus:        bus,
		sendBuffer: sendBuffer,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				if origin == "" {
					return true
				}
				if _, ok := allowed["*"]; ok {
					return true
				}
				_, ok := allowed[origin]
				return ok
			},
		},
	}
}

// Handle serves GET /api/ws. It must run after auth.StreamGuard.
func (s *Stream) Handle(c *gin.Context) {
	id, ok := auth.IdentityFrom(c)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "Access denied - No token provided"})
		return
	}
	ws, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("realtime: upgrade for %s failed: %v", id.SubjectID, err)
		return
	}

	cl := newClient(ws, s.sendBuffer)
	sub := s.bus.Subscribe(string(id.Role.Name())+":"+id.SubjectID, cl.deliver)
	go cl.writePump()

	cl.readPump()
	s.bus.Unsubscribe(sub)
	cl.close()
}

type client struct {
	ws   *websocket.Conn
	send chan model.Envelope
	done chan struct{}
	once sync.Once
}

func newClient(ws *websocket.Conn, buffer int) *client {
	return &client{
		ws:   ws,
		send: make(chan model.Envelope, buffer),
		done: make(chan struct{}),
	}
}

// deliver is the bus handler. It never blocks the publisher: a frame that does
// not fit in the buffer is dropped.
func (cl *client) deliver(_ context.Context, ev model.ChangeEvent) error {
	select {
	case <-cl.done:
		return errClosed
	default:
	}
	select {
	case cl.send <- model.Envelope{Event: model.EventName, Data: ev}:
	default:
		log.Printf("realtime: send buffer full, dropping %s event", ev.Type)
	}
	return nil
}

func (cl *client) close() {
	cl.once.Do(func() {
		close(cl.done)
		_ = cl.ws.Close()
	})
}

// readPump consumes inbound frames only to keep the connection alive and to notice
// when the peer goes away. Client frames are discarded.
func (cl *client) readPump() {
	cl.ws.SetReadLimit(4096)
	_ = cl.ws.SetReadDeadline(time.Now().Add(pongWait))
	cl.ws.SetPongHandler(func(string) error {
		return cl.ws.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := cl.ws.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("realtime: read: %v", err)
			}
			return
		}
	}
}

func (cl *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		cl.close()
	}()
	for {
		select {
		case env := <-cl.send:
			_ = cl.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := cl.ws.WriteJSON(env); err != nil {
				return
			}
		case <-ticker.C:
			_ = cl.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := cl.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-cl.done:
			return
		}
	}
}
