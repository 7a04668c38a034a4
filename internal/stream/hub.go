// Package stream pushes core events to browser clients over websockets.
package stream

import (
	"context"
	"net/http"
	"sync/atomic"

	"github.com/gorilla/websocket"
	"github.com/zeromicro/go-zero/core/logx"

	"coinboard/pkg/events"
)

const sendBuffer = 64

// Source is the event feed the hub relays, normally *events.Broadcaster.
type Source interface {
	Subscribe(buffer int) (<-chan events.Event, func())
}

// Hub owns the connected clients. Only the Run goroutine touches the client
// set; handlers talk to it through register and unregister.
type Hub struct {
	source     Source
	upgrader   websocket.Upgrader
	register   chan *client
	unregister chan *client
	clients    map[*client]struct{}
	// latest keeps the last event per kind so new clients start current.
	latest map[events.Kind]events.Event
	count  atomic.Int64
}

func NewHub(source Source) *Hub {
	return &Hub{
		source: source,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		register:   make(chan *client),
		unregister: make(chan *client),
		clients:    make(map[*client]struct{}),
		latest:     make(map[events.Kind]events.Event),
	}
}

// Run relays events until ctx is done, then disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	feed, cancel := h.source.Subscribe(256)
	defer cancel()
	defer h.closeAll()

	for {
		select {
		case <-ctx.Done():
			return
		case c := <-h.register:
			h.clients[c] = struct{}{}
			h.count.Store(int64(len(h.clients)))
			for _, e := range h.latest {
				c.send <- e
			}
		case c := <-h.unregister:
			h.drop(c)
		case e, ok := <-feed:
			if !ok {
				return
			}
			h.latest[e.Kind] = e
			for c := range h.clients {
				select {
				case c.send <- e:
				default:
					logx.Infof("stream: client=%s too slow, disconnecting", c.remote)
					h.drop(c)
				}
			}
		}
	}
}

// ServeHTTP upgrades the request and attaches the connection to the hub.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logx.WithContext(r.Context()).Errorf("stream: upgrade remote=%s err=%v", r.RemoteAddr, err)
		return
	}
	c := &client{
		hub:    h,
		conn:   conn,
		remote: r.RemoteAddr,
		send:   make(chan events.Event, sendBuffer),
	}
	select {
	case h.register <- c:
	case <-r.Context().Done():
		_ = conn.Close()
		return
	}
	go c.writePump()
	go c.readPump()
}

// Clients reports the number of connected clients.
func (h *Hub) Clients() int {
	return int(h.count.Load())
}

func (h *Hub) drop(c *client) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	close(c.send)
	h.count.Store(int64(len(h.clients)))
}

func (h *Hub) closeAll() {
	for c := range h.clients {
		h.drop(c)
	}
}
