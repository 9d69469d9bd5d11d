package broadcast

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10
	maxMessageSize = 1 << 20
	sendBuffer     = 64
)

// Transport carries messages between participants. Like the session
// channel it models, a participant never receives its own messages.
type Transport interface {
	Send(ctx context.Context, m Message) error
	OnReceive(fn func(Message))
}

type peer struct {
	ws      *websocket.Conn
	send    chan []byte
	canSend bool
	once    sync.Once
}

func (p *peer) close() {
	p.once.Do(func() { close(p.send) })
}

// Hub is the server side of the websocket channel. Messages from a client
// are relayed to every other client and handed to the local receiver; the
// hub's own messages go to every client.
type Hub struct {
	upgrader websocket.Upgrader

	mu      sync.Mutex
	peers   map[*peer]struct{}
	receive func(Message)
	closed  bool
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		peers: make(map[*peer]struct{}),
	}
}

// OnReceive implements Transport.
func (h *Hub) OnReceive(fn func(Message)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.receive = fn
}

// Send implements Transport.
func (h *Hub) Send(_ context.Context, m Message) error {
	data, err := Encode(m)
	if err != nil {
		return err
	}
	h.fanOut(nil, data)
	return nil
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.peers)
}

// Serve upgrades the request and serves the connection until it closes.
// Clients without canSend only listen; whatever they send is dropped.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, canSend bool) error {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return fmt.Errorf("failed to upgrade connection: %w", err)
	}
	p := &peer{ws: ws, send: make(chan []byte, sendBuffer), canSend: canSend}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		ws.Close()
		return fmt.Errorf("hub closed")
	}
	h.peers[p] = struct{}{}
	n := len(h.peers)
	h.mu.Unlock()
	log.Printf("[Broadcast] client %s connected (%d total)", r.RemoteAddr, n)

	go h.writePump(p)
	h.readPump(p)

	h.remove(p)
	log.Printf("[Broadcast] client %s disconnected", r.RemoteAddr)
	return nil
}

func (h *Hub) remove(p *peer) {
	h.mu.Lock()
	if _, ok := h.peers[p]; ok {
		delete(h.peers, p)
		p.close()
	}
	h.mu.Unlock()
}

func (h *Hub) readPump(p *peer) {
	defer p.ws.Close()
	p.ws.SetReadLimit(maxMessageSize)
	p.ws.SetReadDeadline(time.Now().Add(pongWait))
	p.ws.SetPongHandler(func(string) error {
		return p.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := p.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("[Broadcast] read error: %v", err)
			}
			return
		}
		if !p.canSend {
			log.Printf("[Broadcast] dropping message from listen-only client")
			continue
		}
		m, ok, err := Decode(data)
		if err != nil {
			log.Printf("[Broadcast] %v", err)
			continue
		}
		if !ok {
			continue
		}
		h.fanOut(p, data)

		h.mu.Lock()
		receive := h.receive
		h.mu.Unlock()
		if receive != nil {
			receive(m)
		}
	}
}

func (h *Hub) writePump(p *peer) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		p.ws.Close()
	}()
	for {
		select {
		case data, ok := <-p.send:
			p.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				p.ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := p.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			p.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := p.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// fanOut queues data for every client except from. Clients that can't keep
// up are disconnected.
func (h *Hub) fanOut(from *peer, data []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for p := range h.peers {
		if p == from {
			continue
		}
		select {
		case p.send <- data:
		default:
			log.Printf("[Broadcast] client too slow, disconnecting")
			delete(h.peers, p)
			p.close()
		}
	}
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for p := range h.peers {
		delete(h.peers, p)
		p.close()
	}
}
