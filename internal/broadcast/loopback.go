package broadcast

import (
	"context"
	"sync"
)

// Loopback is an in-process channel shared by several peers. Delivery is
// synchronous and in order.
type Loopback struct {
	mu    sync.Mutex
	peers []*LoopbackPeer
}

// NewLoopback creates an empty channel.
func NewLoopback() *Loopback {
	return &Loopback{}
}

// Join adds a participant.
func (l *Loopback) Join() *LoopbackPeer {
	l.mu.Lock()
	defer l.mu.Unlock()
	p := &LoopbackPeer{bus: l}
	l.peers = append(l.peers, p)
	return p
}

// LoopbackPeer is one participant of a Loopback. It implements Transport.
type LoopbackPeer struct {
	bus     *Loopback
	mu      sync.Mutex
	receive func(Message)
	muted   bool
}

// OnReceive implements Transport.
func (p *LoopbackPeer) OnReceive(fn func(Message)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.receive = fn
}

// SetMuted drops every message to p while muted, modelling a viewer that
// is offline.
func (p *LoopbackPeer) SetMuted(muted bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.muted = muted
}

// Send implements Transport.
func (p *LoopbackPeer) Send(_ context.Context, m Message) error {
	p.bus.mu.Lock()
	peers := append([]*LoopbackPeer(nil), p.bus.peers...)
	p.bus.mu.Unlock()

	m.Channel = Channel
	for _, other := range peers {
		if other == p {
			continue
		}
		other.mu.Lock()
		receive, muted := other.receive, other.muted
		other.mu.Unlock()
		if receive != nil && !muted {
			receive(m)
		}
	}
	return nil
}
