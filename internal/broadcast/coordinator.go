package broadcast

import (
	"context"
	"fmt"
	"log"

	"github.com/jengzang/routecast/internal/builder"
	"github.com/jengzang/routecast/internal/models"
)

// Renderer is the local viewer the coordinator drives.
type Renderer interface {
	Render(p models.PlaybackPayload) bool
	ClearRoute(routeID string)
	ClearAll()
}

// Coordinator sends playback events to everyone else and applies them
// locally, since a participant never hears its own messages.
type Coordinator struct {
	transport Transport
	local     Renderer
}

// NewCoordinator wires local to t.
func NewCoordinator(t Transport, local Renderer) *Coordinator {
	c := &Coordinator{transport: t, local: local}
	t.OnReceive(c.Handle)
	return c
}

// Play broadcasts p and starts it locally. The local playback starts even
// when the broadcast fails.
func (c *Coordinator) Play(ctx context.Context, p models.PlaybackPayload) error {
	m, err := NewPlay(p)
	if err != nil {
		return err
	}
	sendErr := c.transport.Send(ctx, m)
	c.local.Render(p)
	if sendErr != nil {
		return fmt.Errorf("failed to broadcast PLAY: %w", sendErr)
	}
	return nil
}

// Clear broadcasts the removal of routeID and removes it locally. Clearing
// a route nobody shows is a no-op everywhere.
func (c *Coordinator) Clear(ctx context.Context, sceneID, routeID string) error {
	m, err := NewClear(sceneID, routeID)
	if err != nil {
		return err
	}
	sendErr := c.transport.Send(ctx, m)
	c.local.ClearRoute(routeID)
	if sendErr != nil {
		return fmt.Errorf("failed to broadcast CLEAR: %w", sendErr)
	}
	return nil
}

// ClearAll broadcasts a full reset and applies it locally.
func (c *Coordinator) ClearAll(ctx context.Context, sceneID string) error {
	m, err := NewClearAll(sceneID)
	if err != nil {
		return err
	}
	sendErr := c.transport.Send(ctx, m)
	c.local.ClearAll()
	if sendErr != nil {
		return fmt.Errorf("failed to broadcast CLEAR_ALL: %w", sendErr)
	}
	return nil
}

// Handle applies a received message to the local renderer.
func (c *Coordinator) Handle(m Message) {
	switch m.Type {
	case TypePlay:
		p, err := m.PlayPayload()
		if err != nil {
			log.Printf("[Broadcast] %v", err)
			return
		}
		p.Settings = builder.ApplyColorNumbers(p.Settings.Normalize())
		c.local.Render(p)
	case TypeClear:
		p, err := m.ClearPayload()
		if err != nil {
			log.Printf("[Broadcast] %v", err)
			return
		}
		c.local.ClearRoute(p.RouteID)
	case TypeClearAll:
		c.local.ClearAll()
	default:
		log.Printf("[Broadcast] ignoring unknown message type %q", m.Type)
	}
}
