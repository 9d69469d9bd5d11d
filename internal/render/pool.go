package render

import (
	"context"
	"sync"

	"github.com/jengzang/routecast/internal/models"
)

// Pool keeps one Context per scene, created on first use, so a single
// process can show every scene at once.
type Pool struct {
	base Config

	mu       sync.Mutex
	contexts map[string]*Context
	running  context.Context
}

// NewPool creates a pool whose contexts share base. base.SceneID is
// ignored.
func NewPool(base Config) *Pool {
	return &Pool{base: base, contexts: make(map[string]*Context)}
}

// Get returns the context for sceneID.
func (p *Pool) Get(sceneID string) (*Context, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if c, ok := p.contexts[sceneID]; ok {
		return c, nil
	}
	cfg := p.base
	cfg.SceneID = sceneID
	c, err := NewContext(cfg)
	if err != nil {
		return nil, err
	}
	p.contexts[sceneID] = c
	if p.running != nil {
		go c.Run(p.running)
	}
	return c, nil
}

func (p *Pool) all() []*Context {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*Context, 0, len(p.contexts))
	for _, c := range p.contexts {
		out = append(out, c)
	}
	return out
}

// Render starts the playback on the payload's scene.
func (p *Pool) Render(payload models.PlaybackPayload) bool {
	c, err := p.Get(payload.SceneID)
	if err != nil {
		return false
	}
	return c.Render(payload)
}

// ClearRoute clears routeID on every scene.
func (p *Pool) ClearRoute(routeID string) {
	for _, c := range p.all() {
		c.ClearRoute(routeID)
	}
}

// ClearAll clears every scene.
func (p *Pool) ClearAll() {
	for _, c := range p.all() {
		c.ClearAll()
	}
}

// Run drives every context, including ones created later, until ctx is
// done.
func (p *Pool) Run(ctx context.Context) {
	p.mu.Lock()
	p.running = ctx
	for _, c := range p.contexts {
		go c.Run(ctx)
	}
	p.mu.Unlock()
	<-ctx.Done()
}

// Close closes every context.
func (p *Pool) Close() {
	p.mu.Lock()
	contexts := p.contexts
	p.contexts = make(map[string]*Context)
	p.mu.Unlock()
	for _, c := range contexts {
		c.Close()
	}
}
