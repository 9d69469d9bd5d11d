package render

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/jengzang/routecast/internal/models"
	"github.com/jengzang/routecast/internal/playback"
)

// tokenMover implements playback.TokenMover on top of the TokenStore.
type tokenMover struct {
	c *Context
}

// Resolve looks the token up in the background and hands it to done with
// the Context locked, like every other session callback.
func (m tokenMover) Resolve(ref string, done func(*models.Token)) {
	c := m.c
	sceneID := c.sceneID
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		tok, err := c.cfg.Tokens.GetToken(ctx, sceneID, ref)
		if err != nil {
			log.Printf("[Renderer] failed to resolve token %s: %v", ref, err)
			tok = nil
		}
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.closed || c.sceneID != sceneID {
			return
		}
		done(tok)
	}()
}

func (m tokenMover) MoveLocal(t *models.Token, topLeft models.Point) {
	moved := *t
	moved.X, moved.Y = topLeft.X, topLeft.Y
	m.c.tokens[t.ID] = moved
}

func (m tokenMover) Update(t *models.Token, topLeft models.Point) {
	if w := m.c.writer; w != nil {
		w.put(t.SceneID, t.ID, topLeft)
	}
}

type tokenKey struct {
	sceneID, id string
}

// tokenWriter persists token positions in the background. Only the newest
// position per token is kept while a write is in flight, so the final
// position always lands last.
type tokenWriter struct {
	store TokenStore

	mu      sync.Mutex
	pending map[tokenKey]models.Point
	wake    chan struct{}
	done    chan struct{}
	stopped chan struct{}
}

func newTokenWriter(store TokenStore) *tokenWriter {
	w := &tokenWriter{
		store:   store,
		pending: make(map[tokenKey]models.Point),
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	go w.loop()
	return w
}

func (w *tokenWriter) put(sceneID, id string, p models.Point) {
	w.mu.Lock()
	w.pending[tokenKey{sceneID, id}] = p
	w.mu.Unlock()
	select {
	case w.wake <- struct{}{}:
	default:
	}
}

func (w *tokenWriter) loop() {
	defer close(w.stopped)
	for {
		select {
		case <-w.wake:
			w.flush()
		case <-w.done:
			w.flush()
			return
		}
	}
}

func (w *tokenWriter) flush() {
	w.mu.Lock()
	batch := w.pending
	w.pending = make(map[tokenKey]models.Point)
	w.mu.Unlock()

	for k, p := range batch {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := w.store.UpdateTokenPosition(ctx, k.sceneID, k.id, p.X, p.Y); err != nil {
			log.Printf("[Renderer] failed to update token %s: %v", k.id, err)
		}
		cancel()
	}
}

func (w *tokenWriter) close() {
	close(w.done)
	<-w.stopped
}

// audioPlayer implements playback.AudioPlayer. The headless viewer has no
// audio device, so sounds are resolved and their lifecycle logged.
type audioPlayer struct {
	c *Context
}

func (a audioPlayer) Play(ref string, done func(playback.Sound)) {
	c := a.c
	go func() {
		path := c.assets.SoundPath(ref)
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.closed {
			return
		}
		if path == "" {
			done(nil)
			return
		}
		log.Printf("[Renderer] playing sound %s", path)
		done(&loggedSound{path: path})
	}()
}

type loggedSound struct {
	path string
}

func (s *loggedSound) Fade(volume float64, d time.Duration) {
	log.Printf("[Renderer] fading sound %s to %.0f%% over %v", s.path, volume*100, d)
}

func (s *loggedSound) Stop() {
	log.Printf("[Renderer] stopping sound %s", s.path)
}
