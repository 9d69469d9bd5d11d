package render

import (
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/image/draw"

	"github.com/jengzang/routecast/internal/models"
)

// TokenStore is where marker tokens live.
type TokenStore interface {
	GetToken(ctx context.Context, sceneID, id string) (*models.Token, error)
	UpdateTokenPosition(ctx context.Context, sceneID, id string, x, y float64) error
}

type loadState int

const (
	loading loadState = iota
	ready
	failed
)

type imageEntry struct {
	state loadState
	img   image.Image
}

// AssetCache resolves marker images and sound files from the asset
// directory. Results, failures included, are kept for the life of the
// process.
type AssetCache struct {
	dir    string
	tokens TokenStore

	mu     sync.Mutex
	images map[string]*imageEntry
	scaled map[scaledKey]image.Image
	sounds map[string]string // ref -> path, "" for failed
}

type scaledKey struct {
	ref  string
	size int
}

// NewAssetCache creates a cache rooted at dir.
func NewAssetCache(dir string, tokens TokenStore) *AssetCache {
	return &AssetCache{
		dir:    dir,
		tokens: tokens,
		images: make(map[string]*imageEntry),
		scaled: make(map[scaledKey]image.Image),
		sounds: make(map[string]string),
	}
}

// resolvePath maps an asset reference to a file under the asset directory.
// References may not escape it.
func (a *AssetCache) resolvePath(ref string) (string, bool) {
	ref = strings.TrimSpace(ref)
	if ref == "" || a.dir == "" {
		return "", false
	}
	clean := filepath.Clean("/" + filepath.FromSlash(ref))
	return filepath.Join(a.dir, clean), true
}

func isImagePath(ref string) bool {
	switch strings.ToLower(filepath.Ext(ref)) {
	case ".png", ".jpg", ".jpeg":
		return true
	}
	return false
}

// MarkerImage returns the sprite for a marker reference. The first call
// starts loading in the background; until it finishes ok is false and
// pending is true. A failed load reports neither.
func (a *AssetCache) MarkerImage(sceneID, ref string, onReady func()) (img image.Image, ok, pending bool) {
	a.mu.Lock()
	e, found := a.images[ref]
	if !found {
		e = &imageEntry{state: loading}
		a.images[ref] = e
	}
	state, im := e.state, e.img
	a.mu.Unlock()

	if !found {
		go a.loadMarker(sceneID, ref, onReady)
	}
	switch state {
	case ready:
		return im, true, false
	case loading:
		return nil, false, true
	default:
		return nil, false, false
	}
}

func (a *AssetCache) loadMarker(sceneID, ref string, onReady func()) {
	img, err := a.decodeMarker(sceneID, ref)

	a.mu.Lock()
	e := a.images[ref]
	if err != nil {
		log.Printf("[Assets] marker %s unavailable, using plain dot: %v", ref, err)
		e.state = failed
	} else {
		e.state = ready
		e.img = img
	}
	a.mu.Unlock()

	if onReady != nil {
		onReady()
	}
}

func (a *AssetCache) decodeMarker(sceneID, ref string) (image.Image, error) {
	src := ref
	if !isImagePath(ref) {
		if a.tokens == nil {
			return nil, fmt.Errorf("no token store")
		}
		tok, err := a.tokens.GetToken(context.Background(), sceneID, ref)
		if err != nil {
			return nil, fmt.Errorf("failed to look up token: %w", err)
		}
		if tok == nil || tok.Image == "" {
			return nil, fmt.Errorf("token %s has no image", ref)
		}
		src = tok.Image
	}
	path, ok := a.resolvePath(src)
	if !ok {
		return nil, fmt.Errorf("no asset directory for %s", src)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return img, nil
}

// Scaled returns img resized so that its longer edge is size pixels.
func (a *AssetCache) Scaled(ref string, img image.Image, size int) image.Image {
	size = max(1, size)
	key := scaledKey{ref, size}
	a.mu.Lock()
	if s, ok := a.scaled[key]; ok {
		a.mu.Unlock()
		return s
	}
	a.mu.Unlock()

	b := img.Bounds()
	longest := max(b.Dx(), b.Dy(), 1)
	w := max(1, b.Dx()*size/longest)
	h := max(1, b.Dy()*size/longest)
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Over, nil)

	a.mu.Lock()
	a.scaled[key] = dst
	a.mu.Unlock()
	return dst
}

// SoundPath resolves a sound reference to a readable file, or "".
func (a *AssetCache) SoundPath(ref string) string {
	a.mu.Lock()
	if p, ok := a.sounds[ref]; ok {
		a.mu.Unlock()
		return p
	}
	a.mu.Unlock()

	p, ok := a.resolvePath(ref)
	if ok {
		if _, err := os.Stat(p); err != nil {
			log.Printf("[Assets] sound %s unavailable: %v", ref, err)
			p = ""
		}
	}
	a.mu.Lock()
	a.sounds[ref] = p
	a.mu.Unlock()
	return p
}
