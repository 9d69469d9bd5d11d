package render

import (
	"fmt"
	"log"
	"math"
	"os"
	"sync"

	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
)

// FontCache parses the label font once and keeps one face per size. Faces
// are not safe for concurrent use, so every use goes through the cache
// lock.
type FontCache struct {
	mu      sync.Mutex
	newFace func(size float64) (font.Face, error)
	faces   map[float64]font.Face
}

// NewFontCache loads the font at path, falling back to Go Regular when path
// is empty or can't be parsed. TrueType files go through freetype, anything
// else (CFF-flavoured OpenType) through x/image.
func NewFontCache(path string) (*FontCache, error) {
	def, err := truetype.Parse(goregular.TTF)
	if err != nil {
		return nil, fmt.Errorf("failed to parse default font: %w", err)
	}
	c := &FontCache{newFace: trueTypeFaces(def), faces: make(map[float64]font.Face)}
	if path == "" {
		return c, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		log.Printf("[Fonts] failed to read %s, using default: %v", path, err)
		return c, nil
	}
	if f, err := truetype.Parse(data); err == nil {
		c.newFace = trueTypeFaces(f)
		return c, nil
	}
	f, err := opentype.Parse(data)
	if err != nil {
		log.Printf("[Fonts] %s is not a usable font, using default: %v", path, err)
		return c, nil
	}
	c.newFace = func(size float64) (font.Face, error) {
		return opentype.NewFace(f, &opentype.FaceOptions{Size: size, DPI: 72, Hinting: font.HintingNone})
	}
	return c, nil
}

func trueTypeFaces(f *truetype.Font) func(float64) (font.Face, error) {
	return func(size float64) (font.Face, error) {
		return truetype.NewFace(f, &truetype.Options{Size: size, Hinting: font.HintingNone}), nil
	}
}

// face returns the face for size. Callers hold c.mu.
func (c *FontCache) face(size float64) font.Face {
	size = math.Max(1, math.Round(size*4)/4)
	if f, ok := c.faces[size]; ok {
		return f
	}
	f, err := c.newFace(size)
	if err != nil {
		log.Printf("[Fonts] no face at %.2fpt, using default: %v", size, err)
		def, _ := truetype.Parse(goregular.TTF)
		f = truetype.NewFace(def, &truetype.Options{Size: size, Hinting: font.HintingNone})
	}
	c.faces[size] = f
	return f
}

// With runs fn with the face for size while holding the cache lock.
func (c *FontCache) With(size float64, fn func(font.Face)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fn(c.face(size))
}

// Width implements label.Measurer.
func (c *FontCache) Width(text string, size float64) float64 {
	var w float64
	c.With(size, func(f font.Face) {
		w = float64(font.MeasureString(f, text)) / 64
	})
	return w
}

// VMetrics implements label.Measurer.
func (c *FontCache) VMetrics(size float64) (ascent, descent float64) {
	c.With(size, func(f font.Face) {
		m := f.Metrics()
		ascent = float64(m.Ascent) / 64
		descent = float64(m.Descent) / 64
	})
	return ascent, descent
}
