package render

import (
	"context"
	"image"

	"github.com/jengzang/routecast/internal/label"
	"github.com/jengzang/routecast/internal/models"
)

type segment struct {
	a, b models.Point
}

type markerState struct {
	p       models.Point
	angle   float64
	visible bool
}

type endMark struct {
	p    models.Point
	size float64
}

// labelImage is a laid-out label. Follow-path labels carry their
// rasterized image; billboards are drawn directly.
type labelImage struct {
	placement *label.Placement
	img       image.Image
}

// Canvas is the retained drawing of one session or preview. It implements
// playback.Surface. Every method runs with the owning Context locked.
type Canvas struct {
	owner    *Context
	key      string
	routeID  string
	sceneID  string
	settings models.RouteSettings

	lines     []segment
	marker    markerState
	endX      []endMark
	label     *labelImage
	destroyed bool

	// inline builds labels synchronously instead of through the supervisor
	inline bool
}

// Line implements playback.Surface.
func (cv *Canvas) Line(a, b models.Point) {
	if cv.destroyed {
		return
	}
	cv.lines = append(cv.lines, segment{a, b})
}

// ClearLine implements playback.Surface.
func (cv *Canvas) ClearLine() {
	cv.lines = cv.lines[:0]
}

// Marker implements playback.Surface.
func (cv *Canvas) Marker(p models.Point, angle float64, visible bool) {
	cv.marker = markerState{p: p, angle: angle, visible: visible}
}

// EndX implements playback.Surface.
func (cv *Canvas) EndX(p models.Point, size float64) {
	if cv.destroyed {
		return
	}
	cv.endX = append(cv.endX, endMark{p, size})
}

// Label implements playback.Surface. The previous label is dropped right
// away; the new one is attached when its rebuild completes, unless the
// canvas has been destroyed or a newer rebuild superseded it.
func (cv *Canvas) Label(path []models.Point, s models.RouteSettings, text string) {
	if cv.destroyed {
		return
	}
	cv.label = nil

	fonts := cv.owner.fonts
	path = models.ClonePoints(path)
	build := func(ctx context.Context) any {
		li := buildLabel(ctx, fonts, path, s, text)
		if li == nil {
			return nil
		}
		return li
	}

	if cv.inline {
		if li, ok := build(context.Background()).(*labelImage); ok {
			cv.label = li
		}
		return
	}

	c := cv.owner
	c.labelOwners[cv.key] = cv
	c.labels.Submit(cv.key, label.Task{
		Build: build,
		Apply: func(t label.Ticket, result any) {
			c.mu.Lock()
			defer c.mu.Unlock()
			if cv.destroyed || !c.labels.Valid(t) {
				return
			}
			cv.label = result.(*labelImage)
		},
	})
}

// Destroy implements playback.Surface.
func (cv *Canvas) Destroy() {
	if cv.destroyed {
		return
	}
	cv.destroyed = true
	// A newer canvas of the same route may own the slot by now; its
	// rebuild must survive this one going away.
	if c := cv.owner; !cv.inline && c.labelOwners[cv.key] == cv {
		c.labels.Cancel(cv.key)
		delete(c.labelOwners, cv.key)
	}
	cv.lines = nil
	cv.endX = nil
	cv.label = nil
	cv.marker = markerState{}
}

// Destroyed reports whether Destroy has been called.
func (cv *Canvas) Destroyed() bool { return cv.destroyed }

// HasLabel reports whether a label is attached.
func (cv *Canvas) HasLabel() bool { return cv.label != nil }
