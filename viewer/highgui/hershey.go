//go:build !freetype

package highgui

import (
	"image"
	"image/color"

	"github.com/nvr-ai/emojisync/viewer"
	"gocv.io/x/gocv"
)

// hersheyBaseHeight is the cap height in pixels of FontHersheySimplex at scale 1.
const hersheyBaseHeight = 22.0

type hershey struct {
	scale     float64
	thickness int
}

func newRenderer(cfg viewer.Config) (renderer, error) {
	return newHershey(cfg.FontSize), nil
}

func newHershey(fontSize int) *hershey {
	scale := float64(fontSize) / hersheyBaseHeight
	thickness := int(scale + 0.5)
	if thickness < 1 {
		thickness = 1
	}
	return &hershey{scale: scale, thickness: thickness}
}

func (h *hershey) measure(text string) image.Point {
	return gocv.GetTextSize(text, gocv.FontHersheySimplex, h.scale, h.thickness)
}

func (h *hershey) draw(img *gocv.Mat, text string, org image.Point, c color.RGBA) {
	gocv.PutText(img, text, org, gocv.FontHersheySimplex, h.scale, c, h.thickness)
}

func (h *hershey) glyphs() bool { return false }

func (h *hershey) Close() error { return nil }
