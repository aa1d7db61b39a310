// Package highgui implements viewer.Surface on an OpenCV HighGUI window.
//
// Text is drawn with the built-in Hershey fonts, which only cover ASCII, so
// the emotion label is shown instead of the emoji glyph. Building with the
// freetype tag (OpenCV contrib required) renders the glyph with a TrueType
// font instead.
package highgui

import (
	"image"
	"image/color"
	"time"

	"github.com/nvr-ai/emojisync/viewer"
	"github.com/pkg/errors"
	"gocv.io/x/gocv"
)

// keyEscape is the WaitKey code of the ESC key.
const keyEscape = 27

// renderer draws a single line of text onto a canvas.
type renderer interface {
	// measure returns the width and height of text in pixels.
	measure(text string) image.Point
	draw(img *gocv.Mat, text string, org image.Point, c color.RGBA)
	// glyphs reports whether non-ASCII glyphs can be drawn.
	glyphs() bool
	Close() error
}

// Surface is a HighGUI window showing one line of text centred on a solid
// background. It must be used from a single OS thread.
type Surface struct {
	cfg    viewer.Config
	window *gocv.Window
	canvas gocv.Mat
	text   renderer
	size   image.Point
}

// Open creates the window. It satisfies viewer.SurfaceFactory.
func Open(cfg viewer.Config) (viewer.Surface, error) {
	text, err := newRenderer(cfg)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load font")
	}

	window := gocv.NewWindow(cfg.Title)
	s := &Surface{
		cfg:    cfg,
		window: window,
		text:   text,
		size:   image.Pt(cfg.Width, cfg.Height),
	}
	s.canvas = s.blank(s.size)
	window.ResizeWindow(s.size.X, s.size.Y)
	return s, nil
}

// Show redraws the canvas with d. The canvas grows when the text plus padding
// does not fit.
func (s *Surface) Show(d viewer.Display) error {
	text := displayText(d, s.text.glyphs())
	extent := s.text.measure(text)

	want := fitCanvas(s.size, extent, s.cfg.Padding)
	if want != s.size {
		if err := s.canvas.Close(); err != nil {
			return errors.Wrap(err, "failed to release canvas")
		}
		s.size = want
		s.canvas = s.blank(want)
		s.window.ResizeWindow(want.X, want.Y)
	} else {
		s.canvas.SetTo(scalar(s.cfg.BackgroundColor))
	}

	if text != "" {
		s.text.draw(&s.canvas, text, centre(s.size, extent), s.cfg.TextColor)
	}
	s.window.IMShow(s.canvas)
	return nil
}

// Wait pumps window events for d. It returns false when ESC was pressed or the
// window was closed.
func (s *Surface) Wait(d time.Duration) bool {
	ms := int(d.Milliseconds())
	if ms < 1 {
		ms = 1
	}
	if s.window.WaitKey(ms) == keyEscape {
		return false
	}
	return s.window.IsOpen()
}

// Close destroys the window and releases the canvas.
func (s *Surface) Close() error {
	var errs []error
	if err := s.text.Close(); err != nil {
		errs = append(errs, errors.Wrap(err, "font"))
	}
	if err := s.canvas.Close(); err != nil {
		errs = append(errs, errors.Wrap(err, "canvas"))
	}
	if err := s.window.Close(); err != nil {
		errs = append(errs, errors.Wrap(err, "window"))
	}
	if len(errs) > 0 {
		return errors.Errorf("failed to close surface: %v", errs)
	}
	return nil
}

func (s *Surface) blank(size image.Point) gocv.Mat {
	return gocv.NewMatWithSizeFromScalar(scalar(s.cfg.BackgroundColor), size.Y, size.X, gocv.MatTypeCV8UC3)
}

// displayText picks the glyph when it can be drawn and the label otherwise.
func displayText(d viewer.Display, glyphs bool) string {
	if glyphs || isASCII(d.Glyph) {
		return d.Glyph
	}
	return string(d.Label)
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= 0x80 {
			return false
		}
	}
	return true
}

// fitCanvas returns the smallest canvas at least as large as current that
// holds extent with padding on every side.
func fitCanvas(current, extent image.Point, padding int) image.Point {
	need := image.Pt(extent.X+2*padding, extent.Y+2*padding)
	if need.X > current.X {
		current.X = need.X
	}
	if need.Y > current.Y {
		current.Y = need.Y
	}
	return current
}

// centre returns the bottom-left origin that centres extent in size.
func centre(size, extent image.Point) image.Point {
	return image.Pt((size.X-extent.X)/2, (size.Y+extent.Y)/2)
}

// scalar converts c to an OpenCV BGR scalar.
func scalar(c color.RGBA) gocv.Scalar {
	return gocv.NewScalar(float64(c.B), float64(c.G), float64(c.R), 0)
}
