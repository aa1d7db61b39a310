//go:build freetype

package highgui

import (
	"image"
	"image/color"
	"os"

	"github.com/nvr-ai/emojisync/viewer"
	"github.com/pkg/errors"
	"gocv.io/x/gocv"
	"gocv.io/x/gocv/contrib"
)

// fontCandidates are tried in order when no font path is configured.
var fontCandidates = []string{
	"/usr/share/fonts/truetype/noto/NotoEmoji-Regular.ttf",
	"/usr/share/fonts/truetype/noto/NotoSansSymbols2-Regular.ttf",
	"/usr/share/fonts/truetype/dejavu/DejaVuSans.ttf",
}

type freeType struct {
	ft     contrib.FreeType2
	height int
}

func newRenderer(cfg viewer.Config) (renderer, error) {
	path := cfg.FontPath
	if path == "" {
		path = firstExisting(fontCandidates)
	}
	if path == "" {
		return nil, errors.New("no emoji-capable font found; set viewer.font_path")
	}
	if _, err := os.Stat(path); err != nil {
		return nil, errors.Wrapf(err, "font %s", path)
	}

	ft := contrib.NewFreeType2()
	ft.LoadFontData(path, 0)
	return &freeType{ft: ft, height: cfg.FontSize}, nil
}

func (f *freeType) measure(text string) image.Point {
	size, _ := f.ft.GetTextSize(text, f.height, -1)
	return size
}

func (f *freeType) draw(img *gocv.Mat, text string, org image.Point, c color.RGBA) {
	f.ft.PutText(img, text, org, f.height, c, -1, gocv.LineAA, true)
}

func (f *freeType) glyphs() bool { return true }

func (f *freeType) Close() error { return f.ft.Close() }

func firstExisting(paths []string) string {
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}
