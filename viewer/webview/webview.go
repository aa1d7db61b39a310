// Package webview opens the web viewer's page in an embedded native window.
package webview

import (
	"errors"

	"github.com/nvr-ai/emojisync/viewer"
	webview "github.com/webview/webview_go"
)

// Open creates the window. It satisfies viewer.HostFactory and must be called
// on the thread that will run the event loop.
func Open(cfg viewer.Config) (viewer.Host, error) {
	w := webview.New(false)
	if w == nil {
		return nil, errors.New("webview: failed to create window")
	}
	w.SetTitle(cfg.Title)
	w.SetSize(cfg.Width, cfg.Height, webview.HintNone)
	return w, nil
}
