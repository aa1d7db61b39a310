// Command emojisync shows the dominant facial emotion of a live camera feed
// as an emoji.
package main

import (
	"fmt"
	"os"
	"runtime"
)

// HighGUI and webview windows must be driven from the main thread.
func init() {
	runtime.LockOSThread()
}

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	os.Exit(Execute())
}
