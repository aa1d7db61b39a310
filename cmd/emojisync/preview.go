package main

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"runtime"
	"time"

	"github.com/nvr-ai/emojisync/camera"
	"github.com/nvr-ai/emojisync/classifier"
	"github.com/nvr-ai/emojisync/emotion"
	"github.com/spf13/cobra"
	"gocv.io/x/gocv"
)

func previewCmd(a *app) *cobra.Command {
	var labels bool

	cmd := &cobra.Command{
		Use:   "preview",
		Short: "Show the camera feed with detected faces",
		Long: `Opens a window with the raw camera feed and a box around every detected
face. With --labels the largest face is also classified. Press ESC to quit.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			// HighGUI must stay on one OS thread.
			runtime.LockOSThread()
			defer runtime.UnlockOSThread()

			clf, err := classifier.New(classifierConfig(a.cfg.Classifier), a.logger)
			if err != nil {
				return err
			}
			defer clf.Close()

			camCfg := cameraConfig(a.cfg.Camera)
			camCfg.FPS = 0
			src, err := camera.Open(camCfg, a.logger)
			if err != nil {
				return err
			}
			defer src.Close()

			window := gocv.NewWindow("EmojiSync preview")
			defer window.Close()

			// color for the rect when faces detected
			blue := color.RGBA{0, 0, 255, 0}
			green := color.RGBA{0, 255, 0, 0}

			// FPS tracking variables
			fps := 0.0
			frameCount := 0
			lastTime := time.Now()

			ctx := cmd.Context()
			fmt.Printf("start reading camera device: %v\n", camCfg.Device)
			for ctx.Err() == nil {
				frame, err := src.Next(ctx)
				if err != nil {
					if ctx.Err() != nil {
						return nil
					}
					return err
				}

				frameCount++
				if elapsed := time.Since(lastTime).Seconds(); elapsed >= 1.0 {
					fps = float64(frameCount) / elapsed
					frameCount = 0
					lastTime = time.Now()
				}

				rects := clf.DetectFaces(*frame)
				for _, r := range rects {
					gocv.Rectangle(frame, r, blue, 3)
				}

				if labels && len(rects) > 0 {
					scores, err := clf.Classify(ctx, frame)
					if err != nil && !errors.Is(err, emotion.ErrNoFace) {
						_ = frame.Close()
						return err
					}
					if err == nil {
						gocv.PutText(frame, string(emotion.Resolve(scores)), image.Pt(10, 60),
							gocv.FontHersheyPlain, 2, green, 2)
					}
				}

				gocv.PutText(frame, fmt.Sprintf("faces: %d  fps: %.1f", len(rects), fps), image.Pt(10, 25),
					gocv.FontHersheyPlain, 1.5, green, 2)

				window.IMShow(*frame)
				_ = frame.Close()
				if window.WaitKey(1) == 27 {
					return nil
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&labels, "labels", false, "Classify the largest face and draw its label")
	return cmd
}
