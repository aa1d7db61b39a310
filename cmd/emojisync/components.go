package main

import (
	"github.com/nvr-ai/emojisync/camera"
	"github.com/nvr-ai/emojisync/classifier"
	"github.com/nvr-ai/emojisync/config"
	"github.com/nvr-ai/emojisync/status"
)

func cameraConfig(c config.CameraConfig) camera.Config {
	return camera.Config{
		Device:        c.Device,
		FPS:           c.FPS,
		Width:         c.Width,
		Height:        c.Height,
		ResizeWidth:   c.ResizeWidth,
		ResizeHeight:  c.ResizeHeight,
		MaxEmptyReads: c.MaxEmptyReads,
	}
}

func classifierConfig(c config.ClassifierConfig) classifier.Config {
	cfg := classifier.DefaultConfig()
	setIfSet(&cfg.ModelPath, c.Model)
	setIfSet(&cfg.CascadePath, c.Cascade)
	setIfSet(&cfg.SharedLibPath, c.SharedLib)
	setIfSet(&cfg.InputName, c.InputName)
	setIfSet(&cfg.OutputName, c.OutputName)
	if c.MinFaceSize > 0 {
		cfg.MinFaceSize = c.MinFaceSize
	}
	if c.ScaleFactor > 0 {
		cfg.ScaleFactor = c.ScaleFactor
	}
	if c.MinNeighbors > 0 {
		cfg.MinNeighbors = c.MinNeighbors
	}
	cfg.IntraOpThreads = c.IntraOpThreads
	cfg.InterOpThreads = c.InterOpThreads
	return cfg
}

func announcement(c config.StatusConfig) status.Announcement {
	return status.Announcement{
		TwitchUser:      c.TwitchUser,
		Title:           c.Title,
		Description:     c.Description,
		DurationMinutes: c.DurationMinutes,
		ThumbPath:       c.Thumbnail,
	}
}

func setIfSet(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
