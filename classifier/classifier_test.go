package classifier

import (
	"image"
	"os"
	"path/filepath"
	"testing"

	"github.com/nvr-ai/emojisync/classifier/ferplus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLargestFace(t *testing.T) {
	tests := []struct {
		name  string
		faces []image.Rectangle
		want  image.Rectangle
	}{
		{
			name:  "single",
			faces: []image.Rectangle{image.Rect(0, 0, 10, 10)},
			want:  image.Rect(0, 0, 10, 10),
		},
		{
			name:  "largest wins",
			faces: []image.Rectangle{image.Rect(0, 0, 10, 10), image.Rect(50, 50, 150, 140), image.Rect(5, 5, 40, 40)},
			want:  image.Rect(50, 50, 150, 140),
		},
		{
			name:  "tie keeps first",
			faces: []image.Rectangle{image.Rect(0, 0, 20, 20), image.Rect(100, 100, 120, 120)},
			want:  image.Rect(0, 0, 20, 20),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, largestFace(tt.faces))
		})
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, ferplus.InputName, cfg.InputName)
	assert.Equal(t, ferplus.OutputName, cfg.OutputName)
	assert.Greater(t, cfg.ScaleFactor, 1.0)
}

func TestConfigValidate(t *testing.T) {
	dir := t.TempDir()
	model := filepath.Join(dir, "model.onnx")
	cascade := filepath.Join(dir, "cascade.xml")
	require.NoError(t, os.WriteFile(model, []byte("onnx"), 0o600))
	require.NoError(t, os.WriteFile(cascade, []byte("<xml/>"), 0o600))

	valid := DefaultConfig()
	valid.ModelPath = model
	valid.CascadePath = cascade
	require.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{name: "no model", mutate: func(c *Config) { c.ModelPath = "" }},
		{name: "missing model file", mutate: func(c *Config) { c.ModelPath = filepath.Join(dir, "nope.onnx") }},
		{name: "missing cascade file", mutate: func(c *Config) { c.CascadePath = filepath.Join(dir, "nope.xml") }},
		{name: "no input name", mutate: func(c *Config) { c.InputName = "" }},
		{name: "scale factor too small", mutate: func(c *Config) { c.ScaleFactor = 1 }},
		{name: "negative threads", mutate: func(c *Config) { c.IntraOpThreads = -1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestDefaultSharedLibPathFromEnv(t *testing.T) {
	t.Setenv("ONNXRUNTIME_SHARED_LIBRARY_PATH", "/opt/ort/libonnxruntime.so")
	assert.Equal(t, "/opt/ort/libonnxruntime.so", DefaultSharedLibPath())
}
