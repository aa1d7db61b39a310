package classifier

import (
	"os"
	"runtime"

	"github.com/nvr-ai/emojisync/classifier/ferplus"
	"github.com/pkg/errors"
)

// Config holds the model and detector settings.
type Config struct {
	// ModelPath is the FER+ ONNX model (emotion-ferplus-8.onnx).
	ModelPath string
	// CascadePath is the Haar cascade used for face detection.
	CascadePath string
	// SharedLibPath is the onnxruntime shared library.
	SharedLibPath string

	InputName  string
	OutputName string

	// MinFaceSize is the smallest face side in pixels passed to the cascade.
	MinFaceSize int
	// ScaleFactor and MinNeighbors tune the cascade.
	ScaleFactor  float64
	MinNeighbors int

	// IntraOpThreads and InterOpThreads size the onnxruntime thread pools.
	// Zero uses the runtime default.
	IntraOpThreads int
	InterOpThreads int
}

// DefaultConfig returns settings for the ONNX model zoo FER+ export.
func DefaultConfig() Config {
	return Config{
		ModelPath:     "models/emotion-ferplus-8.onnx",
		CascadePath:   "models/haarcascade_frontalface_default.xml",
		SharedLibPath: DefaultSharedLibPath(),
		InputName:     ferplus.InputName,
		OutputName:    ferplus.OutputName,
		MinFaceSize:   48,
		ScaleFactor:   1.1,
		MinNeighbors:  5,
	}
}

// Validate checks that the configured files exist.
func (c Config) Validate() error {
	if c.ModelPath == "" {
		return errors.New("classifier model path is required")
	}
	if c.CascadePath == "" {
		return errors.New("classifier cascade path is required")
	}
	if c.InputName == "" || c.OutputName == "" {
		return errors.New("classifier input and output names are required")
	}
	if c.ScaleFactor != 0 && c.ScaleFactor <= 1 {
		return errors.Errorf("classifier scale factor must be above 1, got %v", c.ScaleFactor)
	}
	if c.MinFaceSize < 0 || c.MinNeighbors < 0 || c.IntraOpThreads < 0 || c.InterOpThreads < 0 {
		return errors.New("classifier sizes and thread counts must not be negative")
	}
	for name, path := range map[string]string{"model": c.ModelPath, "cascade": c.CascadePath} {
		if _, err := os.Stat(path); err != nil {
			return errors.Wrapf(err, "classifier %s file", name)
		}
	}
	return nil
}

// DefaultSharedLibPath returns the usual onnxruntime library location for the
// current platform. It is empty when the platform has no known default.
func DefaultSharedLibPath() string {
	if p := os.Getenv("ONNXRUNTIME_SHARED_LIBRARY_PATH"); p != "" {
		return p
	}
	switch runtime.GOOS {
	case "windows":
		return "third_party/onnxruntime.dll"
	case "darwin":
		return "third_party/libonnxruntime.dylib"
	case "linux":
		if runtime.GOARCH == "arm64" {
			return "third_party/onnxruntime_arm64.so"
		}
		return "third_party/onnxruntime.so"
	}
	return ""
}
