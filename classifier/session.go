package classifier

import (
	"os"
	"sync"

	"github.com/nvr-ai/emojisync/classifier/ferplus"
	"github.com/pkg/errors"
	ort "github.com/yalue/onnxruntime_go"
)

var ortEnv struct {
	sync.Mutex
	refs int
}

// acquireEnvironment initialises the process-wide onnxruntime environment on
// first use. Every call must be paired with releaseEnvironment.
func acquireEnvironment(libPath string) error {
	ortEnv.Lock()
	defer ortEnv.Unlock()
	if ortEnv.refs == 0 && !ort.IsInitialized() {
		if _, err := os.Stat(libPath); err != nil {
			return errors.Wrapf(err, "onnxruntime library not found at %q", libPath)
		}
		ort.SetSharedLibraryPath(libPath)
		if err := ort.InitializeEnvironment(); err != nil {
			return errors.Wrap(err, "failed to initialize onnxruntime environment")
		}
	}
	ortEnv.refs++
	return nil
}

func releaseEnvironment() error {
	ortEnv.Lock()
	defer ortEnv.Unlock()
	if ortEnv.refs == 0 {
		return nil
	}
	ortEnv.refs--
	if ortEnv.refs == 0 && ort.IsInitialized() {
		return ort.DestroyEnvironment()
	}
	return nil
}

// session is an onnxruntime session with preallocated 1x1x64x64 input and
// 1x8 output tensors.
type session struct {
	session *ort.AdvancedSession
	input   *ort.Tensor[float32]
	output  *ort.Tensor[float32]
}

func newSession(cfg Config) (*session, error) {
	if err := acquireEnvironment(cfg.SharedLibPath); err != nil {
		return nil, err
	}

	input, err := ort.NewEmptyTensor[float32](ort.NewShape(1, 1, ferplus.InputHeight, ferplus.InputWidth))
	if err != nil {
		_ = releaseEnvironment()
		return nil, errors.Wrap(err, "failed to create input tensor")
	}
	output, err := ort.NewEmptyTensor[float32](ort.NewShape(1, ferplus.OutputSize))
	if err != nil {
		input.Destroy()
		_ = releaseEnvironment()
		return nil, errors.Wrap(err, "failed to create output tensor")
	}

	options, err := ort.NewSessionOptions()
	if err != nil {
		input.Destroy()
		output.Destroy()
		_ = releaseEnvironment()
		return nil, errors.Wrap(err, "failed to create session options")
	}
	defer options.Destroy()

	// Zero keeps the onnxruntime default for either pool.
	options.SetIntraOpNumThreads(cfg.IntraOpThreads)
	options.SetInterOpNumThreads(cfg.InterOpThreads)
	options.SetGraphOptimizationLevel(ort.GraphOptimizationLevelEnableExtended)

	s, err := ort.NewAdvancedSession(
		cfg.ModelPath,
		[]string{cfg.InputName},
		[]string{cfg.OutputName},
		[]ort.ArbitraryTensor{input},
		[]ort.ArbitraryTensor{output},
		options,
	)
	if err != nil {
		input.Destroy()
		output.Destroy()
		_ = releaseEnvironment()
		return nil, errors.Wrapf(err, "failed to load model %s", cfg.ModelPath)
	}

	return &session{session: s, input: input, output: output}, nil
}

// run executes the model on the current contents of the input tensor and
// returns a copy of the logits.
func (s *session) run() ([]float32, error) {
	if err := s.session.Run(); err != nil {
		return nil, errors.Wrap(err, "inference failed")
	}
	return append([]float32(nil), s.output.GetData()...), nil
}

func (s *session) Close() error {
	if s.input != nil {
		s.input.Destroy()
		s.input = nil
	}
	if s.output != nil {
		s.output.Destroy()
		s.output = nil
	}
	if s.session != nil {
		if err := s.session.Destroy(); err != nil {
			return errors.Wrap(err, "failed to destroy session")
		}
		s.session = nil
	}
	return releaseEnvironment()
}
