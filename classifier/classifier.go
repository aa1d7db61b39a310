// Package classifier scores the facial emotion of video frames. Faces are
// found with an OpenCV Haar cascade and the largest one is classified by the
// FER+ model on onnxruntime.
package classifier

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"sync"

	"github.com/nvr-ai/emojisync/classifier/ferplus"
	"github.com/nvr-ai/emojisync/emotion"
	"github.com/pkg/errors"
	"gocv.io/x/gocv"
)

// Classifier is safe for concurrent use; calls are serialised because the
// session tensors are shared.
type Classifier struct {
	cfg     Config
	logger  *slog.Logger
	mu      sync.Mutex
	cascade gocv.CascadeClassifier
	session *session
	closed  bool
}

// New loads the cascade and the model.
func New(cfg Config, logger *slog.Logger) (*Classifier, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ScaleFactor == 0 {
		cfg.ScaleFactor = DefaultConfig().ScaleFactor
	}

	cascade := gocv.NewCascadeClassifier()
	if !cascade.Load(cfg.CascadePath) {
		_ = cascade.Close()
		return nil, errors.Errorf("failed to read cascade file %s", cfg.CascadePath)
	}

	s, err := newSession(cfg)
	if err != nil {
		_ = cascade.Close()
		return nil, err
	}

	logger.Info("emotion classifier loaded",
		slog.String("model", cfg.ModelPath),
		slog.String("cascade", cfg.CascadePath),
		slog.Int("min_face", cfg.MinFaceSize))
	return &Classifier{cfg: cfg, logger: logger, cascade: cascade, session: s}, nil
}

// Classify scores the largest face in frame. It returns an error wrapping
// emotion.ErrNoFace when no face is found.
func (c *Classifier) Classify(ctx context.Context, frame *gocv.Mat) (emotion.Scores, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if frame == nil || frame.Empty() {
		return nil, errors.New("empty frame")
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, errors.New("classifier closed")
	}

	faces := c.detectFaces(*frame)
	if len(faces) == 0 {
		return nil, emotion.ErrNoFace
	}
	face := largestFace(faces)

	region := frame.Region(face)
	crop := region.Clone()
	_ = region.Close()
	defer crop.Close()

	img, err := crop.ToImage()
	if err != nil {
		return nil, errors.Wrap(err, "failed to convert face region")
	}

	c.logger.Debug("face detected", slog.Int("faces", len(faces)), slog.String("box", face.String()))
	return c.scoreFace(img)
}

// ClassifyFile reads a still image and classifies it.
func (c *Classifier) ClassifyFile(ctx context.Context, path string) (emotion.Scores, error) {
	img := gocv.IMRead(path, gocv.IMReadColor)
	defer img.Close()
	if img.Empty() {
		return nil, errors.Errorf("failed to read image %s", path)
	}
	return c.Classify(ctx, &img)
}

// DetectFaces returns every face the cascade finds in frame.
func (c *Classifier) DetectFaces(frame gocv.Mat) []image.Rectangle {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	return c.detectFaces(frame)
}

func (c *Classifier) detectFaces(frame gocv.Mat) []image.Rectangle {
	minSize := image.Pt(c.cfg.MinFaceSize, c.cfg.MinFaceSize)
	return c.cascade.DetectMultiScaleWithParams(frame, c.cfg.ScaleFactor, c.cfg.MinNeighbors, 0, minSize, image.Pt(0, 0))
}

// scoreFace must be called with c.mu held.
func (c *Classifier) scoreFace(face image.Image) (emotion.Scores, error) {
	if err := ferplus.Preprocess(face, c.session.input.GetData()); err != nil {
		return nil, errors.Wrap(err, "failed to preprocess face")
	}
	logits, err := c.session.run()
	if err != nil {
		return nil, err
	}
	scores, err := ferplus.Postprocess(logits)
	if err != nil {
		return nil, errors.Wrap(err, "failed to postprocess logits")
	}
	return scores, nil
}

// Close releases the cascade and the model. Safe to call more than once.
func (c *Classifier) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true

	var errs []error
	if err := c.cascade.Close(); err != nil {
		errs = append(errs, errors.Wrap(err, "cascade"))
	}
	if err := c.session.Close(); err != nil {
		errs = append(errs, errors.Wrap(err, "session"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("failed to close classifier: %v", errs)
	}
	return nil
}

// largestFace returns the rectangle with the largest area. Ties keep the
// first one. faces must not be empty.
func largestFace(faces []image.Rectangle) image.Rectangle {
	best := faces[0]
	for _, r := range faces[1:] {
		if r.Dx()*r.Dy() > best.Dx()*best.Dy() {
			best = r
		}
	}
	return best
}
