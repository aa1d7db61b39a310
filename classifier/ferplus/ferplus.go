// Package ferplus converts between images, tensors and emotion scores for the
// FER+ emotion recognition model (64x64 grayscale in, 8 logits out).
package ferplus

import (
	"image"
	"image/color"

	"github.com/chewxy/math32"
	"github.com/nfnt/resize"
	"github.com/nvr-ai/emojisync/emotion"
	"github.com/pkg/errors"
)

const (
	// InputWidth and InputHeight are the model input dimensions.
	InputWidth  = 64
	InputHeight = 64
	// InputSize is the number of floats in the 1x1x64x64 input tensor.
	InputSize = InputWidth * InputHeight
	// OutputSize is the number of logits in the 1x8 output tensor.
	OutputSize = 8

	// InputName and OutputName are the graph node names of the ONNX model zoo export.
	InputName  = "Input3"
	OutputName = "Plus692_Output_0"
)

// Contempt has no counterpart in the emotion set and is dropped.
const Contempt = "contempt"

// Labels are the FER+ classes in output order.
var Labels = [OutputSize]string{
	string(emotion.Neutral),
	string(emotion.Happiness),
	string(emotion.Surprise),
	string(emotion.Sadness),
	string(emotion.Anger),
	string(emotion.Disgust),
	string(emotion.Fear),
	Contempt,
}

// Preprocess resizes img to 64x64, converts it to grayscale and writes the raw
// 0-255 intensities into dst in row-major order.
func Preprocess(img image.Image, dst []float32) error {
	if img == nil {
		return errors.New("image is nil")
	}
	if b := img.Bounds(); b.Dx() <= 0 || b.Dy() <= 0 {
		return errors.Errorf("invalid image dimensions: %dx%d", b.Dx(), b.Dy())
	}
	if len(dst) < InputSize {
		return errors.Errorf("destination holds %d floats, needs %d", len(dst), InputSize)
	}

	resized := resize.Resize(InputWidth, InputHeight, img, resize.Bilinear)
	bounds := resized.Bounds()

	i := 0
	for y := bounds.Min.Y; y < bounds.Min.Y+InputHeight; y++ {
		for x := bounds.Min.X; x < bounds.Min.X+InputWidth; x++ {
			gray := color.GrayModel.Convert(resized.At(x, y)).(color.Gray)
			dst[i] = float32(gray.Y)
			i++
		}
	}
	return nil
}

// Softmax returns the softmax of logits, shifted by the maximum for stability.
func Softmax(logits []float32) []float32 {
	out := make([]float32, len(logits))
	if len(logits) == 0 {
		return out
	}

	maxLogit := logits[0]
	for _, v := range logits[1:] {
		maxLogit = math32.Max(maxLogit, v)
	}

	var sum float32
	for i, v := range logits {
		out[i] = math32.Exp(v - maxLogit)
		sum += out[i]
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}

// Postprocess turns the model logits into emotion scores. Contempt is removed
// and the other probabilities renormalised to sum to one.
func Postprocess(logits []float32) (emotion.Scores, error) {
	if len(logits) != OutputSize {
		return nil, errors.Errorf("expected %d logits, got %d", OutputSize, len(logits))
	}
	for i, v := range logits {
		if math32.IsNaN(v) || math32.IsInf(v, 0) {
			return nil, errors.Errorf("logit %d (%s) is not finite", i, Labels[i])
		}
	}

	probs := Softmax(logits)

	var kept float32
	for i, p := range probs {
		if Labels[i] != Contempt {
			kept += p
		}
	}
	if kept <= 0 {
		return nil, errors.New("all probability mass is on contempt")
	}

	scores := make(emotion.Scores, len(emotion.All()))
	for i, p := range probs {
		if Labels[i] == Contempt {
			continue
		}
		scores[emotion.Emotion(Labels[i])] = float64(p / kept)
	}
	return scores, nil
}
