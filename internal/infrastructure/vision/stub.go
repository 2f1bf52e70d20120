//go:build !gocv
// +build !gocv

package vision

import (
	"context"
	"errors"

	"eyecare-bot/internal/domain/entity"
)

var errNoGoCV = errors.New("gocv build tag is not enabled")

// DNNLocalizer заглушка детектора (сборка без OpenCV).
type DNNLocalizer struct {
	inputSize int
	floor     float64
}

// NewDNNLocalizer создаёт детектор-заглушку (без OpenCV).
func NewDNNLocalizer(modelPath string, inputSize int, floor float64) (*DNNLocalizer, error) {
	_ = modelPath
	return &DNNLocalizer{inputSize: inputSize, floor: floor}, nil
}

// Locate возвращает ошибку, если сборка без тега gocv.
func (l *DNNLocalizer) Locate(ctx context.Context, imageData []byte) (*entity.DetectionResult, error) {
	_ = ctx
	_ = imageData
	return nil, errNoGoCV
}

// Close ничего не делает в заглушке.
func (l *DNNLocalizer) Close() error { return nil }

// DNNClassifier заглушка классификатора (сборка без OpenCV).
type DNNClassifier struct {
	thresholds entity.Thresholds
}

// NewDNNClassifier создаёт классификатор-заглушку (без OpenCV).
func NewDNNClassifier(modelPath, headPath string, thresholds entity.Thresholds, inputSize int, featureLayer, outputLayer string) (*DNNClassifier, error) {
	_ = modelPath
	_ = headPath
	_ = inputSize
	_ = featureLayer
	_ = outputLayer
	return &DNNClassifier{thresholds: thresholds}, nil
}

// Classify возвращает ошибку, если сборка без тега gocv.
func (c *DNNClassifier) Classify(ctx context.Context, cropData []byte) (*entity.ClassificationResult, []byte, error) {
	_ = ctx
	_ = cropData
	return nil, nil, errNoGoCV
}

// Close ничего не делает в заглушке.
func (c *DNNClassifier) Close() error { return nil }

// Processor заглушка процессора изображений (сборка без OpenCV).
type Processor struct{}

// NewProcessor создаёт процессор-заглушку (без OpenCV).
func NewProcessor() *Processor {
	return &Processor{}
}

// Crop возвращает ошибку, если сборка без тега gocv.
func (p *Processor) Crop(imageData []byte, box entity.BoundingBox) ([]byte, error) {
	_ = imageData
	_ = box
	return nil, errNoGoCV
}
