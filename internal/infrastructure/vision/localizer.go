//go:build gocv
// +build gocv

package vision

import (
	"context"
	"fmt"
	"image"
	"sync"

	"gocv.io/x/gocv"

	"eyecare-bot/internal/domain/entity"
)

// DNNLocalizer детектор области глаза на базе ONNX-модели.
// Сеть загружается один раз на процесс и после этого не меняется.
type DNNLocalizer struct {
	mu        sync.Mutex // Forward в OpenCV DNN не потокобезопасен
	net       gocv.Net
	inputSize int
	floor     float64
}

// NewDNNLocalizer загружает модель детектора.
func NewDNNLocalizer(modelPath string, inputSize int, floor float64) (*DNNLocalizer, error) {
	net := gocv.ReadNetFromONNX(modelPath)
	if net.Empty() {
		return nil, fmt.Errorf("cannot load detector model from %s", modelPath)
	}
	return &DNNLocalizer{
		net:       net,
		inputSize: inputSize,
		floor:     floor,
	}, nil
}

// Locate ищет глаз и возвращает лучший кандидат. Отсутствие кандидатов —
// валидный результат (Found=false), не ошибка.
func (l *DNNLocalizer) Locate(ctx context.Context, imageData []byte) (*entity.DetectionResult, error) {
	_ = ctx
	mat, err := decodeToMat(imageData)
	if err != nil {
		return nil, err
	}
	defer mat.Close()

	blob := gocv.BlobFromImage(mat, 1.0/255.0,
		image.Pt(l.inputSize, l.inputSize), gocv.NewScalar(0, 0, 0, 0), true, false)
	defer blob.Close()

	l.mu.Lock()
	l.net.SetInput(blob, "")
	out := l.net.Forward("")
	l.mu.Unlock()
	defer out.Close()

	dims := out.Size()
	if len(dims) == 0 {
		return nil, fmt.Errorf("detector produced empty output")
	}
	rowLen := dims[len(dims)-1]

	data, err := out.DataPtrFloat32()
	if err != nil {
		return nil, fmt.Errorf("read detector output: %w", err)
	}

	scaleX := float64(mat.Cols()) / float64(l.inputSize)
	scaleY := float64(mat.Rows()) / float64(l.inputSize)
	candidates := parseDetections(data, rowLen, scaleX, scaleY)

	best, found := BestCandidate(candidates, l.floor)
	if !found {
		return &entity.DetectionResult{Found: false}, nil
	}

	box := best.Box.Clamp(mat.Cols(), mat.Rows())
	return &entity.DetectionResult{
		Found:      true,
		Confidence: best.Confidence,
		Box:        &box,
	}, nil
}

// Close освобождает сеть.
func (l *DNNLocalizer) Close() error {
	return l.net.Close()
}

// decodeToMat превращает байты изображения в gocv.Mat.
func decodeToMat(imageData []byte) (gocv.Mat, error) {
	mat, err := gocv.IMDecode(imageData, gocv.IMReadColor)
	if err == nil && !mat.Empty() {
		return mat, nil
	}
	if !mat.Empty() {
		mat.Close()
	}
	return gocv.NewMat(), entity.ErrDecode
}
