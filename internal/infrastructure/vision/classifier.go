//go:build gocv
// +build gocv

package vision

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"math"
	"sync"

	"gocv.io/x/gocv"

	"eyecare-bot/internal/domain/entity"
)

// Веса смешивания кропа и тепловой карты.
const (
	overlayCropWeight = 0.6
	overlayHeatWeight = 0.4
)

// DNNClassifier классификатор заболеваний по кропу глаза. Выдаёт две
// независимые сигмоидные вероятности, они не обязаны давать сумму 1.
type DNNClassifier struct {
	mu           sync.Mutex // Forward в OpenCV DNN не потокобезопасен
	net          gocv.Net
	head         *HeadWeights
	thresholds   entity.Thresholds
	inputSize    int
	featureLayer string
	outputLayer  string
}

// NewDNNClassifier загружает модель и веса головы.
func NewDNNClassifier(modelPath, headPath string, thresholds entity.Thresholds, inputSize int, featureLayer, outputLayer string) (*DNNClassifier, error) {
	net := gocv.ReadNetFromONNX(modelPath)
	if net.Empty() {
		return nil, fmt.Errorf("cannot load classifier model from %s", modelPath)
	}

	head, err := LoadHeadWeights(headPath)
	if err != nil {
		net.Close()
		return nil, err
	}
	if len(head.Weights) < 2 {
		net.Close()
		return nil, fmt.Errorf("classifier head must have two classes, got %d", len(head.Weights))
	}

	return &DNNClassifier{
		net:          net,
		head:         head,
		thresholds:   thresholds,
		inputSize:    inputSize,
		featureLayer: featureLayer,
		outputLayer:  outputLayer,
	}, nil
}

// Classify прогоняет кроп через сеть и собирает результат.
// Тепловая карта считается только для severity выше not_detected.
func (c *DNNClassifier) Classify(ctx context.Context, cropData []byte) (*entity.ClassificationResult, []byte, error) {
	_ = ctx
	mat, err := decodeToMat(cropData)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", entity.ErrClassification, err)
	}
	defer mat.Close()

	canvas, err := c.letterbox(mat)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", entity.ErrClassification, err)
	}
	defer canvas.Close()

	blob := gocv.BlobFromImage(canvas, 1.0/255.0,
		image.Pt(c.inputSize, c.inputSize), gocv.NewScalar(0, 0, 0, 0), true, false)
	defer blob.Close()

	c.mu.Lock()
	c.net.SetInput(blob, "")
	outputs := c.net.ForwardLayers([]string{c.outputLayer, c.featureLayer})
	c.mu.Unlock()
	if len(outputs) != 2 {
		for i := range outputs {
			outputs[i].Close()
		}
		return nil, nil, fmt.Errorf("%w: classifier returned %d outputs", entity.ErrClassification, len(outputs))
	}
	logitsMat, featuresMat := outputs[0], outputs[1]
	defer logitsMat.Close()
	defer featuresMat.Close()

	logits, err := logitsMat.DataPtrFloat32()
	if err != nil || len(logits) < 2 {
		return nil, nil, fmt.Errorf("%w: read logits: %v", entity.ErrClassification, err)
	}

	pCataract := sigmoid(float64(logits[classCataract]))
	pConjunctivitis := sigmoid(float64(logits[classConjunctivitis]))

	dominant, dominantProb, targetClass := dominantClass(pCataract, pConjunctivitis)

	result := &entity.ClassificationResult{
		Severity:            c.thresholds.SeverityFor(dominantProb),
		Dominant:            dominant,
		DominantProbability: dominantProb,
		Probabilities: map[entity.Condition]float64{
			entity.ConditionCataract:       pCataract,
			entity.ConditionConjunctivitis: pConjunctivitis,
		},
	}
	if result.Severity == entity.SeverityNotDetected {
		result.Dominant = entity.ConditionNone
		return result, nil, nil
	}

	overlay, err := c.renderOverlay(mat, featuresMat, targetClass)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", entity.ErrClassification, err)
	}
	return result, overlay, nil
}

// letterbox вписывает кроп в квадрат inputSize с сохранением пропорций
// и дополняет поля нейтральным серым, без растяжения.
func (c *DNNClassifier) letterbox(mat gocv.Mat) (gocv.Mat, error) {
	fit := fitLetterbox(mat.Cols(), mat.Rows(), c.inputSize)
	if fit.newW <= 0 || fit.newH <= 0 {
		return gocv.NewMat(), fmt.Errorf("degenerate crop %dx%d", mat.Cols(), mat.Rows())
	}

	resized := gocv.NewMat()
	gocv.Resize(mat, &resized, image.Pt(fit.newW, fit.newH), 0, 0, gocv.InterpolationArea)
	defer resized.Close()

	gray := color.RGBA{R: 127, G: 127, B: 127, A: 255}
	canvas := gocv.NewMat()
	gocv.CopyMakeBorder(resized, &canvas,
		fit.offY, c.inputSize-fit.newH-fit.offY,
		fit.offX, c.inputSize-fit.newW-fit.offX,
		gocv.BorderConstant, gray)
	return canvas, nil
}

// renderOverlay строит тепловую карту по активациям и аналитическим
// градиентам головы и смешивает её с кропом.
func (c *DNNClassifier) renderOverlay(crop gocv.Mat, features gocv.Mat, targetClass int) ([]byte, error) {
	activations, err := featureMapFromMat(features)
	if err != nil {
		return nil, err
	}
	gradients, err := HeadGradients(activations, c.head.Weights[targetClass])
	if err != nil {
		return nil, err
	}

	saliency, err := SaliencyMap(activations, gradients, crop.Rows(), crop.Cols())
	if err != nil {
		return nil, err
	}
	heat := RenderHeatmap(saliency)
	if heat == nil {
		return nil, fmt.Errorf("empty saliency map")
	}

	heatMat, err := gocv.ImageToMatRGBA(heat)
	if err != nil {
		return nil, err
	}
	defer heatMat.Close()

	heatBGR := gocv.NewMat()
	defer heatBGR.Close()
	gocv.CvtColor(heatMat, &heatBGR, gocv.ColorRGBAToBGR)

	blended := gocv.NewMat()
	defer blended.Close()
	gocv.AddWeighted(crop, overlayCropWeight, heatBGR, overlayHeatWeight, 0, &blended)

	buf, err := gocv.IMEncode(gocv.JPEGFileExt, blended)
	if err != nil {
		return nil, err
	}
	defer buf.Close()

	out := make([]byte, len(buf.GetBytes()))
	copy(out, buf.GetBytes())
	return out, nil
}

// featureMapFromMat копирует выход свёрточного слоя [1, C, H, W]
// в буфер текущего вызова.
func featureMapFromMat(mat gocv.Mat) (*FeatureMap, error) {
	dims := mat.Size()
	if len(dims) != 4 || dims[0] != 1 {
		return nil, fmt.Errorf("unexpected feature shape %v", dims)
	}

	data, err := mat.DataPtrFloat32()
	if err != nil {
		return nil, fmt.Errorf("read features: %w", err)
	}

	fm := NewFeatureMap(dims[1], dims[2], dims[3])
	if len(data) != len(fm.Data) {
		return nil, fmt.Errorf("feature size mismatch: %d != %d", len(data), len(fm.Data))
	}
	copy(fm.Data, data)
	return fm, nil
}

// Close освобождает сеть.
func (c *DNNClassifier) Close() error {
	return c.net.Close()
}

func sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}
