package vision

import (
	"errors"
	"image"
	"image/color"
)

// FeatureMap тензор C x H x W: активации последнего свёрточного слоя
// или градиенты по ним. Буфер принадлежит одному вызову, между
// горутинами не делится.
type FeatureMap struct {
	Channels int
	Height   int
	Width    int
	Data     []float32 // плотная укладка [c][y][x]
}

// NewFeatureMap создаёт нулевой тензор заданной формы.
func NewFeatureMap(channels, height, width int) *FeatureMap {
	return &FeatureMap{
		Channels: channels,
		Height:   height,
		Width:    width,
		Data:     make([]float32, channels*height*width),
	}
}

// At возвращает значение в канале c по координатам (y, x).
func (m *FeatureMap) At(c, y, x int) float32 {
	return m.Data[(c*m.Height+y)*m.Width+x]
}

// Set записывает значение в канале c по координатам (y, x).
func (m *FeatureMap) Set(c, y, x int, v float32) {
	m.Data[(c*m.Height+y)*m.Width+x] = v
}

func (m *FeatureMap) sameShape(o *FeatureMap) bool {
	return m.Channels == o.Channels && m.Height == o.Height && m.Width == o.Width
}

// HeadGradients вычисляет градиент логита выбранного класса по активациям
// для головы ReLU -> global average pooling -> linear. Для неё градиент
// считается точно: W[class][c] / (H*W) там, где активация положительна,
// и ноль в остальных точках.
func HeadGradients(activations *FeatureMap, classWeights []float32) (*FeatureMap, error) {
	if activations == nil {
		return nil, errors.New("nil activations")
	}
	if len(classWeights) != activations.Channels {
		return nil, errors.New("head weights do not match activation channels")
	}

	grad := NewFeatureMap(activations.Channels, activations.Height, activations.Width)
	norm := float32(activations.Height * activations.Width)
	for c := 0; c < grad.Channels; c++ {
		g := classWeights[c] / norm
		for y := 0; y < grad.Height; y++ {
			for x := 0; x < grad.Width; x++ {
				if activations.At(c, y, x) > 0 {
					grad.Set(c, y, x, g)
				}
			}
		}
	}
	return grad, nil
}

// SaliencyMap взвешивает каналы активаций средним градиента по каналу,
// срезает отрицательный вклад и нормирует в [0,1]. Если максимум нулевой,
// деление пропускается и карта остаётся нулевой. Возвращает карту,
// билинейно растянутую до targetH x targetW.
// Отсутствующий вход — валидный no-op: возвращается nil без ошибки.
func SaliencyMap(activations, gradients *FeatureMap, targetH, targetW int) ([][]float32, error) {
	if activations == nil || gradients == nil {
		return nil, nil
	}
	if !activations.sameShape(gradients) {
		return nil, errors.New("activations and gradients have different shapes")
	}

	// вес канала = среднее градиента по его пространственным позициям
	weights := make([]float32, gradients.Channels)
	area := float32(gradients.Height * gradients.Width)
	for c := 0; c < gradients.Channels; c++ {
		var sum float32
		for y := 0; y < gradients.Height; y++ {
			for x := 0; x < gradients.Width; x++ {
				sum += gradients.At(c, y, x)
			}
		}
		weights[c] = sum / area
	}

	// взвешенная сумма каналов + ReLU
	h, w := activations.Height, activations.Width
	raw := make([][]float32, h)
	var maxVal float32
	for y := 0; y < h; y++ {
		raw[y] = make([]float32, w)
		for x := 0; x < w; x++ {
			var v float32
			for c := 0; c < activations.Channels; c++ {
				v += weights[c] * activations.At(c, y, x)
			}
			if v < 0 {
				v = 0
			}
			raw[y][x] = v
			if v > maxVal {
				maxVal = v
			}
		}
	}

	if maxVal > 0 {
		for y := range raw {
			for x := range raw[y] {
				raw[y][x] /= maxVal
			}
		}
	}

	return resizeBilinear(raw, targetH, targetW), nil
}

// resizeBilinear растягивает карту до размеров targetH x targetW.
func resizeBilinear(src [][]float32, targetH, targetW int) [][]float32 {
	srcH := len(src)
	if srcH == 0 || targetH <= 0 || targetW <= 0 {
		return nil
	}
	srcW := len(src[0])

	dst := make([][]float32, targetH)
	for y := 0; y < targetH; y++ {
		dst[y] = make([]float32, targetW)
		fy := float32(y) * float32(srcH-1) / float32(maxInt(targetH-1, 1))
		y0 := int(fy)
		y1 := minInt(y0+1, srcH-1)
		wy := fy - float32(y0)
		for x := 0; x < targetW; x++ {
			fx := float32(x) * float32(srcW-1) / float32(maxInt(targetW-1, 1))
			x0 := int(fx)
			x1 := minInt(x0+1, srcW-1)
			wx := fx - float32(x0)

			top := src[y0][x0]*(1-wx) + src[y0][x1]*wx
			bottom := src[y1][x0]*(1-wx) + src[y1][x1]*wx
			dst[y][x] = top*(1-wy) + bottom*wy
		}
	}
	return dst
}

// RenderHeatmap раскрашивает нормированную карту палитрой jet
// (синий -> голубой -> жёлтый -> красный).
func RenderHeatmap(saliency [][]float32) *image.RGBA {
	h := len(saliency)
	if h == 0 {
		return nil
	}
	w := len(saliency[0])

	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			r, g, b := jetColor(saliency[y][x])
			img.SetRGBA(x, y, color.RGBA{R: r, G: g, B: b, A: 255})
		}
	}
	return img
}

// jetColor переводит значение из [0,1] в цвет палитры jet.
func jetColor(v float32) (r, g, b uint8) {
	if v < 0 {
		v = 0
	}
	if v > 1 {
		v = 1
	}
	four := 4 * v
	switch {
	case four < 1:
		return 0, uint8(255 * four), 255
	case four < 2:
		return 0, 255, uint8(255 * (2 - four))
	case four < 3:
		return uint8(255 * (four - 2)), 255, 0
	default:
		return 255, uint8(255 * (4 - four)), 0
	}
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
