//go:build gocv
// +build gocv

package vision

import (
	"fmt"
	"image"

	"gocv.io/x/gocv"

	"eyecare-bot/internal/domain/entity"
)

// Processor операции над изображениями для оркестратора пайплайна.
type Processor struct{}

// NewProcessor создаёт процессор изображений.
func NewProcessor() *Processor {
	return &Processor{}
}

// Crop вырезает рамку, предварительно обрезав её по границам кадра.
// Нулевая площадь после обрезки — ошибка, этап считается проваленным.
func (p *Processor) Crop(imageData []byte, box entity.BoundingBox) ([]byte, error) {
	mat, err := decodeToMat(imageData)
	if err != nil {
		return nil, err
	}
	defer mat.Close()

	clamped := box.Clamp(mat.Cols(), mat.Rows())
	if clamped.Empty() {
		return nil, fmt.Errorf("empty region after clamping %v to %dx%d", box, mat.Cols(), mat.Rows())
	}

	region := mat.Region(image.Rect(clamped.X1, clamped.Y1, clamped.X2, clamped.Y2))
	defer region.Close()

	buf, err := gocv.IMEncode(gocv.JPEGFileExt, region)
	if err != nil {
		return nil, fmt.Errorf("encode crop: %w", err)
	}
	defer buf.Close()

	out := make([]byte, len(buf.GetBytes()))
	copy(out, buf.GetBytes())
	return out, nil
}
