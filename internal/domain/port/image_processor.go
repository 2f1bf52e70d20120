package port

import (
	"eyecare-bot/internal/domain/entity"
)

// ImageProcessor интерфейс операций над исходным изображением.
// Локализатор сам ничего не вырезает: кроп по рамке делает оркестратор.
type ImageProcessor interface {
	// Crop вырезает рамку из изображения, предварительно обрезав её
	// по границам кадра. Нулевая площадь после обрезки — ошибка.
	Crop(imageData []byte, box entity.BoundingBox) ([]byte, error)
}
