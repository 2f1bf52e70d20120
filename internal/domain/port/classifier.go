package port

import (
	"context"

	"eyecare-bot/internal/domain/entity"
)

// Classifier интерфейс классификатора заболеваний по кропу глаза
type Classifier interface {
	// Classify возвращает результат и, для severity выше not_detected,
	// картинку с тепловой картой, наложенной на кроп.
	// Битый кроп — entity.ErrClassification.
	Classify(ctx context.Context, cropData []byte) (*entity.ClassificationResult, []byte, error)
}
