package port

import (
	"context"

	"eyecare-bot/internal/domain/entity"
)

// Localizer интерфейс детектора области глаза
type Localizer interface {
	// Locate ищет глаз на фото и возвращает лучший кандидат.
	// Если кандидатов нет — Found=false, это не ошибка.
	// Нечитаемые байты — entity.ErrDecode.
	Locate(ctx context.Context, imageData []byte) (*entity.DetectionResult, error)
}
