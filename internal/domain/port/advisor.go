package port

import (
	"context"

	"eyecare-bot/internal/domain/entity"
)

// Advisor интерфейс генератора текстовых рекомендаций по готовому отчёту
type Advisor interface {
	// Advise возвращает короткую рекомендацию. Пустая строка — тоже
	// валидный ответ: рекомендация не обязательна.
	Advise(ctx context.Context, report *entity.Report) (string, error)
}
