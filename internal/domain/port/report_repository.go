package port

import (
	"context"

	"eyecare-bot/internal/domain/entity"
)

// ReportRepository интерфейс хранилища диагностических отчётов
type ReportRepository interface {
	// Save создаёт или обновляет отчёт целиком
	Save(ctx context.Context, report *entity.Report) error

	// Load возвращает отчёт по ID или nil, если такого нет
	Load(ctx context.Context, reportID string) (*entity.Report, error)

	// ListByUser возвращает отчёты пользователя, новые первыми
	ListByUser(ctx context.Context, userID string, limit int) ([]*entity.Report, error)
}
