package storage

import (
	"context"
	"sync"

	"eyecare-bot/internal/domain/entity"
	"eyecare-bot/internal/domain/port"
)

// MemoryReportRepository in-memory хранилище отчётов. Используется в тестах;
// боевое хранилище — Postgres.
type MemoryReportRepository struct {
	mu      sync.RWMutex
	reports map[string]*entity.Report
	order   []string // ID в порядке первого сохранения, для ListByUser
}

// NewMemoryReportRepository создаёт новое in-memory хранилище
func NewMemoryReportRepository() *MemoryReportRepository {
	return &MemoryReportRepository{
		reports: make(map[string]*entity.Report),
	}
}

// Save создаёт или обновляет отчёт
func (r *MemoryReportRepository) Save(ctx context.Context, report *entity.Report) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.reports[report.ID]; !exists {
		r.order = append(r.order, report.ID)
	}
	r.reports[report.ID] = report
	return nil
}

// Load возвращает отчёт по ID или nil
func (r *MemoryReportRepository) Load(ctx context.Context, reportID string) (*entity.Report, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.reports[reportID], nil
}

// ListByUser возвращает отчёты пользователя, новые первыми
func (r *MemoryReportRepository) ListByUser(ctx context.Context, userID string, limit int) ([]*entity.Report, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*entity.Report, 0, limit)
	for i := len(r.order) - 1; i >= 0 && len(result) < limit; i-- {
		report := r.reports[r.order[i]]
		if report.UserID == userID {
			result = append(result, report)
		}
	}
	return result, nil
}

// Проверка реализации интерфейса
var _ port.ReportRepository = (*MemoryReportRepository)(nil)
