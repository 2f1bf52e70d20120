package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"eyecare-bot/internal/domain/entity"
	"eyecare-bot/internal/domain/port"
)

// PostgresReportRepository хранилище отчётов в Postgres. Фрагменты
// результатов лежат в JSON-колонках: читаем и пишем отчёт целиком.
type PostgresReportRepository struct {
	DB *sql.DB
}

// NewPostgresReportRepository создаёт хранилище поверх открытого соединения.
func NewPostgresReportRepository(db *sql.DB) *PostgresReportRepository {
	return &PostgresReportRepository{DB: db}
}

// Migrate создаёт таблицу отчётов, если её ещё нет.
func (r *PostgresReportRepository) Migrate(ctx context.Context) error {
	const schema = `
create table if not exists diagnostic_reports (
    report_id      text primary key,
    user_id        text not null,
    created_at     bigint not null,
    status         text not null,
    fail_reason    text not null default '',
    original_url   text not null default '',
    detection      jsonb,
    classification jsonb,
    suggestion     text not null default ''
);
create index if not exists idx_reports_user_time
    on diagnostic_reports (user_id, created_at desc)`

	if _, err := r.DB.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrate reports: %w", err)
	}
	return nil
}

// Save создаёт или обновляет отчёт целиком.
func (r *PostgresReportRepository) Save(ctx context.Context, report *entity.Report) error {
	detection, err := marshalFragment(report.Detection)
	if err != nil {
		return fmt.Errorf("marshal detection: %w", err)
	}
	classification, err := marshalFragment(report.Classification)
	if err != nil {
		return fmt.Errorf("marshal classification: %w", err)
	}

	const q = `
insert into diagnostic_reports
    (report_id, user_id, created_at, status, fail_reason, original_url, detection, classification, suggestion)
values ($1, $2, $3, $4, $5, $6, $7, $8, $9)
on conflict (report_id) do update set
    status = excluded.status,
    fail_reason = excluded.fail_reason,
    original_url = excluded.original_url,
    detection = excluded.detection,
    classification = excluded.classification,
    suggestion = excluded.suggestion`

	_, err = r.DB.ExecContext(ctx, q,
		report.ID, report.UserID, report.CreatedAt,
		string(report.Status), string(report.Reason), report.OriginalURL,
		detection, classification, report.Suggestion)
	if err != nil {
		return fmt.Errorf("save report %s: %w", report.ID, err)
	}
	return nil
}

// Load возвращает отчёт по ID или nil, если такого нет.
func (r *PostgresReportRepository) Load(ctx context.Context, reportID string) (*entity.Report, error) {
	const q = `
select report_id, user_id, created_at, status, fail_reason, original_url,
       detection, classification, suggestion
from diagnostic_reports
where report_id = $1`

	report, err := scanReport(r.DB.QueryRowContext(ctx, q, reportID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return report, err
}

// ListByUser возвращает отчёты пользователя, новые первыми.
func (r *PostgresReportRepository) ListByUser(ctx context.Context, userID string, limit int) ([]*entity.Report, error) {
	const q = `
select report_id, user_id, created_at, status, fail_reason, original_url,
       detection, classification, suggestion
from diagnostic_reports
where user_id = $1
order by created_at desc
limit $2`

	rows, err := r.DB.QueryContext(ctx, q, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list reports for %s: %w", userID, err)
	}
	defer rows.Close()

	var reports []*entity.Report
	for rows.Next() {
		report, err := scanReport(rows)
		if err != nil {
			return nil, err
		}
		reports = append(reports, report)
	}
	return reports, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReport(row rowScanner) (*entity.Report, error) {
	var (
		report         entity.Report
		status         string
		reason         string
		detection      []byte
		classification []byte
	)
	err := row.Scan(&report.ID, &report.UserID, &report.CreatedAt,
		&status, &reason, &report.OriginalURL,
		&detection, &classification, &report.Suggestion)
	if err != nil {
		return nil, err
	}
	report.Status = entity.ProcessStatus(status)
	report.Reason = entity.FailReason(reason)

	if len(detection) > 0 {
		report.Detection = &entity.DetectionResult{}
		if err := json.Unmarshal(detection, report.Detection); err != nil {
			return nil, fmt.Errorf("unmarshal detection of %s: %w", report.ID, err)
		}
	}
	if len(classification) > 0 {
		report.Classification = &entity.ClassificationResult{}
		if err := json.Unmarshal(classification, report.Classification); err != nil {
			return nil, fmt.Errorf("unmarshal classification of %s: %w", report.ID, err)
		}
	}
	return &report, nil
}

// marshalFragment сериализует фрагмент результата; nil остаётся NULL.
func marshalFragment(v any) (any, error) {
	switch f := v.(type) {
	case *entity.DetectionResult:
		if f == nil {
			return nil, nil
		}
	case *entity.ClassificationResult:
		if f == nil {
			return nil, nil
		}
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return data, nil
}

// Проверка реализации интерфейса
var _ port.ReportRepository = (*PostgresReportRepository)(nil)
