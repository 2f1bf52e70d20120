package entity

import (
	"errors"
	"fmt"
	"time"
)

// ProcessStatus этап жизненного цикла отчёта
type ProcessStatus string

const (
	StatusPhase1Running        ProcessStatus = "phase1_running"        // Этап 1: поиск глаза на фото
	StatusAwaitingConfirmation ProcessStatus = "awaiting_confirmation" // Этап 1 завершён: ждём подтверждения кропа
	StatusPhase2Running        ProcessStatus = "phase2_running"        // Этап 2: классификация подтверждённого кропа
	StatusCompleted            ProcessStatus = "completed"             // Диагностика завершена
	StatusFailed               ProcessStatus = "failed"                // Ошибка на одном из этапов
)

// Terminal сообщает, является ли статус конечным.
func (s ProcessStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Severity итоговая степень риска по доминирующему диагнозу
type Severity string

const (
	SeverityNotDetected Severity = "not_detected" // Ниже нижнего порога
	SeverityRisk        Severity = "risk"         // Между порогами
	SeverityDetected    Severity = "detected"     // Выше верхнего порога
)

// Condition заболевание, которое умеет распознавать классификатор
type Condition string

const (
	ConditionCataract       Condition = "cataract"
	ConditionConjunctivitis Condition = "conjunctivitis"
	ConditionNone           Condition = "none"
)

// FailReason код причины перехода отчёта в failed
type FailReason string

const (
	ReasonDecodeFailed         FailReason = "decode_failed"
	ReasonEyeNotFound          FailReason = "eye_not_found"
	ReasonDetectionFailed      FailReason = "detection_failed"
	ReasonCropFailed           FailReason = "crop_failed"
	ReasonClassificationFailed FailReason = "classification_failed"
	ReasonPersistenceFailed    FailReason = "persistence_failed"
)

// Типовые ошибки ядра. Внешние слои различают их через errors.Is.
// «Глаз не найден» ошибкой не является: это обычный результат детектора.
var (
	ErrNotFound       = errors.New("report not found")
	ErrInvalidState   = errors.New("operation is not allowed in current report state")
	ErrDecode         = errors.New("image bytes cannot be decoded")
	ErrClassification = errors.New("classifier failed on a valid crop")
	ErrPersistence    = errors.New("artifact or record write failed")
)

// BoundingBox координаты области глаза на исходном фото (в пикселях)
type BoundingBox struct {
	X1 int `json:"x1"`
	Y1 int `json:"y1"`
	X2 int `json:"x2"`
	Y2 int `json:"y2"`
}

// Empty истинно, если область имеет нулевую площадь.
func (b BoundingBox) Empty() bool {
	return b.X2 <= b.X1 || b.Y2 <= b.Y1
}

// Clamp обрезает координаты по границам изображения width x height.
func (b BoundingBox) Clamp(width, height int) BoundingBox {
	c := b
	if c.X1 < 0 {
		c.X1 = 0
	}
	if c.Y1 < 0 {
		c.Y1 = 0
	}
	if c.X2 > width {
		c.X2 = width
	}
	if c.Y2 > height {
		c.Y2 = height
	}
	return c
}

// DetectionResult итог этапа локализации. После создания не меняется,
// кроме CropURL, который проставляет оркестратор после загрузки кропа.
type DetectionResult struct {
	Found      bool         `json:"found"`
	Confidence float64      `json:"confidence"`
	Box        *BoundingBox `json:"box,omitempty"`
	CropURL    string       `json:"crop_url,omitempty"`
}

// ClassificationResult итог этапа классификации. Неизменяемый фрагмент.
type ClassificationResult struct {
	Severity            Severity              `json:"severity"`
	Dominant            Condition             `json:"dominant"`
	DominantProbability float64               `json:"dominant_probability"`
	Probabilities       map[Condition]float64 `json:"probabilities"`
	HeatmapURL          string                `json:"heatmap_url,omitempty"`
}

// Report диагностический отчёт: одна загрузка фото — один отчёт.
type Report struct {
	ID        string        `json:"report_id"`
	UserID    string        `json:"user_id"`
	CreatedAt int64         `json:"timestamp"`
	Status    ProcessStatus `json:"status"`

	OriginalURL string     `json:"original_url"`
	Reason      FailReason `json:"fail_reason,omitempty"`

	Detection      *DetectionResult      `json:"detection,omitempty"`
	Classification *ClassificationResult `json:"classification,omitempty"`
	Suggestion     string                `json:"suggestion,omitempty"`
}

// NewReport создаёт отчёт в начале этапа 1.
func NewReport(id, userID string) *Report {
	return &Report{
		ID:        id,
		UserID:    userID,
		CreatedAt: time.Now().Unix(),
		Status:    StatusPhase1Running,
	}
}

// AwaitConfirmation фиксирует успешный этап 1: область найдена, кроп сохранён.
func (r *Report) AwaitConfirmation(det DetectionResult) error {
	if r.Status != StatusPhase1Running {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidState, r.Status, StatusAwaitingConfirmation)
	}
	if !det.Found || det.CropURL == "" {
		return errors.New("detection without crop cannot await confirmation")
	}
	r.Detection = &det
	r.Status = StatusAwaitingConfirmation
	return nil
}

// BeginClassification переводит отчёт на этап 2 после подтверждения пользователя.
func (r *Report) BeginClassification() error {
	if r.Status != StatusAwaitingConfirmation {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidState, r.Status, StatusPhase2Running)
	}
	r.Status = StatusPhase2Running
	return nil
}

// Complete фиксирует успешный этап 2. Результат этапа 1 не трогаем:
// классификация только добавляется, ничего не перезаписывает.
func (r *Report) Complete(cls ClassificationResult) error {
	if r.Status != StatusPhase2Running {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidState, r.Status, StatusCompleted)
	}
	r.Classification = &cls
	r.Status = StatusCompleted
	return nil
}

// Fail переводит отчёт в конечное состояние failed с кодом причины.
// Допустим из любого неконечного состояния.
func (r *Report) Fail(reason FailReason) error {
	if r.Status.Terminal() {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidState, r.Status, StatusFailed)
	}
	r.Status = StatusFailed
	r.Reason = reason
	return nil
}

// Thresholds пороги принятия решений. Читаются один раз на старте,
// дальше никогда не меняются.
type Thresholds struct {
	MinConfidence float64 // нижняя граница уверенности детектора
	Low           float64 // ниже — not_detected
	High          float64 // не ниже — detected
}

// Validate проверяет инварианты 0 <= low < high <= 1.
func (t Thresholds) Validate() error {
	if t.Low < 0 || t.High > 1 || t.Low >= t.High {
		return fmt.Errorf("invalid thresholds: low=%.2f high=%.2f", t.Low, t.High)
	}
	if t.MinConfidence < 0 || t.MinConfidence > 1 {
		return fmt.Errorf("invalid detector confidence floor: %.2f", t.MinConfidence)
	}
	return nil
}

// SeverityFor переводит вероятность в трёхуровневый статус.
// Граничные значения относятся к старшей категории: p == low даёт risk,
// p == high даёт detected.
func (t Thresholds) SeverityFor(p float64) Severity {
	switch {
	case p >= t.High:
		return SeverityDetected
	case p >= t.Low:
		return SeverityRisk
	default:
		return SeverityNotDetected
	}
}
