package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/apex/log"
	"github.com/google/uuid"

	"eyecare-bot/internal/domain/entity"
	"eyecare-bot/internal/domain/port"
)

const (
	folderOriginal = "original"
	folderCrops    = "crops"
	folderHeatmaps = "heatmaps"
)

// DiagnosisService управляет двухэтапной диагностикой:
// этап 1 (локализация) -> подтверждение пользователя -> этап 2 (классификация).
// Между этапами сервис ничего не держит в памяти: этап 2 запускается
// отдельным вызовом и восстанавливает контекст из хранилищ.
type DiagnosisService struct {
	localizer  port.Localizer
	classifier port.Classifier
	images     port.ImageProcessor
	blobs      port.BlobStore
	reports    port.ReportRepository
	advisor    port.Advisor
}

// NewDiagnosisService создаёт сервис диагностики. advisor может быть nil —
// тогда отчёты остаются без текстовой рекомендации.
func NewDiagnosisService(
	localizer port.Localizer,
	classifier port.Classifier,
	images port.ImageProcessor,
	blobs port.BlobStore,
	reports port.ReportRepository,
	advisor port.Advisor,
) *DiagnosisService {
	return &DiagnosisService{
		localizer:  localizer,
		classifier: classifier,
		images:     images,
		blobs:      blobs,
		reports:    reports,
		advisor:    advisor,
	}
}

// StartDetection выполняет этап 1: сохраняет оригинал, ищет глаз,
// вырезает и сохраняет кроп. Возвращает отчёт в awaiting_confirmation
// либо в failed. «Глаз не найден» — не ошибка, пользователю предлагается
// переснять фото.
func (s *DiagnosisService) StartDetection(ctx context.Context, userID string, imageBytes []byte) (*entity.Report, error) {
	report := entity.NewReport(uuid.NewString(), userID)

	originalURL, err := s.blobs.Put(ctx, imageBytes, folderOriginal, userID)
	if err != nil {
		s.failAndSave(ctx, report, entity.ReasonPersistenceFailed)
		return report, fmt.Errorf("%w: upload original: %v", entity.ErrPersistence, err)
	}
	report.OriginalURL = originalURL

	det, err := s.localizer.Locate(ctx, imageBytes)
	if err != nil {
		if errors.Is(err, entity.ErrDecode) {
			s.failAndSave(ctx, report, entity.ReasonDecodeFailed)
		} else {
			s.failAndSave(ctx, report, entity.ReasonDetectionFailed)
		}
		return report, err
	}

	if !det.Found {
		// Фрагмент сохраняем как есть: found=false, нулевая уверенность.
		report.Detection = det
		s.failAndSave(ctx, report, entity.ReasonEyeNotFound)
		return report, nil
	}

	crop, err := s.images.Crop(imageBytes, *det.Box)
	if err != nil {
		// Вырожденная рамка после обрезки по границам кадра
		// приравнивается к «не найдено».
		log.WithField("report", report.ID).Warnf("crop failed: %v", err)
		report.Detection = det
		s.failAndSave(ctx, report, entity.ReasonCropFailed)
		return report, nil
	}

	cropURL, err := s.blobs.Put(ctx, crop, folderCrops, userID)
	if err != nil {
		report.Detection = det
		s.failAndSave(ctx, report, entity.ReasonPersistenceFailed)
		return report, fmt.Errorf("%w: upload crop: %v", entity.ErrPersistence, err)
	}
	det.CropURL = cropURL

	if err := report.AwaitConfirmation(*det); err != nil {
		return report, err
	}
	if err := s.reports.Save(ctx, report); err != nil {
		// Отчёт без записи в хранилище бесполезен: подтверждение
		// не сможет его найти. Считаем этап проваленным.
		s.failAndSave(ctx, report, entity.ReasonPersistenceFailed)
		return report, fmt.Errorf("%w: save report: %v", entity.ErrPersistence, err)
	}

	log.WithField("report", report.ID).
		WithField("user", userID).
		Infof("phase 1 done: confidence=%.2f", det.Confidence)
	return report, nil
}

// ConfirmAndClassify выполняет этап 2 после подтверждения пользователя.
// Кроп перечитывается из хранилища, а не из памяти этапа 1. Повторное
// подтверждение завершённого отчёта — идемпотентное чтение, классификатор
// второй раз не запускается.
func (s *DiagnosisService) ConfirmAndClassify(ctx context.Context, reportID string) (*entity.Report, error) {
	report, err := s.reports.Load(ctx, reportID)
	if err != nil {
		return nil, fmt.Errorf("%w: load report: %v", entity.ErrPersistence, err)
	}
	if report == nil {
		return nil, fmt.Errorf("%w: %s", entity.ErrNotFound, reportID)
	}

	if report.Status == entity.StatusCompleted {
		return report, nil
	}
	if err := report.BeginClassification(); err != nil {
		return nil, err
	}
	if report.Detection == nil || report.Detection.CropURL == "" {
		return nil, fmt.Errorf("%w: report %s has no stored crop", entity.ErrInvalidState, reportID)
	}

	cropBytes, err := s.blobs.Get(ctx, report.Detection.CropURL)
	if err != nil {
		s.failAndSave(ctx, report, entity.ReasonPersistenceFailed)
		return report, fmt.Errorf("%w: fetch crop: %v", entity.ErrPersistence, err)
	}

	cls, overlay, err := s.classifier.Classify(ctx, cropBytes)
	if err != nil {
		s.failAndSave(ctx, report, entity.ReasonClassificationFailed)
		return report, err
	}

	if len(overlay) > 0 {
		heatmapURL, err := s.blobs.Put(ctx, overlay, folderHeatmaps, report.UserID)
		if err != nil {
			s.failAndSave(ctx, report, entity.ReasonPersistenceFailed)
			return report, fmt.Errorf("%w: upload heatmap: %v", entity.ErrPersistence, err)
		}
		cls.HeatmapURL = heatmapURL
	}

	if err := report.Complete(*cls); err != nil {
		return report, err
	}

	if s.advisor != nil {
		suggestion, err := s.advisor.Advise(ctx, report)
		if err != nil {
			// Рекомендация не обязательна, отчёт завершается без неё.
			log.WithField("report", report.ID).Errorf("advisor: %v", err)
		} else {
			report.Suggestion = suggestion
		}
	}

	if err := s.reports.Save(ctx, report); err != nil {
		return report, fmt.Errorf("%w: save report: %v", entity.ErrPersistence, err)
	}

	log.WithField("report", report.ID).
		Infof("phase 2 done: %s/%s p=%.2f", cls.Severity, cls.Dominant, cls.DominantProbability)
	return report, nil
}

// History возвращает последние отчёты пользователя, новые первыми.
func (s *DiagnosisService) History(ctx context.Context, userID string, limit int) ([]*entity.Report, error) {
	return s.reports.ListByUser(ctx, userID, limit)
}

// Report возвращает отчёт по ID для повторного показа.
func (s *DiagnosisService) Report(ctx context.Context, reportID string) (*entity.Report, error) {
	report, err := s.reports.Load(ctx, reportID)
	if err != nil {
		return nil, fmt.Errorf("%w: load report: %v", entity.ErrPersistence, err)
	}
	if report == nil {
		return nil, fmt.Errorf("%w: %s", entity.ErrNotFound, reportID)
	}
	return report, nil
}

// failAndSave переводит отчёт в failed и сохраняет его.
// Ошибку сохранения здесь только логируем: наружу уходит причина провала этапа.
func (s *DiagnosisService) failAndSave(ctx context.Context, report *entity.Report, reason entity.FailReason) {
	if err := report.Fail(reason); err != nil {
		log.WithField("report", report.ID).Errorf("fail transition: %v", err)
		return
	}
	if err := s.reports.Save(ctx, report); err != nil {
		log.WithField("report", report.ID).Errorf("save failed report: %v", err)
	}
}
