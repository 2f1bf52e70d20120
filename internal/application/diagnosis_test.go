package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"eyecare-bot/internal/domain/entity"
	"eyecare-bot/internal/infrastructure/storage"
)

type fakeLocalizer struct {
	det *entity.DetectionResult
	err error
}

func (f *fakeLocalizer) Locate(ctx context.Context, imageData []byte) (*entity.DetectionResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	det := *f.det
	return &det, nil
}

type fakeClassifier struct {
	res     *entity.ClassificationResult
	overlay []byte
	err     error
	calls   int
}

func (f *fakeClassifier) Classify(ctx context.Context, cropData []byte) (*entity.ClassificationResult, []byte, error) {
	f.calls++
	if f.err != nil {
		return nil, nil, f.err
	}
	res := *f.res
	return &res, f.overlay, nil
}

type fakeProcessor struct {
	err error
}

func (f *fakeProcessor) Crop(imageData []byte, box entity.BoundingBox) ([]byte, error) {
	if f.err != nil {
		return nil, f.err
	}
	return append([]byte("crop:"), imageData...), nil
}

type fakeBlobStore struct {
	data    map[string][]byte
	seq     int
	failPut bool
	failGet bool
}

func newFakeBlobStore() *fakeBlobStore {
	return &fakeBlobStore{data: map[string][]byte{}}
}

func (f *fakeBlobStore) Put(ctx context.Context, data []byte, folder, ownerID string) (string, error) {
	if f.failPut {
		return "", errors.New("blob store is down")
	}
	f.seq++
	url := fmt.Sprintf("mem://%s/%s/%d.jpg", folder, ownerID, f.seq)
	f.data[url] = data
	return url, nil
}

func (f *fakeBlobStore) Get(ctx context.Context, url string) ([]byte, error) {
	if f.failGet {
		return nil, errors.New("blob store is down")
	}
	data, ok := f.data[url]
	if !ok {
		return nil, fmt.Errorf("no blob at %s", url)
	}
	return data, nil
}

type fakeAdvisor struct {
	text string
	err  error
}

func (f *fakeAdvisor) Advise(ctx context.Context, report *entity.Report) (string, error) {
	return f.text, f.err
}

func foundDetection() *entity.DetectionResult {
	return &entity.DetectionResult{
		Found:      true,
		Confidence: 0.30,
		Box:        &entity.BoundingBox{X1: 10, Y1: 20, X2: 110, Y2: 90},
	}
}

func riskClassification() *entity.ClassificationResult {
	return &entity.ClassificationResult{
		Severity:            entity.SeverityRisk,
		Dominant:            entity.ConditionConjunctivitis,
		DominantProbability: 0.55,
		Probabilities: map[entity.Condition]float64{
			entity.ConditionCataract:       0.12,
			entity.ConditionConjunctivitis: 0.55,
		},
	}
}

type pipelineEnv struct {
	svc        *DiagnosisService
	localizer  *fakeLocalizer
	classifier *fakeClassifier
	processor  *fakeProcessor
	blobs      *fakeBlobStore
	reports    *storage.MemoryReportRepository
}

func newPipelineEnv() *pipelineEnv {
	env := &pipelineEnv{
		localizer:  &fakeLocalizer{det: foundDetection()},
		classifier: &fakeClassifier{res: riskClassification(), overlay: []byte("overlay")},
		processor:  &fakeProcessor{},
		blobs:      newFakeBlobStore(),
		reports:    storage.NewMemoryReportRepository(),
	}
	env.svc = NewDiagnosisService(
		env.localizer, env.classifier, env.processor,
		env.blobs, env.reports, &fakeAdvisor{text: "Покажитесь офтальмологу."},
	)
	return env
}

func TestStartDetection_AwaitsConfirmation(t *testing.T) {
	env := newPipelineEnv()
	ctx := context.Background()

	report, err := env.svc.StartDetection(ctx, "user-1", []byte("photo"))
	require.NoError(t, err)
	require.Equal(t, entity.StatusAwaitingConfirmation, report.Status)
	require.NotEmpty(t, report.OriginalURL)
	require.NotNil(t, report.Detection)
	require.Equal(t, 0.30, report.Detection.Confidence)
	require.NotEmpty(t, report.Detection.CropURL)
	require.Nil(t, report.Classification)

	// кроп действительно лежит в хранилище
	crop, err := env.blobs.Get(ctx, report.Detection.CropURL)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(string(crop), "crop:"))

	stored, err := env.reports.Load(ctx, report.ID)
	require.NoError(t, err)
	require.Equal(t, entity.StatusAwaitingConfirmation, stored.Status)
}

func TestStartDetection_EyeNotFound(t *testing.T) {
	env := newPipelineEnv()
	env.localizer.det = &entity.DetectionResult{Found: false}

	report, err := env.svc.StartDetection(context.Background(), "user-1", []byte("photo"))
	require.NoError(t, err) // «не найдено» — обычный исход, не ошибка
	require.Equal(t, entity.StatusFailed, report.Status)
	require.Equal(t, entity.ReasonEyeNotFound, report.Reason)
	require.NotNil(t, report.Detection)
	require.Nil(t, report.Detection.Box)
	require.Empty(t, report.Detection.CropURL)
	require.Zero(t, env.classifier.calls)
}

func TestStartDetection_DecodeError(t *testing.T) {
	env := newPipelineEnv()
	env.localizer.err = fmt.Errorf("%w: not an image", entity.ErrDecode)

	report, err := env.svc.StartDetection(context.Background(), "user-1", []byte("not a jpeg"))
	require.ErrorIs(t, err, entity.ErrDecode)
	require.Equal(t, entity.StatusFailed, report.Status)
	require.Equal(t, entity.ReasonDecodeFailed, report.Reason)
}

func TestStartDetection_CropFailureIsPhaseFailure(t *testing.T) {
	env := newPipelineEnv()
	env.processor.err = errors.New("empty region after clamping")

	report, err := env.svc.StartDetection(context.Background(), "user-1", []byte("photo"))
	require.NoError(t, err)
	require.Equal(t, entity.StatusFailed, report.Status)
	require.Equal(t, entity.ReasonCropFailed, report.Reason)
}

func TestStartDetection_BlobFailure(t *testing.T) {
	env := newPipelineEnv()
	env.blobs.failPut = true

	report, err := env.svc.StartDetection(context.Background(), "user-1", []byte("photo"))
	require.ErrorIs(t, err, entity.ErrPersistence)
	require.Equal(t, entity.StatusFailed, report.Status)
	require.Equal(t, entity.ReasonPersistenceFailed, report.Reason)
}

// failingReportRepo репозиторий, у которого отказала запись.
type failingReportRepo struct {
	*storage.MemoryReportRepository
}

func (f *failingReportRepo) Save(ctx context.Context, report *entity.Report) error {
	return errors.New("db is down")
}

func TestStartDetection_SaveFailureFailsPhase(t *testing.T) {
	env := newPipelineEnv()
	env.svc = NewDiagnosisService(
		env.localizer, env.classifier, env.processor,
		env.blobs, &failingReportRepo{storage.NewMemoryReportRepository()}, nil,
	)

	report, err := env.svc.StartDetection(context.Background(), "user-1", []byte("photo"))
	require.ErrorIs(t, err, entity.ErrPersistence)
	// отчёт не остаётся в awaiting_confirmation, которого нет в хранилище
	require.Equal(t, entity.StatusFailed, report.Status)
	require.Equal(t, entity.ReasonPersistenceFailed, report.Reason)
}

func TestConfirmAndClassify_Completes(t *testing.T) {
	env := newPipelineEnv()
	ctx := context.Background()

	report, err := env.svc.StartDetection(ctx, "user-1", []byte("photo"))
	require.NoError(t, err)

	final, err := env.svc.ConfirmAndClassify(ctx, report.ID)
	require.NoError(t, err)
	require.Equal(t, entity.StatusCompleted, final.Status)
	require.NotNil(t, final.Classification)
	require.Equal(t, entity.SeverityRisk, final.Classification.Severity)
	require.NotEmpty(t, final.Classification.HeatmapURL) // risk -> тепловая карта есть
	require.Equal(t, "Покажитесь офтальмологу.", final.Suggestion)
	// этап 1 не перезаписан
	require.NotNil(t, final.Detection)
	require.Equal(t, 1, env.classifier.calls)
}

func TestConfirmAndClassify_NotDetectedHasNoHeatmap(t *testing.T) {
	env := newPipelineEnv()
	env.classifier.res = &entity.ClassificationResult{
		Severity:            entity.SeverityNotDetected,
		Dominant:            entity.ConditionNone,
		DominantProbability: 0.1,
		Probabilities: map[entity.Condition]float64{
			entity.ConditionCataract:       0.1,
			entity.ConditionConjunctivitis: 0.05,
		},
	}
	env.classifier.overlay = nil
	ctx := context.Background()

	report, err := env.svc.StartDetection(ctx, "user-1", []byte("photo"))
	require.NoError(t, err)

	final, err := env.svc.ConfirmAndClassify(ctx, report.ID)
	require.NoError(t, err)
	require.Equal(t, entity.StatusCompleted, final.Status)
	require.Empty(t, final.Classification.HeatmapURL)
}

func TestConfirmAndClassify_Idempotent(t *testing.T) {
	env := newPipelineEnv()
	ctx := context.Background()

	report, err := env.svc.StartDetection(ctx, "user-1", []byte("photo"))
	require.NoError(t, err)

	first, err := env.svc.ConfirmAndClassify(ctx, report.ID)
	require.NoError(t, err)

	second, err := env.svc.ConfirmAndClassify(ctx, report.ID)
	require.NoError(t, err)
	require.Equal(t, entity.StatusCompleted, second.Status)
	require.Equal(t, first.Classification, second.Classification)
	require.Equal(t, 1, env.classifier.calls) // классификатор не перезапускался
}

func TestConfirmAndClassify_UnknownReport(t *testing.T) {
	env := newPipelineEnv()

	_, err := env.svc.ConfirmAndClassify(context.Background(), "no-such-report")
	require.ErrorIs(t, err, entity.ErrNotFound)
}

func TestConfirmAndClassify_WrongState(t *testing.T) {
	env := newPipelineEnv()
	env.localizer.det = &entity.DetectionResult{Found: false}
	ctx := context.Background()

	report, err := env.svc.StartDetection(ctx, "user-1", []byte("photo"))
	require.NoError(t, err)
	require.Equal(t, entity.StatusFailed, report.Status)

	_, err = env.svc.ConfirmAndClassify(ctx, report.ID)
	require.ErrorIs(t, err, entity.ErrInvalidState)
}

func TestConfirmAndClassify_ClassifierFailure(t *testing.T) {
	env := newPipelineEnv()
	env.classifier.err = fmt.Errorf("%w: corrupt crop", entity.ErrClassification)
	ctx := context.Background()

	report, err := env.svc.StartDetection(ctx, "user-1", []byte("photo"))
	require.NoError(t, err)

	final, err := env.svc.ConfirmAndClassify(ctx, report.ID)
	require.ErrorIs(t, err, entity.ErrClassification)
	require.Equal(t, entity.StatusFailed, final.Status)
	require.Equal(t, entity.ReasonClassificationFailed, final.Reason)
}

func TestConfirmAndClassify_AdvisorFailureIsNotFatal(t *testing.T) {
	env := newPipelineEnv()
	env.svc = NewDiagnosisService(
		env.localizer, env.classifier, env.processor,
		env.blobs, env.reports, &fakeAdvisor{err: errors.New("llm is down")},
	)
	ctx := context.Background()

	report, err := env.svc.StartDetection(ctx, "user-1", []byte("photo"))
	require.NoError(t, err)

	final, err := env.svc.ConfirmAndClassify(ctx, report.ID)
	require.NoError(t, err)
	require.Equal(t, entity.StatusCompleted, final.Status)
	require.Empty(t, final.Suggestion)
}

func TestHistory_NewestFirst(t *testing.T) {
	env := newPipelineEnv()
	ctx := context.Background()

	first, err := env.svc.StartDetection(ctx, "user-1", []byte("photo-1"))
	require.NoError(t, err)
	second, err := env.svc.StartDetection(ctx, "user-1", []byte("photo-2"))
	require.NoError(t, err)
	_, err = env.svc.StartDetection(ctx, "user-2", []byte("photo-3"))
	require.NoError(t, err)

	history, err := env.svc.History(ctx, "user-1", 5)
	require.NoError(t, err)
	require.Len(t, history, 2)
	require.Equal(t, second.ID, history[0].ID)
	require.Equal(t, first.ID, history[1].ID)

	limited, err := env.svc.History(ctx, "user-1", 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
	require.Equal(t, second.ID, limited[0].ID)
}
