package entity

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func detectionFound() DetectionResult {
	return DetectionResult{
		Found:      true,
		Confidence: 0.30,
		Box:        &BoundingBox{X1: 10, Y1: 10, X2: 110, Y2: 90},
		CropURL:    "http://media/crops/u1/a.jpg",
	}
}

func classificationRisk() ClassificationResult {
	return ClassificationResult{
		Severity:            SeverityRisk,
		Dominant:            ConditionCataract,
		DominantProbability: 0.55,
		Probabilities: map[Condition]float64{
			ConditionCataract:       0.55,
			ConditionConjunctivitis: 0.20,
		},
		HeatmapURL: "http://media/heatmaps/u1/b.jpg",
	}
}

func TestReport_HappyPath(t *testing.T) {
	r := NewReport("rep-1", "user-1")
	require.Equal(t, StatusPhase1Running, r.Status)
	require.NotZero(t, r.CreatedAt)

	require.NoError(t, r.AwaitConfirmation(detectionFound()))
	require.Equal(t, StatusAwaitingConfirmation, r.Status)
	require.NotNil(t, r.Detection)

	require.NoError(t, r.BeginClassification())
	require.Equal(t, StatusPhase2Running, r.Status)

	require.NoError(t, r.Complete(classificationRisk()))
	require.Equal(t, StatusCompleted, r.Status)
	require.NotNil(t, r.Classification)
	// результат этапа 1 не перезаписан
	require.NotNil(t, r.Detection)
	require.Equal(t, 0.30, r.Detection.Confidence)
}

func TestReport_AwaitConfirmationRequiresCrop(t *testing.T) {
	r := NewReport("rep-1", "user-1")
	det := detectionFound()
	det.CropURL = ""
	require.Error(t, r.AwaitConfirmation(det))

	require.Error(t, r.AwaitConfirmation(DetectionResult{Found: false}))
}

func TestReport_FailFromAnyNonTerminalState(t *testing.T) {
	r := NewReport("rep-1", "user-1")
	require.NoError(t, r.Fail(ReasonEyeNotFound))
	require.Equal(t, StatusFailed, r.Status)
	require.Equal(t, ReasonEyeNotFound, r.Reason)

	r = NewReport("rep-2", "user-1")
	require.NoError(t, r.AwaitConfirmation(detectionFound()))
	require.NoError(t, r.BeginClassification())
	require.NoError(t, r.Fail(ReasonClassificationFailed))
	require.Equal(t, StatusFailed, r.Status)
}

func TestReport_TerminalStatesAreFinal(t *testing.T) {
	r := NewReport("rep-1", "user-1")
	require.NoError(t, r.AwaitConfirmation(detectionFound()))
	require.NoError(t, r.BeginClassification())
	require.NoError(t, r.Complete(classificationRisk()))

	require.ErrorIs(t, r.BeginClassification(), ErrInvalidState)
	require.ErrorIs(t, r.Fail(ReasonPersistenceFailed), ErrInvalidState)

	r = NewReport("rep-2", "user-1")
	require.NoError(t, r.Fail(ReasonDecodeFailed))
	require.ErrorIs(t, r.Fail(ReasonCropFailed), ErrInvalidState)
	require.ErrorIs(t, r.AwaitConfirmation(detectionFound()), ErrInvalidState)
}

func TestReport_NoPhaseSkipping(t *testing.T) {
	r := NewReport("rep-1", "user-1")
	require.ErrorIs(t, r.BeginClassification(), ErrInvalidState)
	require.ErrorIs(t, r.Complete(classificationRisk()), ErrInvalidState)
}

func TestBoundingBox_Clamp(t *testing.T) {
	b := BoundingBox{X1: -5, Y1: -3, X2: 700, Y2: 500}
	c := b.Clamp(640, 480)
	require.Equal(t, BoundingBox{X1: 0, Y1: 0, X2: 640, Y2: 480}, c)
	require.False(t, c.Empty())

	// вырожденная область после обрезки
	z := BoundingBox{X1: 650, Y1: 10, X2: 700, Y2: 20}.Clamp(640, 480)
	require.True(t, z.Empty())
}

func TestThresholds_SeverityFor(t *testing.T) {
	th := Thresholds{MinConfidence: 0.25, Low: 0.4, High: 0.75}
	require.NoError(t, th.Validate())

	require.Equal(t, SeverityNotDetected, th.SeverityFor(0.39))
	require.Equal(t, SeverityRisk, th.SeverityFor(0.40)) // граница включается вверх
	require.Equal(t, SeverityRisk, th.SeverityFor(0.74))
	require.Equal(t, SeverityDetected, th.SeverityFor(0.75)) // граница включается вверх
	require.Equal(t, SeverityDetected, th.SeverityFor(1.0))
	require.Equal(t, SeverityNotDetected, th.SeverityFor(0.0))
}

func TestThresholds_Validate(t *testing.T) {
	require.Error(t, Thresholds{MinConfidence: 0.25, Low: 0.8, High: 0.4}.Validate())
	require.Error(t, Thresholds{MinConfidence: 0.25, Low: 0.5, High: 0.5}.Validate())
	require.Error(t, Thresholds{MinConfidence: 0.25, Low: -0.1, High: 0.5}.Validate())
	require.Error(t, Thresholds{MinConfidence: 1.5, Low: 0.4, High: 0.75}.Validate())
}
