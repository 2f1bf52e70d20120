package telegram

import (
	"testing"

	"github.com/stretchr/testify/require"

	"eyecare-bot/internal/domain/entity"
)

func TestParseCallback(t *testing.T) {
	action, id, ok := parseCallback("confirm|abc-123")
	require.True(t, ok)
	require.Equal(t, callbackConfirm, action)
	require.Equal(t, "abc-123", id)

	action, id, ok = parseCallback("retake|abc-123")
	require.True(t, ok)
	require.Equal(t, callbackRetake, action)
	require.Equal(t, "abc-123", id)

	action, id, ok = parseCallback("view|abc-123")
	require.True(t, ok)
	require.Equal(t, callbackView, action)
	require.Equal(t, "abc-123", id)

	// Идентификатор может содержать разделитель — режем по первому
	_, id, ok = parseCallback("confirm|a|b")
	require.True(t, ok)
	require.Equal(t, "a|b", id)

	for _, data := range []string{"", "confirm", "confirm|", "detonate|abc", "abc-123"} {
		_, _, ok := parseCallback(data)
		require.False(t, ok, "data=%q", data)
	}
}

func TestHistoryLine(t *testing.T) {
	completed := entity.NewReport("r1", "42")
	completed.Status = entity.StatusCompleted
	completed.Classification = &entity.ClassificationResult{
		Severity:            entity.SeverityDetected,
		Dominant:            entity.ConditionConjunctivitis,
		DominantProbability: 0.91,
	}
	require.Contains(t, historyLine(completed), "конъюнктивит")
	require.Contains(t, historyLine(completed), "91%")

	clean := entity.NewReport("r2", "42")
	clean.Status = entity.StatusCompleted
	clean.Classification = &entity.ClassificationResult{Severity: entity.SeverityNotDetected}
	require.Contains(t, historyLine(clean), "без патологий")

	failed := entity.NewReport("r3", "42")
	failed.Status = entity.StatusFailed
	failed.Reason = entity.ReasonEyeNotFound
	require.Contains(t, historyLine(failed), "глаз не найден")

	pending := entity.NewReport("r4", "42")
	pending.Status = entity.StatusAwaitingConfirmation
	require.Contains(t, historyLine(pending), "не завершено")
}

func TestHistoryKeyboard(t *testing.T) {
	reports := []*entity.Report{
		entity.NewReport("r1", "42"),
		entity.NewReport("r2", "42"),
	}

	kb := historyKeyboard(reports)
	require.Len(t, kb.InlineKeyboard, 2)
	require.Len(t, kb.InlineKeyboard[0], 1)
	require.Equal(t, "view|r1", *kb.InlineKeyboard[0][0].CallbackData)
	require.Equal(t, "view|r2", *kb.InlineKeyboard[1][0].CallbackData)

	// данные кнопки разбираются обратно в показ отчёта
	action, id, ok := parseCallback(*kb.InlineKeyboard[0][0].CallbackData)
	require.True(t, ok)
	require.Equal(t, callbackView, action)
	require.Equal(t, "r1", id)
}

func TestDialogGates(t *testing.T) {
	require.True(t, acceptsPhoto(entity.StateAwaitingEye))
	require.False(t, acceptsPhoto(entity.StateMainMenu))
	require.False(t, acceptsPhoto(entity.StateAwaitingConf))

	require.True(t, acceptsConfirm(entity.StateAwaitingConf))
	require.False(t, acceptsConfirm(entity.StateMainMenu))
	require.False(t, acceptsConfirm(entity.StateAwaitingEye))
}
