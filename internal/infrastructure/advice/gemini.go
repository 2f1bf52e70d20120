package advice

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"eyecare-bot/internal/domain/entity"
	"eyecare-bot/internal/domain/port"
)

const systemPrompt = `Ты — ассистент офтальмологического бота. По итогам автоматического
анализа фото глаза дай короткую рекомендацию (2-3 предложения) на русском языке.
Не ставь диагноз, не назначай лечение. Всегда напоминай, что окончательное
заключение даёт врач.`

// Gemini генератор текстовых рекомендаций по готовому отчёту.
// Без API-ключа работает в выключенном режиме и отдаёт шаблонные советы.
type Gemini struct {
	apiKey string
	model  string
}

// NewGemini создаёт генератор рекомендаций.
func NewGemini(apiKey, model string) *Gemini {
	return &Gemini{
		apiKey: strings.TrimSpace(apiKey),
		model:  strings.TrimSpace(model),
	}
}

// Enabled сообщает, настроен ли доступ к модели.
func (g *Gemini) Enabled() bool {
	return g.apiKey != ""
}

// Advise возвращает рекомендацию по завершённому отчёту.
func (g *Gemini) Advise(ctx context.Context, report *entity.Report) (string, error) {
	if report == nil || report.Classification == nil {
		return "", nil
	}
	if !g.Enabled() {
		return fallbackSuggestion(report.Classification), nil
	}

	cl, err := genai.NewClient(ctx, option.WithAPIKey(g.apiKey))
	if err != nil {
		return "", err
	}
	defer cl.Close()

	m := cl.GenerativeModel(g.model)
	m.GenerationConfig = genai.GenerationConfig{
		Temperature:     ptrFloat32(0.7),
		MaxOutputTokens: ptrInt32(500),
	}
	m.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(systemPrompt)},
	}

	resp, err := m.GenerateContent(ctx, genai.Text(buildPrompt(report.Classification)))
	if err != nil {
		return "", err
	}
	return textFromResponse(resp)
}

// buildPrompt собирает описание результата анализа для модели.
func buildPrompt(cls *entity.ClassificationResult) string {
	var b strings.Builder
	b.WriteString("Результаты анализа фото глаза:\n")
	fmt.Fprintf(&b, "- итоговый статус: %s\n", severityLabel(cls.Severity))
	fmt.Fprintf(&b, "- доминирующее подозрение: %s (вероятность %.0f%%)\n",
		conditionLabel(cls.Dominant), cls.DominantProbability*100)
	fmt.Fprintf(&b, "- вероятность катаракты: %.0f%%\n",
		cls.Probabilities[entity.ConditionCataract]*100)
	fmt.Fprintf(&b, "- вероятность конъюнктивита: %.0f%%\n",
		cls.Probabilities[entity.ConditionConjunctivitis]*100)
	b.WriteString("Сформулируй рекомендацию для пользователя.")
	return b.String()
}

func severityLabel(s entity.Severity) string {
	switch s {
	case entity.SeverityDetected:
		return "высокий риск"
	case entity.SeverityRisk:
		return "умеренный риск"
	default:
		return "признаков не обнаружено"
	}
}

func conditionLabel(c entity.Condition) string {
	switch c {
	case entity.ConditionCataract:
		return "катаракта"
	case entity.ConditionConjunctivitis:
		return "конъюнктивит"
	default:
		return "нет"
	}
}

// fallbackSuggestion шаблонные советы для выключенного режима.
func fallbackSuggestion(cls *entity.ClassificationResult) string {
	switch cls.Severity {
	case entity.SeverityDetected:
		return "Обнаружены признаки высокого риска. Рекомендуем как можно скорее показаться офтальмологу."
	case entity.SeverityRisk:
		return "Есть признаки умеренного риска. Понаблюдайте за состоянием глаза и при ухудшении обратитесь к врачу."
	default:
		return ""
	}
}

// textFromResponse достаёт текстовые части первого кандидата.
func textFromResponse(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", errors.New("gemini: empty response")
	}

	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			b.WriteString(string(text))
		}
	}
	return strings.TrimSpace(b.String()), nil
}

func ptrFloat32(v float32) *float32 { return &v }
func ptrInt32(v int32) *int32       { return &v }

// Проверка реализации интерфейса
var _ port.Advisor = (*Gemini)(nil)
