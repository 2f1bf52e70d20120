package telegram

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/apex/log"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	app "eyecare-bot/internal/application"
	"eyecare-bot/internal/domain/entity"
	"eyecare-bot/internal/domain/port"
)

const (
	msgStart = `👋 Привет! Я бот для предварительной проверки здоровья глаз.

📸 Отправьте мне фото глаза крупным планом, и я проверю его на признаки
катаракты и конъюнктивита.

📋 Команды:
/check — начать проверку
/history — последние результаты
/help — справка
/cancel — отменить текущую операцию

⚠️ Бот не ставит диагноз. Окончательное заключение даёт врач.`

	msgHelp = `ℹ️ Как пользоваться ботом:

1️⃣ Отправьте фото глаза крупным планом
2️⃣ Бот найдёт глаз на фото и покажет вырезанный фрагмент
3️⃣ Подтвердите, что глаз найден правильно
4️⃣ Вы получите результат анализа с подсветкой подозрительных зон

💡 Рекомендации:
• Снимайте при хорошем освещении
• Глаз должен быть открыт и в фокусе
• Избегайте бликов и отражений

📋 Команды:
/check — начать проверку
/history — последние результаты
/cancel — отменить операцию`

	msgAwaitingPhoto   = "📸 Отправьте фото глаза крупным планом."
	msgCancelled       = "❌ Операция отменена. Отправьте /check для новой проверки."
	msgSendPhoto       = "📸 Пожалуйста, отправьте фото глаза для проверки."
	msgUseCheck        = "📋 Сначала начните проверку командой /check."
	msgUnknownCommand  = "❓ Неизвестная команда. Используйте /help для справки."
	msgProcessing      = "⏳ Ищу глаз на фото..."
	msgClassifying     = "⏳ Анализирую изображение..."
	msgEyeNotFound     = "👁 Не удалось найти глаз на фото. Попробуйте снять крупнее и при лучшем освещении."
	msgConfirmCrop     = "Я нашёл глаз на фото. Это он?"
	msgRetake          = "📸 Хорошо, отправьте другое фото."
	msgProcessingError = "⚠️ Не удалось обработать изображение. Попробуйте сделать другое фото."
	msgReportGone      = "⚠️ Этот отчёт уже недоступен. Начните новую проверку: /check"
	msgReportPending   = "⏳ Эта проверка ещё не завершена. Подтвердите фото или отправьте /check."
	msgHistoryEmpty    = "📭 У вас пока нет завершённых проверок."

	callbackConfirm = "confirm"
	callbackRetake  = "retake"
	callbackView    = "view"

	historyLimit = 5
)

// Bot представляет Telegram-бота
type Bot struct {
	api       *tgbotapi.BotAPI
	users     *app.UserService
	diagnosis *app.DiagnosisService
	blobs     port.BlobStore
}

// NewBot создаёт нового бота
func NewBot(token string, users *app.UserService, diagnosis *app.DiagnosisService, blobs port.BlobStore) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, err
	}

	log.Infof("authorized on account %s", api.Self.UserName)

	return &Bot{
		api:       api,
		users:     users,
		diagnosis: diagnosis,
		blobs:     blobs,
	}, nil
}

// Run запускает основной цикл обработки сообщений
func (b *Bot) Run() error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)

	ctx := context.Background()

	for update := range updates {
		switch {
		case update.CallbackQuery != nil:
			b.handleCallback(ctx, update.CallbackQuery)
		case update.Message != nil:
			b.handleMessage(ctx, update.Message)
		}
	}

	return nil
}

// handleMessage обрабатывает входящее сообщение
func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	user, err := b.users.Get(ctx, msg.From.ID, msg.Chat.ID)
	if err != nil {
		log.Errorf("get user: %v", err)
		return
	}

	if msg.IsCommand() {
		b.handleCommand(ctx, msg, user)
		return
	}

	if len(msg.Photo) > 0 {
		b.handlePhoto(ctx, msg, user)
		return
	}

	// Текстовое сообщение (не команда)
	b.sendMessage(msg.Chat.ID, msgSendPhoto)
}

// handleCommand обрабатывает команды бота
func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message, user *entity.User) {
	switch msg.Command() {
	case "start":
		b.users.Cancel(ctx, user.ID, user.ChatID)
		b.sendMessage(msg.Chat.ID, msgStart)

	case "help":
		b.sendMessage(msg.Chat.ID, msgHelp)

	case "check":
		b.users.BeginCheck(ctx, user.ID, user.ChatID)
		b.sendMessage(msg.Chat.ID, msgAwaitingPhoto)

	case "cancel":
		b.users.Cancel(ctx, user.ID, user.ChatID)
		b.sendMessage(msg.Chat.ID, msgCancelled)

	case "history":
		b.handleHistory(ctx, msg.Chat.ID, user)

	default:
		b.sendMessage(msg.Chat.ID, msgUnknownCommand)
	}
}

// handlePhoto запускает этап 1: поиск глаза и подтверждение кропа
func (b *Bot) handlePhoto(ctx context.Context, msg *tgbotapi.Message, user *entity.User) {
	if !acceptsPhoto(user.State) {
		b.sendMessage(msg.Chat.ID, msgUseCheck)
		return
	}

	b.sendMessage(msg.Chat.ID, msgProcessing)

	// Файл с максимальным разрешением
	photo := msg.Photo[len(msg.Photo)-1]

	imageData, err := b.downloadFile(photo.FileID)
	if err != nil {
		log.Errorf("download photo: %v", err)
		b.sendMessage(msg.Chat.ID, msgProcessingError)
		b.users.Cancel(ctx, user.ID, user.ChatID)
		return
	}

	report, err := b.diagnosis.StartDetection(ctx, strconv.FormatInt(user.ID, 10), imageData)
	if err != nil {
		log.WithField("user", user.ID).Errorf("detection: %v", err)
		b.sendMessage(msg.Chat.ID, msgProcessingError)
		b.users.Cancel(ctx, user.ID, user.ChatID)
		return
	}

	if report.Status == entity.StatusFailed {
		// Фото обработано, но глаза на нём нет либо рамка вырождена.
		b.sendMessage(msg.Chat.ID, msgEyeNotFound)
		return
	}

	crop, err := b.blobs.Get(ctx, report.Detection.CropURL)
	if err != nil {
		log.WithField("report", report.ID).Errorf("fetch crop: %v", err)
		b.sendMessage(msg.Chat.ID, msgProcessingError)
		return
	}

	b.users.SetState(ctx, user.ID, user.ChatID, entity.StateAwaitingConf)
	b.sendConfirmation(msg.Chat.ID, report.ID, crop, report.Detection.Confidence)
}

// handleCallback обрабатывает нажатие кнопки под сообщением
func (b *Bot) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	// Убираем "часики" на кнопке независимо от исхода
	if _, err := b.api.Request(tgbotapi.NewCallback(cb.ID, "")); err != nil {
		log.Errorf("answer callback: %v", err)
	}

	// Для устаревших клавиатур Telegram присылает callback без сообщения
	if cb.Message == nil {
		log.Warnf("callback %q without message", cb.Data)
		return
	}

	action, reportID, ok := parseCallback(cb.Data)
	if !ok {
		log.Warnf("malformed callback data: %q", cb.Data)
		return
	}

	chatID := cb.Message.Chat.ID
	user, err := b.users.Get(ctx, cb.From.ID, chatID)
	if err != nil {
		log.Errorf("get user: %v", err)
		return
	}

	switch action {
	case callbackRetake:
		b.users.BeginCheck(ctx, user.ID, user.ChatID)
		b.sendMessage(chatID, msgRetake)

	case callbackView:
		b.sendStoredReport(ctx, chatID, reportID, strconv.FormatInt(user.ID, 10))

	case callbackConfirm:
		if !acceptsConfirm(user.State) {
			// Нажата старая клавиатура: этап 2 для этого отчёта уже
			// запускался либо проверка отменена. Показываем то, что
			// сохранено, повторно классификатор не запускаем.
			b.sendStoredReport(ctx, chatID, reportID, strconv.FormatInt(user.ID, 10))
			return
		}

		b.sendMessage(chatID, msgClassifying)

		report, err := b.diagnosis.ConfirmAndClassify(ctx, reportID)
		if err != nil {
			log.WithField("report", reportID).Errorf("classification: %v", err)
			b.sendMessage(chatID, msgReportGone)
			b.users.Cancel(ctx, user.ID, user.ChatID)
			return
		}

		b.users.Cancel(ctx, user.ID, user.ChatID)
		b.sendResult(ctx, chatID, report)
	}
}

// handleHistory показывает последние завершённые проверки
func (b *Bot) handleHistory(ctx context.Context, chatID int64, user *entity.User) {
	reports, err := b.diagnosis.History(ctx, strconv.FormatInt(user.ID, 10), historyLimit)
	if err != nil {
		log.Errorf("history: %v", err)
		b.sendMessage(chatID, msgProcessingError)
		return
	}
	if len(reports) == 0 {
		b.sendMessage(chatID, msgHistoryEmpty)
		return
	}

	var sb strings.Builder
	sb.WriteString("🗂 Последние проверки:\n")
	for _, r := range reports {
		ts := time.Unix(r.CreatedAt, 0).Format("02.01.2006 15:04")
		sb.WriteString(fmt.Sprintf("\n%s — %s", ts, historyLine(r)))
	}

	msg := tgbotapi.NewMessage(chatID, sb.String())
	msg.ReplyMarkup = historyKeyboard(reports)
	if _, err := b.api.Send(msg); err != nil {
		log.Errorf("send history: %v", err)
	}
}

// historyKeyboard кнопки повторного показа отчётов, по одной на отчёт
func historyKeyboard(reports []*entity.Report) tgbotapi.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(reports))
	for _, r := range reports {
		ts := time.Unix(r.CreatedAt, 0).Format("02.01.2006 15:04")
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("📄 "+ts, callbackView+"|"+r.ID),
		))
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

// sendStoredReport повторно показывает сохранённый отчёт из истории.
// Чужие отчёты не показываются: данные кнопки не подписаны.
func (b *Bot) sendStoredReport(ctx context.Context, chatID int64, reportID, ownerID string) {
	report, err := b.diagnosis.Report(ctx, reportID)
	if err != nil {
		log.WithField("report", reportID).Errorf("load report: %v", err)
		b.sendMessage(chatID, msgReportGone)
		return
	}
	if report.UserID != ownerID {
		log.WithField("report", reportID).Warnf("owner mismatch: %s", ownerID)
		b.sendMessage(chatID, msgReportGone)
		return
	}
	b.sendResult(ctx, chatID, report)
}

// sendConfirmation отправляет кроп с кнопками подтверждения
func (b *Bot) sendConfirmation(chatID int64, reportID string, crop []byte, confidence float64) {
	photo := tgbotapi.NewPhoto(chatID, tgbotapi.FileBytes{Name: "eye.jpg", Bytes: crop})
	photo.Caption = fmt.Sprintf("%s (уверенность %.0f%%)", msgConfirmCrop, confidence*100)
	photo.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("✅ Да, это глаз", callbackConfirm+"|"+reportID),
			tgbotapi.NewInlineKeyboardButtonData("🔄 Переснять", callbackRetake+"|"+reportID),
		),
	)

	if _, err := b.api.Send(photo); err != nil {
		log.Errorf("send confirmation: %v", err)
	}
}

// sendResult отправляет итог по отчёту. Для завершённого — текст + фото
// с тепловой картой, для провалившегося — причину провала.
func (b *Bot) sendResult(ctx context.Context, chatID int64, report *entity.Report) {
	if report.Status == entity.StatusFailed {
		if report.Reason == entity.ReasonEyeNotFound {
			b.sendMessage(chatID, msgEyeNotFound)
		} else {
			b.sendMessage(chatID, msgProcessingError)
		}
		return
	}
	if report.Status != entity.StatusCompleted || report.Classification == nil {
		b.sendMessage(chatID, msgReportPending)
		return
	}

	cls := report.Classification

	var sb strings.Builder
	sb.WriteString(severityMessage(cls.Severity, cls.Dominant))
	sb.WriteString(fmt.Sprintf("\n\n📊 Вероятности:\n• катаракта — %.0f%%\n• конъюнктивит — %.0f%%",
		cls.Probabilities[entity.ConditionCataract]*100,
		cls.Probabilities[entity.ConditionConjunctivitis]*100))
	if report.Suggestion != "" {
		sb.WriteString("\n\n💬 " + report.Suggestion)
	}
	sb.WriteString("\n\n⚠️ Это предварительная оценка, а не диагноз. Обратитесь к офтальмологу.")

	if cls.HeatmapURL == "" {
		b.sendMessage(chatID, sb.String())
		return
	}

	heatmap, err := b.blobs.Get(ctx, cls.HeatmapURL)
	if err != nil {
		log.WithField("report", report.ID).Errorf("fetch heatmap: %v", err)
		b.sendMessage(chatID, sb.String())
		return
	}

	photo := tgbotapi.NewPhoto(chatID, tgbotapi.FileBytes{Name: "heatmap.jpg", Bytes: heatmap})
	photo.Caption = sb.String()
	if _, err := b.api.Send(photo); err != nil {
		log.Errorf("send result: %v", err)
	}
}

// downloadFile скачивает файл из Telegram
func (b *Bot) downloadFile(fileID string) ([]byte, error) {
	file, err := b.api.GetFile(tgbotapi.FileConfig{FileID: fileID})
	if err != nil {
		return nil, fmt.Errorf("get file: %w", err)
	}

	fileURL := file.Link(b.api.Token)

	resp, err := http.Get(fileURL)
	if err != nil {
		return nil, fmt.Errorf("download file: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}

	return data, nil
}

// sendMessage отправляет текстовое сообщение
func (b *Bot) sendMessage(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := b.api.Send(msg); err != nil {
		log.Errorf("send message: %v", err)
	}
}

// parseCallback разбирает данные кнопки вида "action|report_id"
func parseCallback(data string) (action, reportID string, ok bool) {
	action, reportID, found := strings.Cut(data, "|")
	if !found || reportID == "" {
		return "", "", false
	}
	switch action {
	case callbackConfirm, callbackRetake, callbackView:
		return action, reportID, true
	}
	return "", "", false
}

// acceptsPhoto сообщает, ждёт ли диалог фото от пользователя.
func acceptsPhoto(state entity.UserState) bool {
	return state == entity.StateAwaitingEye
}

// acceptsConfirm сообщает, ждёт ли диалог ответ на клавиатуру подтверждения.
func acceptsConfirm(state entity.UserState) bool {
	return state == entity.StateAwaitingConf
}

// severityMessage итоговый вердикт для пользователя
func severityMessage(severity entity.Severity, dominant entity.Condition) string {
	switch severity {
	case entity.SeverityDetected:
		return fmt.Sprintf("🔴 Обнаружены выраженные признаки: %s.", conditionName(dominant))
	case entity.SeverityRisk:
		return fmt.Sprintf("🟡 Есть признаки риска: %s.", conditionName(dominant))
	default:
		return "🟢 Признаков заболеваний не обнаружено."
	}
}

func conditionName(c entity.Condition) string {
	switch c {
	case entity.ConditionCataract:
		return "катаракта"
	case entity.ConditionConjunctivitis:
		return "конъюнктивит"
	default:
		return "нет"
	}
}

// historyLine короткая строка истории по одному отчёту
func historyLine(r *entity.Report) string {
	switch r.Status {
	case entity.StatusCompleted:
		if r.Classification == nil {
			return "завершено"
		}
		switch r.Classification.Severity {
		case entity.SeverityDetected:
			return fmt.Sprintf("🔴 %s (%.0f%%)", conditionName(r.Classification.Dominant), r.Classification.DominantProbability*100)
		case entity.SeverityRisk:
			return fmt.Sprintf("🟡 риск: %s (%.0f%%)", conditionName(r.Classification.Dominant), r.Classification.DominantProbability*100)
		default:
			return "🟢 без патологий"
		}
	case entity.StatusFailed:
		if r.Reason == entity.ReasonEyeNotFound {
			return "👁 глаз не найден"
		}
		return "⚠️ ошибка обработки"
	default:
		return "⏳ не завершено"
	}
}
