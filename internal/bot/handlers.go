// handlers.go — обработка сообщений и callback-кнопок Telegram.
//
// Поток: ссылка → антифлуд → метаданные → клавиатура качества →
// загрузка → маршрутизатор доставки (прямая отправка или одноразовая
// ссылка).
package bot

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	telegrambot "github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/DenysHerasymchuk/DAYN/internal/media"
	"github.com/DenysHerasymchuk/DAYN/internal/service"
	"github.com/DenysHerasymchuk/DAYN/internal/storage/hostdir"
)

// Prometheus-метрики бота.
var (
	updatesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dayn_bot_updates_total",
		Help: "Общее количество обработанных обновлений Telegram (по типу).",
	}, []string{"type"})

	downloadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dayn_bot_downloads_total",
		Help: "Общее количество загрузок по запросам пользователей (по платформе, виду и исходу).",
	}, []string{"platform", "kind", "outcome"})

	downloadDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "dayn_bot_download_duration_seconds",
		Help:    "Длительность загрузки медиа в секундах (по платформе).",
		Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600},
	}, []string{"platform"})

	fileSizeBytes = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "dayn_bot_file_size_bytes",
		Help:    "Размер загруженных файлов в байтах (по платформе).",
		Buckets: []float64{1e6, 5e6, 10e6, 25e6, 50e6, 100e6, 250e6, 500e6},
	}, []string{"platform"})
)

// Тексты ответов пользователю.
const (
	textWelcome = "Привет! Пришлите ссылку на видео YouTube или TikTok — " +
		"я скачаю его и пришлю файлом или одноразовой ссылкой."
	textUnsupported   = "Не узнаю ссылку. Поддерживаются YouTube и TikTok."
	textThrottled     = "⏳ Подождите немного перед следующим запросом."
	textProbing       = "⏳ Получаю информацию о видео..."
	textProbeFailed   = "❌ Не удалось получить информацию о видео. Проверьте ссылку и попробуйте ещё раз."
	textSessionStale  = "Сессия устарела. Пришлите ссылку ещё раз."
	textDownloadError = "❌ Не удалось скачать. Попробуйте ещё раз."
	textPrepareError  = "❌ Не получилось подготовить файл к выдаче. Попробуйте ещё раз."
	textSending       = "⏳ Отправляю файл..."
	textSendError     = "❌ Не удалось отправить файл в чат. Попробуйте ещё раз."
)

// handleUpdate — обработчик по умолчанию: разводит сообщения и callback.
func (b *Bot) handleUpdate(ctx context.Context, _ *telegrambot.Bot, update *models.Update) {
	switch {
	case update.CallbackQuery != nil:
		updatesTotal.WithLabelValues("callback").Inc()
		b.handleCallback(ctx, update.CallbackQuery)
	case update.Message != nil:
		updatesTotal.WithLabelValues("message").Inc()
		b.handleMessage(ctx, update.Message)
	}
}

// handleMessage обрабатывает текстовое сообщение: команду /start или
// ссылку на медиа.
func (b *Bot) handleMessage(ctx context.Context, msg *models.Message) {
	if msg.From == nil || msg.Text == "" {
		return
	}

	text := strings.TrimSpace(msg.Text)

	if text == "/start" {
		b.send(ctx, msg.Chat.ID, textWelcome)
		return
	}

	if !media.IsSupportedURL(text) {
		b.send(ctx, msg.Chat.ID, textUnsupported)
		return
	}

	if !b.throttle.Allow(msg.From.ID) {
		b.send(ctx, msg.Chat.ID, textThrottled)
		return
	}

	b.logger.Info("Получена ссылка",
		slog.Int64("user_id", msg.From.ID),
		slog.String("platform", string(media.DetectPlatform(text))),
	)

	status, err := b.api.SendMessage(ctx, &telegrambot.SendMessageParams{
		ChatID: msg.Chat.ID,
		Text:   textProbing,
	})
	if err != nil {
		b.logger.Error("Ошибка отправки статусного сообщения", slog.String("error", err.Error()))
		return
	}

	info, err := b.media.Probe(ctx, text)
	if err != nil {
		b.logger.Warn("Ошибка запроса метаданных",
			slog.Int64("user_id", msg.From.ID),
			slog.String("error", err.Error()),
		)
		b.edit(ctx, msg.Chat.ID, status.ID, textProbeFailed, nil)
		return
	}

	job := uuid.NewString()
	b.pending.Add(job, &pendingDownload{
		URL:    text,
		Info:   info,
		ChatID: msg.Chat.ID,
	})

	b.edit(ctx, msg.Chat.ID, status.ID, buildCaption(info), buildQualityKeyboard(job, info))
}

// handleCallback обрабатывает нажатие кнопки качества.
func (b *Bot) handleCallback(ctx context.Context, cq *models.CallbackQuery) {
	_, err := b.api.AnswerCallbackQuery(ctx, &telegrambot.AnswerCallbackQueryParams{
		CallbackQueryID: cq.ID,
	})
	if err != nil {
		b.logger.Debug("Ошибка подтверждения callback", slog.String("error", err.Error()))
	}

	if cq.Message.Message == nil {
		b.logger.Warn("Callback на недоступное сообщение", slog.Int64("user_id", cq.From.ID))
		return
	}
	chatID := cq.Message.Message.Chat.ID
	messageID := cq.Message.Message.ID

	job, height, audio, err := parseCallback(cq.Data)
	if err != nil {
		b.logger.Warn("Некорректные callback-данные",
			slog.Int64("user_id", cq.From.ID),
			slog.String("data", cq.Data),
		)
		b.edit(ctx, chatID, messageID, textSessionStale, nil)
		return
	}

	// Сессия одноразовая: повторное нажатие получит «сессия устарела»
	sess, ok := b.pending.Get(job)
	if !ok {
		b.edit(ctx, chatID, messageID, textSessionStale, nil)
		return
	}
	b.pending.Remove(job)

	if audio {
		b.edit(ctx, chatID, messageID, "⏳ Скачиваю аудио...", nil)
	} else {
		b.edit(ctx, chatID, messageID, fmt.Sprintf("⏳ Скачиваю %dp...", height), nil)
	}

	// Загрузка длится минуты — не держим обработчик обновлений
	go b.runDownload(ctx, sess, chatID, messageID, height, audio)
}

// runDownload выполняет загрузку и доставку выбранного варианта.
func (b *Bot) runDownload(ctx context.Context, sess *pendingDownload, chatID int64, messageID, height int, audio bool) {
	kind := "video"
	if audio {
		kind = "audio"
	}
	platform := string(media.DetectPlatform(sess.URL))

	start := time.Now()
	var path string
	var err error
	if audio {
		path, err = b.media.DownloadAudio(ctx, sess.URL)
	} else {
		path, err = b.media.Download(ctx, sess.URL, height)
	}
	if err != nil {
		downloadsTotal.WithLabelValues(platform, kind, "download_error").Inc()
		b.edit(ctx, chatID, messageID, textDownloadError, nil)
		return
	}
	downloadDuration.WithLabelValues(platform).Observe(time.Since(start).Seconds())

	stat, err := os.Stat(path)
	if err != nil {
		downloadsTotal.WithLabelValues(platform, kind, "download_error").Inc()
		b.logger.Error("Загруженный файл недоступен",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
		b.edit(ctx, chatID, messageID, textDownloadError, nil)
		return
	}
	fileSizeBytes.WithLabelValues(platform).Observe(float64(stat.Size()))

	contentType := media.DetectContentType(path)
	displayName := buildDisplayName(sess.Info.Title, path)

	decision, err := b.delivery.Route(path, stat.Size(), contentType, displayName)
	if err != nil {
		downloadsTotal.WithLabelValues(platform, kind, "route_error").Inc()
		b.logger.Error("Ошибка маршрутизации доставки",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
		b.edit(ctx, chatID, messageID, textPrepareError, nil)
		b.removeFile(path)
		return
	}

	switch decision.Kind {
	case service.DeliveryDirect:
		b.edit(ctx, chatID, messageID, textSending, nil)
		if sendErr := b.sendDirect(ctx, chatID, path, displayName, contentType, stat.Size(), sess.Info, height, audio); sendErr != nil {
			downloadsTotal.WithLabelValues(platform, kind, "send_error").Inc()
			b.edit(ctx, chatID, messageID, textSendError, nil)
			b.removeFile(path)
			return
		}
		// Прямо отправленный файл реестру не принадлежит — убираем сами
		b.removeFile(path)
		b.deleteMessage(ctx, chatID, messageID)
		downloadsTotal.WithLabelValues(platform, kind, "direct").Inc()

	case service.DeliveryLink:
		// К видео-ссылке добавляем отдельную аудиодорожку: страница
		// покажет вариант «только аудио»
		if !audio {
			b.attachAudio(ctx, sess, decision.Token, path)
		}
		b.edit(ctx, chatID, messageID, b.linkText(stat.Size(), decision.URL), nil)
		downloadsTotal.WithLabelValues(platform, kind, "link").Inc()
	}

	b.logger.Info("Доставка выполнена",
		slog.String("platform", platform),
		slog.String("kind", kind),
		slog.String("display_name", displayName),
		slog.Int64("size_bytes", stat.Size()),
		slog.String("delivery", deliveryName(decision.Kind)),
	)
}

// sendDirect отправляет файл прямо в чат: видео, аудио или документ.
func (b *Bot) sendDirect(ctx context.Context, chatID int64, path, displayName, contentType string, size int64, info *media.Info, height int, audio bool) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("открытие файла для отправки: %w", err)
	}
	defer file.Close()

	upload := &models.InputFileUpload{
		Filename: displayName,
		Data:     file,
	}

	switch {
	case audio || strings.HasPrefix(contentType, "audio/"):
		_, err = b.api.SendAudio(ctx, &telegrambot.SendAudioParams{
			ChatID:  chatID,
			Audio:   upload,
			Caption: info.Title,
		})
	case strings.HasPrefix(contentType, "video/"):
		_, err = b.api.SendVideo(ctx, &telegrambot.SendVideoParams{
			ChatID:            chatID,
			Video:             upload,
			Caption:           fmt.Sprintf("%s\n%dp · %s", info.Title, height, humanize.Bytes(uint64(size))),
			SupportsStreaming: true,
		})
	default:
		_, err = b.api.SendDocument(ctx, &telegrambot.SendDocumentParams{
			ChatID:   chatID,
			Document: upload,
			Caption:  info.Title,
		})
	}

	return err
}

// attachAudio извлекает аудиодорожку из видео и привязывает её к записи
// реестра. Ошибки не прерывают доставку: ссылка на видео уже готова.
func (b *Bot) attachAudio(ctx context.Context, sess *pendingDownload, videoToken, videoPath string) {
	audioPath, err := b.media.ExtractAudio(ctx, videoPath)
	if err != nil {
		b.logger.Warn("Не удалось извлечь аудиодорожку",
			slog.String("error", err.Error()),
		)
		return
	}

	stat, err := os.Stat(audioPath)
	if err != nil {
		b.logger.Warn("Извлечённая аудиодорожка недоступна",
			slog.String("path", audioPath),
			slog.String("error", err.Error()),
		)
		return
	}

	name := buildDisplayName(sess.Info.Title, audioPath)
	if _, err := b.delivery.AttachAudio(videoToken, audioPath, stat.Size(), "audio/mpeg", name); err != nil {
		b.logger.Warn("Не удалось привязать аудиодорожку",
			slog.String("error", err.Error()),
		)
		b.removeFile(audioPath)
	}
}

// linkText — сообщение с одноразовой ссылкой.
func (b *Bot) linkText(size int64, url string) string {
	return fmt.Sprintf(
		"📦 Файл слишком большой для отправки в Telegram (%s).\n\n"+
			"🔗 Одноразовая ссылка (действует %d мин.):\n%s\n\n"+
			"Ссылка перестанет работать после первого скачивания.",
		humanize.Bytes(uint64(size)),
		int(b.fileTTL.Minutes()),
		url,
	)
}

// parseCallback разбирает callback-данные "dl:<job>:<высота|audio>".
func parseCallback(data string) (job string, height int, audio bool, err error) {
	parts := strings.Split(data, ":")
	if len(parts) != 3 || parts[0] != callbackPrefix || parts[1] == "" {
		return "", 0, false, fmt.Errorf("некорректные callback-данные: %q", data)
	}

	if parts[2] == audioSelector {
		return parts[1], 0, true, nil
	}

	height, err = strconv.Atoi(parts[2])
	if err != nil || height <= 0 {
		return "", 0, false, fmt.Errorf("некорректная высота в callback-данных: %q", data)
	}
	return parts[1], height, false, nil
}

// buildDisplayName строит имя файла для пользователя из заголовка медиа.
// SanitizeName гарантирует непустое безопасное имя.
func buildDisplayName(title, path string) string {
	return hostdir.SanitizeName(title) + filepath.Ext(path)
}

func deliveryName(kind service.DeliveryKind) string {
	if kind == service.DeliveryDirect {
		return "direct"
	}
	return "link"
}

// --- Вспомогательные обёртки Telegram API ---

func (b *Bot) send(ctx context.Context, chatID int64, text string) {
	_, err := b.api.SendMessage(ctx, &telegrambot.SendMessageParams{
		ChatID: chatID,
		Text:   text,
	})
	if err != nil {
		b.logger.Error("Ошибка отправки сообщения", slog.String("error", err.Error()))
	}
}

func (b *Bot) edit(ctx context.Context, chatID int64, messageID int, text string, markup *models.InlineKeyboardMarkup) {
	params := &telegrambot.EditMessageTextParams{
		ChatID:    chatID,
		MessageID: messageID,
		Text:      text,
	}
	if markup != nil {
		params.ReplyMarkup = markup
	}
	if _, err := b.api.EditMessageText(ctx, params); err != nil {
		b.logger.Error("Ошибка редактирования сообщения", slog.String("error", err.Error()))
	}
}

func (b *Bot) deleteMessage(ctx context.Context, chatID int64, messageID int) {
	_, err := b.api.DeleteMessage(ctx, &telegrambot.DeleteMessageParams{
		ChatID:    chatID,
		MessageID: messageID,
	})
	if err != nil {
		b.logger.Debug("Ошибка удаления сообщения", slog.String("error", err.Error()))
	}
}

func (b *Bot) removeFile(path string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		b.logger.Warn("Не удалось удалить файл",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
	}
}
