// Пакет bot — Telegram-интерфейс сервиса DAYN.
//
// Обрабатывает входящие ссылки, ведёт диалог выбора качества и передаёт
// скачанные файлы маршрутизатору доставки: мелкие уходят прямо в чат,
// крупные — одноразовой ссылкой.
package bot

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	telegrambot "github.com/go-telegram/bot"
	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/DenysHerasymchuk/DAYN/internal/config"
	"github.com/DenysHerasymchuk/DAYN/internal/media"
	"github.com/DenysHerasymchuk/DAYN/internal/service"
)

// pendingTTL — время жизни сессии выбора качества.
const pendingTTL = 10 * time.Minute

// maxPendingSessions — ограничение числа одновременных сессий выбора.
const maxPendingSessions = 10000

// pendingDownload — сессия выбора качества: от получения метаданных
// до нажатия кнопки.
type pendingDownload struct {
	URL    string
	Info   *media.Info
	ChatID int64
}

// Bot — Telegram-бот DAYN.
type Bot struct {
	api      *telegrambot.Bot
	media    *media.Client
	delivery *service.DeliveryService
	throttle *Throttle
	pending  *expirable.LRU[string, *pendingDownload]
	fileTTL  time.Duration
	logger   *slog.Logger
}

// New создаёт бота с long-polling и обработчиком по умолчанию.
func New(cfg *config.Config, mediaClient *media.Client, delivery *service.DeliveryService, logger *slog.Logger) (*Bot, error) {
	b := &Bot{
		media:    mediaClient,
		delivery: delivery,
		throttle: NewThrottle(cfg.ThrottleInterval),
		pending:  expirable.NewLRU[string, *pendingDownload](maxPendingSessions, nil, pendingTTL),
		fileTTL:  cfg.FileTTL,
		logger:   logger.With(slog.String("component", "bot")),
	}

	api, err := telegrambot.New(cfg.BotToken,
		telegrambot.WithDefaultHandler(b.handleUpdate),
	)
	if err != nil {
		return nil, fmt.Errorf("создание Telegram-бота: %w", err)
	}
	b.api = api

	return b, nil
}

// Start запускает long-polling. Блокируется до отмены контекста.
func (b *Bot) Start(ctx context.Context) {
	b.logger.Info("Telegram-бот запущен")
	b.api.Start(ctx)
	b.logger.Info("Telegram-бот остановлен")
}
