// Точка входа DAYN — Telegram-бота загрузки медиа с одноразовой
// раздачей крупных файлов по ссылке.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/DenysHerasymchuk/DAYN/internal/api/handlers"
	"github.com/DenysHerasymchuk/DAYN/internal/bot"
	"github.com/DenysHerasymchuk/DAYN/internal/config"
	"github.com/DenysHerasymchuk/DAYN/internal/media"
	"github.com/DenysHerasymchuk/DAYN/internal/registry"
	"github.com/DenysHerasymchuk/DAYN/internal/server"
	"github.com/DenysHerasymchuk/DAYN/internal/service"
	"github.com/DenysHerasymchuk/DAYN/internal/storage/hostdir"
	"github.com/DenysHerasymchuk/DAYN/internal/web/pages"
)

func main() {
	// Загрузка конфигурации из переменных окружения
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Ошибка конфигурации: %v\n", err)
		os.Exit(1)
	}

	// Настройка логгера
	logger := config.SetupLogger(cfg)
	logger.Info("DAYN запускается",
		slog.String("version", config.Version),
		slog.Int("port", cfg.Port),
		slog.String("base_url", cfg.BaseURL),
		slog.String("storage_dir", cfg.StorageDir),
		slog.String("file_ttl", cfg.FileTTL.String()),
		slog.Int64("max_direct_size", cfg.MaxDirectSize),
	)

	// --- Инициализация компонентов ---

	// 1. Директория хранения
	host, err := hostdir.New(cfg.StorageDir)
	if err != nil {
		logger.Error("Ошибка инициализации директории хранения", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 2. Реестр раздачи
	reg := registry.New(logger)

	// 3. Шаблоны страниц
	renderer, err := pages.New()
	if err != nil {
		logger.Error("Ошибка разбора шаблонов страниц", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 4. Сервисы
	deliverySvc := service.NewDeliveryService(reg, cfg.BaseURL, cfg.MaxDirectSize, cfg.FileTTL, logger)
	servingSvc := service.NewServingService(reg, host, logger)

	// Восстановление реестра из сайдкаров: записи переживают перезапуск
	if err := deliverySvc.RestoreFromDir(cfg.StorageDir); err != nil {
		logger.Error("Ошибка восстановления реестра", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 5. Фоновые процессы
	ctx := context.Background()

	// 5.1 Janitor — уборка истёкших и потреблённых записей
	janitorSvc := service.NewJanitorService(reg, host, cfg.JanitorInterval, cfg.StaleFileAge, logger)
	janitorSvc.Start(ctx)

	// 5.2 topologymetrics — мониторинг зависимости Telegram API
	dephealthSvc, dephealthErr := service.NewDephealthService(
		"dayn",
		cfg.DephealthGroup,
		cfg.TelegramAPIURL,
		cfg.DephealthCheckInterval,
		logger,
	)
	if dephealthErr != nil {
		logger.Warn("topologymetrics недоступен, запуск без мониторинга зависимостей",
			slog.String("error", dephealthErr.Error()),
		)
	} else {
		if startErr := dephealthSvc.Start(ctx); startErr != nil {
			logger.Warn("Ошибка запуска topologymetrics",
				slog.String("error", startErr.Error()),
			)
		} else {
			logger.Info("topologymetrics запущен",
				slog.String("telegram_api_url", cfg.TelegramAPIURL),
				slog.String("check_interval", cfg.DephealthCheckInterval.String()),
			)
		}
	}

	// 6. Клиент загрузки медиа
	mediaClient := media.NewClient(cfg, logger)

	// 7. Telegram-бот
	tgBot, err := bot.New(cfg, mediaClient, deliverySvc, logger)
	if err != nil {
		logger.Error("Ошибка создания Telegram-бота", slog.String("error", err.Error()))
		os.Exit(1)
	}

	botCtx, botCancel := context.WithCancel(ctx)
	go tgBot.Start(botCtx)

	// 8. Handlers и HTTP-сервер
	filesHandler := handlers.NewFilesHandler(servingSvc, renderer, logger)
	healthHandler := handlers.NewHealthHandler(cfg.StorageDir, reg)

	srv := server.New(cfg, logger, filesHandler, healthHandler)

	if err := srv.Run(); err != nil {
		logger.Error("Ошибка сервера", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// --- Graceful shutdown фоновых процессов ---
	logger.Info("Остановка фоновых процессов...")

	botCancel()
	janitorSvc.Stop()
	if dephealthSvc != nil {
		dephealthSvc.Stop()
	}

	logger.Info("DAYN остановлен")
}
