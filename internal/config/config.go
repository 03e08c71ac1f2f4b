// Пакет config — загрузка и валидация конфигурации сервиса DAYN
// из переменных окружения.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Версия приложения, задаётся при сборке через -ldflags.
var Version = "dev"

// Config содержит все параметры конфигурации сервиса.
type Config struct {
	// Токен Telegram-бота (обязательный)
	BotToken string
	// Порт HTTP-сервера раздачи файлов
	Port int
	// Публичный базовый URL для построения ссылок (без завершающего /)
	BaseURL string
	// Путь к директории хранения файлов
	StorageDir string
	// Время жизни зарегистрированной ссылки
	FileTTL time.Duration
	// Максимальный размер файла для прямой отправки через транспорт, в байтах
	MaxDirectSize int64
	// Интервал запуска фоновой уборки
	JanitorInterval time.Duration
	// Возраст, после которого файл без записи в реестре считается брошенным
	StaleFileAge time.Duration
	// Таймаут одной загрузки медиа
	DownloadTimeout time.Duration
	// Таймаут запроса метаданных медиа
	ProbeTimeout time.Duration
	// Количество попыток загрузки
	MaxDownloadRetries int
	// Параллельные фрагменты yt-dlp
	ConcurrentFragments int
	// Путь к бинарнику yt-dlp
	YtdlpPath string
	// Путь к бинарнику ffmpeg
	FfmpegPath string
	// Минимальный интервал между сообщениями одного пользователя
	ThrottleInterval time.Duration
	// Базовый URL Telegram Bot API (для мониторинга зависимости)
	TelegramAPIURL string
	// Интервал проверки зависимостей topologymetrics
	DephealthCheckInterval time.Duration
	// Имя группы в метриках topologymetrics
	DephealthGroup string
	// Уровень логирования (debug, info, warn, error)
	LogLevel slog.Level
	// Формат логов (json, text)
	LogFormat string
	// Таймаут graceful shutdown HTTP-сервера
	ShutdownTimeout time.Duration
}

// Load загружает конфигурацию из переменных окружения, валидирует
// обязательные поля и возвращает Config или ошибку.
// Файл .env в рабочей директории, если есть, подхватывается автоматически.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	var err error

	// DAYN_BOT_TOKEN — обязательный
	cfg.BotToken, err = getEnvRequired("DAYN_BOT_TOKEN")
	if err != nil {
		return nil, err
	}

	// DAYN_HTTP_PORT — порт HTTP-сервера (по умолчанию 8080)
	port, err := getEnvInt("DAYN_HTTP_PORT", 8080)
	if err != nil {
		return nil, fmt.Errorf("DAYN_HTTP_PORT: %w", err)
	}
	if port <= 0 || port > 65535 {
		return nil, fmt.Errorf("DAYN_HTTP_PORT: значение %d вне допустимого диапазона 1-65535", port)
	}
	cfg.Port = port

	// DAYN_BASE_URL — публичный адрес для ссылок (по умолчанию локальный)
	cfg.BaseURL = strings.TrimRight(getEnvDefault("DAYN_BASE_URL", "http://localhost:8080"), "/")

	// DAYN_STORAGE_DIR — директория хранения (по умолчанию temp)
	cfg.StorageDir = getEnvDefault("DAYN_STORAGE_DIR", "temp")

	// DAYN_FILE_TTL — время жизни ссылки (по умолчанию 30m)
	cfg.FileTTL, err = getEnvDuration("DAYN_FILE_TTL", 30*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("DAYN_FILE_TTL: %w", err)
	}
	if cfg.FileTTL <= 0 {
		return nil, fmt.Errorf("DAYN_FILE_TTL: значение должно быть положительным")
	}

	// DAYN_MAX_DIRECT_SIZE — лимит прямой отправки (по умолчанию 50 MB)
	cfg.MaxDirectSize, err = getEnvInt64("DAYN_MAX_DIRECT_SIZE", 52428800)
	if err != nil {
		return nil, fmt.Errorf("DAYN_MAX_DIRECT_SIZE: %w", err)
	}
	if cfg.MaxDirectSize <= 0 {
		return nil, fmt.Errorf("DAYN_MAX_DIRECT_SIZE: значение должно быть положительным")
	}

	// DAYN_JANITOR_INTERVAL — интервал уборки (по умолчанию 5m)
	cfg.JanitorInterval, err = getEnvDuration("DAYN_JANITOR_INTERVAL", 5*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("DAYN_JANITOR_INTERVAL: %w", err)
	}

	// DAYN_STALE_FILE_AGE — возраст брошенных файлов (по умолчанию 24h)
	cfg.StaleFileAge, err = getEnvDuration("DAYN_STALE_FILE_AGE", 24*time.Hour)
	if err != nil {
		return nil, fmt.Errorf("DAYN_STALE_FILE_AGE: %w", err)
	}

	// DAYN_DOWNLOAD_TIMEOUT — таймаут загрузки (по умолчанию 5m)
	cfg.DownloadTimeout, err = getEnvDuration("DAYN_DOWNLOAD_TIMEOUT", 5*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("DAYN_DOWNLOAD_TIMEOUT: %w", err)
	}

	// DAYN_PROBE_TIMEOUT — таймаут запроса метаданных (по умолчанию 30s)
	cfg.ProbeTimeout, err = getEnvDuration("DAYN_PROBE_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("DAYN_PROBE_TIMEOUT: %w", err)
	}

	// DAYN_MAX_DOWNLOAD_RETRIES — попытки загрузки (по умолчанию 3)
	cfg.MaxDownloadRetries, err = getEnvInt("DAYN_MAX_DOWNLOAD_RETRIES", 3)
	if err != nil {
		return nil, fmt.Errorf("DAYN_MAX_DOWNLOAD_RETRIES: %w", err)
	}
	if cfg.MaxDownloadRetries < 1 {
		return nil, fmt.Errorf("DAYN_MAX_DOWNLOAD_RETRIES: значение должно быть не меньше 1")
	}

	// DAYN_CONCURRENT_FRAGMENTS — параллельные фрагменты yt-dlp (по умолчанию 4)
	cfg.ConcurrentFragments, err = getEnvInt("DAYN_CONCURRENT_FRAGMENTS", 4)
	if err != nil {
		return nil, fmt.Errorf("DAYN_CONCURRENT_FRAGMENTS: %w", err)
	}

	// DAYN_YTDLP_PATH / DAYN_FFMPEG_PATH — внешние бинарники
	cfg.YtdlpPath = getEnvDefault("DAYN_YTDLP_PATH", "yt-dlp")
	cfg.FfmpegPath = getEnvDefault("DAYN_FFMPEG_PATH", "ffmpeg")

	// DAYN_THROTTLE_INTERVAL — антифлуд (по умолчанию 1s)
	cfg.ThrottleInterval, err = getEnvDuration("DAYN_THROTTLE_INTERVAL", time.Second)
	if err != nil {
		return nil, fmt.Errorf("DAYN_THROTTLE_INTERVAL: %w", err)
	}

	// DAYN_TELEGRAM_API_URL — адрес Bot API для мониторинга зависимости
	cfg.TelegramAPIURL = getEnvDefault("DAYN_TELEGRAM_API_URL", "https://api.telegram.org")

	// DAYN_DEPHEALTH_CHECK_INTERVAL — интервал проверки зависимостей (по умолчанию 30s)
	cfg.DephealthCheckInterval, err = getEnvDuration("DAYN_DEPHEALTH_CHECK_INTERVAL", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("DAYN_DEPHEALTH_CHECK_INTERVAL: %w", err)
	}

	// DAYN_DEPHEALTH_GROUP — имя группы в метриках topologymetrics
	cfg.DephealthGroup = getEnvDefault("DAYN_DEPHEALTH_GROUP", "dayn")

	// DAYN_LOG_LEVEL — уровень логирования (по умолчанию info)
	cfg.LogLevel, err = parseLogLevel(getEnvDefault("DAYN_LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("DAYN_LOG_LEVEL: %w", err)
	}

	// DAYN_LOG_FORMAT — формат логов (по умолчанию json)
	cfg.LogFormat = getEnvDefault("DAYN_LOG_FORMAT", "json")
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return nil, fmt.Errorf("DAYN_LOG_FORMAT: недопустимое значение %q, допустимые: json, text", cfg.LogFormat)
	}

	// DAYN_SHUTDOWN_TIMEOUT — таймаут graceful shutdown (по умолчанию 5s)
	cfg.ShutdownTimeout, err = getEnvDuration("DAYN_SHUTDOWN_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("DAYN_SHUTDOWN_TIMEOUT: %w", err)
	}

	return cfg, nil
}

// SetupLogger настраивает глобальный slog-логгер на основе конфигурации.
func SetupLogger(cfg *Config) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}

	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// --- Вспомогательные функции ---

// getEnvRequired возвращает значение переменной окружения или ошибку, если она не задана.
func getEnvRequired(key string) (string, error) {
	val := os.Getenv(key)
	if val == "" {
		return "", fmt.Errorf("%s: обязательная переменная окружения не задана", key)
	}
	return val, nil
}

// getEnvDefault возвращает значение переменной окружения или значение по умолчанию.
func getEnvDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

// getEnvInt возвращает целочисленное значение переменной окружения или значение по умолчанию.
func getEnvInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("некорректное целое число: %q", val)
	}
	return n, nil
}

// getEnvInt64 возвращает int64 значение переменной окружения или значение по умолчанию.
func getEnvInt64(key string, defaultVal int64) (int64, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("некорректное целое число: %q", val)
	}
	return n, nil
}

// getEnvDuration возвращает time.Duration из переменной окружения или значение по умолчанию.
func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("некорректная длительность: %q (используйте формат Go: 30s, 5m, 24h)", val)
	}
	return d, nil
}

// parseLogLevel преобразует строку уровня логирования в slog.Level.
func parseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("недопустимый уровень %q, допустимые: debug, info, warn, error", level)
	}
}
