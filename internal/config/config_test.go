package config

import (
	"log/slog"
	"os"
	"testing"
	"time"
)

// setEnvVars устанавливает переменные окружения для теста и возвращает
// функцию очистки. Всегда вызывать defer cleanup().
func setEnvVars(t *testing.T, vars map[string]string) func() {
	t.Helper()

	originals := make(map[string]string)
	origSet := make(map[string]bool)
	for k := range vars {
		if v, ok := os.LookupEnv(k); ok {
			originals[k] = v
			origSet[k] = true
		}
	}

	for k, v := range vars {
		os.Setenv(k, v)
	}

	return func() {
		for k := range vars {
			if origSet[k] {
				os.Setenv(k, originals[k])
			} else {
				os.Unsetenv(k)
			}
		}
	}
}

// clearAllEnvVars очищает все переменные окружения DAYN_* для чистого теста.
func clearAllEnvVars(t *testing.T) func() {
	t.Helper()
	keys := []string{
		"DAYN_BOT_TOKEN", "DAYN_HTTP_PORT", "DAYN_BASE_URL", "DAYN_STORAGE_DIR",
		"DAYN_FILE_TTL", "DAYN_MAX_DIRECT_SIZE", "DAYN_JANITOR_INTERVAL",
		"DAYN_STALE_FILE_AGE", "DAYN_DOWNLOAD_TIMEOUT", "DAYN_PROBE_TIMEOUT",
		"DAYN_MAX_DOWNLOAD_RETRIES", "DAYN_CONCURRENT_FRAGMENTS",
		"DAYN_YTDLP_PATH", "DAYN_FFMPEG_PATH", "DAYN_THROTTLE_INTERVAL",
		"DAYN_TELEGRAM_API_URL", "DAYN_DEPHEALTH_CHECK_INTERVAL",
		"DAYN_DEPHEALTH_GROUP", "DAYN_LOG_LEVEL", "DAYN_LOG_FORMAT",
		"DAYN_SHUTDOWN_TIMEOUT",
	}
	originals := make(map[string]string)
	origSet := make(map[string]bool)
	for _, k := range keys {
		if v, ok := os.LookupEnv(k); ok {
			originals[k] = v
			origSet[k] = true
		}
		os.Unsetenv(k)
	}
	return func() {
		for _, k := range keys {
			if origSet[k] {
				os.Setenv(k, originals[k])
			} else {
				os.Unsetenv(k)
			}
		}
	}
}

// requiredEnvVars возвращает минимальный набор обязательных переменных.
func requiredEnvVars() map[string]string {
	return map[string]string{
		"DAYN_BOT_TOKEN": "123456:test-token",
	}
}

func TestLoad_DefaultValues(t *testing.T) {
	cleanup := clearAllEnvVars(t)
	defer cleanup()

	cleanupVars := setEnvVars(t, requiredEnvVars())
	defer cleanupVars()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}

	if cfg.BotToken != "123456:test-token" {
		t.Errorf("BotToken: ожидалось '123456:test-token', получено %q", cfg.BotToken)
	}
	if cfg.Port != 8080 {
		t.Errorf("Port: ожидалось 8080, получено %d", cfg.Port)
	}
	if cfg.BaseURL != "http://localhost:8080" {
		t.Errorf("BaseURL: ожидалось 'http://localhost:8080', получено %q", cfg.BaseURL)
	}
	if cfg.StorageDir != "temp" {
		t.Errorf("StorageDir: ожидалось 'temp', получено %q", cfg.StorageDir)
	}
	if cfg.FileTTL != 30*time.Minute {
		t.Errorf("FileTTL: ожидалось 30m, получено %v", cfg.FileTTL)
	}
	if cfg.MaxDirectSize != 52428800 {
		t.Errorf("MaxDirectSize: ожидалось 52428800, получено %d", cfg.MaxDirectSize)
	}
	if cfg.JanitorInterval != 5*time.Minute {
		t.Errorf("JanitorInterval: ожидалось 5m, получено %v", cfg.JanitorInterval)
	}
	if cfg.StaleFileAge != 24*time.Hour {
		t.Errorf("StaleFileAge: ожидалось 24h, получено %v", cfg.StaleFileAge)
	}
	if cfg.DownloadTimeout != 5*time.Minute {
		t.Errorf("DownloadTimeout: ожидалось 5m, получено %v", cfg.DownloadTimeout)
	}
	if cfg.ProbeTimeout != 30*time.Second {
		t.Errorf("ProbeTimeout: ожидалось 30s, получено %v", cfg.ProbeTimeout)
	}
	if cfg.MaxDownloadRetries != 3 {
		t.Errorf("MaxDownloadRetries: ожидалось 3, получено %d", cfg.MaxDownloadRetries)
	}
	if cfg.ConcurrentFragments != 4 {
		t.Errorf("ConcurrentFragments: ожидалось 4, получено %d", cfg.ConcurrentFragments)
	}
	if cfg.YtdlpPath != "yt-dlp" {
		t.Errorf("YtdlpPath: ожидалось 'yt-dlp', получено %q", cfg.YtdlpPath)
	}
	if cfg.FfmpegPath != "ffmpeg" {
		t.Errorf("FfmpegPath: ожидалось 'ffmpeg', получено %q", cfg.FfmpegPath)
	}
	if cfg.ThrottleInterval != time.Second {
		t.Errorf("ThrottleInterval: ожидалось 1s, получено %v", cfg.ThrottleInterval)
	}
	if cfg.TelegramAPIURL != "https://api.telegram.org" {
		t.Errorf("TelegramAPIURL: ожидалось 'https://api.telegram.org', получено %q", cfg.TelegramAPIURL)
	}
	if cfg.DephealthCheckInterval != 30*time.Second {
		t.Errorf("DephealthCheckInterval: ожидалось 30s, получено %v", cfg.DephealthCheckInterval)
	}
	if cfg.LogLevel != slog.LevelInfo {
		t.Errorf("LogLevel: ожидалось INFO, получено %v", cfg.LogLevel)
	}
	if cfg.LogFormat != "json" {
		t.Errorf("LogFormat: ожидалось 'json', получено %q", cfg.LogFormat)
	}
	if cfg.ShutdownTimeout != 5*time.Second {
		t.Errorf("ShutdownTimeout: ожидалось 5s, получено %v", cfg.ShutdownTimeout)
	}
}

func TestLoad_AllCustomValues(t *testing.T) {
	cleanup := clearAllEnvVars(t)
	defer cleanup()

	vars := requiredEnvVars()
	vars["DAYN_HTTP_PORT"] = "9090"
	vars["DAYN_BASE_URL"] = "https://dayn.example.com"
	vars["DAYN_STORAGE_DIR"] = "/var/lib/dayn"
	vars["DAYN_FILE_TTL"] = "1h"
	vars["DAYN_MAX_DIRECT_SIZE"] = "20971520"
	vars["DAYN_JANITOR_INTERVAL"] = "1m"
	vars["DAYN_STALE_FILE_AGE"] = "6h"
	vars["DAYN_DOWNLOAD_TIMEOUT"] = "10m"
	vars["DAYN_PROBE_TIMEOUT"] = "15s"
	vars["DAYN_MAX_DOWNLOAD_RETRIES"] = "5"
	vars["DAYN_CONCURRENT_FRAGMENTS"] = "8"
	vars["DAYN_YTDLP_PATH"] = "/usr/local/bin/yt-dlp"
	vars["DAYN_FFMPEG_PATH"] = "/usr/local/bin/ffmpeg"
	vars["DAYN_THROTTLE_INTERVAL"] = "2s"
	vars["DAYN_LOG_LEVEL"] = "debug"
	vars["DAYN_LOG_FORMAT"] = "text"
	vars["DAYN_SHUTDOWN_TIMEOUT"] = "10s"

	cleanupVars := setEnvVars(t, vars)
	defer cleanupVars()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}

	if cfg.Port != 9090 {
		t.Errorf("Port: ожидалось 9090, получено %d", cfg.Port)
	}
	if cfg.BaseURL != "https://dayn.example.com" {
		t.Errorf("BaseURL: ожидалось 'https://dayn.example.com', получено %q", cfg.BaseURL)
	}
	if cfg.StorageDir != "/var/lib/dayn" {
		t.Errorf("StorageDir: ожидалось '/var/lib/dayn', получено %q", cfg.StorageDir)
	}
	if cfg.FileTTL != time.Hour {
		t.Errorf("FileTTL: ожидалось 1h, получено %v", cfg.FileTTL)
	}
	if cfg.MaxDirectSize != 20971520 {
		t.Errorf("MaxDirectSize: ожидалось 20971520, получено %d", cfg.MaxDirectSize)
	}
	if cfg.JanitorInterval != time.Minute {
		t.Errorf("JanitorInterval: ожидалось 1m, получено %v", cfg.JanitorInterval)
	}
	if cfg.StaleFileAge != 6*time.Hour {
		t.Errorf("StaleFileAge: ожидалось 6h, получено %v", cfg.StaleFileAge)
	}
	if cfg.DownloadTimeout != 10*time.Minute {
		t.Errorf("DownloadTimeout: ожидалось 10m, получено %v", cfg.DownloadTimeout)
	}
	if cfg.ProbeTimeout != 15*time.Second {
		t.Errorf("ProbeTimeout: ожидалось 15s, получено %v", cfg.ProbeTimeout)
	}
	if cfg.MaxDownloadRetries != 5 {
		t.Errorf("MaxDownloadRetries: ожидалось 5, получено %d", cfg.MaxDownloadRetries)
	}
	if cfg.ConcurrentFragments != 8 {
		t.Errorf("ConcurrentFragments: ожидалось 8, получено %d", cfg.ConcurrentFragments)
	}
	if cfg.ThrottleInterval != 2*time.Second {
		t.Errorf("ThrottleInterval: ожидалось 2s, получено %v", cfg.ThrottleInterval)
	}
	if cfg.LogLevel != slog.LevelDebug {
		t.Errorf("LogLevel: ожидалось DEBUG, получено %v", cfg.LogLevel)
	}
	if cfg.LogFormat != "text" {
		t.Errorf("LogFormat: ожидалось 'text', получено %q", cfg.LogFormat)
	}
	if cfg.ShutdownTimeout != 10*time.Second {
		t.Errorf("ShutdownTimeout: ожидалось 10s, получено %v", cfg.ShutdownTimeout)
	}
}

func TestLoad_MissingBotToken(t *testing.T) {
	cleanup := clearAllEnvVars(t)
	defer cleanup()

	_, err := Load()
	if err == nil {
		t.Error("ожидалась ошибка при отсутствии DAYN_BOT_TOKEN")
	}
}

// TestLoad_BaseURLTrailingSlash проверяет, что завершающий / отрезается.
func TestLoad_BaseURLTrailingSlash(t *testing.T) {
	cleanup := clearAllEnvVars(t)
	defer cleanup()

	vars := requiredEnvVars()
	vars["DAYN_BASE_URL"] = "https://dayn.example.com/"
	cleanupVars := setEnvVars(t, vars)
	defer cleanupVars()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}
	if cfg.BaseURL != "https://dayn.example.com" {
		t.Errorf("BaseURL: ожидалось без завершающего /, получено %q", cfg.BaseURL)
	}
}

func TestLoad_InvalidPort(t *testing.T) {
	tests := []struct {
		name  string
		value string
	}{
		{"нулевой", "0"},
		{"отрицательный", "-1"},
		{"выше диапазона", "70000"},
		{"не число", "abc"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cleanup := clearAllEnvVars(t)
			defer cleanup()

			vars := requiredEnvVars()
			vars["DAYN_HTTP_PORT"] = tt.value
			cleanupVars := setEnvVars(t, vars)
			defer cleanupVars()

			_, err := Load()
			if err == nil {
				t.Errorf("ожидалась ошибка для DAYN_HTTP_PORT=%s", tt.value)
			}
		})
	}
}

func TestLoad_InvalidTTL(t *testing.T) {
	tests := []struct {
		name  string
		value string
	}{
		{"не длительность", "полчаса"},
		{"нулевая", "0s"},
		{"отрицательная", "-30m"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cleanup := clearAllEnvVars(t)
			defer cleanup()

			vars := requiredEnvVars()
			vars["DAYN_FILE_TTL"] = tt.value
			cleanupVars := setEnvVars(t, vars)
			defer cleanupVars()

			_, err := Load()
			if err == nil {
				t.Errorf("ожидалась ошибка для DAYN_FILE_TTL=%s", tt.value)
			}
		})
	}
}

func TestLoad_InvalidMaxDirectSize(t *testing.T) {
	tests := []struct {
		name  string
		value string
	}{
		{"не число", "abc"},
		{"нулевое", "0"},
		{"отрицательное", "-100"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cleanup := clearAllEnvVars(t)
			defer cleanup()

			vars := requiredEnvVars()
			vars["DAYN_MAX_DIRECT_SIZE"] = tt.value
			cleanupVars := setEnvVars(t, vars)
			defer cleanupVars()

			_, err := Load()
			if err == nil {
				t.Errorf("ожидалась ошибка для DAYN_MAX_DIRECT_SIZE=%s", tt.value)
			}
		})
	}
}

func TestLoad_InvalidDuration(t *testing.T) {
	durationVars := []string{
		"DAYN_JANITOR_INTERVAL", "DAYN_STALE_FILE_AGE",
		"DAYN_DOWNLOAD_TIMEOUT", "DAYN_PROBE_TIMEOUT",
		"DAYN_THROTTLE_INTERVAL", "DAYN_DEPHEALTH_CHECK_INTERVAL",
		"DAYN_SHUTDOWN_TIMEOUT",
	}

	for _, varName := range durationVars {
		t.Run(varName, func(t *testing.T) {
			cleanup := clearAllEnvVars(t)
			defer cleanup()

			vars := requiredEnvVars()
			vars[varName] = "not-a-duration"
			cleanupVars := setEnvVars(t, vars)
			defer cleanupVars()

			_, err := Load()
			if err == nil {
				t.Errorf("ожидалась ошибка для невалидного %s", varName)
			}
		})
	}
}

func TestLoad_InvalidLogLevel(t *testing.T) {
	cleanup := clearAllEnvVars(t)
	defer cleanup()

	vars := requiredEnvVars()
	vars["DAYN_LOG_LEVEL"] = "invalid"
	cleanupVars := setEnvVars(t, vars)
	defer cleanupVars()

	_, err := Load()
	if err == nil {
		t.Error("ожидалась ошибка для невалидного DAYN_LOG_LEVEL")
	}
}

func TestLoad_InvalidLogFormat(t *testing.T) {
	cleanup := clearAllEnvVars(t)
	defer cleanup()

	vars := requiredEnvVars()
	vars["DAYN_LOG_FORMAT"] = "yaml"
	cleanupVars := setEnvVars(t, vars)
	defer cleanupVars()

	_, err := Load()
	if err == nil {
		t.Error("ожидалась ошибка для невалидного DAYN_LOG_FORMAT")
	}
}

func TestLoad_ValidLogLevels(t *testing.T) {
	tests := []struct {
		input    string
		expected slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"DEBUG", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			cleanup := clearAllEnvVars(t)
			defer cleanup()

			vars := requiredEnvVars()
			vars["DAYN_LOG_LEVEL"] = tt.input
			cleanupVars := setEnvVars(t, vars)
			defer cleanupVars()

			cfg, err := Load()
			if err != nil {
				t.Fatalf("неожиданная ошибка: %v", err)
			}
			if cfg.LogLevel != tt.expected {
				t.Errorf("LogLevel: ожидалось %v, получено %v", tt.expected, cfg.LogLevel)
			}
		})
	}
}

func TestSetupLogger(t *testing.T) {
	tests := []struct {
		name   string
		format string
	}{
		{"json", "json"},
		{"text", "text"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{
				LogLevel:  slog.LevelInfo,
				LogFormat: tt.format,
			}
			logger := SetupLogger(cfg)
			if logger == nil {
				t.Fatal("SetupLogger вернул nil")
			}
		})
	}
}
