// ytdlp.go — клиент yt-dlp: запуск внешнего бинарника, выбор формата,
// поиск результата в рабочей директории.
package media

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	execute "github.com/alexellis/go-execute/v2"
	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"

	"github.com/DenysHerasymchuk/DAYN/internal/config"
)

// Client — обёртка над внешними бинарниками yt-dlp и ffmpeg.
// Все загрузки складываются в рабочую директорию хранения: дальше
// файлами распоряжаются маршрутизатор доставки и janitor.
type Client struct {
	ytdlpPath  string
	ffmpegPath string
	tempDir    string
	probeTO    time.Duration
	downloadTO time.Duration
	retries    int
	cfragments int
	logger     *slog.Logger
}

// NewClient создаёт клиент загрузки медиа.
func NewClient(cfg *config.Config, logger *slog.Logger) *Client {
	return &Client{
		ytdlpPath:  cfg.YtdlpPath,
		ffmpegPath: cfg.FfmpegPath,
		tempDir:    cfg.StorageDir,
		probeTO:    cfg.ProbeTimeout,
		downloadTO: cfg.DownloadTimeout,
		retries:    cfg.MaxDownloadRetries,
		cfragments: cfg.ConcurrentFragments,
		logger:     logger.With(slog.String("component", "media")),
	}
}

// Probe запрашивает метаданные медиа без загрузки (yt-dlp -J).
func (c *Client) Probe(ctx context.Context, url string) (*Info, error) {
	ctx, cancel := context.WithTimeout(ctx, c.probeTO)
	defer cancel()

	task := execute.ExecTask{
		Command: c.ytdlpPath,
		Args: []string{
			"-J",
			"--no-warnings",
			"--socket-timeout", "30",
			url,
		},
	}

	res, err := task.Execute(ctx)
	if err != nil {
		return nil, fmt.Errorf("запуск yt-dlp: %w", err)
	}
	if res.ExitCode != 0 {
		c.logger.Error("yt-dlp вернул ошибку при запросе метаданных",
			slog.Int("exit_code", res.ExitCode),
			slog.String("stderr", truncate(res.Stderr, 500)),
		)
		return nil, fmt.Errorf("yt-dlp завершился с кодом %d", res.ExitCode)
	}

	info, err := parseInfo(res.Stdout)
	if err != nil {
		return nil, err
	}

	c.logger.Info("Метаданные медиа получены",
		slog.String("video_id", info.VideoID),
		slog.String("title", info.Title),
		slog.Int("qualities", len(info.Qualities)),
	)

	return info, nil
}

// Download загружает видео с ограничением высоты кадра и возвращает
// путь к итоговому mp4-файлу в рабочей директории.
func (c *Client) Download(ctx context.Context, url string, height int) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.downloadTO)
	defer cancel()

	job := uuid.NewString()
	outTmpl := filepath.Join(c.tempDir, job+".%(ext)s")
	format := fmt.Sprintf(
		"bestvideo[height<=%d]+bestaudio[ext=m4a]/bestvideo[height<=%d]+bestaudio/best[height<=%d]",
		height, height, height,
	)

	task := execute.ExecTask{
		Command: c.ytdlpPath,
		Args: []string{
			"-f", format,
			"--merge-output-format", "mp4",
			"-o", outTmpl,
			"--no-warnings",
			"--socket-timeout", "30",
			"--retries", strconv.Itoa(c.retries),
			"--fragment-retries", strconv.Itoa(c.retries),
			"--extractor-retries", strconv.Itoa(c.retries),
			"--concurrent-fragments", strconv.Itoa(c.cfragments),
			"--ffmpeg-location", c.ffmpegPath,
			url,
		},
	}

	c.logger.Info("Начата загрузка видео",
		slog.String("job", job),
		slog.Int("height", height),
	)

	res, err := task.Execute(ctx)
	if err != nil {
		return "", fmt.Errorf("запуск yt-dlp: %w", err)
	}
	if res.ExitCode != 0 {
		c.logger.Error("yt-dlp вернул ошибку при загрузке",
			slog.String("job", job),
			slog.Int("exit_code", res.ExitCode),
			slog.String("stderr", truncate(res.Stderr, 500)),
		)
		return "", fmt.Errorf("yt-dlp завершился с кодом %d", res.ExitCode)
	}

	path, err := findOutput(c.tempDir, job, ".mp4")
	if err != nil {
		return "", err
	}

	c.logger.Info("Видео загружено",
		slog.String("job", job),
		slog.String("path", path),
	)

	return path, nil
}

// DownloadAudio загружает только аудиодорожку и возвращает путь
// к mp3-файлу.
func (c *Client) DownloadAudio(ctx context.Context, url string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.downloadTO)
	defer cancel()

	job := uuid.NewString()
	outTmpl := filepath.Join(c.tempDir, job+".%(ext)s")

	task := execute.ExecTask{
		Command: c.ytdlpPath,
		Args: []string{
			"-f", "bestaudio/best",
			"-x",
			"--audio-format", "mp3",
			"--audio-quality", "192K",
			"-o", outTmpl,
			"--no-warnings",
			"--socket-timeout", "30",
			"--retries", strconv.Itoa(c.retries),
			"--fragment-retries", strconv.Itoa(c.retries),
			"--extractor-retries", strconv.Itoa(c.retries),
			"--ffmpeg-location", c.ffmpegPath,
			url,
		},
	}

	c.logger.Info("Начата загрузка аудио", slog.String("job", job))

	res, err := task.Execute(ctx)
	if err != nil {
		return "", fmt.Errorf("запуск yt-dlp: %w", err)
	}
	if res.ExitCode != 0 {
		c.logger.Error("yt-dlp вернул ошибку при загрузке аудио",
			slog.String("job", job),
			slog.Int("exit_code", res.ExitCode),
			slog.String("stderr", truncate(res.Stderr, 500)),
		)
		return "", fmt.Errorf("yt-dlp завершился с кодом %d", res.ExitCode)
	}

	path, err := findOutput(c.tempDir, job, ".mp3")
	if err != nil {
		return "", err
	}

	c.logger.Info("Аудио загружено",
		slog.String("job", job),
		slog.String("path", path),
	)

	return path, nil
}

// DetectContentType определяет MIME-тип файла по содержимому.
func DetectContentType(path string) string {
	mtype, err := mimetype.DetectFile(path)
	if err != nil {
		return "application/octet-stream"
	}
	return mtype.String()
}

// findOutput ищет результат загрузки: сначала ожидаемое расширение,
// затем любой файл задания (yt-dlp мог выбрать другой контейнер).
func findOutput(dir, job, wantExt string) (string, error) {
	expected := filepath.Join(dir, job+wantExt)
	if _, err := os.Stat(expected); err == nil {
		return expected, nil
	}

	matches, err := filepath.Glob(filepath.Join(dir, job+".*"))
	if err != nil {
		return "", fmt.Errorf("поиск результата загрузки: %w", err)
	}
	for _, m := range matches {
		// Промежуточные части (.part, .ytdl) результатом не считаются
		ext := filepath.Ext(m)
		if ext == ".part" || ext == ".ytdl" || ext == ".tmp" {
			continue
		}
		return m, nil
	}

	return "", fmt.Errorf("файл задания %s не найден после загрузки", job)
}

// truncate обрезает строку для логов.
func truncate(s string, limit int) string {
	s = strings.TrimSpace(s)
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "..."
}
