// audio.go — извлечение аудиодорожки из уже загруженного видео через ffmpeg.
package media

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	execute "github.com/alexellis/go-execute/v2"
)

// ExtractAudio извлекает аудиодорожку из видеофайла в mp3 (192 кбит/с)
// рядом с исходником. Исходное видео не трогается.
func (c *Client) ExtractAudio(ctx context.Context, videoPath string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.downloadTO)
	defer cancel()

	base := strings.TrimSuffix(videoPath, filepath.Ext(videoPath))
	audioPath := base + "_audio.mp3"

	task := execute.ExecTask{
		Command: c.ffmpegPath,
		Args: []string{
			"-i", videoPath,
			"-vn",
			"-acodec", "libmp3lame",
			"-ab", "192k",
			"-y",
			audioPath,
		},
	}

	c.logger.Info("Извлечение аудиодорожки",
		slog.String("video", filepath.Base(videoPath)),
	)

	res, err := task.Execute(ctx)
	if err != nil {
		return "", fmt.Errorf("запуск ffmpeg: %w", err)
	}
	if res.ExitCode != 0 {
		c.logger.Error("ffmpeg вернул ошибку при извлечении аудио",
			slog.Int("exit_code", res.ExitCode),
			slog.String("stderr", truncate(res.Stderr, 500)),
		)
		return "", fmt.Errorf("ffmpeg завершился с кодом %d", res.ExitCode)
	}

	if _, err := os.Stat(audioPath); err != nil {
		return "", fmt.Errorf("аудиофайл не создан: %w", err)
	}

	c.logger.Info("Аудиодорожка извлечена",
		slog.String("path", audioPath),
	)

	return audioPath, nil
}
