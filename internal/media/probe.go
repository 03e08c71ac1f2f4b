// probe.go — разбор метаданных yt-dlp (-J) и оценка размеров.
package media

import (
	"fmt"
	"sort"

	"github.com/tidwall/gjson"
)

// Стандартные высоты кадра, предлагаемые пользователю.
var knownHeights = []int64{144, 240, 360, 480, 720, 1080, 1440, 2160}

// Консервативная оценка размера видеодорожки, МБ в минуту,
// когда yt-dlp не сообщает размер формата.
var videoMBPerMinute = map[int64]float64{
	144:  1,
	240:  2,
	360:  5,
	480:  8,
	720:  15,
	1080: 25,
	1440: 40,
	2160: 60,
}

// audioMBPerMinute — оценка размера аудиодорожки, МБ в минуту.
const audioMBPerMinute = 3

const mb = 1024 * 1024

// maxTitleLen — предел длины заголовка в метаданных.
const maxTitleLen = 100

// QualityOption — доступное качество с суммарным размером
// (видео + аудио). Estimated — размер рассчитан, а не сообщён.
type QualityOption struct {
	Height    int64
	SizeBytes int64
	Estimated bool
}

// Info — метаданные медиа, достаточные для диалога выбора качества.
type Info struct {
	VideoID   string
	Title     string
	Author    string
	Duration  string
	Qualities []QualityOption
	// AudioSizeBytes — размер лучшей аудиодорожки (для «только аудио»)
	AudioSizeBytes int64
	AudioEstimated bool
	Thumbnail      string
}

// parseInfo разбирает JSON-вывод yt-dlp -J.
// Плейлист из одного элемента (редирект Shorts) разворачивается.
func parseInfo(raw string) (*Info, error) {
	if !gjson.Valid(raw) {
		return nil, fmt.Errorf("некорректный JSON от yt-dlp")
	}
	root := gjson.Parse(raw)
	if !root.IsObject() {
		return nil, fmt.Errorf("некорректный JSON от yt-dlp")
	}

	if entries := root.Get("entries"); entries.Exists() && len(entries.Array()) > 0 {
		root = entries.Array()[0]
	}

	title := root.Get("title").String()
	if title == "" {
		title = "Видео"
	}
	titleRunes := []rune(title)
	if len(titleRunes) > maxTitleLen {
		title = string(titleRunes[:maxTitleLen])
	}

	durationSec := root.Get("duration").Int()

	info := &Info{
		VideoID:   root.Get("id").String(),
		Title:     title,
		Author:    root.Get("uploader").String(),
		Duration:  formatDuration(durationSec),
		Thumbnail: root.Get("thumbnail").String(),
	}
	if info.VideoID == "" {
		return nil, fmt.Errorf("yt-dlp не сообщил идентификатор медиа")
	}

	// Лучшая аудиодорожка: максимальный сообщённый размер среди
	// форматов без видеопотока
	var bestAudio int64
	root.Get("formats").ForEach(func(_, fmtv gjson.Result) bool {
		if fmtv.Get("acodec").String() != "none" && fmtv.Get("vcodec").String() == "none" {
			size := formatSize(fmtv)
			if size > bestAudio {
				bestAudio = size
			}
		}
		return true
	})
	info.AudioSizeBytes = bestAudio
	if bestAudio == 0 {
		info.AudioSizeBytes = estimateAudioSize(durationSec)
		info.AudioEstimated = true
	}

	// Видеоформаты: наименьший сообщённый размер на каждую известную высоту
	videoSizes := map[int64]int64{}
	root.Get("formats").ForEach(func(_, fmtv gjson.Result) bool {
		if fmtv.Get("vcodec").String() == "none" {
			return true
		}
		height := fmtv.Get("height").Int()
		if !isKnownHeight(height) {
			return true
		}
		size := formatSize(fmtv)
		if size == 0 {
			if _, seen := videoSizes[height]; !seen {
				videoSizes[height] = 0
			}
			return true
		}
		if existing, seen := videoSizes[height]; !seen || existing == 0 || size < existing {
			videoSizes[height] = size
		}
		return true
	})

	for height, videoSize := range videoSizes {
		opt := QualityOption{Height: height}
		if videoSize == 0 {
			opt.SizeBytes = estimateVideoSize(height, durationSec) + info.AudioSizeBytes
			opt.Estimated = true
		} else {
			opt.SizeBytes = videoSize + info.AudioSizeBytes
			opt.Estimated = info.AudioEstimated
		}
		info.Qualities = append(info.Qualities, opt)
	}

	// От высокого качества к низкому
	sort.Slice(info.Qualities, func(i, j int) bool {
		return info.Qualities[i].Height > info.Qualities[j].Height
	})

	return info, nil
}

// formatSize возвращает размер формата: точный или приблизительный.
func formatSize(fmtv gjson.Result) int64 {
	if size := fmtv.Get("filesize").Int(); size > 0 {
		return size
	}
	return fmtv.Get("filesize_approx").Int()
}

func isKnownHeight(height int64) bool {
	for _, h := range knownHeights {
		if h == height {
			return true
		}
	}
	return false
}

// estimateVideoSize оценивает размер видеодорожки по высоте и длительности.
func estimateVideoSize(height, durationSec int64) int64 {
	if durationSec == 0 {
		durationSec = 300
	}
	mbPerMin, ok := videoMBPerMinute[height]
	if !ok {
		mbPerMin = 5
	}
	minutes := float64(durationSec) / 60
	return int64(mbPerMin * minutes * mb)
}

// estimateAudioSize оценивает размер аудиодорожки по длительности.
func estimateAudioSize(durationSec int64) int64 {
	if durationSec == 0 {
		durationSec = 300
	}
	minutes := float64(durationSec) / 60
	return int64(audioMBPerMinute * minutes * mb)
}

// formatDuration форматирует длительность в Ч:ММ:СС или М:СС.
func formatDuration(seconds int64) string {
	if seconds <= 0 {
		return "неизвестно"
	}

	hours := seconds / 3600
	minutes := (seconds % 3600) / 60
	secs := seconds % 60

	if hours > 0 {
		return fmt.Sprintf("%d:%02d:%02d", hours, minutes, secs)
	}
	return fmt.Sprintf("%d:%02d", minutes, secs)
}
