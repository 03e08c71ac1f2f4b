// Пакет media — загрузка медиа с внешних платформ через yt-dlp и ffmpeg.
//
// validate.go — распознавание платформы по URL сообщения.
package media

import "regexp"

// Platform — поддерживаемая платформа-источник.
type Platform string

const (
	// PlatformYouTube — youtube.com, youtu.be, music.youtube.com
	PlatformYouTube Platform = "youtube"
	// PlatformTikTok — tiktok.com и короткие ссылки vm/vt.tiktok.com
	PlatformTikTok Platform = "tiktok"
	// PlatformUnknown — URL не распознан
	PlatformUnknown Platform = "unknown"
)

var youtubePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^(https?://)?(www\.)?(youtube\.com|youtu\.be)/`),
	regexp.MustCompile(`(?i)^(https?://)?(m\.)?youtube\.com/`),
	regexp.MustCompile(`(?i)^(https?://)?(music\.)?youtube\.com/`),
}

var tiktokPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^(https?://)?(www\.)?tiktok\.com/`),
	regexp.MustCompile(`(?i)^(https?://)?(vm|vt)\.tiktok\.com/`),
	regexp.MustCompile(`(?i)^(https?://)?(m\.)?tiktok\.com/`),
}

// DetectPlatform распознаёт платформу по URL.
func DetectPlatform(url string) Platform {
	for _, p := range youtubePatterns {
		if p.MatchString(url) {
			return PlatformYouTube
		}
	}
	for _, p := range tiktokPatterns {
		if p.MatchString(url) {
			return PlatformTikTok
		}
	}
	return PlatformUnknown
}

// IsSupportedURL сообщает, умеет ли сервис работать с этим URL.
func IsSupportedURL(url string) bool {
	return DetectPlatform(url) != PlatformUnknown
}
