// Пакет model — доменные модели сервиса DAYN.
// FileRecord — единая структура записи реестра, используется
// как in-memory представление и как формат сайдкара .rec.json на диске.
package model

import (
	"time"
)

// FileState — производное состояние записи реестра.
// Не хранится: вычисляется при обращении из consumed и expires_at.
type FileState string

const (
	// StateActive — ссылка действительна, файл доступен
	StateActive FileState = "active"
	// StateConsumed — файл уже скачан, повторная выдача невозможна
	StateConsumed FileState = "consumed"
	// StateExpired — срок жизни ссылки истёк
	StateExpired FileState = "expired"
)

// FileRecord — запись реестра раздачи. Соответствует содержимому .rec.json.
// Поле Path не попадает на страницы и в ответы HTTP, только внутрь сервиса.
type FileRecord struct {
	// Token — непредсказуемый идентификатор записи (128 бит, hex).
	// Единственная внешняя ручка к файлу.
	Token string `json:"token"`

	// Path — путь к файлу на диске. Файлом владеет запись:
	// никто, кроме реестра и эндпоинта выдачи, его не удаляет.
	Path string `json:"path"`

	// SizeBytes — размер файла в байтах, фиксируется при регистрации
	SizeBytes int64 `json:"size_bytes"`

	// ContentType — MIME-тип для заголовков ответа
	ContentType string `json:"content_type"`

	// DisplayName — имя файла для скачивания, уже очищенное
	DisplayName string `json:"display_name"`

	// CreatedAt — момент регистрации (UTC)
	CreatedAt time.Time `json:"created_at"`

	// ExpiresAt — момент истечения: created_at + ttl. Доступом не продлевается.
	ExpiresAt time.Time `json:"expires_at"`

	// Consumed — true после первой успешной полной выдачи.
	// Переход false → true происходит ровно один раз.
	Consumed bool `json:"consumed"`

	// AudioToken — токен записи с аудиодорожкой этого видео (опционально)
	AudioToken string `json:"audio_token,omitempty"`
}

// IsExpired проверяет, истёк ли срок жизни записи.
func (r *FileRecord) IsExpired(now time.Time) bool {
	return !now.Before(r.ExpiresAt)
}

// State возвращает производное состояние записи на момент now.
// Consumed имеет приоритет над истечением: скачанный файл остаётся
// «скачанным» и после истечения срока, пока запись не убрана уборщиком.
func (r *FileRecord) State(now time.Time) FileState {
	if r.Consumed {
		return StateConsumed
	}
	if r.IsExpired(now) {
		return StateExpired
	}
	return StateActive
}
