// Пакет registry — потокобезопасный in-memory реестр раздаваемых файлов.
//
// Реестр хранит записи token → FileRecord. RWMutex защищает только саму
// map; потребление записи (переход consumed false → true) выполняется
// атомарным CAS на флаге конкретной записи, поэтому скачивания разных
// токенов друг друга не сериализуют.
//
// Операции реестра не обращаются к диску, кроме проверки существования
// файла при регистрации, которой требует контракт. Персистентность
// сайдкаров — забота сервисного слоя.
package registry

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/DenysHerasymchuk/DAYN/internal/domain/model"
	"github.com/DenysHerasymchuk/DAYN/internal/storage/hostdir"
)

// ConsumeResult — исход попытки потребления записи.
type ConsumeResult int

const (
	// ConsumeOk — вызывающий выиграл переход consumed false → true
	ConsumeOk ConsumeResult = iota
	// ConsumeAlreadyConsumed — запись уже потреблена кем-то другим
	ConsumeAlreadyConsumed
	// ConsumeExpired — срок жизни записи истёк
	ConsumeExpired
	// ConsumeNotFound — токен неизвестен
	ConsumeNotFound
)

// String возвращает текстовое представление исхода для логов.
func (c ConsumeResult) String() string {
	switch c {
	case ConsumeOk:
		return "ok"
	case ConsumeAlreadyConsumed:
		return "already_consumed"
	case ConsumeExpired:
		return "expired"
	case ConsumeNotFound:
		return "not_found"
	default:
		return "unknown"
	}
}

// entry — внутреннее представление записи.
// Поля rec неизменяемы после вставки, кроме AudioToken (меняется только
// под write-lock); consumed живёт отдельным атомиком.
type entry struct {
	rec      model.FileRecord
	consumed atomic.Bool
}

// Registry — реестр раздаваемых файлов.
type Registry struct {
	mu     sync.RWMutex
	files  map[string]*entry // token → entry
	ready  bool
	logger *slog.Logger
}

// New создаёт пустой реестр. Готовность выставляется сервисным слоем
// после восстановления записей с диска.
func New(logger *slog.Logger) *Registry {
	return &Registry{
		files:  make(map[string]*entry),
		logger: logger.With(slog.String("component", "registry")),
	}
}

// Register создаёт запись с новым уникальным токеном.
// DisplayName очищается от небезопасных символов при вставке.
// Возвращает ошибку, если файла нет на диске или ttl не положительный.
func (r *Registry) Register(path string, sizeBytes int64, contentType, displayName string, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		return "", fmt.Errorf("ttl должен быть положительным, получено %v", ttl)
	}
	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("файл для регистрации недоступен: %w", err)
	}

	now := time.Now().UTC()
	rec := model.FileRecord{
		Path:        path,
		SizeBytes:   sizeBytes,
		ContentType: contentType,
		DisplayName: hostdir.SanitizeName(displayName),
		CreatedAt:   now,
		ExpiresAt:   now.Add(ttl),
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// Выданный токен никогда не переиспользуется для другого файла:
	// при коллизии (вероятность ничтожна) тянем новый.
	for {
		token, err := newToken()
		if err != nil {
			return "", err
		}
		if _, exists := r.files[token]; exists {
			r.logger.Warn("Коллизия токена, повторная генерация")
			continue
		}
		rec.Token = token
		r.files[token] = &entry{rec: rec}
		return token, nil
	}
}

// Lookup возвращает копию записи по токену.
// Состояние (consumed/истечение) вызывающий проверяет сам по текущему
// времени: оно производное и не кэшируется.
func (r *Registry) Lookup(token string) (*model.FileRecord, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.files[token]
	if !ok {
		return nil, false
	}

	copied := e.rec
	copied.Consumed = e.consumed.Load()
	return &copied, true
}

// TryConsume атомарно переводит запись в consumed.
// Ровно один из конкурентных вызовов получает ConsumeOk, остальные —
// ConsumeAlreadyConsumed. Истёкшие записи не потребляются.
func (r *Registry) TryConsume(token string) ConsumeResult {
	r.mu.RLock()
	e, ok := r.files[token]
	var expiresAt time.Time
	if ok {
		expiresAt = e.rec.ExpiresAt
	}
	r.mu.RUnlock()

	if !ok {
		return ConsumeNotFound
	}
	if e.consumed.Load() {
		return ConsumeAlreadyConsumed
	}
	if !time.Now().Before(expiresAt) {
		return ConsumeExpired
	}
	if !e.consumed.CompareAndSwap(false, true) {
		return ConsumeAlreadyConsumed
	}
	return ConsumeOk
}

// Remove удаляет запись из реестра. Идемпотентна: удаление
// несуществующего токена — no-op. Возвращает true, если запись была.
func (r *Registry) Remove(token string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.files[token]; !ok {
		return false
	}
	delete(r.files, token)
	return true
}

// Sweep удаляет все записи с истёкшим сроком или потреблённые
// и возвращает их копии — независимо от того, существуют ли ещё
// их файлы на диске. Используется уборщиком для сверки реестра
// с файловой системой.
func (r *Registry) Sweep(now time.Time) []model.FileRecord {
	r.mu.Lock()
	defer r.mu.Unlock()

	var removed []model.FileRecord
	for token, e := range r.files {
		consumed := e.consumed.Load()
		if !consumed && now.Before(e.rec.ExpiresAt) {
			continue
		}
		copied := e.rec
		copied.Consumed = consumed
		removed = append(removed, copied)
		delete(r.files, token)
	}
	return removed
}

// Restore вставляет запись, восстановленную из сайдкара, с её исходным
// токеном. Используется только при старте процесса.
func (r *Registry) Restore(rec *model.FileRecord) error {
	if rec.Token == "" {
		return fmt.Errorf("запись без токена не подлежит восстановлению")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.files[rec.Token]; exists {
		return fmt.Errorf("токен %s уже занят", rec.Token)
	}

	e := &entry{rec: *rec}
	e.rec.Consumed = false // флаг живёт в атомике
	e.consumed.Store(rec.Consumed)
	r.files[rec.Token] = e
	return nil
}

// SetAudioToken привязывает к записи токен аудиодорожки.
func (r *Registry) SetAudioToken(token, audioToken string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.files[token]
	if !ok {
		return fmt.Errorf("токен %s не найден", token)
	}
	e.rec.AudioToken = audioToken
	return nil
}

// List возвращает копии всех записей реестра.
func (r *Registry) List() []model.FileRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]model.FileRecord, 0, len(r.files))
	for _, e := range r.files {
		copied := e.rec
		copied.Consumed = e.consumed.Load()
		result = append(result, copied)
	}
	return result
}

// Count возвращает количество записей в реестре.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.files)
}

// SetReady помечает реестр готовым после восстановления с диска.
func (r *Registry) SetReady() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ready = true
}

// IsReady возвращает true, если реестр восстановлен и готов.
func (r *Registry) IsReady() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.ready
}

// newToken генерирует непредсказуемый токен: 128 бит из crypto/rand
// в hex-кодировке (32 символа, безопасно для URL).
func newToken() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("ошибка генерации токена: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
