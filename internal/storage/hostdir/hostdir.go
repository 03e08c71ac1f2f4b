// Пакет hostdir — операции с раздаваемыми файлами на диске.
// Файл и его сайдкар (.rec.json) живут и умирают вместе; удаление
// всегда идемпотентно, потому что эндпоинт выдачи и уборщик могут
// попытаться удалить один и тот же файл наперегонки.
package hostdir

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/DenysHerasymchuk/DAYN/internal/storage/attr"
)

// HostDir — корневая директория раздачи файлов.
type HostDir struct {
	root string
}

// New создаёт HostDir. Проверяет и создаёт директорию, если её нет.
func New(root string) (*HostDir, error) {
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("не удалось создать директорию хранения %s: %w", root, err)
	}
	return &HostDir{root: root}, nil
}

// Root возвращает путь к корневой директории.
func (h *HostDir) Root() string {
	return h.root
}

// Open открывает файл для потоковой отдачи.
// Вызывающий код обязан закрыть файл.
func (h *HostDir) Open(path string) (*os.File, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("файл не найден: %s", path)
		}
		return nil, fmt.Errorf("ошибка открытия файла %s: %w", path, err)
	}
	return f, nil
}

// FileExists проверяет существование файла на диске.
func (h *HostDir) FileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// FileSize возвращает размер файла на диске.
func (h *HostDir) FileSize(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, fmt.Errorf("ошибка получения информации о файле %s: %w", path, err)
	}
	return info.Size(), nil
}

// Remove удаляет файл данных вместе с его сайдкаром.
// Возвращает nil, если файлов уже нет.
func (h *HostDir) Remove(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("ошибка удаления файла %s: %w", path, err)
	}
	return attr.Delete(attr.RecordFilePath(path))
}

// CleanupStale убирает брошенные файлы из корневой директории:
// файлы старше maxAge, не принадлежащие живым записям реестра
// (остатки прямых отправок, недокачанные .tmp после падения процесса),
// и сайдкары, чей файл данных исчез.
// inUse сообщает, числится ли путь за живой записью реестра.
// Возвращает удалённые пути и список ошибок удаления.
func (h *HostDir) CleanupStale(now time.Time, maxAge time.Duration, inUse func(path string) bool) (removed []string, errs []string) {
	entries, err := os.ReadDir(h.root)
	if err != nil {
		return nil, []string{fmt.Sprintf("ошибка чтения директории %s: %v", h.root, err)}
	}

	cutoff := now.Add(-maxAge)

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}
		path := filepath.Join(h.root, name)

		// Сайдкар без файла данных бесполезен — убираем сразу
		if attr.IsRecordFile(name) {
			dataPath := attr.DataFilePathFromRecord(path)
			if !h.FileExists(dataPath) {
				if err := attr.Delete(path); err != nil {
					errs = append(errs, err.Error())
				} else {
					removed = append(removed, path)
				}
			}
			continue
		}

		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		if inUse != nil && inUse(path) {
			continue
		}

		if err := h.Remove(path); err != nil {
			errs = append(errs, err.Error())
			continue
		}
		removed = append(removed, path)
	}

	return removed, errs
}

// SanitizeName очищает имя файла для выдачи пользователю:
// убирает разделители путей, управляющие и прочие небезопасные символы.
// Оставляет буквы, цифры, кириллицу, пробел, дефис, подчёркивание и точку.
func SanitizeName(s string) string {
	var result strings.Builder
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') ||
			(r >= '0' && r <= '9') || r == '-' || r == '_' || r == '.' || r == ' ' ||
			(r >= 0x0400 && r <= 0x04FF) { // Кириллица
			result.WriteRune(r)
		}
	}

	name := strings.TrimSpace(result.String())
	if strings.Trim(name, ". ") == "" {
		return "file"
	}

	// Ограничиваем длину имени для предотвращения проблем с FS
	runes := []rune(name)
	if len(runes) > 150 {
		name = string(runes[:150])
	}
	return name
}
