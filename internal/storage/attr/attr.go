// Пакет attr — чтение и запись сайдкаров записей реестра (.rec.json).
// Каждый раздаваемый файл имеет сопутствующий *.rec.json, по которому
// реестр восстанавливается после перезапуска процесса.
// Все операции записи выполняются атомарно: temp → fsync → rename.
package attr

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/DenysHerasymchuk/DAYN/internal/domain/model"
)

// RecordSuffix — суффикс файла сайдкара.
const RecordSuffix = ".rec.json"

// maxRecordFileSize — максимальный допустимый размер .rec.json (4 КБ).
// Ограничение гарантирует атомарность записи.
const maxRecordFileSize = 4096

// RecordFilePath возвращает путь к сайдкару для данного файла данных.
// Пример: "temp/video.mp4" → "temp/video.mp4.rec.json"
func RecordFilePath(dataFilePath string) string {
	return dataFilePath + RecordSuffix
}

// DataFilePathFromRecord возвращает путь к файлу данных из пути сайдкара.
// Пример: "temp/video.mp4.rec.json" → "temp/video.mp4"
func DataFilePathFromRecord(recordPath string) string {
	return strings.TrimSuffix(recordPath, RecordSuffix)
}

// IsRecordFile проверяет, является ли путь файлом сайдкара.
func IsRecordFile(path string) bool {
	return strings.HasSuffix(path, RecordSuffix)
}

// Write атомарно записывает запись реестра в сайдкар.
// Паттерн: JSON → temp файл → fsync → atomic rename.
// Возвращает ошибку, если сериализованные данные превышают 4 КБ.
func Write(path string, rec *model.FileRecord) error {
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("ошибка сериализации записи: %w", err)
	}

	// Проверка размера для гарантии атомарности
	if len(data) > maxRecordFileSize {
		return fmt.Errorf("размер .rec.json (%d байт) превышает максимум (%d байт)", len(data), maxRecordFileSize)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("не удалось создать директорию %s: %w", dir, err)
	}

	// Атомарная запись: temp → fsync → rename
	tmpPath := path + ".tmp"

	f, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("ошибка создания временного файла: %w", err)
	}

	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("ошибка записи: %w", err)
	}

	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("ошибка fsync: %w", err)
	}

	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("ошибка закрытия файла: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("ошибка атомарного переименования: %w", err)
	}

	return nil
}

// Read читает и десериализует запись реестра из сайдкара.
// Возвращает ошибку, если файл не найден или содержит невалидный JSON.
func Read(path string) (*model.FileRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения .rec.json %s: %w", path, err)
	}

	var rec model.FileRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("ошибка десериализации .rec.json %s: %w", path, err)
	}

	return &rec, nil
}

// Delete удаляет сайдкар.
// Возвращает nil если файл уже не существует.
func Delete(path string) error {
	err := os.Remove(path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("ошибка удаления .rec.json %s: %w", path, err)
	}
	return nil
}

// ScanDir сканирует директорию и возвращает все записи из сайдкаров.
// Не рекурсивный — сканирует только указанную директорию.
// Используется при восстановлении реестра при старте.
func ScanDir(dir string) ([]*model.FileRecord, error) {
	pattern := filepath.Join(dir, "*"+RecordSuffix)
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return nil, fmt.Errorf("ошибка сканирования директории %s: %w", dir, err)
	}

	var result []*model.FileRecord
	for _, path := range matches {
		rec, err := Read(path)
		if err != nil {
			// Пропускаем невалидные сайдкары
			continue
		}
		result = append(result, rec)
	}

	return result, nil
}
