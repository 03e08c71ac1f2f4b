// files.go — одноразовая полная выдача файла.
package handlers

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
)

// Download обрабатывает GET /files/{token}.
// Ровно одна из конкурирующих попыток потребляет запись и получает
// поток; остальные видят страницу «уже скачано». После полной передачи
// файл удаляется с диска. Прерванная передача тоже оставляет запись
// потреблённой: частично переданный файл второй попытки не получает.
func (h *FilesHandler) Download(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")

	file, rec, serr := h.serving.BeginDownload(token)
	if serr != nil {
		h.renderServeError(w, serr)
		return
	}
	defer file.Close()

	w.Header().Set("Content-Type", rec.ContentType)
	w.Header().Set("Content-Length", strconv.FormatInt(rec.SizeBytes, 10))
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"", rec.DisplayName))
	w.WriteHeader(http.StatusOK)

	written, err := io.Copy(w, file)
	if err == nil && written == rec.SizeBytes {
		h.serving.FinishDownload(rec)
		return
	}

	// Обрыв соединения или неполная передача: файл удаляется,
	// потребление не откатывается
	if err != nil {
		h.logger.Warn("Передача файла прервана",
			slog.String("token", token),
			slog.Int64("written_bytes", written),
			slog.Int64("size_bytes", rec.SizeBytes),
			slog.String("error", err.Error()),
		)
	} else {
		h.logger.Warn("Передача файла неполная",
			slog.String("token", token),
			slog.Int64("written_bytes", written),
			slog.Int64("size_bytes", rec.SizeBytes),
		)
	}
	h.serving.AbortDownload(rec)
}
