// preview.go — потоковый предпросмотр без потребления записи.
package handlers

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// Preview обрабатывает GET /preview/{token}.
// Отдаёт содержимое файла через http.ServeContent: Range-запросы (206)
// для перемотки в плеере работают из коробки. Предпросмотр никогда не
// потребляет запись — одноразовость относится только к полной выдаче.
func (h *FilesHandler) Preview(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")

	file, rec, serr := h.serving.OpenPreview(token)
	if serr != nil {
		h.renderServeError(w, serr)
		return
	}
	defer file.Close()

	w.Header().Set("Content-Type", rec.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=\"%s\"", rec.DisplayName))

	// ServeContent сам обрабатывает Range / If-Modified-Since и
	// выставляет Content-Length и Accept-Ranges
	http.ServeContent(w, r, rec.DisplayName, modTimeOrCreated(file, rec.CreatedAt), file)
}
