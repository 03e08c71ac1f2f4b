// download.go — информационная страница раздаваемого файла.
package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/DenysHerasymchuk/DAYN/internal/service"
)

// Info обрабатывает GET /download/{token}.
// Показывает страницу с именем, размером, сроком действия, предпросмотром
// и кнопкой одноразового скачивания. Запись не потребляется: страницу
// можно открывать сколько угодно раз, пока ссылка активна.
func (h *FilesHandler) Info(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")

	rec, serr := h.serving.Describe(token)
	if serr != nil {
		h.renderServeError(w, serr)
		return
	}

	h.renderPage(w, http.StatusOK, service.PageActive, activeData(rec))
}
