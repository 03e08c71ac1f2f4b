// Пакет handlers — HTTP-обработчики поверхности раздачи DAYN.
//
// Обработчики тонкие: разбор запроса, вызов сервиса, рендер страницы
// или потоковая передача. Вся логика состояний и потребления — в
// сервисном слое.
package handlers

import (
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/DenysHerasymchuk/DAYN/internal/domain/model"
	"github.com/DenysHerasymchuk/DAYN/internal/service"
	"github.com/DenysHerasymchuk/DAYN/internal/web/pages"
)

// expiresAtLayout — формат отметки истечения на информационной странице.
const expiresAtLayout = "15:04 02.01.2006 UTC"

// FilesHandler обслуживает страницы и потоковую выдачу раздаваемых файлов.
type FilesHandler struct {
	serving *service.ServingService
	pages   *pages.Renderer
	logger  *slog.Logger
}

// NewFilesHandler создаёт обработчик поверхности раздачи.
func NewFilesHandler(serving *service.ServingService, renderer *pages.Renderer, logger *slog.Logger) *FilesHandler {
	return &FilesHandler{
		serving: serving,
		pages:   renderer,
		logger:  logger.With(slog.String("component", "handlers")),
	}
}

// renderPage отрисовывает именованную страницу с указанным HTTP-статусом.
func (h *FilesHandler) renderPage(w http.ResponseWriter, statusCode int, page string, data any) {
	html, err := h.pages.Render(page, data)
	if err != nil {
		h.logger.Error("Ошибка рендера страницы",
			slog.String("page", page),
			slog.String("error", err.Error()),
		)
		http.Error(w, "внутренняя ошибка сервера", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(statusCode)
	_, _ = io.WriteString(w, html)
}

// renderServeError отрисовывает страницу отказа сервиса отдачи.
func (h *FilesHandler) renderServeError(w http.ResponseWriter, serr *service.ServeError) {
	h.renderPage(w, serr.StatusCode, serr.Page, nil)
}

// activeData строит данные информационной страницы из записи реестра.
// Внутренний путь записи на страницу не попадает: ссылки строятся
// только из токенов.
func activeData(rec *model.FileRecord) pages.ActiveData {
	data := pages.ActiveData{
		DisplayName: rec.DisplayName,
		SizeHuman:   humanize.Bytes(uint64(rec.SizeBytes)),
		ExpiresAt:   rec.ExpiresAt.UTC().Format(expiresAtLayout),
		PreviewURL:  "/preview/" + rec.Token,
		FileURL:     "/files/" + rec.Token,
		IsVideo:     strings.HasPrefix(rec.ContentType, "video/"),
		IsAudio:     strings.HasPrefix(rec.ContentType, "audio/"),
	}

	if rec.AudioToken != "" {
		data.HasAudio = true
		data.AudioURL = "/files/" + rec.AudioToken
	}

	return data
}

// modTimeOrCreated возвращает время модификации файла для ServeContent.
// Если Stat недоступен, берём момент регистрации записи.
func modTimeOrCreated(file *os.File, created time.Time) time.Time {
	stat, err := file.Stat()
	if err != nil {
		return created
	}
	return stat.ModTime()
}
