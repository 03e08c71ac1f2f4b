// serving.go — сервис отдачи зарегистрированных файлов по токену.
//
// Обслуживает три операции HTTP-поверхности: информационную страницу,
// предпросмотр (range-стриминг без потребления) и одноразовое полное
// скачивание. Потребление выполняется строго после открытия файлового
// дескриптора: даже если janitor удалит запись и файл во время передачи,
// открытый дескриптор дочитывается до конца.
package service

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/DenysHerasymchuk/DAYN/internal/domain/model"
	"github.com/DenysHerasymchuk/DAYN/internal/registry"
	"github.com/DenysHerasymchuk/DAYN/internal/storage/attr"
	"github.com/DenysHerasymchuk/DAYN/internal/storage/hostdir"
)

// Имена страниц состояния, которые рендерит HTTP-слой.
const (
	PageActive   = "active"
	PageConsumed = "consumed"
	PageExpired  = "expired"
	PageNotFound = "notfound"
)

// Prometheus-метрики отдачи.
var (
	servesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dayn_serves_total",
		Help: "Общее количество обращений к записям реестра (по операции и исходу).",
	}, []string{"operation", "outcome"})

	servedBytesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dayn_served_bytes_total",
		Help: "Общее количество байт, отданных полными скачиваниями.",
	})

	activeTransfers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "dayn_active_transfers",
		Help: "Количество полных скачиваний в процессе передачи.",
	})
)

// ServeError — отказ в отдаче с HTTP-кодом и страницей для пользователя.
// Внутренние детали (пути, причины) не покидают сервис — наружу уходит
// только вариант страницы.
type ServeError struct {
	StatusCode int
	Page       string
}

func (e *ServeError) Error() string {
	return fmt.Sprintf("отдача отклонена: страница %s (HTTP %d)", e.Page, e.StatusCode)
}

// errForState сопоставляет производное состояние записи вариант страницы.
func errForState(state model.FileState) *ServeError {
	switch state {
	case model.StateConsumed:
		return &ServeError{StatusCode: http.StatusGone, Page: PageConsumed}
	case model.StateExpired:
		return &ServeError{StatusCode: http.StatusGone, Page: PageExpired}
	default:
		return &ServeError{StatusCode: http.StatusNotFound, Page: PageNotFound}
	}
}

// errNotFound — страница для неизвестного или исчезнувшего токена.
func errNotFound() *ServeError {
	return &ServeError{StatusCode: http.StatusNotFound, Page: PageNotFound}
}

// ServingService — сервис отдачи файлов по токенам реестра.
type ServingService struct {
	reg    *registry.Registry
	host   *hostdir.HostDir
	logger *slog.Logger
}

// NewServingService создаёт сервис отдачи.
func NewServingService(reg *registry.Registry, host *hostdir.HostDir, logger *slog.Logger) *ServingService {
	return &ServingService{
		reg:    reg,
		host:   host,
		logger: logger.With(slog.String("component", "serving")),
	}
}

// Describe возвращает запись для информационной страницы.
// Для активной записи — метаданные без внутренних путей, для остальных
// состояний — ошибку с вариантом страницы.
func (s *ServingService) Describe(token string) (*model.FileRecord, *ServeError) {
	rec, ok := s.reg.Lookup(token)
	if !ok {
		servesTotal.WithLabelValues("info", "not_found").Inc()
		return nil, errNotFound()
	}

	state := rec.State(time.Now())
	if state != model.StateActive {
		servesTotal.WithLabelValues("info", string(state)).Inc()
		return nil, errForState(state)
	}

	servesTotal.WithLabelValues("info", "ok").Inc()
	return rec, nil
}

// OpenPreview открывает файл активной записи для range-стриминга.
// Предпросмотр не потребляет запись и доступен любое количество раз.
// Вызывающий обязан закрыть возвращённый файл.
func (s *ServingService) OpenPreview(token string) (*os.File, *model.FileRecord, *ServeError) {
	rec, ok := s.reg.Lookup(token)
	if !ok {
		servesTotal.WithLabelValues("preview", "not_found").Inc()
		return nil, nil, errNotFound()
	}

	state := rec.State(time.Now())
	if state != model.StateActive {
		servesTotal.WithLabelValues("preview", string(state)).Inc()
		return nil, nil, errForState(state)
	}

	file, err := s.host.Open(rec.Path)
	if err != nil {
		s.logger.Error("Файл записи отсутствует на диске",
			slog.String("token", token),
			slog.String("error", err.Error()),
		)
		servesTotal.WithLabelValues("preview", "missing").Inc()
		return nil, nil, errNotFound()
	}

	servesTotal.WithLabelValues("preview", "ok").Inc()
	return file, rec, nil
}

// BeginDownload атомарно потребляет запись и открывает файл для полной
// передачи. Дескриптор открывается ДО потребления: запись, которую после
// этого выметет janitor, дочитывается из открытого дескриптора.
//
// Ровно один из конкурирующих вызовов получает файл; остальные —
// страницу "уже скачано". После полной передачи вызывающий обязан
// вызвать FinishDownload, после прерванной — AbortDownload.
func (s *ServingService) BeginDownload(token string) (*os.File, *model.FileRecord, *ServeError) {
	rec, ok := s.reg.Lookup(token)
	if !ok {
		servesTotal.WithLabelValues("download", "not_found").Inc()
		return nil, nil, errNotFound()
	}

	// Повторная попытка не должна трогать файл: у потреблённой записи
	// файла уже может не быть
	if state := rec.State(time.Now()); state != model.StateActive {
		servesTotal.WithLabelValues("download", string(state)).Inc()
		return nil, nil, errForState(state)
	}

	file, err := s.host.Open(rec.Path)
	if err != nil {
		s.logger.Error("Файл записи отсутствует на диске",
			slog.String("token", token),
			slog.String("error", err.Error()),
		)
		servesTotal.WithLabelValues("download", "missing").Inc()
		return nil, nil, errNotFound()
	}

	switch res := s.reg.TryConsume(token); res {
	case registry.ConsumeOk:
		// выиграли потребление
	case registry.ConsumeAlreadyConsumed:
		file.Close()
		servesTotal.WithLabelValues("download", "consumed").Inc()
		return nil, nil, errForState(model.StateConsumed)
	case registry.ConsumeExpired:
		file.Close()
		servesTotal.WithLabelValues("download", "expired").Inc()
		return nil, nil, errForState(model.StateExpired)
	default:
		file.Close()
		servesTotal.WithLabelValues("download", "not_found").Inc()
		return nil, nil, errNotFound()
	}

	// Фиксируем потребление в сайдкаре до начала передачи: после
	// перезапуска запись не должна снова стать активной
	rec.Consumed = true
	if err := attr.Write(attr.RecordFilePath(rec.Path), rec); err != nil {
		s.logger.Error("Ошибка фиксации потребления в сайдкаре",
			slog.String("token", token),
			slog.String("error", err.Error()),
		)
	}

	activeTransfers.Inc()
	servesTotal.WithLabelValues("download", "ok").Inc()

	s.logger.Info("Начата одноразовая передача файла",
		slog.String("token", token),
		slog.String("display_name", rec.DisplayName),
		slog.Int64("size_bytes", rec.SizeBytes),
	)

	return file, rec, nil
}

// FinishDownload завершает успешную полную передачу: удаляет файл
// данных с сайдкаром и убирает запись из реестра. Janitor такую запись
// уже не увидит.
func (s *ServingService) FinishDownload(rec *model.FileRecord) {
	activeTransfers.Dec()

	if err := s.host.Remove(rec.Path); err != nil {
		// Запись всё равно убираем: файл подберёт фаза очистки janitor
		s.logger.Error("Ошибка удаления файла после передачи",
			slog.String("token", rec.Token),
			slog.String("path", rec.Path),
			slog.String("error", err.Error()),
		)
	}
	s.reg.Remove(rec.Token)

	servedBytesTotal.Add(float64(rec.SizeBytes))
	refreshHostedMetrics(s.reg)

	s.logger.Info("Одноразовая передача завершена, файл удалён",
		slog.String("token", rec.Token),
		slog.Int64("size_bytes", rec.SizeBytes),
	)
}

// AbortDownload обрабатывает прерванную передачу: потребление не
// откатывается, файл удаляется — частично переданный файл не годится
// для второй попытки. Потреблённую запись уберёт ближайший sweep.
func (s *ServingService) AbortDownload(rec *model.FileRecord) {
	activeTransfers.Dec()

	if err := s.host.Remove(rec.Path); err != nil {
		s.logger.Error("Ошибка удаления файла после прерванной передачи",
			slog.String("token", rec.Token),
			slog.String("path", rec.Path),
			slog.String("error", err.Error()),
		)
	}

	s.logger.Warn("Передача прервана, файл удалён, запись остаётся потреблённой",
		slog.String("token", rec.Token),
		slog.String("display_name", rec.DisplayName),
	)
}
