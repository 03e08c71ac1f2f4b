// delivery.go — сервис маршрутизации доставки готовых файлов.
//
// Для каждого скачанного файла решает: отправить напрямую через транспорт
// (размер в пределах лимита) или передать файл во владение реестру и
// вернуть одноразовую ссылку. При передаче в реестр рядом с файлом
// атомарно пишется сайдкар .rec.json — по нему реестр восстанавливается
// после перезапуска.
package service

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/DenysHerasymchuk/DAYN/internal/registry"
	"github.com/DenysHerasymchuk/DAYN/internal/storage/attr"
)

// Prometheus-метрики доставки.
var (
	deliveriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dayn_deliveries_total",
		Help: "Общее количество маршрутизированных доставок (по способу).",
	}, []string{"route"})

	hostedFiles = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "dayn_hosted_files",
		Help: "Текущее количество записей в реестре раздачи.",
	})

	hostedBytes = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "dayn_hosted_bytes",
		Help: "Суммарный размер файлов, ожидающих скачивания по ссылке.",
	})

	restoredRecordsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dayn_restored_records_total",
		Help: "Количество записей, восстановленных из сайдкаров при старте.",
	})
)

// refreshHostedMetrics актуализирует gauge-метрики реестра раздачи.
// Вызывается после каждой операции, меняющей состав реестра:
// регистрации, восстановления, завершённой выдачи и прохода janitor.
func refreshHostedMetrics(reg *registry.Registry) {
	records := reg.List()
	var total int64
	for _, rec := range records {
		total += rec.SizeBytes
	}
	hostedFiles.Set(float64(len(records)))
	hostedBytes.Set(float64(total))
}

// DeliveryKind — способ доставки файла пользователю.
type DeliveryKind int

const (
	// DeliveryDirect — файл отправляется напрямую через транспорт.
	// Файл остаётся во владении вызывающего: он отправляет и удаляет его сам.
	DeliveryDirect DeliveryKind = iota
	// DeliveryLink — файл передан реестру, пользователю отправляется ссылка.
	// Вызывающий НЕ должен удалять файл: им владеет реестр.
	DeliveryLink
)

// Decision — результат маршрутизации одного файла.
type Decision struct {
	// Kind — выбранный способ доставки
	Kind DeliveryKind
	// Token — токен записи реестра (только для DeliveryLink)
	Token string
	// URL — одноразовая ссылка для пользователя (только для DeliveryLink)
	URL string
}

// DeliveryService — маршрутизатор доставки готовых файлов.
type DeliveryService struct {
	reg           *registry.Registry
	baseURL       string
	maxDirectSize int64
	fileTTL       time.Duration
	logger        *slog.Logger
}

// NewDeliveryService создаёт сервис маршрутизации доставки.
func NewDeliveryService(
	reg *registry.Registry,
	baseURL string,
	maxDirectSize int64,
	fileTTL time.Duration,
	logger *slog.Logger,
) *DeliveryService {
	return &DeliveryService{
		reg:           reg,
		baseURL:       baseURL,
		maxDirectSize: maxDirectSize,
		fileTTL:       fileTTL,
		logger:        logger.With(slog.String("component", "delivery")),
	}
}

// Route решает способ доставки готового файла.
//
// Решение принимается по точному размеру файла:
//   - size <= maxDirectSize → DeliveryDirect, файл остаётся у вызывающего
//   - иначе → регистрация в реестре, запись сайдкара, DeliveryLink
//
// Размер — фактический байтовый размер готового артефакта, без оценок.
func (ds *DeliveryService) Route(path string, sizeBytes int64, contentType, displayName string) (*Decision, error) {
	if sizeBytes <= ds.maxDirectSize {
		deliveriesTotal.WithLabelValues("direct").Inc()
		ds.logger.Debug("Файл отправляется напрямую",
			slog.String("path", path),
			slog.Int64("size_bytes", sizeBytes),
		)
		return &Decision{Kind: DeliveryDirect}, nil
	}

	token, err := ds.reg.Register(path, sizeBytes, contentType, displayName, ds.fileTTL)
	if err != nil {
		return nil, fmt.Errorf("регистрация файла в реестре: %w", err)
	}

	// Сайдкар — страховка на случай перезапуска. Ошибка записи не
	// отменяет регистрацию: запись живёт в памяти, осиротевший файл
	// подберёт janitor.
	ds.persistSidecar(token)

	url := ds.buildURL(token)
	deliveriesTotal.WithLabelValues("link").Inc()
	refreshHostedMetrics(ds.reg)

	ds.logger.Info("Файл передан в реестр раздачи",
		slog.String("token", token),
		slog.Int64("size_bytes", sizeBytes),
		slog.String("display_name", displayName),
	)

	return &Decision{Kind: DeliveryLink, Token: token, URL: url}, nil
}

// AttachAudio регистрирует аудиодорожку как сопутствующую запись
// видео-токена. Страница скачивания видео дополнительно покажет
// ссылку на аудио. Возвращает URL аудиозаписи.
func (ds *DeliveryService) AttachAudio(videoToken, audioPath string, sizeBytes int64, contentType, displayName string) (string, error) {
	if _, ok := ds.reg.Lookup(videoToken); !ok {
		return "", fmt.Errorf("видео-токен %s не найден в реестре", videoToken)
	}

	audioToken, err := ds.reg.Register(audioPath, sizeBytes, contentType, displayName, ds.fileTTL)
	if err != nil {
		return "", fmt.Errorf("регистрация аудиодорожки: %w", err)
	}

	if err := ds.reg.SetAudioToken(videoToken, audioToken); err != nil {
		// Видео-запись исчезла между Lookup и привязкой — аудио остаётся
		// самостоятельной записью, ссылка всё равно рабочая
		ds.logger.Warn("Не удалось привязать аудио к видео-записи",
			slog.String("video_token", videoToken),
			slog.String("error", err.Error()),
		)
	}

	// Обновляем сайдкары: аудио — новый, видео — с привязкой
	ds.persistSidecar(audioToken)
	ds.persistSidecar(videoToken)
	refreshHostedMetrics(ds.reg)

	ds.logger.Info("Аудиодорожка привязана к видео-записи",
		slog.String("video_token", videoToken),
		slog.String("audio_token", audioToken),
	)

	return ds.buildURL(audioToken), nil
}

// RestoreFromDir восстанавливает реестр из сайдкаров после перезапуска.
// Сайдкары без файла данных удаляются на месте. Потреблённые и истёкшие
// записи восстанавливаются как есть — их уберёт первый проход janitor
// вместе с файлами. По завершении реестр помечается готовым.
func (ds *DeliveryService) RestoreFromDir(dir string) error {
	records, err := attr.ScanDir(dir)
	if err != nil {
		return fmt.Errorf("сканирование сайдкаров: %w", err)
	}

	restored := 0
	for _, rec := range records {
		if _, err := os.Stat(rec.Path); err != nil {
			// Файл данных исчез — сайдкар больше не нужен
			if err := attr.Delete(attr.RecordFilePath(rec.Path)); err != nil {
				ds.logger.Warn("Не удалось удалить осиротевший сайдкар",
					slog.String("token", rec.Token),
					slog.String("error", err.Error()),
				)
			}
			continue
		}

		if err := ds.reg.Restore(rec); err != nil {
			ds.logger.Warn("Сайдкар пропущен при восстановлении",
				slog.String("path", rec.Path),
				slog.String("error", err.Error()),
			)
			continue
		}
		restored++
	}

	ds.reg.SetReady()
	restoredRecordsTotal.Add(float64(restored))
	refreshHostedMetrics(ds.reg)

	ds.logger.Info("Реестр восстановлен из сайдкаров",
		slog.String("dir", dir),
		slog.Int("sidecars", len(records)),
		slog.Int("restored", restored),
	)

	return nil
}

// persistSidecar пишет сайдкар записи рядом с её файлом данных.
func (ds *DeliveryService) persistSidecar(token string) {
	rec, ok := ds.reg.Lookup(token)
	if !ok {
		return
	}
	if err := attr.Write(attr.RecordFilePath(rec.Path), rec); err != nil {
		ds.logger.Error("Ошибка записи сайдкара",
			slog.String("token", token),
			slog.String("path", rec.Path),
			slog.String("error", err.Error()),
		)
	}
}

// buildURL строит одноразовую ссылку для пользователя.
func (ds *DeliveryService) buildURL(token string) string {
	return ds.baseURL + "/download/" + token
}
