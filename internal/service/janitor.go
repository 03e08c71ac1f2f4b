// janitor.go — сервис фоновой уборки реестра и директории раздачи.
//
// Janitor выполняет две задачи:
//  1. Sweep реестра: убирает истёкшие и потреблённые записи и удаляет
//     их файлы данных вместе с сайдкарами
//  2. Очистка директории: удаляет осиротевшие сайдкары и старые файлы,
//     не принадлежащие ни одной записи реестра (следы прерванных
//     скачиваний и потерянных регистраций)
//
// Запускается как горутина с периодическим тикером (DAYN_JANITOR_INTERVAL).
package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/DenysHerasymchuk/DAYN/internal/registry"
	"github.com/DenysHerasymchuk/DAYN/internal/storage/hostdir"
)

// Prometheus метрики janitor.
var (
	// janitorRunsTotal — количество проходов janitor.
	janitorRunsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dayn_janitor_runs_total",
		Help: "Общее количество проходов janitor",
	})

	// janitorSweptTotal — количество записей, убранных из реестра.
	janitorSweptTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dayn_janitor_swept_total",
		Help: "Общее количество записей, убранных sweep",
	})

	// janitorStaleRemovedTotal — количество удалённых бесхозных файлов.
	janitorStaleRemovedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dayn_janitor_stale_removed_total",
		Help: "Общее количество бесхозных файлов, удалённых janitor",
	})

	// janitorLeakedFilesTotal — файлы, которые не удалось удалить после
	// выноса записи из реестра.
	janitorLeakedFilesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dayn_janitor_leaked_files_total",
		Help: "Количество файлов, оставшихся на диске после удаления записи",
	})

	// janitorDurationSeconds — длительность одного прохода.
	janitorDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "dayn_janitor_duration_seconds",
		Help:    "Длительность прохода janitor в секундах",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
	})
)

// JanitorResult — результат одного прохода janitor.
type JanitorResult struct {
	// SweptCount — количество записей, убранных из реестра
	SweptCount int
	// StaleCount — количество удалённых бесхозных файлов
	StaleCount int
	// Errors — количество ошибок при удалении
	Errors int
	// Duration — длительность прохода
	Duration time.Duration
}

// JanitorService — сервис фоновой уборки.
type JanitorService struct {
	reg      *registry.Registry
	host     *hostdir.HostDir
	interval time.Duration
	staleAge time.Duration
	logger   *slog.Logger

	mu      sync.Mutex // защита от параллельного запуска RunOnce
	running bool       // флаг работы фонового процесса
	cancel  context.CancelFunc
}

// NewJanitorService создаёт сервис уборки.
func NewJanitorService(
	reg *registry.Registry,
	host *hostdir.HostDir,
	interval time.Duration,
	staleAge time.Duration,
	logger *slog.Logger,
) *JanitorService {
	return &JanitorService{
		reg:      reg,
		host:     host,
		interval: interval,
		staleAge: staleAge,
		logger:   logger.With(slog.String("component", "janitor")),
	}
}

// Start запускает фоновую горутину janitor с периодическим тикером.
// Вызывается один раз при старте приложения.
func (j *JanitorService) Start(ctx context.Context) {
	jCtx, cancel := context.WithCancel(ctx)
	j.cancel = cancel
	j.running = true

	go j.run(jCtx)

	j.logger.Info("Janitor запущен",
		slog.String("interval", j.interval.String()),
		slog.String("stale_age", j.staleAge.String()),
	)
}

// Stop останавливает фоновый процесс janitor.
func (j *JanitorService) Stop() {
	if j.cancel != nil {
		j.cancel()
	}
	j.running = false
	j.logger.Info("Janitor остановлен")
}

// run — основной цикл фоновой горутины.
func (j *JanitorService) run(ctx context.Context) {
	// Первый проход — сразу после старта
	j.RunOnce()

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			j.RunOnce()
		}
	}
}

// RunOnce выполняет один проход уборки.
// Потокобезопасен: использует mutex для защиты от параллельного запуска.
//
// Порядок обработки:
//  1. Sweep реестра + удаление файлов убранных записей
//  2. Очистка директории от бесхозных файлов и сайдкаров
func (j *JanitorService) RunOnce() *JanitorResult {
	j.mu.Lock()
	defer j.mu.Unlock()

	start := time.Now()
	result := &JanitorResult{}

	j.logger.Debug("Проход janitor начат")

	now := time.Now().UTC()

	// Фаза 1: sweep реестра
	swept, sweepErrors := j.sweepRegistry(now)
	result.SweptCount = swept
	result.Errors += sweepErrors

	// Фаза 2: бесхозные файлы
	stale, staleErrors := j.cleanupStale(now)
	result.StaleCount = stale
	result.Errors += staleErrors

	result.Duration = time.Since(start)

	// Обновляем Prometheus метрики
	janitorRunsTotal.Inc()
	janitorSweptTotal.Add(float64(swept))
	janitorStaleRemovedTotal.Add(float64(stale))
	janitorDurationSeconds.Observe(result.Duration.Seconds())
	refreshHostedMetrics(j.reg)

	j.logger.Info("Проход janitor завершён",
		slog.Int("swept", result.SweptCount),
		slog.Int("stale_removed", result.StaleCount),
		slog.Int("errors", result.Errors),
		slog.Duration("duration", result.Duration),
	)

	return result
}

// sweepRegistry убирает истёкшие и потреблённые записи и удаляет их
// файлы. Уже отсутствующий файл — успех: endpoint удаляет свои файлы
// синхронно после передачи.
func (j *JanitorService) sweepRegistry(now time.Time) (swept, errors int) {
	removed := j.reg.Sweep(now)

	for _, rec := range removed {
		if err := j.host.Remove(rec.Path); err != nil {
			// Запись уже вынесена из реестра и не будет пересмотрена —
			// файл остаётся на диске и требует внимания оператора
			j.logger.Error("Утечка: файл убранной записи не удалён",
				slog.String("token", rec.Token),
				slog.String("path", rec.Path),
				slog.String("error", err.Error()),
			)
			janitorLeakedFilesTotal.Inc()
			errors++
			continue
		}

		j.logger.Debug("Запись убрана, файл удалён",
			slog.String("token", rec.Token),
			slog.String("state", string(rec.State(now))),
		)
		swept++
	}

	return swept, errors
}

// cleanupStale удаляет из директории раздачи осиротевшие сайдкары и
// файлы старше staleAge, не принадлежащие ни одной записи реестра.
func (j *JanitorService) cleanupStale(now time.Time) (removed, errors int) {
	// Снимок путей, которыми владеет реестр
	owned := make(map[string]bool)
	for _, rec := range j.reg.List() {
		owned[rec.Path] = true
	}

	gone, errs := j.host.CleanupStale(now, j.staleAge, func(path string) bool {
		return owned[path]
	})

	for _, path := range gone {
		j.logger.Debug("Бесхозный файл удалён", slog.String("path", path))
	}
	for _, msg := range errs {
		j.logger.Error("Ошибка очистки бесхозного файла", slog.String("error", msg))
	}

	return len(gone), len(errs)
}
