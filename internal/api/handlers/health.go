// health.go — обработчики health endpoints для Kubernetes probes.
package handlers

import (
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/DenysHerasymchuk/DAYN/internal/config"
)

// statusFail — строковая константа для статуса "fail" в health checks.
const statusFail = "fail"

// RegistryReadinessChecker — интерфейс для проверки готовности реестра.
type RegistryReadinessChecker interface {
	IsReady() bool
}

// HealthHandler реализует health endpoints: /health, /health/ready.
type HealthHandler struct {
	version string
	// storageDir — путь к директории хранения (для проверки FS)
	storageDir string
	// reg — ссылка на реестр для проверки готовности
	reg RegistryReadinessChecker
}

// NewHealthHandler создаёт обработчик health endpoints.
func NewHealthHandler(storageDir string, reg RegistryReadinessChecker) *HealthHandler {
	return &HealthHandler{
		version:    config.Version,
		storageDir: storageDir,
		reg:        reg,
	}
}

// Health обрабатывает GET /health.
// Возвращает 200, если процесс жив. Ответ строится за константное
// время и не обращается к реестру и диску.
func (h *HealthHandler) Health(w http.ResponseWriter, _ *http.Request) {
	resp := map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"version":   h.version,
		"service":   "dayn",
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(resp)
}

// HealthReady обрабатывает GET /health/ready.
// Проверяет: файловая система на запись, завершённость восстановления реестра.
func (h *HealthHandler) HealthReady(w http.ResponseWriter, _ *http.Request) {
	overallStatus := "ok"
	httpStatus := http.StatusOK

	// Проверка файловой системы
	fsCheck := h.checkFilesystem()
	if fsCheck["status"] != "ok" {
		overallStatus = statusFail
		httpStatus = http.StatusServiceUnavailable
	}

	// Проверка реестра: до завершения восстановления сайдкаров трафик
	// на инстанс подавать рано
	registryReady := true
	if h.reg != nil {
		registryReady = h.reg.IsReady()
	}
	registryCheck := map[string]any{"status": "ok"}
	if !registryReady {
		registryCheck = map[string]any{
			"status":  statusFail,
			"message": "Восстановление реестра не завершено",
		}
		overallStatus = statusFail
		httpStatus = http.StatusServiceUnavailable
	}

	resp := map[string]any{
		"status":    overallStatus,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"version":   h.version,
		"service":   "dayn",
		"checks": map[string]any{
			"filesystem": fsCheck,
			"registry":   registryCheck,
		},
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpStatus)
	_ = json.NewEncoder(w).Encode(resp)
}

// checkFilesystem проверяет доступность директории хранения на запись.
func (h *HealthHandler) checkFilesystem() map[string]any {
	if h.storageDir == "" {
		return map[string]any{
			"status":  "ok",
			"message": "Проверка не настроена",
		}
	}

	testFile := filepath.Join(h.storageDir, ".health_check")
	if err := os.WriteFile(testFile, []byte("ok"), 0o600); err != nil {
		return map[string]any{
			"status":  statusFail,
			"message": "Директория хранения недоступна для записи: " + err.Error(),
		}
	}
	_ = os.Remove(testFile)

	return map[string]any{
		"status": "ok",
	}
}
