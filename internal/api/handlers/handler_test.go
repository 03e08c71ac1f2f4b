package handlers

import (
	"crypto/rand"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/DenysHerasymchuk/DAYN/internal/registry"
	"github.com/DenysHerasymchuk/DAYN/internal/service"
	"github.com/DenysHerasymchuk/DAYN/internal/storage/attr"
	"github.com/DenysHerasymchuk/DAYN/internal/storage/hostdir"
	"github.com/DenysHerasymchuk/DAYN/internal/web/pages"
)

// testLogger возвращает логгер, пишущий только ошибки в stderr.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// testEnv — окружение HTTP-тестов: реестр, директория хранения и роутер
// с боевыми маршрутами поверхности раздачи.
type testEnv struct {
	dir     string
	reg     *registry.Registry
	host    *hostdir.HostDir
	serving *service.ServingService
	router  *chi.Mux
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	dir := t.TempDir()
	host, err := hostdir.New(dir)
	if err != nil {
		t.Fatalf("создание hostdir: %v", err)
	}

	logger := testLogger()
	reg := registry.New(logger)
	reg.SetReady()

	serving := service.NewServingService(reg, host, logger)

	renderer, err := pages.New()
	if err != nil {
		t.Fatalf("разбор шаблонов: %v", err)
	}

	h := NewFilesHandler(serving, renderer, logger)

	router := chi.NewRouter()
	router.Get("/download/{token}", h.Info)
	router.Get("/preview/{token}", h.Preview)
	router.Get("/files/{token}", h.Download)

	return &testEnv{
		dir:     dir,
		reg:     reg,
		host:    host,
		serving: serving,
		router:  router,
	}
}

// hostFile кладёт файл с указанным содержимым в директорию хранения,
// регистрирует его в реестре и возвращает токен.
func (e *testEnv) hostFile(t *testing.T, name string, content []byte, ttl time.Duration) string {
	t.Helper()

	path := filepath.Join(e.dir, name)
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("запись файла: %v", err)
	}

	token, err := e.reg.Register(path, int64(len(content)), "video/mp4", name, ttl)
	if err != nil {
		t.Fatalf("регистрация файла: %v", err)
	}

	rec, _ := e.reg.Lookup(token)
	if err := attr.Write(attr.RecordFilePath(path), rec); err != nil {
		t.Fatalf("запись сайдкара: %v", err)
	}

	return token
}

// randomContent возвращает случайное содержимое указанного размера.
func randomContent(t *testing.T, size int) []byte {
	t.Helper()

	buf := make([]byte, size)
	if _, err := rand.Read(buf); err != nil {
		t.Fatalf("генерация содержимого: %v", err)
	}
	return buf
}

// get выполняет GET-запрос через роутер окружения.
func (e *testEnv) get(path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rr := httptest.NewRecorder()
	e.router.ServeHTTP(rr, req)
	return rr
}
