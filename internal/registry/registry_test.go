package registry

import (
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/DenysHerasymchuk/DAYN/internal/domain/model"
)

// testLogger создаёт логгер для тестов (только ошибки, в stderr).
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelError,
	}))
}

// testFile создаёт файл данных во временной директории.
func testFile(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte("данные"), 0o640); err != nil {
		t.Fatalf("ошибка создания файла: %v", err)
	}
	return path
}

func TestRegister_AndLookup(t *testing.T) {
	r := New(testLogger())
	path := testFile(t, "video.mp4")

	token, err := r.Register(path, 1000, "video/mp4", "клип.mp4", 30*time.Minute)
	if err != nil {
		t.Fatalf("неожиданная ошибка регистрации: %v", err)
	}
	if len(token) != 32 {
		t.Errorf("длина токена: ожидалось 32, получено %d", len(token))
	}

	rec, ok := r.Lookup(token)
	if !ok {
		t.Fatal("запись не найдена сразу после регистрации")
	}
	if rec.Consumed {
		t.Error("новая запись не должна быть consumed")
	}
	if !rec.ExpiresAt.After(rec.CreatedAt) {
		t.Error("expires_at должен быть позже created_at")
	}
	if rec.Path != path {
		t.Errorf("Path: ожидалось %q, получено %q", path, rec.Path)
	}
	if rec.SizeBytes != 1000 {
		t.Errorf("SizeBytes: ожидалось 1000, получено %d", rec.SizeBytes)
	}
	if rec.ContentType != "video/mp4" {
		t.Errorf("ContentType: ожидалось 'video/mp4', получено %q", rec.ContentType)
	}
	if rec.DisplayName != "клип.mp4" {
		t.Errorf("DisplayName: ожидалось 'клип.mp4', получено %q", rec.DisplayName)
	}
}

// TestRegister_SanitizesDisplayName проверяет очистку имени при вставке.
func TestRegister_SanitizesDisplayName(t *testing.T) {
	r := New(testLogger())
	path := testFile(t, "video.mp4")

	token, err := r.Register(path, 1000, "video/mp4", "../../evil\x00name.mp4", time.Minute)
	if err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}

	rec, _ := r.Lookup(token)
	if rec.DisplayName != "....evilname.mp4" {
		t.Errorf("DisplayName не очищен: %q", rec.DisplayName)
	}
}

func TestRegister_InvalidTTL(t *testing.T) {
	r := New(testLogger())
	path := testFile(t, "video.mp4")

	if _, err := r.Register(path, 1000, "video/mp4", "v.mp4", 0); err == nil {
		t.Error("ожидалась ошибка для нулевого TTL")
	}
	if _, err := r.Register(path, 1000, "video/mp4", "v.mp4", -time.Minute); err == nil {
		t.Error("ожидалась ошибка для отрицательного TTL")
	}
}

func TestRegister_MissingFile(t *testing.T) {
	r := New(testLogger())

	_, err := r.Register("/nonexistent/video.mp4", 1000, "video/mp4", "v.mp4", time.Minute)
	if err == nil {
		t.Error("ожидалась ошибка для несуществующего файла")
	}
}

// TestRegister_UniqueTokens проверяет, что токены не повторяются.
func TestRegister_UniqueTokens(t *testing.T) {
	r := New(testLogger())
	path := testFile(t, "video.mp4")

	seen := make(map[string]bool)
	for range 100 {
		token, err := r.Register(path, 1, "video/mp4", "v.mp4", time.Minute)
		if err != nil {
			t.Fatalf("неожиданная ошибка: %v", err)
		}
		if seen[token] {
			t.Fatalf("токен %s выдан повторно", token)
		}
		seen[token] = true
	}
}

func TestLookup_NotFound(t *testing.T) {
	r := New(testLogger())

	if _, ok := r.Lookup("0123456789abcdef0123456789abcdef"); ok {
		t.Error("неизвестный токен не должен находиться")
	}
}

// TestTryConsume_SingleWinner — конкурентный стресс: из 100 параллельных
// вызовов ровно один должен получить ConsumeOk.
func TestTryConsume_SingleWinner(t *testing.T) {
	r := New(testLogger())
	path := testFile(t, "video.mp4")

	token, err := r.Register(path, 1000, "video/mp4", "v.mp4", time.Hour)
	if err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}

	const goroutines = 100
	results := make(chan ConsumeResult, goroutines)

	var wg sync.WaitGroup
	for range goroutines {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- r.TryConsume(token)
		}()
	}
	wg.Wait()
	close(results)

	okCount := 0
	alreadyCount := 0
	for res := range results {
		switch res {
		case ConsumeOk:
			okCount++
		case ConsumeAlreadyConsumed:
			alreadyCount++
		default:
			t.Errorf("неожиданный результат: %v", res)
		}
	}

	if okCount != 1 {
		t.Errorf("ровно один вызов должен выиграть, получено %d", okCount)
	}
	if alreadyCount != goroutines-1 {
		t.Errorf("остальные должны получить already_consumed, получено %d", alreadyCount)
	}
}

func TestTryConsume_SecondCall(t *testing.T) {
	r := New(testLogger())
	path := testFile(t, "video.mp4")
	token, _ := r.Register(path, 1000, "video/mp4", "v.mp4", time.Hour)

	if res := r.TryConsume(token); res != ConsumeOk {
		t.Fatalf("первый вызов: ожидалось ok, получено %v", res)
	}
	if res := r.TryConsume(token); res != ConsumeAlreadyConsumed {
		t.Errorf("второй вызов: ожидалось already_consumed, получено %v", res)
	}

	rec, _ := r.Lookup(token)
	if !rec.Consumed {
		t.Error("запись должна быть consumed после успешного потребления")
	}
}

func TestTryConsume_NotFound(t *testing.T) {
	r := New(testLogger())

	if res := r.TryConsume("0123456789abcdef0123456789abcdef"); res != ConsumeNotFound {
		t.Errorf("ожидалось not_found, получено %v", res)
	}
}

func TestTryConsume_Expired(t *testing.T) {
	r := New(testLogger())
	path := testFile(t, "video.mp4")
	token, _ := r.Register(path, 1000, "video/mp4", "v.mp4", time.Nanosecond)

	// TTL в наносекунду истекает к следующему обращению
	if res := r.TryConsume(token); res != ConsumeExpired {
		t.Errorf("ожидалось expired, получено %v", res)
	}

	rec, _ := r.Lookup(token)
	if rec.Consumed {
		t.Error("истёкшая запись не должна помечаться consumed")
	}
}

func TestRemove_Idempotent(t *testing.T) {
	r := New(testLogger())
	path := testFile(t, "video.mp4")
	token, _ := r.Register(path, 1000, "video/mp4", "v.mp4", time.Hour)

	if !r.Remove(token) {
		t.Error("первое удаление должно вернуть true")
	}
	if _, ok := r.Lookup(token); ok {
		t.Error("запись должна исчезнуть после удаления")
	}
	if r.Remove(token) {
		t.Error("повторное удаление должно вернуть false, но не ошибку")
	}
}

func TestSweep_RemovesExpired(t *testing.T) {
	r := New(testLogger())
	path := testFile(t, "video.mp4")
	token, _ := r.Register(path, 1000, "video/mp4", "v.mp4", time.Minute)

	removed := r.Sweep(time.Now().Add(2 * time.Minute))
	if len(removed) != 1 {
		t.Fatalf("ожидалась 1 удалённая запись, получено %d", len(removed))
	}
	if removed[0].Token != token {
		t.Errorf("удалён не тот токен: %s", removed[0].Token)
	}
	if _, ok := r.Lookup(token); ok {
		t.Error("запись должна исчезнуть после sweep")
	}
}

func TestSweep_KeepsActive(t *testing.T) {
	r := New(testLogger())
	path := testFile(t, "video.mp4")
	token, _ := r.Register(path, 1000, "video/mp4", "v.mp4", time.Hour)

	removed := r.Sweep(time.Now())
	if len(removed) != 0 {
		t.Fatalf("активная запись не должна удаляться, удалено %d", len(removed))
	}
	if _, ok := r.Lookup(token); !ok {
		t.Error("активная запись должна остаться после sweep")
	}
}

// TestSweep_RemovesConsumed проверяет, что потреблённые записи
// убираются независимо от срока жизни.
func TestSweep_RemovesConsumed(t *testing.T) {
	r := New(testLogger())
	path := testFile(t, "video.mp4")
	token, _ := r.Register(path, 1000, "video/mp4", "v.mp4", time.Hour)

	if res := r.TryConsume(token); res != ConsumeOk {
		t.Fatalf("неожиданный результат потребления: %v", res)
	}

	removed := r.Sweep(time.Now())
	if len(removed) != 1 {
		t.Fatalf("ожидалась 1 удалённая запись, получено %d", len(removed))
	}
	if !removed[0].Consumed {
		t.Error("удалённая запись должна нести флаг consumed")
	}
}

func TestRestore(t *testing.T) {
	r := New(testLogger())
	now := time.Now().UTC()

	rec := &model.FileRecord{
		Token:       "0123456789abcdef0123456789abcdef",
		Path:        "temp/video.mp4",
		SizeBytes:   1000,
		ContentType: "video/mp4",
		DisplayName: "v.mp4",
		CreatedAt:   now,
		ExpiresAt:   now.Add(time.Hour),
		Consumed:    true,
	}

	if err := r.Restore(rec); err != nil {
		t.Fatalf("неожиданная ошибка восстановления: %v", err)
	}

	got, ok := r.Lookup(rec.Token)
	if !ok {
		t.Fatal("восстановленная запись не найдена")
	}
	if !got.Consumed {
		t.Error("флаг consumed должен пережить восстановление")
	}
	if got.Path != rec.Path {
		t.Errorf("Path: ожидалось %q, получено %q", rec.Path, got.Path)
	}

	// Повторное восстановление того же токена — ошибка
	if err := r.Restore(rec); err == nil {
		t.Error("ожидалась ошибка для занятого токена")
	}
}

func TestRestore_EmptyToken(t *testing.T) {
	r := New(testLogger())

	if err := r.Restore(&model.FileRecord{}); err == nil {
		t.Error("ожидалась ошибка для записи без токена")
	}
}

func TestSetAudioToken(t *testing.T) {
	r := New(testLogger())
	path := testFile(t, "video.mp4")
	token, _ := r.Register(path, 1000, "video/mp4", "v.mp4", time.Hour)

	if err := r.SetAudioToken(token, "fedcba9876543210fedcba9876543210"); err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}

	rec, _ := r.Lookup(token)
	if rec.AudioToken != "fedcba9876543210fedcba9876543210" {
		t.Errorf("AudioToken не привязан: %q", rec.AudioToken)
	}

	if err := r.SetAudioToken("неизвестный", "x"); err == nil {
		t.Error("ожидалась ошибка для неизвестного токена")
	}
}

func TestListAndCount(t *testing.T) {
	r := New(testLogger())
	path := testFile(t, "video.mp4")

	for range 3 {
		if _, err := r.Register(path, 1, "video/mp4", "v.mp4", time.Hour); err != nil {
			t.Fatalf("неожиданная ошибка: %v", err)
		}
	}

	if r.Count() != 3 {
		t.Errorf("Count: ожидалось 3, получено %d", r.Count())
	}
	if got := len(r.List()); got != 3 {
		t.Errorf("List: ожидалось 3 записи, получено %d", got)
	}
}

func TestReady(t *testing.T) {
	r := New(testLogger())

	if r.IsReady() {
		t.Error("новый реестр не должен быть ready")
	}
	r.SetReady()
	if !r.IsReady() {
		t.Error("реестр должен быть ready после SetReady")
	}
}

// TestConcurrentAccess — смешанный конкурентный доступ: регистрации,
// чтения, потребления и sweep не должны гонять данные.
func TestConcurrentAccess(t *testing.T) {
	r := New(testLogger())
	path := testFile(t, "video.mp4")

	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			token, err := r.Register(path, 1, "video/mp4", "v.mp4", time.Hour)
			if err != nil {
				t.Errorf("ошибка регистрации: %v", err)
				return
			}
			if _, ok := r.Lookup(token); !ok {
				t.Errorf("запись %s не найдена", token)
			}
			r.TryConsume(token)
			r.List()
			r.Sweep(time.Now())
		}()
	}
	wg.Wait()

	// Все записи потреблены и выметены
	if r.Count() != 0 {
		t.Errorf("после потребления и sweep реестр должен быть пуст, осталось %d", r.Count())
	}
}
