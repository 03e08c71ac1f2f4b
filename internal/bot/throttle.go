// throttle.go — антифлуд: не чаще одного запроса от пользователя
// за настроенный интервал.
package bot

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// maxThrottledUsers — ограничение размера кэша антифлуда.
const maxThrottledUsers = 10000

var throttledTotal = promauto.NewCounter(prometheus.CounterOpts{
	Name: "dayn_bot_throttled_total",
	Help: "Общее количество запросов, отклонённых антифлудом.",
})

// Throttle — LRU-кэш последних обращений пользователей с TTL.
// Вытеснение по размеру защищает память от наплыва пользователей.
type Throttle struct {
	interval time.Duration
	seen     *expirable.LRU[int64, time.Time]
}

// NewThrottle создаёт антифлуд с указанным минимальным интервалом.
func NewThrottle(interval time.Duration) *Throttle {
	return &Throttle{
		interval: interval,
		seen:     expirable.NewLRU[int64, time.Time](maxThrottledUsers, nil, interval),
	}
}

// Allow сообщает, можно ли обработать запрос пользователя, и фиксирует
// обращение. Повторный запрос раньше интервала отклоняется.
func (t *Throttle) Allow(userID int64) bool {
	now := time.Now()

	if last, ok := t.seen.Get(userID); ok && now.Sub(last) < t.interval {
		throttledTotal.Inc()
		return false
	}

	t.seen.Add(userID, now)
	return true
}
