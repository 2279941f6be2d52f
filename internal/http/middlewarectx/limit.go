package middlewarectx

import (
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/render"
	"golang.org/x/time/rate"

	"github.com/magabrotheeeer/aicheck/internal/http/response"
)

const limiterIdleTTL = 10 * time.Minute

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter ограничивает частоту запросов отдельно для каждого клиента.
type RateLimiter struct {
	mu      sync.Mutex
	clients map[string]*clientLimiter
	limit   rate.Limit
	burst   int
	now     func() time.Time
}

// NewRateLimiter создаёт ограничитель: perSecond запросов в секунду и всплеск burst.
func NewRateLimiter(perSecond float64, burst int) *RateLimiter {
	return &RateLimiter{
		clients: make(map[string]*clientLimiter),
		limit:   rate.Limit(perSecond),
		burst:   burst,
		now:     time.Now,
	}
}

func (l *RateLimiter) allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	c, ok := l.clients[key]
	if !ok {
		l.evictLocked(now)
		c = &clientLimiter{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.clients[key] = c
	}
	c.lastSeen = now
	return c.limiter.AllowN(now, 1)
}

func (l *RateLimiter) evictLocked(now time.Time) {
	for k, c := range l.clients {
		if now.Sub(c.lastSeen) > limiterIdleTTL {
			delete(l.clients, k)
		}
	}
}

// Middleware возвращает HTTP middleware с ответом 429 при превышении лимита.
func (l *RateLimiter) Middleware(log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := clientKey(r)
			if !l.allow(key) {
				log.Error("too many requests", slog.String("client", key))
				render.Status(r, http.StatusTooManyRequests)
				render.JSON(w, r, response.Error("too many requests"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// clientKey пользователь для аутентифицированных запросов, иначе адрес клиента.
func clientKey(r *http.Request) string {
	if uid := UserUIDFrom(r.Context()); uid != "" {
		return "user:" + uid
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return "ip:" + r.RemoteAddr
	}
	return "ip:" + host
}
