package http

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/mkrupp/joynest/internal/domain"
	"github.com/mkrupp/joynest/internal/infra/logging"
)

// ErrRateLimited is returned when a client exceeds its request budget.
var ErrRateLimited = domain.NewError(domain.KindValidation, "too many requests")

// RateLimitConfig configures per client request limits.
type RateLimitConfig struct {
	RequestsPerSecond float64       `env:"RPS" default:"5"`
	Burst             int           `env:"BURST" default:"10"`
	IdleTimeout       time.Duration `env:"IDLE_TIMEOUT" default:"10m"`
}

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter hands out one token bucket per client address.
type RateLimiter struct {
	cfg RateLimitConfig
	log logging.Logger

	mu      sync.Mutex
	clients map[string]*clientLimiter
}

// NewRateLimiter creates a RateLimiter.
func NewRateLimiter(cfg RateLimitConfig) *RateLimiter {
	return &RateLimiter{
		cfg:     cfg,
		log:     logging.GetLogger("infra.transport.http.ratelimit"),
		clients: make(map[string]*clientLimiter),
	}
}

// Allow reports whether key may make another request now.
func (rl *RateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	client, ok := rl.clients[key]
	if !ok {
		client = &clientLimiter{limiter: rate.NewLimiter(rate.Limit(rl.cfg.RequestsPerSecond), rl.cfg.Burst)}
		rl.clients[key] = client
	}

	client.lastSeen = time.Now()

	return client.limiter.Allow()
}

// Cleanup forgets clients idle for longer than the configured timeout.
func (rl *RateLimiter) Cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := time.Now().Add(-rl.cfg.IdleTimeout)

	for key, client := range rl.clients {
		if client.lastSeen.Before(cutoff) {
			delete(rl.clients, key)
		}
	}
}

// Run calls Cleanup periodically until ctx is done.
func (rl *RateLimiter) Run(ctx context.Context) {
	ticker := time.NewTicker(max(rl.cfg.IdleTimeout/2, time.Second))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rl.Cleanup()
		}
	}
}

// Middleware rejects requests over the limit with 429.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := clientKey(r)

		if !rl.Allow(key) {
			rl.log.WarnContext(r.Context(), "rate limit exceeded", "client", key, "path", r.URL.Path)

			w.Header().Set("Retry-After", strconv.Itoa(int(max(1, 1/rl.cfg.RequestsPerSecond))))
			WriteJSON(w, http.StatusTooManyRequests, ErrorBody{Error: ErrorDetail{
				Code:    domain.KindValidation,
				Message: ErrRateLimited.Error(),
			}})

			return
		}

		next.ServeHTTP(w, r)
	})
}

func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}

	return host
}
