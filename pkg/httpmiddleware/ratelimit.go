package httpmiddleware

import (
	"context"
	"encoding/json"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RateLimitConfig configures the sliding window limiter.
type RateLimitConfig struct {
	Max    int
	Window time.Duration
	Prefix string
	// KeyFunc picks the bucket for a request. Defaults to ClientKey.
	KeyFunc func(*http.Request) string
}

// SlidingWindow counts events per key in a Redis sorted set so that all API
// replicas share one budget.
type SlidingWindow struct {
	client redis.UniversalClient
	cfg    RateLimitConfig
	now    func() time.Time
}

// NewSlidingWindow returns a limiter backed by client.
func NewSlidingWindow(client redis.UniversalClient, cfg RateLimitConfig) *SlidingWindow {
	if cfg.KeyFunc == nil {
		cfg.KeyFunc = ClientKey
	}
	if cfg.Prefix == "" {
		cfg.Prefix = "pos:ratelimit:"
	}
	return &SlidingWindow{client: client, cfg: cfg, now: time.Now}
}

// Allow records one event for key and reports whether it fits the budget.
func (l *SlidingWindow) Allow(ctx context.Context, key string) (allowed bool, remaining int, reset time.Time, err error) {
	now := l.now()
	reset = now.Add(l.cfg.Window)
	k := l.cfg.Prefix + key
	cutoff := strconv.FormatInt(now.Add(-l.cfg.Window).UnixNano(), 10)

	pipe := l.client.TxPipeline()
	pipe.ZRemRangeByScore(ctx, k, "-inf", cutoff)
	pipe.ZAdd(ctx, k, redis.Z{Score: float64(now.UnixNano()), Member: uuid.NewString()})
	card := pipe.ZCard(ctx, k)
	pipe.PExpire(ctx, k, l.cfg.Window)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, 0, reset, errors.Wrap(err, "rate limit")
	}

	count := int(card.Val())
	return count <= l.cfg.Max, max(l.cfg.Max-count, 0), reset, nil
}

// RateLimit rejects requests over budget with 429. Redis failures let the
// request through.
func RateLimit(l *SlidingWindow) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			allowed, remaining, reset, err := l.Allow(r.Context(), l.cfg.KeyFunc(r))
			if err != nil {
				zctx.From(r.Context()).Warn("Rate limiter unavailable", zap.Error(err))
				next.ServeHTTP(w, r)
				return
			}

			h := w.Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(l.cfg.Max))
			h.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
			h.Set("X-RateLimit-Reset", strconv.FormatInt(reset.Unix(), 10))
			if !allowed {
				h.Set("Retry-After", strconv.Itoa(int(math.Ceil(l.cfg.Window.Seconds()))))
				writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RegisterHeader identifies the till a request comes from.
const RegisterHeader = "X-Register-ID"

// ClientKey buckets by register id, falling back to the client address.
func ClientKey(r *http.Request) string {
	if id := r.Header.Get(RegisterHeader); id != "" {
		return "register:" + id
	}
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return "ip:" + strings.TrimSpace(first)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return "ip:" + r.RemoteAddr
	}
	return "ip:" + host
}

func writeError(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]any{"code": code, "message": msg})
}
