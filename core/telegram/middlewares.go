package telegram

import (
	"strings"
	"time"

	coreconfig "github.com/m3rciful/receiptbot/core/config"
	"github.com/m3rciful/receiptbot/core/telegram/middleware"

	tele "gopkg.in/telebot.v4"
)

// DefaultMiddlewares builds the chain every update passes through. The per-user
// rate limit is added only when rate_limit.interval_ms is set.
func DefaultMiddlewares(cfg *coreconfig.Config, onLimited tele.HandlerFunc) []Middleware {
	mws := []Middleware{{Name: "recover", Use: middleware.RecoverMiddleware}}
	if cfg != nil {
		if rl, ok := rateLimit(cfg.RateLimit, onLimited); ok {
			mws = append(mws, rl)
		}
	}
	return append(mws,
		Middleware{Name: "logger", Use: middleware.LoggerMiddleware},
		Middleware{Name: "metrics", Use: middleware.SendMetrics},
	)
}

func rateLimit(cfg coreconfig.RateLimitConfig, onLimited tele.HandlerFunc) (Middleware, bool) {
	interval := time.Duration(cfg.IntervalMS) * time.Millisecond
	if interval <= 0 {
		return Middleware{}, false
	}
	exclude := make(map[string]struct{}, len(cfg.ExcludeUpdates))
	for _, kind := range cfg.ExcludeUpdates {
		exclude[strings.ToLower(strings.TrimSpace(kind))] = struct{}{}
	}
	return Middleware{
		Name: "rate_limit",
		Use: middleware.RateLimitMiddleware(middleware.RateLimitOptions{
			Interval:  interval,
			Exclude:   exclude,
			OnLimited: onLimited,
		}),
	}, true
}
