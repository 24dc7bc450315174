package session

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	coreconfig "github.com/m3rciful/receiptbot/core/config"
	"github.com/m3rciful/receiptbot/core/logger"
)

// Open builds the Store selected by cfg. The returned closer releases backend connections.
func Open(ctx context.Context, cfg coreconfig.SessionConfig) (Store, io.Closer, error) {
	ttl := time.Duration(cfg.TTLMinutes) * time.Minute
	switch cfg.Backend {
	case coreconfig.SessionRedis:
		r, err := DialRedis(ctx, cfg.RedisURL, cfg.Prefix, ttl)
		if err != nil {
			logger.Error(ctx, logger.CompSession, "session.open",
				slog.String("status", "fail"),
				slog.String("backend", cfg.Backend),
				slog.String("err", err.Error()),
			)
			return nil, nil, err
		}
		logger.Info(ctx, logger.CompSession, "session.open",
			slog.String("status", "ok"),
			slog.String("backend", cfg.Backend),
			slog.Duration("ttl", ttl),
		)
		return r, r, nil
	case coreconfig.SessionMemory, "":
		logger.Info(ctx, logger.CompSession, "session.open",
			slog.String("status", "ok"),
			slog.String("backend", coreconfig.SessionMemory),
			slog.Duration("ttl", ttl),
		)
		m := NewMemory(ttl)
		return m, m, nil
	default:
		return nil, nil, fmt.Errorf("session: unsupported backend %q", cfg.Backend)
	}
}
