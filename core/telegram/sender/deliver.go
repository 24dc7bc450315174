package sender

import (
	"context"
	"log/slog"
	"time"

	"github.com/m3rciful/receiptbot/core/logger"
	"github.com/m3rciful/receiptbot/core/telegram/netutil"
)

// deliver runs j until it succeeds, fails with a permanent error, or runs out
// of attempts or of MaxDuration. Cancelling the submitter's context does not
// abort a send that is already queued.
func (d *Dispatcher) deliver(j job) error {
	ctx := j.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	budget, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.opts.MaxDuration)
	defer cancel()

	attrs := []slog.Attr{slog.String("action", j.action)}
	if j.endpoint != "" {
		attrs = append(attrs, slog.String("endpoint", j.endpoint))
	}
	logger.Debug(ctx, logger.CompTGSender, "send.start", attrs...)

	start := time.Now()
	maxAttempts := d.opts.MaxRetries + 1
	attempt := 0
	var err error
	for attempt < maxAttempts {
		attempt++
		if err = j.run(); err == nil || attempt == maxAttempts || !netutil.ShouldRetry(err) {
			break
		}
		delay := d.backoff(attempt, err)
		if waitErr := sleep(budget, delay); waitErr != nil {
			err = waitErr
			break
		}
		logger.Debug(ctx, logger.CompTGSender, "send.retry.backoff",
			append(attrs, slog.Int("attempt", attempt), slog.Duration("delay", delay))...)
	}

	attrs = append(attrs, slog.Int("attempts", attempt), slog.Duration("elapsed", time.Since(start)))
	switch {
	case err == nil && attempt > 1:
		logger.Info(ctx, logger.CompTGSender, "send.retry.success", append(attrs, slog.String("status", "ok"))...)
	case err == nil:
		logger.Debug(ctx, logger.CompTGSender, "send.success", append(attrs, slog.String("status", "ok"))...)
	default:
		d.errs.Add(1)
		logger.Error(ctx, logger.CompTGSender, "send.fail", append(attrs,
			slog.String("status", "fail"),
			slog.String("err", redactToken(err)),
			slog.String("err_code", errorKind(err)),
		)...)
	}
	return err
}

// backoff grows linearly with the attempt and honours a longer flood wait.
func (d *Dispatcher) backoff(attempt int, err error) time.Duration {
	return max(d.opts.RetryBackoff*time.Duration(attempt), netutil.RetryAfter(err))
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
