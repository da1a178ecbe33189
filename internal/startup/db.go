// Package startup — подключение к внешним зависимостям с повторами.
// Сервисы стартуют раньше Postgres и Redis в docker-compose, поэтому
// несколько минут ждём, прежде чем ронять процесс.
package startup

import (
	"context"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/friendforge/internal/logger"
)

const retryCeiling = 30 * time.Second

// dialWithRetry крутит dial с экспоненциальным backoff до maxWait.
// После дедлайна процесс завершается: без БД и Redis сервис бесполезен.
func dialWithRetry(maxWait time.Duration, logPrefix, what string, dial func(ctx context.Context) error) {
	deadline := time.Now().Add(maxWait)
	backoff := 2 * time.Second
	for {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		err := dial(ctx)
		cancel()
		if err == nil {
			return
		}
		if time.Now().After(deadline) {
			logger.Errorf("%s%s (gave up after %v): %v", logPrefix, what, maxWait, err)
			os.Exit(1)
		}
		logger.Errorf("%s%s failed, retry in %v: %v", logPrefix, what, backoff, err)
		time.Sleep(backoff)
		if backoff < retryCeiling {
			backoff *= 2
		}
	}
}

// ConnectDBWithRetry подключается к Postgres и проверяет соединение ping-ом.
func ConnectDBWithRetry(poolCfg *pgxpool.Config, maxWait time.Duration, logPrefix string) *pgxpool.Pool {
	var pool *pgxpool.Pool
	dialWithRetry(maxWait, logPrefix, "db connect", func(ctx context.Context) error {
		p, err := pgxpool.NewWithConfig(ctx, poolCfg)
		if err != nil {
			return err
		}
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := p.Ping(pingCtx); err != nil {
			p.Close()
			return err
		}
		pool = p
		return nil
	})
	return pool
}
