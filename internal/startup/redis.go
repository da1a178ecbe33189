package startup

import (
	"context"
	"time"

	"github.com/friendforge/internal/logger"
	redisstorage "github.com/friendforge/internal/storage/redis"
)

// ConnectRedisWithRetry подключается к Redis тем же циклом повторов, что и БД.
func ConnectRedisWithRetry(redisURL string, maxWait time.Duration, logPrefix string) *redisstorage.Client {
	var client *redisstorage.Client
	dialWithRetry(maxWait, logPrefix, "redis connect", func(ctx context.Context) error {
		c, err := redisstorage.New(ctx, redisURL)
		if err != nil {
			return err
		}
		client = c
		return nil
	})
	logger.Infof("%sredis connected", logPrefix)
	return client
}
