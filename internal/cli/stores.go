package cli

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"

	"quiz-attempt-service/internal/app"
	"quiz-attempt-service/internal/config"
	"quiz-attempt-service/internal/infra/memory"
	"quiz-attempt-service/internal/infra/postgres"
	redisinfra "quiz-attempt-service/internal/infra/redis"
)

// backends holds the connections opened from config; either may be nil.
type backends struct {
	pool  *pgxpool.Pool
	redis *redis.Client
}

func openBackends(ctx context.Context, cfg config.Config) (*backends, error) {
	b := &backends{}
	if cfg.Redis.Addr != "" {
		b.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}
	if cfg.Postgres.URL != "" {
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			b.Close()
			return nil, err
		}
		b.pool = pool
	}
	return b, nil
}

func (b *backends) Close() {
	if b.redis != nil {
		b.redis.Close()
	}
	if b.pool != nil {
		b.pool.Close()
	}
}

// attemptRepository picks the attempt store named by cfg.AttemptStore().
func (b *backends) attemptRepository(cfg config.Config) (app.AttemptRepository, error) {
	switch store := cfg.AttemptStore(); store {
	case config.StorePostgres:
		if b.pool == nil {
			return nil, fmt.Errorf("attempt store %q requires postgres.url", store)
		}
		return postgres.NewAttemptStore(b.pool), nil
	case config.StoreRedis:
		if b.redis == nil {
			return nil, fmt.Errorf("attempt store %q requires redis.addr", store)
		}
		return redisinfra.NewAttemptStore(b.redis), nil
	default:
		return memory.NewAttemptStore(), nil
	}
}
