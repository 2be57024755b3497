package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"theory-battle/internal/app"
	"theory-battle/internal/config"
	"theory-battle/internal/infra/memory"
	pginfra "theory-battle/internal/infra/postgres"
	redisinfra "theory-battle/internal/infra/redis"
)

const serviceName = "theory-battle"

func loadConfig(path string) (config.Config, error) {
	cfg, err := config.LoadOrDefault(path)
	if err != nil {
		return cfg, fmt.Errorf("load config %s: %w", path, err)
	}
	cfg.ApplyEnv()
	return cfg, nil
}

func battleConfig(cfg config.Config) (app.Config, app.BotConfig) {
	def := app.DefaultConfig()
	b := cfg.Battle
	battle := app.Config{
		QuestionCount: b.QuestionCount,
		FallbackWait:  config.Duration(b.FallbackWait, def.FallbackWait),
		RoundDelay:    config.Duration(b.RoundDelay, def.RoundDelay),
		StartTimeout:  config.Duration(b.StartTimeout, def.StartTimeout),
		PoolRetry:     config.Duration(b.PoolRetry, def.PoolRetry),
	}
	if battle.QuestionCount <= 0 {
		battle.QuestionCount = def.QuestionCount
	}
	defBot := app.DefaultBotConfig()
	bot := app.BotConfig{
		Accuracy: b.BotAccuracy,
		ThinkMin: config.Duration(b.BotThinkMin, defBot.ThinkMin),
		ThinkMax: config.Duration(b.BotThinkMax, defBot.ThinkMax),
	}
	if bot.Accuracy <= 0 || bot.Accuracy > 1 {
		bot.Accuracy = defBot.Accuracy
	}
	return battle, bot
}

// connectRedis returns nil when no Redis address is configured.
func connectRedis(ctx context.Context, cfg config.Config) (*redis.Client, error) {
	if cfg.Redis.Addr == "" {
		return nil, nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", cfg.Redis.Addr, err)
	}
	return client, nil
}

// connectPostgres returns nil when no database URL is configured.
func connectPostgres(ctx context.Context, cfg config.Config) (*pgxpool.Pool, error) {
	if cfg.Postgres.URL == "" {
		return nil, nil
	}
	pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return pool, nil
}

// questionPool caches the question bank in Redis when available, in process
// otherwise. Questions come from Postgres or the built-in sample set.
func questionPool(cfg config.Config, rdb *redis.Client, pg *pgxpool.Pool, log logrus.FieldLogger) app.QuestionPool {
	var loader memory.QuestionLoader = memory.NewStaticQuestionLoader(sampleQuestions())
	if pg != nil {
		loader = pginfra.NewQuestionLoader(pg)
	}
	ttl := config.Duration(cfg.Questions.TTL, 10*time.Minute)
	if rdb != nil {
		log.WithField("ttl", ttl.String()).Debug("caching questions in redis")
		return redisinfra.NewQuestionRepository(rdb, loader, ttl)
	}
	return memory.NewQuestionRepository(loader, ttl)
}
