package main

import (
	"context"
	"flag"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/noah-isme/order-totals/internal/config"
	"github.com/noah-isme/order-totals/internal/db"
	"github.com/noah-isme/order-totals/internal/discount"
	"github.com/noah-isme/order-totals/internal/obs"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	logger := obs.NewLogger("console", "info")

	file := flag.String("file", cfg.DiscountsFile, "path to a JSON array of discount definitions")
	flag.Parse()

	if *file == "" {
		logger.Fatal().Msg("no discounts file; pass -file or set DISCOUNTS_FILE")
	}
	if cfg.DatabaseURL == "" && cfg.RedisURL == "" {
		logger.Fatal().Msg("neither DATABASE_URL nor REDIS_URL is set")
	}

	discounts, err := discount.LoadFile(*file)
	if err != nil {
		logger.Fatal().Err(err).Str("file", *file).Msg("load discounts")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if cfg.DatabaseURL != "" {
		pool, err := db.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("connect database")
		}
		defer pool.Close()
		if err := db.Migrate(ctx, pool); err != nil {
			logger.Fatal().Err(err).Msg("migrate database")
		}
		if err := discount.NewPostgresStore(pool).Replace(ctx, discounts); err != nil {
			logger.Fatal().Err(err).Msg("store discounts")
		}
		logger.Info().Int("count", len(discounts)).Str("file", *file).Str("backend", "postgres").Msg("discounts seeded")
		return
	}

	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse redis url")
	}
	client := redis.NewClient(opts)
	defer func() { _ = client.Close() }()

	if err := client.Ping(ctx).Err(); err != nil {
		logger.Fatal().Err(err).Msg("ping redis")
	}

	if err := discount.NewRedisStore(client).ReplaceExclusive(ctx, discounts); err != nil {
		logger.Fatal().Err(err).Msg("store discounts")
	}
	logger.Info().Int("count", len(discounts)).Str("file", *file).Str("backend", "redis").Msg("discounts seeded")
}
