// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/ManuGH/recsync/internal/log"
	"github.com/ManuGH/recsync/internal/metrics"
)

// DefaultRedisChannel is the pub/sub channel events are forwarded to.
const DefaultRedisChannel = "recsync:events"

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Channel  string
}

// NewRedisClient connects and pings the server.
func NewRedisClient(ctx context.Context, cfg RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     4,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}
	return client, nil
}

// RedisForwarder republishes hub events as JSON on a Redis channel so an
// out-of-process UI can observe downloads.
type RedisForwarder struct {
	client  *redis.Client
	channel string
	hub     *Hub
	logger  zerolog.Logger
}

func NewRedisForwarder(client *redis.Client, channel string, hub *Hub) *RedisForwarder {
	if channel == "" {
		channel = DefaultRedisChannel
	}
	return &RedisForwarder{
		client:  client,
		channel: channel,
		hub:     hub,
		logger:  log.WithComponent("events.redis"),
	}
}

// Run forwards until ctx is done or the hub closes. Publish failures are
// logged and counted; they never stop forwarding.
func (f *RedisForwarder) Run(ctx context.Context) error {
	sub := f.hub.Subscribe()
	defer sub.Close()

	f.logger.Info().Str("channel", f.channel).Msg("forwarding events to redis")
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-sub.C():
			if !ok {
				return nil
			}
			payload, err := json.Marshal(ev)
			if err != nil {
				f.logger.Error().Err(err).Str(log.FieldEvent, string(ev.Type)).Msg("encode event")
				continue
			}
			pubCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
			err = f.client.Publish(pubCtx, f.channel, payload).Err()
			cancel()
			if err != nil {
				metrics.IncBusDropReason(string(ev.Type), "redis_publish")
				f.logger.Warn().Err(err).Str(log.FieldEvent, string(ev.Type)).Msg("redis publish failed")
			}
		}
	}
}
