// Package redis publishes throughput counters and detected chances to Redis
// Pub/Sub for external dashboards. Telemetry is fire-and-forget: the pipeline
// never depends on it.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alphasquare/triarb/internal/domain"
)

const (
	countersChannel = "triarb:counters"
	chancesChannel  = "triarb:chances"
)

// Config holds connection parameters.
type Config struct {
	Addr     string
	Password string
	DB       int
	PoolSize int
}

// Publisher wraps a redis client for telemetry publishing.
type Publisher struct {
	rdb *redis.Client
}

// New connects and verifies the connection with a ping.
func New(ctx context.Context, cfg Config) (*Publisher, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("telemetry/redis: ping: %w", err)
	}
	return &Publisher{rdb: rdb}, nil
}

// Client exposes the underlying redis client, e.g. for the distributed rate
// limiter.
func (p *Publisher) Client() *redis.Client {
	return p.rdb
}

// Close releases the connection pool.
func (p *Publisher) Close() {
	_ = p.rdb.Close()
}

// counterEvent is the JSON payload on the counters channel.
type counterEvent struct {
	Name       string `json:"name"`
	Count      int64  `json:"count"`
	IntervalMs int64  `json:"interval_ms"`
	At         string `json:"at"`
}

// PublishCounter sends one counter reading.
func (p *Publisher) PublishCounter(ctx context.Context, name string, count int64, interval time.Duration) error {
	payload, err := json.Marshal(counterEvent{
		Name:       name,
		Count:      count,
		IntervalMs: interval.Milliseconds(),
		At:         time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return fmt.Errorf("telemetry/redis: marshal counter %s: %w", name, err)
	}
	if err := p.rdb.Publish(ctx, countersChannel, payload).Err(); err != nil {
		return fmt.Errorf("telemetry/redis: publish counter %s: %w", name, err)
	}
	return nil
}

// chanceEvent is the JSON payload on the chances channel.
type chanceEvent struct {
	ID         string   `json:"id"`
	Profit     string   `json:"profit"`
	Symbols    []string `json:"symbols"`
	DetectedAt string   `json:"detected_at"`
}

// PublishChance sends one detected chance.
func (p *Publisher) PublishChance(ctx context.Context, chance domain.TriangularArbitrageChance) error {
	payload, err := json.Marshal(chanceEvent{
		ID:     chance.ID,
		Profit: chance.Profit.String(),
		Symbols: []string{
			chance.Actions[0].Symbol,
			chance.Actions[1].Symbol,
			chance.Actions[2].Symbol,
		},
		DetectedAt: chance.DetectedAt.UTC().Format(time.RFC3339),
	})
	if err != nil {
		return fmt.Errorf("telemetry/redis: marshal chance %s: %w", chance.ID, err)
	}
	if err := p.rdb.Publish(ctx, chancesChannel, payload).Err(); err != nil {
		return fmt.Errorf("telemetry/redis: publish chance %s: %w", chance.ID, err)
	}
	return nil
}
