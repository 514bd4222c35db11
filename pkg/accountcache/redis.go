package accountcache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"bankledger/pkg/ledger"

	"github.com/redis/rueidis"
)

// Redis is a Redis-backed snapshot cache, shared across service instances.
// Snapshots are stored as JSON under a configurable key prefix.
type Redis struct {
	client rueidis.Client
	config RedisConfig
}

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	Addr      string
	Username  string
	Password  string
	DB        int
	KeyPrefix string
}

// DefaultRedisConfig returns defaults for a local single-node Redis.
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:      "localhost:6379",
		KeyPrefix: "account:",
	}
}

// NewRedis connects to Redis and returns the cache.
func NewRedis(config RedisConfig) (*Redis, error) {
	if config.Addr == "" {
		return nil, fmt.Errorf("accountcache: redis address not configured")
	}
	client, err := rueidis.NewClient(rueidis.ClientOption{
		InitAddress: []string{config.Addr},
		Username:    config.Username,
		Password:    config.Password,
		SelectDB:    config.DB,
	})
	if err != nil {
		return nil, fmt.Errorf("accountcache: connect redis: %w", err)
	}
	return &Redis{client: client, config: config}, nil
}

func (r *Redis) key(number string) string {
	return r.config.KeyPrefix + number
}

func (r *Redis) Get(ctx context.Context, number string) (ledger.Account, error) {
	resp := r.client.Do(ctx, r.client.B().Get().Key(r.key(number)).Build())
	data, err := resp.AsBytes()
	if err != nil {
		if rueidis.IsRedisNil(err) {
			return ledger.Account{}, ErrNotCached
		}
		return ledger.Account{}, fmt.Errorf("accountcache: redis get: %w", err)
	}
	var account ledger.Account
	if err := json.Unmarshal(data, &account); err != nil {
		return ledger.Account{}, fmt.Errorf("accountcache: decode snapshot: %w", err)
	}
	return account, nil
}

func (r *Redis) Set(ctx context.Context, number string, account ledger.Account, ttl time.Duration) error {
	data, err := json.Marshal(account)
	if err != nil {
		return fmt.Errorf("accountcache: encode snapshot: %w", err)
	}
	cmd := r.client.B().Set().Key(r.key(number)).Value(rueidis.BinaryString(data)).Ex(ttl).Build()
	if err := r.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("accountcache: redis set: %w", err)
	}
	return nil
}

func (r *Redis) Delete(ctx context.Context, number string) error {
	if err := r.client.Do(ctx, r.client.B().Del().Key(r.key(number)).Build()).Error(); err != nil {
		return fmt.Errorf("accountcache: redis del: %w", err)
	}
	return nil
}

// Ping verifies the connection, used by tests and startup checks.
func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Do(ctx, r.client.B().Ping().Build()).Error()
}

func (r *Redis) Name() string {
	return "redis"
}

func (r *Redis) Close() error {
	r.client.Close()
	return nil
}
