package redisclient

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"trace-service/internal/models"
	"trace-service/internal/util"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

const (
	userKeyPrefix    = "user:"
	mintClaimPrefix  = "mint:claim:"
	lastReadingKey   = "telemetry:last"
	userCacheTTL     = 10 * time.Minute
	mintClaimTTL     = 24 * time.Hour
	lastReadingTTL   = time.Hour
	defaultOpTimeout = 2 * time.Second
)

// Client wraps the Redis connection used for user-record caching, the mint
// idempotency guard and the last telemetry reading.
type Client struct {
	rdb    *redis.Client
	logger *zap.Logger
}

// NewClient connects to Redis and verifies the connection.
func NewClient(addr, password string, db int) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	logger := util.GetLogger()
	logger.Info("Connected to Redis", zap.String("addr", addr))

	return &Client{rdb: rdb, logger: logger}, nil
}

// GetUserRecord returns the cached on-chain user record for an address, or
// nil on a miss.
func (c *Client) GetUserRecord(ctx context.Context, address string) (*models.UserRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultOpTimeout)
	defer cancel()

	data, err := c.rdb.Get(ctx, userKeyPrefix+address).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user record: %w", err)
	}

	var record models.UserRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("failed to unmarshal user record: %w", err)
	}
	return &record, nil
}

// SetUserRecord caches an on-chain user record.
func (c *Client) SetUserRecord(ctx context.Context, record *models.UserRecord) error {
	ctx, cancel := context.WithTimeout(ctx, defaultOpTimeout)
	defer cancel()

	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal user record: %w", err)
	}
	return c.rdb.Set(ctx, userKeyPrefix+record.Address, data, userCacheTTL).Err()
}

// InvalidateUserRecord drops a cached user record after a registration.
func (c *Client) InvalidateUserRecord(ctx context.Context, address string) error {
	ctx, cancel := context.WithTimeout(ctx, defaultOpTimeout)
	defer cancel()
	return c.rdb.Del(ctx, userKeyPrefix+address).Err()
}

// ClaimTokenID records a freshly minted token identifier. It returns false
// when the identifier was already claimed, which flags a clock-derived
// collision before the transaction is submitted.
func (c *Client) ClaimTokenID(ctx context.Context, tokenID uint64) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultOpTimeout)
	defer cancel()

	key := mintClaimPrefix + strconv.FormatUint(tokenID, 10)
	claimed, err := c.rdb.SetNX(ctx, key, 1, mintClaimTTL).Result()
	if err != nil {
		return false, fmt.Errorf("failed to claim token id: %w", err)
	}
	return claimed, nil
}

// SetLastReading stores the most recent telemetry value for cross-instance
// reads.
func (c *Client) SetLastReading(ctx context.Context, value float64) error {
	ctx, cancel := context.WithTimeout(ctx, defaultOpTimeout)
	defer cancel()
	return c.rdb.Set(ctx, lastReadingKey, value, lastReadingTTL).Err()
}

// GetLastReading returns the most recent telemetry value. The second return
// is false when no reading has been stored.
func (c *Client) GetLastReading(ctx context.Context) (float64, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultOpTimeout)
	defer cancel()

	value, err := c.rdb.Get(ctx, lastReadingKey).Float64()
	if err == redis.Nil {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to get last reading: %w", err)
	}
	return value, true, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	return c.rdb.Close()
}
