package utils

import (
	"context"       // Context for Redis operations
	"encoding/json" // JSON encoding/decoding
	"errors"        // Error matching
	"strconv"       // Key building
	"time"          // Time durations

	"github.com/redis/go-redis/v9" // Redis client
	"github.com/sirupsen/logrus"   // Logrus for structured logging
)

// Cache is a read-through JSON cache over Redis. A nil Cache, or one without a
// client, behaves as an always-empty cache so the service runs without Redis.
type Cache struct {
	rdb *redis.Client // Redis client
	ttl time.Duration // Default entry lifetime
}

// NewCache wraps rdb. ttl <= 0 falls back to 60 seconds.
func NewCache(rdb *redis.Client, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = 60 * time.Second
	}
	return &Cache{rdb: rdb, ttl: ttl}
}

func (c *Cache) enabled() bool { return c != nil && c.rdb != nil }

// Get retrieves a value and unmarshals it into dest
func (c *Cache) Get(ctx context.Context, key string, dest any) (bool, error) {
	if !c.enabled() {
		return false, nil
	}
	val, err := c.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil // Key does not exist
	} else if err != nil {
		return false, err
	}
	return true, json.Unmarshal(val, dest)
}

// Set stores value under key for the default TTL
func (c *Cache) Set(ctx context.Context, key string, value any) error {
	if !c.enabled() {
		return nil
	}
	b, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, key, b, c.ttl).Err()
}

// Delete removes keys
func (c *Cache) Delete(ctx context.Context, keys ...string) error {
	if !c.enabled() || len(keys) == 0 {
		return nil
	}
	return c.rdb.Del(ctx, keys...).Err()
}

// Version returns the current generation of a key family. Paginated entries
// embed it in their keys so one Bump invalidates every page.
func (c *Cache) Version(ctx context.Context, family string) int64 {
	if !c.enabled() {
		return 0
	}
	v, err := c.rdb.Get(ctx, family+":ver").Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		logrus.WithFields(logrus.Fields{"family": family, "error": err}).Warn("cache version read failed")
	}
	return v
}

// Bump starts a new generation of a key family
func (c *Cache) Bump(ctx context.Context, family string) error {
	if !c.enabled() {
		return nil
	}
	return c.rdb.Incr(ctx, family+":ver").Err()
}

// WalletKey is the cache key of a wallet read by number.
func WalletKey(walletNumber string) string { return "wallet:number:" + walletNumber }

// HistoryFamily is the key family of a wallet's paginated history.
func HistoryFamily(walletID uint) string {
	return "txhistory:wallet:" + strconv.FormatUint(uint64(walletID), 10)
}

// PageKey builds the key of one page within a versioned family.
func PageKey(family string, version int64, page, pageSize int) string {
	return family + ":v" + strconv.FormatInt(version, 10) +
		":page:" + strconv.Itoa(page) + ":size:" + strconv.Itoa(pageSize)
}

// InvalidateWallets drops cached wallet reads and history pages after a
// commit. Failures are logged and never surface to the caller.
func (c *Cache) InvalidateWallets(ctx context.Context, wallets map[uint]string) {
	if !c.enabled() {
		return
	}
	ctx = context.WithoutCancel(ctx)
	for id, number := range wallets {
		if err := c.Delete(ctx, WalletKey(number)); err != nil {
			logrus.WithFields(logrus.Fields{"wallet": number, "error": err}).Warn("cache invalidation failed")
		}
		if err := c.Bump(ctx, HistoryFamily(id)); err != nil {
			logrus.WithFields(logrus.Fields{"wallet": number, "error": err}).Warn("cache invalidation failed")
		}
	}
}
