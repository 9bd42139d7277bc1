package deduplication

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log"
	"net/url"
	"strings"
	"time"

	"threatfeed/types"

	"github.com/redis/go-redis/v9"
)

const (
	// DefaultBloomKey is the redis key holding promoted-article hashes
	DefaultBloomKey = "threatfeed:articles:bloom"
	// DefaultBloomTTL keeps the filter alive this long after the latest insertion
	DefaultBloomTTL = 7 * 24 * time.Hour
	// DefaultBloomCapacity is the initial BF.RESERVE capacity
	DefaultBloomCapacity = 100000
	// DefaultBloomErrorRate is the false positive probability requested from BF.RESERVE
	DefaultBloomErrorRate = 0.001
)

// BloomConfig configures RedisBloom connection and key
type BloomConfig struct {
	Addr     string // e.g. localhost:6379
	Password string
	DB       int
	Key      string
	TTL      time.Duration
	// Capacity sets the initial BF.RESERVE capacity (number of items)
	Capacity int
	// ErrorRate sets the desired false positive probability (e.g. 0.001)
	ErrorRate float64
}

// RedisBloom is a minimal Redis-backed Bloom wrapper using RedisBloom commands
type RedisBloom struct {
	client *redis.Client
	key    string
	ttl    time.Duration
}

// NewRedisBloom creates a RedisBloom wrapper and verifies connectivity
func NewRedisBloom(cfg BloomConfig) (*RedisBloom, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Addr, err)
	}

	return newRedisBloomWithClient(ctx, client, cfg), nil
}

func newRedisBloomWithClient(ctx context.Context, client *redis.Client, cfg BloomConfig) *RedisBloom {
	if cfg.Key == "" {
		cfg.Key = DefaultBloomKey
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultBloomTTL
	}
	if cfg.Capacity <= 0 {
		cfg.Capacity = DefaultBloomCapacity
	}
	if cfg.ErrorRate <= 0 {
		cfg.ErrorRate = DefaultBloomErrorRate
	}

	// BF.ADD auto-creates the filter when BF.RESERVE is unavailable, so a failure here is only logged.
	exists, err := client.Exists(ctx, cfg.Key).Result()
	if err == nil && exists == 0 {
		args := []interface{}{"BF.RESERVE", cfg.Key, fmt.Sprintf("%f", cfg.ErrorRate), cfg.Capacity}
		if err := client.Do(ctx, args...).Err(); err != nil {
			log.Printf("Warning: BF.RESERVE on %s failed: %v", cfg.Key, err)
		}
	}

	return &RedisBloom{client: client, key: cfg.Key, ttl: cfg.TTL}
}

// Close closes the underlying Redis client
func (r *RedisBloom) Close() error {
	return r.client.Close()
}

// Exists checks if the hashed value is present in the bloom filter.
func (r *RedisBloom) Exists(ctx context.Context, hash string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	res, err := r.client.Do(ctx, "BF.EXISTS", r.key, hash).Result()
	if err != nil {
		return false, err
	}

	switch v := res.(type) {
	case int64:
		return v == 1, nil
	case bool:
		return v, nil
	case string:
		return v == "1", nil
	default:
		return false, fmt.Errorf("unexpected BF.EXISTS response type %T: %v", res, res)
	}
}

// Add inserts the hashed value into the bloom filter and slides the key TTL.
func (r *RedisBloom) Add(ctx context.Context, hash string) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := r.client.Do(ctx, "BF.ADD", r.key, hash).Err(); err != nil {
		return err
	}
	return r.client.Expire(ctx, r.key, r.ttl).Err()
}

// NormalizeAndHash returns sha256(normalizedURL + "|" + normalizedTitle) for the candidate.
// URLs lose their fragment, tracking params and trailing slash; titles are lowercased and
// whitespace-collapsed.
func NormalizeAndHash(candidate types.Candidate) string {
	combined := normalizeURL(candidate.URL) + "|" + normalizeTitle(candidate.Title)
	h := sha256.Sum256([]byte(combined))
	return hex.EncodeToString(h[:])
}

func normalizeTitle(t string) string {
	return strings.Join(strings.Fields(strings.ToLower(t)), " ")
}

func normalizeURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil {
		return strings.ToLower(raw)
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""

	q := u.Query()
	for k := range q {
		lk := strings.ToLower(k)
		if strings.HasPrefix(lk, "utm_") || lk == "fbclid" || lk == "gclid" {
			q.Del(k)
		}
	}
	u.RawQuery = q.Encode()

	return strings.TrimRight(u.String(), "/")
}
