package search

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// EmbedCache memoizes query-text embeddings in Redis keyed by embedding set
// and query text, avoiding a round trip to the embedding provider for
// repeated or paginated searches, grounded on the teacher's RedisSkillsCache
// get/set-with-TTL shape generalized from rendered prompts to float vectors.
type EmbedCache struct {
	client redis.UniversalClient
	ttl    time.Duration
}

// NewEmbedCache dials Redis. addr may be a "redis://" or "rediss://" URL.
func NewEmbedCache(addr string, ttl time.Duration) (*EmbedCache, error) {
	opts, err := redis.ParseURL(addr)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("redis embed cache ping: %w", err)
	}
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &EmbedCache{client: client, ttl: ttl}, nil
}

func (c *EmbedCache) key(setID, queryText string) string {
	sum := sha256.Sum256([]byte(queryText))
	return "matric:embedcache:" + setID + ":" + hex.EncodeToString(sum[:])
}

// Get returns a cached embedding, if present.
func (c *EmbedCache) Get(ctx context.Context, setID, queryText string) ([]float32, bool) {
	if c == nil || c.client == nil {
		return nil, false
	}
	raw, err := c.client.Get(ctx, c.key(setID, queryText)).Bytes()
	if err != nil {
		return nil, false
	}
	var vec []float32
	if err := json.Unmarshal(raw, &vec); err != nil {
		return nil, false
	}
	return vec, true
}

// Set stores a query embedding for ttl.
func (c *EmbedCache) Set(ctx context.Context, setID, queryText string, vec []float32) error {
	if c == nil || c.client == nil {
		return nil
	}
	raw, err := json.Marshal(vec)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, c.key(setID, queryText), raw, c.ttl).Err()
}

// Close releases the underlying connection pool.
func (c *EmbedCache) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}
