package leaderboard

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// The redis mirror keeps one sorted set per period bucket so hot top-N
// pages avoid the SQL rank scan. Members are player ids; the score packs
// (total score, completion count) so redis ordering matches the SQL
// tiebreak. The mirror is strictly optional: any failure falls back to
// SQL and is never surfaced to callers.

const (
	cacheKeyPrefix     = "leaderboard"
	completionTiebreak = 1_000_000.0
	cacheExpiry        = 48 * time.Hour
)

// Cache mirrors ranked buckets into redis sorted sets.
type Cache struct {
	client *redis.Client
}

// NewCache wraps a redis client. A nil client disables the mirror.
func NewCache(client *redis.Client) *Cache {
	return &Cache{client: client}
}

// Enabled reports whether a redis client is configured.
func (c *Cache) Enabled() bool {
	return c != nil && c.client != nil
}

func bucketKey(period Period, periodStart time.Time) string {
	return fmt.Sprintf("%s:%s:%d", cacheKeyPrefix, period, periodStart.Unix())
}

func packScore(totalScore, phrasesCompleted int64) float64 {
	return float64(totalScore)*completionTiebreak + float64(phrasesCompleted)
}

// Replace rewrites a bucket's sorted set from the freshly ranked rows.
func (c *Cache) Replace(ctx context.Context, period Period, periodStart time.Time, rows []PlayerScoreAggregate) error {
	if !c.Enabled() {
		return nil
	}
	key := bucketKey(period, periodStart)
	members := make([]redis.Z, 0, len(rows))
	for _, row := range rows {
		members = append(members, redis.Z{
			Score:  packScore(row.TotalScore, row.PhrasesCompleted),
			Member: row.PlayerID,
		})
	}

	pipe := c.client.TxPipeline()
	pipe.Del(ctx, key)
	if len(members) > 0 {
		pipe.ZAdd(ctx, key, members...)
	}
	pipe.Expire(ctx, key, cacheExpiry)
	_, err := pipe.Exec(ctx)
	return err
}

// TopPlayerIDs reads one page of player ids in rank order.
func (c *Cache) TopPlayerIDs(ctx context.Context, period Period, periodStart time.Time, limit, offset int) ([]string, error) {
	if !c.Enabled() {
		return nil, redis.Nil
	}
	key := bucketKey(period, periodStart)
	exists, err := c.client.Exists(ctx, key).Result()
	if err != nil {
		return nil, err
	}
	if exists == 0 {
		return nil, redis.Nil
	}
	return c.client.ZRevRange(ctx, key, int64(offset), int64(offset+limit-1)).Result()
}
