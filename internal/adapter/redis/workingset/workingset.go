package workingset

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"gitlab.com/proxygrid.net/internal/core/ports/primary"
	"gitlab.com/proxygrid.net/internal/core/ports/secondary"
	"gitlab.com/proxygrid.net/internal/domain"
)

const (
	workingSetKey   = "proxies:working"
	proxyKeyPrefix  = "proxy:"
	proxyExpiration = 30 * time.Minute
)

// Cache implements the WorkingSet interface with a Redis sorted set
// scored by latency. Member payloads live in companion keys so consumers
// can fetch full proxy records without hitting the SQL store.
type Cache struct {
	redisClient *redis.Client
	logger      primary.Logger
}

var _ secondary.WorkingSet = (*Cache)(nil)

func NewCache(redisClient *redis.Client, logger primary.Logger) *Cache {
	return &Cache{
		redisClient: redisClient,
		logger:      logger,
	}
}

// Update reflects one outcome into the cache. Working proxies are
// (re)scored by latency; failed ones are removed.
func (c *Cache) Update(ctx context.Context, proxy domain.CandidateProxy, outcome domain.Outcome) error {
	if !outcome.Working || outcome.LatencyMs == nil {
		pipe := c.redisClient.TxPipeline()
		pipe.ZRem(ctx, workingSetKey, proxy.ID)
		pipe.Del(ctx, proxyKeyPrefix+proxy.ID)
		if _, err := pipe.Exec(ctx); err != nil {
			return fmt.Errorf("failed to remove proxy from working set: %w", err)
		}
		return nil
	}

	record := domain.WorkingProxy{
		ID:        proxy.ID,
		IP:        proxy.IP,
		Port:      proxy.Port,
		Protocol:  proxy.Protocol,
		LatencyMs: *outcome.LatencyMs,
	}
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal working proxy: %w", err)
	}

	pipe := c.redisClient.TxPipeline()
	pipe.ZAdd(ctx, workingSetKey, &redis.Z{Score: float64(*outcome.LatencyMs), Member: proxy.ID})
	pipe.Set(ctx, proxyKeyPrefix+proxy.ID, data, proxyExpiration)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to update working set: %w", err)
	}

	return nil
}

// Fastest returns up to limit working proxies ordered by latency
// ascending. Members whose payload key expired are pruned on read.
func (c *Cache) Fastest(ctx context.Context, limit int) ([]domain.WorkingProxy, error) {
	ids, err := c.redisClient.ZRange(ctx, workingSetKey, 0, int64(limit)-1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read working set: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = proxyKeyPrefix + id
	}
	values, err := c.redisClient.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to fetch working proxies: %w", err)
	}

	proxies := make([]domain.WorkingProxy, 0, len(values))
	for i, v := range values {
		if v == nil {
			c.redisClient.ZRem(ctx, workingSetKey, ids[i])
			continue
		}
		var p domain.WorkingProxy
		if err := json.Unmarshal([]byte(v.(string)), &p); err != nil {
			c.logger.Warn("Dropping unreadable working proxy record", "proxyID", ids[i], "error", err)
			continue
		}
		proxies = append(proxies, p)
	}

	return proxies, nil
}
