package redis

import (
	"context"
	"encoding/json"
	"math/rand"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"quizastrous-server/internal/app"
	"quizastrous-server/internal/domain"
)

const bankKey = "quizastrous:bank"

// BankCache caches the question bank in Redis and falls back to a loader on a miss.
// Questions are stored as: HSET quizastrous:bank {index} {question JSON}
type BankCache struct {
	client *redis.Client
	loader app.BankLoader
	ttl    time.Duration
	sf     singleflight.Group
	rnd    *rand.Rand
}

func NewBankCache(client *redis.Client, loader app.BankLoader, ttl time.Duration) *BankCache {
	return &BankCache{
		client: client,
		loader: loader,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (c *BankCache) LoadBank(ctx context.Context) ([]domain.Question, error) {
	if bank, ok := c.cached(ctx); ok {
		return bank, nil
	}

	result, err, _ := c.sf.Do(bankKey, func() (interface{}, error) {
		// Re-check in case another caller filled it.
		if bank, ok := c.cached(ctx); ok {
			return bank, nil
		}
		bank, err := c.loader.LoadBank(ctx)
		if err != nil {
			return nil, err
		}

		pipe := c.client.TxPipeline()
		pipe.Del(ctx, bankKey)
		for i, q := range bank {
			raw, err := json.Marshal(q)
			if err != nil {
				return nil, err
			}
			pipe.HSet(ctx, bankKey, strconv.Itoa(i), raw)
		}
		if ttl := c.ttlWithJitter(); ttl > 0 {
			pipe.Expire(ctx, bankKey, ttl)
		}
		if _, err := pipe.Exec(ctx); err != nil {
			log.Warn().Err(err).Msg("cache question bank")
		}
		return bank, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]domain.Question), nil
}

func (c *BankCache) cached(ctx context.Context) ([]domain.Question, bool) {
	entries, err := c.client.HGetAll(ctx, bankKey).Result()
	if err != nil || len(entries) == 0 {
		return nil, false
	}
	bank, err := decodeBank(entries)
	if err != nil {
		log.Warn().Err(err).Msg("discarding corrupt cached bank")
		return nil, false
	}
	return bank, true
}

func decodeBank(entries map[string]string) ([]domain.Question, error) {
	indexes := make([]int, 0, len(entries))
	for field := range entries {
		i, err := strconv.Atoi(field)
		if err != nil {
			return nil, err
		}
		indexes = append(indexes, i)
	}
	sort.Ints(indexes)

	bank := make([]domain.Question, 0, len(indexes))
	for _, i := range indexes {
		var q domain.Question
		if err := json.Unmarshal([]byte(entries[strconv.Itoa(i)]), &q); err != nil {
			return nil, err
		}
		bank = append(bank, q)
	}
	return bank, nil
}

func (c *BankCache) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	jitterMax := int64(c.ttl) / 10
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}
