package logic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/courtvision/nba-analysis/internal/models"
)

const generationKey = "courtvision:predict:generation"

// PredictionCache keeps prediction responses in redis. Keys embed a
// generation counter that every promotion bumps, so responses computed from
// replaced artifacts are never served. A nil cache is valid and caches
// nothing.
type PredictionCache struct {
	client RedisClient
	ttl    time.Duration
	logger *zap.SugaredLogger
}

func NewPredictionCache(client RedisClient, ttl time.Duration, logger *zap.Logger) *PredictionCache {
	return &PredictionCache{client: client, ttl: ttl, logger: logger.Sugar()}
}

type cachedPrediction struct {
	Player      *string              `json:"player,omitempty"`
	Team        *string              `json:"team,omitempty"`
	Predictions []models.TargetValue `json:"predictions"`
}

func (c *PredictionCache) generation(ctx context.Context) (int64, error) {
	gen, err := c.client.Get(ctx, generationKey).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return gen, err
}

func (c *PredictionCache) key(gen int64, filter DatasetFilter, targets []string) string {
	return fmt.Sprintf("courtvision:predict:%d:%s:%s:%s",
		gen, filter.Team, strconv.Itoa(filter.Season), strings.Join(targets, ","))
}

// noGeneration is returned by Get when the generation could not be read;
// Put ignores it
const noGeneration int64 = -1

// Get returns a cached response and the generation it looked in. A miss
// computed from artifacts loaded after this call must be stored with Put
// under that generation, never a later one. Any redis failure is a miss.
func (c *PredictionCache) Get(ctx context.Context, filter DatasetFilter, targets []string) ([]models.PlayerPrediction, int64, bool) {
	if c == nil {
		return nil, noGeneration, false
	}
	gen, err := c.generation(ctx)
	if err != nil {
		c.logger.Warnw("Prediction cache unavailable", "error", err)
		return nil, noGeneration, false
	}
	data, err := c.client.Get(ctx, c.key(gen, filter, targets)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warnw("Prediction cache read failed", "error", err)
		}
		return nil, gen, false
	}

	var cached []cachedPrediction
	if err := json.Unmarshal(data, &cached); err != nil {
		c.logger.Warnw("Discarding unreadable cache entry", "error", err)
		return nil, gen, false
	}
	out := make([]models.PlayerPrediction, len(cached))
	for i, p := range cached {
		out[i] = models.PlayerPrediction{Player: p.Player, Team: p.Team, Predictions: p.Predictions}
	}
	return out, gen, true
}

// Put stores a response under gen, the generation returned by the Get that
// missed. If a promotion bumped the generation meanwhile, the entry lands in
// the retired generation and is never read.
func (c *PredictionCache) Put(ctx context.Context, gen int64, filter DatasetFilter, targets []string, rows []models.PlayerPrediction) {
	if c == nil || gen == noGeneration {
		return
	}
	cached := make([]cachedPrediction, len(rows))
	for i, r := range rows {
		cached[i] = cachedPrediction{Player: r.Player, Team: r.Team, Predictions: r.Predictions}
	}
	data, err := json.Marshal(cached)
	if err != nil {
		// NaN predictions do not encode; serve them uncached
		c.logger.Debugw("Prediction not cacheable", "error", err)
		return
	}
	if err := c.client.Set(ctx, c.key(gen, filter, targets), data, c.ttl).Err(); err != nil {
		c.logger.Warnw("Prediction cache write failed", "error", err)
	}
}

// Invalidate bumps the generation so earlier entries are never read again
func (c *PredictionCache) Invalidate(ctx context.Context) error {
	if c == nil {
		return nil
	}
	return c.client.Incr(ctx, generationKey).Err()
}
