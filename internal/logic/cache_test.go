package logic

import (
	"context"
	"errors"
	"math"
	"strconv"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/courtvision/nba-analysis/internal/models"
)

// MockRedis is an in-memory RedisClient
type MockRedis struct {
	Data   map[string]string
	GetErr error
}

func (m *MockRedis) Get(ctx context.Context, key string) *redis.StringCmd {
	if m.GetErr != nil {
		return redis.NewStringResult("", m.GetErr)
	}
	v, ok := m.Data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (m *MockRedis) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd {
	switch v := value.(type) {
	case []byte:
		m.Data[key] = string(v)
	case string:
		m.Data[key] = v
	}
	return redis.NewStatusResult("OK", nil)
}

func (m *MockRedis) Incr(ctx context.Context, key string) *redis.IntCmd {
	n, _ := strconv.ParseInt(m.Data[key], 10, 64)
	n++
	m.Data[key] = strconv.FormatInt(n, 10)
	return redis.NewIntResult(n, nil)
}

func TestPredictionCache(t *testing.T) {
	ctx := context.Background()
	client := &MockRedis{Data: map[string]string{}}
	cache := NewPredictionCache(client, time.Minute, zap.NewNop())
	filter := DatasetFilter{Team: "BOS", Season: 2024}
	targets := []string{"3P"}

	_, gen, ok := cache.Get(ctx, filter, targets)
	if ok {
		t.Fatal("empty cache should miss")
	}

	player := "Jayson Tatum"
	rows := []models.PlayerPrediction{{Player: &player, Predictions: []models.TargetValue{{Target: "3P", Value: 3.2}}}}
	cache.Put(ctx, gen, filter, targets, rows)

	got, _, ok := cache.Get(ctx, filter, targets)
	if !ok {
		t.Fatal("expected a hit after Put")
	}
	if *got[0].Player != player || got[0].Predictions[0].Value != 3.2 {
		t.Errorf("cached rows = %+v", got)
	}
	if _, _, ok := cache.Get(ctx, filter, []string{"3PA"}); ok {
		t.Error("different targets should miss")
	}

	if err := cache.Invalidate(ctx); err != nil {
		t.Fatalf("Invalidate() error = %v", err)
	}
	if _, _, ok := cache.Get(ctx, filter, targets); ok {
		t.Error("entries written before a promotion should not be served")
	}
}

func TestPredictionCache_PromotionDuringCompute(t *testing.T) {
	ctx := context.Background()
	client := &MockRedis{Data: map[string]string{}}
	cache := NewPredictionCache(client, time.Minute, zap.NewNop())
	filter := DatasetFilter{Team: "BOS"}
	targets := []string{"3P"}

	// a request misses, then a promotion lands before it stores its result
	_, gen, ok := cache.Get(ctx, filter, targets)
	if ok {
		t.Fatal("empty cache should miss")
	}
	if err := cache.Invalidate(ctx); err != nil {
		t.Fatalf("Invalidate() error = %v", err)
	}
	old := []models.PlayerPrediction{{Predictions: []models.TargetValue{{Target: "3P", Value: 1}}}}
	cache.Put(ctx, gen, filter, targets, old)

	if got, _, ok := cache.Get(ctx, filter, targets); ok {
		t.Errorf("prediction from replaced artifacts served after promotion: %+v", got)
	}
}

func TestPredictionCache_NaNNotCached(t *testing.T) {
	ctx := context.Background()
	client := &MockRedis{Data: map[string]string{}}
	cache := NewPredictionCache(client, time.Minute, zap.NewNop())

	rows := []models.PlayerPrediction{{Predictions: []models.TargetValue{{Target: "3P", Value: math.NaN()}}}}
	cache.Put(ctx, 0, DatasetFilter{}, []string{"3P"}, rows)
	if len(client.Data) != 0 {
		t.Errorf("NaN prediction was cached: %v", client.Data)
	}
}

func TestPredictionCache_UnavailableIsMiss(t *testing.T) {
	client := &MockRedis{Data: map[string]string{}, GetErr: errors.New("connection refused")}
	cache := NewPredictionCache(client, time.Minute, zap.NewNop())
	_, gen, ok := cache.Get(context.Background(), DatasetFilter{}, []string{"3P"})
	if ok {
		t.Error("redis failure should be a miss")
	}
	cache.Put(context.Background(), gen, DatasetFilter{}, []string{"3P"}, nil)
	if len(client.Data) != 0 {
		t.Errorf("wrote without a known generation: %v", client.Data)
	}
}

func TestPredictionCache_Nil(t *testing.T) {
	var cache *PredictionCache
	if _, _, ok := cache.Get(context.Background(), DatasetFilter{}, nil); ok {
		t.Error("nil cache should miss")
	}
	cache.Put(context.Background(), 0, DatasetFilter{}, nil, nil)
	if err := cache.Invalidate(context.Background()); err != nil {
		t.Errorf("Invalidate() error = %v", err)
	}
}
