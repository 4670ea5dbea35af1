package worker

import (
	"testing"

	"go.uber.org/zap"

	"github.com/courtvision/nba-analysis/internal/models"
)

func BenchmarkEnqueueShed(b *testing.B) {
	pool := NewPool(PoolConfig{QueueSize: 1, Pipeline: &MockPipeline{}, Logger: zap.NewNop()})
	pool.Enqueue(models.JobTrain, nil)
	targets := []string{"3P", "3PA"}

	b.ResetTimer()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		pool.Enqueue(models.JobPromote, targets)
	}
}
