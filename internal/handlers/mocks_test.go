package handlers

import (
	"context"

	"github.com/courtvision/nba-analysis/internal/logic"
	"github.com/courtvision/nba-analysis/internal/models"
)

// MockPredictionService
type MockPredictionService struct {
	PredictFunc func(ctx context.Context, req models.PredictRequest) ([]models.PlayerPrediction, error)
}

func (m *MockPredictionService) Predict(ctx context.Context, req models.PredictRequest) ([]models.PlayerPrediction, error) {
	if m.PredictFunc != nil {
		return m.PredictFunc(ctx, req)
	}
	return []models.PlayerPrediction{}, nil
}

// MockModelService
type MockModelService struct {
	ListModelsFunc func(ctx context.Context) ([]models.ModelSummary, error)
	HistoryFunc    func(ctx context.Context, target string, limit int) ([]models.RunRecord, error)
}

func (m *MockModelService) ListModels(ctx context.Context) ([]models.ModelSummary, error) {
	if m.ListModelsFunc != nil {
		return m.ListModelsFunc(ctx)
	}
	return []models.ModelSummary{}, nil
}

func (m *MockModelService) History(ctx context.Context, target string, limit int) ([]models.RunRecord, error) {
	if m.HistoryFunc != nil {
		return m.HistoryFunc(ctx, target, limit)
	}
	return nil, nil
}

// MockAuthService
type MockAuthService struct {
	SignupFunc       func(ctx context.Context, username, password string) error
	LoginFunc        func(ctx context.Context, username, password string) (*models.TokenResponse, error)
	AuthenticateFunc func(token string) (string, error)
}

func (m *MockAuthService) Signup(ctx context.Context, username, password string) error {
	if m.SignupFunc != nil {
		return m.SignupFunc(ctx, username, password)
	}
	return nil
}

func (m *MockAuthService) Login(ctx context.Context, username, password string) (*models.TokenResponse, error) {
	if m.LoginFunc != nil {
		return m.LoginFunc(ctx, username, password)
	}
	return &models.TokenResponse{AccessToken: "token", TokenType: "bearer"}, nil
}

func (m *MockAuthService) Authenticate(token string) (string, error) {
	if m.AuthenticateFunc != nil {
		return m.AuthenticateFunc(token)
	}
	if token == "valid" {
		return "alice", nil
	}
	return "", logic.ErrInvalidToken
}

// MockPipelineQueue
type MockPipelineQueue struct {
	EnqueueFunc func(kind models.JobKind, targets []string) (models.JobStatus, bool)
	Jobs        map[string]models.JobStatus
}

func (m *MockPipelineQueue) Enqueue(kind models.JobKind, targets []string) (models.JobStatus, bool) {
	if m.EnqueueFunc != nil {
		return m.EnqueueFunc(kind, targets)
	}
	return models.JobStatus{ID: "job-1", Kind: kind, Targets: targets, State: models.JobQueued}, true
}

func (m *MockPipelineQueue) Job(id string) (models.JobStatus, bool) {
	s, ok := m.Jobs[id]
	return s, ok
}

func (m *MockPipelineQueue) QueueDepth() int { return len(m.Jobs) }
