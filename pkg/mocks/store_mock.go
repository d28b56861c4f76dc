package mocks

import (
	"context"
	"time"

	"github.com/flowboard/flowboard/pkg/models"
	"github.com/flowboard/flowboard/pkg/store"
	"github.com/stretchr/testify/mock"
)

// MockStore is a mock implementation of store.Store interface.
type MockStore struct {
	mock.Mock
}

func (m *MockStore) CreateRun(ctx context.Context, id string, stepNames []string, params map[string]any) error {
	args := m.Called(ctx, id, stepNames, params)

	return args.Error(0)
}

func (m *MockStore) UpdateStep(ctx context.Context, runID string, index int, update store.StepUpdate) error {
	args := m.Called(ctx, runID, index, update)

	return args.Error(0)
}

func (m *MockStore) UpdateRunStatus(ctx context.Context, runID string, status models.RunStatus, endTime *time.Time) error {
	args := m.Called(ctx, runID, status, endTime)

	return args.Error(0)
}

func (m *MockStore) GetRun(ctx context.Context, id string) (*models.Run, error) {
	args := m.Called(ctx, id)

	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.Run), args.Error(1)
}

func (m *MockStore) GetRunParams(ctx context.Context, id string) (map[string]any, error) {
	args := m.Called(ctx, id)

	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(map[string]any), args.Error(1)
}

func (m *MockStore) ListRuns(ctx context.Context) ([]*models.Run, error) {
	args := m.Called(ctx)

	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.Run), args.Error(1)
}

func (m *MockStore) HealthCheck(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}

func (m *MockStore) Close(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}
