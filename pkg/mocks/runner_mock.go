package mocks

import (
	"context"
	"time"

	"github.com/flowboard/flowboard/pkg/runner"
	"github.com/stretchr/testify/mock"
)

// MockRunner is a mock implementation of runner.Runner interface.
type MockRunner struct {
	mock.Mock
}

func (m *MockRunner) CreateInstance(ctx context.Context) (string, error) {
	args := m.Called(ctx)

	return args.String(0), args.Error(1)
}

func (m *MockRunner) Instance(id string) (runner.Handle, error) {
	args := m.Called(id)

	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(runner.Handle), args.Error(1)
}

func (m *MockRunner) Execute(ctx context.Context, id string, fn runner.WorkflowFunc) error {
	args := m.Called(ctx, id, fn)

	return args.Error(0)
}

// MockHandle is a mock implementation of runner.Handle interface.
type MockHandle struct {
	mock.Mock
}

func (m *MockHandle) SendEvent(ctx context.Context, event runner.Event) error {
	args := m.Called(ctx, event)

	return args.Error(0)
}

// MockSession is a mock implementation of runner.Session interface.
type MockSession struct {
	mock.Mock
}

func (m *MockSession) RunStep(ctx context.Context, name string, opts runner.StepOptions, work runner.Work) (any, error) {
	args := m.Called(ctx, name, opts, work)

	return args.Get(0), args.Error(1)
}

func (m *MockSession) WaitForEvent(ctx context.Context, name string, opts runner.WaitOptions) (map[string]any, error) {
	args := m.Called(ctx, name, opts)

	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(map[string]any), args.Error(1)
}

func (m *MockSession) Sleep(ctx context.Context, name string, d time.Duration) error {
	args := m.Called(ctx, name, d)

	return args.Error(0)
}
