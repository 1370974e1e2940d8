package mocks

import (
	"context"

	"github.com/gilby125/tripfinder/pkg/notify"
	"github.com/gilby125/tripfinder/worker"
	"github.com/stretchr/testify/mock"
)

// MockGraphRefresher is a mock implementation of worker.GraphRefresher
type MockGraphRefresher struct {
	mock.Mock
}

// Rebuild mocks the Rebuild method
func (m *MockGraphRefresher) Rebuild(ctx context.Context, bases []string) (notify.RefreshSummary, error) {
	args := m.Called(ctx, bases)
	return args.Get(0).(notify.RefreshSummary), args.Error(1)
}

// RefreshAll mocks the RefreshAll method
func (m *MockGraphRefresher) RefreshAll(ctx context.Context) (notify.RefreshSummary, error) {
	args := m.Called(ctx)
	return args.Get(0).(notify.RefreshSummary), args.Error(1)
}

var _ worker.GraphRefresher = (*MockGraphRefresher)(nil)
