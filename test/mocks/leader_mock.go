package mocks

import (
	"github.com/gilby125/tripfinder/worker"
	"github.com/stretchr/testify/mock"
)

// MockLeaderElector is a mock implementation of leader election for testing.
type MockLeaderElector struct {
	mock.Mock
}

// Start starts the mock leader elector.
func (m *MockLeaderElector) Start() {
	m.Called()
}

// Stop stops the mock leader elector.
func (m *MockLeaderElector) Stop() {
	m.Called()
}

// IsLeader returns whether this instance is the leader.
func (m *MockLeaderElector) IsLeader() bool {
	args := m.Called()
	return args.Bool(0)
}

var _ worker.Leader = (*MockLeaderElector)(nil)
