package mocks

import (
	"context"

	"github.com/gilby125/tripfinder/graph"
	"github.com/stretchr/testify/mock"
)

// MockGraphStore is a mock implementation of graph.Store
type MockGraphStore struct {
	mock.Mock
}

func (m *MockGraphStore) FindCandidates(ctx context.Context, q graph.CandidateQuery) ([]graph.Candidate, error) {
	args := m.Called(ctx, q)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]graph.Candidate), args.Error(1)
}

func (m *MockGraphStore) ListAirports(ctx context.Context) ([]graph.Airport, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]graph.Airport), args.Error(1)
}

func (m *MockGraphStore) ListBaseAirports(ctx context.Context) ([]graph.Airport, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]graph.Airport), args.Error(1)
}

func (m *MockGraphStore) UpsertAirports(ctx context.Context, airports []graph.Airport) error {
	return m.Called(ctx, airports).Error(0)
}

func (m *MockGraphStore) UpsertFlightEdges(ctx context.Context, edges []graph.FlightEdge) error {
	return m.Called(ctx, edges).Error(0)
}

func (m *MockGraphStore) UpsertDistanceEdges(ctx context.Context, edges []graph.DistanceEdge) error {
	return m.Called(ctx, edges).Error(0)
}

func (m *MockGraphStore) SetBaseAirports(ctx context.Context, codes []string) error {
	return m.Called(ctx, codes).Error(0)
}

func (m *MockGraphStore) Clear(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

var _ graph.Store = (*MockGraphStore)(nil)
