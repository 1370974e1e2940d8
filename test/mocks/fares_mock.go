package mocks

import (
	"context"

	"github.com/gilby125/tripfinder/fares"
	"github.com/gilby125/tripfinder/trips"
	"github.com/stretchr/testify/mock"
)

// MockFareResolver is a mock implementation of trips.FareResolver
type MockFareResolver struct {
	mock.Mock
}

// ResolveFares mocks the ResolveFares method
func (m *MockFareResolver) ResolveFares(ctx context.Context, req fares.Request) ([]fares.PricedLeg, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]fares.PricedLeg), args.Error(1)
}

var _ trips.FareResolver = (*MockFareResolver)(nil)
