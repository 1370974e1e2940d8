package mocks

import (
	"context"

	"github.com/gilby125/tripfinder/db"
	"github.com/gilby125/tripfinder/trips"
	"github.com/stretchr/testify/mock"
)

// MockSearchHistory is a mock of the Postgres search history
type MockSearchHistory struct {
	mock.Mock
}

// RecordSearch mocks the RecordSearch method
func (m *MockSearchHistory) RecordSearch(ctx context.Context, rec db.SearchRecord) error {
	args := m.Called(ctx, rec)
	return args.Error(0)
}

// ListSearches mocks the ListSearches method
func (m *MockSearchHistory) ListSearches(ctx context.Context, limit int) ([]db.SearchRecord, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]db.SearchRecord), args.Error(1)
}

var _ trips.SearchHistory = (*MockSearchHistory)(nil)
