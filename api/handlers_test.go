package api_test

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/gilby125/tripfinder/api"
	"github.com/gilby125/tripfinder/config"
	"github.com/gilby125/tripfinder/db"
	"github.com/gilby125/tripfinder/graph"
	"github.com/gilby125/tripfinder/queue"
	"github.com/gilby125/tripfinder/test/mocks"
	"github.com/gilby125/tripfinder/trips"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type stubSearcher struct {
	lastRequest trips.SearchRequest
	result      *trips.Result
	err         error
	airports    []graph.Airport
	countries   []string
}

func (s *stubSearcher) Search(_ context.Context, req trips.SearchRequest) (*trips.Result, error) {
	s.lastRequest = req
	return s.result, s.err
}

func (s *stubSearcher) Airports(_ context.Context, q string) ([]graph.Airport, error) {
	return trips.NewAirportIndex(s.airports).Search(q), nil
}

func (s *stubSearcher) Countries(context.Context) ([]string, error) { return s.countries, nil }

func (s *stubSearcher) BaseAirports(context.Context) ([]graph.Airport, error) {
	var out []graph.Airport
	for _, a := range s.airports {
		if a.Base {
			out = append(out, a)
		}
	}
	return out, nil
}

func testConfig() *config.Config {
	return &config.Config{SearchConfig: config.SearchConfig{DefaultAdults: 1}}
}

func newRouter(d api.Deps) *gin.Engine {
	gin.SetMode(gin.TestMode)
	if d.Config == nil {
		d.Config = testConfig()
	}
	router := gin.New()
	api.RegisterRoutes(router, d)
	return router
}

func do(router *gin.Engine, method, target, contentType, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func sampleResult() *trips.Result {
	return &trips.Result{
		ID: uuid.MustParse("5b0f6a4e-3f53-4c1e-9d0a-0e7b2f1f9a11"),
		Itineraries: []trips.Itinerary{
			{
				Destination:    "Milan Bergamo",
				OutboundOrigin: trips.Stop{Code: "SNN"},
				Arrival:        trips.Stop{Code: "BGY"},
				Departure:      trips.Stop{Code: "BGY"},
				ReturnOrigin:   trips.Stop{Code: "SNN"},
				StayLength:     4,
				OutboundFare:   40,
				ReturnFare:     50,
				FullFare:       90,
				Currency:       "EUR",
			},
		},
		Stats: trips.Stats{Candidates: 2, Itineraries: 1},
	}
}

const searchJSON = `{
	"outbound_origins": ["SNN"],
	"return_origins": ["SNN"],
	"outbound_dates": ["2026-03-25"],
	"return_dates": ["2026-03-29"],
	"stay_lengths": [4],
	"blacklist_countries": ["REGION:BRITISH_ISLES"],
	"adults": 2
}`

func TestSearchTrips_JSON(t *testing.T) {
	s := &stubSearcher{result: sampleResult()}
	router := newRouter(api.Deps{Trips: s})

	w := do(router, http.MethodPost, "/api/v1/trips/search", "application/json", searchJSON)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var got trips.Result
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	require.Len(t, got.Itineraries, 1)
	assert.Equal(t, 90.0, got.Itineraries[0].FullFare)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	assert.Equal(t, 2, s.lastRequest.Adults)
	assert.Equal(t, []string{"Ireland", "United Kingdom", "Isle of Man"}, s.lastRequest.BlacklistCountries)
}

func TestSearchTrips_Form(t *testing.T) {
	s := &stubSearcher{result: sampleResult()}
	router := newRouter(api.Deps{Trips: s})

	form := url.Values{
		"origin_departure_airports[]": {"SNN"},
		"origin_arrival_airports[]":   {"SNN"},
		"r1_dates":                    {"2026-03-25"},
		"r2_dates":                    {"2026-03-29"},
		"lengths_of_stay":             {"4"},
		"adults":                      {"1"},
	}
	w := do(router, http.MethodPost, "/api/v1/trips/search", "application/x-www-form-urlencoded", form.Encode())
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, []int{4}, s.lastRequest.StayLengths)
}

func TestSearchTrips_CSV(t *testing.T) {
	s := &stubSearcher{result: sampleResult()}
	router := newRouter(api.Deps{Trips: s})

	for _, target := range []string{"/api/v1/trips/search?format=csv", "/api/v1/trips/search.csv"} {
		w := do(router, http.MethodPost, target, "application/json", searchJSON)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Header().Get("Content-Type"), "text/csv")
		assert.Contains(t, w.Header().Get("Content-Disposition"), "trips-5b0f6a4e")

		rows, err := csv.NewReader(strings.NewReader(w.Body.String())).ReadAll()
		require.NoError(t, err)
		assert.Len(t, rows, 2, "header plus one itinerary")
	}
}

func TestSearchTrips_ErrorStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"invalid", trips.InvalidRequestf("bad"), http.StatusBadRequest},
		{"graph", fmt.Errorf("%w: %w", trips.ErrGraphQuery, errors.New("neo4j down")), http.StatusServiceUnavailable},
		{"timeout", fmt.Errorf("search: %w", context.DeadlineExceeded), http.StatusGatewayTimeout},
		{"fare source", errors.New("candidate SNN->BGY: 500"), http.StatusBadGateway},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := newRouter(api.Deps{Trips: &stubSearcher{err: tt.err}})
			w := do(router, http.MethodPost, "/api/v1/trips/search", "application/json", searchJSON)
			assert.Equal(t, tt.want, w.Code)
			assert.Contains(t, w.Body.String(), "error")
		})
	}
}

func TestSearchTrips_BadInputIs400(t *testing.T) {
	s := &stubSearcher{result: sampleResult()}
	router := newRouter(api.Deps{Trips: s})

	w := do(router, http.MethodPost, "/api/v1/trips/search", "application/json", `{"outbound_origins": "SNN"`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(router, http.MethodPost, "/api/v1/trips/search", "application/json", `{"outbound_origins": ["SNN"], "return_origins": []}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDirectoryRoutes(t *testing.T) {
	s := &stubSearcher{
		airports: []graph.Airport{
			{Code: "SNN", Name: "Shannon", Country: "Ireland", Base: true},
			{Code: "BGY", Name: "Milan Bergamo", City: "Milan", Country: "Italy"},
		},
		countries: []string{"Ireland", "Italy"},
	}
	router := newRouter(api.Deps{Trips: s})

	w := do(router, http.MethodGet, "/api/v1/airports?q=milan", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	var airports []graph.Airport
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &airports))
	require.Len(t, airports, 1)
	assert.Equal(t, "BGY", airports[0].Code)

	w = do(router, http.MethodGet, "/api/v1/airports/base", "", "")
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &airports))
	require.Len(t, airports, 1)
	assert.Equal(t, "SNN", airports[0].Code)

	w = do(router, http.MethodGet, "/api/v1/countries", "", "")
	assert.JSONEq(t, `["Ireland","Italy"]`, w.Body.String())

	w = do(router, http.MethodGet, "/api/v1/regions", "", "")
	assert.Contains(t, w.Body.String(), "REGION:NORDICS")
}

func TestListSearches(t *testing.T) {
	h := new(mocks.MockSearchHistory)
	h.On("ListSearches", mock.Anything, 5).Return([]db.SearchRecord{{Adults: 1, Currency: "EUR"}}, nil)
	router := newRouter(api.Deps{Trips: &stubSearcher{}, History: h})

	w := do(router, http.MethodGet, "/api/v1/searches?limit=5", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"currency":"EUR"`)

	w = do(router, http.MethodGet, "/api/v1/searches?limit=0", "", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	noHistory := newRouter(api.Deps{Trips: &stubSearcher{}})
	w = do(noHistory, http.MethodGet, "/api/v1/searches", "", "")
	assert.JSONEq(t, `[]`, w.Body.String())
}

func TestAdminRebuild(t *testing.T) {
	q := new(mocks.MockQueue)
	q.On("Enqueue", mock.MatchedBy(func(ctx context.Context) bool {
		meta := queue.EnqueueMetaFromContext(ctx)
		return meta.Actor == "http" && meta.RequestID == "req-1"
	}), queue.JobRebuildGraph, queue.RebuildPayload{BaseAirports: []string{"SNN", "DUB"}}).Return("job-9", nil).Once()
	router := newRouter(api.Deps{Trips: &stubSearcher{}, Queue: q})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/base-airports", strings.NewReader(`{"base_airports":["snn","DUB"]}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", "req-1")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	assert.JSONEq(t, `{"job_id":"job-9","type":"graph_rebuild","status":"pending"}`, w.Body.String())
	q.AssertExpectations(t)

	w = do(router, http.MethodPost, "/api/v1/admin/base-airports", "application/json", `{"base_airports":[]}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAdminRefreshAndJobs(t *testing.T) {
	q := new(mocks.MockQueue)
	q.On("Enqueue", mock.Anything, queue.JobRefreshGraph, queue.RefreshPayload{}).Return("job-1", nil)
	q.On("GetJob", mock.Anything, "job-1").Return(&queue.Job{ID: "job-1", Type: queue.JobRefreshGraph, Status: queue.StatusPending}, nil)
	q.On("GetJob", mock.Anything, "missing").Return(nil, fmt.Errorf("%w: missing", queue.ErrJobNotFound))
	q.On("CancelJob", mock.Anything, queue.JobRefreshGraph, "job-1").Return(nil)
	q.On("GetQueueStats", mock.Anything, mock.Anything).Return(map[string]int64{"pending": 1}, nil)
	router := newRouter(api.Deps{Trips: &stubSearcher{}, Queue: q})

	w := do(router, http.MethodPost, "/api/v1/admin/refresh", "", "")
	assert.Equal(t, http.StatusAccepted, w.Code)

	w = do(router, http.MethodGet, "/api/v1/admin/jobs/job-1", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"pending"`)

	w = do(router, http.MethodGet, "/api/v1/admin/jobs/missing", "", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(router, http.MethodDelete, "/api/v1/admin/jobs/job-1", "", "")
	assert.Equal(t, http.StatusOK, w.Code)
	q.AssertCalled(t, "CancelJob", mock.Anything, queue.JobRefreshGraph, "job-1")

	w = do(router, http.MethodGet, "/api/v1/admin/queue", "", "")
	assert.JSONEq(t, `{"graph_rebuild":{"pending":1},"graph_refresh":{"pending":1}}`, w.Body.String())
}

func TestAdminRequiresAuth(t *testing.T) {
	cfg := testConfig()
	cfg.AdminAuthConfig = config.AdminAuthConfig{Enabled: true, Token: "secret"}
	router := newRouter(api.Deps{Trips: &stubSearcher{}, Queue: new(mocks.MockQueue), Config: cfg})

	w := do(router, http.MethodPost, "/api/v1/admin/refresh", "", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestHealthWithoutChecker(t *testing.T) {
	router := newRouter(api.Deps{Trips: &stubSearcher{}})
	w := do(router, http.MethodGet, "/health", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"up"`)
}
