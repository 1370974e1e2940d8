package fares

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gilby125/tripfinder/pkg/cache"
	"github.com/hashicorp/go-retryablehttp"
	"golang.org/x/text/currency"
)

// FrankfurterRates reads ECB reference rates from a Frankfurter-compatible
// API. Rates are cached for ttl when a cache manager is supplied.
type FrankfurterRates struct {
	baseURL string
	client  httpClient
	cache   *cache.CacheManager
	ttl     time.Duration
}

// NewFrankfurterRates creates a rate source. cm may be nil.
func NewFrankfurterRates(baseURL string, cm *cache.CacheManager, ttl time.Duration) *FrankfurterRates {
	return &FrankfurterRates{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  newRetryableClient(2, 10*time.Second),
		cache:   cm,
		ttl:     ttl,
	}
}

type frankfurterResponse struct {
	Base  string             `json:"base"`
	Date  string             `json:"date"`
	Rates map[string]float64 `json:"rates"`
}

// Rate returns the multiplier from one currency to another.
func (f *FrankfurterRates) Rate(ctx context.Context, from, to currency.Unit) (float64, error) {
	if from == to {
		return 1, nil
	}
	key := cache.ExchangeRateKey(from.String(), to.String())
	return cache.GetOrLoad(ctx, f.cache, key, f.ttl, func(ctx context.Context) (float64, error) {
		return f.fetch(ctx, from, to)
	})
}

func (f *FrankfurterRates) fetch(ctx context.Context, from, to currency.Unit) (float64, error) {
	q := url.Values{}
	q.Set("from", from.String())
	q.Set("to", to.String())

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, f.baseURL+"/latest?"+q.Encode(), nil)
	if err != nil {
		return 0, err
	}
	res, err := f.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("exchange rate %s->%s: %w", from, to, err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("exchange rate %s->%s: %w: %d", from, to, ErrUnexpectedStatus, res.StatusCode)
	}
	var payload frankfurterResponse
	if err := json.NewDecoder(res.Body).Decode(&payload); err != nil {
		return 0, fmt.Errorf("exchange rate %s->%s: decode: %w", from, to, err)
	}
	r, ok := payload.Rates[to.String()]
	if !ok || r <= 0 {
		return 0, fmt.Errorf("exchange rate %s->%s: no rate in response", from, to)
	}
	return r, nil
}
