package fares

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/browserutils/kooky"
	"github.com/gilby125/tripfinder/graph"
	"github.com/gilby125/tripfinder/pkg/logger"
	"github.com/hashicorp/go-retryablehttp"
	"golang.org/x/text/currency"
	"golang.org/x/time/rate"
)

const (
	activeAirportsPath = "/api/views/locate/5/airports/en/active"
	routesPath         = "/api/views/locate/searchWidget/routes/en/airport/%s"
	availableDatesPath = "/api/farfnd/v4/oneWayFares/%s/%s/availabilities"
	availabilityPath   = "/api/booking/v4/en-gb/availability"

	sourceTimeLayout = "2006-01-02T15:04:05.000"
)

type httpClient interface {
	Do(req *retryablehttp.Request) (*http.Response, error)
}

// RateSource returns the multiplier converting amounts in from to amounts in to.
type RateSource interface {
	Rate(ctx context.Context, from, to currency.Unit) (float64, error)
}

// Options configures a Client.
type Options struct {
	BaseURL           string
	Currency          currency.Unit
	RequestsPerSecond float64
	Burst             int
	Timeout           time.Duration
	MaxRetries        int
	// BrowserCookies adds cookies for the fare source domain from the local
	// browser profile to every request.
	BrowserCookies bool
	Rates          RateSource
}

// Client talks to the fare source. It is safe for concurrent use; outbound
// requests share one rate limiter.
type Client struct {
	baseURL        string
	client         httpClient
	limiter        *rate.Limiter
	currency       currency.Unit
	rates          RateSource
	browserCookies bool

	mu      sync.RWMutex
	cookies []string
}

// NewClient creates a fare source client.
func NewClient(opts Options) *Client {
	if opts.Currency == (currency.Unit{}) {
		opts.Currency = currency.EUR
	}
	limit := rate.Inf
	if opts.RequestsPerSecond > 0 {
		limit = rate.Limit(opts.RequestsPerSecond)
	}
	burst := opts.Burst
	if burst < 1 {
		burst = 1
	}
	return &Client{
		baseURL:        strings.TrimRight(opts.BaseURL, "/"),
		client:         newRetryableClient(opts.MaxRetries, opts.Timeout),
		limiter:        rate.NewLimiter(limit, burst),
		currency:       opts.Currency,
		rates:          opts.Rates,
		browserCookies: opts.BrowserCookies,
	}
}

func newRetryableClient(maxRetries int, timeout time.Duration) *retryablehttp.Client {
	client := retryablehttp.NewClient()
	client.RetryMax = maxRetries
	client.Logger = nil
	client.CheckRetry = customRetryPolicy()
	client.ErrorHandler = lastResponse
	client.RetryWaitMin = time.Second
	client.RetryWaitMax = 10 * time.Second
	if timeout > 0 {
		client.HTTPClient.Timeout = timeout
	}
	return client
}

// customRetryPolicy retries transport errors, throttling and server errors.
// Other 4xx responses are returned to the caller as-is.
func customRetryPolicy() func(ctx context.Context, resp *http.Response, err error) (bool, error) {
	return func(ctx context.Context, resp *http.Response, err error) (bool, error) {
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
				return false, ctx.Err()
			}
		}

		if resp == nil {
			return true, err
		}

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return true, fmt.Errorf("wrong status code: %d", resp.StatusCode)
		}
		if resp.StatusCode >= 400 {
			return false, nil
		}
		return retryablehttp.DefaultRetryPolicy(ctx, resp, err)
	}
}

// Currency is the target currency fares are normalised to.
func (c *Client) Currency() currency.Unit {
	return c.currency
}

// PrimeSession fetches the fare source home page and keeps the session
// cookies it sets for later requests.
func (c *Client) PrimeSession(ctx context.Context) error {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/", nil)
	if err != nil {
		return fmt.Errorf("prime session: %w", err)
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	res, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("prime session: err sending request to %s: %w", c.baseURL, err)
	}
	defer res.Body.Close()
	_, _ = io.Copy(io.Discard, res.Body)

	cookies := getCookies(res)
	if c.browserCookies {
		cookies = append(cookies, c.readBrowserCookies()...)
	}

	c.mu.Lock()
	c.cookies = cookies
	c.mu.Unlock()
	return nil
}

func getCookies(res *http.Response) []string {
	var cookies []string
	for _, c := range res.Header.Values("Set-Cookie") {
		cookies = append(cookies, strings.Split(c, ";")[0])
	}
	return cookies
}

func (c *Client) readBrowserCookies() []string {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return nil
	}
	domain := strings.TrimPrefix(u.Hostname(), "www.")
	var out []string
	for _, cookie := range kooky.ReadCookies(kooky.Valid, kooky.DomainHasSuffix(domain)) {
		out = append(out, fmt.Sprintf("%s=%s", cookie.Name, cookie.Value))
	}
	return out
}

// lastResponse hands the final response of an exhausted retry loop back to
// the caller so its status can be reported.
func lastResponse(resp *http.Response, err error, _ int) (*http.Response, error) {
	if resp != nil {
		return resp, nil
	}
	return nil, err
}

func (c *Client) getJSON(ctx context.Context, path string, query url.Values, dest any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return fmt.Errorf("build request %s: %w", path, err)
	}
	req.Header.Set("Accept", "application/json")
	c.mu.RLock()
	if len(c.cookies) > 0 {
		req.Header.Set("Cookie", strings.Join(c.cookies, "; "))
	}
	c.mu.RUnlock()

	res, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("request %s: %w", path, err)
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusTooManyRequests {
		return fmt.Errorf("%w: %w: 429 from %s", ErrRateLimited, ErrUnexpectedStatus, path)
	}
	if res.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 512))
		return fmt.Errorf("%w: %d from %s: %s", ErrUnexpectedStatus, res.StatusCode, path, strings.TrimSpace(string(body)))
	}
	if err := json.NewDecoder(res.Body).Decode(dest); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

// ActiveAirports returns every airport the fare source currently serves.
func (c *Client) ActiveAirports(ctx context.Context) ([]graph.Airport, error) {
	var payload []airportPayload
	if err := c.getJSON(ctx, activeAirportsPath, nil, &payload); err != nil {
		return nil, fmt.Errorf("active airports: %w", err)
	}
	airports := make([]graph.Airport, 0, len(payload))
	for _, a := range payload {
		airports = append(airports, graph.Airport{
			Code:      a.Code,
			Name:      a.Name,
			City:      a.City.Name,
			Country:   a.Country.Name,
			Latitude:  a.Coordinates.Latitude,
			Longitude: a.Coordinates.Longitude,
			TimeZone:  a.TimeZone,
		})
	}
	return airports, nil
}

// Routes returns the destination codes served from an airport.
func (c *Client) Routes(ctx context.Context, code string) ([]string, error) {
	var payload []routePayload
	if err := c.getJSON(ctx, fmt.Sprintf(routesPath, url.PathEscape(code)), nil, &payload); err != nil {
		return nil, fmt.Errorf("routes for %s: %w", code, err)
	}
	out := make([]string, 0, len(payload))
	for _, r := range payload {
		if r.ArrivalAirport.Code != "" {
			out = append(out, r.ArrivalAirport.Code)
		}
	}
	return out, nil
}

// AvailableDates returns the days with at least one scheduled flight from
// origin to destination.
func (c *Client) AvailableDates(ctx context.Context, origin, destination string) ([]time.Time, error) {
	var payload []string
	path := fmt.Sprintf(availableDatesPath, url.PathEscape(origin), url.PathEscape(destination))
	if err := c.getJSON(ctx, path, nil, &payload); err != nil {
		return nil, fmt.Errorf("available dates %s-%s: %w", origin, destination, err)
	}
	dates := make([]time.Time, 0, len(payload))
	for _, s := range payload {
		d, err := graph.ParseDate(s)
		if err != nil {
			return nil, fmt.Errorf("available dates %s-%s: %w", origin, destination, err)
		}
		dates = append(dates, d)
	}
	return dates, nil
}

// ResolveFares returns one PricedLeg per flight scheduled on req.Date.
// Flights without a regular fare are returned with a nil Fare. Fares quoted
// in another currency are converted when a RateSource is configured; if the
// conversion fails the source amounts and currency are kept.
func (c *Client) ResolveFares(ctx context.Context, req Request) ([]PricedLeg, error) {
	adults := req.Adults
	if adults < 1 {
		adults = 1
	}
	target := req.Currency
	if target == (currency.Unit{}) {
		target = c.currency
	}

	query := url.Values{}
	query.Set("ADT", strconv.Itoa(adults))
	query.Set("DateOut", req.Date.Format(graph.DateLayout))
	query.Set("Destination", req.Destination)
	query.Set("Origin", req.Origin)
	query.Set("FlexDaysBeforeOut", "0")
	query.Set("FlexDaysOut", "0")
	query.Set("IncludeConnectingFlights", "false")
	query.Set("RoundTrip", "false")
	query.Set("ToUs", "AGREED")

	var payload availabilityPayload
	if err := c.getJSON(ctx, availabilityPath, query, &payload); err != nil {
		return nil, fmt.Errorf("fares %s-%s on %s: %w", req.Origin, req.Destination, req.Date.Format(graph.DateLayout), err)
	}

	legs := parseLegs(payload, req.Date)
	c.normaliseCurrency(ctx, legs, payload.Currency, target)
	return legs, nil
}

func parseLegs(payload availabilityPayload, day time.Time) []PricedLeg {
	want := graph.Day(day)
	var legs []PricedLeg
	for _, trip := range payload.Trips {
		for _, d := range trip.Dates {
			if len(d.DateOut) >= len(graph.DateLayout) {
				if out, err := graph.ParseDate(d.DateOut[:len(graph.DateLayout)]); err == nil && !out.Equal(want) {
					continue
				}
			}
			for _, f := range d.Flights {
				leg := PricedLeg{
					Origin:          trip.Origin,
					Destination:     trip.Destination,
					OriginName:      trip.OriginName,
					DestinationName: trip.DestinationName,
					Currency:        payload.Currency,
					FlightNumber:    f.FlightNumber,
					Duration:        f.Duration,
					Fare:            regularFare(f),
				}
				times := f.Time
				if len(f.Segments) > 0 {
					seg := f.Segments[0]
					if len(seg.Time) > 0 {
						times = seg.Time
					}
					if leg.FlightNumber == "" {
						leg.FlightNumber = seg.FlightNumber
					}
					if leg.Duration == "" {
						leg.Duration = seg.Duration
					}
				}
				if len(times) > 0 {
					leg.DepartureTime = parseSourceTime(times[0])
				}
				if len(times) > 1 {
					leg.ArrivalTime = parseSourceTime(times[1])
				}
				legs = append(legs, leg)
			}
		}
	}
	return legs
}

// regularFare is the party total of the regular fare: amount times
// passenger count summed over the fare entries.
func regularFare(f flightPayload) *float64 {
	if f.RegularFare == nil || len(f.RegularFare.Fares) == 0 {
		return nil
	}
	var total float64
	for _, fare := range f.RegularFare.Fares {
		total += fare.Amount * float64(max(fare.Count, 1))
	}
	total = roundCents(total)
	return &total
}

func parseSourceTime(value string) *time.Time {
	for _, layout := range []string{sourceTimeLayout, "2006-01-02T15:04:05", time.RFC3339} {
		if t, err := time.Parse(layout, value); err == nil {
			return &t
		}
	}
	return nil
}

func (c *Client) normaliseCurrency(ctx context.Context, legs []PricedLeg, quoted string, target currency.Unit) {
	if quoted == "" {
		quoted = target.String()
		for i := range legs {
			legs[i].Currency = quoted
		}
	}
	if strings.EqualFold(quoted, target.String()) {
		return
	}

	from, err := currency.ParseISO(quoted)
	if err != nil {
		logger.Warn("Fare source quoted an unknown currency, fares left unconverted", "currency", quoted, "error", err)
		return
	}
	if c.rates == nil {
		logger.Warn("No exchange rate source configured, fares left unconverted", "from", from.String(), "to", target.String())
		return
	}
	multiplier, err := c.rates.Rate(ctx, from, target)
	if err != nil {
		logger.Warn("Currency conversion failed, fares left unconverted", "from", from.String(), "to", target.String(), "error", err)
		return
	}

	for i := range legs {
		if legs[i].Fare != nil {
			converted := roundCents(*legs[i].Fare * multiplier)
			legs[i].Fare = &converted
		}
		legs[i].Currency = target.String()
	}
}

func roundCents(v float64) float64 {
	return math.Round(v*100) / 100
}
