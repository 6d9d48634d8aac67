// Package rates looks up currency exchange rates from an HTTP provider,
// caching them in the ledger database.
package rates

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"finance-assistant/internal/models"

	"github.com/go-resty/resty/v2"
)

// ErrUnavailable is returned for any provider or transport failure.
var ErrUnavailable = errors.New("exchange rate service unavailable")

const (
	// StyleConvert queries GET /convert?from&to&amount=1[&date] (exchangerate.host).
	StyleConvert = "convert"
	// StyleFetchOne queries GET /fetch-one?from&to (fastforex).
	StyleFetchOne = "fetch-one"

	DefaultBaseURL = "https://api.exchangerate.host"
)

// Quote is a normalized exchange rate.
type Quote struct {
	From string  `json:"from"`
	To   string  `json:"to"`
	Rate float64 `json:"rate"`
	Date string  `json:"date"`
}

// Cache stores looked-up rates keyed by pair and date.
type Cache interface {
	GetCachedRate(ctx context.Context, from, to, date string) (float64, error)
	SaveRate(ctx context.Context, from, to, date string, rate float64) error
}

// Config selects and tunes the provider.
type Config struct {
	Style   string
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// Client fetches rates, consulting the cache first.
type Client struct {
	http   *resty.Client
	cache  Cache
	style  string
	apiKey string
	now    func() time.Time
}

// NewClient creates a rate client. cache may be nil.
func NewClient(cfg Config, cache Cache) (*Client, error) {
	style := strings.ToLower(strings.TrimSpace(cfg.Style))
	switch style {
	case "":
		style = StyleConvert
	case StyleConvert, StyleFetchOne:
	default:
		return nil, fmt.Errorf("unknown rates provider style %q", cfg.Style)
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	client := resty.New()
	client.SetBaseURL(baseURL)
	client.SetTimeout(timeout)

	return &Client{
		http:   client,
		cache:  cache,
		style:  style,
		apiKey: cfg.APIKey,
		now:    time.Now,
	}, nil
}

// Rate returns the rate converting one unit of from into to on date.
// An empty date means today.
func (c *Client) Rate(ctx context.Context, from, to, date string) (Quote, error) {
	from = normalize(from)
	to = normalize(to)
	if from == "" || to == "" {
		return Quote{}, fmt.Errorf("%w: currency codes are required", ErrUnavailable)
	}
	if date == "" {
		date = c.now().Format(models.DateLayout)
	}

	if c.cache != nil {
		if rate, err := c.cache.GetCachedRate(ctx, from, to, date); err == nil {
			return Quote{From: from, To: to, Rate: rate, Date: date}, nil
		}
	}

	var (
		q   Quote
		err error
	)
	switch c.style {
	case StyleFetchOne:
		q, err = c.fetchOne(ctx, from, to, date)
	default:
		q, err = c.convert(ctx, from, to, date)
	}
	if err != nil {
		return Quote{}, err
	}

	// Cache under the date the provider answered for, not the one asked.
	if c.cache != nil {
		if _, err := time.Parse(models.DateLayout, q.Date); err != nil {
			log.Printf("rates: not caching %s/%s: provider date %q", from, to, q.Date)
		} else if err := c.cache.SaveRate(ctx, from, to, q.Date, q.Rate); err != nil {
			log.Printf("rates: cache write %s/%s %s: %v", from, to, q.Date, err)
		}
	}
	return q, nil
}

func normalize(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

type convertResponse struct {
	Success *bool   `json:"success"`
	Result  float64 `json:"result"`
	Date    string  `json:"date"`
	Info    struct {
		Rate float64 `json:"rate"`
	} `json:"info"`
}

func (c *Client) convert(ctx context.Context, from, to, date string) (Quote, error) {
	params := map[string]string{
		"from":   from,
		"to":     to,
		"amount": "1",
		"date":   date,
	}
	if c.apiKey != "" {
		params["access_key"] = c.apiKey
	}

	var body convertResponse
	if err := c.get(ctx, "/convert", params, &body); err != nil {
		return Quote{}, err
	}
	if body.Success != nil && !*body.Success {
		return Quote{}, fmt.Errorf("%w: provider reported failure", ErrUnavailable)
	}

	rate := body.Result
	if rate <= 0 {
		rate = body.Info.Rate
	}
	if rate <= 0 {
		return Quote{}, fmt.Errorf("%w: no rate for %s/%s", ErrUnavailable, from, to)
	}
	if body.Date != "" {
		date = body.Date
	}
	return Quote{From: from, To: to, Rate: rate, Date: date}, nil
}

type fetchOneResponse struct {
	Base    string             `json:"base"`
	Result  map[string]float64 `json:"result"`
	Updated string             `json:"updated"`
	Error   string             `json:"error"`
}

func (c *Client) fetchOne(ctx context.Context, from, to, date string) (Quote, error) {
	params := map[string]string{
		"from": from,
		"to":   to,
	}
	if c.apiKey != "" {
		params["api_key"] = c.apiKey
	}

	var body fetchOneResponse
	if err := c.get(ctx, "/fetch-one", params, &body); err != nil {
		return Quote{}, err
	}
	if body.Error != "" {
		return Quote{}, fmt.Errorf("%w: %s", ErrUnavailable, body.Error)
	}

	rate, ok := body.Result[to]
	if !ok || rate <= 0 {
		return Quote{}, fmt.Errorf("%w: no rate for %s/%s", ErrUnavailable, from, to)
	}
	// "updated" is a timestamp like "2026-10-15 09:00:00"
	if len(body.Updated) >= len(models.DateLayout) {
		date = body.Updated[:len(models.DateLayout)]
	}
	return Quote{From: from, To: to, Rate: rate, Date: date}, nil
}

func (c *Client) get(ctx context.Context, path string, params map[string]string, out any) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(params).
		Get(path)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if resp.StatusCode() != 200 {
		return fmt.Errorf("%w: API error %d", ErrUnavailable, resp.StatusCode())
	}
	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return fmt.Errorf("%w: failed to parse response: %v", ErrUnavailable, err)
	}
	return nil
}
