package rates

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"finance-assistant/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, style, url string, cache Cache) *Client {
	t.Helper()
	c, err := NewClient(Config{Style: style, BaseURL: url, Timeout: time.Second}, cache)
	require.NoError(t, err)
	c.now = func() time.Time { return time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC) }
	return c
}

func TestConvertStyle(t *testing.T) {
	var gotQuery map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/convert", r.URL.Path)
		q := r.URL.Query()
		gotQuery = map[string]string{"from": q.Get("from"), "to": q.Get("to"), "amount": q.Get("amount"), "date": q.Get("date")}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"success":true,"info":{"rate":0.9123},"date":"2026-10-15","result":0.9123}`))
	}))
	defer srv.Close()

	c := newTestClient(t, StyleConvert, srv.URL, nil)
	q, err := c.Rate(context.Background(), " usd", "eur ", "")
	require.NoError(t, err)

	assert.Equal(t, Quote{From: "USD", To: "EUR", Rate: 0.9123, Date: "2026-10-15"}, q)
	assert.Equal(t, map[string]string{"from": "USD", "to": "EUR", "amount": "1", "date": "2026-10-15"}, gotQuery)
}

func TestConvertStyleFallsBackToInfoRate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"info":{"rate":1.25},"date":"2026-01-02"}`))
	}))
	defer srv.Close()

	c := newTestClient(t, StyleConvert, srv.URL, nil)
	q, err := c.Rate(context.Background(), "GBP", "USD", "2026-01-02")
	require.NoError(t, err)
	assert.Equal(t, 1.25, q.Rate)
	assert.Equal(t, "2026-01-02", q.Date)
}

func TestFetchOneStyle(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/fetch-one", r.URL.Path)
		assert.Equal(t, "USD", r.URL.Query().Get("from"))
		assert.Equal(t, "JPY", r.URL.Query().Get("to"))
		assert.Equal(t, "k", r.URL.Query().Get("api_key"))
		w.Write([]byte(`{"base":"USD","result":{"JPY":149.5},"updated":"2026-10-15 09:00:00","ms":3}`))
	}))
	defer srv.Close()

	c, err := NewClient(Config{Style: StyleFetchOne, BaseURL: srv.URL, APIKey: "k"}, nil)
	require.NoError(t, err)
	q, err := c.Rate(context.Background(), "usd", "jpy", "")
	require.NoError(t, err)
	assert.Equal(t, Quote{From: "USD", To: "JPY", Rate: 149.5, Date: "2026-10-15"}, q)
}

func TestProviderFailuresAreUnavailable(t *testing.T) {
	tests := []struct {
		name   string
		style  string
		status int
		body   string
	}{
		{"server error", StyleConvert, http.StatusInternalServerError, `{}`},
		{"malformed json", StyleConvert, http.StatusOK, `not json`},
		{"success false", StyleConvert, http.StatusOK, `{"success":false,"error":{"code":101}}`},
		{"no rate", StyleConvert, http.StatusOK, `{"success":true,"result":null}`},
		{"fetch-one error", StyleFetchOne, http.StatusOK, `{"error":"invalid api key"}`},
		{"fetch-one missing pair", StyleFetchOne, http.StatusOK, `{"base":"USD","result":{}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			c := newTestClient(t, tt.style, srv.URL, nil)
			_, err := c.Rate(context.Background(), "USD", "EUR", "")
			assert.ErrorIs(t, err, ErrUnavailable)
		})
	}
}

func TestTransportFailureIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	c := newTestClient(t, StyleConvert, url, nil)
	_, err := c.Rate(context.Background(), "USD", "EUR", "")
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestEmptyCodes(t *testing.T) {
	c := newTestClient(t, StyleConvert, "http://127.0.0.1:1", nil)
	_, err := c.Rate(context.Background(), " ", "EUR", "")
	assert.Error(t, err)
}

func TestUnknownStyle(t *testing.T) {
	_, err := NewClient(Config{Style: "scrape"}, nil)
	assert.Error(t, err)
}

func TestCacheIsConsultedFirst(t *testing.T) {
	db, err := storage.NewDB(":memory:")
	require.NoError(t, err)
	defer db.Close()

	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Write([]byte(`{"success":true,"date":"2026-10-15","result":0.5}`))
	}))
	defer srv.Close()

	c := newTestClient(t, StyleConvert, srv.URL, db)

	first, err := c.Rate(context.Background(), "usd", "eur", "2026-10-15")
	require.NoError(t, err)
	second, err := c.Rate(context.Background(), "USD", "EUR", "2026-10-15")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls), "second lookup served from cache")

	rate, err := db.GetCachedRate(context.Background(), "USD", "EUR", "2026-10-15")
	require.NoError(t, err)
	assert.Equal(t, 0.5, rate)
}

func TestFetchOneHistoricalDateIsNotCachedAsThatDay(t *testing.T) {
	db, err := storage.NewDB(":memory:")
	require.NoError(t, err)
	defer db.Close()

	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Write([]byte(`{"base":"USD","result":{"EUR":0.95},"updated":"2026-10-15 09:00:00"}`))
	}))
	defer srv.Close()

	c := newTestClient(t, StyleFetchOne, srv.URL, db)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		q, err := c.Rate(ctx, "USD", "EUR", "2020-01-01")
		require.NoError(t, err)
		assert.Equal(t, "2026-10-15", q.Date)
		assert.Equal(t, 0.95, q.Rate)
	}
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls), "a historical date must not hit a cache filled with today's rate")

	_, err = db.GetCachedRate(ctx, "USD", "EUR", "2020-01-01")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	rate, err := db.GetCachedRate(ctx, "USD", "EUR", "2026-10-15")
	require.NoError(t, err)
	assert.Equal(t, 0.95, rate)

	// Today's lookup is now a cache hit.
	q, err := c.Rate(ctx, "USD", "EUR", "")
	require.NoError(t, err)
	assert.Equal(t, "2026-10-15", q.Date)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestConvertCachesUnderProviderDate(t *testing.T) {
	db, err := storage.NewDB(":memory:")
	require.NoError(t, err)
	defer db.Close()

	// Weekend request answered with Friday's rate.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success":true,"date":"2026-10-09","result":0.91}`))
	}))
	defer srv.Close()

	c := newTestClient(t, StyleConvert, srv.URL, db)
	ctx := context.Background()

	q, err := c.Rate(ctx, "USD", "EUR", "2026-10-11")
	require.NoError(t, err)
	assert.Equal(t, "2026-10-09", q.Date)

	_, err = db.GetCachedRate(ctx, "USD", "EUR", "2026-10-11")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	rate, err := db.GetCachedRate(ctx, "USD", "EUR", "2026-10-09")
	require.NoError(t, err)
	assert.Equal(t, 0.91, rate)
}
