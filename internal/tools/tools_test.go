package tools

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/storyland-ai/storyland/internal/retry"
)

// fastRetries keeps test error paths from sleeping through the real backoff.
func fastRetries(t *transport) {
	t.policy = retry.Policy{MaxAttempts: 3, InitialDelay: time.Millisecond, Base: 2}
}

func TestClassify(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want retry.Class
	}{
		{"rate limited", &StatusError{Tool: "t", Code: 429}, retry.ClassRetryable},
		{"server error", &StatusError{Tool: "t", Code: 500}, retry.ClassRetryable},
		{"unavailable", &StatusError{Tool: "t", Code: 503}, retry.ClassRetryable},
		{"gateway timeout", &StatusError{Tool: "t", Code: 504}, retry.ClassRetryable},
		{"unauthorized", &StatusError{Tool: "t", Code: 401}, retry.ClassFatal},
		{"forbidden", &StatusError{Tool: "t", Code: 403}, retry.ClassFatal},
		{"bad request", &StatusError{Tool: "t", Code: 400}, retry.ClassFatal},
		{"malformed response", &DecodeError{Tool: "t", Err: errors.New("bad json")}, retry.ClassFatal},
		{"unknown", errors.New("surprise"), retry.ClassFatal},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Classify(tc.err))
		})
	}
}

func TestBooksLookup(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Query().Get("q"), "intitle:Ulysses")
		w.Write([]byte(`{"totalItems":1,"items":[{"volumeInfo":{
			"title":"Ulysses","authors":["James Joyce"],
			"publishedDate":"1922","categories":["Fiction"],
			"description":"A day in Dublin."}}]}`))
	}))
	defer srv.Close()

	c := NewBooksClientWithBaseURL(srv.URL, "", zaptest.NewLogger(t))
	ev, err := c.Lookup(context.Background(), "Ulysses")
	require.NoError(t, err)
	require.Len(t, ev.Findings, 1)
	assert.True(t, ev.Mentions("James Joyce"))
	assert.True(t, ev.Mentions("Dublin"))
}

func TestBooksLookupNotFoundIsEmptyNotError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"totalItems":0}`))
	}))
	defer srv.Close()

	c := NewBooksClientWithBaseURL(srv.URL, "", zaptest.NewLogger(t))
	ev, err := c.Lookup(context.Background(), "No Such Book Ever Written")
	require.NoError(t, err)
	assert.True(t, ev.Empty())
}

func TestTransportRetriesTransientThenSucceeds(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if hits.Add(1) < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(`{"totalItems":0}`))
	}))
	defer srv.Close()

	c := NewBooksClientWithBaseURL(srv.URL, "", zaptest.NewLogger(t))
	fastRetries(&c.transport)

	_, err := c.Lookup(context.Background(), "anything")
	require.NoError(t, err)
	assert.Equal(t, int32(3), hits.Load())
}

func TestTransportFatalDoesNotRetry(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := NewBooksClientWithBaseURL(srv.URL, "bad-key", zaptest.NewLogger(t))
	fastRetries(&c.transport)

	_, err := c.Lookup(context.Background(), "anything")
	var status *StatusError
	require.ErrorAs(t, err, &status)
	assert.Equal(t, http.StatusUnauthorized, status.Code)
	assert.Equal(t, int32(1), hits.Load(), "auth failures must not burn retries")
}

func TestTransportExhaustsRetries(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewBooksClientWithBaseURL(srv.URL, "", zaptest.NewLogger(t))
	fastRetries(&c.transport)

	_, err := c.Lookup(context.Background(), "anything")
	var exhausted *retry.ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, 3, exhausted.Attempts)
	assert.Equal(t, int32(3), hits.Load())
}

func TestTransportHonorsConfiguredAttemptCeiling(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewBooksClient("", retry.Policy{MaxAttempts: 1, InitialDelay: time.Millisecond, Base: 2}, zaptest.NewLogger(t))
	c.baseURL = srv.URL

	_, err := c.Lookup(context.Background(), "anything")
	var exhausted *retry.ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, 1, exhausted.Attempts)
	assert.Equal(t, int32(1), hits.Load(), "a ceiling of one means no retries")
}

func TestSearch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-key", r.Header.Get("X-API-KEY"))
		w.Write([]byte(`{"organic":[
			{"title":"Ulysses settings","link":"https://example.com/1","snippet":"Dublin, Ireland is the setting of Ulysses."},
			{"title":"Joyce tour","link":"https://example.com/2","snippet":"Martello Tower in Sandycove."}]}`))
	}))
	defer srv.Close()

	c := NewSearchClientWithBaseURL(srv.URL, "test-key", zaptest.NewLogger(t))
	ev, err := c.Search(context.Background(), "Ulysses locations", 5)
	require.NoError(t, err)
	require.Len(t, ev.Findings, 2)
	assert.True(t, ev.Mentions("Dublin"))
	assert.True(t, ev.Mentions("Martello Tower"))
}

func TestSearchNoHitsIsEmptyNotError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"organic":[]}`))
	}))
	defer srv.Close()

	c := NewSearchClientWithBaseURL(srv.URL, "k", zaptest.NewLogger(t))
	ev, err := c.Search(context.Background(), "gibberish query", 5)
	require.NoError(t, err)
	assert.True(t, ev.Empty())
}

func TestSearchCapsResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"organic":[
			{"title":"a","snippet":"1"},{"title":"b","snippet":"2"},{"title":"c","snippet":"3"}]}`))
	}))
	defer srv.Close()

	c := NewSearchClientWithBaseURL(srv.URL, "k", zaptest.NewLogger(t))
	ev, err := c.Search(context.Background(), "q", 2)
	require.NoError(t, err)
	assert.Len(t, ev.Findings, 2)
}

func TestGeocode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Query().Get("q"), "Dublin")
		w.Write([]byte(`[{"lat":"53.3498","lon":"-6.2603","display_name":"Dublin, Ireland"}]`))
	}))
	defer srv.Close()

	c := NewGeocodeClientWithBaseURL(srv.URL, "test-agent", zaptest.NewLogger(t))
	coords, ok, err := c.Geocode(context.Background(), "Dublin", "Ireland")
	require.NoError(t, err)
	require.True(t, ok)
	assert.InDelta(t, 53.3498, coords.Lat, 0.001)
	assert.InDelta(t, -6.2603, coords.Lon, 0.001)
}

func TestGeocodeMiss(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	c := NewGeocodeClientWithBaseURL(srv.URL, "test-agent", zaptest.NewLogger(t))
	_, ok, err := c.Geocode(context.Background(), "Atlantis", "")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestGeocodeMalformedCoordinatesFatal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`[{"lat":"not-a-number","lon":"0"}]`))
	}))
	defer srv.Close()

	c := NewGeocodeClientWithBaseURL(srv.URL, "test-agent", zaptest.NewLogger(t))
	_, _, err := c.Geocode(context.Background(), "Dublin", "Ireland")
	var decode *DecodeError
	require.ErrorAs(t, err, &decode)
	assert.Equal(t, retry.ClassFatal, Classify(err))
}
