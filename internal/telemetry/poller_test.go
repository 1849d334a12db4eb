package telemetry

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPollerParsesFeed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"feeds":[{"field1":"23.5"}]}`))
	}))
	defer srv.Close()

	p := NewPoller(srv.URL, time.Minute)
	p.poll(context.Background())

	last, ok := p.LastValue()
	require.True(t, ok)
	assert.Equal(t, 23.5, last)

	minVal, maxVal, ok := p.MinMax()
	require.True(t, ok)
	assert.Equal(t, 23.5, minVal)
	assert.Equal(t, 23.5, maxVal)
}

func TestPollerTracksExtremes(t *testing.T) {
	var calls atomic.Int32
	readings := []string{"20.0", "25.5", "18.25"}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"feeds":[{"field1":"` + readings[(n-1)%3] + `"}]}`))
	}))
	defer srv.Close()

	p := NewPoller(srv.URL, time.Minute)
	for range readings {
		p.poll(context.Background())
	}

	minVal, maxVal, ok := p.MinMax()
	require.True(t, ok)
	assert.Equal(t, 18.25, minVal)
	assert.Equal(t, 25.5, maxVal)

	last, ok := p.LastValue()
	require.True(t, ok)
	assert.Equal(t, 18.25, last)

	assert.Len(t, p.Samples(), 3)
}

func TestPollerKeepsValueOnFailure(t *testing.T) {
	var fail atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if fail.Load() {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"feeds":[{"field1":"21.0"}]}`))
	}))
	defer srv.Close()

	p := NewPoller(srv.URL, time.Minute)
	p.poll(context.Background())

	fail.Store(true)
	p.poll(context.Background())

	last, ok := p.LastValue()
	require.True(t, ok)
	assert.Equal(t, 21.0, last, "failed poll keeps the previous value")
	assert.Len(t, p.Samples(), 1)
}

func TestPollerEmptyFeed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"feeds":[]}`))
	}))
	defer srv.Close()

	p := NewPoller(srv.URL, time.Minute)
	p.poll(context.Background())

	_, ok := p.LastValue()
	assert.False(t, ok)
}
