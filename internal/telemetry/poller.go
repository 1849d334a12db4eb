package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"trace-service/internal/models"
	"trace-service/internal/util"

	"go.uber.org/zap"
)

// feedResponse matches the channel feed document: the newest reading is the
// first entry's field1, encoded as a string.
type feedResponse struct {
	Feeds []struct {
		Field1 string `json:"field1"`
	} `json:"feeds"`
}

// Sink receives each successfully parsed sample. Sink failures are logged
// and never interrupt polling.
type Sink interface {
	RecordSample(ctx context.Context, sample *models.TelemetrySample) error
}

// Poller polls the external sensor feed on a fixed interval and keeps the
// session's sample series in memory. A failed poll keeps the previous value.
type Poller struct {
	feedURL  string
	interval time.Duration
	client   *http.Client
	sinks    []Sink
	logger   *zap.Logger

	mu      sync.Mutex
	samples []models.TelemetrySample

	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewPoller creates a poller for the given feed URL and interval.
func NewPoller(feedURL string, interval time.Duration, sinks ...Sink) *Poller {
	return &Poller{
		feedURL:  feedURL,
		interval: interval,
		client:   &http.Client{Timeout: 10 * time.Second},
		sinks:    sinks,
		logger:   util.GetLogger(),
		stop:     make(chan struct{}),
	}
}

// Start polls once immediately, then on every interval tick until Stop or
// ctx cancellation.
func (p *Poller) Start(ctx context.Context) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()

		p.poll(ctx)

		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-p.stop:
				return
			case <-ticker.C:
				p.poll(ctx)
			}
		}
	}()
}

// Stop halts polling. Idempotent.
func (p *Poller) Stop() {
	p.stopOnce.Do(func() { close(p.stop) })
	p.wg.Wait()
}

func (p *Poller) poll(ctx context.Context) {
	value, err := p.fetch(ctx)
	if err != nil {
		util.TelemetryPollsTotal.WithLabelValues("error").Inc()
		p.logger.Warn("Telemetry poll failed, keeping previous value", zap.Error(err))
		return
	}
	util.TelemetryPollsTotal.WithLabelValues("ok").Inc()

	sample := models.TelemetrySample{Value: value, At: time.Now()}

	p.mu.Lock()
	p.samples = append(p.samples, sample)
	p.mu.Unlock()

	for _, sink := range p.sinks {
		if err := sink.RecordSample(ctx, &sample); err != nil {
			p.logger.Warn("Telemetry sink failed", zap.Error(err))
		}
	}
}

func (p *Poller) fetch(ctx context.Context) (float64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.feedURL, nil)
	if err != nil {
		return 0, err
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("failed to fetch feed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("feed returned status %d", resp.StatusCode)
	}

	var doc feedResponse
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return 0, fmt.Errorf("failed to decode feed: %w", err)
	}
	if len(doc.Feeds) == 0 {
		return 0, fmt.Errorf("feed contains no entries")
	}

	value, err := strconv.ParseFloat(doc.Feeds[0].Field1, 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse reading %q: %w", doc.Feeds[0].Field1, err)
	}
	return value, nil
}

// LastValue returns the newest reading of the session.
func (p *Poller) LastValue() (float64, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.samples) == 0 {
		return 0, false
	}
	return p.samples[len(p.samples)-1].Value, true
}

// MinMax returns the extremes of the session's series.
func (p *Poller) MinMax() (minVal, maxVal float64, ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.samples) == 0 {
		return 0, 0, false
	}
	minVal, maxVal = p.samples[0].Value, p.samples[0].Value
	for _, s := range p.samples[1:] {
		if s.Value < minVal {
			minVal = s.Value
		}
		if s.Value > maxVal {
			maxVal = s.Value
		}
	}
	return minVal, maxVal, true
}

// Samples returns a copy of the session's series.
func (p *Poller) Samples() []models.TelemetrySample {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]models.TelemetrySample(nil), p.samples...)
}
