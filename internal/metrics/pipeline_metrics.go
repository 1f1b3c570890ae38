package metrics

import (
	"sync/atomic"
	"time"
)

// PipelineMetrics tracks request and stage timings for the fetch/feature/model pipeline.
type PipelineMetrics struct {
	// Latency histograms (in milliseconds)
	RequestLatency *Histogram
	FeatureLatency *Histogram
	TrainLatency   *Histogram
	PredictLatency *Histogram

	// Counters
	APIRequests  atomic.Uint64
	APIErrors    atomic.Uint64
	APIRetries   atomic.Uint64
	CacheHits    atomic.Uint64
	CacheMisses  atomic.Uint64
	GamesFetched atomic.Uint64
	GamesScored  atomic.Uint64

	startTime time.Time
}

// NewPipelineMetrics creates a new metrics collector.
func NewPipelineMetrics() *PipelineMetrics {
	return &PipelineMetrics{
		RequestLatency: NewHistogram(10000),
		FeatureLatency: NewHistogram(1000),
		TrainLatency:   NewHistogram(1000),
		PredictLatency: NewHistogram(1000),
		startTime:      time.Now(),
	}
}

// Snapshot is a point-in-time copy of the collected metrics.
type Snapshot struct {
	Uptime          time.Duration `json:"uptime"`
	APIRequests     uint64        `json:"api_requests"`
	APIErrors       uint64        `json:"api_errors"`
	APIRetries      uint64        `json:"api_retries"`
	CacheHits       uint64        `json:"cache_hits"`
	CacheMisses     uint64        `json:"cache_misses"`
	CacheHitRate    float64       `json:"cache_hit_rate"`
	GamesFetched    uint64        `json:"games_fetched"`
	GamesScored     uint64        `json:"games_scored"`
	RequestMeanMs   float64       `json:"request_mean_ms"`
	RequestP95Ms    float64       `json:"request_p95_ms"`
	FeatureMeanMs   float64       `json:"feature_mean_ms"`
	TrainMeanMs     float64       `json:"train_mean_ms"`
	PredictMeanMs   float64       `json:"predict_mean_ms"`
	RequestsSampled int           `json:"requests_sampled"`
}

// Snapshot returns the current metric values.
func (m *PipelineMetrics) Snapshot() Snapshot {
	hits := m.CacheHits.Load()
	misses := m.CacheMisses.Load()

	var hitRate float64
	if total := hits + misses; total > 0 {
		hitRate = float64(hits) / float64(total)
	}

	return Snapshot{
		Uptime:          time.Since(m.startTime),
		APIRequests:     m.APIRequests.Load(),
		APIErrors:       m.APIErrors.Load(),
		APIRetries:      m.APIRetries.Load(),
		CacheHits:       hits,
		CacheMisses:     misses,
		CacheHitRate:    hitRate,
		GamesFetched:    m.GamesFetched.Load(),
		GamesScored:     m.GamesScored.Load(),
		RequestMeanMs:   m.RequestLatency.Mean(),
		RequestP95Ms:    m.RequestLatency.Percentile(95),
		FeatureMeanMs:   m.FeatureLatency.Mean(),
		TrainMeanMs:     m.TrainLatency.Mean(),
		PredictMeanMs:   m.PredictLatency.Mean(),
		RequestsSampled: m.RequestLatency.Count(),
	}
}
