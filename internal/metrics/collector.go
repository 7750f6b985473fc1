package metrics

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/foxzi/rbacdash/internal/store"
)

// countersKey is the storage key of the persisted counter snapshot
const countersKey = "metrics_counters"

// CounterSample is one labelled counter value
type CounterSample struct {
	Labels map[string]string `json:"labels"`
	Value  float64           `json:"value"`
}

// Snapshot maps a counter name to its samples
type Snapshot map[string][]CounterSample

// Collector refreshes system gauges and persists counters between restarts
type Collector struct {
	metrics     *Metrics
	store       store.Store
	storageSize func() int64
	logger      *slog.Logger
	interval    time.Duration
	startTime   time.Time

	stopCh chan struct{}
	wg     sync.WaitGroup
	once   sync.Once
}

// CollectorConfig configures the collector
type CollectorConfig struct {
	Metrics *Metrics
	// Store keeps the counter snapshot, optional
	Store store.Store
	// StorageSize reports the backend size in bytes, optional
	StorageSize func() int64
	Interval    time.Duration
	Logger      *slog.Logger
}

// NewCollector creates a collector and restores persisted counters
func NewCollector(ctx context.Context, cfg CollectorConfig) (*Collector, error) {
	if cfg.Metrics == nil {
		return nil, fmt.Errorf("metrics are required")
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 10 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	c := &Collector{
		metrics:     cfg.Metrics,
		store:       cfg.Store,
		storageSize: cfg.StorageSize,
		logger:      cfg.Logger.With("component", "metrics"),
		interval:    cfg.Interval,
		startTime:   time.Now(),
		stopCh:      make(chan struct{}),
	}

	if c.store != nil {
		if err := c.restore(ctx); err != nil {
			return nil, err
		}
	}

	return c, nil
}

// Start begins the periodic refresh loop
func (c *Collector) Start() {
	c.update()

	c.wg.Add(1)
	go c.loop()
}

// Stop ends the refresh loop and saves the counters one last time
func (c *Collector) Stop() {
	c.once.Do(func() {
		close(c.stopCh)
		c.wg.Wait()
		c.persist()
	})
}

func (c *Collector) loop() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			c.update()
			c.persist()
		}
	}
}

func (c *Collector) update() {
	c.metrics.UptimeSeconds.Set(time.Since(c.startTime).Seconds())
	c.metrics.Goroutines.Set(float64(runtime.NumGoroutine()))
	if c.storageSize != nil {
		c.metrics.StorageUsedBytes.Set(float64(c.storageSize()))
	}
}

func (c *Collector) persist() {
	if c.store == nil {
		return
	}

	snap, err := c.metrics.Snapshot()
	if err != nil {
		c.logger.Error("failed to snapshot counters", "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := c.store.Save(ctx, store.Entry{Key: countersKey, Value: snap}); err != nil {
		c.logger.Error("failed to persist counters", "error", err)
	}
}

func (c *Collector) restore(ctx context.Context) error {
	snap, err := store.LoadOrSeed(ctx, c.store, countersKey, func() Snapshot {
		return Snapshot{}
	}, nil, c.logger)
	if err != nil {
		return fmt.Errorf("failed to load counters: %w", err)
	}

	c.metrics.Restore(snap)
	c.logger.Debug("counters restored", "metrics", len(snap))
	return nil
}

// Snapshot gathers the current value of every persisted counter
func (m *Metrics) Snapshot() (Snapshot, error) {
	families, err := m.registry.Gather()
	if err != nil {
		return nil, err
	}

	vecs := m.counterVecs()
	snap := make(Snapshot)
	for _, mf := range families {
		if _, ok := vecs[mf.GetName()]; !ok {
			continue
		}
		for _, metric := range mf.GetMetric() {
			labels := make(map[string]string, len(metric.GetLabel()))
			for _, lp := range metric.GetLabel() {
				labels[lp.GetName()] = lp.GetValue()
			}
			snap[mf.GetName()] = append(snap[mf.GetName()], CounterSample{
				Labels: labels,
				Value:  metric.GetCounter().GetValue(),
			})
		}
	}
	return snap, nil
}

// Restore adds snapshot values onto the counters. Unknown names and
// label sets that no longer match are skipped.
func (m *Metrics) Restore(snap Snapshot) {
	vecs := m.counterVecs()
	for name, samples := range snap {
		vec, ok := vecs[name]
		if !ok {
			continue
		}
		for _, s := range samples {
			if s.Value <= 0 {
				continue
			}
			counter, err := vec.GetMetricWith(s.Labels)
			if err != nil {
				continue
			}
			counter.Add(s.Value)
		}
	}
}
