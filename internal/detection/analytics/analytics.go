// Package analytics tallies per-category trigger counts over a sliding time window
// and turns them into anomaly scores.
package analytics

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/vietddude/fundwatch/internal/core/domain"
)

// Config holds the accounting window settings.
type Config struct {
	Window     time.Duration
	Bucket     time.Duration
	MinSamples int64
	// Defaults is the score reported for a category until MinSamples triggers are seen.
	Defaults map[domain.AlertCategory]float64
}

// Counts is the number of bot triggers and raised alerts in one bucket.
type Counts struct {
	Bot   int64 `json:"bot"`
	Alert int64 `json:"alert"`
}

// Snapshot is the serializable state of a Window.
type Snapshot struct {
	Now     int64                                      `json:"now"`
	Buckets map[int64]map[domain.AlertCategory]*Counts `json:"buckets"`
}

// SnapshotStore persists snapshots between restarts.
type SnapshotStore interface {
	SaveAnalytics(ctx context.Context, chainID domain.ChainID, data []byte) error
	LoadAnalytics(ctx context.Context, chainID domain.ChainID) ([]byte, bool, error)
}

// Window implements anomaly accounting over hourly buckets.
type Window struct {
	cfg     Config
	mu      sync.Mutex
	now     int64
	buckets map[int64]map[domain.AlertCategory]*Counts
}

// New creates an empty accounting window.
func New(cfg Config) *Window {
	if cfg.Window <= 0 {
		cfg.Window = 24 * time.Hour
	}
	if cfg.Bucket <= 0 {
		cfg.Bucket = time.Hour
	}
	if cfg.Bucket > cfg.Window {
		cfg.Bucket = cfg.Window
	}
	if cfg.MinSamples <= 0 {
		cfg.MinSamples = 100
	}
	return &Window{
		cfg:     cfg,
		buckets: make(map[int64]map[domain.AlertCategory]*Counts),
	}
}

// Sync moves the window forward to ts and drops expired buckets.
// Timestamps older than the current position do not move the window back.
func (w *Window) Sync(ts int64) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if ts > w.now {
		w.now = ts
	}
	cutoff := w.now - int64(w.cfg.Window/time.Second)
	size := w.bucketSeconds()
	for start := range w.buckets {
		if start+size <= cutoff {
			delete(w.buckets, start)
		}
	}
}

// IncrementBotTriggers records that a category's trigger condition was evaluated as met.
func (w *Window) IncrementBotTriggers(ts int64, category domain.AlertCategory) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.counts(ts, category).Bot++
}

// IncrementAlertTriggers records that a category raised an alert.
func (w *Window) IncrementAlertTriggers(ts int64, category domain.AlertCategory) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.counts(ts, category).Alert++
}

// AnomalyScore returns alerts/triggers over the window, or the default score
// while the sample is smaller than MinSamples. The result is within [0,1].
func (w *Window) AnomalyScore(category domain.AlertCategory) float64 {
	bot, alert := w.Totals(category)
	if bot < w.cfg.MinSamples {
		return w.cfg.Defaults[category]
	}
	score := float64(alert) / float64(bot)
	if score > 1 {
		score = 1
	}
	return score
}

// Totals sums the window's counters for a category.
func (w *Window) Totals(category domain.AlertCategory) (bot, alert int64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, b := range w.buckets {
		if c, ok := b[category]; ok {
			bot += c.Bot
			alert += c.Alert
		}
	}
	return bot, alert
}

// Snapshot returns a deep copy of the window state.
func (w *Window) Snapshot() Snapshot {
	w.mu.Lock()
	defer w.mu.Unlock()

	s := Snapshot{Now: w.now, Buckets: make(map[int64]map[domain.AlertCategory]*Counts, len(w.buckets))}
	for start, b := range w.buckets {
		cp := make(map[domain.AlertCategory]*Counts, len(b))
		for cat, c := range b {
			v := *c
			cp[cat] = &v
		}
		s.Buckets[start] = cp
	}
	return s
}

// Restore replaces the window state with a snapshot.
func (w *Window) Restore(s Snapshot) {
	w.mu.Lock()
	w.now = s.Now
	w.buckets = make(map[int64]map[domain.AlertCategory]*Counts, len(s.Buckets))
	for start, b := range s.Buckets {
		cp := make(map[domain.AlertCategory]*Counts, len(b))
		for cat, c := range b {
			if c == nil {
				continue
			}
			v := *c
			cp[cat] = &v
		}
		w.buckets[start] = cp
	}
	now := w.now
	w.mu.Unlock()

	w.Sync(now)
}

// Persist writes the current snapshot to store.
func (w *Window) Persist(ctx context.Context, store SnapshotStore, chainID domain.ChainID) error {
	data, err := json.Marshal(w.Snapshot())
	if err != nil {
		return fmt.Errorf("marshal analytics snapshot: %w", err)
	}
	return store.SaveAnalytics(ctx, chainID, data)
}

// Load restores the window from store. A missing snapshot leaves the window empty.
func (w *Window) Load(ctx context.Context, store SnapshotStore, chainID domain.ChainID) error {
	data, found, err := store.LoadAnalytics(ctx, chainID)
	if err != nil {
		return fmt.Errorf("load analytics snapshot: %w", err)
	}
	if !found {
		return nil
	}
	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("decode analytics snapshot: %w", err)
	}
	w.Restore(s)
	return nil
}

func (w *Window) bucketSeconds() int64 {
	return int64(w.cfg.Bucket / time.Second)
}

// counts must be called with mu held.
func (w *Window) counts(ts int64, category domain.AlertCategory) *Counts {
	size := w.bucketSeconds()
	start := ts - ts%size
	b, ok := w.buckets[start]
	if !ok {
		b = make(map[domain.AlertCategory]*Counts)
		w.buckets[start] = b
	}
	c, ok := b[category]
	if !ok {
		c = &Counts{}
		b[category] = c
	}
	return c
}
