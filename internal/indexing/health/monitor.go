package health

import (
	"context"
	"sync"
	"time"

	"github.com/vietddude/fundwatch/internal/indexing/indexer"
	"github.com/vietddude/fundwatch/internal/infra/rpc/provider"
)

// StatusSource reports the state of one chain's indexer.
type StatusSource interface {
	GetStatus() indexer.Status
}

// ProviderSource reports the health of a chain's RPC providers.
type ProviderSource interface {
	ProviderHealth() map[string]provider.HealthStatus
}

// Thresholds decide when a chain is degraded or critical.
type Thresholds struct {
	DegradedLag    uint64
	CriticalLag    uint64
	CriticalErrors int
}

var DefaultThresholds = Thresholds{DegradedLag: 10, CriticalLag: 100, CriticalErrors: 5}

type chainSources struct {
	status    StatusSource
	providers ProviderSource
}

// Monitor aggregates health status from the running chain indexers.
type Monitor struct {
	thresholds Thresholds
	cacheTTL   time.Duration

	mu         sync.RWMutex
	chains     map[string]chainSources
	lastCheck  time.Time
	lastReport map[string]ChainHealth
}

// NewMonitor creates a new health monitor.
func NewMonitor(thresholds Thresholds) *Monitor {
	return &Monitor{
		thresholds: thresholds,
		cacheTTL:   2 * time.Second,
		chains:     make(map[string]chainSources),
	}
}

// Register adds a chain. providers may be nil when the chain is fed by Kafka.
func (m *Monitor) Register(chainID string, status StatusSource, providers ProviderSource) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.chains[chainID] = chainSources{status: status, providers: providers}
	m.lastReport = nil
}

// CheckHealth performs a health check for all chains.
func (m *Monitor) CheckHealth(ctx context.Context) map[string]ChainHealth {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.lastReport != nil && time.Since(m.lastCheck) < m.cacheTTL {
		return m.lastReport
	}

	report := make(map[string]ChainHealth, len(m.chains))
	for chainID, src := range m.chains {
		report[chainID] = m.evaluate(chainID, src)
	}

	m.lastCheck = time.Now()
	m.lastReport = report
	return report
}

func (m *Monitor) evaluate(chainID string, src chainSources) ChainHealth {
	st := src.status.GetStatus()
	health := ChainHealth{
		ChainID:           chainID,
		Status:            StatusHealthy,
		Running:           st.Running,
		CurrentBlock:      st.CurrentBlock,
		ConsecutiveErrors: st.ConsecutiveErrors,
		PendingFindings:   st.PendingFindings,
		TrackedAddresses:  st.TrackedAddresses,
	}
	if st.Lag > 0 {
		health.BlockLag = uint64(st.Lag)
	}

	if src.providers != nil {
		var errSum float64
		for _, h := range src.providers.ProviderHealth() {
			health.ProvidersTotal++
			if h.Available && h.ThrottledFor == 0 {
				health.ProvidersUp++
			}
			errSum += h.ErrorRate
		}
		if health.ProvidersTotal > 0 {
			health.RPCErrorRate = errSum / float64(health.ProvidersTotal)
		}
	}

	t := m.thresholds
	switch {
	case health.BlockLag > t.CriticalLag,
		health.ConsecutiveErrors >= t.CriticalErrors,
		health.ProvidersTotal > 0 && health.ProvidersUp == 0:
		health.Status = StatusCritical
	case !health.Running,
		health.BlockLag > t.DegradedLag,
		health.ConsecutiveErrors > 0,
		health.ProvidersUp < health.ProvidersTotal:
		health.Status = StatusDegraded
	}
	return health
}
