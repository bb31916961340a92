// Package health provides system health monitoring and status reporting.
package health

// SystemStatus represents the overall health state of the system or a component.
type SystemStatus string

const (
	StatusHealthy  SystemStatus = "healthy"
	StatusDegraded SystemStatus = "degraded"
	StatusCritical SystemStatus = "critical"
)

// ChainHealth contains health metrics for a specific blockchain chain.
type ChainHealth struct {
	ChainID           string       `json:"chain_id"`
	Status            SystemStatus `json:"status"`
	Running           bool         `json:"running"`
	CurrentBlock      uint64       `json:"current_block"`
	BlockLag          uint64       `json:"block_lag"`
	ConsecutiveErrors int          `json:"consecutive_errors"`
	PendingFindings   int          `json:"pending_findings"`
	TrackedAddresses  int          `json:"tracked_addresses"`
	RPCErrorRate      float64      `json:"rpc_error_rate"`
	ProvidersUp       int          `json:"providers_up"`
	ProvidersTotal    int          `json:"providers_total"`
}

// HealthReport contains the full system health report.
type HealthReport struct {
	SystemStatus SystemStatus           `json:"system_status"`
	Chains       map[string]ChainHealth `json:"chains"`
}

// Aggregate returns the worst status across chains.
func Aggregate(chains map[string]ChainHealth) SystemStatus {
	status := StatusHealthy
	for _, chain := range chains {
		if chain.Status == StatusCritical {
			return StatusCritical
		}
		if chain.Status == StatusDegraded {
			status = StatusDegraded
		}
	}
	return status
}
