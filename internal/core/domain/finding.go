package domain

import "time"

// AlertCategory identifies which detection stage produced a finding.
type AlertCategory string

const (
	AlertCategoryFunding     AlertCategory = "FUNDING"
	AlertCategoryInteraction AlertCategory = "INTERACTION"
	AlertCategoryDeployment  AlertCategory = "DEPLOYMENT"
)

// AlertCategories lists every category in stage order.
var AlertCategories = []AlertCategory{
	AlertCategoryFunding,
	AlertCategoryInteraction,
	AlertCategoryDeployment,
}

type Severity string

const (
	SeverityInfo     Severity = "Info"
	SeverityLow      Severity = "Low"
	SeverityMedium   Severity = "Medium"
	SeverityHigh     Severity = "High"
	SeverityCritical Severity = "Critical"
)

type FindingType string

const (
	FindingTypeInfo       FindingType = "Info"
	FindingTypeSuspicious FindingType = "Suspicious"
	FindingTypeExploit    FindingType = "Exploit"
)

type EntityType string

const (
	EntityTypeAddress     EntityType = "Address"
	EntityTypeTransaction EntityType = "Transaction"
)

// Label attaches an attribution to an entity mentioned by a finding.
type Label struct {
	EntityType EntityType `json:"entity_type"`
	Entity     string     `json:"entity"`
	Label      string     `json:"label"`
	Confidence float64    `json:"confidence"`
	Remove     bool       `json:"remove"`
}

// Finding is an emitted detection record. Findings are never mutated after construction.
type Finding struct {
	ID           string            `json:"id"`
	AlertID      string            `json:"alert_id"`
	Category     AlertCategory     `json:"category"`
	Name         string            `json:"name"`
	Description  string            `json:"description"`
	Severity     Severity          `json:"severity"`
	Type         FindingType       `json:"type"`
	Addresses    []Address         `json:"addresses"`
	Contained    []Address         `json:"contained,omitempty"`
	Labels       []Label           `json:"labels,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	AnomalyScore float64           `json:"anomaly_score"`
	TxHash       string            `json:"tx_hash"`
	ChainID      ChainID           `json:"chain_id"`
	BlockNumber  uint64            `json:"block_number"`
	CreatedAt    time.Time         `json:"created_at"`
}
