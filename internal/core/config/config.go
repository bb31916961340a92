package config

import (
	"time"

	"github.com/vietddude/fundwatch/internal/core/domain"
	"github.com/vietddude/fundwatch/internal/infra/kafka"
	redisclient "github.com/vietddude/fundwatch/internal/infra/redis"
	"github.com/vietddude/fundwatch/internal/infra/storage/postgres"
)

// Source kinds.
const (
	SourceRPC   = "rpc"
	SourceKafka = "kafka"
)

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Server   ServerConfig       `yaml:"server"`
	Logging  LoggingConfig      `yaml:"logging"`
	Detector DetectorConfig     `yaml:"detector"`
	Chains   []ChainConfig      `yaml:"chains"`
	Source   SourceConfig       `yaml:"source"`
	Kafka    kafka.Config       `yaml:"kafka"`
	Redis    redisclient.Config `yaml:"redis"`
	Database postgres.Config    `yaml:"database"`
	Telegram TelegramConfig     `yaml:"telegram"`
}

// ServerConfig holds HTTP and gRPC health server settings.
type ServerConfig struct {
	Port     int `yaml:"port"`
	GRPCPort int `yaml:"grpc_port"` // 0 = disabled
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// DetectorConfig holds the detection engine settings shared by every chain.
type DetectorConfig struct {
	AddressLimit          int                         `yaml:"address_limit"`
	MaxFindingsPerRequest int                         `yaml:"max_findings_per_request"`
	DeveloperAbbreviation string                      `yaml:"developer_abbreviation"`
	ProtocolName          string                      `yaml:"protocol_name"`
	ProtocolAddresses     map[domain.ChainID][]string `yaml:"protocol_addresses"`
	DefaultAnomalyScore   ScoreConfig                 `yaml:"default_anomaly_score"`
	StorageSlots          int                         `yaml:"storage_slots"`
	Analytics             AnalyticsConfig             `yaml:"analytics"`
}

// ScoreConfig holds the per-category default anomaly scores.
type ScoreConfig struct {
	Funding     float64 `yaml:"funding"`
	Interaction float64 `yaml:"interaction"`
	Deployment  float64 `yaml:"deployment"`
}

// ByCategory returns the scores keyed by alert category.
func (s ScoreConfig) ByCategory() map[domain.AlertCategory]float64 {
	return map[domain.AlertCategory]float64{
		domain.AlertCategoryFunding:     s.Funding,
		domain.AlertCategoryInteraction: s.Interaction,
		domain.AlertCategoryDeployment:  s.Deployment,
	}
}

// AnalyticsConfig controls the anomaly accounting window.
type AnalyticsConfig struct {
	Window           time.Duration `yaml:"window"`
	Bucket           time.Duration `yaml:"bucket"`
	MinSamples       int64         `yaml:"min_samples"`
	SnapshotInterval time.Duration `yaml:"snapshot_interval"`
}

// ChainConfig holds settings for a specific blockchain.
type ChainConfig struct {
	ChainID      domain.ChainID   `yaml:"id"`
	Name         string           `yaml:"name"`
	ScanInterval time.Duration    `yaml:"scan_interval"`
	StartBlock   uint64           `yaml:"start_block"` // 0 = head at start
	Providers    []ProviderConfig `yaml:"providers"`
	// TraceMethod defaults to trace_block. DisableTraces falls back to
	// top-level transfers and receipts for nodes without tracing.
	TraceMethod   string `yaml:"trace_method"`
	DisableTraces bool   `yaml:"disable_traces"`
}

// ProviderConfig holds settings for an RPC provider.
type ProviderConfig struct {
	Name      string        `yaml:"name"`
	URL       string        `yaml:"url"`
	RateLimit float64       `yaml:"rate_limit"` // requests per second, 0 = unlimited
	Timeout   time.Duration `yaml:"timeout"`
}

// SourceConfig selects where transactions come from.
type SourceConfig struct {
	Kind string `yaml:"kind"` // rpc, kafka
}

// TelegramConfig enables the Telegram finding sink.
type TelegramConfig struct {
	Token  string `yaml:"token"`
	ChatID int64  `yaml:"chat_id"`
}

// Enabled reports whether the Telegram sink should be started.
func (t TelegramConfig) Enabled() bool {
	return t.Token != "" && t.ChatID != 0
}
