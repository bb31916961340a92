package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v2"
)

// envOverrides are secrets that may be supplied through the environment instead of the file.
type envOverrides struct {
	DatabaseURL   string `env:"FUNDWATCH_DATABASE_URL"`
	RedisURL      string `env:"FUNDWATCH_REDIS_URL"`
	TelegramToken string `env:"FUNDWATCH_TELEGRAM_TOKEN"`
	RPCURL        string `env:"FUNDWATCH_RPC_URL"`
}

// Load reads configuration from a YAML file.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg AppConfig
	// Expand environment variables in the YAML content
	expandedData := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := applyEnv(&cfg); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}
	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyEnv(cfg *AppConfig) error {
	var o envOverrides
	if err := env.Parse(&o); err != nil {
		return err
	}

	if o.DatabaseURL != "" {
		cfg.Database.URL = o.DatabaseURL
	}
	if o.RedisURL != "" {
		cfg.Redis.URL = o.RedisURL
	}
	if o.TelegramToken != "" {
		cfg.Telegram.Token = o.TelegramToken
	}
	if o.RPCURL != "" && len(cfg.Chains) > 0 {
		// the first provider of the first chain is the primary endpoint
		first := &cfg.Chains[0]
		if len(first.Providers) == 0 {
			first.Providers = append(first.Providers, ProviderConfig{Name: "env"})
		}
		first.Providers[0].URL = o.RPCURL
	}
	return nil
}

func applyDefaults(cfg *AppConfig) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Source.Kind == "" {
		cfg.Source.Kind = SourceRPC
	}

	d := &cfg.Detector
	if d.MaxFindingsPerRequest == 0 {
		d.MaxFindingsPerRequest = 50
	}
	if d.ProtocolName == "" {
		d.ProtocolName = "Aztec Protocol"
	}
	if d.StorageSlots == 0 {
		d.StorageSlots = 20
	}
	if d.Analytics.Window == 0 {
		d.Analytics.Window = 24 * time.Hour
	}
	if d.Analytics.Bucket == 0 {
		d.Analytics.Bucket = time.Hour
	}
	if d.Analytics.MinSamples == 0 {
		d.Analytics.MinSamples = 100
	}
	if d.Analytics.SnapshotInterval == 0 {
		d.Analytics.SnapshotInterval = time.Minute
	}

	for i := range cfg.Chains {
		if cfg.Chains[i].ScanInterval == 0 {
			cfg.Chains[i].ScanInterval = 10 * time.Second
		}
		for j := range cfg.Chains[i].Providers {
			if cfg.Chains[i].Providers[j].Timeout == 0 {
				cfg.Chains[i].Providers[j].Timeout = 30 * time.Second
			}
		}
	}
}

// Validate checks the settings that cannot be defaulted.
func (c *AppConfig) Validate() error {
	var errs []error

	d := c.Detector
	if d.AddressLimit < 1 {
		errs = append(errs, fmt.Errorf("detector.address_limit must be >= 1, got %d", d.AddressLimit))
	}
	if d.MaxFindingsPerRequest < 1 {
		errs = append(errs, fmt.Errorf("detector.max_findings_per_request must be >= 1, got %d", d.MaxFindingsPerRequest))
	}
	if d.DeveloperAbbreviation == "" {
		errs = append(errs, errors.New("detector.developer_abbreviation is required"))
	}
	for cat, s := range d.DefaultAnomalyScore.ByCategory() {
		if s < 0 || s > 1 {
			errs = append(errs, fmt.Errorf("detector.default_anomaly_score.%s must be within [0,1], got %v", cat, s))
		}
	}

	switch c.Source.Kind {
	case SourceRPC, SourceKafka:
	default:
		errs = append(errs, fmt.Errorf("source.kind must be %q or %q, got %q", SourceRPC, SourceKafka, c.Source.Kind))
	}
	if c.Source.Kind == SourceKafka {
		if len(c.Kafka.Brokers) == 0 || c.Kafka.TransactionTopic == "" {
			errs = append(errs, errors.New("kafka.brokers and kafka.transaction_topic are required for the kafka source"))
		}
		if c.Kafka.GroupID == "" {
			errs = append(errs, errors.New("kafka.group_id is required for the kafka source"))
		}
	}

	if len(c.Chains) == 0 {
		errs = append(errs, errors.New("at least one chain is required"))
	}
	for _, ch := range c.Chains {
		if ch.ChainID == "" {
			errs = append(errs, fmt.Errorf("chain %q: id is required", ch.Name))
			continue
		}
		if len(d.ProtocolAddresses[ch.ChainID]) == 0 {
			errs = append(errs, fmt.Errorf("chain %s: no detector.protocol_addresses configured", ch.ChainID))
		}
		if len(ch.Providers) == 0 {
			errs = append(errs, fmt.Errorf("chain %s: at least one provider is required", ch.ChainID))
		}
		for _, p := range ch.Providers {
			if p.URL == "" {
				errs = append(errs, fmt.Errorf("chain %s: provider %q has no url", ch.ChainID, p.Name))
			}
		}
	}

	return errors.Join(errs...)
}
