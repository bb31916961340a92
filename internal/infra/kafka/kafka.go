// Package kafka carries transactions into the detector and findings out of it.
package kafka

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/IBM/sarama"
)

// Config holds Kafka connection and topic settings.
type Config struct {
	Brokers          []string `yaml:"brokers"`
	ClientID         string   `yaml:"client_id"`
	GroupID          string   `yaml:"group_id"`
	TransactionTopic string   `yaml:"transaction_topic"`
	FindingTopic     string   `yaml:"finding_topic"`
	Version          string   `yaml:"version"` // e.g. "2.8.0"
}

// Envelope wraps every published payload.
type Envelope struct {
	Type string          `json:"type"` // e.g. "finding"
	TS   int64           `json:"ts"`   // unix milli
	Data json.RawMessage `json:"data"`
}

// NewEnvelope marshals v into an envelope stamped with now.
func NewEnvelope(typ string, v any, now time.Time) (Envelope, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{Type: typ, TS: now.UnixMilli(), Data: data}, nil
}

func saramaConfig(cfg Config) (*sarama.Config, error) {
	sc := sarama.NewConfig()
	sc.Version = sarama.V2_1_0_0
	if cfg.Version != "" {
		v, err := sarama.ParseKafkaVersion(cfg.Version)
		if err != nil {
			return nil, fmt.Errorf("invalid kafka version: %w", err)
		}
		sc.Version = v
	}
	if cfg.ClientID != "" {
		sc.ClientID = cfg.ClientID
	}
	return sc, nil
}

func brokers(cfg Config) []string {
	out := make([]string, 0, len(cfg.Brokers))
	for _, b := range cfg.Brokers {
		for _, x := range strings.Split(b, ",") {
			if x = strings.TrimSpace(x); x != "" {
				out = append(out, x)
			}
		}
	}
	return out
}
