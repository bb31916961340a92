package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/IBM/sarama"

	"github.com/vietddude/fundwatch/internal/core/domain"
)

const envelopeTypeFinding = "finding"

// Producer publishes findings to a topic, one envelope per finding.
type Producer struct {
	topic string
	sp    sarama.SyncProducer
	now   func() time.Time
}

// NewProducer connects a synchronous producer with acks from all replicas.
func NewProducer(cfg Config) (*Producer, error) {
	if cfg.FindingTopic == "" {
		return nil, errors.New("finding topic empty")
	}
	bs := brokers(cfg)
	if len(bs) == 0 {
		return nil, errors.New("no brokers")
	}

	sc, err := saramaConfig(cfg)
	if err != nil {
		return nil, err
	}
	sc.Producer.RequiredAcks = sarama.WaitForAll
	sc.Producer.Retry.Max = 10
	sc.Producer.Retry.Backoff = 200 * time.Millisecond
	// SyncProducer must have Return.Successes=true
	sc.Producer.Return.Successes = true
	sc.Producer.Return.Errors = true

	sp, err := sarama.NewSyncProducer(bs, sc)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}
	return newProducer(cfg.FindingTopic, sp), nil
}

func newProducer(topic string, sp sarama.SyncProducer) *Producer {
	return &Producer{topic: topic, sp: sp, now: time.Now}
}

// Name identifies the sink in logs and metrics.
func (p *Producer) Name() string { return "kafka" }

// Emit sends findings keyed by chain and transaction so a transaction's
// findings land on one partition in order.
func (p *Producer) Emit(ctx context.Context, findings []domain.Finding) error {
	if len(findings) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	msgs := make([]*sarama.ProducerMessage, 0, len(findings))
	for i := range findings {
		env, err := NewEnvelope(envelopeTypeFinding, findings[i], p.now())
		if err != nil {
			return fmt.Errorf("marshal finding %s: %w", findings[i].ID, err)
		}
		b, err := json.Marshal(env)
		if err != nil {
			return err
		}
		msgs = append(msgs, &sarama.ProducerMessage{
			Topic: p.topic,
			Key:   sarama.StringEncoder(string(findings[i].ChainID) + ":" + findings[i].TxHash),
			Value: sarama.ByteEncoder(b),
		})
	}

	if err := p.sp.SendMessages(msgs); err != nil {
		return fmt.Errorf("kafka emit failed: %w", err)
	}
	return nil
}

func (p *Producer) Close() error {
	if p.sp != nil {
		return p.sp.Close()
	}
	return nil
}
