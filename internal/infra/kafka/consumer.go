package kafka

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/IBM/sarama"

	"github.com/vietddude/fundwatch/internal/core/domain"
	"github.com/vietddude/fundwatch/internal/indexing/metrics"
)

// TransactionHandler processes one decoded transaction.
type TransactionHandler func(ctx context.Context, tx *domain.Transaction) error

// Consumer reads JSON transactions from a consumer group.
type Consumer struct {
	group  sarama.ConsumerGroup
	topic  string
	logger *slog.Logger
}

// NewConsumer joins the configured consumer group.
func NewConsumer(cfg Config, logger *slog.Logger) (*Consumer, error) {
	if cfg.TransactionTopic == "" || cfg.GroupID == "" {
		return nil, errors.New("group/topic required")
	}
	bs := brokers(cfg)
	if len(bs) == 0 {
		return nil, errors.New("no brokers")
	}

	sc, err := saramaConfig(cfg)
	if err != nil {
		return nil, err
	}
	sc.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRange()}
	sc.Consumer.Offsets.Initial = sarama.OffsetOldest
	sc.Consumer.Return.Errors = true

	cg, err := sarama.NewConsumerGroup(bs, cfg.GroupID, sc)
	if err != nil {
		return nil, fmt.Errorf("failed to join consumer group: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Consumer{group: cg, topic: cfg.TransactionTopic, logger: logger.With("component", "kafka-consumer")}, nil
}

// Run consumes until ctx is cancelled. A session that fails is restarted, so
// the unmarked message that failed is delivered again.
func (c *Consumer) Run(ctx context.Context, handle TransactionHandler) error {
	h := &claimHandler{topic: c.topic, handle: handle, logger: c.logger}

	// consume loop (sarama requires re-run on rebalance)
	for {
		if err := c.group.Consume(ctx, []string{c.topic}, h); err != nil {
			c.logger.Warn("Consume session ended", "error", err)
			select {
			case <-ctx.Done():
			case <-time.After(300 * time.Millisecond):
			}
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

func (c *Consumer) Close() error { return c.group.Close() }

type claimHandler struct {
	topic  string
	handle TransactionHandler
	logger *slog.Logger
}

func (h *claimHandler) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (h *claimHandler) Cleanup(sarama.ConsumerGroupSession) error { return nil }

func (h *claimHandler) ConsumeClaim(s sarama.ConsumerGroupSession, c sarama.ConsumerGroupClaim) error {
	for msg := range c.Messages() {
		mark, err := h.process(s.Context(), msg)
		if mark {
			s.MarkMessage(msg, "")
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// process reports whether msg should be marked consumed. Malformed messages are
// marked and skipped; handler errors leave the message unmarked.
func (h *claimHandler) process(ctx context.Context, msg *sarama.ConsumerMessage) (bool, error) {
	tx, err := domain.DecodeTransaction(msg.Value)
	if err != nil {
		metrics.MalformedMessages.WithLabelValues(h.topic).Inc()
		h.logger.Warn("Skipping malformed transaction",
			"partition", msg.Partition, "offset", msg.Offset, "error", err)
		return true, nil
	}
	if err := h.handle(ctx, tx); err != nil {
		return false, fmt.Errorf("handle tx %s at offset %d: %w", tx.Hash, msg.Offset, err)
	}
	return true, nil
}
