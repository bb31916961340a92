package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vietddude/fundwatch/internal/core/domain"
)

func TestProducer_EmitWrapsFindings(t *testing.T) {
	sp := mocks.NewSyncProducer(t, nil)
	var got []byte
	sp.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
		got = val
		return nil
	})
	defer sp.Close()

	p := newProducer("findings", sp)
	p.now = func() time.Time { return time.UnixMilli(1700000000123) }

	f := domain.Finding{ID: "f-1", AlertID: "NM-AZTEC-PROTOCOL-FUNDING", TxHash: "0xabc", ChainID: domain.ChainIDEthereum}
	require.NoError(t, p.Emit(context.Background(), []domain.Finding{f}))

	var env Envelope
	require.NoError(t, json.Unmarshal(got, &env))
	assert.Equal(t, "finding", env.Type)
	assert.Equal(t, int64(1700000000123), env.TS)

	var decoded domain.Finding
	require.NoError(t, json.Unmarshal(env.Data, &decoded))
	assert.Equal(t, "f-1", decoded.ID)
	assert.Equal(t, "0xabc", decoded.TxHash)
}

func TestProducer_EmitError(t *testing.T) {
	sp := mocks.NewSyncProducer(t, nil)
	sp.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)
	defer sp.Close()

	err := newProducer("findings", sp).Emit(context.Background(), []domain.Finding{{ID: "f-1"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "kafka emit failed")
}

func TestProducer_EmitEmpty(t *testing.T) {
	sp := mocks.NewSyncProducer(t, nil)
	defer sp.Close()
	assert.NoError(t, newProducer("findings", sp).Emit(context.Background(), nil))
}

func TestClaimHandler_Process(t *testing.T) {
	var handled []string
	h := &claimHandler{
		topic: "txs",
		handle: func(ctx context.Context, tx *domain.Transaction) error {
			if tx.Hash == "0xbad" {
				return errors.New("engine failed")
			}
			handled = append(handled, tx.Hash)
			return nil
		},
		logger: discardLogger(),
	}

	tests := []struct {
		name     string
		value    string
		wantMark bool
		wantErr  bool
	}{
		{"valid", `{"hash":"0x01","from":"0xaa","to":"0xbb","traces":[{"type":"call","from":"0xbb","to":"0xcc","value":"0x10"}]}`, true, false},
		{"not json", `{`, true, false},
		{"bad trace value", `{"hash":"0x02","traces":[{"type":"call","value":"0xzz"}]}`, true, false},
		{"handler error", `{"hash":"0xbad"}`, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mark, err := h.process(context.Background(), &sarama.ConsumerMessage{Value: []byte(tt.value)})
			assert.Equal(t, tt.wantMark, mark)
			assert.Equal(t, tt.wantErr, err != nil)
		})
	}
	assert.Equal(t, []string{"0x01"}, handled)
}

func TestBrokers(t *testing.T) {
	got := brokers(Config{Brokers: []string{"a:9092, b:9092", "", " c:9092 "}})
	assert.Equal(t, []string{"a:9092", "b:9092", "c:9092"}, got)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
