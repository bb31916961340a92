// Package evm reads blocks, traces, code and storage from EVM JSON-RPC nodes.
package evm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"golang.org/x/sync/errgroup"

	"github.com/vietddude/fundwatch/internal/core/domain"
	"github.com/vietddude/fundwatch/internal/infra/rpc/provider"
)

// Caller is the subset of the rpc client used by the adapter.
type Caller interface {
	Call(ctx context.Context, method string, params ...any) (json.RawMessage, error)
	BatchCall(ctx context.Context, requests []provider.BatchRequest) ([]provider.BatchResponse, error)
}

// Options tunes how blocks are assembled.
type Options struct {
	// TraceMethod fetches internal traces; "trace_block" by default.
	// Set DisableTraces for nodes without the trace namespace.
	TraceMethod   string
	DisableTraces bool
	// ReceiptBatchSize bounds receipt batch requests when traces are disabled.
	ReceiptBatchSize int
}

type EVMAdapter struct {
	chainID domain.ChainID
	client  Caller
	opts    Options
	log     *slog.Logger
}

func NewEVMAdapter(chainID domain.ChainID, client Caller, opts Options, log *slog.Logger) *EVMAdapter {
	if opts.TraceMethod == "" {
		opts.TraceMethod = "trace_block"
	}
	if opts.ReceiptBatchSize <= 0 {
		opts.ReceiptBatchSize = 10
	}
	if log == nil {
		log = slog.Default()
	}
	return &EVMAdapter{chainID: chainID, client: client, opts: opts, log: log}
}

func (a *EVMAdapter) call(ctx context.Context, out any, method string, params ...any) error {
	raw, err := a.client.Call(ctx, method, params...)
	if err != nil {
		return fmt.Errorf("%s failed: %w", method, err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%s: decode result: %w", method, err)
	}
	return nil
}

// ChainID asks the node for its chain id.
func (a *EVMAdapter) ChainID(ctx context.Context) (domain.ChainID, error) {
	var id hexutil.Big
	if err := a.call(ctx, &id, "eth_chainId"); err != nil {
		return "", err
	}
	return domain.ChainIDFromBig(id.ToInt()), nil
}

func (a *EVMAdapter) GetLatestBlock(ctx context.Context) (uint64, error) {
	var n hexutil.Uint64
	if err := a.call(ctx, &n, "eth_blockNumber"); err != nil {
		return 0, err
	}
	return uint64(n), nil
}

// GetCode returns the deployed bytecode at address, empty for accounts.
func (a *EVMAdapter) GetCode(ctx context.Context, address domain.Address) ([]byte, error) {
	var code hexutil.Bytes
	if err := a.call(ctx, &code, "eth_getCode", address.String(), "latest"); err != nil {
		return nil, err
	}
	return code, nil
}

// IsContract reports whether address has code.
func (a *EVMAdapter) IsContract(ctx context.Context, address domain.Address) (bool, error) {
	code, err := a.GetCode(ctx, address)
	if err != nil {
		return false, err
	}
	return len(code) > 0, nil
}

// GetStorageAt reads one 32-byte storage word.
func (a *EVMAdapter) GetStorageAt(ctx context.Context, address domain.Address, slot uint64) ([]byte, error) {
	var word hexutil.Bytes
	if err := a.call(ctx, &word, "eth_getStorageAt", address.String(), hexutil.EncodeUint64(slot), "latest"); err != nil {
		return nil, err
	}
	return word, nil
}

type rpcTx struct {
	Hash  string         `json:"hash"`
	From  domain.Address `json:"from"`
	To    domain.Address `json:"to"`
	Value *hexutil.Big   `json:"value"`
}

type rpcBlock struct {
	Number       hexutil.Uint64 `json:"number"`
	Hash         string         `json:"hash"`
	ParentHash   string         `json:"parentHash"`
	Timestamp    hexutil.Uint64 `json:"timestamp"`
	Transactions []rpcTx        `json:"transactions"`
}

type traceAction struct {
	CallType      string         `json:"callType"`
	From          domain.Address `json:"from"`
	To            domain.Address `json:"to"`
	Value         *hexutil.Big   `json:"value"`
	Address       domain.Address `json:"address"`
	RefundAddress domain.Address `json:"refundAddress"`
	Balance       *hexutil.Big   `json:"balance"`
}

type traceResult struct {
	Address domain.Address `json:"address"`
}

type rpcTrace struct {
	Type                string       `json:"type"`
	Action              traceAction  `json:"action"`
	Result              *traceResult `json:"result"`
	Error               string       `json:"error"`
	TransactionHash     string       `json:"transactionHash"`
	TransactionPosition *int         `json:"transactionPosition"`
}

// GetBlock fetches a block with its transactions and their traces in
// execution order. It returns nil when the block does not exist yet.
func (a *EVMAdapter) GetBlock(ctx context.Context, number uint64) (*domain.Block, error) {
	var raw *rpcBlock
	if err := a.call(ctx, &raw, "eth_getBlockByNumber", hexutil.EncodeUint64(number), true); err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, nil
	}

	block := &domain.Block{
		ChainID:      a.chainID,
		Number:       uint64(raw.Number),
		Hash:         raw.Hash,
		ParentHash:   raw.ParentHash,
		Timestamp:    uint64(raw.Timestamp),
		Transactions: make([]*domain.Transaction, len(raw.Transactions)),
	}
	for i, rt := range raw.Transactions {
		block.Transactions[i] = &domain.Transaction{
			ChainID:     a.chainID,
			Hash:        rt.Hash,
			From:        rt.From,
			To:          rt.To,
			Timestamp:   int64(raw.Timestamp),
			BlockNumber: uint64(raw.Number),
		}
	}

	if a.opts.DisableTraces {
		if err := a.traceFromReceipts(ctx, block, raw.Transactions); err != nil {
			return nil, err
		}
		return block, nil
	}
	if err := a.attachTraces(ctx, block, number); err != nil {
		return nil, err
	}
	return block, nil
}

func (a *EVMAdapter) attachTraces(ctx context.Context, block *domain.Block, number uint64) error {
	var traces []rpcTrace
	if err := a.call(ctx, &traces, a.opts.TraceMethod, hexutil.EncodeUint64(number)); err != nil {
		return err
	}

	byHash := make(map[string]*domain.Transaction, len(block.Transactions))
	for _, tx := range block.Transactions {
		byHash[tx.Hash] = tx
	}
	for _, rt := range traces {
		// block rewards belong to no transaction
		if rt.TransactionHash == "" {
			continue
		}
		tx, ok := byHash[rt.TransactionHash]
		if !ok {
			a.log.Warn("trace for unknown transaction", "block", number, "tx", rt.TransactionHash)
			continue
		}
		tx.Traces = append(tx.Traces, convertTrace(rt))
	}
	return nil
}

func convertTrace(rt rpcTrace) domain.Trace {
	switch rt.Type {
	case "create":
		tr := domain.Trace{Type: domain.TraceTypeCreate, From: rt.Action.From, Value: bigOf(rt.Action.Value)}
		// failed creations deploy nothing
		if rt.Error == "" && rt.Result != nil {
			tr.CreatedAddress = rt.Result.Address
		}
		return tr
	case "suicide":
		return domain.Trace{
			Type:  domain.TraceTypeSuicide,
			From:  rt.Action.Address,
			To:    rt.Action.RefundAddress,
			Value: bigOf(rt.Action.Balance),
		}
	default:
		return domain.Trace{Type: domain.TraceTypeCall, From: rt.Action.From, To: rt.Action.To, Value: bigOf(rt.Action.Value)}
	}
}

type rpcReceipt struct {
	ContractAddress domain.Address `json:"contractAddress"`
	Status          hexutil.Uint64 `json:"status"`
}

// traceFromReceipts synthesizes one top-level trace per transaction for nodes
// without tracing support. Creation addresses come from receipts.
func (a *EVMAdapter) traceFromReceipts(ctx context.Context, block *domain.Block, raw []rpcTx) error {
	var creations []int
	for i, rt := range raw {
		tx := block.Transactions[i]
		if rt.To.IsZero() {
			tx.Traces = []domain.Trace{{Type: domain.TraceTypeCreate, From: rt.From, Value: bigOf(rt.Value)}}
			creations = append(creations, i)
			continue
		}
		tx.Traces = []domain.Trace{{Type: domain.TraceTypeCall, From: rt.From, To: rt.To, Value: bigOf(rt.Value)}}
	}
	if len(creations) == 0 {
		return nil
	}

	size := a.opts.ReceiptBatchSize
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(3)
	for start := 0; start < len(creations); start += size {
		chunk := creations[start:min(start+size, len(creations))]
		g.Go(func() error {
			reqs := make([]provider.BatchRequest, len(chunk))
			for j, idx := range chunk {
				reqs[j] = provider.BatchRequest{Method: "eth_getTransactionReceipt", Params: []any{raw[idx].Hash}}
			}
			resps, err := a.client.BatchCall(gctx, reqs)
			if err != nil {
				return fmt.Errorf("receipt batch: %w", err)
			}
			for j, resp := range resps {
				if j >= len(chunk) {
					break
				}
				if resp.Error != nil {
					return fmt.Errorf("receipt %s: %w", raw[chunk[j]].Hash, resp.Error)
				}
				var rc *rpcReceipt
				if err := json.Unmarshal(resp.Result, &rc); err != nil {
					return fmt.Errorf("receipt %s: %w", raw[chunk[j]].Hash, err)
				}
				if rc == nil {
					return fmt.Errorf("receipt %s: %w", raw[chunk[j]].Hash, errReceiptMissing)
				}
				// each index is written by exactly one goroutine
				if rc.Status == 1 {
					block.Transactions[chunk[j]].Traces[0].CreatedAddress = rc.ContractAddress
				}
			}
			return nil
		})
	}
	return g.Wait()
}

var errReceiptMissing = errors.New("receipt not available")

func bigOf(v *hexutil.Big) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(v.ToInt())
}
