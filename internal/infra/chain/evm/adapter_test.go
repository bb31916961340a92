package evm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vietddude/fundwatch/internal/core/domain"
	"github.com/vietddude/fundwatch/internal/infra/rpc"
	"github.com/vietddude/fundwatch/internal/infra/rpc/provider"
	"github.com/vietddude/fundwatch/internal/infra/rpc/routing"
)

type rpcReq struct {
	ID     int               `json:"id"`
	Method string            `json:"method"`
	Params []json.RawMessage `json:"params"`
}

// newTestAdapter serves canned results keyed by method name.
func newTestAdapter(t *testing.T, results map[string]string, opts Options) *EVMAdapter {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body json.RawMessage
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))

		answer := func(req rpcReq) string {
			res, ok := results[req.Method]
			if !ok {
				return `{"jsonrpc":"2.0","id":` + itoa(req.ID) + `,"error":{"code":-32601,"message":"method not found"}}`
			}
			return `{"jsonrpc":"2.0","id":` + itoa(req.ID) + `,"result":` + res + `}`
		}

		if len(body) > 0 && body[0] == '[' {
			var reqs []rpcReq
			require.NoError(t, json.Unmarshal(body, &reqs))
			out := "["
			for i, req := range reqs {
				if i > 0 {
					out += ","
				}
				out += answer(req)
			}
			_, _ = w.Write([]byte(out + "]"))
			return
		}
		var req rpcReq
		require.NoError(t, json.Unmarshal(body, &req))
		_, _ = w.Write([]byte(answer(req)))
	}))
	t.Cleanup(srv.Close)

	p := provider.NewHTTPProvider(provider.HTTPConfig{Name: "test", Endpoint: srv.URL, Timeout: time.Second, Chain: "1"})
	client := rpc.NewClient("1", []provider.RPCProvider{p},
		rpc.WithRetryConfig(routing.RetryConfig{MaxAttempts: 1}))
	return NewEVMAdapter(domain.ChainIDEthereum, client, opts, nil)
}

func itoa(n int) string {
	b, _ := json.Marshal(n)
	return string(b)
}

func TestEVMAdapter_ChainAndHead(t *testing.T) {
	a := newTestAdapter(t, map[string]string{
		"eth_chainId":     `"0x1"`,
		"eth_blockNumber": `"0x12d687"`,
	}, Options{})

	id, err := a.ChainID(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.ChainIDEthereum, id)

	height, err := a.GetLatestBlock(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(1234567), height)
}

func TestEVMAdapter_CodeAndStorage(t *testing.T) {
	a := newTestAdapter(t, map[string]string{
		"eth_getCode":      `"0x6080"`,
		"eth_getStorageAt": `"0x000000000000000000000000aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"`,
	}, Options{})
	ctx := context.Background()

	ok, err := a.IsContract(ctx, "0x1111111111111111111111111111111111111111")
	require.NoError(t, err)
	assert.True(t, ok)

	word, err := a.GetStorageAt(ctx, "0x1111111111111111111111111111111111111111", 3)
	require.NoError(t, err)
	assert.Len(t, word, 32)
}

func TestEVMAdapter_IsContractEOA(t *testing.T) {
	a := newTestAdapter(t, map[string]string{"eth_getCode": `"0x"`}, Options{})

	ok, err := a.IsContract(context.Background(), "0x1111111111111111111111111111111111111111")
	require.NoError(t, err)
	assert.False(t, ok)
}

const blockJSON = `{
	"number": "0x10",
	"hash": "0xblock",
	"parentHash": "0xparent",
	"timestamp": "0x64",
	"transactions": [
		{"hash": "0xa1", "from": "0xAAAAaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa", "to": "0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb", "value": "0xde0b6b3a7640000"},
		{"hash": "0xa2", "from": "0xcccccccccccccccccccccccccccccccccccccccc", "to": null, "value": "0x0"}
	]
}`

func TestEVMAdapter_GetBlockWithTraces(t *testing.T) {
	a := newTestAdapter(t, map[string]string{
		"eth_getBlockByNumber": blockJSON,
		"trace_block": `[
			{"type": "call", "action": {"callType": "call", "from": "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa", "to": "0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb", "value": "0xde0b6b3a7640000"}, "transactionHash": "0xa1", "transactionPosition": 0},
			{"type": "call", "action": {"callType": "call", "from": "0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb", "to": "0xdddddddddddddddddddddddddddddddddddddddd", "value": "0x1"}, "transactionHash": "0xa1", "transactionPosition": 0},
			{"type": "create", "action": {"from": "0xcccccccccccccccccccccccccccccccccccccccc", "value": "0x0"}, "result": {"address": "0xeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeee"}, "transactionHash": "0xa2", "transactionPosition": 1},
			{"type": "create", "action": {"from": "0xeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeee", "value": "0x0"}, "error": "out of gas", "transactionHash": "0xa2", "transactionPosition": 1},
			{"type": "reward", "action": {"author": "0xffffffffffffffffffffffffffffffffffffffff", "value": "0x1"}}
		]`,
	}, Options{})

	block, err := a.GetBlock(context.Background(), 16)
	require.NoError(t, err)
	require.NotNil(t, block)
	assert.Equal(t, uint64(16), block.Number)
	assert.Equal(t, uint64(100), block.Timestamp)
	require.Len(t, block.Transactions, 2)

	first := block.Transactions[0]
	assert.Equal(t, domain.Address("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"), first.From)
	assert.Equal(t, int64(100), first.Timestamp)
	require.Len(t, first.Traces, 2)
	assert.Equal(t, "1000000000000000000", first.Traces[0].Value.String())
	assert.Equal(t, domain.Address("0xdddddddddddddddddddddddddddddddddddddddd"), first.Traces[1].To)

	second := block.Transactions[1]
	assert.True(t, second.IsContractCreation())
	require.Len(t, second.Traces, 2)
	assert.Equal(t, []domain.Address{"0xeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeee"}, second.CreatedContracts())
	assert.False(t, second.Traces[1].IsCreate())
}

func TestEVMAdapter_GetBlockNotYetAvailable(t *testing.T) {
	a := newTestAdapter(t, map[string]string{"eth_getBlockByNumber": `null`}, Options{})

	block, err := a.GetBlock(context.Background(), 99)
	require.NoError(t, err)
	assert.Nil(t, block)
}

func TestEVMAdapter_GetBlockFromReceipts(t *testing.T) {
	a := newTestAdapter(t, map[string]string{
		"eth_getBlockByNumber":      blockJSON,
		"eth_getTransactionReceipt": `{"contractAddress": "0xeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeee", "status": "0x1"}`,
	}, Options{DisableTraces: true})

	block, err := a.GetBlock(context.Background(), 16)
	require.NoError(t, err)
	require.Len(t, block.Transactions, 2)

	require.Len(t, block.Transactions[0].Traces, 1)
	assert.True(t, block.Transactions[0].Traces[0].HasValue())
	assert.Equal(t, []domain.Address{"0xeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeee"}, block.Transactions[1].CreatedContracts())
}

func TestEVMAdapter_TraceMethodUnsupported(t *testing.T) {
	a := newTestAdapter(t, map[string]string{"eth_getBlockByNumber": blockJSON}, Options{})

	_, err := a.GetBlock(context.Background(), 16)
	assert.ErrorContains(t, err, "trace_block")
}
