package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
)

// ErrMalformedTransaction is returned when a transaction event cannot be decoded,
// including trace values that are not hex-encoded integers.
var ErrMalformedTransaction = errors.New("malformed transaction")

type TraceType string

const (
	TraceTypeCall    TraceType = "call"
	TraceTypeCreate  TraceType = "create"
	TraceTypeSuicide TraceType = "suicide"
	TraceTypeReward  TraceType = "reward"
)

// Trace is one internal effect of a transaction.
type Trace struct {
	Type           TraceType
	From           Address
	To             Address // empty when absent
	Value          *big.Int
	CreatedAddress Address // set for create traces
}

// TransferredValue returns the trace value, zero when unset.
func (t Trace) TransferredValue() *big.Int {
	if t.Value == nil {
		return new(big.Int)
	}
	return t.Value
}

// HasValue reports whether the trace moved a non-zero amount.
func (t Trace) HasValue() bool {
	return t.Value != nil && t.Value.Sign() != 0
}

// IsCreate reports whether the trace deployed a contract.
func (t Trace) IsCreate() bool {
	return t.Type == TraceTypeCreate && !t.CreatedAddress.IsZero()
}

type traceJSON struct {
	Type           TraceType `json:"type"`
	From           Address   `json:"from"`
	To             Address   `json:"to,omitempty"`
	Value          string    `json:"value,omitempty"`
	CreatedAddress Address   `json:"created_address,omitempty"`
}

func (t Trace) MarshalJSON() ([]byte, error) {
	w := traceJSON{Type: t.Type, From: t.From, To: t.To, CreatedAddress: t.CreatedAddress}
	if t.Value != nil {
		w.Value = hexutil.EncodeBig(t.Value)
	}
	return json.Marshal(w)
}

func (t *Trace) UnmarshalJSON(data []byte) error {
	var w traceJSON
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	value, err := ParseQuantity(w.Value)
	if err != nil {
		return err
	}
	*t = Trace{Type: w.Type, From: w.From, To: w.To, Value: value, CreatedAddress: w.CreatedAddress}
	return nil
}

// Transaction is a chain transaction with its ordered traces.
type Transaction struct {
	ChainID     ChainID `json:"chain_id"`
	Hash        string  `json:"hash"`
	From        Address `json:"from"`
	To          Address `json:"to,omitempty"` // empty for contract creation
	Timestamp   int64   `json:"timestamp"`
	BlockNumber uint64  `json:"block_number"`
	Traces      []Trace `json:"traces"`
}

// IsContractCreation reports whether the transaction has no recipient.
func (tx *Transaction) IsContractCreation() bool {
	return tx.To.IsZero()
}

// CreatedContracts lists contracts created by the transaction's traces, in trace order.
func (tx *Transaction) CreatedContracts() []Address {
	var out []Address
	for _, tr := range tx.Traces {
		if tr.IsCreate() {
			out = append(out, tr.CreatedAddress)
		}
	}
	return out
}

// DecodeTransaction parses a JSON transaction event.
func DecodeTransaction(data []byte) (*Transaction, error) {
	var tx Transaction
	if err := json.Unmarshal(data, &tx); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedTransaction, err)
	}
	if tx.Hash == "" {
		return nil, fmt.Errorf("%w: missing hash", ErrMalformedTransaction)
	}
	return &tx, nil
}

// ParseQuantity parses a hex quantity with or without the 0x prefix.
// The empty string and "0x" are zero.
func ParseQuantity(s string) (*big.Int, error) {
	s = strings.TrimPrefix(strings.TrimPrefix(strings.TrimSpace(s), "0x"), "0X")
	if s == "" {
		return new(big.Int), nil
	}
	n, ok := new(big.Int).SetString(s, 16)
	if !ok || n.Sign() < 0 {
		return nil, fmt.Errorf("%w: invalid hex quantity %q", ErrMalformedTransaction, s)
	}
	return n, nil
}
