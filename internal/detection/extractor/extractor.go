// Package extractor finds the addresses a freshly deployed contract refers to,
// either through its storage slots or through PUSH20 literals in its runtime code.
package extractor

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/vietddude/fundwatch/internal/core/domain"
)

const (
	DefaultStorageSlots = 20
	DefaultConcurrency  = 5
)

// ChainReader is the chain access needed to inspect a contract.
type ChainReader interface {
	GetCode(ctx context.Context, address domain.Address) ([]byte, error)
	GetStorageAt(ctx context.Context, address domain.Address, slot uint64) ([]byte, error)
	IsContract(ctx context.Context, address domain.Address) (bool, error)
}

// Config controls how much of a contract is inspected.
type Config struct {
	StorageSlots int
	Concurrency  int
}

// Extractor implements the storage and opcode address queries.
type Extractor struct {
	chain       ChainReader
	slots       int
	concurrency int
}

func New(chain ChainReader, cfg Config) *Extractor {
	if cfg.StorageSlots <= 0 {
		cfg.StorageSlots = DefaultStorageSlots
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	return &Extractor{chain: chain, slots: cfg.StorageSlots, concurrency: cfg.Concurrency}
}

// StorageAddresses returns contracts referenced by the first storage slots of
// contract, in slot order and without duplicates.
func (x *Extractor) StorageAddresses(ctx context.Context, contract domain.Address) ([]domain.Address, error) {
	words := make([][]byte, x.slots)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(x.concurrency)
	for slot := 0; slot < x.slots; slot++ {
		g.Go(func() error {
			w, err := x.chain.GetStorageAt(gctx, contract, uint64(slot))
			if err != nil {
				return fmt.Errorf("slot %d: %w", slot, err)
			}
			words[slot] = w
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var candidates []domain.Address
	for _, w := range words {
		if a, ok := AddressFromWord(w); ok {
			candidates = append(candidates, a)
		}
	}
	return x.keepContracts(ctx, candidates)
}

// OpcodeAddresses returns contracts pushed as PUSH20 literals by the runtime
// code of contract, in code order and without duplicates.
func (x *Extractor) OpcodeAddresses(ctx context.Context, contract domain.Address) ([]domain.Address, error) {
	code, err := x.chain.GetCode(ctx, contract)
	if err != nil {
		return nil, fmt.Errorf("code: %w", err)
	}
	return x.keepContracts(ctx, PushedAddresses(code))
}

// keepContracts de-duplicates candidates and drops the ones without code.
func (x *Extractor) keepContracts(ctx context.Context, candidates []domain.Address) ([]domain.Address, error) {
	unique := dedupe(candidates)
	if len(unique) == 0 {
		return []domain.Address{}, nil
	}

	isContract := make([]bool, len(unique))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(x.concurrency)
	for i, a := range unique {
		g.Go(func() error {
			ok, err := x.chain.IsContract(gctx, a)
			if err != nil {
				return fmt.Errorf("classify %s: %w", a, err)
			}
			isContract[i] = ok
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([]domain.Address, 0, len(unique))
	for i, a := range unique {
		if isContract[i] {
			out = append(out, a)
		}
	}
	return out, nil
}

func dedupe(in []domain.Address) []domain.Address {
	seen := make(map[domain.Address]struct{}, len(in))
	out := make([]domain.Address, 0, len(in))
	for _, a := range in {
		if _, ok := seen[a]; ok {
			continue
		}
		seen[a] = struct{}{}
		out = append(out, a)
	}
	return out
}
