package engine

import (
	"context"
	"fmt"

	"github.com/vietddude/fundwatch/internal/core/domain"
)

// txProgress records the work already applied for one transaction. A
// transaction handed in again after a failure resumes from here, so
// queued findings and trigger counts are not repeated.
type txProgress struct {
	hash string

	creates int  // create traces fully handled
	counted bool // triggers of the next create trace are already counted

	interactionCounted bool
	scanned            int // traces covered by the statistics scan
	funded             int // traces handled by the funding stage

	contracts map[domain.Address]bool
}

// HandleTransaction runs the deployment, interaction and funding stages for tx
// and returns at most MaxFindingsPerRequest of the oldest pending findings.
//
// On a chain or extractor failure the remaining stages are skipped and the
// error is returned. Findings queued before the failure stay queued and
// funded-set changes are kept. Handing the same transaction in again
// continues after the last applied step.
func (e *Engine) HandleTransaction(ctx context.Context, tx *domain.Transaction) ([]domain.Finding, error) {
	if e.tracker == nil {
		return nil, ErrNotInitialized
	}
	if tx == nil {
		return nil, fmt.Errorf("%w: nil transaction", domain.ErrMalformedTransaction)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	p := e.progressFor(tx.Hash)
	e.analytics.Sync(tx.Timestamp)

	if err := e.detectDeployments(ctx, tx, p); err != nil {
		e.pending = p
		return nil, err
	}
	if err := e.detectInteraction(ctx, tx, p); err != nil {
		e.pending = p
		return nil, err
	}
	e.pending = nil
	return e.queue.Release(e.cfg.MaxFindingsPerRequest), nil
}

func (e *Engine) progressFor(hash string) *txProgress {
	if e.pending != nil && hash != "" && e.pending.hash == hash {
		e.logger.Debug("Resuming transaction", "tx", hash,
			"creates", e.pending.creates, "scanned", e.pending.scanned, "funded", e.pending.funded)
		return e.pending
	}
	return &txProgress{hash: hash, contracts: make(map[domain.Address]bool)}
}

func (e *Engine) detectDeployments(ctx context.Context, tx *domain.Transaction, p *txProgress) error {
	from := domain.NormalizeAddress(tx.From.String())

	seen := 0
	for _, tr := range tx.Traces {
		if !tr.IsCreate() {
			continue
		}
		seen++
		if seen <= p.creates {
			continue
		}
		contract := domain.NormalizeAddress(tr.CreatedAddress.String())

		tracked := e.tracker.Contains(from)
		if !p.counted {
			e.analytics.IncrementBotTriggers(tx.Timestamp, domain.AlertCategoryDeployment)
			if tracked {
				e.analytics.IncrementAlertTriggers(tx.Timestamp, domain.AlertCategoryDeployment)
			}
			p.counted = true
		}

		if tracked {
			fromStorage, err := e.extractor.StorageAddresses(ctx, contract)
			if err != nil {
				return fmt.Errorf("%w: storage addresses of %s: %w", ErrUpstreamQuery, contract, err)
			}
			fromCode, err := e.extractor.OpcodeAddresses(ctx, contract)
			if err != nil {
				return fmt.Errorf("%w: opcode addresses of %s: %w", ErrUpstreamQuery, contract, err)
			}
			contained := make([]domain.Address, 0, len(fromStorage)+len(fromCode))
			contained = append(contained, fromStorage...)
			contained = append(contained, fromCode...)

			score := e.analytics.AnomalyScore(domain.AlertCategoryDeployment)
			e.queue.Push(e.deploymentFinding(tx, from, contract, contained, score))
			e.logger.Debug("Funded account deployed contract",
				"tx", tx.Hash, "deployer", from, "contract", contract, "contained", len(contained))
		}

		p.creates = seen
		p.counted = false
	}
	return nil
}

func (e *Engine) detectInteraction(ctx context.Context, tx *domain.Transaction, p *txProgress) error {
	if tx.IsContractCreation() {
		return nil
	}
	to := domain.NormalizeAddress(tx.To.String())

	isContract, err := e.isContract(ctx, p, to)
	if err != nil {
		return err
	}
	if !isContract {
		return nil
	}
	if !p.interactionCounted {
		e.analytics.IncrementBotTriggers(tx.Timestamp, domain.AlertCategoryInteraction)
		p.interactionCounted = true
	}

	for i := p.scanned; i < len(tx.Traces); i++ {
		tr := tx.Traces[i]
		if tr.HasValue() && !tr.To.IsZero() {
			recipientIsContract, err := e.isContract(ctx, p, tr.To)
			if err != nil {
				return err
			}
			if !recipientIsContract {
				e.analytics.IncrementBotTriggers(tx.Timestamp, domain.AlertCategoryFunding)
			}
		}
		p.scanned = i + 1
	}

	if e.isProtocol(to) {
		return e.detectFunding(ctx, tx, p)
	}

	from := domain.NormalizeAddress(tx.From.String())
	if !e.tracker.Contains(from) {
		return nil
	}
	e.analytics.IncrementAlertTriggers(tx.Timestamp, domain.AlertCategoryInteraction)
	score := e.analytics.AnomalyScore(domain.AlertCategoryInteraction)
	e.queue.Push(e.interactionFinding(tx, from, to, score))
	e.logger.Debug("Funded account interacted with contract", "tx", tx.Hash, "account", from, "contract", to)
	return nil
}

func (e *Engine) detectFunding(ctx context.Context, tx *domain.Transaction, p *txProgress) error {
	for i := p.funded; i < len(tx.Traces); i++ {
		tr := tx.Traces[i]
		if e.isProtocol(tr.From) && tr.HasValue() && !tr.To.IsZero() {
			recipientIsContract, err := e.isContract(ctx, p, tr.To)
			if err != nil {
				return err
			}
			if !recipientIsContract {
				account := domain.NormalizeAddress(tr.To.String())
				e.tracker.Add(account)
				e.analytics.IncrementAlertTriggers(tx.Timestamp, domain.AlertCategoryFunding)
				score := e.analytics.AnomalyScore(domain.AlertCategoryFunding)
				e.queue.Push(e.fundingFinding(tx, account, tr.TransferredValue(), score))
				e.logger.Debug("Account funded by protocol", "tx", tx.Hash, "account", account, "value", tr.TransferredValue())
			}
		}
		p.funded = i + 1
	}
	return nil
}

// isContract classifies a, asking the chain at most once per transaction.
func (e *Engine) isContract(ctx context.Context, p *txProgress, a domain.Address) (bool, error) {
	a = domain.NormalizeAddress(a.String())
	if ok, cached := p.contracts[a]; cached {
		return ok, nil
	}
	ok, err := e.chain.IsContract(ctx, a)
	if err != nil {
		return false, fmt.Errorf("%w: classify %s: %w", ErrUpstreamQuery, a, err)
	}
	p.contracts[a] = ok
	return ok, nil
}
