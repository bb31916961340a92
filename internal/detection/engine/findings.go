package engine

import (
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/vietddude/fundwatch/internal/core/domain"
)

const (
	labelMixerFunded = "MixerFunded"
	labelAttacker    = "Attacker"
	labelAttack      = "Attack"
	labelExploit     = "Exploit"

	suspicionConfidence = 0.001
	weiDecimals         = 18
)

// alertIDs holds the per-category alert identifiers, derived once at Build.
type alertIDs struct {
	funding     string
	interaction string
	deployment  string
}

func newAlertIDs(developer, protocol string) alertIDs {
	prefix := slug(developer) + "-" + slug(protocol)
	return alertIDs{
		funding:     prefix + "-FUNDING",
		interaction: prefix + "-FUNDED-ACCOUNT-INTERACTION",
		deployment:  prefix + "-FUNDED-ACCOUNT-DEPLOYMENT",
	}
}

// slug turns "Aztec Protocol" into "AZTEC-PROTOCOL".
func slug(s string) string {
	return strings.ToUpper(strings.Join(strings.Fields(s), "-"))
}

func formatScore(score float64) string {
	return strconv.FormatFloat(score, 'f', -1, 64)
}

// formatEther renders a wei amount in whole-token units.
func formatEther(wei *big.Int) string {
	return decimal.NewFromBigInt(wei, -weiDecimals).String()
}

func (e *Engine) baseFinding(tx *domain.Transaction, category domain.AlertCategory, score float64) domain.Finding {
	return domain.Finding{
		ID:           uuid.NewString(),
		Category:     category,
		Severity:     domain.SeverityLow,
		AnomalyScore: score,
		TxHash:       tx.Hash,
		ChainID:      e.chainID,
		BlockNumber:  tx.BlockNumber,
		CreatedAt:    e.now().UTC(),
		Metadata:     map[string]string{"anomaly_score": formatScore(score)},
	}
}

func (e *Engine) fundingFinding(tx *domain.Transaction, account domain.Address, value *big.Int, score float64) domain.Finding {
	f := e.baseFinding(tx, domain.AlertCategoryFunding, score)
	f.AlertID = e.alerts.funding
	f.Name = e.cfg.ProtocolName + " Funding"
	f.Description = "Account " + account.String() + " was funded by " + formatEther(value) + " " + e.chainID.NativeSymbol()
	f.Type = domain.FindingTypeInfo
	f.Addresses = []domain.Address{account}
	f.Labels = []domain.Label{{
		EntityType: domain.EntityTypeAddress,
		Entity:     account.String(),
		Label:      labelMixerFunded,
		Confidence: 1,
	}}
	f.Metadata["value_wei"] = value.String()
	return f
}

func (e *Engine) interactionFinding(tx *domain.Transaction, account, contract domain.Address, score float64) domain.Finding {
	f := e.baseFinding(tx, domain.AlertCategoryInteraction, score)
	f.AlertID = e.alerts.interaction
	f.Name = e.cfg.ProtocolName + " funded account interacted with a contract"
	f.Description = account.String() + " interacted with contract " + contract.String()
	f.Type = domain.FindingTypeSuspicious
	f.Addresses = []domain.Address{account, contract}
	f.Labels = []domain.Label{
		{EntityType: domain.EntityTypeAddress, Entity: account.String(), Label: labelAttacker, Confidence: suspicionConfidence},
		{EntityType: domain.EntityTypeTransaction, Entity: tx.Hash, Label: labelAttack, Confidence: suspicionConfidence},
	}
	return f
}

func (e *Engine) deploymentFinding(tx *domain.Transaction, deployer, contract domain.Address, contained []domain.Address, score float64) domain.Finding {
	f := e.baseFinding(tx, domain.AlertCategoryDeployment, score)
	f.AlertID = e.alerts.deployment
	f.Name = e.cfg.ProtocolName + " funded account deployed a contract"
	f.Description = deployer.String() + " created contract " + contract.String()
	f.Type = domain.FindingTypeSuspicious
	f.Addresses = []domain.Address{deployer, contract}
	f.Contained = contained
	f.Labels = []domain.Label{
		{EntityType: domain.EntityTypeAddress, Entity: deployer.String(), Label: labelAttacker, Confidence: suspicionConfidence},
		{EntityType: domain.EntityTypeAddress, Entity: contract.String(), Label: labelExploit, Confidence: suspicionConfidence},
	}

	parts := make([]string, len(contained))
	for i, a := range contained {
		parts[i] = a.String()
	}
	f.Metadata["contained_addresses"] = strings.Join(parts, ",")
	return f
}

func defaultNow() time.Time { return time.Now() }
