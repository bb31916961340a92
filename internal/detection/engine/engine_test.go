package engine

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vietddude/fundwatch/internal/core/domain"
)

const (
	protocolAddr = domain.Address("0xabcdef0000000000000000000000000000000001")
	contractAddr = domain.Address("0xc0000000000000000000000000000000000000c1")
)

func addr(i int) domain.Address {
	return domain.Address(fmt.Sprintf("0x%040x", i))
}

func wei(s string) *big.Int {
	v, _ := new(big.Int).SetString(s, 10)
	return v
}

// MockChain is a CodeClassifier backed by a contract set.
type MockChain struct {
	ChainIDFunc    func(ctx context.Context) (domain.ChainID, error)
	IsContractFunc func(ctx context.Context, a domain.Address) (bool, error)
	contracts      map[domain.Address]bool
	queried        map[domain.Address]int
}

func (m *MockChain) ChainID(ctx context.Context) (domain.ChainID, error) {
	if m.ChainIDFunc != nil {
		return m.ChainIDFunc(ctx)
	}
	return domain.ChainIDEthereum, nil
}

func (m *MockChain) IsContract(ctx context.Context, a domain.Address) (bool, error) {
	if m.queried == nil {
		m.queried = map[domain.Address]int{}
	}
	m.queried[a]++
	if m.IsContractFunc != nil {
		return m.IsContractFunc(ctx, a)
	}
	return m.contracts[a], nil
}

type MockExtractor struct {
	storage map[domain.Address][]domain.Address
	opcode  map[domain.Address][]domain.Address
	err     error
}

func (m *MockExtractor) StorageAddresses(ctx context.Context, c domain.Address) ([]domain.Address, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.storage[c], nil
}

func (m *MockExtractor) OpcodeAddresses(ctx context.Context, c domain.Address) ([]domain.Address, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.opcode[c], nil
}

// MockAnalytics records every call in order.
type MockAnalytics struct {
	calls  []string
	bot    map[domain.AlertCategory]int
	alert  map[domain.AlertCategory]int
	scores map[domain.AlertCategory]float64
}

func newMockAnalytics() *MockAnalytics {
	return &MockAnalytics{
		bot:   map[domain.AlertCategory]int{},
		alert: map[domain.AlertCategory]int{},
		scores: map[domain.AlertCategory]float64{
			domain.AlertCategoryFunding:     0.123,
			domain.AlertCategoryInteraction: 0.321,
			domain.AlertCategoryDeployment:  0.222,
		},
	}
}

func (m *MockAnalytics) Sync(ts int64) { m.calls = append(m.calls, fmt.Sprintf("sync:%d", ts)) }
func (m *MockAnalytics) IncrementBotTriggers(ts int64, c domain.AlertCategory) {
	m.calls = append(m.calls, "bot:"+string(c))
	m.bot[c]++
}
func (m *MockAnalytics) IncrementAlertTriggers(ts int64, c domain.AlertCategory) {
	m.calls = append(m.calls, "alert:"+string(c))
	m.alert[c]++
}
func (m *MockAnalytics) AnomalyScore(c domain.AlertCategory) float64 { return m.scores[c] }

type fixture struct {
	engine    *Engine
	chain     *MockChain
	extractor *MockExtractor
	analytics *MockAnalytics
	evicted   []domain.Address
}

func newFixture(t *testing.T, limit, maxFindings int) *fixture {
	t.Helper()
	f := &fixture{
		chain:     &MockChain{contracts: map[domain.Address]bool{contractAddr: true, protocolAddr: true}},
		extractor: &MockExtractor{},
		analytics: newMockAnalytics(),
	}
	e, err := Build(context.Background(), Config{
		AddressLimit:          limit,
		MaxFindingsPerRequest: maxFindings,
		DeveloperAbbreviation: "NM",
		ProtocolName:          "Aztec Protocol",
		ProtocolAddresses: map[domain.ChainID][]string{
			domain.ChainIDEthereum: {"0xABCDEF0000000000000000000000000000000001"},
		},
	}, Deps{
		Chain:     f.chain,
		Extractor: f.extractor,
		Analytics: f.analytics,
		OnEvict:   func(a domain.Address) { f.evicted = append(f.evicted, a) },
		Now:       func() time.Time { return time.Unix(1700000000, 0) },
	})
	require.NoError(t, err)
	f.engine = e
	return f
}

func fundingTx(hash string, accounts ...domain.Address) *domain.Transaction {
	tx := &domain.Transaction{
		ChainID:   domain.ChainIDEthereum,
		Hash:      hash,
		From:      addr(0xee),
		To:        protocolAddr,
		Timestamp: 1000,
	}
	for _, a := range accounts {
		tx.Traces = append(tx.Traces, domain.Trace{
			Type:  domain.TraceTypeCall,
			From:  protocolAddr,
			To:    a,
			Value: wei("500000000000000000"),
		})
	}
	return tx
}

func emptyTx() *domain.Transaction {
	return &domain.Transaction{Hash: "0xempty", From: addr(0xef), Timestamp: 1000}
}

func TestHandleTransaction_NotInitialized(t *testing.T) {
	var e Engine

	for i := 0; i < 2; i++ {
		_, err := e.HandleTransaction(context.Background(), emptyTx())
		assert.ErrorIs(t, err, ErrNotInitialized)
	}
	_, err := e.Drain()
	assert.ErrorIs(t, err, ErrNotInitialized)
}

func TestBuild(t *testing.T) {
	base := Config{
		AddressLimit:      10,
		ProtocolName:      "Aztec Protocol",
		ProtocolAddresses: map[domain.ChainID][]string{domain.ChainIDEthereum: {string(protocolAddr)}},
	}
	deps := func(chain *MockChain) Deps {
		return Deps{Chain: chain, Extractor: &MockExtractor{}, Analytics: newMockAnalytics()}
	}

	t.Run("defaults max findings", func(t *testing.T) {
		e, err := Build(context.Background(), base, deps(&MockChain{}))
		require.NoError(t, err)
		assert.Equal(t, DefaultMaxFindingsPerRequest, e.cfg.MaxFindingsPerRequest)
		assert.Equal(t, domain.ChainIDEthereum, e.ChainID())
		assert.Equal(t, "NM-AZTEC-PROTOCOL-FUNDING", newAlertIDs("nm", "Aztec Protocol").funding)
	})

	t.Run("unsupported chain", func(t *testing.T) {
		chain := &MockChain{ChainIDFunc: func(ctx context.Context) (domain.ChainID, error) {
			return domain.ChainIDPolygon, nil
		}}
		_, err := Build(context.Background(), base, deps(chain))
		assert.ErrorIs(t, err, ErrUnsupportedChain)
	})

	t.Run("chain id failure", func(t *testing.T) {
		boom := errors.New("dial tcp: refused")
		chain := &MockChain{ChainIDFunc: func(ctx context.Context) (domain.ChainID, error) {
			return "", boom
		}}
		_, err := Build(context.Background(), base, deps(chain))
		assert.ErrorIs(t, err, ErrUpstreamQuery)
		assert.ErrorIs(t, err, boom)
	})

	t.Run("invalid settings", func(t *testing.T) {
		bad := base
		bad.AddressLimit = 0
		_, err := Build(context.Background(), bad, deps(&MockChain{}))
		assert.ErrorIs(t, err, ErrInvalidConfig)

		bad = base
		bad.MaxFindingsPerRequest = -1
		_, err = Build(context.Background(), bad, deps(&MockChain{}))
		assert.ErrorIs(t, err, ErrInvalidConfig)
	})

	t.Run("missing collaborators", func(t *testing.T) {
		_, err := Build(context.Background(), base, Deps{Chain: &MockChain{}})
		assert.ErrorIs(t, err, ErrInvalidConfig)
	})
}

func TestHandleTransaction_Funding(t *testing.T) {
	f := newFixture(t, 10, 50)
	funded := addr(1)

	findings, err := f.engine.HandleTransaction(context.Background(), fundingTx("0xf1", funded))
	require.NoError(t, err)
	require.Len(t, findings, 1)

	got := findings[0]
	assert.Equal(t, domain.AlertCategoryFunding, got.Category)
	assert.Equal(t, "NM-AZTEC-PROTOCOL-FUNDING", got.AlertID)
	assert.Equal(t, "Aztec Protocol Funding", got.Name)
	assert.Equal(t, "Account "+funded.String()+" was funded by 0.5 ETH", got.Description)
	assert.Equal(t, domain.SeverityLow, got.Severity)
	assert.Equal(t, domain.FindingTypeInfo, got.Type)
	assert.Equal(t, []domain.Address{funded}, got.Addresses)
	assert.Equal(t, 0.123, got.AnomalyScore)
	assert.Equal(t, "0.123", got.Metadata["anomaly_score"])
	assert.Equal(t, "500000000000000000", got.Metadata["value_wei"])
	assert.Equal(t, "0xf1", got.TxHash)
	assert.NotEmpty(t, got.ID)
	require.Len(t, got.Labels, 1)
	assert.Equal(t, "MixerFunded", got.Labels[0].Label)
	assert.Equal(t, 1.0, got.Labels[0].Confidence)

	assert.True(t, f.engine.IsTracked(funded))

	// funding: 1 statistical trigger + 1 alert, interaction: 1 trigger, no interaction alert
	assert.Equal(t, 1, f.analytics.bot[domain.AlertCategoryFunding])
	assert.Equal(t, 1, f.analytics.alert[domain.AlertCategoryFunding])
	assert.Equal(t, 1, f.analytics.bot[domain.AlertCategoryInteraction])
	assert.Zero(t, f.analytics.alert[domain.AlertCategoryInteraction])
}

func TestHandleTransaction_FundingSkipsIneligibleTraces(t *testing.T) {
	f := newFixture(t, 10, 50)
	tx := fundingTx("0xf2")
	tx.Traces = []domain.Trace{
		{Type: domain.TraceTypeCall, From: addr(0x99), To: addr(1), Value: wei("1")},
		{Type: domain.TraceTypeCall, From: protocolAddr, To: addr(2), Value: new(big.Int)},
		{Type: domain.TraceTypeCall, From: protocolAddr, To: contractAddr, Value: wei("1")},
		{Type: domain.TraceTypeCall, From: "0xABCDEF0000000000000000000000000000000001", To: "0x00000000000000000000000000000000000000AA", Value: wei("1")},
	}

	findings, err := f.engine.HandleTransaction(context.Background(), tx)
	require.NoError(t, err)
	require.Len(t, findings, 1)
	assert.Equal(t, []domain.Address{addr(0xaa)}, findings[0].Addresses)
	assert.False(t, f.engine.IsTracked(addr(1)))
	assert.False(t, f.engine.IsTracked(addr(2)))
	assert.False(t, f.engine.IsTracked(contractAddr))
	assert.Equal(t, 1, f.engine.TrackedCount())
}

func TestHandleTransaction_FundedInteraction(t *testing.T) {
	f := newFixture(t, 10, 50)
	funded := addr(1)
	_, err := f.engine.HandleTransaction(context.Background(), fundingTx("0xf1", funded))
	require.NoError(t, err)

	tx := &domain.Transaction{Hash: "0xi1", From: addr(1), To: contractAddr, Timestamp: 2000}
	findings, err := f.engine.HandleTransaction(context.Background(), tx)
	require.NoError(t, err)
	require.Len(t, findings, 1)

	got := findings[0]
	assert.Equal(t, domain.AlertCategoryInteraction, got.Category)
	assert.Equal(t, "NM-AZTEC-PROTOCOL-FUNDED-ACCOUNT-INTERACTION", got.AlertID)
	assert.Equal(t, domain.FindingTypeSuspicious, got.Type)
	assert.Equal(t, []domain.Address{funded, contractAddr}, got.Addresses)
	assert.Equal(t, funded.String()+" interacted with contract "+contractAddr.String(), got.Description)
	assert.Equal(t, 0.321, got.AnomalyScore)
	require.Len(t, got.Labels, 2)
	assert.Equal(t, domain.EntityTypeTransaction, got.Labels[1].EntityType)
	assert.Equal(t, "0xi1", got.Labels[1].Entity)

	assert.Equal(t, 2, f.analytics.bot[domain.AlertCategoryInteraction])
	assert.Equal(t, 1, f.analytics.alert[domain.AlertCategoryInteraction])
}

func TestHandleTransaction_InteractionWithEOAIsIgnored(t *testing.T) {
	f := newFixture(t, 10, 50)
	_, err := f.engine.HandleTransaction(context.Background(), fundingTx("0xf1", addr(1)))
	require.NoError(t, err)

	tx := &domain.Transaction{Hash: "0xi2", From: addr(1), To: addr(2), Timestamp: 2000}
	findings, err := f.engine.HandleTransaction(context.Background(), tx)
	require.NoError(t, err)
	assert.Empty(t, findings)
}

func TestHandleTransaction_EOAToEOA(t *testing.T) {
	f := newFixture(t, 10, 50)
	tx := &domain.Transaction{
		Hash: "0xe1", From: addr(3), To: addr(4), Timestamp: 10,
		Traces: []domain.Trace{{Type: domain.TraceTypeCall, From: addr(3), To: addr(4), Value: wei("1000")}},
	}

	findings, err := f.engine.HandleTransaction(context.Background(), tx)
	require.NoError(t, err)
	assert.Empty(t, findings)
	assert.Equal(t, []string{"sync:10"}, f.analytics.calls)
}

func TestHandleTransaction_Deployment(t *testing.T) {
	f := newFixture(t, 10, 50)
	deployer := addr(1)
	_, err := f.engine.HandleTransaction(context.Background(), fundingTx("0xf1", deployer))
	require.NoError(t, err)

	first, second := addr(0x100), addr(0x200)
	f.extractor.storage = map[domain.Address][]domain.Address{first: {addr(0x11), addr(0x12), addr(0x13)}}
	f.extractor.opcode = map[domain.Address][]domain.Address{first: {addr(0x21), addr(0x11)}}

	tx := &domain.Transaction{
		Hash: "0xd1", From: deployer, Timestamp: 3000,
		Traces: []domain.Trace{
			{Type: domain.TraceTypeCreate, From: deployer, CreatedAddress: first},
			{Type: domain.TraceTypeCreate, From: first, CreatedAddress: second},
		},
	}
	findings, err := f.engine.HandleTransaction(context.Background(), tx)
	require.NoError(t, err)
	require.Len(t, findings, 2)

	assert.Equal(t, domain.AlertCategoryDeployment, findings[0].Category)
	assert.Equal(t, "NM-AZTEC-PROTOCOL-FUNDED-ACCOUNT-DEPLOYMENT", findings[0].AlertID)
	assert.Equal(t, []domain.Address{deployer, first}, findings[0].Addresses)
	assert.Equal(t, []domain.Address{addr(0x11), addr(0x12), addr(0x13), addr(0x21), addr(0x11)}, findings[0].Contained)
	assert.Equal(t, strings.Join([]string{
		addr(0x11).String(), addr(0x12).String(), addr(0x13).String(), addr(0x21).String(), addr(0x11).String(),
	}, ","), findings[0].Metadata["contained_addresses"])
	assert.Equal(t, 0.222, findings[0].AnomalyScore)

	assert.Equal(t, []domain.Address{deployer, second}, findings[1].Addresses)
	assert.Empty(t, findings[1].Contained)

	assert.Equal(t, 2, f.analytics.bot[domain.AlertCategoryDeployment])
	assert.Equal(t, 2, f.analytics.alert[domain.AlertCategoryDeployment])
}

func TestHandleTransaction_DeploymentByUntrackedAccount(t *testing.T) {
	f := newFixture(t, 10, 50)
	tx := &domain.Transaction{
		Hash: "0xd2", From: addr(7), Timestamp: 3000,
		Traces: []domain.Trace{{Type: domain.TraceTypeCreate, From: addr(7), CreatedAddress: addr(0x300)}},
	}

	findings, err := f.engine.HandleTransaction(context.Background(), tx)
	require.NoError(t, err)
	assert.Empty(t, findings)
	assert.Equal(t, 1, f.analytics.bot[domain.AlertCategoryDeployment])
	assert.Zero(t, f.analytics.alert[domain.AlertCategoryDeployment])
}

func TestHandleTransaction_StatisticsScan(t *testing.T) {
	f := newFixture(t, 10, 50)
	tx := &domain.Transaction{
		Hash: "0xs1", From: addr(5), To: contractAddr, Timestamp: 4000,
		Traces: []domain.Trace{
			{Type: domain.TraceTypeCall, From: contractAddr, To: addr(6), Value: wei("1")},
			{Type: domain.TraceTypeCall, From: contractAddr, To: addr(7), Value: wei("2")},
			{Type: domain.TraceTypeCall, From: contractAddr, To: addr(8), Value: new(big.Int)},
			{Type: domain.TraceTypeCall, From: contractAddr, To: contractAddr, Value: wei("3")},
		},
	}

	findings, err := f.engine.HandleTransaction(context.Background(), tx)
	require.NoError(t, err)
	assert.Empty(t, findings)
	assert.Equal(t, 2, f.analytics.bot[domain.AlertCategoryFunding])
	assert.Equal(t, 1, f.analytics.bot[domain.AlertCategoryInteraction])
	assert.Zero(t, f.analytics.alert[domain.AlertCategoryFunding])
	assert.Equal(t, "sync:4000", f.analytics.calls[0])
}

func TestHandleTransaction_Batching(t *testing.T) {
	f := newFixture(t, 10, 2)

	first, err := f.engine.HandleTransaction(context.Background(),
		fundingTx("0xf1", addr(1), addr(2), addr(3), addr(4), addr(5)))
	require.NoError(t, err)
	second, err := f.engine.HandleTransaction(context.Background(), emptyTx())
	require.NoError(t, err)
	third, err := f.engine.HandleTransaction(context.Background(), emptyTx())
	require.NoError(t, err)
	fourth, err := f.engine.HandleTransaction(context.Background(), emptyTx())
	require.NoError(t, err)

	require.Len(t, first, 2)
	require.Len(t, second, 2)
	require.Len(t, third, 1)
	assert.Empty(t, fourth)

	var order []domain.Address
	for _, batch := range [][]domain.Finding{first, second, third} {
		for _, fnd := range batch {
			order = append(order, fnd.Addresses[0])
		}
	}
	assert.Equal(t, []domain.Address{addr(1), addr(2), addr(3), addr(4), addr(5)}, order)
}

func TestHandleTransaction_EvictionCutsOffDetection(t *testing.T) {
	f := newFixture(t, 1, 50)

	_, err := f.engine.HandleTransaction(context.Background(), fundingTx("0xf1", addr(1)))
	require.NoError(t, err)
	_, err = f.engine.HandleTransaction(context.Background(), fundingTx("0xf2", addr(2)))
	require.NoError(t, err)
	assert.Equal(t, []domain.Address{addr(1)}, f.evicted)

	findings, err := f.engine.HandleTransaction(context.Background(),
		&domain.Transaction{Hash: "0xi1", From: addr(1), To: contractAddr, Timestamp: 5000})
	require.NoError(t, err)
	assert.Empty(t, findings)

	findings, err = f.engine.HandleTransaction(context.Background(),
		&domain.Transaction{Hash: "0xi2", From: addr(2), To: contractAddr, Timestamp: 5000})
	require.NoError(t, err)
	assert.Len(t, findings, 1)
}

func TestHandleTransaction_SameTransactionObservesEarlierTraces(t *testing.T) {
	f := newFixture(t, 10, 50)

	findings, err := f.engine.HandleTransaction(context.Background(), fundingTx("0xf1", addr(1), addr(1)))
	require.NoError(t, err)
	assert.Len(t, findings, 2)
	assert.Equal(t, 1, f.engine.TrackedCount())
}

func TestHandleTransaction_UpstreamFailureKeepsState(t *testing.T) {
	f := newFixture(t, 10, 50)
	boom := errors.New("rpc timeout")
	f.chain.IsContractFunc = func(ctx context.Context, a domain.Address) (bool, error) {
		if a == addr(2) {
			return false, boom
		}
		return a == contractAddr || a == protocolAddr, nil
	}

	_, err := f.engine.HandleTransaction(context.Background(), fundingTx("0xf1", addr(1), addr(2)))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUpstreamQuery)
	assert.ErrorIs(t, err, boom)

	// the statistics scan fails before funding runs
	assert.False(t, f.engine.IsTracked(addr(1)))
	assert.Zero(t, f.engine.Pending())
	assert.Equal(t, 1, f.analytics.bot[domain.AlertCategoryFunding])

	f.chain.IsContractFunc = nil
	findings, err := f.engine.HandleTransaction(context.Background(), fundingTx("0xf1", addr(1), addr(2)))
	require.NoError(t, err)
	assert.Len(t, findings, 2)
	assert.True(t, f.engine.IsTracked(addr(1)))
	assert.True(t, f.engine.IsTracked(addr(2)))

	// the retry continues the scan instead of counting it again
	assert.Equal(t, 2, f.analytics.bot[domain.AlertCategoryFunding])
	assert.Equal(t, 2, f.analytics.alert[domain.AlertCategoryFunding])
	assert.Equal(t, 1, f.analytics.bot[domain.AlertCategoryInteraction])
}

func TestHandleTransaction_RetryDoesNotRepeatDeployment(t *testing.T) {
	f := newFixture(t, 10, 50)
	_, err := f.engine.HandleTransaction(context.Background(), fundingTx("0xf1", addr(1)))
	require.NoError(t, err)

	boom := errors.New("rpc timeout")
	failures := 1
	f.chain.IsContractFunc = func(ctx context.Context, a domain.Address) (bool, error) {
		if a == contractAddr && failures > 0 {
			failures--
			return false, boom
		}
		return a == contractAddr || a == protocolAddr, nil
	}
	tx := &domain.Transaction{
		Hash: "0xd1", From: addr(1), To: contractAddr, Timestamp: 3000,
		Traces: []domain.Trace{{Type: domain.TraceTypeCreate, From: addr(1), CreatedAddress: addr(0x100)}},
	}

	_, err = f.engine.HandleTransaction(context.Background(), tx)
	require.ErrorIs(t, err, ErrUpstreamQuery)
	assert.Equal(t, 1, f.engine.Pending())

	findings, err := f.engine.HandleTransaction(context.Background(), tx)
	require.NoError(t, err)
	require.Len(t, findings, 2)
	assert.Equal(t, domain.AlertCategoryDeployment, findings[0].Category)
	assert.Equal(t, domain.AlertCategoryInteraction, findings[1].Category)
	assert.Zero(t, f.engine.Pending())

	assert.Equal(t, 1, f.analytics.bot[domain.AlertCategoryDeployment])
	assert.Equal(t, 1, f.analytics.alert[domain.AlertCategoryDeployment])
	assert.Equal(t, 2, f.analytics.bot[domain.AlertCategoryInteraction])
	assert.Equal(t, 1, f.analytics.alert[domain.AlertCategoryInteraction])
}

func TestHandleTransaction_OtherTransactionStartsFresh(t *testing.T) {
	f := newFixture(t, 10, 50)
	failures := 1
	f.chain.IsContractFunc = func(ctx context.Context, a domain.Address) (bool, error) {
		if a == addr(2) && failures > 0 {
			failures--
			return false, errors.New("rpc timeout")
		}
		return a == contractAddr || a == protocolAddr, nil
	}

	_, err := f.engine.HandleTransaction(context.Background(), fundingTx("0xf1", addr(1), addr(2)))
	require.Error(t, err)

	findings, err := f.engine.HandleTransaction(context.Background(), fundingTx("0xf2", addr(1), addr(2)))
	require.NoError(t, err)
	assert.Len(t, findings, 2)
	// 0xf2 is scanned from its first trace
	assert.Equal(t, 3, f.analytics.bot[domain.AlertCategoryFunding])
	assert.Equal(t, 2, f.analytics.bot[domain.AlertCategoryInteraction])
}

func TestHandleTransaction_ExtractorFailure(t *testing.T) {
	f := newFixture(t, 10, 50)
	_, err := f.engine.HandleTransaction(context.Background(), fundingTx("0xf1", addr(1)))
	require.NoError(t, err)

	f.extractor.err = errors.New("storage read failed")
	f.extractor.storage = map[domain.Address][]domain.Address{addr(0x100): {addr(0x11)}}
	tx := &domain.Transaction{
		Hash: "0xd1", From: addr(1), To: contractAddr, Timestamp: 3000,
		Traces: []domain.Trace{{Type: domain.TraceTypeCreate, From: addr(1), CreatedAddress: addr(0x100)}},
	}
	_, err = f.engine.HandleTransaction(context.Background(), tx)
	assert.ErrorIs(t, err, ErrUpstreamQuery)
	// interaction stage was not reached
	assert.Equal(t, 1, f.analytics.bot[domain.AlertCategoryInteraction])
	assert.Equal(t, 1, f.analytics.alert[domain.AlertCategoryDeployment])

	f.extractor.err = nil
	findings, err := f.engine.HandleTransaction(context.Background(), tx)
	require.NoError(t, err)
	require.Len(t, findings, 2)
	assert.Equal(t, []domain.Address{addr(0x11)}, findings[0].Contained)
	assert.Equal(t, 1, f.analytics.bot[domain.AlertCategoryDeployment])
	assert.Equal(t, 1, f.analytics.alert[domain.AlertCategoryDeployment])
}

func TestHandleTransaction_ClassifiesEachAddressOnce(t *testing.T) {
	f := newFixture(t, 10, 50)

	_, err := f.engine.HandleTransaction(context.Background(), fundingTx("0xf1", addr(1), addr(2)))
	require.NoError(t, err)

	assert.Equal(t, 1, f.chain.queried[protocolAddr])
	assert.Equal(t, 1, f.chain.queried[addr(1)])
	assert.Equal(t, 1, f.chain.queried[addr(2)])
}

func TestHandleTransaction_TrackedSenderToProtocolRaisesNoInteraction(t *testing.T) {
	f := newFixture(t, 10, 50)
	funded := addr(1)
	_, err := f.engine.HandleTransaction(context.Background(), fundingTx("0xf1", funded))
	require.NoError(t, err)
	require.True(t, f.engine.IsTracked(funded))

	tx := &domain.Transaction{Hash: "0xp1", From: funded, To: protocolAddr, Timestamp: 2000}
	findings, err := f.engine.HandleTransaction(context.Background(), tx)
	require.NoError(t, err)
	assert.Empty(t, findings)
	assert.Zero(t, f.analytics.alert[domain.AlertCategoryInteraction])
	assert.Equal(t, 2, f.analytics.bot[domain.AlertCategoryInteraction])
}

func TestHandleTransaction_SyncPrecedesIncrements(t *testing.T) {
	f := newFixture(t, 10, 50)
	_, err := f.engine.HandleTransaction(context.Background(), fundingTx("0xf1", addr(1)))
	require.NoError(t, err)

	require.NotEmpty(t, f.analytics.calls)
	assert.Equal(t, "sync:1000", f.analytics.calls[0])
	assert.Equal(t, []string{
		"sync:1000",
		"bot:INTERACTION",
		"bot:FUNDING",
		"alert:FUNDING",
	}, f.analytics.calls)
}
