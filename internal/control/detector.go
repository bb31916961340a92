// Package control wires configuration into running detectors and owns their lifecycle.
package control

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vietddude/fundwatch/internal/core/config"
	"github.com/vietddude/fundwatch/internal/core/domain"
	"github.com/vietddude/fundwatch/internal/detection/analytics"
	"github.com/vietddude/fundwatch/internal/detection/engine"
	"github.com/vietddude/fundwatch/internal/detection/extractor"
	"github.com/vietddude/fundwatch/internal/indexing/emitter"
	"github.com/vietddude/fundwatch/internal/indexing/health"
	"github.com/vietddude/fundwatch/internal/indexing/indexer"
	"github.com/vietddude/fundwatch/internal/indexing/metrics"
	"github.com/vietddude/fundwatch/internal/infra/chain/evm"
	"github.com/vietddude/fundwatch/internal/infra/kafka"
	redisclient "github.com/vietddude/fundwatch/internal/infra/redis"
	"github.com/vietddude/fundwatch/internal/infra/rpc"
	"github.com/vietddude/fundwatch/internal/infra/rpc/provider"
	"github.com/vietddude/fundwatch/internal/infra/storage/postgres"
)

const (
	lockTTL     = 30 * time.Second
	lockRefresh = 10 * time.Second
)

// ErrChainOwned is returned when another instance holds a chain's lock.
var ErrChainOwned = errors.New("chain is owned by another instance")

// Detector is the main application struct that manages the per-chain
// detection engines, their transaction sources and the finding sinks.
type Detector struct {
	cfg   config.AppConfig
	log   *slog.Logger
	owner string

	sink     *emitter.Fanout
	redis    *redisclient.Client
	db       *postgres.DB
	consumer *kafka.Consumer

	healthMon    *health.Monitor
	healthServer *health.Server
	grpcServer   *health.GRPCServer

	clients map[domain.ChainID]*rpc.Client
	chains  []*chainRuntime

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewDetector connects the configured stores and sinks. Engines are built in
// Start because they query the chain.
func NewDetector(cfg config.AppConfig) (*Detector, error) {
	d := &Detector{
		cfg:       cfg,
		log:       slog.Default().With("component", "detector"),
		owner:     uuid.NewString(),
		healthMon: health.NewMonitor(health.DefaultThresholds),
		clients:   make(map[domain.ChainID]*rpc.Client),
	}
	d.healthServer = health.NewServer(d.healthMon, cfg.Server.Port)
	if cfg.Server.GRPCPort > 0 {
		d.grpcServer = health.NewGRPCServer(cfg.Server.GRPCPort)
	}

	if cfg.Redis.Enabled() {
		client, err := redisclient.NewClient(cfg.Redis)
		if err != nil {
			return nil, fmt.Errorf("failed to init redis: %w", err)
		}
		d.redis = client
		d.log.Info("Using Redis for analytics snapshots and chain locks")
	}

	sinks, err := d.buildSinks()
	if err != nil {
		d.closeStores()
		return nil, err
	}
	fan, err := emitter.NewFanout(slog.Default(), sinks...)
	if err != nil {
		d.closeStores()
		return nil, fmt.Errorf("failed to init sink pool: %w", err)
	}
	d.sink = fan

	for _, chainCfg := range cfg.Chains {
		d.clients[chainCfg.ChainID] = newRPCClient(chainCfg)
	}

	if cfg.Source.Kind == config.SourceKafka {
		consumer, err := kafka.NewConsumer(cfg.Kafka, slog.Default())
		if err != nil {
			_ = d.sink.Close()
			d.closeStores()
			return nil, fmt.Errorf("failed to init kafka consumer: %w", err)
		}
		d.consumer = consumer
	}

	return d, nil
}

func (d *Detector) buildSinks() ([]emitter.Emitter, error) {
	sinks := []emitter.Emitter{emitter.NewLogEmitter(slog.Default())}
	fail := func(err error) ([]emitter.Emitter, error) {
		for _, s := range sinks {
			_ = s.Close()
		}
		return nil, err
	}

	if len(d.cfg.Kafka.Brokers) > 0 && d.cfg.Kafka.FindingTopic != "" {
		producer, err := kafka.NewProducer(d.cfg.Kafka)
		if err != nil {
			return fail(fmt.Errorf("failed to init kafka producer: %w", err))
		}
		sinks = append(sinks, producer)
		d.log.Info("Kafka finding sink enabled", "topic", d.cfg.Kafka.FindingTopic)
	}

	if d.cfg.Database.Enabled() {
		db, err := postgres.NewDB(context.Background(), d.cfg.Database)
		if err != nil {
			return fail(fmt.Errorf("failed to init db: %w", err))
		}
		if err := db.Migrate(context.Background()); err != nil {
			_ = db.Close()
			return fail(err)
		}
		d.db = db
		sinks = append(sinks, postgres.NewFindingRepo(db))
		d.log.Info("PostgreSQL finding archive enabled")
	}

	if d.cfg.Telegram.Enabled() {
		tg, err := emitter.NewTelegramEmitter(d.cfg.Telegram.Token, d.cfg.Telegram.ChatID)
		if err != nil {
			return fail(fmt.Errorf("failed to init telegram: %w", err))
		}
		sinks = append(sinks, tg)
		d.log.Info("Telegram finding sink enabled")
	}

	return sinks, nil
}

func newRPCClient(chainCfg config.ChainConfig) *rpc.Client {
	providers := make([]provider.RPCProvider, 0, len(chainCfg.Providers))
	for _, p := range chainCfg.Providers {
		providers = append(providers, provider.NewHTTPProvider(provider.HTTPConfig{
			Name:      p.Name,
			Endpoint:  p.URL,
			Timeout:   p.Timeout,
			RateLimit: p.RateLimit,
			Chain:     chainCfg.ChainID.Name(),
		}))
	}
	return rpc.NewClient(string(chainCfg.ChainID), providers)
}

// Start builds one engine per chain and runs its transaction source.
func (d *Detector) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	d.cancel = cancel

	for _, chainCfg := range d.cfg.Chains {
		rt, err := d.buildChain(ctx, chainCfg)
		if err != nil {
			d.releaseLocks(context.Background())
			cancel()
			return fmt.Errorf("chain %s: %w", chainCfg.ChainID, err)
		}
		d.chains = append(d.chains, rt)
	}

	d.goRun("health-http", func() {
		if err := d.healthServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			d.log.Error("Health server failed", "error", err)
		}
	})
	if d.grpcServer != nil {
		d.goRun("health-grpc", func() {
			if err := d.grpcServer.Start(); err != nil {
				d.log.Error("gRPC health server failed", "error", err)
			}
		})
	}
	if d.db != nil {
		d.db.StartMetricsCollector(ctx)
	}

	if d.consumer != nil {
		d.goRun("kafka-source", func() { d.runConsumer(ctx) })
	} else {
		for _, rt := range d.chains {
			d.goRun("pipeline-"+rt.name, func() {
				if err := rt.pipeline.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
					d.log.Error("Indexer failed", "chain", rt.name, "error", err)
				}
			})
		}
	}

	if d.redis != nil {
		d.goRun("snapshots", func() { d.runSnapshots(ctx) })
		d.goRun("locks", func() { d.runLockRefresh(ctx) })
	}

	if d.grpcServer != nil {
		d.grpcServer.SetServing(true)
	}
	d.log.Info("Detector started", "chains", len(d.chains), "source", d.cfg.Source.Kind)
	return nil
}

func (d *Detector) buildChain(ctx context.Context, chainCfg config.ChainConfig) (*chainRuntime, error) {
	name := chainCfg.Name
	if name == "" {
		name = chainCfg.ChainID.Name()
	}
	log := slog.Default().With("chain", name)

	if d.redis != nil {
		ok, err := d.redis.AcquireLock(ctx, chainCfg.ChainID, d.owner, lockTTL)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, ErrChainOwned
		}
	}

	client := d.clients[chainCfg.ChainID]
	adapter := evm.NewEVMAdapter(chainCfg.ChainID, client, evm.Options{
		TraceMethod:   chainCfg.TraceMethod,
		DisableTraces: chainCfg.DisableTraces,
	}, log)

	det := d.cfg.Detector
	window := analytics.New(analytics.Config{
		Window:     det.Analytics.Window,
		Bucket:     det.Analytics.Bucket,
		MinSamples: det.Analytics.MinSamples,
		Defaults:   det.DefaultAnomalyScore.ByCategory(),
	})
	if d.redis != nil {
		if err := window.Load(ctx, d.redis, chainCfg.ChainID); err != nil {
			log.Warn("Starting with empty analytics window", "error", err)
		}
	}

	eng, err := engine.Build(ctx, engine.Config{
		AddressLimit:          det.AddressLimit,
		MaxFindingsPerRequest: det.MaxFindingsPerRequest,
		DeveloperAbbreviation: det.DeveloperAbbreviation,
		ProtocolName:          det.ProtocolName,
		ProtocolAddresses:     det.ProtocolAddresses,
	}, engine.Deps{
		Chain:     adapter,
		Extractor: extractor.New(adapter, extractor.Config{StorageSlots: det.StorageSlots}),
		Analytics: window,
		Logger:    slog.Default(),
		OnEvict: func(domain.Address) {
			metrics.TrackerEvictions.WithLabelValues(name).Inc()
		},
	})
	if err != nil {
		return nil, err
	}
	if eng.ChainID() != chainCfg.ChainID {
		return nil, fmt.Errorf("%w: node reports chain %s", engine.ErrUnsupportedChain, eng.ChainID())
	}

	rt := &chainRuntime{
		id:        chainCfg.ChainID,
		name:      name,
		engine:    eng,
		window:    window,
		processor: indexer.NewProcessor(chainCfg.ChainID, eng, d.sink, log),
	}
	if d.consumer != nil {
		rt.stream = &streamStatus{chainID: chainCfg.ChainID, engine: eng}
		d.healthMon.Register(string(chainCfg.ChainID), rt.stream, client)
	} else {
		rt.pipeline = indexer.NewPipeline(indexer.Config{
			ChainID:      chainCfg.ChainID,
			Source:       adapter,
			Detector:     eng,
			Emitter:      d.sink,
			ScanInterval: chainCfg.ScanInterval,
			StartBlock:   chainCfg.StartBlock,
			Logger:       log,
		})
		d.healthMon.Register(string(chainCfg.ChainID), rt.pipeline, client)
	}
	return rt, nil
}

// Stop stops the sources, flushes every pending finding and persists the
// analytics windows.
func (d *Detector) Stop(ctx context.Context) error {
	d.log.Info("Stopping detector...")
	if d.grpcServer != nil {
		d.grpcServer.SetServing(false)
	}

	for _, rt := range d.chains {
		if rt.pipeline != nil {
			_ = rt.pipeline.Stop()
		}
		if rt.stream != nil {
			rt.stream.running.Store(false)
		}
	}
	if d.cancel != nil {
		d.cancel()
	}

	var errs []error
	if err := d.healthServer.Stop(ctx); err != nil {
		errs = append(errs, fmt.Errorf("health server: %w", err))
	}
	if d.grpcServer != nil {
		d.grpcServer.Stop()
	}
	if d.consumer != nil {
		if err := d.consumer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("kafka consumer: %w", err))
		}
	}
	d.wg.Wait()

	for _, rt := range d.chains {
		if err := rt.flush(ctx); err != nil {
			errs = append(errs, fmt.Errorf("flush %s: %w", rt.name, err))
		}
	}
	d.persistSnapshots(ctx)
	d.releaseLocks(ctx)

	if err := d.sink.Close(); err != nil {
		errs = append(errs, fmt.Errorf("sinks: %w", err))
	}
	for _, c := range d.clients {
		_ = c.Close()
	}
	d.closeStores()
	return errors.Join(errs...)
}

func (d *Detector) goRun(name string, fn func()) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.log.Debug("Worker started", "worker", name)
		fn()
	}()
}

func (d *Detector) closeStores() {
	if d.redis != nil {
		if err := d.redis.Close(); err != nil {
			d.log.Warn("Failed to close Redis", "error", err)
		}
	}
	if d.db != nil {
		if err := d.db.Close(); err != nil {
			d.log.Warn("Failed to close database", "error", err)
		}
	}
}
