package control

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/vietddude/lnbridge/internal/api"
	"github.com/vietddude/lnbridge/internal/core/config"
	"github.com/vietddude/lnbridge/internal/core/worker"
	"github.com/vietddude/lnbridge/internal/dispatch"
	"github.com/vietddude/lnbridge/internal/health"
	"github.com/vietddude/lnbridge/internal/infra/broker"
	"github.com/vietddude/lnbridge/internal/infra/esplora"
	"github.com/vietddude/lnbridge/internal/infra/node/simnode"
	redisclient "github.com/vietddude/lnbridge/internal/infra/redis"
	"github.com/vietddude/lnbridge/internal/infra/storage"
	"github.com/vietddude/lnbridge/internal/infra/storage/memory"
	"github.com/vietddude/lnbridge/internal/infra/storage/postgres"
	"github.com/vietddude/lnbridge/internal/sink"
)

// Bridge is the main application struct. It wires the node, the event
// pipeline and the servers, and owns their lifecycle.
type Bridge struct {
	cfg          config.AppConfig
	node         *simnode.Node
	processor    *Processor
	dispatcher   *dispatch.Dispatcher
	broker       *broker.Connector
	journal      storage.Journal
	db           *postgres.DB
	redisClient  *redisclient.Client
	sinks        *sink.Runner
	pruner       *worker.Pruner
	chain        *esplora.Client
	apiServer    *api.Server
	healthMon    *health.Monitor
	healthServer *health.Server
	log          *slog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewBridge creates a Bridge with all dependencies initialized. A configured
// broker or database that cannot be reached is fatal, Redis is optional.
func NewBridge(ctx context.Context, cfg config.AppConfig) (*Bridge, error) {
	log := slog.Default()
	b := &Bridge{cfg: cfg, log: log}

	// 1. Embedded node
	n, err := simnode.New(
		cfg.Node.BuildConfig(cfg.Logging.Level),
		simnode.Options{
			InitialBalanceSats: cfg.Node.SimBalanceSats,
			ConfirmDelay:       cfg.Node.SimConfirmDelay,
		},
		log,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to build node: %w", err)
	}
	b.node = n

	// 2. Dispatcher, with the broker attached only when configured
	var publisher dispatch.Publisher
	if cfg.Broker.Enabled() {
		conn, err := broker.Dial(cfg.Broker, log)
		if err != nil {
			return nil, err
		}
		b.broker = conn
		publisher = conn
	} else {
		log.Info("Broker not configured, events stay in-process")
	}
	b.dispatcher = dispatch.NewDispatcher(dispatch.NewRegistry(), publisher, log)

	// 3. Journal
	if cfg.Database.URL != "" {
		db, err := postgres.NewDB(ctx, cfg.Database)
		if err != nil {
			b.closeClients()
			return nil, fmt.Errorf("failed to init db: %w", err)
		}
		if err := db.Migrate(ctx); err != nil {
			_ = db.Close()
			b.closeClients()
			return nil, fmt.Errorf("failed to migrate db: %w", err)
		}
		b.db = db
		b.journal = postgres.NewJournal(db)
		log.Info("Using PostgreSQL journal")
	} else {
		b.journal = memory.NewJournal(cfg.Dispatch.JournalCapacity)
		log.Info("Using memory journal", "capacity", cfg.Dispatch.JournalCapacity)
	}

	// 4. Sinks
	sinks := []sink.Sink{sink.NewJournal(b.journal)}
	if cfg.Redis.URL != "" {
		rc, err := redisclient.NewClient(cfg.Redis)
		if err != nil {
			log.Warn("Failed to connect to Redis, stream sink disabled", "error", err)
		} else {
			b.redisClient = rc
			sinks = append(sinks, rc)
		}
	}
	b.sinks = sink.NewRunner(b.dispatcher, cfg.Dispatch.SubscriberCapacity, log, sinks...)
	if p, ok := b.journal.(storage.Pruner); ok && cfg.Dispatch.JournalRetention > 0 {
		b.pruner = worker.NewPruner(cfg.Dispatch.JournalRetention, p, log)
	}

	// 5. Processor and servers
	b.processor = NewProcessor(ProcessorConfig{PollInterval: cfg.Node.PollInterval}, n, b.dispatcher, log)

	svc := api.NewService(b.processor, b.dispatcher, b.journal, cfg.Dispatch.SubscriberCapacity, log)
	b.apiServer = api.NewServer(cfg.API.Listen, svc, cfg.API.CORSOrigins)

	b.chain = esplora.NewClient(cfg.Node.EsploraURL, 5*time.Second)
	b.healthMon = health.NewMonitor(b.processor, b.dispatcher)
	b.healthMon.Register("esplora", b.chain)
	if b.broker != nil {
		b.healthMon.Register("broker", b.broker)
	}
	if b.redisClient != nil {
		b.healthMon.Register("redis", b.redisClient)
	}
	if b.db != nil {
		b.healthMon.Register("database", b.db)
	}
	b.healthServer = health.NewServer(b.healthMon, cfg.Server.Port)

	return b, nil
}

// Processor returns the event processor.
func (b *Bridge) Processor() *Processor {
	return b.processor
}

// Journal returns the event journal.
func (b *Bridge) Journal() storage.Journal {
	return b.journal
}

// Start starts the node and all background components.
func (b *Bridge) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	b.cancel = cancel

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		b.sinks.Run(runCtx)
	}()

	if err := b.processor.Start(runCtx); err != nil {
		cancel()
		b.wg.Wait()
		return err
	}
	b.log.Info("Node started", "node_id", b.processor.NodeID(), "network", b.cfg.Node.Network)

	go func() {
		if err := b.apiServer.Start(); err != nil {
			b.log.Error("API server failed", "error", err)
		}
	}()

	go func() {
		if err := b.healthServer.Start(); err != nil {
			b.log.Error("Health server failed", "error", err)
		}
	}()

	if b.pruner != nil {
		b.wg.Add(1)
		go func() {
			defer b.wg.Done()
			b.pruner.Start(runCtx)
		}()
	}

	if b.db != nil {
		b.db.StartMetricsCollector(runCtx)
	}
	return nil
}

// Stop stops the servers, the processor and the sinks, then closes clients.
func (b *Bridge) Stop(ctx context.Context) error {
	b.log.Info("Stopping bridge...")

	var errs []error
	if err := b.apiServer.Stop(ctx); err != nil {
		errs = append(errs, fmt.Errorf("api server: %w", err))
	}
	if err := b.processor.Stop(ctx); err != nil {
		errs = append(errs, fmt.Errorf("processor: %w", err))
	}

	if b.cancel != nil {
		b.cancel()
	}
	b.wg.Wait()

	if err := b.healthServer.Stop(ctx); err != nil {
		errs = append(errs, fmt.Errorf("health server: %w", err))
	}
	if err := b.journal.Close(); err != nil {
		errs = append(errs, fmt.Errorf("journal: %w", err))
	}
	b.closeClients()

	return errors.Join(errs...)
}

func (b *Bridge) closeClients() {
	if b.chain != nil {
		_ = b.chain.Close()
	}
	if b.redisClient != nil {
		if err := b.redisClient.Close(); err != nil {
			b.log.Warn("Failed to close Redis", "error", err)
		}
	}
	if b.broker != nil {
		if err := b.broker.Close(); err != nil {
			b.log.Warn("Failed to close broker connection", "error", err)
		}
	}
}
