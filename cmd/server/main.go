package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/knowton/marketplace/internal/auth"
	"github.com/knowton/marketplace/internal/bond"
	"github.com/knowton/marketplace/internal/chain"
	"github.com/knowton/marketplace/internal/events"
	"github.com/knowton/marketplace/internal/fraction"
	"github.com/knowton/marketplace/internal/governance"
	"github.com/knowton/marketplace/internal/ipnft"
	"github.com/knowton/marketplace/internal/marketplace/book"
	markethandler "github.com/knowton/marketplace/internal/marketplace/handler"
	marketmetrics "github.com/knowton/marketplace/internal/marketplace/metrics"
	"github.com/knowton/marketplace/internal/marketplace/service"
	"github.com/knowton/marketplace/internal/marketplace/store/idempotency"
	"github.com/knowton/marketplace/internal/marketplace/store/order"
	"github.com/knowton/marketplace/internal/marketplace/store/trade"
	"github.com/knowton/marketplace/internal/oracle"
	"github.com/knowton/marketplace/internal/platform/config"
	"github.com/knowton/marketplace/internal/platform/httpserver"
	platformkafka "github.com/knowton/marketplace/internal/platform/kafka"
	"github.com/knowton/marketplace/internal/platform/logger"
	"github.com/knowton/marketplace/internal/platform/metrics"
	"github.com/knowton/marketplace/internal/platform/postgres"
	platformredis "github.com/knowton/marketplace/internal/platform/redis"
	"github.com/knowton/marketplace/internal/risk"
	"github.com/knowton/marketplace/internal/royalty"
	"github.com/knowton/marketplace/internal/settlement"
	settlemetrics "github.com/knowton/marketplace/internal/settlement/metrics"
	httptransport "github.com/knowton/marketplace/internal/transport/http"
)

// main wires configuration, storage, the domain services and the HTTP
// router, then runs everything under one errgroup until a signal arrives.
// Business logic lives in the internal service packages.
func main() {
	cfg := config.FromEnv()
	log := logger.New()

	if err := run(cfg, log); err != nil {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Server, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Persistence. Postgres backs orders and trades when configured,
	// otherwise everything runs on in-memory stores.
	db, err := postgres.Open(cfg.Postgres)
	if err != nil {
		return fmt.Errorf("open postgres: %w", err)
	}
	if db != nil {
		defer db.Close()
	}

	var (
		orders       service.OrderStore
		trades       service.TradeStore
		settleTrades settlement.TradeStore
	)
	if db != nil {
		orderPG := order.NewPostgres(db)
		tradePG := trade.NewPostgres(db)
		if err := orderPG.EnsureSchema(ctx); err != nil {
			return fmt.Errorf("ensure order schema: %w", err)
		}
		if err := tradePG.EnsureSchema(ctx); err != nil {
			return fmt.Errorf("ensure trade schema: %w", err)
		}
		orders, trades, settleTrades = orderPG, tradePG, tradePG
		log.Info("using postgres stores")
	} else {
		tradeMem := trade.NewMemoryStore()
		orders, trades, settleTrades = order.NewMemoryStore(), tradeMem, tradeMem
		log.Info("using in-memory stores")
	}

	var redisClient *platformredis.Client
	var idem service.IdempotencyStore
	if cfg.Redis.URL != "" {
		redisClient, err = platformredis.New(cfg.Redis)
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		defer redisClient.Close()
		idem = idempotency.NewRedisStore(redisClient, cfg.IdempotencyTTL)
	} else {
		idem = idempotency.NewMemoryStore(cfg.IdempotencyTTL)
	}

	// Event publishing is best-effort: without brokers the services run
	// with a no-op publisher.
	var publisher events.Publisher = events.NoopPublisher{}
	if len(cfg.Kafka.Brokers) > 0 {
		kp, err := platformkafka.NewPublisher(cfg.Kafka.Brokers, log)
		if err != nil {
			return fmt.Errorf("connect kafka: %w", err)
		}
		defer kp.Close()
		if err := kp.EnsureTopics(ctx,
			events.TopicOrders,
			events.TopicTrades,
			events.TopicSettlements,
			events.TopicDistributions,
		); err != nil {
			return fmt.Errorf("ensure kafka topics: %w", err)
		}
		publisher = events.NewKafkaPublisher(kp, log)
	}

	// TODO: swap in a JSON-RPC chain client once the settlement contract
	// ABI is frozen; cfg.Chain carries the connection settings for it.
	chainClient := chain.NewSimulatedClient()

	platformMetrics := metrics.New()

	tokens := ipnft.NewService(log, ipnft.NewMemoryStore(), chainClient, nil)
	vaults := fraction.NewService(log, fraction.NewMemoryStore(), tokens, chainClient)
	tokens.SetShareLedger(vaults)

	royalties := royalty.NewService(
		log,
		royalty.NewMemoryPolicyStore(),
		royalty.NewMemoryDistributionStore(),
		tokens,
		publisher,
	)

	worker := settlement.NewWorker(
		log,
		chainClient,
		settleTrades,
		royalties,
		tokens,
		publisher,
		settlemetrics.New(),
		cfg.SettlementWorkers,
	)

	marketplace := service.New(
		log,
		book.NewManager(),
		orders,
		trades,
		idem,
		tokens,
		worker,
		publisher,
		marketmetrics.New(),
	)
	if err := marketplace.RestoreAllBooks(ctx); err != nil {
		return fmt.Errorf("restore order books: %w", err)
	}

	var valuer bond.Valuer
	var oracleClient *oracle.Client
	if cfg.Oracle.URL != "" {
		oracleClient = oracle.NewClient(cfg.Oracle.URL)
		valuer = oracleClient
	}
	bonds := bond.NewService(log, bond.NewMemoryStore(), tokens, risk.NewEngine(), valuer, chainClient)

	proposals := governance.NewService(log, governance.NewMemoryStore(), vaults)

	tokenManager := auth.NewTokenManager(cfg.JWTSigningKey)

	router := httptransport.NewRouter(httptransport.RouterConfig{
		Logger:  log,
		Metrics: platformMetrics,
		Health:  healthCheck(db, redisClient, oracleClient),
		Handlers: []httptransport.Registrar{
			markethandler.New(marketplace, log, tokenManager),
			ipnft.NewHandler(tokens, log, tokenManager),
			fraction.NewHandler(vaults, log, tokenManager),
			royalty.NewHandler(royalties, log, tokenManager),
			bond.NewHandler(bonds, log, tokenManager),
			governance.NewHandler(proposals, log, tokenManager),
		},
	})

	srv := httpserver.New(cfg.Addr, router)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return worker.Run(ctx)
	})
	g.Go(func() error {
		return marketplace.RunExpirySweep(ctx, cfg.OrderSweepInterval)
	})
	g.Go(func() error {
		log.Info("starting knowton marketplace", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// healthCheck probes the optional backing services. Components that are not
// configured are omitted from the report.
func healthCheck(db *sql.DB, redisClient *platformredis.Client, oracleClient *oracle.Client) func() map[string]string {
	return func() map[string]string {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()

		status := map[string]string{"server": "ok"}
		if db != nil {
			status["postgres"] = probe(db.PingContext(ctx))
		}
		if redisClient != nil {
			status["redis"] = probe(redisClient.Health(ctx))
		}
		if oracleClient != nil {
			status["oracle"] = probe(oracleClient.Health(ctx))
		}
		return status
	}
}

func probe(err error) string {
	if err != nil {
		return err.Error()
	}
	return "ok"
}
