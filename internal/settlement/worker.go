package settlement

import (
	"context"
	"log/slog"
	"math/big"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/knowton/marketplace/internal/chain"
	"github.com/knowton/marketplace/internal/events"
	"github.com/knowton/marketplace/internal/marketplace/models"
	"github.com/knowton/marketplace/internal/settlement/metrics"
)

//go:generate mockgen -source=worker.go -destination=mocks/mocks.go -package=mocks

// TradeStore is the slice of trade persistence the worker needs.
type TradeStore interface {
	Update(ctx context.Context, t *models.Trade) error
}

// RoyaltyDistributor fans sale proceeds out to royalty beneficiaries.
type RoyaltyDistributor interface {
	DistributeOnSale(ctx context.Context, t *models.Trade) error
}

// OwnershipRecorder reflects settled transfers into the IPNFT registry.
type OwnershipRecorder interface {
	RecordTransfer(ctx context.Context, tokenID uuid.UUID, from, to string, quantity *big.Int) error
}

// Worker settles matched trades on chain. Trades are queued by the
// marketplace service and consumed by a fixed pool of executors; each
// settlement is retried with backoff before the trade is marked failed.
type Worker struct {
	logger    *slog.Logger
	client    chain.Client
	trades    TradeStore
	royalties RoyaltyDistributor
	owners    OwnershipRecorder
	events    events.Publisher
	metrics   *metrics.Metrics
	retry     chain.RetryConfig
	workers   int
	queue     chan *models.Trade
	tracer    trace.Tracer
}

func NewWorker(
	logger *slog.Logger,
	client chain.Client,
	trades TradeStore,
	royalties RoyaltyDistributor,
	owners OwnershipRecorder,
	publisher events.Publisher,
	m *metrics.Metrics,
	workers int,
) *Worker {
	if workers <= 0 {
		workers = 4
	}
	return &Worker{
		logger:    logger,
		client:    client,
		trades:    trades,
		royalties: royalties,
		owners:    owners,
		events:    publisher,
		metrics:   m,
		retry:     chain.DefaultRetryConfig(),
		workers:   workers,
		queue:     make(chan *models.Trade, 1024),
		tracer:    otel.Tracer("settlement"),
	}
}

// Enqueue hands a matched trade to the settlement pool. Blocks when the
// queue is full, applying backpressure to order submission.
func (w *Worker) Enqueue(t *models.Trade) {
	w.queue <- t
	w.metrics.QueueDepth.Inc()
}

// Run consumes the queue until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for range w.workers {
		g.Go(func() error {
			for {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case trade := <-w.queue:
					w.metrics.QueueDepth.Dec()
					w.settle(ctx, trade)
				}
			}
		})
	}
	return g.Wait()
}

func (w *Worker) settle(ctx context.Context, trade *models.Trade) {
	ctx, span := w.tracer.Start(ctx, "settlement.settle")
	defer span.End()

	var txHash string
	err := chain.RetryWithBackoff(ctx, w.retry, func() error {
		var settleErr error
		txHash, settleErr = w.client.SettleTrade(ctx, chain.SettleParams{
			TokenID:  trade.TokenID,
			Seller:   trade.Seller,
			Buyer:    trade.Buyer,
			Quantity: trade.Quantity,
			Payment:  trade.Proceeds(),
		})
		return settleErr
	})
	if err != nil {
		w.fail(ctx, trade, err)
		return
	}

	now := time.Now().UTC()
	trade.Status = models.TradeSettled
	trade.TxHash = txHash
	trade.SettledAt = &now
	if err := w.trades.Update(ctx, trade); err != nil {
		w.logger.ErrorContext(ctx, "persist settled trade",
			"trade_id", trade.ID, "tx_hash", txHash, "error", err)
	}

	if err := w.owners.RecordTransfer(ctx, trade.TokenID, trade.Seller, trade.Buyer, trade.Quantity); err != nil {
		w.logger.ErrorContext(ctx, "record ownership transfer",
			"trade_id", trade.ID, "token_id", trade.TokenID, "error", err)
	}

	// Royalty fan-out happens after the transfer is final so distributions
	// always reference a settled sale.
	if err := w.royalties.DistributeOnSale(ctx, trade); err != nil {
		w.logger.ErrorContext(ctx, "royalty distribution",
			"trade_id", trade.ID, "token_id", trade.TokenID, "error", err)
	}

	w.metrics.SettlementsTotal.WithLabelValues("settled").Inc()
	w.events.Publish(ctx, events.TopicSettlements, events.Marshal(
		"trade.settled", trade.TokenID.String(), map[string]any{
			"trade_id": trade.ID.String(),
			"tx_hash":  txHash,
			"payment":  trade.Proceeds().String(),
		}))
	w.logger.InfoContext(ctx, "trade settled",
		"trade_id", trade.ID, "token_id", trade.TokenID, "tx_hash", txHash)
}

func (w *Worker) fail(ctx context.Context, trade *models.Trade, cause error) {
	trade.Status = models.TradeFailed
	if err := w.trades.Update(ctx, trade); err != nil {
		w.logger.ErrorContext(ctx, "persist failed trade",
			"trade_id", trade.ID, "error", err)
	}
	w.metrics.SettlementsTotal.WithLabelValues("failed").Inc()
	w.events.Publish(ctx, events.TopicSettlements, events.Marshal(
		"trade.settlement_failed", trade.TokenID.String(), map[string]any{
			"trade_id": trade.ID.String(),
			"reason":   cause.Error(),
		}))
	w.logger.ErrorContext(ctx, "trade settlement failed",
		"trade_id", trade.ID, "token_id", trade.TokenID, "error", cause)
}
