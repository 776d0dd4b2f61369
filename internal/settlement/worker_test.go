package settlement

import (
	"context"
	"errors"
	"log/slog"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/fortytw2/leaktest"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/knowton/marketplace/internal/chain"
	"github.com/knowton/marketplace/internal/events"
	"github.com/knowton/marketplace/internal/marketplace/models"
	"github.com/knowton/marketplace/internal/settlement/metrics"
	"github.com/knowton/marketplace/internal/settlement/mocks"
)

// Prometheus collectors register globally, so tests share one instance.
var (
	metricsOnce sync.Once
	testMetrics *metrics.Metrics
)

func sharedMetrics() *metrics.Metrics {
	metricsOnce.Do(func() { testMetrics = metrics.New() })
	return testMetrics
}

// flakyChain fails with a retryable error a fixed number of times, then
// settles.
type flakyChain struct {
	chain.SimulatedClient
	mu       sync.Mutex
	failures int
}

func (c *flakyChain) SettleTrade(ctx context.Context, params chain.SettleParams) (string, error) {
	c.mu.Lock()
	if c.failures > 0 {
		c.failures--
		c.mu.Unlock()
		return "", errors.New("network error")
	}
	c.mu.Unlock()
	return c.SimulatedClient.SettleTrade(ctx, params)
}

// revertChain always fails permanently.
type revertChain struct {
	chain.SimulatedClient
}

func (*revertChain) SettleTrade(context.Context, chain.SettleParams) (string, error) {
	return "", errors.New("execution reverted: insufficient escrow")
}

func matchedTrade() *models.Trade {
	return &models.Trade{
		ID:         uuid.New(),
		TokenID:    uuid.New(),
		BuyOrderID: uuid.New(),
		SellOrderID: uuid.New(),
		Buyer:      "0xbuyer",
		Seller:     "0xseller",
		Price:      big.NewInt(1000),
		Quantity:   big.NewInt(2),
		TakerSide:  models.SideBuy,
		Status:     models.TradeMatched,
		ExecutedAt: time.Now(),
	}
}

func fastRetry() chain.RetryConfig {
	return chain.RetryConfig{
		MaxRetries:     3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
		BackoffFactor:  2.0,
	}
}

func TestWorkerSettlesTradeAfterTransientFailures(t *testing.T) {
	defer leaktest.Check(t)()

	ctrl := gomock.NewController(t)
	trades := mocks.NewMockTradeStore(ctrl)
	royalties := mocks.NewMockRoyaltyDistributor(ctrl)
	owners := mocks.NewMockOwnershipRecorder(ctrl)

	trade := matchedTrade()
	done := make(chan struct{})

	trades.EXPECT().Update(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, updated *models.Trade) error {
			assert.Equal(t, models.TradeSettled, updated.Status)
			assert.NotEmpty(t, updated.TxHash)
			assert.NotNil(t, updated.SettledAt)
			return nil
		})
	owners.EXPECT().RecordTransfer(gomock.Any(), trade.TokenID, "0xseller", "0xbuyer", gomock.Any()).Return(nil)
	royalties.EXPECT().DistributeOnSale(gomock.Any(), gomock.Any()).DoAndReturn(
		func(context.Context, *models.Trade) error {
			close(done)
			return nil
		})

	w := NewWorker(slog.New(slog.DiscardHandler), &flakyChain{failures: 2},
		trades, royalties, owners, events.NoopPublisher{}, sharedMetrics(), 2)
	w.retry = fastRetry()

	ctx, cancel := context.WithCancel(context.Background())
	runDone := make(chan struct{})
	go func() {
		_ = w.Run(ctx)
		close(runDone)
	}()

	w.Enqueue(trade)

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("settlement did not complete")
	}
	cancel()
	<-runDone
}

func TestWorkerMarksTradeFailedOnPermanentError(t *testing.T) {
	defer leaktest.Check(t)()

	ctrl := gomock.NewController(t)
	trades := mocks.NewMockTradeStore(ctrl)
	royalties := mocks.NewMockRoyaltyDistributor(ctrl)
	owners := mocks.NewMockOwnershipRecorder(ctrl)

	done := make(chan struct{})
	trades.EXPECT().Update(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, updated *models.Trade) error {
			assert.Equal(t, models.TradeFailed, updated.Status)
			close(done)
			return nil
		})

	w := NewWorker(slog.New(slog.DiscardHandler), &revertChain{},
		trades, royalties, owners, events.NoopPublisher{}, sharedMetrics(), 1)
	w.retry = fastRetry()

	ctx, cancel := context.WithCancel(context.Background())
	runDone := make(chan struct{})
	go func() {
		_ = w.Run(ctx)
		close(runDone)
	}()

	w.Enqueue(matchedTrade())

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("failure was not recorded")
	}
	cancel()
	<-runDone
}

func TestWorkerStopsOnContextCancel(t *testing.T) {
	defer leaktest.Check(t)()

	ctrl := gomock.NewController(t)
	w := NewWorker(slog.New(slog.DiscardHandler), chain.NewSimulatedClient(),
		mocks.NewMockTradeStore(ctrl), mocks.NewMockRoyaltyDistributor(ctrl),
		mocks.NewMockOwnershipRecorder(ctrl), events.NoopPublisher{}, sharedMetrics(), 3)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- w.Run(ctx) }()

	cancel()
	select {
	case err := <-errCh:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("worker did not stop")
	}
}
