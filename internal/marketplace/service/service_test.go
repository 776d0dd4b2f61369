package service

import (
	"context"
	"log/slog"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/knowton/marketplace/internal/events"
	"github.com/knowton/marketplace/internal/marketplace/book"
	"github.com/knowton/marketplace/internal/marketplace/metrics"
	"github.com/knowton/marketplace/internal/marketplace/models"
	"github.com/knowton/marketplace/internal/marketplace/store/idempotency"
	orderstore "github.com/knowton/marketplace/internal/marketplace/store/order"
	tradestore "github.com/knowton/marketplace/internal/marketplace/store/trade"
	dErrors "github.com/knowton/marketplace/pkg/domain-errors"
)

// Prometheus collectors register globally, so tests share one instance.
var (
	metricsOnce sync.Once
	testMetrics *metrics.Metrics
)

type allowAllSeller struct{}

func (allowAllSeller) AuthorizeSell(context.Context, uuid.UUID, string) error { return nil }

type denySeller struct{}

func (denySeller) AuthorizeSell(context.Context, uuid.UUID, string) error {
	return dErrors.New(dErrors.CodeForbidden, "seller does not own token")
}

type captureQueue struct {
	mu     sync.Mutex
	trades []*models.Trade
}

func (q *captureQueue) Enqueue(t *models.Trade) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.trades = append(q.trades, t)
}

func (q *captureQueue) all() []*models.Trade {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]*models.Trade(nil), q.trades...)
}

type fixture struct {
	svc    *Service
	orders *orderstore.MemoryStore
	trades *tradestore.MemoryStore
	queue  *captureQueue
}

func newFixture(t *testing.T, seller SellAuthorizer) *fixture {
	t.Helper()
	metricsOnce.Do(func() { testMetrics = metrics.New() })
	orders := orderstore.NewMemoryStore()
	trades := tradestore.NewMemoryStore()
	queue := &captureQueue{}
	svc := New(
		slog.New(slog.DiscardHandler),
		book.NewManager(),
		orders,
		trades,
		idempotency.NewMemoryStore(time.Hour),
		seller,
		queue,
		events.NoopPublisher{},
		testMetrics,
	)
	return &fixture{svc: svc, orders: orders, trades: trades, queue: queue}
}

func limitReq(token uuid.UUID, owner string, side models.Side, price, qty int64) SubmitRequest {
	return SubmitRequest{
		TokenID:  token,
		Owner:    owner,
		Side:     side,
		Type:     models.TypeLimit,
		Price:    big.NewInt(price),
		Quantity: big.NewInt(qty),
	}
}

func TestSubmitValidation(t *testing.T) {
	f := newFixture(t, allowAllSeller{})
	ctx := context.Background()
	token := uuid.New()

	cases := []struct {
		name string
		req  SubmitRequest
	}{
		{"missing token", SubmitRequest{Owner: "a", Side: models.SideBuy, Type: models.TypeLimit, Price: big.NewInt(1), Quantity: big.NewInt(1)}},
		{"missing owner", limitReq(token, "", models.SideBuy, 1, 1)},
		{"bad side", SubmitRequest{TokenID: token, Owner: "a", Side: "LONG", Type: models.TypeLimit, Price: big.NewInt(1), Quantity: big.NewInt(1)}},
		{"limit without price", SubmitRequest{TokenID: token, Owner: "a", Side: models.SideBuy, Type: models.TypeLimit, Quantity: big.NewInt(1)}},
		{"market with price", SubmitRequest{TokenID: token, Owner: "a", Side: models.SideBuy, Type: models.TypeMarket, Price: big.NewInt(1), Quantity: big.NewInt(1)}},
		{"zero quantity", limitReq(token, "a", models.SideBuy, 1, 0)},
		{"negative price", limitReq(token, "a", models.SideBuy, -5, 1)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.Submit(ctx, tc.req)
			require.Error(t, err)
			assert.True(t, dErrors.Is(err, dErrors.CodeBadRequest), "want bad_request, got %v", err)
		})
	}
}

func TestSubmitSellRequiresAuthorization(t *testing.T) {
	f := newFixture(t, denySeller{})

	_, err := f.svc.Submit(context.Background(), limitReq(uuid.New(), "alice", models.SideSell, 100, 1))

	require.Error(t, err)
	assert.True(t, dErrors.Is(err, dErrors.CodeForbidden))
}

func TestSubmitRestsAndPersists(t *testing.T) {
	f := newFixture(t, allowAllSeller{})
	ctx := context.Background()
	token := uuid.New()

	res, err := f.svc.Submit(ctx, limitReq(token, "alice", models.SideSell, 100, 5))
	require.NoError(t, err)
	assert.Empty(t, res.Trades)
	assert.Equal(t, models.StatusOpen, res.Order.Status)

	stored, err := f.orders.Get(ctx, res.Order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusOpen, stored.Status)
}

func TestSubmitMatchesAndSettles(t *testing.T) {
	f := newFixture(t, allowAllSeller{})
	ctx := context.Background()
	token := uuid.New()

	ask, err := f.svc.Submit(ctx, limitReq(token, "alice", models.SideSell, 100, 5))
	require.NoError(t, err)

	bid, err := f.svc.Submit(ctx, limitReq(token, "bob", models.SideBuy, 120, 5))
	require.NoError(t, err)

	require.Len(t, bid.Trades, 1)
	trade := bid.Trades[0]
	assert.Equal(t, int64(100), trade.Price.Int64(), "trade executes at maker price")
	assert.Equal(t, "bob", trade.Buyer)
	assert.Equal(t, "alice", trade.Seller)
	assert.Equal(t, models.SideBuy, trade.TakerSide)
	assert.Equal(t, models.TradeMatched, trade.Status)

	// Maker and taker are final in the store.
	storedAsk, err := f.orders.Get(ctx, ask.Order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFilled, storedAsk.Status)
	storedBid, err := f.orders.Get(ctx, bid.Order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFilled, storedBid.Status)

	// Settlement received the trade.
	queued := f.queue.all()
	require.Len(t, queued, 1)
	assert.Equal(t, trade.ID, queued[0].ID)

	// Trade history serves it back.
	history, err := f.svc.Trades(ctx, token, 10, 0)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, trade.ID, history[0].ID)
}

func TestSubmitIdempotentReplay(t *testing.T) {
	f := newFixture(t, allowAllSeller{})
	ctx := context.Background()
	token := uuid.New()

	req := limitReq(token, "alice", models.SideSell, 100, 5)
	req.IdempotencyKey = "submit-once"

	first, err := f.svc.Submit(ctx, req)
	require.NoError(t, err)
	second, err := f.svc.Submit(ctx, req)
	require.NoError(t, err)

	assert.True(t, second.Replayed)
	assert.Equal(t, first.Order.ID, second.Order.ID)
	assert.Empty(t, second.Trades)

	// Only one order rests on the book.
	depth, err := f.svc.Depth(ctx, token, 10)
	require.NoError(t, err)
	require.Len(t, depth.Asks, 1)
	assert.Equal(t, 1, depth.Asks[0].Orders)
}

func TestCancel(t *testing.T) {
	f := newFixture(t, allowAllSeller{})
	ctx := context.Background()
	token := uuid.New()

	res, err := f.svc.Submit(ctx, limitReq(token, "alice", models.SideSell, 100, 5))
	require.NoError(t, err)

	_, err = f.svc.Cancel(ctx, res.Order.ID, "mallory")
	assert.True(t, dErrors.Is(err, dErrors.CodeForbidden))

	cancelled, err := f.svc.Cancel(ctx, res.Order.ID, "alice")
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, cancelled.Status)

	// Cancelling again conflicts: the order is no longer resting.
	_, err = f.svc.Cancel(ctx, res.Order.ID, "alice")
	assert.True(t, dErrors.Is(err, dErrors.CodeConflict))
}

func TestDepthColdBookUsesTradeHistory(t *testing.T) {
	f := newFixture(t, allowAllSeller{})
	ctx := context.Background()
	token := uuid.New()

	_, err := f.svc.Submit(ctx, limitReq(token, "alice", models.SideSell, 100, 5))
	require.NoError(t, err)
	_, err = f.svc.Submit(ctx, limitReq(token, "bob", models.SideBuy, 100, 5))
	require.NoError(t, err)

	// Fresh service sharing the same stores, empty books.
	f2 := newFixture(t, allowAllSeller{})
	f2.svc.orders = f.orders
	f2.svc.trades = f.trades

	depth, err := f2.svc.Depth(ctx, token, 10)
	require.NoError(t, err)
	require.NotNil(t, depth.LastPrice)
	assert.Equal(t, int64(100), depth.LastPrice.Int64())
}

func TestRestoreBookPreservesPriority(t *testing.T) {
	f := newFixture(t, allowAllSeller{})
	ctx := context.Background()
	token := uuid.New()

	first, err := f.svc.Submit(ctx, limitReq(token, "alice", models.SideSell, 100, 5))
	require.NoError(t, err)
	time.Sleep(2 * time.Millisecond)
	_, err = f.svc.Submit(ctx, limitReq(token, "carol", models.SideSell, 100, 5))
	require.NoError(t, err)

	// Restart: new service over the same stores.
	restarted := newFixture(t, allowAllSeller{})
	restarted.svc.orders = f.orders
	restarted.svc.trades = f.trades
	require.NoError(t, restarted.svc.RestoreBook(ctx, token))

	bid, err := restarted.svc.Submit(ctx, limitReq(token, "bob", models.SideBuy, 100, 5))
	require.NoError(t, err)
	require.Len(t, bid.Trades, 1)
	assert.Equal(t, "alice", bid.Trades[0].Seller, "earlier order keeps priority across restart")
	_ = first
}

func TestSweepExpired(t *testing.T) {
	f := newFixture(t, allowAllSeller{})
	ctx := context.Background()
	token := uuid.New()

	expiry := time.Now().Add(20 * time.Millisecond)
	req := limitReq(token, "alice", models.SideSell, 100, 5)
	req.ExpiresAt = &expiry
	res, err := f.svc.Submit(ctx, req)
	require.NoError(t, err)

	time.Sleep(30 * time.Millisecond)
	f.svc.SweepExpired(ctx)

	stored, err := f.orders.Get(ctx, res.Order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusExpired, stored.Status)
}
