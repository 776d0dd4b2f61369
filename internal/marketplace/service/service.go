package service

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/knowton/marketplace/internal/events"
	"github.com/knowton/marketplace/internal/marketplace/book"
	"github.com/knowton/marketplace/internal/marketplace/metrics"
	"github.com/knowton/marketplace/internal/marketplace/models"
	dErrors "github.com/knowton/marketplace/pkg/domain-errors"
)

// OrderStore persists orders.
type OrderStore interface {
	Create(ctx context.Context, o *models.Order) error
	Update(ctx context.Context, o *models.Order) error
	Get(ctx context.Context, id uuid.UUID) (*models.Order, error)
	ListOpenByToken(ctx context.Context, tokenID uuid.UUID) ([]*models.Order, error)
	ListOpenTokenIDs(ctx context.Context) ([]uuid.UUID, error)
	ListByOwner(ctx context.Context, owner string, openOnly bool) ([]*models.Order, error)
}

// TradeStore persists trades.
type TradeStore interface {
	Create(ctx context.Context, t *models.Trade) error
	Get(ctx context.Context, id uuid.UUID) (*models.Trade, error)
	ListByToken(ctx context.Context, tokenID uuid.UUID, limit, offset int) ([]*models.Trade, error)
}

// IdempotencyStore deduplicates submissions carrying an Idempotency-Key.
type IdempotencyStore interface {
	Reserve(ctx context.Context, key string, orderID uuid.UUID) (uuid.UUID, bool, error)
}

// SellAuthorizer decides whether a seller may list the given token. The IPNFT
// registry implements this against on-chain ownership and vault share
// balances.
type SellAuthorizer interface {
	AuthorizeSell(ctx context.Context, tokenID uuid.UUID, seller string) error
}

// SettlementQueue receives matched trades for asynchronous on-chain
// settlement.
type SettlementQueue interface {
	Enqueue(t *models.Trade)
}

// SubmitRequest is a validated order submission.
type SubmitRequest struct {
	TokenID        uuid.UUID
	Owner          string
	Side           models.Side
	Type           models.OrderType
	Price          *big.Int
	Quantity       *big.Int
	ExpiresAt      *time.Time
	IdempotencyKey string
}

// SubmitResult reports the outcome of a submission.
type SubmitResult struct {
	Order *models.Order
	// Trades matched during this submission, in execution order.
	Trades []*models.Trade
	// Replayed is true when the idempotency key had already been used; Order
	// is the original order and Trades is empty.
	Replayed bool
}

// Service drives the matching engine and keeps book, stores, settlement and
// the event feed consistent.
type Service struct {
	logger  *slog.Logger
	books   *book.Manager
	orders  OrderStore
	trades  TradeStore
	idem    IdempotencyStore
	seller  SellAuthorizer
	settle  SettlementQueue
	events  events.Publisher
	metrics *metrics.Metrics
	tracer  trace.Tracer
}

func New(
	logger *slog.Logger,
	books *book.Manager,
	orders OrderStore,
	trades TradeStore,
	idem IdempotencyStore,
	seller SellAuthorizer,
	settle SettlementQueue,
	publisher events.Publisher,
	m *metrics.Metrics,
) *Service {
	return &Service{
		logger:  logger,
		books:   books,
		orders:  orders,
		trades:  trades,
		idem:    idem,
		seller:  seller,
		settle:  settle,
		events:  publisher,
		metrics: m,
		tracer:  otel.Tracer("marketplace"),
	}
}

// Submit validates, persists and matches one order. Matching happens under
// the book lock; persistence of fills follows so the book is the source of
// truth for priority and the store for durability.
func (s *Service) Submit(ctx context.Context, req SubmitRequest) (*SubmitResult, error) {
	ctx, span := s.tracer.Start(ctx, "marketplace.submit")
	defer span.End()

	if err := validate(req); err != nil {
		return nil, err
	}
	if req.Side == models.SideSell {
		if err := s.seller.AuthorizeSell(ctx, req.TokenID, req.Owner); err != nil {
			return nil, err
		}
	}

	order := &models.Order{
		ID:        uuid.New(),
		TokenID:   req.TokenID,
		Owner:     req.Owner,
		Side:      req.Side,
		Type:      req.Type,
		Price:     req.Price,
		Quantity:  new(big.Int).Set(req.Quantity),
		Remaining: new(big.Int).Set(req.Quantity),
		Status:    models.StatusOpen,
		CreatedAt: time.Now().UTC(),
		ExpiresAt: req.ExpiresAt,
	}

	if req.IdempotencyKey != "" {
		existingID, created, err := s.idem.Reserve(ctx, req.IdempotencyKey, order.ID)
		if err != nil {
			return nil, dErrors.Wrap(dErrors.CodeInternal, "idempotency check failed", err)
		}
		if !created {
			existing, err := s.orders.Get(ctx, existingID)
			if err != nil {
				return nil, err
			}
			s.metrics.IdempotentReplay.Inc()
			return &SubmitResult{Order: existing, Replayed: true}, nil
		}
	}

	if err := s.orders.Create(ctx, order); err != nil {
		return nil, err
	}

	b := s.books.Get(req.TokenID)
	res := b.Submit(order, time.Now())

	trades, err := s.applyResult(ctx, order, res)
	if err != nil {
		return nil, err
	}

	s.metrics.OrdersSubmitted.WithLabelValues(string(order.Side), string(order.Type)).Inc()
	if res.Rested {
		s.metrics.RestingOrders.Inc()
	}
	s.events.Publish(ctx, events.TopicOrders,
		events.Marshal("order.submitted", order.TokenID.String(), orderEvent(order)))

	return &SubmitResult{Order: order, Trades: trades}, nil
}

// applyResult persists the side effects of one matching pass: expired makers,
// fill updates and new trades, then hands trades to settlement.
func (s *Service) applyResult(ctx context.Context, taker *models.Order, res book.Result) ([]*models.Trade, error) {
	ctx, span := s.tracer.Start(ctx, "marketplace.apply_fills")
	defer span.End()

	for _, expired := range res.Expired {
		if err := s.orders.Update(ctx, expired); err != nil {
			return nil, err
		}
		s.metrics.OrdersExpired.Inc()
		s.metrics.RestingOrders.Dec()
	}

	trades := make([]*models.Trade, 0, len(res.Fills))
	for _, fill := range res.Fills {
		if err := s.orders.Update(ctx, fill.Maker); err != nil {
			return nil, err
		}
		if fill.Maker.Status == models.StatusFilled {
			s.metrics.RestingOrders.Dec()
		}

		trade := tradeFromFill(taker, fill)
		if err := s.trades.Create(ctx, trade); err != nil {
			return nil, err
		}
		trades = append(trades, trade)

		s.metrics.TradesMatched.Inc()
		volume, _ := new(big.Float).SetInt(trade.Proceeds()).Float64()
		s.metrics.FillVolume.Add(volume)

		s.settle.Enqueue(trade.Clone())
		s.events.Publish(ctx, events.TopicTrades,
			events.Marshal("trade.matched", trade.TokenID.String(), tradeEvent(trade)))
	}

	if err := s.orders.Update(ctx, taker); err != nil {
		return nil, err
	}
	return trades, nil
}

// Cancel removes the owner's resting order from the book.
func (s *Service) Cancel(ctx context.Context, orderID uuid.UUID, owner string) (*models.Order, error) {
	order, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.Owner != owner {
		return nil, dErrors.New(dErrors.CodeForbidden, "not the order owner")
	}

	b := s.books.Get(order.TokenID)
	cancelled, ok := b.Cancel(orderID)
	if !ok {
		return nil, dErrors.New(dErrors.CodeConflict, "order is not open")
	}
	if err := s.orders.Update(ctx, cancelled); err != nil {
		return nil, err
	}
	s.metrics.OrdersCancelled.Inc()
	s.metrics.RestingOrders.Dec()
	s.events.Publish(ctx, events.TopicOrders,
		events.Marshal("order.cancelled", cancelled.TokenID.String(), orderEvent(cancelled)))
	return cancelled, nil
}

// GetOrder returns a persisted order.
func (s *Service) GetOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	return s.orders.Get(ctx, orderID)
}

// ListOrders returns the owner's orders, newest first.
func (s *Service) ListOrders(ctx context.Context, owner string, openOnly bool) ([]*models.Order, error) {
	return s.orders.ListByOwner(ctx, owner, openOnly)
}

// Depth returns an aggregated snapshot of the token's book.
func (s *Service) Depth(ctx context.Context, tokenID uuid.UUID, levels int) (models.Depth, error) {
	if levels <= 0 || levels > 100 {
		levels = 20
	}
	d := s.books.Get(tokenID).Depth(levels, time.Now())
	if d.LastPrice == nil {
		// Cold book: look up the last executed trade.
		last, err := s.trades.ListByToken(ctx, tokenID, 1, 0)
		if err == nil && len(last) == 1 {
			d.LastPrice = last[0].Price
		}
	}
	return d, nil
}

// Trades returns trade history for a token, newest first.
func (s *Service) Trades(ctx context.Context, tokenID uuid.UUID, limit, offset int) ([]*models.Trade, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return s.trades.ListByToken(ctx, tokenID, limit, offset)
}

// RestoreBook rebuilds one token's book from persisted open orders. Orders
// arrive in creation order so FIFO priority survives restarts; expired ones
// are finalized instead of rested.
func (s *Service) RestoreBook(ctx context.Context, tokenID uuid.UUID) error {
	open, err := s.orders.ListOpenByToken(ctx, tokenID)
	if err != nil {
		return fmt.Errorf("load open orders: %w", err)
	}
	b := s.books.Get(tokenID)
	now := time.Now()
	for _, o := range open {
		if o.IsExpired(now) {
			o.Status = models.StatusExpired
			if err := s.orders.Update(ctx, o); err != nil {
				return err
			}
			continue
		}
		b.Restore(o)
		s.metrics.RestingOrders.Inc()
	}
	if last, err := s.trades.ListByToken(ctx, tokenID, 1, 0); err == nil && len(last) == 1 {
		b.SetLastPrice(last[0].Price)
	}
	return nil
}

// RestoreAllBooks rebuilds every book that has persisted open orders.
// Called once at startup before the server accepts traffic.
func (s *Service) RestoreAllBooks(ctx context.Context) error {
	tokenIDs, err := s.orders.ListOpenTokenIDs(ctx)
	if err != nil {
		return fmt.Errorf("list open tokens: %w", err)
	}
	for _, tokenID := range tokenIDs {
		if err := s.RestoreBook(ctx, tokenID); err != nil {
			return fmt.Errorf("restore book %s: %w", tokenID, err)
		}
	}
	if len(tokenIDs) > 0 {
		s.logger.InfoContext(ctx, "restored order books", "books", len(tokenIDs))
	}
	return nil
}

// SweepExpired purges expired resting orders across all books. Run
// periodically; the books also purge lazily during matching.
func (s *Service) SweepExpired(ctx context.Context) {
	now := time.Now()
	for _, b := range s.books.All() {
		for _, expired := range b.PurgeExpired(now) {
			if err := s.orders.Update(ctx, expired); err != nil {
				s.logger.ErrorContext(ctx, "persist expired order",
					"order_id", expired.ID, "error", err)
				continue
			}
			s.metrics.OrdersExpired.Inc()
			s.metrics.RestingOrders.Dec()
			s.events.Publish(ctx, events.TopicOrders,
				events.Marshal("order.expired", expired.TokenID.String(), orderEvent(expired)))
		}
	}
}

// RunExpirySweep drives SweepExpired until ctx is cancelled.
func (s *Service) RunExpirySweep(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.SweepExpired(ctx)
		}
	}
}

func tradeFromFill(taker *models.Order, fill book.Fill) *models.Trade {
	trade := &models.Trade{
		ID:         uuid.New(),
		TokenID:    taker.TokenID,
		Price:      fill.Price,
		Quantity:   fill.Quantity,
		TakerSide:  taker.Side,
		Status:     models.TradeMatched,
		ExecutedAt: time.Now().UTC(),
	}
	if taker.Side == models.SideBuy {
		trade.BuyOrderID = taker.ID
		trade.Buyer = taker.Owner
		trade.SellOrderID = fill.Maker.ID
		trade.Seller = fill.Maker.Owner
	} else {
		trade.SellOrderID = taker.ID
		trade.Seller = taker.Owner
		trade.BuyOrderID = fill.Maker.ID
		trade.Buyer = fill.Maker.Owner
	}
	return trade
}

func validate(req SubmitRequest) error {
	if req.TokenID == uuid.Nil {
		return dErrors.New(dErrors.CodeBadRequest, "token_id is required")
	}
	if req.Owner == "" {
		return dErrors.New(dErrors.CodeBadRequest, "owner is required")
	}
	switch req.Side {
	case models.SideBuy, models.SideSell:
	default:
		return dErrors.New(dErrors.CodeBadRequest, "side must be BUY or SELL")
	}
	switch req.Type {
	case models.TypeLimit, models.TypeIOC:
		if req.Price == nil || req.Price.Sign() <= 0 {
			return dErrors.New(dErrors.CodeBadRequest, "price must be positive")
		}
	case models.TypeMarket:
		if req.Price != nil {
			return dErrors.New(dErrors.CodeBadRequest, "market orders carry no price")
		}
	default:
		return dErrors.New(dErrors.CodeBadRequest, "type must be LIMIT, MARKET or IOC")
	}
	if req.Quantity == nil || req.Quantity.Sign() <= 0 {
		return dErrors.New(dErrors.CodeBadRequest, "quantity must be positive")
	}
	if req.ExpiresAt != nil && !req.ExpiresAt.After(time.Now()) {
		return dErrors.New(dErrors.CodeBadRequest, "expires_at must be in the future")
	}
	return nil
}

// orderEvent and tradeEvent shape the analytics payloads with string amounts
// so consumers never lose precision to JSON numbers.
func orderEvent(o *models.Order) map[string]any {
	e := map[string]any{
		"order_id":  o.ID.String(),
		"token_id":  o.TokenID.String(),
		"owner":     o.Owner,
		"side":      string(o.Side),
		"type":      string(o.Type),
		"quantity":  o.Quantity.String(),
		"remaining": o.Remaining.String(),
		"status":    string(o.Status),
	}
	if o.Price != nil {
		e["price"] = o.Price.String()
	}
	return e
}

func tradeEvent(t *models.Trade) map[string]any {
	return map[string]any{
		"trade_id":      t.ID.String(),
		"token_id":      t.TokenID.String(),
		"buy_order_id":  t.BuyOrderID.String(),
		"sell_order_id": t.SellOrderID.String(),
		"buyer":         t.Buyer,
		"seller":        t.Seller,
		"price":         t.Price.String(),
		"quantity":      t.Quantity.String(),
		"taker_side":    string(t.TakerSide),
		"status":        string(t.Status),
	}
}
