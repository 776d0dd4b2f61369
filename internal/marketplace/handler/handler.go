package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"math/big"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/knowton/marketplace/internal/marketplace/models"
	"github.com/knowton/marketplace/internal/marketplace/service"
	"github.com/knowton/marketplace/internal/platform/middleware"
	"github.com/knowton/marketplace/internal/transport/http/shared"
	dErrors "github.com/knowton/marketplace/pkg/domain-errors"
)

// Service defines the marketplace operations the handler delegates to.
type Service interface {
	Submit(ctx context.Context, req service.SubmitRequest) (*service.SubmitResult, error)
	Cancel(ctx context.Context, orderID uuid.UUID, owner string) (*models.Order, error)
	GetOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	ListOrders(ctx context.Context, owner string, openOnly bool) ([]*models.Order, error)
	Depth(ctx context.Context, tokenID uuid.UUID, levels int) (models.Depth, error)
	Trades(ctx context.Context, tokenID uuid.UUID, limit, offset int) ([]*models.Trade, error)
}

// Handler exposes the marketplace REST endpoints.
type Handler struct {
	logger       *slog.Logger
	marketplace  Service
	jwtValidator middleware.JWTValidator
}

func New(marketplace Service, logger *slog.Logger, jwtValidator middleware.JWTValidator) *Handler {
	return &Handler{
		logger:       logger,
		marketplace:  marketplace,
		jwtValidator: jwtValidator,
	}
}

// Register mounts the marketplace routes on the given router.
func (h *Handler) Register(r chi.Router) {
	r.Route("/api/v1/marketplace", func(r chi.Router) {
		// Public market data.
		r.Get("/orderbook/{tokenID}", h.handleOrderBook)
		r.Get("/trades/{tokenID}", h.handleTrades)
		r.Get("/orders/{orderID}", h.handleGetOrder)

		// Trading requires an authenticated wallet.
		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireAuth(h.jwtValidator, h.logger))
			r.Post("/orders", h.handleSubmitOrder)
			r.Delete("/orders/{orderID}", h.handleCancelOrder)
			r.Get("/orders", h.handleListOrders)
		})
	})
}

type submitOrderRequest struct {
	TokenID   string `json:"token_id"`
	Side      string `json:"side"`
	Type      string `json:"type"`
	Price     string `json:"price,omitempty"`
	Quantity  string `json:"quantity"`
	ExpiresAt string `json:"expires_at,omitempty"`
}

type orderResponse struct {
	ID        string `json:"id"`
	TokenID   string `json:"token_id"`
	Owner     string `json:"owner"`
	Side      string `json:"side"`
	Type      string `json:"type"`
	Price     string `json:"price,omitempty"`
	Quantity  string `json:"quantity"`
	Remaining string `json:"remaining"`
	Status    string `json:"status"`
	CreatedAt string `json:"created_at"`
	ExpiresAt string `json:"expires_at,omitempty"`
}

type tradeResponse struct {
	ID          string `json:"id"`
	TokenID     string `json:"token_id"`
	BuyOrderID  string `json:"buy_order_id"`
	SellOrderID string `json:"sell_order_id"`
	Buyer       string `json:"buyer"`
	Seller      string `json:"seller"`
	Price       string `json:"price"`
	Quantity    string `json:"quantity"`
	TakerSide   string `json:"taker_side"`
	Status      string `json:"status"`
	TxHash      string `json:"tx_hash,omitempty"`
	ExecutedAt  string `json:"executed_at"`
}

type submitOrderResponse struct {
	Order  orderResponse   `json:"order"`
	Trades []tradeResponse `json:"trades"`
}

func (h *Handler) handleSubmitOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	wallet := middleware.GetWalletAddress(ctx)
	if wallet == "" {
		shared.WriteError(w, dErrors.New(dErrors.CodeInternal, "authentication context error"))
		return
	}

	var body submitOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	req, err := toSubmitRequest(body, wallet)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	req.IdempotencyKey = r.Header.Get("Idempotency-Key")

	res, err := h.marketplace.Submit(ctx, req)
	if err != nil {
		h.logError(ctx, "submit order", err)
		shared.WriteError(w, err)
		return
	}

	status := http.StatusCreated
	if res.Replayed {
		status = http.StatusOK
	}
	shared.WriteJSON(w, status, submitOrderResponse{
		Order:  toOrderResponse(res.Order),
		Trades: toTradeResponses(res.Trades),
	})
}

func (h *Handler) handleCancelOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	orderID, err := uuid.Parse(chi.URLParam(r, "orderID"))
	if err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid order id"))
		return
	}

	cancelled, err := h.marketplace.Cancel(ctx, orderID, middleware.GetWalletAddress(ctx))
	if err != nil {
		h.logError(ctx, "cancel order", err)
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, toOrderResponse(cancelled))
}

func (h *Handler) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	orderID, err := uuid.Parse(chi.URLParam(r, "orderID"))
	if err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid order id"))
		return
	}
	order, err := h.marketplace.GetOrder(r.Context(), orderID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, toOrderResponse(order))
}

func (h *Handler) handleListOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	openOnly := r.URL.Query().Get("open") == "true"
	orders, err := h.marketplace.ListOrders(ctx, middleware.GetWalletAddress(ctx), openOnly)
	if err != nil {
		h.logError(ctx, "list orders", err)
		shared.WriteError(w, err)
		return
	}
	out := make([]orderResponse, 0, len(orders))
	for _, o := range orders {
		out = append(out, toOrderResponse(o))
	}
	shared.WriteJSON(w, http.StatusOK, map[string]any{"orders": out})
}

type depthLevelResponse struct {
	Price    string `json:"price"`
	Quantity string `json:"quantity"`
	Orders   int    `json:"orders"`
}

type depthResponse struct {
	TokenID   string               `json:"token_id"`
	Bids      []depthLevelResponse `json:"bids"`
	Asks      []depthLevelResponse `json:"asks"`
	LastPrice string               `json:"last_price,omitempty"`
}

func (h *Handler) handleOrderBook(w http.ResponseWriter, r *http.Request) {
	tokenID, err := uuid.Parse(chi.URLParam(r, "tokenID"))
	if err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid token id"))
		return
	}
	levels, _ := strconv.Atoi(r.URL.Query().Get("levels"))

	depth, err := h.marketplace.Depth(r.Context(), tokenID, levels)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	resp := depthResponse{
		TokenID: depth.TokenID.String(),
		Bids:    toDepthLevels(depth.Bids),
		Asks:    toDepthLevels(depth.Asks),
	}
	if depth.LastPrice != nil {
		resp.LastPrice = depth.LastPrice.String()
	}
	shared.WriteJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleTrades(w http.ResponseWriter, r *http.Request) {
	tokenID, err := uuid.Parse(chi.URLParam(r, "tokenID"))
	if err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid token id"))
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	trades, err := h.marketplace.Trades(r.Context(), tokenID, limit, offset)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, map[string]any{"trades": toTradeResponses(trades)})
}

func (h *Handler) logError(ctx context.Context, op string, err error) {
	if dErrors.CodeOf(err) == dErrors.CodeInternal {
		h.logger.ErrorContext(ctx, "marketplace "+op+" failed",
			"error", err.Error(),
			"request_id", middleware.GetRequestID(ctx),
		)
	}
}

func toSubmitRequest(body submitOrderRequest, wallet string) (service.SubmitRequest, error) {
	tokenID, err := uuid.Parse(body.TokenID)
	if err != nil {
		return service.SubmitRequest{}, dErrors.New(dErrors.CodeBadRequest, "invalid token_id")
	}
	req := service.SubmitRequest{
		TokenID: tokenID,
		Owner:   wallet,
		Side:    models.Side(body.Side),
		Type:    models.OrderType(body.Type),
	}
	if body.Price != "" {
		price, ok := new(big.Int).SetString(body.Price, 10)
		if !ok {
			return service.SubmitRequest{}, dErrors.New(dErrors.CodeBadRequest, "invalid price")
		}
		req.Price = price
	}
	qty, ok := new(big.Int).SetString(body.Quantity, 10)
	if !ok {
		return service.SubmitRequest{}, dErrors.New(dErrors.CodeBadRequest, "invalid quantity")
	}
	req.Quantity = qty
	if body.ExpiresAt != "" {
		expiresAt, err := time.Parse(time.RFC3339, body.ExpiresAt)
		if err != nil {
			return service.SubmitRequest{}, dErrors.New(dErrors.CodeBadRequest, "expires_at must be RFC3339")
		}
		req.ExpiresAt = &expiresAt
	}
	return req, nil
}

func toOrderResponse(o *models.Order) orderResponse {
	resp := orderResponse{
		ID:        o.ID.String(),
		TokenID:   o.TokenID.String(),
		Owner:     o.Owner,
		Side:      string(o.Side),
		Type:      string(o.Type),
		Quantity:  o.Quantity.String(),
		Remaining: o.Remaining.String(),
		Status:    string(o.Status),
		CreatedAt: o.CreatedAt.Format(time.RFC3339),
	}
	if o.Price != nil {
		resp.Price = o.Price.String()
	}
	if o.ExpiresAt != nil {
		resp.ExpiresAt = o.ExpiresAt.Format(time.RFC3339)
	}
	return resp
}

func toTradeResponses(trades []*models.Trade) []tradeResponse {
	out := make([]tradeResponse, 0, len(trades))
	for _, t := range trades {
		out = append(out, tradeResponse{
			ID:          t.ID.String(),
			TokenID:     t.TokenID.String(),
			BuyOrderID:  t.BuyOrderID.String(),
			SellOrderID: t.SellOrderID.String(),
			Buyer:       t.Buyer,
			Seller:      t.Seller,
			Price:       t.Price.String(),
			Quantity:    t.Quantity.String(),
			TakerSide:   string(t.TakerSide),
			Status:      string(t.Status),
			TxHash:      t.TxHash,
			ExecutedAt:  t.ExecutedAt.Format(time.RFC3339),
		})
	}
	return out
}

func toDepthLevels(levels []models.DepthLevel) []depthLevelResponse {
	out := make([]depthLevelResponse, 0, len(levels))
	for _, l := range levels {
		out = append(out, depthLevelResponse{
			Price:    l.Price.String(),
			Quantity: l.Quantity.String(),
			Orders:   l.Orders,
		})
	}
	return out
}
