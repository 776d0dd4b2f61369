package bond

import (
	"context"
	"encoding/json"
	"log/slog"
	"math/big"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/knowton/marketplace/internal/platform/middleware"
	"github.com/knowton/marketplace/internal/transport/http/shared"
	dErrors "github.com/knowton/marketplace/pkg/domain-errors"
)

// Handler exposes the bond REST endpoints.
type Handler struct {
	logger       *slog.Logger
	bonds        *Service
	jwtValidator middleware.JWTValidator
}

func NewHandler(bonds *Service, logger *slog.Logger, jwtValidator middleware.JWTValidator) *Handler {
	return &Handler{
		logger:       logger,
		bonds:        bonds,
		jwtValidator: jwtValidator,
	}
}

// Register mounts the bond routes on the given router.
func (h *Handler) Register(r chi.Router) {
	r.Route("/api/v1/bonds", func(r chi.Router) {
		r.Get("/{bondID}", h.handleGetBond)
		r.Get("/{bondID}/investments", h.handleListInvestments)
		r.Get("/{bondID}/distributions", h.handleListDistributions)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireAuth(h.jwtValidator, h.logger))
			r.Post("/", h.handleIssue)
			r.Post("/{bondID}/investments", h.handleInvest)
			r.Post("/{bondID}/distributions", h.handleDistribute)
			r.Post("/{bondID}/mature", h.handleMature)
			r.Get("/", h.handleListMine)
		})
	})
}

type trancheConfigPayload struct {
	Class         string  `json:"class"`
	AllocationPct int64   `json:"allocation_pct"`
	APY           float64 `json:"apy"`
}

type issueBondRequest struct {
	TokenID      string                 `json:"token_id"`
	TotalValue   string                 `json:"total_value"`
	MaturityDate string                 `json:"maturity_date"`
	Tranches     []trancheConfigPayload `json:"tranches"`
	Views        int64                  `json:"views,omitempty"`
	Likes        int64                  `json:"likes,omitempty"`
}

type trancheResponse struct {
	Class         string  `json:"class"`
	Priority      int     `json:"priority"`
	AllocationPct int64   `json:"allocation_pct"`
	Allocation    string  `json:"allocation"`
	APY           float64 `json:"apy"`
	Invested      string  `json:"invested"`
	Distributed   string  `json:"distributed"`
}

type assessmentResponse struct {
	ValuationUSD       float64  `json:"valuation_usd"`
	ConfidenceScore    float64  `json:"confidence_score"`
	Rating             string   `json:"rating"`
	DefaultProbability float64  `json:"default_probability"`
	RecommendedLTV     float64  `json:"recommended_ltv"`
	RiskFactors        []string `json:"risk_factors,omitempty"`
}

type bondResponse struct {
	ID           string             `json:"id"`
	TokenID      string             `json:"token_id"`
	Issuer       string             `json:"issuer"`
	TotalValue   string             `json:"total_value"`
	MaturityDate string             `json:"maturity_date"`
	Status       string             `json:"status"`
	TotalRevenue string             `json:"total_revenue"`
	TxHash       string             `json:"tx_hash,omitempty"`
	Tranches     []trancheResponse  `json:"tranches"`
	Assessment   assessmentResponse `json:"risk_assessment"`
	CreatedAt    string             `json:"created_at"`
}

type investRequest struct {
	Class  string `json:"class"`
	Amount string `json:"amount"`
}

type investmentResponse struct {
	ID        string `json:"id"`
	BondID    string `json:"bond_id"`
	Class     string `json:"class"`
	Investor  string `json:"investor"`
	Amount    string `json:"amount"`
	CreatedAt string `json:"created_at"`
}

type distributeRequest struct {
	Amount string `json:"amount"`
}

type payoutResponse struct {
	Class  string `json:"class"`
	Amount string `json:"amount"`
}

type distributionResponse struct {
	ID        string           `json:"id"`
	BondID    string           `json:"bond_id"`
	Amount    string           `json:"amount"`
	TxHash    string           `json:"tx_hash,omitempty"`
	Payouts   []payoutResponse `json:"payouts"`
	CreatedAt string           `json:"created_at"`
}

func (h *Handler) handleIssue(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	wallet := middleware.GetWalletAddress(ctx)

	var body issueBondRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	tokenID, err := uuid.Parse(body.TokenID)
	if err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid token_id"))
		return
	}
	totalValue, ok := new(big.Int).SetString(body.TotalValue, 10)
	if !ok {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid total_value"))
		return
	}
	maturity, err := time.Parse(time.RFC3339, body.MaturityDate)
	if err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "maturity_date must be RFC3339"))
		return
	}

	req := IssueRequest{
		TokenID:      tokenID,
		Issuer:       wallet,
		TotalValue:   totalValue,
		MaturityDate: maturity,
		Views:        body.Views,
		Likes:        body.Likes,
	}
	for _, tc := range body.Tranches {
		req.Tranches = append(req.Tranches, TrancheConfig{
			Class:         TrancheClass(tc.Class),
			AllocationPct: tc.AllocationPct,
			APY:           tc.APY,
		})
	}

	issued, err := h.bonds.Issue(ctx, req)
	if err != nil {
		h.logError(ctx, "issue", err)
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusCreated, toBondResponse(issued))
}

func (h *Handler) handleGetBond(w http.ResponseWriter, r *http.Request) {
	bondID, err := uuid.Parse(chi.URLParam(r, "bondID"))
	if err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid bond id"))
		return
	}
	b, err := h.bonds.Get(r.Context(), bondID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, toBondResponse(b))
}

func (h *Handler) handleListMine(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	bonds, err := h.bonds.ListByIssuer(ctx, middleware.GetWalletAddress(ctx))
	if err != nil {
		h.logError(ctx, "list", err)
		shared.WriteError(w, err)
		return
	}
	out := make([]bondResponse, 0, len(bonds))
	for _, b := range bonds {
		out = append(out, toBondResponse(b))
	}
	shared.WriteJSON(w, http.StatusOK, map[string]any{"bonds": out})
}

func (h *Handler) handleInvest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	bondID, err := uuid.Parse(chi.URLParam(r, "bondID"))
	if err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid bond id"))
		return
	}
	var body investRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	amount, ok := new(big.Int).SetString(body.Amount, 10)
	if !ok {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid amount"))
		return
	}

	inv, err := h.bonds.Invest(ctx, bondID, TrancheClass(body.Class), middleware.GetWalletAddress(ctx), amount)
	if err != nil {
		h.logError(ctx, "invest", err)
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusCreated, toInvestmentResponse(inv))
}

func (h *Handler) handleDistribute(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	bondID, err := uuid.Parse(chi.URLParam(r, "bondID"))
	if err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid bond id"))
		return
	}
	var body distributeRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	amount, ok := new(big.Int).SetString(body.Amount, 10)
	if !ok {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid amount"))
		return
	}

	dist, err := h.bonds.Distribute(ctx, bondID, middleware.GetWalletAddress(ctx), amount)
	if err != nil {
		h.logError(ctx, "distribute", err)
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusCreated, toDistributionResponse(dist))
}

func (h *Handler) handleMature(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	bondID, err := uuid.Parse(chi.URLParam(r, "bondID"))
	if err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid bond id"))
		return
	}
	b, err := h.bonds.Mature(ctx, bondID)
	if err != nil {
		h.logError(ctx, "mature", err)
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, toBondResponse(b))
}

func (h *Handler) handleListInvestments(w http.ResponseWriter, r *http.Request) {
	bondID, err := uuid.Parse(chi.URLParam(r, "bondID"))
	if err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid bond id"))
		return
	}
	investments, err := h.bonds.Investments(r.Context(), bondID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	out := make([]investmentResponse, 0, len(investments))
	for _, inv := range investments {
		out = append(out, toInvestmentResponse(inv))
	}
	shared.WriteJSON(w, http.StatusOK, map[string]any{"investments": out})
}

func (h *Handler) handleListDistributions(w http.ResponseWriter, r *http.Request) {
	bondID, err := uuid.Parse(chi.URLParam(r, "bondID"))
	if err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid bond id"))
		return
	}
	dists, err := h.bonds.Distributions(r.Context(), bondID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	out := make([]distributionResponse, 0, len(dists))
	for _, d := range dists {
		out = append(out, toDistributionResponse(d))
	}
	shared.WriteJSON(w, http.StatusOK, map[string]any{"distributions": out})
}

func (h *Handler) logError(ctx context.Context, op string, err error) {
	if dErrors.CodeOf(err) == dErrors.CodeInternal {
		h.logger.ErrorContext(ctx, "bond "+op+" failed",
			"error", err.Error(),
			"request_id", middleware.GetRequestID(ctx),
		)
	}
}

func toBondResponse(b Bond) bondResponse {
	resp := bondResponse{
		ID:           b.ID.String(),
		TokenID:      b.TokenID.String(),
		Issuer:       b.Issuer,
		TotalValue:   b.TotalValue.String(),
		MaturityDate: b.MaturityDate.Format(time.RFC3339),
		Status:       string(b.Status),
		TotalRevenue: b.TotalRevenue.String(),
		TxHash:       b.TxHash,
		Assessment: assessmentResponse{
			ValuationUSD:       b.Assessment.ValuationUSD,
			ConfidenceScore:    b.Assessment.ConfidenceScore,
			Rating:             string(b.Assessment.Rating),
			DefaultProbability: b.Assessment.DefaultProbability,
			RecommendedLTV:     b.Assessment.RecommendedLTV,
			RiskFactors:        b.Assessment.RiskFactors,
		},
		CreatedAt: b.CreatedAt.Format(time.RFC3339),
	}
	for _, t := range b.Tranches {
		resp.Tranches = append(resp.Tranches, trancheResponse{
			Class:         string(t.Class),
			Priority:      t.Priority,
			AllocationPct: t.AllocationPct,
			Allocation:    t.Allocation.String(),
			APY:           t.APY,
			Invested:      t.Invested.String(),
			Distributed:   t.Distributed.String(),
		})
	}
	return resp
}

func toInvestmentResponse(inv Investment) investmentResponse {
	return investmentResponse{
		ID:        inv.ID.String(),
		BondID:    inv.BondID.String(),
		Class:     string(inv.Class),
		Investor:  inv.Investor,
		Amount:    inv.Amount.String(),
		CreatedAt: inv.CreatedAt.Format(time.RFC3339),
	}
}

func toDistributionResponse(d Distribution) distributionResponse {
	resp := distributionResponse{
		ID:        d.ID.String(),
		BondID:    d.BondID.String(),
		Amount:    d.Amount.String(),
		TxHash:    d.TxHash,
		CreatedAt: d.CreatedAt.Format(time.RFC3339),
	}
	for _, p := range d.Payouts {
		resp.Payouts = append(resp.Payouts, payoutResponse{Class: string(p.Class), Amount: p.Amount.String()})
	}
	return resp
}
