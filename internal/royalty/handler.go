package royalty

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/knowton/marketplace/internal/platform/middleware"
	"github.com/knowton/marketplace/internal/transport/http/shared"
	dErrors "github.com/knowton/marketplace/pkg/domain-errors"
)

// Handler exposes the royalty REST endpoints.
type Handler struct {
	logger       *slog.Logger
	royalties    *Service
	jwtValidator middleware.JWTValidator
}

func NewHandler(royalties *Service, logger *slog.Logger, jwtValidator middleware.JWTValidator) *Handler {
	return &Handler{
		logger:       logger,
		royalties:    royalties,
		jwtValidator: jwtValidator,
	}
}

// Register mounts the royalty routes on the given router.
func (h *Handler) Register(r chi.Router) {
	r.Route("/api/v1/royalties", func(r chi.Router) {
		r.Get("/policies/{tokenID}", h.handleGetPolicy)
		r.Get("/distributions/{tokenID}", h.handleDistributionsByToken)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireAuth(h.jwtValidator, h.logger))
			r.Put("/policies/{tokenID}", h.handleSetPolicy)
			r.Get("/earnings", h.handleEarnings)
		})
	})
}

type beneficiaryPayload struct {
	Address  string `json:"address"`
	ShareBps int64  `json:"share_bps"`
}

type policyPayload struct {
	TokenID       string               `json:"token_id"`
	RoyaltyBps    int64                `json:"royalty_bps"`
	Beneficiaries []beneficiaryPayload `json:"beneficiaries"`
	UpdatedAt     string               `json:"updated_at,omitempty"`
}

type distributionResponse struct {
	ID        string `json:"id"`
	TradeID   string `json:"trade_id"`
	TokenID   string `json:"token_id"`
	Recipient string `json:"recipient"`
	Role      string `json:"role"`
	Amount    string `json:"amount"`
	CreatedAt string `json:"created_at"`
}

func (h *Handler) handleSetPolicy(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tokenID, err := uuid.Parse(chi.URLParam(r, "tokenID"))
	if err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid token id"))
		return
	}

	var body policyPayload
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	policy := Policy{TokenID: tokenID, RoyaltyBps: body.RoyaltyBps}
	for _, b := range body.Beneficiaries {
		policy.Beneficiaries = append(policy.Beneficiaries, Beneficiary{Address: b.Address, ShareBps: b.ShareBps})
	}

	if err := h.royalties.SetPolicy(ctx, middleware.GetWalletAddress(ctx), policy); err != nil {
		h.logError(ctx, "set policy", err)
		shared.WriteError(w, err)
		return
	}
	stored, err := h.royalties.Policy(ctx, tokenID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, toPolicyPayload(stored))
}

func (h *Handler) handleGetPolicy(w http.ResponseWriter, r *http.Request) {
	tokenID, err := uuid.Parse(chi.URLParam(r, "tokenID"))
	if err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid token id"))
		return
	}
	policy, err := h.royalties.Policy(r.Context(), tokenID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, toPolicyPayload(policy))
}

func (h *Handler) handleDistributionsByToken(w http.ResponseWriter, r *http.Request) {
	tokenID, err := uuid.Parse(chi.URLParam(r, "tokenID"))
	if err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid token id"))
		return
	}
	dists, err := h.royalties.DistributionsByToken(r.Context(), tokenID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, map[string]any{"distributions": toDistributionResponses(dists)})
}

func (h *Handler) handleEarnings(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	dists, err := h.royalties.DistributionsByRecipient(ctx, middleware.GetWalletAddress(ctx))
	if err != nil {
		h.logError(ctx, "list earnings", err)
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, map[string]any{"distributions": toDistributionResponses(dists)})
}

func (h *Handler) logError(ctx context.Context, op string, err error) {
	if dErrors.CodeOf(err) == dErrors.CodeInternal {
		h.logger.ErrorContext(ctx, "royalty "+op+" failed",
			"error", err.Error(),
			"request_id", middleware.GetRequestID(ctx),
		)
	}
}

func toPolicyPayload(p Policy) policyPayload {
	out := policyPayload{
		TokenID:    p.TokenID.String(),
		RoyaltyBps: p.RoyaltyBps,
	}
	if !p.UpdatedAt.IsZero() {
		out.UpdatedAt = p.UpdatedAt.Format(time.RFC3339)
	}
	for _, b := range p.Beneficiaries {
		out.Beneficiaries = append(out.Beneficiaries, beneficiaryPayload{Address: b.Address, ShareBps: b.ShareBps})
	}
	return out
}

func toDistributionResponses(dists []Distribution) []distributionResponse {
	out := make([]distributionResponse, 0, len(dists))
	for _, d := range dists {
		out = append(out, distributionResponse{
			ID:        d.ID.String(),
			TradeID:   d.TradeID.String(),
			TokenID:   d.TokenID.String(),
			Recipient: d.Recipient,
			Role:      string(d.Role),
			Amount:    d.Amount.String(),
			CreatedAt: d.CreatedAt.Format(time.RFC3339),
		})
	}
	return out
}
