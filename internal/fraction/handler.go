package fraction

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

// Handler exposes the vault REST endpoints.
type Handler struct {
	logger       *slog.Logger
	vaults       *Service
	jwtValidator middleware.JWTValidator
}

func NewHandler(vaults *Service, logger *slog.Logger, jwtValidator middleware.JWTValidator) *Handler {
	return &Handler{
		logger:       logger,
		vaults:       vaults,
		jwtValidator: jwtValidator,
	}
}

// Register mounts the vault routes on the given router.
func (h *Handler) Register(r chi.Router) {
	r.Route("/api/v1/vaults", func(r chi.Router) {
		r.Get("/{vaultID}", h.handleGetVault)
		r.Get("/{vaultID}/claims", h.handleListClaims)
		r.Get("/by-token/{tokenID}", h.handleGetVaultByToken)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireAuth(h.jwtValidator, h.logger))
			r.Post("/", h.handleFractionalize)
			r.Post("/{vaultID}/redeem", h.handleRedeem)
			r.Post("/{vaultID}/buyout", h.handleBuyout)
			r.Post("/{vaultID}/claims", h.handleClaim)
			r.Get("/{vaultID}/balance", h.handleBalance)
		})
	})
}

type fractionalizeRequest struct {
	TokenID      string `json:"token_id"`
	TotalShares  string `json:"total_shares"`
	ReservePrice string `json:"reserve_price"`
}

type buyoutRequest struct {
	Price string `json:"price"`
}

type vaultResponse struct {
	ID           string `json:"id"`
	TokenID      string `json:"token_id"`
	Curator      string `json:"curator"`
	TotalShares  string `json:"total_shares"`
	ReservePrice string `json:"reserve_price"`
	Status       string `json:"status"`
	BuyoutBuyer  string `json:"buyout_buyer,omitempty"`
	BuyoutPrice  string `json:"buyout_price,omitempty"`
	TxHash       string `json:"tx_hash,omitempty"`
	CreatedAt    string `json:"created_at"`
}

type claimResponse struct {
	VaultID   string `json:"vault_id"`
	Holder    string `json:"holder"`
	Shares    string `json:"shares"`
	Amount    string `json:"amount"`
	CreatedAt string `json:"created_at"`
}

func (h *Handler) handleFractionalize(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	wallet := middleware.GetWalletAddress(ctx)

	var body fractionalizeRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	tokenID, err := uuid.Parse(body.TokenID)
	if err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid token_id"))
		return
	}
	totalShares, ok := new(big.Int).SetString(body.TotalShares, 10)
	if !ok {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid total_shares"))
		return
	}
	reservePrice, ok := new(big.Int).SetString(body.ReservePrice, 10)
	if !ok {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid reserve_price"))
		return
	}

	vault, err := h.vaults.Fractionalize(ctx, FractionalizeRequest{
		TokenID:      tokenID,
		Curator:      wallet,
		TotalShares:  totalShares,
		ReservePrice: reservePrice,
	})
	if err != nil {
		h.logError(ctx, "fractionalize", err)
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusCreated, toVaultResponse(vault))
}

func (h *Handler) handleGetVault(w http.ResponseWriter, r *http.Request) {
	vaultID, err := uuid.Parse(chi.URLParam(r, "vaultID"))
	if err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid vault id"))
		return
	}
	vault, err := h.vaults.Vault(r.Context(), vaultID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, toVaultResponse(vault))
}

func (h *Handler) handleGetVaultByToken(w http.ResponseWriter, r *http.Request) {
	tokenID, err := uuid.Parse(chi.URLParam(r, "tokenID"))
	if err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid token id"))
		return
	}
	vault, err := h.vaults.VaultByToken(r.Context(), tokenID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, toVaultResponse(vault))
}

func (h *Handler) handleRedeem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	vaultID, err := uuid.Parse(chi.URLParam(r, "vaultID"))
	if err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid vault id"))
		return
	}
	vault, err := h.vaults.Redeem(ctx, vaultID, middleware.GetWalletAddress(ctx))
	if err != nil {
		h.logError(ctx, "redeem", err)
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, toVaultResponse(vault))
}

func (h *Handler) handleBuyout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	vaultID, err := uuid.Parse(chi.URLParam(r, "vaultID"))
	if err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid vault id"))
		return
	}
	var body buyoutRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	price, ok := new(big.Int).SetString(body.Price, 10)
	if !ok {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid price"))
		return
	}
	vault, err := h.vaults.Buyout(ctx, vaultID, middleware.GetWalletAddress(ctx), price)
	if err != nil {
		h.logError(ctx, "buyout", err)
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, toVaultResponse(vault))
}

func (h *Handler) handleClaim(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	vaultID, err := uuid.Parse(chi.URLParam(r, "vaultID"))
	if err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid vault id"))
		return
	}
	claim, err := h.vaults.ClaimProceeds(ctx, vaultID, middleware.GetWalletAddress(ctx))
	if err != nil {
		h.logError(ctx, "claim proceeds", err)
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusCreated, toClaimResponse(claim))
}

func (h *Handler) handleListClaims(w http.ResponseWriter, r *http.Request) {
	vaultID, err := uuid.Parse(chi.URLParam(r, "vaultID"))
	if err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid vault id"))
		return
	}
	claims, err := h.vaults.Claims(r.Context(), vaultID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	out := make([]claimResponse, 0, len(claims))
	for _, c := range claims {
		out = append(out, toClaimResponse(c))
	}
	shared.WriteJSON(w, http.StatusOK, map[string]any{"claims": out})
}

func (h *Handler) handleBalance(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	vaultID, err := uuid.Parse(chi.URLParam(r, "vaultID"))
	if err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid vault id"))
		return
	}
	vault, err := h.vaults.Vault(ctx, vaultID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	balance, err := h.vaults.Balance(ctx, vault.TokenID, middleware.GetWalletAddress(ctx))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, map[string]any{"balance": balance.String()})
}

func (h *Handler) logError(ctx context.Context, op string, err error) {
	if dErrors.CodeOf(err) == dErrors.CodeInternal {
		h.logger.ErrorContext(ctx, "fraction "+op+" failed",
			"error", err.Error(),
			"request_id", middleware.GetRequestID(ctx),
		)
	}
}

func toVaultResponse(v Vault) vaultResponse {
	resp := vaultResponse{
		ID:           v.ID.String(),
		TokenID:      v.TokenID.String(),
		Curator:      v.Curator,
		TotalShares:  v.TotalShares.String(),
		ReservePrice: v.ReservePrice.String(),
		Status:       string(v.Status),
		BuyoutBuyer:  v.BuyoutBuyer,
		TxHash:       v.TxHash,
		CreatedAt:    v.CreatedAt.Format(time.RFC3339),
	}
	if v.BuyoutPrice != nil {
		resp.BuyoutPrice = v.BuyoutPrice.String()
	}
	return resp
}

func toClaimResponse(c Claim) claimResponse {
	return claimResponse{
		VaultID:   c.VaultID.String(),
		Holder:    c.Holder,
		Shares:    c.Shares.String(),
		Amount:    c.Amount.String(),
		CreatedAt: c.CreatedAt.Format(time.RFC3339),
	}
}
