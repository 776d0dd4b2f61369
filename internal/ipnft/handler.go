package ipnft

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

// Handler exposes the IP token REST endpoints.
type Handler struct {
	logger       *slog.Logger
	tokens       *Service
	jwtValidator middleware.JWTValidator
}

func NewHandler(tokens *Service, logger *slog.Logger, jwtValidator middleware.JWTValidator) *Handler {
	return &Handler{
		logger:       logger,
		tokens:       tokens,
		jwtValidator: jwtValidator,
	}
}

// Register mounts the token routes on the given router.
func (h *Handler) Register(r chi.Router) {
	r.Route("/api/v1/tokens", func(r chi.Router) {
		r.Get("/{tokenID}", h.handleGetToken)
		r.Get("/", h.handleListTokens)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireAuth(h.jwtValidator, h.logger))
			r.Post("/", h.handleRegisterToken)
			r.Get("/mine", h.handleMyTokens)
		})
	})
}

type registerTokenRequest struct {
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	Category    string   `json:"category"`
	ContentHash string   `json:"content_hash"`
	Tags        []string `json:"tags,omitempty"`
}

type tokenResponse struct {
	ID          string   `json:"id"`
	Creator     string   `json:"creator"`
	Owner       string   `json:"owner"`
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	Category    string   `json:"category"`
	ContentHash string   `json:"content_hash"`
	Tags        []string `json:"tags,omitempty"`
	Status      string   `json:"status"`
	TxHash      string   `json:"tx_hash,omitempty"`
	CreatedAt   string   `json:"created_at"`
}

func (h *Handler) handleRegisterToken(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	wallet := middleware.GetWalletAddress(ctx)
	if wallet == "" {
		shared.WriteError(w, dErrors.New(dErrors.CodeInternal, "authentication context error"))
		return
	}

	var body registerTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	token, err := h.tokens.Register(ctx, RegisterRequest{
		Creator:     wallet,
		Title:       body.Title,
		Description: body.Description,
		Category:    Category(body.Category),
		ContentHash: body.ContentHash,
		Tags:        body.Tags,
	})
	if err != nil {
		h.logError(ctx, "register token", err)
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusCreated, toTokenResponse(token))
}

func (h *Handler) handleGetToken(w http.ResponseWriter, r *http.Request) {
	tokenID, err := uuid.Parse(chi.URLParam(r, "tokenID"))
	if err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid token id"))
		return
	}
	token, err := h.tokens.Get(r.Context(), tokenID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, toTokenResponse(token))
}

func (h *Handler) handleListTokens(w http.ResponseWriter, r *http.Request) {
	category := r.URL.Query().Get("category")
	if category == "" {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "category query parameter is required"))
		return
	}
	tokens, err := h.tokens.ListByCategory(r.Context(), Category(category))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, map[string]any{"tokens": toTokenResponses(tokens)})
}

func (h *Handler) handleMyTokens(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tokens, err := h.tokens.ListByOwner(ctx, middleware.GetWalletAddress(ctx))
	if err != nil {
		h.logError(ctx, "list tokens", err)
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, map[string]any{"tokens": toTokenResponses(tokens)})
}

func (h *Handler) logError(ctx context.Context, op string, err error) {
	if dErrors.CodeOf(err) == dErrors.CodeInternal {
		h.logger.ErrorContext(ctx, "ipnft "+op+" failed",
			"error", err.Error(),
			"request_id", middleware.GetRequestID(ctx),
		)
	}
}

func toTokenResponse(t Token) tokenResponse {
	return tokenResponse{
		ID:          t.ID.String(),
		Creator:     t.Creator,
		Owner:       t.Owner,
		Title:       t.Title,
		Description: t.Description,
		Category:    string(t.Category),
		ContentHash: t.ContentHash,
		Tags:        t.Tags,
		Status:      string(t.Status),
		TxHash:      t.TxHash,
		CreatedAt:   t.CreatedAt.Format(time.RFC3339),
	}
}

func toTokenResponses(tokens []Token) []tokenResponse {
	out := make([]tokenResponse, 0, len(tokens))
	for _, t := range tokens {
		out = append(out, toTokenResponse(t))
	}
	return out
}
