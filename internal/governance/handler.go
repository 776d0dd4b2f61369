package governance

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

// Handler exposes the governance REST endpoints.
type Handler struct {
	logger       *slog.Logger
	governance   *Service
	jwtValidator middleware.JWTValidator
}

func NewHandler(governance *Service, logger *slog.Logger, jwtValidator middleware.JWTValidator) *Handler {
	return &Handler{
		logger:       logger,
		governance:   governance,
		jwtValidator: jwtValidator,
	}
}

// Register mounts the governance routes on the given router.
func (h *Handler) Register(r chi.Router) {
	r.Route("/api/v1/governance", func(r chi.Router) {
		r.Get("/proposals/{proposalID}", h.handleGetProposal)
		r.Get("/proposals/{proposalID}/votes", h.handleListVotes)
		r.Get("/tokens/{tokenID}/proposals", h.handleListProposals)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireAuth(h.jwtValidator, h.logger))
			r.Post("/proposals", h.handlePropose)
			r.Post("/proposals/{proposalID}/votes", h.handleVote)
			r.Post("/proposals/{proposalID}/finalize", h.handleFinalize)
			r.Post("/proposals/{proposalID}/execute", h.handleExecute)
		})
	})
}

type proposeRequest struct {
	TokenID     string `json:"token_id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	StartsAt    string `json:"starts_at"`
	EndsAt      string `json:"ends_at"`
}

type proposalResponse struct {
	ID           string `json:"id"`
	TokenID      string `json:"token_id"`
	Proposer     string `json:"proposer"`
	Title        string `json:"title"`
	Description  string `json:"description,omitempty"`
	Status       string `json:"status"`
	VotesFor     string `json:"votes_for"`
	VotesAgainst string `json:"votes_against"`
	StartsAt     string `json:"starts_at"`
	EndsAt       string `json:"ends_at"`
	CreatedAt    string `json:"created_at"`
}

type voteRequest struct {
	Choice string `json:"choice"`
	Votes  string `json:"votes"`
}

type voteResponse struct {
	ID         string `json:"id"`
	ProposalID string `json:"proposal_id"`
	Voter      string `json:"voter"`
	Choice     string `json:"choice"`
	Votes      string `json:"votes"`
	Credits    string `json:"credits"`
	CreatedAt  string `json:"created_at"`
}

func (h *Handler) handlePropose(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var body proposeRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	tokenID, err := uuid.Parse(body.TokenID)
	if err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid token_id"))
		return
	}
	startsAt, err := time.Parse(time.RFC3339, body.StartsAt)
	if err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "starts_at must be RFC3339"))
		return
	}
	endsAt, err := time.Parse(time.RFC3339, body.EndsAt)
	if err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "ends_at must be RFC3339"))
		return
	}

	p, err := h.governance.Propose(ctx, ProposeRequest{
		TokenID:     tokenID,
		Proposer:    middleware.GetWalletAddress(ctx),
		Title:       body.Title,
		Description: body.Description,
		StartsAt:    startsAt,
		EndsAt:      endsAt,
	})
	if err != nil {
		h.logError(ctx, "propose", err)
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusCreated, toProposalResponse(p))
}

func (h *Handler) handleVote(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	proposalID, err := uuid.Parse(chi.URLParam(r, "proposalID"))
	if err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid proposal id"))
		return
	}
	var body voteRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	votes, ok := new(big.Int).SetString(body.Votes, 10)
	if !ok {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid votes"))
		return
	}

	v, err := h.governance.Vote(ctx, proposalID, middleware.GetWalletAddress(ctx), VoteChoice(body.Choice), votes)
	if err != nil {
		h.logError(ctx, "vote", err)
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusCreated, toVoteResponse(v))
}

func (h *Handler) handleFinalize(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	proposalID, err := uuid.Parse(chi.URLParam(r, "proposalID"))
	if err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid proposal id"))
		return
	}
	p, err := h.governance.Finalize(ctx, proposalID)
	if err != nil {
		h.logError(ctx, "finalize", err)
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, toProposalResponse(p))
}

func (h *Handler) handleExecute(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	proposalID, err := uuid.Parse(chi.URLParam(r, "proposalID"))
	if err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid proposal id"))
		return
	}
	p, err := h.governance.Execute(ctx, proposalID, middleware.GetWalletAddress(ctx))
	if err != nil {
		h.logError(ctx, "execute", err)
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, toProposalResponse(p))
}

func (h *Handler) handleGetProposal(w http.ResponseWriter, r *http.Request) {
	proposalID, err := uuid.Parse(chi.URLParam(r, "proposalID"))
	if err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid proposal id"))
		return
	}
	p, err := h.governance.Get(r.Context(), proposalID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, toProposalResponse(p))
}

func (h *Handler) handleListProposals(w http.ResponseWriter, r *http.Request) {
	tokenID, err := uuid.Parse(chi.URLParam(r, "tokenID"))
	if err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid token id"))
		return
	}
	proposals, err := h.governance.ListByToken(r.Context(), tokenID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	out := make([]proposalResponse, 0, len(proposals))
	for _, p := range proposals {
		out = append(out, toProposalResponse(p))
	}
	shared.WriteJSON(w, http.StatusOK, map[string]any{"proposals": out})
}

func (h *Handler) handleListVotes(w http.ResponseWriter, r *http.Request) {
	proposalID, err := uuid.Parse(chi.URLParam(r, "proposalID"))
	if err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid proposal id"))
		return
	}
	votes, err := h.governance.Votes(r.Context(), proposalID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	out := make([]voteResponse, 0, len(votes))
	for _, v := range votes {
		out = append(out, toVoteResponse(v))
	}
	shared.WriteJSON(w, http.StatusOK, map[string]any{"votes": out})
}

func (h *Handler) logError(ctx context.Context, op string, err error) {
	if dErrors.CodeOf(err) == dErrors.CodeInternal {
		h.logger.ErrorContext(ctx, "governance "+op+" failed",
			"error", err.Error(),
			"request_id", middleware.GetRequestID(ctx),
		)
	}
}

func toProposalResponse(p Proposal) proposalResponse {
	return proposalResponse{
		ID:           p.ID.String(),
		TokenID:      p.TokenID.String(),
		Proposer:     p.Proposer,
		Title:        p.Title,
		Description:  p.Description,
		Status:       string(p.Status),
		VotesFor:     p.VotesFor.String(),
		VotesAgainst: p.VotesAgainst.String(),
		StartsAt:     p.StartsAt.Format(time.RFC3339),
		EndsAt:       p.EndsAt.Format(time.RFC3339),
		CreatedAt:    p.CreatedAt.Format(time.RFC3339),
	}
}

func toVoteResponse(v Vote) voteResponse {
	return voteResponse{
		ID:         v.ID.String(),
		ProposalID: v.ProposalID.String(),
		Voter:      v.Voter,
		Choice:     string(v.Choice),
		Votes:      v.Votes.String(),
		Credits:    v.Credits.String(),
		CreatedAt:  v.CreatedAt.Format(time.RFC3339),
	}
}
