package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/onnwee/bazaar/internal/catalog"
	"github.com/onnwee/bazaar/internal/middleware"
	"github.com/onnwee/bazaar/internal/ranking"
	"github.com/onnwee/bazaar/internal/scoring"
	"github.com/onnwee/bazaar/internal/settings"
)

// Ranked listing limits.
const (
	DefaultRankedLimit = 50
	MaxRankedLimit     = 200
)

// ScoreEngine is the subset of scoring.Engine the handlers use.
type ScoreEngine interface {
	RecomputeAll(ctx context.Context, batchSize int) (int, error)
	RecomputeOne(ctx context.Context, listingID string) (float64, error)
	Explain(ctx context.Context, listingID string) (*ranking.Explanation, error)
	Weights(ctx context.Context) ranking.WeightVector
}

// RecomputeResponse is returned by the full recompute endpoint.
type RecomputeResponse struct {
	Updated int `json:"updated"`
}

// ScoreResponse is returned by the single listing recompute endpoint.
type ScoreResponse struct {
	ListingID string  `json:"listing_id"`
	Score     float64 `json:"score"`
}

// DirtyResponse acknowledges a listing queued for incremental recompute.
type DirtyResponse struct {
	ListingID string `json:"listing_id"`
	Pending   int    `json:"pending"`
}

// RankedResponse lists listings in display order.
type RankedResponse struct {
	Listings []catalog.Listing `json:"listings"`
}

// RankingHandlersConfig configures the ranking handlers.
type RankingHandlersConfig struct {
	Engine ScoreEngine

	// Listings serves the ranked listing view (optional).
	Listings catalog.Reader

	// WeightStore persists weight updates (optional, PUT is unavailable without it).
	WeightStore settings.WeightStore

	// DirtyTracker receives change notifications (optional).
	DirtyTracker *scoring.DirtyTracker

	// DefaultBatchSize is used when the recompute request omits batch_size.
	DefaultBatchSize int
}

// RankingHandlers holds dependencies for ranking HTTP handlers.
type RankingHandlers struct {
	engine           ScoreEngine
	listings         catalog.Reader
	weightStore      settings.WeightStore
	dirtyTracker     *scoring.DirtyTracker
	defaultBatchSize int
}

// NewRankingHandlers creates a new RankingHandlers instance.
func NewRankingHandlers(cfg RankingHandlersConfig) *RankingHandlers {
	batchSize := cfg.DefaultBatchSize
	if batchSize <= 0 {
		batchSize = scoring.DefaultBatchSize
	}
	return &RankingHandlers{
		engine:           cfg.Engine,
		listings:         cfg.Listings,
		weightStore:      cfg.WeightStore,
		dirtyTracker:     cfg.DirtyTracker,
		defaultBatchSize: batchSize,
	}
}

// RecomputeAll handles POST /admin/ranking/recompute?batch_size=N.
func (h *RankingHandlers) RecomputeAll(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusMethodNotAllowed, ErrCodeBadRequest, "Method not allowed")
		return
	}

	batchSize := h.defaultBatchSize
	if raw := r.URL.Query().Get("batch_size"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeCode(w, r, ErrCodeValidation, "batch_size must be a positive integer")
			return
		}
		batchSize = n
	}

	updated, err := h.engine.RecomputeAll(r.Context(), batchSize)
	if err != nil {
		h.writeEngineError(w, r, err, "", "Failed to recompute scores")
		return
	}

	writeJSON(w, r, http.StatusOK, RecomputeResponse{Updated: updated})
}

// Weights handles GET and PUT /admin/ranking/weights.
func (h *RankingHandlers) Weights(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, r, http.StatusOK, h.engine.Weights(r.Context()))
	case http.MethodPut:
		h.updateWeights(w, r)
	default:
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusMethodNotAllowed, ErrCodeBadRequest, "Method not allowed")
	}
}

// updateWeights replaces the stored coefficients. Omitted coefficients fall
// back to their defaults.
func (h *RankingHandlers) updateWeights(w http.ResponseWriter, r *http.Request) {
	if h.weightStore == nil {
		writeCode(w, r, ErrCodeUnavailable, "Weight storage is not configured")
		return
	}

	var weights ranking.PartialWeights
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&weights); err != nil {
		writeCode(w, r, ErrCodeBadRequest, "Invalid request body")
		return
	}

	if err := h.weightStore.SaveWeights(r.Context(), &weights); err != nil {
		if errors.Is(err, ranking.ErrInvalidWeight) {
			writeCode(w, r, ErrCodeInvalidWeight, err.Error())
			return
		}
		slog.ErrorContext(r.Context(), "failed to save ranking weights", "error", err)
		writeCode(w, r, ErrCodeInternal, "Failed to save weights")
		return
	}

	slog.InfoContext(r.Context(), "ranking weights updated")
	writeJSON(w, r, http.StatusOK, h.engine.Weights(r.Context()))
}

// ListingRoutes dispatches the per-listing endpoints under /listings/:
//
//	POST /listings/{id}/score
//	GET  /listings/{id}/score/explain
//	POST /listings/{id}/dirty
//	GET  /listings/ranked
func (h *RankingHandlers) ListingRoutes(w http.ResponseWriter, r *http.Request) {
	pathParts := strings.Split(strings.Trim(strings.TrimPrefix(r.URL.Path, "/listings/"), "/"), "/")
	if len(pathParts) == 1 && pathParts[0] == "ranked" {
		h.Ranked(w, r)
		return
	}
	if len(pathParts) < 2 || pathParts[0] == "" {
		writeCode(w, r, ErrCodeNotFound, "Route not found")
		return
	}
	listingID := pathParts[0]

	var method string
	switch strings.Join(pathParts[1:], "/") {
	case "score":
		method = http.MethodPost
	case "score/explain":
		method = http.MethodGet
	case "dirty":
		method = http.MethodPost
	default:
		writeCode(w, r, ErrCodeNotFound, "Route not found")
		return
	}
	if r.Method != method {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusMethodNotAllowed, ErrCodeBadRequest, "Method not allowed")
		return
	}

	switch pathParts[1] {
	case "dirty":
		h.markDirty(w, r, listingID)
	case "score":
		if len(pathParts) == 3 {
			h.explain(w, r, listingID)
		} else {
			h.recomputeOne(w, r, listingID)
		}
	}
}

func (h *RankingHandlers) recomputeOne(w http.ResponseWriter, r *http.Request, listingID string) {
	score, err := h.engine.RecomputeOne(r.Context(), listingID)
	if err != nil {
		h.writeEngineError(w, r, err, listingID, "Failed to recompute score")
		return
	}
	writeJSON(w, r, http.StatusOK, ScoreResponse{ListingID: listingID, Score: score})
}

func (h *RankingHandlers) explain(w http.ResponseWriter, r *http.Request, listingID string) {
	explanation, err := h.engine.Explain(r.Context(), listingID)
	if err != nil {
		h.writeEngineError(w, r, err, listingID, "Failed to explain score")
		return
	}
	writeJSON(w, r, http.StatusOK, explanation)
}

func (h *RankingHandlers) markDirty(w http.ResponseWriter, r *http.Request, listingID string) {
	if h.dirtyTracker == nil {
		writeCode(w, r, ErrCodeUnavailable, "Incremental recompute is not enabled")
		return
	}
	h.dirtyTracker.MarkDirty(listingID)
	slog.DebugContext(r.Context(), "listing marked for recompute", "listing_id", listingID)
	writeJSON(w, r, http.StatusAccepted, DirtyResponse{ListingID: listingID, Pending: h.dirtyTracker.DirtyCount()})
}

// Ranked handles GET /listings/ranked?limit=N.
func (h *RankingHandlers) Ranked(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusMethodNotAllowed, ErrCodeBadRequest, "Method not allowed")
		return
	}
	if h.listings == nil {
		writeCode(w, r, ErrCodeUnavailable, "Listing catalog is not configured")
		return
	}

	limit := DefaultRankedLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeCode(w, r, ErrCodeValidation, "limit must be a positive integer")
			return
		}
		limit = min(n, MaxRankedLimit)
	}

	listings, err := h.listings.ListRanked(r.Context(), limit)
	if err != nil {
		slog.ErrorContext(r.Context(), "failed to list ranked listings", "error", err, "limit", limit)
		writeCode(w, r, ErrCodeInternal, "Failed to list listings")
		return
	}
	if listings == nil {
		listings = []catalog.Listing{}
	}

	writeJSON(w, r, http.StatusOK, RankedResponse{Listings: listings})
}

// writeEngineError translates engine errors into API error responses.
func (h *RankingHandlers) writeEngineError(w http.ResponseWriter, r *http.Request, err error, listingID, message string) {
	switch {
	case errors.Is(err, scoring.ErrNotFound):
		slog.DebugContext(r.Context(), "listing not found", "listing_id", listingID)
		writeCode(w, r, ErrCodeListingNotFound, "Listing not found")
	case errors.Is(err, scoring.ErrInvalidBatchSize):
		writeCode(w, r, ErrCodeValidation, err.Error())
	default:
		slog.ErrorContext(r.Context(), message, "error", err, "listing_id", listingID)
		writeCode(w, r, ErrCodeInternal, message)
	}
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.ErrorContext(r.Context(), "failed to encode response", "error", err)
	}
}
