// Package handlers contains the HTTP handler implementations for the EmberWatch API.
//
// This file implements the prediction endpoints:
//   - Submit a prediction (POST /v1/predictions)
//   - History listing (GET /v1/predictions)
//   - Deep-link form state (GET /v1/predictions/form)
//   - Single result retrieval (GET /v1/predictions/{id})
//   - Presentation slide deck (GET /v1/predictions/{id}/slides)
//   - Deletion (DELETE /v1/predictions/{id})
package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"emberwatch/internal/core"
	"emberwatch/internal/predictions"
	"emberwatch/internal/presentation"
	"emberwatch/internal/types"
)

// PredictionServiceInterface defines the service contract for the prediction
// handler. Matches the predictions.Service surface but is defined locally to
// avoid tight coupling per the handler injection pattern.
type PredictionServiceInterface interface {
	Submit(ctx context.Context, userID, location string) (*predictions.SubmitResult, error)
	Get(ctx context.Context, id, userID string) (*types.PredictionRecord, error)
	History(ctx context.Context, userID string, limit int) ([]predictions.HistoryEntry, error)
	Delete(ctx context.Context, id, userID string) error
}

// --- DTOs ---

// SubmitPredictionRequest is the request body for POST /v1/predictions.
type SubmitPredictionRequest struct {
	Location string `json:"location" validate:"required,max=200"`
}

// PredictionResponse pairs the stored record with its rendered view model.
type PredictionResponse struct {
	Record *types.PredictionRecord     `json:"record"`
	View   presentation.PredictionView `json:"view"`
}

// HistoryItemResponse is one entry in the history listing. DisplayProbability
// is the read-time perturbed value backing the card; the record keeps the
// stored probability.
type HistoryItemResponse struct {
	Record             *types.PredictionRecord  `json:"record"`
	Card               presentation.HistoryCard `json:"card"`
	DisplayProbability float64                  `json:"display_probability"`
}

// FormStateResponse is the deep-link form state for GET /v1/predictions/form.
// AutoSubmit is only honored when a non-empty location accompanies it, so a
// bare ?autoSubmit=true link can never fire a blank submission.
type FormStateResponse struct {
	Location   string `json:"location"`
	AutoSubmit bool   `json:"auto_submit"`
}

// --- Handler ---

// PredictionHandler maps HTTP requests to the prediction service layer.
// All routes require an authenticated session.
type PredictionHandler struct {
	service     PredictionServiceInterface
	requireAuth func(http.Handler) http.Handler
	validator   *core.Validator
	logger      *slog.Logger
}

// NewPredictionHandler creates a new PredictionHandler with the provided dependencies.
func NewPredictionHandler(
	svc PredictionServiceInterface,
	requireAuth func(http.Handler) http.Handler,
	v *core.Validator,
	l *slog.Logger,
) *PredictionHandler {
	if l == nil {
		l = slog.Default()
	}
	if requireAuth == nil {
		requireAuth = func(next http.Handler) http.Handler { return next }
	}
	return &PredictionHandler{
		service:     svc,
		requireAuth: requireAuth,
		validator:   v,
		logger:      l,
	}
}

// RegisterRoutes mounts the prediction endpoints onto the mux.
func (h *PredictionHandler) RegisterRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.requireAuth)
		r.Post("/", h.HandleSubmit)
		r.Get("/", h.HandleHistory)
		r.Get("/form", h.HandleFormState)
		r.Get("/{id}", h.HandleGet)
		r.Get("/{id}/slides", h.HandleSlides)
		r.Delete("/{id}", h.HandleDelete)
	})
}

// --- Handler Methods ---

// HandleSubmit handles POST /v1/predictions.
//
//  1. Decode and validate the SubmitPredictionRequest.
//  2. Call the prediction service; a live-endpoint failure comes back as a
//     simulated result with a warning rather than an error.
//  3. Return 201 with the record, its view model, and any warnings in meta.
func (h *PredictionHandler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	actor, ok := types.GetActor(r.Context())
	if !ok {
		core.Error(w, r, types.NewAppError(
			types.ErrCodeAuthRequired,
			"authentication required",
			nil,
		))
		return
	}

	var req SubmitPredictionRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}

	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	result, err := h.service.Submit(r.Context(), actor.UserID, req.Location)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	resp := PredictionResponse{
		Record: result.Record,
		View:   presentation.BuildPredictionView(result.Record, result.Record.Probability),
	}

	var meta *types.ResponseMeta
	if len(result.Warnings) > 0 {
		meta = &types.ResponseMeta{Warnings: result.Warnings}
	}

	core.JSON(w, r, http.StatusCreated, core.APIResponse{Data: resp, Meta: meta})
}

// HandleHistory handles GET /v1/predictions.
//
// Returns the user's predictions newest-first as history cards. The optional
// limit query parameter caps the page size (default 50, max 200).
func (h *PredictionHandler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	actor, ok := types.GetActor(r.Context())
	if !ok {
		core.Error(w, r, types.NewAppError(
			types.ErrCodeAuthRequired,
			"authentication required",
			nil,
		))
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			core.Error(w, r, types.NewAppError(
				types.ErrCodeValidationInvalidField,
				"limit must be a positive integer",
				nil,
			))
			return
		}
		if n > 200 {
			n = 200
		}
		limit = n
	}

	entries, err := h.service.History(r.Context(), actor.UserID, limit)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	items := make([]HistoryItemResponse, 0, len(entries))
	for _, e := range entries {
		items = append(items, HistoryItemResponse{
			Record:             e.Record,
			Card:               presentation.BuildHistoryCard(e.Record, e.DisplayProbability),
			DisplayProbability: e.DisplayProbability,
		})
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: items})
}

// HandleFormState handles GET /v1/predictions/form.
//
// Deep links into the prediction form carry a location and an optional
// autoSubmit flag. The server normalizes both so every client renders the
// same state: location is trimmed, and autoSubmit is forced off when the
// location is empty.
func (h *PredictionHandler) HandleFormState(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	location := strings.TrimSpace(q.Get("location"))
	autoSubmit, _ := strconv.ParseBool(q.Get("autoSubmit"))
	if location == "" {
		autoSubmit = false
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{
		Data: FormStateResponse{
			Location:   location,
			AutoSubmit: autoSubmit,
		},
	})
}

// HandleGet handles GET /v1/predictions/{id}.
func (h *PredictionHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	_, rec, ok := h.lookupRecord(w, r)
	if !ok {
		return
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{
		Data: PredictionResponse{
			Record: rec,
			View:   presentation.BuildPredictionView(rec, rec.Probability),
		},
	})
}

// HandleSlides handles GET /v1/predictions/{id}/slides.
//
// Renders the record as an ordered slide deck for presentation mode. Slides
// whose backing data is absent (historic, vegetation, land cover) are
// omitted rather than rendered empty.
func (h *PredictionHandler) HandleSlides(w http.ResponseWriter, r *http.Request) {
	_, rec, ok := h.lookupRecord(w, r)
	if !ok {
		return
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{
		Data: presentation.BuildSlideDeck(rec),
	})
}

// HandleDelete handles DELETE /v1/predictions/{id}.
func (h *PredictionHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	actor, ok := types.GetActor(r.Context())
	if !ok {
		core.Error(w, r, types.NewAppError(
			types.ErrCodeAuthRequired,
			"authentication required",
			nil,
		))
		return
	}

	id := chi.URLParam(r, "id")
	if id == "" {
		core.Error(w, r, types.NewAppError(
			types.ErrCodeValidationMissingField,
			"prediction id is required",
			nil,
		))
		return
	}

	if err := h.service.Delete(r.Context(), id, actor.UserID); err != nil {
		core.Error(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// lookupRecord resolves the {id} path parameter against the caller's records,
// writing the error response itself when the lookup fails.
func (h *PredictionHandler) lookupRecord(w http.ResponseWriter, r *http.Request) (types.Actor, *types.PredictionRecord, bool) {
	actor, ok := types.GetActor(r.Context())
	if !ok {
		core.Error(w, r, types.NewAppError(
			types.ErrCodeAuthRequired,
			"authentication required",
			nil,
		))
		return types.Actor{}, nil, false
	}

	id := chi.URLParam(r, "id")
	if id == "" {
		core.Error(w, r, types.NewAppError(
			types.ErrCodeValidationMissingField,
			"prediction id is required",
			nil,
		))
		return actor, nil, false
	}

	rec, err := h.service.Get(r.Context(), id, actor.UserID)
	if err != nil {
		core.Error(w, r, err)
		return actor, nil, false
	}
	return actor, rec, true
}
