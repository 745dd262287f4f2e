package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"emberwatch/internal/core"
	"emberwatch/internal/types"
)

// HistoricServiceInterface defines the service contract for the historic
// handler. Matches the historic.Service surface.
type HistoricServiceInterface interface {
	ByLocation(ctx context.Context, location string) (*types.HistoricSummary, error)
	ByCoordinates(ctx context.Context, lat, lon, radiusKm float64) (*types.HistoricSummary, error)
}

// HistoricHandler serves historic wildfire aggregates.
// Queries go either by named location or by a coordinate circle.
type HistoricHandler struct {
	service     HistoricServiceInterface
	requireAuth func(http.Handler) http.Handler
	logger      *slog.Logger
}

// NewHistoricHandler creates a new HistoricHandler with the provided dependencies.
func NewHistoricHandler(
	svc HistoricServiceInterface,
	requireAuth func(http.Handler) http.Handler,
	l *slog.Logger,
) *HistoricHandler {
	if l == nil {
		l = slog.Default()
	}
	if requireAuth == nil {
		requireAuth = func(next http.Handler) http.Handler { return next }
	}
	return &HistoricHandler{
		service:     svc,
		requireAuth: requireAuth,
		logger:      l,
	}
}

// RegisterRoutes mounts the historic endpoint onto the mux.
func (h *HistoricHandler) RegisterRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.requireAuth)
		r.Get("/", h.HandleQuery)
	})
}

// HandleQuery handles GET /v1/historic.
//
// Accepts either:
//   - location: a named place, e.g. ?location=Yosemite
//   - lat, lon, radius_km: a coordinate circle, e.g. ?lat=37.8&lon=-119.5&radius_km=50
//
// Exactly one addressing mode must be present.
func (h *HistoricHandler) HandleQuery(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	location := strings.TrimSpace(q.Get("location"))
	hasCoords := q.Get("lat") != "" || q.Get("lon") != "" || q.Get("radius_km") != ""

	switch {
	case location != "" && hasCoords:
		core.Error(w, r, types.NewAppError(
			types.ErrCodeValidationInvalidField,
			"specify either location or lat/lon/radius_km, not both",
			nil,
		))
	case location != "":
		h.queryByLocation(w, r, location)
	case hasCoords:
		h.queryByCoordinates(w, r)
	default:
		core.Error(w, r, types.NewAppError(
			types.ErrCodeValidationMissingField,
			"location or lat/lon/radius_km query parameters are required",
			nil,
		))
	}
}

func (h *HistoricHandler) queryByLocation(w http.ResponseWriter, r *http.Request, location string) {
	summary, err := h.service.ByLocation(r.Context(), location)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: summary})
}

func (h *HistoricHandler) queryByCoordinates(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	lat, err := parseCoordinate(q.Get("lat"), "lat", -90, 90, types.ErrCodeValidationInvalidLat)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	lon, err := parseCoordinate(q.Get("lon"), "lon", -180, 180, types.ErrCodeValidationInvalidLon)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	radiusStr := q.Get("radius_km")
	if radiusStr == "" {
		core.Error(w, r, types.NewAppError(
			types.ErrCodeValidationMissingField,
			"radius_km query parameter is required",
			nil,
		))
		return
	}
	radius, convErr := strconv.ParseFloat(radiusStr, 64)
	if convErr != nil || radius <= 0 || radius > 1000 {
		core.Error(w, r, types.NewAppError(
			types.ErrCodeValidationInvalidRadius,
			"radius_km must be a number in (0, 1000]",
			nil,
		))
		return
	}

	summary, err := h.service.ByCoordinates(r.Context(), lat, lon, radius)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: summary})
}

// parseCoordinate validates a required float query parameter within [min, max].
func parseCoordinate(raw, name string, min, max float64, code types.ErrorCode) (float64, error) {
	if raw == "" {
		return 0, types.NewAppError(
			types.ErrCodeValidationMissingField,
			name+" query parameter is required",
			nil,
		)
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || v < min || v > max {
		return 0, types.NewAppError(code, name+" is out of range", nil)
	}
	return v, nil
}
