package predictions

import (
	"context"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"emberwatch/internal/external"
	"emberwatch/internal/types"
)

// PredictionRepo is the persistence surface the workflow needs.
type PredictionRepo interface {
	Create(ctx context.Context, p *types.PredictionRecord) error
	GetByID(ctx context.Context, id, userID string) (*types.PredictionRecord, error)
	ListByUser(ctx context.Context, userID string, limit int) ([]*types.PredictionRecord, error)
	Delete(ctx context.Context, id, userID string) error
}

// HistoricSource fetches the incident summary used to enrich a prediction.
// Satisfied by the cached historic service.
type HistoricSource interface {
	ByLocation(ctx context.Context, location string) (*types.HistoricSummary, error)
}

// MetricsRecorder receives workflow telemetry. Nil-safe via the service.
type MetricsRecorder interface {
	RecordPrediction(mode types.PredictionMode, success bool)
	RecordFallback()
}

// SubmitResult is the outcome of a submission: the persisted record plus any
// degraded-mode warnings for the response metadata.
type SubmitResult struct {
	Record   *types.PredictionRecord
	Warnings []types.Warning
}

// Service orchestrates the prediction workflow.
type Service struct {
	repo      PredictionRepo
	predictor external.PredictorClient
	historic  HistoricSource
	simulator *Simulator
	metrics   MetricsRecorder
	clock     types.Clock
	logger    *slog.Logger
}

// ServiceConfig holds the dependencies for creating a prediction Service.
type ServiceConfig struct {
	Repo      PredictionRepo
	Predictor external.PredictorClient
	Historic  HistoricSource
	Metrics   MetricsRecorder
	Clock     types.Clock
	Logger    *slog.Logger
}

func NewService(cfg ServiceConfig) *Service {
	clock := cfg.Clock
	if clock == nil {
		clock = types.RealClock{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:      cfg.Repo,
		predictor: cfg.Predictor,
		historic:  cfg.Historic,
		simulator: NewSimulator(),
		metrics:   cfg.Metrics,
		clock:     clock,
		logger:    logger,
	}
}

// Submit runs a prediction for the location on behalf of userID and persists
// the result.
//
// The serving policy has exactly two states. Every submission first tries the
// live compute endpoint; if that fails for any reason, the workflow retries
// exactly once on the simulated path and the stored record is flagged
// Simulated with a warning in the result. There is no second retry and no
// per-error discrimination: any live failure triggers the one fallback.
//
// The auth gate runs first, then the location gate, both before any network
// or enrichment work: an unauthenticated call fails with auth_required even
// when the location is also blank.
//
// Historic enrichment runs concurrently with the live call. Its failure never
// fails the submission; the record simply ships without the summary and the
// result carries a warning.
func (s *Service) Submit(ctx context.Context, userID, location string) (*SubmitResult, error) {
	if userID == "" {
		return nil, types.NewAppError(types.ErrCodeAuthRequired, "authentication required", nil)
	}
	location = strings.TrimSpace(location)
	if location == "" {
		return nil, types.NewAppError(types.ErrCodeValidationEmptyLocation, "location must not be empty", nil)
	}

	var (
		liveResult *external.PredictionResult
		liveErr    error
		historic   *types.HistoricSummary
		historicErr error
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		liveResult, liveErr = s.predictor.Predict(gctx, external.PredictionRequest{
			Location: location,
			Model:    types.ModelRandomForest,
		})
		// Live failure is handled by the fallback, not by the group.
		return nil
	})
	g.Go(func() error {
		historic, historicErr = s.historic.ByLocation(gctx, location)
		return nil
	})
	_ = g.Wait()

	var warnings []types.Warning

	mode := types.ModeLive
	result := liveResult
	if liveErr != nil {
		s.logger.Warn("live prediction failed, serving simulated fallback",
			slog.String("location", location),
			slog.String("error", liveErr.Error()),
		)
		if s.metrics != nil {
			s.metrics.RecordFallback()
		}

		mode = types.ModeSimulated
		result = s.simulator.Simulate(location)
		warnings = append(warnings, types.Warning{
			Code:    "prediction_simulated",
			Message: "live prediction service unavailable; result computed by local simulation",
		})
	}

	if historicErr != nil {
		s.logger.Warn("historic enrichment failed",
			slog.String("location", location),
			slog.String("error", historicErr.Error()),
		)
		historic = nil
		warnings = append(warnings, types.Warning{
			Code:    "historic_unavailable",
			Message: "historic wildfire data unavailable for this location",
		})
	}

	record := &types.PredictionRecord{
		ID:                uuid.NewString(),
		UserID:            userID,
		Location:          location,
		Probability:       types.ClampProbability(result.Probability),
		CO2Level:          result.CO2Level,
		Temperature:       result.Temperature,
		Humidity:          result.Humidity,
		DroughtIndex:      result.DroughtIndex,
		AirQualityIndex:   result.AirQualityIndex,
		PM25:              result.PM25,
		Historic:          historic,
		Vegetation:        result.Vegetation,
		LandCover:         result.LandCover,
		ModelType:         result.ModelType,
		FeatureImportance: result.FeatureImportance,
		Simulated:         mode == types.ModeSimulated,
		CreatedAt:         s.clock.Now(),
	}

	if err := s.repo.Create(ctx, record); err != nil {
		if s.metrics != nil {
			s.metrics.RecordPrediction(mode, false)
		}
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.RecordPrediction(mode, true)
	}

	s.logger.Info("prediction stored",
		slog.String("user_id", userID),
		slog.String("location", location),
		slog.Float64("probability", record.Probability),
		slog.Bool("simulated", record.Simulated),
	)

	return &SubmitResult{Record: record, Warnings: warnings}, nil
}

// Get returns a single stored prediction owned by userID.
func (s *Service) Get(ctx context.Context, id, userID string) (*types.PredictionRecord, error) {
	return s.repo.GetByID(ctx, id, userID)
}

// Delete removes a stored prediction owned by userID.
func (s *Service) Delete(ctx context.Context, id, userID string) error {
	return s.repo.Delete(ctx, id, userID)
}
