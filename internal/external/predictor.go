package external

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"emberwatch/internal/types"
)

// PredictorClient is the interface the prediction workflow depends on. The
// production implementation calls the compute endpoint; tests substitute
// fakes.
type PredictorClient interface {
	Predict(ctx context.Context, req PredictionRequest) (*PredictionResult, error)
}

// PredictionRequest is the payload sent to the compute endpoint.
type PredictionRequest struct {
	Location string                `json:"location"`
	Model    types.PredictionModel `json:"model_type"`
}

// PredictionResult is the compute endpoint's successful response. It carries
// the probability, the environmental readings used as model features, and
// model provenance.
type PredictionResult struct {
	Probability       float64                  `json:"probability"`
	CO2Level          float64                  `json:"co2_level"`
	Temperature       float64                  `json:"temperature"`
	Humidity          float64                  `json:"humidity"`
	DroughtIndex      float64                  `json:"drought_index"`
	AirQualityIndex   *float64                 `json:"air_quality_index,omitempty"`
	PM25              *float64                 `json:"pm2_5,omitempty"`
	Vegetation        *types.VegetationIndices `json:"vegetation,omitempty"`
	LandCover         *types.LandCover         `json:"land_cover,omitempty"`
	ModelType         string                   `json:"model_type"`
	FeatureImportance map[string]float64       `json:"feature_importance,omitempty"`
}

// predictorErrorBody covers both error shapes the compute endpoint emits:
// a nested {"error": {"message": ...}} envelope and a flat {"detail": ...}.
type predictorErrorBody struct {
	Error *struct {
		Message string `json:"message"`
		Detail  string `json:"detail"`
	} `json:"error"`
	Detail string `json:"detail"`
}

func (b predictorErrorBody) message() string {
	if b.Error != nil {
		if b.Error.Message != "" {
			return b.Error.Message
		}
		if b.Error.Detail != "" {
			return b.Error.Detail
		}
	}
	return b.Detail
}

// PredictorClientConfig configures the compute endpoint client.
type PredictorClientConfig struct {
	BaseURL string
	APIKey  string
	// RequestsPerSecond throttles outbound calls; zero disables throttling.
	RequestsPerSecond float64
	Burst             int
	Logger            *slog.Logger
}

// PredictorHTTPClient implements PredictorClient against the compute
// endpoint's REST API through BaseClient, with a local token bucket so a
// burst of submissions cannot exceed the endpoint's quota.
type PredictorHTTPClient struct {
	base    *BaseClient
	baseURL string
	apiKey  string
	limiter *rate.Limiter
	logger  *slog.Logger
}

// NewPredictorClient creates a PredictorHTTPClient. The httpClient timeout
// should cover a full model run (around 20 seconds).
func NewPredictorClient(httpClient *http.Client, cfg PredictorClientConfig) *PredictorHTTPClient {
	base := NewBaseClient(
		httpClient,
		"predictor",
		RetryPolicy{
			MaxRetries: 2,
			MinWait:    1 * time.Second,
			MaxWait:    10 * time.Second,
		},
		"Emberwatch/1.0",
	)
	return NewPredictorClientWithBase(base, cfg)
}

// NewPredictorClientWithBase creates a PredictorHTTPClient with a caller
// provided BaseClient, used by tests to disable retries.
func NewPredictorClientWithBase(base *BaseClient, cfg PredictorClientConfig) *PredictorHTTPClient {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}

	return &PredictorHTTPClient{
		base:    base,
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		limiter: limiter,
		logger:  logger,
	}
}

// Predict runs the model for a location. Upstream failures come back as
// AppErrors with upstream_* codes so the workflow can decide whether the
// simulated fallback applies.
func (c *PredictorHTTPClient) Predict(ctx context.Context, req PredictionRequest) (*PredictionResult, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, types.NewAppError(types.ErrCodeUpstreamPredictor, "rate limit wait canceled", err)
		}
	}

	bodyBytes, err := json.Marshal(req)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to serialize prediction request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/predict", bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to build prediction request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.base.Do(httpReq)
	if err != nil {
		// Re-label generic upstream failures with the predictor code so
		// callers can tell which dependency failed.
		if appErr, ok := err.(*types.AppError); ok && appErr.Code == types.ErrCodeUpstreamUnavailable {
			return nil, types.NewAppError(types.ErrCodeUpstreamPredictor, appErr.Message, appErr.Err)
		}
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.decodeError(resp)
	}

	var result PredictionResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, types.NewAppError(types.ErrCodeUpstreamPredictor, "failed to decode prediction response", err)
	}

	// Never trust the upstream scale.
	result.Probability = types.ClampProbability(result.Probability)

	return &result, nil
}

// decodeError extracts the upstream error message from a non-200 response.
func (c *PredictorHTTPClient) decodeError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	var parsed predictorErrorBody
	message := ""
	if err := json.Unmarshal(body, &parsed); err == nil {
		message = parsed.message()
	}
	if message == "" {
		message = fmt.Sprintf("compute endpoint returned %d", resp.StatusCode)
	}

	c.logger.Warn("prediction request rejected",
		slog.Int("status", resp.StatusCode),
		slog.String("message", message),
	)

	return types.NewAppError(types.ErrCodeUpstreamPredictor, message, nil)
}
