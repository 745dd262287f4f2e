package external

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"emberwatch/internal/types"
)

// HistoricClient fetches aggregated wildfire incident history. The production
// implementation calls the historic-data endpoint; the historic service adds
// a cache in front of it.
type HistoricClient interface {
	// ByLocation fetches the incident summary for a named place.
	ByLocation(ctx context.Context, location string) (*types.HistoricSummary, error)
	// ByCoordinates fetches the incident summary within radiusKm of a point.
	ByCoordinates(ctx context.Context, lat, lon, radiusKm float64) (*types.HistoricSummary, error)
}

// HistoricClientConfig configures the historic-data endpoint client.
type HistoricClientConfig struct {
	BaseURL string
	Logger  *slog.Logger
}

// HistoricHTTPClient implements HistoricClient through BaseClient.
type HistoricHTTPClient struct {
	base    *BaseClient
	baseURL string
	logger  *slog.Logger
}

func NewHistoricClient(httpClient *http.Client, cfg HistoricClientConfig) *HistoricHTTPClient {
	base := NewBaseClient(
		httpClient,
		"historic",
		RetryPolicy{
			MaxRetries: 2,
			MinWait:    500 * time.Millisecond,
			MaxWait:    5 * time.Second,
		},
		"Emberwatch/1.0",
	)
	return NewHistoricClientWithBase(base, cfg)
}

func NewHistoricClientWithBase(base *BaseClient, cfg HistoricClientConfig) *HistoricHTTPClient {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &HistoricHTTPClient{
		base:    base,
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		logger:  logger,
	}
}

// ByLocation implements HistoricClient.
func (c *HistoricHTTPClient) ByLocation(ctx context.Context, location string) (*types.HistoricSummary, error) {
	q := url.Values{}
	q.Set("location", location)
	return c.fetch(ctx, q)
}

// ByCoordinates implements HistoricClient.
func (c *HistoricHTTPClient) ByCoordinates(ctx context.Context, lat, lon, radiusKm float64) (*types.HistoricSummary, error) {
	q := url.Values{}
	q.Set("lat", strconv.FormatFloat(lat, 'f', -1, 64))
	q.Set("lon", strconv.FormatFloat(lon, 'f', -1, 64))
	q.Set("radius_km", strconv.FormatFloat(radiusKm, 'f', -1, 64))
	return c.fetch(ctx, q)
}

func (c *HistoricHTTPClient) fetch(ctx context.Context, q url.Values) (*types.HistoricSummary, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/historic?"+q.Encode(), nil)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to build historic request", err)
	}

	resp, err := c.base.Do(req)
	if err != nil {
		if appErr, ok := err.(*types.AppError); ok && appErr.Code == types.ErrCodeUpstreamUnavailable {
			return nil, types.NewAppError(types.ErrCodeUpstreamHistoric, appErr.Message, appErr.Err)
		}
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.logger.Warn("historic request rejected", slog.Int("status", resp.StatusCode))
		return nil, types.NewAppError(
			types.ErrCodeUpstreamHistoric,
			fmt.Sprintf("historic endpoint returned %d", resp.StatusCode),
			nil,
		)
	}

	var summary types.HistoricSummary
	if err := json.NewDecoder(resp.Body).Decode(&summary); err != nil {
		return nil, types.NewAppError(types.ErrCodeUpstreamHistoric, "failed to decode historic response", err)
	}

	return &summary, nil
}
