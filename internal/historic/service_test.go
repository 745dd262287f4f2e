package historic

import (
	"context"
	"testing"

	"emberwatch/internal/types"
)

// fakeHistoricClient counts upstream calls and records the arguments it saw.
type fakeHistoricClient struct {
	locationCalls int
	coordCalls    int
	lastLocation  string
	lastLat       float64
	lastLon       float64
	lastRadius    float64
	summary       *types.HistoricSummary
	err           error
}

func (f *fakeHistoricClient) ByLocation(ctx context.Context, location string) (*types.HistoricSummary, error) {
	f.locationCalls++
	f.lastLocation = location
	return f.summary, f.err
}

func (f *fakeHistoricClient) ByCoordinates(ctx context.Context, lat, lon, radiusKm float64) (*types.HistoricSummary, error) {
	f.coordCalls++
	f.lastLat, f.lastLon, f.lastRadius = lat, lon, radiusKm
	return f.summary, f.err
}

func TestByLocation_NoCachePassesThrough(t *testing.T) {
	client := &fakeHistoricClient{summary: &types.HistoricSummary{TotalIncidents: 7}}
	svc := NewService(ServiceConfig{Client: client})

	summary, err := svc.ByLocation(context.Background(), "Yosemite Valley")
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if summary.TotalIncidents != 7 {
		t.Errorf("expected upstream summary, got %+v", summary)
	}
	if client.locationCalls != 1 {
		t.Errorf("expected 1 upstream call, got %d", client.locationCalls)
	}
	if client.lastLocation != "Yosemite Valley" {
		t.Errorf("location should reach upstream unmodified, got %q", client.lastLocation)
	}
}

func TestByCoordinates_ForwardsArguments(t *testing.T) {
	client := &fakeHistoricClient{summary: &types.HistoricSummary{}}
	svc := NewService(ServiceConfig{Client: client})

	if _, err := svc.ByCoordinates(context.Background(), 37.8651, -119.5383, 50); err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if client.coordCalls != 1 {
		t.Errorf("expected 1 upstream call, got %d", client.coordCalls)
	}
	if client.lastLat != 37.8651 || client.lastLon != -119.5383 || client.lastRadius != 50 {
		t.Errorf("coordinates not forwarded: %v %v %v", client.lastLat, client.lastLon, client.lastRadius)
	}
}

func TestByLocation_UpstreamErrorSurfaces(t *testing.T) {
	client := &fakeHistoricClient{err: types.NewAppError(types.ErrCodeUpstreamHistoric, "historic endpoint returned 503", nil)}
	svc := NewService(ServiceConfig{Client: client})

	_, err := svc.ByLocation(context.Background(), "Yosemite")
	if err == nil {
		t.Fatal("expected upstream error to surface")
	}

	appErr, ok := err.(*types.AppError)
	if !ok {
		t.Fatalf("expected *types.AppError, got %T", err)
	}
	if appErr.Code != types.ErrCodeUpstreamHistoric {
		t.Errorf("expected code %s, got %s", types.ErrCodeUpstreamHistoric, appErr.Code)
	}
}

func TestCacheKey_NormalizesLocation(t *testing.T) {
	tests := []struct {
		kind   string
		suffix string
		want   string
	}{
		{"location", "yosemite valley", "historic:location:yosemite valley"},
		{"coords", "37.87:-119.54:50", "historic:coords:37.87:-119.54:50"},
	}

	for _, tt := range tests {
		if got := cacheKey(tt.kind, tt.suffix); got != tt.want {
			t.Errorf("cacheKey(%q, %q) = %q, want %q", tt.kind, tt.suffix, got, tt.want)
		}
	}
}

func TestNewService_DefaultTTL(t *testing.T) {
	svc := NewService(ServiceConfig{Client: &fakeHistoricClient{}})
	if svc.ttl != defaultCacheTTL {
		t.Errorf("expected default TTL %v, got %v", defaultCacheTTL, svc.ttl)
	}

	svc = NewService(ServiceConfig{Client: &fakeHistoricClient{}, TTL: defaultCacheTTL / 2})
	if svc.ttl != defaultCacheTTL/2 {
		t.Errorf("expected configured TTL, got %v", svc.ttl)
	}
}
