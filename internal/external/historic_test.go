package external

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"emberwatch/internal/types"
)

func newTestHistoric(t *testing.T, serverURL string) *HistoricHTTPClient {
	t.Helper()
	base := NewBaseClient(
		&http.Client{Timeout: 5 * time.Second},
		"historic-test",
		RetryPolicy{MaxRetries: 0, MinWait: time.Millisecond, MaxWait: time.Millisecond},
		"Emberwatch-Test/1.0",
		WithSleepFunc(noopSleep),
	)
	return NewHistoricClientWithBase(base, HistoricClientConfig{BaseURL: serverURL})
}

func TestHistoricByLocation_Success(t *testing.T) {
	var gotQuery url.Values
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query()
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"location": "Yosemite Valley",
			"total_incidents": 42,
			"largest_fire_km2": 130.5,
			"average_fire_km2": 12.3,
			"yearly_incidents": [{"year": 2024, "count": 9}, {"year": 2025, "count": 11}],
			"severity_distribution": {"high": 7, "moderate": 20, "low": 15}
		}`))
	}))
	defer server.Close()

	client := newTestHistoric(t, server.URL)

	summary, err := client.ByLocation(context.Background(), "Yosemite Valley")
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}

	if gotQuery.Get("location") != "Yosemite Valley" {
		t.Errorf("expected location query param, got %q", gotQuery.Get("location"))
	}
	if summary.TotalIncidents != 42 {
		t.Errorf("expected 42 incidents, got %d", summary.TotalIncidents)
	}
	if len(summary.YearlyIncidents) != 2 || summary.YearlyIncidents[1].Count != 11 {
		t.Errorf("yearly incidents not decoded: %+v", summary.YearlyIncidents)
	}
	if summary.SeverityDist["high"] != 7 {
		t.Errorf("severity distribution not decoded: %+v", summary.SeverityDist)
	}
}

func TestHistoricByCoordinates_QueryParams(t *testing.T) {
	var gotQuery url.Values
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query()
		w.Write([]byte(`{"total_incidents": 3}`))
	}))
	defer server.Close()

	client := newTestHistoric(t, server.URL)

	if _, err := client.ByCoordinates(context.Background(), 37.8651, -119.5383, 50); err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}

	if gotQuery.Get("lat") != "37.8651" {
		t.Errorf("expected lat 37.8651, got %q", gotQuery.Get("lat"))
	}
	if gotQuery.Get("lon") != "-119.5383" {
		t.Errorf("expected lon -119.5383, got %q", gotQuery.Get("lon"))
	}
	if gotQuery.Get("radius_km") != "50" {
		t.Errorf("expected radius_km 50, got %q", gotQuery.Get("radius_km"))
	}
}

func TestHistoric_Non200MapsToHistoricError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client := newTestHistoric(t, server.URL)

	_, err := client.ByLocation(context.Background(), "Atlantis")
	if err == nil {
		t.Fatal("expected error for 404 response")
	}

	appErr, ok := err.(*types.AppError)
	if !ok {
		t.Fatalf("expected *types.AppError, got %T", err)
	}
	if appErr.Code != types.ErrCodeUpstreamHistoric {
		t.Errorf("expected code %s, got %s", types.ErrCodeUpstreamHistoric, appErr.Code)
	}
}

func TestHistoric_ServerErrorRelabeled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := newTestHistoric(t, server.URL)

	_, err := client.ByLocation(context.Background(), "Yosemite")
	if err == nil {
		t.Fatal("expected error for 500 response")
	}

	appErr, ok := err.(*types.AppError)
	if !ok {
		t.Fatalf("expected *types.AppError, got %T", err)
	}
	if appErr.Code != types.ErrCodeUpstreamHistoric {
		t.Errorf("expected code %s, got %s", types.ErrCodeUpstreamHistoric, appErr.Code)
	}
}
