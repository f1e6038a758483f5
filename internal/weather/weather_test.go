package weather

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestWMOCodeToDescIcon(t *testing.T) {
	tests := []struct {
		code     int
		wantDesc string
		wantIcon string
	}{
		{0, "Clear sky", "clear"},
		{2, "Partly cloudy", "partly-cloudy"},
		{48, "Foggy", "fog"},
		{63, "Moderate rain", "rain"},
		{75, "Heavy snow", "heavy-snow"},
		{99, "Thunderstorm with hail", "storm"},
		{999, "Unknown", "unknown"},
	}

	for _, tt := range tests {
		desc, icon := WMOCodeToDescIcon(tt.code)
		if desc != tt.wantDesc || icon != tt.wantIcon {
			t.Errorf("WMOCodeToDescIcon(%d) = %q, %q, want %q, %q", tt.code, desc, icon, tt.wantDesc, tt.wantIcon)
		}
	}
}

const payload = `{
	"current": {"temperature_2m": 41.5, "weather_code": 73},
	"daily": {
		"time": ["2026-01-10", "2026-01-11"],
		"temperature_2m_max": [44.0, 39.0],
		"temperature_2m_min": [28.0, 25.5],
		"weather_code": [73, 3],
		"precipitation_sum": [6.2, 0]
	}
}`

func newTestService(t *testing.T, hits *int32, status *int32) (*Service, *time.Time) {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(hits, 1)
		if code := atomic.LoadInt32(status); code != http.StatusOK {
			w.WriteHeader(int(code))
			return
		}
		if r.URL.Query().Get("latitude") == "" || r.URL.Query().Get("temperature_unit") == "" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		fmt.Fprint(w, payload)
	}))
	t.Cleanup(srv.Close)

	now := time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC)
	svc := NewService()
	svc.baseURL = srv.URL
	svc.now = func() time.Time { return now }
	return svc, &now
}

func TestGetWeatherParsesForecast(t *testing.T) {
	var hits int32
	status := int32(http.StatusOK)
	svc, _ := newTestService(t, &hits, &status)

	data := svc.GetWeather(context.Background(), Location{Latitude: "44.9", Longitude: "-110.7"})
	if !data.Available || !data.Configured {
		t.Fatalf("data = %+v", data)
	}
	if data.CurrentTemp != 41.5 || data.CurrentDesc != "Moderate snow" || data.Unit != "F" {
		t.Errorf("current = %+v", data)
	}
	if data.HighTemp != 44 || data.LowTemp != 28 {
		t.Errorf("high/low = %v/%v", data.HighTemp, data.LowTemp)
	}
	if len(data.Forecast) != 2 || data.Forecast[1].Desc != "Overcast" || data.Forecast[0].PrecipMM != 6.2 {
		t.Errorf("forecast = %+v", data.Forecast)
	}
}

func TestGetWeatherCachesPerLocation(t *testing.T) {
	var hits int32
	status := int32(http.StatusOK)
	svc, now := newTestService(t, &hits, &status)
	ctx := context.Background()
	cabin := Location{Latitude: "44.9", Longitude: "-110.7"}
	lake := Location{Latitude: "46.1", Longitude: "-89.2", TemperatureUnit: "celsius"}

	svc.GetWeather(ctx, cabin)
	svc.GetWeather(ctx, cabin)
	if atomic.LoadInt32(&hits) != 1 {
		t.Fatalf("hits = %d, want 1", hits)
	}
	if got := svc.GetWeather(ctx, lake); got.Unit != "C" {
		t.Errorf("unit = %q, want C", got.Unit)
	}
	if atomic.LoadInt32(&hits) != 2 {
		t.Fatalf("hits = %d, want 2 after second location", hits)
	}

	*now = now.Add(cacheTTL + time.Minute)
	atomic.StoreInt32(&status, http.StatusBadGateway)
	stale := svc.GetWeather(ctx, cabin)
	if atomic.LoadInt32(&hits) != 3 {
		t.Fatalf("hits = %d, want refetch after expiry", hits)
	}
	if !stale.Available || stale.CurrentTemp != 41.5 {
		t.Errorf("expected stale data on fetch error, got %+v", stale)
	}
}

func TestGetWeatherNotConfigured(t *testing.T) {
	svc := NewService()
	data := svc.GetWeather(context.Background(), Location{TemperatureUnit: "celsius"})
	if data.Configured || data.Available {
		t.Errorf("data = %+v", data)
	}
	if data.Unit != "C" {
		t.Errorf("unit = %q", data.Unit)
	}
}
