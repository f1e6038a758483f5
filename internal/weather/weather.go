// Package weather fetches cabin weather from Open-Meteo.
package weather

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

const (
	cacheTTL       = 30 * time.Minute
	defaultBaseURL = "https://api.open-meteo.com/v1/forecast"
	forecastDays   = 3
)

// Location is an organization's configured weather location.
type Location struct {
	Latitude        string
	Longitude       string
	TemperatureUnit string // "fahrenheit" or "celsius"
}

// Configured reports whether both coordinates are set.
func (l Location) Configured() bool {
	return strings.TrimSpace(l.Latitude) != "" && strings.TrimSpace(l.Longitude) != ""
}

func (l Location) unit() string {
	if l.TemperatureUnit == "celsius" {
		return "celsius"
	}
	return "fahrenheit"
}

func (l Location) key() string {
	return strings.TrimSpace(l.Latitude) + "," + strings.TrimSpace(l.Longitude) + "," + l.unit()
}

// Day is one day of forecast.
type Day struct {
	Date     string  `json:"date"`
	High     float64 `json:"high"`
	Low      float64 `json:"low"`
	Code     int     `json:"code"`
	Desc     string  `json:"description"`
	Icon     string  `json:"icon"`
	PrecipMM float64 `json:"precipitation_mm"`
}

// WeatherData holds the current conditions and a short forecast.
type WeatherData struct {
	CurrentTemp float64   `json:"current_temp"`
	CurrentCode int       `json:"current_code"`
	CurrentDesc string    `json:"current_description"`
	CurrentIcon string    `json:"current_icon"`
	HighTemp    float64   `json:"high_temp"`
	LowTemp     float64   `json:"low_temp"`
	Unit        string    `json:"unit"` // "F" or "C"
	Forecast    []Day     `json:"forecast,omitempty"`
	FetchedAt   time.Time `json:"fetched_at,omitzero"`
	Available   bool      `json:"available"`
	Configured  bool      `json:"configured"`
}

type entry struct {
	data      WeatherData
	lastFetch time.Time
}

// Service fetches weather and caches it per location.
type Service struct {
	client  *http.Client
	baseURL string
	now     func() time.Time

	mu    sync.Mutex
	cache map[string]entry
}

func NewService() *Service {
	return &Service{
		client:  &http.Client{Timeout: 10 * time.Second},
		baseURL: defaultBaseURL,
		now:     time.Now,
		cache:   make(map[string]entry),
	}
}

// GetWeather returns the weather for loc, fetching from the API when the
// cached entry is older than 30 minutes. A failed fetch returns the stale
// entry when there is one.
func (s *Service) GetWeather(ctx context.Context, loc Location) WeatherData {
	unit := "F"
	if loc.unit() == "celsius" {
		unit = "C"
	}
	if !loc.Configured() {
		return WeatherData{Unit: unit}
	}

	key := loc.key()
	s.mu.Lock()
	defer s.mu.Unlock()

	cached, ok := s.cache[key]
	if ok && cached.data.Available && s.now().Sub(cached.lastFetch) < cacheTTL {
		return cached.data
	}

	data, err := s.fetch(ctx, loc)
	if err != nil {
		if ok {
			return cached.data
		}
		return WeatherData{Unit: unit, Configured: true}
	}
	s.cache[key] = entry{data: data, lastFetch: s.now()}
	return data
}

type apiResponse struct {
	Current struct {
		Temperature float64 `json:"temperature_2m"`
		WeatherCode int     `json:"weather_code"`
	} `json:"current"`
	Daily struct {
		Time          []string  `json:"time"`
		TempMax       []float64 `json:"temperature_2m_max"`
		TempMin       []float64 `json:"temperature_2m_min"`
		WeatherCode   []int     `json:"weather_code"`
		Precipitation []float64 `json:"precipitation_sum"`
	} `json:"daily"`
}

func (s *Service) fetch(ctx context.Context, loc Location) (WeatherData, error) {
	q := url.Values{}
	q.Set("latitude", strings.TrimSpace(loc.Latitude))
	q.Set("longitude", strings.TrimSpace(loc.Longitude))
	q.Set("current", "temperature_2m,weather_code")
	q.Set("daily", "temperature_2m_max,temperature_2m_min,weather_code,precipitation_sum")
	q.Set("timezone", "auto")
	q.Set("forecast_days", fmt.Sprint(forecastDays))
	q.Set("temperature_unit", loc.unit())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return WeatherData{}, fmt.Errorf("build weather request: %w", err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return WeatherData{}, fmt.Errorf("weather API request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return WeatherData{}, fmt.Errorf("weather API returned status %d", resp.StatusCode)
	}

	var apiResp apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return WeatherData{}, fmt.Errorf("decode weather response: %w", err)
	}

	unit := "F"
	if loc.unit() == "celsius" {
		unit = "C"
	}
	desc, icon := WMOCodeToDescIcon(apiResp.Current.WeatherCode)
	data := WeatherData{
		CurrentTemp: apiResp.Current.Temperature,
		CurrentCode: apiResp.Current.WeatherCode,
		CurrentDesc: desc,
		CurrentIcon: icon,
		Unit:        unit,
		FetchedAt:   s.now().UTC(),
		Available:   true,
		Configured:  true,
	}

	d := apiResp.Daily
	for i := range d.Time {
		day := Day{Date: d.Time[i]}
		if i < len(d.TempMax) {
			day.High = d.TempMax[i]
		}
		if i < len(d.TempMin) {
			day.Low = d.TempMin[i]
		}
		if i < len(d.WeatherCode) {
			day.Code = d.WeatherCode[i]
		}
		if i < len(d.Precipitation) {
			day.PrecipMM = d.Precipitation[i]
		}
		day.Desc, day.Icon = WMOCodeToDescIcon(day.Code)
		data.Forecast = append(data.Forecast, day)
	}
	if len(data.Forecast) > 0 {
		data.HighTemp = data.Forecast[0].High
		data.LowTemp = data.Forecast[0].Low
	}
	return data, nil
}

// WMOCodeToDescIcon maps a WMO weather code to a description and an icon name.
func WMOCodeToDescIcon(code int) (string, string) {
	switch code {
	case 0:
		return "Clear sky", "clear"
	case 1:
		return "Mainly clear", "mostly-clear"
	case 2:
		return "Partly cloudy", "partly-cloudy"
	case 3:
		return "Overcast", "cloudy"
	case 45, 48:
		return "Foggy", "fog"
	case 51:
		return "Light drizzle", "drizzle"
	case 53:
		return "Moderate drizzle", "drizzle"
	case 55:
		return "Dense drizzle", "rain"
	case 56, 57:
		return "Freezing drizzle", "sleet"
	case 61:
		return "Slight rain", "drizzle"
	case 63:
		return "Moderate rain", "rain"
	case 65:
		return "Heavy rain", "rain"
	case 66, 67:
		return "Freezing rain", "sleet"
	case 71:
		return "Slight snow", "snow"
	case 73:
		return "Moderate snow", "snow"
	case 75:
		return "Heavy snow", "heavy-snow"
	case 77:
		return "Snow grains", "heavy-snow"
	case 80:
		return "Slight showers", "drizzle"
	case 81:
		return "Moderate showers", "rain"
	case 82:
		return "Violent showers", "storm"
	case 85:
		return "Slight snow showers", "snow"
	case 86:
		return "Heavy snow showers", "heavy-snow"
	case 95:
		return "Thunderstorm", "storm"
	case 96, 99:
		return "Thunderstorm with hail", "storm"
	default:
		return "Unknown", "unknown"
	}
}
