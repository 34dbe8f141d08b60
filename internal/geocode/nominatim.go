package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"photo-ingest/internal/logging"
	"photo-ingest/internal/metrics"
)

// DefaultBaseURL is the public Nominatim instance.
const DefaultBaseURL = "https://nominatim.openstreetmap.org"

// DefaultMinInterval is the spacing Nominatim's usage policy requires.
const DefaultMinInterval = time.Second

const userAgent = "photo-ingest/1.0"

// Location is the result of a reverse geocoding lookup.
type Location struct {
	Latitude    float64
	Longitude   float64
	Country     string
	City        string
	DisplayName string
}

// Provider resolves coordinates to a Location. A nil Location with a nil
// error means the service had no answer for the point.
type Provider interface {
	ReverseGeocode(ctx context.Context, lat, lon float64) (*Location, error)
}

// Nominatim is a Provider backed by the OpenStreetMap Nominatim API.
type Nominatim struct {
	baseURL string
	client  *http.Client
	gate    *RateGate
}

// NewNominatim creates a provider. An empty baseURL selects the public
// instance; the gate is shared by every caller and must not be nil.
func NewNominatim(baseURL string, gate *RateGate) *Nominatim {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Nominatim{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 15 * time.Second},
		gate:    gate,
	}
}

type nominatimResponse struct {
	Error       string            `json:"error"`
	DisplayName string            `json:"display_name"`
	Address     map[string]string `json:"address"`
}

// cityKeys is the preference order for picking a city-like name from the
// address breakdown. Finer-grained divisions win.
var cityKeys = []string{"district", "city", "town", "county", "state", "village", "hamlet"}

// ReverseGeocode looks up the place containing (lat, lon). It waits on the
// shared rate gate before issuing the request.
func (n *Nominatim) ReverseGeocode(ctx context.Context, lat, lon float64) (*Location, error) {
	if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return nil, fmt.Errorf("coordinates out of range: %f, %f", lat, lon)
	}

	if err := n.gate.Wait(ctx); err != nil {
		return nil, err
	}

	query := url.Values{}
	query.Set("lat", fmt.Sprintf("%f", lat))
	query.Set("lon", fmt.Sprintf("%f", lon))
	query.Set("format", "json")
	query.Set("addressdetails", "1")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		n.baseURL+"/reverse?"+query.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build geocode request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := n.client.Do(req)
	if err != nil {
		metrics.GeocodeRequests.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("geocode request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		metrics.GeocodeRequests.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("geocode service returned status %d", resp.StatusCode)
	}

	var body nominatimResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		metrics.GeocodeRequests.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("failed to decode geocode response: %w", err)
	}

	if body.Error != "" {
		logging.Debug("geocode service had no result for %f, %f: %s", lat, lon, body.Error)
		metrics.GeocodeRequests.WithLabelValues("empty").Inc()
		return nil, nil
	}

	metrics.GeocodeRequests.WithLabelValues("ok").Inc()
	return &Location{
		Latitude:    lat,
		Longitude:   lon,
		Country:     countryFrom(body.Address),
		City:        cityFrom(body.Address),
		DisplayName: body.DisplayName,
	}, nil
}

func countryFrom(address map[string]string) string {
	if country := address["country"]; country != "" {
		return country
	}
	return strings.ToUpper(address["country_code"])
}

func cityFrom(address map[string]string) string {
	for _, key := range cityKeys {
		if value := address[key]; value != "" {
			return value
		}
	}
	return ""
}
