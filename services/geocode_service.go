package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"sync"
	"time"
)

const (
	geocodeTimeout  = 10 * time.Second
	geocodeCacheTTL = 24 * time.Hour
	// Minimum spacing between outbound lookups. Public reverse-geocoding
	// APIs throttle aggressively.
	geocodeMinInterval = time.Second
)

type geocodeEntry struct {
	label    string
	cachedAt time.Time
}

// GeocodeService resolves (lat, lon) to a human-readable place label via a
// Nominatim-style reverse-geocoding API. Results are cached by coordinate
// rounded to two decimals for 24 hours. Lookups never fail the caller: any
// error, timeout or rate-limit skip degrades to a "(lat, lon)" label.
type GeocodeService struct {
	BaseURL string
	Client  *http.Client

	mu       sync.Mutex
	cache    map[string]geocodeEntry
	lastCall time.Time

	// overridable in tests
	ttl         time.Duration
	minInterval time.Duration
}

func NewGeocodeService() *GeocodeService {
	base := os.Getenv("GEOCODE_API_URL")
	if base == "" {
		base = "https://nominatim.openstreetmap.org/reverse"
	}
	return &GeocodeService{
		BaseURL:     base,
		Client:      &http.Client{Timeout: geocodeTimeout},
		cache:       make(map[string]geocodeEntry),
		ttl:         geocodeCacheTTL,
		minInterval: geocodeMinInterval,
	}
}

func geocodeKey(lat, lon float64) string {
	return fmt.Sprintf("%.2f,%.2f", lat, lon)
}

func fallbackLabel(lat, lon float64) string {
	return fmt.Sprintf("(%.4f, %.4f)", lat, lon)
}

// ReverseGeocode returns a place label for the coordinates. It never
// returns an error; the synthesized coordinate label is the fallback.
func (g *GeocodeService) ReverseGeocode(ctx context.Context, lat, lon float64) string {
	key := geocodeKey(lat, lon)

	g.mu.Lock()
	if entry, ok := g.cache[key]; ok && time.Since(entry.cachedAt) < g.ttl {
		g.mu.Unlock()
		return entry.label
	}
	if time.Since(g.lastCall) < g.minInterval {
		// Over the outbound budget; don't queue, just degrade.
		g.mu.Unlock()
		return fallbackLabel(lat, lon)
	}
	g.lastCall = time.Now()
	g.mu.Unlock()

	label, err := g.lookup(ctx, lat, lon)
	if err != nil {
		log.Printf("[Geocode] lookup failed for %s: %v", key, err)
		return fallbackLabel(lat, lon)
	}

	g.mu.Lock()
	// Sweep expired entries while we hold the lock, so the cache stays
	// bounded by the coordinates seen within one TTL window.
	for k, entry := range g.cache {
		if time.Since(entry.cachedAt) >= g.ttl {
			delete(g.cache, k)
		}
	}
	g.cache[key] = geocodeEntry{label: label, cachedAt: time.Now()}
	g.mu.Unlock()

	return label
}

func (g *GeocodeService) lookup(ctx context.Context, lat, lon float64) (string, error) {
	params := url.Values{}
	params.Set("lat", fmt.Sprintf("%f", lat))
	params.Set("lon", fmt.Sprintf("%f", lon))
	params.Set("format", "json")
	params.Set("zoom", "10")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.BaseURL+"?"+params.Encode(), nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", "kindled-backend/1.0")

	resp, err := g.Client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: geocode API returned status %d", ErrUpstream, resp.StatusCode)
	}

	var body struct {
		DisplayName string `json:"display_name"`
		Address     struct {
			City    string `json:"city"`
			Town    string `json:"town"`
			Country string `json:"country"`
		} `json:"address"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", err
	}

	// Prefer a short "City, Country" label over the full display name.
	city := body.Address.City
	if city == "" {
		city = body.Address.Town
	}
	if city != "" && body.Address.Country != "" {
		return city + ", " + body.Address.Country, nil
	}
	if body.DisplayName == "" {
		return "", fmt.Errorf("%w: empty geocode response", ErrUpstream)
	}
	return body.DisplayName, nil
}
