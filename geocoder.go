package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	geocodeTimeout          = 15 * time.Second
	defaultNominatimBaseURL = "https://nominatim.openstreetmap.org"
)

// GeocodeResult is a coordinate found for an address query.
type GeocodeResult struct {
	Lat         float64
	Lng         float64
	DisplayName string
}

// Geocoder abstraction for address-to-coordinate lookup
type Geocoder interface {
	Geocode(ctx context.Context, query string) (*GeocodeResult, error)
}

// NominatimGeocoder implements Geocoder against a Nominatim-compatible search
// endpoint. BaseURL defaults to the public OSM instance.
// CAUTION: the public instance requires a User-Agent and has strict rate
// limits (1 req/sec)
type NominatimGeocoder struct {
	BaseURL   string
	UserAgent string
	Client    *http.Client
	mu        sync.Mutex
	lastCall  time.Time
}

func (g *NominatimGeocoder) Geocode(ctx context.Context, query string) (*GeocodeResult, error) {
	g.mu.Lock()
	elapsed := time.Since(g.lastCall)
	if elapsed < time.Second {
		time.Sleep(time.Second - elapsed)
	}
	g.lastCall = time.Now()
	g.mu.Unlock()

	base := strings.TrimRight(g.BaseURL, "/")
	if base == "" {
		base = defaultNominatimBaseURL
	}
	u := fmt.Sprintf("%s/search?format=jsonv2&q=%s&countrycodes=id&limit=1", base, url.QueryEscape(query))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", g.UserAgent)

	resp, err := g.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("nominatim error: %d", resp.StatusCode)
	}

	var data []struct {
		Lat         string `json:"lat"`
		Lon         string `json:"lon"`
		DisplayName string `json:"display_name"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, err
	}

	if len(data) == 0 {
		return nil, nil // Not found
	}

	lat, latErr := strconv.ParseFloat(data[0].Lat, 64)
	lng, lngErr := strconv.ParseFloat(data[0].Lon, 64)
	if latErr != nil || lngErr != nil || !isFinite(lat) || !isFinite(lng) {
		return nil, fmt.Errorf("nominatim returned unparsable coordinates")
	}

	return &GeocodeResult{Lat: lat, Lng: lng, DisplayName: data[0].DisplayName}, nil
}

// FallbackGeocoder prioritizes first, falls back to second
type FallbackGeocoder struct {
	Primary   Geocoder
	Secondary Geocoder
}

func (g *FallbackGeocoder) Geocode(ctx context.Context, query string) (*GeocodeResult, error) {
	res, err := g.Primary.Geocode(ctx, query)
	if err != nil || res == nil {
		return g.Secondary.Geocode(ctx, query)
	}
	return res, nil
}

// scheduleGeocode fills in a household's coordinate from its address in the
// background when no coordinate was supplied. Best effort, failures only log.
func (a *App) scheduleGeocode(k Keluarga) {
	if a.geocoder == nil || k.Posisi().Resolved {
		return
	}
	query := geocodeQuery(k)
	if query == "" {
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), geocodeTimeout)
		defer cancel()

		result, err := a.geocoder.Geocode(ctx, query)
		if err != nil {
			a.log.Error("geocode failed", "keluarga_id", k.ID, "err", err)
			return
		}
		if result == nil {
			a.log.Info("geocode found no match", "keluarga_id", k.ID, "query", query)
			return
		}

		if _, err := a.storeUpdateKeluargaKoordinat(ctx, k.ID, result.Lat, result.Lng); err != nil {
			a.log.Error("failed to persist geocoded koordinat", "keluarga_id", k.ID, "err", err)
			return
		}
		a.log.Info("geocoded keluarga", "keluarga_id", k.ID, "lat", result.Lat, "lng", result.Lng)
	}()
}

func geocodeQuery(k Keluarga) string {
	parts := []string{}
	for _, part := range []string{k.Alamat, k.Kelurahan, k.Kecamatan, k.Kota, k.Provinsi} {
		if strings.TrimSpace(part) != "" {
			parts = append(parts, strings.TrimSpace(part))
		}
	}
	return strings.Join(parts, ", ")
}
