package main

import (
	"context"
	"errors"
	"testing"
)

type stubGeocoder struct {
	result *GeocodeResult
	err    error
	calls  int
}

func (s *stubGeocoder) Geocode(ctx context.Context, query string) (*GeocodeResult, error) {
	s.calls++
	return s.result, s.err
}

func TestFallbackGeocoder_PrimarySuccess(t *testing.T) {
	primary := &stubGeocoder{result: &GeocodeResult{Lat: -6.914744, Lng: 107.609810}}
	secondary := &stubGeocoder{result: &GeocodeResult{Lat: 1, Lng: 2}}
	chain := &FallbackGeocoder{Primary: primary, Secondary: secondary}

	res, err := chain.Geocode(context.Background(), "Jl. Asia Afrika, Bandung")
	if err != nil {
		t.Fatalf("Geocode returned error: %v", err)
	}
	if res == nil || res.Lat != -6.914744 {
		t.Fatalf("expected primary result, got %+v", res)
	}
	if secondary.calls != 0 {
		t.Fatalf("secondary called %d times, want 0", secondary.calls)
	}
}

func TestFallbackGeocoder_PrimaryError(t *testing.T) {
	primary := &stubGeocoder{err: errors.New("nominatim error: 503")}
	secondary := &stubGeocoder{result: &GeocodeResult{Lat: -7.5, Lng: 110.25}}
	chain := &FallbackGeocoder{Primary: primary, Secondary: secondary}

	res, err := chain.Geocode(context.Background(), "Jl. Malioboro, Yogyakarta")
	if err != nil {
		t.Fatalf("Geocode returned error: %v", err)
	}
	if res == nil || res.Lat != -7.5 || res.Lng != 110.25 {
		t.Fatalf("expected secondary result, got %+v", res)
	}
	if secondary.calls != 1 {
		t.Fatalf("secondary called %d times, want 1", secondary.calls)
	}
}

func TestFallbackGeocoder_PrimaryNoMatch(t *testing.T) {
	primary := &stubGeocoder{}
	secondary := &stubGeocoder{result: &GeocodeResult{Lat: -0.5, Lng: 117.15}}
	chain := &FallbackGeocoder{Primary: primary, Secondary: secondary}

	res, err := chain.Geocode(context.Background(), "alamat tidak dikenal")
	if err != nil {
		t.Fatalf("Geocode returned error: %v", err)
	}
	if res == nil || res.Lng != 117.15 {
		t.Fatalf("expected secondary result, got %+v", res)
	}
}

func TestFallbackGeocoder_BothFail(t *testing.T) {
	primary := &stubGeocoder{err: errors.New("timeout")}
	secondary := &stubGeocoder{err: errors.New("nominatim error: 429")}
	chain := &FallbackGeocoder{Primary: primary, Secondary: secondary}

	res, err := chain.Geocode(context.Background(), "Bandung")
	if err == nil {
		t.Fatal("expected error when both geocoders fail")
	}
	if res != nil {
		t.Fatalf("expected nil result, got %+v", res)
	}
}

func TestGeocodeQuery(t *testing.T) {
	k := Keluarga{
		Alamat:    "Jl. Merdeka No. 1",
		Kelurahan: "  Braga ",
		Kecamatan: "",
		Kota:      "Bandung",
		Provinsi:  "Jawa Barat",
	}
	got := geocodeQuery(k)
	want := "Jl. Merdeka No. 1, Braga, Bandung, Jawa Barat"
	if got != want {
		t.Fatalf("geocodeQuery = %q, want %q", got, want)
	}

	if geocodeQuery(Keluarga{}) != "" {
		t.Fatal("expected empty query for empty keluarga")
	}
}
