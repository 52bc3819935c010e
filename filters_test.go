package main

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func TestParseFilterState_ReturnsNormalized(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest("GET", "/api/v1/keluarga?search=budi&status=kaya_raya&provinsi=jawa+barat&kota=Surabaya&tahun=2025&bulan=14", nil)

	f := parseFilterState(c)
	if f != normalizeFilterState(f) {
		t.Fatalf("parseFilterState must return an already-normalized state, got %+v", f)
	}
	if f.Status != "" {
		t.Fatalf("unknown status must reset, got %q", f.Status)
	}
	if f.Provinsi != "Jawa Barat" {
		t.Fatalf("expected canonical provinsi, got %q", f.Provinsi)
	}
	if f.Kota != "" {
		t.Fatalf("kota outside provinsi must reset, got %q", f.Kota)
	}
	if f.Bulan != 0 || f.Tahun != 2025 || f.Search != "budi" {
		t.Fatalf("unexpected state %+v", f)
	}
}

func TestNormalizeFilterState_DropsUnknownEnums(t *testing.T) {
	f := normalizeFilterState(FilterState{
		Status:        "kaya_raya",
		StatusBantuan: "mungkin",
		Bulan:         13,
	})
	if f.Status != "" || f.StatusBantuan != "" || f.Bulan != 0 {
		t.Fatalf("unknown enum values must reset, got %+v", f)
	}
}

func TestNormalizeFilterState_KotaCascade(t *testing.T) {
	// City without a province is meaningless.
	f := normalizeFilterState(FilterState{Kota: "Bandung"})
	if f.Kota != "" {
		t.Fatalf("kota without provinsi must reset, got %q", f.Kota)
	}

	// City from another province resets.
	f = normalizeFilterState(FilterState{Provinsi: "Jawa Barat", Kota: "Surabaya"})
	if f.Kota != "" {
		t.Fatalf("kota outside provinsi must reset, got %q", f.Kota)
	}

	// Valid combination survives.
	f = normalizeFilterState(FilterState{Provinsi: "Jawa Barat", Kota: "Bandung"})
	if f.Kota != "Bandung" {
		t.Fatalf("valid kota must survive, got %q", f.Kota)
	}
}

func TestNormalizeFilterState_CanonicalizesProvinsi(t *testing.T) {
	f := normalizeFilterState(FilterState{Provinsi: "jawa barat"})
	if f.Provinsi != "Jawa Barat" {
		t.Fatalf("expected canonical spelling, got %q", f.Provinsi)
	}

	f = normalizeFilterState(FilterState{Provinsi: "Atlantis"})
	if f.Provinsi != "" {
		t.Fatalf("unknown provinsi must reset, got %q", f.Provinsi)
	}
}

func TestNormalizeFilterState_Idempotent(t *testing.T) {
	inputs := []FilterState{
		{},
		{Search: "budi", Status: "miskin", Provinsi: "jawa timur", Kota: "Surabaya", Tahun: 2025, Bulan: 3},
		{Status: "nonsense", Kota: "Bandung"},
		{Provinsi: "Jawa Barat", Kota: "Surabaya", StatusBantuan: "sudah_terima"},
	}
	for _, input := range inputs {
		once := normalizeFilterState(input)
		twice := normalizeFilterState(once)
		if once != twice {
			t.Errorf("normalization not idempotent for %+v: %+v != %+v", input, once, twice)
		}
	}
}

func TestWithDefaultTahun(t *testing.T) {
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	f := FilterState{}.withDefaultTahun(now)
	if f.Tahun != 2025 {
		t.Fatalf("expected default tahun 2025, got %d", f.Tahun)
	}

	f = FilterState{Tahun: 2023}.withDefaultTahun(now)
	if f.Tahun != 2023 {
		t.Fatalf("explicit tahun must survive, got %d", f.Tahun)
	}
}

func TestBuildKeluargaFilters_Empty(t *testing.T) {
	whereClause, args := buildKeluargaFilters(FilterState{})
	if whereClause != "" {
		t.Fatalf("empty filters must produce no clause, got %q", whereClause)
	}
	if len(args) != 0 {
		t.Fatalf("empty filters must produce no args, got %v", args)
	}
}

func TestBuildKeluargaFilters_Search(t *testing.T) {
	whereClause, args := buildKeluargaFilters(FilterState{Search: "budi"})
	if !strings.Contains(whereClause, "nama_kepala ILIKE $1") {
		t.Fatalf("expected search clause, got %q", whereClause)
	}
	if !strings.Contains(whereClause, "no_kk ILIKE $1") {
		t.Fatalf("expected no_kk in search clause, got %q", whereClause)
	}
	if len(args) != 1 || args[0] != "%budi%" {
		t.Fatalf("unexpected args %v", args)
	}
}

func TestBuildKeluargaFilters_PenyaluranSubquery(t *testing.T) {
	whereClause, args := buildKeluargaFilters(FilterState{
		Status:        "miskin",
		Tahun:         2025,
		Bulan:         3,
		StatusBantuan: "sudah_terima",
	})
	if !strings.Contains(whereClause, "keluarga.status_ekonomi = $1") {
		t.Fatalf("expected status clause, got %q", whereClause)
	}
	if !strings.Contains(whereClause, "EXISTS (SELECT 1 FROM penyaluran_bantuan pb") {
		t.Fatalf("expected EXISTS subquery, got %q", whereClause)
	}
	if !strings.Contains(whereClause, "pb.tahun_bantuan = $2") ||
		!strings.Contains(whereClause, "pb.bulan_bantuan = $3") ||
		!strings.Contains(whereClause, "pb.status_bantuan = $4") {
		t.Fatalf("expected sequential placeholders, got %q", whereClause)
	}
	if len(args) != 4 {
		t.Fatalf("expected 4 args, got %v", args)
	}
}

func TestBuildPaginatedKeluargaQuery(t *testing.T) {
	query, args := buildPaginatedKeluargaQuery(FilterState{Provinsi: "Jawa Barat"}, 2, 15)
	if !strings.Contains(query, "COUNT(*) OVER() AS total_count") {
		t.Fatalf("expected windowed count, got %q", query)
	}
	if !strings.Contains(query, "LIMIT $2 OFFSET $3") {
		t.Fatalf("expected limit/offset placeholders, got %q", query)
	}
	if len(args) != 3 || args[1] != 15 || args[2] != 15 {
		t.Fatalf("unexpected args %v", args)
	}
}
