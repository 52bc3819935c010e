package main

import (
	"testing"
	"time"
)

func TestValidatePenyaluranInput(t *testing.T) {
	valid := PenyaluranInput{
		TahunBantuan:   time.Now().Year(),
		BulanBantuan:   6,
		NominalBantuan: 750000,
		StatusBantuan:  "sudah_terima",
		TanggalSalur:   "2026-06-15",
	}
	if fields := validatePenyaluranInput(valid); len(fields) != 0 {
		t.Fatalf("expected no errors, got %v", fields)
	}

	pending := valid
	pending.StatusBantuan = "belum_terima"
	pending.TanggalSalur = ""
	if fields := validatePenyaluranInput(pending); len(fields) != 0 {
		t.Fatalf("tanggal_salur is optional for belum_terima, got %v", fields)
	}

	cases := []struct {
		name   string
		mutate func(*PenyaluranInput)
		field  string
	}{
		{"tahun too early", func(p *PenyaluranInput) { p.TahunBantuan = 2006 }, "tahun_bantuan"},
		{"tahun too late", func(p *PenyaluranInput) { p.TahunBantuan = time.Now().Year() + 2 }, "tahun_bantuan"},
		{"bulan zero", func(p *PenyaluranInput) { p.BulanBantuan = 0 }, "bulan_bantuan"},
		{"bulan thirteen", func(p *PenyaluranInput) { p.BulanBantuan = 13 }, "bulan_bantuan"},
		{"negative nominal", func(p *PenyaluranInput) { p.NominalBantuan = -1 }, "nominal_bantuan"},
		{"unknown status", func(p *PenyaluranInput) { p.StatusBantuan = "hilang" }, "status_bantuan"},
		{"sudah_terima without date", func(p *PenyaluranInput) { p.TanggalSalur = "" }, "tanggal_salur"},
		{"malformed date", func(p *PenyaluranInput) { p.TanggalSalur = "15/06/2026" }, "tanggal_salur"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			input := valid
			tc.mutate(&input)
			fields := validatePenyaluranInput(input)
			if _, ok := fields[tc.field]; !ok {
				t.Fatalf("expected error on %q, got %v", tc.field, fields)
			}
		})
	}
}

func TestPenyaluranView(t *testing.T) {
	salur := "2026-06-15"
	view := penyaluranView(PenyaluranBantuan{
		ID:             3,
		KeluargaID:     7,
		TahunBantuan:   2026,
		BulanBantuan:   6,
		NominalBantuan: 750000,
		StatusBantuan:  "sudah_terima",
		TanggalSalur:   &salur,
	})
	if view["nama_bulan"] != "Juni" {
		t.Fatalf("expected month name Juni, got %v", view["nama_bulan"])
	}
	if view["status_bantuan"] != "sudah_terima" {
		t.Fatalf("unexpected status %v", view["status_bantuan"])
	}
}

func TestBulanName(t *testing.T) {
	if got := bulanName(1); got != "Januari" {
		t.Fatalf("expected Januari, got %q", got)
	}
	if got := bulanName(12); got != "Desember" {
		t.Fatalf("expected Desember, got %q", got)
	}
	if got := bulanName(0); got != "0" {
		t.Fatalf("expected numeric fallback for out-of-range month, got %q", got)
	}
}
