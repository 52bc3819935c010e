package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestValidateAnggotaInput(t *testing.T) {
	valid := AnggotaInput{
		NIK:          "3201234567890011",
		Nama:         "Dewi Lestari",
		JenisKelamin: "P",
		TanggalLahir: "1995-04-17",
	}
	if fields := validateAnggotaInput(valid); len(fields) != 0 {
		t.Fatalf("expected no errors, got %v", fields)
	}

	cases := []struct {
		name  string
		input AnggotaInput
		field string
	}{
		{"missing nik", AnggotaInput{Nama: "A", JenisKelamin: "L"}, "nik"},
		{"short nik", AnggotaInput{NIK: "123", Nama: "A", JenisKelamin: "L"}, "nik"},
		{"non-digit nik", AnggotaInput{NIK: "32012345678900ab", Nama: "A", JenisKelamin: "L"}, "nik"},
		{"missing nama", AnggotaInput{NIK: "3201234567890011", JenisKelamin: "L"}, "nama"},
		{"bad jenis kelamin", AnggotaInput{NIK: "3201234567890011", Nama: "A", JenisKelamin: "X"}, "jenis_kelamin"},
		{"bad tanggal lahir", AnggotaInput{NIK: "3201234567890011", Nama: "A", JenisKelamin: "L", TanggalLahir: "17-04-1995"}, "tanggal_lahir"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			fields := validateAnggotaInput(tc.input)
			if _, ok := fields[tc.field]; !ok {
				t.Fatalf("expected error on %q, got %v", tc.field, fields)
			}
		})
	}
}

func TestNormalizeAnggotaInput(t *testing.T) {
	input := AnggotaInput{
		NIK:          " 3201234567890011 ",
		Nama:         "  Dewi Lestari ",
		JenisKelamin: " p ",
	}
	normalizeAnggotaInput(&input)
	if input.NIK != "3201234567890011" {
		t.Fatalf("expected trimmed nik, got %q", input.NIK)
	}
	if input.JenisKelamin != "P" {
		t.Fatalf("expected uppercased jenis kelamin, got %q", input.JenisKelamin)
	}
}

func TestAnggotaCreateHandler_UnknownKeluarga(t *testing.T) {
	app, router := newTestServer(t)

	app.getKeluargaByID = func(ctx context.Context, id int) (*Keluarga, error) {
		return nil, &apiError{Status: http.StatusNotFound, Code: "not_found", Message: "Keluarga tidak ditemukan"}
	}

	w := httptest.NewRecorder()
	req := authenticatedRequest(t, app, http.MethodPost, "/api/v1/keluarga/99/anggota",
		`{"nik":"3201234567890011","nama":"Dewi","jenis_kelamin":"P"}`)
	router.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestAnggotaCreateHandler_ValidationErrors(t *testing.T) {
	app, router := newTestServer(t)

	app.getKeluargaByID = func(ctx context.Context, id int) (*Keluarga, error) {
		k := testKeluarga()
		return &k, nil
	}

	w := httptest.NewRecorder()
	req := authenticatedRequest(t, app, http.MethodPost, "/api/v1/keluarga/7/anggota", `{"nik":"123"}`)
	router.ServeHTTP(w, req)

	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d: %s", w.Code, w.Body.String())
	}
}
