package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func exportTestRecords() []Keluarga {
	resolved := testKeluarga()
	resolved.Latitude = floatPtr(-6.914744)
	resolved.Longitude = floatPtr(107.60981)

	unresolved := testKeluarga()
	unresolved.ID = 8
	unresolved.NoKK = "3201234567890002"
	unresolved.NamaKepala = "Siti Aminah"
	unresolved.StatusEkonomi = "sangat_miskin"

	return []Keluarga{resolved, unresolved}
}

func TestBuildExportCSV(t *testing.T) {
	table := buildKeluargaExportTable(exportTestRecords())

	out, err := buildExportCSV(table)
	if err != nil {
		t.Fatalf("build csv: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected header plus 2 rows, got %d lines", len(lines))
	}
	if !strings.HasPrefix(lines[0], "no_kk,nama_kepala,alamat") {
		t.Fatalf("unexpected header line: %s", lines[0])
	}
	if !strings.Contains(lines[1], "-6.914744, 107.609810") {
		t.Fatalf("expected formatted coordinate in row: %s", lines[1])
	}
	if !strings.Contains(lines[2], "Belum diatur") {
		t.Fatalf("expected unresolved marker in row: %s", lines[2])
	}
}

func TestBuildKoordinatExportTable(t *testing.T) {
	table, err := buildKoordinatExportTable(exportTestRecords())
	if err != nil {
		t.Fatalf("build table: %v", err)
	}

	if len(table.Rows) != 1 {
		t.Fatalf("only resolved households belong in the table, got %d rows", len(table.Rows))
	}
	if table.Summary["Belum diatur"] != 1 {
		t.Fatalf("expected 1 unresolved household in summary, got %d", table.Summary["Belum diatur"])
	}
	if table.Summary["Miskin"] != 1 {
		t.Fatalf("expected 1 resolved miskin household, got %d", table.Summary["Miskin"])
	}
	if table.GeoJSON == "" {
		t.Fatal("koordinat export must carry a GeoJSON artifact")
	}

	var collection struct {
		Type     string `json:"type"`
		Features []struct {
			Geometry struct {
				Type        string    `json:"type"`
				Coordinates []float64 `json:"coordinates"`
			} `json:"geometry"`
			Properties map[string]any `json:"properties"`
		} `json:"features"`
	}
	if err := json.Unmarshal([]byte(table.GeoJSON), &collection); err != nil {
		t.Fatalf("decode geojson: %v", err)
	}
	if collection.Type != "FeatureCollection" {
		t.Fatalf("expected FeatureCollection, got %q", collection.Type)
	}
	if len(collection.Features) != 1 {
		t.Fatalf("expected 1 feature, got %d", len(collection.Features))
	}
	coords := collection.Features[0].Geometry.Coordinates
	// GeoJSON positions are [lng, lat].
	if coords[0] != 107.60981 || coords[1] != -6.914744 {
		t.Fatalf("unexpected coordinates %v", coords)
	}
	if collection.Features[0].Properties["marker_color"] == "" {
		t.Fatal("expected status marker color in properties")
	}
}

func TestBuildExportXLSX(t *testing.T) {
	table := buildKeluargaExportTable(exportTestRecords())

	data, err := buildExportXLSX(table)
	if err != nil {
		t.Fatalf("build xlsx: %v", err)
	}
	// XLSX is a zip container.
	if len(data) < 4 || data[0] != 'P' || data[1] != 'K' {
		t.Fatal("expected zip magic bytes")
	}
}

func TestBuildExportPDF(t *testing.T) {
	table := buildKeluargaExportTable(exportTestRecords())

	data, err := buildExportPDF(table, len(table.Rows))
	if err != nil {
		t.Fatalf("build pdf: %v", err)
	}
	if !strings.HasPrefix(string(data[:5]), "%PDF-") {
		t.Fatal("expected PDF header")
	}
}

func TestSortedSummaryKeys(t *testing.T) {
	keys := sortedSummaryKeys(map[string]int{
		"Miskin":        3,
		"Sangat Miskin": 7,
		"Rentan Miskin": 3,
	})
	want := []string{"Sangat Miskin", "Miskin", "Rentan Miskin"}
	if len(keys) != len(want) {
		t.Fatalf("expected %d keys, got %d", len(want), len(keys))
	}
	for i := range want {
		if keys[i] != want[i] {
			t.Fatalf("expected order %v, got %v", want, keys)
		}
	}
}

func TestExportGenerateHandler_RejectsUnknownKategori(t *testing.T) {
	app, router := newTestServer(t)

	w := httptest.NewRecorder()
	req := authenticatedRequest(t, app, http.MethodPost, "/api/v1/exports/generate", `{"kategori":"rahasia"}`)
	router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "invalid_kategori") {
		t.Fatalf("expected invalid_kategori error, got %s", w.Body.String())
	}
}

func TestSendExportNotification(t *testing.T) {
	app, _ := newTestServer(t)
	provider := &captureProvider{}
	app.mailer = NewMailer(provider, "noreply@pkh.example.id")
	app.cfg.ExportEmailTo = "dinsos@pkh.example.id"

	app.sendExportNotification(42, "penyaluran", 17)

	msg := provider.lastMsg
	if len(msg.To) != 1 || msg.To[0] != "dinsos@pkh.example.id" {
		t.Fatalf("unexpected recipients %v", msg.To)
	}
	if msg.Subject != "[PKH] Export penyaluran selesai" {
		t.Fatalf("unexpected subject %q", msg.Subject)
	}
	if !strings.Contains(msg.Text, "#42") || !strings.Contains(msg.Text, "17 baris") {
		t.Fatalf("expected export id and row count in body, got %q", msg.Text)
	}
	if !strings.Contains(msg.Text, app.cfg.PublicBaseURL+"/exports") {
		t.Fatalf("expected download page link, got %q", msg.Text)
	}
}
