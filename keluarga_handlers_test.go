package main

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func newTestServer(t *testing.T) (*App, *gin.Engine) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	app := &App{
		cfg: &Config{
			Env:              "test",
			AppSigningSecret: "0123456789abcdef",
			PublicBaseURL:    "http://localhost:8080",
		},
		log:         slog.New(slog.NewTextHandler(io.Discard, nil)),
		rateBuckets: make(map[string]rateBucket),
	}
	return app, app.buildRouter()
}

func authenticatedRequest(t *testing.T, app *App, method, target, body string) *http.Request {
	return authenticatedRequestWithSession(t, app, method, target, body,
		OperatorSession{Email: "operator@example.com", Role: "admin"})
}

func authenticatedRequestWithSession(t *testing.T, app *App, method, target, body string, session OperatorSession) *http.Request {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set("content-type", "application/json")
	}
	token, err := app.createOperatorSessionToken(session)
	if err != nil {
		t.Fatalf("create session token: %v", err)
	}
	req.AddCookie(&http.Cookie{Name: operatorCookieName, Value: token, Path: "/"})
	return req
}

func testKeluarga() Keluarga {
	return Keluarga{
		ID:            7,
		NoKK:          "3201234567890001",
		NamaKepala:    "Budi Santoso",
		Alamat:        "Jl. Merdeka No. 1",
		Kota:          "Bandung",
		Provinsi:      "Jawa Barat",
		StatusEkonomi: "miskin",
		JumlahAnggota: 4,
	}
}

func TestKeluargaListHandler(t *testing.T) {
	app, router := newTestServer(t)

	var capturedFilters FilterState
	capturedPage := 0
	app.listKeluarga = func(ctx context.Context, filters FilterState, page, perPage int) (*PaginatedKeluarga, error) {
		capturedFilters = filters
		capturedPage = page
		return &PaginatedKeluarga{
			Keluarga:    []Keluarga{testKeluarga()},
			TotalCount:  31,
			TotalPages:  3,
			CurrentPage: page,
			PageSize:    perPage,
		}, nil
	}
	app.keluargaStatistics = func(ctx context.Context, filters FilterState) (*KeluargaStatistics, error) {
		return &KeluargaStatistics{TotalKeluarga: 31, PerStatus: map[string]int{"miskin": 31}}, nil
	}

	w := httptest.NewRecorder()
	req := authenticatedRequest(t, app, http.MethodGet, "/api/v1/keluarga?status=miskin&page=2&seq=42", "")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "miskin", capturedFilters.Status)
	assert.Equal(t, 2, capturedPage)

	var body struct {
		Keluarga PageEnvelope `json:"keluarga"`
		Seq      string       `json:"seq"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	assert.Equal(t, "42", body.Seq)
	assert.Equal(t, 31, body.Keluarga.Meta.Total)
	assert.Equal(t, 3, body.Keluarga.Meta.LastPage)
	assert.Contains(t, w.Body.String(), "status=miskin")
	assert.Contains(t, w.Body.String(), "Belum diatur")
}

func TestKeluargaListHandler_RequiresSession(t *testing.T) {
	_, router := newTestServer(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/keluarga", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestKeluargaCreateHandler_ValidationErrors(t *testing.T) {
	app, router := newTestServer(t)

	w := httptest.NewRecorder()
	req := authenticatedRequest(t, app, http.MethodPost, "/api/v1/keluarga",
		`{"no_kk":"123","status_ekonomi":"kaya","jumlah_anggota":0}`)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	var body struct {
		Error  string              `json:"error"`
		Errors map[string][]string `json:"errors"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	assert.Equal(t, "validation_failed", body.Error)
	for _, field := range []string{"no_kk", "nama_kepala", "alamat", "status_ekonomi", "provinsi", "kota", "jumlah_anggota"} {
		assert.Contains(t, body.Errors, field)
	}
}

func TestKeluargaCreateHandler_Success(t *testing.T) {
	app, router := newTestServer(t)

	var capturedInput KeluargaInput
	app.createKeluarga = func(ctx context.Context, input KeluargaInput) (*Keluarga, error) {
		capturedInput = input
		k := testKeluarga()
		return &k, nil
	}

	payload := `{
		"no_kk": "3201234567890001",
		"nama_kepala": "Budi Santoso",
		"alamat": "Jl. Merdeka No. 1",
		"provinsi": "jawa barat",
		"kota": "Bandung",
		"status_ekonomi": "miskin",
		"jumlah_anggota": 4,
		"latitude": "-6.2",
		"longitude": "106.816666"
	}`
	w := httptest.NewRecorder()
	req := authenticatedRequest(t, app, http.MethodPost, "/api/v1/keluarga", payload)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "3201234567890001", capturedInput.NoKK)
	assert.Equal(t, "Jawa Barat", capturedInput.Provinsi)
}

func TestKeluargaDeleteHandler_ConfirmationMismatch(t *testing.T) {
	app, router := newTestServer(t)

	app.getKeluargaByID = func(ctx context.Context, id int) (*Keluarga, error) {
		k := testKeluarga()
		return &k, nil
	}
	deleteCalled := false
	app.deleteKeluarga = func(ctx context.Context, id int) error {
		deleteCalled = true
		return nil
	}

	w := httptest.NewRecorder()
	req := authenticatedRequest(t, app, http.MethodDelete, "/api/v1/keluarga/7", `{"no_kk":"9999999999999999"}`)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, w.Body.String(), "no_kk")
	assert.False(t, deleteCalled, "mismatched confirmation must not delete")
}

func TestKeluargaDeleteHandler_Success(t *testing.T) {
	app, router := newTestServer(t)

	app.getKeluargaByID = func(ctx context.Context, id int) (*Keluarga, error) {
		k := testKeluarga()
		return &k, nil
	}
	deletedID := 0
	app.deleteKeluarga = func(ctx context.Context, id int) error {
		deletedID = id
		return nil
	}

	w := httptest.NewRecorder()
	req := authenticatedRequest(t, app, http.MethodDelete, "/api/v1/keluarga/7", `{"no_kk":"3201234567890001"}`)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 7, deletedID)
}

func TestKeluargaKoordinatHandler_RejectsUnparsableValues(t *testing.T) {
	app, router := newTestServer(t)

	w := httptest.NewRecorder()
	req := authenticatedRequest(t, app, http.MethodPut, "/api/v1/keluarga/7/koordinat", `{"latitude":"abc","longitude":"106.8"}`)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, w.Body.String(), "latitude")
}

func TestExportGenerate_RequiresAdminRole(t *testing.T) {
	app, router := newTestServer(t)

	w := httptest.NewRecorder()
	req := authenticatedRequestWithSession(t, app, http.MethodPost, "/api/v1/exports/generate",
		`{"kategori":"keluarga"}`, OperatorSession{Email: "petugas@example.com", Role: "petugas"})
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestKeluargaView_IncludesKoordinatBlock(t *testing.T) {
	k := testKeluarga()
	k.Latitude = floatPtr(-6.2)
	k.Longitude = floatPtr(106.816666)

	view := keluargaView(k)
	koordinat, ok := view["koordinat"].(gin.H)
	if !ok {
		t.Fatal("expected koordinat block")
	}
	assert.Equal(t, true, koordinat["resolved"])
	assert.Equal(t, "-6.200000, 106.816666", koordinat["formatted"])
	assert.Equal(t, "https://www.google.com/maps?q=-6.2,106.816666", koordinat["maps_url"])
	assert.Equal(t, "Miskin", view["status_label"])
}
