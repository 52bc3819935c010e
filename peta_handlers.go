package main

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// petaKeluargaHandler returns every filtered household that resolves to a
// coordinate, shaped as map markers.
func (a *App) petaKeluargaHandler(c *gin.Context) {
	filters := parseFilterState(c)
	seq := strings.TrimSpace(c.Query("seq"))

	records, err := a.storeListKeluargaForPeta(c.Request.Context(), filters)
	if err != nil {
		a.log.Error("failed to list keluarga for peta", "err", err)
		writeAPIError(c, err)
		return
	}

	markers := make([]gin.H, 0, len(records))
	perStatus := map[string]int{}
	unresolved := 0
	for _, k := range records {
		pos := k.Posisi()
		if !pos.Resolved {
			unresolved++
			continue
		}
		perStatus[k.StatusEkonomi]++
		markers = append(markers, keluargaMarker(k, pos))
	}

	c.JSON(http.StatusOK, gin.H{
		"markers":    markers,
		"per_status": perStatus,
		"unresolved": unresolved,
		"legend":     statusEkonomiPresentation,
		"filters":    filters,
		"seq":        seq,
	})
}

// petaKeluargaCreateHandler registers a household picked directly on the map.
// Unlike the form flow the coordinate pair is mandatory here.
func (a *App) petaKeluargaCreateHandler(c *gin.Context) {
	var input KeluargaInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_payload", "message": "Invalid request payload"})
		return
	}
	normalizeKeluargaInput(&input)

	fields := validateKeluargaInput(input)
	pos := resolveInputKoordinat(input)
	if !pos.Resolved {
		fields["latitude"] = append(fields["latitude"], "Titik koordinat wajib dipilih pada peta")
	}
	if len(fields) > 0 {
		writeAPIError(c, validationError(fields))
		return
	}

	keluarga, err := a.createKeluarga(c.Request.Context(), input)
	if err != nil {
		a.log.Error("failed to create keluarga from peta", "no_kk", input.NoKK, "err", err)
		writeAPIError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"marker": keluargaMarker(*keluarga, keluarga.Posisi())})
}

func keluargaMarker(k Keluarga, pos Koordinat) gin.H {
	presentation := statusEkonomiPresentation[k.StatusEkonomi]
	return gin.H{
		"id":             k.ID,
		"no_kk":          k.NoKK,
		"nama_kepala":    k.NamaKepala,
		"alamat":         k.Alamat,
		"kota":           k.Kota,
		"provinsi":       k.Provinsi,
		"status_ekonomi": k.StatusEkonomi,
		"status_label":   presentation.Label,
		"marker_color":   presentation.MarkerColor,
		"lat":            pos.Lat,
		"lng":            pos.Lng,
		"koordinat":      pos.Format(),
		"maps_url":       pos.GoogleMapsURL(),
	}
}

func (a *App) storeListKeluargaForPeta(ctx context.Context, filters FilterState) ([]Keluarga, error) {
	query := `SELECT` + keluargaColumns + `
	FROM keluarga
	WHERE 1=1`
	whereClause, args := buildKeluargaFilters(filters)
	query += whereClause
	query += " ORDER BY keluarga.id ASC"

	rows, err := a.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := []Keluarga{}
	for rows.Next() {
		k, err := scanKeluarga(rows, nil)
		if err != nil {
			return nil, err
		}
		records = append(records, k)
	}
	return records, rows.Err()
}
