package main

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-pdf/fpdf"
	"github.com/tealeg/xlsx/v2"
)

var exportKategoriValues = []string{"keluarga", "penyaluran", "koordinat"}

type ExportBatch struct {
	ID          int         `json:"id"`
	Kategori    string      `json:"kategori"`
	GeneratedBy string      `json:"generated_by"`
	GeneratedAt string      `json:"generated_at"`
	RowCount    int         `json:"row_count"`
	Filters     FilterState `json:"filters"`
	HasGeoJSON  bool        `json:"has_geojson"`
}

// exportTable is the flat table every artifact format renders from.
type exportTable struct {
	Title   string
	Headers []string
	Rows    [][]string
	Summary map[string]int
	GeoJSON string
}

func (a *App) exportListHandler(c *gin.Context) {
	batches, err := a.listExportBatches(c.Request.Context())
	if err != nil {
		a.log.Error("failed to list exports", "err", err)
		writeAPIError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"exports": batches})
}

func (a *App) exportGenerateHandler(c *gin.Context) {
	session, err := getOperatorSession(c)
	if err != nil {
		writeAPIError(c, &apiError{Status: http.StatusUnauthorized, Code: "unauthorized", Message: "Operator session required"})
		return
	}

	var body struct {
		Kategori string `json:"kategori"`
		FilterState
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		writeAPIError(c, &apiError{Status: http.StatusBadRequest, Code: "invalid_payload", Message: "Invalid payload"})
		return
	}

	kategori := strings.TrimSpace(body.Kategori)
	if !containsString(exportKategoriValues, kategori) {
		writeAPIError(c, &apiError{Status: http.StatusBadRequest, Code: "invalid_kategori", Message: "Kategori export tidak dikenal"})
		return
	}
	filters := normalizeFilterState(body.FilterState)

	batch, err := a.generateExportBatch(c.Request.Context(), kategori, filters, session)
	if err != nil {
		a.log.Error("failed to generate export", "kategori", kategori, "err", err)
		writeAPIError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"export": batch})
}

func (a *App) generateExportBatch(ctx context.Context, kategori string, filters FilterState, session OperatorSession) (*ExportBatch, error) {
	table, err := a.buildExportTable(ctx, kategori, filters)
	if err != nil {
		return nil, err
	}

	csvData, err := buildExportCSV(table)
	if err != nil {
		return nil, err
	}
	xlsxData, err := buildExportXLSX(table)
	if err != nil {
		return nil, err
	}
	pdfData, err := buildExportPDF(table, len(table.Rows))
	if err != nil {
		return nil, err
	}

	filterJSON, err := json.Marshal(filters)
	if err != nil {
		return nil, err
	}

	var exportID int
	if err := a.db.QueryRowContext(ctx, `
		INSERT INTO exports (kategori, generated_by, row_count, filter_json)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`, kategori, session.Email, len(table.Rows), filterJSON).Scan(&exportID); err != nil {
		return nil, err
	}

	exportDir := filepath.Join(a.cfg.DataRoot, "exports", strconv.Itoa(exportID))
	if err := os.MkdirAll(exportDir, 0o755); err != nil {
		return nil, err
	}

	baseName := fmt.Sprintf("pkh-%s-%s", kategori, time.Now().UTC().Format("20060102-150405"))

	csvFile := filepath.Join(exportDir, baseName+".csv")
	xlsxFile := filepath.Join(exportDir, baseName+".xlsx")
	pdfFile := filepath.Join(exportDir, baseName+".pdf")

	if err := os.WriteFile(csvFile, []byte(csvData), 0o644); err != nil {
		return nil, err
	}
	if err := os.WriteFile(xlsxFile, xlsxData, 0o644); err != nil {
		return nil, err
	}
	if err := os.WriteFile(pdfFile, pdfData, 0o644); err != nil {
		return nil, err
	}

	relCSV, _ := filepath.Rel(a.cfg.DataRoot, csvFile)
	relXLSX, _ := filepath.Rel(a.cfg.DataRoot, xlsxFile)
	relPDF, _ := filepath.Rel(a.cfg.DataRoot, pdfFile)

	var geojsonPath any
	hasGeoJSON := table.GeoJSON != ""
	if hasGeoJSON {
		geoFile := filepath.Join(exportDir, baseName+".geojson")
		if err := os.WriteFile(geoFile, []byte(table.GeoJSON), 0o644); err != nil {
			return nil, err
		}
		relGeo, _ := filepath.Rel(a.cfg.DataRoot, geoFile)
		geojsonPath = relGeo
	}

	if _, err := a.db.ExecContext(ctx, `
		UPDATE exports
		SET csv_path = $1, xlsx_path = $2, pdf_path = $3, geojson_path = $4
		WHERE id = $5
	`, relCSV, relXLSX, relPDF, geojsonPath, exportID); err != nil {
		return nil, err
	}

	go a.sendExportNotification(exportID, kategori, len(table.Rows))

	return &ExportBatch{
		ID:          exportID,
		Kategori:    kategori,
		GeneratedBy: session.Email,
		GeneratedAt: time.Now().UTC().Format(time.RFC3339),
		RowCount:    len(table.Rows),
		Filters:     filters,
		HasGeoJSON:  hasGeoJSON,
	}, nil
}

func (a *App) sendExportNotification(exportID int, kategori string, rowCount int) {
	downloadPage := a.cfg.PublicBaseURL + "/exports"
	msg := Message{
		To:      []string{a.cfg.ExportEmailTo},
		Subject: fmt.Sprintf("[PKH] Export %s selesai", kategori),
		HTML: fmt.Sprintf(`<p>Export <b>%s</b> #%d selesai dibuat (%d baris).</p><p><a href="%s">Buka halaman export</a> untuk mengunduh.</p>`,
			kategori, exportID, rowCount, downloadPage),
		Text: fmt.Sprintf("Export %s #%d selesai dibuat (%d baris). Unduh di %s", kategori, exportID, rowCount, downloadPage),
	}
	result, err := a.mailer.Send(msg)
	if err != nil {
		a.log.Error("failed to send export notification", "export_id", exportID, "err", err)
		return
	}
	a.log.Info("export notification sent", "export_id", exportID, "provider", a.mailer.ProviderName(), "message_id", result.ProviderMessageID)
}

func (a *App) buildExportTable(ctx context.Context, kategori string, filters FilterState) (*exportTable, error) {
	switch kategori {
	case "penyaluran":
		return a.buildPenyaluranExportTable(ctx, filters)
	case "koordinat":
		records, err := a.storeListKeluargaForPeta(ctx, filters)
		if err != nil {
			return nil, err
		}
		return buildKoordinatExportTable(records)
	default:
		records, err := a.storeListKeluargaForPeta(ctx, filters)
		if err != nil {
			return nil, err
		}
		return buildKeluargaExportTable(records), nil
	}
}

func buildKeluargaExportTable(records []Keluarga) *exportTable {
	table := &exportTable{
		Title:   "Data Keluarga Penerima PKH",
		Headers: []string{"no_kk", "nama_kepala", "alamat", "kelurahan", "kecamatan", "kota", "provinsi", "status_ekonomi", "penghasilan_rata", "jumlah_anggota", "koordinat"},
		Summary: map[string]int{},
	}
	for _, k := range records {
		table.Summary[statusEkonomiPresentation[k.StatusEkonomi].Label]++
		table.Rows = append(table.Rows, []string{
			k.NoKK,
			k.NamaKepala,
			k.Alamat,
			k.Kelurahan,
			k.Kecamatan,
			k.Kota,
			k.Provinsi,
			k.StatusEkonomi,
			strconv.FormatFloat(k.PenghasilanRata, 'f', 2, 64),
			strconv.Itoa(k.JumlahAnggota),
			k.Posisi().Format(),
		})
	}
	return table
}

func buildKoordinatExportTable(records []Keluarga) (*exportTable, error) {
	table := &exportTable{
		Title:   "Sebaran Koordinat Keluarga PKH",
		Headers: []string{"no_kk", "nama_kepala", "kota", "provinsi", "status_ekonomi", "latitude", "longitude", "maps_url"},
		Summary: map[string]int{},
	}
	plottable := make([]Keluarga, 0, len(records))
	for _, k := range records {
		pos := k.Posisi()
		if !pos.Resolved {
			table.Summary["Belum diatur"]++
			continue
		}
		table.Summary[statusEkonomiPresentation[k.StatusEkonomi].Label]++
		plottable = append(plottable, k)
		table.Rows = append(table.Rows, []string{
			k.NoKK,
			k.NamaKepala,
			k.Kota,
			k.Provinsi,
			k.StatusEkonomi,
			strconv.FormatFloat(pos.Lat, 'f', 6, 64),
			strconv.FormatFloat(pos.Lng, 'f', 6, 64),
			pos.GoogleMapsURL(),
		})
	}

	geoJSON, err := buildExportGeoJSON(plottable)
	if err != nil {
		return nil, err
	}
	table.GeoJSON = geoJSON
	return table, nil
}

func (a *App) buildPenyaluranExportTable(ctx context.Context, filters FilterState) (*exportTable, error) {
	whereClause, args := buildKeluargaFilters(filters)

	tahun := filters.withDefaultTahun(time.Now()).Tahun
	query := fmt.Sprintf(`
		SELECT keluarga.no_kk, keluarga.nama_kepala, keluarga.kota, keluarga.provinsi,
			pb.tahun_bantuan, pb.bulan_bantuan, pb.nominal_bantuan, pb.status_bantuan, pb.tanggal_salur
		FROM penyaluran_bantuan pb
		JOIN keluarga ON keluarga.id = pb.keluarga_id
		WHERE pb.tahun_bantuan = $%d`+whereClause+`
		ORDER BY pb.bulan_bantuan ASC, keluarga.no_kk ASC`, len(args)+1)
	args = append(args, tahun)

	rows, err := a.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	table := &exportTable{
		Title:   fmt.Sprintf("Penyaluran Bantuan PKH %d", tahun),
		Headers: []string{"no_kk", "nama_kepala", "kota", "provinsi", "tahun", "bulan", "nominal", "status_bantuan", "tanggal_salur"},
		Summary: map[string]int{},
	}
	for rows.Next() {
		var noKK, namaKepala, kota, provinsi, statusBantuan string
		var tahunBantuan, bulanBantuan int
		var nominal float64
		var tanggalSalur sql.NullTime
		if err := rows.Scan(&noKK, &namaKepala, &kota, &provinsi, &tahunBantuan, &bulanBantuan, &nominal, &statusBantuan, &tanggalSalur); err != nil {
			return nil, err
		}
		salur := ""
		if tanggalSalur.Valid {
			salur = tanggalSalur.Time.Format("2006-01-02")
		}
		table.Summary[statusBantuan]++
		table.Rows = append(table.Rows, []string{
			noKK,
			namaKepala,
			kota,
			provinsi,
			strconv.Itoa(tahunBantuan),
			bulanName(bulanBantuan),
			strconv.FormatFloat(nominal, 'f', 2, 64),
			statusBantuan,
			salur,
		})
	}
	return table, rows.Err()
}

func buildExportCSV(table *exportTable) (string, error) {
	buffer := bytes.NewBuffer(nil)
	writer := csv.NewWriter(buffer)
	if err := writer.Write(table.Headers); err != nil {
		return "", err
	}
	for _, row := range table.Rows {
		if err := writer.Write(row); err != nil {
			return "", err
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return "", err
	}
	return buffer.String(), nil
}

func buildExportXLSX(table *exportTable) ([]byte, error) {
	file := xlsx.NewFile()
	sheet, err := file.AddSheet("Data")
	if err != nil {
		return nil, err
	}

	headerRow := sheet.AddRow()
	for _, header := range table.Headers {
		headerRow.AddCell().Value = header
	}
	for _, row := range table.Rows {
		sheetRow := sheet.AddRow()
		for _, value := range row {
			sheetRow.AddCell().Value = value
		}
	}

	buffer := bytes.NewBuffer(nil)
	if err := file.Write(buffer); err != nil {
		return nil, err
	}
	return buffer.Bytes(), nil
}

func buildExportPDF(table *exportTable, rowCount int) ([]byte, error) {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.AddPage()
	pdf.SetFont("Helvetica", "", 16)
	pdf.Cell(0, 10, table.Title)

	pdf.Ln(12)

	pdf.SetFont("Helvetica", "", 11)
	pdf.Cell(0, 8, fmt.Sprintf("Dibuat: %s", time.Now().UTC().Format("2006-01-02 15:04 UTC")))
	pdf.Ln(7)
	pdf.Cell(0, 8, fmt.Sprintf("Total baris: %d", rowCount))
	pdf.Ln(10)

	pdf.SetFont("Helvetica", "B", 11)
	pdf.Cell(0, 8, "Ringkasan")
	pdf.Ln(8)
	pdf.SetFont("Helvetica", "", 10)
	for _, key := range sortedSummaryKeys(table.Summary) {
		pdf.Cell(0, 6, fmt.Sprintf("- %s: %d", key, table.Summary[key]))
		pdf.Ln(6)
	}

	buffer := bytes.NewBuffer(nil)
	if err := pdf.Output(buffer); err != nil {
		return nil, err
	}
	return buffer.Bytes(), nil
}

func buildExportGeoJSON(records []Keluarga) (string, error) {
	features := make([]map[string]any, 0, len(records))
	for _, k := range records {
		pos := k.Posisi()
		features = append(features, map[string]any{
			"type": "Feature",
			"geometry": map[string]any{
				"type":        "Point",
				"coordinates": []float64{pos.Lng, pos.Lat},
			},
			"properties": map[string]any{
				"no_kk":          k.NoKK,
				"nama_kepala":    k.NamaKepala,
				"kota":           k.Kota,
				"provinsi":       k.Provinsi,
				"status_ekonomi": k.StatusEkonomi,
				"marker_color":   statusEkonomiPresentation[k.StatusEkonomi].MarkerColor,
			},
		})
	}
	payload := map[string]any{"type": "FeatureCollection", "features": features}
	encoded, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return "", err
	}
	return string(encoded), nil
}

func (a *App) exportDownloadHandler(c *gin.Context) {
	exportID, ok := parseIDParam(c)
	if !ok {
		return
	}
	format := strings.TrimSpace(c.Query("format"))
	if format == "" {
		format = "csv"
	}

	contentType, body, fileName, err := a.getExportAsset(c.Request.Context(), exportID, format)
	if err != nil {
		writeAPIError(c, err)
		return
	}
	c.Header("Content-Type", contentType)
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", fileName))
	_, _ = c.Writer.Write(body)
}

func (a *App) getExportAsset(ctx context.Context, exportID int, format string) (string, []byte, string, error) {
	var kategori string
	var csvPath, xlsxPath, pdfPath string
	var geojsonPath sql.NullString
	var createdAt time.Time
	err := a.db.QueryRowContext(ctx, `
		SELECT kategori, csv_path, xlsx_path, pdf_path, geojson_path, created_at
		FROM exports
		WHERE id = $1
	`, exportID).Scan(&kategori, &csvPath, &xlsxPath, &pdfPath, &geojsonPath, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil, "", &apiError{Status: http.StatusNotFound, Code: "export_not_found", Message: "Export batch not found"}
		}
		return "", nil, "", err
	}

	base := fmt.Sprintf("pkh-%s-%s", kategori, createdAt.UTC().Format("20060102"))

	var selectedPath, contentType, fileName string
	switch format {
	case "csv":
		selectedPath, contentType, fileName = csvPath, "text/csv; charset=utf-8", base+".csv"
	case "xlsx":
		selectedPath, contentType, fileName = xlsxPath, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", base+".xlsx"
	case "pdf":
		selectedPath, contentType, fileName = pdfPath, "application/pdf", base+".pdf"
	case "geojson":
		if !geojsonPath.Valid {
			return "", nil, "", &apiError{Status: http.StatusNotFound, Code: "export_not_found", Message: "GeoJSON artifact not found"}
		}
		selectedPath, contentType, fileName = geojsonPath.String, "application/geo+json; charset=utf-8", base+".geojson"
	default:
		return "", nil, "", &apiError{Status: http.StatusBadRequest, Code: "invalid_format", Message: "Format export tidak dikenal"}
	}

	if selectedPath == "" {
		return "", nil, "", &apiError{Status: http.StatusNotFound, Code: "export_not_found", Message: "Export artifact not found"}
	}

	fullPath := filepath.Join(a.cfg.DataRoot, selectedPath)
	data, err := os.ReadFile(fullPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", nil, "", &apiError{Status: http.StatusNotFound, Code: "export_not_found", Message: "Export artifact not found"}
		}
		return "", nil, "", err
	}

	return contentType, data, fileName, nil
}

func (a *App) listExportBatches(ctx context.Context) ([]ExportBatch, error) {
	rows, err := a.db.QueryContext(ctx, `
		SELECT id, kategori, generated_by, row_count, filter_json, geojson_path, created_at
		FROM exports
		ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	batches := make([]ExportBatch, 0)
	for rows.Next() {
		var batch ExportBatch
		var filterJSON []byte
		var geojsonPath sql.NullString
		var createdAt time.Time
		if err := rows.Scan(&batch.ID, &batch.Kategori, &batch.GeneratedBy, &batch.RowCount, &filterJSON, &geojsonPath, &createdAt); err != nil {
			return nil, err
		}
		if len(filterJSON) > 0 {
			_ = json.Unmarshal(filterJSON, &batch.Filters)
		}
		batch.HasGeoJSON = geojsonPath.Valid
		batch.GeneratedAt = createdAt.UTC().Format(time.RFC3339)
		batches = append(batches, batch)
	}
	return batches, rows.Err()
}

func sortedSummaryKeys(summary map[string]int) []string {
	keys := make([]string, 0, len(summary))
	for key := range summary {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		if summary[keys[i]] != summary[keys[j]] {
			return summary[keys[i]] > summary[keys[j]]
		}
		return keys[i] < keys[j]
	})
	return keys
}
