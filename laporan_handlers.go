package main

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

func (a *App) laporanStatusEkonomiHandler(c *gin.Context) {
	filters := parseFilterState(c)
	seq := strings.TrimSpace(c.Query("seq"))

	aggregates, err := a.storeLaporanStatusEkonomi(c.Request.Context(), filters)
	if err != nil {
		a.log.Error("failed to build laporan status ekonomi", "err", err)
		writeAPIError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"laporan": aggregates, "filters": filters, "seq": seq})
}

func (a *App) laporanWilayahHandler(c *gin.Context) {
	filters := parseFilterState(c)
	seq := strings.TrimSpace(c.Query("seq"))

	aggregates, err := a.storeLaporanWilayah(c.Request.Context(), filters)
	if err != nil {
		a.log.Error("failed to build laporan wilayah", "err", err)
		writeAPIError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"laporan": aggregates,
		"tahun":   filters.withDefaultTahun(time.Now()).Tahun,
		"filters": filters,
		"seq":     seq,
	})
}

// laporanKoordinatHandler reports coordinate coverage: how many filtered
// households resolve to a plottable point and the rows themselves.
func (a *App) laporanKoordinatHandler(c *gin.Context) {
	filters := parseFilterState(c)
	seq := strings.TrimSpace(c.Query("seq"))

	records, err := a.storeListKeluargaForPeta(c.Request.Context(), filters)
	if err != nil {
		a.log.Error("failed to build laporan koordinat", "err", err)
		writeAPIError(c, err)
		return
	}

	rows := make([]gin.H, 0, len(records))
	sudahDiatur := 0
	for _, k := range records {
		pos := k.Posisi()
		if pos.Resolved {
			sudahDiatur++
		}
		rows = append(rows, gin.H{
			"id":             k.ID,
			"no_kk":          k.NoKK,
			"nama_kepala":    k.NamaKepala,
			"kota":           k.Kota,
			"provinsi":       k.Provinsi,
			"status_ekonomi": k.StatusEkonomi,
			"resolved":       pos.Resolved,
			"koordinat":      pos.Format(),
			"maps_url":       pos.GoogleMapsURL(),
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"laporan": gin.H{
			"total":        len(records),
			"sudah_diatur": sudahDiatur,
			"belum_diatur": len(records) - sudahDiatur,
			"rows":         rows,
		},
		"filters": filters,
		"seq":     seq,
	})
}

func (a *App) laporanPKHHandler(c *gin.Context) {
	filters := parseFilterState(c)
	seq := strings.TrimSpace(c.Query("seq"))

	aggregates, err := a.storeLaporanPKH(c.Request.Context(), filters)
	if err != nil {
		a.log.Error("failed to build laporan pkh", "err", err)
		writeAPIError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"laporan": aggregates,
		"tahun":   filters.withDefaultTahun(time.Now()).Tahun,
		"filters": filters,
		"seq":     seq,
	})
}

func (a *App) laporanTrendHandler(c *gin.Context) {
	filters := parseFilterState(c)
	seq := strings.TrimSpace(c.Query("seq"))

	points, err := a.storeLaporanTrend(c.Request.Context(), filters)
	if err != nil {
		a.log.Error("failed to build laporan trend", "err", err)
		writeAPIError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"laporan": points,
		"tahun":   filters.withDefaultTahun(time.Now()).Tahun,
		"filters": filters,
		"seq":     seq,
	})
}

func (a *App) laporanEfektivitasHandler(c *gin.Context) {
	filters := parseFilterState(c)
	seq := strings.TrimSpace(c.Query("seq"))

	aggregates, err := a.storeLaporanEfektivitas(c.Request.Context(), filters)
	if err != nil {
		a.log.Error("failed to build laporan efektivitas", "err", err)
		writeAPIError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"laporan": aggregates,
		"tahun":   filters.withDefaultTahun(time.Now()).Tahun,
		"filters": filters,
		"seq":     seq,
	})
}
