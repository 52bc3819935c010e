package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// FilterState is the named filter set shared by the list endpoints, the
// reports and the export generator. Zero values mean "not filtered".
type FilterState struct {
	Search        string `json:"search"`
	Status        string `json:"status"`
	Tahun         int    `json:"tahun"`
	Bulan         int    `json:"bulan"`
	Provinsi      string `json:"provinsi"`
	Kota          string `json:"kota"`
	StatusBantuan string `json:"status_bantuan"`
}

// parseFilterState reads the filter params off the query string and
// normalizes them. Unknown enum values are dropped rather than rejected so a
// stale client link degrades to an unfiltered list.
func parseFilterState(c *gin.Context) FilterState {
	f := FilterState{
		Search:        strings.TrimSpace(c.Query("search")),
		Status:        strings.TrimSpace(c.Query("status")),
		Provinsi:      strings.TrimSpace(c.Query("provinsi")),
		Kota:          strings.TrimSpace(c.Query("kota")),
		StatusBantuan: strings.TrimSpace(c.Query("status_bantuan")),
	}
	if tahun, err := strconv.Atoi(strings.TrimSpace(firstNonEmpty(c.Query("tahun"), c.Query("tahun_bantuan")))); err == nil {
		f.Tahun = tahun
	}
	if bulan, err := strconv.Atoi(strings.TrimSpace(c.Query("bulan"))); err == nil {
		f.Bulan = bulan
	}
	return normalizeFilterState(f)
}

// normalizeFilterState enforces enum membership and the province->city
// cascade: a city not belonging to the selected province resets, and a city
// without a province is meaningless. Normalization is idempotent.
func normalizeFilterState(f FilterState) FilterState {
	if f.Status != "" && !containsString(statusEkonomiValues, f.Status) {
		f.Status = ""
	}
	if f.StatusBantuan != "" && !containsString(statusBantuanValues, f.StatusBantuan) {
		f.StatusBantuan = ""
	}
	if f.Bulan < 1 || f.Bulan > 12 {
		f.Bulan = 0
	}
	if f.Tahun < 0 {
		f.Tahun = 0
	}
	if f.Provinsi != "" {
		if canonical := canonicalProvinsi(f.Provinsi); canonical != "" {
			f.Provinsi = canonical
		} else {
			f.Provinsi = ""
		}
	}
	if f.Kota != "" {
		if f.Provinsi == "" || !kotaBelongsToProvinsi(f.Kota, f.Provinsi) {
			f.Kota = ""
		}
	}
	return f
}

// withDefaultTahun returns the filter set with Tahun defaulted to the current
// calendar year, for the reports that always operate on one year.
func (f FilterState) withDefaultTahun(now time.Time) FilterState {
	if f.Tahun == 0 {
		f.Tahun = now.Year()
	}
	return f
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}

// buildKeluargaFilters renders the filter set to a WHERE-clause fragment and
// its positional args, starting at $1. The fragment always begins with
// " AND" so callers append it after "WHERE 1=1".
func buildKeluargaFilters(f FilterState) (string, []any) {
	whereClause := ""
	args := make([]any, 0)
	argIndex := 1

	if f.Search != "" {
		whereClause += fmt.Sprintf(" AND (keluarga.nama_kepala ILIKE $%d OR keluarga.no_kk ILIKE $%d OR keluarga.alamat ILIKE $%d)", argIndex, argIndex, argIndex)
		args = append(args, "%"+f.Search+"%")
		argIndex++
	}
	if f.Status != "" {
		whereClause += fmt.Sprintf(" AND keluarga.status_ekonomi = $%d", argIndex)
		args = append(args, f.Status)
		argIndex++
	}
	if f.Provinsi != "" {
		whereClause += fmt.Sprintf(" AND LOWER(keluarga.provinsi) = LOWER($%d)", argIndex)
		args = append(args, f.Provinsi)
		argIndex++
	}
	if f.Kota != "" {
		whereClause += fmt.Sprintf(" AND LOWER(keluarga.kota) = LOWER($%d)", argIndex)
		args = append(args, f.Kota)
		argIndex++
	}
	if f.Tahun != 0 || f.Bulan != 0 || f.StatusBantuan != "" {
		sub := "SELECT 1 FROM penyaluran_bantuan pb WHERE pb.keluarga_id = keluarga.id"
		if f.Tahun != 0 {
			sub += fmt.Sprintf(" AND pb.tahun_bantuan = $%d", argIndex)
			args = append(args, f.Tahun)
			argIndex++
		}
		if f.Bulan != 0 {
			sub += fmt.Sprintf(" AND pb.bulan_bantuan = $%d", argIndex)
			args = append(args, f.Bulan)
			argIndex++
		}
		if f.StatusBantuan != "" {
			sub += fmt.Sprintf(" AND pb.status_bantuan = $%d", argIndex)
			args = append(args, f.StatusBantuan)
			argIndex++
		}
		whereClause += " AND EXISTS (" + sub + ")"
	}

	return whereClause, args
}
