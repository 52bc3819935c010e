package main

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// PenyaluranInput is the distribution payload for create and update.
type PenyaluranInput struct {
	TahunBantuan   int     `json:"tahun_bantuan"`
	BulanBantuan   int     `json:"bulan_bantuan"`
	NominalBantuan float64 `json:"nominal_bantuan"`
	StatusBantuan  string  `json:"status_bantuan"`
	TanggalSalur   string  `json:"tanggal_salur"`
}

func (a *App) penyaluranListHandler(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		return
	}

	if _, err := a.getKeluargaByID(c.Request.Context(), id); err != nil {
		writeAPIError(c, err)
		return
	}

	penyaluran, err := a.storeListPenyaluran(c.Request.Context(), id)
	if err != nil {
		a.log.Error("failed to list penyaluran", "keluarga_id", id, "err", err)
		writeAPIError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"penyaluran": penyaluranViews(penyaluran)})
}

func (a *App) penyaluranCreateHandler(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		return
	}

	if _, err := a.getKeluargaByID(c.Request.Context(), id); err != nil {
		writeAPIError(c, err)
		return
	}

	var input PenyaluranInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_payload", "message": "Invalid request payload"})
		return
	}
	normalizePenyaluranInput(&input)

	if fields := validatePenyaluranInput(input); len(fields) > 0 {
		writeAPIError(c, validationError(fields))
		return
	}

	penyaluran, err := a.storeCreatePenyaluran(c.Request.Context(), id, input)
	if err != nil {
		a.log.Error("failed to create penyaluran", "keluarga_id", id, "err", err)
		writeAPIError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"penyaluran": penyaluranView(*penyaluran)})
}

func (a *App) penyaluranUpdateHandler(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		return
	}

	var input PenyaluranInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_payload", "message": "Invalid request payload"})
		return
	}
	normalizePenyaluranInput(&input)

	if fields := validatePenyaluranInput(input); len(fields) > 0 {
		writeAPIError(c, validationError(fields))
		return
	}

	penyaluran, err := a.storeUpdatePenyaluran(c.Request.Context(), id, input)
	if err != nil {
		a.log.Error("failed to update penyaluran", "penyaluran_id", id, "err", err)
		writeAPIError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"penyaluran": penyaluranView(*penyaluran)})
}

func normalizePenyaluranInput(input *PenyaluranInput) {
	input.StatusBantuan = strings.TrimSpace(input.StatusBantuan)
	input.TanggalSalur = strings.TrimSpace(input.TanggalSalur)
}

func validatePenyaluranInput(input PenyaluranInput) map[string][]string {
	fields := map[string][]string{}

	currentYear := time.Now().Year()
	if input.TahunBantuan < 2007 || input.TahunBantuan > currentYear+1 {
		fields["tahun_bantuan"] = append(fields["tahun_bantuan"], "Tahun bantuan tidak valid")
	}
	if input.BulanBantuan < 1 || input.BulanBantuan > 12 {
		fields["bulan_bantuan"] = append(fields["bulan_bantuan"], "Bulan bantuan harus 1 sampai 12")
	}
	if input.NominalBantuan < 0 {
		fields["nominal_bantuan"] = append(fields["nominal_bantuan"], "Nominal tidak boleh negatif")
	}
	if !containsString(statusBantuanValues, input.StatusBantuan) {
		fields["status_bantuan"] = append(fields["status_bantuan"], "Status bantuan tidak valid")
	}
	if input.StatusBantuan == "sudah_terima" && input.TanggalSalur == "" {
		fields["tanggal_salur"] = append(fields["tanggal_salur"], "Tanggal salur wajib diisi untuk bantuan yang sudah diterima")
	}
	if input.TanggalSalur != "" {
		if _, err := time.Parse("2006-01-02", input.TanggalSalur); err != nil {
			fields["tanggal_salur"] = append(fields["tanggal_salur"], "Tanggal salur harus berformat YYYY-MM-DD")
		}
	}

	return fields
}

// penyaluranView decorates a distribution row with its month name for direct
// display in period tables.
func penyaluranView(p PenyaluranBantuan) gin.H {
	return gin.H{
		"id":              p.ID,
		"keluarga_id":     p.KeluargaID,
		"tahun_bantuan":   p.TahunBantuan,
		"bulan_bantuan":   p.BulanBantuan,
		"nama_bulan":      bulanName(p.BulanBantuan),
		"nominal_bantuan": p.NominalBantuan,
		"status_bantuan":  p.StatusBantuan,
		"tanggal_salur":   p.TanggalSalur,
		"created_at":      p.CreatedAt,
	}
}

func penyaluranViews(penyaluran []PenyaluranBantuan) []gin.H {
	views := make([]gin.H, 0, len(penyaluran))
	for _, p := range penyaluran {
		views = append(views, penyaluranView(p))
	}
	return views
}
