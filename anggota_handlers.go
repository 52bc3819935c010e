package main

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// AnggotaInput is the member payload for create and update. TanggalLahir is
// optional and arrives as YYYY-MM-DD.
type AnggotaInput struct {
	NIK            string `json:"nik"`
	Nama           string `json:"nama"`
	JenisKelamin   string `json:"jenis_kelamin"`
	TempatLahir    string `json:"tempat_lahir"`
	TanggalLahir   string `json:"tanggal_lahir"`
	StatusHubungan string `json:"status_hubungan"`
	StatusKawin    string `json:"status_kawin"`
	Pendidikan     string `json:"pendidikan"`
	Pekerjaan      string `json:"pekerjaan"`
}

func (a *App) anggotaListHandler(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		return
	}

	if _, err := a.getKeluargaByID(c.Request.Context(), id); err != nil {
		writeAPIError(c, err)
		return
	}

	anggota, err := a.storeListAnggota(c.Request.Context(), id)
	if err != nil {
		a.log.Error("failed to list anggota", "keluarga_id", id, "err", err)
		writeAPIError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"anggota": anggota})
}

func (a *App) anggotaCreateHandler(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		return
	}

	if _, err := a.getKeluargaByID(c.Request.Context(), id); err != nil {
		writeAPIError(c, err)
		return
	}

	var input AnggotaInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_payload", "message": "Invalid request payload"})
		return
	}
	normalizeAnggotaInput(&input)

	if fields := validateAnggotaInput(input); len(fields) > 0 {
		writeAPIError(c, validationError(fields))
		return
	}

	anggota, err := a.storeCreateAnggota(c.Request.Context(), id, input)
	if err != nil {
		a.log.Error("failed to create anggota", "keluarga_id", id, "err", err)
		writeAPIError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"anggota": anggota})
}

func (a *App) anggotaUpdateHandler(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		return
	}

	var input AnggotaInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_payload", "message": "Invalid request payload"})
		return
	}
	normalizeAnggotaInput(&input)

	if fields := validateAnggotaInput(input); len(fields) > 0 {
		writeAPIError(c, validationError(fields))
		return
	}

	anggota, err := a.storeUpdateAnggota(c.Request.Context(), id, input)
	if err != nil {
		a.log.Error("failed to update anggota", "anggota_id", id, "err", err)
		writeAPIError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"anggota": anggota})
}

// anggotaDeleteHandler requires the caller to echo the member's NIK before
// the row is removed, mirroring the household delete confirmation.
func (a *App) anggotaDeleteHandler(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		return
	}

	var payload struct {
		NIK string `json:"nik"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_payload", "message": "Invalid request payload"})
		return
	}

	anggota, err := a.storeGetAnggotaByID(c.Request.Context(), id)
	if err != nil {
		writeAPIError(c, err)
		return
	}

	if strings.TrimSpace(payload.NIK) != anggota.NIK {
		writeAPIError(c, validationError(map[string][]string{
			"nik": {"NIK konfirmasi tidak cocok"},
		}))
		return
	}

	if err := a.storeDeleteAnggota(c.Request.Context(), id); err != nil {
		a.log.Error("failed to delete anggota", "anggota_id", id, "err", err)
		writeAPIError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func normalizeAnggotaInput(input *AnggotaInput) {
	input.NIK = strings.TrimSpace(input.NIK)
	input.Nama = strings.TrimSpace(input.Nama)
	input.JenisKelamin = strings.ToUpper(strings.TrimSpace(input.JenisKelamin))
	input.TempatLahir = strings.TrimSpace(input.TempatLahir)
	input.TanggalLahir = strings.TrimSpace(input.TanggalLahir)
	input.StatusHubungan = strings.TrimSpace(input.StatusHubungan)
	input.StatusKawin = strings.TrimSpace(input.StatusKawin)
	input.Pendidikan = strings.TrimSpace(input.Pendidikan)
	input.Pekerjaan = strings.TrimSpace(input.Pekerjaan)
}

func validateAnggotaInput(input AnggotaInput) map[string][]string {
	fields := map[string][]string{}

	if input.NIK == "" {
		fields["nik"] = append(fields["nik"], "NIK wajib diisi")
	} else if len(input.NIK) != nikLength || !isAllDigits(input.NIK) {
		fields["nik"] = append(fields["nik"], "NIK harus 16 digit angka")
	}

	if input.Nama == "" {
		fields["nama"] = append(fields["nama"], "Nama wajib diisi")
	}

	if !containsString(jenisKelaminValues, input.JenisKelamin) {
		fields["jenis_kelamin"] = append(fields["jenis_kelamin"], "Jenis kelamin harus L atau P")
	}

	if input.TanggalLahir != "" {
		if _, err := time.Parse("2006-01-02", input.TanggalLahir); err != nil {
			fields["tanggal_lahir"] = append(fields["tanggal_lahir"], "Tanggal lahir harus berformat YYYY-MM-DD")
		}
	}

	return fields
}
