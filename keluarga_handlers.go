package main

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
)

func (a *App) keluargaListHandler(c *gin.Context) {
	filters := parseFilterState(c)
	page := parsePage(c.Query("page"))
	perPage := parsePerPage(c.Query("per_page"))
	seq := strings.TrimSpace(c.Query("seq"))

	result, err := a.listKeluarga(c.Request.Context(), filters, page, perPage)
	if err != nil {
		a.log.Error("failed to list keluarga", "err", err)
		writeAPIError(c, err)
		return
	}

	stats, err := a.keluargaStatistics(c.Request.Context(), filters)
	if err != nil {
		a.log.Error("failed to load keluarga statistics", "err", err)
		writeAPIError(c, err)
		return
	}

	views := make([]gin.H, 0, len(result.Keluarga))
	for _, k := range result.Keluarga {
		views = append(views, keluargaView(k))
	}

	envelope := buildPageEnvelope(views, result.TotalCount, result.CurrentPage, result.PageSize,
		listBaseURL("/api/v1/keluarga", filters))

	c.JSON(http.StatusOK, gin.H{
		"keluarga":   envelope,
		"statistics": stats,
		"filters":    filters,
		"seq":        seq,
	})
}

func (a *App) keluargaDetailHandler(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		return
	}

	keluarga, err := a.getKeluargaByID(c.Request.Context(), id)
	if err != nil {
		writeAPIError(c, err)
		return
	}

	anggota, err := a.storeListAnggota(c.Request.Context(), id)
	if err != nil {
		a.log.Error("failed to list anggota", "keluarga_id", id, "err", err)
		writeAPIError(c, err)
		return
	}

	penyaluran, err := a.storeListPenyaluran(c.Request.Context(), id)
	if err != nil {
		a.log.Error("failed to list penyaluran", "keluarga_id", id, "err", err)
		writeAPIError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"keluarga":   keluargaView(*keluarga),
		"anggota":    anggota,
		"penyaluran": penyaluranViews(penyaluran),
	})
}

func (a *App) keluargaCreateHandler(c *gin.Context) {
	var input KeluargaInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_payload", "message": "Invalid request payload"})
		return
	}
	normalizeKeluargaInput(&input)

	if fields := validateKeluargaInput(input); len(fields) > 0 {
		writeAPIError(c, validationError(fields))
		return
	}

	keluarga, err := a.createKeluarga(c.Request.Context(), input)
	if err != nil {
		a.log.Error("failed to create keluarga", "no_kk", input.NoKK, "err", err)
		writeAPIError(c, err)
		return
	}

	a.scheduleGeocode(*keluarga)

	c.JSON(http.StatusCreated, gin.H{"keluarga": keluargaView(*keluarga)})
}

func (a *App) keluargaUpdateHandler(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		return
	}

	var input KeluargaInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_payload", "message": "Invalid request payload"})
		return
	}
	normalizeKeluargaInput(&input)

	if fields := validateKeluargaInput(input); len(fields) > 0 {
		writeAPIError(c, validationError(fields))
		return
	}

	keluarga, err := a.updateKeluarga(c.Request.Context(), id, input)
	if err != nil {
		a.log.Error("failed to update keluarga", "keluarga_id", id, "err", err)
		writeAPIError(c, err)
		return
	}

	a.scheduleGeocode(*keluarga)

	c.JSON(http.StatusOK, gin.H{"keluarga": keluargaView(*keluarga)})
}

// keluargaKoordinatHandler pins the household to an explicit coordinate pair,
// clearing any combined lokasi string so the pair becomes authoritative.
func (a *App) keluargaKoordinatHandler(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		return
	}

	var payload struct {
		Latitude  *string `json:"latitude"`
		Longitude *string `json:"longitude"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_payload", "message": "Invalid request payload"})
		return
	}

	fields := map[string][]string{}
	lat, latOK := parseFiniteFloat(payload.Latitude)
	if !latOK {
		fields["latitude"] = []string{"Latitude harus berupa angka"}
	}
	lng, lngOK := parseFiniteFloat(payload.Longitude)
	if !lngOK {
		fields["longitude"] = []string{"Longitude harus berupa angka"}
	}
	if len(fields) > 0 {
		writeAPIError(c, validationError(fields))
		return
	}

	keluarga, err := a.storeUpdateKeluargaKoordinat(c.Request.Context(), id, lat, lng)
	if err != nil {
		a.log.Error("failed to update koordinat", "keluarga_id", id, "err", err)
		writeAPIError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"keluarga": keluargaView(*keluarga)})
}

// keluargaDeleteHandler requires the caller to echo the record's no_kk as a
// typed confirmation before the row is removed.
func (a *App) keluargaDeleteHandler(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		return
	}

	var payload struct {
		NoKK string `json:"no_kk"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_payload", "message": "Invalid request payload"})
		return
	}

	keluarga, err := a.getKeluargaByID(c.Request.Context(), id)
	if err != nil {
		writeAPIError(c, err)
		return
	}

	if strings.TrimSpace(payload.NoKK) != keluarga.NoKK {
		writeAPIError(c, validationError(map[string][]string{
			"no_kk": {"Nomor KK konfirmasi tidak cocok"},
		}))
		return
	}

	if err := a.deleteKeluarga(c.Request.Context(), id); err != nil {
		a.log.Error("failed to delete keluarga", "keluarga_id", id, "err", err)
		writeAPIError(c, err)
		return
	}

	a.log.Info("keluarga deleted", "keluarga_id", id, "no_kk", keluarga.NoKK)
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func parseIDParam(c *gin.Context) (int, bool) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id < 1 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_id", "message": "Invalid id"})
		return 0, false
	}
	return id, true
}

// keluargaView augments the stored row with the resolved coordinate block
// every consumer of household data renders from.
func keluargaView(k Keluarga) gin.H {
	pos := k.Posisi()
	presentation := statusEkonomiPresentation[k.StatusEkonomi]
	return gin.H{
		"id":               k.ID,
		"no_kk":            k.NoKK,
		"nama_kepala":      k.NamaKepala,
		"alamat":           k.Alamat,
		"rt":               k.RT,
		"rw":               k.RW,
		"kelurahan":        k.Kelurahan,
		"kecamatan":        k.Kecamatan,
		"kota":             k.Kota,
		"provinsi":         k.Provinsi,
		"kode_pos":         k.KodePos,
		"status_ekonomi":   k.StatusEkonomi,
		"status_label":     presentation.Label,
		"badge_color":      presentation.BadgeColor,
		"penghasilan_rata": k.PenghasilanRata,
		"jumlah_anggota":   k.JumlahAnggota,
		"keterangan":       k.Keterangan,
		"koordinat": gin.H{
			"resolved":  pos.Resolved,
			"formatted": pos.Format(),
			"maps_url":  pos.GoogleMapsURL(),
		},
		"created_at": k.CreatedAt,
		"updated_at": k.UpdatedAt,
	}
}

func normalizeKeluargaInput(input *KeluargaInput) {
	input.NoKK = strings.TrimSpace(input.NoKK)
	input.NamaKepala = strings.TrimSpace(input.NamaKepala)
	input.Alamat = strings.TrimSpace(input.Alamat)
	input.RT = strings.TrimSpace(input.RT)
	input.RW = strings.TrimSpace(input.RW)
	input.Kelurahan = strings.TrimSpace(input.Kelurahan)
	input.Kecamatan = strings.TrimSpace(input.Kecamatan)
	input.Kota = strings.TrimSpace(input.Kota)
	input.Provinsi = canonicalProvinsi(strings.TrimSpace(input.Provinsi))
	input.KodePos = strings.TrimSpace(input.KodePos)
	input.StatusEkonomi = strings.TrimSpace(input.StatusEkonomi)
}

func validateKeluargaInput(input KeluargaInput) map[string][]string {
	fields := map[string][]string{}

	if input.NoKK == "" {
		fields["no_kk"] = append(fields["no_kk"], "No. KK wajib diisi")
	} else if len(input.NoKK) != noKKLength || !isAllDigits(input.NoKK) {
		fields["no_kk"] = append(fields["no_kk"], "No. KK harus 16 digit angka")
	}

	if input.NamaKepala == "" {
		fields["nama_kepala"] = append(fields["nama_kepala"], "Nama kepala keluarga wajib diisi")
	}
	if input.Alamat == "" {
		fields["alamat"] = append(fields["alamat"], "Alamat wajib diisi")
	}

	if !containsString(statusEkonomiValues, input.StatusEkonomi) {
		fields["status_ekonomi"] = append(fields["status_ekonomi"], "Status ekonomi tidak valid")
	}

	if input.Provinsi == "" {
		fields["provinsi"] = append(fields["provinsi"], "Provinsi wajib diisi")
	} else if !isValidProvinsi(input.Provinsi) {
		fields["provinsi"] = append(fields["provinsi"], "Provinsi tidak dikenal")
	}
	if input.Kota == "" {
		fields["kota"] = append(fields["kota"], "Kota/Kabupaten wajib diisi")
	} else if len(kotaChoices(input.Provinsi)) > 0 && !kotaBelongsToProvinsi(input.Kota, input.Provinsi) {
		fields["kota"] = append(fields["kota"], "Kota/Kabupaten tidak termasuk provinsi terpilih")
	}

	if input.PenghasilanRata < 0 {
		fields["penghasilan_rata"] = append(fields["penghasilan_rata"], "Penghasilan tidak boleh negatif")
	}
	if input.JumlahAnggota < 1 {
		fields["jumlah_anggota"] = append(fields["jumlah_anggota"], "Jumlah anggota minimal 1")
	}

	if input.Latitude != nil && strings.TrimSpace(*input.Latitude) != "" {
		if _, ok := parseFiniteFloat(input.Latitude); !ok {
			fields["latitude"] = append(fields["latitude"], "Latitude harus berupa angka")
		}
	}
	if input.Longitude != nil && strings.TrimSpace(*input.Longitude) != "" {
		if _, ok := parseFiniteFloat(input.Longitude); !ok {
			fields["longitude"] = append(fields["longitude"], "Longitude harus berupa angka")
		}
	}

	return fields
}

func isAllDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}
