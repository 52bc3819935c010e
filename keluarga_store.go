package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"
)

type PaginatedKeluarga struct {
	Keluarga    []Keluarga
	TotalCount  int
	TotalPages  int
	CurrentPage int
	PageSize    int
}

// KeluargaStatistics backs the summary cards above the household table.
type KeluargaStatistics struct {
	TotalKeluarga int            `json:"total_keluarga"`
	TotalAnggota  int            `json:"total_anggota"`
	PerStatus     map[string]int `json:"per_status"`
	SudahTerima   int            `json:"sudah_terima"`
	BelumTerima   int            `json:"belum_terima"`
}

const keluargaColumns = `
	keluarga.id, keluarga.no_kk, keluarga.nama_kepala, keluarga.alamat,
	keluarga.rt, keluarga.rw, keluarga.kelurahan, keluarga.kecamatan,
	keluarga.kota, keluarga.provinsi, keluarga.kode_pos,
	keluarga.status_ekonomi, keluarga.penghasilan_rata, keluarga.jumlah_anggota,
	keluarga.keterangan, keluarga.latitude, keluarga.longitude, keluarga.lokasi,
	keluarga.created_at, keluarga.updated_at`

func (a *App) storeListKeluargaPaginated(ctx context.Context, filters FilterState, page, pageSize int) (*PaginatedKeluarga, error) {
	if page < defaultPage {
		page = defaultPage
	}
	if pageSize < 1 {
		pageSize = defaultPerPage
	}

	query, args := buildPaginatedKeluargaQuery(filters, page, pageSize)
	rows, err := a.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := []Keluarga{}
	totalCount := 0

	for rows.Next() {
		k, err := scanKeluarga(rows, &totalCount)
		if err != nil {
			return nil, err
		}
		records = append(records, k)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	totalPages := 0
	if totalCount > 0 {
		totalPages = (totalCount + pageSize - 1) / pageSize
	}

	return &PaginatedKeluarga{
		Keluarga:    records,
		TotalCount:  totalCount,
		TotalPages:  totalPages,
		CurrentPage: page,
		PageSize:    pageSize,
	}, nil
}

func buildPaginatedKeluargaQuery(filters FilterState, page, pageSize int) (string, []any) {
	query := `SELECT` + keluargaColumns + `,
	COUNT(*) OVER() AS total_count
	FROM keluarga
	WHERE 1=1`

	whereClause, args := buildKeluargaFilters(filters)
	query += whereClause
	query += " ORDER BY keluarga.created_at DESC, keluarga.id DESC"

	offset := (page - 1) * pageSize
	query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
	args = append(args, pageSize, offset)

	return query, args
}

func (a *App) storeGetKeluargaByID(ctx context.Context, id int) (*Keluarga, error) {
	query := `SELECT` + keluargaColumns + ` FROM keluarga WHERE keluarga.id = $1`
	row := a.db.QueryRowContext(ctx, query, id)

	k, err := scanKeluarga(row, nil)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errKeluargaNotFound()
	}
	if err != nil {
		return nil, err
	}
	return &k, nil
}

func (a *App) storeCreateKeluarga(ctx context.Context, input KeluargaInput) (*Keluarga, error) {
	pos := resolveInputKoordinat(input)

	query := `
		INSERT INTO keluarga (
			no_kk, nama_kepala, alamat, rt, rw, kelurahan, kecamatan,
			kota, provinsi, kode_pos, status_ekonomi, penghasilan_rata,
			jumlah_anggota, keterangan, latitude, longitude, lokasi
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		RETURNING` + keluargaColumns

	row := a.db.QueryRowContext(ctx, query,
		input.NoKK, input.NamaKepala, input.Alamat, input.RT, input.RW,
		input.Kelurahan, input.Kecamatan, input.Kota, input.Provinsi,
		input.KodePos, input.StatusEkonomi, input.PenghasilanRata,
		input.JumlahAnggota, input.Keterangan,
		koordinatLatArg(pos), koordinatLngArg(pos), input.Lokasi,
	)

	k, err := scanKeluarga(row, nil)
	if err != nil {
		return nil, translateKeluargaConstraint(err)
	}
	return &k, nil
}

func (a *App) storeUpdateKeluarga(ctx context.Context, id int, input KeluargaInput) (*Keluarga, error) {
	pos := resolveInputKoordinat(input)

	query := `
		UPDATE keluarga SET
			no_kk = $1, nama_kepala = $2, alamat = $3, rt = $4, rw = $5,
			kelurahan = $6, kecamatan = $7, kota = $8, provinsi = $9,
			kode_pos = $10, status_ekonomi = $11, penghasilan_rata = $12,
			jumlah_anggota = $13, keterangan = $14,
			latitude = $15, longitude = $16, lokasi = $17,
			updated_at = NOW()
		WHERE id = $18
		RETURNING` + keluargaColumns

	row := a.db.QueryRowContext(ctx, query,
		input.NoKK, input.NamaKepala, input.Alamat, input.RT, input.RW,
		input.Kelurahan, input.Kecamatan, input.Kota, input.Provinsi,
		input.KodePos, input.StatusEkonomi, input.PenghasilanRata,
		input.JumlahAnggota, input.Keterangan,
		koordinatLatArg(pos), koordinatLngArg(pos), input.Lokasi,
		id,
	)

	k, err := scanKeluarga(row, nil)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errKeluargaNotFound()
	}
	if err != nil {
		return nil, translateKeluargaConstraint(err)
	}
	return &k, nil
}

func (a *App) storeUpdateKeluargaKoordinat(ctx context.Context, id int, lat, lng float64) (*Keluarga, error) {
	query := `
		UPDATE keluarga SET
			latitude = $1, longitude = $2, lokasi = NULL, updated_at = NOW()
		WHERE id = $3
		RETURNING` + keluargaColumns

	row := a.db.QueryRowContext(ctx, query, lat, lng, id)
	k, err := scanKeluarga(row, nil)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errKeluargaNotFound()
	}
	if err != nil {
		return nil, err
	}
	return &k, nil
}

func (a *App) storeDeleteKeluarga(ctx context.Context, id int) error {
	result, err := a.db.ExecContext(ctx, `DELETE FROM keluarga WHERE id = $1`, id)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return errKeluargaNotFound()
	}
	return nil
}

func (a *App) storeKeluargaStatistics(ctx context.Context, filters FilterState) (*KeluargaStatistics, error) {
	whereClause, args := buildKeluargaFilters(filters)

	stats := &KeluargaStatistics{PerStatus: map[string]int{}}

	query := `
		SELECT keluarga.status_ekonomi, COUNT(*), COALESCE(SUM(keluarga.jumlah_anggota), 0)
		FROM keluarga
		WHERE 1=1` + whereClause + `
		GROUP BY keluarga.status_ekonomi`

	rows, err := a.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var status string
		var count, anggota int
		if err := rows.Scan(&status, &count, &anggota); err != nil {
			return nil, err
		}
		stats.PerStatus[status] = count
		stats.TotalKeluarga += count
		stats.TotalAnggota += anggota
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	tahun := filters.Tahun
	if tahun == 0 {
		tahun = time.Now().Year()
	}

	receivedQuery := `
		SELECT COUNT(DISTINCT keluarga.id)
		FROM keluarga
		WHERE 1=1` + whereClause + fmt.Sprintf(`
		AND EXISTS (
			SELECT 1 FROM penyaluran_bantuan pb
			WHERE pb.keluarga_id = keluarga.id
			  AND pb.tahun_bantuan = $%d
			  AND pb.status_bantuan = 'sudah_terima'
		)`, len(args)+1)

	receivedArgs := append(append([]any{}, args...), tahun)
	if err := a.db.QueryRowContext(ctx, receivedQuery, receivedArgs...).Scan(&stats.SudahTerima); err != nil {
		return nil, err
	}
	stats.BelumTerima = stats.TotalKeluarga - stats.SudahTerima

	return stats, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

// scanKeluarga reads one household row in keluargaColumns order. When
// totalCount is non-nil the row is expected to carry a trailing
// COUNT(*) OVER() column.
func scanKeluarga(row rowScanner, totalCount *int) (Keluarga, error) {
	var k Keluarga
	var keterangan, lokasi sql.NullString
	var latitude, longitude sql.NullFloat64
	var createdAt, updatedAt time.Time

	dest := []any{
		&k.ID, &k.NoKK, &k.NamaKepala, &k.Alamat,
		&k.RT, &k.RW, &k.Kelurahan, &k.Kecamatan,
		&k.Kota, &k.Provinsi, &k.KodePos,
		&k.StatusEkonomi, &k.PenghasilanRata, &k.JumlahAnggota,
		&keterangan, &latitude, &longitude, &lokasi,
		&createdAt, &updatedAt,
	}
	if totalCount != nil {
		dest = append(dest, totalCount)
	}

	if err := row.Scan(dest...); err != nil {
		return Keluarga{}, err
	}

	if keterangan.Valid {
		k.Keterangan = &keterangan.String
	}
	if latitude.Valid {
		k.Latitude = &latitude.Float64
	}
	if longitude.Valid {
		k.Longitude = &longitude.Float64
	}
	if lokasi.Valid {
		k.Lokasi = &lokasi.String
	}
	k.CreatedAt = createdAt.UTC().Format(time.RFC3339)
	k.UpdatedAt = updatedAt.UTC().Format(time.RFC3339)

	return k, nil
}

// resolveInputKoordinat applies the stored-shape precedence to the raw
// create/update payload before persisting.
func resolveInputKoordinat(input KeluargaInput) Koordinat {
	return ResolveKoordinat(input.Latitude, input.Longitude, input.Lokasi)
}

func koordinatLatArg(pos Koordinat) any {
	if !pos.Resolved {
		return nil
	}
	return pos.Lat
}

func koordinatLngArg(pos Koordinat) any {
	if !pos.Resolved {
		return nil
	}
	return pos.Lng
}

func errKeluargaNotFound() *apiError {
	return &apiError{Status: http.StatusNotFound, Code: "keluarga_not_found", Message: "Data keluarga tidak ditemukan"}
}

func translateKeluargaConstraint(err error) error {
	if err == nil {
		return nil
	}
	if isUniqueViolation(err, "keluarga_no_kk_key") {
		return validationError(map[string][]string{
			"no_kk": {"No. KK sudah terdaftar"},
		})
	}
	return err
}
