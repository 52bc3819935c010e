package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"time"
)

const anggotaColumns = `
	id, keluarga_id, nik, nama, jenis_kelamin, tempat_lahir, tanggal_lahir,
	status_hubungan, status_kawin, pendidikan, pekerjaan, created_at, updated_at`

func (a *App) storeListAnggota(ctx context.Context, keluargaID int) ([]AnggotaKeluarga, error) {
	query := `SELECT` + anggotaColumns + `
		FROM anggota_keluarga WHERE keluarga_id = $1
		ORDER BY created_at ASC, id ASC`

	rows, err := a.db.QueryContext(ctx, query, keluargaID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	anggota := []AnggotaKeluarga{}
	for rows.Next() {
		m, err := scanAnggota(rows)
		if err != nil {
			return nil, err
		}
		anggota = append(anggota, m)
	}
	return anggota, rows.Err()
}

func (a *App) storeCreateAnggota(ctx context.Context, keluargaID int, input AnggotaInput) (*AnggotaKeluarga, error) {
	query := `
		INSERT INTO anggota_keluarga (
			keluarga_id, nik, nama, jenis_kelamin, tempat_lahir, tanggal_lahir,
			status_hubungan, status_kawin, pendidikan, pekerjaan
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING` + anggotaColumns

	row := a.db.QueryRowContext(ctx, query,
		keluargaID, input.NIK, input.Nama, input.JenisKelamin,
		input.TempatLahir, nullableDate(input.TanggalLahir), input.StatusHubungan,
		input.StatusKawin, input.Pendidikan, input.Pekerjaan,
	)

	m, err := scanAnggota(row)
	if err != nil {
		return nil, translateAnggotaConstraint(err)
	}
	return &m, nil
}

func (a *App) storeUpdateAnggota(ctx context.Context, id int, input AnggotaInput) (*AnggotaKeluarga, error) {
	query := `
		UPDATE anggota_keluarga SET
			nik = $1, nama = $2, jenis_kelamin = $3, tempat_lahir = $4,
			tanggal_lahir = $5, status_hubungan = $6, status_kawin = $7,
			pendidikan = $8, pekerjaan = $9, updated_at = NOW()
		WHERE id = $10
		RETURNING` + anggotaColumns

	row := a.db.QueryRowContext(ctx, query,
		input.NIK, input.Nama, input.JenisKelamin, input.TempatLahir,
		nullableDate(input.TanggalLahir), input.StatusHubungan, input.StatusKawin,
		input.Pendidikan, input.Pekerjaan, id,
	)

	m, err := scanAnggota(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errAnggotaNotFound()
	}
	if err != nil {
		return nil, translateAnggotaConstraint(err)
	}
	return &m, nil
}

func (a *App) storeGetAnggotaByID(ctx context.Context, id int) (*AnggotaKeluarga, error) {
	query := `SELECT` + anggotaColumns + ` FROM anggota_keluarga WHERE id = $1`
	m, err := scanAnggota(a.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errAnggotaNotFound()
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (a *App) storeDeleteAnggota(ctx context.Context, id int) error {
	result, err := a.db.ExecContext(ctx, `DELETE FROM anggota_keluarga WHERE id = $1`, id)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return errAnggotaNotFound()
	}
	return nil
}

func scanAnggota(row rowScanner) (AnggotaKeluarga, error) {
	var m AnggotaKeluarga
	var tanggalLahir sql.NullTime
	var createdAt, updatedAt time.Time

	err := row.Scan(
		&m.ID, &m.KeluargaID, &m.NIK, &m.Nama, &m.JenisKelamin,
		&m.TempatLahir, &tanggalLahir, &m.StatusHubungan, &m.StatusKawin,
		&m.Pendidikan, &m.Pekerjaan, &createdAt, &updatedAt,
	)
	if err != nil {
		return AnggotaKeluarga{}, err
	}

	if tanggalLahir.Valid {
		m.TanggalLahir = tanggalLahir.Time.Format("2006-01-02")
	}
	m.CreatedAt = createdAt.UTC().Format(time.RFC3339)
	m.UpdatedAt = updatedAt.UTC().Format(time.RFC3339)
	return m, nil
}

// nullableDate maps an empty date string to SQL NULL.
func nullableDate(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func errAnggotaNotFound() *apiError {
	return &apiError{Status: http.StatusNotFound, Code: "anggota_not_found", Message: "Data anggota keluarga tidak ditemukan"}
}

func translateAnggotaConstraint(err error) error {
	if err == nil {
		return nil
	}
	if isUniqueViolation(err, "anggota_keluarga_nik_key") {
		return validationError(map[string][]string{
			"nik": {"NIK sudah terdaftar"},
		})
	}
	return err
}
