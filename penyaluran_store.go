package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"time"
)

const penyaluranColumns = `
	id, keluarga_id, tahun_bantuan, bulan_bantuan, nominal_bantuan,
	status_bantuan, tanggal_salur, created_at`

func (a *App) storeListPenyaluran(ctx context.Context, keluargaID int) ([]PenyaluranBantuan, error) {
	query := `SELECT` + penyaluranColumns + `
		FROM penyaluran_bantuan WHERE keluarga_id = $1
		ORDER BY tahun_bantuan DESC, bulan_bantuan DESC`

	rows, err := a.db.QueryContext(ctx, query, keluargaID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	penyaluran := []PenyaluranBantuan{}
	for rows.Next() {
		p, err := scanPenyaluran(rows)
		if err != nil {
			return nil, err
		}
		penyaluran = append(penyaluran, p)
	}
	return penyaluran, rows.Err()
}

func (a *App) storeCreatePenyaluran(ctx context.Context, keluargaID int, input PenyaluranInput) (*PenyaluranBantuan, error) {
	query := `
		INSERT INTO penyaluran_bantuan (
			keluarga_id, tahun_bantuan, bulan_bantuan, nominal_bantuan,
			status_bantuan, tanggal_salur
		) VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING` + penyaluranColumns

	row := a.db.QueryRowContext(ctx, query,
		keluargaID, input.TahunBantuan, input.BulanBantuan,
		input.NominalBantuan, input.StatusBantuan, nullableDate(input.TanggalSalur),
	)

	p, err := scanPenyaluran(row)
	if err != nil {
		return nil, translatePenyaluranConstraint(err)
	}
	return &p, nil
}

func (a *App) storeUpdatePenyaluran(ctx context.Context, id int, input PenyaluranInput) (*PenyaluranBantuan, error) {
	query := `
		UPDATE penyaluran_bantuan SET
			tahun_bantuan = $1, bulan_bantuan = $2, nominal_bantuan = $3,
			status_bantuan = $4, tanggal_salur = $5
		WHERE id = $6
		RETURNING` + penyaluranColumns

	row := a.db.QueryRowContext(ctx, query,
		input.TahunBantuan, input.BulanBantuan, input.NominalBantuan,
		input.StatusBantuan, nullableDate(input.TanggalSalur), id,
	)

	p, err := scanPenyaluran(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errPenyaluranNotFound()
	}
	if err != nil {
		return nil, translatePenyaluranConstraint(err)
	}
	return &p, nil
}

func scanPenyaluran(row rowScanner) (PenyaluranBantuan, error) {
	var p PenyaluranBantuan
	var tanggalSalur sql.NullTime
	var createdAt time.Time

	err := row.Scan(
		&p.ID, &p.KeluargaID, &p.TahunBantuan, &p.BulanBantuan,
		&p.NominalBantuan, &p.StatusBantuan, &tanggalSalur, &createdAt,
	)
	if err != nil {
		return PenyaluranBantuan{}, err
	}

	if tanggalSalur.Valid {
		formatted := tanggalSalur.Time.Format("2006-01-02")
		p.TanggalSalur = &formatted
	}
	p.CreatedAt = createdAt.UTC().Format(time.RFC3339)
	return p, nil
}

func errPenyaluranNotFound() *apiError {
	return &apiError{Status: http.StatusNotFound, Code: "penyaluran_not_found", Message: "Data penyaluran tidak ditemukan"}
}

func translatePenyaluranConstraint(err error) error {
	if err == nil {
		return nil
	}
	if isUniqueViolation(err, "penyaluran_periode_key") {
		return validationError(map[string][]string{
			"bulan_bantuan": {"Penyaluran untuk periode ini sudah tercatat"},
		})
	}
	return err
}
