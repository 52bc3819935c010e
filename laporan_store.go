package main

import (
	"context"
	"fmt"
	"time"
)

type StatusEkonomiAggregate struct {
	StatusEkonomi     string  `json:"status_ekonomi"`
	Label             string  `json:"label"`
	JumlahKeluarga    int     `json:"jumlah_keluarga"`
	JumlahAnggota     int     `json:"jumlah_anggota"`
	RataPenghasilan   float64 `json:"rata_penghasilan"`
	PersenDariTotal   float64 `json:"persen_dari_total"`
}

type WilayahAggregate struct {
	Provinsi       string `json:"provinsi"`
	Kota           string `json:"kota"`
	JumlahKeluarga int    `json:"jumlah_keluarga"`
	SudahTerima    int    `json:"sudah_terima"`
}

type TrendPoint struct {
	Bulan          int     `json:"bulan"`
	NamaBulan      string  `json:"nama_bulan"`
	JumlahPenerima int     `json:"jumlah_penerima"`
	TotalNominal   float64 `json:"total_nominal"`
}

type PKHAggregate struct {
	StatusBantuan  string  `json:"status_bantuan"`
	JumlahKeluarga int     `json:"jumlah_keluarga"`
	TotalNominal   float64 `json:"total_nominal"`
}

type EfektivitasAggregate struct {
	StatusEkonomi  string  `json:"status_ekonomi"`
	Label          string  `json:"label"`
	JumlahKeluarga int     `json:"jumlah_keluarga"`
	SudahTerima    int     `json:"sudah_terima"`
	Cakupan        float64 `json:"cakupan"`
}

func (a *App) storeLaporanStatusEkonomi(ctx context.Context, filters FilterState) ([]StatusEkonomiAggregate, error) {
	whereClause, args := buildKeluargaFilters(filters)

	query := `
		SELECT keluarga.status_ekonomi, COUNT(*),
			COALESCE(SUM(keluarga.jumlah_anggota), 0),
			COALESCE(AVG(keluarga.penghasilan_rata), 0)
		FROM keluarga
		WHERE 1=1` + whereClause + `
		GROUP BY keluarga.status_ekonomi`

	rows, err := a.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	byStatus := map[string]StatusEkonomiAggregate{}
	total := 0
	for rows.Next() {
		var agg StatusEkonomiAggregate
		if err := rows.Scan(&agg.StatusEkonomi, &agg.JumlahKeluarga, &agg.JumlahAnggota, &agg.RataPenghasilan); err != nil {
			return nil, err
		}
		total += agg.JumlahKeluarga
		byStatus[agg.StatusEkonomi] = agg
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Emit in severity order with zero rows present, so the dashboard always
	// renders all five bands.
	result := make([]StatusEkonomiAggregate, 0, len(statusEkonomiValues))
	for _, status := range statusEkonomiValues {
		agg := byStatus[status]
		agg.StatusEkonomi = status
		agg.Label = statusEkonomiPresentation[status].Label
		if total > 0 {
			agg.PersenDariTotal = float64(agg.JumlahKeluarga) * 100 / float64(total)
		}
		result = append(result, agg)
	}
	return result, nil
}

func (a *App) storeLaporanWilayah(ctx context.Context, filters FilterState) ([]WilayahAggregate, error) {
	whereClause, args := buildKeluargaFilters(filters)

	tahun := filters.withDefaultTahun(time.Now()).Tahun
	query := fmt.Sprintf(`
		SELECT keluarga.provinsi, keluarga.kota, COUNT(*),
			COUNT(*) FILTER (WHERE EXISTS (
				SELECT 1 FROM penyaluran_bantuan pb
				WHERE pb.keluarga_id = keluarga.id
				  AND pb.tahun_bantuan = $%d
				  AND pb.status_bantuan = 'sudah_terima'
			))
		FROM keluarga
		WHERE 1=1`+whereClause+`
		GROUP BY keluarga.provinsi, keluarga.kota
		ORDER BY COUNT(*) DESC, keluarga.provinsi, keluarga.kota`, len(args)+1)
	args = append(args, tahun)

	rows, err := a.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []WilayahAggregate{}
	for rows.Next() {
		var agg WilayahAggregate
		if err := rows.Scan(&agg.Provinsi, &agg.Kota, &agg.JumlahKeluarga, &agg.SudahTerima); err != nil {
			return nil, err
		}
		result = append(result, agg)
	}
	return result, rows.Err()
}

func (a *App) storeLaporanPKH(ctx context.Context, filters FilterState) ([]PKHAggregate, error) {
	whereClause, args := buildKeluargaFilters(filters)

	tahun := filters.withDefaultTahun(time.Now()).Tahun
	query := fmt.Sprintf(`
		SELECT pb.status_bantuan, COUNT(DISTINCT pb.keluarga_id), COALESCE(SUM(pb.nominal_bantuan), 0)
		FROM penyaluran_bantuan pb
		JOIN keluarga ON keluarga.id = pb.keluarga_id
		WHERE pb.tahun_bantuan = $%d`+whereClause+`
		GROUP BY pb.status_bantuan`, len(args)+1)
	args = append(args, tahun)

	rows, err := a.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	byStatus := map[string]PKHAggregate{}
	for rows.Next() {
		var agg PKHAggregate
		if err := rows.Scan(&agg.StatusBantuan, &agg.JumlahKeluarga, &agg.TotalNominal); err != nil {
			return nil, err
		}
		byStatus[agg.StatusBantuan] = agg
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	result := make([]PKHAggregate, 0, len(statusBantuanValues))
	for _, status := range statusBantuanValues {
		agg := byStatus[status]
		agg.StatusBantuan = status
		result = append(result, agg)
	}
	return result, nil
}

func (a *App) storeLaporanTrend(ctx context.Context, filters FilterState) ([]TrendPoint, error) {
	whereClause, args := buildKeluargaFilters(filters)

	tahun := filters.withDefaultTahun(time.Now()).Tahun
	query := fmt.Sprintf(`
		SELECT pb.bulan_bantuan, COUNT(DISTINCT pb.keluarga_id), COALESCE(SUM(pb.nominal_bantuan), 0)
		FROM penyaluran_bantuan pb
		JOIN keluarga ON keluarga.id = pb.keluarga_id
		WHERE pb.tahun_bantuan = $%d
		  AND pb.status_bantuan = 'sudah_terima'`+whereClause+`
		GROUP BY pb.bulan_bantuan`, len(args)+1)
	args = append(args, tahun)

	rows, err := a.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	byBulan := map[int]TrendPoint{}
	for rows.Next() {
		var point TrendPoint
		if err := rows.Scan(&point.Bulan, &point.JumlahPenerima, &point.TotalNominal); err != nil {
			return nil, err
		}
		byBulan[point.Bulan] = point
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	result := make([]TrendPoint, 0, 12)
	for bulan := 1; bulan <= 12; bulan++ {
		point := byBulan[bulan]
		point.Bulan = bulan
		point.NamaBulan = bulanName(bulan)
		result = append(result, point)
	}
	return result, nil
}

func (a *App) storeLaporanEfektivitas(ctx context.Context, filters FilterState) ([]EfektivitasAggregate, error) {
	whereClause, args := buildKeluargaFilters(filters)

	tahun := filters.withDefaultTahun(time.Now()).Tahun
	query := fmt.Sprintf(`
		SELECT keluarga.status_ekonomi, COUNT(*),
			COUNT(*) FILTER (WHERE EXISTS (
				SELECT 1 FROM penyaluran_bantuan pb
				WHERE pb.keluarga_id = keluarga.id
				  AND pb.tahun_bantuan = $%d
				  AND pb.status_bantuan = 'sudah_terima'
			))
		FROM keluarga
		WHERE 1=1`+whereClause+`
		GROUP BY keluarga.status_ekonomi`, len(args)+1)
	args = append(args, tahun)

	rows, err := a.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	byStatus := map[string]EfektivitasAggregate{}
	for rows.Next() {
		var agg EfektivitasAggregate
		if err := rows.Scan(&agg.StatusEkonomi, &agg.JumlahKeluarga, &agg.SudahTerima); err != nil {
			return nil, err
		}
		byStatus[agg.StatusEkonomi] = agg
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	result := make([]EfektivitasAggregate, 0, len(statusEkonomiValues))
	for _, status := range statusEkonomiValues {
		agg := byStatus[status]
		agg.StatusEkonomi = status
		agg.Label = statusEkonomiPresentation[status].Label
		if agg.JumlahKeluarga > 0 {
			agg.Cakupan = float64(agg.SudahTerima) * 100 / float64(agg.JumlahKeluarga)
		}
		result = append(result, agg)
	}
	return result, nil
}
