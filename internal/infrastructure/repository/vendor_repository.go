package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/claimsight/risk-engine/internal/domain/vendor"
)

// VendorRepository handles vendor spend reads and anomaly persistence
type VendorRepository struct {
	db *pgxpool.Pool
}

// NewVendorRepository creates a new vendor repository
func NewVendorRepository(db *pgxpool.Pool) *VendorRepository {
	return &VendorRepository{db: db}
}

// MonthlySpend returns monthly invoice totals per vendor since the given
// time, ordered by vendor then month ascending. Chronological order within
// a vendor is required by the scanner.
func (r *VendorRepository) MonthlySpend(ctx context.Context, since time.Time) ([]vendor.SpendPoint, error) {
	query := `
		SELECT vendor, date_trunc('month', invoice_date) AS month, SUM(amount)
		FROM vendor_invoices
		WHERE invoice_date >= $1
		GROUP BY vendor, date_trunc('month', invoice_date)
		ORDER BY vendor, month`

	rows, err := r.db.Query(ctx, query, since)
	if err != nil {
		return nil, fmt.Errorf("failed to query monthly vendor spend: %w", err)
	}
	defer rows.Close()

	var points []vendor.SpendPoint
	for rows.Next() {
		var p vendor.SpendPoint
		if err := rows.Scan(&p.Vendor, &p.Month, &p.Total); err != nil {
			return nil, fmt.Errorf("failed to scan spend point: %w", err)
		}
		points = append(points, p)
	}

	return points, rows.Err()
}

// SaveAnomaly persists one anomaly record
func (r *VendorRepository) SaveAnomaly(ctx context.Context, rec *vendor.AnomalyRecord) error {
	query := `
		INSERT INTO vendor_anomalies (
			id, vendor, month, latest_total, mean, stddev,
			deviation, tier, notified, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err := r.db.Exec(ctx, query,
		rec.ID, rec.Vendor, rec.Month, rec.LatestTotal, rec.Mean, rec.StdDev,
		rec.Deviation, string(rec.Tier), rec.Notified, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save anomaly record: %w", err)
	}

	return nil
}
