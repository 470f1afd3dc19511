package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"
)

// CompsDB reads sale and rent comparables from the analytics Postgres database
type CompsDB struct {
	conn *sql.DB
}

func NewCompsDB(host string, port int, user, password, dbname, sslmode string) (*CompsDB, error) {
	if sslmode == "" {
		sslmode = "disable"
	}
	connStr := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		host, port, user, password, dbname, sslmode)

	conn, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, err
	}

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping comps database: %w", err)
	}

	return &CompsDB{conn: conn}, nil
}

// NewCompsDBFromConn wraps an existing connection
func NewCompsDBFromConn(conn *sql.DB) *CompsDB {
	return &CompsDB{conn: conn}
}

func (db *CompsDB) Close() error {
	return db.conn.Close()
}

// InitSchema creates the comparables tables if they don't exist
func (db *CompsDB) InitSchema(ctx context.Context) error {
	query := `
	CREATE TABLE IF NOT EXISTS sale_comps (
		id BIGSERIAL PRIMARY KEY,
		area_slug VARCHAR(120) NOT NULL,
		price_eur INTEGER NOT NULL,
		area_m2 DECIMAL(10, 2) NOT NULL,
		closed_at TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS rent_comps (
		id BIGSERIAL PRIMARY KEY,
		area_slug VARCHAR(120) NOT NULL,
		rent_eur INTEGER NOT NULL,
		area_m2 DECIMAL(10, 2) NOT NULL,
		observed_at TIMESTAMP NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_sale_comps_area ON sale_comps(area_slug, closed_at DESC);
	CREATE INDEX IF NOT EXISTS idx_rent_comps_area ON rent_comps(area_slug, observed_at DESC);
	`
	_, err := db.conn.ExecContext(ctx, query)
	return err
}

// SaleCompsByArea returns closed-sale EUR/m² values per area slug since the cutoff
func (db *CompsDB) SaleCompsByArea(ctx context.Context, areaSlugs []string, since time.Time) (map[string][]float64, error) {
	query := `
		SELECT area_slug, price_eur / area_m2
		FROM sale_comps
		WHERE area_slug = ANY($1) AND area_m2 > 0 AND closed_at >= $2
		ORDER BY area_slug, closed_at DESC
	`
	return db.perM2ByArea(ctx, query, areaSlugs, since)
}

// RentCompsByArea returns monthly rent EUR/m² values per area slug since the cutoff
func (db *CompsDB) RentCompsByArea(ctx context.Context, areaSlugs []string, since time.Time) (map[string][]float64, error) {
	query := `
		SELECT area_slug, rent_eur / area_m2
		FROM rent_comps
		WHERE area_slug = ANY($1) AND area_m2 > 0 AND observed_at >= $2
		ORDER BY area_slug, observed_at DESC
	`
	return db.perM2ByArea(ctx, query, areaSlugs, since)
}

// RentCompsPerM2 returns the rent comparables of one area from the last year
func (db *CompsDB) RentCompsPerM2(ctx context.Context, areaSlug string) ([]float64, error) {
	byArea, err := db.RentCompsByArea(ctx, []string{areaSlug}, time.Now().AddDate(-1, 0, 0))
	if err != nil {
		return nil, err
	}
	return byArea[areaSlug], nil
}

func (db *CompsDB) perM2ByArea(ctx context.Context, query string, areaSlugs []string, since time.Time) (map[string][]float64, error) {
	result := make(map[string][]float64, len(areaSlugs))
	if len(areaSlugs) == 0 {
		return result, nil
	}

	rows, err := db.conn.QueryContext(ctx, query, pq.StringArray(areaSlugs), since)
	if err != nil {
		return nil, fmt.Errorf("failed to query comps: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var slug string
		var perM2 float64
		if err := rows.Scan(&slug, &perM2); err != nil {
			return nil, err
		}
		result[slug] = append(result[slug], perM2)
	}
	return result, rows.Err()
}
