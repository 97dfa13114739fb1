package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/networth-tracker/internal/models"
)

// NetworthRepository handles the append-only networth time series in
// ClickHouse. Rows are only ever inserted by the snapshot job; nothing
// updates or deletes them, and deleting tokens or accounts in Postgres
// leaves the history intact.
type NetworthRepository struct {
	db *ClickHouseDB
}

// NewNetworthRepository creates a new networth repository
func NewNetworthRepository(db *ClickHouseDB) *NetworthRepository {
	return &NetworthRepository{db: db}
}

// Insert appends one snapshot point
func (r *NetworthRepository) Insert(ctx context.Context, snapshot *models.NetworthSnapshot) error {
	query := `
		INSERT INTO networth_snapshots (timestamp, eth_value, fiat_value)
		VALUES ($1, $2, $3)
	`

	if err := r.db.Exec(ctx, query, snapshot.Timestamp, snapshot.EthValue, snapshot.FiatValue); err != nil {
		return fmt.Errorf("failed to insert networth snapshot: %w", err)
	}

	return nil
}

// List retrieves the full time series in chronological order
func (r *NetworthRepository) List(ctx context.Context) ([]*models.NetworthSnapshot, error) {
	query := `
		SELECT timestamp, eth_value, fiat_value
		FROM networth_snapshots
		ORDER BY timestamp ASC
	`
	return r.query(ctx, query)
}

// ListRange retrieves snapshots within [from, to] in chronological order
func (r *NetworthRepository) ListRange(ctx context.Context, from, to time.Time) ([]*models.NetworthSnapshot, error) {
	query := `
		SELECT timestamp, eth_value, fiat_value
		FROM networth_snapshots
		WHERE timestamp >= $1 AND timestamp <= $2
		ORDER BY timestamp ASC
	`
	return r.query(ctx, query, from, to)
}

func (r *NetworthRepository) query(ctx context.Context, query string, args ...interface{}) ([]*models.NetworthSnapshot, error) {
	rows, err := r.db.Conn().Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query networth snapshots: %w", err)
	}
	defer rows.Close()

	var snapshots []*models.NetworthSnapshot
	for rows.Next() {
		var snapshot models.NetworthSnapshot
		if err := rows.Scan(&snapshot.Timestamp, &snapshot.EthValue, &snapshot.FiatValue); err != nil {
			return nil, fmt.Errorf("failed to scan networth snapshot row: %w", err)
		}
		snapshots = append(snapshots, &snapshot)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating networth snapshot rows: %w", err)
	}

	return snapshots, nil
}
