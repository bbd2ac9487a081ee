package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

// RecordMetrics appends a batch of metric samples for one machine in a
// single transaction.
func (s *Store) RecordMetrics(ctx context.Context, rows []MetricRow) error {
	if len(rows) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: record metrics: begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, s.rebind(`
		INSERT INTO metric (machine_id, avs_name, name, value, attributes, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`))
	if err != nil {
		return fmt.Errorf("store: record metrics: prepare: %w", err)
	}
	defer stmt.Close()

	for _, r := range rows {
		attrs, err := json.Marshal(r.Attributes)
		if err != nil {
			return fmt.Errorf("store: record metrics: encode attributes: %w", err)
		}
		if _, err := stmt.ExecContext(ctx, r.MachineID, r.AVSName, r.Name, r.Value, string(attrs), r.CreatedAt); err != nil {
			return fmt.Errorf("store: record metrics: insert: %w", err)
		}
	}

	return tx.Commit()
}

// RecordLog appends a single sanitized log line.
func (s *Store) RecordLog(ctx context.Context, row LogRow) error {
	_, err := s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO log (machine_id, avs_name, level, text, created_at)
		VALUES (?, ?, ?, ?, ?)
	`), row.MachineID, row.AVSName, row.Level, row.Text, row.CreatedAt)
	if err != nil {
		return fmt.Errorf("store: record log: %w", err)
	}
	return nil
}

// LatestMetric returns the most recently recorded value for a named
// metric on a given node, or ErrNotFound.
func (s *Store) LatestMetric(ctx context.Context, machineID, avsName, name string) (MetricRow, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(`
		SELECT machine_id, avs_name, name, value, attributes, created_at
		FROM metric
		WHERE machine_id = ? AND avs_name = ? AND name = ?
		ORDER BY created_at DESC LIMIT 1
	`), machineID, avsName, name)

	var m MetricRow
	var attrs string
	if err := row.Scan(&m.MachineID, &m.AVSName, &m.Name, &m.Value, &attrs, &m.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return MetricRow{}, ErrNotFound
		}
		return MetricRow{}, fmt.Errorf("store: latest metric: %w", err)
	}
	if err := json.Unmarshal([]byte(attrs), &m.Attributes); err != nil {
		return MetricRow{}, fmt.Errorf("store: latest metric: decode attributes: %w", err)
	}
	return m, nil
}
