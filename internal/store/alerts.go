package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// UpsertActiveAlert inserts a new active alert keyed by its fingerprint id,
// or leaves an existing one untouched. It reports whether a new row was
// created, so callers can decide whether this is a first-seen alert that
// needs dispatching.
func (s *Store) UpsertActiveAlert(ctx context.Context, a ActiveAlert) (created bool, err error) {
	_, err = s.GetActiveAlert(ctx, a.AlertID)
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return false, err
	}

	_, err = s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO active_alert (alert_id, machine_id, node_name, kind, detail, email_state, chat_state, paging_state, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`), a.AlertID, a.MachineID, a.NodeName, a.Kind, a.Detail, SendStateNoSend, SendStateNoSend, SendStateNoSend, a.CreatedAt)
	if err != nil {
		return false, fmt.Errorf("store: upsert active alert: %w", err)
	}
	return true, nil
}

// GetActiveAlert fetches one active alert row, or ErrNotFound.
func (s *Store) GetActiveAlert(ctx context.Context, alertID string) (ActiveAlert, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(`
		SELECT alert_id, machine_id, node_name, kind, detail, email_state, chat_state, paging_state, acknowledged_at, created_at
		FROM active_alert WHERE alert_id = ?
	`), alertID)

	var a ActiveAlert
	err := row.Scan(&a.AlertID, &a.MachineID, &a.NodeName, &a.Kind, &a.Detail,
		&a.EmailState, &a.ChatState, &a.PagingState, &a.AcknowledgedAt, &a.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return ActiveAlert{}, ErrNotFound
	}
	if err != nil {
		return ActiveAlert{}, fmt.Errorf("store: get active alert: %w", err)
	}
	return a, nil
}

// SetChannelState updates one channel's send state for an active alert.
func (s *Store) SetChannelState(ctx context.Context, alertID, channel, state string) error {
	column, err := channelColumn(channel)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, s.rebind(`UPDATE active_alert SET `+column+` = ? WHERE alert_id = ?`), state, alertID)
	if err != nil {
		return fmt.Errorf("store: set channel state: %w", err)
	}
	return nil
}

func channelColumn(channel string) (string, error) {
	switch channel {
	case "email":
		return "email_state", nil
	case "chat":
		return "chat_state", nil
	case "paging":
		return "paging_state", nil
	default:
		return "", fmt.Errorf("store: unknown notification channel %q", channel)
	}
}

// AcknowledgeAlert records a manual acknowledgement timestamp.
func (s *Store) AcknowledgeAlert(ctx context.Context, alertID string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, s.rebind(`UPDATE active_alert SET acknowledged_at = ? WHERE alert_id = ?`), at, alertID)
	if err != nil {
		return fmt.Errorf("store: acknowledge alert: %w", err)
	}
	return nil
}

// ResolveAlert moves an active alert to history: it deletes the active row
// and inserts a historical row, in a single transaction, so a crash between
// the two never loses or duplicates the alert.
func (s *Store) ResolveAlert(ctx context.Context, alertID string, resolvedAt time.Time) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: resolve alert: begin: %w", err)
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx, s.rebind(`
		SELECT alert_id, machine_id, node_name, kind, detail, created_at FROM active_alert WHERE alert_id = ?
	`), alertID)
	var a ActiveAlert
	if err := row.Scan(&a.AlertID, &a.MachineID, &a.NodeName, &a.Kind, &a.Detail, &a.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("store: resolve alert: lookup: %w", err)
	}

	if _, err := tx.ExecContext(ctx, s.rebind(`DELETE FROM active_alert WHERE alert_id = ?`), alertID); err != nil {
		return fmt.Errorf("store: resolve alert: delete active: %w", err)
	}
	if _, err := tx.ExecContext(ctx, s.rebind(`
		INSERT INTO historical_alert (alert_id, machine_id, node_name, kind, detail, created_at, resolved_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`), a.AlertID, a.MachineID, a.NodeName, a.Kind, a.Detail, a.CreatedAt, resolvedAt); err != nil {
		return fmt.Errorf("store: resolve alert: insert historical: %w", err)
	}

	return tx.Commit()
}

// ListActiveAlertsByMachine returns every open alert for one machine.
func (s *Store) ListActiveAlertsByMachine(ctx context.Context, machineID string) ([]ActiveAlert, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(`
		SELECT alert_id, machine_id, node_name, kind, detail, email_state, chat_state, paging_state, acknowledged_at, created_at
		FROM active_alert WHERE machine_id = ?
	`), machineID)
	if err != nil {
		return nil, fmt.Errorf("store: list active alerts by machine: %w", err)
	}
	defer rows.Close()
	return scanActiveAlerts(rows)
}

// ListActiveAlertsByOrg returns every open alert for machines under an
// organisation.
func (s *Store) ListActiveAlertsByOrg(ctx context.Context, orgID int64) ([]ActiveAlert, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(`
		SELECT a.alert_id, a.machine_id, a.node_name, a.kind, a.detail, a.email_state, a.chat_state, a.paging_state, a.acknowledged_at, a.created_at
		FROM active_alert a JOIN machine m ON m.id = a.machine_id
		WHERE m.organisation_id = ?
	`), orgID)
	if err != nil {
		return nil, fmt.Errorf("store: list active alerts by org: %w", err)
	}
	defer rows.Close()
	return scanActiveAlerts(rows)
}

func scanActiveAlerts(rows *sql.Rows) ([]ActiveAlert, error) {
	var alerts []ActiveAlert
	for rows.Next() {
		var a ActiveAlert
		if err := rows.Scan(&a.AlertID, &a.MachineID, &a.NodeName, &a.Kind, &a.Detail,
			&a.EmailState, &a.ChatState, &a.PagingState, &a.AcknowledgedAt, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("store: scan active alert: %w", err)
		}
		alerts = append(alerts, a)
	}
	return alerts, rows.Err()
}
