package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned by single-row lookups that match no row.
var ErrNotFound = errors.New("store: not found")

// UpsertNode implements update-or-insert on (machine_id, name), always
// bumping updated_at to now.
func (s *Store) UpsertNode(ctx context.Context, n Node) error {
	now := time.Now()
	query := s.rebind(`
		INSERT INTO node (machine_id, name, node_type, image_digest, updated_at, active_set, metrics_alive, node_running)
		VALUES (?, ?, ?, ?, ?, FALSE, FALSE, FALSE)
		ON CONFLICT (machine_id, name) DO UPDATE SET
			node_type = excluded.node_type,
			image_digest = excluded.image_digest,
			updated_at = excluded.updated_at
	`)
	_, err := s.db.ExecContext(ctx, query, n.MachineID, n.Name, n.NodeType, n.ImageDigest, now)
	if err != nil {
		return fmt.Errorf("store: upsert node: %w", err)
	}
	return nil
}

// UpdateNodeFlags applies a partial update to metrics_alive/node_running;
// nil pointers leave the existing value untouched.
func (s *Store) UpdateNodeFlags(ctx context.Context, machineID, name string, metricsAlive, nodeRunning *bool) error {
	if metricsAlive == nil && nodeRunning == nil {
		return nil
	}

	var sets []string
	var args []any
	if metricsAlive != nil {
		sets = append(sets, "metrics_alive = ?")
		args = append(args, *metricsAlive)
	}
	if nodeRunning != nil {
		sets = append(sets, "node_running = ?")
		args = append(args, *nodeRunning)
	}
	sets = append(sets, "updated_at = ?")
	args = append(args, time.Now())
	args = append(args, machineID, name)

	query := "UPDATE node SET "
	for i, set := range sets {
		if i > 0 {
			query += ", "
		}
		query += set
	}
	query += " WHERE machine_id = ? AND name = ?"

	_, err := s.db.ExecContext(ctx, s.rebind(query), args...)
	if err != nil {
		return fmt.Errorf("store: update node flags: %w", err)
	}
	return nil
}

// RenameNode atomically renames a node and cascades the rename to its
// metric rows, in a single transaction.
func (s *Store) RenameNode(ctx context.Context, machineID, oldName, newName string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: rename node: begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, s.rebind(`UPDATE node SET name = ? WHERE machine_id = ? AND name = ?`),
		newName, machineID, oldName); err != nil {
		return fmt.Errorf("store: rename node: update node: %w", err)
	}
	if _, err := tx.ExecContext(ctx, s.rebind(`UPDATE metric SET avs_name = ? WHERE machine_id = ? AND avs_name = ?`),
		newName, machineID, oldName); err != nil {
		return fmt.Errorf("store: rename node: cascade metrics: %w", err)
	}

	return tx.Commit()
}

// GetNode fetches one node row, or ErrNotFound.
func (s *Store) GetNode(ctx context.Context, machineID, name string) (Node, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(`
		SELECT machine_id, name, COALESCE(node_type,''), COALESCE(chain,''), COALESCE(image_tag,''),
		       COALESCE(image_digest,''), COALESCE(operator_address,''), active_set, metrics_alive, node_running, updated_at
		FROM node WHERE machine_id = ? AND name = ?
	`), machineID, name)

	var n Node
	err := row.Scan(&n.MachineID, &n.Name, &n.NodeType, &n.Chain, &n.ImageTag, &n.ImageDigest,
		&n.OperatorAddress, &n.ActiveSet, &n.MetricsAlive, &n.NodeRunning, &n.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Node{}, ErrNotFound
	}
	if err != nil {
		return Node{}, fmt.Errorf("store: get node: %w", err)
	}
	return n, nil
}

// ListNodesForMachine returns every node row owned by a machine.
func (s *Store) ListNodesForMachine(ctx context.Context, machineID string) ([]Node, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(`
		SELECT machine_id, name, COALESCE(node_type,''), COALESCE(chain,''), COALESCE(image_tag,''),
		       COALESCE(image_digest,''), COALESCE(operator_address,''), active_set, metrics_alive, node_running, updated_at
		FROM node WHERE machine_id = ?
	`), machineID)
	if err != nil {
		return nil, fmt.Errorf("store: list nodes for machine: %w", err)
	}
	defer rows.Close()
	return scanNodes(rows)
}

// ListNodesForOrg returns every node row belonging to machines under an
// organisation.
func (s *Store) ListNodesForOrg(ctx context.Context, orgID int64) ([]Node, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(`
		SELECT n.machine_id, n.name, COALESCE(n.node_type,''), COALESCE(n.chain,''), COALESCE(n.image_tag,''),
		       COALESCE(n.image_digest,''), COALESCE(n.operator_address,''), n.active_set, n.metrics_alive, n.node_running, n.updated_at
		FROM node n JOIN machine m ON m.id = n.machine_id
		WHERE m.organisation_id = ?
	`), orgID)
	if err != nil {
		return nil, fmt.Errorf("store: list nodes for org: %w", err)
	}
	defer rows.Close()
	return scanNodes(rows)
}

func scanNodes(rows *sql.Rows) ([]Node, error) {
	var nodes []Node
	for rows.Next() {
		var n Node
		if err := rows.Scan(&n.MachineID, &n.Name, &n.NodeType, &n.Chain, &n.ImageTag, &n.ImageDigest,
			&n.OperatorAddress, &n.ActiveSet, &n.MetricsAlive, &n.NodeRunning, &n.UpdatedAt); err != nil {
			return nil, fmt.Errorf("store: scan node: %w", err)
		}
		nodes = append(nodes, n)
	}
	return nodes, rows.Err()
}
