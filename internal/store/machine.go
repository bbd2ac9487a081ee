package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Machine is one registered agent host.
type Machine struct {
	ID              string
	OrganisationID  int64
	OperatorAddress string
	Hostname        string
	AgentVersion    string
	CreatedAt       time.Time
}

// CreateMachine registers a new machine row, binding the operator address
// derived from the agent's signing key. Re-registering an existing
// machine id updates its operator address and hostname rather than
// erroring, since a re-keyed agent legitimately re-registers.
func (s *Store) CreateMachine(ctx context.Context, m Machine) error {
	_, err := s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO machine (id, organisation_id, operator_address, hostname, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			operator_address = excluded.operator_address,
			hostname = excluded.hostname
	`), m.ID, m.OrganisationID, m.OperatorAddress, m.Hostname, m.CreatedAt)
	if err != nil {
		return fmt.Errorf("store: create machine: %w", err)
	}
	return nil
}

// GetMachine fetches one machine row, or ErrNotFound.
func (s *Store) GetMachine(ctx context.Context, id string) (Machine, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(`
		SELECT id, organisation_id, COALESCE(operator_address,''), COALESCE(hostname,''), created_at
		FROM machine WHERE id = ?
	`), id)

	var m Machine
	if err := row.Scan(&m.ID, &m.OrganisationID, &m.OperatorAddress, &m.Hostname, &m.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Machine{}, ErrNotFound
		}
		return Machine{}, fmt.Errorf("store: get machine: %w", err)
	}
	return m, nil
}
