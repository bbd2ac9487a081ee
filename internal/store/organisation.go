package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Organisation is one tenant row.
type Organisation struct {
	ID         int64
	Name       string
	AlertFlags uint64
}

// NotificationSettings holds one organisation's channel configuration.
type NotificationSettings struct {
	OrganisationID int64
	EmailEnabled   bool
	ChatEnabled    bool
	PagingEnabled  bool
	EmailEndpoint  string
	ChatEndpoint   string
	PagingEndpoint string
}

// CreateOrganisation inserts an organisation row with an explicit id,
// leaving an existing row with the same id untouched. Organisations are
// provisioned out of band (account system, admin tooling); ingress never
// creates one on behalf of a registering machine.
func (s *Store) CreateOrganisation(ctx context.Context, id int64, name string) error {
	_, err := s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO organisation (id, name, alert_flags, created_at) VALUES (?, ?, 0, ?)
		ON CONFLICT (id) DO NOTHING
	`), id, name, time.Now())
	if err != nil {
		return fmt.Errorf("store: create organisation: %w", err)
	}
	return nil
}

// GetOrganisation fetches one organisation row, or ErrNotFound.
func (s *Store) GetOrganisation(ctx context.Context, id int64) (Organisation, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(`SELECT id, name, alert_flags FROM organisation WHERE id = ?`), id)
	var o Organisation
	if err := row.Scan(&o.ID, &o.Name, &o.AlertFlags); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Organisation{}, ErrNotFound
		}
		return Organisation{}, fmt.Errorf("store: get organisation: %w", err)
	}
	return o, nil
}

// GetOrganisationForMachine resolves the owning organisation of a machine.
func (s *Store) GetOrganisationForMachine(ctx context.Context, machineID string) (Organisation, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(`
		SELECT o.id, o.name, o.alert_flags
		FROM organisation o JOIN machine m ON m.organisation_id = o.id
		WHERE m.id = ?
	`), machineID)
	var o Organisation
	if err := row.Scan(&o.ID, &o.Name, &o.AlertFlags); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Organisation{}, ErrNotFound
		}
		return Organisation{}, fmt.Errorf("store: get organisation for machine: %w", err)
	}
	return o, nil
}

// GetNotificationSettings fetches an organisation's channel configuration.
// A missing row is treated as all channels disabled rather than an error,
// since an organisation with no settings row has simply never configured
// any channel.
func (s *Store) GetNotificationSettings(ctx context.Context, orgID int64) (NotificationSettings, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(`
		SELECT organisation_id, email_enabled, chat_enabled, paging_enabled, email_endpoint, chat_endpoint, paging_endpoint
		FROM notification_settings WHERE organisation_id = ?
	`), orgID)

	var n NotificationSettings
	err := row.Scan(&n.OrganisationID, &n.EmailEnabled, &n.ChatEnabled, &n.PagingEnabled,
		&n.EmailEndpoint, &n.ChatEndpoint, &n.PagingEndpoint)
	if errors.Is(err, sql.ErrNoRows) {
		return NotificationSettings{OrganisationID: orgID}, nil
	}
	if err != nil {
		return NotificationSettings{}, fmt.Errorf("store: get notification settings: %w", err)
	}
	return n, nil
}

// PutNotificationSettings upserts an organisation's channel configuration.
func (s *Store) PutNotificationSettings(ctx context.Context, n NotificationSettings) error {
	_, err := s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO notification_settings (organisation_id, email_enabled, chat_enabled, paging_enabled, email_endpoint, chat_endpoint, paging_endpoint)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (organisation_id) DO UPDATE SET
			email_enabled = excluded.email_enabled,
			chat_enabled = excluded.chat_enabled,
			paging_enabled = excluded.paging_enabled,
			email_endpoint = excluded.email_endpoint,
			chat_endpoint = excluded.chat_endpoint,
			paging_endpoint = excluded.paging_endpoint
	`), n.OrganisationID, n.EmailEnabled, n.ChatEnabled, n.PagingEnabled, n.EmailEndpoint, n.ChatEndpoint, n.PagingEndpoint)
	if err != nil {
		return fmt.Errorf("store: put notification settings: %w", err)
	}
	return nil
}
