package store

import "context"

// createSchema issues the startup auto-DDL for every table the store
// needs. Schema evolution beyond additive CREATE TABLE IF NOT EXISTS is
// out of scope; there is no migration runner.
func (s *Store) createSchema(ctx context.Context) error {
	for _, stmt := range s.schemaStatements() {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) schemaStatements() []string {
	pk := "INTEGER PRIMARY KEY AUTOINCREMENT"
	timestamp := "TIMESTAMP"
	if s.driver == DriverPostgres {
		pk = "BIGSERIAL PRIMARY KEY"
		timestamp = "TIMESTAMPTZ"
	}

	return []string{
		`CREATE TABLE IF NOT EXISTS organisation (
			id ` + pk + `,
			name TEXT NOT NULL,
			alert_flags BIGINT NOT NULL DEFAULT 0,
			created_at ` + timestamp + ` NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS machine (
			id TEXT PRIMARY KEY,
			organisation_id BIGINT NOT NULL REFERENCES organisation(id),
			operator_address TEXT,
			hostname TEXT,
			created_at ` + timestamp + ` NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS node (
			machine_id TEXT NOT NULL REFERENCES machine(id),
			name TEXT NOT NULL,
			node_type TEXT,
			chain TEXT,
			image_tag TEXT,
			image_digest TEXT,
			operator_address TEXT,
			active_set BOOLEAN NOT NULL DEFAULT FALSE,
			metrics_alive BOOLEAN NOT NULL DEFAULT FALSE,
			node_running BOOLEAN NOT NULL DEFAULT FALSE,
			updated_at ` + timestamp + ` NOT NULL,
			PRIMARY KEY (machine_id, name)
		)`,

		`CREATE TABLE IF NOT EXISTS metric (
			id ` + pk + `,
			machine_id TEXT NOT NULL,
			avs_name TEXT,
			name TEXT NOT NULL,
			value DOUBLE PRECISION NOT NULL,
			attributes TEXT NOT NULL DEFAULT '{}',
			created_at ` + timestamp + ` NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS log (
			id ` + pk + `,
			machine_id TEXT NOT NULL,
			avs_name TEXT NOT NULL,
			level TEXT NOT NULL,
			text TEXT NOT NULL,
			created_at ` + timestamp + ` NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS active_alert (
			alert_id TEXT PRIMARY KEY,
			machine_id TEXT NOT NULL,
			node_name TEXT NOT NULL,
			kind TEXT NOT NULL,
			detail TEXT NOT NULL DEFAULT '{}',
			email_state TEXT NOT NULL DEFAULT 'no_send',
			chat_state TEXT NOT NULL DEFAULT 'no_send',
			paging_state TEXT NOT NULL DEFAULT 'no_send',
			acknowledged_at ` + timestamp + `,
			created_at ` + timestamp + ` NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS historical_alert (
			alert_id TEXT PRIMARY KEY,
			machine_id TEXT NOT NULL,
			node_name TEXT NOT NULL,
			kind TEXT NOT NULL,
			detail TEXT NOT NULL DEFAULT '{}',
			created_at ` + timestamp + ` NOT NULL,
			resolved_at ` + timestamp + ` NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS version_hash (
			image_digest TEXT PRIMARY KEY,
			node_type TEXT NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS version_data (
			node_type TEXT NOT NULL,
			chain TEXT NOT NULL,
			latest_tag TEXT NOT NULL DEFAULT '',
			latest_digest TEXT NOT NULL DEFAULT '',
			breaking_change_tag TEXT NOT NULL DEFAULT '',
			PRIMARY KEY (node_type, chain)
		)`,

		`CREATE TABLE IF NOT EXISTS notification_settings (
			organisation_id BIGINT PRIMARY KEY REFERENCES organisation(id),
			email_enabled BOOLEAN NOT NULL DEFAULT FALSE,
			chat_enabled BOOLEAN NOT NULL DEFAULT FALSE,
			paging_enabled BOOLEAN NOT NULL DEFAULT FALSE,
			email_endpoint TEXT NOT NULL DEFAULT '',
			chat_endpoint TEXT NOT NULL DEFAULT '',
			paging_endpoint TEXT NOT NULL DEFAULT ''
		)`,

		`CREATE TABLE IF NOT EXISTS service_endpoint (
			organisation_id BIGINT NOT NULL REFERENCES organisation(id),
			kind TEXT NOT NULL,
			endpoint TEXT NOT NULL,
			PRIMARY KEY (organisation_id, kind)
		)`,
	}
}
