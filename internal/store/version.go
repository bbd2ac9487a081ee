package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ivy-net/Ivynet-sub000/internal/nodetype"
)

// versionTableTTL bounds how long a cached copy of the full version table
// is served before the next GetVersionTable call hits the database again.
const versionTableTTL = 2 * time.Minute

type versionCacheEntry struct {
	table     map[string]nodetype.VersionTableEntry
	fetchedAt time.Time
}

// VersionCache wraps Store's version table reads with a short-lived
// in-memory cache, since the table changes rarely but is read on every
// update-status computation.
type VersionCache struct {
	store *Store

	mu    sync.Mutex
	entry *versionCacheEntry
}

// NewVersionCache builds a cache fronting the given store.
func NewVersionCache(store *Store) *VersionCache {
	return &VersionCache{store: store}
}

func versionKey(nodeType, chain string) string {
	return nodeType + "/" + chain
}

// GetVersionTable returns the full version table, refreshing from the
// database if the cache is empty or stale.
func (c *VersionCache) GetVersionTable(ctx context.Context) (map[string]nodetype.VersionTableEntry, error) {
	c.mu.Lock()
	if c.entry != nil && time.Since(c.entry.fetchedAt) < versionTableTTL {
		table := c.entry.table
		c.mu.Unlock()
		return table, nil
	}
	c.mu.Unlock()

	table, err := c.store.loadVersionTable(ctx)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.entry = &versionCacheEntry{table: table, fetchedAt: time.Now()}
	c.mu.Unlock()
	return table, nil
}

// Invalidate forces the next GetVersionTable call to hit the database.
func (c *VersionCache) Invalidate() {
	c.mu.Lock()
	c.entry = nil
	c.mu.Unlock()
}

func (s *Store) loadVersionTable(ctx context.Context) (map[string]nodetype.VersionTableEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT node_type, chain, latest_tag, latest_digest, breaking_change_tag FROM version_data
	`)
	if err != nil {
		return nil, fmt.Errorf("store: load version table: %w", err)
	}
	defer rows.Close()

	table := make(map[string]nodetype.VersionTableEntry)
	for rows.Next() {
		var nodeType, chain, latestTag, latestDigest, breakingTag string
		if err := rows.Scan(&nodeType, &chain, &latestTag, &latestDigest, &breakingTag); err != nil {
			return nil, fmt.Errorf("store: scan version row: %w", err)
		}
		if err := nodetype.ValidateRegistryEntry(latestTag); err != nil {
			return nil, fmt.Errorf("store: version row %s/%s: %w", nodeType, chain, err)
		}
		if err := nodetype.ValidateRegistryEntry(latestDigest); err != nil {
			return nil, fmt.Errorf("store: version row %s/%s: %w", nodeType, chain, err)
		}
		table[versionKey(nodeType, chain)] = nodetype.VersionTableEntry{
			LatestTag:            latestTag,
			LatestDigest:         latestDigest,
			HasBreakingChangeTag: breakingTag != "",
			BreakingChangeTag:    breakingTag,
		}
	}
	return table, rows.Err()
}

// PutVersionEntry upserts a single (node_type, chain) row in the version
// table.
func (s *Store) PutVersionEntry(ctx context.Context, nodeType, chain string, entry nodetype.VersionTableEntry) error {
	_, err := s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO version_data (node_type, chain, latest_tag, latest_digest, breaking_change_tag)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (node_type, chain) DO UPDATE SET
			latest_tag = excluded.latest_tag,
			latest_digest = excluded.latest_digest,
			breaking_change_tag = excluded.breaking_change_tag
	`), nodeType, chain, entry.LatestTag, entry.LatestDigest, entry.BreakingChangeTag)
	if err != nil {
		return fmt.Errorf("store: put version entry: %w", err)
	}
	return nil
}

// ResolveNodeTypeFromDigest looks up the node type a previously-seen image
// digest was classified as, or ErrNotFound for an unrecognised digest.
func (s *Store) ResolveNodeTypeFromDigest(ctx context.Context, digest string) (string, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(`SELECT node_type FROM version_hash WHERE image_digest = ?`), digest)
	var nodeType string
	if err := row.Scan(&nodeType); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("store: resolve node type from digest: %w", err)
	}
	return nodeType, nil
}

// PutDigestMapping records a digest-to-node-type classification for reuse.
func (s *Store) PutDigestMapping(ctx context.Context, digest, nodeType string) error {
	if err := nodetype.ValidateRegistryEntry(nodeType); err != nil {
		return fmt.Errorf("store: put digest mapping: %w", err)
	}
	_, err := s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO version_hash (image_digest, node_type) VALUES (?, ?)
		ON CONFLICT (image_digest) DO UPDATE SET node_type = excluded.node_type
	`), digest, nodeType)
	if err != nil {
		return fmt.Errorf("store: put digest mapping: %w", err)
	}
	return nil
}
