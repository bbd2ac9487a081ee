package alert

import (
	"github.com/google/uuid"

	"github.com/ivy-net/Ivynet-sub000/internal/wire"
)

// Fingerprint computes the deterministic alert_id for a candidate: a
// UUIDv5 over the organisation namespace and the canonical encoding of
// (kind, detail, machine_id, node_name). Two derivation passes that see
// the same logical condition always produce the same id, which is what
// makes re-derivation idempotent — the database's primary key on
// alert_id is the actual deduplication mechanism, not anything in memory.
func Fingerprint(orgNamespace uuid.UUID, c Candidate) uuid.UUID {
	e := wire.NewEncoder()
	e.WriteString(string(c.Kind))
	e.WriteAttributes(c.Detail)
	e.WriteString(c.MachineID)
	e.WriteString(c.NodeName)
	return uuid.NewSHA1(orgNamespace, e.Bytes())
}
