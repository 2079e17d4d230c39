package state

import (
	"errors"
	"fmt"
)

// SchemaVersion identifies the layout of ledger, escrow, catalog, proposal and
// directory records. Bump it on any incompatible change to a stored record.
const SchemaVersion uint64 = 1

var (
	schemaKey = []byte("state/schema")

	ErrSchemaMismatch = errors.New("state: schema version mismatch")
	// ErrPrecisionMismatch means stored amounts were priced with a different
	// token precision than the one configured.
	ErrPrecisionMismatch = errors.New("state: token precision mismatch")
)

type schemaStamp struct {
	Version   uint64
	Precision uint64
}

// EnsureSchema stamps a fresh database with the current schema version and
// token precision, or verifies an existing stamp. allowMigrate tolerates a
// version mismatch so an operator can run a manual migration; a precision
// change is never tolerated. fresh reports whether the stamp was written.
func (m *Manager) EnsureSchema(precision uint8, allowMigrate bool) (fresh bool, err error) {
	var stamp schemaStamp
	ok, err := m.KVGet(schemaKey, &stamp)
	if err != nil {
		return false, err
	}
	if !ok {
		if err := m.Begin(); err != nil {
			return false, err
		}
		if err := m.KVPut(schemaKey, &schemaStamp{Version: SchemaVersion, Precision: uint64(precision)}); err != nil {
			m.Discard()
			return false, err
		}
		return true, m.Commit()
	}
	if stamp.Version != SchemaVersion && !allowMigrate {
		return false, fmt.Errorf("%w: on-disk=%d expected=%d", ErrSchemaMismatch, stamp.Version, SchemaVersion)
	}
	if stamp.Precision != uint64(precision) {
		return false, fmt.Errorf("%w: on-disk=%d configured=%d", ErrPrecisionMismatch, stamp.Precision, precision)
	}
	return false, nil
}
