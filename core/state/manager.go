package state

import (
	"errors"
	"fmt"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"deliverynet/storage"
)

var (
	// ErrJournalActive is returned when Begin is invoked while a previous
	// journal has not been committed or discarded.
	ErrJournalActive = errors.New("state: journal already active")
	// ErrNoJournal is returned by Commit when no journal is open.
	ErrNoJournal = errors.New("state: no active journal")
)

// Manager reads and writes RLP-encoded records against the backing database.
// Keys are hashed with keccak256 before they reach the database so callers can
// use readable prefixes without leaking identifiers into the key space.
//
// While a journal is open every write is buffered in memory and reads observe
// the buffered values. Commit flushes the buffer as one atomic batch and
// Discard drops it, leaving the database untouched.
//
// Manager is not safe for concurrent use.
type Manager struct {
	db storage.Database

	journal bool
	dirty   map[string]journalEntry
	order   []string
}

type journalEntry struct {
	value   []byte
	deleted bool
}

// NewManager creates a state manager operating on the provided database.
func NewManager(db storage.Database) *Manager {
	return &Manager{db: db}
}

func kvKey(key []byte) []byte {
	return ethcrypto.Keccak256(key)
}

// Begin opens a write journal.
func (m *Manager) Begin() error {
	if m.journal {
		return ErrJournalActive
	}
	m.journal = true
	m.dirty = make(map[string]journalEntry)
	m.order = m.order[:0]
	return nil
}

// InJournal reports whether writes are currently buffered.
func (m *Manager) InJournal() bool { return m.journal }

// Commit flushes all buffered writes atomically and closes the journal.
func (m *Manager) Commit() error {
	if !m.journal {
		return ErrNoJournal
	}
	batch := storage.NewBatch()
	for _, key := range m.order {
		entry := m.dirty[key]
		if entry.deleted {
			batch.Delete([]byte(key))
			continue
		}
		batch.Put([]byte(key), entry.value)
	}
	m.reset()
	if batch.Len() == 0 {
		return nil
	}
	return m.db.Write(batch)
}

// Discard drops all buffered writes and closes the journal.
func (m *Manager) Discard() {
	m.reset()
}

func (m *Manager) reset() {
	m.journal = false
	m.dirty = nil
	m.order = m.order[:0]
}

func (m *Manager) rawGet(hashed []byte) ([]byte, error) {
	if m.journal {
		if entry, ok := m.dirty[string(hashed)]; ok {
			if entry.deleted {
				return nil, nil
			}
			return entry.value, nil
		}
	}
	data, err := m.db.Get(hashed)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	return data, err
}

func (m *Manager) rawPut(hashed, value []byte) error {
	if !m.journal {
		return m.db.Put(hashed, value)
	}
	k := string(hashed)
	if _, seen := m.dirty[k]; !seen {
		m.order = append(m.order, k)
	}
	m.dirty[k] = journalEntry{value: value}
	return nil
}

func (m *Manager) rawDelete(hashed []byte) error {
	if !m.journal {
		return m.db.Delete(hashed)
	}
	k := string(hashed)
	if _, seen := m.dirty[k]; !seen {
		m.order = append(m.order, k)
	}
	m.dirty[k] = journalEntry{deleted: true}
	return nil
}

// KVPut stores the RLP encoding of value under the supplied key.
func (m *Manager) KVPut(key []byte, value interface{}) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return err
	}
	return m.rawPut(kvKey(key), encoded)
}

// KVGet retrieves the value stored under the supplied key and decodes it into
// the provided destination. The boolean return value indicates whether the key
// existed in state.
func (m *Manager) KVGet(key []byte, out interface{}) (bool, error) {
	if len(key) == 0 {
		return false, fmt.Errorf("kv: key must not be empty")
	}
	data, err := m.rawGet(kvKey(key))
	if err != nil {
		return false, err
	}
	if len(data) == 0 {
		return false, nil
	}
	if out == nil {
		return true, nil
	}
	if err := rlp.DecodeBytes(data, out); err != nil {
		return false, err
	}
	return true, nil
}

// KVDelete removes the value stored under key. Deleting a missing key is a
// no-op.
func (m *Manager) KVDelete(key []byte) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	return m.rawDelete(kvKey(key))
}
