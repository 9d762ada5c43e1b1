package state

import (
	"bytes"
	"errors"
	"fmt"
	"sort"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"warpledger/storage"
)

var (
	errTxOpen   = errors.New("state: transaction already open")
	errNoTx     = errors.New("state: no open transaction")
	errEmptyKey = errors.New("kv: key must not be empty")
)

type journalEntry struct {
	value   []byte
	deleted bool
}

// Manager reads and writes RLP-encoded records over a key-value database.
// Writes made between Begin and Commit are buffered in a journal and applied
// in a single batch; Rollback discards them. Outside a transaction writes go
// straight to the database.
//
// Manager is not safe for concurrent use.
type Manager struct {
	db      storage.Database
	journal map[string]journalEntry
}

// NewManager creates a state manager operating on the provided database.
func NewManager(db storage.Database) *Manager {
	return &Manager{db: db}
}

// Begin opens a transaction. Nested transactions are not supported.
func (m *Manager) Begin() error {
	if m == nil || m.db == nil {
		return fmt.Errorf("state: database not configured")
	}
	if m.journal != nil {
		return errTxOpen
	}
	m.journal = make(map[string]journalEntry)
	return nil
}

// InTransaction reports whether a transaction is open.
func (m *Manager) InTransaction() bool {
	return m != nil && m.journal != nil
}

// Commit applies the journal atomically and closes the transaction. The
// journal is discarded even when the write fails.
func (m *Manager) Commit() error {
	if m == nil || m.journal == nil {
		return errNoTx
	}
	journal := m.journal
	m.journal = nil
	if len(journal) == 0 {
		return nil
	}
	keys := make([]string, 0, len(journal))
	for key := range journal {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	batch := m.db.NewBatch()
	for _, key := range keys {
		entry := journal[key]
		if entry.deleted {
			batch.Delete([]byte(key))
			continue
		}
		batch.Put([]byte(key), entry.value)
	}
	return batch.Write()
}

// Rollback discards the journal. It is a no-op outside a transaction.
func (m *Manager) Rollback() {
	if m == nil {
		return
	}
	m.journal = nil
}

func kvKey(key []byte) []byte {
	return ethcrypto.Keccak256(key)
}

func (m *Manager) rawGet(key []byte) ([]byte, bool, error) {
	if m.journal != nil {
		if entry, ok := m.journal[string(key)]; ok {
			if entry.deleted {
				return nil, false, nil
			}
			return bytes.Clone(entry.value), true, nil
		}
	}
	data, err := m.db.Get(key)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

func (m *Manager) rawPut(key, value []byte) error {
	if m.journal != nil {
		m.journal[string(key)] = journalEntry{value: bytes.Clone(value)}
		return nil
	}
	return m.db.Put(key, value)
}

func (m *Manager) rawDelete(key []byte) error {
	if m.journal != nil {
		m.journal[string(key)] = journalEntry{deleted: true}
		return nil
	}
	return m.db.Delete(key)
}

// KVPut stores the RLP encoding of value under the supplied key.
func (m *Manager) KVPut(key []byte, value interface{}) error {
	if len(key) == 0 {
		return errEmptyKey
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
		return false, errEmptyKey
	}
	data, ok, err := m.rawGet(kvKey(key))
	if err != nil || !ok {
		return false, err
	}
	if out == nil {
		return true, nil
	}
	if err := rlp.DecodeBytes(data, out); err != nil {
		return false, err
	}
	return true, nil
}

// KVDelete removes the value stored under the supplied key.
func (m *Manager) KVDelete(key []byte) error {
	if len(key) == 0 {
		return errEmptyKey
	}
	return m.rawDelete(kvKey(key))
}

func prefixedKey(prefix []byte, suffix []byte) []byte {
	key := make([]byte, len(prefix)+len(suffix))
	copy(key, prefix)
	copy(key[len(prefix):], suffix)
	return key
}
