package state

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"xfarm/storage"
)

// Manager provides journaled, RLP-encoded key/value access on top of a
// storage backend. Writes are buffered until Commit so a failed call can be
// unwound with RevertToSnapshot. The manager is not safe for concurrent use;
// callers serialize access the same way block execution does.
type Manager struct {
	db      storage.Database
	dirty   map[string][]byte
	journal []journalEntry
	hooks   map[common.Address]TransferHook
}

type journalEntry struct {
	key     string
	prev    []byte
	present bool
}

// NewManager creates a state manager operating on the provided database.
func NewManager(db storage.Database) *Manager {
	return &Manager{
		db:    db,
		dirty: make(map[string][]byte),
	}
}

func kvKey(key []byte) []byte {
	return ethcrypto.Keccak256(key)
}

// Snapshot returns an identifier for the current journal position.
func (m *Manager) Snapshot() int {
	return len(m.journal)
}

// RevertToSnapshot undoes every buffered write made after the snapshot was
// taken.
func (m *Manager) RevertToSnapshot(id int) {
	if id < 0 || id > len(m.journal) {
		return
	}
	for i := len(m.journal) - 1; i >= id; i-- {
		entry := m.journal[i]
		if entry.present {
			m.dirty[entry.key] = entry.prev
		} else {
			delete(m.dirty, entry.key)
		}
	}
	m.journal = m.journal[:id]
}

// Commit flushes the buffered writes to the backing database in one batch
// and clears the journal.
func (m *Manager) Commit() error {
	if len(m.dirty) == 0 {
		m.journal = m.journal[:0]
		return nil
	}
	if err := m.db.Write(m.dirty); err != nil {
		return fmt.Errorf("state: commit: %w", err)
	}
	m.dirty = make(map[string][]byte)
	m.journal = m.journal[:0]
	return nil
}

// Pending reports the number of buffered, uncommitted keys.
func (m *Manager) Pending() int {
	return len(m.dirty)
}

func (m *Manager) write(hashed []byte, value []byte) {
	key := string(hashed)
	prev, present := m.dirty[key]
	m.journal = append(m.journal, journalEntry{key: key, prev: prev, present: present})
	m.dirty[key] = value
}

func (m *Manager) read(hashed []byte) ([]byte, error) {
	if value, ok := m.dirty[string(hashed)]; ok {
		return value, nil
	}
	value, err := m.db.Get(hashed)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return value, nil
}

// emptyList is the RLP encoding of a zero-length list.
var emptyList = []byte{0xc0}

var errEmptyKey = errors.New("kv: empty key")

func (m *Manager) lookup(key []byte) ([]byte, error) {
	if len(key) == 0 {
		return nil, errEmptyKey
	}
	return m.read(kvKey(key))
}

// KVPut RLP-encodes value under keccak256(key).
func (m *Manager) KVPut(key []byte, value interface{}) error {
	if len(key) == 0 {
		return errEmptyKey
	}
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return fmt.Errorf("kv: encode %q: %w", key, err)
	}
	m.write(kvKey(key), encoded)
	return nil
}

// KVGet decodes the value under key into out and reports whether it was
// present. A nil out only checks presence.
func (m *Manager) KVGet(key []byte, out interface{}) (bool, error) {
	data, err := m.lookup(key)
	if err != nil || len(data) == 0 {
		return false, err
	}
	if out != nil {
		if err := rlp.DecodeBytes(data, out); err != nil {
			return false, fmt.Errorf("kv: decode %q: %w", key, err)
		}
	}
	return true, nil
}

// KVDelete journals a tombstone for key.
func (m *Manager) KVDelete(key []byte) error {
	if len(key) == 0 {
		return errEmptyKey
	}
	m.write(kvKey(key), nil)
	return nil
}

// KVGetList decodes a stored list into the slice pointed to by out. A
// missing key yields an empty, non-nil slice.
func (m *Manager) KVGetList(key []byte, out interface{}) error {
	data, err := m.lookup(key)
	if err != nil {
		return err
	}
	if len(data) == 0 {
		data = emptyList
	}
	if err := rlp.DecodeBytes(data, out); err != nil {
		return fmt.Errorf("kv: decode list %q: %w", key, err)
	}
	return nil
}
