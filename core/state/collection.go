package state

import (
	"encoding/binary"
	"fmt"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// Storage spaces. Each sub-collection lives under space + keccak256(owner) so
// collections of different owners are independently addressable.
const (
	SpaceAccounts         = "acct"
	SpaceLocks            = "lock"
	SpaceOrders           = "order"
	SpaceOrderItems       = "order-items"
	SpaceOrderCandidates  = "order-candidates"
	SpacePending          = "pending"
	SpaceStaged           = "staged"
	SpaceShipping         = "shipping"
	SpaceProposals        = "proposal"
	SpaceCouriers         = "courier"
	SpaceCompanies        = "company"
	SpaceCompanyCouriers  = "company-couriers"
	SpaceCourierCompanies = "courier-companies"
)

// SubKey derives the content-addressed prefix for owner inside space.
func SubKey(space, owner string) []byte {
	digest := ethcrypto.Keccak256([]byte(owner))
	buf := make([]byte, 0, len(space)+1+len(digest))
	buf = append(buf, space...)
	buf = append(buf, ':')
	buf = append(buf, digest...)
	return buf
}

func joinKey(prefix []byte, parts ...string) []byte {
	out := append([]byte(nil), prefix...)
	for _, part := range parts {
		out = append(out, '/')
		out = append(out, part...)
	}
	return out
}

// Collection is an insertion-ordered map of string keys to RLP records. The
// collection is created on first insertion and keeps existing (possibly empty)
// afterwards.
type Collection struct {
	m      *Manager
	prefix []byte
}

type storedIndex struct {
	Keys []string
}

// Collection returns the collection owned by owner within space.
func (m *Manager) Collection(space, owner string) *Collection {
	return &Collection{m: m, prefix: SubKey(space, owner)}
}

func (c *Collection) indexKey() []byte         { return joinKey(c.prefix, "index") }
func (c *Collection) entryKey(key string) []byte { return joinKey(c.prefix, "e", key) }

func (c *Collection) loadIndex() (*storedIndex, bool, error) {
	var idx storedIndex
	ok, err := c.m.KVGet(c.indexKey(), &idx)
	if err != nil {
		return nil, false, err
	}
	return &idx, ok, nil
}

// Exists reports whether the collection has ever been created.
func (c *Collection) Exists() (bool, error) {
	_, ok, err := c.loadIndex()
	return ok, err
}

// Has reports whether key is present.
func (c *Collection) Has(key string) (bool, error) {
	return c.m.KVGet(c.entryKey(key), nil)
}

// Get decodes the record stored under key into out.
func (c *Collection) Get(key string, out interface{}) (bool, error) {
	return c.m.KVGet(c.entryKey(key), out)
}

// Insert stores value under key, overwriting any previous record. The boolean
// result reports whether a record was replaced.
func (c *Collection) Insert(key string, value interface{}) (bool, error) {
	if key == "" {
		return false, fmt.Errorf("collection: key must not be empty")
	}
	idx, _, err := c.loadIndex()
	if err != nil {
		return false, err
	}
	existed, err := c.Has(key)
	if err != nil {
		return false, err
	}
	if err := c.m.KVPut(c.entryKey(key), value); err != nil {
		return false, err
	}
	if existed {
		return true, nil
	}
	idx.Keys = append(idx.Keys, key)
	return false, c.m.KVPut(c.indexKey(), idx)
}

// Create ensures the collection exists without inserting a record.
func (c *Collection) Create() error {
	idx, ok, err := c.loadIndex()
	if err != nil || ok {
		return err
	}
	return c.m.KVPut(c.indexKey(), idx)
}

// Remove deletes key. The boolean result reports whether a record existed.
func (c *Collection) Remove(key string) (bool, error) {
	idx, ok, err := c.loadIndex()
	if err != nil || !ok {
		return false, err
	}
	existed, err := c.Has(key)
	if err != nil || !existed {
		return false, err
	}
	if err := c.m.KVDelete(c.entryKey(key)); err != nil {
		return false, err
	}
	kept := idx.Keys[:0]
	for _, k := range idx.Keys {
		if k != key {
			kept = append(kept, k)
		}
	}
	idx.Keys = kept
	return true, c.m.KVPut(c.indexKey(), idx)
}

// Len returns the number of records.
func (c *Collection) Len() (int, error) {
	idx, _, err := c.loadIndex()
	if err != nil {
		return 0, err
	}
	return len(idx.Keys), nil
}

// Keys returns up to limit keys in insertion order starting at offset.
func (c *Collection) Keys(offset, limit int) ([]string, error) {
	idx, _, err := c.loadIndex()
	if err != nil {
		return nil, err
	}
	return page(idx.Keys, offset, limit), nil
}

func page(keys []string, offset, limit int) []string {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(keys) || limit <= 0 {
		return []string{}
	}
	end := offset + limit
	if end > len(keys) || end < offset {
		end = len(keys)
	}
	return append([]string(nil), keys[offset:end]...)
}

// List is an append/pop vector of RLP records.
type List struct {
	m      *Manager
	prefix []byte
}

// List returns the list owned by owner within space.
func (m *Manager) List(space, owner string) *List {
	return &List{m: m, prefix: SubKey(space, owner)}
}

func (l *List) lenKey() []byte { return joinKey(l.prefix, "len") }

func (l *List) elemKey(i uint64) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], i)
	return joinKey(l.prefix, "i", string(buf[:]))
}

// Len returns the number of elements.
func (l *List) Len() (uint64, error) {
	var n uint64
	if _, err := l.m.KVGet(l.lenKey(), &n); err != nil {
		return 0, err
	}
	return n, nil
}

// Push appends value to the tail.
func (l *List) Push(value interface{}) error {
	n, err := l.Len()
	if err != nil {
		return err
	}
	if err := l.m.KVPut(l.elemKey(n), value); err != nil {
		return err
	}
	return l.m.KVPut(l.lenKey(), n+1)
}

// Get decodes element i into out.
func (l *List) Get(i uint64, out interface{}) (bool, error) {
	n, err := l.Len()
	if err != nil {
		return false, err
	}
	if i >= n {
		return false, nil
	}
	return l.m.KVGet(l.elemKey(i), out)
}

// Pop removes the tail element, decoding it into out first.
func (l *List) Pop(out interface{}) (bool, error) {
	n, err := l.Len()
	if err != nil || n == 0 {
		return false, err
	}
	if _, err := l.m.KVGet(l.elemKey(n-1), out); err != nil {
		return false, err
	}
	if err := l.m.KVDelete(l.elemKey(n - 1)); err != nil {
		return false, err
	}
	return true, l.m.KVPut(l.lenKey(), n-1)
}
