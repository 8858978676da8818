package balancemap

import (
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"
)

const (
	keyPrefixBalance = "balance:"
	keyLastRoot      = "meta:root"
)

type storedBalance struct {
	Amount  string `json:"amount"`
	Reasons string `json:"reasons,omitempty"`
}

// Store keeps a balance map on disk between operator invocations.
type Store struct {
	db *leveldb.DB
}

// OpenStore opens or creates a LevelDB-backed store at path.
func OpenStore(path string) (*Store, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open balance store at %s: %w", path, err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Save replaces the stored balances with the map's current entries and records
// the snapshot root, in a single batch.
func (s *Store) Save(bm *BalanceMap) error {
	batch := new(leveldb.Batch)

	iter := s.db.NewIterator(util.BytesPrefix([]byte(keyPrefixBalance)), nil)
	for iter.Next() {
		batch.Delete(append([]byte{}, iter.Key()...))
	}
	iter.Release()
	if err := iter.Error(); err != nil {
		return fmt.Errorf("failed to scan balance store: %w", err)
	}

	for _, e := range bm.Balances() {
		data, err := json.Marshal(storedBalance{Amount: e.Amount.Hex(), Reasons: e.Reasons})
		if err != nil {
			return fmt.Errorf("failed to marshal balance for %s: %w", e.Account.Hex(), err)
		}
		batch.Put(balanceKey(e.Account), data)
	}
	root := bm.Snapshot().Root
	batch.Put([]byte(keyLastRoot), root[:])

	if err := s.db.Write(batch, nil); err != nil {
		return fmt.Errorf("failed to write balance store: %w", err)
	}
	return nil
}

// Load rebuilds a BalanceMap from the stored balances. An empty store yields an
// empty map.
func (s *Store) Load() (*BalanceMap, error) {
	entries := make([]Entry, 0)

	iter := s.db.NewIterator(util.BytesPrefix([]byte(keyPrefixBalance)), nil)
	defer iter.Release()
	for iter.Next() {
		key := iter.Key()[len(keyPrefixBalance):]
		if len(key) != common.AddressLength {
			return nil, fmt.Errorf("corrupt balance key %x", iter.Key())
		}

		var stored storedBalance
		if err := json.Unmarshal(iter.Value(), &stored); err != nil {
			return nil, fmt.Errorf("failed to unmarshal stored balance: %w", err)
		}
		amount, err := ParseAmount(stored.Amount)
		if err != nil {
			return nil, fmt.Errorf("corrupt stored amount: %w", err)
		}
		entries = append(entries, Entry{
			Account: common.BytesToAddress(key),
			Amount:  amount,
			Reasons: stored.Reasons,
		})
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("failed to scan balance store: %w", err)
	}

	return New(entries)
}

// LastRoot returns the root recorded by the last Save, if any.
func (s *Store) LastRoot() ([32]byte, bool, error) {
	var root [32]byte
	data, err := s.db.Get([]byte(keyLastRoot), nil)
	if err == leveldb.ErrNotFound {
		return root, false, nil
	}
	if err != nil {
		return root, false, fmt.Errorf("failed to read last root: %w", err)
	}
	copy(root[:], data)
	return root, true, nil
}

func balanceKey(account common.Address) []byte {
	return append([]byte(keyPrefixBalance), account.Bytes()...)
}
