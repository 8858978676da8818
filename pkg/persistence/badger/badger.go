package badger

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	badgerdb "github.com/dgraph-io/badger/v3"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"github.com/Layr-Labs/merkle-distributor-go/pkg/persistence"
)

// Key prefixes for namespacing
const (
	keyMeta              = "registry:meta"
	keyPrefixClaimed     = "claimed:"
	keyPrefixBlocked     = "blocked:"
	keyPrefixEvent       = "event:"
	keySchemaVersion     = "metadata:schema_version"
	currentSchemaVersion = "v1"
)

// BadgerPersistence is a production-ready persistence implementation using Badger.
// Provides durable, disk-based storage with ACID guarantees.
type BadgerPersistence struct {
	db       *badgerdb.DB
	logger   *zap.Logger
	gcCancel context.CancelFunc
	gcWg     sync.WaitGroup
	mu       sync.RWMutex
	closed   bool
}

// NewBadgerPersistence creates a new Badger-backed persistence layer.
// The database is opened at the specified path with SyncWrites enabled for durability.
// A background goroutine is started for garbage collection.
func NewBadgerPersistence(dataPath string, logger *zap.Logger) (*BadgerPersistence, error) {
	absPath, err := filepath.Abs(dataPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve absolute path: %w", err)
	}

	opts := badgerdb.DefaultOptions(absPath)
	opts.Logger = &badgerLoggerAdapter{logger: logger}
	opts.SyncWrites = true
	opts.CompactL0OnClose = true
	opts.NumVersionsToKeep = 1

	db, err := badgerdb.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger database at %s: %w", absPath, err)
	}

	bp := &BadgerPersistence{
		db:     db,
		logger: logger,
	}

	if err := bp.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	bp.gcCancel = cancel
	bp.gcWg.Add(1)
	go bp.runGC(ctx)

	logger.Sugar().Infow("Badger persistence initialized", "path", absPath)

	return bp, nil
}

// initSchema initializes or validates the schema version
func (b *BadgerPersistence) initSchema() error {
	return b.db.Update(func(txn *badgerdb.Txn) error {
		item, err := txn.Get([]byte(keySchemaVersion))
		if errors.Is(err, badgerdb.ErrKeyNotFound) {
			return txn.Set([]byte(keySchemaVersion), []byte(currentSchemaVersion))
		}
		if err != nil {
			return fmt.Errorf("failed to read schema version: %w", err)
		}

		var existingVersion string
		err = item.Value(func(val []byte) error {
			existingVersion = string(val)
			return nil
		})
		if err != nil {
			return fmt.Errorf("failed to read schema version value: %w", err)
		}

		if existingVersion != currentSchemaVersion {
			return fmt.Errorf("unsupported schema version: %s (expected: %s)", existingVersion, currentSchemaVersion)
		}

		return nil
	})
}

// runGC runs periodic garbage collection in the background
func (b *BadgerPersistence) runGC(ctx context.Context) {
	defer b.gcWg.Done()

	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			err := b.db.RunValueLogGC(0.5)
			if err != nil && !errors.Is(err, badgerdb.ErrNoRewrite) {
				b.logger.Sugar().Warnw("Badger GC error", "error", err)
			}
		case <-ctx.Done():
			return
		}
	}
}

func accountKey(prefix string, account common.Address) []byte {
	return append([]byte(prefix), account.Bytes()...)
}

// get copies the value stored at key, returning nil when it does not exist.
func (b *BadgerPersistence) get(key []byte) ([]byte, error) {
	var data []byte
	err := b.db.View(func(txn *badgerdb.Txn) error {
		item, err := txn.Get(key)
		if errors.Is(err, badgerdb.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	return data, err
}

func (b *BadgerPersistence) LoadMeta() (*persistence.RegistryMeta, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil, persistence.ErrClosed
	}

	data, err := b.get([]byte(keyMeta))
	if err != nil {
		return nil, fmt.Errorf("failed to load RegistryMeta: %w", err)
	}
	if data == nil {
		return nil, nil
	}
	return persistence.UnmarshalMeta(data)
}

func (b *BadgerPersistence) LoadClaimed(account common.Address) (*uint256.Int, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil, persistence.ErrClosed
	}

	data, err := b.get(accountKey(keyPrefixClaimed, account))
	if err != nil {
		return nil, fmt.Errorf("failed to load claimed amount: %w", err)
	}
	if data == nil {
		return new(uint256.Int), nil
	}
	return persistence.UnmarshalAmount(data)
}

func (b *BadgerPersistence) IsBlocked(account common.Address) (bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return false, persistence.ErrClosed
	}

	data, err := b.get(accountKey(keyPrefixBlocked, account))
	if err != nil {
		return false, fmt.Errorf("failed to load blocked flag: %w", err)
	}
	return data != nil, nil
}

func (b *BadgerPersistence) ListBlocked() ([]common.Address, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil, persistence.ErrClosed
	}

	out := make([]common.Address, 0)
	err := b.db.View(func(txn *badgerdb.Txn) error {
		opts := badgerdb.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(keyPrefixBlocked)

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			key := it.Item().Key()
			out = append(out, common.BytesToAddress(key[len(keyPrefixBlocked):]))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list blocked accounts: %w", err)
	}
	return out, nil
}

// Apply writes the update inside a single badger transaction.
func (b *BadgerPersistence) Apply(update *persistence.StateUpdate) error {
	if update == nil {
		return fmt.Errorf("cannot apply nil StateUpdate")
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return persistence.ErrClosed
	}

	err := b.db.Update(func(txn *badgerdb.Txn) error {
		if update.Meta != nil {
			data, err := persistence.MarshalMeta(update.Meta)
			if err != nil {
				return err
			}
			if err := txn.Set([]byte(keyMeta), data); err != nil {
				return err
			}
		}
		for account, amount := range update.Claimed {
			key := accountKey(keyPrefixClaimed, account)
			if amount == nil || amount.IsZero() {
				if err := txn.Delete(key); err != nil {
					return err
				}
				continue
			}
			if err := txn.Set(key, persistence.MarshalAmount(amount)); err != nil {
				return err
			}
		}
		for account, blocked := range update.Blocked {
			key := accountKey(keyPrefixBlocked, account)
			if !blocked {
				if err := txn.Delete(key); err != nil {
					return err
				}
				continue
			}
			if err := txn.Set(key, []byte{1}); err != nil {
				return err
			}
		}
		for _, seq := range update.DeleteEvents {
			if err := txn.Delete(persistence.EventKey(keyPrefixEvent, seq)); err != nil {
				return err
			}
		}
		for _, e := range update.Events {
			data, err := persistence.MarshalEvent(e)
			if err != nil {
				return err
			}
			if err := txn.Set(persistence.EventKey(keyPrefixEvent, e.Seq), data); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to apply state update: %w", err)
	}
	return nil
}

func (b *BadgerPersistence) ListEvents(after uint64, limit int) ([]*persistence.Event, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil, persistence.ErrClosed
	}

	events := make([]*persistence.Event, 0)
	if after == ^uint64(0) {
		return events, nil
	}
	err := b.db.View(func(txn *badgerdb.Txn) error {
		opts := badgerdb.DefaultIteratorOptions
		opts.Prefix = []byte(keyPrefixEvent)

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(persistence.EventKey(keyPrefixEvent, after+1)); it.Valid(); it.Next() {
			if limit > 0 && len(events) >= limit {
				break
			}
			item := it.Item()
			err := item.Value(func(val []byte) error {
				e, err := persistence.UnmarshalEvent(val)
				if err != nil {
					return err
				}
				events = append(events, e)
				return nil
			})
			if err != nil {
				return fmt.Errorf("failed to read event %x: %w", item.Key(), err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	return events, nil
}

func (b *BadgerPersistence) LastEventSeq() (uint64, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return 0, persistence.ErrClosed
	}

	var last uint64
	err := b.db.View(func(txn *badgerdb.Txn) error {
		opts := badgerdb.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Reverse = true
		opts.Prefix = []byte(keyPrefixEvent)

		it := txn.NewIterator(opts)
		defer it.Close()

		// Reverse iteration starts at the largest key <= the seek key.
		it.Seek(persistence.EventKey(keyPrefixEvent, ^uint64(0)))
		if it.Valid() {
			key := it.Item().Key()
			last = binary.BigEndian.Uint64(key[len(keyPrefixEvent):])
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to read last event sequence: %w", err)
	}
	return last, nil
}

// Close shuts down the persistence layer
func (b *BadgerPersistence) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.mu.Unlock()

	if b.gcCancel != nil {
		b.gcCancel()
	}
	b.gcWg.Wait()

	if err := b.db.Close(); err != nil {
		return fmt.Errorf("failed to close badger database: %w", err)
	}

	b.logger.Sugar().Info("Badger persistence closed")
	return nil
}

// HealthCheck verifies the persistence layer is operational
func (b *BadgerPersistence) HealthCheck() error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return persistence.ErrClosed
	}

	return b.db.View(func(txn *badgerdb.Txn) error {
		_, err := txn.Get([]byte(keySchemaVersion))
		if errors.Is(err, badgerdb.ErrKeyNotFound) {
			return fmt.Errorf("schema version not found - database may be corrupted")
		}
		return err
	})
}
