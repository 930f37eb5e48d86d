package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/ccxlabs/mcp-context-server/internal/domain"
)

// keySeparator joins collection and key into a single badger key.
const keySeparator = "/"

// BadgerStore implements Store on top of an embedded BadgerDB.
type BadgerStore struct {
	db *badger.DB
}

// Options configures a BadgerStore.
type Options struct {
	// Path is the database directory. Ignored when InMemory is set.
	Path string

	// InMemory opens the database without disk persistence. Intended
	// for tests.
	InMemory bool

	// SyncWrites enables synchronous writes for durability.
	SyncWrites bool

	// Logger receives badger's internal log output. Nil disables it.
	Logger *slog.Logger
}

// Open opens or creates a badger-backed store.
func Open(opts Options) (*BadgerStore, error) {
	var bopts badger.Options
	if opts.InMemory {
		bopts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		bopts = badger.DefaultOptions(opts.Path)
	}
	bopts = bopts.WithSyncWrites(opts.SyncWrites)
	if opts.Logger != nil {
		bopts = bopts.WithLogger(&badgerLogger{logger: opts.Logger})
	} else {
		bopts = bopts.WithLogger(nil)
	}

	db, err := badger.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	return &BadgerStore{db: db}, nil
}

// fullKey builds the physical key for (collection, key).
func fullKey(collection, key string) []byte {
	return []byte(collection + keySeparator + key)
}

// Get implements Store.
func (s *BadgerStore) Get(ctx context.Context, collection, key string, out any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(fullKey(collection, key))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, out)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return fmt.Errorf("%s/%s: %w", collection, key, domain.ErrNotFound)
	}
	return wrapStoreErr(err)
}

// Put implements Store.
func (s *BadgerStore) Put(ctx context.Context, collection, key string, value any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal %s/%s: %w", collection, key, err)
	}
	return wrapStoreErr(s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(fullKey(collection, key), data)
	}))
}

// PutWithTTL implements Store.
func (s *BadgerStore) PutWithTTL(ctx context.Context, collection, key string, value any, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal %s/%s: %w", collection, key, err)
	}
	return wrapStoreErr(s.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry(fullKey(collection, key), data).WithTTL(ttl)
		return txn.SetEntry(entry)
	}))
}

// Delete implements Store.
func (s *BadgerStore) Delete(ctx context.Context, collection, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return wrapStoreErr(s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(fullKey(collection, key))
	}))
}

// Query implements Store. Errors returned by fn propagate unwrapped.
func (s *BadgerStore) Query(ctx context.Context, collection, prefix string, fn func(key string, value []byte) error) error {
	scanPrefix := fullKey(collection, prefix)
	return s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = scanPrefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.ValidForPrefix(scanPrefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			item := it.Item()
			key := strings.TrimPrefix(string(item.Key()), collection+keySeparator)
			err := item.Value(func(val []byte) error {
				return fn(key, val)
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
}

// AtomicUpdate implements Store. The version check and write execute in
// one badger transaction; a concurrent writer on the same key causes
// either a version mismatch or a transaction conflict, both surfaced as
// domain.ErrVersionMismatch.
func (s *BadgerStore) AtomicUpdate(ctx context.Context, collection, key string, expectedVersion uint64, value any) error {
	return s.atomicUpdate(ctx, collection, key, expectedVersion, value, 0)
}

// AtomicUpdateWithTTL implements Store.
func (s *BadgerStore) AtomicUpdateWithTTL(ctx context.Context, collection, key string, expectedVersion uint64, value any, ttl time.Duration) error {
	return s.atomicUpdate(ctx, collection, key, expectedVersion, value, ttl)
}

func (s *BadgerStore) atomicUpdate(ctx context.Context, collection, key string, expectedVersion uint64, value any, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal %s/%s: %w", collection, key, err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(fullKey(collection, key))
		switch {
		case errors.Is(err, badger.ErrKeyNotFound):
			if expectedVersion != 0 {
				return domain.ErrVersionMismatch
			}
		case err != nil:
			return err
		default:
			var env versionEnvelope
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &env)
			}); err != nil {
				return err
			}
			if env.Version != expectedVersion {
				return domain.ErrVersionMismatch
			}
		}
		if ttl > 0 {
			return txn.SetEntry(badger.NewEntry(fullKey(collection, key), data).WithTTL(ttl))
		}
		return txn.Set(fullKey(collection, key), data)
	})
	if errors.Is(err, badger.ErrConflict) {
		return domain.ErrVersionMismatch
	}
	if errors.Is(err, domain.ErrVersionMismatch) {
		return domain.ErrVersionMismatch
	}
	return wrapStoreErr(err)
}

// VectorQuery implements Store with a brute-force cosine scan. Results
// are ordered by descending score, ties broken by key for determinism.
func (s *BadgerStore) VectorQuery(ctx context.Context, collection, prefix string, vector []float32, topN int) ([]VectorMatch, error) {
	if topN <= 0 {
		return nil, nil
	}

	var matches []VectorMatch
	err := s.Query(ctx, collection, prefix, func(key string, value []byte) error {
		var env vectorEnvelope
		if err := json.Unmarshal(value, &env); err != nil {
			return nil // skip records without a usable vector
		}
		if len(env.Vector) != len(vector) {
			return nil
		}
		matches = append(matches, VectorMatch{Key: key, Score: cosineSimilarity(vector, env.Vector)})
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].Key < matches[j].Key
	})
	if len(matches) > topN {
		matches = matches[:topN]
	}
	return matches, nil
}

// Close implements Store.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}

// wrapStoreErr tags unexpected backend failures as transient store
// errors so callers can retry with backoff.
func wrapStoreErr(err error) error {
	if err == nil ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, domain.ErrNotFound) {
		return err
	}
	return fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
}

// badgerLogger adapts slog.Logger to badger's Logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...any)   { l.logger.Error(fmt.Sprintf(format, args...)) }
func (l *badgerLogger) Warningf(format string, args ...any) { l.logger.Warn(fmt.Sprintf(format, args...)) }
func (l *badgerLogger) Infof(format string, args ...any)    { l.logger.Info(fmt.Sprintf(format, args...)) }
func (l *badgerLogger) Debugf(format string, args ...any)   { l.logger.Debug(fmt.Sprintf(format, args...)) }
