package memcore

import (
	"context"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"go.mongodb.org/mongo-driver/bson"
)

// badgerEnvelope pairs a document with its original (pre-string-encoded)
// store key, since BadgerDB only understands byte keys: canonicalKey is a
// one-way encoding, so the key a full scan needs back has to travel inside
// the stored value too.
type badgerEnvelope struct {
	Key Value    `bson:"key"`
	Doc Document `bson:"doc"`
}

// BadgerStore is a DocumentStore backed by an embedded BadgerDB instance,
// adapted from the teacher's BadgerCache (cache/badger.go) for documents
// keyed by an arbitrary identifier Value instead of an ObjectID.
type BadgerStore struct {
	db *badger.DB
}

// NewBadgerStore opens (or creates) a BadgerDB database at dbPath.
func NewBadgerStore(dbPath string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(dbPath)
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger store: %w", err)
	}
	go runStoreGC(db)
	return &BadgerStore{db: db}, nil
}

func runStoreGC(db *badger.DB) {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for range ticker.C {
	again:
		if err := db.RunValueLogGC(0.5); err == nil {
			goto again
		}
	}
}

func (s *BadgerStore) Get(ctx context.Context, key StoreKey) (Document, bool, error) {
	var env badgerEnvelope
	dbKey := []byte(canonicalKey(key))
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(dbKey)
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return bson.Unmarshal(val, &env)
		})
	})
	if err == badger.ErrKeyNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("badger store get: %w", err)
	}
	return env.Doc, true, nil
}

func (s *BadgerStore) Put(ctx context.Context, key StoreKey, doc Document) error {
	value, err := bson.Marshal(badgerEnvelope{Key: key, Doc: doc})
	if err != nil {
		return fmt.Errorf("badger store marshal: %w", err)
	}
	dbKey := []byte(canonicalKey(key))
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(dbKey, value)
	})
}

func (s *BadgerStore) Delete(ctx context.Context, key StoreKey) error {
	dbKey := []byte(canonicalKey(key))
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(dbKey)
	})
}

func (s *BadgerStore) Keys(ctx context.Context) ([]StoreKey, error) {
	var out []StoreKey
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			err := item.Value(func(val []byte) error {
				var env badgerEnvelope
				if err := bson.Unmarshal(val, &env); err != nil {
					return err
				}
				out = append(out, env.Key)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	return out, err
}

func (s *BadgerStore) Len(ctx context.Context) (int, error) {
	n := 0
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			n++
		}
		return nil
	})
	return n, err
}

func (s *BadgerStore) Close() error {
	return s.db.Close()
}
