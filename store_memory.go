package memcore

import (
	"context"
	"sync"
)

// MemoryStore is the default DocumentStore: a plain map guarded by a
// RWMutex, adapted from the teacher's MemoryCache (cache/memory.go) with
// the TTL/eviction machinery dropped since a collection's documents are
// authoritative state, not a cache of some other system of record.
type MemoryStore struct {
	mu   sync.RWMutex
	docs map[string]Document
	keys map[string]StoreKey
}

// NewMemoryStore builds an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		docs: make(map[string]Document),
		keys: make(map[string]StoreKey),
	}
}

func (s *MemoryStore) Get(ctx context.Context, key StoreKey) (Document, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.docs[canonicalKey(key)]
	if !ok {
		return nil, false, nil
	}
	return cloneDocument(doc), true, nil
}

func (s *MemoryStore) Put(ctx context.Context, key StoreKey, doc Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ck := canonicalKey(key)
	s.docs[ck] = cloneDocument(doc)
	s.keys[ck] = key
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, key StoreKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ck := canonicalKey(key)
	delete(s.docs, ck)
	delete(s.keys, ck)
	return nil
}

func (s *MemoryStore) Keys(ctx context.Context) ([]StoreKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]StoreKey, 0, len(s.keys))
	for _, k := range s.keys {
		out = append(out, k)
	}
	return out, nil
}

func (s *MemoryStore) Len(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docs), nil
}

func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs = nil
	s.keys = nil
	return nil
}
