package content

import (
	"context"
	"sync"

	"github.com/nounce/nounced/util"
)

// Pin identifies a stored blob. The id is derived from the bytes alone,
// so pinning identical bytes twice yields the same id.
type Pin struct {
	Id  string
	Url string
}

// Store is the content-addressed blob store boundary.
type Store interface {
	Put(ctx context.Context, data []byte, name string, tags map[string]string) (*Pin, error)
	Unpin(ctx context.Context, id string) error
	Ping(ctx context.Context) error
}

// MemStore keeps pinned blobs in memory, for tests and ledger-less local
// runs.
type MemStore struct {
	mu    sync.Mutex
	blobs map[string][]byte
}

func NewMemStore() *MemStore {
	return &MemStore{blobs: make(map[string][]byte)}
}

func (m *MemStore) Put(ctx context.Context, data []byte, name string, tags map[string]string) (*Pin, error) {
	id := util.ContentId(data)
	m.mu.Lock()
	m.blobs[id] = data
	m.mu.Unlock()
	return &Pin{Id: id, Url: "mem://" + id}, nil
}

func (m *MemStore) Unpin(ctx context.Context, id string) error {
	m.mu.Lock()
	delete(m.blobs, id)
	m.mu.Unlock()
	return nil
}

func (m *MemStore) Ping(ctx context.Context) error {
	return nil
}

// Get returns the pinned bytes, nil if the id is unknown.
func (m *MemStore) Get(id string) []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.blobs[id]
}
