package bucketing

import (
	"hash"
	"sync"

	"github.com/spaolacci/murmur3"
)

// Manager assigns identities to a fixed number of buckets so counter keys
// spread evenly across the store's keyspace. Assignments are consistent: the
// same identity always lands in the same bucket.
type Manager struct {
	buckets    int
	hasherPool sync.Pool
}

func NewManager(buckets int) *Manager {
	if buckets <= 0 {
		buckets = 64
	}
	m := &Manager{buckets: buckets}

	// Pool of hash functions to avoid per-key allocation
	m.hasherPool = sync.Pool{
		New: func() interface{} {
			return murmur3.New64()
		},
	}
	return m
}

// Bucket returns the bucket for an identity (0 to buckets-1).
func (m *Manager) Bucket(identity string) int {
	return int(m.hash(identity) % uint64(m.buckets))
}

// Buckets returns the configured bucket count.
func (m *Manager) Buckets() int {
	return m.buckets
}

func (m *Manager) hash(key string) uint64 {
	hasher := m.hasherPool.Get().(hash.Hash64)
	defer m.hasherPool.Put(hasher)

	hasher.Reset()
	hasher.Write([]byte(key))
	return hasher.Sum64()
}
