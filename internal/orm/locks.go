package orm

import (
	"sync"

	"github.com/cespare/xxhash/v2"
)

// lockPool is a fixed-size array of mutexes, each key hashed onto one
// shard, serializing writes to the same key (and, with low
// probability, to a handful of others that hash to the same shard)
// without growing one lock per distinct key ever written.
type lockPool struct {
	shards []sync.Mutex
}

const defaultLockShards = 256

func newLockPool(shards int) *lockPool {
	if shards <= 0 {
		shards = defaultLockShards
	}
	return &lockPool{shards: make([]sync.Mutex, shards)}
}

func (p *lockPool) shardFor(key string) *sync.Mutex {
	idx := xxhash.Sum64String(key) % uint64(len(p.shards))
	return &p.shards[idx]
}

func (p *lockPool) lock(key string) func() {
	m := p.shardFor(key)
	m.Lock()
	return m.Unlock
}
