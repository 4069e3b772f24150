package store

import (
	"hash/fnv"
	"sync"
)

const lockStripes = 64

// keyLocks is a striped set of mutexes keyed by record key. Striping keeps
// the memory footprint fixed; distinct keys may share a stripe, which only
// costs throughput, never correctness.
type keyLocks struct {
	stripes [lockStripes]sync.Mutex
}

func (l *keyLocks) lock(key string) func() {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	m := &l.stripes[h.Sum32()%lockStripes]
	m.Lock()
	return m.Unlock
}
