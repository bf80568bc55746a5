package channel

import (
	"sync"

	"github.com/cespare/xxhash/v2"

	"github.com/grafana/pewpewgo/pkg/jsonvalue"
)

// uniqueSet stores only the 64-bit fingerprint of each live value, never the
// value itself (the channel already owns the value). insertHash reports
// whether the value was previously absent; removeHash is called once the
// corresponding value is popped by a consumer. Collisions are treated as
// duplicates, which is acceptable at 64 bits. A sync.Mutex-guarded map
// stands in for a concurrent set, indexed by an unseeded xxhash of the
// value's deterministic serialization; no per-process key is mixed in.
type uniqueSet struct {
	mu   sync.Mutex
	seen map[uint64]int // count per fingerprint; insertHash never raises it above 1
}

func newUniqueSet() *uniqueSet {
	return &uniqueSet{seen: make(map[uint64]int)}
}

// insertHash returns true if the fingerprint was absent (and is now
// recorded).
func (u *uniqueSet) insertHash(h uint64) bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.seen[h] > 0 {
		return false
	}
	u.seen[h] = 1
	return true
}

// removeHash drops one occurrence of the fingerprint.
func (u *uniqueSet) removeHash(h uint64) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.seen[h] > 1 {
		u.seen[h]--
	} else {
		delete(u.seen, h)
	}
}

// fingerprintValue hashes a jsonvalue.Value's deterministic serialization
// with xxhash.Sum64String, which takes no key or seed.
func fingerprintValue(v jsonvalue.Value) uint64 {
	return xxhash.Sum64String(v.Stable())
}

// NewUniqueValue creates a channel of jsonvalue.Value that rejects
// duplicate inserts (the `unique` provider flag in).
func NewUniqueValue(limit int, auto bool, name string) (*Sender[jsonvalue.Value], *Receiver[jsonvalue.Value]) {
	var sender *Sender[jsonvalue.Value]
	var receiver *Receiver[jsonvalue.Value]
	if auto {
		sender, receiver = NewAuto[jsonvalue.Value](limit, name)
	} else {
		sender, receiver = New[jsonvalue.Value](limit, name)
	}
	hook := &uniqueSetHook[jsonvalue.Value]{
		fingerprint: fingerprintValue,
		set:         newUniqueSet(),
	}
	sender.c.unique = hook
	return sender, receiver
}
