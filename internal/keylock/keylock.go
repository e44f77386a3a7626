// Package keylock serializes work on (user, date) aggregate keys.
//
// Two lock families are striped over fixed arrays: a mutex per key stripe
// and a read/write gate per date stripe. Ingest holds its date gate shared
// and its key mutex exclusively; a day repair holds the date gate
// exclusively. Key mutexes are only ever taken while holding a gate, never
// the other way round, so the two families cannot deadlock.
package keylock

import (
	"encoding/binary"
	"sync"

	"github.com/spaolacci/murmur3"

	"github.com/vitalog/vitalog/pkg/types"
)

// DefaultStripes is used when New is given a non-positive count.
const DefaultStripes = 256

// Locker hands out key and date locks.
type Locker struct {
	keys  []sync.Mutex
	dates []sync.RWMutex
}

// New creates a Locker with the given number of stripes per family.
func New(stripes int) *Locker {
	if stripes <= 0 {
		stripes = DefaultStripes
	}
	return &Locker{
		keys:  make([]sync.Mutex, stripes),
		dates: make([]sync.RWMutex, stripes),
	}
}

// Stripes returns the stripe count.
func (l *Locker) Stripes() int {
	return len(l.keys)
}

// LockKey blocks until the caller may read-modify-write the aggregate for
// (userID, date). The returned func releases both locks.
func (l *Locker) LockKey(userID int64, date types.Date) (unlock func()) {
	gate := &l.dates[l.dateStripe(date)]
	key := &l.keys[l.keyStripe(userID, date)]

	gate.RLock()
	key.Lock()
	return func() {
		key.Unlock()
		gate.RUnlock()
	}
}

// LockDate blocks until no key on date is held and excludes new ones until
// the returned func is called.
func (l *Locker) LockDate(date types.Date) (unlock func()) {
	gate := &l.dates[l.dateStripe(date)]
	gate.Lock()
	return gate.Unlock
}

func (l *Locker) keyStripe(userID int64, date types.Date) int {
	var buf [16]byte
	binary.BigEndian.PutUint64(buf[:8], uint64(userID))
	putDate(buf[8:], date)
	return int(murmur3.Sum64(buf[:]) % uint64(len(l.keys)))
}

func (l *Locker) dateStripe(date types.Date) int {
	var buf [8]byte
	putDate(buf[:], date)
	return int(murmur3.Sum64(buf[:]) % uint64(len(l.dates)))
}

func putDate(b []byte, d types.Date) {
	binary.BigEndian.PutUint32(b[:4], uint32(d.Year))
	b[4] = byte(d.Month)
	b[5] = byte(d.Day)
}
