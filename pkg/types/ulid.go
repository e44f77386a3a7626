package types

import (
	"crypto/rand"
	"encoding/binary"
	"sync"
	"time"
)

// ULID is a 128-bit identifier: 48-bit millisecond timestamp followed by 80 random bits.
// The string form sorts lexicographically in generation order.
type ULID [16]byte

const crockfordBase32 = "0123456789ABCDEFGHJKMNPQRSTVWXYZ"

// ULIDGenerator hands out event IDs. IDs generated in the same millisecond
// increase monotonically.
type ULIDGenerator struct {
	mu       sync.Mutex
	lastMs   uint64
	lastRand [10]byte
}

// NewULIDGenerator creates a new ULID generator.
func NewULIDGenerator() *ULIDGenerator {
	return &ULIDGenerator{}
}

// GenerateWithTime creates a ULID stamped with t. Backfilled events use the
// event timestamp so their IDs sort with the rest of that day.
func (g *ULIDGenerator) GenerateWithTime(t time.Time) (ULID, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	ms := uint64(t.UnixMilli())
	if ms == g.lastMs {
		for i := len(g.lastRand) - 1; i >= 0; i-- {
			g.lastRand[i]++
			if g.lastRand[i] != 0 {
				break
			}
		}
	} else {
		if _, err := rand.Read(g.lastRand[:]); err != nil {
			return ULID{}, err
		}
		g.lastMs = ms
	}

	var u ULID
	var ts [8]byte
	binary.BigEndian.PutUint64(ts[:], ms)
	copy(u[:6], ts[2:])
	copy(u[6:], g.lastRand[:])
	return u, nil
}

// NewEventID returns the string form of a freshly generated ULID.
func (g *ULIDGenerator) NewEventID(t time.Time) (string, error) {
	u, err := g.GenerateWithTime(t)
	if err != nil {
		return "", err
	}
	return u.String(), nil
}

// String returns the 26-character Crockford Base32 form.
func (u ULID) String() string {
	hi := binary.BigEndian.Uint64(u[:8])
	lo := binary.BigEndian.Uint64(u[8:])

	var buf [26]byte
	for i := len(buf) - 1; i >= 0; i-- {
		buf[i] = crockfordBase32[lo&31]
		lo = lo>>5 | hi<<59
		hi >>= 5
	}
	return string(buf[:])
}
