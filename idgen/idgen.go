// Package idgen mints short, time-ordered, base58-encoded correlation
// tokens. dmx uses it to tag CodecError messages so that two failures
// logged moments apart (e.g. one per deferred attribute in a bad stream)
// can be told apart and grepped for without exposing a full stack trace
// to the caller.
package idgen

import (
	"crypto/rand"
	"fmt"
	"sync"
	"time"

	"github.com/mr-tron/base58"
)

var (
	timeMu sync.Mutex

	timeNow = time.Now // overridable in tests
)

// lastV7time is the last time we returned, packed as:
//
//	52 bits of time in milliseconds since epoch
//	12 bits of (fractional nanoseconds) >> 8
var lastV7time int64

const nanoPerMilli = 1000000

// nextTime returns a (milli, seq) pair guaranteed strictly greater, in
// the packed ordering above, than any previously returned pair.
func nextTime() (milli, seq int64) {
	timeMu.Lock()
	defer timeMu.Unlock()

	nano := timeNow().UnixNano()
	milli = nano / nanoPerMilli
	seq = (nano - milli*nanoPerMilli) >> 8
	now := milli<<12 + seq
	if now <= lastV7time {
		now = lastV7time + 1
		milli = now >> 12
		seq = now & 0xfff
	}
	lastV7time = now
	return milli, seq
}

// Token returns a prefix-tagged, time-ordered, base58-encoded
// correlation token. Tokens sort lexicographically by creation time to
// the millisecond.
func Token(prefix string) string {
	var buf [16]byte

	if _, err := rand.Read(buf[:]); err != nil {
		panic(fmt.Sprintf("idgen: failed to read random bytes: %v", err))
	}

	t, s := nextTime()

	buf[0] = byte(t >> 40)
	buf[1] = byte(t >> 32)
	buf[2] = byte(t >> 24)
	buf[3] = byte(t >> 16)
	buf[4] = byte(t >> 8)
	buf[5] = byte(t)

	buf[6] = 0x70 | (0x0F & byte(s>>8))

	buf[7] = byte(s)
	buf[8] = (buf[8] & 0x3f) | 0x80

	return prefix + "_" + base58.Encode(buf[:])
}
