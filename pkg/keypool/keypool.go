// Package keypool hands out provider credentials in round-robin order.
package keypool

import (
	"errors"
	"sync/atomic"
)

// ErrEmptyPool is returned when a pool is constructed without credentials.
var ErrEmptyPool = errors.New("keypool: no credentials configured")

// Pool rotates through a fixed, ordered set of API keys. It is safe for
// concurrent use; each call to Next observes a distinct cursor position.
type Pool struct {
	keys   []string
	cursor atomic.Uint64
}

// New creates a Pool over keys in the given order. Empty strings are
// rejected along with an empty slice.
func New(keys []string) (*Pool, error) {
	if len(keys) == 0 {
		return nil, ErrEmptyPool
	}
	for _, k := range keys {
		if k == "" {
			return nil, errors.New("keypool: empty credential")
		}
	}
	return &Pool{keys: append([]string(nil), keys...)}, nil
}

// Next returns the credential under the cursor and advances the cursor,
// wrapping to the first credential after the last.
func (p *Pool) Next() string {
	n := uint64(len(p.keys))
	for {
		cur := p.cursor.Load()
		if p.cursor.CompareAndSwap(cur, (cur+1)%n) {
			return p.keys[cur]
		}
	}
}

// Size returns the number of credentials in the pool.
func (p *Pool) Size() int {
	return len(p.keys)
}

// Cursor returns the index the next call to Next will use.
func (p *Pool) Cursor() int {
	return int(p.cursor.Load())
}

// Mask shortens a credential for logs, keeping only its last four characters.
func Mask(key string) string {
	if len(key) <= 4 {
		return "****"
	}
	return "…" + key[len(key)-4:]
}
