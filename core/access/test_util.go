package access

import (
	"crypto/rand"
	"io"
	"time"
)

// SetNowFunc overrides the clock; the returned func restores it.
func SetNowFunc(fn func() time.Time) (restore func()) {
	nowFunc = fn
	return func() { nowFunc = time.Now }
}

// SetRandReader overrides the code generator's randomness source; the
// returned func restores it.
func SetRandReader(r io.Reader) (restore func()) {
	randReader = r
	return func() { randReader = rand.Reader }
}
