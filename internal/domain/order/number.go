package order

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"time"
)

// NumberFromTime derives a human-readable order number from the wall clock:
// "ORD-" followed by the six trailing digits of the unix-millisecond
// timestamp. Two checkouts landing in the same millisecond produce the same
// number, so callers must treat ErrNumberTaken from the repository as
// retryable and switch to RandomNumber.
func NumberFromTime(t time.Time) string {
	ms := t.UnixMilli() % 1_000_000
	return fmt.Sprintf("ORD-%06d", ms)
}

// RandomNumber returns an order number with a cryptographically random
// six-digit suffix. Used as the collision fallback for NumberFromTime.
func RandomNumber() string {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		// crypto/rand only fails when the OS entropy source is broken;
		// fall back to the clock rather than abort the checkout.
		return NumberFromTime(time.Now())
	}
	return fmt.Sprintf("ORD-%06d", n.Int64())
}
