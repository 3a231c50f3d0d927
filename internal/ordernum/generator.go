package ordernum

import (
	"crypto/rand"
	"io"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

const prefix = "ORD-"

// Generator issues order numbers of the form ORD-<ULID>. The ULID carries the
// millisecond timestamp; within one millisecond the monotonic entropy source
// increments, so numbers from one generator are strictly increasing.
type Generator struct {
	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
	now     func() time.Time
}

func NewGenerator() *Generator {
	return newGenerator(rand.Reader, time.Now)
}

func newGenerator(r io.Reader, now func() time.Time) *Generator {
	return &Generator{
		entropy: ulid.Monotonic(r, 0),
		now:     now,
	}
}

// Next returns a fresh order number.
func (g *Generator) Next() (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	id, err := ulid.New(ulid.Timestamp(g.now()), g.entropy)
	if err != nil {
		return "", err
	}
	return prefix + id.String(), nil
}

// Time extracts the creation time encoded in an order number.
func Time(orderNumber string) (time.Time, bool) {
	if len(orderNumber) <= len(prefix) || orderNumber[:len(prefix)] != prefix {
		return time.Time{}, false
	}
	id, err := ulid.ParseStrict(orderNumber[len(prefix):])
	if err != nil {
		return time.Time{}, false
	}
	return ulid.Time(id.Time()), true
}
