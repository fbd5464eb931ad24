package ports

import (
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"
)

// DefaultBase is the conventional first V8 inspector port.
const DefaultBase = 9229

// maxScan bounds the search so exhaustion surfaces as an error instead of
// an unbounded scan.
const maxScan = 1000

// Allocator hands out debug ports for new debuggees. A candidate is skipped
// when it is claimed by a live managed process or when something on the host
// is already listening on it. The cursor advances past every returned port so
// sequential allocations never reissue a value still logically reserved.
type Allocator struct {
	mu    sync.Mutex
	next  int
	inUse func(int) bool
	probe func(int) bool
}

// Option configures an Allocator.
type Option func(*Allocator)

// WithInUse injects the registry-side claim check.
func WithInUse(fn func(int) bool) Option {
	return func(a *Allocator) { a.inUse = fn }
}

// WithProbe replaces the OS-level listen probe, for tests.
func WithProbe(fn func(int) bool) Option {
	return func(a *Allocator) { a.probe = fn }
}

// NewAllocator returns an Allocator starting at base (DefaultBase when <= 0).
func NewAllocator(base int, opts ...Option) *Allocator {
	if base <= 0 {
		base = DefaultBase
	}
	a := &Allocator{next: base, probe: listening}
	for _, o := range opts {
		o(a)
	}
	return a
}

// Allocate returns the next free debug port and advances the cursor past it.
func (a *Allocator) Allocate() (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for i := 0; i < maxScan; i++ {
		p := a.next
		a.next++
		if a.inUse != nil && a.inUse(p) {
			continue
		}
		if a.probe(p) {
			continue
		}
		return p, nil
	}
	return 0, fmt.Errorf("no free debug port within %d candidates", maxScan)
}

// listening reports whether something already accepts connections on the port.
// A successful dial means occupied; the probe connection is closed immediately.
func listening(port int) bool {
	conn, err := net.DialTimeout("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(port)), 200*time.Millisecond)
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}
