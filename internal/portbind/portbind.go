// Package portbind acquires a listening socket on the first free port of a
// contiguous range.
package portbind

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
)

// ErrRangeExhausted is returned when no port of a range could be bound.
var ErrRangeExhausted = errors.New("portbind: no free port in range")

// Binder attempts to bind a single port.
type Binder interface {
	BindTo(port int) bool
}

// BinderFunc adapts a function to Binder.
type BinderFunc func(port int) bool

// BindTo implements Binder.
func (f BinderFunc) BindTo(port int) bool { return f(port) }

// Range is an inclusive port range.
type Range struct {
	Start int
	End   int
}

// Validate checks that the range is non-empty and within valid port numbers.
func (r Range) Validate() error {
	if r.Start <= 0 || r.End > 65535 {
		return fmt.Errorf("portbind: range %d-%d outside 1-65535", r.Start, r.End)
	}
	if r.Start > r.End {
		return fmt.Errorf("portbind: range start %d after end %d", r.Start, r.End)
	}
	return nil
}

func (r Range) String() string {
	return fmt.Sprintf("%d-%d", r.Start, r.End)
}

// BindToRange tries ports from r.Start to r.End in order and returns the
// first port b accepted. No port after the successful one is attempted.
func BindToRange(b Binder, r Range) (int, bool) {
	for port := r.Start; port <= r.End; port++ {
		if b.BindTo(port) {
			return port, true
		}
	}
	return 0, false
}

// TCPBinder binds TCP listeners on a single host, by default the IPv4
// loopback address. It holds at most one listener at a time.
type TCPBinder struct {
	Host string

	mu       sync.Mutex
	listener net.Listener
	port     int
}

// NewLoopbackBinder returns a binder for 127.0.0.1.
func NewLoopbackBinder() *TCPBinder {
	return &TCPBinder{Host: "127.0.0.1"}
}

// BindTo listens on port. Once a listener is held, further calls do not
// rebind and only report whether port is the bound one. Failed attempts
// leave no socket open.
func (b *TCPBinder) BindTo(port int) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.listener != nil {
		return port == b.port
	}

	host := b.Host
	if host == "" {
		host = "127.0.0.1"
	}
	ln, err := net.Listen("tcp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return false
	}
	b.listener = ln
	b.port = port
	return true
}

// Listener returns the held listener, or nil.
func (b *TCPBinder) Listener() net.Listener {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.listener
}

// Port returns the bound port, or 0.
func (b *TCPBinder) Port() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.port
}

// Release forgets the held listener so the binder can bind again. It does
// not close the listener; the owner of the listener does that.
func (b *TCPBinder) Release() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.listener = nil
	b.port = 0
}
