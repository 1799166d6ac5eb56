package probe

import (
	"fmt"
	"net"
	"strconv"
	"sync"

	"github.com/subgeo/subgeo/internal/synth"
)

// portAllocator hands out per-probe port pairs from a configured range.
// Concurrent probes must never share a listener port, so allocation is a
// monotonic scan guarded by a mutex, with an OS-level availability probe on
// top; a pair is not reissued until the scan wraps the whole range.
type portAllocator struct {
	mu       sync.Mutex
	min, max int
	next     int
}

func newPortAllocator(min, max int) *portAllocator {
	return &portAllocator{min: min, max: max, next: min}
}

// allocatePair returns an (http, socks) pair of adjacent free ports.
func (a *portAllocator) allocatePair() (synth.Ports, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	span := a.max - a.min
	for tried := 0; tried < span; tried += 2 {
		p := a.next
		a.next += 2
		if a.next >= a.max {
			a.next = a.min
		}
		if isPortFree(p) && isPortFree(p+1) {
			return synth.Ports{HTTP: p, SOCKS: p + 1}, nil
		}
	}
	return synth.Ports{}, fmt.Errorf("no free port pair in %d-%d", a.min, a.max)
}

func isPortFree(port int) bool {
	ln, err := net.Listen("tcp", "127.0.0.1:"+strconv.Itoa(port))
	if err != nil {
		return false
	}
	_ = ln.Close()
	return true
}
