package probe

import (
	"net"
	"strconv"
	"testing"
)

func TestAllocatePair_AdjacentAndDistinct(t *testing.T) {
	a := newPortAllocator(21000, 21100)

	seen := map[int]bool{}
	for i := 0; i < 5; i++ {
		pair, err := a.allocatePair()
		if err != nil {
			t.Fatal(err)
		}
		if pair.SOCKS != pair.HTTP+1 {
			t.Fatalf("pair %+v is not adjacent", pair)
		}
		if seen[pair.HTTP] {
			t.Fatalf("port %d handed out twice", pair.HTTP)
		}
		seen[pair.HTTP] = true
	}
}

func TestAllocatePair_SkipsOccupiedPorts(t *testing.T) {
	a := newPortAllocator(22000, 22100)

	ln, err := net.Listen("tcp", "127.0.0.1:"+strconv.Itoa(22000))
	if err != nil {
		t.Skipf("cannot occupy 22000: %v", err)
	}
	defer ln.Close()

	pair, err := a.allocatePair()
	if err != nil {
		t.Fatal(err)
	}
	if pair.HTTP == 22000 {
		t.Fatal("allocator handed out an occupied port")
	}
}
