package idgen_test

import (
	"strings"
	"sync"
	"testing"

	"github.com/mcpcore/client-go/idgen"
)

func TestGeneratorMonotonic(t *testing.T) {
	g := idgen.New("")
	first := g.Next().String()
	second := g.Next().String()
	if first != "1" || second != "2" {
		t.Fatalf("got %q, %q; want 1, 2", first, second)
	}
}

func TestGeneratorPrefix(t *testing.T) {
	g := idgen.New("conn-a-")
	id := g.Next().String()
	if !strings.HasPrefix(id, "conn-a-") {
		t.Fatalf("id = %q, want prefix conn-a-", id)
	}
}

// TestGeneratorConcurrentUniqueness covers spec §4.2: "safe for concurrent
// callers" and ids unique within a connection's lifetime.
func TestGeneratorConcurrentUniqueness(t *testing.T) {
	g := idgen.New("")
	const n = 200

	seen := make(chan string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			seen <- g.Next().String()
		}()
	}
	wg.Wait()
	close(seen)

	unique := make(map[string]bool, n)
	for id := range seen {
		if unique[id] {
			t.Fatalf("duplicate id %q", id)
		}
		unique[id] = true
	}
	if len(unique) != n {
		t.Fatalf("len(unique) = %d, want %d", len(unique), n)
	}
}
