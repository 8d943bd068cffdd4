// Package idgen produces request ids of the form <prefix><counter>, where
// counter increments atomically starting at 1 (spec §4.2). A Generator is
// safe for concurrent callers; uniqueness is only guaranteed within a
// single connection's lifetime.
package idgen

import (
	"strconv"
	"sync/atomic"

	"github.com/mcpcore/client-go/jsonrpc"
)

// Generator produces monotonically increasing request ids.
type Generator struct {
	prefix  string
	counter atomic.Int64
}

// New returns a Generator with the given id prefix. An empty prefix is
// valid; a non-empty one aids cross-connection log correlation.
func New(prefix string) *Generator {
	return &Generator{prefix: prefix}
}

// Next returns the next id in the sequence as a jsonrpc.ID.
func (g *Generator) Next() jsonrpc.ID {
	n := g.counter.Add(1)
	return jsonrpc.StringID(g.prefix + strconv.FormatInt(n, 10))
}
