// Package ids generates row keys and request identifiers.
package ids

import (
	"fmt"
	"sync"

	"github.com/bwmarrin/snowflake"
	"github.com/segmentio/ksuid"
)

// Generator hands out snowflake row keys for one node.
type Generator struct {
	mu   sync.Mutex
	node *snowflake.Node
}

// NewGenerator creates a generator for node (0..1023).
func NewGenerator(node int64) (*Generator, error) {
	n, err := snowflake.NewNode(node)
	if err != nil {
		return nil, fmt.Errorf("snowflake node %d: %w", node, err)
	}
	return &Generator{node: n}, nil
}

// Next returns a new, time-ordered row key.
func (g *Generator) Next() int64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.node.Generate().Int64()
}

// RequestID returns a sortable unique request identifier.
func RequestID() string {
	return ksuid.New().String()
}
