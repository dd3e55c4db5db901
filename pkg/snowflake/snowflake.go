// Package snowflake generates 64-bit message IDs: 41 bits of milliseconds
// since a fixed epoch, 10 bits of node, 12 bits of per-millisecond sequence.
// IDs from one node are strictly increasing, which is what gives a room's
// messages their stable order when keyed by (room, id).
package snowflake

import (
	"errors"
	"sync"
	"time"
)

const (
	nodeBits  = 10
	stepBits  = 12
	nodeMax   = -1 ^ (-1 << nodeBits)
	stepMask  = -1 ^ (-1 << stepBits)
	timeShift = nodeBits + stepBits
	nodeShift = stepBits

	// 2024-01-01 00:00:00 UTC
	epoch int64 = 1704067200000
)

type Node struct {
	mu   sync.Mutex
	last int64
	node int64
	step int64
}

func NewNode(node int64) (*Node, error) {
	if node < 0 || node > nodeMax {
		return nil, errors.New("node number must be between 0 and 1023")
	}
	return &Node{node: node}, nil
}

// Generate returns the next ID. If the wall clock moves backwards the
// generator holds at the last observed millisecond rather than reusing time.
func (n *Node) Generate() int64 {
	n.mu.Lock()
	defer n.mu.Unlock()

	now := time.Now().UnixMilli()
	if now < n.last {
		now = n.last
	}

	if now == n.last {
		n.step = (n.step + 1) & stepMask
		if n.step == 0 {
			for now <= n.last {
				now = time.Now().UnixMilli()
			}
		}
	} else {
		n.step = 0
	}
	n.last = now

	return ((now - epoch) << timeShift) | (n.node << nodeShift) | n.step
}

// TimeOf extracts the creation time embedded in an ID.
func TimeOf(id int64) time.Time {
	return time.UnixMilli((id >> timeShift) + epoch)
}
