package timeline

import (
	"container/heap"
	"sort"

	"plcwatch/internal/plc/models"
)

// mergeByTime groups operations per identifier, orders each group, and k-way
// merges the groups by (CreatedAt, DID, CID).
func mergeByTime(ops []*models.Operation) []*models.Operation {
	groups := make(map[string][]*models.Operation)
	for _, op := range ops {
		groups[op.DID()] = append(groups[op.DID()], op)
	}

	h := make(mergeHeap, 0, len(groups))
	for _, group := range groups {
		sort.Slice(group, func(i, j int) bool { return group[i].Before(group[j]) })
		h = append(h, &cursor{ops: group})
	}
	heap.Init(&h)

	out := make([]*models.Operation, 0, len(ops))
	for h.Len() > 0 {
		c := h[0]
		out = append(out, c.head())
		c.pos++
		if c.pos == len(c.ops) {
			heap.Pop(&h)
		} else {
			heap.Fix(&h, 0)
		}
	}
	return out
}

type cursor struct {
	ops []*models.Operation
	pos int
}

func (c *cursor) head() *models.Operation {
	return c.ops[c.pos]
}

type mergeHeap []*cursor

func (h mergeHeap) Len() int { return len(h) }

func (h mergeHeap) Less(i, j int) bool {
	a, b := h[i].head(), h[j].head()
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	if a.DID() != b.DID() {
		return a.DID() < b.DID()
	}
	return a.CID < b.CID
}

func (h mergeHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *mergeHeap) Push(x any) { *h = append(*h, x.(*cursor)) }

func (h *mergeHeap) Pop() any {
	old := *h
	n := len(old)
	c := old[n-1]
	*h = old[:n-1]
	return c
}
