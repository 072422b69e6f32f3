// Package chain reconstructs an identifier's operation tree from prev links and
// ranks its root-to-leaf paths, most canonical first.
//
// Ranking policy, applied in order:
//  1. a chain whose leaf is not nullified outranks one whose leaf is
//  2. longer chains outrank shorter ones
//  3. the chain whose leaf was created earlier wins
//  4. the lexicographically smaller leaf cid wins
//
// The result depends only on the set of operations, never on their input order.
package chain

import (
	"sort"

	"plcwatch/internal/plc/models"
)

// Chain is a root-to-leaf path ordered by prev links.
type Chain []*models.Operation

// Leaf returns the last operation, or nil for an empty chain.
func (c Chain) Leaf() *models.Operation {
	if len(c) == 0 {
		return nil
	}
	return c[len(c)-1]
}

// Contains reports whether an operation with cid is on the chain.
func (c Chain) Contains(cid string) bool {
	return c.IndexOf(cid) >= 0
}

func (c Chain) IndexOf(cid string) int {
	for i, op := range c {
		if op.CID == cid {
			return i
		}
	}
	return -1
}

// CIDs lists the chain's content addresses in order.
func (c Chain) CIDs() []string {
	out := make([]string, len(c))
	for i, op := range c {
		out[i] = op.CID
	}
	return out
}

// Canonical returns the highest-ranked chain.
func Canonical(ops []*models.Operation) (Chain, error) {
	chains, err := Resolve(ops)
	if err != nil {
		return nil, err
	}
	return chains[0], nil
}

// Resolve returns every root-to-leaf chain of one identifier's operations, ranked.
// It fails with a *models.BrokenTreeError when the operations do not form a single
// tree rooted at one operation without prev.
func Resolve(ops []*models.Operation) ([]Chain, error) {
	if len(ops) == 0 {
		return nil, &models.BrokenTreeError{Reason: "no operations"}
	}
	did := ops[0].DID()

	tree, err := index(did, ops)
	if err != nil {
		return nil, err
	}

	chains, visited := tree.paths()
	if visited != len(ops) {
		// Every node has exactly one parent inside the set, so anything the walk
		// from the root did not reach sits on a prev cycle.
		return nil, &models.BrokenTreeError{DID: did, Reason: "prev cycle detected"}
	}

	for _, c := range chains {
		for i := 1; i < len(c); i++ {
			if c[i].CreatedAt.Before(c[i-1].CreatedAt) {
				return nil, &models.BrokenTreeError{
					DID:    did,
					Reason: "created_at not monotonic at " + c[i].CID,
				}
			}
		}
	}

	rank(chains)
	return chains, nil
}

type tree struct {
	root     *models.Operation
	children map[string][]*models.Operation
}

func index(did string, ops []*models.Operation) (*tree, error) {
	byCid := make(map[string]*models.Operation, len(ops))
	for _, op := range ops {
		if op.DID() != did {
			return nil, &models.BrokenTreeError{DID: did, Reason: "operation " + op.CID + " belongs to " + op.DID()}
		}
		if _, dup := byCid[op.CID]; dup {
			return nil, &models.BrokenTreeError{DID: did, Reason: "duplicate cid " + op.CID}
		}
		byCid[op.CID] = op
	}

	t := &tree{children: make(map[string][]*models.Operation, len(ops))}
	for _, op := range ops {
		if op.IsRoot() {
			if t.root != nil {
				return nil, &models.BrokenTreeError{DID: did, Reason: "multiple roots"}
			}
			t.root = op
			continue
		}
		if _, ok := byCid[op.PrevCID]; !ok {
			return nil, &models.BrokenTreeError{DID: did, Reason: "prev " + op.PrevCID + " of " + op.CID + " not found"}
		}
		t.children[op.PrevCID] = append(t.children[op.PrevCID], op)
	}
	if t.root == nil {
		return nil, &models.BrokenTreeError{DID: did, Reason: "no root operation"}
	}

	for cid := range t.children {
		siblings := t.children[cid]
		sort.Slice(siblings, func(i, j int) bool { return siblings[i].Before(siblings[j]) })
	}
	return t, nil
}

// paths walks the tree depth-first with an explicit stack and returns every
// root-to-leaf path plus the number of nodes reached. Each visited node keeps
// a parent index and depth; a path is materialized only at its leaf.
func (t *tree) paths() ([]Chain, int) {
	type node struct {
		op     *models.Operation
		parent int
		depth  int
	}

	var chains []Chain
	var nodes []node
	stack := []node{{op: t.root, parent: -1, depth: 1}}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		nodes = append(nodes, n)
		self := len(nodes) - 1

		kids := t.children[n.op.CID]
		if len(kids) == 0 {
			path := make(Chain, n.depth)
			for i := self; i >= 0; i = nodes[i].parent {
				path[nodes[i].depth-1] = nodes[i].op
			}
			chains = append(chains, path)
			continue
		}
		for i := len(kids) - 1; i >= 0; i-- {
			stack = append(stack, node{op: kids[i], parent: self, depth: n.depth + 1})
		}
	}
	return chains, len(nodes)
}

func rank(chains []Chain) {
	sort.SliceStable(chains, func(i, j int) bool {
		return outranks(chains[i], chains[j])
	})
}

func outranks(a, b Chain) bool {
	la, lb := a.Leaf(), b.Leaf()
	if la.Nullified != lb.Nullified {
		return !la.Nullified
	}
	if len(a) != len(b) {
		return len(a) > len(b)
	}
	if !la.CreatedAt.Equal(lb.CreatedAt) {
		return la.CreatedAt.Before(lb.CreatedAt)
	}
	return la.CID < lb.CID
}
