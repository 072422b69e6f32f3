package chain

import (
	"errors"
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"plcwatch/internal/plc/models"
)

var base = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func op(cid, prev string, minute int) *models.Operation {
	kind := models.KindUpdate
	if prev == "" {
		kind = models.KindGenesis
	}
	return &models.Operation{
		CID:        cid,
		Kind:       kind,
		Identifier: models.Identifier{DID: "did:plc:alice"},
		PrevCID:    prev,
		CreatedAt:  base.Add(time.Duration(minute) * time.Minute),
	}
}

func nullified(o *models.Operation) *models.Operation {
	o.Nullified = true
	return o
}

func shuffled(ops []*models.Operation, seed int64) []*models.Operation {
	out := append([]*models.Operation(nil), ops...)
	rand.New(rand.NewSource(seed)).Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	return out
}

func TestLinearChainMatchesTimeOrder(t *testing.T) {
	ops := []*models.Operation{op("a", "", 0), op("b", "a", 1), op("c", "b", 2), op("d", "c", 3)}

	chains, err := Resolve(shuffled(ops, 7))
	require.NoError(t, err)
	require.Len(t, chains, 1)
	assert.Equal(t, []string{"a", "b", "c", "d"}, chains[0].CIDs())
}

func TestLongChainWithLateFork(t *testing.T) {
	const n = 5000
	ops := []*models.Operation{op("op-0", "", 0)}
	for i := 1; i < n; i++ {
		ops = append(ops, op(fmt.Sprintf("op-%d", i), fmt.Sprintf("op-%d", i-1), i))
	}
	ops = append(ops, nullified(op("side", fmt.Sprintf("op-%d", n-2), n)))

	chains, err := Resolve(shuffled(ops, 3))
	require.NoError(t, err)
	require.Len(t, chains, 2)

	canonical := chains[0]
	require.Len(t, canonical, n)
	for i, o := range canonical {
		require.Equal(t, fmt.Sprintf("op-%d", i), o.CID)
	}
	side := chains[1]
	require.Len(t, side, n)
	assert.Equal(t, "side", side.Leaf().CID)
	assert.Equal(t, canonical[:n-1].CIDs(), side[:n-1].CIDs(), "both chains share the prefix")
}

func TestForkRanking(t *testing.T) {
	t.Run("non-nullified leaf wins regardless of order", func(t *testing.T) {
		ops := []*models.Operation{
			op("root", "", 0),
			nullified(op("lost", "root", 1)),
			nullified(op("lost-2", "lost", 2)),
			op("kept", "root", 3),
		}
		for seed := int64(0); seed < 10; seed++ {
			chains, err := Resolve(shuffled(ops, seed))
			require.NoError(t, err)
			require.Len(t, chains, 2)
			assert.Equal(t, []string{"root", "kept"}, chains[0].CIDs(), "seed %d", seed)
			assert.Equal(t, []string{"root", "lost", "lost-2"}, chains[1].CIDs())
		}
	})

	t.Run("longer chain wins among equals", func(t *testing.T) {
		ops := []*models.Operation{op("root", "", 0), op("x", "root", 1), op("y", "root", 2), op("y2", "y", 3)}
		got, err := Canonical(ops)
		require.NoError(t, err)
		assert.Equal(t, []string{"root", "y", "y2"}, got.CIDs())
	})

	t.Run("earliest leaf then smallest cid", func(t *testing.T) {
		ops := []*models.Operation{op("root", "", 0), op("late", "root", 5), op("early", "root", 2)}
		got, err := Canonical(ops)
		require.NoError(t, err)
		assert.Equal(t, "early", got.Leaf().CID)

		tied := []*models.Operation{op("root", "", 0), op("bbb", "root", 2), op("aaa", "root", 2)}
		got, err = Canonical(tied)
		require.NoError(t, err)
		assert.Equal(t, "aaa", got.Leaf().CID)
	})
}

func TestDeterministic(t *testing.T) {
	ops := []*models.Operation{
		op("r", "", 0), op("a", "r", 1), op("b", "r", 1), op("a1", "a", 2), op("b1", "b", 2), op("c", "r", 3),
	}
	first, err := Resolve(ops)
	require.NoError(t, err)
	for seed := int64(1); seed < 20; seed++ {
		again, err := Resolve(shuffled(ops, seed))
		require.NoError(t, err)
		require.Len(t, again, len(first))
		for i := range first {
			assert.Equal(t, first[i].CIDs(), again[i].CIDs())
		}
	}
}

func TestBrokenTrees(t *testing.T) {
	cases := []struct {
		name string
		ops  []*models.Operation
	}{
		{"empty", nil},
		{"no root", []*models.Operation{op("a", "b", 0), op("b", "a", 1)}},
		{"multiple roots", []*models.Operation{op("a", "", 0), op("b", "", 1)}},
		{"dangling prev", []*models.Operation{op("a", "", 0), op("b", "zzz", 1)}},
		{"cycle beside root", []*models.Operation{op("r", "", 0), op("a", "b", 1), op("b", "a", 2)}},
		{"duplicate cid", []*models.Operation{op("a", "", 0), op("a", "", 0)}},
		{"time goes backwards", []*models.Operation{op("a", "", 5), op("b", "a", 1)}},
		{"mixed identifiers", []*models.Operation{op("a", "", 0), {
			CID: "b", PrevCID: "a", Identifier: models.Identifier{DID: "did:plc:bob"}, CreatedAt: base,
		}}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Resolve(tc.ops)
			require.Error(t, err)
			assert.ErrorIs(t, err, models.ErrBrokenOperationTree)

			var broken *models.BrokenTreeError
			assert.True(t, errors.As(err, &broken))
		})
	}
}

func TestChainHelpers(t *testing.T) {
	c := Chain{op("a", "", 0), op("b", "a", 1)}
	assert.True(t, c.Contains("b"))
	assert.False(t, c.Contains("z"))
	assert.Equal(t, 1, c.IndexOf("b"))
	assert.Nil(t, Chain{}.Leaf())
}
