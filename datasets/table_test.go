package datasets

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseClipID(t *testing.T) {
	id, err := ParseClipID("42", IntIDs)
	require.NoError(t, err)
	n, ok := id.Int()
	assert.True(t, ok)
	assert.Equal(t, int64(42), n)
	assert.Equal(t, IntClipID(42), id)

	_, err = ParseClipID("S001C001", IntIDs)
	assert.Error(t, err)

	sid, err := ParseClipID("S001C001", StringIDs)
	require.NoError(t, err)
	assert.Equal(t, StringIDs, sid.Kind())
	assert.Equal(t, "S001C001", sid.String())
	_, ok = sid.Int()
	assert.False(t, ok)

	// "7" as a string id is a different key than the integer 7.
	assert.NotEqual(t, IntClipID(7), StringClipID("7"))
}

func TestNewTableRejectsBadRows(t *testing.T) {
	_, err := NewTable([]ClipRecord{{ID: IntClipID(1)}, {ID: IntClipID(1)}})
	assert.ErrorContains(t, err, "duplicate")

	_, err = NewTable([]ClipRecord{{ID: IntClipID(1)}, {ID: StringClipID("b")}})
	assert.ErrorContains(t, err, "mixes")

	_, err = NewTable([]ClipRecord{{ID: IntClipID(1), Action: -1}})
	assert.ErrorContains(t, err, "negative action")
}

func TestTableLookup(t *testing.T) {
	table := intTable(t, 5)

	assert.Equal(t, 5, table.Len())
	assert.Equal(t, IntIDs, table.IDKind())
	assert.Equal(t, 3, table.NumClasses())

	rows, err := table.Lookup([]ClipID{IntClipID(4), IntClipID(2)})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, IntClipID(4), rows[0].ID)
	assert.Equal(t, IntClipID(2), rows[1].ID)

	_, err = table.Lookup([]ClipID{IntClipID(99)})
	assert.Error(t, err)

	r, err := table.At(Ordinal(2))
	require.NoError(t, err)
	assert.Equal(t, IntClipID(3), r.ID)
	_, err = table.At(Ordinal(5))
	assert.Error(t, err)

	r, err = table.Sample(rand.New(rand.NewSource(1)))
	require.NoError(t, err)
	_, ok := table.Get(r.ID)
	assert.True(t, ok)
}
