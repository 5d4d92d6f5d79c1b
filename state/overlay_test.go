package state_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/escrow/state"
)

func mapReader(m map[string]string) state.Reader {
	return func(key []byte) ([]byte, error) {
		v, ok := m[string(key)]
		if !ok {
			return nil, state.ErrNotFound
		}
		return []byte(v), nil
	}
}

func TestOverlayFootprint(t *testing.T) {
	base := map[string]string{"game/1": "aaaa"}
	// committed usage: 6 + 4 + 10
	o := state.NewOverlay(mapReader(base), 20, 10, nil)

	require.NoError(t, o.Put([]byte("game/2"), []byte("bbbbbbbb")))
	assert.Equal(t, uint64(20+6+8+10), o.StorageUsage())

	// Overwrite replaces the old footprint.
	require.NoError(t, o.Put([]byte("game/1"), []byte("a")))
	assert.Equal(t, uint64(20+24-3), o.StorageUsage())

	require.NoError(t, o.Delete([]byte("game/1")))
	assert.Equal(t, uint64(24), o.StorageUsage())

	// Absent key deletion is free.
	require.NoError(t, o.Delete([]byte("missing")))
	assert.Equal(t, uint64(24), o.StorageUsage())
}

func TestOverlayReadYourWrites(t *testing.T) {
	o := state.NewOverlay(mapReader(map[string]string{"k": "v"}), 0, 0, nil)

	got, err := o.Get([]byte("k"))
	require.NoError(t, err)
	assert.Equal(t, "v", string(got))

	require.NoError(t, o.Delete([]byte("k")))
	_, err = o.Get([]byte("k"))
	require.ErrorIs(t, err, state.ErrNotFound)

	require.NoError(t, o.Put([]byte("k"), []byte("w")))
	ok, err := o.Has([]byte("k"))
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestOverlayEachOrdersChanges(t *testing.T) {
	o := state.NewOverlay(mapReader(map[string]string{"b": "1"}), 0, 0, nil)
	require.NoError(t, o.Put([]byte("c"), []byte("3")))
	require.NoError(t, o.Put([]byte("a"), []byte("1")))
	require.NoError(t, o.Delete([]byte("b")))

	var keys []string
	var deletions int
	o.Each(func(key, _ []byte, deleted bool) {
		keys = append(keys, string(key))
		if deleted {
			deletions++
		}
	})
	assert.Equal(t, []string{"a", "b", "c"}, keys)
	assert.Equal(t, 1, deletions)
}

func TestOverlayRejections(t *testing.T) {
	reserved := func(k []byte) bool { return len(k) > 0 && k[0] == 0 }
	o := state.NewOverlay(mapReader(nil), 0, 0, reserved)

	require.ErrorIs(t, o.Put(nil, []byte("x")), state.ErrEmptyKey)
	require.ErrorIs(t, o.Put([]byte{0, 1}, []byte("x")), state.ErrReservedKey)

	o.Close()
	require.ErrorIs(t, o.Put([]byte("k"), []byte("x")), state.ErrTxClosed)
	_, err := o.Get([]byte("k"))
	require.ErrorIs(t, err, state.ErrTxClosed)
}

func TestFootprint(t *testing.T) {
	assert.Equal(t, uint64(3+5+state.DefaultRecordOverhead),
		state.Footprint([]byte("abc"), []byte("hello"), state.DefaultRecordOverhead))
}

func TestOverlayValidate(t *testing.T) {
	committed := map[string]string{"k": "old"}
	read := mapReader(committed)

	o := state.NewOverlay(read, 0, 0, nil)
	require.NoError(t, o.Put([]byte("k"), []byte("new")))
	require.NoError(t, o.Put([]byte("fresh"), []byte("x")))
	require.NoError(t, o.Validate(read))

	committed["fresh"] = "y"
	assert.ErrorIs(t, o.Validate(read), state.ErrConflict)

	delete(committed, "fresh")
	delete(committed, "k")
	assert.ErrorIs(t, o.Validate(read), state.ErrConflict)
}
