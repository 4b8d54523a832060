package data

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_JSONMap_Value(t *testing.T) {
	t.Run("nil map stores an empty object", func(t *testing.T) {
		var m JSONMap
		v, err := m.Value()
		require.NoError(t, err)
		assert.Equal(t, "{}", v)
	})

	t.Run("map is stored as a JSON object", func(t *testing.T) {
		v, err := JSONMap{"cpu_cores": 4}.Value()
		require.NoError(t, err)
		assert.JSONEq(t, `{"cpu_cores": 4}`, v.(string))
	})
}

func Test_JSONMap_Scan(t *testing.T) {
	t.Run("NULL scans to an empty map", func(t *testing.T) {
		var m JSONMap
		require.NoError(t, m.Scan(nil))
		assert.Equal(t, JSONMap{}, m)
	})

	t.Run("empty string scans to an empty map", func(t *testing.T) {
		var m JSONMap
		require.NoError(t, m.Scan(""))
		assert.Equal(t, JSONMap{}, m)
	})

	t.Run("scans from string and bytes", func(t *testing.T) {
		var m JSONMap
		require.NoError(t, m.Scan(`{"timeout_s": 30}`))
		assert.Equal(t, JSONMap{"timeout_s": float64(30)}, m)

		var n JSONMap
		require.NoError(t, n.Scan([]byte(`{"can_execute": false}`)))
		assert.Equal(t, JSONMap{"can_execute": false}, n)
	})

	t.Run("rejects unexpected driver types", func(t *testing.T) {
		var m JSONMap
		assert.EqualError(t, m.Scan(42), "unexpected type int for JSONMap")
	})
}

func Test_JSONMap_accessors(t *testing.T) {
	m := JSONMap{"can_execute": false, "timeout_s": float64(30), "name": "w1"}

	assert.False(t, m.Bool("can_execute", true))
	assert.True(t, m.Bool("missing", true))
	assert.True(t, m.Bool("name", true))

	assert.Equal(t, 30, m.Int("timeout_s", 60))
	assert.Equal(t, 60, m.Int("missing", 60))
	assert.Equal(t, 60, m.Int("name", 60))
}
