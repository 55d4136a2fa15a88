package sandbox

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEqual(t *testing.T) {
	cases := []struct {
		name string
		a, b interface{}
		want bool
	}{
		{"int vs float", int64(5), 5.0, true},
		{"different numbers", 5.0, 6.0, false},
		{"NaN", math.NaN(), math.NaN(), true},
		{"number vs string", 5.0, "5", false},
		{"null", nil, nil, true},
		{"null vs undefined", nil, Undefined, false},
		{"undefined", Undefined, Undefined, true},
		{"strings", "hola", "hola", true},
		{"bools", true, false, false},
		{"arrays in order", []interface{}{1.0, 2.0}, []interface{}{int64(1), int64(2)}, true},
		{"arrays out of order", []interface{}{1.0, 2.0}, []interface{}{2.0, 1.0}, false},
		{"arrays length", []interface{}{1.0}, []interface{}{1.0, 1.0}, false},
		{
			"objects ignore key order",
			map[string]interface{}{"a": 1.0, "b": []interface{}{"x"}},
			map[string]interface{}{"b": []interface{}{"x"}, "a": int64(1)},
			true,
		},
		{"objects missing key", map[string]interface{}{"a": 1.0}, map[string]interface{}{"b": 1.0}, false},
		{"object vs array", map[string]interface{}{}, []interface{}{}, false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			assert.Equal(t, c.want, Equal(c.a, c.b))
			assert.Equal(t, c.want, Equal(c.b, c.a))
		})
	}
}

func TestEqual_SelfReferencingValue(t *testing.T) {
	m := map[string]interface{}{}
	m["self"] = m
	assert.NotPanics(t, func() { Equal(m, m) })
}

func TestNormalize(t *testing.T) {
	in := map[interface{}]interface{}{
		"n":    3,
		"list": []interface{}{1, "a", map[interface{}]interface{}{1: true}},
	}
	out, err := Normalize(in)
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{
		"n":    3.0,
		"list": []interface{}{1.0, "a", map[string]interface{}{"1": true}},
	}, out)

	_, err = Normalize(struct{}{})
	assert.Error(t, err)
}

func TestToJSONSafe(t *testing.T) {
	m := map[string]interface{}{
		"nan":  math.NaN(),
		"inf":  math.Inf(-1),
		"fn":   func() {},
		"none": Undefined,
	}
	m["self"] = m

	raw, err := json.Marshal(ToJSONSafe(m))
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, "NaN", decoded["nan"])
	assert.Equal(t, "-Infinity", decoded["inf"])
	assert.Equal(t, "[Function]", decoded["fn"])
	assert.Nil(t, decoded["none"])
	assert.Contains(t, string(raw), `"[...]"`)
}

func sharedPairs(levels int) interface{} {
	var o interface{} = []interface{}{}
	for i := 0; i < levels; i++ {
		o = []interface{}{o, o}
	}
	return o
}

func TestNodeBudget(t *testing.T) {
	list := make([]interface{}, 100)
	for i := range list {
		list[i] = float64(i)
	}
	assert.True(t, WithinLimits(list))
	assert.True(t, Equal(list, list))

	cyclic := map[string]interface{}{}
	cyclic["a"] = cyclic
	cyclic["b"] = cyclic
	pairs := sharedPairs(40)

	for _, v := range []interface{}{cyclic, pairs} {
		assert.False(t, WithinLimits(v))
		assert.Equal(t, TooLarge, ToJSONSafe(v))
		assert.False(t, Equal(v, v))
	}
}

func TestUndefined_MarshalsAsNull(t *testing.T) {
	raw, err := json.Marshal([]interface{}{Undefined})
	require.NoError(t, err)
	assert.Equal(t, "[null]", string(raw))
}
