package sandbox

import (
	"fmt"
	"math"
	"reflect"
	"time"
)

// maxDepth bounds recursion over exported values, which may be self referencing
const maxDepth = 64

// MaxNodes bounds the total number of values visited in one walk. Shared or
// cyclic structure makes the visited tree exponential in the depth.
const MaxNodes = 10000

// TooLarge placeholder reported for values exceeding MaxNodes
const TooLarge = "[resultado demasiado grande]"

// budget counts down the nodes a single walk may still visit
type budget struct {
	left int
}

func newBudget() *budget {
	return &budget{left: MaxNodes}
}

func (b *budget) take() bool {
	if b.left <= 0 {
		return false
	}
	b.left--
	return true
}

type undefined struct{}

// MarshalJSON undefined has no JSON form, it is reported as null
func (undefined) MarshalJSON() ([]byte, error) {
	return []byte("null"), nil
}

// Undefined exported in place of the JavaScript undefined value, it is distinct
// from nil (null)
var Undefined interface{} = undefined{}

// Equal deep structural equality over JSON like values.
//
// Numbers of any Go numeric type compare by value and NaN equals NaN, objects
// compare irrespective of key order, arrays compare element-wise in order.
func Equal(a, b interface{}) bool {
	return equal(a, b, 0, newBudget())
}

func equal(a, b interface{}, depth int, bud *budget) bool {
	if depth > maxDepth || !bud.take() {
		return false
	}
	if fa, ok := toFloat(a); ok {
		fb, ok := toFloat(b)
		if !ok {
			return false
		}
		if math.IsNaN(fa) && math.IsNaN(fb) {
			return true
		}
		return fa == fb
	}

	switch av := a.(type) {
	case nil:
		return b == nil
	case undefined:
		_, ok := b.(undefined)
		return ok
	case string:
		bv, ok := b.(string)
		return ok && av == bv
	case bool:
		bv, ok := b.(bool)
		return ok && av == bv
	case []interface{}:
		bv, ok := b.([]interface{})
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !equal(av[i], bv[i], depth+1, bud) {
				return false
			}
		}
		return true
	case map[string]interface{}:
		bv, ok := b.(map[string]interface{})
		if !ok || len(av) != len(bv) {
			return false
		}
		for k, v := range av {
			w, ok := bv[k]
			if !ok || !equal(v, w, depth+1, bud) {
				return false
			}
		}
		return true
	}
	return false
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	}
	return 0, false
}

// Normalize converts decoded YAML/JSON values into the shapes Equal and the
// isolate work with: string keyed maps, []interface{} and float64 numbers
func Normalize(v interface{}) (interface{}, error) {
	return normalize(v, 0)
}

func normalize(v interface{}, depth int) (interface{}, error) {
	if depth > maxDepth {
		return nil, fmt.Errorf("value nested deeper than %d levels", maxDepth)
	}
	if f, ok := toFloat(v); ok {
		return f, nil
	}
	switch t := v.(type) {
	case nil, string, bool:
		return t, nil
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, e := range t {
			n, err := normalize(e, depth+1)
			if err != nil {
				return nil, err
			}
			out[i] = n
		}
		return out, nil
	case map[string]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, e := range t {
			n, err := normalize(e, depth+1)
			if err != nil {
				return nil, err
			}
			out[k] = n
		}
		return out, nil
	case map[interface{}]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, e := range t {
			n, err := normalize(e, depth+1)
			if err != nil {
				return nil, err
			}
			out[fmt.Sprint(k)] = n
		}
		return out, nil
	}
	return nil, fmt.Errorf("unsupported value of type %T", v)
}

// ToJSONSafe returns a copy of v that encoding/json can always marshal: NaN and
// infinities become strings, functions and exotic values are described, and
// cycles are cut at a fixed depth. Values larger than MaxNodes are replaced by
// TooLarge as a whole.
func ToJSONSafe(v interface{}) interface{} {
	if !WithinLimits(v) {
		return TooLarge
	}
	return jsonSafe(v, 0, newBudget())
}

func jsonSafe(v interface{}, depth int, bud *budget) interface{} {
	if depth > maxDepth {
		return "[...]"
	}
	if !bud.take() {
		return TooLarge
	}
	switch t := v.(type) {
	case nil, bool, string:
		return t
	case undefined:
		return nil
	case float64:
		return safeFloat(t)
	case float32:
		return safeFloat(float64(t))
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, e := range t {
			out[i] = jsonSafe(e, depth+1, bud)
		}
		return out
	case map[string]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, e := range t {
			out[k] = jsonSafe(e, depth+1, bud)
		}
		return out
	case time.Time:
		return t.UTC().Format(time.RFC3339Nano)
	}
	if _, ok := toFloat(v); ok {
		return v
	}
	if reflect.ValueOf(v).Kind() == reflect.Func {
		return "[Function]"
	}
	return fmt.Sprintf("%v", v)
}

func safeFloat(f float64) interface{} {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	}
	return f
}

// WithinLimits reports whether walking v visits at most MaxNodes values, nesting
// past maxDepth is cut as ToJSONSafe does
func WithinLimits(v interface{}) bool {
	return measure(v, 0, newBudget())
}

func measure(v interface{}, depth int, bud *budget) bool {
	if depth > maxDepth {
		return true
	}
	if !bud.take() {
		return false
	}
	switch t := v.(type) {
	case []interface{}:
		for _, e := range t {
			if !measure(e, depth+1, bud) {
				return false
			}
		}
	case map[string]interface{}:
		for _, e := range t {
			if !measure(e, depth+1, bud) {
				return false
			}
		}
	}
	return true
}
