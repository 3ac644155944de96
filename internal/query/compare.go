package query

import "encoding/json"

// typeRank orders values for cross-type comparison: null < bool < number
// < string < array < object, generalized from the teacher's single-kind
// (number-or-string) order comparator to the full filter-language type
// universe.
func typeRank(v interface{}) int {
	switch v.(type) {
	case nil:
		return 0
	case bool:
		return 1
	case float64, int, int64:
		return 2
	case string:
		return 3
	case []interface{}:
		return 4
	case map[string]interface{}:
		return 5
	default:
		return 6
	}
}

func toFloat(v interface{}) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	default:
		return 0, false
	}
}

// Compare returns -1, 0, or 1 comparing a and b under a total order:
// same-type values compare naturally (objects by their canonical JSON
// encoding, map keys sorted); different-type values compare by typeRank.
func Compare(a, b interface{}) int {
	ra, rb := typeRank(a), typeRank(b)
	if ra != rb {
		if ra < rb {
			return -1
		}
		return 1
	}

	switch ra {
	case 0:
		return 0
	case 1:
		ba, bb := a.(bool), b.(bool)
		if ba == bb {
			return 0
		}
		if !ba {
			return -1
		}
		return 1
	case 2:
		fa, _ := toFloat(a)
		fb, _ := toFloat(b)
		switch {
		case fa < fb:
			return -1
		case fa > fb:
			return 1
		default:
			return 0
		}
	case 3:
		sa, sb := a.(string), b.(string)
		switch {
		case sa < sb:
			return -1
		case sa > sb:
			return 1
		default:
			return 0
		}
	case 4:
		aa, ab := a.([]interface{}), b.([]interface{})
		n := len(aa)
		if len(ab) < n {
			n = len(ab)
		}
		for i := 0; i < n; i++ {
			if c := Compare(aa[i], ab[i]); c != 0 {
				return c
			}
		}
		switch {
		case len(aa) < len(ab):
			return -1
		case len(aa) > len(ab):
			return 1
		default:
			return 0
		}
	case 5:
		ja, _ := json.Marshal(a)
		jb, _ := json.Marshal(b)
		return Compare(string(ja), string(jb))
	default:
		return 0
	}
}

// Equal reports strict equality under the same comparator Compare uses.
func Equal(a, b interface{}) bool {
	if typeRank(a) != typeRank(b) {
		return false
	}
	return Compare(a, b) == 0
}
