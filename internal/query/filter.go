package query

import (
	"regexp"
	"strings"
	"sync"

	"github.com/leandroasilva/lmcs-db/internal/docpath"
)

// Filter is a recursive predicate tree: $or/$and logical operators, or
// field paths mapped to either a scalar (equality) or an operator map.
type Filter map[string]interface{}

var regexCache sync.Map // pattern string -> *regexp.Regexp

func compileRegex(pattern string) (*regexp.Regexp, error) {
	if cached, ok := regexCache.Load(pattern); ok {
		return cached.(*regexp.Regexp), nil
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, err
	}
	regexCache.Store(pattern, re)
	return re, nil
}

// Matches reports whether doc satisfies filter.
func Matches(doc map[string]interface{}, filter Filter) bool {
	if len(filter) == 0 {
		return true
	}
	for key, value := range filter {
		switch key {
		case "$or":
			subfilters, ok := value.([]Filter)
			if !ok {
				subfilters = toFilterSlice(value)
			}
			if !matchAny(doc, subfilters) {
				return false
			}
		case "$and":
			subfilters, ok := value.([]Filter)
			if !ok {
				subfilters = toFilterSlice(value)
			}
			if !matchAll(doc, subfilters) {
				return false
			}
		default:
			docValue, exists := docpath.Get(doc, key)
			if !matchField(docValue, exists, value) {
				return false
			}
		}
	}
	return true
}

func toFilterSlice(value interface{}) []Filter {
	items, ok := value.([]interface{})
	if !ok {
		return nil
	}
	out := make([]Filter, 0, len(items))
	for _, item := range items {
		switch f := item.(type) {
		case Filter:
			out = append(out, f)
		case map[string]interface{}:
			out = append(out, Filter(f))
		}
	}
	return out
}

func matchAny(doc map[string]interface{}, subfilters []Filter) bool {
	for _, sf := range subfilters {
		if Matches(doc, sf) {
			return true
		}
	}
	return len(subfilters) == 0
}

func matchAll(doc map[string]interface{}, subfilters []Filter) bool {
	for _, sf := range subfilters {
		if !Matches(doc, sf) {
			return false
		}
	}
	return true
}

// matchField evaluates one field's predicate: value is either a scalar
// (equality) or an operator map requiring every operator to match.
func matchField(docValue interface{}, exists bool, predicate interface{}) bool {
	ops, isOps := asOperatorMap(predicate)
	if !isOps {
		return exists && Equal(docValue, predicate)
	}

	for op, operand := range ops {
		if !matchOperator(docValue, exists, op, operand) {
			return false
		}
	}
	return true
}

// asOperatorMap recognizes a predicate value as an operator map: a
// map[string]interface{} whose every key starts with "$".
func asOperatorMap(predicate interface{}) (map[string]interface{}, bool) {
	m, ok := predicate.(map[string]interface{})
	if !ok {
		return nil, false
	}
	if len(m) == 0 {
		return nil, false
	}
	for k := range m {
		if !strings.HasPrefix(k, "$") {
			return nil, false
		}
	}
	return m, true
}

func matchOperator(docValue interface{}, exists bool, op string, operand interface{}) bool {
	switch op {
	case "$eq":
		return exists && Equal(docValue, operand)
	case "$ne":
		return !exists || !Equal(docValue, operand)
	case "$gt":
		return exists && Compare(docValue, operand) > 0
	case "$gte":
		return exists && Compare(docValue, operand) >= 0
	case "$lt":
		return exists && Compare(docValue, operand) < 0
	case "$lte":
		return exists && Compare(docValue, operand) <= 0
	case "$in":
		if !exists {
			return false
		}
		values, ok := operand.([]interface{})
		if !ok {
			return false
		}
		for _, v := range values {
			if Equal(docValue, v) {
				return true
			}
		}
		return false
	case "$nin":
		if !exists {
			return true
		}
		values, ok := operand.([]interface{})
		if !ok {
			return true
		}
		for _, v := range values {
			if Equal(docValue, v) {
				return false
			}
		}
		return true
	case "$contains":
		s, ok := docValue.(string)
		if !exists || !ok {
			return false
		}
		sub, ok := operand.(string)
		return ok && strings.Contains(s, sub)
	case "$startsWith":
		s, ok := docValue.(string)
		if !exists || !ok {
			return false
		}
		prefix, ok := operand.(string)
		return ok && strings.HasPrefix(s, prefix)
	case "$endsWith":
		s, ok := docValue.(string)
		if !exists || !ok {
			return false
		}
		suffix, ok := operand.(string)
		return ok && strings.HasSuffix(s, suffix)
	case "$regex":
		s, ok := docValue.(string)
		if !exists || !ok {
			return false
		}
		pattern, ok := operand.(string)
		if !ok {
			return false
		}
		re, err := compileRegex(pattern)
		if err != nil {
			return false
		}
		return re.MatchString(s)
	case "$exists":
		want, ok := operand.(bool)
		if !ok {
			want = true
		}
		return exists == want
	case "$between":
		if !exists {
			return false
		}
		bounds, ok := operand.([]interface{})
		if !ok || len(bounds) != 2 {
			return false
		}
		return Compare(docValue, bounds[0]) >= 0 && Compare(docValue, bounds[1]) <= 0
	default:
		return false
	}
}
