package grid

import (
	"encoding/json"
	"fmt"
)

// Attribute is one passthrough key/value pair.
type Attribute struct {
	Key   string
	Value interface{}
}

// Attributes is an ordered attribute bag carried through the pipeline.
// Order is the order of first insertion.
type Attributes []Attribute

// MergeRule decides how a key present on both sides of a merge is resolved.
type MergeRule int

const (
	// MergeFirst keeps the existing value.
	MergeFirst MergeRule = iota
	// MergeLast overwrites with the incoming value.
	MergeLast
	// MergeDrop removes the key when the two values disagree.
	MergeDrop
)

var mergeRuleNames = map[MergeRule]string{
	MergeFirst: "first",
	MergeLast:  "last",
	MergeDrop:  "drop",
}

func (r MergeRule) String() string {
	if name, ok := mergeRuleNames[r]; ok {
		return name
	}
	return fmt.Sprintf("MergeRule(%d)", int(r))
}

// ParseMergeRule maps a config name (first, last, drop) to its rule.
func ParseMergeRule(name string) (MergeRule, error) {
	for r, n := range mergeRuleNames {
		if n == name {
			return r, nil
		}
	}
	return MergeFirst, fmt.Errorf("unknown merge rule %q", name)
}

// Get returns the value for key.
func (a Attributes) Get(key string) (interface{}, bool) {
	for _, kv := range a {
		if kv.Key == key {
			return kv.Value, true
		}
	}
	return nil, false
}

// Set returns the bag with key set to value, keeping its position if present.
func (a Attributes) Set(key string, value interface{}) Attributes {
	for i := range a {
		if a[i].Key == key {
			a[i].Value = value
			return a
		}
	}
	return append(a, Attribute{Key: key, Value: value})
}

// Delete returns the bag without key.
func (a Attributes) Delete(key string) Attributes {
	for i := range a {
		if a[i].Key == key {
			return append(a[:i:i], a[i+1:]...)
		}
	}
	return a
}

// Clone returns an independent copy. Values are copied shallowly.
func (a Attributes) Clone() Attributes {
	if a == nil {
		return nil
	}
	out := make(Attributes, len(a))
	copy(out, a)
	return out
}

// Merge folds other into a copy of a using rule for conflicting keys.
// Keys only present in other are appended in other's order.
func (a Attributes) Merge(other Attributes, rule MergeRule) Attributes {
	return MergeAll([]Attributes{a, other}, rule)
}

// MergeAll folds bags in order. Under MergeDrop a key that two bags disagree
// on is removed and stays removed, whatever later bags hold.
func MergeAll(bags []Attributes, rule MergeRule) Attributes {
	var out Attributes
	conflicted := make(map[string]bool)
	for _, bag := range bags {
		for _, kv := range bag {
			if conflicted[kv.Key] {
				continue
			}
			existing, ok := out.Get(kv.Key)
			switch {
			case !ok:
				out = append(out, kv)
			case rule == MergeLast:
				out = out.Set(kv.Key, kv.Value)
			case rule == MergeDrop && !sameValue(existing, kv.Value):
				conflicted[kv.Key] = true
				out = out.Delete(kv.Key)
			}
		}
	}
	return out
}

// Map returns the bag as a plain map.
func (a Attributes) Map() map[string]interface{} {
	m := make(map[string]interface{}, len(a))
	for _, kv := range a {
		m[kv.Key] = kv.Value
	}
	return m
}

// MarshalJSON encodes the bag as a JSON object.
func (a Attributes) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.Map())
}

func sameValue(x, y interface{}) bool {
	bx, err1 := json.Marshal(x)
	by, err2 := json.Marshal(y)
	return err1 == nil && err2 == nil && string(bx) == string(by)
}
