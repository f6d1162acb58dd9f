// Package fieldpath addresses, copies and compares nested product records
// through dot-delimited field paths such as "regulatory.fda.clearanceNumber".
package fieldpath

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Record is the generic, JSON-shaped form of a product record.
type Record = map[string]any

// Get resolves path by sequential key access. The boolean is false when any
// segment is missing or a non-object is traversed.
func Get(rec Record, path string) (any, bool) {
	if rec == nil || path == "" {
		return nil, false
	}
	var current any = rec
	for _, key := range strings.Split(path, ".") {
		obj, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = obj[key]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

// Set returns a deep copy of rec with value stored at path. Missing or
// non-object intermediate segments are replaced by empty objects. rec is
// never mutated.
func Set(rec Record, path string, value any) Record {
	next := Clone(rec)
	if next == nil {
		next = Record{}
	}
	if path == "" {
		return next
	}
	keys := strings.Split(path, ".")
	current := next
	for _, key := range keys[:len(keys)-1] {
		child, ok := current[key].(map[string]any)
		if !ok {
			child = map[string]any{}
			current[key] = child
		}
		current = child
	}
	current[keys[len(keys)-1]] = cloneValue(value)
	return next
}

// Delete returns a deep copy of rec without the leaf at path.
func Delete(rec Record, path string) Record {
	next := Clone(rec)
	if next == nil || path == "" {
		return next
	}
	keys := strings.Split(path, ".")
	current := next
	for _, key := range keys[:len(keys)-1] {
		child, ok := current[key].(map[string]any)
		if !ok {
			return next
		}
		current = child
	}
	delete(current, keys[len(keys)-1])
	return next
}

// Clone deep-copies maps and slices; scalars are shared.
func Clone(rec Record) Record {
	if rec == nil {
		return nil
	}
	return cloneValue(rec).(map[string]any)
}

func cloneValue(value any) any {
	switch v := value.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for key, item := range v {
			out[key] = cloneValue(item)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = cloneValue(item)
		}
		return out
	case []string:
		out := make([]string, len(v))
		copy(out, v)
		return out
	default:
		return v
	}
}

// Normalize converts any JSON-encodable value into its generic form
// (map[string]any, []any, float64, string, bool, nil).
func Normalize(value any) (any, error) {
	switch value.(type) {
	case nil, string, bool, float64:
		return value, nil
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("normalize value: %w", err)
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("normalize value: %w", err)
	}
	return out, nil
}

// NormalizeRecord converts a typed value (struct, map) into a Record.
func NormalizeRecord(value any) (Record, error) {
	normalized, err := Normalize(value)
	if err != nil {
		return nil, err
	}
	if normalized == nil {
		return Record{}, nil
	}
	rec, ok := normalized.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("normalize record: expected object, got %T", normalized)
	}
	return rec, nil
}

// Equal reports structural equality using canonical JSON serialization.
// Map keys are serialized in sorted order, so key insertion order never
// matters; array order does.
func Equal(a, b any) bool {
	left, err := json.Marshal(a)
	if err != nil {
		return false
	}
	right, err := json.Marshal(b)
	if err != nil {
		return false
	}
	return bytes.Equal(left, right)
}

// Diff returns the sorted set of field paths whose resolved values differ
// between original and edited. Arrays are compared as whole values; objects
// are descended into over the union of their keys.
func Diff(original, edited Record) []string {
	if original == nil {
		original = Record{}
	}
	if edited == nil {
		edited = Record{}
	}
	changed := map[string]struct{}{}
	walk("", original, true, edited, true, changed)
	paths := make([]string, 0, len(changed))
	for path := range changed {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	return paths
}

func walk(path string, a any, aok bool, b any, bok bool, changed map[string]struct{}) {
	if aok != bok {
		mark(path, changed)
		return
	}
	if !aok {
		return
	}

	aObj, aIsObj := a.(map[string]any)
	bObj, bIsObj := b.(map[string]any)
	if aIsObj && bIsObj {
		for key := range unionKeys(aObj, bObj) {
			av, ainside := aObj[key]
			bv, binside := bObj[key]
			walk(join(path, key), av, ainside, bv, binside, changed)
		}
		return
	}
	if aIsObj != bIsObj {
		mark(path, changed)
		return
	}

	if !Equal(a, b) {
		mark(path, changed)
	}
}

func mark(path string, changed map[string]struct{}) {
	if path == "" {
		return
	}
	changed[path] = struct{}{}
}

func unionKeys(a, b map[string]any) map[string]struct{} {
	keys := make(map[string]struct{}, len(a)+len(b))
	for key := range a {
		keys[key] = struct{}{}
	}
	for key := range b {
		keys[key] = struct{}{}
	}
	return keys
}

func join(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + "." + key
}

// Contains reports whether path is in the sorted or unsorted set paths.
func Contains(paths []string, path string) bool {
	for _, item := range paths {
		if item == path {
			return true
		}
	}
	return false
}
