// Package jsonsearch walks decoded JSON trees of unknown shape.
//
// Documents are decoded into the generic encoding/json representation:
// map[string]any for objects, []any for arrays, and float64, string, bool or
// nil for scalars. Object keys are visited in sorted order so that every walk
// over the same document yields the same sequence of nodes.
package jsonsearch

import (
	"bytes"
	"encoding/json"
	"sort"

	"github.com/pkg/errors"
)

// Decode parses a single JSON document
func Decode(data []byte) (any, error) {
	var v any
	dec := json.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&v); err != nil {
		return nil, errors.Wrap(err, "decode json")
	}
	if dec.More() {
		return nil, errors.New("decode json: trailing data after document")
	}
	return v, nil
}

// FindObjectsWithKey returns every object in v that has key, depth first.
// An object is reported before any matching descendants. The returned maps
// alias the tree; they are not copies.
func FindObjectsWithKey(v any, key string) []map[string]any {
	var out []map[string]any
	walk(v, key, &out)
	return out
}

func walk(v any, key string, out *[]map[string]any) {
	switch node := v.(type) {
	case map[string]any:
		if _, ok := node[key]; ok {
			*out = append(*out, node)
		}
		for _, k := range sortedKeys(node) {
			walk(node[k], key, out)
		}
	case []any:
		for _, child := range node {
			walk(child, key, out)
		}
	}
}

// FindValues returns the value of every occurrence of key, in the order
// FindObjectsWithKey visits the enclosing objects.
func FindValues(v any, key string) []any {
	objs := FindObjectsWithKey(v, key)
	vals := make([]any, 0, len(objs))
	for _, o := range objs {
		vals = append(vals, o[key])
	}
	return vals
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Get returns the member key of v when v is an object
func Get(v any, key string) (any, bool) {
	m, ok := v.(map[string]any)
	if !ok {
		return nil, false
	}
	child, ok := m[key]
	return child, ok
}

// Index returns element i of v when v is an array
func Index(v any, i int) (any, bool) {
	arr, ok := v.([]any)
	if !ok || i < 0 || i >= len(arr) {
		return nil, false
	}
	return arr[i], true
}

// Number reports v as a float64 when it is a JSON number
func Number(v any) (float64, bool) {
	f, ok := v.(float64)
	return f, ok
}

// String reports v as a string when it is a JSON string
func String(v any) (string, bool) {
	s, ok := v.(string)
	return s, ok
}
