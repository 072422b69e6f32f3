// Package strings provides string list helpers.
package strings

import (
	"strings"
)

// DedupeAndTrim trims each value and drops empties and repeats, keeping first-seen order.
func DedupeAndTrim(values []string) []string {
	return Distinct(values, strings.TrimSpace)
}

// SplitList splits a comma separated list such as an env var value.
func SplitList(raw string) []string {
	if raw == "" {
		return nil
	}
	return DedupeAndTrim(strings.Split(raw, ","))
}

// Distinct maps each item to a key and returns the non-empty keys once each,
// in first-seen order.
func Distinct[T any](items []T, key func(T) string) []string {
	if len(items) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(items))
	out := make([]string, 0, len(items))
	for _, item := range items {
		k := key(item)
		if k == "" {
			continue
		}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	return out
}
