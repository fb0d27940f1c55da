// Package costs maps logical operation names to credit prices.
package costs

import (
	"sort"
	"strings"
)

// DefaultCost applies to operations with no table entry.
const DefaultCost = 1

// Table resolves operation names against known prefixes, most specific first.
type Table struct {
	exact    map[string]int64
	prefixes []prefixCost
}

type prefixCost struct {
	prefix string
	cost   int64
}

// New builds a table. Keys ending in "/" are prefix rules; longer prefixes
// win over shorter ones.
func New(entries map[string]int64) *Table {
	t := &Table{exact: map[string]int64{}}
	for key, cost := range entries {
		if strings.HasSuffix(key, "/") {
			t.prefixes = append(t.prefixes, prefixCost{prefix: key, cost: cost})
			continue
		}
		t.exact[key] = cost
	}
	sort.Slice(t.prefixes, func(i, j int) bool {
		return len(t.prefixes[i].prefix) > len(t.prefixes[j].prefix)
	})
	return t
}

// Default is the gateway's static cost table. Heavier fetch categories burn
// more credits; lookups stay cheap.
func Default() *Table {
	return New(map[string]int64{
		"fetch/video/":     10,
		"fetch/video/hd":   25,
		"fetch/audio/":     5,
		"fetch/image/":     3,
		"fetch/instagram/": 10,
		"lookup/":          1,
	})
}

// Resolve returns the credit cost for an operation and whether the table had
// a matching entry. Unmapped operations cost DefaultCost; callers log the gap.
func (t *Table) Resolve(operation string) (int64, bool) {
	op := strings.Trim(strings.TrimSpace(operation), "/")
	if op == "" {
		return DefaultCost, false
	}
	if cost, ok := t.exact[op]; ok {
		return cost, true
	}
	for _, rule := range t.prefixes {
		if strings.HasPrefix(op+"/", rule.prefix) {
			return rule.cost, true
		}
	}
	return DefaultCost, false
}
