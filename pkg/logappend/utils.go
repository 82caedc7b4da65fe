package logappend

import (
	"sort"

	"github.com/pingcap/tichecker/pkg/core"
	"github.com/pingcap/tichecker/pkg/versionorder"
)

func sortedOrderKeys(orders *versionorder.Orders) []string {
	keys := make([]string, 0, len(orders.Keys))
	for key := range orders.Keys {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func sortedIdxKeys(ri readIdx) []string {
	keys := make([]string, 0, len(ri))
	for key := range ri {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func sortedValueKeys(m map[int][]core.Op) []int {
	values := make([]int, 0, len(m))
	for v := range m {
		values = append(values, v)
	}
	sort.Ints(values)
	return values
}
