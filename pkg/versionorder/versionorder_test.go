package versionorder

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/pingcap/tichecker/pkg/core"
)

func mustParse(t *testing.T, content string) core.History {
	history, err := core.ParseHistory(content)
	assert.NoError(t, err)
	return history
}

func TestBuildSimpleOrder(t *testing.T) {
	history := mustParse(t, `{:index 0 :process 1 :type :ok :value [[:append x [0 1]]]}
{:index 1 :process 2 :type :ok :value [[:append x [1 2]]]}
{:index 2 :process 1 :type :ok :value [[:r x [[0 1] [1 2] [2 3]]]]}`)

	orders := Build(history)
	ko := orders.Key("x")
	assert.NotNil(t, ko)
	assert.Equal(t, []int{1, 2, 3}, ko.ByIndex)
	assert.Empty(t, orders.Anomalies)

	i, ok := ko.IndexOf(2)
	assert.True(t, ok)
	assert.Equal(t, 1, i)

	prev, ok := ko.PrevValue(2)
	assert.True(t, ok)
	assert.Equal(t, 1, prev)

	next, ok := ko.NextValue(2)
	assert.True(t, ok)
	assert.Equal(t, 3, next)

	_, ok = ko.PrevValue(1)
	assert.False(t, ok)
	_, ok = ko.NextValue(3)
	assert.False(t, ok)
}

func TestBuildSkipsGaps(t *testing.T) {
	history := mustParse(t, `{:index 0 :process 1 :type :ok :value [[:r x [[0 1] [3 4]]]]}`)

	ko := Build(history).Key("x")
	assert.Equal(t, []int{1, 4}, ko.ByIndex)
	assert.Len(t, ko.Log, 4)
	assert.Nil(t, ko.Log[1])
	assert.Nil(t, ko.Log[2])
}

func TestBuildDivergence(t *testing.T) {
	history := mustParse(t, `{:index 0 :process 1 :type :ok :value [[:r x [[0 1] [1 2]]]]}
{:index 1 :process 2 :type :ok :value [[:r x [[0 1] [1 5] [2 3]]]]}`)

	orders := Build(history)
	ko := orders.Key("x")
	// offset 1 is contested, the dense order skips it
	assert.Equal(t, []int{1, 3}, ko.ByIndex)

	divergences := orders.Anomalies["divergence"]
	assert.Len(t, divergences, 1)
	d := divergences[0].(Divergence)
	assert.Equal(t, "x", d.Key)
	assert.Equal(t, 1, d.Offset)
	assert.Equal(t, []int{2, 5}, d.Values)
}

func TestBuildDuplicate(t *testing.T) {
	history := mustParse(t, `{:index 0 :process 1 :type :ok :value [[:r x [[0 1] [1 2] [2 1]]]]}`)

	orders := Build(history)
	duplicates := orders.Anomalies["duplicate"]
	assert.Len(t, duplicates, 1)
	d := duplicates[0].(Duplicate)
	assert.Equal(t, "x", d.Key)
	assert.Equal(t, 1, d.Value)
	assert.Equal(t, []int{0, 2}, d.Offsets)

	// the first placement wins the dense order
	assert.Equal(t, []int{1, 2}, orders.Key("x").ByIndex)
}

func TestMustCommittedOps(t *testing.T) {
	history := mustParse(t, `{:index 0 :process 1 :type :ok :value [[:append x [0 1]]]}
{:index 1 :process 2 :type :info :value [[:append x 2]]}
{:index 2 :process 3 :type :info :value [[:append x 3]]}
{:index 3 :process 1 :type :ok :value [[:r x [[0 1] [1 2]]]]}
{:index 4 :process 4 :type :fail :value [[:append x 9]]}`)

	committed := MustCommittedOps(history)
	assert.Contains(t, committed, 0)
	// the info append of 2 was read back, the info append of 3 was not
	assert.Contains(t, committed, 1)
	assert.NotContains(t, committed, 2)
	assert.Contains(t, committed, 3)
	assert.NotContains(t, committed, 4)
}

func TestBuildIgnoresUncommittedWrites(t *testing.T) {
	history := mustParse(t, `{:index 0 :process 1 :type :ok :value [[:append x [0 1]]]}
{:index 1 :process 2 :type :fail :value [[:append x [1 9]]]}
{:index 2 :process 3 :type :info :value [[:append x [1 8]]]}`)

	ko := Build(history).Key("x")
	assert.Equal(t, []int{1}, ko.ByIndex)
}

func TestBuildUnplacedValues(t *testing.T) {
	history := mustParse(t, `{:index 0 :process 1 :type :ok :value [[:append x [0 1]]]}
{:index 1 :process 2 :type :ok :value [[:append x 2]]}`)

	ko := Build(history).Key("x")
	assert.Equal(t, []int{1}, ko.ByIndex)
	assert.Equal(t, []int{2}, ko.Unplaced)
}

func TestBuildInfoReadsDoNotPlace(t *testing.T) {
	history := mustParse(t, `{:index 0 :process 1 :type :ok :value [[:append x [0 1]]]}
{:index 1 :process 2 :type :info :value [[:append x 2] [:r x [[5 9]]]]}
{:index 2 :process 3 :type :ok :value [[:r x [[0 1] [1 2]]]]}`)

	// op 1 counts as committed because the ok read observed its append of 2,
	// but its own read of offset 5 never places a cell.
	ko := Build(history).Key("x")
	assert.Equal(t, []int{1, 2}, ko.ByIndex)
	assert.Len(t, ko.Log, 2)
	assert.Empty(t, ko.Unplaced)
}

func TestBuildShardedMatchesBuild(t *testing.T) {
	history := mustParse(t, `{:index 0 :process 1 :type :ok :value [[:append x [0 1]]]}
{:index 1 :process 2 :type :ok :value [[:append x [1 2]]]}
{:index 2 :process 3 :type :ok :value [[:append y [0 10]]]}
{:index 3 :process 1 :type :ok :value [[:r x [[0 1] [1 2] [2 3]]]]}
{:index 4 :process 2 :type :ok :value [[:append y [1 11]] [:append x 4]]}
{:index 5 :process 3 :type :ok :value [[:r y [[0 10] [1 11]]]]}`)

	whole := Build(history)
	for _, n := range []int{2, 3, 7} {
		sharded := BuildSharded(history, n)
		assert.Equal(t, len(whole.Keys), len(sharded.Keys))
		for key, ko := range whole.Keys {
			sk := sharded.Key(key)
			assert.NotNil(t, sk, "key %s missing from sharded build", key)
			assert.Equal(t, ko.ByIndex, sk.ByIndex, "key %s", key)
			assert.Equal(t, ko.Unplaced, sk.Unplaced, "key %s", key)
		}
		assert.Equal(t, whole.Anomalies.Keys(), sharded.Anomalies.Keys())
	}
}

func TestMergeAssociative(t *testing.T) {
	history := mustParse(t, `{:index 0 :process 1 :type :ok :value [[:r x [[0 1] [1 2]]]]}
{:index 1 :process 2 :type :ok :value [[:r x [[1 5]]]]}
{:index 2 :process 3 :type :ok :value [[:r x [[2 3]]]]}`)

	committed := MustCommittedOps(history)
	a := BuildShard(history, 0, 1, committed)
	b := BuildShard(history, 1, 2, committed)
	c := BuildShard(history, 2, 3, committed)

	left := Compress(Merge(Merge(a, b), c))
	right := Compress(Merge(a, Merge(b, c)))
	assert.Equal(t, left.Key("x").ByIndex, right.Key("x").ByIndex)
	assert.Equal(t, left.Key("x").Log, right.Key("x").Log)
	assert.Equal(t, left.Anomalies.Keys(), right.Anomalies.Keys())
}
