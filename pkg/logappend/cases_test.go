package logappend

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/pingcap/tichecker/pkg/versionorder"
)

func TestWriteIndexDuplicateWriter(t *testing.T) {
	history := mustParse(t, `{:index 0 :process 1 :type :ok :value [[:append x 1]]}
{:index 1 :process 2 :type :ok :value [[:append x 1]]}`)

	_, err := writeIndex(history)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate writer")
}

func TestWriteIndexSkipsFailed(t *testing.T) {
	history := mustParse(t, `{:index 0 :process 1 :type :fail :value [[:append x 1]]}
{:index 1 :process 2 :type :info :value [[:append x 2]]}`)

	wi, err := writeIndex(history)
	assert.NoError(t, err)
	assert.NotContains(t, wi["x"], 1)
	assert.Contains(t, wi["x"], 2)
}

func TestFinalRead(t *testing.T) {
	history := mustParse(t, `{:index 0 :process 1 :type :ok :value [[:r x [[0 1] [1 2]]] [:r x [[0 1]]]]}
{:index 1 :process 2 :type :ok :value [[:r x []]]}
{:index 2 :process 3 :type :ok :value [[:append x 3]]}`)

	order := &versionorder.KeyOrder{
		Key:     "x",
		ByIndex: []int{1, 2},
		ByValue: map[int]int{1: 0, 2: 1},
	}

	// the final version is the max over every read of the op
	v, empty, ok := finalRead(history[0], "x", order)
	assert.True(t, ok)
	assert.False(t, empty)
	assert.Equal(t, 2, v)

	// an empty poll is a read before the first version
	_, empty, ok = finalRead(history[1], "x", order)
	assert.True(t, ok)
	assert.True(t, empty)

	// no read of the key at all
	_, _, ok = finalRead(history[2], "x", order)
	assert.False(t, ok)
}

func TestG1bSelfReadAllowed(t *testing.T) {
	history := mustParse(t, `{:index 0 :process 1 :type :ok :value [[:append x 1] [:append x 2] [:r x [[0 1] [1 2]]]]}`)
	assert.Empty(t, g1bCases(history))
}

func TestInternalFullPrefix(t *testing.T) {
	// a read pins the prefix; a later read in the same op contradicts it
	history := mustParse(t, `{:index 0 :process 1 :type :ok :value [[:r x [[0 1] [1 2]]] [:r x [[0 5] [1 2]]]]}`)

	cases := internalCases(history)
	assert.Len(t, cases, 1)
	c := cases[0].(InternalCase)
	assert.Equal(t, []int{1, 2}, c.Expected)
	assert.Equal(t, []int{5, 2}, c.Actual)
}

func TestInternalConsistentOp(t *testing.T) {
	history := mustParse(t, `{:index 0 :process 1 :type :ok :value [[:r x [[0 1]]] [:append x 2] [:r x [[0 1] [1 2]]]]}`)
	assert.Empty(t, internalCases(history))
}

func TestInternalShrunkRead(t *testing.T) {
	history := mustParse(t, `{:index 0 :process 1 :type :ok :value [[:r x [[0 1] [1 2]]] [:r x [[0 1]]]]}`)

	cases := internalCases(history)
	assert.Len(t, cases, 1)
	c := cases[0].(InternalCase)
	assert.Equal(t, []int{1, 2}, c.Expected)
	assert.Equal(t, []int{1}, c.Actual)
}

func TestNonMonotonicAcrossReads(t *testing.T) {
	// two polls of the same key within one op go backwards
	history := mustParse(t, `{:index 0 :process 1 :type :ok :value [[:r x [[0 1] [1 2]]] [:r x [[0 1]]]]}`)

	cases := nonMonotonicReadCases(history)
	assert.Len(t, cases, 1)
	c := cases[0].(NonMonotonicReadCase)
	assert.Equal(t, 1, c.PrevOffset)
	assert.Equal(t, 0, c.Offset)
	assert.Equal(t, 1, c.MopIndex)
}

func TestNonMonotonicSkipsUnknownOffsets(t *testing.T) {
	history := mustParse(t, `{:index 0 :process 1 :type :ok :value [[:r x [[0 1] [_ 5] [1 2]]]]}`)
	assert.Empty(t, nonMonotonicReadCases(history))
}

func TestUnseenSeries(t *testing.T) {
	history := mustParse(t, `{:index 0 :process 1 :type :ok :value [[:append x 1]]}
{:index 1 :process 2 :type :ok :value [[:append x 2] [:append y 3]]}
{:index 2 :process 3 :type :ok :value [[:r x [[0 1] [1 2]]]]}`)

	series := UnseenSeries(history)
	assert.Len(t, series, 3)

	assert.Equal(t, 1, series[0].Total)
	assert.Equal(t, 1, series[0].Unseen["x"])

	assert.Equal(t, 3, series[1].Total)
	assert.Equal(t, 2, series[1].Unseen["x"])
	assert.Equal(t, 1, series[1].Unseen["y"])

	// the read drains x, y stays unseen
	assert.Equal(t, 1, series[2].Total)
	assert.NotContains(t, series[2].Unseen, "x")
	assert.Equal(t, 1, series[2].Unseen["y"])
}
