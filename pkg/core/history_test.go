package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseOp(t *testing.T) {
	op, err := ParseOp(`{:index 3 :process 1 :type :ok :value [[:append x 1] [:r y [[0 1] [1 2]]]]}`)
	assert.NoError(t, err)
	assert.Equal(t, 3, op.Index.MustGet())
	assert.Equal(t, 1, op.Process.MustGet())
	assert.Equal(t, OpTypeOk, op.Type)
	assert.Equal(t, 2, op.ValueLength())

	mops := *op.Value
	assert.Equal(t, Append{Key: "x", Value: 1, Offset: UnknownOffset}, mops[0])
	assert.Equal(t, Read{Key: "y", Pairs: []OffsetValue{{Offset: 0, Value: 1}, {Offset: 1, Value: 2}}}, mops[1])
}

func TestParseOpAcknowledgedAppend(t *testing.T) {
	op, err := ParseOp(`{:index 0 :type :ok :value [[:append x [5 7]]]}`)
	assert.NoError(t, err)
	assert.Equal(t, Append{Key: "x", Offset: 5, Value: 7}, (*op.Value)[0])
}

func TestParseOpUnknownOffsetPair(t *testing.T) {
	op, err := ParseOp(`{:index 0 :type :info :value [[:r x [[_ 3]]]]}`)
	assert.NoError(t, err)
	read := (*op.Value)[0].(Read)
	assert.Equal(t, []OffsetValue{{Offset: UnknownOffset, Value: 3}}, read.Pairs)
}

func TestParseOpNilRead(t *testing.T) {
	op, err := ParseOp(`{:index 0 :process 2 :type :invoke :value [[:r x nil] [:w k 5]]}`)
	assert.NoError(t, err)
	mops := *op.Value
	assert.Equal(t, Read{Key: "x"}, mops[0])
	assert.Equal(t, Write{Key: "k", Value: 5}, mops[1])
}

func TestParseOpEmptyRead(t *testing.T) {
	op, err := ParseOp(`{:index 0 :type :ok :value [[:r x []]]}`)
	assert.NoError(t, err)
	read := (*op.Value)[0].(Read)
	assert.NotNil(t, read.Pairs)
	assert.Len(t, read.Pairs, 0)
}

func TestParseOpErrors(t *testing.T) {
	for _, invalid := range []string{
		`:index 0 :type :ok`,
		`{:index 0}`,
		`{:index 0 :type :bogus}`,
		`{:index 0 :type :ok :value [[:cas x 1]]}`,
		`{:index 0 :type :ok :value [[:r x [[0 1]]}`,
	} {
		_, err := ParseOp(invalid)
		assert.Error(t, err, "expected %q to fail", invalid)
	}
}

func TestOpStringRoundTrip(t *testing.T) {
	lines := []string{
		`{:index 0 :process 1 :type :invoke :value [[:append x 1] [:r y nil]]}`,
		`{:index 1 :process 1 :type :ok :value [[:append x [0 1]] [:r y [[0 2] [_ 3]]]]}`,
		`{:index 2 :process 2 :type :fail :value [[:w k 9]]}`,
	}
	for _, line := range lines {
		op, err := ParseOp(line)
		assert.NoError(t, err)
		assert.Equal(t, line, op.String())
	}
}

func TestOpCopy(t *testing.T) {
	op, err := ParseOp(`{:index 3 :process 1 :type :ok :value [[:append x 1] [:r y [[0 1]]]]}`)
	assert.NoError(t, err)

	cp := op.Copy()
	assert.Equal(t, 3, cp.Index.MustGet())
	assert.Equal(t, 1, cp.Process.MustGet())
	assert.Equal(t, op.String(), cp.String())
	assert.True(t, op.Value != cp.Value)

	(*cp.Value)[0] = Append{Key: "x", Value: 2, Offset: 0}
	assert.Equal(t, Append{Key: "x", Value: 1, Offset: UnknownOffset}, (*op.Value)[0])
}

func TestOpCopyNilValue(t *testing.T) {
	op := Op{Index: NewOptInt(0), Type: OpTypeNemesis}
	cp := op.Copy()
	assert.Nil(t, cp.Value)
	assert.Equal(t, 0, cp.Index.MustGet())
}

func TestParseHistory(t *testing.T) {
	history, err := ParseHistory(`{:index 0 :process 1 :type :invoke :value [[:append x 1]]}
{:index 1 :process 1 :type :ok :value [[:append x [0 1]]]}
{:index 2 :process 2 :type :nemesis}`)
	assert.NoError(t, err)
	assert.Len(t, history, 3)
	assert.Equal(t, OpTypeNemesis, history[2].Type)
	assert.Nil(t, history[2].Value)
}

func TestPairIndex(t *testing.T) {
	history, err := ParseHistory(`{:index 0 :process 1 :type :invoke}
{:index 1 :process 2 :type :invoke}
{:index 2 :process 2 :type :ok}
{:index 3 :process 1 :type :fail}
{:index 4 :process 3 :type :invoke}`)
	assert.NoError(t, err)

	pairs := history.PairIndex()
	assert.Equal(t, []int{3, 2, 1, 0, -1}, pairs)
}

func TestAttachIndexIfNoExists(t *testing.T) {
	history, err := ParseHistory(`{:process 1 :type :invoke}
{:process 1 :type :ok}`)
	assert.NoError(t, err)
	assert.False(t, history[0].Index.Present())

	history.AttachIndexIfNoExists()
	assert.Equal(t, 0, history[0].Index.MustGet())
	assert.Equal(t, 1, history[1].Index.MustGet())

	// already indexed histories are left alone
	indexed, err := ParseHistory(`{:index 7 :process 1 :type :ok}`)
	assert.NoError(t, err)
	indexed.AttachIndexIfNoExists()
	assert.Equal(t, 7, indexed[0].Index.MustGet())
}

func TestFilterHelpers(t *testing.T) {
	history, err := ParseHistory(`{:index 0 :process 1 :type :invoke :value [[:append x 1]]}
{:index 1 :process 1 :type :ok :value [[:append x [0 1]]]}
{:index 2 :process 2 :type :fail :value [[:append y 2]]}
{:index 3 :process 3 :type :nemesis}`)
	assert.NoError(t, err)

	assert.Len(t, FilterOkHistory(history), 1)
	assert.Len(t, FilterOutNemesisHistory(history), 3)
	assert.Len(t, history.FilterType(OpTypeFail), 1)
	assert.Len(t, history.FilterProcess(1), 2)
	assert.ElementsMatch(t, []string{"x", "x", "y"}, history.GetKeys(MopTypeAppend))
}
