package txn

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

func TestOpMops(t *testing.T) {
	history := mustParse(t, `{:index 0 :type :ok :value [[:append x 1] [:r y nil]]}
{:index 1 :type :ok}
{:index 2 :type :ok :value [[:w k 5]]}`)

	it := OpMops(history)
	var seen []string
	for it.HasNext() {
		op, mop := it.Next()
		seen = append(seen, mop.String())
		assert.True(t, op.Index.Present())
	}
	assert.Equal(t, []string{"[:append x 1]", "[:r y nil]", "[:w k 5]"}, seen)
}

func TestIntermediateWrites(t *testing.T) {
	history := mustParse(t, `{:index 0 :type :ok :value [[:append x 1] [:append x 2] [:append y 3]]}
{:index 1 :type :ok :value [[:w x 4]]}`)

	im := IntermediateWrites(history)
	assert.Len(t, im["x"], 1)
	op, ok := im["x"][core.MopValueType(1)]
	assert.True(t, ok)
	assert.Equal(t, 0, op.Index.MustGet())
	assert.NotContains(t, im, "y")
}

func TestFailedWrites(t *testing.T) {
	history := mustParse(t, `{:index 0 :type :fail :value [[:append x 1] [:r y nil]]}
{:index 1 :type :ok :value [[:append x 2]]}
{:index 2 :type :info :value [[:append x 3]]}`)

	failed := FailedWrites(history)
	assert.Len(t, failed["x"], 1)
	op, ok := failed["x"][core.MopValueType(1)]
	assert.True(t, ok)
	assert.Equal(t, 0, op.Index.MustGet())
	assert.NotContains(t, failed, "y")
}

type fakeAnomaly string

func (fakeAnomaly) IAnomaly() {}

func (a fakeAnomaly) String() string { return string(a) }

func anomaliesOf(types ...string) core.Anomalies {
	anomalies := make(core.Anomalies)
	for _, typ := range types {
		anomalies[typ] = []core.Anomaly{fakeAnomaly(typ)}
	}
	return anomalies
}

func TestResultMapValidOnClean(t *testing.T) {
	res := ResultMap(Opts{}, make(core.Anomalies))
	assert.True(t, res.Valid)
	assert.False(t, res.IsUnknown)
	assert.Empty(t, res.AnomalyTypes)
}

func TestResultMapDefaultsToStrictSerializable(t *testing.T) {
	res := ResultMap(Opts{}, anomaliesOf("G0"))
	assert.False(t, res.Valid)
	assert.Equal(t, []string{"G0"}, res.DisallowedAnomalyTypes)
	assert.Contains(t, res.Not, "read-uncommitted")
}

func TestResultMapWeakModelTolerates(t *testing.T) {
	res := ResultMap(Opts{ConsistencyModels: []core.ConsistencyModelName{"read-uncommitted"}},
		anomaliesOf("G2-item"))
	// read-uncommitted does not proscribe G2-item, but the finding is
	// still reported
	assert.True(t, res.Valid)
	assert.Equal(t, []string{"G2-item"}, res.AnomalyTypes)
	assert.Empty(t, res.DisallowedAnomalyTypes)
}

func TestResultMapAllowList(t *testing.T) {
	anomalies := anomaliesOf("G0", "G1a")

	strict := ResultMap(Opts{}, anomalies)
	assert.False(t, strict.Valid)
	assert.Equal(t, []string{"G0", "G1a"}, strict.DisallowedAnomalyTypes)

	partial := ResultMap(Opts{AllowedAnomalies: []string{"G0"}}, anomalies)
	assert.False(t, partial.Valid)
	assert.Equal(t, []string{"G1a"}, partial.DisallowedAnomalyTypes)
	// reported types do not shrink with the allow list
	assert.Equal(t, strict.AnomalyTypes, partial.AnomalyTypes)

	// nothing outside the allow list found, so the history is valid
	full := ResultMap(Opts{AllowedAnomalies: []string{"G0", "G1a"}}, anomalies)
	assert.True(t, full.Valid)
	assert.False(t, full.IsUnknown)
	assert.Empty(t, full.DisallowedAnomalyTypes)
	assert.Equal(t, strict.AnomalyTypes, full.AnomalyTypes)
}

func TestResultMapAllowListCertifiesValid(t *testing.T) {
	res := ResultMap(Opts{AllowedAnomalies: []string{"G0"}}, anomaliesOf("G0"))
	assert.True(t, res.Valid)
	assert.Equal(t, []string{"G0"}, res.AnomalyTypes)
}

func TestResultMapUnknownOnSignalOnly(t *testing.T) {
	res := ResultMap(Opts{}, anomaliesOf("empty-dependency-graph"))
	assert.False(t, res.Valid)
	assert.True(t, res.IsUnknown)
	assert.Empty(t, res.DisallowedAnomalyTypes)
	assert.Equal(t, []string{"empty-dependency-graph"}, res.AnomalyTypes)
}

func TestResultMapAllowedSignal(t *testing.T) {
	unknown := ResultMap(Opts{}, anomaliesOf("unseen"))
	assert.False(t, unknown.Valid)
	assert.True(t, unknown.IsUnknown)

	res := ResultMap(Opts{AllowedAnomalies: []string{"unseen"}}, anomaliesOf("unseen"))
	assert.True(t, res.Valid)
	assert.False(t, res.IsUnknown)
}

func TestResultMapExtraAnomalies(t *testing.T) {
	// under a weak model an explicitly requested anomaly still invalidates
	res := ResultMap(Opts{
		ConsistencyModels: []core.ConsistencyModelName{"read-uncommitted"},
		Anomalies:         []string{"G2-item"},
	}, anomaliesOf("G2-item"))
	assert.False(t, res.Valid)
	assert.Equal(t, []string{"G2-item"}, res.DisallowedAnomalyTypes)
}

func TestFilteredGraphsMemo(t *testing.T) {
	g := core.NewDirectedGraph()
	g.Link(core.Vertex{Value: 1}, core.Vertex{Value: 2}, core.WW)
	g.Link(core.Vertex{Value: 2}, core.Vertex{Value: 3}, core.WR)

	filter := FilteredGraphs(g)
	ww := filter([]core.Rel{core.WW})
	assert.Equal(t, 1, ww.EdgeCount())

	// same rel set hits the memo
	again := filter([]core.Rel{core.WW})
	assert.True(t, ww == again)

	both := filter([]core.Rel{core.WR, core.WW})
	assert.Equal(t, 2, both.EdgeCount())
}
