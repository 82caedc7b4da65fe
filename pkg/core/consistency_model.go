package core

// impliedAnomalies: an edge a -> b means "observing a implies observing b".
var impliedAnomalies = MapToDirectedGraph(map[Vertex][]Vertex{
	{"G0"}:                     {{"G1c"}},
	{"G0-process"}:             {{"G1c-process"}, {"G0-realtime"}},
	{"G0-realtime"}:            {{"G1c-realtime"}},
	{"G1a"}:                    {{"G1"}},
	{"G1b"}:                    {{"G1"}},
	{"G1c"}:                    {{"G1"}},
	{"G1c-process"}:            {{"G1-process"}, {"G1c-realtime"}},
	{"G-single"}:               {{"G-nonadjacent"}, {"GSIb"}},
	{"G-single-process"}:       {{"G-nonadjacent-process"}, {"G-single-realtime"}},
	{"G-single-realtime"}:      {{"G-nonadjacent-realtime"}},
	{"G-nonadjacent"}:          {{"G2"}},
	{"G-nonadjacent-process"}:  {{"G2-process"}, {"G-nonadjacent-realtime"}},
	{"G-nonadjacent-realtime"}: {{"G2-realtime"}},
	{"G2-item"}:                {{"G2"}},
	{"G2-item-process"}:        {{"G2-process"}, {"G2-item-realtime"}},
	{"G2-item-realtime"}:       {{"G2-realtime"}},
	{"G2-process"}:             {{"G2-realtime"}},
	{"GSIa"}:                   {{"GSI"}},
	{"GSIb"}:                   {{"GSI"}},
	{"incompatible-order"}:     {{"G1a"}},
	{"dirty-update"}:           {{"G1a"}},
	{"duplicate"}:              {{"incompatible-order"}},
	{"lost-write"}:             {{"incompatible-order"}},
	{"divergence"}:             {{"incompatible-order"}},
	{"non-monotonic-read"}:     {{"incompatible-order"}},
})

// ConsistencyModelName defines the consistency model name.
type ConsistencyModelName = string

var canonicalModelNames = map[ConsistencyModelName]string{
	"consistent-view":         "PL-2+",
	"conflict-serializable":   "PL-3",
	"cursor-stability":        "PL-CS",
	"forward-consistent-view": "PL-FCV",
	"monotonic-snapshot-read": "PL-MSR",
	"monotonic-view":          "PL-2L",
	"read-committed":          "PL-2",
	"read-uncommitted":        "PL-1",
	"repeatable-read":         "PL-2.99",
	"serializable":            "PL-3",
	"snapshot-isolation":      "PL-SI",
	"strict-serializable":     "PL-SS",
	"update-serializable":     "PL-3U",
}

// AllAnomaliesImplying yields the set of anomalies which would imply any of
// the given anomalies.
func AllAnomaliesImplying(anomalies []string) []string {
	var initV []Vertex
	for _, anomaly := range anomalies {
		initV = append(initV, Vertex{Value: anomaly})
	}
	return set(stringSlice(impliedAnomalies.Bfs(initV, false)))
}

// AllImpliedAnomalies yields the set of anomalies implied by the given ones.
func AllImpliedAnomalies(anomalies []string) []string {
	var initV []Vertex
	for _, anomaly := range anomalies {
		initV = append(initV, Vertex{Value: anomaly})
	}
	return set(stringSlice(impliedAnomalies.Bfs(initV, true)))
}

func canonicalModelName(name interface{}) interface{} {
	if cname, ok := canonicalModelNames[name.(string)]; ok {
		return cname
	}
	return name
}

func friendlyModelName(name interface{}) interface{} {
	if name == "PL-3" {
		return "serializable"
	}
	for friendly, canonical := range canonicalModelNames {
		if canonical == name {
			return friendly
		}
	}
	return name
}

// Models: an edge a -> b means "a implies b". See https://jepsen.io/consistency.
var Models = MapToDirectedGraph(map[Vertex][]Vertex{
	{"causal-cerone"}:                     {{"read-atomic"}},
	{"consistent-view"}:                   {{"cursor-stability"}, {"monotonic-view"}},
	{"conflict-serializable"}:             {{"view-serializable"}},
	{"cursor-stability"}:                  {{"read-committed"}, {"PL-2"}},
	{"forward-consistent-view"}:           {{"consistent-view"}, {"PL-1"}},
	{"PL-3"}:                              {{"repeatable-read"}, {"update-serializable"}},
	{"update-serializable"}:               {{"forward-consistent-view"}},
	{"monotonic-atomic-view"}:             {{"read-committed"}},
	{"monotonic-view"}:                    {{"PL-2"}},
	{"monotonic-snapshot-read"}:           {{"PL-2"}},
	{"parallel-snapshot-isolation"}:       {{"causal-cerone"}},
	{"prefix"}:                            {{"causal-cerone"}},
	{"read-committed"}:                    {{"read-uncommitted"}},
	{"repeatable-read"}:                   {{"cursor-stability"}, {"monotonic-atomic-view"}},
	{"serializable"}:                      {{"repeatable-read"}, {"snapshot-isolation"}, {"view-serializable"}},
	{"session-serializable"}:              {{"1SR"}},
	{"snapshot-isolation"}:                {{"forward-consistent-view"}, {"monotonic-atomic-view"}, {"monotonic-snapshot-read"}, {"parallel-snapshot-isolation"}, {"prefix"}},
	{"strict-serializable"}:               {{"PL-3"}, {"serializable"}, {"linearizable"}, {"snapshot-isolation"}, {"strong-session-serializable"}},
	{"strong-serializable"}:               {{"session-serializable"}},
	{"strong-session-serializable"}:       {{"serializable"}},
	{"strong-session-snapshot-isolation"}: {{"snapshot-isolation"}},
	{"strong-snapshot-isolation"}:         {{"strong-session-snapshot-isolation"}},
	{"linearizable"}:                      {{"sequential"}},
	{"causal"}:                            {{"writes-follow-reads"}, {"PRAM"}},
	{"PRAM"}:                              {{"monotonic-reads"}, {"monotonic-writes"}, {"read-your-writes"}},
}).MapVertices(canonicalModelName)

// allImpliedModels expands models to every model implied by any of them.
func allImpliedModels(models []string) []string {
	var initV []Vertex
	for _, model := range models {
		initV = append(initV, Vertex{Value: model})
	}
	return set(stringSlice(Models.Bfs(initV, true)))
}

// allImpossibleModels expands the set of impossible models to every model
// which is thereby also impossible.
func allImpossibleModels(models []string) []string {
	var initV []Vertex
	for _, model := range models {
		initV = append(initV, Vertex{Value: model})
	}
	return set(stringSlice(Models.Bfs(initV, false)))
}

func mostModel(ms []string, isOut bool) []string {
	var cnames []string
	for _, model := range ms {
		cnames = append(cnames, canonicalModelName(model).(string))
	}
	cnames = set(cnames)
	res := cnames[:]
	for _, model := range cnames {
		if hasCommon(remove(res, model), stringSlice(Models.Bfs([]Vertex{{model}}, isOut))) {
			res = remove(res, model)
		}
	}
	return res
}

func strongestModels(ms []string) []string {
	return mostModel(ms, false)
}

func weakestModels(ms []string) []string {
	return mostModel(ms, true)
}

// directProscribedAnomalies: an edge model -> anomaly means "the model
// forbids the anomaly directly".
var directProscribedAnomalies = MapToDirectedGraph(map[Vertex][]Vertex{
	{"causal-cerone"}:                     {{"internal"}, {"G1a"}},
	{"cursor-stability"}:                  {{"G1"}, {"G-cursor"}},
	{"monotonic-view"}:                    {{"G1"}, {"G-monotonic"}},
	{"monotonic-snapshot-read"}:           {{"G1"}, {"G-MSR"}},
	{"consistent-view"}:                   {{"G1"}, {"G-single"}},
	{"forward-consistent-view"}:           {{"G1"}, {"G-SIb"}},
	{"parallel-snapshot-isolation"}:       {{"internal"}, {"G1a"}},
	{"PL-3"}:                              {{"G1"}, {"G2"}},
	{"PL-2"}:                              {{"G1"}},
	{"PL-1"}:                              {{"G0"}, {"duplicate-elements"}, {"cyclic-versions"}},
	{"prefix"}:                            {{"internal"}, {"G1a"}},
	{"serializable"}:                      {{"internal"}},
	{"snapshot-isolation"}:                {{"internal"}, {"G1"}, {"G-SI"}},
	{"read-atomic"}:                       {{"internal"}, {"G1a"}},
	{"repeatable-read"}:                   {{"G1"}, {"G2-item"}},
	{"strict-serializable"}:               {{"G1"}, {"G1c-realtime"}, {"G2-realtime"}},
	{"strong-session-snapshot-isolation"}: {{"G-nonadjacent"}},
	{"strong-session-serializable"}:       {{"G1c-process"}, {"G2-process"}},
	{"update-serializable"}:               {{"G1"}, {"G-update"}},
}).MapVertices(canonicalModelName)

// AnomaliesProhibitedBy takes consistency models and returns the set of
// anomalies which cannot be present if all of those models hold.
func AnomaliesProhibitedBy(models []string) []string {
	var cnames []string
	for _, model := range models {
		cnames = append(cnames, canonicalModelName(model).(string))
	}
	cnames = allImpliedModels(cnames)

	var anomalies []string
	for _, model := range cnames {
		anomalies = append(anomalies, stringSlice(directProscribedAnomalies.Out(Vertex{model}))...)
	}
	return AllAnomaliesImplying(anomalies)
}

// anomaliesImpossibleModels returns the models which cannot hold given the
// anomalies present.
func anomaliesImpossibleModels(anomalies []string) []string {
	implied := AllImpliedAnomalies(anomalies)
	var proscribers []string
	for _, anomaly := range implied {
		proscribers = append(proscribers, stringSlice(directProscribedAnomalies.In(Vertex{anomaly}))...)
	}
	return allImpossibleModels(proscribers)
}

// FriendlyBoundary takes anomalies and yields not, the weakest set of
// consistency models they invalidate, and alsoNot, the remaining stronger
// models.
func FriendlyBoundary(anomalies []string) (not []string, alsoNot []string) {
	impossible := anomaliesImpossibleModels(anomalies)
	not = weakestModels(impossible)
	alsoNot = set(impossible)
	for _, n := range not {
		alsoNot = remove(alsoNot, n)
	}
	friendly := func(s string) string { return friendlyModelName(s).(string) }
	return set(mapFunc(not, friendly)), set(mapFunc(alsoNot, friendly))
}

// remove returns a new slice without the given element.
func remove(models []string, model string) []string {
	var res []string
	for _, m := range models {
		if m != model {
			res = append(res, m)
		}
	}
	return res
}

func exists(target string, set []string) bool {
	for _, s := range set {
		if s == target {
			return true
		}
	}
	return false
}

func hasCommon(s1, s2 []string) bool {
	for _, s := range s1 {
		if exists(s, s2) {
			return true
		}
	}
	return false
}

func set(slice []string) []string {
	res := make([]string, 0, len(slice))
	for _, s := range slice {
		if !exists(s, res) {
			res = append(res, s)
		}
	}
	return res
}

// Set exports set.
func Set(slice []string) []string {
	return set(slice)
}

func stringSlice(vs []Vertex) (res []string) {
	for _, v := range vs {
		res = append(res, v.Value.(string))
	}
	return res
}

func mapFunc(slice []string, f func(string) string) []string {
	var res []string
	for _, s := range slice {
		res = append(res, f(s))
	}
	return res
}
