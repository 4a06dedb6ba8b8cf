package reconcile

import (
	"slices"

	"github.com/aegisx-platform/eclaim-rep-download-sub002/internal/imports"
)

// Source names the table and columns one side of a pair reads.
type Source struct {
	Kind          string
	Table         string
	KeyColumn     string
	AmountColumn  string
	PatientColumn string
	DateColumn    string
	// Timestamp is set when DateColumn is a timestamptz rather than a date.
	Timestamp bool
}

// Pair is a configured reconciliation between two sources.
type Pair struct {
	Name      string
	A         Source
	B         Source
	Composite bool
}

var (
	claimsSource = Source{
		Kind:          imports.KindClaims,
		Table:         "claim_items",
		KeyColumn:     "tran_id",
		AmountColumn:  "compensated_amount",
		PatientColumn: "pid",
		DateColumn:    "admit_date",
		Timestamp:     true,
	}
	statementsSource = Source{
		Kind:          imports.KindStatements,
		Table:         "statement_lines",
		KeyColumn:     "tran_id",
		AmountColumn:  "paid_amount",
		PatientColumn: "pid",
		DateColumn:    "admit_date",
		Timestamp:     true,
	}
	hospitalSource = Source{
		Kind:          imports.KindHospital,
		Table:         "hospital_records",
		KeyColumn:     "vn",
		AmountColumn:  "charge_amount",
		PatientColumn: "pid",
		DateColumn:    "admit_date",
	}
)

var pairs = []Pair{
	{Name: "claims:statements", A: claimsSource, B: statementsSource},
	{Name: "claims:hospital", A: claimsSource, B: hospitalSource, Composite: true},
	{Name: "statements:hospital", A: statementsSource, B: hospitalSource, Composite: true},
}

// Pairs returns every configured pair.
func Pairs() []Pair {
	return slices.Clone(pairs)
}

// LookupPair finds a pair by name.
func LookupPair(name string) (Pair, bool) {
	i := slices.IndexFunc(pairs, func(p Pair) bool { return p.Name == name })
	if i < 0 {
		return Pair{}, false
	}
	return pairs[i], true
}

// PairsFor returns the pairs that read from kind.
func PairsFor(kind string) []Pair {
	var out []Pair
	for _, p := range pairs {
		if p.A.Kind == kind || p.B.Kind == kind {
			out = append(out, p)
		}
	}
	return out
}

// Kinds returns the import kinds the pair depends on.
func (p Pair) Kinds() []string {
	return []string{p.A.Kind, p.B.Kind}
}
