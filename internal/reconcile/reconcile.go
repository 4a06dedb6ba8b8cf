// Package reconcile joins imported claim, statement, and hospital records
// and classifies each key by whether both sides agree on the amount. Results
// form a recomputable cache with an explicit staleness predicate.
package reconcile

import (
	"cmp"
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Result statuses.
const (
	StatusMatched    = "matched"
	StatusAmountDiff = "amount_diff"
	StatusMissingA   = "missing_source_a"
	StatusMissingB   = "missing_source_b"
)

// Statuses lists every classification in rule order.
var Statuses = []string{StatusMissingA, StatusMissingB, StatusMatched, StatusAmountDiff}

// Entry is one side's view of a record: its key, the amount to compare, and
// the patient and admission date used by composite joins.
type Entry struct {
	Key     string
	Patient string
	Date    time.Time
	Amount  decimal.Decimal
}

// Options controls classification.
type Options struct {
	// Threshold is the largest absolute difference still counted as matched
	// (exclusive).
	Threshold decimal.Decimal
	// Composite joins on patient, admission date, and an amount within
	// Epsilon instead of the shared key.
	Composite bool
	Epsilon   decimal.Decimal
}

// Result ties an A entry and a B entry, or one of them and an absence.
type Result struct {
	MatchKey   string           `json:"match_key"`
	Status     string           `json:"status"`
	KeyA       *string          `json:"key_a,omitempty"`
	KeyB       *string          `json:"key_b,omitempty"`
	AmountA    *decimal.Decimal `json:"amount_a,omitempty"`
	AmountB    *decimal.Decimal `json:"amount_b,omitempty"`
	Delta      *decimal.Decimal `json:"delta,omitempty"`
	ComputedAt time.Time        `json:"computed_at"`
}

// Classify applies the rules in order: missing A, missing B, matched when
// |A - B| < threshold, otherwise amount_diff with delta B - A.
func Classify(a, b *Entry, threshold decimal.Decimal) (string, *decimal.Decimal) {
	switch {
	case a == nil:
		return StatusMissingA, nil
	case b == nil:
		return StatusMissingB, nil
	}

	delta := b.Amount.Sub(a.Amount)
	if delta.Abs().LessThan(threshold) {
		return StatusMatched, &delta
	}
	return StatusAmountDiff, &delta
}

// Reconcile outer-joins a and b and classifies every key. Output is sorted by
// match key and does not depend on input order. Every entry of either side
// appears in exactly one result.
func Reconcile(a, b []Entry, opts Options) []Result {
	if opts.Composite {
		return reconcileComposite(a, b, opts)
	}
	return reconcileByKey(a, b, opts)
}

func reconcileByKey(a, b []Entry, opts Options) []Result {
	byA := index(a)
	byB := index(b)

	keys := make([]string, 0, len(byA)+len(byB))
	for k := range byA {
		keys = append(keys, k)
	}
	for k := range byB {
		if _, ok := byA[k]; !ok {
			keys = append(keys, k)
		}
	}
	slices.Sort(keys)

	results := make([]Result, 0, len(keys))
	for _, k := range keys {
		ea, eb := byA[k], byB[k]
		results = append(results, newResult(k, ea, eb, opts.Threshold))
	}
	return results
}

// index keeps one entry per key. When a key repeats, the entry that sorts
// last wins so the choice is independent of input order.
func index(entries []Entry) map[string]*Entry {
	sorted := slices.Clone(entries)
	slices.SortFunc(sorted, compareEntries)

	out := make(map[string]*Entry, len(sorted))
	for i := range sorted {
		out[sorted[i].Key] = &sorted[i]
	}
	return out
}

func compareEntries(x, y Entry) int {
	return cmp.Or(
		strings.Compare(x.Key, y.Key),
		x.Amount.Cmp(y.Amount),
		strings.Compare(x.Patient, y.Patient),
		x.Date.Compare(y.Date),
	)
}

type group struct {
	a, b []Entry
}

// reconcileComposite pairs entries of the same patient and admission day.
// Within a group, A entries in (amount, key) order each take the unused B
// entry with the closest amount within epsilon. Ties go to the B entry with
// the smaller amount, then the smaller key.
func reconcileComposite(a, b []Entry, opts Options) []Result {
	groups := make(map[string]*group)
	add := func(e Entry, side func(g *group) *[]Entry) {
		k := compositeKey(e)
		g := groups[k]
		if g == nil {
			g = &group{}
			groups[k] = g
		}
		s := side(g)
		*s = append(*s, e)
	}
	for _, e := range a {
		add(e, func(g *group) *[]Entry { return &g.a })
	}
	for _, e := range b {
		add(e, func(g *group) *[]Entry { return &g.b })
	}

	var results []Result
	for k, g := range groups {
		results = append(results, pairGroup(k, g, opts)...)
	}

	slices.SortFunc(results, func(x, y Result) int {
		return strings.Compare(x.MatchKey, y.MatchKey)
	})
	return results
}

func pairGroup(gk string, g *group, opts Options) []Result {
	byAmount := func(x, y Entry) int {
		return cmp.Or(x.Amount.Cmp(y.Amount), strings.Compare(x.Key, y.Key))
	}
	slices.SortFunc(g.a, byAmount)
	slices.SortFunc(g.b, byAmount)

	used := make([]bool, len(g.b))
	var results []Result

	for i := range g.a {
		ea := &g.a[i]
		best := -1
		var bestDiff decimal.Decimal

		// Patients without an id or date never pair.
		if gk != "" {
			for j := range g.b {
				if used[j] {
					continue
				}
				diff := g.b[j].Amount.Sub(ea.Amount).Abs()
				if diff.GreaterThan(opts.Epsilon) {
					continue
				}
				if best < 0 || diff.LessThan(bestDiff) {
					best, bestDiff = j, diff
				}
			}
		}

		if best < 0 {
			results = append(results, newResult(matchKey(gk, ea.Key, ""), ea, nil, opts.Threshold))
			continue
		}

		used[best] = true
		eb := &g.b[best]
		results = append(results, newResult(matchKey(gk, ea.Key, eb.Key), ea, eb, opts.Threshold))
	}

	for j := range g.b {
		if !used[j] {
			eb := &g.b[j]
			results = append(results, newResult(matchKey(gk, "", eb.Key), nil, eb, opts.Threshold))
		}
	}
	return results
}

// compositeKey is patient|yyyy-mm-dd, or empty when either part is missing.
func compositeKey(e Entry) string {
	if e.Patient == "" || e.Date.IsZero() {
		return ""
	}
	return e.Patient + "|" + e.Date.Format(time.DateOnly)
}

func matchKey(group, keyA, keyB string) string {
	if keyA == "" {
		keyA = "-"
	}
	if keyB == "" {
		keyB = "-"
	}
	if group == "" {
		group = "-|-"
	}
	return group + "|" + keyA + "|" + keyB
}

func newResult(key string, a, b *Entry, threshold decimal.Decimal) Result {
	status, delta := Classify(a, b, threshold)
	r := Result{MatchKey: key, Status: status, Delta: delta}
	if a != nil {
		k, amt := a.Key, a.Amount
		r.KeyA, r.AmountA = &k, &amt
	}
	if b != nil {
		k, amt := b.Key, b.Amount
		r.KeyB, r.AmountB = &k, &amt
	}
	return r
}
