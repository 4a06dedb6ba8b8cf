package reconcile

import (
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/aegisx-platform/eclaim-rep-download-sub002/pkg/query"
	"github.com/aegisx-platform/eclaim-rep-download-sub002/pkg/repository"
)

var projection = query.
	NewProjectionMap("public", "reconciliation_results", "r").
	Project("pair", "Pair").
	Project("match_key", "MatchKey").
	Project("status", "Status").
	Project("key_a", "KeyA").
	Project("key_b", "KeyB").
	Project("amount_a", "AmountA").
	Project("amount_b", "AmountB").
	Project("delta", "Delta").
	Project("computed_at", "ComputedAt")

var defaultSort = query.SortField{Field: "MatchKey"}

// Filters narrows result queries.
type Filters struct {
	Keys   []string `json:"keys,omitempty"`
	Status *string  `json:"status,omitempty"`
}

// Apply adds filter conditions to a query builder. Keys match either side.
func (f Filters) Apply(b *query.Builder, pair string) *query.Builder {
	b = b.WhereEquals("Pair", pair).WhereEquals("Status", f.Status)
	if len(f.Keys) == 0 {
		return b
	}

	keys := make([]any, len(f.Keys))
	for i, k := range f.Keys {
		keys[i] = k
	}
	return b.WhereAnyIn([]string{"KeyA", "KeyB"}, keys)
}

// Validate rejects unknown statuses.
func (f Filters) Validate() error {
	if f.Status == nil {
		return nil
	}
	for _, s := range Statuses {
		if *f.Status == s {
			return nil
		}
	}
	return ErrInvalidStatus
}

// Matches reports whether r passes the filters.
func (f Filters) Matches(r Result) bool {
	if f.Status != nil && r.Status != *f.Status {
		return false
	}
	if len(f.Keys) == 0 {
		return true
	}
	for _, k := range f.Keys {
		if (r.KeyA != nil && *r.KeyA == k) || (r.KeyB != nil && *r.KeyB == k) {
			return true
		}
	}
	return false
}

// FiltersFromQuery reads status and key parameters. Keys may repeat or be
// comma separated.
func FiltersFromQuery(values url.Values) Filters {
	var f Filters

	if v := values.Get("status"); v != "" {
		f.Status = &v
	}
	for _, v := range values["key"] {
		for k := range strings.SplitSeq(v, ",") {
			if k = strings.TrimSpace(k); k != "" {
				f.Keys = append(f.Keys, k)
			}
		}
	}

	return f
}

func scanResult(s repository.Scanner) (Result, error) {
	var (
		r                       Result
		pair                    string
		amountA, amountB, delta decimal.NullDecimal
	)
	err := s.Scan(
		&pair,
		&r.MatchKey,
		&r.Status,
		&r.KeyA,
		&r.KeyB,
		&amountA,
		&amountB,
		&delta,
		&r.ComputedAt,
	)
	r.AmountA = nullable(amountA)
	r.AmountB = nullable(amountB)
	r.Delta = nullable(delta)
	return r, err
}

func nullable(d decimal.NullDecimal) *decimal.Decimal {
	if !d.Valid {
		return nil
	}
	return &d.Decimal
}

func scanEntry(s repository.Scanner) (Entry, error) {
	var (
		e       Entry
		patient *string
		date    *time.Time
	)
	err := s.Scan(&e.Key, &patient, &date, &e.Amount)
	if patient != nil {
		e.Patient = *patient
	}
	if date != nil {
		e.Date = *date
	}
	return e, err
}
