package reconcile

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEntriesSQL(t *testing.T) {
	tests := []struct {
		name     string
		src      Source
		filtered bool
		contains []string
		excludes []string
	}{
		{
			name: "timestamp source",
			src:  claimsSource,
			contains: []string{
				"SELECT DISTINCT ON (x.tran_id)",
				"x.tran_id, x.pid, (x.admit_date AT TIME ZONE 'UTC')::date, COALESCE(x.compensated_amount, 0)",
				"FROM claim_items x",
				"LEFT JOIN imported_files f ON f.id = x.file_id",
				"WHERE x.tran_id IS NOT NULL AND x.tran_id <> ''",
				"ORDER BY x.tran_id, f.completed_at DESC NULLS LAST, f.id DESC NULLS LAST",
			},
			excludes: []string{"ANY($1)"},
		},
		{
			name: "date source has no cast",
			src:  hospitalSource,
			contains: []string{
				"SELECT DISTINCT ON (x.vn)",
				"x.vn, x.pid, x.admit_date, COALESCE(x.charge_amount, 0)",
				"FROM hospital_records x",
			},
			excludes: []string{"AT TIME ZONE", "ANY($1)"},
		},
		{
			name:     "keyed",
			src:      statementsSource,
			filtered: true,
			contains: []string{
				"FROM statement_lines x",
				"WHERE x.tran_id IS NOT NULL AND x.tran_id <> '' AND x.tran_id = ANY($1)",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := entriesSQL(tt.src, tt.filtered)
			for _, s := range tt.contains {
				assert.Contains(t, q, s)
			}
			for _, s := range tt.excludes {
				assert.NotContains(t, q, s)
			}
		})
	}
}
