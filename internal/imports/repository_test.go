package imports

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpsertSQL(t *testing.T) {
	claims, ok := Lookup(KindClaims)
	require.True(t, ok)

	q := upsertSQL(claims)
	cols := append([]string{"file_id", "row_number", "natural_key"}, claims.StorageColumns()...)

	assert.True(t, strings.HasPrefix(q, "INSERT INTO claim_items (file_id, row_number, natural_key, tran_id,"))
	assert.Contains(t, q, "VALUES ($1, $2, $3, $4,")
	assert.Contains(t, q, fmt.Sprintf("$%d)", len(cols)))
	assert.NotContains(t, q, fmt.Sprintf("$%d", len(cols)+1))

	assert.Contains(t, q, " ON CONFLICT (file_id, natural_key) DO UPDATE SET ")
	for _, c := range []string{"row_number", "compensated_amount", "admit_date", "admit_date_th"} {
		assert.Contains(t, q, fmt.Sprintf("%s = EXCLUDED.%s", c, c))
	}
	assert.NotContains(t, q, "file_id = EXCLUDED")
	assert.NotContains(t, q, "natural_key = EXCLUDED")
	assert.True(t, strings.HasSuffix(q, ", updated_at = now()"))
}

func TestPruneSQL(t *testing.T) {
	hospital, ok := Lookup(KindHospital)
	require.True(t, ok)

	assert.Equal(t,
		"DELETE FROM hospital_records WHERE file_id = $1 AND NOT (natural_key = ANY($2))",
		pruneSQL(hospital),
	)
}
