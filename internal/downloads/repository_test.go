package downloads

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

// squash collapses runs of whitespace so statements compare by tokens.
func squash(q string) string {
	return strings.Join(strings.Fields(q), " ")
}

func TestResetFailedSQL(t *testing.T) {
	q := squash(resetFailedSQL)

	assert.True(t, strings.HasPrefix(q, "UPDATE download_session_files f SET status = 'pending', retry_count = 0,"))
	assert.Contains(t, q, "error_message = NULL, worker_id = NULL")
	assert.Contains(t, q, "FROM download_sessions s WHERE f.session_id = s.id AND f.status = 'failed'")
	assert.Contains(t, q, "AND s.status IN ('completed', 'failed', 'cancelled')")
	assert.Contains(t, q, "AND ($1::text IS NULL OR s.source_type = $1)")
	assert.Contains(t, q, "AND ($2::text IS NULL OR f.filename = $2)")
	assert.True(t, strings.HasSuffix(q, "RETURNING f.session_id"))
	assert.NotContains(t, q, "$3")

	assert.Equal(t,
		"UPDATE download_sessions SET resumable = true, updated_at = now() WHERE id = ANY($1)",
		squash(markResumableSQL),
	)
	assert.Contains(t, squash(resetEventSQL), "SELECT id, 'reset', 'failed files reset for retry' FROM unnest($1::uuid[]) AS id")
}
