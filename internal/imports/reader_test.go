package imports

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func readAll(t *testing.T, path string) ([][]string, error) {
	t.Helper()
	src, err := openRows(path)
	require.NoError(t, err)
	defer src.Close()

	var rows [][]string
	for src.Next() {
		rows = append(rows, append([]string(nil), src.Row()...))
	}
	return rows, src.Err()
}

func TestHTMLReader(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want [][]string
	}{
		{
			name: "header span and entities",
			doc: `<html><body><table>
				<tr><td colspan="3">รายงาน</td></tr>
				<tr><th>TRAN_ID</th><th>HN</th><th>Paid&nbsp;Amount</th></tr>
				<tr><td> T1 </td><td>HN<br/>1</td><td>1,250.00</td></tr>
			</table></body></html>`,
			want: [][]string{
				{"รายงาน", "", ""},
				{"TRAN_ID", "HN", "Paid Amount"},
				{"T1", "HN 1", "1,250.00"},
			},
		},
		{
			name: "unclosed rows and cells",
			doc:  `<table><tr><td>A<td>B<tr><td>C<td>D</table>`,
			want: [][]string{{"A", "B"}, {"C", "D"}},
		},
		{
			name: "nested table stays inside its cell",
			doc:  `<table><tr><td>outer <table><tr><td>inner</td></tr></table></td><td>X</td></tr></table>`,
			want: [][]string{{"outer inner", "X"}},
		},
		{
			name: "empty rows skipped",
			doc:  `<table><tr></tr><tr><td>only</td></tr><tr></tr></table>`,
			want: [][]string{{"only"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rows, err := readAll(t, writeTemp(t, "export.xls", tt.doc))
			require.NoError(t, err)
			assert.Equal(t, tt.want, rows)
		})
	}
}

func TestHTMLReaderNoRows(t *testing.T) {
	rows, err := readAll(t, writeTemp(t, "export.xls", "<html><body><p>session expired</p></body></html>"))
	assert.Empty(t, rows)
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestHTMLReaderLargeTable(t *testing.T) {
	var b strings.Builder
	b.WriteString("<table><tr><th>TRAN_ID</th><th>AMOUNT</th></tr>")
	for range 5000 {
		b.WriteString("<tr><td>T</td><td>1.00</td></tr>")
	}
	b.WriteString("</table>")

	src, err := openRows(writeTemp(t, "big.xls", b.String()))
	require.NoError(t, err)
	defer src.Close()

	n := 0
	for src.Next() {
		n++
	}
	require.NoError(t, src.Err())
	assert.Equal(t, 5001, n)
}

func TestReadError(t *testing.T) {
	wrapped := readError(os.ErrClosed)
	assert.ErrorIs(t, wrapped, ErrUnsupportedFormat)

	already := readError(ErrUnsupportedFormat)
	assert.Same(t, ErrUnsupportedFormat, already)
}
