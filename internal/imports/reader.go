package imports

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

var (
	zipMagic  = []byte("PK\x03\x04")
	biffMagic = []byte{0xD0, 0xCF, 0x11, 0xE0}
	utf8BOM   = []byte{0xEF, 0xBB, 0xBF}
)

// rowReader yields spreadsheet rows in source order.
type rowReader interface {
	Next() bool
	Row() []string
	Err() error
	Close() error
}

// openRows picks a reader by content: xlsx by zip magic, HTML tables by
// markup, CSV by extension. Legacy binary workbooks are rejected.
func openRows(path string) (rowReader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	head := make([]byte, 512)
	n, err := io.ReadFull(f, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		f.Close()
		return nil, fmt.Errorf("read %s: %w", filepath.Base(path), err)
	}
	head = head[:n]

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		f.Close()
		return nil, err
	}

	switch {
	case bytes.HasPrefix(head, zipMagic):
		f.Close()
		return openXLSX(path)
	case bytes.HasPrefix(head, biffMagic):
		f.Close()
		return nil, fmt.Errorf("%w: legacy binary workbook", ErrUnsupportedFormat)
	case looksLikeHTML(head):
		return newHTMLReader(f), nil
	case strings.EqualFold(filepath.Ext(path), ".csv"):
		return newCSVReader(f), nil
	default:
		f.Close()
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Ext(path))
	}
}

func looksLikeHTML(head []byte) bool {
	head = bytes.TrimPrefix(head, utf8BOM)
	lower := bytes.ToLower(bytes.TrimSpace(head))
	return bytes.HasPrefix(lower, []byte("<")) || bytes.Contains(lower, []byte("<table"))
}

// xlsxReader streams the first worksheet.
type xlsxReader struct {
	file *excelize.File
	rows *excelize.Rows
	row  []string
	err  error
}

func openXLSX(path string) (*xlsxReader, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedFormat, err)
	}

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		f.Close()
		return nil, fmt.Errorf("%w: workbook has no sheets", ErrUnsupportedFormat)
	}

	rows, err := f.Rows(sheets[0])
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("read sheet %s: %w", sheets[0], err)
	}
	return &xlsxReader{file: f, rows: rows}, nil
}

func (x *xlsxReader) Next() bool {
	if x.err != nil || !x.rows.Next() {
		return false
	}
	x.row, x.err = x.rows.Columns()
	return x.err == nil
}

func (x *xlsxReader) Row() []string { return x.row }

func (x *xlsxReader) Err() error {
	if x.err != nil {
		return x.err
	}
	return x.rows.Error()
}

func (x *xlsxReader) Close() error {
	x.rows.Close()
	return x.file.Close()
}

// csvReader reads comma-separated rows with ragged lengths allowed.
type csvReader struct {
	file *os.File
	r    *csv.Reader
	row  []string
	err  error
}

func newCSVReader(f *os.File) *csvReader {
	br := bufio.NewReader(f)
	if bom, err := br.Peek(len(utf8BOM)); err == nil && bytes.Equal(bom, utf8BOM) {
		br.Discard(len(utf8BOM))
	}

	r := csv.NewReader(br)
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	return &csvReader{file: f, r: r}
}

func (c *csvReader) Next() bool {
	if c.err != nil {
		return false
	}
	row, err := c.r.Read()
	if err != nil {
		if !errors.Is(err, io.EOF) {
			c.err = err
		}
		return false
	}
	c.row = row
	return true
}

func (c *csvReader) Row() []string { return c.row }
func (c *csvReader) Err() error    { return c.err }
func (c *csvReader) Close() error  { return c.file.Close() }

// htmlReader streams the <tr> rows of an HTML document. Portal "xls" exports
// are HTML tables; cells spanning columns are padded so positions line up
// with the header row. Tables nested inside a cell contribute only text.
type htmlReader struct {
	file *os.File
	z    *html.Tokenizer
	row  []string
	err  error
	seen bool

	inRow  bool
	inCell bool
	nested int
	span   int
	cell   strings.Builder
	cur    []string
}

func newHTMLReader(f *os.File) *htmlReader {
	return &htmlReader{file: f, z: html.NewTokenizer(bufio.NewReader(f))}
}

func (h *htmlReader) Next() bool {
	if h.err != nil {
		return false
	}

	for {
		tt := h.z.Next()
		if tt == html.ErrorToken {
			if err := h.z.Err(); !errors.Is(err, io.EOF) {
				h.err = fmt.Errorf("%w: %v", ErrUnsupportedFormat, err)
				return false
			}
			if h.endRow() {
				return true
			}
			if !h.seen {
				h.err = fmt.Errorf("%w: no table rows", ErrUnsupportedFormat)
			}
			return false
		}

		if h.step(tt) {
			return true
		}
	}
}

// step applies one token and reports whether it completed a non-empty row.
func (h *htmlReader) step(tt html.TokenType) bool {
	tok := h.z.Token()

	switch tt {
	case html.TextToken:
		if h.inCell {
			h.cell.WriteString(tok.Data)
		}

	case html.StartTagToken, html.SelfClosingTagToken:
		switch {
		case h.inCell && tok.DataAtom == atom.Br:
			h.cell.WriteByte(' ')
		case h.inCell && tok.DataAtom == atom.Table:
			h.nested++
		case h.nested > 0:
		case tok.DataAtom == atom.Tr:
			done := h.endRow()
			h.inRow = true
			return done
		case h.inRow && (tok.DataAtom == atom.Td || tok.DataAtom == atom.Th):
			h.endCell()
			h.inCell = true
			h.span = colspan(tok.Attr)
		}

	case html.EndTagToken:
		switch {
		case h.nested > 0:
			if tok.DataAtom == atom.Table {
				h.nested--
			}
		case tok.DataAtom == atom.Td || tok.DataAtom == atom.Th:
			h.endCell()
		case tok.DataAtom == atom.Tr, tok.DataAtom == atom.Table:
			return h.endRow()
		}
	}
	return false
}

func (h *htmlReader) endCell() {
	if !h.inCell {
		return
	}
	h.cur = append(h.cur, strings.Join(strings.Fields(h.cell.String()), " "))
	for range h.span - 1 {
		h.cur = append(h.cur, "")
	}
	h.cell.Reset()
	h.inCell = false
}

// endRow closes the open row and publishes it when it has cells.
func (h *htmlReader) endRow() bool {
	h.endCell()
	if !h.inRow {
		return false
	}
	h.inRow = false

	if len(h.cur) == 0 {
		return false
	}
	h.row, h.cur = h.cur, nil
	h.seen = true
	return true
}

func (h *htmlReader) Row() []string { return h.row }
func (h *htmlReader) Err() error    { return h.err }
func (h *htmlReader) Close() error  { return h.file.Close() }

func colspan(attrs []html.Attribute) int {
	for _, a := range attrs {
		if a.Key == "colspan" {
			if v, err := strconv.Atoi(a.Val); err == nil && v > 1 {
				return v
			}
		}
	}
	return 1
}

// readError reports a failure to read a file's rows as a file-format error.
func readError(err error) error {
	if errors.Is(err, ErrUnsupportedFormat) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrUnsupportedFormat, err)
}

// peekRows reads up to n rows and returns them with a reader that replays
// them before continuing with the source.
func peekRows(src rowReader, n int) ([][]string, rowReader) {
	var head [][]string
	for len(head) < n && src.Next() {
		head = append(head, append([]string(nil), src.Row()...))
	}
	return head, &replayReader{head: head, src: src}
}

type replayReader struct {
	head [][]string
	pos  int
	row  []string
	src  rowReader
}

func (r *replayReader) Next() bool {
	if r.pos < len(r.head) {
		r.row = r.head[r.pos]
		r.pos++
		return true
	}
	if !r.src.Next() {
		return false
	}
	r.row = r.src.Row()
	return true
}

func (r *replayReader) Row() []string { return r.row }
func (r *replayReader) Err() error    { return r.src.Err() }
func (r *replayReader) Close() error  { return r.src.Close() }
