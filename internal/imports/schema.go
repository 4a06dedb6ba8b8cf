package imports

import (
	"regexp"
	"slices"
	"strings"
)

// Schema kinds.
const (
	KindClaims      = "claims"
	KindDrugs       = "drugs"
	KindInstruments = "instruments"
	KindDenials     = "denials"
	KindStatements  = "statements"
	KindTransfers   = "transfers"
	KindHospital    = "hospital"
)

// ColumnType selects how a cell is validated and stored.
type ColumnType int

const (
	Text ColumnType = iota
	Int
	Decimal
	Date
	DateTime
)

func (t ColumnType) String() string {
	switch t {
	case Int:
		return "int"
	case Decimal:
		return "decimal"
	case Date:
		return "date"
	case DateTime:
		return "datetime"
	default:
		return "text"
	}
}

// Column maps a target field to the header labels it appears under.
// Date and DateTime columns also store a Buddhist-Era rendering in <Field>_th.
type Column struct {
	Field    string
	Headers  []string
	Type     ColumnType
	Required bool
}

// Schema describes one known spreadsheet layout and its target table.
type Schema struct {
	Kind  string
	Table string
	// Dir is the file store subdirectory the layout is downloaded or uploaded into.
	Dir     string
	Columns []Column
	// Key lists the fields joined into the natural key.
	Key []string
	// Signature lists the fields whose headers identify the layout.
	Signature       []string
	FilenamePattern *regexp.Regexp
}

// Column returns the column for field.
func (s *Schema) Column(field string) (Column, bool) {
	i := slices.IndexFunc(s.Columns, func(c Column) bool { return c.Field == field })
	if i < 0 {
		return Column{}, false
	}
	return s.Columns[i], true
}

// StorageColumns lists the table columns written for each record, in order.
func (s *Schema) StorageColumns() []string {
	cols := make([]string, 0, len(s.Columns)+4)
	for _, c := range s.Columns {
		cols = append(cols, c.Field)
		if c.Type == Date || c.Type == DateTime {
			cols = append(cols, c.Field+"_th")
		}
	}
	return cols
}

var schemas = []*Schema{
	{
		Kind:  KindClaims,
		Table: "claim_items",
		Dir:   "claims",
		Columns: []Column{
			{Field: "tran_id", Headers: []string{"tran_id", "tran id", "เลขที่ธุรกรรม"}, Required: true},
			{Field: "rep_no", Headers: []string{"rep no.", "rep no", "rep", "เลขที่ rep"}},
			{Field: "hn", Headers: []string{"hn"}},
			{Field: "an", Headers: []string{"an"}},
			{Field: "pid", Headers: []string{"pid", "เลขประจำตัวประชาชน"}},
			{Field: "patient_name", Headers: []string{"name", "patient name", "ชื่อ-สกุล"}},
			{Field: "patient_type", Headers: []string{"patient type", "ประเภทผู้ป่วย"}},
			{Field: "admit_date", Headers: []string{"admit date", "วันเข้ารักษา"}, Type: DateTime},
			{Field: "discharge_date", Headers: []string{"discharge date", "วันจำหน่าย"}, Type: DateTime},
			{Field: "scheme", Headers: []string{"scheme", "สิทธิ"}},
			{Field: "claim_amount", Headers: []string{"claim amount", "เรียกเก็บ"}, Type: Decimal},
			{Field: "compensated_amount", Headers: []string{"compensated amount", "compensated", "ชดเชยสุทธิ"}, Type: Decimal, Required: true},
			{Field: "error_code", Headers: []string{"error code", "error"}},
		},
		Key:             []string{"tran_id"},
		Signature:       []string{"tran_id", "hn", "compensated_amount"},
		FilenamePattern: regexp.MustCompile(`(?i)^eclaim_\d{5}_(op|ip|orf|opcs|ipcs|oplgo|iplgo|opsss|ipsss)_`),
	},
	{
		Kind:  KindDrugs,
		Table: "drug_lines",
		Dir:   "claims",
		Columns: []Column{
			{Field: "tran_id", Headers: []string{"tran_id", "tran id", "เลขที่ธุรกรรม"}, Required: true},
			{Field: "line_no", Headers: []string{"line no", "no.", "ลำดับ"}, Type: Int, Required: true},
			{Field: "drug_code", Headers: []string{"drug code", "รหัสยา"}, Required: true},
			{Field: "drug_name", Headers: []string{"drug name", "ชื่อยา"}},
			{Field: "quantity", Headers: []string{"quantity", "qty", "จำนวน"}, Type: Decimal},
			{Field: "unit_price", Headers: []string{"unit price", "ราคาต่อหน่วย"}, Type: Decimal},
			{Field: "claim_amount", Headers: []string{"claim amount", "เรียกเก็บ"}, Type: Decimal},
			{Field: "compensated_amount", Headers: []string{"compensated amount", "compensated", "ชดเชยสุทธิ"}, Type: Decimal},
		},
		Key:             []string{"tran_id", "line_no"},
		Signature:       []string{"tran_id", "drug_code"},
		FilenamePattern: regexp.MustCompile(`(?i)^eclaim_\d{5}_drug`),
	},
	{
		Kind:  KindInstruments,
		Table: "instrument_lines",
		Dir:   "claims",
		Columns: []Column{
			{Field: "tran_id", Headers: []string{"tran_id", "tran id", "เลขที่ธุรกรรม"}, Required: true},
			{Field: "line_no", Headers: []string{"line no", "no.", "ลำดับ"}, Type: Int, Required: true},
			{Field: "inst_code", Headers: []string{"inst code", "instrument code", "รหัสอุปกรณ์"}, Required: true},
			{Field: "inst_name", Headers: []string{"inst name", "instrument name", "ชื่ออุปกรณ์"}},
			{Field: "quantity", Headers: []string{"quantity", "qty", "จำนวน"}, Type: Decimal},
			{Field: "claim_amount", Headers: []string{"claim amount", "เรียกเก็บ"}, Type: Decimal},
			{Field: "compensated_amount", Headers: []string{"compensated amount", "compensated", "ชดเชยสุทธิ"}, Type: Decimal},
		},
		Key:             []string{"tran_id", "line_no"},
		Signature:       []string{"tran_id", "inst_code"},
		FilenamePattern: regexp.MustCompile(`(?i)^eclaim_\d{5}_inst`),
	},
	{
		Kind:  KindDenials,
		Table: "denial_lines",
		Dir:   "claims",
		Columns: []Column{
			{Field: "tran_id", Headers: []string{"tran_id", "tran id", "เลขที่ธุรกรรม"}, Required: true},
			{Field: "deny_code", Headers: []string{"deny code", "denial code", "รหัสปฏิเสธ"}, Required: true},
			{Field: "description", Headers: []string{"description", "รายละเอียด"}},
			{Field: "amount", Headers: []string{"amount", "จำนวนเงิน"}, Type: Decimal},
			{Field: "deny_date", Headers: []string{"deny date", "วันที่ปฏิเสธ"}, Type: Date},
		},
		Key:             []string{"tran_id", "deny_code"},
		Signature:       []string{"tran_id", "deny_code"},
		FilenamePattern: regexp.MustCompile(`(?i)^eclaim_\d{5}_den`),
	},
	{
		Kind:  KindStatements,
		Table: "statement_lines",
		Dir:   "statement",
		Columns: []Column{
			{Field: "tran_id", Headers: []string{"tran_id", "tran id", "เลขที่ธุรกรรม"}, Required: true},
			{Field: "statement_no", Headers: []string{"statement no", "stm no", "เลขที่ statement"}},
			{Field: "statement_date", Headers: []string{"statement date", "วันที่ statement"}, Type: Date},
			{Field: "rep_no", Headers: []string{"rep no.", "rep no", "rep"}},
			{Field: "hn", Headers: []string{"hn"}},
			{Field: "an", Headers: []string{"an"}},
			{Field: "pid", Headers: []string{"pid", "เลขประจำตัวประชาชน"}},
			{Field: "patient_name", Headers: []string{"name", "patient name", "ชื่อ-สกุล"}},
			{Field: "admit_date", Headers: []string{"admit date", "วันเข้ารักษา"}, Type: DateTime},
			{Field: "discharge_date", Headers: []string{"discharge date", "วันจำหน่าย"}, Type: DateTime},
			{Field: "claim_amount", Headers: []string{"claim amount", "เรียกเก็บ"}, Type: Decimal},
			{Field: "paid_amount", Headers: []string{"paid amount", "paid", "ยอดชดเชย"}, Type: Decimal, Required: true},
		},
		Key:             []string{"tran_id"},
		Signature:       []string{"tran_id", "paid_amount"},
		FilenamePattern: regexp.MustCompile(`(?i)^stm_\d{5}_`),
	},
	{
		Kind:  KindTransfers,
		Table: "transfer_lines",
		Dir:   "transfer",
		Columns: []Column{
			{Field: "document_no", Headers: []string{"document no", "doc no", "เลขที่เอกสาร"}, Required: true},
			{Field: "vendor_code", Headers: []string{"vendor code", "vendor", "รหัสผู้ขาย"}, Required: true},
			{Field: "posting_date", Headers: []string{"posting date", "วันที่ผ่านรายการ"}, Type: Date, Required: true},
			{Field: "amount", Headers: []string{"amount", "จำนวนเงิน"}, Type: Decimal, Required: true},
			{Field: "reference", Headers: []string{"reference", "ref", "อ้างอิง"}},
			{Field: "description", Headers: []string{"description", "รายละเอียด"}},
		},
		Key:             []string{"document_no", "vendor_code", "posting_date"},
		Signature:       []string{"document_no", "vendor_code", "posting_date"},
		FilenamePattern: regexp.MustCompile(`(?i)^(transfer|smt)_`),
	},
	{
		Kind:  KindHospital,
		Table: "hospital_records",
		Dir:   "uploads",
		Columns: []Column{
			{Field: "vn", Headers: []string{"vn", "visit no", "เลขที่รับบริการ"}, Required: true},
			{Field: "hn", Headers: []string{"hn"}},
			{Field: "an", Headers: []string{"an"}},
			{Field: "pid", Headers: []string{"pid", "cid", "เลขประจำตัวประชาชน"}, Required: true},
			{Field: "patient_name", Headers: []string{"name", "patient name", "ชื่อ-สกุล"}},
			{Field: "admit_date", Headers: []string{"admit date", "visit date", "วันเข้ารักษา"}, Type: Date, Required: true},
			{Field: "discharge_date", Headers: []string{"discharge date", "วันจำหน่าย"}, Type: Date},
			{Field: "scheme", Headers: []string{"scheme", "สิทธิ"}},
			{Field: "charge_amount", Headers: []string{"charge amount", "charge", "ค่าใช้จ่าย"}, Type: Decimal, Required: true},
		},
		Key:             []string{"vn"},
		Signature:       []string{"vn", "pid", "charge_amount"},
		FilenamePattern: regexp.MustCompile(`(?i)^(his|hospital)_`),
	},
}

// Kinds lists every schema kind in detection order.
func Kinds() []string {
	kinds := make([]string, len(schemas))
	for i, s := range schemas {
		kinds[i] = s.Kind
	}
	return kinds
}

// Lookup returns the schema for kind.
func Lookup(kind string) (*Schema, bool) {
	i := slices.IndexFunc(schemas, func(s *Schema) bool { return s.Kind == kind })
	if i < 0 {
		return nil, false
	}
	return schemas[i], true
}

// ByFilename returns the first schema whose filename pattern matches name.
func ByFilename(name string) (*Schema, bool) {
	for _, s := range schemas {
		if s.FilenamePattern.MatchString(name) {
			return s, true
		}
	}
	return nil, false
}

// ByHeaders returns the first schema whose signature headers all appear in
// one of rows, with the index of that row.
func ByHeaders(rows [][]string) (*Schema, int, bool) {
	for _, s := range schemas {
		if i := s.HeaderRow(rows); i >= 0 {
			return s, i, true
		}
	}
	return nil, -1, false
}

// HeaderRow returns the index of the first row containing every signature
// header, or -1.
func (s *Schema) HeaderRow(rows [][]string) int {
	for i, row := range rows {
		idx := s.index(row)
		ok := true
		for _, field := range s.Signature {
			if _, found := idx[field]; !found {
				ok = false
				break
			}
		}
		if ok {
			return i
		}
	}
	return -1
}

// index maps each column field to its position in a header row. The first
// matching cell wins.
func (s *Schema) index(header []string) map[string]int {
	idx := make(map[string]int, len(s.Columns))
	for pos, cell := range header {
		label := normalizeHeader(cell)
		if label == "" {
			continue
		}
		for _, c := range s.Columns {
			if _, seen := idx[c.Field]; seen {
				continue
			}
			if slices.Contains(c.Headers, label) {
				idx[c.Field] = pos
				break
			}
		}
	}
	return idx
}

func normalizeHeader(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
