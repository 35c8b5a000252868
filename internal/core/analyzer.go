package core

// analyzer.go parses uploaded equipment CSV files and computes summaries.
//
// Analysis is all-or-nothing: the header must contain every required column
// and every numeric cell in every row must parse, otherwise the whole file is
// rejected. There is no row-level skipping.

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
)

// Required column headers. Matching is exact and case-sensitive.
const (
	ColumnName        = "Equipment Name"
	ColumnType        = "Type"
	ColumnFlowrate    = "Flowrate"
	ColumnPressure    = "Pressure"
	ColumnTemperature = "Temperature"
)

// RequiredColumns lists the columns every upload must contain, in the order
// they are reported to users.
var RequiredColumns = []string{
	ColumnName,
	ColumnType,
	ColumnFlowrate,
	ColumnPressure,
	ColumnTemperature,
}

// HeaderIndex maps header names to their position in a CSV record.
type HeaderIndex map[string]int

// utf8BOM is stripped from the start of uploads saved by Excel on Windows.
var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Analyze parses raw CSV data into equipment rows and computes the summary.
//
// Errors are *FormatError, *SchemaError or *CoercionError; all are matched by
// errors.Is against ErrFormat, ErrSchema and ErrCoercion respectively.
func Analyze(r io.Reader) ([]EquipmentRow, Summary, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, Summary{}, &FormatError{Err: fmt.Errorf("read: %w", err)}
	}
	return AnalyzeBytes(data)
}

// AnalyzeBytes is Analyze for an in-memory upload.
func AnalyzeBytes(data []byte) ([]EquipmentRow, Summary, error) {
	data = bytes.TrimPrefix(data, utf8BOM)
	data = sanitizeUTF8(data)

	records, err := parseCSV(data)
	if err != nil {
		return nil, Summary{}, &FormatError{Err: err}
	}
	if len(records) == 0 {
		return nil, Summary{}, &FormatError{Err: errors.New("no columns to parse from file")}
	}

	idx, err := ValidateHeaders(records[0])
	if err != nil {
		return nil, Summary{}, err
	}

	dataRows := records[1:]
	rows := make([]EquipmentRow, 0, len(dataRows))
	for i, record := range dataRows {
		row, err := buildRow(record, idx, i+2)
		if err != nil {
			return nil, Summary{}, err
		}
		rows = append(rows, row)
	}

	return rows, Summarize(rows), nil
}

// ValidateHeaders checks that every required column is present and returns
// the position of each one. The first occurrence of a duplicated header wins.
func ValidateHeaders(header []string) (HeaderIndex, error) {
	idx := MakeHeaderIndex(header)

	var missing []string
	for _, col := range RequiredColumns {
		if _, ok := idx[col]; !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return nil, &SchemaError{
			Missing:  missing,
			Required: append([]string(nil), RequiredColumns...),
		}
	}
	return idx, nil
}

// MakeHeaderIndex maps exact header names to their column position.
func MakeHeaderIndex(header []string) HeaderIndex {
	idx := make(HeaderIndex, len(header))
	for i, h := range header {
		if _, dup := idx[h]; dup {
			continue
		}
		idx[h] = i
	}
	return idx
}

// buildRow converts one CSV record into an EquipmentRow. Cells missing from a
// short record read as empty.
func buildRow(record []string, idx HeaderIndex, line int) (EquipmentRow, error) {
	cell := func(column string) string {
		if i := idx[column]; i < len(record) {
			return record[i]
		}
		return ""
	}

	row := EquipmentRow{
		Name: cell(ColumnName),
		Type: cell(ColumnType),
	}

	numeric := []struct {
		column string
		dst    *float64
	}{
		{ColumnFlowrate, &row.Flowrate},
		{ColumnPressure, &row.Pressure},
		{ColumnTemperature, &row.Temperature},
	}
	for _, n := range numeric {
		raw := cell(n.column)
		v, ok := ParseNumber(raw)
		if !ok {
			return EquipmentRow{}, &CoercionError{Column: n.column, Line: line, Value: raw}
		}
		*n.dst = v
	}
	return row, nil
}

// ParseNumber parses a numeric cell. Surrounding whitespace is ignored.
// Empty cells and non-finite values are rejected.
func ParseNumber(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

// Summarize computes the summary statistics for rows.
// An empty slice yields zero averages and empty distributions.
func Summarize(rows []EquipmentRow) Summary {
	s := Summary{
		TotalEquipment:   len(rows),
		TypeDistribution: make(map[string]int),
		TypeAverages:     make(map[string]TypeAverages),
	}
	if len(rows) == 0 {
		return s
	}

	type sums struct {
		flow, press, temp float64
		n                 int
	}
	var total sums
	byType := make(map[string]*sums)

	for _, r := range rows {
		total.flow += r.Flowrate
		total.press += r.Pressure
		total.temp += r.Temperature

		t, ok := byType[r.Type]
		if !ok {
			t = &sums{}
			byType[r.Type] = t
		}
		t.flow += r.Flowrate
		t.press += r.Pressure
		t.temp += r.Temperature
		t.n++
	}

	n := float64(len(rows))
	s.AverageFlowrate = total.flow / n
	s.AveragePressure = total.press / n
	s.AverageTemperature = total.temp / n

	for typ, t := range byType {
		c := float64(t.n)
		s.TypeDistribution[typ] = t.n
		s.TypeAverages[typ] = TypeAverages{
			AvgFlowrate:    t.flow / c,
			AvgPressure:    t.press / c,
			AvgTemperature: t.temp / c,
		}
	}
	return s
}

// AnalyzeSubset recomputes the summary over the first limit rows (file order)
// and adds MaxTemperature. A limit <= 0 or beyond len(rows) uses every row.
// MaxTemperature is nil only when the subset is empty.
func AnalyzeSubset(rows []EquipmentRow, limit int) Summary {
	if limit > 0 && limit < len(rows) {
		rows = rows[:limit]
	}

	s := Summarize(rows)
	if len(rows) > 0 {
		maxTemp := rows[0].Temperature
		for _, r := range rows[1:] {
			if r.Temperature > maxTemp {
				maxTemp = r.Temperature
			}
		}
		s.MaxTemperature = &maxTemp
	}
	return s
}

// ParseLimit interprets a limit query value. Only positive integers are
// accepted; anything else reports ok=false so callers fall back to the full
// summary.
func ParseLimit(raw string) (int, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, false
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

// isZeroLimit reports whether raw parses as the integer 0.
func isZeroLimit(raw string) bool {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	return err == nil && n == 0
}

// parseCSV reads every record. Records may have fewer or more fields than
// the header.
func parseCSV(data []byte) ([][]string, error) {
	r := csv.NewReader(bytes.NewReader(data))
	r.LazyQuotes = true
	r.FieldsPerRecord = -1
	return r.ReadAll()
}
