// Package ingest turns uploaded sensor datasets into a single feature set.
package ingest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"sheild-gateway/internal/data"
)

// Column names expected in the header row. Matching is exact and case-sensitive.
const (
	ColumnMachineID   = "machineId"
	ColumnVibration   = "vibration"
	ColumnTemperature = "temperature"
	ColumnCurrent     = "current"
)

var requiredColumns = []string{ColumnVibration, ColumnTemperature, ColumnCurrent}

var (
	ErrEmptyFile     = errors.New("csv appears empty")
	ErrMissingColumn = errors.New("csv must include vibration, temperature, current")
	ErrEmptyDataset  = errors.New("no valid numeric rows found")
	ErrMalformed     = errors.New("malformed csv")
)

// MissingColumnsError lists the required header columns that were absent.
type MissingColumnsError struct {
	Columns []string
}

func (e *MissingColumnsError) Error() string {
	return fmt.Sprintf("%s: missing %s", ErrMissingColumn, strings.Join(e.Columns, ", "))
}

func (e *MissingColumnsError) Unwrap() error { return ErrMissingColumn }

// RowError describes a data row that was excluded from the averages.
type RowError struct {
	Line   int    `json:"line"`
	Column string `json:"column"`
	Value  string `json:"value"`
	Reason string `json:"reason"`
}

func (e RowError) Error() string {
	return fmt.Sprintf("line %d: %s %q: %s", e.Line, e.Column, e.Value, e.Reason)
}

// Dataset is the result of aggregating a CSV upload.
type Dataset struct {
	Features  data.FeatureSet `json:"features"`
	MachineID string          `json:"machineId,omitempty"`
	// MachineIDs holds every distinct non-empty machineId seen, in first-seen order.
	MachineIDs []string   `json:"machineIds,omitempty"`
	Rows       int        `json:"rows"`
	RowErrors  []RowError `json:"rowErrors,omitempty"`
}

type columnIndex struct {
	machineID                       int
	vibration, temperature, current int
}

// Aggregate parses CSV text and averages the vibration, temperature and
// current columns over every valid row. Means are rounded to two decimals.
// When several rows carry a machineId the last non-empty one wins.
func Aggregate(text string) (Dataset, error) {
	r := csv.NewReader(strings.NewReader(text))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	var (
		records [][]string
		lines   []int
	)
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return Dataset{}, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		line, _ := r.FieldPos(0)
		records = append(records, rec)
		lines = append(lines, line)
	}
	if len(records) < 2 {
		return Dataset{}, ErrEmptyFile
	}

	idx, err := locateColumns(records[0])
	if err != nil {
		return Dataset{}, err
	}

	var (
		ds               Dataset
		sumV, sumT, sumC float64
		seen             = map[string]bool{}
	)
	for i, rec := range records[1:] {
		lineNo := lines[i+1]

		if idx.machineID >= 0 && idx.machineID < len(rec) {
			if id := strings.TrimSpace(rec[idx.machineID]); id != "" {
				ds.MachineID = id
				if !seen[id] {
					seen[id] = true
					ds.MachineIDs = append(ds.MachineIDs, id)
				}
			}
		}

		v, errV := parseCell(rec, idx.vibration, ColumnVibration, lineNo)
		t, errT := parseCell(rec, idx.temperature, ColumnTemperature, lineNo)
		c, errC := parseCell(rec, idx.current, ColumnCurrent, lineNo)
		if rowErrs := collect(errV, errT, errC); len(rowErrs) > 0 {
			ds.RowErrors = append(ds.RowErrors, rowErrs...)
			continue
		}
		sumV += v
		sumT += t
		sumC += c
		ds.Rows++
	}

	if ds.Rows == 0 {
		return ds, ErrEmptyDataset
	}
	n := float64(ds.Rows)
	ds.Features = data.FeatureSet{
		Vibration:   round2(sumV / n),
		Temperature: round2(sumT / n),
		Current:     round2(sumC / n),
	}
	return ds, nil
}

func locateColumns(header []string) (columnIndex, error) {
	pos := make(map[string]int, len(header))
	for i, h := range header {
		h = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
		if _, dup := pos[h]; !dup {
			pos[h] = i
		}
	}
	var missing []string
	for _, col := range requiredColumns {
		if _, ok := pos[col]; !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return columnIndex{}, &MissingColumnsError{Columns: missing}
	}
	idx := columnIndex{
		machineID:   -1,
		vibration:   pos[ColumnVibration],
		temperature: pos[ColumnTemperature],
		current:     pos[ColumnCurrent],
	}
	if i, ok := pos[ColumnMachineID]; ok {
		idx.machineID = i
	}
	return idx, nil
}

func parseCell(rec []string, i int, column string, line int) (float64, *RowError) {
	if i >= len(rec) {
		return 0, &RowError{Line: line, Column: column, Reason: "missing cell"}
	}
	raw := strings.TrimSpace(rec[i])
	if raw == "" {
		return 0, &RowError{Line: line, Column: column, Reason: "empty cell"}
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, &RowError{Line: line, Column: column, Value: raw, Reason: "not a number"}
	}
	return v, nil
}

func collect(errs ...*RowError) []RowError {
	var out []RowError
	for _, e := range errs {
		if e != nil {
			out = append(out, *e)
		}
	}
	return out
}

func round2(x float64) float64 {
	return math.Round(x*100) / 100
}
