// Package report renders maintenance reports as downloadable documents.
package report

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"sheild-gateway/internal/data"

	"github.com/xuri/excelize/v2"
)

// Title heads every exported report.
const Title = "Predictive Maintenance Report"

const sheetName = "Report"

// Format is an export file format.
type Format string

const (
	FormatXLSX Format = "xlsx"
	FormatCSV  Format = "csv"
)

var ErrUnsupportedFormat = errors.New("unsupported report format")

// ParseFormat accepts "xlsx", "excel" and "csv". An empty string selects xlsx.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "xlsx", "excel":
		return FormatXLSX, nil
	case "csv":
		return FormatCSV, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, s)
}

func (f Format) ContentType() string {
	if f == FormatCSV {
		return "text/csv"
	}
	return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
}

func (f Format) Filename() string {
	return "report." + string(f)
}

// lines is the single-column layout shared by every format.
func lines(r *data.Report) []string {
	out := []string{
		Title,
		"Period: " + r.Period,
		fmt.Sprintf("From: %s To: %s", r.StartDate.Format("2006-01-02"), r.EndDate.Format("2006-01-02")),
		"",
		"Contents",
	}
	return append(out, r.Contents...)
}

// Export writes r to w in the given format.
func Export(w io.Writer, r *data.Report, format Format) error {
	switch format {
	case FormatXLSX:
		return exportXLSX(w, r)
	case FormatCSV:
		return exportCSV(w, r)
	}
	return fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
}

func exportXLSX(w io.Writer, r *data.Report) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	for i, line := range lines(r) {
		if line == "" {
			continue
		}
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(sheetName, cell, line); err != nil {
			return fmt.Errorf("set %s: %w", cell, err)
		}
	}

	titleStyle, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true, Size: 16}})
	if err != nil {
		return fmt.Errorf("title style: %w", err)
	}
	headStyle, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("heading style: %w", err)
	}
	if err := f.SetCellStyle(sheetName, "A1", "A1", titleStyle); err != nil {
		return err
	}
	if err := f.SetCellStyle(sheetName, "A5", "A5", headStyle); err != nil {
		return err
	}
	if err := f.SetColWidth(sheetName, "A", "A", 48); err != nil {
		return err
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write xlsx: %w", err)
	}
	return nil
}

func exportCSV(w io.Writer, r *data.Report) error {
	cw := csv.NewWriter(w)
	for _, line := range lines(r) {
		if err := cw.Write([]string{csvCell(line)}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// csvCell prefixes a quote to text a spreadsheet would evaluate as a formula.
func csvCell(s string) string {
	if s != "" && strings.ContainsRune("=+-@\t\r", rune(s[0])) {
		return "'" + s
	}
	return s
}
