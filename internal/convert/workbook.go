package convert

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
)

// months in report column order.
var months = []string{
	"January", "February", "March", "April", "May", "June",
	"July", "August", "September", "October", "November", "December",
}

var (
	// ErrNoMonthHeader means the sheet has no row naming the months.
	ErrNoMonthHeader = errors.New("no month header row")
	// ErrNoDataRows means the header was found but no year rows follow.
	ErrNoDataRows = errors.New("no data rows")
)

var numberPattern = regexp.MustCompile(`^-?\(?\$?([0-9,]+(?:\.[0-9]+)?)\)?$`)

// CSVHeader is the output column set: year, the twelve months, Total.
func CSVHeader() []string {
	header := make([]string, 0, len(months)+2)
	header = append(header, "year")
	header = append(header, months...)
	return append(header, "Total")
}

// ReadSheet returns the active sheet's rows from a workbook file.
func ReadSheet(path string) ([][]string, error) {
	wb, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer wb.Close()

	sheet := wb.GetSheetName(wb.GetActiveSheetIndex())
	rows, err := wb.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheet, err)
	}
	return rows, nil
}

// ExtractTable locates the month header in sheet rows and collects the year
// rows beneath it. Each returned row is year, the twelve month values, then
// the total.
func ExtractTable(rows [][]string) ([][]string, error) {
	headerIdx := findMonthHeader(rows)
	if headerIdx < 0 {
		return nil, ErrNoMonthHeader
	}

	header := rows[headerIdx]
	monthCols, totalCol := mapColumns(header)

	var out [][]string
	for _, row := range rows[headerIdx+1:] {
		lead := ""
		if len(row) > 0 {
			lead = strings.TrimSpace(row[0])
		}
		if lead == "" {
			break
		}
		if strings.HasPrefix(strings.ToLower(lead), "total") {
			break
		}

		year, ok := parseYear(lead)
		if !ok {
			continue
		}

		values := make([]string, 0, len(months)+2)
		values = append(values, strconv.Itoa(year))
		for _, m := range months {
			col, has := monthCols[m]
			if !has || col >= len(row) {
				values = append(values, "")
				continue
			}
			values = append(values, parseNumber(row[col]))
		}

		total := ""
		if totalCol >= 0 && totalCol < len(row) {
			total = parseNumber(row[totalCol])
		}
		values = append(values, total)

		out = append(out, values)
	}

	if len(out) == 0 {
		return nil, ErrNoDataRows
	}
	return out, nil
}

// findMonthHeader returns the index of the first row naming at least six
// months, or -1.
func findMonthHeader(rows [][]string) int {
	for i, row := range rows {
		found := 0
		for _, m := range months {
			for _, cell := range row {
				if strings.EqualFold(strings.TrimSpace(cell), m) {
					found++
					break
				}
			}
		}
		if found >= 6 {
			return i
		}
	}
	return -1
}

// mapColumns maps month names to their column index and finds the total
// column. Without an explicit "Total" header the rightmost non-empty
// non-month column is taken.
func mapColumns(header []string) (map[string]int, int) {
	monthCols := make(map[string]int, len(months))
	totalCol := -1

	for idx, cell := range header {
		if cell == "" {
			continue
		}
		name := strings.TrimSpace(cell)
		for _, m := range months {
			if strings.EqualFold(name, m) {
				monthCols[m] = idx
			}
		}
		if strings.EqualFold(name, "total") {
			totalCol = idx
		}
	}

	if totalCol < 0 {
		for idx := len(header) - 1; idx >= 0; idx-- {
			if header[idx] == "" {
				continue
			}
			if !isMonth(strings.TrimSpace(header[idx])) {
				totalCol = idx
				break
			}
		}
	}

	return monthCols, totalCol
}

func isMonth(name string) bool {
	for _, m := range months {
		if strings.EqualFold(name, m) {
			return true
		}
	}
	return false
}

func parseYear(s string) (int, bool) {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return int(f), true
}

// parseNumber normalizes a workbook cell: commas and currency markers are
// stripped, accounting parentheses negate, integer-like floats collapse to
// integers. Non-numeric text comes back as the stripped string.
func parseNumber(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ""
	}

	clean := strings.NewReplacer(",", "", "$", "").Replace(s)
	if strings.HasPrefix(clean, "(") && strings.HasSuffix(clean, ")") {
		clean = "-" + clean[1:len(clean)-1]
	}

	if strings.Contains(clean, ".") {
		if f, err := strconv.ParseFloat(clean, 64); err == nil {
			if f == math.Trunc(f) {
				return strconv.FormatInt(int64(f), 10)
			}
			return strconv.FormatFloat(f, 'f', -1, 64)
		}
	} else if n, err := strconv.ParseInt(clean, 10, 64); err == nil {
		return strconv.FormatInt(n, 10)
	}

	if m := numberPattern.FindStringSubmatch(s); m != nil {
		return m[1]
	}
	return clean
}
