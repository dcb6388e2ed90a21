package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"qlink/internal/models"
)

// WriteCSV renders r as a spreadsheet-friendly table: one row per department,
// one column per day, then a total row.
func WriteCSV(w io.Writer, r models.VisitorReport) error {
	cw := csv.NewWriter(w)

	header := make([]string, 0, len(r.Dates)+3)
	header = append(header, "No", "Department")
	for _, d := range r.Dates {
		t, err := time.Parse(dayLayout, d)
		if err != nil {
			return fmt.Errorf("report date %q: %w", d, err)
		}
		header = append(header, t.Format("02/01/06"))
	}
	header = append(header, "Total")
	if err := cw.Write(header); err != nil {
		return err
	}

	totals := make([]int, len(r.Dates))
	for _, row := range r.Rows {
		rec := make([]string, 0, len(header))
		rec = append(rec, strconv.Itoa(row.No), row.Department)
		for i, n := range row.Counts {
			rec = append(rec, strconv.Itoa(n))
			totals[i] += n
		}
		rec = append(rec, strconv.Itoa(row.Total))
		if err := cw.Write(rec); err != nil {
			return err
		}
	}

	footer := make([]string, 0, len(header))
	footer = append(footer, "", "Total")
	for _, n := range totals {
		footer = append(footer, strconv.Itoa(n))
	}
	footer = append(footer, strconv.Itoa(r.Total))
	if err := cw.Write(footer); err != nil {
		return err
	}

	cw.Flush()
	return cw.Error()
}

// Filename names an export for the given range.
func Filename(r models.VisitorReport) string {
	return fmt.Sprintf("visitor_report_%s_%s.csv", r.StartDate, r.EndDate)
}
