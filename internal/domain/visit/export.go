package visit

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"
)

const exportSheet = "Visits"

var exportHeader = []string{"Visitor", "Mobile", "Patient", "Status", "Checked in", "Checked out", "Source", "Created by"}

var exportWidths = []float64{24, 18, 24, 14, 20, 20, 12, 38}

const exportTimeLayout = "2006-01-02 15:04"

// Export writes visits checked in within [from, to) as an XLSX workbook.
// Times are rendered in loc.
func (r *Recorder) Export(ctx context.Context, w io.Writer, from, to time.Time, loc *time.Location) error {
	all, err := r.repo.ListAll(ctx)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	rows := make([]*Record, 0, len(all))
	for _, v := range all {
		if v.CheckInTime.Before(from) || !v.CheckInTime.Before(to) {
			continue
		}
		rows = append(rows, v)
	}
	return writeWorkbook(w, rows, loc)
}

func writeWorkbook(w io.Writer, rows []*Record, loc *time.Location) error {
	if loc == nil {
		loc = time.UTC
	}
	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(exportSheet)
	if err != nil {
		return fmt.Errorf("create sheet: %w", err)
	}
	f.DeleteSheet("Sheet1")
	f.SetActiveSheet(index)

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E6F3FF"}, Pattern: 1},
	})
	if err != nil {
		return fmt.Errorf("create header style: %w", err)
	}

	for i, h := range exportHeader {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(exportSheet, cell, h); err != nil {
			return fmt.Errorf("set header %s: %w", cell, err)
		}
		if err := f.SetCellStyle(exportSheet, cell, cell, headerStyle); err != nil {
			return fmt.Errorf("set header style: %w", err)
		}
		col, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return err
		}
		if err := f.SetColWidth(exportSheet, col, col, exportWidths[i]); err != nil {
			return fmt.Errorf("set column width: %w", err)
		}
	}

	for i, v := range rows {
		checkedOut := ""
		if v.CheckOutTime != nil {
			checkedOut = v.CheckOutTime.In(loc).Format(exportTimeLayout)
		}
		values := []interface{}{
			v.VisitorName,
			v.VisitorMobile,
			v.PatientName,
			v.Status,
			v.CheckInTime.In(loc).Format(exportTimeLayout),
			checkedOut,
			v.Source(),
			v.CreatedBy,
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(exportSheet, cell, &values); err != nil {
			return fmt.Errorf("write row %d: %w", i+2, err)
		}
	}

	if err := f.SetPanes(exportSheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return fmt.Errorf("freeze header: %w", err)
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}
