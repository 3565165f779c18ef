// Package report renders operation history as spreadsheets.
package report

import (
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"

	"equipment-hours-backend/internal/model"
)

const (
	logSheet   = "Nhat ky"
	timeLayout = "2006-01-02 15:04"
)

var logHeaders = []string{
	"Thời gian bật",
	"Thời gian tắt",
	"Thiết bị",
	"Khối chi tiết",
	"Người thực hiện",
	"Giờ hoạt động (h)",
	"Trạng thái",
	"Ghi chú",
}

// WriteLogs writes logs, in the given order, as an XLSX workbook. Times are
// shown in loc.
func WriteLogs(w io.Writer, logs []model.OperationLog, loc *time.Location) error {
	if loc == nil {
		loc = time.UTC
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), logSheet); err != nil {
		return fmt.Errorf("failed to name sheet: %w", err)
	}

	if err := f.SetSheetRow(logSheet, "A1", &logHeaders); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("failed to create header style: %w", err)
	}
	if err := f.SetRowStyle(logSheet, 1, 1, bold); err != nil {
		return fmt.Errorf("failed to style header: %w", err)
	}

	for i, l := range logs {
		row := []any{
			l.StartTime.In(loc).Format(timeLayout),
			l.EndTime.In(loc).Format(timeLayout),
			"",
			"",
			l.OperatorName,
			"",
			l.DeviceStatus.Label(),
			l.Notes,
		}
		if l.Device != nil {
			row[2] = l.Device.Name
		}
		if l.DeviceUnit != nil {
			row[3] = l.DeviceUnit.Name
		}
		if l.Duration != nil {
			row[5] = *l.Duration
		}

		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(logSheet, cell, &row); err != nil {
			return fmt.Errorf("failed to write log %d: %w", l.ID, err)
		}
	}

	if err := f.SetColWidth(logSheet, "A", "H", 20); err != nil {
		return fmt.Errorf("failed to size columns: %w", err)
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}
