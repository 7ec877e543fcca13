package withdrawals

import (
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"
)

const (
	exportSheet       = "Retiradas"
	exportDateLayout  = "02/01/2006 15:04"
	ExportContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

var exportHeaders = []string{"Data", "Produto", "Categoria", "Quantidade", "Destino", "Supervisor", "Tipo", "Motivo"}

var exportColumnWidths = []float64{18, 32, 20, 12, 28, 24, 18, 32}

var movementKindLabels = map[string]string{
	"withdrawal":        "Retirada",
	"manual_adjustment": "Ajuste manual",
}

// buildWorkbook renders the records into a single sheet workbook. Dates are
// shown in loc.
func buildWorkbook(records []Record, loc *time.Location) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", exportSheet); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("rename sheet: %w", err)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Size: 11},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"#D9E1F2"}},
		Border: []excelize.Border{
			{Type: "bottom", Color: "000000", Style: 1},
		},
	})
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("header style: %w", err)
	}

	header := make([]any, len(exportHeaders))
	for i, h := range exportHeaders {
		header[i] = h
	}
	if err := f.SetSheetRow(exportSheet, "A1", &header); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("write header: %w", err)
	}
	lastCol, _ := excelize.ColumnNumberToName(len(exportHeaders))
	if err := f.SetCellStyle(exportSheet, "A1", lastCol+"1", headerStyle); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("style header: %w", err)
	}

	for i, record := range records {
		reason := ""
		if record.Reason != nil {
			reason = *record.Reason
		}
		kind := movementKindLabels[string(record.Kind)]
		if kind == "" {
			kind = string(record.Kind)
		}
		row := []any{
			record.CreatedAt.In(loc).Format(exportDateLayout),
			record.DisplayName(),
			record.DisplayCategory().Label(),
			record.Quantity,
			record.Destination,
			record.Supervisor,
			kind,
			reason,
		}
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := f.SetSheetRow(exportSheet, cell, &row); err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("write row %d: %w", i+2, err)
		}
	}

	for i, width := range exportColumnWidths {
		col, _ := excelize.ColumnNumberToName(i + 1)
		if err := f.SetColWidth(exportSheet, col, col, width); err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("column width: %w", err)
		}
	}
	return f, nil
}

// ExportFileName names the export after the day it was produced.
func ExportFileName(now time.Time, loc *time.Location) string {
	return fmt.Sprintf("retiradas_%s.xlsx", now.In(loc).Format("2006-01-02"))
}
