// Package xlsx renders the tenant usage report as an Excel workbook.
package xlsx

import (
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/kirillkom/docflow/internal/core/ports"
)

const (
	SheetUsage = "Usage"
	sheetMeta  = "Report"
)

var header = []string{
	"Tenant ID",
	"Tenant",
	"Documents",
	"Max documents",
	"Storage (bytes)",
	"Max storage (bytes)",
	"Storage used %",
	"Blocked",
	"Block reason",
}

type Writer struct{}

func NewWriter() Writer { return Writer{} }

func (Writer) WriteUsageReport(rows []ports.UsageReportRow, generatedAt time.Time) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetUsage); err != nil {
		return nil, fmt.Errorf("rename sheet: %w", err)
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, fmt.Errorf("create header style: %w", err)
	}

	if err := f.SetSheetRow(SheetUsage, "A1", &header); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}
	last, _ := excelize.CoordinatesToCellName(len(header), 1)
	if err := f.SetCellStyle(SheetUsage, "A1", last, bold); err != nil {
		return nil, fmt.Errorf("style header: %w", err)
	}

	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, err
		}
		values := []any{
			row.TenantID,
			row.TenantName,
			row.Documents,
			row.MaxDocuments,
			row.StorageBytes,
			row.MaxStorageBytes,
			percent(row.StorageBytes, row.MaxStorageBytes),
			yesNo(row.IsBlocked),
			row.BlockReason,
		}
		if err := f.SetSheetRow(SheetUsage, cell, &values); err != nil {
			return nil, fmt.Errorf("write row for %s: %w", row.TenantID, err)
		}
	}
	if err := f.SetColWidth(SheetUsage, "A", "B", 28); err != nil {
		return nil, fmt.Errorf("set column width: %w", err)
	}
	if err := f.SetPanes(SheetUsage, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"}); err != nil {
		return nil, fmt.Errorf("freeze header: %w", err)
	}

	if _, err := f.NewSheet(sheetMeta); err != nil {
		return nil, fmt.Errorf("create meta sheet: %w", err)
	}
	meta := [][]any{
		{"Generated at", generatedAt.UTC().Format(time.RFC3339)},
		{"Tenants", len(rows)},
	}
	for i, line := range meta {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := f.SetSheetRow(sheetMeta, cell, &line); err != nil {
			return nil, fmt.Errorf("write meta: %w", err)
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("encode workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func percent(used, limit int64) float64 {
	if limit <= 0 {
		return 0
	}
	return float64(used*10000/limit) / 100
}

func yesNo(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}
