// Package report renders downloadable spreadsheets over the ingested state.
package report

import (
	"context"
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/mvribeiro/protesto-backoffice/internal/core/ports"
)

const titlesSheet = "Titulos"

type XLSXExporter struct {
	store ports.Store
}

func NewXLSXExporter(store ports.Store) *XLSXExporter {
	return &XLSXExporter{store: store}
}

// TitlesXLSX renders the full title base as a spreadsheet, newest first.
func (e *XLSXExporter) TitlesXLSX(ctx context.Context) ([]byte, error) {
	titles, err := e.store.ListTitles(ctx)
	if err != nil {
		return nil, fmt.Errorf("list titles: %w", err)
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", titlesSheet); err != nil {
		return nil, fmt.Errorf("rename sheet: %w", err)
	}

	headers := []string{
		"ID", "Numero", "Protocolo", "Valor", "Status",
		"Emissao", "Vencimento", "Protesto", "Especie", "Aceite", "Nosso Numero", "Lote",
	}
	for col, h := range headers {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return nil, fmt.Errorf("header cell: %w", err)
		}
		if err := f.SetCellValue(titlesSheet, cell, h); err != nil {
			return nil, fmt.Errorf("write header: %w", err)
		}
	}

	for row, t := range titles {
		values := []any{
			t.ID,
			t.Number,
			t.Protocol,
			t.Amount.StringFixed(2),
			string(t.Status),
			formatDate(t.IssueDate),
			formatDate(t.DueDate),
			formatDatePtr(t.ProtestDate),
			t.Species,
			formatAccept(t.Accept),
			t.OurNumber,
			t.BatchID,
		}
		for col, v := range values {
			cell, err := excelize.CoordinatesToCellName(col+1, row+2)
			if err != nil {
				return nil, fmt.Errorf("data cell: %w", err)
			}
			if err := f.SetCellValue(titlesSheet, cell, v); err != nil {
				return nil, fmt.Errorf("write row: %w", err)
			}
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("render workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format("2006-01-02")
}

func formatDatePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return formatDate(*t)
}

func formatAccept(accept bool) string {
	if accept {
		return "S"
	}
	return "N"
}
