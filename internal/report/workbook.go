package report

import (
	"fmt"

	"github.com/xuri/excelize/v2"

	"kasirkredit/backend/internal/domain"
	"kasirkredit/backend/internal/money"
)

const (
	OverdueSheet   = "Overdue"
	XLSXMediaType  = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	totalRowLabel  = "TOTAL"
	dateCellFormat = "2006-01-02"
)

type overdueColumn struct {
	Header string
	Value  func(domain.OverdueInstallment) any
}

var overdueColumns = []overdueColumn{
	{Header: "Customer", Value: func(r domain.OverdueInstallment) any { return r.CustomerName }},
	{Header: "Customer ID", Value: func(r domain.OverdueInstallment) any { return r.CustomerID }},
	{Header: "Credit ID", Value: func(r domain.OverdueInstallment) any { return r.CreditID }},
	{Header: "Installment", Value: func(r domain.OverdueInstallment) any { return r.Sequence }},
	{Header: "Due date", Value: func(r domain.OverdueInstallment) any { return r.DueDate.Format(dateCellFormat) }},
	{Header: "Days overdue", Value: func(r domain.OverdueInstallment) any { return r.DaysOverdue }},
	{Header: "Amount", Value: func(r domain.OverdueInstallment) any { return money.Float(r.AmountCents) }},
	{Header: "Pending", Value: func(r domain.OverdueInstallment) any { return money.Float(r.PendingCents) }},
}

// OverdueWorkbook renders sweep rows into a single-sheet XLSX file followed by
// a total row of the pending amounts.
func OverdueWorkbook(asOf string, createdBy string, rows []domain.OverdueInstallment) ([]byte, error) {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName(f.GetSheetName(0), OverdueSheet); err != nil {
		return nil, err
	}
	_ = f.SetDocProps(&excelize.DocProperties{
		Creator: createdBy,
		Title:   fmt.Sprintf("Overdue installments as of %s", asOf),
	})

	for i, col := range overdueColumns {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(OverdueSheet, cell, col.Header); err != nil {
			return nil, err
		}
	}

	rowIdx := 2
	var pending int64
	for _, r := range rows {
		for colIdx, col := range overdueColumns {
			cell, _ := excelize.CoordinatesToCellName(colIdx+1, rowIdx)
			if err := f.SetCellValue(OverdueSheet, cell, col.Value(r)); err != nil {
				return nil, err
			}
		}
		pending += r.PendingCents
		rowIdx++
	}

	labelCell, _ := excelize.CoordinatesToCellName(1, rowIdx)
	totalCell, _ := excelize.CoordinatesToCellName(len(overdueColumns), rowIdx)
	_ = f.SetCellValue(OverdueSheet, labelCell, totalRowLabel)
	_ = f.SetCellValue(OverdueSheet, totalCell, money.Float(pending))

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func OverdueFileName(asOf string) string {
	return fmt.Sprintf("overdue_%s.xlsx", asOf)
}
