package report

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"kasirkredit/backend/internal/domain"
)

func TestOverdueWorkbookWritesRowsAndTotal(t *testing.T) {
	due := time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC)
	rows := []domain.OverdueInstallment{
		{CreditID: "crd-1", CustomerID: "cus-1", CustomerName: "Rosa Quispe", Sequence: 1, DueDate: due, AmountCents: 33300, PendingCents: 33300, DaysOverdue: 41},
		{CreditID: "crd-2", CustomerID: "cus-2", CustomerName: "Luis Rojas", Sequence: 2, DueDate: due.AddDate(0, 0, 10), AmountCents: 5000, PendingCents: 1250, DaysOverdue: 31},
	}

	data, err := OverdueWorkbook("2026-02-11", "admin", rows)
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer func() { _ = f.Close() }()

	got, err := f.GetRows(OverdueSheet)
	require.NoError(t, err)
	require.Len(t, got, 4)

	assert.Equal(t, "Customer", got[0][0])
	assert.Equal(t, "Pending", got[0][7])
	assert.Equal(t, "Rosa Quispe", got[1][0])
	assert.Equal(t, "2026-01-01", got[1][4])
	assert.Equal(t, "41", got[1][5])
	assert.Equal(t, "333", got[1][6])
	assert.Equal(t, "12.5", got[2][7])
	assert.Equal(t, totalRowLabel, got[3][0])
	assert.Equal(t, "345.5", got[3][7])
}

func TestOverdueWorkbookWithoutRowsStillHasHeader(t *testing.T) {
	data, err := OverdueWorkbook("2026-02-11", "admin", nil)
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer func() { _ = f.Close() }()

	got, err := f.GetRows(OverdueSheet)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "overdue_2026-02-11.xlsx", OverdueFileName("2026-02-11"))
}
