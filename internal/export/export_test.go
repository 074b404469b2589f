package export

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func sampleTable() Table {
	return Table{
		Title:   "Obligation Ledger",
		Columns: []string{"File Name", "Payee", "Particulars", "Total Amount"},
		Rows: [][]string{
			{"a.png", "ACME, Inc.", "Office supplies", "1,234.56"},
			{"b.png", "Quote \"Co\"", "", "10.00"},
			{"TOTAL", "", "", "1,244.56"},
		},
		TotalRow: true,
	}
}

func cellBold(t *testing.T, f *excelize.File, cell string) bool {
	t.Helper()
	id, err := f.GetCellStyle(SheetName, cell)
	require.NoError(t, err)
	style, err := f.GetStyle(id)
	require.NoError(t, err)
	return style.Font != nil && style.Font.Bold
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, sampleTable()))

	want := "File Name,Payee,Particulars,Total Amount\n" +
		"a.png,\"ACME, Inc.\",Office supplies,\"1,234.56\"\n" +
		"b.png,\"Quote \"\"Co\"\"\",,10.00\n" +
		"TOTAL,,,\"1,244.56\"\n"
	assert.Equal(t, want, buf.String())
}

func TestWritePDF(t *testing.T) {
	table := sampleTable()
	table.Rows[0][2] = "A particulars line long enough that it cannot fit inside its column and has to be cut short"

	var buf bytes.Buffer
	require.NoError(t, WritePDF(&buf, table))
	assert.True(t, bytes.HasPrefix(buf.Bytes(), []byte("%PDF-")))
}

func TestWritePDF_NoColumns(t *testing.T) {
	var buf bytes.Buffer
	assert.Error(t, WritePDF(&buf, Table{}))
}

func TestWriteXLSX(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteXLSX(&buf, sampleTable()))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{SheetName}, f.GetSheetList())

	rows, err := f.GetRows(SheetName)
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, []string{"File Name", "Payee", "Particulars", "Total Amount"}, rows[0])
	assert.Equal(t, []string{"a.png", "ACME, Inc.", "Office supplies", "1,234.56"}, rows[1])
	assert.Equal(t, "Quote \"Co\"", rows[2][1])
	assert.Equal(t, []string{"TOTAL", "", "", "1,244.56"}, rows[3])

	assert.True(t, cellBold(t, f, "A1"))
	assert.False(t, cellBold(t, f, "A2"))
	assert.True(t, cellBold(t, f, "A4"))
	assert.True(t, cellBold(t, f, "D4"))
}

func TestWriteXLSX_WithoutTotalRow(t *testing.T) {
	table := sampleTable()
	table.TotalRow = false

	var buf bytes.Buffer
	require.NoError(t, WriteXLSX(&buf, table))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	assert.False(t, cellBold(t, f, "A4"))
}

func TestWriteXLSX_NoColumns(t *testing.T) {
	var buf bytes.Buffer
	assert.Error(t, WriteXLSX(&buf, Table{}))
}

func TestWriteFile(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name    string
		file    string
		prefix  string
		wantErr error
	}{
		{name: "csv", file: "ledger.csv", prefix: "File Name,"},
		{name: "pdf upper-case extension", file: "ledger.PDF", prefix: "%PDF-"},
		{name: "xlsx", file: "ledger.xlsx", prefix: "PK"},
		{name: "unsupported", file: "ledger.docx", wantErr: ErrUnsupportedFormat},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, tt.file)
			err := WriteFile(path, sampleTable())
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				_, statErr := os.Stat(path)
				assert.True(t, os.IsNotExist(statErr))
				return
			}
			require.NoError(t, err)

			data, err := os.ReadFile(path)
			require.NoError(t, err)
			assert.True(t, bytes.HasPrefix(data, []byte(tt.prefix)))
		})
	}
}

func TestColumnWidths(t *testing.T) {
	widths := columnWidths([]string{"Serial", "Particulars"}, 90)
	assert.InDelta(t, 20, widths[0], 0.001)
	assert.InDelta(t, 70, widths[1], 0.001)
}

func TestContentType(t *testing.T) {
	assert.Equal(t, "text/csv", ContentType(FormatCSV))
	assert.Equal(t, "application/pdf", ContentType(FormatPDF))
	assert.Equal(t, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", ContentType(FormatXLSX))
}

func TestSupported(t *testing.T) {
	for _, format := range []string{FormatCSV, FormatXLSX, FormatPDF} {
		assert.True(t, Supported(format), format)
	}
	assert.False(t, Supported("docx"))
	assert.False(t, Supported(""))
}
