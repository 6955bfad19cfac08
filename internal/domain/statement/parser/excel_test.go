package parser

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/iius-rcox/ExpenseTrack-sub014/internal/domain/statement/sniffer"
)

// buildWorkbook writes rows to a sheet and returns the serialized workbook.
func buildWorkbook(t *testing.T, sheet string, rows [][]any) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()

	if sheet != "Sheet1" {
		require.NoError(t, f.SetSheetName("Sheet1", sheet))
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow(sheet, cell, &row))
	}

	var buf bytes.Buffer
	require.NoError(t, f.Write(&buf))
	return buf.Bytes()
}

func TestDetectXLSXConfig(t *testing.T) {
	t.Run("headers and samples from first sheet", func(t *testing.T) {
		data := buildWorkbook(t, "Sheet1", [][]any{
			{"Date", "Description", "Amount"},
			{"01/15/2025", "COFFEE SHOP", "-4.50"},
			{"01/16/2025", "LUNCH", "-12.00"},
		})

		config, err := DetectXLSXConfig(data)
		require.NoError(t, err)
		assert.Equal(t, 0, config.SkipLines)
		assert.Equal(t, []string{"Date", "Description", "Amount"}, config.Headers)
		require.Len(t, config.SampleRows, 2)
		assert.Equal(t, []string{"01/15/2025", "COFFEE SHOP", "-4.50"}, config.SampleRows[0])
	})

	t.Run("hash matches the csv sniffer for the same columns", func(t *testing.T) {
		data := buildWorkbook(t, "Sheet1", [][]any{{"Date", "Description", "Amount"}})
		config, err := DetectXLSXConfig(data)
		require.NoError(t, err)

		csvConfig, err := sniffer.DetectConfig([]byte("Date,Description,Amount\n"))
		require.NoError(t, err)
		assert.Equal(t, csvConfig.HeaderHash, config.HeaderHash)
	})

	t.Run("leading blank rows are counted as skip lines", func(t *testing.T) {
		data := buildWorkbook(t, "Sheet1", [][]any{
			{" "},
			{"Date", "Description", "Amount"},
			{"01/15/2025", "COFFEE", "-4.50"},
		})
		config, err := DetectXLSXConfig(data)
		require.NoError(t, err)
		assert.Equal(t, 1, config.SkipLines)
		assert.Equal(t, []string{"Date", "Description", "Amount"}, config.Headers)
	})

	t.Run("prefers a transactions sheet by name", func(t *testing.T) {
		f := excelize.NewFile()
		defer f.Close()
		_, err := f.NewSheet("Transactions")
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow("Transactions", "A1", &[]any{"Date", "Description", "Amount"}))
		require.NoError(t, f.SetSheetRow("Sheet1", "A1", &[]any{"Notes"}))

		var buf bytes.Buffer
		require.NoError(t, f.Write(&buf))

		config, err := DetectXLSXConfig(buf.Bytes())
		require.NoError(t, err)
		assert.Equal(t, []string{"Date", "Description", "Amount"}, config.Headers)
	})
}

func TestNewXLSXStream(t *testing.T) {
	t.Run("yields data rows after the header", func(t *testing.T) {
		data := buildWorkbook(t, "Sheet1", [][]any{
			{"Date", "Description", "Amount"},
			{"01/15/2025", "COFFEE", "-4.50"},
			{"01/16/2025", "LUNCH", "-12.00"},
		})
		s, err := NewXLSXStream(data, 0)
		require.NoError(t, err)
		defer s.Close()

		first, line, err := s.Next()
		require.NoError(t, err)
		assert.Equal(t, []string{"01/15/2025", "COFFEE", "-4.50"}, first)
		assert.Equal(t, 2, line)

		second, _, err := s.Next()
		require.NoError(t, err)
		assert.Equal(t, []string{"01/16/2025", "LUNCH", "-12.00"}, second)

		_, _, err = s.Next()
		assert.Equal(t, io.EOF, err)
	})

	t.Run("blank interior rows are skipped", func(t *testing.T) {
		data := buildWorkbook(t, "Sheet1", [][]any{
			{"Date", "Description", "Amount"},
			{"01/15/2025", "COFFEE", "-4.50"},
			{" "},
			{"01/17/2025", "DINNER", "-20.00"},
		})
		s, err := NewXLSXStream(data, 0)
		require.NoError(t, err)
		defer s.Close()

		var descriptions []string
		for {
			record, _, err := s.Next()
			if err == io.EOF {
				break
			}
			require.NoError(t, err)
			descriptions = append(descriptions, record[1])
		}
		assert.Equal(t, []string{"COFFEE", "DINNER"}, descriptions)
	})
}
