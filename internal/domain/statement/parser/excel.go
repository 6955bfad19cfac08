package parser

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/iius-rcox/ExpenseTrack-sub014/internal/domain/statement/sniffer"
)

// DetectXLSXConfig reads headers and sample rows from the first data sheet
// of an XLSX workbook and hashes them the same way the CSV sniffer does, so
// a layout produces the same fingerprint regardless of container format.
func DetectXLSXConfig(data []byte) (*sniffer.FileConfig, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()

	sheet := findDataSheet(f)
	if sheet == "" {
		return nil, sniffer.ErrNoHeadersFound
	}

	rows, err := f.Rows(sheet)
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %s: %w", sheet, err)
	}
	defer rows.Close()

	var headers []string
	var samples [][]string
	skipLines := 0

	for rows.Next() {
		cells, err := rows.Columns()
		if err != nil {
			return nil, err
		}
		if headers == nil {
			if isEmptyRow(cells) {
				skipLines++
				continue
			}
			for i, c := range cells {
				cells[i] = strings.TrimSpace(c)
			}
			headers = sniffer.DisambiguateHeaders(cells)
			continue
		}
		if !isEmptyRow(cells) {
			samples = append(samples, cells)
			if len(samples) >= 5 {
				break
			}
		}
	}

	if headers == nil {
		return nil, sniffer.ErrNoHeadersFound
	}

	return &sniffer.FileConfig{
		SkipLines:  skipLines,
		Headers:    headers,
		HeaderHash: sniffer.HashHeaders(headers),
		SampleRows: samples,
	}, nil
}

type xlsxStream struct {
	file    *excelize.File
	rows    *excelize.Rows
	lineNum int
	skip    int
}

// NewXLSXStream opens a record stream over the first data sheet, positioned
// after skipLines leading blank rows and the header row.
func NewXLSXStream(data []byte, skipLines int) (RowStream, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}

	sheet := findDataSheet(f)
	if sheet == "" {
		f.Close()
		return nil, sniffer.ErrNoHeadersFound
	}

	rows, err := f.Rows(sheet)
	if err != nil {
		f.Close()
		return nil, err
	}

	s := &xlsxStream{file: f, rows: rows, lineNum: skipLines + 2}
	// Consume blank leading rows and the header row.
	for i := 0; i <= skipLines; i++ {
		if !rows.Next() {
			break
		}
	}
	return s, nil
}

func (s *xlsxStream) Next() ([]string, int, error) {
	for s.rows.Next() {
		cells, err := s.rows.Columns()
		line := s.lineNum
		s.lineNum++
		if err != nil {
			return nil, line, err
		}
		if isEmptyRow(cells) {
			continue
		}
		return cells, line, nil
	}
	return nil, s.lineNum, io.EOF
}

func (s *xlsxStream) Close() error {
	s.rows.Close()
	return s.file.Close()
}

// findDataSheet prefers a sheet named for transactions, falling back to the
// first sheet in the workbook.
func findDataSheet(f *excelize.File) string {
	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return ""
	}
	for _, name := range sheets {
		lower := strings.ToLower(name)
		if strings.Contains(lower, "transaction") || strings.Contains(lower, "statement") {
			return name
		}
	}
	return sheets[0]
}

func isEmptyRow(cells []string) bool {
	for _, c := range cells {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
