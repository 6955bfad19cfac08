// Package parser extracts raw records from CSV and XLSX statement files.
// It streams rows so large files never need to be fully materialized.
package parser

import (
	"bytes"
	"encoding/csv"

	"github.com/iius-rcox/ExpenseTrack-sub014/internal/domain/statement/sniffer"
)

// Format identifies the container format of an uploaded statement.
type Format int

const (
	FormatCSV Format = iota
	FormatXLSX
)

var xlsxMagic = []byte{0x50, 0x4B, 0x03, 0x04} // zip local file header

// DetectFormat sniffs the container format from magic bytes. Anything that
// is not a zip archive is treated as delimited text.
func DetectFormat(data []byte) Format {
	if bytes.HasPrefix(data, xlsxMagic) {
		return FormatXLSX
	}
	return FormatCSV
}

// RowStream yields data records after the header row. Next returns io.EOF
// when the file is exhausted.
type RowStream interface {
	Next() (record []string, lineNum int, err error)
	Close() error
}

type csvStream struct {
	reader  *csv.Reader
	lineNum int
}

// NewCSVStream opens a record stream over decoded CSV bytes, positioned on
// the first data row after skipLines metadata lines and the header row.
func NewCSVStream(data []byte, delimiter rune, skipLines int) (RowStream, error) {
	reader := csv.NewReader(bytes.NewReader(sniffer.DropLines(data, skipLines+1)))
	reader.Comma = delimiter
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1

	return &csvStream{reader: reader, lineNum: skipLines + 2}, nil // 1-indexed, after header
}

func (s *csvStream) Next() ([]string, int, error) {
	record, err := s.reader.Read()
	line := s.lineNum
	s.lineNum++
	if err != nil {
		return nil, line, err
	}
	return record, line, nil
}

func (s *csvStream) Close() error { return nil }
