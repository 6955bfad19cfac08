// Package sniffer provides automatic detection of CSV/TSV statement layouts.
// It normalizes file encodings, locates delimiters and header rows, and
// hashes normalized header sets for fingerprint lookups.
package sniffer

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Common statement header keywords (multi-language)
var headerKeywords = []string{
	// English
	"date", "post date", "description", "amount", "debit", "credit", "balance",
	"category", "merchant", "memo", "reference",
	// Portuguese
	"data mov", "descrição", "descricao", "débito", "debito", "crédito", "credito",
	"data valor", "saldo", "categoria",
	// Spanish
	"fecha", "descripción", "descripcion", "importe", "cargo", "abono",
}

// FileConfig holds the detected configuration for a statement file.
type FileConfig struct {
	Delimiter  rune       // The field delimiter (';', ',', '\t', '|')
	SkipLines  int        // Number of metadata lines before headers
	Headers    []string   // Disambiguated header names, in file order
	HeaderHash string     // Order-independent SHA-256 of normalized headers
	SampleRows [][]string // First few data rows for preview
}

var (
	ErrEmptyFile           = errors.New("file is empty")
	ErrNoHeadersFound      = errors.New("could not find data headers")
	ErrInvalidDelimiter    = errors.New("could not detect valid delimiter")
	ErrUnsupportedEncoding = errors.New("file encoding is not UTF-8 or Latin-1")
)

const maxSampleRows = 5

// DetectConfig analyzes a decoded statement file and returns its configuration.
func DetectConfig(data []byte) (*FileConfig, error) {
	if len(data) == 0 {
		return nil, ErrEmptyFile
	}

	lines := strings.Split(string(data), "\n")

	delimiter, skipLines, err := findHeaderRow(lines)
	if err != nil {
		return nil, err
	}

	headerLine := cleanLine(lines[skipLines], skipLines == 0)
	reader := csv.NewReader(strings.NewReader(headerLine))
	reader.Comma = delimiter
	reader.LazyQuotes = true

	headers, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to parse header row: %w", err)
	}

	for i, h := range headers {
		headers[i] = strings.TrimSpace(h)
	}
	headers = DisambiguateHeaders(headers)

	return &FileConfig{
		Delimiter:  delimiter,
		SkipLines:  skipLines,
		Headers:    headers,
		HeaderHash: HashHeaders(headers),
		SampleRows: getSampleRows(data, delimiter, skipLines+1, maxSampleRows),
	}, nil
}

// findHeaderRow locates the header row and its delimiter.
func findHeaderRow(lines []string) (rune, int, error) {
	// Best candidate among lines with no keywords (fallback)
	fallbackIndex := -1
	fallbackDelimiter := rune(0)
	fallbackCount := 0

	// Best candidate among lines WITH keywords (preferred)
	keywordIndex := -1
	keywordDelimiter := rune(0)
	keywordCount := 0
	keywordBest := 0

	for i, line := range lines {
		if i > 20 { // Don't search more than 20 lines
			break
		}

		line = cleanLine(line, i == 0)
		if line == "" {
			continue
		}
		lineLower := strings.ToLower(line)

		delimiter, count := detectDelimiter(line)
		if count < 1 {
			continue
		}

		keywordMatches := 0
		for _, kw := range headerKeywords {
			if strings.Contains(lineLower, kw) {
				keywordMatches++
			}
		}

		if keywordMatches > 0 {
			// Real headers have many columns; metadata lines have few.
			score := count*10 + keywordMatches
			if keywordIndex == -1 || score > keywordBest {
				keywordBest = score
				keywordCount = count
				keywordDelimiter = delimiter
				keywordIndex = i
			}
		} else if count > fallbackCount {
			fallbackCount = count
			fallbackDelimiter = delimiter
			fallbackIndex = i
		}
	}

	if keywordIndex >= 0 && keywordCount >= 1 {
		return keywordDelimiter, keywordIndex, nil
	}
	if fallbackCount >= 2 {
		return fallbackDelimiter, fallbackIndex, nil
	}
	return 0, 0, ErrNoHeadersFound
}

func cleanLine(line string, firstLine bool) string {
	line = strings.TrimRight(line, "\r")
	if firstLine {
		line = strings.TrimPrefix(line, "\ufeff")
	}
	return strings.TrimSpace(line)
}

func detectDelimiter(line string) (rune, int) {
	delimiters := []rune{';', '\t', ',', '|'}
	bestDelimiter := rune(0)
	bestCount := 0
	for _, d := range delimiters {
		count := strings.Count(line, string(d))
		if count > bestCount {
			bestCount = count
			bestDelimiter = d
		}
	}
	return bestDelimiter, bestCount
}

// getSampleRows returns the first N data rows after the header.
func getSampleRows(data []byte, delimiter rune, startLine, maxRows int) [][]string {
	reader := csv.NewReader(bytes.NewReader(DropLines(data, startLine)))
	reader.Comma = delimiter
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1

	var rows [][]string
	for len(rows) < maxRows {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			continue
		}
		rows = append(rows, record)
	}
	return rows
}

// DropLines discards the first n physical lines. The csv reader skips blank
// lines silently, so record counting drifts on files with blank preamble
// lines; skipping by newline keeps header offsets exact.
func DropLines(data []byte, n int) []byte {
	for ; n > 0; n-- {
		i := bytes.IndexByte(data, '\n')
		if i < 0 {
			return nil
		}
		data = data[i+1:]
	}
	return data
}
