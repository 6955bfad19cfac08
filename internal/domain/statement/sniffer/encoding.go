package sniffer

import (
	"bytes"
	"unicode/utf8"
)

// NormalizeEncoding decodes file bytes into UTF-8 text. UTF-8 (with BOM
// sniffing) is attempted first; invalid UTF-8 falls back to Latin-1, which
// covers the vast majority of legacy bank exports. Binary content (NUL
// bytes, as produced by UTF-16 exports) is rejected rather than mangled.
func NormalizeEncoding(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, ErrEmptyFile
	}
	data = stripUTF8BOM(data)
	if bytes.IndexByte(data, 0x00) >= 0 {
		return nil, ErrUnsupportedEncoding
	}
	if utf8.Valid(data) {
		return data, nil
	}
	return decodeLatin1(data), nil
}

func stripUTF8BOM(data []byte) []byte {
	if len(data) >= 3 && data[0] == 0xEF && data[1] == 0xBB && data[2] == 0xBF {
		return data[3:]
	}
	return data
}

func decodeLatin1(data []byte) []byte {
	runes := make([]rune, len(data))
	for i, b := range data {
		runes[i] = rune(b)
	}
	return []byte(string(runes))
}
