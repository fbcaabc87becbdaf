package extractor

import (
	"strings"
	"unicode/utf8"
)

// decodeText reads data as UTF-8 and drops invalid byte sequences.
func decodeText(data []byte) string {
	if utf8.Valid(data) {
		return string(data)
	}
	return strings.ToValidUTF8(string(data), "")
}
