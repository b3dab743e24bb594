package rag

import (
	"strings"
	"unicode"
)

// splitWindows cuts text into windows of size words that overlap by overlap
// words. The last window may be shorter.
func splitWindows(text string, size, overlap int) []string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}
	if overlap >= size {
		overlap = size / 4
	}
	step := size - overlap

	var out []string
	for start := 0; start < len(words); start += step {
		end := start + size
		if end > len(words) {
			end = len(words)
		}
		out = append(out, strings.Join(words[start:end], " "))
		if end == len(words) {
			break
		}
	}
	return out
}

// terms lowercases s and splits it on anything that is not a letter or digit.
// Terms shorter than three runes carry little signal and are dropped.
func terms(s string) []string {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	out := fields[:0]
	for _, f := range fields {
		if len([]rune(f)) >= 3 {
			out = append(out, f)
		}
	}
	return out
}
