package ingest

import "strings"

// SplitText splits document text into overlapping windows.
// Windows advance by size-overlap runes so neighbouring chunks share
// context. Trailing fragments of minLen runes or fewer are dropped: they
// carry too little signal to embed or rank.
func SplitText(text string, size, overlap, minLen int) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	// Work in runes so a UTF-8 sequence is never cut in half.
	r := []rune(text)

	if size <= 0 {
		size = 1000
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= size {
		overlap = size / 10
	}
	step := size - overlap

	out := make([]string, 0, (len(r)/step)+1)
	for start := 0; start < len(r); start += step {
		end := start + size
		if end > len(r) {
			end = len(r)
		}

		chunk := strings.TrimSpace(string(r[start:end]))
		if len([]rune(chunk)) > minLen {
			out = append(out, chunk)
		}

		if end == len(r) {
			break
		}
	}

	return out
}
