package noteintel

import (
	"strings"
	"unicode/utf8"
)

const (
	// ChunkSize is the maximum length, in characters, of a chunk before overlap is added.
	ChunkSize = 800
	// ChunkOverlap is the number of trailing characters of a chunk repeated at
	// the start of the next one.
	ChunkOverlap = 120
)

// ChunkContent splits note content into overlapping chunks for embedding.
// Lines are packed into chunks of at most ChunkSize characters; lines longer
// than that are hard-split with overlap. Every chunk after the first is
// prefixed with the last ChunkOverlap characters of its predecessor.
func ChunkContent(content string) []string {
	normalized := strings.TrimSpace(strings.ReplaceAll(content, "\r\n", "\n"))
	if normalized == "" {
		return nil
	}

	var chunks []string
	var current string
	flush := func() {
		if c := strings.TrimSpace(current); c != "" {
			chunks = append(chunks, c)
		}
		current = ""
	}

	for _, line := range strings.Split(normalized, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		candidate := line
		if current != "" {
			candidate = current + "\n" + line
		}
		if runeLen(candidate) <= ChunkSize {
			current = candidate
			continue
		}

		flush()
		if runeLen(line) <= ChunkSize {
			current = line
			continue
		}

		runes := []rune(line)
		for start := 0; start < len(runes); start += ChunkSize - ChunkOverlap {
			end := start + ChunkSize
			if end > len(runes) {
				end = len(runes)
			}
			if part := strings.TrimSpace(string(runes[start:end])); part != "" {
				chunks = append(chunks, part)
			}
		}
	}
	flush()

	out := make([]string, 0, len(chunks))
	for i, chunk := range chunks {
		if i == 0 {
			out = append(out, chunk)
			continue
		}
		merged := tail(chunks[i-1], ChunkOverlap) + "\n" + chunk
		merged = strings.TrimSpace(head(merged, ChunkSize+ChunkOverlap))
		if merged != "" {
			out = append(out, merged)
		}
	}
	return out
}

// FixedChunks splits content into consecutive pieces of size characters without overlap.
func FixedChunks(content string, size int) []string {
	runes := []rune(content)
	var out []string
	for start := 0; start < len(runes); start += size {
		end := start + size
		if end > len(runes) {
			end = len(runes)
		}
		out = append(out, string(runes[start:end]))
	}
	return out
}

func runeLen(s string) int {
	return utf8.RuneCountInString(s)
}

func head(s string, n int) string {
	if runeLen(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

func tail(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[len(runes)-n:])
}
