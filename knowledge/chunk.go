package knowledge

import (
	"strings"
	"unicode/utf8"
)

// DefaultChunkSize is the default maximum chunk length in runes.
const DefaultChunkSize = 3000

// Chunk splits text into chunks of at most size runes, packing whole
// paragraphs where possible and hard-splitting paragraphs that are longer
// than size. Blank input yields a single empty chunk so that every document
// owns at least one record.
func Chunk(text string, size int) []string {
	text = strings.TrimSpace(text)
	if size <= 0 || utf8.RuneCountInString(text) <= size {
		return []string{text}
	}

	var (
		chunks  []string
		current strings.Builder
		curLen  int
	)

	flush := func() {
		if curLen > 0 {
			chunks = append(chunks, current.String())
			current.Reset()
			curLen = 0
		}
	}

	for _, para := range strings.Split(text, "\n\n") {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		n := utf8.RuneCountInString(para)

		if n > size {
			flush()
			runes := []rune(para)
			for start := 0; start < len(runes); start += size {
				end := min(start+size, len(runes))
				chunks = append(chunks, string(runes[start:end]))
			}
			continue
		}

		sep := 0
		if curLen > 0 {
			sep = 2
		}
		if curLen+sep+n > size {
			flush()
			sep = 0
		}
		if sep > 0 {
			current.WriteString("\n\n")
		}
		current.WriteString(para)
		curLen += sep + n
	}
	flush()

	return chunks
}
