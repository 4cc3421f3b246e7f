// Package chunker splits long text into size-bounded chunks so the
// summarizer can condense hierarchically instead of truncating.
package chunker

import (
	"strings"
	"unicode/utf8"
)

// Options configures chunking behavior. Sizes are in bytes.
type Options struct {
	MaxSize int
}

// Chunk splits text into chunks of at most opts.MaxSize bytes, preferring
// paragraph boundaries, then line boundaries. Text within the limit returns
// a single chunk. Empty input returns nil.
func Chunk(text string, opts Options) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if opts.MaxSize <= 0 || len(text) <= opts.MaxSize {
		return []string{text}
	}

	var chunks []string
	var current strings.Builder

	flush := func() {
		if current.Len() == 0 {
			return
		}
		chunks = append(chunks, strings.TrimSpace(current.String()))
		current.Reset()
	}

	for _, block := range splitBlocks(text, opts.MaxSize) {
		if current.Len() > 0 && current.Len()+len(block)+2 > opts.MaxSize {
			flush()
		}
		if current.Len() > 0 {
			current.WriteString("\n\n")
		}
		current.WriteString(block)
	}
	flush()

	return chunks
}

// splitBlocks splits on blank lines; blocks still over the limit are split
// on line boundaries, and single over-long lines are cut at the last rune
// boundary within the limit.
func splitBlocks(text string, maxSize int) []string {
	var out []string
	for _, para := range strings.Split(text, "\n\n") {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		if len(para) <= maxSize {
			out = append(out, para)
			continue
		}
		var buf strings.Builder
		for _, line := range strings.Split(para, "\n") {
			for len(line) > maxSize {
				cut := runeCut(line, maxSize)
				out = appendPart(out, &buf, line[:cut], maxSize)
				line = line[cut:]
			}
			out = appendPart(out, &buf, line, maxSize)
		}
		if buf.Len() > 0 {
			out = append(out, strings.TrimSpace(buf.String()))
		}
	}
	return out
}

// runeCut returns the largest cut point <= maxSize that does not split a
// rune. When maxSize lands inside the first rune, that rune is kept whole
// so the loop always advances.
func runeCut(line string, maxSize int) int {
	cut := maxSize
	for cut > 0 && !utf8.RuneStart(line[cut]) {
		cut--
	}
	if cut == 0 {
		_, cut = utf8.DecodeRuneInString(line)
	}
	return cut
}

func appendPart(out []string, buf *strings.Builder, part string, maxSize int) []string {
	if buf.Len() > 0 && buf.Len()+len(part)+1 > maxSize {
		out = append(out, strings.TrimSpace(buf.String()))
		buf.Reset()
	}
	if buf.Len() > 0 {
		buf.WriteString("\n")
	}
	buf.WriteString(part)
	return out
}
