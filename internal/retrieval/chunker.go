package retrieval

import "strings"

const defaultChunkChars = 1200

// ChunkText splits document text into paragraph-aligned chunks. Paragraphs
// are merged until maxChars is reached; a single oversized paragraph is
// kept whole rather than split mid-sentence.
func ChunkText(text string, maxChars int) []string {
	if maxChars <= 0 {
		maxChars = defaultChunkChars
	}
	paras := splitParagraphs(text)
	if len(paras) == 0 {
		return nil
	}

	var chunks []string
	var cur strings.Builder
	for _, p := range paras {
		if cur.Len() > 0 && cur.Len()+len(p)+2 > maxChars {
			chunks = append(chunks, cur.String())
			cur.Reset()
		}
		if cur.Len() > 0 {
			cur.WriteString("\n\n")
		}
		cur.WriteString(p)
	}
	if cur.Len() > 0 {
		chunks = append(chunks, cur.String())
	}
	return chunks
}

func splitParagraphs(text string) []string {
	var out []string
	for _, p := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n\n") {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
