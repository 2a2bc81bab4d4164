package batch

import "strings"

// ChunkText splits text over the configured character limit into overlapping
// pieces. Within each window it prefers to break at the last sentence-ending
// punctuation or blank line in the back half; failing both it cuts hard at
// the limit. Consecutive chunks overlap by the configured amount.
func (p *Processor) ChunkText(text string) []string {
	return chunkText(text, p.cfg.ChunkSize, p.cfg.ChunkOverlap)
}

func chunkText(text string, size, overlap int) []string {
	runes := []rune(text)
	if len(runes) <= size {
		return []string{text}
	}
	if overlap >= size {
		overlap = size / 10
	}
	var chunks []string
	start := 0
	for start < len(runes) {
		end := start + size
		if end >= len(runes) {
			chunks = append(chunks, string(runes[start:]))
			break
		}
		cut := findBreak(runes[start:end])
		if cut > 0 {
			end = start + cut
		}
		chunks = append(chunks, string(runes[start:end]))
		next := end - overlap
		if next <= start {
			next = end
		}
		start = next
	}
	return chunks
}

// findBreak returns the rune offset just past the best break point in the
// back half of the window, or 0 when no boundary exists there.
func findBreak(window []rune) int {
	half := len(window) / 2
	for i := len(window) - 1; i >= half; i-- {
		switch window[i] {
		case '.', '!', '?':
			return i + 1
		}
	}
	// No sentence end in the back half; try a blank line.
	back := string(window[half:])
	if idx := strings.LastIndex(back, "\n\n"); idx >= 0 {
		return half + len([]rune(back[:idx])) + 2
	}
	return 0
}
