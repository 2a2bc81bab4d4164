package pipeline

import "strings"

// DefaultPreprocess trims the text and collapses runs of whitespace so
// formatting differences don't defeat the cache key.
func DefaultPreprocess(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

var transitionPrefixes = []string{
	"CUT TO", "FADE IN", "FADE OUT", "FADE TO", "DISSOLVE TO",
	"SMASH CUT", "MATCH CUT", "WIPE TO",
}

// ScreenplayPreprocess normalizes screenplay formatting before embedding:
// scene headings keep their INT./EXT. prefix but lose shouty casing,
// transition lines carry no meaning and are dropped, and all-caps character
// cues are folded to title case so they embed like names, not acronyms.
func ScreenplayPreprocess(text string) string {
	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		if isTransition(trimmed) {
			continue
		}
		if isSceneHeading(trimmed) {
			out = append(out, normalizeSceneHeading(trimmed))
			continue
		}
		if isCharacterCue(trimmed) {
			out = append(out, titleCase(trimmed))
			continue
		}
		out = append(out, trimmed)
	}
	return DefaultPreprocess(strings.Join(out, " "))
}

func isSceneHeading(line string) bool {
	upper := strings.ToUpper(line)
	return strings.HasPrefix(upper, "INT.") || strings.HasPrefix(upper, "EXT.") ||
		strings.HasPrefix(upper, "INT/EXT") || strings.HasPrefix(upper, "I/E.")
}

func normalizeSceneHeading(line string) string {
	parts := strings.SplitN(line, ".", 2)
	if len(parts) != 2 {
		return line
	}
	return strings.ToUpper(parts[0]) + ". " + titleCase(strings.TrimSpace(parts[1]))
}

func isTransition(line string) bool {
	upper := strings.ToUpper(strings.TrimSuffix(strings.TrimSuffix(line, ":"), "."))
	for _, prefix := range transitionPrefixes {
		if upper == prefix {
			return true
		}
	}
	return false
}

// isCharacterCue matches the all-caps speaker line above dialogue. Short
// length keeps action lines written in caps for emphasis out of it.
func isCharacterCue(line string) bool {
	if len(line) > 40 || line != strings.ToUpper(line) {
		return false
	}
	for _, r := range line {
		if r >= 'a' && r <= 'z' {
			return false
		}
	}
	hasLetter := false
	for _, r := range line {
		if r >= 'A' && r <= 'Z' {
			hasLetter = true
			break
		}
	}
	return hasLetter
}

func titleCase(s string) string {
	words := strings.Fields(strings.ToLower(s))
	for i, w := range words {
		if w == "" {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
