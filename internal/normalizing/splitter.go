package normalizing

import (
	"strings"
	"unicode"

	"scribe/internal/queue"
)

// SplitUnits bounds every segment's content to maxLen runes, splitting long
// segments at sentence boundaries where possible, then at word boundaries,
// and only as a last resort mid-word. Split pieces get timestamps
// proportional to their rune offsets within the original segment.
func SplitUnits(units []queue.InferredUnit, maxLen int) []queue.InferredUnit {
	if maxLen <= 0 {
		return units
	}
	out := make([]queue.InferredUnit, 0, len(units))
	for _, unit := range units {
		out = append(out, splitUnit(unit, maxLen)...)
	}
	return out
}

func splitUnit(unit queue.InferredUnit, maxLen int) []queue.InferredUnit {
	runes := []rune(unit.Content)
	total := len(runes)
	if total <= maxLen {
		return []queue.InferredUnit{unit}
	}

	duration := unit.EndSeconds - unit.StartSeconds
	var pieces []queue.InferredUnit
	offset := 0
	for offset < total {
		remaining := total - offset
		if remaining <= maxLen {
			pieces = append(pieces, makePiece(unit, runes, offset, total, total, duration))
			break
		}
		cut := breakpoint(runes[offset:offset+maxLen]) + offset
		pieces = append(pieces, makePiece(unit, runes, offset, cut, total, duration))
		offset = cut
		// Skip the whitespace the break landed on.
		for offset < total && unicode.IsSpace(runes[offset]) {
			offset++
		}
	}
	return pieces
}

// breakpoint finds the best split position within a window: after the last
// sentence-ending punctuation, else at the last space, else at the window end.
func breakpoint(window []rune) int {
	lastSentence := -1
	lastSpace := -1
	for i, r := range window {
		switch {
		case r == '.' || r == '!' || r == '?':
			// Only counts as a sentence end when followed by space or window end.
			if i+1 >= len(window) || unicode.IsSpace(window[i+1]) {
				lastSentence = i + 1
			}
		case unicode.IsSpace(r):
			lastSpace = i
		}
	}
	if lastSentence > 0 {
		return lastSentence
	}
	if lastSpace > 0 {
		return lastSpace
	}
	return len(window)
}

func makePiece(unit queue.InferredUnit, runes []rune, from, to, total int, duration float64) queue.InferredUnit {
	content := strings.TrimSpace(string(runes[from:to]))
	start := unit.StartSeconds
	end := unit.EndSeconds
	if total > 0 && duration > 0 {
		start = unit.StartSeconds + duration*float64(from)/float64(total)
		end = unit.StartSeconds + duration*float64(to)/float64(total)
	}
	return queue.InferredUnit{
		StartSeconds: start,
		EndSeconds:   end,
		Content:      content,
		Confidence:   unit.Confidence,
	}
}
