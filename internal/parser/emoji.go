package parser

import (
	"unicode"
	"unicode/utf8"
)

const (
	zeroWidthJoiner   = 0x200D
	variationSelector = 0xFE0F
	keycap            = 0x20E3
)

func isEmojiBase(r rune) bool {
	switch {
	case r >= 0x1F000 && r <= 0x1FAFF:
		return true
	case r >= 0x2600 && r <= 0x27BF:
		return true
	case r >= 0x2B00 && r <= 0x2BFF:
		return true
	case r == 0x203C || r == 0x2049 || r == 0x2122 || r == 0x2139:
		return true
	case r >= 0x2190 && r <= 0x21FF:
		return unicode.Is(unicode.So, r)
	case r >= 0x2300 && r <= 0x23FF:
		return true
	}
	return false
}

func isRegionalIndicator(r rune) bool {
	return r >= 0x1F1E6 && r <= 0x1F1FF
}

func isEmojiModifier(r rune) bool {
	return r == variationSelector || r == keycap || (r >= 0x1F3FB && r <= 0x1F3FF) || (r >= 0xE0020 && r <= 0xE007F)
}

// FindEmoji returns the first emoji cluster in text and its byte span.
// Clusters include modifiers, variation selectors and ZWJ sequences.
func FindEmoji(text string) (emoji string, start, end int, ok bool) {
	for i := 0; i < len(text); {
		r, size := utf8.DecodeRuneInString(text[i:])
		if !isEmojiBase(r) {
			i += size
			continue
		}
		j := i + size
		if isRegionalIndicator(r) {
			if next, nsize := utf8.DecodeRuneInString(text[j:]); isRegionalIndicator(next) {
				j += nsize
			}
		}
		for j < len(text) {
			next, nsize := utf8.DecodeRuneInString(text[j:])
			if isEmojiModifier(next) {
				j += nsize
				continue
			}
			if next == zeroWidthJoiner {
				after, asize := utf8.DecodeRuneInString(text[j+nsize:])
				if j+nsize < len(text) && isEmojiBase(after) {
					j += nsize + asize
					continue
				}
			}
			break
		}
		return text[i:j], i, j, true
	}
	return "", 0, 0, false
}

// IsEmoji reports whether s is exactly one emoji cluster.
func IsEmoji(s string) bool {
	e, start, end, ok := FindEmoji(s)
	return ok && start == 0 && end == len(s) && e != ""
}

// CanonicalEmoji strips variation selectors so "❤️" and "❤" compare equal.
func CanonicalEmoji(s string) string {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		if r == variationSelector {
			continue
		}
		out = append(out, r)
	}
	return string(out)
}
