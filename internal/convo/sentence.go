package convo

import "unicode/utf8"

// sentenceDelimiters is the multilingual delimiter set named in the
// glossary ("，。！？；、,.!?;") — wider than the donor's English-only `.!?`
// splitAtSentence, since this server must split Chinese and English text
// alike.
var sentenceDelimiters = map[rune]bool{
	'，': true, '。': true, '！': true, '？': true, '；': true, '、': true,
	',': true, '.': true, '!': true, '?': true, ';': true,
}

// splitSentences repeatedly scans buf from the start for the first
// delimiter rune, emitting everything up to and including it as one
// sentence and retaining the remainder, per §4.3's "scan once from the
// start for the first delimiter" rule. It returns the emitted sentences
// (possibly none) and the leftover buffer.
func splitSentences(buf string) (sentences []string, remainder string) {
	remainder = buf
	for {
		idx := firstDelimiterByteIndex(remainder)
		if idx < 0 {
			return sentences, remainder
		}
		sentences = append(sentences, remainder[:idx])
		remainder = remainder[idx:]
	}
}

// firstDelimiterByteIndex returns the byte offset just past the first
// delimiter rune in s, or -1 if none is present.
func firstDelimiterByteIndex(s string) int {
	for i, r := range s {
		if sentenceDelimiters[r] {
			return i + utf8.RuneLen(r)
		}
	}
	return -1
}
