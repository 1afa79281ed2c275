package reconcile

// digitMisreads maps letters that handwriting OCR routinely confuses for
// digits. Applied only to short fragments that become fully numeric after
// substitution.
var digitMisreads = map[rune]rune{
	'O': '0', 'o': '0', 'D': '0', 'Q': '0',
	'I': '1', 'l': '1', 'i': '1', '|': '1',
	'Z': '2', 'z': '2',
	'S': '5', 's': '5',
	'G': '6', 'b': '6',
	'B': '8',
	'g': '9', 'q': '9',
}

const maxMisreadLen = 3

// CorrectMisreads tries to recover a numeric value from a fragment the OCR
// read as letters. It reports the corrected text and whether a correction
// applied; fragments longer than three runes or containing characters with
// no digit counterpart are left alone.
func CorrectMisreads(text string) (string, bool) {
	runes := []rune(text)
	if len(runes) == 0 || len(runes) > maxMisreadLen {
		return text, false
	}
	corrected := false
	out := make([]rune, len(runes))
	for i, r := range runes {
		if r >= '0' && r <= '9' {
			out[i] = r
			continue
		}
		d, ok := digitMisreads[r]
		if !ok {
			return text, false
		}
		out[i] = d
		corrected = true
	}
	if !corrected {
		return text, false
	}
	return string(out), true
}
