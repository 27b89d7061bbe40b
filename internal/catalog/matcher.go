package catalog

import "strings"

// fuzzyThreshold is the minimum match ratio (spec.md §4.2: "Match iff
// ratio ≥ 70").
const fuzzyThreshold = 70

// punctuation characters stripped by fuzzy normalization, per spec.md §4.2.
const punctuation = "-/.,:;&+*()[]"

// normalize lowercases s, collapses whitespace, and removes punctuation,
// exactly as spec.md §4.2 requires before fuzzy comparison.
func normalize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	lastWasSpace := false
	for _, r := range s {
		switch {
		case r >= 'A' && r <= 'Z':
			b.WriteRune(r - 'A' + 'a')
			lastWasSpace = false
		case strings.ContainsRune(punctuation, r):
			// dropped entirely
		case r == ' ' || r == '\t' || r == '\n' || r == '\r':
			if !lastWasSpace && b.Len() > 0 {
				b.WriteByte(' ')
			}
			lastWasSpace = true
		default:
			b.WriteRune(r)
			lastWasSpace = false
		}
	}
	return strings.TrimRight(b.String(), " ")
}

// fuzzyRatio computes the match ratio of pattern against text as defined
// in spec.md §4.2: slide a window of length |P| over T; for each window
// position count positions where T[i] equals P[i] or either of its two
// neighbours in P (with sentinel zero bytes at both ends of P); take the
// maximum and compute (100*max)/|P|.
//
// Returns 0 (no match possible) if |T| < 2 or |T| < |P| — fuzzy matching
// is intentionally asymmetric here; checkSim compensates by retrying with
// the arguments swapped.
func fuzzyRatio(pattern, text string) int {
	p := normalize(pattern)
	t := normalize(text)

	n := len(p)
	if n == 0 || len(t) < 2 || len(t) < n {
		return 0
	}

	best := 0
	for start := 0; start+n <= len(t); start++ {
		count := 0
		for i := 0; i < n; i++ {
			c := t[start+i]
			match := c == p[i]
			if !match && i > 0 && c == p[i-1] {
				match = true
			}
			if !match && i < n-1 && c == p[i+1] {
				match = true
			}
			if match {
				count++
			}
		}
		if count > best {
			best = count
		}
	}
	return (100 * best) / n
}

// fuzzyMatch reports whether pattern fuzzy-matches text, per fuzzyRatio.
func fuzzyMatch(pattern, text string) bool {
	return fuzzyRatio(pattern, text) >= fuzzyThreshold
}

// checkSim reports whether a and b are "similar" under fuzzy matching,
// trying both argument orders so the result is symmetric (spec.md §8
// invariant 5: checkSim(a, b) == checkSim(b, a) for all strings).
func checkSim(a, b string) bool {
	return fuzzyMatch(a, b) || fuzzyMatch(b, a)
}

// exactMatch reports case-insensitive string equality after lowercasing —
// spec.md §4.2 exact match.
func exactMatch(pattern, text string) bool {
	return strings.EqualFold(pattern, text)
}

// CheckSim exports checkSim for callers outside the package (the
// scheduler's artist anti-repeat check, spec.md §4.3).
func CheckSim(a, b string) bool {
	return checkSim(a, b)
}
