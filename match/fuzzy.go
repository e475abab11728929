package match

import (
	"sort"
	"strings"
)

// levenshtein computes the edit distance between two strings over runes.
func levenshtein(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 {
		return len(rb)
	}
	if len(rb) == 0 {
		return len(ra)
	}
	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			curr[j] = min3(curr[j-1]+1, prev[j]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(rb)]
}

func min3(a, b, c int) int {
	if b < a {
		a = b
	}
	if c < a {
		a = c
	}
	return a
}

// ratio scores two strings 0-100 from their edit distance.
func ratio(a, b string) int {
	if a == b {
		return 100
	}
	total := len([]rune(a)) + len([]rune(b))
	if total == 0 {
		return 100
	}
	dist := levenshtein(a, b)
	score := (total - 2*dist) * 100 / total
	if score < 0 {
		return 0
	}
	return score
}

// TokenSetRatio scores two strings 0-100 ignoring token order and duplicate
// tokens. The shared-token core is compared against each side extended with
// its own remainder, and the best of the three comparisons wins, so a query
// that is a token subset of the key still scores 100.
func TokenSetRatio(a, b string) int {
	ta, tb := tokenSet(a), tokenSet(b)
	var shared, onlyA, onlyB []string
	for t := range ta {
		if tb[t] {
			shared = append(shared, t)
		} else {
			onlyA = append(onlyA, t)
		}
	}
	for t := range tb {
		if !ta[t] {
			onlyB = append(onlyB, t)
		}
	}
	sort.Strings(shared)
	sort.Strings(onlyA)
	sort.Strings(onlyB)

	core := strings.Join(shared, " ")
	extA := strings.TrimSpace(core + " " + strings.Join(onlyA, " "))
	extB := strings.TrimSpace(core + " " + strings.Join(onlyB, " "))

	best := ratio(core, extA)
	if r := ratio(core, extB); r > best {
		best = r
	}
	if r := ratio(extA, extB); r > best {
		best = r
	}
	return best
}

func tokenSet(s string) map[string]bool {
	set := make(map[string]bool)
	for _, t := range strings.Fields(s) {
		set[t] = true
	}
	return set
}
