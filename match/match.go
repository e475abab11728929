// Package match resolves free-text attention names against office rosters.
// Agents type whatever they want into the attention field, so lookups go
// through aggressive normalization and a token-set fuzzy score with a high
// acceptance threshold. Rosters are tried in priority order and a keyword rule
// table catches the channels no roster covers.
package match

import (
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"telcoetl/normalize"
)

// DefaultThreshold is the minimum token-set score for a roster hit. Below it
// the matcher falls through to the next tier rather than guess.
const DefaultThreshold = 95

var stripMarks = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// NormalizeKey canonicalizes a name for matching: diacritics stripped,
// lowercased, punctuation replaced with spaces, whitespace collapsed.
// "José Pérez-González" and "jose perez gonzalez" map to the same key.
func NormalizeKey(s string) string {
	flat, _, err := transform.String(stripMarks, s)
	if err != nil {
		flat = s
	}
	var b strings.Builder
	b.Grow(len(flat))
	for _, r := range strings.ToLower(flat) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		} else {
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// Roster maps normalized person keys to their office.
type Roster struct {
	Name    string
	offices map[string]string
	keys    []string
}

// NewRoster builds a roster from key/office pairs, normalizing keys. Blank
// offices are dropped. Keys are kept sorted so lookups are deterministic.
func NewRoster(name string, entries map[string]string) Roster {
	r := Roster{Name: name, offices: make(map[string]string, len(entries))}
	for key, office := range entries {
		office = strings.TrimSpace(office)
		if office == "" {
			continue
		}
		k := NormalizeKey(key)
		if k == "" {
			continue
		}
		r.offices[k] = office
	}
	r.keys = make([]string, 0, len(r.offices))
	for k := range r.offices {
		r.keys = append(r.keys, k)
	}
	sort.Strings(r.keys)
	return r
}

// RosterFromRecords builds a roster from a snapshot, reading the name and
// office columns of each record.
func RosterFromRecords(name string, recs []normalize.Record, nameCol, officeCol string) Roster {
	entries := make(map[string]string, len(recs))
	for _, rec := range recs {
		entries[rec[nameCol].Str()] = rec[officeCol].Str()
	}
	return NewRoster(name, entries)
}

// Len returns the number of usable roster entries.
func (r Roster) Len() int { return len(r.keys) }

// lookup scans the roster for the best key above the threshold. Ties on score
// break toward the longest key, which prefers the most specific full name.
func (r Roster) lookup(query string, threshold int) (office string, ok bool) {
	bestScore, bestKey := 0, ""
	for _, key := range r.keys {
		s := TokenSetRatio(query, key)
		if s < threshold {
			continue
		}
		if s > bestScore || (s == bestScore && len(key) > len(bestKey)) {
			bestScore, bestKey = s, key
		}
	}
	if bestKey == "" {
		return "", false
	}
	return r.offices[bestKey], true
}

// KeywordRule maps substring triggers in the normalized query to a channel
// label. Rules fire in order.
type KeywordRule struct {
	Terms []string
	Label string
}

// DefaultKeywordRules covers the attention channels no roster lists.
func DefaultKeywordRules() []KeywordRule {
	return []KeywordRule{
		{Terms: []string{"intercom", "inversiones", "soluciones", "tecnologia", "agente", "comercializadora", "tromp"}, Label: "ALIADO / AGENTE"},
		{Terms: []string{"calle"}, Label: "FUERZA DE VENTA EXTERNA"},
		{Terms: []string{"televentas", "call center"}, Label: "TELEVENTAS / CALL CENTER"},
	}
}

// Matcher resolves queries against ordered rosters with a keyword fallback.
// Results are memoized per distinct normalized query, so repeated attention
// names cost one scan.
type Matcher struct {
	// Threshold overrides DefaultThreshold when positive.
	Threshold int

	rosters []Roster
	rules   []KeywordRule
	memo    map[string]string
}

// NewMatcher builds a matcher. Rosters are consulted in the order given; the
// first roster with a hit wins.
func NewMatcher(rosters []Roster, rules []KeywordRule) *Matcher {
	return &Matcher{Threshold: DefaultThreshold, rosters: rosters, rules: rules, memo: make(map[string]string)}
}

// Match resolves one raw query to an office or channel label. The empty
// string means no tier produced an answer. Queries normalizing to two
// characters or fewer are never matched, they are noise.
func (m *Matcher) Match(raw string) string {
	query := NormalizeKey(raw)
	if len(query) <= 2 {
		return ""
	}
	if office, ok := m.memo[query]; ok {
		return office
	}
	office := m.resolve(query)
	m.memo[query] = office
	return office
}

func (m *Matcher) resolve(query string) string {
	threshold := m.Threshold
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	for _, r := range m.rosters {
		if office, ok := r.lookup(query, threshold); ok {
			return office
		}
	}
	for _, rule := range m.rules {
		for _, term := range rule.Terms {
			if strings.Contains(query, term) {
				return rule.Label
			}
		}
	}
	return ""
}

// Enrich fills the target column of every record from the query column,
// leaving the target null when nothing matched.
func (m *Matcher) Enrich(recs []normalize.Record, queryCol, targetCol string) {
	for _, rec := range recs {
		if office := m.Match(rec[queryCol].Str()); office != "" {
			rec[targetCol] = normalize.String(office)
		} else {
			rec[targetCol] = normalize.Null
		}
	}
}
