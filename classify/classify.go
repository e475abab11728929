// Package classify assigns business labels to normalized records through
// ordered rule chains. The first matching rule wins; a chain always falls
// through to its default label, so classification is total.
package classify

import (
	"log"
	"regexp"
	"strings"

	"telcoetl/normalize"
)

// Rule pairs a predicate with the label applied when it matches.
type Rule struct {
	Match func(normalize.Record) bool
	Label string
}

// Chain is an ordered rule list with a terminal default.
type Chain struct {
	Rules   []Rule
	Default string
}

// Classify returns the label of the first matching rule, or the default.
func (c Chain) Classify(rec normalize.Record) string {
	for _, r := range c.Rules {
		if r.Match(rec) {
			return r.Label
		}
	}
	return c.Default
}

// Apply classifies every record into the target column.
func (c Chain) Apply(recs []normalize.Record, target string) {
	for _, rec := range recs {
		rec[target] = normalize.String(c.Classify(rec))
	}
}

func upperField(rec normalize.Record, field string) string {
	return strings.ToUpper(strings.TrimSpace(rec[field].Str()))
}

// FieldContainsAny matches when the field contains any of the terms,
// case-insensitively.
func FieldContainsAny(field string, terms ...string) func(normalize.Record) bool {
	upper := make([]string, len(terms))
	for i, t := range terms {
		upper[i] = strings.ToUpper(t)
	}
	return func(rec normalize.Record) bool {
		v := upperField(rec, field)
		if v == "" {
			return false
		}
		for _, t := range upper {
			if strings.Contains(v, t) {
				return true
			}
		}
		return false
	}
}

// FieldInList matches when the field equals one of the allowlist entries,
// compared uppercase and trimmed.
func FieldInList(field string, allow []string) func(normalize.Record) bool {
	set := make(map[string]bool, len(allow))
	for _, a := range allow {
		set[strings.ToUpper(strings.TrimSpace(a))] = true
	}
	return func(rec normalize.Record) bool {
		return set[upperField(rec, field)]
	}
}

// FieldEquals matches on exact uppercase-trimmed equality.
func FieldEquals(field, want string) func(normalize.Record) bool {
	want = strings.ToUpper(want)
	return func(rec normalize.Record) bool {
		return upperField(rec, field) == want
	}
}

// Not inverts a predicate.
func Not(p func(normalize.Record) bool) func(normalize.Record) bool {
	return func(rec normalize.Record) bool { return !p(rec) }
}

// And requires every predicate to match.
func And(ps ...func(normalize.Record) bool) func(normalize.Record) bool {
	return func(rec normalize.Record) bool {
		for _, p := range ps {
			if !p(rec) {
				return false
			}
		}
		return true
	}
}

// TicketOwnership resolves which operational area owns a ticket, from most to
// least specific: known NOC users, then known NOC groups, then group text.
func TicketOwnership(userField, groupField string, nocUsers, nocGroups []string) Chain {
	return Chain{
		Rules: []Rule{
			{Match: FieldInList(userField, nocUsers), Label: "NOC"},
			{Match: FieldInList(groupField, nocGroups), Label: "NOC"},
			{Match: FieldContainsAny(groupField, "NOC"), Label: "NOC"},
			{Match: FieldContainsAny(groupField, "OPERACIONES"), Label: "OPERACIONES"},
		},
		Default: "MESA DE CONTROL",
	}
}

// CollectionsChannel resolves the payment channel from the register text.
func CollectionsChannel(registerField string) Chain {
	return Chain{
		Rules: []Rule{
			{Match: FieldContainsAny(registerField, "CALL", "PHONE"), Label: "TELEVENTAS / CALL CENTER"},
			{Match: FieldContainsAny(registerField, "OFI", "ASESOR"), Label: "OFICINA COMERCIAL"},
		},
		Default: "ALIADOS",
	}
}

// SalesChannel resolves the sales channel. Call-center agents win over office
// detection; a seller on the office whitelist or an office-named agent is an
// office sale; remaining VENTAS groups and own sellers are direct sales force.
func SalesChannel(agentField, sellerField string, officeSellers, ownSellers []string) Chain {
	return Chain{
		Rules: []Rule{
			{Match: FieldContainsAny(agentField, "TELEVENTAS", "CALL CENTER"), Label: "TELEVENTAS / CALL CENTER"},
			{Match: FieldInList(sellerField, officeSellers), Label: "OFICINA COMERCIAL"},
			{Match: FieldContainsAny(agentField, "OFICINA"), Label: "OFICINA COMERCIAL"},
			{Match: And(
				FieldContainsAny(agentField, "VENTAS"),
				Not(FieldContainsAny(agentField, "TELEVENTAS")),
			), Label: "FUERZA DE VENTA PROPIA"},
			{Match: FieldInList(sellerField, ownSellers), Label: "FUERZA DE VENTA PROPIA"},
		},
		Default: "ALIADOS",
	}
}

// RowFilter is a rule chain used as a drop filter: a record matching any rule
// is excluded from the batch. Labels double as exclusion reasons for the log.
type RowFilter struct {
	Rules []Rule
}

// Split partitions records into kept and excluded, logging one line with the
// exclusion counts per reason. Excluded rows are counted, never silently
// dropped.
func (f RowFilter) Split(recs []normalize.Record) (kept, excluded []normalize.Record) {
	counts := make(map[string]int)
	for _, rec := range recs {
		reason := ""
		for _, r := range f.Rules {
			if r.Match(rec) {
				reason = r.Label
				break
			}
		}
		if reason == "" {
			kept = append(kept, rec)
			continue
		}
		counts[reason]++
		excluded = append(excluded, rec)
	}
	for reason, n := range counts {
		log.Printf("INFO: excluded %d rows (%s)", n, reason)
	}
	return kept, excluded
}

// TicketExclusions drops non-business tickets: test solutions, API-generated
// tickets, internet probes and voided statuses.
func TicketExclusions(solutionField, groupField, detailField, statusField string, excludedSolutions []string) RowFilter {
	return RowFilter{Rules: []Rule{
		{Match: FieldInList(solutionField, excludedSolutions), Label: "solucion excluida"},
		{Match: FieldContainsAny(groupField, "GT API"), Label: "ticket de API"},
		{Match: FieldEquals(detailField, "PRUEBA DE INTERNET"), Label: "prueba de internet"},
		{Match: FieldContainsAny(statusField, "CREACIÓN", "CREACION"), Label: "ticket en creación"},
		{Match: FieldInList(statusField, []string{"ANULADA", "CANCELADA", "ELIMINADA"}), Label: "ticket anulado"},
	}}
}

// NonHumanFilter builds the roster filter that drops robot and office
// accounts from people lists. Keywords match on word boundaries only, so
// OFICINA is excluded while a surname containing it is not.
func NonHumanFilter(nameField string, keywords []string) RowFilter {
	quoted := make([]string, len(keywords))
	for i, k := range keywords {
		quoted[i] = regexp.QuoteMeta(strings.ToUpper(k))
	}
	re := regexp.MustCompile(`(?i)\b(` + strings.Join(quoted, "|") + `)\b`)
	return RowFilter{Rules: []Rule{{
		Match: func(rec normalize.Record) bool {
			return re.MatchString(rec[nameField].Str())
		},
		Label: "cuenta no humana",
	}}}
}
