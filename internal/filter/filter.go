// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package filter decides per-candidate relevance from a structured
// boolean query. A query is an AND of OR-groups of quoted terms, with an
// optional ANDNOT exclusion group, layered over built-in exclusion lists
// and aggregator/marketing heuristics.
//
// Grammar:
//
//	Query   := Include ( "ANDNOT" Group )?
//	Include := Group ( "AND" Group )*
//	Group   := "(" Term ( "OR" Term )* ")" | Term
//	Term    := '"' <any-char-except-quote>+ '"'
package filter

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrInvalidQuery reports a query that failed validation. The wrapped
// message names every violated rule.
var ErrInvalidQuery = errors.New("invalid query")

// DefaultMaxDistance is the proximity window between adjacent required
// groups, in characters.
const DefaultMaxDistance = 10000

// Filter is a compiled relevance query.
type Filter struct {
	// requiredGroups is the AND-of-ORs: a candidate must match at least
	// one term from every group.
	requiredGroups [][]string

	// userExcluded are the ANDNOT terms; any match disqualifies.
	userExcluded []string

	// defaultExcluded is the built-in exclusion list.
	defaultExcluded []string

	// maxDistance bounds the proximity check between adjacent groups.
	maxDistance int
}

var quotedTermRe = regexp.MustCompile(`"([^"]*)"`)
var emptyGroupRe = regexp.MustCompile(`\(\s*\)`)

// Parse validates and compiles a query string.
func Parse(query string) (*Filter, error) {
	if errs := validate(query); len(errs) > 0 {
		return nil, fmt.Errorf("%w:\n  - %s", ErrInvalidQuery, strings.Join(errs, "\n  - "))
	}

	text := strings.TrimSpace(strings.ReplaceAll(query, "\n", " "))

	include, exclude, _ := strings.Cut(text, "ANDNOT")

	f := &Filter{
		defaultExcluded: defaultExclusions,
		maxDistance:     DefaultMaxDistance,
	}

	for _, m := range quotedTermRe.FindAllStringSubmatch(exclude, -1) {
		if t := strings.TrimSpace(m[1]); t != "" {
			f.userExcluded = append(f.userExcluded, t)
		}
	}

	f.extractGroups(include)
	return f, nil
}

// RequiredGroups returns a copy of the compiled AND-of-ORs, for
// diagnostics and the query preview command.
func (f *Filter) RequiredGroups() [][]string {
	out := make([][]string, len(f.requiredGroups))
	for i, g := range f.requiredGroups {
		out[i] = append([]string(nil), g...)
	}
	return out
}

// UserExcluded returns a copy of the ANDNOT terms.
func (f *Filter) UserExcluded() []string {
	return append([]string(nil), f.userExcluded...)
}

// SetMaxDistance overrides the proximity window.
func (f *Filter) SetMaxDistance(d int) {
	if d > 0 {
		f.maxDistance = d
	}
}

// validate returns the list of violated rules, empty when the query is
// well-formed.
func validate(text string) []string {
	var errs []string

	if strings.TrimSpace(text) == "" {
		return []string{"query is empty"}
	}

	open := strings.Count(text, "(")
	closed := strings.Count(text, ")")
	if open != closed {
		errs = append(errs, fmt.Sprintf("unbalanced parentheses: %d '(' but %d ')'", open, closed))
	}

	if quotes := strings.Count(text, `"`); quotes%2 != 0 {
		errs = append(errs, fmt.Sprintf("unbalanced quotes: found %d (must be even)", quotes))
	}

	if n := len(emptyGroupRe.FindAllString(text, -1)); n > 0 {
		errs = append(errs, fmt.Sprintf("found %d empty group(s): ()", n))
	}

	upper := strings.ToUpper(text)
	for _, op := range []string{"XOR", "NAND", "NOR"} {
		if strings.Contains(upper, op) {
			errs = append(errs, fmt.Sprintf("unsupported operator: %s (use AND, OR, ANDNOT only)", op))
		}
	}

	include, _, _ := strings.Cut(text, "ANDNOT")
	hasTerm := false
	for _, m := range quotedTermRe.FindAllStringSubmatch(include, -1) {
		if strings.TrimSpace(m[1]) != "" {
			hasTerm = true
			break
		}
	}
	if !hasTerm {
		errs = append(errs, "no valid search terms found in quotes")
	}

	if strings.HasPrefix(strings.TrimSpace(text), "ANDNOT") {
		errs = append(errs, "query starts with ANDNOT (must have inclusion terms first)")
	}

	return errs
}

// extractGroups walks the include section recursively: unwrap
// fully-wrapping parentheses, split on top-level " AND ", and treat each
// AND-free block as one OR group of quoted terms.
func (f *Filter) extractGroups(section string) {
	section = unwrap(strings.TrimSpace(section))

	blocks, foundAND := splitTopLevelAND(section)
	if foundAND {
		for _, b := range blocks {
			f.extractGroups(b)
		}
		return
	}

	var terms []string
	for _, m := range quotedTermRe.FindAllStringSubmatch(section, -1) {
		if t := strings.TrimSpace(m[1]); t != "" {
			terms = append(terms, t)
		}
	}
	if len(terms) > 0 {
		f.requiredGroups = append(f.requiredGroups, terms)
	}
}

// unwrap strips parentheses that enclose the whole section, repeatedly.
func unwrap(section string) string {
	for strings.HasPrefix(section, "(") && strings.HasSuffix(section, ")") {
		depth := 0
		wrapped := true
		for _, ch := range section[:len(section)-1] {
			switch ch {
			case '(':
				depth++
			case ')':
				depth--
			}
			if depth == 0 {
				wrapped = false
				break
			}
		}
		if !wrapped {
			break
		}
		section = strings.TrimSpace(section[1 : len(section)-1])
	}
	return section
}

// splitTopLevelAND splits the section on " AND " occurrences at
// parenthesis depth zero.
func splitTopLevelAND(section string) ([]string, bool) {
	var blocks []string
	var current strings.Builder
	depth := 0
	found := false

	for i := 0; i < len(section); {
		ch := section[i]
		switch ch {
		case '(':
			depth++
		case ')':
			depth--
		}
		if depth == 0 && strings.HasPrefix(section[i:], " AND ") {
			blocks = append(blocks, strings.TrimSpace(current.String()))
			current.Reset()
			i += len(" AND ")
			found = true
			continue
		}
		current.WriteByte(ch)
		i++
	}
	blocks = append(blocks, strings.TrimSpace(current.String()))
	return blocks, found
}

// IsRelevant applies the full check pipeline to a candidate's title and
// abstract. Checks run in order; the first failure rejects.
func (f *Filter) IsRelevant(title, abstract string) bool {
	if title == "" {
		return false
	}
	content := strings.ToLower(title + " " + abstract)

	for _, term := range f.defaultExcluded {
		if strings.Contains(content, strings.ToLower(term)) {
			return false
		}
	}

	if isLinkAggregator(title, abstract, content) {
		return false
	}

	if isMarketingContent(title, abstract, content) {
		return false
	}

	for _, term := range f.userExcluded {
		if strings.Contains(content, strings.ToLower(term)) {
			return false
		}
	}

	for _, group := range f.requiredGroups {
		matched := false
		for _, term := range group {
			if strings.Contains(content, strings.ToLower(term)) {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}

	return f.checkProximity(content)
}

// checkProximity requires that for every adjacent pair of required
// groups, some occurrence of a group-i term lies within maxDistance
// characters of a group-i+1 occurrence. Keeps "LLM" in the header and
// "alignment" in a footer about wheel alignment from matching.
func (f *Filter) checkProximity(content string) bool {
	if len(f.requiredGroups) < 2 {
		return true
	}

	positions := make([][]int, 0, len(f.requiredGroups))
	for _, group := range f.requiredGroups {
		var pos []int
		for _, term := range group {
			t := strings.ToLower(term)
			for start := 0; ; {
				idx := strings.Index(content[start:], t)
				if idx < 0 {
					break
				}
				pos = append(pos, start+idx)
				start += idx + 1
			}
		}
		if len(pos) == 0 {
			return false
		}
		positions = append(positions, pos)
	}

	for i := 0; i < len(positions)-1; i++ {
		if !anyWithin(positions[i], positions[i+1], f.maxDistance) {
			return false
		}
	}
	return true
}

func anyWithin(a, b []int, max int) bool {
	for _, p1 := range a {
		for _, p2 := range b {
			d := p1 - p2
			if d < 0 {
				d = -d
			}
			if d <= max {
				return true
			}
		}
	}
	return false
}
