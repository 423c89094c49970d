package merge

import (
	"sort"

	"graph-merge/backend/internal/graph"
)

// Rule names the tie-break that decided a property
type Rule string

const (
	RuleSingleSource Rule = "single_source" // present on one vertex only
	RuleTrust        Rule = "trust"         // strictly higher trust coefficient
	RuleRecency      Rule = "recency"       // both verified, later last update
	RuleCompleteness Rule = "completeness"  // higher completeness coefficient
	RuleDisputed     Rule = "disputed"      // both unreliable, value dropped
	RuleIdentity     Rule = "identity"      // everything tied, smaller vertex id
)

// Resolution is the outcome for one property name
type Resolution struct {
	Property graph.Property
	From     string // id of the vertex the value came from, empty when disputed
	Rule     Rule
}

// ResolveProperties merges the property sets of two vertices, pairing
// properties by name. The result depends only on the two vertices, never on
// map iteration order or randomness.
func ResolveProperties(v1, v2 *graph.Vertex) []Resolution {
	names := make(map[string]struct{}, len(v1.Properties)+len(v2.Properties))
	for name := range v1.Properties {
		names[name] = struct{}{}
	}
	for name := range v2.Properties {
		names[name] = struct{}{}
	}
	sorted := make([]string, 0, len(names))
	for name := range names {
		sorted = append(sorted, name)
	}
	sort.Strings(sorted)

	out := make([]Resolution, 0, len(sorted))
	for _, name := range sorted {
		p1, ok1 := v1.Properties[name]
		p2, ok2 := v2.Properties[name]
		switch {
		case ok1 && !ok2:
			out = append(out, Resolution{Property: p1, From: v1.ID, Rule: RuleSingleSource})
		case ok2 && !ok1:
			out = append(out, Resolution{Property: p2, From: v2.ID, Rule: RuleSingleSource})
		default:
			out = append(out, resolvePair(p1, p2, v1, v2))
		}
	}
	return out
}

func resolvePair(p1, p2 graph.Property, v1, v2 *graph.Vertex) Resolution {
	pick := func(first bool, rule Rule) Resolution {
		if first {
			return Resolution{Property: p1, From: v1.ID, Rule: rule}
		}
		return Resolution{Property: p2, From: v2.ID, Rule: rule}
	}

	switch {
	case p1.Trust > p2.Trust:
		return pick(true, RuleTrust)
	case p1.Trust < p2.Trust:
		return pick(false, RuleTrust)
	case p1.Trust == graph.TrustConflicting:
		return Resolution{
			Property: graph.Property{Name: p1.Name, Value: "", Trust: graph.TrustUnverified},
			Rule:     RuleDisputed,
		}
	case p1.Trust == graph.TrustVerified:
		// Both verified: the fresher record wins, then the fuller one
		if !v1.LastUpdate.Equal(v2.LastUpdate) {
			return pick(v1.LastUpdate.After(v2.LastUpdate), RuleRecency)
		}
		if v1.Completeness != v2.Completeness {
			return pick(v1.Completeness > v2.Completeness, RuleCompleteness)
		}
		return pick(v1.ID < v2.ID, RuleIdentity)
	default:
		// Both unverified, or equal partial trust: the fuller record wins,
		// then the fresher one
		if v1.Completeness != v2.Completeness {
			return pick(v1.Completeness > v2.Completeness, RuleCompleteness)
		}
		if !v1.LastUpdate.Equal(v2.LastUpdate) {
			return pick(v1.LastUpdate.After(v2.LastUpdate), RuleRecency)
		}
		return pick(v1.ID < v2.ID, RuleIdentity)
	}
}
