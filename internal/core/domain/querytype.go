package domain

import "strings"

// QueryType drives retrieval boosts and context sizing. Classification is a
// cheap substring pass over the lowercased query; the first matching rule
// wins.
type QueryType string

const (
	QueryCGPA         QueryType = "cgpa"
	QueryGrades       QueryType = "grades"
	QuerySyllabus     QueryType = "syllabus"
	QueryPrerequisite QueryType = "prerequisite"
	QueryName         QueryType = "name"
	QueryList         QueryType = "list"
	QueryGeneral      QueryType = "general"
)

// ClassificationRule maps trigger substrings to a query type. Rules are
// evaluated in declaration order.
type ClassificationRule struct {
	Type     QueryType `yaml:"type"`
	Triggers []string  `yaml:"triggers"`
}

// BoostRule lists the passage terms that raise a candidate's score for one
// query type. Phrases are whitespace-bounded exact matches and earn an extra
// bonus on top of the term boost.
type BoostRule struct {
	Type    QueryType `yaml:"type"`
	Terms   []string  `yaml:"terms"`
	Phrases []string  `yaml:"phrases,omitempty"`
}

// RuleTable bundles the classification and boost rules. It is loaded from
// YAML with a compiled-in default.
type RuleTable struct {
	Classification []ClassificationRule `yaml:"classification"`
	Boosts         []BoostRule          `yaml:"boosts"`
}

// Classify returns the first rule whose trigger occurs in the query, or
// QueryGeneral.
func (t RuleTable) Classify(query string) QueryType {
	q := strings.ToLower(query)
	for _, rule := range t.Classification {
		for _, trigger := range rule.Triggers {
			if strings.Contains(q, trigger) {
				return rule.Type
			}
		}
	}
	return QueryGeneral
}

// BoostFor returns the boost rule for a query type, if any.
func (t RuleTable) BoostFor(qt QueryType) (BoostRule, bool) {
	for _, rule := range t.Boosts {
		if rule.Type == qt {
			return rule, true
		}
	}
	return BoostRule{}, false
}

// ContextSize is the number of passages handed to the generator for a query
// type. Numeric lookups get the widest net.
func (qt QueryType) ContextSize() int {
	switch qt {
	case QueryCGPA, QueryGrades:
		return 50
	case QuerySyllabus, QueryPrerequisite, QueryList:
		return 40
	default:
		return 30
	}
}

// Numeric reports whether answers to this query type are expected to carry
// digits.
func (qt QueryType) Numeric() bool {
	return qt == QueryCGPA || qt == QueryGrades
}
