package apitest

import (
	"regexp"
	"strings"
)

// AssertionType selects what part of the response an assertion inspects.
type AssertionType string

// Assertion types.
const (
	AssertStatus       AssertionType = "status"
	AssertResponseTime AssertionType = "responseTime"
	AssertJSONPath     AssertionType = "jsonPath"
	AssertHeader       AssertionType = "header"
	AssertBodyContains AssertionType = "bodyContains"
	AssertExpression   AssertionType = "expression"
)

// Operator is the comparison an assertion applies.
type Operator string

// Operators.
const (
	OpEquals      Operator = "equals"
	OpNotEquals   Operator = "notEquals"
	OpContains    Operator = "contains"
	OpNotContains Operator = "notContains"
	OpGreaterThan Operator = "greaterThan"
	OpLessThan    Operator = "lessThan"
	OpExists      Operator = "exists"
	OpNotExists   Operator = "notExists"
	OpMatches     Operator = "matches"
)

// Assertion is a declared expectation about a response.
//
// Property is the JSONPath for jsonPath assertions, the header name for header
// assertions and the expression source for expression assertions.
type Assertion struct {
	Type     AssertionType `json:"type" yaml:"type"`
	Property string        `json:"property,omitempty" yaml:"property,omitempty"`
	Operator Operator      `json:"operator,omitempty" yaml:"operator,omitempty"`
	Expected any           `json:"expected,omitempty" yaml:"expected,omitempty"`
}

var defaultOperators = map[AssertionType]Operator{
	AssertStatus:       OpEquals,
	AssertResponseTime: OpLessThan,
	AssertJSONPath:     OpEquals,
	AssertHeader:       OpEquals,
	AssertBodyContains: OpContains,
	AssertExpression:   OpEquals,
}

// allowedOperators lists what each type accepts.
var allowedOperators = map[AssertionType]map[Operator]bool{
	AssertStatus: {
		OpEquals: true, OpNotEquals: true, OpGreaterThan: true, OpLessThan: true,
	},
	AssertResponseTime: {
		OpLessThan: true, OpGreaterThan: true, OpEquals: true, OpNotEquals: true,
	},
	AssertJSONPath: {
		OpEquals: true, OpNotEquals: true, OpContains: true, OpNotContains: true,
		OpGreaterThan: true, OpLessThan: true, OpExists: true, OpNotExists: true, OpMatches: true,
	},
	AssertHeader: {
		OpEquals: true, OpNotEquals: true, OpContains: true, OpNotContains: true,
		OpExists: true, OpNotExists: true, OpMatches: true,
	},
	AssertBodyContains: {
		OpContains: true, OpNotContains: true,
	},
	AssertExpression: {
		OpEquals: true,
	},
}

// EffectiveOperator returns the assertion's operator, or the default for its
// type when none is set.
func (a *Assertion) EffectiveOperator() Operator {
	if a.Operator != "" {
		return a.Operator
	}
	return defaultOperators[a.Type]
}

// Validate checks the assertion's type, operator and the fields they require.
func (a *Assertion) Validate() error {
	allowed, ok := allowedOperators[a.Type]
	if !ok {
		return fieldError("type", "unknown assertion type %q", a.Type)
	}
	op := a.EffectiveOperator()
	if !allowed[op] {
		return fieldError("operator", "operator %q is not supported for %s assertions", op, a.Type)
	}

	switch a.Type {
	case AssertJSONPath, AssertHeader, AssertExpression:
		if strings.TrimSpace(a.Property) == "" {
			return fieldError("property", "property is required for %s assertions", a.Type)
		}
	}

	needsExpected := op != OpExists && op != OpNotExists && a.Type != AssertExpression
	if needsExpected && a.Expected == nil {
		return fieldError("expected", "expected is required for operator %q", op)
	}

	if op == OpMatches {
		pattern, ok := a.Expected.(string)
		if !ok {
			return fieldError("expected", "matches requires a string pattern")
		}
		if _, err := regexp.Compile(pattern); err != nil {
			return fieldError("expected", "invalid pattern: %v", err)
		}
	}
	return nil
}
