package browser

import (
	"strconv"
	"strings"
)

const (
	queryStepSeparator = " >> "
	unindexedStep      = -1
)

// Query is a chain of CSS selectors. Each step is evaluated inside the
// elements matched by the previous one, optionally narrowed to a single
// match by index.
type Query struct {
	steps []queryStep
}

type queryStep struct {
	Selector string `json:"selector"`
	Index    int    `json:"index"`
}

// Select starts a query matching selector anywhere in the document.
func Select(selector string) Query {
	return Query{steps: []queryStep{{Selector: selector, Index: unindexedStep}}}
}

// Find narrows the query to descendants matching selector.
func (query Query) Find(selector string) Query {
	steps := make([]queryStep, len(query.steps), len(query.steps)+1)
	copy(steps, query.steps)
	steps = append(steps, queryStep{Selector: selector, Index: unindexedStep})
	return Query{steps: steps}
}

// Nth keeps only the index-th element matched by the last step.
func (query Query) Nth(index int) Query {
	if len(query.steps) == 0 {
		return query
	}
	steps := make([]queryStep, len(query.steps))
	copy(steps, query.steps)
	steps[len(steps)-1].Index = index
	return Query{steps: steps}
}

// IsZero reports whether the query has no steps.
func (query Query) IsZero() bool {
	return len(query.steps) == 0
}

// String renders the query as "header >> .cart-icon:nth(0)".
func (query Query) String() string {
	parts := make([]string, 0, len(query.steps))
	for _, step := range query.steps {
		part := step.Selector
		if step.Index != unindexedStep {
			part += ":nth(" + strconv.Itoa(step.Index) + ")"
		}
		parts = append(parts, part)
	}
	return strings.Join(parts, queryStepSeparator)
}
