package model

import "strings"

const (
	PlanFree     = "free"
	PlanBusiness = "business"
)

// PlanTable maps a plan name to its monthly credit allowance. It is built once
// at startup and never mutated.
type PlanTable struct {
	allowances map[string]int
	fallback   string
}

func DefaultPlanTable() PlanTable {
	return NewPlanTable(map[string]int{PlanFree: 10, PlanBusiness: 200})
}

// NewPlanTable copies allowances; names are normalized to lower case. The free
// plan is the fallback for unknown names and is added with 10 credits when
// missing.
func NewPlanTable(allowances map[string]int) PlanTable {
	m := make(map[string]int, len(allowances)+1)
	for k, v := range allowances {
		m[NormalizePlan(k)] = v
	}
	if _, ok := m[PlanFree]; !ok {
		m[PlanFree] = 10
	}
	return PlanTable{allowances: m, fallback: PlanFree}
}

func (t PlanTable) Allowance(plan string) int {
	if v, ok := t.allowances[NormalizePlan(plan)]; ok {
		return v
	}
	return t.allowances[t.fallback]
}

func (t PlanTable) Known(plan string) bool {
	_, ok := t.allowances[NormalizePlan(plan)]
	return ok
}

func NormalizePlan(plan string) string { return strings.ToLower(strings.TrimSpace(plan)) }
