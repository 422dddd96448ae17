package policy

import "sort"

// Match returns the rules whose action_type matches actionType, ordered
// with literal matches preceding wildcard matches, ties broken by
// declaration order.
func (p *Policy) Match(actionType string) []Rule {
	candidates := make([]Rule, 0, len(p.Rules))
	for _, r := range p.Rules {
		if r.ActionType == actionType || r.ActionType == WildcardActionType {
			candidates = append(candidates, r)
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		iLiteral := candidates[i].ActionType != WildcardActionType
		jLiteral := candidates[j].ActionType != WildcardActionType
		if iLiteral != jLiteral {
			return iLiteral
		}
		return candidates[i].declIndex < candidates[j].declIndex
	})
	return candidates
}
