package policy

import (
	"fmt"
	"sort"
	"strings"
)

// Summarize renders an evaluation result as a short human-readable block for
// PR bodies and logs.
func Summarize(r *EvaluationResult) string {
	if r == nil || r.TotalPolicies == 0 {
		return ""
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Policies: %d total, %d passed, %d failed",
		r.TotalPolicies, r.PassedPolicies, r.FailedPolicies)
	if r.ErroredPolicies > 0 {
		fmt.Fprintf(&b, ", %d errored", r.ErroredPolicies)
	}

	results := append([]PolicyResult(nil), r.Results...)
	sort.Slice(results, func(i, j int) bool { return results[i].PolicyID < results[j].PolicyID })

	for _, pr := range results {
		if pr.Status == StatusPass {
			continue
		}
		fmt.Fprintf(&b, "\n- %s [%s/%s]", pr.PolicyName, pr.Level, pr.Status)
		for _, v := range pr.Violations {
			fmt.Fprintf(&b, "\n  - %s", v)
		}
		if pr.Error != "" {
			fmt.Fprintf(&b, "\n  - %s", pr.Error)
		}
	}
	return b.String()
}
