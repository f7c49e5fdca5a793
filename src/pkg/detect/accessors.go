package detect

import (
	"sort"
	"strings"

	"github.com/trakrf/action-spec-sub003/src/pkg/models"
)

// Accessors below collapse absent blocks into their effective values so the
// rules never branch on nil. An absent WAF block means "no WAF", but an
// absent encryption block means "fully encrypted".

func wafOf(s *models.SecurityBlock) models.WAFBlock {
	if s == nil || s.WAF == nil {
		return models.WAFBlock{}
	}
	return *s.WAF
}

func encryptionOf(s *models.SecurityBlock) models.EncryptionBlock {
	if s == nil || s.Encryption == nil {
		return models.EncryptionBlock{AtRest: true, InTransit: true}
	}
	return *s.Encryption
}

func scalingOf(c *models.ComputeBlock) models.ScalingBlock {
	if c == nil || c.Scaling == nil {
		return models.ScalingBlock{}
	}
	return *c.Scaling
}

func shutdownOf(g *models.GovernanceBlock) models.AutoShutdownBlock {
	if g == nil || g.AutoShutdown == nil {
		return models.AutoShutdownBlock{}
	}
	return *g.AutoShutdown
}

func spendOf(g *models.GovernanceBlock) float64 {
	if g == nil {
		return 0
	}
	return g.MaxMonthlySpend
}

// removedStrings returns the entries present before but gone after.
func removedStrings(before, after []string) []string {
	kept := make(map[string]bool, len(after))
	for _, s := range after {
		kept[s] = true
	}
	var removed []string
	for _, s := range before {
		if !kept[s] {
			removed = append(removed, s)
		}
	}
	return removed
}

func joinSorted(items []string) string {
	sorted := append([]string(nil), items...)
	sort.Strings(sorted)
	return strings.Join(sorted, ", ")
}
