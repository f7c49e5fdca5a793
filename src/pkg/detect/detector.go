package detect

import (
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/trakrf/action-spec-sub003/src/pkg/models"
)

var logger = log.WithField("package", "detect")

// ChangeDetector compares two validated specifications and reports every
// destructive or notable transition between them.
type ChangeDetector interface {
	Detect(previous, proposed *models.Specification) []models.ChangeWarning
}

// Detector is the rule-based ChangeDetector. Detection is pure field
// comparison; it never consults git history or cloud state.
type Detector struct{}

var _ ChangeDetector = (*Detector)(nil)

func NewDetector() *Detector {
	return &Detector{}
}

// Detect runs every rule in a fixed order: security, compute, data, network,
// governance, and within a category in field-declaration order. Equal inputs
// produce no warnings, and a nil previous means a brand-new specification
// with nothing to compare against.
func (d *Detector) Detect(previous, proposed *models.Specification) []models.ChangeWarning {
	if previous == nil || proposed == nil {
		return []models.ChangeWarning{}
	}

	warnings := []models.ChangeWarning{}
	warnings = append(warnings, d.securityChanges(previous.Spec.Security, proposed.Spec.Security)...)
	warnings = append(warnings, d.computeChanges(previous.Spec.Compute, proposed.Spec.Compute)...)
	warnings = append(warnings, d.dataChanges(previous.Spec.Data, proposed.Spec.Data)...)
	warnings = append(warnings, d.networkChanges(previous.Spec.Network, proposed.Spec.Network)...)
	warnings = append(warnings, d.governanceChanges(previous.Spec.Governance, proposed.Spec.Governance)...)

	if len(warnings) > 0 {
		logger.WithFields(log.Fields{
			"spec":     proposed.Metadata.Name,
			"warnings": len(warnings),
		}).Info("detect: destructive changes found")
	}
	return warnings
}

func (d *Detector) securityChanges(prev, next *models.SecurityBlock) []models.ChangeWarning {
	var out []models.ChangeWarning

	prevWAF, nextWAF := wafOf(prev), wafOf(next)
	if prevWAF.Enabled && !nextWAF.Enabled {
		out = append(out, warning(models.SeverityWarning, models.CategorySecurity,
			"spec.security.waf.enabled",
			"WAF protection is being disabled"))
	}
	if prevWAF.Enabled && nextWAF.Enabled &&
		prevWAF.Mode == models.WAFModeBlock && nextWAF.Mode == models.WAFModeMonitor {
		out = append(out, warning(models.SeverityWarning, models.CategorySecurity,
			"spec.security.waf.mode",
			"WAF is moving from block to monitor mode; attacks will be logged but not stopped"))
	}
	if removed := removedStrings(prevWAF.Rulesets, nextWAF.Rulesets); len(removed) > 0 {
		out = append(out, warning(models.SeverityWarning, models.CategorySecurity,
			"spec.security.waf.rulesets",
			fmt.Sprintf("WAF ruleset coverage is shrinking; removed: %s", joinSorted(removed))))
	}

	prevEnc, nextEnc := encryptionOf(prev), encryptionOf(next)
	if prevEnc.AtRest && !nextEnc.AtRest {
		out = append(out, warning(models.SeverityCritical, models.CategorySecurity,
			"spec.security.encryption.atRest",
			"Encryption at rest is being disabled"))
	}
	if prevEnc.InTransit && !nextEnc.InTransit {
		out = append(out, warning(models.SeverityCritical, models.CategorySecurity,
			"spec.security.encryption.inTransit",
			"Encryption in transit is being disabled"))
	}

	return out
}

func (d *Detector) computeChanges(prev, next *models.ComputeBlock) []models.ChangeWarning {
	var out []models.ChangeWarning
	if prev == nil || next == nil {
		return out
	}

	if sizeDecreased(prev.Size, next.Size) {
		out = append(out, warning(models.SeverityWarning, models.CategoryCompute,
			"spec.compute.size",
			fmt.Sprintf("Compute size is decreasing from %s to %s", prev.Size, next.Size)))
	}

	prevScale, nextScale := scalingOf(prev), scalingOf(next)
	if prev.Scaling != nil && next.Scaling != nil {
		if nextScale.Max < prevScale.Max {
			out = append(out, warning(models.SeverityWarning, models.CategoryCompute,
				"spec.compute.scaling.max",
				fmt.Sprintf("Maximum scaling capacity is decreasing from %d to %d", prevScale.Max, nextScale.Max)))
		}
		if nextScale.Min < prevScale.Min {
			out = append(out, warning(models.SeverityWarning, models.CategoryCompute,
				"spec.compute.scaling.min",
				fmt.Sprintf("Minimum instance count is decreasing from %d to %d", prevScale.Min, nextScale.Min)))
		}
	}

	return out
}

func (d *Detector) dataChanges(prev, next *models.DataBlock) []models.ChangeWarning {
	var out []models.ChangeWarning
	if prev == nil {
		return out
	}

	nextEngine := models.EngineNone
	nextData := &models.DataBlock{}
	if next != nil {
		nextEngine = next.Engine
		nextData = next
	}

	if prev.Engine != "" && prev.Engine != models.EngineNone && prev.Engine != nextEngine {
		out = append(out, warning(models.SeverityCritical, models.CategoryData,
			"spec.data.engine",
			fmt.Sprintf("Data engine is changing from %s to %s; existing data will not migrate automatically", prev.Engine, displayEngine(nextEngine))))
	}
	if next != nil && sizeDecreased(prev.Size, nextData.Size) {
		out = append(out, warning(models.SeverityWarning, models.CategoryData,
			"spec.data.size",
			fmt.Sprintf("Data tier size is decreasing from %s to %s", prev.Size, nextData.Size)))
	}
	if prev.HighAvailability && !nextData.HighAvailability {
		out = append(out, warning(models.SeverityWarning, models.CategoryData,
			"spec.data.highAvailability",
			"High availability is being disabled; the data tier will run on a single node"))
	}
	if nextData.BackupRetention < prev.BackupRetention {
		out = append(out, warning(models.SeverityWarning, models.CategoryData,
			"spec.data.backupRetention",
			fmt.Sprintf("Backup retention is decreasing from %d to %d days", prev.BackupRetention, nextData.BackupRetention)))
	}

	return out
}

func (d *Detector) networkChanges(prev, next *models.NetworkBlock) []models.ChangeWarning {
	var out []models.ChangeWarning
	if prev == nil {
		return out
	}
	// A deleted network block still counts as losing its subnets; the other
	// rules stay quiet against the empty value.
	if next == nil {
		next = &models.NetworkBlock{}
	}

	if prev.VPC != "" && next.VPC != "" && prev.VPC != next.VPC {
		out = append(out, warning(models.SeverityWarning, models.CategoryNetwork,
			"spec.network.vpc",
			fmt.Sprintf("VPC is changing from %s to %s; connectivity will be interrupted during migration", prev.VPC, next.VPC)))
	}
	if !prev.PublicAccess && next.PublicAccess {
		out = append(out, warning(models.SeverityWarning, models.CategoryNetwork,
			"spec.network.publicAccess",
			"Workload is being exposed to the public internet"))
	}
	if removed := removedStrings(prev.Subnets, next.Subnets); len(removed) > 0 {
		out = append(out, warning(models.SeverityWarning, models.CategoryNetwork,
			"spec.network.subnets",
			fmt.Sprintf("Subnets are being removed: %s", joinSorted(removed))))
	}

	return out
}

func (d *Detector) governanceChanges(prev, next *models.GovernanceBlock) []models.ChangeWarning {
	var out []models.ChangeWarning

	prevShutdown, nextShutdown := shutdownOf(prev), shutdownOf(next)
	if !prevShutdown.Enabled && nextShutdown.Enabled {
		out = append(out, warning(models.SeverityInfo, models.CategoryGovernance,
			"spec.governance.autoShutdown.enabled",
			fmt.Sprintf("Auto-shutdown is being enabled after %d idle hours", nextShutdown.AfterHours)))
	}

	// A spend limit appearing for the first time is not a change; the rule
	// only compares once the previous version carried one.
	prevSpend, nextSpend := spendOf(prev), spendOf(next)
	if prevSpend > 0 && prevSpend != nextSpend {
		out = append(out, warning(models.SeverityInfo, models.CategoryGovernance,
			"spec.governance.maxMonthlySpend",
			fmt.Sprintf("Monthly spend limit is changing from %.2f to %.2f", prevSpend, nextSpend)))
	}

	return out
}

func warning(sev models.Severity, cat models.Category, path, msg string) models.ChangeWarning {
	return models.ChangeWarning{
		Severity:  sev,
		Message:   msg,
		FieldPath: path,
		Category:  cat,
	}
}

// sizeDecreased compares two tier names on the demo < small < medium < large
// ordering. Unknown or absent tiers never count as a decrease.
func sizeDecreased(prev, next string) bool {
	prevRank, ok := models.SizeOrder[prev]
	if !ok {
		return false
	}
	nextRank, ok := models.SizeOrder[next]
	if !ok {
		return false
	}
	return nextRank < prevRank
}

func displayEngine(engine string) string {
	if engine == "" {
		return models.EngineNone
	}
	return engine
}
